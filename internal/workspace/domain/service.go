package domain

import (
	"context"
	"errors"
	"fmt"
)

// MembershipSource supplies the raw membership rows for a principal in
// stable input order. Owned by the identity layer.
type MembershipSource interface {
	ListRows(ctx context.Context, principalID string) ([]MembershipRow, error)
}

// PointerRepository stores the server-side current-workspace pointer.
type PointerRepository interface {
	Get(ctx context.Context, principalID string) (string, error)
	Set(ctx context.Context, principalID, workspaceID string) error
}

type SwitchRequest struct {
	PrincipalID       string
	TargetWorkspaceID string
}

type Service interface {
	// ListWorkspaces returns the merged workspace set for a principal.
	ListWorkspaces(ctx context.Context, principalID string) ([]Workspace, error)
	// ResolveCurrent reconciles the session cache against server state
	// and returns the workspace that currently applies.
	ResolveCurrent(ctx context.Context, principalID string) (Workspace, error)
	// Switch moves the principal to another workspace. Concurrent
	// switches race by design: the last accepted response wins and
	// responses to superseded requests are discarded.
	Switch(ctx context.Context, req SwitchRequest) (Workspace, error)
}

var (
	ErrInvalidPrincipal = errors.New("invalid_principal")
	// ErrNoWorkspaceAvailable is fatal for the session: no
	// workspace-dependent action can proceed.
	ErrNoWorkspaceAvailable = errors.New("no_workspace_available")
	// ErrWorkspaceNotFound covers structurally impossible requests, such
	// as switching to a workspace absent from the principal's own rows.
	ErrWorkspaceNotFound = errors.New("workspace_not_found")
)

// SwitchDeniedError is the recoverable eligibility failure: surfaced to
// the caller, no state mutated.
type SwitchDeniedError struct {
	Reason string
}

func (e *SwitchDeniedError) Error() string {
	return fmt.Sprintf("switch_denied: %s", e.Reason)
}

// NewSwitchDenied builds a SwitchDeniedError.
func NewSwitchDenied(reason string) error {
	return &SwitchDeniedError{Reason: reason}
}

// AsSwitchDenied unwraps a SwitchDeniedError if present.
func AsSwitchDenied(err error) (*SwitchDeniedError, bool) {
	var denied *SwitchDeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}
