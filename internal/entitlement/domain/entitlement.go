// Package domain defines the effective entitlement a principal holds in a
// workspace, and the quota decision derived from it.
package domain

import (
	"context"
	"errors"

	"github.com/weldvault/weldvault/internal/plan"
	workspacedomain "github.com/weldvault/weldvault/internal/workspace/domain"
)

// EffectiveEntitlement is the resolved plan tier a principal operates
// under inside one workspace, with the quota limits that tier carries.
// Row-level membership tiers are advisory only and never feed into this.
type EffectiveEntitlement struct {
	PrincipalID string           `json:"principal_id"`
	WorkspaceID string           `json:"workspace_id"`
	Tier        plan.Tier        `json:"tier"`
	Limits      plan.QuotaLimits `json:"limits"`
	// Inherited is true when the tier comes from a company subscription
	// the principal does not hold themselves.
	Inherited bool `json:"inherited"`
	// SourceWorkspaceID names the workspace whose subscription supplied
	// the tier.
	SourceWorkspaceID string `json:"source_workspace_id"`
}

// Decision is the outcome of a quota check. A denial is an answer, not an
// error.
type Decision struct {
	Allowed bool              `json:"allowed"`
	Reason  string            `json:"reason,omitempty"`
	Kind    plan.ResourceKind `json:"resource_kind"`
	Limit   int64             `json:"limit"`
	Current int64             `json:"current"`
}

const (
	ReasonQuotaExceeded   = "quota_exceeded"
	ReasonUnknownResource = "unknown_resource"
)

// CheckQuota applies the boundary rule: creation is denied once the
// current count has reached the limit, so current == limit already
// denies.
func CheckQuota(ent EffectiveEntitlement, kind plan.ResourceKind, current int64) Decision {
	limit, ok := ent.Limits.Limit(kind)
	if !ok {
		return Decision{Allowed: false, Reason: ReasonUnknownResource, Kind: kind, Current: current}
	}
	if current >= limit {
		return Decision{Allowed: false, Reason: ReasonQuotaExceeded, Kind: kind, Limit: limit, Current: current}
	}
	return Decision{Allowed: true, Kind: kind, Limit: limit, Current: current}
}

// CountProvider reports how much of a resource a workspace currently
// uses. Documents, employees and factories live with external
// collaborators; this interface is the seam to them.
type CountProvider interface {
	CurrentCount(ctx context.Context, workspaceID string, kind plan.ResourceKind) (int64, error)
}

// UsageRecorder is the write side of the usage counters; collaborator
// services report absolute counts through it.
type UsageRecorder interface {
	Record(ctx context.Context, workspaceID string, kind plan.ResourceKind, amount int64) error
}

type QuotaCheckRequest struct {
	PrincipalID string
	Kind        plan.ResourceKind
}

type Service interface {
	// Resolve computes the effective entitlement for a principal inside
	// the given workspace.
	Resolve(ctx context.Context, principalID string, ws workspacedomain.Workspace) (EffectiveEntitlement, error)
	// ResolveCurrent resolves against the principal's current workspace.
	ResolveCurrent(ctx context.Context, principalID string) (EffectiveEntitlement, error)
	// CheckQuota resolves the current entitlement and decides whether one
	// more unit of the resource may be created.
	CheckQuota(ctx context.Context, req QuotaCheckRequest) (Decision, error)
}

var ErrInvalidPrincipal = errors.New("invalid_principal")
