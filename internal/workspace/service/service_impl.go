package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/weldvault/weldvault/internal/clock"
	"github.com/weldvault/weldvault/internal/events"
	"github.com/weldvault/weldvault/internal/principalctx"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
	workspacedomain "github.com/weldvault/weldvault/internal/workspace/domain"
	"github.com/weldvault/weldvault/pkg/kvstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix = "workspace:current:"
	cacheTTL       = 30 * 24 * time.Hour
)

type Service struct {
	log *zap.Logger

	source   workspacedomain.MembershipSource
	pointers workspacedomain.PointerRepository
	cache    kvstore.Store
	subs     subscriptiondomain.Service
	clock    clock.Clock
	bus      *events.Bus

	// Per-principal switch bookkeeping: a monotonically increasing
	// request sequence, and the workspace of the last applied response.
	mu      sync.Mutex
	issued  map[string]uint64
	applied map[string]uint64
	current map[string]workspacedomain.Workspace
}

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	Source   workspacedomain.MembershipSource
	Pointers workspacedomain.PointerRepository
	Cache    kvstore.Store
	Subs     subscriptiondomain.Service
	Clock    clock.Clock
	Bus      *events.Bus
}

func NewService(p ServiceParam) workspacedomain.Service {
	return &Service{
		log:      p.Log.Named("workspace.service"),
		source:   p.Source,
		pointers: p.Pointers,
		cache:    p.Cache,
		subs:     p.Subs,
		clock:    p.Clock,
		bus:      p.Bus,
		issued:   make(map[string]uint64),
		applied:  make(map[string]uint64),
		current:  make(map[string]workspacedomain.Workspace),
	}
}

func (s *Service) ListWorkspaces(ctx context.Context, principalID string) ([]workspacedomain.Workspace, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, workspacedomain.ErrInvalidPrincipal
	}

	rows, err := s.source.ListRows(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return workspacedomain.MergeRows(rows), nil
}

// ResolveCurrent reconciles the session cache against server state.
//
// A cached id that still matches a membership wins outright; the server is
// deliberately not consulted so an in-flight local switch is never
// overwritten. A stale cache is cleared and repaired from the server
// pointer, and when that is also missing or invalid the first merged
// workspace is adopted and persisted.
func (s *Service) ResolveCurrent(ctx context.Context, principalID string) (workspacedomain.Workspace, error) {
	merged, err := s.ListWorkspaces(ctx, principalID)
	if err != nil {
		return workspacedomain.Workspace{}, err
	}
	if len(merged) == 0 {
		return workspacedomain.Workspace{}, workspacedomain.ErrNoWorkspaceAvailable
	}

	key := s.cacheKey(ctx, principalID)

	if cached, err := s.cache.Get(ctx, key); err == nil && cached != "" {
		if ws, ok := workspacedomain.FindWorkspace(merged, cached); ok {
			return ws, nil
		}
		if err := s.cache.Delete(ctx, key); err != nil {
			s.log.Warn("stale workspace cache not cleared", zap.Error(err))
		}
	} else if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		s.log.Warn("workspace cache read failed", zap.Error(err))
	}

	serverID, err := s.pointers.Get(ctx, principalID)
	if err != nil {
		return workspacedomain.Workspace{}, err
	}
	if serverID != "" {
		if ws, ok := workspacedomain.FindWorkspace(merged, serverID); ok {
			s.persist(ctx, key, principalID, ws, false)
			return ws, nil
		}
	}

	// Server has none or something invalid: deterministic fallback to the
	// first merged workspace.
	first := merged[0]
	s.persist(ctx, key, principalID, first, true)
	return first, nil
}

func (s *Service) Switch(ctx context.Context, req workspacedomain.SwitchRequest) (workspacedomain.Workspace, error) {
	principalID := strings.TrimSpace(req.PrincipalID)
	if principalID == "" {
		return workspacedomain.Workspace{}, workspacedomain.ErrInvalidPrincipal
	}
	targetID := strings.TrimSpace(req.TargetWorkspaceID)
	if targetID == "" {
		return workspacedomain.Workspace{}, workspacedomain.ErrWorkspaceNotFound
	}

	seq := s.nextSeq(principalID)

	merged, err := s.ListWorkspaces(ctx, principalID)
	if err != nil {
		return workspacedomain.Workspace{}, err
	}
	target, ok := workspacedomain.FindWorkspace(merged, targetID)
	if !ok {
		return workspacedomain.Workspace{}, workspacedomain.ErrWorkspaceNotFound
	}

	if err := s.canSwitch(ctx, target); err != nil {
		return workspacedomain.Workspace{}, err
	}

	return s.applySwitch(ctx, principalID, seq, target)
}

// canSwitch is the eligibility pre-check. An enterprise target whose
// company subscription has lapsed is denied; an enterprise with no
// subscription at all operates on the free tier and stays switchable.
func (s *Service) canSwitch(ctx context.Context, target workspacedomain.Workspace) error {
	if target.Type != workspacedomain.WorkspaceTypeEnterprise {
		return nil
	}

	sub, err := s.subs.GetCurrentByOwner(ctx, subscriptiondomain.GetCurrentByOwnerRequest{
		OwnerType: subscriptiondomain.OwnerTypeCompany,
		OwnerID:   target.ID,
	})
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
			return nil
		}
		return err
	}

	if sub.EffectiveStatus(s.clock.Now()) == subscriptiondomain.SubscriptionStatusExpired {
		return workspacedomain.NewSwitchDenied("subscription_expired")
	}
	return nil
}

// applySwitch commits a switch response in "last accepted, not last
// issued" order: a response whose sequence has been superseded by a newer
// request is discarded, and the caller sees whatever response was last
// accepted instead.
func (s *Service) applySwitch(ctx context.Context, principalID string, seq uint64, target workspacedomain.Workspace) (workspacedomain.Workspace, error) {
	s.mu.Lock()
	if seq < s.applied[principalID] {
		accepted, ok := s.current[principalID]
		s.mu.Unlock()
		s.log.Debug("stale switch response discarded",
			zap.String("principal_id", principalID),
			zap.Uint64("seq", seq),
		)
		if ok {
			return accepted, nil
		}
		return s.ResolveCurrent(ctx, principalID)
	}
	s.applied[principalID] = seq
	s.current[principalID] = target
	s.mu.Unlock()

	if err := s.pointers.Set(ctx, principalID, target.ID); err != nil {
		return workspacedomain.Workspace{}, err
	}

	key := s.cacheKey(ctx, principalID)
	if err := s.cache.Set(ctx, key, target.ID, cacheTTL); err != nil {
		s.log.Warn("workspace cache write failed", zap.Error(err))
	}

	s.bus.Publish(ctx, events.Event{
		Topic:       events.TopicWorkspaceChanged,
		PrincipalID: principalID,
		WorkspaceID: target.ID,
	})

	return target, nil
}

func (s *Service) nextSeq(principalID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued[principalID]++
	return s.issued[principalID]
}

func (s *Service) persist(ctx context.Context, key, principalID string, ws workspacedomain.Workspace, setPointer bool) {
	if setPointer {
		if err := s.pointers.Set(ctx, principalID, ws.ID); err != nil {
			s.log.Warn("workspace pointer write failed", zap.Error(err))
		}
	}
	if err := s.cache.Set(ctx, key, ws.ID, cacheTTL); err != nil {
		s.log.Warn("workspace cache write failed", zap.Error(err))
	}
}

// cacheKey scopes the cached pointer to the session when one is present,
// falling back to the principal for sessionless callers.
func (s *Service) cacheKey(ctx context.Context, principalID string) string {
	if sessionID, ok := principalctx.SessionIDFromContext(ctx); ok {
		return cacheKeyPrefix + sessionID
	}
	return cacheKeyPrefix + principalID
}
