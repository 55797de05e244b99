package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/weldvault/weldvault/internal/clock"
	"github.com/weldvault/weldvault/internal/events"
	"github.com/weldvault/weldvault/internal/plan"
	entitlementdomain "github.com/weldvault/weldvault/internal/entitlement/domain"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
	workspacedomain "github.com/weldvault/weldvault/internal/workspace/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	log        *zap.Logger
	subs       subscriptiondomain.Service
	workspaces workspacedomain.Service
	plans      *plan.CatalogHolder
	counts     entitlementdomain.CountProvider
	clock      clock.Clock

	// memo caches the subscription lookup keyed by principal|workspace
	// and is flushed on workspace and subscription change events, so an
	// entry never survives the change that would invalidate it. The tier
	// grant itself is re-evaluated against the clock on every read, which
	// keeps expiry pull-evaluated even for memoized entries.
	mu   sync.RWMutex
	memo map[string]memoEntry
}

type memoEntry struct {
	ws  workspacedomain.Workspace
	sub *subscriptiondomain.Subscription
}

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	Subs       subscriptiondomain.Service
	Workspaces workspacedomain.Service
	Plans      *plan.CatalogHolder
	Counts     entitlementdomain.CountProvider
	Clock      clock.Clock
	Bus        *events.Bus
}

func NewService(p ServiceParam) entitlementdomain.Service {
	s := &Service{
		log:        p.Log.Named("entitlement.service"),
		subs:       p.Subs,
		workspaces: p.Workspaces,
		plans:      p.Plans,
		counts:     p.Counts,
		clock:      p.Clock,
		memo:       make(map[string]memoEntry),
	}
	p.Bus.Subscribe(events.TopicWorkspaceChanged, s.onChange)
	p.Bus.Subscribe(events.TopicSubscriptionChanged, s.onChange)
	return s
}

func (s *Service) Resolve(ctx context.Context, principalID string, ws workspacedomain.Workspace) (entitlementdomain.EffectiveEntitlement, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return entitlementdomain.EffectiveEntitlement{}, entitlementdomain.ErrInvalidPrincipal
	}

	key := principalID + "|" + ws.ID
	s.mu.RLock()
	entry, ok := s.memo[key]
	s.mu.RUnlock()
	if ok {
		return s.build(principalID, entry.ws, entry.sub), nil
	}

	sub, err := s.lookupSubscription(ctx, principalID, ws)
	if err != nil {
		return entitlementdomain.EffectiveEntitlement{}, err
	}

	s.mu.Lock()
	s.memo[key] = memoEntry{ws: ws, sub: sub}
	s.mu.Unlock()
	return s.build(principalID, ws, sub), nil
}

func (s *Service) ResolveCurrent(ctx context.Context, principalID string) (entitlementdomain.EffectiveEntitlement, error) {
	ws, err := s.workspaces.ResolveCurrent(ctx, principalID)
	if err != nil {
		return entitlementdomain.EffectiveEntitlement{}, err
	}
	return s.Resolve(ctx, principalID, ws)
}

func (s *Service) CheckQuota(ctx context.Context, req entitlementdomain.QuotaCheckRequest) (entitlementdomain.Decision, error) {
	ent, err := s.ResolveCurrent(ctx, req.PrincipalID)
	if err != nil {
		return entitlementdomain.Decision{}, err
	}

	current, err := s.counts.CurrentCount(ctx, ent.WorkspaceID, req.Kind)
	if err != nil {
		return entitlementdomain.Decision{}, err
	}

	decision := entitlementdomain.CheckQuota(ent, req.Kind, current)
	if !decision.Allowed {
		s.log.Info("quota check denied",
			zap.String("principal_id", req.PrincipalID),
			zap.String("workspace_id", ent.WorkspaceID),
			zap.String("resource_kind", string(req.Kind)),
			zap.Int64("limit", decision.Limit),
			zap.Int64("current", decision.Current),
		)
	}
	return decision, nil
}

// lookupSubscription finds the subscription governing the workspace. The
// owner is the principal for personal workspaces and the company (whose
// id is the workspace id) for enterprise ones. Returns nil when the owner
// has no subscription at all.
func (s *Service) lookupSubscription(ctx context.Context, principalID string, ws workspacedomain.Workspace) (*subscriptiondomain.Subscription, error) {
	ownerType := subscriptiondomain.OwnerTypeUser
	ownerID := principalID
	if ws.Type == workspacedomain.WorkspaceTypeEnterprise {
		ownerType = subscriptiondomain.OwnerTypeCompany
		ownerID = ws.ID
	}

	sub, err := s.subs.GetCurrentByOwner(ctx, subscriptiondomain.GetCurrentByOwnerRequest{
		OwnerType: ownerType,
		OwnerID:   ownerID,
	})
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// build evaluates the grant at the current clock reading; any non-active
// effective status degrades to free.
func (s *Service) build(principalID string, ws workspacedomain.Workspace, sub *subscriptiondomain.Subscription) entitlementdomain.EffectiveEntitlement {
	tier := plan.TierFree
	if sub != nil && sub.GrantsEntitlement(s.clock.Now()) {
		tier = plan.Tier(sub.PlanTier)
	}

	inherited := ws.Type == workspacedomain.WorkspaceTypeEnterprise &&
		!ws.HasRole(workspacedomain.RoleOwner) &&
		tier != plan.TierFree

	return entitlementdomain.EffectiveEntitlement{
		PrincipalID:       principalID,
		WorkspaceID:       ws.ID,
		Tier:              tier,
		Limits:            s.plans.Catalog().Quotas(tier),
		Inherited:         inherited,
		SourceWorkspaceID: ws.ID,
	}
}

// onChange drops every memoized entry. The memo is small and rebuilt on
// the next resolve, so a full flush is simpler than tracking which owner
// maps to which principals.
func (s *Service) onChange(_ context.Context, _ events.Event) {
	s.mu.Lock()
	s.memo = make(map[string]memoEntry)
	s.mu.Unlock()
}
