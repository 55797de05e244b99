package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/weldvault/weldvault/internal/clock"
	"github.com/weldvault/weldvault/internal/events"
	"github.com/weldvault/weldvault/internal/plan"
	"github.com/weldvault/weldvault/internal/subscription/repository"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, fake *clock.FakeClock) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Subscription{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	svc := NewService(ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
		Plans: plan.NewStaticHolder(plan.NewCatalog(plan.DefaultTiers())),
		Bus:   events.NewBus(log),
	}).(*Service)

	return svc, db
}

func createActive(t *testing.T, svc *Service, autoRenew bool) subscriptiondomain.Subscription {
	t.Helper()
	sub, err := svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		OwnerType:    subscriptiondomain.OwnerTypeUser,
		OwnerID:      "user-1",
		PlanTier:     "personal_flagship",
		BillingCycle: subscriptiondomain.BillingCycleMonthly,
		AutoRenew:    autoRenew,
		Activated:    true,
	})
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)
	return sub
}

func TestCreateValidation(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	_, err := svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		OwnerType:    subscriptiondomain.OwnerTypeUser,
		OwnerID:      "",
		PlanTier:     "personal_pro",
		BillingCycle: subscriptiondomain.BillingCycleMonthly,
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidOwner)

	_, err = svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		OwnerType:    subscriptiondomain.OwnerTypeUser,
		OwnerID:      "user-1",
		PlanTier:     "diamond",
		BillingCycle: subscriptiondomain.BillingCycleMonthly,
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTier)

	// Buying the free tier makes no sense.
	_, err = svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		OwnerType:    subscriptiondomain.OwnerTypeUser,
		OwnerID:      "user-1",
		PlanTier:     "free",
		BillingCycle: subscriptiondomain.BillingCycleMonthly,
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTier)

	_, err = svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		OwnerType:    subscriptiondomain.OwnerTypeUser,
		OwnerID:      "user-1",
		PlanTier:     "personal_pro",
		BillingCycle: subscriptiondomain.BillingCycle("WEEKLY"),
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidBillingCycle)
}

func TestPendingConfirmGrantsNothing(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)

	sub, err := svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		OwnerType:    subscriptiondomain.OwnerTypeCompany,
		OwnerID:      "company-1",
		PlanTier:     "enterprise_pro",
		BillingCycle: subscriptiondomain.BillingCycleYearly,
	})
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusPendingConfirm, sub.Status)
	require.False(t, sub.GrantsEntitlement(fake.Now()))
}

func TestTransitionTable(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	sub, err := svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		OwnerType:    subscriptiondomain.OwnerTypeUser,
		OwnerID:      "user-1",
		PlanTier:     "personal_pro",
		BillingCycle: subscriptiondomain.BillingCycleMonthly,
	})
	require.NoError(t, err)

	// PENDING_CONFIRM cannot expire or renewal-fail.
	err = svc.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusExpired, subscriptiondomain.ReasonExpirySweep)
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)

	require.NoError(t, svc.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.ReasonAdminConfirm))

	got, err := svc.GetByID(ctx, sub.ID.String())
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, got.Status)
	require.NotNil(t, got.ActivatedAt)

	// Same-state transition is a no-op, not an error.
	require.NoError(t, svc.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.ReasonAdminConfirm))

	// ACTIVE cannot be rejected.
	err = svc.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusRejected, subscriptiondomain.ReasonAdminReject)
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)

	// Unknown target statuses are refused before any lookup.
	err = svc.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatus("FROZEN"), subscriptiondomain.ReasonAdminConfirm)
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTargetStatus)
}

func TestRejectionIsTerminal(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	sub, err := svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		OwnerType:    subscriptiondomain.OwnerTypeUser,
		OwnerID:      "user-1",
		PlanTier:     "personal_pro",
		BillingCycle: subscriptiondomain.BillingCycleMonthly,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusRejected, subscriptiondomain.ReasonAdminReject))

	// Reactivation requires a new record, never an in-place mutation.
	err = svc.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.ReasonAdminConfirm)
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestCancelKeepsEntitlementUntilPeriodEnd(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	sub := createActive(t, svc, true)
	require.NoError(t, svc.Cancel(ctx, sub.ID.String()))

	got, err := svc.GetByID(ctx, sub.ID.String())
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusCanceled, got.Status)
	require.False(t, got.AutoRenew)
	require.NotNil(t, got.CanceledAt)

	// Still entitled until the paid period lapses.
	require.True(t, got.GrantsEntitlement(fake.Now()))

	fake.Advance(32 * 24 * time.Hour)
	require.False(t, got.GrantsEntitlement(fake.Now()))
	require.Equal(t, subscriptiondomain.SubscriptionStatusExpired, got.EffectiveStatus(fake.Now()))
}

func TestPullEvaluatedExpiry(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)

	sub := createActive(t, svc, false)
	require.True(t, sub.GrantsEntitlement(fake.Now()))

	// Stored status still says ACTIVE, but reads see EXPIRED.
	fake.Advance(40 * 24 * time.Hour)
	got, err := svc.GetByID(context.Background(), sub.ID.String())
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, got.Status)
	require.Equal(t, subscriptiondomain.SubscriptionStatusExpired, got.EffectiveStatus(fake.Now()))
	require.False(t, got.GrantsEntitlement(fake.Now()))
}

func TestRenewalRetryExhaustionAndManualRestore(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(start)
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	sub := createActive(t, svc, true)

	// Not yet inside the renewal window.
	_, err := svc.RecordRenewalAttempt(ctx, sub.ID.String(), false)
	require.ErrorIs(t, err, subscriptiondomain.ErrRenewalNotDue)

	// Move to three days before the period end and fail once per day.
	fake.Set(sub.EndAt.AddDate(0, 0, -3).Add(time.Hour))
	for attempt := 1; attempt <= 2; attempt++ {
		got, err := svc.RecordRenewalAttempt(ctx, sub.ID.String(), false)
		require.NoError(t, err)
		require.Equal(t, int16(attempt), got.RenewalAttemptCount)
		require.Equal(t, subscriptiondomain.SubscriptionStatusActive, got.Status)

		// A second attempt on the same calendar day is refused.
		_, err = svc.RecordRenewalAttempt(ctx, sub.ID.String(), false)
		require.ErrorIs(t, err, subscriptiondomain.ErrRenewalAttemptedToday)

		fake.Advance(24 * time.Hour)
	}

	got, err := svc.RecordRenewalAttempt(ctx, sub.ID.String(), false)
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusRenewalFailed, got.Status)
	require.Equal(t, int16(3), got.RenewalAttemptCount)

	// Entitlement reads as expired, yet distinguishable from user cancel.
	require.False(t, got.GrantsEntitlement(fake.Now()))
	require.NotEqual(t, subscriptiondomain.SubscriptionStatusCanceled, got.Status)

	// A late manual payment restores ACTIVE with a fresh period.
	require.NoError(t, svc.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.ReasonManualRestore))
	restored, err := svc.GetByID(ctx, sub.ID.String())
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, restored.Status)
	require.Equal(t, int16(0), restored.RenewalAttemptCount)
	require.True(t, restored.GrantsEntitlement(fake.Now()))
	require.True(t, restored.EndAt.After(fake.Now()))
}

func TestRenewalSuccessExtendsPeriod(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(start)
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	sub := createActive(t, svc, true)
	fake.Set(sub.EndAt.Add(-time.Hour))

	got, err := svc.RecordRenewalAttempt(ctx, sub.ID.String(), true)
	require.NoError(t, err)
	require.Equal(t, int16(0), got.RenewalAttemptCount)
	require.Equal(t, sub.EndAt.AddDate(0, 1, 0), got.EndAt)
}

func TestRenewalRequiresAutoRenew(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)

	sub := createActive(t, svc, false)
	fake.Set(sub.EndAt.Add(-time.Hour))

	_, err := svc.RecordRenewalAttempt(context.Background(), sub.ID.String(), false)
	require.ErrorIs(t, err, subscriptiondomain.ErrRenewalNotEnabled)
}

func TestSweepExpired(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	sub := createActive(t, svc, false)
	fake.Advance(40 * 24 * time.Hour)

	swept, err := svc.SweepExpired(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	got, err := svc.GetByID(ctx, sub.ID.String())
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusExpired, got.Status)

	// Second sweep finds nothing.
	swept, err = svc.SweepExpired(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 0, swept)
}

func TestGetCurrentByOwnerReturnsLatest(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	first := createActive(t, svc, false)
	require.NoError(t, svc.Transition(ctx, first.ID.String(), subscriptiondomain.SubscriptionStatusCanceled, subscriptiondomain.ReasonUserCancel))

	fake.Advance(time.Hour)
	second := createActive(t, svc, true)

	got, err := svc.GetCurrentByOwner(ctx, subscriptiondomain.GetCurrentByOwnerRequest{
		OwnerType: subscriptiondomain.OwnerTypeUser,
		OwnerID:   "user-1",
	})
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)

	_, err = svc.GetCurrentByOwner(ctx, subscriptiondomain.GetCurrentByOwnerRequest{
		OwnerType: subscriptiondomain.OwnerTypeCompany,
		OwnerID:   "nobody",
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}
