package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/weldvault/weldvault/internal/clock"
	"github.com/weldvault/weldvault/internal/events"
	"github.com/weldvault/weldvault/internal/plan"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
	subscriptionrepository "github.com/weldvault/weldvault/internal/subscription/repository"
	subscriptionservice "github.com/weldvault/weldvault/internal/subscription/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeCharger struct {
	err   error
	calls int
}

func (c *fakeCharger) Charge(context.Context, subscriptiondomain.Subscription) error {
	c.calls++
	return c.err
}

func newScheduler(t *testing.T, charger Charger) (*Scheduler, subscriptiondomain.Service, *clock.FakeClock) {
	t.Helper()

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Subscription{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  subscriptionrepository.Provide(),
		Plans: plan.NewStaticHolder(plan.NewCatalog(plan.DefaultTiers())),
		Bus:   events.NewBus(log),
	})

	sched, err := New(Params{
		Log:             log,
		SubscriptionSvc: subs,
		Clock:           fake,
		Charger:         charger,
	})
	require.NoError(t, err)
	return sched, subs, fake
}

func createAutoRenewing(t *testing.T, subs subscriptiondomain.Service) subscriptiondomain.Subscription {
	t.Helper()
	sub, err := subs.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		OwnerType:    subscriptiondomain.OwnerTypeUser,
		OwnerID:      "user-1",
		PlanTier:     "personal_pro",
		BillingCycle: subscriptiondomain.BillingCycleMonthly,
		AutoRenew:    true,
		Activated:    true,
	})
	require.NoError(t, err)
	return sub
}

func TestRunRenewalsSuccessExtendsPeriod(t *testing.T) {
	charger := &fakeCharger{}
	sched, subs, fake := newScheduler(t, charger)
	ctx := context.Background()

	sub := createAutoRenewing(t, subs)
	fake.Set(sub.EndAt.Add(-48 * time.Hour))

	require.NoError(t, sched.RunRenewals(ctx))
	require.Equal(t, 1, charger.calls)

	renewed, err := subs.GetByID(ctx, sub.ID.String())
	require.NoError(t, err)
	require.True(t, renewed.EndAt.After(sub.EndAt))
	require.EqualValues(t, 0, renewed.RenewalAttemptCount)
}

func TestRunRenewalsSkipsOutsideWindow(t *testing.T) {
	charger := &fakeCharger{}
	sched, subs, _ := newScheduler(t, charger)

	createAutoRenewing(t, subs)

	// A month out: nothing is due yet.
	require.NoError(t, sched.RunRenewals(context.Background()))
	require.Equal(t, 0, charger.calls)
}

func TestRunRenewalsFailureExhaustsOverThreeDays(t *testing.T) {
	charger := &fakeCharger{err: errors.New("card_declined")}
	sched, subs, fake := newScheduler(t, charger)
	ctx := context.Background()

	sub := createAutoRenewing(t, subs)
	fake.Set(sub.EndAt.Add(-60 * time.Hour))

	// Two runs on the same day only record one attempt.
	require.NoError(t, sched.RunRenewals(ctx))
	require.NoError(t, sched.RunRenewals(ctx))

	got, err := subs.GetByID(ctx, sub.ID.String())
	require.NoError(t, err)
	require.EqualValues(t, 1, got.RenewalAttemptCount)

	fake.Advance(24 * time.Hour)
	require.NoError(t, sched.RunRenewals(ctx))

	fake.Advance(24 * time.Hour)
	require.NoError(t, sched.RunRenewals(ctx))

	got, err = subs.GetByID(ctx, sub.ID.String())
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusRenewalFailed, got.Status)
	require.False(t, got.GrantsEntitlement(fake.Now()))
}

func TestSchedulerRequiresCoreDeps(t *testing.T) {
	_, err := New(Params{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
