package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/weldvault/weldvault/internal/clock"
	"github.com/weldvault/weldvault/internal/config"
	entitlementdomain "github.com/weldvault/weldvault/internal/entitlement/domain"
	entitlementrepo "github.com/weldvault/weldvault/internal/entitlement/repository"
	entitlementservice "github.com/weldvault/weldvault/internal/entitlement/service"
	"github.com/weldvault/weldvault/internal/events"
	paymentdomain "github.com/weldvault/weldvault/internal/payment/domain"
	paymentrepo "github.com/weldvault/weldvault/internal/payment/repository"
	paymentservice "github.com/weldvault/weldvault/internal/payment/service"
	"github.com/weldvault/weldvault/internal/plan"
	"github.com/weldvault/weldvault/internal/seed"
	"github.com/weldvault/weldvault/internal/server"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
	subscriptionrepo "github.com/weldvault/weldvault/internal/subscription/repository"
	subscriptionservice "github.com/weldvault/weldvault/internal/subscription/service"
	workspacedomain "github.com/weldvault/weldvault/internal/workspace/domain"
	workspacerepo "github.com/weldvault/weldvault/internal/workspace/repository"
	workspaceservice "github.com/weldvault/weldvault/internal/workspace/service"
	"github.com/weldvault/weldvault/pkg/kvstore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type env struct {
	srv   *server.Server
	clock *clock.FakeClock
	db    *gorm.DB
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbConn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(
		&workspacedomain.MembershipRecord{},
		&workspacedomain.WorkspacePointer{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.PaymentOrder{},
		&entitlementrepo.ResourceUsage{},
	))
	require.NoError(t, seed.EnsureDemoMembership(dbConn))

	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	bus := events.NewBus(log)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	plans := plan.NewStaticHolder(plan.NewCatalog(plan.DefaultTiers()))

	subSvc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:    dbConn,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  subscriptionrepo.Provide(),
		Plans: plans,
		Bus:   bus,
	})
	wsSvc := workspaceservice.NewService(workspaceservice.ServiceParam{
		Log:      log,
		Source:   workspacerepo.ProvideMembershipSource(dbConn),
		Pointers: workspacerepo.ProvidePointerRepository(dbConn),
		Cache:    kvstore.NewMemory(),
		Subs:     subSvc,
		Clock:    fake,
		Bus:      bus,
	})
	counts, _ := entitlementrepo.ProvideCounters(dbConn)
	entSvc := entitlementservice.NewService(entitlementservice.ServiceParam{
		Log:        log,
		Subs:       subSvc,
		Workspaces: wsSvc,
		Plans:      plans,
		Counts:     counts,
		Clock:      fake,
		Bus:        bus,
	})
	paySvc := paymentservice.NewService(paymentservice.ServiceParam{
		DB:    dbConn,
		Log:   log,
		GenID: node,
		Repo:  paymentrepo.Provide(),
		Subs:  subSvc,
		Plans: plans,
		Clock: fake,
		Bus:   bus,
	})

	engine := gin.New()
	engine.Use(server.ErrorHandlingMiddleware())
	srv := server.NewServer(server.ServerParams{
		Gin:             engine,
		Cfg:             config.Config{},
		DB:              dbConn,
		Plans:           plans,
		WorkspaceSvc:    wsSvc,
		EntitlementSvc:  entSvc,
		SubscriptionSvc: subSvc,
		PaymentSvc:      paySvc,
	})

	return &env{srv: srv, clock: fake, db: dbConn}
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(server.HeaderPrincipal, seed.DemoPrincipalID)
	resp := httptest.NewRecorder()
	e.srv.Engine().ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), out))
}

func TestPurchaseConfirmEntitlementFlow(t *testing.T) {
	e := newEnv(t)

	// Seeded rows merge into two workspaces.
	resp := e.do(t, http.MethodGet, "/v1/workspaces", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var listBody struct {
		Workspaces []workspacedomain.Workspace `json:"workspaces"`
	}
	decode(t, resp, &listBody)
	require.Len(t, listBody.Workspaces, 2)

	// No pointer yet: current falls back to the first merged workspace.
	resp = e.do(t, http.MethodGet, "/v1/workspaces/current", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var current workspacedomain.Workspace
	decode(t, resp, &current)
	require.Equal(t, seed.DemoPersonalWorkspaceID, current.ID)

	// Without a subscription the personal workspace runs on free.
	resp = e.do(t, http.MethodGet, "/v1/entitlement", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var ent entitlementdomain.EffectiveEntitlement
	decode(t, resp, &ent)
	require.Equal(t, plan.TierFree, ent.Tier)

	// Buy personal_pro.
	resp = e.do(t, http.MethodPost, "/v1/payment/orders",
		`{"plan_tier":"personal_pro","billing_cycle":"MONTHLY","method":"redirect"}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	var order paymentdomain.PaymentOrder
	decode(t, resp, &order)
	require.Equal(t, paymentdomain.OrderStatusCreated, order.Status)
	require.NotNil(t, order.RedirectURL)

	orderPath := fmt.Sprintf("/v1/payment/orders/%s", order.ID.String())
	adminConfirmPath := fmt.Sprintf("/v1/admin/payment/orders/%s/confirm", order.ID.String())

	// Entering the payment flow moves the order to PENDING_CONFIRM; the
	// pending subscription still grants nothing.
	resp = e.do(t, http.MethodPost, orderPath+"/confirmation", "")
	require.Equal(t, http.StatusOK, resp.Code)
	resp = e.do(t, http.MethodGet, orderPath+"/status", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var statusBody struct {
		Status paymentdomain.OrderStatus `json:"status"`
	}
	decode(t, resp, &statusBody)
	require.Equal(t, paymentdomain.OrderStatusPendingConfirm, statusBody.Status)

	resp = e.do(t, http.MethodGet, "/v1/entitlement", "")
	decode(t, resp, &ent)
	require.Equal(t, plan.TierFree, ent.Tier)

	// Admin confirmation settles the order and activates the subscription.
	resp = e.do(t, http.MethodPost, adminConfirmPath, "")
	require.Equal(t, http.StatusOK, resp.Code)
	decode(t, resp, &order)
	require.Equal(t, paymentdomain.OrderStatusSuccess, order.Status)

	resp = e.do(t, http.MethodGet, "/v1/entitlement", "")
	require.Equal(t, http.StatusOK, resp.Code)
	decode(t, resp, &ent)
	require.Equal(t, plan.TierPersonalPro, ent.Tier)
	require.False(t, ent.Inherited)
	require.EqualValues(t, 100, ent.Limits.Documents)

	// Confirming again is idempotent.
	resp = e.do(t, http.MethodPost, adminConfirmPath, "")
	require.Equal(t, http.StatusOK, resp.Code)

	// Quota check against the active tier.
	resp = e.do(t, http.MethodPost, "/v1/entitlement/quota-check", `{"resource_kind":"documents"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	var decision entitlementdomain.Decision
	decode(t, resp, &decision)
	require.True(t, decision.Allowed)
	require.EqualValues(t, 100, decision.Limit)
}

func TestSwitchAndExpiryFlow(t *testing.T) {
	e := newEnv(t)

	// The company has no subscription, so switching in is allowed.
	resp := e.do(t, http.MethodPost, fmt.Sprintf("/v1/workspaces/%s/switch", seed.DemoCompanyWorkspaceID), "")
	require.Equal(t, http.StatusOK, resp.Code)
	var ws workspacedomain.Workspace
	decode(t, resp, &ws)
	require.Equal(t, seed.DemoCompanyWorkspaceID, ws.ID)
	require.Equal(t, workspacedomain.WorkspaceTypeEnterprise, ws.Type)
	// Duplicate department rows merged, last factory row wins.
	require.Len(t, ws.Departments, 2)
	require.Equal(t, "south-yard", ws.FactoryName)

	// A member without a company subscription sits on free, not on the
	// advisory tier from the membership rows.
	resp = e.do(t, http.MethodGet, "/v1/entitlement", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var ent entitlementdomain.EffectiveEntitlement
	decode(t, resp, &ent)
	require.Equal(t, plan.TierFree, ent.Tier)

	// Buy and confirm an enterprise plan for the company.
	resp = e.do(t, http.MethodPost, "/v1/payment/orders",
		`{"owner_type":"company","owner_id":"acme-welding","plan_tier":"enterprise_pro","billing_cycle":"MONTHLY","method":"qr"}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	var order paymentdomain.PaymentOrder
	decode(t, resp, &order)
	require.NotNil(t, order.QRPayload)

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/v1/payment/orders/%s/confirmation", order.ID.String()), "")
	require.Equal(t, http.StatusOK, resp.Code)
	resp = e.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/payment/orders/%s/confirm", order.ID.String()), "")
	require.Equal(t, http.StatusOK, resp.Code)

	// The member now inherits the company tier.
	resp = e.do(t, http.MethodGet, "/v1/entitlement", "")
	require.Equal(t, http.StatusOK, resp.Code)
	decode(t, resp, &ent)
	require.Equal(t, plan.TierEnterprisePro, ent.Tier)
	require.True(t, ent.Inherited)

	// Expiry is pull-evaluated: a month later the tier degrades without
	// any sweeper having run.
	e.clock.Advance(32 * 24 * time.Hour)
	resp = e.do(t, http.MethodGet, "/v1/entitlement", "")
	require.Equal(t, http.StatusOK, resp.Code)
	decode(t, resp, &ent)
	require.Equal(t, plan.TierFree, ent.Tier)

	// And switching into the workspace is now denied.
	resp = e.do(t, http.MethodPost, fmt.Sprintf("/v1/workspaces/%s/switch", seed.DemoPersonalWorkspaceID), "")
	require.Equal(t, http.StatusOK, resp.Code)
	resp = e.do(t, http.MethodPost, fmt.Sprintf("/v1/workspaces/%s/switch", seed.DemoCompanyWorkspaceID), "")
	require.Equal(t, http.StatusConflict, resp.Code)
	var errBody struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	decode(t, resp, &errBody)
	require.Equal(t, "switch_denied", errBody.Error.Type)
	require.Equal(t, "subscription_expired", errBody.Error.Reason)
}
