package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/weldvault/weldvault/internal/config"
	entitlementdomain "github.com/weldvault/weldvault/internal/entitlement/domain"
	paymentdomain "github.com/weldvault/weldvault/internal/payment/domain"
	"github.com/weldvault/weldvault/internal/plan"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
	workspacedomain "github.com/weldvault/weldvault/internal/workspace/domain"
)

type fakeWorkspaceService struct {
	workspaces []workspacedomain.Workspace
	current    workspacedomain.Workspace
	switchErr  error
	lastSwitch workspacedomain.SwitchRequest
}

func (f *fakeWorkspaceService) ListWorkspaces(ctx context.Context, principalID string) ([]workspacedomain.Workspace, error) {
	_ = ctx
	_ = principalID
	return f.workspaces, nil
}

func (f *fakeWorkspaceService) ResolveCurrent(ctx context.Context, principalID string) (workspacedomain.Workspace, error) {
	_ = ctx
	_ = principalID
	if f.current.ID == "" {
		return workspacedomain.Workspace{}, workspacedomain.ErrNoWorkspaceAvailable
	}
	return f.current, nil
}

func (f *fakeWorkspaceService) Switch(ctx context.Context, req workspacedomain.SwitchRequest) (workspacedomain.Workspace, error) {
	_ = ctx
	f.lastSwitch = req
	if f.switchErr != nil {
		return workspacedomain.Workspace{}, f.switchErr
	}
	for _, ws := range f.workspaces {
		if ws.ID == req.TargetWorkspaceID {
			return ws, nil
		}
	}
	return workspacedomain.Workspace{}, workspacedomain.ErrWorkspaceNotFound
}

type fakeEntitlementService struct {
	ent      entitlementdomain.EffectiveEntitlement
	decision entitlementdomain.Decision
	lastReq  entitlementdomain.QuotaCheckRequest
}

func (f *fakeEntitlementService) Resolve(ctx context.Context, principalID string, ws workspacedomain.Workspace) (entitlementdomain.EffectiveEntitlement, error) {
	_ = ctx
	_ = principalID
	_ = ws
	return f.ent, nil
}

func (f *fakeEntitlementService) ResolveCurrent(ctx context.Context, principalID string) (entitlementdomain.EffectiveEntitlement, error) {
	_ = ctx
	_ = principalID
	return f.ent, nil
}

func (f *fakeEntitlementService) CheckQuota(ctx context.Context, req entitlementdomain.QuotaCheckRequest) (entitlementdomain.Decision, error) {
	_ = ctx
	f.lastReq = req
	return f.decision, nil
}

type fakePaymentService struct {
	order      paymentdomain.PaymentOrder
	confirmErr error
	lastCreate paymentdomain.CreateOrderRequest
}

func (f *fakePaymentService) CreateOrder(ctx context.Context, req paymentdomain.CreateOrderRequest) (paymentdomain.PaymentOrder, error) {
	_ = ctx
	f.lastCreate = req
	return f.order, nil
}

func (f *fakePaymentService) GetOrder(ctx context.Context, orderID string) (paymentdomain.PaymentOrder, error) {
	_ = ctx
	_ = orderID
	return f.order, nil
}

func (f *fakePaymentService) GetStatus(ctx context.Context, orderID string) (paymentdomain.OrderStatus, error) {
	_ = ctx
	_ = orderID
	return f.order.Status, nil
}

func (f *fakePaymentService) BeginConfirmation(ctx context.Context, orderID string) (paymentdomain.PaymentOrder, error) {
	_ = ctx
	_ = orderID
	return f.order, nil
}

func (f *fakePaymentService) AdminConfirm(ctx context.Context, orderID string) (paymentdomain.PaymentOrder, error) {
	_ = ctx
	_ = orderID
	if f.confirmErr != nil {
		return paymentdomain.PaymentOrder{}, f.confirmErr
	}
	return f.order, nil
}

func (f *fakePaymentService) AdminReject(ctx context.Context, orderID string) (paymentdomain.PaymentOrder, error) {
	_ = ctx
	_ = orderID
	return f.order, nil
}

func (f *fakePaymentService) ListOrders(ctx context.Context, ownerType subscriptiondomain.OwnerType, ownerID string) ([]paymentdomain.PaymentOrder, error) {
	_ = ctx
	_ = ownerType
	_ = ownerID
	return []paymentdomain.PaymentOrder{f.order}, nil
}

func newTestServer(ws *fakeWorkspaceService, ent *fakeEntitlementService, pay *fakePaymentService) *Server {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:         engine,
		cfg:            config.Config{},
		plans:          plan.NewStaticHolder(plan.NewCatalog(plan.DefaultTiers())),
		workspaceSvc:   ws,
		entitlementSvc: ent,
		paymentSvc:     pay,
	}
	srv.registerAPIRoutes()
	srv.registerAdminRoutes()
	return srv
}

func doRequest(srv *Server, method, path, principal string, body string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set(HeaderPrincipal, principal)
	}
	resp := httptest.NewRecorder()
	srv.engine.ServeHTTP(resp, req)
	return resp
}

func TestPrincipalRequiredRejectsMissingHeader(t *testing.T) {
	srv := newTestServer(&fakeWorkspaceService{}, &fakeEntitlementService{}, &fakePaymentService{})

	resp := doRequest(srv, http.MethodGet, "/v1/workspaces", "", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestListTiersIsPublic(t *testing.T) {
	srv := newTestServer(&fakeWorkspaceService{}, &fakeEntitlementService{}, &fakePaymentService{})

	resp := doRequest(srv, http.MethodGet, "/v1/tiers", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var body struct {
		Tiers []tierResponse `json:"tiers"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Tiers) != 6 {
		t.Fatalf("expected 6 tiers, got %d", len(body.Tiers))
	}
	if body.Tiers[0].Tier != plan.TierFree {
		t.Fatalf("expected free tier first, got %s", body.Tiers[0].Tier)
	}
}

func TestGetCurrentWorkspaceNoWorkspaceReturns404(t *testing.T) {
	srv := newTestServer(&fakeWorkspaceService{}, &fakeEntitlementService{}, &fakePaymentService{})

	resp := doRequest(srv, http.MethodGet, "/v1/workspaces/current", "user-1", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}

	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error.Type != "no_workspace_available" {
		t.Fatalf("expected no_workspace_available, got %s", body.Error.Type)
	}
}

func TestSwitchWorkspaceDeniedReturns409(t *testing.T) {
	ws := &fakeWorkspaceService{
		switchErr: workspacedomain.NewSwitchDenied("subscription_expired"),
	}
	srv := newTestServer(ws, &fakeEntitlementService{}, &fakePaymentService{})

	resp := doRequest(srv, http.MethodPost, "/v1/workspaces/acme/switch", "user-1", "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}

	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error.Type != "switch_denied" {
		t.Fatalf("expected switch_denied, got %s", body.Error.Type)
	}
	if body.Error.Reason != "subscription_expired" {
		t.Fatalf("expected subscription_expired reason, got %s", body.Error.Reason)
	}
	if ws.lastSwitch.PrincipalID != "user-1" || ws.lastSwitch.TargetWorkspaceID != "acme" {
		t.Fatalf("unexpected switch request %+v", ws.lastSwitch)
	}
}

func TestSwitchWorkspaceUnknownReturns404(t *testing.T) {
	srv := newTestServer(&fakeWorkspaceService{}, &fakeEntitlementService{}, &fakePaymentService{})

	resp := doRequest(srv, http.MethodPost, "/v1/workspaces/nowhere/switch", "user-1", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestCheckQuotaDenialIsStillOK(t *testing.T) {
	ent := &fakeEntitlementService{
		decision: entitlementdomain.Decision{
			Allowed: false,
			Reason:  entitlementdomain.ReasonQuotaExceeded,
			Kind:    plan.ResourceDocuments,
			Limit:   10,
			Current: 10,
		},
	}
	srv := newTestServer(&fakeWorkspaceService{}, ent, &fakePaymentService{})

	resp := doRequest(srv, http.MethodPost, "/v1/entitlement/quota-check", "user-1", `{"resource_kind":"documents"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var decision entitlementdomain.Decision
	if err := json.Unmarshal(resp.Body.Bytes(), &decision); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denial")
	}
	if decision.Reason != entitlementdomain.ReasonQuotaExceeded {
		t.Fatalf("expected quota_exceeded, got %s", decision.Reason)
	}
	if ent.lastReq.PrincipalID != "user-1" || ent.lastReq.Kind != plan.ResourceDocuments {
		t.Fatalf("unexpected quota request %+v", ent.lastReq)
	}
}

func TestCheckQuotaMissingKindReturns400(t *testing.T) {
	srv := newTestServer(&fakeWorkspaceService{}, &fakeEntitlementService{}, &fakePaymentService{})

	resp := doRequest(srv, http.MethodPost, "/v1/entitlement/quota-check", "user-1", `{}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCreatePaymentOrderDefaultsOwnerToPrincipal(t *testing.T) {
	pay := &fakePaymentService{
		order: paymentdomain.PaymentOrder{Status: paymentdomain.OrderStatusCreated},
	}
	srv := newTestServer(&fakeWorkspaceService{}, &fakeEntitlementService{}, pay)

	resp := doRequest(srv, http.MethodPost, "/v1/payment/orders", "user-1",
		`{"plan_tier":"personal_pro","billing_cycle":"monthly","method":"redirect"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
	if pay.lastCreate.OwnerType != subscriptiondomain.OwnerTypeUser {
		t.Fatalf("expected user owner type, got %s", pay.lastCreate.OwnerType)
	}
	if pay.lastCreate.OwnerID != "user-1" {
		t.Fatalf("expected principal as owner, got %s", pay.lastCreate.OwnerID)
	}
}

func TestAdminConfirmTerminalOrderReturns409(t *testing.T) {
	pay := &fakePaymentService{confirmErr: paymentdomain.ErrOrderTerminal}
	srv := newTestServer(&fakeWorkspaceService{}, &fakeEntitlementService{}, pay)

	resp := doRequest(srv, http.MethodPost, "/v1/admin/payment/orders/123/confirm", "admin-1", "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}
