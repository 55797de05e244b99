package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/weldvault/weldvault/internal/payment/domain"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
)

type createOrderRequest struct {
	OwnerType      string `json:"owner_type"`
	OwnerID        string `json:"owner_id"`
	PlanTier       string `json:"plan_tier"`
	BillingCycle   string `json:"billing_cycle"`
	Method         string `json:"method"`
	AutoRenew      bool   `json:"auto_renew"`
	SubscriptionID string `json:"subscription_id"`
}

func (s *Server) CreatePaymentOrder(c *gin.Context) {
	principalID, ok := principalFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ownerType := subscriptiondomain.OwnerType(strings.TrimSpace(req.OwnerType))
	if ownerType == "" {
		ownerType = subscriptiondomain.OwnerTypeUser
	}
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		ownerID = principalID
	}

	order, err := s.paymentSvc.CreateOrder(c.Request.Context(), paymentdomain.CreateOrderRequest{
		OwnerType:      ownerType,
		OwnerID:        ownerID,
		PlanTier:       strings.TrimSpace(req.PlanTier),
		BillingCycle:   subscriptiondomain.BillingCycle(strings.TrimSpace(req.BillingCycle)),
		Method:         paymentdomain.Method(strings.TrimSpace(req.Method)),
		AutoRenew:      req.AutoRenew,
		SubscriptionID: strings.TrimSpace(req.SubscriptionID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (s *Server) ListPaymentOrders(c *gin.Context) {
	principalID, ok := principalFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ownerType := subscriptiondomain.OwnerType(strings.TrimSpace(c.Query("owner_type")))
	if ownerType == "" {
		ownerType = subscriptiondomain.OwnerTypeUser
	}
	ownerID := strings.TrimSpace(c.Query("owner_id"))
	if ownerID == "" {
		ownerID = principalID
	}

	orders, err := s.paymentSvc.ListOrders(c.Request.Context(), ownerType, ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) GetPaymentOrder(c *gin.Context) {
	order, err := s.paymentSvc.GetOrder(c.Request.Context(), strings.TrimSpace(c.Param("orderId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// GetPaymentOrderStatus is the endpoint clients poll while an order awaits
// confirmation. A poll timeout is the client's own budget running out; the
// server never stores it.
func (s *Server) GetPaymentOrderStatus(c *gin.Context) {
	status, err := s.paymentSvc.GetStatus(c.Request.Context(), strings.TrimSpace(c.Param("orderId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (s *Server) BeginPaymentConfirmation(c *gin.Context) {
	order, err := s.paymentSvc.BeginConfirmation(c.Request.Context(), strings.TrimSpace(c.Param("orderId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (s *Server) AdminConfirmPaymentOrder(c *gin.Context) {
	order, err := s.paymentSvc.AdminConfirm(c.Request.Context(), strings.TrimSpace(c.Param("orderId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordPaymentOutcome(c.Request.Context(), string(order.Method), "success")
	c.JSON(http.StatusOK, order)
}

func (s *Server) AdminRejectPaymentOrder(c *gin.Context) {
	order, err := s.paymentSvc.AdminReject(c.Request.Context(), strings.TrimSpace(c.Param("orderId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordPaymentOutcome(c.Request.Context(), string(order.Method), "rejected")
	c.JSON(http.StatusOK, order)
}
