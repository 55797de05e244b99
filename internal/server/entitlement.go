package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/weldvault/weldvault/internal/entitlement/domain"
	"github.com/weldvault/weldvault/internal/plan"
)

type quotaCheckRequest struct {
	ResourceKind string `json:"resource_kind"`
}

func (s *Server) GetEntitlement(c *gin.Context) {
	principalID, ok := principalFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ent, err := s.entitlementSvc.ResolveCurrent(c.Request.Context(), principalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ent)
}

func (s *Server) CheckQuota(c *gin.Context) {
	principalID, ok := principalFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req quotaCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	kind := strings.TrimSpace(req.ResourceKind)
	if kind == "" {
		AbortWithError(c, newValidationError("resource_kind", "required", "resource kind is required"))
		return
	}

	decision, err := s.entitlementSvc.CheckQuota(c.Request.Context(), entitlementdomain.QuotaCheckRequest{
		PrincipalID: principalID,
		Kind:        plan.ResourceKind(kind),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !decision.Allowed {
		s.obsMetrics.RecordQuotaDenial(c.Request.Context(), string(decision.Kind), decision.Reason)
	}

	// A denial is a decision, not an error.
	c.JSON(http.StatusOK, decision)
}
