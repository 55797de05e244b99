package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
)

// GetCurrentSubscription returns the governing subscription for an owner.
// Default owner is the calling principal's personal account; enterprise
// owners pass owner_type=company with the company id.
func (s *Server) GetCurrentSubscription(c *gin.Context) {
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
	if !ownerType.Valid() {
		AbortWithError(c, subscriptiondomain.ErrInvalidOwner)
		return
	}

	sub, err := s.subscriptionSvc.GetCurrentByOwner(c.Request.Context(), subscriptiondomain.GetCurrentByOwnerRequest{
		OwnerType: ownerType,
		OwnerID:   ownerID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	sub, err := s.subscriptionSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.subscriptionSvc.Cancel(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.subscriptionSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}
