package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weldvault/weldvault/internal/plan"
)

type tierResponse struct {
	Tier   plan.Tier        `json:"tier"`
	Limits plan.QuotaLimits `json:"limits"`
}

// tierOrder fixes the response ordering from cheapest to most expensive.
var tierOrder = []plan.Tier{
	plan.TierFree,
	plan.TierPersonalPro,
	plan.TierPersonalFlagship,
	plan.TierEnterpriseBasic,
	plan.TierEnterprisePro,
	plan.TierEnterpriseFlagship,
}

func (s *Server) ListTiers(c *gin.Context) {
	catalog := s.plans.Catalog()

	tiers := make([]tierResponse, 0, len(tierOrder))
	for _, tier := range tierOrder {
		limits, ok := catalog.Lookup(tier)
		if !ok {
			continue
		}
		tiers = append(tiers, tierResponse{Tier: tier, Limits: limits})
	}

	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}
