package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/weldvault/weldvault/internal/observability/context"
	"github.com/weldvault/weldvault/internal/principalctx"
)

const (
	HeaderPrincipal = "X-Principal-Id"
	HeaderSession   = "X-Session-Id"
)

// PrincipalRequired resolves the authenticated principal from the gateway
// headers. Authentication itself happens upstream; an absent principal
// header means the gateway let an anonymous request through.
func (s *Server) PrincipalRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		principalID := strings.TrimSpace(c.GetHeader(HeaderPrincipal))
		if principalID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := principalctx.WithPrincipalID(c.Request.Context(), principalID)
		if sessionID := strings.TrimSpace(c.GetHeader(HeaderSession)); sessionID != "" {
			ctx = principalctx.WithSessionID(ctx, sessionID)
		}
		ctx = obscontext.WithActor(ctx, "principal", principalID)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func principalFromRequest(c *gin.Context) (string, bool) {
	return principalctx.PrincipalIDFromContext(c.Request.Context())
}
