package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	workspacedomain "github.com/weldvault/weldvault/internal/workspace/domain"
)

func (s *Server) ListWorkspaces(c *gin.Context) {
	principalID, ok := principalFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	workspaces, err := s.workspaceSvc.ListWorkspaces(c.Request.Context(), principalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workspaces": workspaces})
}

func (s *Server) GetCurrentWorkspace(c *gin.Context) {
	principalID, ok := principalFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ws, err := s.workspaceSvc.ResolveCurrent(c.Request.Context(), principalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ws)
}

func (s *Server) SwitchWorkspace(c *gin.Context) {
	principalID, ok := principalFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	targetID := strings.TrimSpace(c.Param("workspaceId"))
	if targetID == "" {
		AbortWithError(c, newValidationError("workspace_id", "required", "workspace id is required"))
		return
	}

	ws, err := s.workspaceSvc.Switch(c.Request.Context(), workspacedomain.SwitchRequest{
		PrincipalID:       principalID,
		TargetWorkspaceID: targetID,
	})
	if err != nil {
		if _, denied := workspacedomain.AsSwitchDenied(err); denied {
			s.obsMetrics.RecordWorkspaceSwitch(c.Request.Context(), "", "denied")
		}
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordWorkspaceSwitch(c.Request.Context(), string(ws.Type), "switched")
	c.JSON(http.StatusOK, ws)
}
