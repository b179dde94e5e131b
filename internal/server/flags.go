package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/cardforge/internal/audit/domain"
	"github.com/smallbiznis/cardforge/internal/featureflag"
	"github.com/smallbiznis/cardforge/internal/observability/logger"
	"go.uber.org/zap"
)

type updateFlagRequest struct {
	Enabled        *bool   `json:"enabled"`
	RolloutPercent *int    `json:"rollout_percent"`
	Description    *string `json:"description"`
}

func (s *Server) ListFlags(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.flags.List()})
}

// UpdateFlag patches a flag in place; unknown names create a new flag.
func (s *Server) UpdateFlag(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		AbortWithError(c, featureflag.ErrInvalidFlagName)
		return
	}

	var req updateFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	current, found := s.flags.Get(name)
	previous := current
	if !found {
		current = featureflag.Flag{Name: name}
	}
	if req.Enabled != nil {
		current.Enabled = *req.Enabled
	}
	if req.RolloutPercent != nil {
		current.RolloutPercent = *req.RolloutPercent
	}
	if req.Description != nil {
		current.Description = strings.TrimSpace(*req.Description)
	}

	updated, err := s.flags.Set(current)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	actorID, _ := userIDFromContext(c)
	metadata := map[string]any{
		"enabled":         updated.Enabled,
		"rollout_percent": updated.RolloutPercent,
		"version":         updated.Version,
		"created":         !found,
	}
	if found {
		metadata["previous_enabled"] = previous.Enabled
		metadata["previous_rollout_percent"] = previous.RolloutPercent
	}
	if err := s.auditSvc.AuditLog(c.Request.Context(), auditdomain.ActorTypeOperator, &actorID, auditdomain.ActionFlagUpdated, auditdomain.TargetTypeFlag, &updated.Name, metadata); err != nil {
		logger.FromContext(c.Request.Context()).Warn("audit write failed", zap.String("flag", updated.Name), zap.Error(err))
	}

	c.JSON(http.StatusOK, updated)
}
