package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/cardforge/internal/audit/domain"
	"github.com/smallbiznis/cardforge/internal/observability/logger"
	"github.com/smallbiznis/cardforge/internal/ratelimit"
	"go.uber.org/zap"
)

type rateLimitStatus struct {
	Action    string    `json:"action"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// GetRateLimits reports the caller's allowance per action class without
// consuming any of it.
func (s *Server) GetRateLimits(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if s.limiter == nil {
		c.JSON(http.StatusOK, gin.H{"data": []rateLimitStatus{}})
		return
	}

	ctx := c.Request.Context()
	actions := s.limiter.Actions()
	statuses := make([]rateLimitStatus, 0, len(actions))
	for _, action := range actions {
		res, err := s.limiter.Peek(ctx, userID, action)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		statuses = append(statuses, rateLimitStatus{
			Action:    action,
			Limit:     res.Limit,
			Remaining: res.Remaining,
			ResetTime: res.ResetAt.UTC(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": statuses})
}

// ResetRateLimit clears one user's window for an action class.
func (s *Server) ResetRateLimit(c *gin.Context) {
	if s.limiter == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	userID := strings.TrimSpace(c.Param("user_id"))
	action := strings.TrimSpace(c.Param("action"))
	if userID == "" || action == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if err := s.limiter.Reset(ctx, userID, action); err != nil {
		if errors.Is(err, ratelimit.ErrUnknownAction) {
			err = newValidationError("action", "unknown_action", "unknown rate limit action")
		}
		AbortWithError(c, err)
		return
	}

	actorID, _ := userIDFromContext(c)
	target := userID + ":" + action
	metadata := map[string]any{"user_id": userID, "action": action}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeOperator, &actorID, auditdomain.ActionRateLimitReset, auditdomain.TargetTypeLimit, &target, metadata); err != nil {
		logger.FromContext(ctx).Warn("audit write failed", zap.String("target", target), zap.Error(err))
	}

	c.Status(http.StatusNoContent)
}
