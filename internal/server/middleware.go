package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/cardforge/internal/auth"
	obscontext "github.com/smallbiznis/cardforge/internal/observability/context"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"

	contextUserIDKey    = "user_id"
	contextSessionIDKey = "session_id"
	contextFusionIDKey  = "fusion_id"
)

// AuthRequired resolves the bearer token into the caller's user id.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := s.verifier.Verify(auth.BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, principal.UserID)
		c.Set(contextSessionIDKey, principal.SessionID)
		ctx := obscontext.WithUser(c.Request.Context(), principal.UserID, principal.SessionID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) (string, bool) {
	userID := c.GetString(contextUserIDKey)
	return userID, userID != ""
}
