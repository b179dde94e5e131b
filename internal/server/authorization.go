package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// authorizeWithContext checks the caller's stored role against the RBAC policy.
func (s *Server) authorizeWithContext(c *gin.Context, object string, action string) error {
	userID, ok := userIDFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}

	user, err := s.userSvc.Get(c.Request.Context(), userID)
	if err != nil {
		return err
	}
	return s.authzSvc.Authorize(c.Request.Context(), userID, user.Role, strings.TrimSpace(object), strings.TrimSpace(action))
}
