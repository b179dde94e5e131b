package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/cardforge/internal/authorization"
	fusiondomain "github.com/smallbiznis/cardforge/internal/fusion/domain"
)

type createFusionRequest struct {
	Materials []string `json:"materials"`
	FusionID  string   `json:"fusion_id"`
	SessionID string   `json:"session_id"`
}

type listFusionsQuery struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit"`
}

func (s *Server) CreateFusion(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createFusionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	fusionID := strings.TrimSpace(req.FusionID)
	if key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)); key != "" {
		if fusionID != "" && fusionID != key {
			AbortWithError(c, newValidationError("fusion_id", "idempotency_key_mismatch", "fusion_id does not match Idempotency-Key"))
			return
		}
		fusionID = key
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = c.GetString(contextSessionIDKey)
	}

	outcome, err := s.fusionSvc.Commit(c.Request.Context(), fusiondomain.Request{
		UserID:    userID,
		SessionID: sessionID,
		FusionID:  fusionID,
		Materials: req.Materials,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextFusionIDKey, outcome.FusionID)
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) GetFusion(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	outcome, err := s.fusionSvc.Get(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextFusionIDKey, outcome.FusionID)
	c.JSON(http.StatusOK, outcome)
}

// VerifyFusion lets the owner, or an operator holding fusion:verify, re-check a signature.
func (s *Server) VerifyFusion(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	fusionID := strings.TrimSpace(c.Param("id"))
	ctx := c.Request.Context()

	if _, err := s.fusionSvc.Get(ctx, userID, fusionID); err != nil {
		if !errors.Is(err, fusiondomain.ErrNotFound) {
			AbortWithError(c, err)
			return
		}
		if authzErr := s.authorizeWithContext(c, authorization.ObjectFusion, authorization.ActionFusionVerify); authzErr != nil {
			// hide other users' fusions from players
			AbortWithError(c, err)
			return
		}
	}

	result, err := s.fusionSvc.Verify(ctx, fusionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextFusionIDKey, fusionID)
	c.JSON(http.StatusOK, result)
}

func (s *Server) ListFusions(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listFusionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	page, err := s.fusionSvc.History(c.Request.Context(), userID, strings.TrimSpace(query.Cursor), query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}
