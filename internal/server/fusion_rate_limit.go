package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/cardforge/internal/config"
	"github.com/smallbiznis/cardforge/internal/observability/logger"
	"github.com/smallbiznis/cardforge/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

type fusionRateLimitKey struct {
	FusionID string `json:"fusion_id"`
}

// FusionRateLimit throttles fusion commits per user. A caller whose window is
// exhausted may still resubmit a fusion id it already committed: that replay
// is answered from the ledger instead of being rejected. Ledger lookups for
// throttled callers draw on their own budget.
func (s *Server) FusionRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		userID, ok := userIDFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)

		res, err := s.limiter.Check(ctx, userID, config.ActionFusion)
		if err != nil {
			log.Warn("fusion rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		writeRateLimitHeaders(c, res)
		if res.Allowed {
			c.Next()
			return
		}

		fusionID, err := readFusionID(c)
		if err != nil {
			log.Warn("fusion rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}
		if fusionID != "" && s.replayBudgetAllows(c, userID) {
			if _, err := s.fusionSvc.Get(ctx, userID, fusionID); err == nil {
				c.Next()
				return
			}
		}

		retryAfter := res.RetryAfter(s.clock.Now())
		log.Warn("fusion rate limit exceeded",
			zap.Int("limit", res.Limit),
			zap.Duration("retry_after", retryAfter),
		)
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		AbortWithError(c, ErrRateLimited)
	}
}

// replayBudgetAllows spends one replay lookup. An unconfigured budget allows.
func (s *Server) replayBudgetAllows(c *gin.Context, userID string) bool {
	res, err := s.limiter.Check(c.Request.Context(), userID, config.ActionFusionReplay)
	if err != nil {
		return errors.Is(err, ratelimit.ErrUnknownAction)
	}
	return res.Allowed
}

func writeRateLimitHeaders(c *gin.Context, res ratelimit.Result) {
	c.Header(headerRateLimitLimit, strconv.Itoa(res.Limit))
	c.Header(headerRateLimitRemaining, strconv.Itoa(res.Remaining))
	c.Header(headerRateLimitReset, strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// readFusionID peeks at the body and restores it for the handler.
func readFusionID(c *gin.Context) (string, error) {
	if key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)); key != "" {
		return key, nil
	}
	if c.Request.Body == nil {
		return "", nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload fusionRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	return strings.TrimSpace(payload.FusionID), nil
}
