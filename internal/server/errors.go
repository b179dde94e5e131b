package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/cardforge/internal/audit/domain"
	"github.com/smallbiznis/cardforge/internal/auth"
	"github.com/smallbiznis/cardforge/internal/authorization"
	"github.com/smallbiznis/cardforge/internal/featureflag"
	fusiondomain "github.com/smallbiznis/cardforge/internal/fusion/domain"
	"github.com/smallbiznis/cardforge/internal/ratelimit"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Retryable bool              `json:"retryable"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var fusionErr *fusiondomain.Error
	if errors.As(err, &fusionErr) {
		return mapFusionError(fusionErr)
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthenticated",
			Message: "unauthenticated",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, featureflag.ErrInvalidFlagName),
		errors.Is(err, featureflag.ErrInvalidRollout),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, ratelimit.ErrUnknownAction):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Code: err.Error(), Message: "invalid value"},
			},
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, featureflag.ErrFlagNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:      "rate_limited",
			Message:   "too many requests",
			Retryable: true,
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:      "service_unavailable",
			Message:   "service unavailable",
			Retryable: true,
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:      "internal_error",
			Message:   "internal server error",
			Retryable: true,
		}
	}
}

// mapFusionError never echoes the wrapped cause; it can carry card ids or SQL.
func mapFusionError(err *fusiondomain.Error) (int, errorPayload) {
	payload := errorPayload{Type: string(err.Kind), Retryable: err.Retryable()}
	switch err.Kind {
	case fusiondomain.KindUnauthenticated:
		payload.Message = "unauthenticated"
		return http.StatusUnauthorized, payload
	case fusiondomain.KindInvalidMaterials:
		payload.Message = "materials are invalid"
		return http.StatusBadRequest, payload
	case fusiondomain.KindInvalidRequest:
		payload.Message = "invalid request"
		return http.StatusBadRequest, payload
	case fusiondomain.KindInsufficientMaterials:
		payload.Message = "not enough materials held"
		return http.StatusUnprocessableEntity, payload
	case fusiondomain.KindRateLimited:
		payload.Message = "too many requests"
		return http.StatusTooManyRequests, payload
	case fusiondomain.KindConflict:
		payload.Message = "fusion id already used"
		return http.StatusConflict, payload
	case fusiondomain.KindNotFound:
		payload.Message = "not found"
		return http.StatusNotFound, payload
	case fusiondomain.KindStorageUnavailable:
		payload.Message = "storage unavailable"
		return http.StatusServiceUnavailable, payload
	default:
		payload.Type = string(fusiondomain.KindInternal)
		payload.Message = "internal server error"
		payload.Retryable = true
		return http.StatusInternalServerError, payload
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// classifyErrorForLog feeds error_type and error_code of the request log line.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server", payload.Type
	default:
		return "client", payload.Type
	}
}
