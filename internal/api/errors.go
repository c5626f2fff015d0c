package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/rapidaid/internal/lifecycle"
)

// Codes for failures outside the lifecycle taxonomy.
const (
	codeBadRequest  = "invalid_request"
	codeDuplicate   = "duplicate_request"
	codeRateLimited = "rate_limited"
	codeNoAuth      = "unauthenticated"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// statusFor maps an error to its HTTP status. ErrUnauthorized from an
// operation means the caller is known but lacks the role, hence 403; the
// auth middleware answers 401 itself.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrAlreadyClaimed),
		errors.Is(err, lifecycle.ErrResponderBusy),
		errors.Is(err, lifecycle.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrInvalidCategory),
		errors.Is(err, lifecycle.ErrInvalidLocation),
		errors.Is(err, lifecycle.ErrInvalidResponder):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError aborts the request with the JSON error body for err.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	code := lifecycle.Code(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		// Backend detail stays in the logs.
		c.Error(err)
		msg = http.StatusText(status)
	}
	retryable := lifecycle.Retryable(err)
	if retryable {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{Code: code, Message: msg, Retryable: retryable}})
}

// abort writes an error body with an explicit status and code.
func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{Code: code, Message: msg, Retryable: status == http.StatusTooManyRequests}})
}
