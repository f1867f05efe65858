// Package endpoints holds the gin handlers for the public API. Handlers
// are constructors taking the narrow interfaces they need, so tests can
// substitute fakes without a running store or queue.
package endpoints

import "github.com/gin-gonic/gin"

// Error short-codes used in the response envelope.
const (
	CodeValidation  = "validation_error"
	CodeNotFound    = "not_found"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal_error"
	CodeUnavailable = "provider_unavailable"
)

// ErrorResponse is the envelope every failure returns.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: code, Message: message})
}
