package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/shelfscan/internal/backend"
	"github.com/mrlokans/shelfscan/internal/identity"
	"github.com/mrlokans/shelfscan/internal/library"
	"github.com/mrlokans/shelfscan/internal/metadata"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`      // machine-readable error code
	Retryable bool   `json:"retryable,omitempty"` // the same request may succeed later
	Details   any    `json:"details,omitempty"`
}

// SuccessResponse is a standard success response with optional data.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ListResponse wraps a collection with its size.
type ListResponse struct {
	Data  any `json:"data"`
	Count int `json:"count"`
}

// --- Error Response Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: "bad_request"})
}

// respondNotFound sends a 404 Not Found response.
func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found", Code: "not_found"})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, operation string) {
	slog.Error("internal error", "operation", operation, "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal"})
}

// respondServiceError maps errors from the library and the sync client to
// a status code and a retry hint.
func respondServiceError(c *gin.Context, err error, operation string) {
	var reqErr *backend.RequestError
	switch {
	case errors.Is(err, backend.ErrUnauthenticated), errors.Is(err, identity.ErrNoAssertion):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "sign in required", Code: "unauthenticated"})
	case errors.Is(err, library.ErrBookNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, metadata.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no metadata for this ISBN", Code: "not_found"})
	case errors.Is(err, metadata.ErrInvalidISBN):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_isbn"})
	case errors.Is(err, backend.ErrNoServerID):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "not_synced", Retryable: true})
	case errors.Is(err, library.ErrLookupDisabled), errors.Is(err, library.ErrNoHistory):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "disabled"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "book service timed out", Code: "timeout", Retryable: true})
	case errors.As(err, &reqErr):
		slog.Warn("book service request failed", "operation", operation, "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:     "book service request failed",
			Code:      "upstream_error",
			Retryable: backend.IsRetryable(err),
			Details:   gin.H{"status": reqErr.StatusCode},
		})
	case errors.Is(err, backend.ErrRequestFailed):
		slog.Warn("book service response unreadable", "operation", operation, "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "book service response unreadable", Code: "upstream_error"})
	default:
		respondInternalError(c, err, operation)
	}
}

// --- Success Response Helpers ---

// respondSuccess sends a 200 OK response with a message.
func respondSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, SuccessResponse{Message: message})
}

// respondCreated sends a 201 Created response with data.
func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// --- Parameter Parsing ---

// parseListQuery splits a comma-separated query parameter, dropping blanks.
func parseListQuery(c *gin.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryArray(name) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseLimit reads an optional positive "limit" query parameter.
// Returns false after responding with 400 when it is malformed.
func parseLimit(c *gin.Context, fallback int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return fallback, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		respondBadRequest(c, "invalid limit")
		return 0, false
	}
	return limit, true
}
