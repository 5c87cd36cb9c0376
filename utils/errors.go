package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// APIError carries the HTTP status and error code a service failure maps to.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details interface{}
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

func NewAPIError(status int, code, message string, err error) *APIError {
	return &APIError{Status: status, Code: code, Message: message, Err: err}
}

func BadRequest(code, message string) *APIError {
	return NewAPIError(http.StatusBadRequest, code, message, nil)
}

// FileTooLarge reports an upload over the size cap, both sizes in MB.
func FileTooLarge(size, max int64) *APIError {
	return BadRequest("file_too_large", fmt.Sprintf(
		"File size (%.2fMB) exceeds maximum allowed size of %.1fMB",
		float64(size)/1024/1024, float64(max)/1024/1024))
}

func NotFound(message string) *APIError {
	return NewAPIError(http.StatusNotFound, "not_found", message, nil)
}

func Internal(message string, err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, "internal_error", message, err)
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithAPIError renders err; anything that is not an *APIError becomes a 500.
// The wrapped cause is never exposed to the client.
func RespondWithAPIError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		RespondWithError(c, apiErr.Status, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}
	RespondWithInternalError(c, "Internal server error", nil)
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithUnauthorized sends a 401 Unauthorized error
func RespondWithUnauthorized(c *gin.Context, message string) {
	RespondWithError(c, http.StatusUnauthorized, "unauthorized", message, nil)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}
