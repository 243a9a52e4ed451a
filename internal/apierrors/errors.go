// Package apierrors provides error response handling for the REST surface.
package apierrors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	ErrorCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeRestaurantNotFound ErrorCode = "RESTAURANT_NOT_FOUND"
	ErrorCodeRateLimited        ErrorCode = "RATE_LIMITED"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// Handler writes error responses.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates an error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{logger: logger}
}

// WriteErrorResponse writes a formatted error response.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(errorCode)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteValidationError writes a 400 response for malformed requests.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message, requestID)
}

// WriteNotFound writes a 404 response for an unknown restaurant.
func (h *Handler) WriteNotFound(w http.ResponseWriter, message, requestID string) {
	h.WriteErrorResponse(w, http.StatusNotFound, ErrorCodeRestaurantNotFound, message, requestID)
}

// WriteInternalError writes a 500 response.
func (h *Handler) WriteInternalError(w http.ResponseWriter, message, requestID string) {
	h.WriteErrorResponse(w, http.StatusInternalServerError, ErrorCodeInternalError, message, requestID)
}
