package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorResponse is the failure envelope of every endpoint
type ErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// SuccessResponse is the success envelope of every endpoint
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// RespondWithError sends a failure envelope
func RespondWithError(w http.ResponseWriter, statusCode int, message string) {
	RespondWithErrorDetails(w, statusCode, message, nil)
}

// RespondWithErrorDetails sends a failure envelope with additional details
func RespondWithErrorDetails(w http.ResponseWriter, statusCode int, message string, details map[string]any) {
	RespondWithJSON(w, statusCode, ErrorResponse{
		Error:     message,
		Code:      http.StatusText(statusCode),
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RespondWithValidationErrors sends a 400 naming the first failing rule and listing all of them
func RespondWithValidationErrors(w http.ResponseWriter, errs []ValidationError) {
	message := "Validation failed"
	if len(errs) > 0 {
		message = errs[0].Message
	}
	RespondWithErrorDetails(w, http.StatusBadRequest, message, map[string]any{"validation_errors": errs})
}

// RespondWithSuccess wraps data in the success envelope
func RespondWithSuccess(w http.ResponseWriter, statusCode int, data any) {
	RespondWithJSON(w, statusCode, SuccessResponse{Success: true, Data: data})
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// ErrorHandlingMiddleware converts panics into a generic 500
func ErrorHandlingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("Panic recovered",
						zap.Any("error", err),
						zap.String("request_id", middleware.GetReqID(r.Context())),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
						zap.Stack("stack"),
					)

					RespondWithError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
