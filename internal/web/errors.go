package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly JSON with an action and a code
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls s.fail(w, r, err), which picks the status with statusFor
//  3. Error is mapped via core.MapError to get user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is written as an ErrorResponse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/csvshare/internal/auth"
	"github.com/JonMunkholm/csvshare/internal/core"
	"github.com/JonMunkholm/csvshare/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusRule pairs an error with the HTTP status it maps to. Checked in
// order, first match wins.
type statusRule struct {
	target error
	status int
}

var statusRules = []statusRule{
	{core.ErrDuplicateUsername, http.StatusConflict},
	{core.ErrInvalidCredentials, http.StatusBadRequest},
	{auth.ErrTokenExpired, http.StatusUnauthorized},
	{auth.ErrInvalidToken, http.StatusUnauthorized},
	{core.ErrUnauthenticated, http.StatusUnauthorized},
	{core.ErrInvalidInput, http.StatusBadRequest},
	{core.ErrNoFile, http.StatusBadRequest},
	{core.ErrNotCSV, http.StatusUnprocessableEntity},
	{core.ErrFormatValidation, http.StatusUnprocessableEntity},
	{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
	{core.ErrForbidden, http.StatusForbidden},
	{core.ErrNotFound, http.StatusNotFound},
	{core.ErrReferentialIntegrity, http.StatusConflict},
	{core.ErrTooManyUploads, http.StatusServiceUnavailable},
	{core.ErrRateLimited, http.StatusTooManyRequests},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

// statusFor returns the HTTP status for err, 500 when nothing matches.
func statusFor(err error) int {
	for _, r := range statusRules {
		if errors.Is(err, r.target) {
			return r.status
		}
	}
	return http.StatusInternalServerError
}

// fail responds with the status statusFor picks.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	s.respondError(w, r, err, status)
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and writes the JSON body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	logger.Log(r.Context(), logging.LevelForStatus(statusCode), "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	respondErrorJSON(w, userMsg, statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
