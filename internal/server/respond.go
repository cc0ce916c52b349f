package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/trustmesh/trustmesh/pkg/errors"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// requestID tags every request with an identifier for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// errorResponse is the wire shape for every error the API returns.
type errorResponse struct {
	Error string      `json:"error"`
	Code  errors.Code `json:"code,omitempty"`
}

// statusFor maps engine error codes onto HTTP status codes.
func statusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeMalformedCoordinate, errors.ErrCodeInvalidInput, errors.ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case errors.ErrCodeNodeNotFound, errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeStoreUnavailable, errors.ErrCodeFeedUnavailable:
		return http.StatusBadGateway
	case errors.ErrCodeDeadlineExceeded, errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	if code == errors.ErrCodeCancelled {
		// The client is gone; there is nobody to answer.
		return
	}

	status := statusFor(code)
	if status >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", r.Context().Value(requestIDKey), "err", err)
	}
	writeJSON(w, status, errorResponse{Error: errors.UserMessage(err), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
