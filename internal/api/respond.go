package api

import (
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, key string) {
	writeJSON(w, status, MessageResponse{MessageKey: key})
}

// writeError answers with the error's message key. Storage failures are
// logged and reported only as server.internal_error.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	ae := apperr.From(err)
	status := ae.Kind.HTTPStatus()

	if ae.Kind == apperr.KindStorage {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
	}

	writeJSON(w, status, ErrorResponse{
		MessageKey: ae.Key,
		RequestID:  GetRequestID(r.Context()),
	})
}
