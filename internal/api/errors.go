package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kalambet/sentio/internal/pipeline"
	"github.com/kalambet/sentio/internal/provider"
	"github.com/kalambet/sentio/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps a pipeline error to an HTTP status and error type.
func statusFor(err error) (int, string) {
	var pe *provider.ProviderError
	switch {
	case errors.Is(err, pipeline.ErrEmptyMessage),
		errors.Is(err, pipeline.ErrEmptyQuery),
		errors.Is(err, pipeline.ErrInvalidProduct),
		errors.Is(err, provider.ErrMissingParam),
		errors.Is(err, storage.ErrInvalidRecord):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, pipeline.ErrIndexUnavailable):
		return http.StatusServiceUnavailable, "index_unavailable"
	case errors.As(err, &pe):
		return http.StatusBadGateway, "provider_error"
	case errors.Is(err, pipeline.ErrPersistence):
		return http.StatusInternalServerError, "persistence_error"
	}
	return http.StatusInternalServerError, "api_error"
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, typ := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err),
		)
	}
	httpError(w, code, typ, "%v", err)
}
