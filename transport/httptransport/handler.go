// Package httptransport exposes a service over HTTP and provides the
// matching remote client.
package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/satishbabariya/relq/internal/debug"
	"github.com/satishbabariya/relq/runtime/remote"
	"github.com/satishbabariya/relq/service"
)

// MaxPayloadBytes bounds request bodies.
const MaxPayloadBytes = 32 << 20

// Error codes carried in error responses.
const (
	CodeUnknownConfiguration = "unknown_configuration"
	CodeUpdatesNotAllowed    = "updates_not_allowed"
	CodeBadRequest           = "bad_request"
	CodeCommandFailed        = "command_failed"
	CodeInternal             = "internal"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CountResponse carries an affected row count.
type CountResponse struct {
	Count int `json:"count"`
}

type handler struct {
	svc    *service.Service
	logger *slog.Logger
}

// NewHandler returns the HTTP API of svc.
func NewHandler(svc *service.Service, logger *slog.Logger) http.Handler {
	h := &handler{svc: svc, logger: debug.Or(logger, "http")}

	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/configurations", h.listConfigurations)
		r.Route("/configurations/{name}", func(r chi.Router) {
			r.Get("/info", h.getInfo)
			r.Post("/nonquery", h.executeNonQuery)
			r.Post("/scalar", h.executeScalar)
			r.Post("/reader", h.executeReader)
			r.Post("/batch", h.executeBatch)
		})
	})
	return r
}

func (h *handler) listConfigurations(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Configurations())
}

func (h *handler) getInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.GetInfo(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *handler) executeNonQuery(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readPayload(w, r)
	if !ok {
		return
	}
	n, err := h.svc.ExecuteNonQuery(r.Context(), chi.URLParam(r, "name"), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (h *handler) executeScalar(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readPayload(w, r)
	if !ok {
		return
	}
	v, err := h.svc.ExecuteScalar(r.Context(), chi.URLParam(r, "name"), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, remote.Scalar{Value: v})
}

func (h *handler) executeReader(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readPayload(w, r)
	if !ok {
		return
	}
	rs, err := h.svc.ExecuteReader(r.Context(), chi.URLParam(r, "name"), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rs)
}

func (h *handler) executeBatch(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readPayload(w, r)
	if !ok {
		return
	}
	n, err := h.svc.ExecuteBatch(r.Context(), chi.URLParam(r, "name"), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (h *handler) readPayload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		h.writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Code: CodeBadRequest, Message: err.Error()})
		return nil, false
	}
	return payload, true
}

// statusOf maps a service error to a status code and error code.
func statusOf(err error) (int, string) {
	var cmdErr *service.CommandError
	switch {
	case errors.Is(err, service.ErrUnknownConfiguration):
		return http.StatusNotFound, CodeUnknownConfiguration
	case errors.Is(err, service.ErrUpdatesNotAllowed):
		return http.StatusForbidden, CodeUpdatesNotAllowed
	case errors.As(err, &cmdErr):
		return http.StatusUnprocessableEntity, CodeCommandFailed
	case errors.Is(err, service.ErrBadPayload):
		return http.StatusBadRequest, CodeBadRequest
	}
	return http.StatusInternalServerError, CodeInternal
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeJSON(w, status, ErrorResponse{Code: code, Message: err.Error()})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("write response", "error", err)
	}
}
