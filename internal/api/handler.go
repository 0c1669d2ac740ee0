// Package api is the HTTP gateway between the scheduling UI and the
// interview engine.
//
// Routes:
//
//	GET  /health
//	GET  /metrics
//	GET  /interviews?group=all|proposed|confirmed|completed|cancelled
//	GET  /jobs/{jobId}/applications/{applicationId}
//	POST /jobs/{jobId}/applications/{applicationId}/propose
//	POST /jobs/{jobId}/applications/{applicationId}/confirm
//	POST /jobs/{jobId}/applications/{applicationId}/result
//	POST /jobs/{jobId}/applications/{applicationId}/cancel
//	GET  /applications/{applicationId}/history   (audit enabled only)
//
// Every route except /health and /metrics expects an
// "Authorization: Bearer <token>" header, forwarded to the record store.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"jobchaja-interviews/internal/audit"
	apperrors "jobchaja-interviews/internal/common/errors"
	commonhttp "jobchaja-interviews/internal/common/http"
	"jobchaja-interviews/internal/common/logger"
	"jobchaja-interviews/internal/interview"
	"jobchaja-interviews/internal/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HistorySource serves the audit trail of one application.
type HistorySource interface {
	History(ctx context.Context, applicationID string) ([]audit.Entry, error)
}

type Handler struct {
	engine     *interview.Engine
	aggregator *interview.Aggregator
	history    HistorySource
	logger     logger.Logger
}

func NewHandler(engine *interview.Engine, aggregator *interview.Aggregator, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Handler{engine: engine, aggregator: aggregator, logger: log}
}

// WithHistory enables the audit history route.
func (h *Handler) WithHistory(src HistorySource) *Handler {
	h.history = src
	return h
}

// RegisterRoutes mounts all gateway routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /interviews", h.authed(h.listInterviews))
	mux.HandleFunc("GET /jobs/{jobId}/applications/{applicationId}", h.authed(h.getEntry))
	mux.HandleFunc("POST /jobs/{jobId}/applications/{applicationId}/propose", h.authed(h.propose))
	mux.HandleFunc("POST /jobs/{jobId}/applications/{applicationId}/confirm", h.authed(h.confirm))
	mux.HandleFunc("POST /jobs/{jobId}/applications/{applicationId}/result", h.authed(h.reportResult))
	mux.HandleFunc("POST /jobs/{jobId}/applications/{applicationId}/cancel", h.authed(h.cancel))

	if h.history != nil {
		mux.HandleFunc("GET /applications/{applicationId}/history", h.authed(h.getHistory))
	}
}

// Middleware tags each request with an X-Request-ID and logs it.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(commonhttp.HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(commonhttp.HeaderRequestID, reqID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(commonhttp.WithRequestID(r.Context(), reqID)))

		h.logger.Info("request handled", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"request_id":  reqID,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, cred models.Credential)

func (h *Handler) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, ok := models.BearerCredential(r.Header.Get("Authorization"))
		if !ok {
			h.writeError(w, apperrors.NewAuthenticationError("missing bearer token"))
			return
		}
		next(w, r, cred)
	}
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]string{"status": "ok"})
}

type listResponse struct {
	Group   interview.Group           `json:"group"`
	Entries []models.ApplicationEntry `json:"entries"`
	Counts  map[interview.Group]int   `json:"counts"`
}

func (h *Handler) listInterviews(w http.ResponseWriter, r *http.Request, cred models.Credential) {
	group, err := interview.ParseGroup(r.URL.Query().Get("group"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	entries, err := h.aggregator.Load(r.Context(), cred)
	if err != nil {
		h.writeError(w, err)
		return
	}

	jsonOK(w, listResponse{
		Group:   group,
		Entries: interview.Filter(entries, group),
		Counts:  interview.CountByGroup(entries),
	})
}

type entryResponse struct {
	Entry             models.ApplicationEntry `json:"entry"`
	AllowedOperations []interview.Operation   `json:"allowedOperations"`
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request, cred models.Credential) {
	entry, err := h.aggregator.Find(r.Context(), cred, r.PathValue("jobId"), r.PathValue("applicationId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, entryResponse{Entry: entry, AllowedOperations: interview.AllowedOperations(entry.Status)})
}

type confirmRequest struct {
	SelectedSlot models.SlotChoice `json:"selectedSlot"`
}

func (h *Handler) propose(w http.ResponseWriter, r *http.Request, cred models.Credential) {
	var in interview.ProposeInput
	h.transition(w, r, cred, &in, func() interview.Step { return h.engine.ProposeStep(cred, in) })
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request, cred models.Credential) {
	var in confirmRequest
	h.transition(w, r, cred, &in, func() interview.Step { return h.engine.ConfirmStep(cred, in.SelectedSlot) })
}

func (h *Handler) reportResult(w http.ResponseWriter, r *http.Request, cred models.Credential) {
	var in interview.ResultInput
	h.transition(w, r, cred, &in, func() interview.Step { return h.engine.ResultStep(cred, in) })
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, cred models.Credential) {
	var in interview.CancelInput
	h.transition(w, r, cred, &in, func() interview.Step { return h.engine.CancelStep(cred, in) })
}

type transitionResponse struct {
	Result            *interview.TransitionResult `json:"result"`
	Entry             *models.ApplicationEntry    `json:"entry,omitempty"`
	AllowedOperations []interview.Operation       `json:"allowedOperations,omitempty"`
}

// transition decodes the body into in, then has the engine load the current
// entry and run the step under the application's in-flight slot. The entry
// is re-fetched afterwards so the response reflects the store.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, cred models.Credential, in interface{}, step func() interview.Step) {
	if err := json.NewDecoder(r.Body).Decode(in); err != nil {
		h.writeError(w, apperrors.NewValidationError("body", "request body must be a JSON object"))
		return
	}

	ctx := r.Context()
	jobID, appID := r.PathValue("jobId"), r.PathValue("applicationId")

	load := func(ctx context.Context) (models.ApplicationEntry, error) {
		return h.aggregator.Find(ctx, cred, jobID, appID)
	}
	result, err := h.engine.Apply(ctx, appID, load, step())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := transitionResponse{Result: result}
	refreshed, err := h.aggregator.Find(ctx, cred, jobID, appID)
	if err != nil {
		h.logger.Warn("re-fetch after transition failed", map[string]interface{}{
			"application_id": appID,
			"error":          err,
		})
	} else {
		resp.Entry = &refreshed
		resp.AllowedOperations = interview.AllowedOperations(refreshed.Status)
	}
	jsonOK(w, resp)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request, cred models.Credential) {
	entries, err := h.history.History(r.Context(), r.PathValue("applicationId"))
	if err != nil {
		h.logger.Error("audit history lookup failed", map[string]interface{}{"error": err})
		h.writeError(w, err)
		return
	}
	jsonOK(w, map[string]interface{}{"history": entries})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	stdErr := apperrors.AsStandard(err)
	status := httpStatus(stdErr.Code)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed", map[string]interface{}{
			"code":    string(stdErr.Code),
			"details": stdErr.Details,
		})
	}
	writeJSON(w, status, errorResponse{
		Error: stdErr.Message,
		Code:  string(stdErr.Code),
		Field: stdErr.Field(),
	})
}

func httpStatus(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidationFailed, apperrors.ErrCodeNoteMissing:
		return http.StatusBadRequest
	case apperrors.ErrCodeInvalidTransition, apperrors.ErrCodeTransitionInFlight:
		return http.StatusConflict
	case apperrors.ErrCodeResourceNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeAuthentication:
		return http.StatusUnauthorized
	case apperrors.ErrCodeRecordStoreRequestFailed, apperrors.ErrCodeRecordStoreUnavailable, apperrors.ErrCodeJobListFetchFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func jsonOK(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
