package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/reel-cli/internal/metrics"
	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/pipeline"
	"github.com/sells-group/reel-cli/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 64 << 10
)

// SubmitRequest is the body of POST /runs.
type SubmitRequest struct {
	SourceURL       string `json:"source_url"`
	Style           string `json:"style,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Variant         string `json:"variant,omitempty"`
}

// SubmitResponse is returned once a run is registered.
type SubmitResponse struct {
	RunID     string           `json:"run_id"`
	Variant   string           `json:"variant"`
	Status    model.RunStatus  `json:"status"`
	Steps     []model.StepName `json:"steps"`
	StatusURL string           `json:"status_url"`
}

// ListResponse is the body of GET /runs.
type ListResponse struct {
	Runs   []pipeline.StatusView `json:"runs"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_runs": s.Orchestrator.Active(),
	})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON object", "")
		return
	}

	variant := body.Variant
	if variant == "" {
		variant = pipeline.VariantFull
	}
	p, ok := s.Pipelines[variant]
	if !ok {
		writeError(w, http.StatusBadRequest, "validation", "unknown variant "+strconv.Quote(variant), "variant")
		return
	}

	req := model.SourceRequest{
		SourceURL:       body.SourceURL,
		Style:           model.Style(body.Style),
		DurationSeconds: body.DurationSeconds,
	}
	if req.Style == "" {
		req.Style = DefaultStyle
	}
	if req.DurationSeconds == 0 {
		req.DurationSeconds = DefaultDuration
	}

	id, err := s.Orchestrator.Start(r.Context(), req, p)
	if err != nil {
		var verr *model.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, "validation", verr.Error(), verr.Field)
		case errors.Is(err, pipeline.ErrStopped):
			writeError(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down", "")
		default:
			zap.L().Error("api: start run", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", "could not start run", "")
		}
		return
	}

	w.Header().Set("Location", "/runs/"+id)
	writeJSON(w, http.StatusAccepted, SubmitResponse{
		RunID:     id,
		Variant:   p.Name(),
		Status:    model.RunStatusPending,
		Steps:     p.StepNames(),
		StatusURL: "/runs/" + id,
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	view, err := s.Orchestrator.Status(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.lookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) artifact(w http.ResponseWriter, r *http.Request) {
	art, err := s.Orchestrator.Artifact(r.Context(), chi.URLParam(r, "runID"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, art)
	case errors.Is(err, pipeline.ErrNotReady):
		writeError(w, http.StatusConflict, "not_ready", "run has not completed yet", "")
	case errors.Is(err, pipeline.ErrRunFailed):
		writeError(w, http.StatusConflict, "run_failed", "run failed; see its status for the error", "")
	default:
		s.lookupError(w, err)
	}
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	run, err := s.Orchestrator.Cancel(r.Context(), chi.URLParam(r, "runID"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, pipeline.Project(run))
	case errors.Is(err, pipeline.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, "already_terminal", "run has already finished", "")
	default:
		s.lookupError(w, err)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Limit: defaultListLimit}

	if st := q.Get("status"); st != "" {
		filter.Status = model.RunStatus(st)
		switch filter.Status {
		case model.RunStatusPending, model.RunStatusRunning, model.RunStatusCompleted, model.RunStatusFailed:
		default:
			writeError(w, http.StatusBadRequest, "validation", "unknown status "+strconv.Quote(st), "status")
			return
		}
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit", defaultListLimit); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset", 0); !ok {
		return
	}
	filter.Limit = min(max(filter.Limit, 1), maxListLimit)

	runs, err := s.Registry.List(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not list runs", "")
		return
	}
	resp := ListResponse{Runs: make([]pipeline.StatusView, 0, len(runs)), Limit: filter.Limit, Offset: filter.Offset}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, pipeline.Project(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	hours := s.StatsLookbackHours
	if v := r.URL.Query().Get("hours"); v != "" {
		var ok bool
		if hours, ok = intParam(w, v, "hours", hours); !ok {
			return
		}
	}
	snap, err := metrics.Collect(r.Context(), s.Registry, hours, s.now())
	if err != nil {
		zap.L().Error("api: collect stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not collect stats", "")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) lookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "run not found", "")
		return
	}
	zap.L().Error("api: registry lookup", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", "registry unavailable", "")
}

func intParam(w http.ResponseWriter, raw, name string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "validation", name+" must be a non-negative integer", name)
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, msg, field string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code, Field: field})
}
