// Package api exposes runs over HTTP for monitoring and operations.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/animus-labs/runledger/internal/catalog"
	"github.com/animus-labs/runledger/internal/domain"
	"github.com/animus-labs/runledger/internal/execution/specvalidator"
	"github.com/animus-labs/runledger/internal/planner"
	"github.com/animus-labs/runledger/internal/platform/auth"
	"github.com/animus-labs/runledger/internal/platform/httpserver"
	"github.com/animus-labs/runledger/internal/repo"
)

const (
	serviceName     = "runledger"
	maxTemplateSize = 1 << 20
)

// RunService is the run surface the handlers drive.
type RunService interface {
	Submit(ctx context.Context, seed domain.Template) (*domain.RuntimePlan, error)
	RePlan(ctx context.Context, id string) (*domain.RuntimePlan, error)
	List(ctx context.Context) ([]*domain.RuntimePlan, error)
	Get(ctx context.Context, id string) (*domain.RuntimePlan, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Repair(ctx context.Context, id string) (repo.RepairOutcome, error)
}

type runsAPI struct {
	logger *slog.Logger
	runs   RunService
}

type Options struct {
	Checks []httpserver.ReadinessCheck

	// Authenticator guards every route except the probes. Nil leaves the
	// surface open.
	Authenticator auth.Authenticator
}

// NewHandler returns the complete, middleware wrapped HTTP surface.
func NewHandler(logger *slog.Logger, runs RunService, opts Options) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	api := &runsAPI{logger: logger, runs: runs}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("GET /readyz", httpserver.Readyz(serviceName, opts.Checks...))
	api.register(mux)

	guarded := auth.Middleware{
		Logger:        logger,
		Authenticator: opts.Authenticator,
		SkipPrefixes:  []string{"/healthz", "/readyz"},
	}.Wrap(mux)
	return httpserver.Wrap(logger, guarded)
}

func (api *runsAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /runs", api.handleList)
	mux.HandleFunc("POST /runs", api.handleSubmit)
	mux.HandleFunc("GET /runs/{run_id}", api.handleGet)
	mux.HandleFunc("HEAD /runs/{run_id}", api.handleExists)
	mux.HandleFunc("DELETE /runs/{run_id}", api.handleDelete)
	mux.HandleFunc("POST /runs/{run_id}/replan", api.handleRePlan)
	mux.HandleFunc("POST /runs/{run_id}/repair", api.handleRepair)
}

func (api *runsAPI) handleList(w http.ResponseWriter, r *http.Request) {
	plans, err := api.runs.List(r.Context())
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	views := make([]runView, 0, len(plans))
	for _, plan := range plans {
		views = append(views, newRunView(plan))
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"runs": views})
}

func (api *runsAPI) handleSubmit(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxTemplateSize+1))
	if err != nil {
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_body")
		return
	}
	if len(raw) > maxTemplateSize {
		httpserver.WriteError(w, r, http.StatusRequestEntityTooLarge, "template_too_large")
		return
	}
	seed, err := catalog.ParseTemplate(raw)
	if err != nil {
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_template")
		return
	}
	plan, err := api.runs.Submit(r.Context(), seed)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, newRunView(plan))
}

func (api *runsAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := api.runID(w, r)
	if !ok {
		return
	}
	plan, err := api.runs.Get(r.Context(), id)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, newRunView(plan))
}

func (api *runsAPI) handleExists(w http.ResponseWriter, r *http.Request) {
	id, ok := api.runID(w, r)
	if !ok {
		return
	}
	exists, err := api.runs.Exists(r.Context(), id)
	if err != nil {
		api.logger.Error("run exists failed", "run_id", id, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (api *runsAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := api.runID(w, r)
	if !ok {
		return
	}
	if err := api.runs.Delete(r.Context(), id); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *runsAPI) handleRePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := api.runID(w, r)
	if !ok {
		return
	}
	plan, err := api.runs.RePlan(r.Context(), id)
	if err != nil && plan == nil {
		api.writeServiceError(w, r, err)
		return
	}
	if err != nil {
		api.logger.Error("persist replan failed", "run_id", id, "error", err)
		httpserver.WriteError(w, r, http.StatusInternalServerError, "replan_not_persisted")
		return
	}
	status := http.StatusOK
	if plan.Info.Status == domain.StatusFailure {
		status = http.StatusUnprocessableEntity
	}
	httpserver.WriteJSON(w, status, newRunView(plan))
}

func (api *runsAPI) handleRepair(w http.ResponseWriter, r *http.Request) {
	id, ok := api.runID(w, r)
	if !ok {
		return
	}
	outcome, err := api.runs.Repair(r.Context(), id)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]string{"run_id": id, "outcome": string(outcome)})
}

func (api *runsAPI) runID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("run_id"))
	if id == "" {
		httpserver.WriteError(w, r, http.StatusBadRequest, "run_id_required")
		return "", false
	}
	return id, true
}

func (api *runsAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *specvalidator.ValidationError
		planning   *planner.PlanningError
		deletion   *repo.DeleteError
	)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		httpserver.WriteError(w, r, http.StatusNotFound, "run_not_found")
	case errors.Is(err, repo.ErrDetailMissing):
		httpserver.WriteError(w, r, http.StatusConflict, "run_detail_missing")
	case errors.As(err, &validation):
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_template")
	case errors.As(err, &planning):
		httpserver.WriteError(w, r, http.StatusUnprocessableEntity, "planning_failed")
	case errors.As(err, &deletion):
		api.logger.Error("delete run incomplete", "run_id", deletion.RunID, "stage", string(deletion.Stage), "error", deletion.Err)
		httpserver.WriteError(w, r, http.StatusInternalServerError, "delete_incomplete_"+string(deletion.Stage))
	default:
		api.logger.Error("run request failed", "path", r.URL.Path, "error", err)
		httpserver.WriteError(w, r, http.StatusInternalServerError, "internal_error")
	}
}
