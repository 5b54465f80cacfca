package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/animus-labs/runledger/internal/catalog"
	"github.com/animus-labs/runledger/internal/domain"
	"github.com/animus-labs/runledger/internal/graph"
	"github.com/animus-labs/runledger/internal/graph/inmemory"
	"github.com/animus-labs/runledger/internal/outputs"
	"github.com/animus-labs/runledger/internal/planner"
	"github.com/animus-labs/runledger/internal/planner/pipeline"
	"github.com/animus-labs/runledger/internal/platform/auth"
	"github.com/animus-labs/runledger/internal/platform/httpserver"
	"github.com/animus-labs/runledger/internal/repo"
	"github.com/animus-labs/runledger/internal/repo/graphrepo"
	"github.com/animus-labs/runledger/internal/service/runs"
)

const (
	testNS = "http://example.test/ontology/execution#"

	wordcountYAML = `
id: http://example.test/library/wc#wc
name: wc
steps:
  - name: fetch
    component: Fetch
    outputs: [corpus]
  - name: count
    component: Count
    inputs: [corpus]
    outputs: [counts]
links:
  - from: fetch
    to: count
`
)

func newTestHandler(t *testing.T, opts Options) http.Handler {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	graphs := graph.NewFactory(inmemory.New())
	docs := catalog.New(graphs, testNS)
	repository, err := graphrepo.Open(ctx, graphrepo.Config{IndexURL: "http://example.test/index", Namespace: testNS}, graphrepo.Deps{
		Graphs:    graphs,
		Documents: docs,
		Outputs:   outputs.NewCleaner(afero.NewMemMapFs(), logger),
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("graphrepo.Open() err=%v", err)
	}
	p, err := planner.New(docs, pipeline.NewFactory(pipeline.Config{OutputRoot: "/out"}), logger)
	if err != nil {
		t.Fatalf("planner.New() err=%v", err)
	}
	svc := runs.New(repository, p, docs, runs.Locations{
		RunsURL:      "http://example.test/runs",
		TemplatesURL: "http://example.test/templates",
		PlansURL:     "http://example.test/plans",
	}, logger)
	return NewHandler(logger, svc, opts)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func runPath(id string, suffix string) string {
	return "/runs/" + url.PathEscape(id) + suffix
}

func decodeRun(t *testing.T, rec *httptest.ResponseRecorder) runView {
	t.Helper()
	var view runView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode run: %v body=%s", err, rec.Body.String())
	}
	return view
}

func TestRunLifecycle(t *testing.T) {
	h := newTestHandler(t, Options{})

	rec := do(t, h, http.MethodPost, "/runs", wordcountYAML)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	submitted := decodeRun(t, rec)
	if len(submitted.Steps) != 2 || submitted.OriginalTemplateID != "http://example.test/library/wc#wc" {
		t.Fatalf("unexpected submitted run %+v", submitted)
	}

	rec = do(t, h, http.MethodGet, "/runs", "")
	var list struct {
		Runs []runView `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Runs) != 1 || list.Runs[0].ID != submitted.ID {
		t.Fatalf("expected one listed run, got %+v", list.Runs)
	}
	if len(list.Runs[0].Steps) != 0 {
		t.Fatalf("expected summary listing without steps, got %+v", list.Runs[0].Steps)
	}

	rec = do(t, h, http.MethodGet, runPath(submitted.ID, ""), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	detail := decodeRun(t, rec)
	if len(detail.Steps) != 2 || detail.ExecutionPlanID == "" {
		t.Fatalf("expected full detail, got %+v", detail)
	}
	steps := map[string]stepView{}
	for _, step := range detail.Steps {
		steps[step.ID] = step
	}
	count := steps[domain.ChildID(detail.ExecutionPlanID, "count")]
	if len(count.Parents) != 1 || count.Parents[0] != domain.ChildID(detail.ExecutionPlanID, "fetch") {
		t.Fatalf("expected count to depend on fetch, got %+v", detail.Steps)
	}

	if rec := do(t, h, http.MethodHead, runPath(submitted.ID, ""), ""); rec.Code != http.StatusOK {
		t.Fatalf("expected HEAD 200, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, runPath(submitted.ID, "/replan"), "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a replan without new steps, got %d body=%s", rec.Code, rec.Body.String())
	}
	replanned := decodeRun(t, rec)
	if replanned.Status != string(domain.StatusFailure) || !strings.Contains(replanned.Log, planner.MsgNoNewSteps) {
		t.Fatalf("expected failure log, got %+v", replanned)
	}

	rec = do(t, h, http.MethodPost, runPath(submitted.ID, "/repair"), "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), string(repo.RepairMirrored)) {
		t.Fatalf("expected mirrored repair, got %d body=%s", rec.Code, rec.Body.String())
	}

	if rec := do(t, h, http.MethodDelete, runPath(submitted.ID, ""), ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d body=%s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, runPath(submitted.ID, ""), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != "run_not_found" || body["request_id"] == "" {
		t.Fatalf("unexpected error body %+v", body)
	}
	if rec := do(t, h, http.MethodHead, runPath(submitted.ID, ""), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected HEAD 404, got %d", rec.Code)
	}
}

func TestSubmitRejectsBadTemplates(t *testing.T) {
	h := newTestHandler(t, Options{})
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "not yaml", body: "steps: [", status: http.StatusBadRequest, code: "invalid_template"},
		{name: "no steps", body: "name: empty\n", status: http.StatusUnprocessableEntity, code: "planning_failed"},
		{
			name:   "unbound input",
			body:   strings.Replace(wordcountYAML, "component: Fetch\n", "component: Fetch\n    inputs: [source]\n", 1),
			status: http.StatusUnprocessableEntity,
			code:   "planning_failed",
		},
	}
	for _, tc := range tests {
		rec := do(t, h, http.MethodPost, "/runs", tc.body)
		if rec.Code != tc.status || !strings.Contains(rec.Body.String(), tc.code) {
			t.Fatalf("%s: expected %d %s, got %d body=%s", tc.name, tc.status, tc.code, rec.Code, rec.Body.String())
		}
	}
}

type stubRuns struct {
	RunService
	err error
}

func (s stubRuns) Delete(ctx context.Context, id string) error { return s.err }

func (s stubRuns) Repair(ctx context.Context, id string) (repo.RepairOutcome, error) {
	return "", s.err
}

func TestServiceErrorMapping(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "not found", err: repo.ErrNotFound, status: http.StatusNotFound, code: "run_not_found"},
		{name: "detail missing", err: repo.ErrDetailMissing, status: http.StatusConflict, code: "run_detail_missing"},
		{
			name:   "delete stage",
			err:    &repo.DeleteError{RunID: "r", Stage: repo.StageExecutionPlan, Err: errors.New("backend down")},
			status: http.StatusInternalServerError,
			code:   "delete_incomplete_" + string(repo.StageExecutionPlan),
		},
		{name: "other", err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tc := range tests {
		h := NewHandler(logger, stubRuns{err: tc.err}, Options{})
		rec := do(t, h, http.MethodDelete, runPath("http://example.test/runs/r#r", ""), "")
		if rec.Code != tc.status || !strings.Contains(rec.Body.String(), tc.code) {
			t.Fatalf("%s: expected %d %s, got %d body=%s", tc.name, tc.status, tc.code, rec.Code, rec.Body.String())
		}
	}
}

func TestReadiness(t *testing.T) {
	h := newTestHandler(t, Options{Checks: []httpserver.ReadinessCheck{{
		Name:  "graph_store",
		Check: func(context.Context) error { return errors.New("unreachable") },
	}}})
	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "graph_store") {
		t.Fatalf("expected readyz 503, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAuthenticatedSurface(t *testing.T) {
	h := newTestHandler(t, Options{Authenticator: auth.Config{Mode: auth.ModeToken, Tokens: map[string]auth.Identity{
		"view": {Subject: "dash", Roles: []string{auth.RoleViewer}},
	}}.Authenticator()})

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected probes to skip auth, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/runs", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "Bearer view")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected viewer to list runs, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(wordcountYAML))
	req.Header.Set("Authorization", "Bearer view")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), "request_id") {
		t.Fatalf("expected 403 for viewer submit, got %d body=%s", rec.Code, rec.Body.String())
	}
}
