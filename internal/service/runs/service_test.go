package runs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/animus-labs/runledger/internal/catalog"
	"github.com/animus-labs/runledger/internal/domain"
	"github.com/animus-labs/runledger/internal/graph"
	"github.com/animus-labs/runledger/internal/graph/inmemory"
	"github.com/animus-labs/runledger/internal/outputs"
	"github.com/animus-labs/runledger/internal/planner"
	"github.com/animus-labs/runledger/internal/planner/pipeline"
	"github.com/animus-labs/runledger/internal/repo"
	"github.com/animus-labs/runledger/internal/repo/graphrepo"
)

const testNS = "http://example.test/ontology/execution#"

type harness struct {
	backend *inmemory.Backend
	docs    *catalog.Catalog
	runs    *graphrepo.Repository
	service *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := inmemory.New()
	graphs := graph.NewFactory(backend)
	docs := catalog.New(graphs, testNS)
	runs, err := graphrepo.Open(ctx, graphrepo.Config{IndexURL: "http://example.test/index", Namespace: testNS}, graphrepo.Deps{
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
	svc := New(runs, p, docs, Locations{
		RunsURL:      "http://example.test/runs",
		TemplatesURL: "http://example.test/templates",
		PlansURL:     "http://example.test/plans",
	}, logger)
	if svc == nil {
		t.Fatalf("expected service")
	}
	svc.newName = func() string { return "run-1" }
	return &harness{backend: backend, docs: docs, runs: runs, service: svc}
}

func twoStepSeed() domain.Template {
	return domain.Template{
		ID:   "http://example.test/library/wc#wc",
		Name: "wc",
		Steps: []domain.TemplateStep{
			{Name: "fetch", Component: "Fetch", Outputs: []string{"corpus"}},
			{Name: "count", Component: "Count", Inputs: []string{"corpus"}, Outputs: []string{"counts"}},
		},
		Links: []domain.TemplateLink{{From: "fetch", To: "count"}},
	}
}

func TestSubmitAndReplan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	run, err := h.service.Submit(ctx, twoStepSeed())
	if err != nil {
		t.Fatalf("Submit() err=%v", err)
	}
	if run.ID != "http://example.test/runs/run-1#run-1" || run.OriginalTemplateID != "http://example.test/library/wc#wc" {
		t.Fatalf("unexpected run ids %+v", run)
	}
	if run.Queue.Len() != 2 {
		t.Fatalf("expected 2 steps, got %d", run.Queue.Len())
	}
	exists, err := h.service.Exists(ctx, run.ID)
	if err != nil || !exists {
		t.Fatalf("expected submitted run to exist, got %v err=%v", exists, err)
	}

	seed := twoStepSeed()
	seed.Steps = append(seed.Steps, domain.TemplateStep{Name: "report", Component: "Report", Inputs: []string{"counts"}})
	seed.Links = append(seed.Links, domain.TemplateLink{From: "count", To: "report"})
	if err := h.docs.SaveTemplate(ctx, seed, run.SeededTemplateID); err != nil {
		t.Fatalf("SaveTemplate() err=%v", err)
	}

	replanned, err := h.service.RePlan(ctx, run.ID)
	if err != nil {
		t.Fatalf("RePlan() err=%v", err)
	}
	if replanned.Info.Status == domain.StatusFailure {
		t.Fatalf("unexpected failure: %s", replanned.Info.Log)
	}
	stored, err := h.service.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if stored.Queue.Len() != 3 {
		t.Fatalf("expected persisted queue of 3, got %d", stored.Queue.Len())
	}
	report := stored.Queue.Step(domain.ChildID(run.ExecutionPlanID, "report"))
	if report == nil || len(report.Parents) != 1 || report.Parents[0].ID != domain.ChildID(run.ExecutionPlanID, "count") {
		t.Fatalf("expected report step linked to count, got %+v", report)
	}
	if stored.ExecutionPlanID != run.ExecutionPlanID || stored.Plan == nil || len(stored.Plan.Steps) != 3 {
		t.Fatalf("expected new plan under the same id, got %+v", stored.Plan)
	}

	again, err := h.service.RePlan(ctx, run.ID)
	if err != nil {
		t.Fatalf("RePlan() err=%v", err)
	}
	if again.Info.Status != domain.StatusFailure || !strings.Contains(again.Info.Log, planner.MsgNoNewSteps) {
		t.Fatalf("expected no-new-steps failure, got %s %q", again.Info.Status, again.Info.Log)
	}
	plans, err := h.service.List(ctx)
	if err != nil || len(plans) != 1 || plans[0].Info.Status != domain.StatusFailure {
		t.Fatalf("expected FAILURE mirrored in the index, got %+v err=%v", plans, err)
	}
}

func TestSubmitPlanningFailureLeavesNoRecords(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	seed := twoStepSeed()
	seed.Steps[0].Inputs = []string{"unbound-source"}
	_, err := h.service.Submit(ctx, seed)
	var perr *planner.PlanningError
	if !errors.As(err, &perr) || perr.Message != planner.MsgNoBound {
		t.Fatalf("expected %q planning error, got %v", planner.MsgNoBound, err)
	}
	if urls := h.backend.URLs(); len(urls) != 0 {
		t.Fatalf("expected no stored records, got %v", urls)
	}
}

func TestDeleteAndRepair(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	run, err := h.service.Submit(ctx, twoStepSeed())
	if err != nil {
		t.Fatalf("Submit() err=%v", err)
	}
	outcome, err := h.service.Repair(ctx, run.ID)
	if err != nil || outcome != repo.RepairMirrored {
		t.Fatalf("expected mirrored, got %q err=%v", outcome, err)
	}
	if err := h.service.Delete(ctx, run.ID); err != nil {
		t.Fatalf("Delete() err=%v", err)
	}
	if _, err := h.service.Get(ctx, run.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.service.RePlan(ctx, run.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunLocksAreReleased(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	run, err := h.service.Submit(ctx, twoStepSeed())
	if err != nil {
		t.Fatalf("Submit() err=%v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.service.RePlan(ctx, run.ID)
		}()
	}
	wg.Wait()
	if _, err := h.service.Repair(ctx, "http://example.test/runs/unknown#unknown"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := h.service.Delete(ctx, run.ID); err != nil {
		t.Fatalf("Delete() err=%v", err)
	}

	h.service.mu.Lock()
	defer h.service.mu.Unlock()
	if len(h.service.locks) != 0 {
		t.Fatalf("expected no run locks left, got %d", len(h.service.locks))
	}
}
