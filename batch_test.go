package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeTracker struct {
	mu          sync.Mutex
	listed      []WorkItem
	bodies      map[int64]string
	labels      map[int64][]string
	assignees   map[int64]string
	bodyErr     map[int64]error
	labelCalls  int
	bodyCalls   int
	assignCalls int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		bodies:    make(map[int64]string),
		labels:    make(map[int64][]string),
		assignees: make(map[int64]string),
		bodyErr:   make(map[int64]error),
	}
}

func (f *fakeTracker) mutationCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.labelCalls + f.bodyCalls + f.assignCalls
}

func (f *fakeTracker) Get(_ context.Context, id int64) (WorkItem, error) {
	return WorkItem{ID: id}, nil
}

func (f *fakeTracker) ListByLabel(_ context.Context, _ string, _ int) ([]WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listed, nil
}

func (f *fakeTracker) UpdateLabels(_ context.Context, id int64, add, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labelCalls++
	f.labels[id] = ApplyDiff(f.labels[id], LabelDiff{Add: add, Remove: remove})
	return nil
}

func (f *fakeTracker) UpdateBody(_ context.Context, id int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodyCalls++
	if err := f.bodyErr[id]; err != nil {
		return err
	}
	f.bodies[id] = body
	return nil
}

func (f *fakeTracker) Assign(_ context.Context, id int64, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignCalls++
	f.assignees[id] = actor
	return nil
}

// stubClassifier returns a canned result or error.
type stubClassifier struct {
	result ClassificationResult
	err    error
	delay  time.Duration
}

func (s stubClassifier) Classify(ctx context.Context, _ WorkItem, _ []Candidate) (ClassificationResult, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ClassificationResult{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return ClassificationResult{}, s.err
	}
	return s.result, nil
}

func aiResult(workflow string, confidence float64) ClassificationResult {
	return ClassificationResult{
		Summary:   "canned summary",
		Workflows: []WorkflowScore{{Workflow: workflow, Confidence: confidence}},
		Urgency:   UrgencyHigh,
		Variant:   "ai",
	}
}

func newTestOrchestrator(t *testing.T, tracker IssueTracker, ai Classifier) *Orchestrator {
	t.Helper()
	return &Orchestrator{
		Tracker:    tracker,
		Catalog:    newTestCatalog(t, false),
		AI:         ai,
		Fallback:   RuleClassifier{},
		Weights:    DefaultWeights(),
		Thresholds: DefaultThresholds(),
	}
}

func phishingItem(id int64) WorkItem {
	return WorkItem{
		ID:     id,
		Title:  fmt.Sprintf("Campaign report %d", id),
		Body:   "Discovered content.",
		Labels: []string{"monitor::triage", "topic::phishing"},
	}
}

func TestBatchAutoAssignHappyPath(t *testing.T) {
	tracker := newFakeTracker()
	orch := newTestOrchestrator(t, tracker, stubClassifier{result: aiResult("phishing-analysis", 0.95)})

	result := orch.ProcessBatch(context.Background(), []WorkItem{phishingItem(1)}, BatchOptions{
		Concurrency:  2,
		CopilotActor: "copilot",
	})

	res := result.Results[0]
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (%s), want success", res.Status, res.Reason)
	}
	if res.Action != ActionAutoAssign {
		t.Fatalf("action = %s, want auto_assign", res.Action)
	}
	if res.DueDate.IsZero() {
		t.Fatal("auto-assigned item must carry a due date")
	}
	if tracker.assignees[1] != "copilot" {
		t.Fatalf("assignee = %q, want copilot", tracker.assignees[1])
	}
	labels := tracker.labels[1]
	if !HasLabel(labels, "state::copilot") {
		t.Fatalf("labels = %v, want state::copilot", labels)
	}
	if !HasLabel(labels, "workflow::phishing-analysis") || !HasLabel(labels, "specialist::intel-analyst") {
		t.Fatalf("workflow/specialist labels missing: %v", labels)
	}
	if !strings.Contains(tracker.bodies[1], HeadingHandoff) {
		t.Fatalf("handoff section missing:\n%s", tracker.bodies[1])
	}
	if result.Metrics.Handoffs != 1 || result.Metrics.EarliestDue != res.DueDate {
		t.Fatalf("metrics = %+v", result.Metrics)
	}
}

// One engineered failure must not take down the rest of the batch.
func TestBatchIsolatesItemFailures(t *testing.T) {
	tracker := newFakeTracker()
	tracker.bodyErr[3] = errors.New("503 upstream unavailable")
	orch := newTestOrchestrator(t, tracker, stubClassifier{result: aiResult("phishing-analysis", 0.95)})

	items := []WorkItem{phishingItem(1), phishingItem(2), phishingItem(3), phishingItem(4), phishingItem(5)}
	result := orch.ProcessBatch(context.Background(), items, BatchOptions{Concurrency: 3, CopilotActor: "copilot"})

	if result.Metrics.Processed != len(items) {
		t.Fatalf("processed = %d, want %d", result.Metrics.Processed, len(items))
	}
	if result.Metrics.Failed != 1 {
		t.Fatalf("failed = %d, want 1", result.Metrics.Failed)
	}
	for _, res := range result.Results {
		if res.ItemID == 3 {
			if res.Status != StatusError {
				t.Fatalf("engineered failure status = %s", res.Status)
			}
			continue
		}
		if res.Status != StatusSuccess {
			t.Fatalf("item %d status = %s (%s), want success", res.ItemID, res.Status, res.Reason)
		}
	}
}

// Items that already left discovery are skipped, preventing duplicate
// handoffs across overlapping batch runs.
func TestBatchSkipsAlreadyHandedOff(t *testing.T) {
	tracker := newFakeTracker()
	orch := newTestOrchestrator(t, tracker, stubClassifier{result: aiResult("phishing-analysis", 0.95)})

	item := WorkItem{ID: 9, Labels: []string{"state::copilot", "workflow::phishing-analysis"}}
	result := orch.ProcessBatch(context.Background(), []WorkItem{item}, BatchOptions{Concurrency: 1})

	if result.Results[0].Status != StatusSkipped {
		t.Fatalf("status = %s, want skipped", result.Results[0].Status)
	}
	if tracker.mutationCalls() != 0 {
		t.Fatalf("skipped item must not issue mutations, got %d calls", tracker.mutationCalls())
	}
	if result.Metrics.Skipped != 1 {
		t.Fatalf("metrics.Skipped = %d", result.Metrics.Skipped)
	}
}

func TestBatchDryRunMutatesNothing(t *testing.T) {
	tracker := newFakeTracker()
	orch := newTestOrchestrator(t, tracker, stubClassifier{result: aiResult("phishing-analysis", 0.95)})

	items := []WorkItem{phishingItem(1), phishingItem(2), phishingItem(3)}
	result := orch.ProcessBatch(context.Background(), items, BatchOptions{Concurrency: 2, DryRun: true, CopilotActor: "copilot"})

	if result.Metrics.Processed != 3 {
		t.Fatalf("processed = %d, want 3", result.Metrics.Processed)
	}
	for _, res := range result.Results {
		if res.Status != StatusPreview {
			t.Fatalf("item %d status = %s, want preview", res.ItemID, res.Status)
		}
		if res.Diff.Empty() {
			t.Fatalf("preview should still carry the computed label diff, item %d", res.ItemID)
		}
		if len(res.Sections) == 0 {
			t.Fatalf("preview should still carry rendered sections, item %d", res.ItemID)
		}
	}
	if tracker.mutationCalls() != 0 {
		t.Fatalf("dry run must not call the tracker, got %d mutations", tracker.mutationCalls())
	}
}

// An unavailable AI endpoint degrades to the rule-based variant for that
// item; the batch keeps going and the variant is recorded.
func TestBatchFallsBackWhenAIUnavailable(t *testing.T) {
	tracker := newFakeTracker()
	aiErr := fmt.Errorf("%w: connection refused", ErrClassificationUnavailable)
	orch := newTestOrchestrator(t, tracker, stubClassifier{err: aiErr})

	result := orch.ProcessBatch(context.Background(), []WorkItem{phishingItem(1)}, BatchOptions{Concurrency: 1})

	res := result.Results[0]
	if res.Variant != "rules" {
		t.Fatalf("variant = %q, want rules", res.Variant)
	}
	// Label overlap alone (1 of 2 trigger labels) lands below the review
	// threshold, so the item asks for clarification instead of guessing.
	if res.Status != StatusNeedsClarification {
		t.Fatalf("status = %s (%s), want needs_clarification", res.Status, res.Reason)
	}
	if !strings.Contains(tracker.bodies[1], awaitingClarificationMarker) {
		t.Fatalf("clarification marker missing from body:\n%s", tracker.bodies[1])
	}
	if tracker.assignees[1] != "" {
		t.Fatal("clarification item must not be assigned")
	}
}

func TestBatchFallbackDeterministic(t *testing.T) {
	aiErr := fmt.Errorf("%w: endpoint down", ErrClassificationUnavailable)
	item := phishingItem(4)

	run := func() ProcessingResult {
		tracker := newFakeTracker()
		orch := newTestOrchestrator(t, tracker, stubClassifier{err: aiErr})
		return orch.ProcessBatch(context.Background(), []WorkItem{item}, BatchOptions{Concurrency: 1}).Results[0]
	}

	first, second := run(), run()
	if first.Action != second.Action || first.Confidence != second.Confidence || first.Workflow != second.Workflow {
		t.Fatalf("fallback decisions differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestBatchItemTimeout(t *testing.T) {
	tracker := newFakeTracker()
	orch := newTestOrchestrator(t, tracker, stubClassifier{delay: 200 * time.Millisecond, result: aiResult("phishing-analysis", 0.95)})

	result := orch.ProcessBatch(context.Background(), []WorkItem{phishingItem(1)}, BatchOptions{
		Concurrency: 1,
		ItemTimeout: 20 * time.Millisecond,
	})

	res := result.Results[0]
	if res.Status != StatusError {
		t.Fatalf("status = %s, want error", res.Status)
	}
	if !strings.HasPrefix(res.Reason, "timeout:") {
		t.Fatalf("reason = %q, want timeout", res.Reason)
	}
}

func TestBatchStopOnError(t *testing.T) {
	tracker := newFakeTracker()
	tracker.bodyErr[1] = errors.New("boom")
	orch := newTestOrchestrator(t, tracker, stubClassifier{result: aiResult("phishing-analysis", 0.95)})

	items := []WorkItem{phishingItem(1), phishingItem(2), phishingItem(3)}
	result := orch.ProcessBatch(context.Background(), items, BatchOptions{
		Concurrency: 1,
		StopOnError: true,
	})

	if result.Metrics.Processed != 3 {
		t.Fatalf("every item must still be reported, processed = %d", result.Metrics.Processed)
	}
	if result.Results[0].Status != StatusError {
		t.Fatalf("first item status = %s", result.Results[0].Status)
	}
	for _, res := range result.Results[1:] {
		if res.Status != StatusError || res.Reason != "batch cancelled before dispatch" {
			t.Fatalf("item %d should not have been dispatched, got %s (%s)", res.ItemID, res.Status, res.Reason)
		}
	}
}

// Cancelling the batch context mid-run stops dispatch but lets the item
// already in flight finish and apply its mutations.
func TestBatchMidFlightCancelFinishesInFlightItem(t *testing.T) {
	tracker := newFakeTracker()
	orch := newTestOrchestrator(t, tracker, stubClassifier{delay: 100 * time.Millisecond, result: aiResult("phishing-analysis", 0.95)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	result := orch.ProcessBatch(ctx, []WorkItem{phishingItem(1), phishingItem(2)}, BatchOptions{
		Concurrency:  1,
		CopilotActor: "copilot",
	})

	first := result.Results[0]
	if first.Status != StatusSuccess {
		t.Fatalf("in-flight item status = %s (%s), want success", first.Status, first.Reason)
	}
	if tracker.assignees[1] != "copilot" {
		t.Fatal("in-flight item's mutations must still be applied")
	}
	second := result.Results[1]
	if second.Status != StatusError || second.Reason != "batch cancelled before dispatch" {
		t.Fatalf("queued item should be cancelled before dispatch, got %s (%s)", second.Status, second.Reason)
	}
	if tracker.assignees[2] != "" {
		t.Fatal("queued item must not be mutated after cancellation")
	}
}

func TestBatchCancelledContext(t *testing.T) {
	tracker := newFakeTracker()
	orch := newTestOrchestrator(t, tracker, stubClassifier{result: aiResult("phishing-analysis", 0.95)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := orch.ProcessBatch(ctx, []WorkItem{phishingItem(1), phishingItem(2)}, BatchOptions{Concurrency: 1})

	if result.Metrics.Processed != 2 {
		t.Fatalf("processed = %d, want 2", result.Metrics.Processed)
	}
	for _, res := range result.Results {
		if res.Status != StatusError {
			t.Fatalf("item %d status = %s, want error", res.ItemID, res.Status)
		}
	}
	if tracker.mutationCalls() != 0 {
		t.Fatal("cancelled batch must not mutate anything")
	}
}
