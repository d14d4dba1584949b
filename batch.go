package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchOptions controls one orchestrator pass.
type BatchOptions struct {
	Concurrency  int
	DryRun       bool
	ItemTimeout  time.Duration
	SLAWindow    time.Duration
	CopilotActor string // tracker login receiving auto-assigned handoffs

	// StopOnError stops dispatching new items once any item records an
	// error. In-flight items still finish; continue-on-error is the default.
	StopOnError bool
}

// BatchResult is the full per-item result list plus aggregate metrics. A
// batch always reports every item, even when every one of them failed.
type BatchResult struct {
	Results []ProcessingResult
	Metrics BatchMetrics
}

// Orchestrator drives work items through match, classify, transition, build
// and apply. The catalog is read-only after load; labels and section
// rendering are pure; the only cross-worker shared state is the metrics
// accumulator.
type Orchestrator struct {
	Tracker    IssueTracker
	Catalog    *Catalog
	AI         Classifier // nil runs rule-based only
	Fallback   Classifier
	DB         *sql.DB // optional assignment history
	Weights    DecisionWeights
	Thresholds DecisionThresholds
	Now        func() time.Time // defaults to time.Now
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// ProcessBatch runs the per-item pipeline over items under a bounded worker
// pool. Any single item's failure is recorded on its own result and never
// aborts the rest; cancelling ctx stops dispatching new items while
// in-flight ones finish or time out on their own deadlines.
func (o *Orchestrator) ProcessBatch(ctx context.Context, items []WorkItem, opts BatchOptions) BatchResult {
	start := o.now()
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	results := make([]ProcessingResult, len(items))

	var mu sync.Mutex
	var metrics BatchMetrics

	// dispatchCtx only gates dispatch; per-item work runs against ctx so a
	// stop-on-error trip never hard-kills in-flight mutations.
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	g := new(errgroup.Group)
	g.SetLimit(opts.Concurrency)
	for i, item := range items {
		if dispatchCtx.Err() != nil {
			// Batch-level cancellation: remaining items are reported, not
			// silently dropped.
			results[i] = ProcessingResult{
				ItemID: item.ID,
				Status: StatusError,
				Reason: "batch cancelled before dispatch",
				Err:    dispatchCtx.Err(),
			}
			mu.Lock()
			metrics.record(results[i])
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			var res ProcessingResult
			if dispatchCtx.Err() != nil {
				// The cancel landed while this item was queued on the pool.
				res = ProcessingResult{
					ItemID: item.ID,
					Status: StatusError,
					Reason: "batch cancelled before dispatch",
					Err:    dispatchCtx.Err(),
				}
			} else {
				// Once dispatched, the item runs to completion under its own
				// deadline; batch cancellation must not abort a half-applied
				// mutation sequence.
				res = o.processItem(context.WithoutCancel(ctx), item, opts)
			}
			results[i] = res
			mu.Lock()
			metrics.record(res)
			mu.Unlock()
			if opts.StopOnError && res.Status == StatusError {
				stopDispatch()
			}
			if o.DB != nil {
				if err := RecordDecision(o.DB, res); err != nil {
					log.Printf("batch history record item=%d err=%v", item.ID, err)
				}
			}
			return nil
		})
	}
	g.Wait()

	metrics.Duration = o.now().Sub(start)
	if o.DB != nil {
		if err := RecordBatchRun(o.DB, metrics, opts.DryRun); err != nil {
			log.Printf("batch history run err=%v", err)
		}
	}
	log.Printf("batch done processed=%d succeeded=%d failed=%d skipped=%d handoffs=%d duration=%s",
		metrics.Processed, metrics.Succeeded, metrics.Failed, metrics.Skipped, metrics.Handoffs,
		metrics.Duration.Round(time.Millisecond))
	return BatchResult{Results: results, Metrics: metrics}
}

// processItem runs one item through the full pipeline under its own
// deadline. It never panics out: a stage failure becomes an error result.
func (o *Orchestrator) processItem(ctx context.Context, item WorkItem, opts BatchOptions) (res ProcessingResult) {
	res = ProcessingResult{ItemID: item.ID}
	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusError
			res.Reason = fmt.Sprintf("pipeline panic: %v", r)
			res.Err = fmt.Errorf("pipeline panic: %v", r)
			log.Printf("batch item=%d panic=%v", item.ID, r)
		}
	}()

	if opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ItemTimeout)
		defer cancel()
	}

	// Single-flight guarantee: anything past discovery was handed off by an
	// earlier pass and must not be reprocessed.
	state := InferState(item.Labels)
	if state > StateDiscovery {
		res.Status = StatusSkipped
		res.Reason = fmt.Sprintf("already in state %s", state)
		log.Printf("batch item=%d skipped state=%s", item.ID, state)
		return res
	}

	// Stage outputs are immutable inputs to the next stage; the label diff
	// is computed against the item's original label set and applied once.
	finalLabels := NormalizeLabels(item.Labels)
	if state == StateUnknown {
		diff, err := Transition(finalLabels, StateDiscovery)
		if err != nil {
			return o.itemError(res, item, "state transition", err)
		}
		finalLabels = ApplyDiff(finalLabels, diff)
	}

	match := o.Catalog.Match(item)

	classification, err := o.classify(ctx, item, match.Candidates)
	if err != nil {
		return o.itemError(res, item, "classification", err)
	}
	res.Variant = classification.Variant
	res.Usage = classification.Usage

	historyScore := 0.5
	if o.DB != nil && match.Outcome == MatchSingle {
		historyScore = HistoricalSuccessScore(o.DB, match.Workflow.Slug)
	}
	decision := MakeDecision(match, classification, historyScore, o.Weights, o.Thresholds)
	res.Action = decision.Action
	res.Confidence = decision.Confidence
	if decision.Workflow != nil {
		res.Workflow = decision.Workflow.Slug
	}

	var profile *SpecialistProfile
	if decision.Workflow != nil && decision.Action != ActionRequestClarification {
		profile = o.Catalog.Specialist(decision.Workflow.Specialist)
		if profile == nil {
			return o.itemError(res, item, "catalog", fmt.Errorf("workflow %q references missing specialist %q", decision.Workflow.Slug, decision.Workflow.Specialist))
		}
	}

	sections, due := BuildSections(item, decision, profile, o.now(), opts.SLAWindow)
	res.Sections = sections
	res.DueDate = due
	newBody := ApplySections(item.Body, sections)

	// Advance the state machine one step at a time; the applied diff is the
	// net difference against the original labels.
	switch decision.Action {
	case ActionAutoAssign, ActionRequestReview:
		diff, err := Transition(finalLabels, StateAssigned)
		if err != nil {
			return o.itemError(res, item, "state transition", err)
		}
		finalLabels = ApplyDiff(finalLabels, diff)
		finalLabels = ApplyDiff(finalLabels, LabelDiff{Add: []string{
			WorkflowLabel(decision.Workflow.Slug),
			SpecialistLabel(decision.Workflow.Specialist),
		}})
		if decision.Action == ActionAutoAssign {
			diff, err = Transition(finalLabels, StateCopilot)
			if err != nil {
				return o.itemError(res, item, "state transition", err)
			}
			finalLabels = ApplyDiff(finalLabels, diff)
			res.Assignee = opts.CopilotActor
		}
	}
	res.Diff = diffLabels(item.Labels, finalLabels)

	if opts.DryRun {
		res.Status = StatusPreview
		log.Printf("batch item=%d preview action=%s workflow=%s", item.ID, res.Action, res.Workflow)
		return res
	}

	if err := o.apply(ctx, item, newBody, res); err != nil {
		return o.itemError(res, item, "apply", err)
	}

	if decision.Action == ActionRequestClarification {
		res.Status = StatusNeedsClarification
	} else {
		res.Status = StatusSuccess
	}
	log.Printf("batch item=%d status=%s action=%s workflow=%s variant=%s confidence=%.2f",
		item.ID, res.Status, res.Action, res.Workflow, res.Variant, res.Confidence)
	return res
}

// classify prefers the AI variant and falls back to rules for this item
// only when it is unavailable; the batch keeps going either way.
func (o *Orchestrator) classify(ctx context.Context, item WorkItem, candidates []Candidate) (ClassificationResult, error) {
	if o.AI != nil {
		result, err := o.AI.Classify(ctx, item, candidates)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrClassificationUnavailable) {
			return ClassificationResult{}, err
		}
		log.Printf("batch item=%d classifier fallback err=%v", item.ID, err)
	}
	if o.Fallback == nil {
		return ClassificationResult{}, fmt.Errorf("no classifier available")
	}
	return o.Fallback.Classify(ctx, item, candidates)
}

// apply pushes the computed body, label diff and assignee to the tracker.
// Body first: a half-applied item with updated sections but stale labels is
// picked up again on the next pass, while the reverse would be skipped.
func (o *Orchestrator) apply(ctx context.Context, item WorkItem, newBody string, res ProcessingResult) error {
	if newBody != item.Body {
		if err := o.Tracker.UpdateBody(ctx, item.ID, newBody); err != nil {
			return err
		}
	}
	if !res.Diff.Empty() {
		if err := o.Tracker.UpdateLabels(ctx, item.ID, res.Diff.Add, res.Diff.Remove); err != nil {
			return err
		}
	}
	if res.Assignee != "" {
		if err := o.Tracker.Assign(ctx, item.ID, res.Assignee); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) itemError(res ProcessingResult, item WorkItem, stage string, err error) ProcessingResult {
	res.Status = StatusError
	res.Err = err
	if errors.Is(err, context.DeadlineExceeded) {
		res.Reason = "timeout: " + stage
	} else {
		res.Reason = stage + ": " + err.Error()
	}
	log.Printf("batch item=%d stage=%s err=%v", item.ID, stage, err)
	return res
}

// diffLabels computes the net add/remove set between two label sets.
func diffLabels(before, after []string) LabelDiff {
	b := NormalizeLabels(before)
	a := NormalizeLabels(after)
	var diff LabelDiff
	for _, l := range a {
		if !HasLabel(b, l) {
			diff.Add = append(diff.Add, l)
		}
	}
	for _, l := range b {
		if !HasLabel(a, l) {
			diff.Remove = append(diff.Remove, l)
		}
	}
	return diff
}
