package main

import "time"

// WorkItem is one discovered issue flowing through the pipeline. It is owned
// by the orchestrator for the duration of a single batch pass; the issue
// tracker is the source of truth between passes.
type WorkItem struct {
	ID       int64
	Title    string
	Body     string
	Labels   []string
	Assignee string // tracker login, empty if unassigned
}

// Urgency is the classifier's read on how quickly an item needs attention.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// WorkflowScore is one candidate workflow with the classifier's confidence.
type WorkflowScore struct {
	Workflow   string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ClassificationResult is the common output of both classifier variants.
// Immutable after creation.
type ClassificationResult struct {
	Summary     string
	Workflows   []WorkflowScore
	Urgency     Urgency
	ContentType string
	KeyTopics   []string
	Indicators  []string
	Rationale   []string
	Variant     string // "ai" or "rules", for observability
	Usage       LLMUsage
}

// Top returns the highest-confidence workflow suggestion, or a zero value if
// the classifier produced none.
func (r ClassificationResult) Top() WorkflowScore {
	var best WorkflowScore
	for _, w := range r.Workflows {
		if w.Confidence > best.Confidence {
			best = w
		}
	}
	return best
}

// ConfidenceFor returns the classifier's confidence in the named workflow.
func (r ClassificationResult) ConfidenceFor(workflow string) float64 {
	for _, w := range r.Workflows {
		if normalizeLabel(w.Workflow) == normalizeLabel(workflow) {
			return w.Confidence
		}
	}
	return 0
}

// AssignmentAction routes a decision to one of three outcomes.
type AssignmentAction string

const (
	ActionAutoAssign           AssignmentAction = "auto_assign"
	ActionRequestReview        AssignmentAction = "request_review"
	ActionRequestClarification AssignmentAction = "request_clarification"
)

// AssignmentDecision combines the classification with label-match and
// historical-success signals. Workflow is nil for ambiguous/no-match items.
type AssignmentDecision struct {
	Workflow       *WorkflowDefinition
	Action         AssignmentAction
	Confidence     float64
	LabelScore     float64
	HistoryScore   float64
	Classification ClassificationResult
	MatchOutcome   MatchOutcome
	Candidates     []Candidate // populated when the match was ambiguous
}

// ProcessingStatus is the terminal status of one item in a batch pass.
type ProcessingStatus string

const (
	StatusSuccess            ProcessingStatus = "success"
	StatusPreview            ProcessingStatus = "preview"
	StatusNeedsClarification ProcessingStatus = "needs_clarification"
	StatusSkipped            ProcessingStatus = "skipped"
	StatusError              ProcessingStatus = "error"
)

// ProcessingResult is the per-item outcome consumed by the batch aggregator.
type ProcessingResult struct {
	ItemID     int64
	Status     ProcessingStatus
	Workflow   string
	Action     AssignmentAction
	Confidence float64
	Diff       LabelDiff
	Sections   map[string]string // heading -> rendered block
	Assignee   string
	DueDate    time.Time
	Variant    string
	Usage      LLMUsage
	Reason     string // skip reason or error detail
	Err        error  `json:"-"` // Reason carries the printable detail
}

// BatchMetrics aggregates one batch pass. Finalized once every item in the
// batch has been attempted.
type BatchMetrics struct {
	Processed   int
	Succeeded   int
	Failed      int
	Skipped     int
	ByStatus    map[ProcessingStatus]int
	Handoffs    int
	EarliestDue time.Time
	Duration    time.Duration
	Usage       LLMUsage
}

func (m *BatchMetrics) record(res ProcessingResult) {
	if m.ByStatus == nil {
		m.ByStatus = make(map[ProcessingStatus]int)
	}
	m.Processed++
	m.ByStatus[res.Status]++
	switch res.Status {
	case StatusError:
		m.Failed++
	case StatusSkipped:
		m.Skipped++
	default:
		m.Succeeded++
	}
	if !res.DueDate.IsZero() {
		m.Handoffs++
		if m.EarliestDue.IsZero() || res.DueDate.Before(m.EarliestDue) {
			m.EarliestDue = res.DueDate
		}
	}
	m.Usage.Add(res.Usage)
}
