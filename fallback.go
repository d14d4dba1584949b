package main

import (
	"context"
	"sort"
	"strings"
)

// RuleClassifier is the always-available fallback. Confidence comes from
// trigger-label overlap plus a fixed per-workflow priority, so two runs over
// the same labels and catalog always produce the same result. It never
// errors; confidence may simply be low.
type RuleClassifier struct{}

// Urgency keywords checked against title and body. First family that hits
// wins, highest first.
var urgencyKeywords = []struct {
	urgency Urgency
	words   []string
}{
	{UrgencyCritical, []string{"zero-day", "0day", "actively exploited", "ransomware"}},
	{UrgencyHigh, []string{"exploit", "spearphishing", "phishing", "breach", "cve-"}},
	{UrgencyLow, []string{"advisory", "digest", "roundup", "newsletter"}},
}

func (RuleClassifier) Classify(_ context.Context, item WorkItem, candidates []Candidate) (ClassificationResult, error) {
	labels := nonTemporaryLabels(item.Labels)

	var scores []WorkflowScore
	for _, c := range candidates {
		w := c.Workflow
		hits := 0
		for _, t := range w.TriggerLabels {
			if HasLabel(labels, t) {
				hits++
			}
		}
		overlap := float64(hits) / float64(len(w.TriggerLabels))
		// Priority is a fixed catalog constant in [0,1]; it breaks ties
		// between workflows with equal label overlap.
		confidence := 0.8*overlap + 0.2*clamp01(w.Priority)
		if hits == 0 && c.ByText {
			confidence = 0.2 * clamp01(w.Priority)
		}
		scores = append(scores, WorkflowScore{Workflow: w.Slug, Confidence: clamp01(confidence)})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Confidence != scores[j].Confidence {
			return scores[i].Confidence > scores[j].Confidence
		}
		return scores[i].Workflow < scores[j].Workflow
	})

	text := strings.ToLower(item.Title + "\n" + item.Body)
	urgency := UrgencyMedium
	for _, uk := range urgencyKeywords {
		if containsAny(text, uk.words) {
			urgency = uk.urgency
			break
		}
	}

	summary := strings.TrimSpace(item.Title)
	if summary == "" {
		summary = "untitled work item"
	}

	return ClassificationResult{
		Summary:     summary,
		Workflows:   scores,
		Urgency:     urgency,
		ContentType: "unclassified",
		KeyTopics:   WorkflowLabels(item.Labels),
		Rationale:   []string{"rule-based fallback: confidence derived from trigger-label overlap"},
		Variant:     "rules",
	}, nil
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
