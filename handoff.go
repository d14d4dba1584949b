package main

import (
	"fmt"
	"strings"
	"time"
)

// DefaultSLAWindow is the assignment window granted to the downstream agent.
const DefaultSLAWindow = 48 * time.Hour

const awaitingClarificationMarker = "**Awaiting clarification** — no workflow could be chosen for this item."

// HandoffSections is the rendered output of one builder run, keyed by the
// fixed top-level headings.
type HandoffSections map[string]string

// BuildSections renders the assessment, guidance and handoff blocks for one
// item. Rendering is a pure function of its inputs; now is passed in rather
// than read from the clock so re-runs with identical inputs are
// byte-identical. When no specialist profile resolves (ambiguous or
// no-match decisions) only the assessment block is emitted, carrying an
// explicit clarification marker.
func BuildSections(item WorkItem, decision AssignmentDecision, profile *SpecialistProfile, now time.Time, sla time.Duration) (HandoffSections, time.Time) {
	sections := HandoffSections{
		HeadingAssessment: renderAssessment(item, decision, profile == nil),
	}
	if profile == nil || decision.Workflow == nil {
		return sections, time.Time{}
	}

	sections[HeadingGuidance] = renderGuidance(decision, profile)

	if sla <= 0 {
		sla = DefaultSLAWindow
	}
	due := now.Add(sla).UTC().Truncate(time.Minute)
	sections[HeadingHandoff] = renderHandoff(decision, due)
	return sections, due
}

func renderAssessment(item WorkItem, decision AssignmentDecision, unresolved bool) string {
	c := decision.Classification
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(c.Summary))
	fmt.Fprintf(&b, "- Urgency: %s\n", c.Urgency)
	if c.ContentType != "" {
		fmt.Fprintf(&b, "- Content type: %s\n", c.ContentType)
	}
	if len(c.KeyTopics) > 0 {
		fmt.Fprintf(&b, "- Key topics: %s\n", strings.Join(c.KeyTopics, ", "))
	}
	if len(c.Indicators) > 0 {
		fmt.Fprintf(&b, "- Indicators: %s\n", strings.Join(c.Indicators, ", "))
	}
	fmt.Fprintf(&b, "- Classifier: %s\n", c.Variant)

	if decision.Workflow != nil {
		fmt.Fprintf(&b, "- Workflow: %s (confidence %.2f, action %s)\n", decision.Workflow.Name, decision.Confidence, decision.Action)
	}

	if unresolved {
		b.WriteString("\n" + awaitingClarificationMarker + "\n")
		switch decision.MatchOutcome {
		case MatchAmbiguous:
			b.WriteString("\nCandidate workflows:\n")
			for _, cand := range decision.Candidates {
				fmt.Fprintf(&b, "- %s (match strength %.2f)\n", cand.Workflow.Name, cand.Strength)
			}
		case MatchNone:
			b.WriteString("No workflow triggers matched the item's labels or content.\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderGuidance(decision AssignmentDecision, profile *SpecialistProfile) string {
	c := decision.Classification
	var b strings.Builder

	fmt.Fprintf(&b, "**%s** — %s\n\n", profile.Persona, strings.TrimSpace(profile.Role))
	if profile.Objective != "" {
		fmt.Fprintf(&b, "Objective: %s\n\n", strings.TrimSpace(profile.Objective))
	}

	if len(c.Rationale) > 0 {
		b.WriteString("AI insight:\n")
		for _, r := range c.Rationale {
			fmt.Fprintf(&b, "- %s _(confidence %.2f)_\n", strings.TrimSpace(r), decision.Confidence)
		}
		b.WriteString("\n")
	}

	b.WriteString("Actions:\n")
	for i, a := range guidanceActions(decision) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a)
	}
	b.WriteString("\n")

	if len(decision.Workflow.Deliverables) > 0 {
		b.WriteString("Deliverables:\n")
		for _, d := range decision.Workflow.Deliverables {
			line := "- [ ] " + d.Name
			if d.PathHint != "" {
				line += " (`" + d.PathHint + "`)"
			}
			if d.Required {
				line += " (required)"
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	if len(profile.Collaboration) > 0 {
		fmt.Fprintf(&b, "Collaboration: %s\n", strings.Join(profile.Collaboration, ", "))
	}
	if profile.Escalation != "" {
		fmt.Fprintf(&b, "Escalation: %s\n", profile.Escalation)
	}
	return strings.TrimRight(b.String(), "\n")
}

func guidanceActions(decision AssignmentDecision) []string {
	actions := []string{
		"Review the AI assessment above and confirm the chosen workflow fits.",
		fmt.Sprintf("Work the item as %s under the %s workflow.", decision.Workflow.Specialist, decision.Workflow.Name),
	}
	if decision.Action == ActionRequestReview {
		actions = append(actions, "Confidence is below the auto-assign bar: have a reviewer confirm before handing off.")
	}
	actions = append(actions, "Produce every required deliverable listed below before closing.")
	return actions
}

func renderHandoff(decision AssignmentDecision, due time.Time) string {
	w := decision.Workflow
	var b strings.Builder

	fmt.Fprintf(&b, "Due: %s\n\n", due.Format(time.RFC3339))

	b.WriteString("Acceptance criteria:\n")
	n := 0
	for _, d := range w.Deliverables {
		n++
		suffix := ""
		if !d.Required {
			suffix = " (optional)"
		}
		fmt.Fprintf(&b, "%d. %s delivered%s\n", n, d.Name, suffix)
	}
	n++
	fmt.Fprintf(&b, "%d. Item labels reflect the final pipeline state.\n", n)
	b.WriteString("\n")

	b.WriteString("Validation:\n")
	if w.Branch != "" {
		fmt.Fprintf(&b, "- Work lands on branch `%s`.\n", w.Branch)
	}
	for _, d := range w.Deliverables {
		if d.PathHint != "" {
			fmt.Fprintf(&b, "- `%s` exists and is non-empty.\n", d.PathHint)
		}
	}
	fmt.Fprintf(&b, "- All checklist items in %s are complete.\n", HeadingGuidance)
	return strings.TrimRight(b.String(), "\n")
}

// ApplySections upserts the rendered sections into a body in the fixed
// heading order, so re-processing an already annotated item rewrites the
// same blocks in place.
func ApplySections(body string, sections HandoffSections) string {
	for _, heading := range []string{HeadingAssessment, HeadingGuidance, HeadingHandoff} {
		if content, ok := sections[heading]; ok {
			body = UpsertSection(body, heading, content)
		}
	}
	return body
}
