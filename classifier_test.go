package main

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseClassifierResponse(t *testing.T) {
	response := `{
		"summary": "Spearphishing campaign report",
		"key_topics": ["phishing", "registrars"],
		"suggested_workflows": [{"name": "phishing-analysis", "confidence": 0.92}],
		"urgency": "high",
		"content_type": "phishing report",
		"indicators": ["evil.example.com"],
		"rationale": ["trigger label present", "campaign indicators in body"]
	}`

	result, err := parseClassifierResponse(response)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if result.Summary != "Spearphishing campaign report" {
		t.Fatalf("summary = %q", result.Summary)
	}
	if result.Urgency != UrgencyHigh {
		t.Fatalf("urgency = %s", result.Urgency)
	}
	if got := result.ConfidenceFor("phishing-analysis"); got != 0.92 {
		t.Fatalf("confidence = %.2f", got)
	}
	if len(result.Rationale) != 2 {
		t.Fatalf("rationale = %v", result.Rationale)
	}
}

func TestParseClassifierResponseStripsCodeFences(t *testing.T) {
	response := "```json\n{\"summary\": \"ok\", \"urgency\": \"low\", \"suggested_workflows\": []}\n```"
	result, err := parseClassifierResponse(response)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if result.Urgency != UrgencyLow {
		t.Fatalf("urgency = %s", result.Urgency)
	}
}

func TestParseClassifierResponseRejectsMalformedJSON(t *testing.T) {
	if _, err := parseClassifierResponse("I think this is phishing."); err == nil {
		t.Fatal("prose response must fail to parse")
	}
}

func TestParseClassifierResponseRejectsOutOfRangeConfidence(t *testing.T) {
	response := `{"summary": "x", "urgency": "low", "suggested_workflows": [{"name": "a", "confidence": 1.4}]}`
	if _, err := parseClassifierResponse(response); err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("expected out-of-range error, got %v", err)
	}
}

func TestParseClassifierResponseRejectsUnknownUrgency(t *testing.T) {
	response := `{"summary": "x", "urgency": "apocalyptic", "suggested_workflows": []}`
	if _, err := parseClassifierResponse(response); err == nil {
		t.Fatal("unknown urgency must fail to parse")
	}
}

func TestBuildClassifierPromptsTruncatesBody(t *testing.T) {
	item := WorkItem{
		ID:     1,
		Title:  "Long report",
		Body:   strings.Repeat("a", bodyExcerptLimit+500),
		Labels: []string{"monitor::triage"},
	}
	system, user := buildClassifierPrompts(item, nil, nil)

	if len(user) > bodyExcerptLimit+300 {
		t.Fatalf("user prompt too long: %d bytes", len(user))
	}
	if !strings.Contains(user, "...") {
		t.Fatal("truncated body should carry an ellipsis")
	}
	if !strings.Contains(system, "Candidate workflows:\nnone") {
		t.Fatalf("empty candidate list should render as none:\n%s", system)
	}
}

func TestBuildClassifierPromptsTruncatesOnRuneBoundary(t *testing.T) {
	// Three-byte runes guarantee the byte limit lands mid-rune; the excerpt
	// must back off to a boundary instead of emitting a broken sequence.
	item := WorkItem{
		ID:    2,
		Title: "Unicode report",
		Body:  strings.Repeat("安", bodyExcerptLimit),
	}
	_, user := buildClassifierPrompts(item, nil, nil)

	if !utf8.ValidString(user) {
		t.Fatal("truncated prompt must remain valid UTF-8")
	}
	if !strings.Contains(user, "...") {
		t.Fatal("truncated body should carry an ellipsis")
	}
}

func TestBuildClassifierPromptsListsCandidates(t *testing.T) {
	w := &WorkflowDefinition{
		Name:          "Phishing Analysis",
		Slug:          "phishing-analysis",
		TriggerLabels: []string{"topic::phishing"},
		Specialist:    "intel-analyst",
	}
	system, _ := buildClassifierPrompts(WorkItem{Title: "t"}, []Candidate{{Workflow: w, Strength: 1}}, nil)
	if !strings.Contains(system, "Phishing Analysis (slug: phishing-analysis)") {
		t.Fatalf("candidate summary missing:\n%s", system)
	}
}
