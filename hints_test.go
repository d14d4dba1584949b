package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadClassifierHintsMissingFile(t *testing.T) {
	hints, err := LoadClassifierHints(filepath.Join(t.TempDir(), "hints.yaml"))
	if err != nil {
		t.Fatalf("missing hints file must not error: %v", err)
	}
	if len(hints.Hints) != 0 {
		t.Fatalf("hints = %d, want none", len(hints.Hints))
	}
}

func TestAppendClassifierHintDeduplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hints.yaml")

	if err := AppendClassifierHint(path, "registrar takedown", "phishing-analysis"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	// Same phrase, different case: still one entry.
	if err := AppendClassifierHint(path, "Registrar Takedown", "vuln-intake"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := AppendClassifierHint(path, "proof of concept attached", "vuln-intake"); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	hints, err := LoadClassifierHints(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(hints.Hints) != 2 {
		t.Fatalf("hints = %d, want 2", len(hints.Hints))
	}
	if hints.Hints[0].Workflow != "phishing-analysis" {
		t.Fatalf("first hint should keep its original workflow, got %q", hints.Hints[0].Workflow)
	}
}

func TestAppendClassifierHintRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hints.yaml")
	if err := AppendClassifierHint(path, "  ", "phishing-analysis"); err == nil {
		t.Fatal("blank phrase must be rejected")
	}
	if err := AppendClassifierHint(path, "phrase", ""); err == nil {
		t.Fatal("blank workflow must be rejected")
	}
}

func TestAppendClassifierHintKeepsFileOnReadError(t *testing.T) {
	// A directory fails ReadFile with an error that is not IsNotExist; the
	// append must refuse at read time rather than fall through and rewrite
	// the path as a one-hint file.
	err := AppendClassifierHint(t.TempDir(), "registrar takedown", "phishing-analysis")
	if err == nil {
		t.Fatal("unreadable hints path must error, not be overwritten")
	}
	if !strings.Contains(err.Error(), "read hints") {
		t.Fatalf("failure should surface at read time, got: %v", err)
	}
}

func TestHintsForMatchesCaseInsensitively(t *testing.T) {
	hints := &ClassifierHints{Hints: []WorkflowHint{
		{Phrase: "registrar takedown", Workflow: "phishing-analysis"},
		{Phrase: "heap overflow", Workflow: "vuln-intake"},
	}}
	item := WorkItem{
		Title: "Registrar Takedown request",
		Body:  "Full writeup attached.",
	}

	matched := hints.For(item)
	if len(matched) != 1 || matched[0].Workflow != "phishing-analysis" {
		t.Fatalf("matched = %+v", matched)
	}
	if got := (*ClassifierHints)(nil).For(item); got != nil {
		t.Fatalf("nil hints must match nothing, got %+v", got)
	}
}

func TestPromptCarriesRoutingHints(t *testing.T) {
	item := WorkItem{Title: "Registrar takedown", Body: "details"}
	_, user := buildClassifierPrompts(item, nil, []WorkflowHint{
		{Phrase: "registrar takedown", Workflow: "phishing-analysis"},
	})
	if !strings.Contains(user, `"registrar takedown" -> phishing-analysis`) {
		t.Fatalf("hint missing from prompt:\n%s", user)
	}
}
