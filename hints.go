package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClassifierHints are curated phrase-to-workflow steers fed into the AI
// prompt. Operators append a hint after resolving a clarification so the
// same kind of item routes cleanly next time.
type ClassifierHints struct {
	Hints []WorkflowHint `yaml:"hints"`
}

type WorkflowHint struct {
	Phrase   string `yaml:"phrase"`
	Workflow string `yaml:"workflow"`
}

// LoadClassifierHints reads the hints file. A missing file is an empty hint
// set, not an error; the file only exists once someone records a hint.
func LoadClassifierHints(path string) (*ClassifierHints, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ClassifierHints{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read hints: %w", err)
	}
	var h ClassifierHints
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse hints yaml: %w", err)
	}
	return &h, nil
}

func normalizeTextToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// For returns the hints whose phrase occurs in the item's title or body,
// case-insensitively.
func (h *ClassifierHints) For(item WorkItem) []WorkflowHint {
	if h == nil || len(h.Hints) == 0 {
		return nil
	}
	text := normalizeTextToken(item.Title + "\n" + item.Body)
	var out []WorkflowHint
	for _, hint := range h.Hints {
		phrase := normalizeTextToken(hint.Phrase)
		if phrase == "" {
			continue
		}
		if strings.Contains(text, phrase) {
			out = append(out, hint)
		}
	}
	return out
}

// AppendClassifierHint records one phrase-to-workflow steer, deduplicating
// on the normalized phrase.
func AppendClassifierHint(path, phrase, workflow string) error {
	phrase = strings.TrimSpace(phrase)
	workflow = normalizeLabel(workflow)
	if phrase == "" || workflow == "" {
		return fmt.Errorf("hint needs both a phrase and a workflow")
	}

	var hints ClassifierHints
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		// An unreadable file must not be rewritten as a one-hint file.
		return fmt.Errorf("read hints: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &hints); err != nil {
			return fmt.Errorf("parse existing hints: %w", err)
		}
	}

	normalized := normalizeTextToken(phrase)
	for _, h := range hints.Hints {
		if normalizeTextToken(h.Phrase) == normalized {
			return nil // already recorded
		}
	}

	hints.Hints = append(hints.Hints, WorkflowHint{Phrase: phrase, Workflow: workflow})
	out, err := yaml.Marshal(&hints)
	if err != nil {
		return fmt.Errorf("marshal hints: %w", err)
	}
	return os.WriteFile(path, out, 0644)
}
