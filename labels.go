package main

import (
	"errors"
	"fmt"
	"strings"
)

// Label taxonomy shared with the issue tracker. All comparisons are
// case-insensitive and duplicates collapse before diffing.
const (
	LabelTriage         = "monitor::triage"
	LabelStateDiscovery = "state::discovery"
	LabelStateAssigned  = "state::assigned"
	LabelStateCopilot   = "state::copilot"
	LabelStateDone      = "state::done"

	workflowLabelPrefix   = "workflow::"
	specialistLabelPrefix = "specialist::"
	stateLabelPrefix      = "state::"
)

// ErrInvalidTransition marks a state-machine misuse. It is always a caller
// bug and never retried.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is a work item's pipeline stage as encoded in its labels.
type State int

const (
	StateUnknown State = iota
	StateDiscovery
	StateAssigned
	StateCopilot
	StateDone
)

var stateLabels = map[State]string{
	StateDiscovery: LabelStateDiscovery,
	StateAssigned:  LabelStateAssigned,
	StateCopilot:   LabelStateCopilot,
	StateDone:      LabelStateDone,
}

var stateOrder = []State{StateDiscovery, StateAssigned, StateCopilot, StateDone}

func (s State) String() string {
	if label, ok := stateLabels[s]; ok {
		return strings.TrimPrefix(label, stateLabelPrefix)
	}
	return "unknown"
}

// Label returns the tracker label encoding this state, or "" for unknown.
func (s State) Label() string {
	return stateLabels[s]
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// NormalizeLabels lowercases, trims and deduplicates a label list, keeping
// first-seen order.
func NormalizeLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	var out []string
	for _, l := range labels {
		n := normalizeLabel(l)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// HasLabel reports whether the set contains the label, case-insensitively.
func HasLabel(labels []string, label string) bool {
	want := normalizeLabel(label)
	for _, l := range labels {
		if normalizeLabel(l) == want {
			return true
		}
	}
	return false
}

// InferState scans a label set for the highest-priority state-family label.
// A set with no state label is treated as not-yet-discovered.
func InferState(labels []string) State {
	found := StateUnknown
	for _, l := range NormalizeLabels(labels) {
		for i := len(stateOrder) - 1; i >= 0; i-- {
			s := stateOrder[i]
			if l == stateLabels[s] && s > found {
				found = s
			}
		}
	}
	return found
}

// LabelDiff is the pure output of a transition: callers apply it to the
// tracker themselves, so dry runs never mutate anything.
type LabelDiff struct {
	Add    []string
	Remove []string
}

func (d LabelDiff) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// Transition computes the label diff that moves an item from the state
// encoded in current to target. Only single steps along
// discovery -> assigned -> copilot -> done are allowed; anything else wraps
// ErrInvalidTransition and produces no partial diff. The diff always removes
// the temporary triage label and any superseded state label, so applying it
// leaves at most one state label in place.
func Transition(current []string, target State) (LabelDiff, error) {
	targetLabel, ok := stateLabels[target]
	if !ok {
		return LabelDiff{}, fmt.Errorf("%w: unknown target state %d", ErrInvalidTransition, target)
	}

	from := InferState(current)
	switch {
	case from == StateUnknown && target != StateDiscovery:
		return LabelDiff{}, fmt.Errorf("%w: item has no state label, only discovery is reachable (wanted %s)", ErrInvalidTransition, target)
	case from != StateUnknown && target != from+1:
		return LabelDiff{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, target)
	}

	normalized := NormalizeLabels(current)
	diff := LabelDiff{Add: []string{targetLabel}}
	for _, l := range normalized {
		if l == targetLabel {
			// Already present; nothing to add.
			diff.Add = nil
			continue
		}
		if strings.HasPrefix(l, stateLabelPrefix) {
			diff.Remove = append(diff.Remove, l)
		}
	}
	// The triage marker never survives past discovery.
	if target > StateDiscovery && HasLabel(normalized, LabelTriage) {
		diff.Remove = append(diff.Remove, LabelTriage)
	}
	return diff, nil
}

// ApplyDiff returns the label set that results from applying diff, for
// previews and tests. The tracker applies the same diff remotely.
func ApplyDiff(labels []string, diff LabelDiff) []string {
	removed := make(map[string]struct{}, len(diff.Remove))
	for _, l := range diff.Remove {
		removed[normalizeLabel(l)] = struct{}{}
	}
	var out []string
	for _, l := range NormalizeLabels(labels) {
		if _, gone := removed[l]; gone {
			continue
		}
		out = append(out, l)
	}
	for _, l := range diff.Add {
		if !HasLabel(out, l) {
			out = append(out, normalizeLabel(l))
		}
	}
	return out
}

// WorkflowLabels returns the workflow-family labels in the set.
func WorkflowLabels(labels []string) []string {
	var out []string
	for _, l := range NormalizeLabels(labels) {
		if strings.HasPrefix(l, workflowLabelPrefix) {
			out = append(out, l)
		}
	}
	return out
}

// nonTemporaryLabels strips the triage marker; trigger matching never
// considers it a signal.
func nonTemporaryLabels(labels []string) []string {
	var out []string
	for _, l := range NormalizeLabels(labels) {
		if l == LabelTriage {
			continue
		}
		out = append(out, l)
	}
	return out
}

// WorkflowLabel builds the tracker label for a workflow slug.
func WorkflowLabel(slug string) string {
	return workflowLabelPrefix + normalizeLabel(slug)
}

// SpecialistLabel builds the tracker label for a specialist slug.
func SpecialistLabel(slug string) string {
	return specialistLabelPrefix + normalizeLabel(slug)
}
