package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Deliverable is one artifact a workflow expects the downstream agent to
// produce.
type Deliverable struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
	Template string `yaml:"template"`
	PathHint string `yaml:"path_hint"`
}

// WorkflowDefinition is immutable once loaded; the catalog is reloaded as a
// whole, never patched.
type WorkflowDefinition struct {
	Name          string        `yaml:"name"`
	Slug          string        `yaml:"slug"`
	Version       string        `yaml:"version"`
	TriggerLabels []string      `yaml:"trigger_labels"`
	Keywords      []string      `yaml:"keywords"`
	Specialist    string        `yaml:"specialist"`
	Priority      float64       `yaml:"priority"`
	Deliverables  []Deliverable `yaml:"deliverables"`
	Branch        string        `yaml:"branch"`
}

// SpecialistProfile is the persona used to generate guidance text.
type SpecialistProfile struct {
	Slug          string   `yaml:"slug"`
	Persona       string   `yaml:"persona"`
	Role          string   `yaml:"role"`
	Objective     string   `yaml:"objective"`
	Deliverables  []string `yaml:"deliverables"`
	Collaboration []string `yaml:"collaboration"`
	Escalation    string   `yaml:"escalation"`
}

// MatchOutcome is the tie-break result of trigger filtering.
type MatchOutcome string

const (
	MatchSingle    MatchOutcome = "single"
	MatchNone      MatchOutcome = "no_match"
	MatchAmbiguous MatchOutcome = "ambiguous"
)

// Candidate pairs a workflow with how strongly the item triggered it.
type Candidate struct {
	Workflow *WorkflowDefinition
	Strength float64 // fraction of trigger labels present, keyword hits add partial weight
	ByLabels bool
	ByText   bool
}

// MatchResult reports the single best workflow or why there is none. The
// candidate list is attached on ambiguity so callers can ask for
// clarification rather than guess.
type MatchResult struct {
	Outcome    MatchOutcome
	Workflow   *WorkflowDefinition
	Candidates []Candidate
}

// Catalog holds loaded workflow definitions and specialist profiles. It is
// read-only after load and safely shared across workers; Reload swaps the
// whole content under a lock and keeps the previous catalog on failure.
type Catalog struct {
	dir string

	mu          sync.RWMutex
	workflows   []*WorkflowDefinition
	specialists map[string]*SpecialistProfile
	contentOn   bool
}

type catalogFile struct {
	Workflows []*WorkflowDefinition `yaml:"workflows"`
}

type specialistsFile struct {
	Specialists []*SpecialistProfile `yaml:"specialists"`
}

// LoadCatalog reads workflows.yaml and specialists.yaml from dir and
// validates them. Malformed definitions fail here, at load time, so a
// corrupt catalog never silently drops a workflow during processing.
func LoadCatalog(dir string, contentMatching bool) (*Catalog, error) {
	c := &Catalog{dir: dir, contentOn: contentMatching}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog directory. On error the previously loaded
// content stays in effect.
func (c *Catalog) Reload() error {
	workflows, specialists, err := loadCatalogDir(c.dir)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.workflows = workflows
	c.specialists = specialists
	c.mu.Unlock()
	return nil
}

func loadCatalogDir(dir string) ([]*WorkflowDefinition, map[string]*SpecialistProfile, error) {
	wfData, err := os.ReadFile(filepath.Join(dir, "workflows.yaml"))
	if err != nil {
		return nil, nil, fmt.Errorf("read workflows: %w", err)
	}
	var wf catalogFile
	if err := yaml.Unmarshal(wfData, &wf); err != nil {
		return nil, nil, fmt.Errorf("parse workflows yaml: %w", err)
	}

	spData, err := os.ReadFile(filepath.Join(dir, "specialists.yaml"))
	if err != nil {
		return nil, nil, fmt.Errorf("read specialists: %w", err)
	}
	var sp specialistsFile
	if err := yaml.Unmarshal(spData, &sp); err != nil {
		return nil, nil, fmt.Errorf("parse specialists yaml: %w", err)
	}

	specialists := make(map[string]*SpecialistProfile, len(sp.Specialists))
	for _, p := range sp.Specialists {
		slug := normalizeLabel(p.Slug)
		if slug == "" {
			return nil, nil, fmt.Errorf("specialist %q has no slug", p.Persona)
		}
		if _, dup := specialists[slug]; dup {
			return nil, nil, fmt.Errorf("duplicate specialist slug %q", slug)
		}
		specialists[slug] = p
	}

	triggerOwner := make(map[string]string)
	for _, w := range wf.Workflows {
		if strings.TrimSpace(w.Name) == "" {
			return nil, nil, fmt.Errorf("workflow with empty name in %s", dir)
		}
		if normalizeLabel(w.Slug) == "" {
			return nil, nil, fmt.Errorf("workflow %q has no slug", w.Name)
		}
		w.Slug = normalizeLabel(w.Slug)
		if len(w.TriggerLabels) == 0 {
			return nil, nil, fmt.Errorf("workflow %q has no trigger labels", w.Name)
		}
		w.TriggerLabels = NormalizeLabels(w.TriggerLabels)
		for _, t := range w.TriggerLabels {
			if owner, taken := triggerOwner[t]; taken {
				return nil, nil, fmt.Errorf("trigger label %q claimed by both %q and %q", t, owner, w.Name)
			}
			triggerOwner[t] = w.Name
		}
		spec := normalizeLabel(w.Specialist)
		if spec == "" {
			return nil, nil, fmt.Errorf("workflow %q has no specialist", w.Name)
		}
		w.Specialist = spec
		if _, ok := specialists[spec]; !ok {
			return nil, nil, fmt.Errorf("workflow %q references unknown specialist %q", w.Name, spec)
		}
		for _, d := range w.Deliverables {
			if strings.TrimSpace(d.Name) == "" {
				return nil, nil, fmt.Errorf("workflow %q has a deliverable without a name", w.Name)
			}
		}
	}
	return wf.Workflows, specialists, nil
}

// Workflows returns the loaded definitions. The slice is shared; callers
// treat it as read-only.
func (c *Catalog) Workflows() []*WorkflowDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workflows
}

// Specialist resolves a profile by slug, nil if unknown.
func (c *Catalog) Specialist(slug string) *SpecialistProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.specialists[normalizeLabel(slug)]
}

// WorkflowBySlug resolves a definition by slug, nil if unknown.
func (c *Catalog) WorkflowBySlug(slug string) *WorkflowDefinition {
	slug = normalizeLabel(slug)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, w := range c.workflows {
		if w.Slug == slug {
			return w
		}
	}
	return nil
}

// WorkflowByName resolves a definition by display name or slug, nil if
// unknown. Classifier responses name workflows either way.
func (c *Catalog) WorkflowByName(name string) *WorkflowDefinition {
	n := normalizeLabel(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, w := range c.workflows {
		if normalizeLabel(w.Name) == n || w.Slug == n {
			return w
		}
	}
	return nil
}

// FindCandidates returns every workflow the item triggers, with a match
// strength per candidate. Label triggers intersect against the item's
// non-temporary labels; keyword heuristics over title/body participate only
// when content matching is enabled.
func (c *Catalog) FindCandidates(item WorkItem) []Candidate {
	labels := nonTemporaryLabels(item.Labels)
	text := ""
	if c.contentOn {
		text = strings.ToLower(item.Title + "\n" + item.Body)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Candidate
	for _, w := range c.workflows {
		hits := 0
		for _, t := range w.TriggerLabels {
			if HasLabel(labels, t) {
				hits++
			}
		}
		byText := false
		if c.contentOn && text != "" {
			for _, kw := range w.Keywords {
				kw = normalizeLabel(kw)
				if kw != "" && strings.Contains(text, kw) {
					byText = true
					break
				}
			}
		}
		if hits == 0 && !byText {
			continue
		}
		strength := float64(hits) / float64(len(w.TriggerLabels))
		if byText && strength < 0.5 {
			// Keyword-only hits are a weaker signal than explicit labels.
			strength = 0.5
		}
		out = append(out, Candidate{Workflow: w, Strength: strength, ByLabels: hits > 0, ByText: byText})
	}
	return out
}

// Match applies the tie-break policy over FindCandidates: exactly one
// candidate is the match, zero is no_match, more than one is ambiguous with
// the full list attached.
func (c *Catalog) Match(item WorkItem) MatchResult {
	candidates := c.FindCandidates(item)
	switch len(candidates) {
	case 0:
		return MatchResult{Outcome: MatchNone}
	case 1:
		return MatchResult{Outcome: MatchSingle, Workflow: candidates[0].Workflow, Candidates: candidates}
	default:
		return MatchResult{Outcome: MatchAmbiguous, Candidates: candidates}
	}
}
