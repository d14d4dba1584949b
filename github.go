package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExternalMutation marks a failed label/body/assignee write against the
// tracker. Mutations are retried once with backoff before this surfaces as
// an item-level error.
var ErrExternalMutation = errors.New("external mutation failed")

// IssueTracker is the wire contract with the external issue store. The
// orchestrator never mutates labels or bodies directly; everything goes
// through here so dry runs can swap in a no-op implementation.
type IssueTracker interface {
	Get(ctx context.Context, id int64) (WorkItem, error)
	ListByLabel(ctx context.Context, label string, limit int) ([]WorkItem, error)
	UpdateLabels(ctx context.Context, id int64, add, remove []string) error
	UpdateBody(ctx context.Context, id int64, body string) error
	Assign(ctx context.Context, id int64, actor string) error
}

// GitHubTracker talks to the GitHub Issues REST API for a single repository.
type GitHubTracker struct {
	Token   string
	Repo    string // "owner/name"
	BaseURL string // overridden in tests
}

func (g *GitHubTracker) baseURL() string {
	if g.BaseURL != "" {
		return strings.TrimRight(g.BaseURL, "/")
	}
	return "https://api.github.com"
}

type githubIssue struct {
	Number   int64         `json:"number"`
	Title    string        `json:"title"`
	Body     string        `json:"body"`
	Labels   []githubLabel `json:"labels"`
	Assignee *githubUser   `json:"assignee"`
}

type githubLabel struct {
	Name string `json:"name"`
}

type githubUser struct {
	Login string `json:"login"`
}

type githubSearchResponse struct {
	TotalCount int           `json:"total_count"`
	Items      []githubIssue `json:"items"`
}

func convertGitHubIssue(issue githubIssue) WorkItem {
	var labels []string
	for _, l := range issue.Labels {
		labels = append(labels, l.Name)
	}
	assignee := ""
	if issue.Assignee != nil {
		assignee = issue.Assignee.Login
	}
	return WorkItem{
		ID:       issue.Number,
		Title:    issue.Title,
		Body:     issue.Body,
		Labels:   NormalizeLabels(labels),
		Assignee: assignee,
	}
}

func (g *GitHubTracker) Get(ctx context.Context, id int64) (WorkItem, error) {
	var issue githubIssue
	path := fmt.Sprintf("/repos/%s/issues/%d", g.Repo, id)
	if err := g.doJSON(ctx, "GET", path, nil, &issue); err != nil {
		return WorkItem{}, fmt.Errorf("fetching issue %d: %w", id, err)
	}
	return convertGitHubIssue(issue), nil
}

// ListByLabel searches open issues carrying the given label, newest first,
// paging until limit (0 means no cap).
func (g *GitHubTracker) ListByLabel(ctx context.Context, label string, limit int) ([]WorkItem, error) {
	query := fmt.Sprintf(`repo:%s is:issue is:open label:"%s"`, g.Repo, normalizeLabel(label))
	log.Printf("tracker list query=%s limit=%d", query, limit)

	var items []WorkItem
	page := 1
	for {
		path := fmt.Sprintf("/search/issues?q=%s&sort=created&order=desc&per_page=100&page=%d",
			url.QueryEscape(query), page)
		var result githubSearchResponse
		if err := g.doJSON(ctx, "GET", path, nil, &result); err != nil {
			return nil, fmt.Errorf("searching %q issues: %w", label, err)
		}
		for _, issue := range result.Items {
			items = append(items, convertGitHubIssue(issue))
			if limit > 0 && len(items) >= limit {
				return items, nil
			}
		}
		if len(result.Items) < 100 {
			break
		}
		page++
	}
	log.Printf("tracker list done label=%s total=%d", label, len(items))
	return items, nil
}

func (g *GitHubTracker) UpdateLabels(ctx context.Context, id int64, add, remove []string) error {
	add = NormalizeLabels(add)
	remove = NormalizeLabels(remove)
	return g.mutate(ctx, fmt.Sprintf("labels issue=%d add=%d remove=%d", id, len(add), len(remove)), func() error {
		if len(add) > 0 {
			path := fmt.Sprintf("/repos/%s/issues/%d/labels", g.Repo, id)
			payload := map[string][]string{"labels": add}
			if err := g.doJSON(ctx, "POST", path, payload, nil); err != nil {
				return err
			}
		}
		for _, label := range remove {
			path := fmt.Sprintf("/repos/%s/issues/%d/labels/%s", g.Repo, id, url.PathEscape(label))
			if err := g.doJSON(ctx, "DELETE", path, nil, nil); err != nil {
				// Removing an already-absent label is not a failure.
				if strings.Contains(err.Error(), "404") {
					continue
				}
				return err
			}
		}
		return nil
	})
}

func (g *GitHubTracker) UpdateBody(ctx context.Context, id int64, body string) error {
	return g.mutate(ctx, fmt.Sprintf("body issue=%d bytes=%d", id, len(body)), func() error {
		path := fmt.Sprintf("/repos/%s/issues/%d", g.Repo, id)
		return g.doJSON(ctx, "PATCH", path, map[string]string{"body": body}, nil)
	})
}

func (g *GitHubTracker) Assign(ctx context.Context, id int64, actor string) error {
	return g.mutate(ctx, fmt.Sprintf("assign issue=%d actor=%s", id, actor), func() error {
		path := fmt.Sprintf("/repos/%s/issues/%d/assignees", g.Repo, id)
		return g.doJSON(ctx, "POST", path, map[string][]string{"assignees": {actor}}, nil)
	})
}

// mutationRetryMaxElapsed bounds the single retry window for tracker writes.
const mutationRetryMaxElapsed = 10 * time.Second

// mutate runs a tracker write with one backoff retry, then wraps the failure
// in ErrExternalMutation for the orchestrator to record.
func (g *GitHubTracker) mutate(ctx context.Context, desc string, op func() error) error {
	// BackOff implementations are stateful; always build a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = mutationRetryMaxElapsed
	err := backoff.Retry(func() error {
		if err := op(); err != nil {
			log.Printf("tracker mutation retrying %s err=%v", desc, err)
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 1), ctx))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrExternalMutation, desc, err)
	}
	return nil
}

func (g *GitHubTracker) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL()+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}
