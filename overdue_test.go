package main

import (
	"context"
	"strings"
	"testing"
	"time"
)

func handoffBody(due string) string {
	return UpsertSection("Report body.", HeadingHandoff, "Due: "+due+"\n\nAcceptance criteria:\n1. Indicator report delivered")
}

func TestParseDueDate(t *testing.T) {
	due, ok := parseDueDate(handoffBody("2026-03-04T09:00:00Z"))
	if !ok {
		t.Fatal("expected a due date")
	}
	want := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("due = %s, want %s", due, want)
	}

	if _, ok := parseDueDate("no sections here"); ok {
		t.Fatal("body without a handoff section must not yield a due date")
	}
	if _, ok := parseDueDate(handoffBody("next tuesday")); ok {
		t.Fatal("malformed due line must not yield a due date")
	}
}

func TestFindOverdueHandoffs(t *testing.T) {
	now := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)
	tracker := newFakeTracker()
	tracker.listed = []WorkItem{
		{
			ID:     1,
			Title:  "Lapsed phishing report",
			Body:   handoffBody("2026-03-04T09:00:00Z"),
			Labels: []string{"state::copilot", "workflow::phishing-analysis"},
		},
		{
			ID:     2,
			Title:  "Still inside the window",
			Body:   handoffBody("2026-03-08T09:00:00Z"),
			Labels: []string{"state::copilot", "workflow::vuln-intake"},
		},
		{
			ID:     3,
			Title:  "Even later lapse",
			Body:   handoffBody("2026-03-01T09:00:00Z"),
			Labels: []string{"state::copilot"},
		},
		{
			ID:     4,
			Title:  "No handoff section",
			Body:   "plain body",
			Labels: []string{"state::copilot"},
		},
	}

	overdue, err := FindOverdueHandoffs(context.Background(), tracker, now)
	if err != nil {
		t.Fatalf("FindOverdueHandoffs failed: %v", err)
	}
	if len(overdue) != 2 {
		t.Fatalf("overdue = %d, want 2", len(overdue))
	}
	// Earliest due first.
	if overdue[0].Item.ID != 3 || overdue[1].Item.ID != 1 {
		t.Fatalf("order = %d, %d", overdue[0].Item.ID, overdue[1].Item.ID)
	}
	if overdue[1].Workflow != "phishing-analysis" {
		t.Fatalf("workflow = %q", overdue[1].Workflow)
	}
}

func TestFormatOverdueReminder(t *testing.T) {
	now := time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)
	msg := FormatOverdueReminder([]OverdueHandoff{
		{
			Item:     WorkItem{ID: 1, Title: "Lapsed phishing report"},
			Workflow: "phishing-analysis",
			Due:      time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
		},
	}, now)

	if !strings.HasPrefix(msg, "1 handoff(s) past due:") {
		t.Fatalf("msg = %q", msg)
	}
	if !strings.Contains(msg, "#1 Lapsed phishing report [phishing-analysis]") {
		t.Fatalf("msg = %q", msg)
	}
	if !strings.Contains(msg, "overdue by 48h0m0s") {
		t.Fatalf("msg = %q", msg)
	}
}
