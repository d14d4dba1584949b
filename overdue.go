package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// OverdueHandoff is a handed-off item whose assignment window has lapsed
// without the item reaching done.
type OverdueHandoff struct {
	Item     WorkItem
	Workflow string
	Due      time.Time
}

// dueLinePrefix matches the due line rendered into the handoff section.
const dueLinePrefix = "Due: "

// parseDueDate extracts the due date from an item's handoff section. False
// when the section or its due line is absent or unparseable.
func parseDueDate(body string) (time.Time, bool) {
	content, ok := SectionContent(body, HeadingHandoff)
	if !ok {
		return time.Time{}, false
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, dueLinePrefix) {
			continue
		}
		due, err := time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(line, dueLinePrefix)))
		if err != nil {
			return time.Time{}, false
		}
		return due, true
	}
	return time.Time{}, false
}

// FindOverdueHandoffs lists copilot-state items whose due date has passed,
// earliest first. Items with no parseable due date are logged and skipped
// rather than guessed at.
func FindOverdueHandoffs(ctx context.Context, tracker IssueTracker, now time.Time) ([]OverdueHandoff, error) {
	items, err := tracker.ListByLabel(ctx, LabelStateCopilot, 0)
	if err != nil {
		return nil, fmt.Errorf("listing handed-off items: %w", err)
	}

	var overdue []OverdueHandoff
	for _, item := range items {
		due, ok := parseDueDate(item.Body)
		if !ok {
			log.Printf("overdue check item=%d has no parseable due date, skipping", item.ID)
			continue
		}
		if !due.Before(now) {
			continue
		}
		workflow := ""
		if wls := WorkflowLabels(item.Labels); len(wls) > 0 {
			workflow = strings.TrimPrefix(wls[0], workflowLabelPrefix)
		}
		overdue = append(overdue, OverdueHandoff{Item: item, Workflow: workflow, Due: due})
	}
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].Due.Before(overdue[j].Due) })
	return overdue, nil
}

// FormatOverdueReminder renders the overdue list as a channel message.
func FormatOverdueReminder(overdue []OverdueHandoff, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d handoff(s) past due:\n", len(overdue))
	for _, o := range overdue {
		line := fmt.Sprintf("- #%d %s", o.Item.ID, o.Item.Title)
		if o.Workflow != "" {
			line += fmt.Sprintf(" [%s]", o.Workflow)
		}
		line += fmt.Sprintf(" — due %s, overdue by %s", o.Due.Format(time.RFC3339), now.Sub(o.Due).Round(time.Hour))
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// CheckOverdueHandoffs scans for lapsed handoffs and posts a reminder to the
// configured channel. Best-effort: failures are logged, never propagated, so
// a broken reminder cannot stall scheduled batches.
func CheckOverdueHandoffs(ctx context.Context, tracker IssueTracker, api *slack.Client, channelID string, now time.Time) {
	overdue, err := FindOverdueHandoffs(ctx, tracker, now)
	if err != nil {
		log.Printf("Overdue check error: %v", err)
		return
	}
	if len(overdue) == 0 {
		log.Println("Overdue check: nothing past due")
		return
	}
	msg := FormatOverdueReminder(overdue, now)
	log.Printf("Overdue check: %s", strings.ReplaceAll(msg, "\n", " | "))

	if api == nil || channelID == "" {
		return
	}
	if _, _, err := api.PostMessage(channelID, slack.MsgOptionText(msg, false)); err != nil {
		log.Printf("Overdue reminder post error: %v", err)
	} else {
		log.Printf("Overdue reminder posted channel=%s count=%d", channelID, len(overdue))
	}
}
