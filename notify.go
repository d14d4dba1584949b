package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// FormatBatchSummary renders one batch's metrics as a single-line summary
// for logs and channel posts.
func FormatBatchSummary(m BatchMetrics) string {
	if m.Processed == 0 {
		return "no items processed"
	}
	parts := []string{fmt.Sprintf("%d processed", m.Processed)}
	if m.Succeeded > 0 {
		parts = append(parts, fmt.Sprintf("%d succeeded", m.Succeeded))
	}
	if m.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", m.Failed))
	}
	if m.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", m.Skipped))
	}
	msg := strings.Join(parts, ", ")
	if m.Handoffs > 0 {
		msg += fmt.Sprintf("; %d handed off, earliest due %s", m.Handoffs, m.EarliestDue.Format(time.RFC3339))
	}
	if m.Usage.TotalTokens() > 0 {
		msg += fmt.Sprintf(" (tokens in=%d out=%d)", m.Usage.InputTokens, m.Usage.OutputTokens)
	}
	return msg
}

// PostBatchSummary posts the summary to the configured channel. Posting is
// best-effort; a failed post never fails the batch.
func PostBatchSummary(api *slack.Client, channelID string, m BatchMetrics) {
	msg := fmt.Sprintf("Triage batch complete: %s", FormatBatchSummary(m))
	_, _, err := api.PostMessage(channelID, slack.MsgOptionText(msg, false))
	if err != nil {
		log.Printf("Batch summary post error: %v", err)
	} else {
		log.Printf("Batch summary posted channel=%s", channelID)
	}
}
