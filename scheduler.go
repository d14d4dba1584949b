package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

// StartBatchScheduler runs unattended batch passes on a cron schedule.
// The schedule is a standard 5-field cron expression (minute hour
// day-of-month month day-of-week). Examples: "0 9 * * *" (daily 9am),
// "*/30 * * * *" (every 30 minutes).
func StartBatchScheduler(ctx context.Context, cfg Config, orch *Orchestrator, api *slack.Client) {
	schedule := strings.TrimSpace(cfg.BatchSchedule)
	if schedule == "" {
		log.Println("Scheduled batches disabled (batch_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid batch_schedule '%s': %v — scheduled batches disabled", schedule, err)
		return
	}

	log.Printf("Batch runs scheduled (cron: %s) repo=%s concurrency=%d", schedule, cfg.GitHubRepo, cfg.Concurrency)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next batch at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			select {
			case <-ctx.Done():
				log.Println("Batch scheduler stopped")
				return
			case <-time.After(wait):
			}

			result, runErr := RunTriageBatch(ctx, cfg, orch, BatchOptions{
				Concurrency:  cfg.Concurrency,
				ItemTimeout:  cfg.ItemTimeout(),
				SLAWindow:    cfg.SLAWindow(),
				CopilotActor: cfg.CopilotActor,
			})
			if runErr != nil {
				log.Printf("Scheduled batch error: %v", runErr)
				continue
			}
			summary := FormatBatchSummary(result.Metrics)
			log.Printf("Scheduled batch complete: %s", summary)

			if api != nil && cfg.SlackChannelID != "" {
				PostBatchSummary(api, cfg.SlackChannelID, result.Metrics)
			}

			CheckOverdueHandoffs(ctx, orch.Tracker, api, cfg.SlackChannelID, time.Now())
		}
	}()
}

// RunTriageBatch lists triage-labeled items from the tracker and pushes
// them through one orchestrator pass.
func RunTriageBatch(ctx context.Context, cfg Config, orch *Orchestrator, opts BatchOptions) (BatchResult, error) {
	items, err := orch.Tracker.ListByLabel(ctx, LabelTriage, 0)
	if err != nil {
		return BatchResult{}, err
	}
	if len(items) == 0 {
		log.Println("Batch: no triage items found")
		return BatchResult{}, nil
	}
	return orch.ProcessBatch(ctx, items, opts), nil
}
