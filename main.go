package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/slack-go/slack"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: triagebot <classify|process|hint|overdue|serve> [flags]")
		os.Exit(2)
	}

	cfg := LoadConfig()
	appliedTimeout := ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf("Config loaded. Repo=%s Provider=%s Concurrency=%d SLAHours=%d ContentMatching=%t ExternalHTTPTimeout=%s",
		cfg.GitHubRepo, cfg.LLMProvider, cfg.Concurrency, cfg.SLAHours, cfg.ContentMatching, appliedTimeout)

	catalog, err := LoadCatalog(cfg.CatalogDir, cfg.ContentMatching)
	if err != nil {
		log.Fatalf("Failed to load catalog from %s: %v", cfg.CatalogDir, err)
	}
	log.Printf("Catalog loaded workflows=%d dir=%s", len(catalog.Workflows()), cfg.CatalogDir)

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	orch := &Orchestrator{
		Tracker:    &GitHubTracker{Token: cfg.GitHubToken, Repo: cfg.GitHubRepo},
		Catalog:    catalog,
		Fallback:   RuleClassifier{},
		DB:         db,
		Weights:    cfg.Weights(),
		Thresholds: cfg.Thresholds(),
	}
	if cfg.LLMProvider != "none" {
		hints, err := LoadClassifierHints(hintsPath(cfg))
		if err != nil {
			log.Fatalf("Failed to load classifier hints: %v", err)
		}
		orch.AI = &AIClassifier{
			Provider:        cfg.LLMProvider,
			Model:           cfg.LLMModel,
			AnthropicAPIKey: cfg.AnthropicAPIKey,
			OpenAIAPIKey:    cfg.OpenAIAPIKey,
			Hints:           hints,
		}
	}

	switch os.Args[1] {
	case "classify":
		runClassify(cfg, orch, os.Args[2:])
	case "process":
		runProcess(cfg, orch, os.Args[2:])
	case "overdue":
		runOverdue(orch)
	case "hint":
		runHint(cfg, os.Args[2:])
	case "serve":
		runServe(cfg, orch)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\nusage: triagebot <classify|process|hint|overdue|serve> [flags]\n", os.Args[1])
		os.Exit(2)
	}
}

func batchOptions(cfg Config, dryRun bool) BatchOptions {
	return BatchOptions{
		Concurrency:  cfg.Concurrency,
		DryRun:       dryRun,
		ItemTimeout:  cfg.ItemTimeout(),
		SLAWindow:    cfg.SLAWindow(),
		CopilotActor: cfg.CopilotActor,
	}
}

// runClassify pushes a bounded number of triage items (or one explicit
// issue) through the pipeline.
func runClassify(cfg Config, orch *Orchestrator, args []string) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	issue := fs.Int64("issue", 0, "classify a single issue by number")
	limit := fs.Int("limit", 10, "maximum triage items to classify")
	dryRun := fs.Bool("dry-run", false, "compute everything, mutate nothing")
	verbose := fs.Bool("verbose", false, "print rendered sections per item")
	stats := fs.Bool("stats", false, "print aggregate metrics")
	jsonOut := fs.Bool("json", false, "emit results as JSON")
	fs.Parse(args)

	ctx := context.Background()
	var items []WorkItem
	var err error
	if *issue > 0 {
		var item WorkItem
		item, err = orch.Tracker.Get(ctx, *issue)
		items = []WorkItem{item}
	} else {
		items, err = orch.Tracker.ListByLabel(ctx, LabelTriage, *limit)
	}
	if err != nil {
		log.Fatalf("Failed to fetch work items: %v", err)
	}

	result := orch.ProcessBatch(ctx, items, batchOptions(cfg, *dryRun))
	printResults(result, *verbose, *stats, *jsonOut)
}

// runProcess runs one full batch pass over everything in triage.
func runProcess(cfg Config, orch *Orchestrator, args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	batchSize := fs.Int("batch-size", 0, "maximum items per pass (0 = all)")
	dryRun := fs.Bool("dry-run", false, "compute everything, mutate nothing")
	continueOnError := fs.Bool("continue-on-error", true, "keep dispatching after item failures")
	jsonOut := fs.Bool("json", false, "emit results as JSON")
	fs.Parse(args)

	ctx := context.Background()
	items, err := orch.Tracker.ListByLabel(ctx, LabelTriage, *batchSize)
	if err != nil {
		log.Fatalf("Failed to list triage items: %v", err)
	}

	opts := batchOptions(cfg, *dryRun)
	opts.StopOnError = !*continueOnError
	result := orch.ProcessBatch(ctx, items, opts)
	printResults(result, false, true, *jsonOut)
	if result.Metrics.Failed > 0 {
		os.Exit(1)
	}
}

func hintsPath(cfg Config) string {
	return filepath.Join(cfg.CatalogDir, "hints.yaml")
}

// runHint records a phrase-to-workflow routing hint, typically after a human
// resolved a clarification and wants the next similar item classified right.
func runHint(cfg Config, args []string) {
	fs := flag.NewFlagSet("hint", flag.ExitOnError)
	phrase := fs.String("phrase", "", "phrase that identifies this kind of item")
	workflow := fs.String("workflow", "", "workflow slug the phrase should route to")
	fs.Parse(args)

	if err := AppendClassifierHint(hintsPath(cfg), *phrase, *workflow); err != nil {
		log.Fatalf("Failed to record hint: %v", err)
	}
	fmt.Printf("hint recorded: %q -> %s\n", *phrase, *workflow)
}

// runOverdue prints handed-off items whose assignment window has lapsed.
func runOverdue(orch *Orchestrator) {
	overdue, err := FindOverdueHandoffs(context.Background(), orch.Tracker, time.Now())
	if err != nil {
		log.Fatalf("Failed to check overdue handoffs: %v", err)
	}
	if len(overdue) == 0 {
		fmt.Println("no handoffs past due")
		return
	}
	fmt.Println(FormatOverdueReminder(overdue, time.Now()))
}

// runServe blocks on the cron scheduler until interrupted.
func runServe(cfg Config, orch *Orchestrator) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var api *slack.Client
	if cfg.SlackBotToken != "" {
		api = slack.New(cfg.SlackBotToken)
	}

	log.Println("Starting triagebot scheduler...")
	StartBatchScheduler(ctx, cfg, orch, api)

	<-ctx.Done()
	log.Println("Shutting down")
}

func printResults(result BatchResult, verbose, stats, jsonOut bool) {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.Fatalf("Failed to encode results: %v", err)
		}
		return
	}

	for _, res := range result.Results {
		line := fmt.Sprintf("item=%d status=%s", res.ItemID, res.Status)
		if res.Workflow != "" {
			line += fmt.Sprintf(" workflow=%s action=%s confidence=%.2f variant=%s", res.Workflow, res.Action, res.Confidence, res.Variant)
		}
		if res.Reason != "" {
			line += " reason=" + res.Reason
		}
		fmt.Println(line)
		if verbose {
			for _, heading := range []string{HeadingAssessment, HeadingGuidance, HeadingHandoff} {
				if content, ok := res.Sections[heading]; ok {
					fmt.Printf("\n%s\n\n%s\n", heading, content)
				}
			}
		}
	}
	if stats {
		fmt.Println(FormatBatchSummary(result.Metrics))
	}
}
