package main

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS assignment_history (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id     INTEGER NOT NULL,
		workflow    TEXT NOT NULL,
		action      TEXT NOT NULL,
		confidence  REAL NOT NULL,
		variant     TEXT DEFAULT '',
		status      TEXT NOT NULL,
		outcome     TEXT DEFAULT '',
		decided_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_ah_item ON assignment_history(item_id);
	CREATE INDEX IF NOT EXISTS idx_ah_workflow ON assignment_history(workflow);

	CREATE TABLE IF NOT EXISTS batch_runs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		processed   INTEGER NOT NULL,
		succeeded   INTEGER NOT NULL,
		failed      INTEGER NOT NULL,
		skipped     INTEGER NOT NULL,
		handoffs    INTEGER NOT NULL,
		dry_run     INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL,
		tokens_in   INTEGER NOT NULL DEFAULT 0,
		tokens_out  INTEGER NOT NULL DEFAULT 0,
		started_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// RecordDecision appends one pipeline outcome to the assignment history.
// Preview results are recorded too; they carry status=preview so the
// success-rate query can leave them out.
func RecordDecision(db *sql.DB, res ProcessingResult) error {
	_, err := db.Exec(`
		INSERT INTO assignment_history (item_id, workflow, action, confidence, variant, status, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ItemID, res.Workflow, string(res.Action), res.Confidence, res.Variant, string(res.Status), time.Now().UTC(),
	)
	return err
}

// RecordOutcome marks how a previously handed-off item ended up
// ("completed" or "failed"), feeding the historical-success signal.
func RecordOutcome(db *sql.DB, itemID int64, outcome string) error {
	_, err := db.Exec(`
		UPDATE assignment_history SET outcome = ?
		WHERE id = (SELECT MAX(id) FROM assignment_history WHERE item_id = ?)`,
		outcome, itemID,
	)
	return err
}

// HistoricalSuccessScore returns the fraction of recorded handoffs for a
// workflow that completed, in [0,1]. With no recorded outcomes it returns a
// neutral 0.5 so new workflows are neither favored nor penalized.
func HistoricalSuccessScore(db *sql.DB, workflow string) float64 {
	if db == nil {
		return 0.5
	}
	var completed, failed int
	err := db.QueryRow(`
		SELECT
			COUNT(CASE WHEN outcome = 'completed' THEN 1 END),
			COUNT(CASE WHEN outcome = 'failed' THEN 1 END)
		FROM assignment_history
		WHERE workflow = ? AND status = ?`,
		workflow, string(StatusSuccess),
	).Scan(&completed, &failed)
	if err != nil || completed+failed == 0 {
		return 0.5
	}
	return float64(completed) / float64(completed+failed)
}

// RecordBatchRun persists one batch pass summary for SLA dashboards.
func RecordBatchRun(db *sql.DB, m BatchMetrics, dryRun bool) error {
	dry := 0
	if dryRun {
		dry = 1
	}
	_, err := db.Exec(`
		INSERT INTO batch_runs (processed, succeeded, failed, skipped, handoffs, dry_run, duration_ms, tokens_in, tokens_out, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Processed, m.Succeeded, m.Failed, m.Skipped, m.Handoffs, dry,
		m.Duration.Milliseconds(), m.Usage.InputTokens, m.Usage.OutputTokens,
		time.Now().UTC().Add(-m.Duration),
	)
	return err
}
