package migrate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"servicehub/internal/identity"
	"servicehub/pkg/database"
	"servicehub/pkg/models"
)

// LedgerRepo persists migration runs and their per-entry ledger.
type LedgerRepo struct {
	DB *sql.DB
}

func NewLedgerRepo(db *sql.DB) *LedgerRepo {
	return &LedgerRepo{DB: db}
}

func (r *LedgerRepo) SaveRun(ctx context.Context, run Run) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return database.Unavailable("begin save run", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO migration_runs
		  (id, language, dry_run, kept, removed, changed, persisted, operator, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Language, run.DryRun, run.Kept, run.Removed, run.Changed,
		run.Persisted, run.Operator, run.StartedAt, run.FinishedAt)
	if err != nil {
		return database.Unavailable("insert migration run", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO migration_ledger
		  (run_id, seq, action, reason, category_id, entry_name, changed, inconsistent, before_json, after_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return database.Unavailable("prepare ledger insert", err)
	}
	defer stmt.Close()

	for _, item := range run.Ledger {
		before, err := entryJSON(item.Before)
		if err != nil {
			return err
		}
		after, err := entryJSON(item.After)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, run.ID, item.Seq, string(item.Action), string(item.Reason),
			item.CategoryID, item.EntryName, item.Changed, item.Inconsistent, before, after); err != nil {
			return database.Unavailable("insert ledger entry", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return database.Unavailable("commit migration run", err)
	}
	return nil
}

// GetRun loads a run with its ledger. (nil, nil) when the id is unknown.
func (r *LedgerRepo) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(r.DB.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM migration_runs
		WHERE id = ?
	`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, database.Unavailable("get migration run", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT seq, action, reason, category_id, entry_name, changed, inconsistent, before_json, after_json
		FROM migration_ledger
		WHERE run_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, database.Unavailable("list ledger", err)
	}
	defer rows.Close()

	run.Ledger = []LedgerEntry{}
	for rows.Next() {
		var (
			item          LedgerEntry
			action        string
			reason        string
			before, after sql.NullString
		)
		if err := rows.Scan(&item.Seq, &action, &reason, &item.CategoryID, &item.EntryName,
			&item.Changed, &item.Inconsistent, &before, &after); err != nil {
			return nil, database.Unavailable("scan ledger entry", err)
		}
		item.Action = Action(action)
		item.Reason = identity.MatchResult(reason)
		if item.Before, err = parseEntry(before); err != nil {
			return nil, err
		}
		if item.After, err = parseEntry(after); err != nil {
			return nil, err
		}
		run.Ledger = append(run.Ledger, item)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("list ledger", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs for language without their ledgers.
func (r *LedgerRepo) ListRuns(ctx context.Context, language string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM migration_runs
		WHERE language = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, language, limit)
	if err != nil {
		return nil, database.Unavailable("list migration runs", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, database.Unavailable("scan migration run", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("list migration runs", err)
	}
	return out, nil
}

const runColumns = `id, language, dry_run, kept, removed, changed, persisted, operator, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	if err := s.Scan(&run.ID, &run.Language, &run.DryRun, &run.Kept, &run.Removed, &run.Changed,
		&run.Persisted, &run.Operator, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

func entryJSON(e *models.CatalogEntry) (any, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger entry: %w", err)
	}
	return string(b), nil
}

func parseEntry(s sql.NullString) (*models.CatalogEntry, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var e models.CatalogEntry
	if err := json.Unmarshal([]byte(s.String), &e); err != nil {
		return nil, fmt.Errorf("decode ledger entry: %w", err)
	}
	return &e, nil
}
