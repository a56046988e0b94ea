package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"heroesprofile-filter/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type HistoryRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewHistoryRepository(sqlDB *sql.DB, logger zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *HistoryRepository) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fetch_runs (id, started_at, status) VALUES (?, ?, ?)`,
		runID, startedAt.UTC(), domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", runID, err)
	}
	return nil
}

func (r *HistoryRepository) FinishRun(ctx context.Context, runID string, finishedAt time.Time, status, errMsg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE fetch_runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		finishedAt.UTC(), status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

func (r *HistoryRepository) RecordCategory(ctx context.Context, runID string, result domain.CategoryResult) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate nanoid: %w", err)
	}

	var errMsg string
	if result.Err != nil {
		errMsg = result.Err.Error()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO category_results
			(id, run_id, battletag, category, listed, cached, fetched, failed_replay_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, runID, result.BattleTag, result.Category.Key(),
		result.Listed, result.Cached, result.Fetched,
		result.FailedReplayID, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record %s/%s: %w", result.BattleTag, result.Category.Key(), err)
	}
	return nil
}

// ListRuns returns the latest runs, newest first, with their category
// results in insertion order.
func (r *HistoryRepository) ListRuns(ctx context.Context, limit int) ([]domain.FetchRun, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, error
		FROM fetch_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.FetchRun
	for rows.Next() {
		var run domain.FetchRun
		var finishedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.StartedAt, &finishedAt, &run.Status, &run.Error); err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// single connection pool: release it before the nested queries
	rows.Close()

	for i := range runs {
		results, err := r.getResultsByRunID(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Results = results
	}
	return runs, nil
}

func (r *HistoryRepository) getResultsByRunID(ctx context.Context, runID string) ([]domain.CategoryRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, run_id, battletag, category, listed, cached, fetched, failed_replay_id, error, created_at
		FROM category_results
		WHERE run_id = ?
		ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.CategoryRecord
	for rows.Next() {
		var rec domain.CategoryRecord
		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.BattleTag, &rec.Category,
			&rec.Listed, &rec.Cached, &rec.Fetched,
			&rec.FailedReplayID, &rec.Error, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}
