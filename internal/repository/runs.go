package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"stmtpipe/constants"
	"stmtpipe/internal/common"
	"stmtpipe/internal/entity"
)

const runsSchema = `
CREATE TABLE IF NOT EXISTS processing_runs (
	id                TEXT PRIMARY KEY,
	client_name       TEXT NOT NULL,
	stage             TEXT NOT NULL,
	input_items       TEXT NOT NULL,
	started_at        TEXT NOT NULL,
	last_updated_at   TEXT NOT NULL,
	finished_at       TEXT,
	terminal_error    TEXT NOT NULL DEFAULT '',
	extraction_result TEXT,
	published_id      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_processing_runs_started_at ON processing_runs (started_at DESC);
`

// Open opens the run archive database and applies the schema.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("opening run archive", "dsn", dsn)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open run archive: %w", err)
	}
	if _, err := db.ExecContext(ctx, runsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply run archive schema: %w", err)
	}
	return db, nil
}

type RunRepository interface {
	SaveRun(ctx context.Context, r *entity.ProcessingRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*entity.ProcessingRun, error)
	ListRuns(ctx context.Context, limit int) ([]*entity.ProcessingRun, error)
}

type runRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewRunRepository(db *sql.DB, log *slog.Logger) RunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &runRepo{db: db, log: log}
}

// SaveRun upserts the run row; re-archiving a run after a resume overwrites
// the earlier terminal snapshot.
func (r *runRepo) SaveRun(ctx context.Context, pr *entity.ProcessingRun) error {
	if pr == nil {
		return fmt.Errorf("save run: %w", common.ErrInvalidInput)
	}
	items, err := json.Marshal(pr.InputItems)
	if err != nil {
		return fmt.Errorf("save run %s: encode input items: %w", pr.ID, err)
	}
	var result []byte
	if pr.ExtractionResult != nil {
		result, err = json.Marshal(pr.ExtractionResult)
		if err != nil {
			return fmt.Errorf("save run %s: encode extraction result: %w", pr.ID, err)
		}
	}
	var finished sql.NullString
	if pr.FinishedAt != nil {
		finished = sql.NullString{String: pr.FinishedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO processing_runs
			(id, client_name, stage, input_items, started_at, last_updated_at, finished_at, terminal_error, extraction_result, published_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage = excluded.stage,
			last_updated_at = excluded.last_updated_at,
			finished_at = excluded.finished_at,
			terminal_error = excluded.terminal_error,
			extraction_result = excluded.extraction_result,
			published_id = excluded.published_id`,
		pr.ID.String(), pr.ClientName, string(pr.Stage), string(items),
		pr.StartedAt.UTC().Format(time.RFC3339Nano),
		pr.LastUpdatedAt.UTC().Format(time.RFC3339Nano),
		finished, pr.TerminalError, nullableBytes(result), pr.PublishedID)
	if err != nil {
		r.log.Error("run archive save failed", "run_id", pr.ID, "err", err)
		return fmt.Errorf("save run %s: %w", pr.ID, err)
	}
	r.log.Info("run archived", "run_id", pr.ID, "stage", pr.Stage)
	return nil
}

func (r *runRepo) GetRun(ctx context.Context, id uuid.UUID) (*entity.ProcessingRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, client_name, stage, input_items, started_at, last_updated_at, finished_at, terminal_error, extraction_result, published_id
		FROM processing_runs WHERE id = ?`, id.String())
	pr, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return pr, nil
}

func (r *runRepo) ListRuns(ctx context.Context, limit int) ([]*entity.ProcessingRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, client_name, stage, input_items, started_at, last_updated_at, finished_at, terminal_error, extraction_result, published_id
		FROM processing_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*entity.ProcessingRun
	for rows.Next() {
		pr, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, pr)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*entity.ProcessingRun, error) {
	var (
		idStr, clientName, stage, items string
		startedAt, lastUpdatedAt        string
		finishedAt, result              sql.NullString
		terminalError, publishedID      string
	)
	if err := row.Scan(&idStr, &clientName, &stage, &items, &startedAt, &lastUpdatedAt, &finishedAt, &terminalError, &result, &publishedID); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", idStr, err)
	}
	pr := &entity.ProcessingRun{
		ID:            id,
		ClientName:    clientName,
		Stage:         constants.RunStage(stage),
		TerminalError: terminalError,
		PublishedID:   publishedID,
	}
	if err := json.Unmarshal([]byte(items), &pr.InputItems); err != nil {
		return nil, fmt.Errorf("decode input items: %w", err)
	}
	if pr.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if pr.LastUpdatedAt, err = time.Parse(time.RFC3339Nano, lastUpdatedAt); err != nil {
		return nil, fmt.Errorf("parse last_updated_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		pr.FinishedAt = &t
	}
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &pr.ExtractionResult); err != nil {
			return nil, fmt.Errorf("decode extraction result: %w", err)
		}
	}
	return pr, nil
}

func nullableBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
