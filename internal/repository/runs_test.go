package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stmtpipe/constants"
	"stmtpipe/internal/common"
	"stmtpipe/internal/entity"
)

func newTestRepo(t *testing.T) RunRepository {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(context.Background(), dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRunRepository(db, nil)
}

func sampleRun() *entity.ProcessingRun {
	started := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(4 * time.Minute)
	return &entity.ProcessingRun{
		ID:            uuid.New(),
		ClientName:    "acme",
		Stage:         constants.StageComplete,
		InputItems:    []string{"a.pdf", "b.pdf"},
		StartedAt:     started,
		LastUpdatedAt: finished,
		FinishedAt:    &finished,
		ExtractionResult: map[string][]string{
			"a.pdf": {"s1", "s2"},
			"b.pdf": {"s3"},
		},
		PublishedID: "workbook-1",
	}
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	want := sampleRun()
	require.NoError(t, repo.SaveRun(ctx, want))

	got, err := repo.GetRun(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.ClientName, got.ClientName)
	assert.Equal(t, want.Stage, got.Stage)
	assert.Equal(t, want.InputItems, got.InputItems)
	assert.Equal(t, want.ExtractionResult, got.ExtractionResult)
	assert.Equal(t, want.PublishedID, got.PublishedID)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(*want.FinishedAt))
}

func TestRunRepository_FailedRunWithoutResult(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	want := sampleRun()
	want.Stage = constants.StageFailed
	want.TerminalError = "job submission failed: 400"
	want.ExtractionResult = nil
	want.PublishedID = ""
	require.NoError(t, repo.SaveRun(ctx, want))

	got, err := repo.GetRun(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StageFailed, got.Stage)
	assert.Equal(t, want.TerminalError, got.TerminalError)
	assert.Nil(t, got.ExtractionResult)
	assert.Empty(t, got.PublishedID)
}

func TestRunRepository_UpsertOverwritesTerminalSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	r := sampleRun()
	r.Stage = constants.StageFailed
	r.TerminalError = "remote job stalled"
	r.ExtractionResult = nil
	r.PublishedID = ""
	require.NoError(t, repo.SaveRun(ctx, r))

	r.Stage = constants.StageComplete
	r.TerminalError = ""
	r.ExtractionResult = map[string][]string{"a.pdf": {"s1"}}
	r.PublishedID = "workbook-2"
	require.NoError(t, repo.SaveRun(ctx, r))

	got, err := repo.GetRun(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StageComplete, got.Stage)
	assert.Empty(t, got.TerminalError)
	assert.Equal(t, "workbook-2", got.PublishedID)
}

func TestRunRepository_GetUnknown(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRunRepository_ListRunsNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	older := sampleRun()
	older.StartedAt = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	newer := sampleRun()
	newer.StartedAt = time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveRun(ctx, older))
	require.NoError(t, repo.SaveRun(ctx, newer))

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)

	limited, err := repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, newer.ID, limited[0].ID)
}
