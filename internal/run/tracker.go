package run

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"stmtpipe/constants"
	"stmtpipe/internal/common"
	"stmtpipe/internal/entity"
)

// Tracker owns the current processing run and the append-only run history.
// The orchestrator is the only writer during a run; observers read copies.
type Tracker struct {
	mu      sync.Mutex
	current *entity.ProcessingRun
	history []*entity.ProcessingRun
	logger  *slog.Logger
	now     func() time.Time
}

func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger, now: time.Now}
}

// StartRun creates a new current run in the UPLOADING stage. Starting a run
// while one is in progress is a caller error, not a queue.
func (t *Tracker) StartRun(clientName string, itemIDs []string) (*entity.ProcessingRun, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current.InProgress() {
		return nil, fmt.Errorf("start run for %q: %w", clientName, common.ErrRunInProgress)
	}
	if t.current != nil {
		t.history = append(t.history, t.current)
	}
	now := t.now()
	t.current = &entity.ProcessingRun{
		ID:            uuid.New(),
		ClientName:    clientName,
		Stage:         constants.StageUploading,
		InputItems:    append([]string(nil), itemIDs...),
		StartedAt:     now,
		LastUpdatedAt: now,
	}
	t.logger.Info("run.started", "run_id", t.current.ID, "client", clientName, "items", len(itemIDs))
	return t.current.Clone(), nil
}

// Advance moves the current run to a later stage. Backward transitions are
// refused; stage only ever moves forward or into FAILED.
func (t *Tracker) Advance(stage constants.RunStage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.current.InProgress() {
		return fmt.Errorf("advance to %s: no run in progress", stage)
	}
	if stage == t.current.Stage {
		return nil
	}
	if !t.current.Stage.CanAdvanceTo(stage) {
		return fmt.Errorf("advance run %s: illegal transition %s -> %s", t.current.ID, t.current.Stage, stage)
	}
	t.logger.Info("run.stage", "run_id", t.current.ID, "from", t.current.Stage, "to", stage)
	t.current.Stage = stage
	t.current.LastUpdatedAt = t.now()
	return nil
}

// Touch records the remote job's last-updated time on the current run.
func (t *Tracker) Touch(remote time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.current.InProgress() {
		return
	}
	if remote.IsZero() {
		remote = t.now()
	}
	t.current.LastUpdatedAt = remote
}

// SetExtractionResult attaches the terminal extraction result to the run.
func (t *Tracker) SetExtractionResult(result map[string][]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.current.InProgress() {
		return
	}
	cp := make(map[string][]string, len(result))
	for k, v := range result {
		cp[k] = append([]string(nil), v...)
	}
	t.current.ExtractionResult = cp
}

// CompleteSuccess finalizes the current run as COMPLETE with the published
// artifact id.
func (t *Tracker) CompleteSuccess(publishedID string) (*entity.ProcessingRun, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.current.InProgress() {
		return nil, fmt.Errorf("complete run: no run in progress")
	}
	t.current.Stage = constants.StageComplete
	t.current.PublishedID = publishedID
	t.finalizeLocked()
	t.logger.Info("run.complete", "run_id", t.current.ID, "published_id", publishedID)
	return t.current.Clone(), nil
}

// Fail finalizes the current run as FAILED with the terminal error. Safe to
// call at the orchestration boundary for any stage.
func (t *Tracker) Fail(cause error) (*entity.ProcessingRun, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.current.InProgress() {
		return nil, fmt.Errorf("fail run: no run in progress")
	}
	t.current.Stage = constants.StageFailed
	if cause != nil {
		t.current.TerminalError = cause.Error()
	}
	t.finalizeLocked()
	t.logger.Error("run.failed", "run_id", t.current.ID, "err", t.current.TerminalError)
	return t.current.Clone(), nil
}

func (t *Tracker) finalizeLocked() {
	now := t.now()
	t.current.LastUpdatedAt = now
	t.current.FinishedAt = &now
}

// Current returns a copy of the current run, or nil if none was started.
func (t *Tracker) Current() *entity.ProcessingRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current.Clone()
}

// History returns copies of all superseded runs, oldest first. The current
// run (finalized or not) is not included until a later run supersedes it.
func (t *Tracker) History() []*entity.ProcessingRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*entity.ProcessingRun, 0, len(t.history))
	for _, r := range t.history {
		out = append(out, r.Clone())
	}
	return out
}

// Find looks up a run by id across the current run and history.
func (t *Tracker) Find(id uuid.UUID) (*entity.ProcessingRun, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && t.current.ID == id {
		return t.current.Clone(), true
	}
	for _, r := range t.history {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return nil, false
}
