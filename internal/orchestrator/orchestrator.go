package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stmtpipe/constants"
	"stmtpipe/internal/blobstore"
	"stmtpipe/internal/common"
	"stmtpipe/internal/entity"
	"stmtpipe/internal/jobservice"
	"stmtpipe/internal/registry"
	"stmtpipe/internal/run"
)

// RunArchive persists finalized runs. Optional; a nil archive disables
// persistence.
type RunArchive interface {
	SaveRun(ctx context.Context, r *entity.ProcessingRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*entity.ProcessingRun, error)
}

// Uploader drives the upload stage.
type Uploader interface {
	UploadSelected(ctx context.Context, items []entity.WorkItem) error
}

// Publisher is re-declared narrowly so the orchestrator does not depend on
// the export package's concrete workbook service.
type Publisher interface {
	Publish(ctx context.Context, title string, sheets []Sheet) (string, error)
}

// Sheet is one named tabular bundle handed to the publish sink.
type Sheet struct {
	Name string
	CSV  []byte
}

// Orchestrator drives one processing run end to end: upload fan-out, job
// submission, sequential status polling with stall detection, and
// post-processing into the publish sink. It holds all collaborators
// explicitly; there is no ambient global run state.
type Orchestrator struct {
	clientName string
	registry   *registry.Registry
	uploads    Uploader
	jobs       jobservice.JobService
	objects    blobstore.ObjectStore
	publisher  Publisher
	tracker    *run.Tracker
	archive    RunArchive
	logger     *slog.Logger

	pollInterval time.Duration
	stallTimeout time.Duration
	pollRetries  int

	// Seams for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(
	cfg common.PipelineConfig,
	clientName string,
	reg *registry.Registry,
	uploads Uploader,
	jobs jobservice.JobService,
	objects blobstore.ObjectStore,
	publisher Publisher,
	tracker *run.Tracker,
	archive RunArchive,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		clientName:   clientName,
		registry:     reg,
		uploads:      uploads,
		jobs:         jobs,
		objects:      objects,
		publisher:    publisher,
		tracker:      tracker,
		archive:      archive,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		stallTimeout: cfg.StallTimeout,
		pollRetries:  cfg.PollRetries,
		now:          time.Now,
		sleep:        sleepCtx,
	}
	if o.pollInterval <= 0 {
		o.pollInterval = 3 * time.Second
	}
	if o.stallTimeout <= 0 {
		o.stallTimeout = 5 * time.Minute
	}
	if o.pollRetries < 0 {
		o.pollRetries = 0
	}
	return o
}

// Run executes a full processing run over the given item ids. Every stage
// failure is caught here, recorded as the run's terminal error and archived;
// the returned run reflects the final state either way.
func (o *Orchestrator) Run(ctx context.Context, itemIDs []string) (*entity.ProcessingRun, error) {
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("run: no items selected: %w", common.ErrInvalidInput)
	}
	items := make([]entity.WorkItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		item, ok := o.registry.Get(id)
		if !ok {
			return nil, fmt.Errorf("run: item %q: %w", id, common.ErrNotFound)
		}
		items = append(items, item)
	}

	if _, err := o.tracker.StartRun(o.clientName, itemIDs); err != nil {
		return nil, err
	}

	publishedID, err := o.execute(ctx, items)
	if err != nil {
		failed, ferr := o.tracker.Fail(err)
		if ferr != nil {
			return nil, ferr
		}
		o.archiveRun(ctx, failed)
		return failed, err
	}

	done, err := o.tracker.CompleteSuccess(publishedID)
	if err != nil {
		return nil, err
	}
	o.archiveRun(ctx, done)
	return done, nil
}

// ResumeRun re-executes a previous run's input set. Items already uploaded
// and analyzed are skipped by the metadata short-circuit, making retries of
// partially failed batches cheap.
func (o *Orchestrator) ResumeRun(ctx context.Context, previousRunID uuid.UUID) (*entity.ProcessingRun, error) {
	prev, ok := o.tracker.Find(previousRunID)
	if !ok && o.archive != nil {
		archived, err := o.archive.GetRun(ctx, previousRunID)
		if err != nil {
			return nil, fmt.Errorf("resume run %s: %w", previousRunID, err)
		}
		prev, ok = archived, archived != nil
	}
	if !ok {
		return nil, fmt.Errorf("resume run %s: %w", previousRunID, common.ErrNotFound)
	}
	if prev.InProgress() {
		return nil, fmt.Errorf("resume run %s: %w", previousRunID, common.ErrRunInProgress)
	}

	// A resume in a fresh process starts with an empty registry. Item ids are
	// blob names, so re-registering them by id is enough: the upload stage's
	// metadata check recovers items that already reached the store, and only
	// items that never uploaded still need a local source path.
	for _, id := range prev.InputItems {
		if _, ok := o.registry.Get(id); !ok {
			o.registry.Add(entity.WorkItem{ID: id, Name: id, UploadState: constants.UploadPending})
		}
	}

	o.logger.Info("run.resume", "previous_run_id", previousRunID, "items", len(prev.InputItems))
	return o.Run(ctx, prev.InputItems)
}

// execute runs the pipeline stages and returns the published artifact id.
// Stage ordering: upload -> verify/submit -> poll -> summarize/publish.
func (o *Orchestrator) execute(ctx context.Context, items []entity.WorkItem) (string, error) {
	if err := o.uploads.UploadSelected(ctx, items); err != nil {
		return "", err
	}
	if err := o.tracker.Advance(constants.StageVerifying); err != nil {
		return "", err
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	handle, err := o.jobs.Submit(ctx, jobservice.SubmitRequest{Documents: names, Overwrite: true})
	if err != nil {
		return "", &SubmissionError{Cause: err}
	}
	o.logger.Info("run.submitted", "status_url", handle.StatusURL, "documents", len(names))

	result, err := o.pollUntilTerminal(ctx, handle)
	if err != nil {
		return "", err
	}
	o.tracker.SetExtractionResult(result)
	if len(result) == 0 {
		o.logger.Warn("run.extraction_empty", "status_url", handle.StatusURL)
		return "", nil
	}

	if err := o.tracker.Advance(constants.StageSummarizing); err != nil {
		return "", err
	}
	return o.postProcess(ctx, result)
}

func (o *Orchestrator) archiveRun(ctx context.Context, r *entity.ProcessingRun) {
	if o.archive == nil || r == nil {
		return
	}
	if err := o.archive.SaveRun(ctx, r); err != nil {
		o.logger.Error("run.archive_failed", "run_id", r.ID, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
