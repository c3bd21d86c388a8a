package orchestrator

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"stmtpipe/constants"
	"stmtpipe/internal/jobservice"
)

// pollUntilTerminal drives the sequential poll loop. Polls are strictly
// one-at-a-time in issuance order, so out-of-order responses cannot regress
// the run's stage. The stall timeout is re-evaluated on every response.
func (o *Orchestrator) pollUntilTerminal(ctx context.Context, handle jobservice.Handle) (map[string][]string, error) {
	for {
		if err := o.sleep(ctx, o.pollInterval); err != nil {
			return nil, err
		}

		status, err := o.pollOnce(ctx, handle)
		if err != nil {
			return nil, &PollError{Cause: err}
		}
		o.applyStatus(status)

		if !status.Terminal() {
			if o.stalled(status) {
				return nil, &StallError{
					StatusURL:   handle.StatusURL,
					Stage:       status.Stage,
					LastUpdated: status.LastUpdatedAt,
					Timeout:     o.stallTimeout,
				}
			}
			continue
		}

		switch {
		case status.Outcome != nil && status.Outcome.OK:
			return status.Outcome.Result, nil
		case status.Outcome != nil:
			return nil, &RemoteError{Message: status.Outcome.Message}
		default:
			return nil, &IndeterminateError{StatusURL: handle.StatusURL, Raw: status.Raw}
		}
	}
}

// pollOnce fetches one status snapshot, retrying transport failures with
// exponential backoff up to the configured budget. Semantic outcomes
// (terminal failure, stall) are never retried here.
func (o *Orchestrator) pollOnce(ctx context.Context, handle jobservice.Handle) (*jobservice.Status, error) {
	var status *jobservice.Status
	operation := func() error {
		st, err := o.jobs.Poll(ctx, handle)
		if err != nil {
			o.logger.Warn("poll.transient_error", "status_url", handle.StatusURL, "err", err)
			return err
		}
		status = st
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(o.pollRetries)), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return status, nil
}

// applyStatus reconciles one poll response into local state: per-item page
// progress, the run's stage, and the remote last-updated timestamp. The
// stage only ever moves forward; repeated or unknown remote stages are
// ignored.
func (o *Orchestrator) applyStatus(status *jobservice.Status) {
	for _, doc := range status.PerItem {
		o.registry.UpdateAnalysisProgress(doc.Name, doc.PagesCompleted, doc.TotalPages)
	}

	switch status.Stage {
	case constants.StageVerifying, constants.StageExtracting, constants.StageSummarizing:
		current := o.tracker.Current()
		if current != nil && current.Stage.CanAdvanceTo(status.Stage) {
			if err := o.tracker.Advance(status.Stage); err != nil {
				o.logger.Warn("poll.stage_not_applied", "remote_stage", status.Stage, "err", err)
			}
		}
	}
	o.tracker.Touch(status.LastUpdatedAt)
}

// stalled reports whether the remote job has gone quiet past the timeout. A
// response without a usable timestamp cannot prove a stall and is let pass.
func (o *Orchestrator) stalled(status *jobservice.Status) bool {
	if status.LastUpdatedAt.IsZero() {
		return false
	}
	return status.LastUpdatedAt.Add(o.stallTimeout).Before(o.now())
}
