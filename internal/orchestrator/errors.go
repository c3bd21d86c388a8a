package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"stmtpipe/constants"
)

// SubmissionError wraps a job-submission failure. Submission is never
// retried: a rejected batch usually means malformed input, not a transient
// fault.
type SubmissionError struct {
	Cause error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("job submission failed: %v", e.Cause) }
func (e *SubmissionError) Unwrap() error { return e.Cause }

// StallError reports a remote job that stopped updating past the stall
// timeout while still non-terminal. It carries the last-known status for
// diagnostics.
type StallError struct {
	StatusURL   string
	Stage       constants.RunStage
	LastUpdated time.Time
	Timeout     time.Duration
}

func (e *StallError) Error() string {
	return fmt.Sprintf("remote job stalled: no update since %s (timeout %s, last stage %s); inspect %s for details",
		e.LastUpdated.Format(time.RFC3339), e.Timeout, e.Stage, e.StatusURL)
}

// RemoteError carries a terminal failure reported by the job service, with
// the remote message verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("analysis returned failed status: %s", e.Message)
}

// IndeterminateError reports a terminal status without a parseable outcome.
// Treated as a failure, never as a silent success.
type IndeterminateError struct {
	StatusURL string
	Raw       json.RawMessage
}

func (e *IndeterminateError) Error() string {
	return fmt.Sprintf("analysis failed to complete; inspect %s for diagnostics (last status: %s)", e.StatusURL, string(e.Raw))
}

// PollError wraps a poll transport/decode failure that persisted through the
// bounded retry budget.
type PollError struct {
	Cause error
}

func (e *PollError) Error() string { return fmt.Sprintf("status poll failed: %v", e.Cause) }
func (e *PollError) Unwrap() error { return e.Cause }

// PublishError wraps a post-processing failure after a successful
// extraction. The extraction result stays attached to the failed run.
type PublishError struct {
	Cause error
}

func (e *PublishError) Error() string { return fmt.Sprintf("publish failed: %v", e.Cause) }
func (e *PublishError) Unwrap() error { return e.Cause }
