package entity

import (
	"time"

	"github.com/google/uuid"

	"stmtpipe/constants"
)

// ProcessingRun is the authoritative record of one upload-and-analyze run.
// Exactly one run is current at a time; a finalized run is immutable history.
type ProcessingRun struct {
	ID               uuid.UUID           `json:"id"`
	ClientName       string              `json:"client_name"`
	Stage            constants.RunStage  `json:"stage"`
	InputItems       []string            `json:"input_items"`
	StartedAt        time.Time           `json:"started_at"`
	LastUpdatedAt    time.Time           `json:"last_updated_at"`
	FinishedAt       *time.Time          `json:"finished_at,omitempty"`
	TerminalError    string              `json:"terminal_error,omitempty"`
	ExtractionResult map[string][]string `json:"extraction_result,omitempty"`
	PublishedID      string              `json:"published_id,omitempty"`
}

// InProgress reports whether the run has not yet been finalized.
func (r *ProcessingRun) InProgress() bool {
	return r != nil && !r.Stage.Terminal()
}

// Clone returns a deep copy so observers never alias tracker-owned state.
func (r *ProcessingRun) Clone() *ProcessingRun {
	if r == nil {
		return nil
	}
	cp := *r
	cp.InputItems = append([]string(nil), r.InputItems...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	if r.ExtractionResult != nil {
		cp.ExtractionResult = make(map[string][]string, len(r.ExtractionResult))
		for k, v := range r.ExtractionResult {
			cp.ExtractionResult[k] = append([]string(nil), v...)
		}
	}
	return &cp
}
