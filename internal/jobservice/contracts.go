package jobservice

import (
	"context"

	"stmtpipe/internal/entity"
)

// JobService is the narrow job-submission/status contract the pipeline
// consumes. Submission returns an opaque handle; progress is observed by
// polling it. Summarize chains the post-extraction summary job.
type JobService interface {
	Submit(ctx context.Context, req SubmitRequest) (Handle, error)
	Poll(ctx context.Context, handle Handle) (*Status, error)
	Summarize(ctx context.Context, statementKeys []string) ([]SummaryFile, error)
}

// SubmitRequest names the uploaded documents a job should analyze.
type SubmitRequest struct {
	Documents []string `json:"documents"`
	Overwrite bool     `json:"overwrite"`
}

// Handle is the opaque reference to a submitted job. The status URL is
// whatever the service handed back; it is never constructed locally.
type Handle struct {
	StatusURL string
}

// SummaryFile names one generated summary CSV in the output container.
type SummaryFile struct {
	Sheet string
	Key   string
}

// Credentials supplies the Authorization header value for job-service
// requests. Acquisition is an opaque collaborator.
type Credentials interface {
	Authorization(ctx context.Context) (string, error)
}

// StaticKey is a Credentials backed by one pre-issued bearer token.
type StaticKey string

func (k StaticKey) Authorization(context.Context) (string, error) {
	return "Bearer " + string(k), nil
}

// ItemProgress re-exported for convenience of status consumers.
type ItemProgress = entity.ItemProgress
