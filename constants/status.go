package constants

// UploadState is the per-item upload lifecycle.
type UploadState string

const (
	UploadPending   UploadState = "PENDING"
	UploadUploading UploadState = "UPLOADING"
	UploadSucceeded UploadState = "SUCCEEDED"
	UploadFailed    UploadState = "FAILED"
)

// RuntimeStatus is the remote job runtime status as reported by the job
// service. These are wire values, not local state.
type RuntimeStatus string

const (
	RuntimePending   RuntimeStatus = "Pending"
	RuntimeRunning   RuntimeStatus = "Running"
	RuntimeCompleted RuntimeStatus = "Completed"
	RuntimeFailed    RuntimeStatus = "Failed"
)

// Terminal reports whether the remote job will not change state again.
func (s RuntimeStatus) Terminal() bool {
	return s == RuntimeCompleted || s == RuntimeFailed
}

// FinalStatus is the remote job's terminal outcome marker.
type FinalStatus string

const (
	FinalSuccess FinalStatus = "Success"
	FinalFailed  FinalStatus = "Failed"
)
