package constants

import "strings"

// RunStage is the canonical stage of a processing run. Stages only move
// forward; FAILED is absorbing and reachable from any stage.
type RunStage string

// Stable values (store these exact strings in the run archive).
const (
	StageUploading   RunStage = "UPLOADING"   // local files uploading to the object store
	StageVerifying   RunStage = "VERIFYING"   // remote job accepted, verifying documents
	StageExtracting  RunStage = "EXTRACTING"  // remote extraction in progress
	StageSummarizing RunStage = "SUMMARIZING" // summary generation and publish
	StageComplete    RunStage = "COMPLETE"    // terminal success
	StageFailed      RunStage = "FAILED"      // terminal failure
)

func (s RunStage) String() string { return string(s) }

// Terminal reports whether the stage is an end state.
func (s RunStage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// rank orders the forward progression. FAILED sits above everything so the
// absorbing transition is always permitted.
func (s RunStage) rank() int {
	switch s {
	case StageUploading:
		return 1
	case StageVerifying:
		return 2
	case StageExtracting:
		return 3
	case StageSummarizing:
		return 4
	case StageComplete:
		return 5
	case StageFailed:
		return 6
	default:
		return 0
	}
}

// CanAdvanceTo reports whether a transition from s to target is legal:
// strictly forward through the ordered stages, or into FAILED from anywhere.
func (s RunStage) CanAdvanceTo(target RunStage) bool {
	if target == StageFailed {
		return !s.Terminal()
	}
	return target.rank() > s.rank() && s.rank() > 0 && !s.Terminal()
}

// ParseRunStage maps remote stage strings onto the local stage set. The
// remote service reports human-oriented names; unknown strings map to "".
func ParseRunStage(s string) RunStage {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")) {
	case "UPLOADING", "UPLOADING_FILES":
		return StageUploading
	case "VERIFYING", "VERIFYING_DOCUMENTS":
		return StageVerifying
	case "EXTRACTING", "EXTRACTING_DATA":
		return StageExtracting
	case "SUMMARIZING", "CREATING_CSV", "CREATING_SUMMARY":
		return StageSummarizing
	case "COMPLETE", "COMPLETED":
		return StageComplete
	case "FAILED":
		return StageFailed
	default:
		return ""
	}
}
