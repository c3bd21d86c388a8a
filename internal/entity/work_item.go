package entity

import (
	"stmtpipe/constants"
)

// WorkItem represents a statement file selected for processing, with its
// upload and analysis state. Identified by the object-store blob name.
type WorkItem struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	SourcePath    string                `json:"source_path,omitempty"`
	UploadState   constants.UploadState `json:"upload_state"`
	PagesAnalyzed int                   `json:"pages_analyzed,omitempty"`
	TotalPages    int                   `json:"total_pages,omitempty"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	Statements    []string              `json:"statements,omitempty"`
}

// ItemProgress is the remote per-document progress snapshot from a poll
// response. Read-only evidence; never mutated locally.
type ItemProgress struct {
	Name           string `json:"fileName"`
	PagesCompleted int    `json:"pagesCompleted"`
	TotalPages     int    `json:"totalPages"`
}
