package jobservice

import (
	"encoding/json"
	"fmt"
	"time"

	"stmtpipe/constants"
	"stmtpipe/internal/entity"
)

// Status is the decoded snapshot of a polled job. It is read-only evidence:
// the poller translates it into local state but never mutates it. A terminal
// status without a parseable Outcome is the indeterminate case.
type Status struct {
	InstanceID    string
	Runtime       constants.RuntimeStatus
	Stage         constants.RunStage
	PerItem       []entity.ItemProgress
	TotalPages    int
	PagesComplete int
	CreatedAt     time.Time
	LastUpdatedAt time.Time
	Outcome       *Outcome
	Raw           json.RawMessage
}

// Terminal reports whether the remote job will not change state again.
func (s *Status) Terminal() bool { return s.Runtime.Terminal() }

// Outcome is a parsed terminal result.
type Outcome struct {
	OK      bool
	Result  map[string][]string
	Message string
}

// statusPayload is the raw wire shape. Every field is optional; the decoder
// trusts nothing beyond what the schema guarantees.
type statusPayload struct {
	InstanceID    string `json:"instanceId"`
	RuntimeStatus string `json:"runtimeStatus"`
	CustomStatus  *struct {
		Stage          string                `json:"stage"`
		Documents      []entity.ItemProgress `json:"documents"`
		TotalPages     int                   `json:"totalPages"`
		PagesCompleted int                   `json:"pagesCompleted"`
	} `json:"customStatus"`
	Output          json.RawMessage `json:"output"`
	CreatedTime     string          `json:"createdTime"`
	LastUpdatedTime string          `json:"lastUpdatedTime"`
}

type outcomePayload struct {
	Status       string              `json:"status"`
	Result       map[string][]string `json:"result"`
	ErrorMessage string              `json:"errorMessage"`
}

// statusSchema pins down the minimum shape a poll response must have before
// any of it is trusted. Everything beyond instanceId/runtimeStatus is
// optional and decoded leniently.
var statusSchema = map[string]any{
	"type":     "object",
	"required": []any{"instanceId", "runtimeStatus"},
	"properties": map[string]any{
		"instanceId":    map[string]any{"type": "string", "minLength": 1},
		"runtimeStatus": map[string]any{"type": "string", "minLength": 1},
		"customStatus": map[string]any{
			"type": []any{"object", "null"},
			"properties": map[string]any{
				"stage": map[string]any{"type": "string"},
				"documents": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"fileName":       map[string]any{"type": "string"},
							"totalPages":     map[string]any{"type": "integer"},
							"pagesCompleted": map[string]any{"type": "integer"},
						},
					},
				},
			},
		},
		"createdTime":     map[string]any{"type": "string"},
		"lastUpdatedTime": map[string]any{"type": "string"},
	},
}

var compiledStatusSchema = mustCompileSchema(statusSchema)

// DecodeStatus validates and decodes a raw poll response. Transport-level
// garbage (not JSON, missing required fields) is an error; a recognizable
// envelope with an unparseable outcome decodes to Outcome == nil so the
// caller can classify it as indeterminate instead of trusting it.
func DecodeStatus(raw []byte) (*Status, error) {
	if err := validateJSON(compiledStatusSchema, raw); err != nil {
		return nil, fmt.Errorf("status payload: %w", err)
	}
	var p statusPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode status payload: %w", err)
	}

	st := &Status{
		InstanceID: p.InstanceID,
		Runtime:    constants.RuntimeStatus(p.RuntimeStatus),
		Raw:        append(json.RawMessage(nil), raw...),
	}
	if p.CustomStatus != nil {
		st.Stage = constants.ParseRunStage(p.CustomStatus.Stage)
		st.PerItem = p.CustomStatus.Documents
		st.TotalPages = p.CustomStatus.TotalPages
		st.PagesComplete = p.CustomStatus.PagesCompleted
	}
	st.CreatedAt = parseWireTime(p.CreatedTime)
	st.LastUpdatedAt = parseWireTime(p.LastUpdatedTime)

	if st.Terminal() && len(p.Output) > 0 {
		var out outcomePayload
		if err := json.Unmarshal(p.Output, &out); err == nil && out.Status != "" {
			switch constants.FinalStatus(out.Status) {
			case constants.FinalSuccess:
				st.Outcome = &Outcome{OK: true, Result: out.Result}
			case constants.FinalFailed:
				st.Outcome = &Outcome{OK: false, Message: out.ErrorMessage}
			}
		}
	}
	return st, nil
}

func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
