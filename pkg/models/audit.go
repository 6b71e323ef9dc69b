package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit entry stages. A pre entry captures the verbatim inbound request; a
// post entry captures the outcome. Both share one request ID.
const (
	AuditStagePre  = "pre"
	AuditStagePost = "post"
)

// AuditEntry is one row of the append-only activity log.
type AuditEntry struct {
	ID         int64          `json:"id"`
	RequestID  uuid.UUID      `json:"request_id"`
	Stage      string         `json:"stage"`
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	RawRequest string         `json:"raw_request,omitempty"`

	// Post-stage fields.
	Success          *bool  `json:"success,omitempty"`
	RowCount         *int   `json:"row_count,omitempty"`
	ElapsedMs        *int   `json:"elapsed_ms,omitempty"`
	NaturalQuery     string `json:"natural_query,omitempty"`
	GeneratedSQL     string `json:"generated_sql,omitempty"`
	PromptID         string `json:"prompt_id,omitempty"`
	PromptCharCount  *int   `json:"prompt_char_count,omitempty"`
	RelevantColumnsK *int   `json:"relevant_columns_k,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
