package models

import (
	"time"

	"github.com/google/uuid"
)

// ToolDefinition describes a callable tool stored in the registry tables.
// HandlerModule + HandlerFunction identify an entry in the compile-time
// handler catalog; no reflection is involved in dispatch.
type ToolDefinition struct {
	ID              uuid.UUID      `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	InputSchema     map[string]any `json:"input_schema"`
	HandlerModule   string         `json:"handler_module"`
	HandlerFunction string         `json:"handler_function"`
	IsShared        bool           `json:"is_shared"`
	UsesGeneration  bool           `json:"uses_generation"`
	IsActive        bool           `json:"is_active"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// HandlerRef returns the stored handler identity as "module.function".
func (t *ToolDefinition) HandlerRef() string {
	return t.HandlerModule + "." + t.HandlerFunction
}

// CallerGroup identifies a group of callers by routing path segment.
// At most one group should be marked default.
type CallerGroup struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	GroupPath string    `json:"group_path"`
	IsActive  bool      `json:"is_active"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolGroupAccess joins a non-shared tool to a caller group. Shared tools
// need no rows here.
type ToolGroupAccess struct {
	ToolID  uuid.UUID `json:"tool_id"`
	GroupID uuid.UUID `json:"group_id"`
}
