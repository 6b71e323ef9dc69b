package models

import (
	"time"

	"github.com/google/uuid"
)

// ColumnMetadata holds the business semantics for one (target, column) pair.
// Unique per (target, column); upserted by narrative ingestion, read by the
// prompt builder.
type ColumnMetadata struct {
	ID              uuid.UUID `json:"id"`
	TargetName      string    `json:"target_name"`
	ColumnName      string    `json:"column_name"`
	BusinessMeaning string    `json:"business_meaning"`
	Keywords        []string  `json:"keywords"`
	Examples        string    `json:"examples"`
	Relationships   string    `json:"relationships"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BusinessContext holds consolidated domain knowledge. Unique per domain;
// one domain may span multiple targets.
type BusinessContext struct {
	ID          uuid.UUID `json:"id"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Keywords    []string  `json:"keywords"`
	Examples    string    `json:"examples"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PromptTemplate is an operator-authored instruction template. Selection is
// most-recently-updated-active-first; absence of any active template falls
// back to the builder's built-in default.
type PromptTemplate struct {
	PromptID    uuid.UUID `json:"prompt_id"`
	Template    string    `json:"template"`
	ModelName   string    `json:"model_name"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
