package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryConstraint is the per-target safety policy every generated query must
// validate against. Targets without a constraint row are not queryable.
type QueryConstraint struct {
	ID                uuid.UUID `json:"id"`
	TargetName        string    `json:"target_name"`
	Domain            string    `json:"domain"`
	AllowedOperations []string  `json:"allowed_operations"`
	AllowedColumns    []string  `json:"allowed_columns"`
	ForbiddenKeywords []string  `json:"forbidden_keywords"`
	// EnforceColumns upgrades unknown column references from warnings to
	// rejections for this target.
	EnforceColumns bool      `json:"enforce_columns"`
	DefaultMaxRows int       `json:"default_max_rows"`
	MaxRows        int       `json:"max_rows"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
