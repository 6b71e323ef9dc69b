package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/popfly/queryweaver/pkg/database"
	"github.com/popfly/queryweaver/pkg/models"
)

// PromptTemplateRepository provides data access for prompt templates.
type PromptTemplateRepository interface {
	// GetActive returns the most-recently-updated active template, or nil when
	// none exists (callers fall back to the built-in default).
	GetActive(ctx context.Context) (*models.PromptTemplate, error)

	// Insert stores a new template. The template is active unless marked
	// otherwise.
	Insert(ctx context.Context, t *models.PromptTemplate) error

	// DeactivateAll marks every active template inactive. Used when a
	// narrative override explicitly requests replacement.
	DeactivateAll(ctx context.Context) error
}

type promptTemplateRepository struct {
	db *database.DB
}

// NewPromptTemplateRepository creates a new PromptTemplateRepository.
func NewPromptTemplateRepository(db *database.DB) PromptTemplateRepository {
	return &promptTemplateRepository{db: db}
}

var _ PromptTemplateRepository = (*promptTemplateRepository)(nil)

func (r *promptTemplateRepository) GetActive(ctx context.Context) (*models.PromptTemplate, error) {
	query := `
		SELECT prompt_id, template, model_name, temperature, max_tokens, is_active, created_at, updated_at
		FROM qw_prompt_templates
		WHERE is_active = TRUE
		ORDER BY updated_at DESC, created_at DESC
		LIMIT 1`

	var t models.PromptTemplate
	err := r.db.QueryRow(ctx, query).Scan(
		&t.PromptID, &t.Template, &t.ModelName, &t.Temperature, &t.MaxTokens,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan prompt template: %w", err)
	}

	return &t, nil
}

func (r *promptTemplateRepository) Insert(ctx context.Context, t *models.PromptTemplate) error {
	if t.Template == "" {
		return fmt.Errorf("template text is required")
	}

	now := time.Now()

	query := `
		INSERT INTO qw_prompt_templates (template, model_name, temperature, max_tokens, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING prompt_id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		t.Template, t.ModelName, t.Temperature, t.MaxTokens, t.IsActive, now,
	).Scan(&t.PromptID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert prompt template: %w", err)
	}

	return nil
}

func (r *promptTemplateRepository) DeactivateAll(ctx context.Context) error {
	query := `UPDATE qw_prompt_templates SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE`
	if _, err := r.db.Exec(ctx, query, time.Now()); err != nil {
		return fmt.Errorf("failed to deactivate prompt templates: %w", err)
	}
	return nil
}
