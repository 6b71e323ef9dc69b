package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/popfly/queryweaver/pkg/database"
	"github.com/popfly/queryweaver/pkg/models"
)

// BusinessContextRepository provides data access for per-domain business
// context. Rows are keyed by domain.
type BusinessContextRepository interface {
	// Upsert creates or replaces the context for a domain. Keywords and
	// examples are fully replaced on conflict.
	Upsert(ctx context.Context, bc *models.BusinessContext) error

	// GetByDomain retrieves the context for a domain. Returns nil when no row
	// exists.
	GetByDomain(ctx context.Context, domain string) (*models.BusinessContext, error)
}

type businessContextRepository struct {
	db *database.DB
}

// NewBusinessContextRepository creates a new BusinessContextRepository.
func NewBusinessContextRepository(db *database.DB) BusinessContextRepository {
	return &businessContextRepository{db: db}
}

var _ BusinessContextRepository = (*businessContextRepository)(nil)

func (r *businessContextRepository) Upsert(ctx context.Context, bc *models.BusinessContext) error {
	if bc.Domain == "" {
		return fmt.Errorf("domain is required")
	}

	keywords, err := json.Marshal(bc.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	now := time.Now()

	query := `
		INSERT INTO qw_business_context (domain, title, description, keywords, examples, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (domain)
		DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			keywords = EXCLUDED.keywords,
			examples = EXCLUDED.examples,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		bc.Domain, bc.Title, bc.Description, keywords, bc.Examples, now,
	).Scan(&bc.ID, &bc.CreatedAt, &bc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert business context: %w", err)
	}

	return nil
}

func (r *businessContextRepository) GetByDomain(ctx context.Context, domain string) (*models.BusinessContext, error) {
	query := `
		SELECT id, domain, title, description, keywords, examples, created_at, updated_at
		FROM qw_business_context
		WHERE domain = $1`

	var bc models.BusinessContext
	var keywords []byte

	err := r.db.QueryRow(ctx, query, domain).Scan(
		&bc.ID, &bc.Domain, &bc.Title, &bc.Description, &keywords,
		&bc.Examples, &bc.CreatedAt, &bc.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan business context: %w", err)
	}

	if err := json.Unmarshal(keywords, &bc.Keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}

	return &bc, nil
}
