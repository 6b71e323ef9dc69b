// Package repositories provides pgx-backed data access for the metadata store.
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

// ColumnMetadataRepository provides data access for per-column semantics.
// Rows are keyed by (target_name, column_name).
type ColumnMetadataRepository interface {
	// Upsert creates or replaces column metadata. Values are fully replaced on
	// conflict (never appended), which keeps repeated ingestion idempotent.
	Upsert(ctx context.Context, meta *models.ColumnMetadata) error

	// GetByTarget retrieves all column metadata for a target, most recently
	// created first.
	GetByTarget(ctx context.Context, targetName string) ([]*models.ColumnMetadata, error)

	// Get retrieves metadata for one (target, column) pair. Returns nil when
	// no row exists.
	Get(ctx context.Context, targetName, columnName string) (*models.ColumnMetadata, error)

	// Delete removes metadata for one (target, column) pair. Explicit operator
	// action only; ingestion never deletes.
	Delete(ctx context.Context, targetName, columnName string) error
}

type columnMetadataRepository struct {
	db *database.DB
}

// NewColumnMetadataRepository creates a new ColumnMetadataRepository.
func NewColumnMetadataRepository(db *database.DB) ColumnMetadataRepository {
	return &columnMetadataRepository{db: db}
}

var _ ColumnMetadataRepository = (*columnMetadataRepository)(nil)

func (r *columnMetadataRepository) Upsert(ctx context.Context, meta *models.ColumnMetadata) error {
	if meta.TargetName == "" || meta.ColumnName == "" {
		return fmt.Errorf("target_name and column_name are required")
	}

	keywords, err := json.Marshal(meta.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	now := time.Now()

	query := `
		INSERT INTO qw_column_metadata (
			target_name, column_name, business_meaning, keywords, examples, relationships,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (target_name, column_name)
		DO UPDATE SET
			business_meaning = EXCLUDED.business_meaning,
			keywords = EXCLUDED.keywords,
			examples = EXCLUDED.examples,
			relationships = EXCLUDED.relationships,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		meta.TargetName,
		meta.ColumnName,
		meta.BusinessMeaning,
		keywords,
		meta.Examples,
		meta.Relationships,
		now,
	).Scan(&meta.ID, &meta.CreatedAt, &meta.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert column metadata: %w", err)
	}

	return nil
}

func (r *columnMetadataRepository) GetByTarget(ctx context.Context, targetName string) ([]*models.ColumnMetadata, error) {
	query := `
		SELECT id, target_name, column_name, business_meaning, keywords, examples, relationships,
		       created_at, updated_at
		FROM qw_column_metadata
		WHERE target_name = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, targetName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer rows.Close()

	var result []*models.ColumnMetadata
	for rows.Next() {
		m, err := scanColumnMetadata(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	return result, nil
}

func (r *columnMetadataRepository) Get(ctx context.Context, targetName, columnName string) (*models.ColumnMetadata, error) {
	query := `
		SELECT id, target_name, column_name, business_meaning, keywords, examples, relationships,
		       created_at, updated_at
		FROM qw_column_metadata
		WHERE target_name = $1 AND column_name = $2`

	row := r.db.QueryRow(ctx, query, targetName, columnName)
	m, err := scanColumnMetadata(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (r *columnMetadataRepository) Delete(ctx context.Context, targetName, columnName string) error {
	query := `DELETE FROM qw_column_metadata WHERE target_name = $1 AND column_name = $2`
	if _, err := r.db.Exec(ctx, query, targetName, columnName); err != nil {
		return fmt.Errorf("failed to delete column metadata: %w", err)
	}
	return nil
}

func scanColumnMetadata(row pgx.Row) (*models.ColumnMetadata, error) {
	var m models.ColumnMetadata
	var keywords []byte

	err := row.Scan(
		&m.ID, &m.TargetName, &m.ColumnName, &m.BusinessMeaning, &keywords,
		&m.Examples, &m.Relationships, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan column metadata: %w", err)
	}

	if err := json.Unmarshal(keywords, &m.Keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}

	return &m, nil
}
