package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/popfly/queryweaver/pkg/database"
	"github.com/popfly/queryweaver/pkg/models"
)

// ConstraintRepository provides data access for per-target query constraints.
type ConstraintRepository interface {
	// GetByTarget retrieves the constraint set for one target. Returns nil
	// when the target is not registered.
	GetByTarget(ctx context.Context, targetName string) (*models.QueryConstraint, error)

	// ListTargets returns every registered target's constraint set.
	ListTargets(ctx context.Context) ([]*models.QueryConstraint, error)
}

type constraintRepository struct {
	db *database.DB
}

// NewConstraintRepository creates a new ConstraintRepository.
func NewConstraintRepository(db *database.DB) ConstraintRepository {
	return &constraintRepository{db: db}
}

var _ ConstraintRepository = (*constraintRepository)(nil)

const constraintColumns = `
	id, target_name, domain, allowed_operations, allowed_columns,
	forbidden_keywords, enforce_columns, default_max_rows, max_rows,
	created_at, updated_at`

func (r *constraintRepository) GetByTarget(ctx context.Context, targetName string) (*models.QueryConstraint, error) {
	query := `SELECT ` + constraintColumns + ` FROM qw_query_constraints WHERE target_name = $1`

	c, err := scanConstraint(r.db.QueryRow(ctx, query, targetName))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *constraintRepository) ListTargets(ctx context.Context) ([]*models.QueryConstraint, error) {
	query := `SELECT ` + constraintColumns + ` FROM qw_query_constraints ORDER BY target_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints: %w", err)
	}
	defer rows.Close()

	var result []*models.QueryConstraint
	for rows.Next() {
		c, err := scanConstraint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating constraints: %w", err)
	}

	return result, nil
}

func scanConstraint(row pgx.Row) (*models.QueryConstraint, error) {
	var c models.QueryConstraint
	var ops, cols, forbidden []byte

	err := row.Scan(
		&c.ID, &c.TargetName, &c.Domain, &ops, &cols, &forbidden,
		&c.EnforceColumns, &c.DefaultMaxRows, &c.MaxRows,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan query constraint: %w", err)
	}

	for _, pair := range []struct {
		raw  []byte
		dest *[]string
	}{
		{ops, &c.AllowedOperations},
		{cols, &c.AllowedColumns},
		{forbidden, &c.ForbiddenKeywords},
	} {
		if err := json.Unmarshal(pair.raw, pair.dest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal constraint list: %w", err)
		}
	}

	return &c, nil
}
