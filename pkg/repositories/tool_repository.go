package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/popfly/queryweaver/pkg/database"
	"github.com/popfly/queryweaver/pkg/models"
)

// ToolRepository provides data access for tool definitions, caller groups and
// access mappings. The registry reads these once per process lifetime.
type ToolRepository interface {
	// ListActiveTools returns all active tool definitions.
	ListActiveTools(ctx context.Context) ([]*models.ToolDefinition, error)

	// ListActiveGroups returns all active caller groups.
	ListActiveGroups(ctx context.Context) ([]*models.CallerGroup, error)

	// ListAccess returns every tool-to-group access row.
	ListAccess(ctx context.Context) ([]*models.ToolGroupAccess, error)
}

type toolRepository struct {
	db *database.DB
}

// NewToolRepository creates a new ToolRepository.
func NewToolRepository(db *database.DB) ToolRepository {
	return &toolRepository{db: db}
}

var _ ToolRepository = (*toolRepository)(nil)

func (r *toolRepository) ListActiveTools(ctx context.Context) ([]*models.ToolDefinition, error) {
	query := `
		SELECT id, name, description, input_schema, handler_module, handler_function,
		       is_shared, uses_generation, is_active, created_at, updated_at
		FROM qw_tools
		WHERE is_active = TRUE
		ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tools: %w", err)
	}
	defer rows.Close()

	var result []*models.ToolDefinition
	for rows.Next() {
		var t models.ToolDefinition
		var schema []byte

		err := rows.Scan(
			&t.ID, &t.Name, &t.Description, &schema, &t.HandlerModule, &t.HandlerFunction,
			&t.IsShared, &t.UsesGeneration, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool definition: %w", err)
		}

		if err := json.Unmarshal(schema, &t.InputSchema); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input schema for tool %s: %w", t.Name, err)
		}

		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tools: %w", err)
	}

	return result, nil
}

func (r *toolRepository) ListActiveGroups(ctx context.Context) ([]*models.CallerGroup, error) {
	query := `
		SELECT id, name, group_path, is_active, is_default, created_at
		FROM qw_caller_groups
		WHERE is_active = TRUE
		ORDER BY group_path`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query caller groups: %w", err)
	}
	defer rows.Close()

	var result []*models.CallerGroup
	for rows.Next() {
		var g models.CallerGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.GroupPath, &g.IsActive, &g.IsDefault, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan caller group: %w", err)
		}
		result = append(result, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating caller groups: %w", err)
	}

	return result, nil
}

func (r *toolRepository) ListAccess(ctx context.Context) ([]*models.ToolGroupAccess, error) {
	query := `SELECT tool_id, group_id FROM qw_tool_group_access`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool group access: %w", err)
	}
	defer rows.Close()

	var result []*models.ToolGroupAccess
	for rows.Next() {
		var a models.ToolGroupAccess
		var toolID, groupID uuid.UUID
		if err := rows.Scan(&toolID, &groupID); err != nil {
			return nil, fmt.Errorf("failed to scan tool group access: %w", err)
		}
		a.ToolID = toolID
		a.GroupID = groupID
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tool group access: %w", err)
	}

	return result, nil
}
