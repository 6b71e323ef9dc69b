package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/popfly/queryweaver/pkg/database"
	"github.com/popfly/queryweaver/pkg/models"
)

// AuditRepository appends entries to the activity log. Entries are never
// updated or deleted by normal operation.
type AuditRepository interface {
	Insert(ctx context.Context, entry *models.AuditEntry) error
}

type auditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) AuditRepository {
	return &auditRepository{db: db}
}

var _ AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	if entry.Stage != models.AuditStagePre && entry.Stage != models.AuditStagePost {
		return fmt.Errorf("invalid audit stage: %q", entry.Stage)
	}

	var arguments []byte
	if len(entry.Arguments) > 0 {
		var err error
		arguments, err = json.Marshal(entry.Arguments)
		if err != nil {
			return fmt.Errorf("failed to marshal audit arguments: %w", err)
		}
	}

	query := `
		INSERT INTO qw_activity_log (
			request_id, stage, tool_name, arguments, raw_request,
			success, row_count, elapsed_ms,
			natural_query, generated_sql,
			prompt_id, prompt_char_count, relevant_columns_k
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(ctx, query,
		entry.RequestID,
		entry.Stage,
		entry.ToolName,
		arguments,
		nullableString(entry.RawRequest),
		entry.Success,
		entry.RowCount,
		entry.ElapsedMs,
		nullableString(entry.NaturalQuery),
		nullableString(entry.GeneratedSQL),
		nullableString(entry.PromptID),
		entry.PromptCharCount,
		entry.RelevantColumnsK,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// nullableString maps "" to NULL so empty optional fields stay empty in the log.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
