// Package audit records the two-stage activity log: a pre entry capturing
// every inbound tool call before any processing, and a post entry capturing
// the outcome, correlated by a per-request UUID.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/popfly/queryweaver/pkg/models"
	"github.com/popfly/queryweaver/pkg/repositories"
)

const writeTimeout = 5 * time.Second

// Outcome carries the post-stage facts for one request. Optional fields stay
// nil when the tool does not produce them (non-generation tools have no SQL).
type Outcome struct {
	Success          bool
	RowCount         *int
	ElapsedMs        int
	NaturalQuery     string
	GeneratedSQL     string
	PromptID         string
	PromptCharCount  *int
	RelevantColumnsK *int
}

// Logger writes activity log entries asynchronously. Audit writes are
// best-effort: a failed write is logged and dropped, never surfaced to the
// caller, so the log cannot take the tool surface down with it.
type Logger struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
}

// NewLogger creates a Logger.
func NewLogger(repo repositories.AuditRepository, logger *zap.Logger) *Logger {
	return &Logger{
		repo:   repo,
		logger: logger.Named("audit"),
	}
}

// LogPre records the verbatim inbound request before any validation or
// processing, so even calls that fail immediately leave a trace.
func (l *Logger) LogPre(requestID uuid.UUID, toolName string, args map[string]any, rawRequest string) {
	entry := &models.AuditEntry{
		RequestID:  requestID,
		Stage:      models.AuditStagePre,
		ToolName:   toolName,
		Arguments:  SanitizeArguments(args),
		RawRequest: rawRequest,
	}
	go l.write(entry)
}

// LogPost records the outcome under the same request ID as the pre entry.
func (l *Logger) LogPost(requestID uuid.UUID, toolName string, outcome Outcome) {
	success := outcome.Success
	elapsed := outcome.ElapsedMs

	entry := &models.AuditEntry{
		RequestID:        requestID,
		Stage:            models.AuditStagePost,
		ToolName:         toolName,
		Success:          &success,
		RowCount:         outcome.RowCount,
		ElapsedMs:        &elapsed,
		NaturalQuery:     outcome.NaturalQuery,
		GeneratedSQL:     outcome.GeneratedSQL,
		PromptID:         outcome.PromptID,
		PromptCharCount:  outcome.PromptCharCount,
		RelevantColumnsK: outcome.RelevantColumnsK,
	}
	go l.write(entry)
}

func (l *Logger) write(entry *models.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := l.repo.Insert(ctx, entry); err != nil {
		l.logger.Error("Failed to record activity log entry",
			zap.Error(err),
			zap.String("request_id", entry.RequestID.String()),
			zap.String("stage", entry.Stage),
			zap.String("tool", entry.ToolName))
	}
}
