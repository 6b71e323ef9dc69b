// Package generator produces validated SQL from natural-language questions.
// The completion service's output is untrusted input; nothing it returns
// reaches the warehouse without passing the full validation stack.
package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/popfly/queryweaver/pkg/apperrors"
	"github.com/popfly/queryweaver/pkg/llm"
	"github.com/popfly/queryweaver/pkg/models"
	"github.com/popfly/queryweaver/pkg/prompt"
	"github.com/popfly/queryweaver/pkg/repositories"
	"github.com/popfly/queryweaver/pkg/sqlguard"
)

// Response is one generation attempt's outcome. A validation rejection is a
// negative Response, not an error: the caller reports FailureReason verbatim
// so users see exactly why their question was refused.
type Response struct {
	Success       bool
	SQL           string
	FailureReason string
	Warnings      []string

	// RejectedSQL is the extracted statement that failed validation, kept so
	// the activity log records what the model actually produced.
	RejectedSQL string

	// Audit metadata for the activity log.
	PromptID         uuid.UUID
	PromptCharCount  int
	RelevantColumnsK int
	// CompletionMs is the completion call alone, excluding store reads and
	// validation, so model latency is visible in isolation.
	CompletionMs int64

	// Constraint is the target's policy, returned so the caller can apply the
	// row cap at execution time without a second store read.
	Constraint *models.QueryConstraint
}

// Defaults used when no active template carries its own model settings.
type Defaults struct {
	Temperature float64
	MaxTokens   int
}

// Generator wires the metadata store, prompt builder, completion client and
// validator into the single-attempt generation pipeline.
type Generator struct {
	constraints repositories.ConstraintRepository
	columns     repositories.ColumnMetadataRepository
	contexts    repositories.BusinessContextRepository
	templates   repositories.PromptTemplateRepository
	builder     *prompt.Builder
	validator   *sqlguard.Validator
	client      llm.CompletionClient
	defaults    Defaults
	logger      *zap.Logger
}

// New creates a Generator.
func New(
	constraints repositories.ConstraintRepository,
	columns repositories.ColumnMetadataRepository,
	contexts repositories.BusinessContextRepository,
	templates repositories.PromptTemplateRepository,
	client llm.CompletionClient,
	defaults Defaults,
	logger *zap.Logger,
) *Generator {
	return &Generator{
		constraints: constraints,
		columns:     columns,
		contexts:    contexts,
		templates:   templates,
		builder:     prompt.NewBuilder(),
		validator:   sqlguard.NewValidator(),
		client:      client,
		defaults:    defaults,
		logger:      logger.Named("generator"),
	}
}

// Generate runs one attempt: load metadata, build the prompt, call the
// completion service once, extract and validate. There is no retry loop; a
// rejected statement comes back as a failed Response and the user rephrases.
func (g *Generator) Generate(ctx context.Context, targetName, naturalQuery string) (*Response, error) {
	constraint, err := g.constraints.GetByTarget(ctx, targetName)
	if err != nil {
		return nil, fmt.Errorf("failed to load constraints for %s: %w", targetName, err)
	}
	if constraint == nil {
		return nil, fmt.Errorf("%w: target %s is not registered", apperrors.ErrNotFound, targetName)
	}

	// Prompt metadata is best-effort: a failed lookup degrades to the
	// builder's defaults instead of failing the question.
	template, err := g.templates.GetActive(ctx)
	if err != nil {
		g.logger.Warn("Failed to load prompt template; using built-in default", zap.Error(err))
		template = nil
	}

	bizContext, err := g.contexts.GetByDomain(ctx, constraint.Domain)
	if err != nil {
		g.logger.Warn("Failed to load business context", zap.String("domain", constraint.Domain), zap.Error(err))
		bizContext = nil
	}

	var columns []models.ColumnMetadata
	columnRows, err := g.columns.GetByTarget(ctx, targetName)
	if err != nil {
		g.logger.Warn("Failed to load column metadata", zap.String("target", targetName), zap.Error(err))
	} else {
		columns = make([]models.ColumnMetadata, 0, len(columnRows))
		for _, c := range columnRows {
			columns = append(columns, *c)
		}
	}

	built := g.builder.Build(prompt.Input{
		UserQuery:  naturalQuery,
		Constraint: constraint,
		Template:   template,
		Context:    bizContext,
		Columns:    columns,
	})

	req := llm.CompletionRequest{
		Prompt:      built.Text,
		Temperature: g.defaults.Temperature,
		MaxTokens:   g.defaults.MaxTokens,
	}
	if template != nil {
		if template.ModelName != "" {
			req.Model = template.ModelName
		}
		if template.Temperature > 0 {
			req.Temperature = template.Temperature
		}
		if template.MaxTokens > 0 {
			req.MaxTokens = template.MaxTokens
		}
	}

	completionStart := time.Now()
	completion, err := g.client.Complete(ctx, req)
	completionMs := time.Since(completionStart).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("completion failed after %dms: %w", completionMs, err)
	}

	resp := &Response{
		PromptID:         built.TemplateID,
		PromptCharCount:  built.CharCount,
		RelevantColumnsK: built.ColumnSnippets,
		CompletionMs:     completionMs,
		Constraint:       constraint,
	}

	extracted := ExtractSQL(completion.Content)
	if extracted == "" {
		// An empty completion means the model produced nothing usable. This
		// is a hard failure, never an empty result set.
		return nil, fmt.Errorf("%w: target %s", apperrors.ErrEmptyCompletion, targetName)
	}

	result := g.validator.Validate(extracted, constraint)
	if !result.Valid {
		g.logger.Warn("Generated SQL rejected",
			zap.String("target", targetName),
			zap.String("reason", result.Reason),
			zap.Int64("completion_ms", completionMs))
		resp.FailureReason = result.Reason
		resp.RejectedSQL = extracted
		return resp, nil
	}

	g.logger.Info("SQL generated",
		zap.String("target", targetName),
		zap.Int("prompt_chars", built.CharCount),
		zap.Int("columns_k", built.ColumnSnippets),
		zap.Int64("completion_ms", completionMs))

	resp.Success = true
	resp.SQL = result.NormalizedSQL
	resp.Warnings = result.Warnings
	return resp, nil
}
