// Package prompt assembles the completion prompt from the active template,
// the target's constraints, and stored column metadata.
package prompt

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/popfly/queryweaver/pkg/models"
)

// Substitution uses literal [[TOKEN]] replacement on purpose: templates are
// operator-authored data, and plain replacement means a template can never
// execute logic or reach beyond the values handed to it.
const (
	tokenViewName       = "[[VIEW_NAME]]"
	tokenAllowedColumns = "[[ALLOWED_COLUMNS]]"
	tokenAllowedOps     = "[[ALLOWED_OPS]]"
	tokenMaxRows        = "[[MAX_ROWS]]"
	tokenBusinessRules  = "[[BUSINESS_RULES]]"
	tokenColumnSnippets = "[[RELEVANT_COLUMN_SNIPPETS]]"
	tokenUserQuery      = "[[USER_QUERY]]"
)

// maxColumnSnippets caps how many column metadata entries go into a prompt.
const maxColumnSnippets = 12

// maxExampleLen truncates long stored examples before inclusion.
const maxExampleLen = 160

const noMetadataPlaceholder = "- (No additional metadata available)"

// DefaultTemplate is used when no active template exists in the store.
const DefaultTemplate = `You are a SQL generator for the view [[VIEW_NAME]].

Rules:
- Generate exactly one SQL statement and nothing else. No explanations, no markdown.
- Only use the view [[VIEW_NAME]]. Never reference any other table or view.
- Allowed operations: [[ALLOWED_OPS]]
- Allowed columns: [[ALLOWED_COLUMNS]]
- Always include a LIMIT clause of at most [[MAX_ROWS]] rows.

Business context:
[[BUSINESS_RULES]]

Column reference:
[[RELEVANT_COLUMN_SNIPPETS]]

Question: [[USER_QUERY]]

SQL:`

// BuiltPrompt is the assembled prompt plus the metadata the audit trail
// records about it.
type BuiltPrompt struct {
	Text           string
	TemplateID     uuid.UUID
	CharCount      int
	ColumnSnippets int
}

// Builder assembles prompts. It never fails: missing metadata degrades to
// placeholder text so a sparsely documented target is still queryable.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Input carries everything one prompt assembly needs. Template may be nil,
// Context may be nil, Columns may be empty.
type Input struct {
	UserQuery  string
	Constraint *models.QueryConstraint
	Template   *models.PromptTemplate
	Context    *models.BusinessContext
	Columns    []models.ColumnMetadata
}

// Build substitutes every token and returns the assembled prompt.
func (b *Builder) Build(in Input) BuiltPrompt {
	templateText := DefaultTemplate
	var templateID uuid.UUID
	if in.Template != nil && in.Template.Template != "" {
		templateText = in.Template.Template
		templateID = in.Template.PromptID
	}

	snippets := columnSnippets(in.Columns)

	text := templateText
	text = strings.ReplaceAll(text, tokenViewName, in.Constraint.TargetName)
	text = strings.ReplaceAll(text, tokenAllowedColumns, joinOrPlaceholder(in.Constraint.AllowedColumns, "(all columns)"))
	text = strings.ReplaceAll(text, tokenAllowedOps, joinOrPlaceholder(in.Constraint.AllowedOperations, "SELECT"))
	text = strings.ReplaceAll(text, tokenMaxRows, fmt.Sprintf("%d", in.Constraint.MaxRows))
	text = strings.ReplaceAll(text, tokenBusinessRules, businessRules(in.Context))
	text = strings.ReplaceAll(text, tokenColumnSnippets, snippets.text)
	text = strings.ReplaceAll(text, tokenUserQuery, in.UserQuery)

	return BuiltPrompt{
		Text:           text,
		TemplateID:     templateID,
		CharCount:      len(text),
		ColumnSnippets: snippets.count,
	}
}

func joinOrPlaceholder(values []string, placeholder string) string {
	if len(values) == 0 {
		return placeholder
	}
	return strings.Join(values, ", ")
}

func businessRules(ctx *models.BusinessContext) string {
	if ctx == nil || strings.TrimSpace(ctx.Description) == "" {
		return noMetadataPlaceholder
	}
	return ctx.Description
}

type snippetBlock struct {
	text  string
	count int
}

// columnSnippets renders up to maxColumnSnippets bullet lines from stored
// column metadata, truncating oversized examples. The repository returns
// columns newest-first, so the cap keeps the most recently documented ones.
func columnSnippets(columns []models.ColumnMetadata) snippetBlock {
	if len(columns) == 0 {
		return snippetBlock{text: noMetadataPlaceholder}
	}

	if len(columns) > maxColumnSnippets {
		columns = columns[:maxColumnSnippets]
	}

	var b strings.Builder
	for i, col := range columns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(col.ColumnName)
		if col.BusinessMeaning != "" {
			b.WriteString(": ")
			b.WriteString(col.BusinessMeaning)
		}
		if len(col.Keywords) > 0 {
			b.WriteString(" (also: ")
			b.WriteString(strings.Join(col.Keywords, ", "))
			b.WriteString(")")
		}
		if col.Examples != "" {
			b.WriteString(" e.g. ")
			b.WriteString(truncate(col.Examples, maxExampleLen))
		}
	}

	return snippetBlock{text: b.String(), count: len(columns)}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
