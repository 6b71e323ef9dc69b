package narrative

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/popfly/queryweaver/pkg/models"
	"github.com/popfly/queryweaver/pkg/repositories"
	"github.com/popfly/queryweaver/pkg/warehouse"
)

// Result reports what one ingestion run did. Warnings never block ingestion;
// they exist so operators notice stale narratives and sensitive columns.
type Result struct {
	TargetName      string
	Domains         []string
	ColumnsUpserted int
	ContextUpserted bool
	TemplateStored  bool
	TemplateSkipped bool
	DryRun          bool
	Warnings        []string
}

// Ingestor writes parsed narratives into the metadata store. Re-ingesting the
// same document is idempotent: every write is a full-replacement upsert.
type Ingestor struct {
	columns   repositories.ColumnMetadataRepository
	contexts  repositories.BusinessContextRepository
	templates repositories.PromptTemplateRepository
	executor  warehouse.Executor
	logger    *zap.Logger
}

// NewIngestor creates an Ingestor. executor may be nil, which disables the
// live-column check.
func NewIngestor(
	columns repositories.ColumnMetadataRepository,
	contexts repositories.BusinessContextRepository,
	templates repositories.PromptTemplateRepository,
	executor warehouse.Executor,
	logger *zap.Logger,
) *Ingestor {
	return &Ingestor{
		columns:   columns,
		contexts:  contexts,
		templates: templates,
		executor:  executor,
		logger:    logger.Named("ingest"),
	}
}

// Ingest parses and stores one narrative document. With dryRun set it parses
// and collects warnings but writes nothing.
func (i *Ingestor) Ingest(ctx context.Context, text string, dryRun bool) (*Result, error) {
	n, err := Parse(text)
	if err != nil {
		return nil, err
	}

	result := &Result{
		TargetName: n.TargetName,
		Domains:    n.Domains,
		DryRun:     dryRun,
	}

	result.Warnings = append(result.Warnings, i.checkLiveColumns(ctx, n)...)

	if len(n.BusinessRules) == 0 {
		result.Warnings = append(result.Warnings, "narrative has no business rules section")
	}
	if len(n.Defaults) == 0 {
		result.Warnings = append(result.Warnings, "narrative declares no defaults (limit, ordering); target policy defaults apply")
	}

	if len(n.SensitiveColumns) > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"narrative marks sensitive columns (%s); ensure they are excluded from the target's allowed columns",
			strings.Join(n.SensitiveColumns, ", ")))
	}

	if dryRun {
		result.ColumnsUpserted = len(n.Columns)
		result.ContextUpserted = true
		result.TemplateStored = n.PromptOverride != ""
		i.logger.Info("Dry run complete",
			zap.String("target", n.TargetName),
			zap.Int("columns", len(n.Columns)),
			zap.Strings("warnings", result.Warnings))
		return result, nil
	}

	for _, domain := range n.Domains {
		if err := i.contexts.Upsert(ctx, buildContext(n, domain)); err != nil {
			return nil, fmt.Errorf("failed to store business context for %s: %w", domain, err)
		}
	}
	result.ContextUpserted = true

	for _, col := range n.Columns {
		meta := &models.ColumnMetadata{
			TargetName:      n.TargetName,
			ColumnName:      col.Name,
			BusinessMeaning: col.Meaning,
			Keywords:        col.Synonyms,
			Examples:        col.Examples,
			Relationships:   col.Relationships,
		}
		if err := i.columns.Upsert(ctx, meta); err != nil {
			return nil, fmt.Errorf("failed to store metadata for column %s: %w", col.Name, err)
		}
		result.ColumnsUpserted++
	}

	if n.PromptOverride != "" {
		stored, err := i.storeTemplate(ctx, n)
		if err != nil {
			return nil, err
		}
		result.TemplateStored = stored
		result.TemplateSkipped = !stored
	}

	i.logger.Info("Narrative ingested",
		zap.String("target", n.TargetName),
		zap.Strings("domains", n.Domains),
		zap.Int("columns", result.ColumnsUpserted),
		zap.Bool("template_stored", result.TemplateStored),
		zap.Int("warnings", len(result.Warnings)))

	return result, nil
}

// checkLiveColumns compares the narrative's column names against the live
// target schema. Failures to describe the target degrade to a warning; the
// narrative is the source of business truth and must ingest regardless.
func (i *Ingestor) checkLiveColumns(ctx context.Context, n *Narrative) []string {
	if i.executor == nil || len(n.Columns) == 0 {
		return nil
	}

	live, err := i.executor.DescribeColumns(ctx, n.TargetName)
	if err != nil {
		return []string{fmt.Sprintf("could not verify columns against %s: %v", n.TargetName, err)}
	}
	if len(live) == 0 {
		return []string{fmt.Sprintf("target %s has no visible columns; is the name correct?", n.TargetName)}
	}

	known := make(map[string]bool, len(live))
	for _, c := range live {
		known[strings.ToUpper(c)] = true
	}

	var warnings []string
	for _, col := range n.Columns {
		if !known[strings.ToUpper(col.Name)] {
			warnings = append(warnings, fmt.Sprintf(
				"column %s is described in the narrative but does not exist on %s", col.Name, n.TargetName))
		}
	}
	return warnings
}

// buildContext consolidates purpose, rules and defaults into one description,
// unions all column synonyms into the keyword list, and keeps typical
// questions as examples.
func buildContext(n *Narrative, domain string) *models.BusinessContext {
	var parts []string
	if n.Purpose != "" {
		parts = append(parts, n.Purpose)
	}
	for _, r := range n.BusinessRules {
		parts = append(parts, "- "+r)
	}
	for _, d := range n.Defaults {
		parts = append(parts, "- Default: "+d)
	}

	seen := map[string]bool{}
	var keywords []string
	for _, col := range n.Columns {
		for _, syn := range col.Synonyms {
			key := strings.ToLower(syn)
			if !seen[key] {
				seen[key] = true
				keywords = append(keywords, syn)
			}
		}
	}

	return &models.BusinessContext{
		Domain:      domain,
		Title:       n.TargetName,
		Description: strings.Join(parts, "\n"),
		Keywords:    keywords,
		Examples:    strings.Join(n.TypicalQuestions, "\n"),
	}
}

// storeTemplate applies the prompt override rules: a narrative template never
// silently replaces an existing active one unless the document says
// "override: true".
func (i *Ingestor) storeTemplate(ctx context.Context, n *Narrative) (bool, error) {
	active, err := i.templates.GetActive(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check active template: %w", err)
	}

	if active != nil {
		if !n.OverrideRequested {
			i.logger.Warn("Narrative carries a prompt template but an active one exists; skipping (set 'override: true' to replace)",
				zap.String("target", n.TargetName))
			return false, nil
		}
		if err := i.templates.DeactivateAll(ctx); err != nil {
			return false, fmt.Errorf("failed to deactivate templates: %w", err)
		}
	}

	t := &models.PromptTemplate{
		Template: n.PromptOverride,
		IsActive: true,
	}
	if err := i.templates.Insert(ctx, t); err != nil {
		return false, fmt.Errorf("failed to store prompt template: %w", err)
	}
	return true, nil
}
