package narrative

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/popfly/queryweaver/pkg/models"
	"github.com/popfly/queryweaver/pkg/warehouse"
)

type fakeColumnRepo struct {
	upserts []*models.ColumnMetadata
}

func (f *fakeColumnRepo) Upsert(_ context.Context, meta *models.ColumnMetadata) error {
	f.upserts = append(f.upserts, meta)
	return nil
}

func (f *fakeColumnRepo) GetByTarget(context.Context, string) ([]*models.ColumnMetadata, error) {
	return nil, nil
}

func (f *fakeColumnRepo) Get(context.Context, string, string) (*models.ColumnMetadata, error) {
	return nil, nil
}

func (f *fakeColumnRepo) Delete(context.Context, string, string) error { return nil }

type fakeContextRepo struct {
	upserts []*models.BusinessContext
}

func (f *fakeContextRepo) Upsert(_ context.Context, bc *models.BusinessContext) error {
	f.upserts = append(f.upserts, bc)
	return nil
}

func (f *fakeContextRepo) GetByDomain(context.Context, string) (*models.BusinessContext, error) {
	return nil, nil
}

type fakeTemplateRepo struct {
	active      *models.PromptTemplate
	inserts     []*models.PromptTemplate
	deactivated bool
}

func (f *fakeTemplateRepo) GetActive(context.Context) (*models.PromptTemplate, error) {
	return f.active, nil
}

func (f *fakeTemplateRepo) Insert(_ context.Context, t *models.PromptTemplate) error {
	f.inserts = append(f.inserts, t)
	if t.IsActive {
		f.active = t
	}
	return nil
}

func (f *fakeTemplateRepo) DeactivateAll(context.Context) error {
	f.deactivated = true
	f.active = nil
	return nil
}

func newTestIngestor(cols *fakeColumnRepo, ctxs *fakeContextRepo, tpls *fakeTemplateRepo, exec warehouse.Executor) *Ingestor {
	return NewIngestor(cols, ctxs, tpls, exec, zap.NewNop())
}

func TestIngest_StoresColumnsAndContexts(t *testing.T) {
	cols := &fakeColumnRepo{}
	ctxs := &fakeContextRepo{}
	tpls := &fakeTemplateRepo{}

	ing := newTestIngestor(cols, ctxs, tpls, nil)

	result, err := ing.Ingest(context.Background(), sampleNarrative, false)
	require.NoError(t, err)

	assert.Equal(t, "ANALYTICS.PUBLIC.ORDERS_SUMMARY", result.TargetName)
	assert.Equal(t, 2, result.ColumnsUpserted)
	assert.True(t, result.ContextUpserted)

	require.Len(t, cols.upserts, 2)
	assert.Equal(t, "TOTAL_AMOUNT", cols.upserts[0].ColumnName)
	assert.Equal(t, []string{"revenue", "sales", "order value"}, cols.upserts[0].Keywords)

	// One context row per domain, both carrying the consolidated description.
	require.Len(t, ctxs.upserts, 2)
	assert.Equal(t, "sales", ctxs.upserts[0].Domain)
	assert.Equal(t, "finance", ctxs.upserts[1].Domain)
	assert.Contains(t, ctxs.upserts[0].Description, "One row per order")
	assert.Contains(t, ctxs.upserts[0].Description, "Fiscal year starts in February.")
	assert.Contains(t, ctxs.upserts[0].Description, "Default: Date ranges default to the last 30 days.")
	assert.Contains(t, ctxs.upserts[0].Examples, "What was total revenue last month?")
	assert.Contains(t, ctxs.upserts[0].Keywords, "revenue")
	assert.Contains(t, ctxs.upserts[0].Keywords, "purchase date")
}

func TestIngest_SensitiveDataWarning(t *testing.T) {
	ing := newTestIngestor(&fakeColumnRepo{}, &fakeContextRepo{}, &fakeTemplateRepo{}, nil)

	result, err := ing.Ingest(context.Background(), sampleNarrative, false)
	require.NoError(t, err)

	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[len(result.Warnings)-1], "CUSTOMER_EMAIL")
}

func TestIngest_UnknownColumnWarning(t *testing.T) {
	exec := &warehouse.MockExecutor{
		DescribeColumnsFunc: func(context.Context, string) ([]string, error) {
			return []string{"TOTAL_AMOUNT", "STATUS"}, nil
		},
	}

	ing := newTestIngestor(&fakeColumnRepo{}, &fakeContextRepo{}, &fakeTemplateRepo{}, exec)

	result, err := ing.Ingest(context.Background(), sampleNarrative, false)
	require.NoError(t, err)

	var found bool
	for _, w := range result.Warnings {
		if w == "column ORDER_DATE is described in the narrative but does not exist on ANALYTICS.PUBLIC.ORDERS_SUMMARY" {
			found = true
		}
	}
	assert.True(t, found, "expected unknown-column warning, got %v", result.Warnings)
}

func TestIngest_DescribeFailureIsWarningOnly(t *testing.T) {
	exec := &warehouse.MockExecutor{
		DescribeColumnsFunc: func(context.Context, string) ([]string, error) {
			return nil, assert.AnError
		},
	}

	cols := &fakeColumnRepo{}
	ing := newTestIngestor(cols, &fakeContextRepo{}, &fakeTemplateRepo{}, exec)

	result, err := ing.Ingest(context.Background(), sampleNarrative, false)
	require.NoError(t, err)

	assert.Contains(t, result.Warnings[0], "could not verify columns")
	assert.Len(t, cols.upserts, 2)
}

func TestIngest_DryRunWritesNothing(t *testing.T) {
	cols := &fakeColumnRepo{}
	ctxs := &fakeContextRepo{}
	tpls := &fakeTemplateRepo{}

	ing := newTestIngestor(cols, ctxs, tpls, nil)

	result, err := ing.Ingest(context.Background(), sampleNarrative, true)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 2, result.ColumnsUpserted)
	assert.Empty(t, cols.upserts)
	assert.Empty(t, ctxs.upserts)
	assert.Empty(t, tpls.inserts)
}

func TestIngest_TemplateOverrideReplacesActive(t *testing.T) {
	tpls := &fakeTemplateRepo{active: &models.PromptTemplate{IsActive: true}}

	ing := newTestIngestor(&fakeColumnRepo{}, &fakeContextRepo{}, tpls, nil)

	result, err := ing.Ingest(context.Background(), sampleNarrative, false)
	require.NoError(t, err)

	assert.True(t, result.TemplateStored)
	assert.True(t, tpls.deactivated)
	require.Len(t, tpls.inserts, 1)
	assert.True(t, tpls.inserts[0].IsActive)
	assert.Contains(t, tpls.inserts[0].Template, "[[USER_QUERY]]")
}

func TestIngest_TemplateSkippedWithoutOverrideMarker(t *testing.T) {
	doc := "# ORDERS (domain: sales)\n\n## Prompt Override\nCustom [[USER_QUERY]]"
	tpls := &fakeTemplateRepo{active: &models.PromptTemplate{IsActive: true}}

	ing := newTestIngestor(&fakeColumnRepo{}, &fakeContextRepo{}, tpls, nil)

	result, err := ing.Ingest(context.Background(), doc, false)
	require.NoError(t, err)

	assert.False(t, result.TemplateStored)
	assert.True(t, result.TemplateSkipped)
	assert.False(t, tpls.deactivated)
	assert.Empty(t, tpls.inserts)
}

func TestIngest_TemplateStoredWhenNoneActive(t *testing.T) {
	doc := "# ORDERS (domain: sales)\n\n## Prompt Override\nCustom [[USER_QUERY]]"
	tpls := &fakeTemplateRepo{}

	ing := newTestIngestor(&fakeColumnRepo{}, &fakeContextRepo{}, tpls, nil)

	result, err := ing.Ingest(context.Background(), doc, false)
	require.NoError(t, err)

	assert.True(t, result.TemplateStored)
	require.Len(t, tpls.inserts, 1)
}

func TestIngest_ReingestIsIdempotent(t *testing.T) {
	cols := &fakeColumnRepo{}
	ctxs := &fakeContextRepo{}
	tpls := &fakeTemplateRepo{}

	ing := newTestIngestor(cols, ctxs, tpls, nil)

	_, err := ing.Ingest(context.Background(), sampleNarrative, false)
	require.NoError(t, err)
	_, err = ing.Ingest(context.Background(), sampleNarrative, false)
	require.NoError(t, err)

	// Every write is a full-replacement upsert, so the second run's payloads
	// are identical to the first: no concatenated keywords, no doubled rules.
	require.Len(t, cols.upserts, 4)
	assert.Equal(t, cols.upserts[0], cols.upserts[2])
	assert.Equal(t, cols.upserts[1], cols.upserts[3])
	assert.Equal(t, []string{"revenue", "sales", "order value"}, cols.upserts[2].Keywords)

	require.Len(t, ctxs.upserts, 4)
	assert.Equal(t, ctxs.upserts[0].Description, ctxs.upserts[2].Description)
	assert.Equal(t, ctxs.upserts[0].Keywords, ctxs.upserts[2].Keywords)
	assert.Equal(t, ctxs.upserts[1].Examples, ctxs.upserts[3].Examples)

	// The override replaces the template from the first run, never stacks a
	// second active one beside it.
	require.Len(t, tpls.inserts, 2)
	assert.True(t, tpls.deactivated)
	assert.Equal(t, tpls.inserts[0].Template, tpls.inserts[1].Template)
	require.NotNil(t, tpls.active)
	assert.Same(t, tpls.inserts[1], tpls.active)
}

func TestIngest_ChangedMeaningReplacesStoredValue(t *testing.T) {
	cols := &fakeColumnRepo{}
	ing := newTestIngestor(cols, &fakeContextRepo{}, &fakeTemplateRepo{}, nil)

	_, err := ing.Ingest(context.Background(), sampleNarrative, false)
	require.NoError(t, err)

	revised := strings.Replace(sampleNarrative,
		"Order value in USD including tax",
		"Order value in USD excluding tax", 1)
	_, err = ing.Ingest(context.Background(), revised, false)
	require.NoError(t, err)

	require.Len(t, cols.upserts, 4)
	assert.Equal(t, "TOTAL_AMOUNT", cols.upserts[2].ColumnName)
	assert.Equal(t, "Order value in USD excluding tax", cols.upserts[2].BusinessMeaning)
	assert.NotContains(t, cols.upserts[2].BusinessMeaning, "including")
	assert.Equal(t, cols.upserts[0].Keywords, cols.upserts[2].Keywords)
}

func TestIngest_MalformedDocument(t *testing.T) {
	ing := newTestIngestor(&fakeColumnRepo{}, &fakeContextRepo{}, &fakeTemplateRepo{}, nil)

	_, err := ing.Ingest(context.Background(), "no header here", false)
	require.Error(t, err)
}
