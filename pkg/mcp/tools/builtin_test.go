package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/popfly/queryweaver/pkg/generator"
	"github.com/popfly/queryweaver/pkg/llm"
	"github.com/popfly/queryweaver/pkg/models"
	"github.com/popfly/queryweaver/pkg/warehouse"
)

type fakeConstraintRepo struct {
	constraints map[string]*models.QueryConstraint
}

func (f *fakeConstraintRepo) GetByTarget(_ context.Context, target string) (*models.QueryConstraint, error) {
	return f.constraints[target], nil
}

func (f *fakeConstraintRepo) ListTargets(context.Context) ([]*models.QueryConstraint, error) {
	var out []*models.QueryConstraint
	for _, c := range f.constraints {
		out = append(out, c)
	}
	return out, nil
}

type emptyColumnRepo struct{}

func (emptyColumnRepo) Upsert(context.Context, *models.ColumnMetadata) error { return nil }
func (emptyColumnRepo) GetByTarget(context.Context, string) ([]*models.ColumnMetadata, error) {
	return nil, nil
}
func (emptyColumnRepo) Get(context.Context, string, string) (*models.ColumnMetadata, error) {
	return nil, nil
}
func (emptyColumnRepo) Delete(context.Context, string, string) error { return nil }

type emptyContextRepo struct{}

func (emptyContextRepo) Upsert(context.Context, *models.BusinessContext) error { return nil }
func (emptyContextRepo) GetByDomain(context.Context, string) (*models.BusinessContext, error) {
	return nil, nil
}

type emptyTemplateRepo struct{}

func (emptyTemplateRepo) GetActive(context.Context) (*models.PromptTemplate, error) {
	return nil, nil
}
func (emptyTemplateRepo) Insert(context.Context, *models.PromptTemplate) error { return nil }
func (emptyTemplateRepo) DeactivateAll(context.Context) error                  { return nil }

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func testDeps(completion string, executor warehouse.Executor) *Deps {
	constraints := &fakeConstraintRepo{constraints: map[string]*models.QueryConstraint{
		"ORDERS_SUMMARY": {
			TargetName:     "ORDERS_SUMMARY",
			Domain:         "sales",
			AllowedColumns: []string{"ORDER_ID", "TOTAL_AMOUNT", "STATUS"},
			DefaultMaxRows: 1000,
			MaxRows:        10000,
		},
	}}

	client := llm.NewMockCompletionClient()
	client.CompleteFunc = func(context.Context, llm.CompletionRequest) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{Content: completion}, nil
	}

	gen := generator.New(constraints, emptyColumnRepo{}, emptyContextRepo{}, emptyTemplateRepo{},
		client, generator.Defaults{Temperature: 0.1, MaxTokens: 1200}, zap.NewNop())

	return &Deps{
		Version:     "test",
		Constraints: constraints,
		Generator:   gen,
		Executor:    executor,
		Logger:      zap.NewNop(),
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHealthHandler(t *testing.T) {
	deps := testDeps("", &warehouse.MockExecutor{})
	handler := Catalog(deps)["builtin.health"]

	result, err := handler(context.Background(), callRequest("health", nil))
	require.NoError(t, err)

	var out healthResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "test", out.Version)
}

func TestEchoHandler(t *testing.T) {
	deps := testDeps("", &warehouse.MockExecutor{})
	handler := Catalog(deps)["builtin.echo"]

	result, err := handler(context.Background(), callRequest("echo", map[string]any{"message": "ping"}))
	require.NoError(t, err)
	assert.Equal(t, "ping", resultText(t, result))

	result, err = handler(context.Background(), callRequest("echo", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestListTargetsHandler(t *testing.T) {
	deps := testDeps("", &warehouse.MockExecutor{})
	handler := Catalog(deps)["builtin.list_targets"]

	result, err := handler(context.Background(), callRequest("list_targets", nil))
	require.NoError(t, err)

	var out struct {
		Targets []targetSummary `json:"targets"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	require.Len(t, out.Targets, 1)
	assert.Equal(t, "ORDERS_SUMMARY", out.Targets[0].Target)
	assert.Equal(t, 10000, out.Targets[0].MaxRows)
}

func TestQueryTargetHandler_Success(t *testing.T) {
	executor := &warehouse.MockExecutor{
		QueryFunc: func(_ context.Context, sql string, maxRows int) (*warehouse.ResultSet, error) {
			assert.Equal(t, 1000, maxRows, "default row cap applies when none requested")
			return &warehouse.ResultSet{
				Columns: []string{"order_id", "total_amount"},
				Rows:    [][]any{{int64(1), 19.99}},
			}, nil
		},
	}
	deps := testDeps("SELECT order_id, total_amount FROM orders_summary LIMIT 100", executor)
	handler := Catalog(deps)["builtin.query_target"]

	result, err := handler(context.Background(), callRequest("query_target", map[string]any{
		"target":   "ORDERS_SUMMARY",
		"question": "recent orders",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out queryResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.RowCount)
	assert.Equal(t, "SELECT order_id, total_amount FROM orders_summary LIMIT 100", out.SQL)
	assert.Equal(t, []string{"order_id", "total_amount"}, out.Columns)
}

func TestQueryTargetHandler_RejectionIsErrorResult(t *testing.T) {
	executor := &warehouse.MockExecutor{}
	deps := testDeps("DROP TABLE orders_summary", executor)
	handler := Catalog(deps)["builtin.query_target"]

	result, err := handler(context.Background(), callRequest("query_target", map[string]any{
		"target":   "ORDERS_SUMMARY",
		"question": "remove the table",
	}))
	require.NoError(t, err, "rejections are error results, not protocol errors")
	require.True(t, result.IsError)

	var out ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, "query_rejected", out.Code)
	assert.Contains(t, out.Message, "DROP")
	assert.Empty(t, executor.QueryCalls, "rejected SQL must never reach the warehouse")

	// The rejected statement and prompt metadata ride along for the audit log.
	details, ok := out.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DROP TABLE orders_summary", details["generated_sql"])
	assert.Contains(t, details, "prompt_char_count")
	assert.Contains(t, details, "relevant_columns_k")
}

func TestQueryTargetHandler_UnknownTarget(t *testing.T) {
	deps := testDeps("SELECT 1", &warehouse.MockExecutor{})
	handler := Catalog(deps)["builtin.query_target"]

	result, err := handler(context.Background(), callRequest("query_target", map[string]any{
		"target":   "NOPE",
		"question": "anything",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "unknown_target")
}

func TestQueryTargetHandler_MissingParams(t *testing.T) {
	deps := testDeps("SELECT 1", &warehouse.MockExecutor{})
	handler := Catalog(deps)["builtin.query_target"]

	result, err := handler(context.Background(), callRequest("query_target", map[string]any{
		"target": "ORDERS_SUMMARY",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRowCap(t *testing.T) {
	resp := &generator.Response{Constraint: &models.QueryConstraint{DefaultMaxRows: 1000, MaxRows: 10000}}

	assert.Equal(t, 1000, rowCap(0, resp), "no request uses the default")
	assert.Equal(t, 500, rowCap(500, resp), "requests under the ceiling pass through")
	assert.Equal(t, 10000, rowCap(50000, resp), "requests above the ceiling clamp")
}
