package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/popfly/queryweaver/pkg/apperrors"
	"github.com/popfly/queryweaver/pkg/models"
)

type fakeToolRepo struct {
	tools   []*models.ToolDefinition
	groups  []*models.CallerGroup
	access  []*models.ToolGroupAccess
	listErr error
}

func (f *fakeToolRepo) ListActiveTools(context.Context) ([]*models.ToolDefinition, error) {
	return f.tools, f.listErr
}

func (f *fakeToolRepo) ListActiveGroups(context.Context) ([]*models.CallerGroup, error) {
	return f.groups, nil
}

func (f *fakeToolRepo) ListAccess(context.Context) ([]*models.ToolGroupAccess, error) {
	return f.access, nil
}

func noopHandler(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText("ok"), nil
}

func testRepo() (*fakeToolRepo, uuid.UUID, uuid.UUID) {
	healthID := uuid.New()
	queryID := uuid.New()
	defaultGroupID := uuid.New()
	analystsGroupID := uuid.New()

	repo := &fakeToolRepo{
		tools: []*models.ToolDefinition{
			{ID: healthID, Name: "health", HandlerModule: "builtin", HandlerFunction: "health", IsShared: true, IsActive: true},
			{ID: queryID, Name: "query_target", HandlerModule: "builtin", HandlerFunction: "query_target", IsActive: true},
		},
		groups: []*models.CallerGroup{
			{ID: defaultGroupID, Name: "Default", GroupPath: "default", IsActive: true, IsDefault: true},
			{ID: analystsGroupID, Name: "Analysts", GroupPath: "analysts", IsActive: true},
		},
		access: []*models.ToolGroupAccess{
			{ToolID: queryID, GroupID: analystsGroupID},
		},
	}
	return repo, defaultGroupID, analystsGroupID
}

func testCatalog() Catalog {
	return Catalog{
		"builtin.health":       noopHandler,
		"builtin.query_target": noopHandler,
	}
}

func TestLoad_BuildsVisibility(t *testing.T) {
	repo, _, _ := testRepo()
	r := New(repo, testCatalog(), zap.NewNop())
	require.NoError(t, r.Load(context.Background()))

	// Shared tool visible everywhere, restricted tool only where granted.
	defaultTools, err := r.ListTools("default")
	require.NoError(t, err)
	require.Len(t, defaultTools, 1)
	assert.Equal(t, "health", defaultTools[0].Def.Name)

	analystTools, err := r.ListTools("analysts")
	require.NoError(t, err)
	require.Len(t, analystTools, 2)
	assert.Equal(t, "health", analystTools[0].Def.Name)
	assert.Equal(t, "query_target", analystTools[1].Def.Name)
}

func TestLoad_StoreFailureIsFatal(t *testing.T) {
	repo, _, _ := testRepo()
	repo.listErr = assert.AnError

	r := New(repo, testCatalog(), zap.NewNop())
	require.Error(t, r.Load(context.Background()))
}

func TestLoad_UnresolvedHandlerIsSkipped(t *testing.T) {
	repo, _, _ := testRepo()
	repo.tools = append(repo.tools, &models.ToolDefinition{
		ID: uuid.New(), Name: "broken", HandlerModule: "builtin", HandlerFunction: "does_not_exist", IsShared: true,
	})

	r := New(repo, testCatalog(), zap.NewNop())
	require.NoError(t, r.Load(context.Background()), "one bad row must not block startup")

	tools, err := r.ListTools("default")
	require.NoError(t, err)
	for _, tool := range tools {
		assert.NotEqual(t, "broken", tool.Def.Name)
	}
}

func TestListTools_UnknownGroup(t *testing.T) {
	repo, _, _ := testRepo()
	r := New(repo, testCatalog(), zap.NewNop())
	require.NoError(t, r.Load(context.Background()))

	_, err := r.ListTools("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnknownGroup)
}

func TestResolve(t *testing.T) {
	repo, _, _ := testRepo()
	r := New(repo, testCatalog(), zap.NewNop())
	require.NoError(t, r.Load(context.Background()))

	t.Run("visible tool", func(t *testing.T) {
		tool, err := r.Resolve("analysts", "query_target")
		require.NoError(t, err)
		assert.Equal(t, "query_target", tool.Def.Name)
		assert.NotNil(t, tool.Handler)
	})

	t.Run("tool exists but not granted", func(t *testing.T) {
		_, err := r.Resolve("default", "query_target")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrToolNotAllowed)
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := r.Resolve("default", "bogus")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnknownTool)
	})

	t.Run("unknown group never falls back", func(t *testing.T) {
		_, err := r.Resolve("strangers", "health")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnknownGroup)
	})
}

func TestDefaultGroup(t *testing.T) {
	repo, _, _ := testRepo()
	r := New(repo, testCatalog(), zap.NewNop())
	require.NoError(t, r.Load(context.Background()))

	dg := r.DefaultGroup()
	require.NotNil(t, dg)
	assert.Equal(t, "default", dg.GroupPath)
}

func TestDefaultGroup_NoneMarked(t *testing.T) {
	repo, _, _ := testRepo()
	for _, g := range repo.groups {
		g.IsDefault = false
	}

	r := New(repo, testCatalog(), zap.NewNop())
	require.NoError(t, r.Load(context.Background()))

	assert.Nil(t, r.DefaultGroup())
}

func TestGroups_Sorted(t *testing.T) {
	repo, _, _ := testRepo()
	r := New(repo, testCatalog(), zap.NewNop())
	require.NoError(t, r.Load(context.Background()))

	groups := r.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "analysts", groups[0].GroupPath)
	assert.Equal(t, "default", groups[1].GroupPath)
}
