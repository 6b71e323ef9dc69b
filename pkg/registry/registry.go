// Package registry builds the runtime tool surface from the registry tables.
// The database decides WHICH tools exist and WHO sees them; the compiled
// handler catalog decides WHAT each tool does. Dispatch is a map lookup on
// the stored "module.function" reference, never reflection.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/popfly/queryweaver/pkg/apperrors"
	"github.com/popfly/queryweaver/pkg/models"
	"github.com/popfly/queryweaver/pkg/repositories"
)

// Catalog maps "module.function" handler references to compiled handlers.
type Catalog map[string]server.ToolHandlerFunc

// RegisteredTool pairs a stored definition with its resolved handler.
type RegisteredTool struct {
	Def     *models.ToolDefinition
	Handler server.ToolHandlerFunc
}

// Registry is the loaded tool surface. It is built once at startup and read
// concurrently afterwards; changing the registry tables requires a restart.
type Registry struct {
	repo    repositories.ToolRepository
	catalog Catalog
	logger  *zap.Logger

	tools      map[string]*RegisteredTool // by tool name
	groups     map[string]*models.CallerGroup
	visibility map[string]map[string]bool // group path -> tool name -> visible
}

// New creates an unloaded Registry.
func New(repo repositories.ToolRepository, catalog Catalog, logger *zap.Logger) *Registry {
	return &Registry{
		repo:    repo,
		catalog: catalog,
		logger:  logger.Named("registry"),
	}
}

// Load reads tools, groups and access rows. An unreachable store is fatal:
// the service must not start with a guessed tool surface. A tool whose
// handler reference resolves to nothing is skipped with a warning so one bad
// row cannot take down the rest of the surface.
func (r *Registry) Load(ctx context.Context) error {
	toolRows, err := r.repo.ListActiveTools(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tool registry: %w", err)
	}
	groupRows, err := r.repo.ListActiveGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to load caller groups: %w", err)
	}
	accessRows, err := r.repo.ListAccess(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tool access rows: %w", err)
	}

	tools := make(map[string]*RegisteredTool, len(toolRows))
	toolsByID := make(map[string]*models.ToolDefinition, len(toolRows))
	for _, def := range toolRows {
		handler, ok := r.catalog[def.HandlerRef()]
		if !ok {
			r.logger.Warn("Tool references an unknown handler; skipping",
				zap.String("tool", def.Name),
				zap.String("handler", def.HandlerRef()))
			continue
		}
		tools[def.Name] = &RegisteredTool{Def: def, Handler: handler}
		toolsByID[def.ID.String()] = def
	}

	groups := make(map[string]*models.CallerGroup, len(groupRows))
	for _, g := range groupRows {
		groups[g.GroupPath] = g
	}
	groupsByID := make(map[string]*models.CallerGroup, len(groupRows))
	for _, g := range groupRows {
		groupsByID[g.ID.String()] = g
	}

	visibility := make(map[string]map[string]bool, len(groups))
	for path := range groups {
		visibility[path] = make(map[string]bool)
	}

	// Shared tools are visible to every group; the rest need an access row.
	for _, tool := range tools {
		if tool.Def.IsShared {
			for path := range visibility {
				visibility[path][tool.Def.Name] = true
			}
		}
	}
	for _, access := range accessRows {
		def, ok := toolsByID[access.ToolID.String()]
		if !ok {
			continue
		}
		group, ok := groupsByID[access.GroupID.String()]
		if !ok {
			continue
		}
		visibility[group.GroupPath][def.Name] = true
	}

	r.tools = tools
	r.groups = groups
	r.visibility = visibility

	r.logger.Info("Tool registry loaded",
		zap.Int("tools", len(tools)),
		zap.Int("groups", len(groups)))

	return nil
}

// Groups returns the loaded caller groups sorted by path.
func (r *Registry) Groups() []*models.CallerGroup {
	out := make([]*models.CallerGroup, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupPath < out[j].GroupPath })
	return out
}

// DefaultGroup returns the group whose default flag is set, or nil when no
// group is marked default. Should more than one row carry the flag, the first
// by path order wins so the choice is stable across restarts.
func (r *Registry) DefaultGroup() *models.CallerGroup {
	for _, g := range r.Groups() {
		if g.IsDefault {
			return g
		}
	}
	return nil
}

// ListTools returns the tools visible to one caller group, sorted by name.
// An unknown group path is a hard rejection, never a fallback to the default
// group's surface.
func (r *Registry) ListTools(groupPath string) ([]*RegisteredTool, error) {
	visible, ok := r.visibility[groupPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownGroup, groupPath)
	}

	out := make([]*RegisteredTool, 0, len(visible))
	for name := range visible {
		if tool, ok := r.tools[name]; ok {
			out = append(out, tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Def.Name < out[j].Def.Name })
	return out, nil
}

// Resolve returns the handler for one (group, tool) pair, distinguishing a
// tool that does not exist from one the group cannot see.
func (r *Registry) Resolve(groupPath, toolName string) (*RegisteredTool, error) {
	visible, ok := r.visibility[groupPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownGroup, groupPath)
	}

	tool, ok := r.tools[toolName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownTool, toolName)
	}

	if !visible[toolName] {
		return nil, fmt.Errorf("%w: %s is not available to group %s",
			apperrors.ErrToolNotAllowed, toolName, groupPath)
	}

	return tool, nil
}
