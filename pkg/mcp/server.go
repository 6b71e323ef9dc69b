// Package mcp exposes the tool surface over the Model Context Protocol. Each
// caller group gets its own MCP server carrying only the tools that group may
// see, mounted at /mcp/{group}.
package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/popfly/queryweaver/pkg/registry"
)

// Server routes MCP traffic to per-group servers. A group's tools/list only
// ever shows its own surface; tools it cannot see do not exist for it at the
// protocol level.
type Server struct {
	name         string
	version      string
	logger       *zap.Logger
	handlers     map[string]*server.StreamableHTTPServer
	defaultGroup string
}

// NewServer builds one MCP server per caller group from the loaded registry.
func NewServer(name, version string, reg *registry.Registry, hooks *AuditHooks, logger *zap.Logger) (*Server, error) {
	s := &Server{
		name:     name,
		version:  version,
		logger:   logger.Named("mcp"),
		handlers: make(map[string]*server.StreamableHTTPServer),
	}

	if dg := reg.DefaultGroup(); dg != nil {
		s.defaultGroup = dg.GroupPath
	}

	for _, group := range reg.Groups() {
		tools, err := reg.ListTools(group.GroupPath)
		if err != nil {
			return nil, fmt.Errorf("failed to build surface for group %s: %w", group.GroupPath, err)
		}

		mcpServer := server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(true),
			server.WithHooks(hooks.Hooks()),
		)

		for _, tool := range tools {
			mcpServer.AddTool(buildTool(tool), tool.Handler)
		}

		s.handlers[group.GroupPath] = server.NewStreamableHTTPServer(
			mcpServer,
			server.WithStateLess(true),
		)

		s.logger.Info("Mounted caller group",
			zap.String("group", group.GroupPath),
			zap.Int("tools", len(tools)))
	}

	return s, nil
}

// Handler returns the HTTP handler for /mcp/{group}. A bare /mcp serves the
// group marked default, and 404s when no group carries the flag. An unknown
// named group is an explicit 404; requests never fall through to another
// group's surface.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		group := strings.Trim(strings.TrimPrefix(r.URL.Path, "/mcp"), "/")
		if strings.Contains(group, "/") {
			writeNotFound(w, "malformed caller group path")
			return
		}
		if group == "" {
			if s.defaultGroup == "" {
				writeNotFound(w, "no default caller group is configured")
				return
			}
			group = s.defaultGroup
		}

		handler, ok := s.handlers[group]
		if !ok {
			s.logger.Warn("Request for unknown caller group", zap.String("group", group))
			writeNotFound(w, fmt.Sprintf("unknown caller group: %s", group))
			return
		}

		handler.ServeHTTP(w, r)
	})
}

func writeNotFound(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   true,
		"code":    "unknown_group",
		"message": message,
	})
}

// buildTool converts a stored definition into a protocol tool. A stored input
// schema is used verbatim; without one the tool advertises an empty object
// schema.
func buildTool(tool *registry.RegisteredTool) mcplib.Tool {
	def := tool.Def
	if len(def.InputSchema) > 0 {
		if raw, err := json.Marshal(def.InputSchema); err == nil {
			return mcplib.NewToolWithRawSchema(def.Name, def.Description, raw)
		}
	}
	return mcplib.NewTool(def.Name, mcplib.WithDescription(def.Description))
}
