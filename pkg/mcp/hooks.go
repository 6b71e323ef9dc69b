package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/popfly/queryweaver/pkg/audit"
)

// AuditHooks bridges mcp-go server hooks to the activity log. The before hook
// assigns the request UUID and records the pre entry; the after and error
// hooks record the post entry under the same UUID.
type AuditHooks struct {
	log *audit.Logger

	// inflight tracks per-call state keyed by the protocol message ID.
	inflight sync.Map
}

type callState struct {
	requestID uuid.UUID
	start     time.Time
}

// NewAuditHooks creates an AuditHooks.
func NewAuditHooks(log *audit.Logger) *AuditHooks {
	return &AuditHooks{log: log}
}

// Hooks returns mcp-go Hooks wired to record tool calls.
func (a *AuditHooks) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *AuditHooks) beforeCallTool(_ context.Context, id any, req *mcplib.CallToolRequest) {
	state := callState{requestID: uuid.New(), start: time.Now()}
	a.inflight.Store(id, state)

	raw, _ := json.Marshal(req.Params)
	a.log.LogPre(state.requestID, req.Params.Name, arguments(req), string(raw))
}

func (a *AuditHooks) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	state := a.loadAndDelete(id)

	outcome := audit.Outcome{
		Success:   result == nil || !result.IsError,
		ElapsedMs: int(time.Since(state.start).Milliseconds()),
	}
	if args := arguments(req); args != nil {
		if q, ok := args["question"].(string); ok {
			outcome.NaturalQuery = q
		}
	}
	applyResultMetadata(&outcome, result)

	a.log.LogPost(state.requestID, req.Params.Name, outcome)
}

func (a *AuditHooks) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	state := a.loadAndDelete(id)

	outcome := audit.Outcome{
		Success:   false,
		ElapsedMs: int(time.Since(state.start).Milliseconds()),
	}
	if args := arguments(req); args != nil {
		if q, ok := args["question"].(string); ok {
			outcome.NaturalQuery = q
		}
	}

	a.log.LogPost(state.requestID, req.Params.Name, outcome)
}

func (a *AuditHooks) loadAndDelete(id any) callState {
	if v, ok := a.inflight.LoadAndDelete(id); ok {
		return v.(callState)
	}
	// Missing pre state still yields a post entry, just with a fresh UUID.
	return callState{requestID: uuid.New(), start: time.Now()}
}

func arguments(req *mcplib.CallToolRequest) map[string]any {
	if req == nil {
		return nil
	}
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// applyResultMetadata pulls generation metadata out of the tool's JSON result
// text. Successful results carry the fields at the top level; rejections
// carry them inside the error envelope's details, and both shapes must end up
// in the activity log. Tools that emit neither simply leave them null.
func applyResultMetadata(outcome *audit.Outcome, result *mcplib.CallToolResult) {
	if result == nil {
		return
	}
	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		var partial struct {
			SQL              string `json:"sql"`
			RowCount         *int   `json:"row_count"`
			PromptID         string `json:"prompt_id"`
			PromptCharCount  *int   `json:"prompt_char_count"`
			RelevantColumnsK *int   `json:"relevant_columns_k"`
			Details          *struct {
				SQL              string `json:"sql"`
				GeneratedSQL     string `json:"generated_sql"`
				PromptID         string `json:"prompt_id"`
				PromptCharCount  *int   `json:"prompt_char_count"`
				RelevantColumnsK *int   `json:"relevant_columns_k"`
			} `json:"details"`
		}
		if err := json.Unmarshal([]byte(tc.Text), &partial); err != nil {
			return
		}
		if d := partial.Details; d != nil {
			if partial.SQL == "" {
				partial.SQL = d.GeneratedSQL
			}
			if partial.SQL == "" {
				partial.SQL = d.SQL
			}
			if partial.PromptID == "" {
				partial.PromptID = d.PromptID
			}
			if partial.PromptCharCount == nil {
				partial.PromptCharCount = d.PromptCharCount
			}
			if partial.RelevantColumnsK == nil {
				partial.RelevantColumnsK = d.RelevantColumnsK
			}
		}
		outcome.GeneratedSQL = audit.RedactSQLLiterals(partial.SQL)
		outcome.RowCount = partial.RowCount
		outcome.PromptID = partial.PromptID
		outcome.PromptCharCount = partial.PromptCharCount
		outcome.RelevantColumnsK = partial.RelevantColumnsK
		return
	}
}
