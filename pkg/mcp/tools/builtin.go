// Package tools implements the compiled handler catalog. The registry tables
// decide which of these are exposed and to whom; the code here only decides
// what each handler does when called.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/popfly/queryweaver/pkg/apperrors"
	"github.com/popfly/queryweaver/pkg/generator"
	"github.com/popfly/queryweaver/pkg/registry"
	"github.com/popfly/queryweaver/pkg/repositories"
	"github.com/popfly/queryweaver/pkg/warehouse"
)

// Deps carries everything the builtin handlers need.
type Deps struct {
	Version     string
	Constraints repositories.ConstraintRepository
	Generator   *generator.Generator
	Executor    warehouse.Executor
	Logger      *zap.Logger
}

// Catalog returns the compiled handler catalog keyed by the
// "module.function" references stored in the registry tables.
func Catalog(deps *Deps) registry.Catalog {
	return registry.Catalog{
		"builtin.health":       healthHandler(deps),
		"builtin.echo":         echoHandler(),
		"builtin.list_targets": listTargetsHandler(deps),
		"builtin.query_target": queryTargetHandler(deps),
	}
}

type healthResult struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func healthHandler(deps *Deps) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := json.Marshal(healthResult{Status: "ok", Version: deps.Version})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	}
}

func echoHandler() func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message := req.GetString("message", "")
		if message == "" {
			return NewErrorResult("missing_parameter", "message is required"), nil
		}
		return mcp.NewToolResultText(message), nil
	}
}

type targetSummary struct {
	Target            string   `json:"target"`
	Domain            string   `json:"domain"`
	AllowedOperations []string `json:"allowed_operations"`
	AllowedColumns    []string `json:"allowed_columns,omitempty"`
	MaxRows           int      `json:"max_rows"`
}

func listTargetsHandler(deps *Deps) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		constraints, err := deps.Constraints.ListTargets(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list targets: %w", err)
		}

		summaries := make([]targetSummary, 0, len(constraints))
		for _, c := range constraints {
			summaries = append(summaries, targetSummary{
				Target:            c.TargetName,
				Domain:            c.Domain,
				AllowedOperations: c.AllowedOperations,
				AllowedColumns:    c.AllowedColumns,
				MaxRows:           c.MaxRows,
			})
		}

		result, err := json.Marshal(map[string]any{"targets": summaries})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal targets: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	}
}

// queryResult is the query_target response. The prompt fields exist so the
// activity log can record generation metadata without a second store read.
type queryResult struct {
	Success          bool     `json:"success"`
	SQL              string   `json:"sql"`
	Question         string   `json:"question"`
	Columns          []string `json:"columns"`
	Rows             [][]any  `json:"rows"`
	RowCount         int      `json:"row_count"`
	Truncated        bool     `json:"truncated"`
	Warnings         []string `json:"warnings,omitempty"`
	ElapsedMs        int64    `json:"elapsed_ms"`
	CompletionMs     int64    `json:"completion_ms"`
	PromptID         string   `json:"prompt_id,omitempty"`
	PromptCharCount  int      `json:"prompt_char_count"`
	RelevantColumnsK int      `json:"relevant_columns_k"`
}

func queryTargetHandler(deps *Deps) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target := req.GetString("target", "")
		question := req.GetString("question", "")
		if target == "" || question == "" {
			return NewErrorResult("missing_parameter", "target and question are required"), nil
		}

		start := time.Now()

		genResp, err := deps.Generator.Generate(ctx, target, question)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
				return NewErrorResult("unknown_target", fmt.Sprintf("target %s is not registered", target)), nil
			case errors.Is(err, apperrors.ErrEmptyCompletion):
				return NewErrorResult("empty_completion", "the model returned no SQL; try rephrasing the question"), nil
			default:
				return nil, err
			}
		}

		if !genResp.Success {
			// The validator's reason goes back verbatim so the caller knows
			// whether to rephrase or give up.
			return NewErrorResultWithDetails("query_rejected", genResp.FailureReason, map[string]any{
				"generated_sql":      genResp.RejectedSQL,
				"prompt_id":          promptID(genResp),
				"prompt_char_count":  genResp.PromptCharCount,
				"relevant_columns_k": genResp.RelevantColumnsK,
				"completion_ms":      genResp.CompletionMs,
			}), nil
		}

		maxRows := rowCap(req.GetInt("max_rows", 0), genResp)

		resultSet, err := deps.Executor.Query(ctx, genResp.SQL, maxRows)
		if err != nil {
			deps.Logger.Warn("Validated query failed at execution",
				zap.String("target", target),
				zap.Error(err))
			return NewErrorResultWithDetails("execution_failed", err.Error(), map[string]any{
				"sql": genResp.SQL,
			}), nil
		}

		out := queryResult{
			Success:          true,
			SQL:              genResp.SQL,
			Question:         question,
			Columns:          resultSet.Columns,
			Rows:             resultSet.Rows,
			RowCount:         len(resultSet.Rows),
			Truncated:        resultSet.Truncated,
			Warnings:         genResp.Warnings,
			ElapsedMs:        time.Since(start).Milliseconds(),
			CompletionMs:     genResp.CompletionMs,
			PromptID:         promptID(genResp),
			PromptCharCount:  genResp.PromptCharCount,
			RelevantColumnsK: genResp.RelevantColumnsK,
		}

		result, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal query result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	}
}

// rowCap resolves the effective row limit: the caller's request, defaulted
// and then clamped by the target's policy.
func rowCap(requested int, genResp *generator.Response) int {
	maxRows := genResp.Constraint.DefaultMaxRows
	if requested > 0 {
		maxRows = requested
	}
	if ceiling := genResp.Constraint.MaxRows; ceiling > 0 && maxRows > ceiling {
		maxRows = ceiling
	}
	if maxRows <= 0 {
		maxRows = 1000
	}
	return maxRows
}

func promptID(genResp *generator.Response) string {
	if genResp.PromptID == uuid.Nil {
		return ""
	}
	return genResp.PromptID.String()
}
