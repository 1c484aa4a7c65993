package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/kraken/internal/catalog"
	"github.com/dshills/kraken/internal/indexer"
	"github.com/dshills/kraken/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

const (
	minLimit = 1
	maxLimit = 100
)

// searchHandler returns the handler of the search tool for entityType
func (s *Server) searchHandler(entityType types.EntityType) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
		}

		query, ok := args["query"].(string)
		if !ok || query == "" {
			return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
				"param":  "query",
				"reason": "missing or empty",
			})
		}

		modeName := getStringDefault(args, "mode", types.ModeHybrid.String())
		mode, err := types.ParseMode(modeName)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
				"param":   "mode",
				"value":   modeName,
				"allowed": types.ModeNames(),
			})
		}

		limit, err := getLimit(args)
		if err != nil {
			return nil, err
		}

		results, err := s.deps.Searchers[entityType].Search(ctx, query, mode, catalog.WithLimit(limit))
		switch {
		case errors.Is(err, catalog.ErrEmptyQuery):
			return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
				"param":  "query",
				"reason": "blank",
			})
		case err != nil:
			return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
				"error": err.Error(),
			})
		}

		items := make([]map[string]interface{}, 0, len(results))
		for i, r := range results {
			items = append(items, map[string]interface{}{
				"rank":   i + 1,
				"id":     r.Entity.ID,
				"score":  math.Round(r.Score*10000) / 10000,
				"method": r.Method,
				"fields": r.Entity.Fields,
			})
		}

		response := map[string]interface{}{
			"entity_type": string(entityType),
			"query":       query,
			"mode":        mode.String(),
			"count":       len(items),
			"results":     items,
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
}

// handleBuildIndex handles the build_index tool invocation
func (s *Server) handleBuildIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	entityTypes, err := parseEntityTypes(getStringDefault(args, "entity_type", entityTypeAll))
	if err != nil {
		return nil, err
	}
	force := getBoolDefault(args, "force", false)

	stats, err := s.deps.Indexer.Prepare(ctx, force, entityTypes...)
	switch {
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	indexes := make([]map[string]interface{}, 0, len(stats.Results))
	for _, r := range stats.Results {
		indexes = append(indexes, map[string]interface{}{
			"entity_type": string(r.EntityType),
			"index":       r.Index,
			"entities":    r.Entities,
			"indexed":     r.Indexed,
			"outcome":     string(r.Outcome),
			"duration_ms": r.Duration.Milliseconds(),
		})
	}

	response := map[string]interface{}{
		"force":       force,
		"indexes":     indexes,
		"duration_ms": stats.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.deps.Store.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	counts := make(map[string]int, len(types.AllEntityTypes)+1)
	counts["quality_rules"] = status.QualityRules
	indexes := make(map[string]interface{}, len(types.AllEntityTypes))
	for _, t := range types.AllEntityTypes {
		counts[string(t)] = status.Counts[t]

		st, err := s.deps.Indexes.Status(t.IndexName())
		if err != nil {
			indexes[t.IndexName()] = map[string]interface{}{"error": err.Error()}
			continue
		}
		entry := map[string]interface{}{
			"persisted":    st.Persisted,
			"loaded":       st.Loaded,
			"loaded_count": st.LoadedCount,
			"stale":        st.Stale,
		}
		if st.Meta != nil {
			entry["meta"] = st.Meta
		}
		indexes[t.IndexName()] = entry
	}

	database := map[string]interface{}{
		"counts":  counts,
		"size_mb": fmt.Sprintf("%.2f", status.DatabaseMB),
	}
	if l := status.LastIngestion; l != nil {
		database["last_ingestion"] = map[string]interface{}{
			"run_id":        l.RunID,
			"file":          l.FileName,
			"table":         l.TableName,
			"rows_inserted": l.RowsInserted,
			"rows_failed":   l.RowsFailed,
			"created_at":    l.CreatedAt.Format(time.RFC3339),
		}
	}

	response := map[string]interface{}{
		"database": database,
		"indexes":  indexes,
	}
	if s.deps.Cache != nil {
		response["cache"] = map[string]interface{}{"entries": s.deps.Cache.Len()}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// parseEntityTypes resolves the build_index entity_type argument
func parseEntityTypes(name string) ([]types.EntityType, error) {
	if name == entityTypeAll {
		return types.AllEntityTypes, nil
	}
	t, err := types.ParseEntityType(name)
	if err != nil {
		allowed := []string{entityTypeAll}
		for _, t := range types.AllEntityTypes {
			allowed = append(allowed, string(t))
		}
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid entity_type", map[string]interface{}{
			"param":   "entity_type",
			"value":   name,
			"allowed": allowed,
		})
	}
	return []types.EntityType{t}, nil
}

// getLimit validates the optional limit argument. Zero means the configured default.
func getLimit(args map[string]interface{}) (int, error) {
	raw, present := args["limit"]
	if !present || raw == nil {
		return 0, nil
	}
	limit, ok := toInt(raw)
	if !ok || limit < minLimit || limit > maxLimit {
		return 0, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": raw,
		})
	}
	return limit, nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}
