package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/kraken/pkg/types"
)

const (
	toolBuildIndex = "build_index"
	toolGetStatus  = "get_status"

	// entityTypeAll selects every entity type in build_index
	entityTypeAll = "all"
)

var searchDescriptions = map[types.EntityType]string{
	types.EntityAttribute: "Search technical attributes of the data dictionary by physical name or description",
	types.EntityCDE:       "Search critical data elements (CDEs) of the business glossary by business term or description",
	types.EntityCatalog:   "Search reference catalogs by description",
}

// searchToolName returns search_attributes, search_cdes or search_catalogs
func searchToolName(t types.EntityType) string {
	switch t {
	case types.EntityAttribute:
		return "search_attributes"
	case types.EntityCDE:
		return "search_cdes"
	default:
		return "search_catalogs"
	}
}

// searchTool returns the tool definition for the search tool of t
func searchTool(t types.EntityType) mcp.Tool {
	return mcp.Tool{
		Name:        searchToolName(t),
		Description: searchDescriptions[t],
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (a column name, business term or free text)",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (fuzzy + semantic), fuzzy (string similarity only), or semantic (embeddings only)",
					"enum":        types.ModeNames(),
					"default":     types.ModeHybrid.String(),
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100). Defaults to the configured limit.",
					"minimum":     minLimit,
					"maximum":     maxLimit,
				},
			},
			Required: []string{"query"},
		},
	}
}

// buildIndexTool returns the tool definition for build_index
func buildIndexTool() mcp.Tool {
	enum := []string{entityTypeAll}
	for _, t := range types.AllEntityTypes {
		enum = append(enum, string(t))
	}
	return mcp.Tool{
		Name:        toolBuildIndex,
		Description: "Build the vector index of one or all entity types from the catalog database",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"entity_type": map[string]interface{}{
					"type":        "string",
					"description": "Entity type to index",
					"enum":        enum,
					"default":     entityTypeAll,
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, rebuild indexes that already exist on disk",
					"default":     false,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        toolGetStatus,
		Description: "Report catalog counts, vector index state and embedding cache size",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
