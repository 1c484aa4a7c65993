// Package mcp implements the Model Context Protocol (MCP) server for Kraken.
//
// The MCP server exposes the catalog search to AI assistants through five tools:
//   - search_attributes: Search technical attributes of the data dictionary
//   - search_cdes: Search critical data elements of the business glossary
//   - search_catalogs: Search reference catalogs
//   - build_index: Build the vector indexes from the catalog database
//   - get_status: Report catalog counts, index state and cache size
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command:
//
//	kraken serve
//
// # Search Tools
//
//	Request:
//	{
//	  "name": "search_cdes",
//	  "arguments": {
//	    "query": "codigo postal",
//	    "mode": "hybrid",
//	    "limit": 5
//	  }
//	}
//
//	Response:
//	{
//	  "entity_type": "cde",
//	  "mode": "hybrid",
//	  "count": 1,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "id": "CDE-001",
//	      "score": 0.9132,
//	      "method": "semantic",
//	      "fields": {"biz_term": "Postal Code", "desc_raw": "..."}
//	    }
//	  ]
//	}
//
// mode is one of hybrid, fuzzy or semantic and defaults to hybrid. limit
// defaults to the configured limit of the entity type.
//
// # Tool: build_index
//
//	{"name": "build_index", "arguments": {"entity_type": "all", "force": false}}
//
// Existing indexes are attached unless force is set. Only one build runs at
// a time; a concurrent call fails with -32002.
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (unknown mode or entity type, limit out of range)
//   - -32603: Internal error (database, embedding provider, index files)
//   - -32002: Indexing in progress
//   - -32004: Empty query
//
// # Logging
//
// The server logs to stderr through log/slog; stdout is reserved for the
// protocol.
package mcp
