// Package types provides shared type definitions for the Kraken catalog search core.
//
// This package defines domain types used across storage, search, indexing and the
// MCP surface: entities, search results, and search modes.
//
// # Entities
//
// Entity is a searchable catalog record. Identity is the (Type, ID) pair:
//
//	attr := types.Entity{
//	    Type: types.EntityAttribute,
//	    ID:   "42",
//	    Fields: map[string]string{
//	        types.FieldPhysicalName: "cust_zip_cd",
//	        types.FieldDescRaw:      "Customer postal code",
//	    },
//	}
//
// Each entity type is backed by one named vector index:
//
//	types.EntityAttribute.IndexName() // "attributes_desc"
//	types.EntityCDE.IndexName()       // "cdes_desc"
//	types.EntityCatalog.IndexName()   // "catalogs_desc"
//
// # Search Modes
//
// Mode is a closed enum parsed from user input:
//
//	mode, err := types.ParseMode("semantic")
//	if errors.Is(err, types.ErrInvalidMode) {
//	    // reject the request
//	}
//
// The zero value is ModeHybrid.
//
// # Search Results
//
// SearchResult carries the matched entity, a score in [0, 1] and the method
// that produced it:
//
//	result := types.SearchResult{
//	    Entity: attr,
//	    Score:  0.87,
//	    Method: types.MethodFuzzy,
//	}
package types
