// Package indexer prepares the vector indexes that back semantic search.
//
// For every entity type it reads all rows from storage, derives one text per
// entity and builds the named index through the vector index manager.
//
// # Basic Usage
//
//	idx := indexer.New(store, manager)
//
//	stats, err := idx.PrepareAll(ctx, false)
//	if errors.Is(err, indexer.ErrIndexingInProgress) {
//	    // another preparation is running in this process
//	}
//	for _, r := range stats.Results {
//	    fmt.Printf("%s: %s (%d/%d)\n", r.Index, r.Outcome, r.Indexed, r.Entities)
//	}
//
// # Indexed Text
//
// The text for an entity is desc_raw. When it is blank the type's name field
// is used instead:
//
//	attribute  physical_name  -> attributes_desc, keyed by attr_id
//	cde        biz_term       -> cdes_desc, keyed by cde_id
//	catalog    table          -> catalogs_desc, keyed by id
//
// Entities with neither are left out of the index.
//
// # Force
//
// Without force an index that is already persisted is attached as is. With
// force every index is rebuilt from the current storage contents.
//
// # Concurrency
//
// The entity types are prepared concurrently with errgroup, limited by
// WithWorkers. The first failure cancels the rest. Only one preparation may
// run per Indexer; a concurrent call fails with ErrIndexingInProgress.
package indexer
