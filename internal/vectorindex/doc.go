// Package vectorindex stores embedding vectors in named, persistent indexes
// and answers top-k cosine similarity queries against them.
//
// # Index Files
//
// Each named index (attributes_desc, cdes_desc, catalogs_desc) is three files
// in the index directory:
//
//	<name>.index      binary vectors, plus the graph for HNSW
//	<name>.ids        JSON array of external IDs; ids[i] belongs to vector i
//	<name>.meta.json  {index_name, embedding_dim, backend_version, index_type, count, built_at}
//
// Files are written to a temp file and renamed into place. The meta file is
// removed before a rebuild and written last, so its presence marks a
// complete index.
//
// # Backends
//
// FlatIP scans every vector and is exact. HNSW walks a layered proximity
// graph (M=32, efConstruction=40, efSearch=16) and trades recall for speed
// on large catalogs. The backend is chosen by configuration:
//
//	kind, err := vectorindex.ParseKind(cfg.Index.Type) // "FlatIP" or "HNSW"
//
// Vectors are L2-normalized before insertion and queries are normalized
// before search, so the inner product is the cosine similarity.
//
// # Handles and Staleness
//
// A Manager keeps one Handle per attached index. Open loads the files and
// attaches a handle; Search attaches on first use. A handle reflects the
// files as loaded plus writes made through the same Manager. Changes made
// by other processes are not observed until Reload. Status reports when a
// handle is stale.
//
//	mgr, _ := vectorindex.NewManager(dir, encoder, vectorindex.WithKind(kind))
//	ok, err := mgr.Build(ctx, "attributes_desc", texts, ids, false)
//	hits, err := mgr.Search(ctx, "attributes_desc", "customer zip code", 10)
//
// # Writers
//
// Build and Add hold a per-name mutex and the advisory lock <name>.lock, so
// concurrent writers within and across processes are serialized. Searches
// only take the handle's read lock and run concurrently.
//
// Add requires an attached handle and returns ErrNotLoaded otherwise. It is
// append-only: existing vectors are never updated or removed.
package vectorindex
