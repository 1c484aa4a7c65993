// Package textnorm canonicalizes catalog text for cache keys and fuzzy matching.
//
// Normalize is pure and idempotent: the embedding cache derives its keys from
// Normalize output, so the same input must always produce the same string.
//
//	textnorm.Normalize("  Código\nPostal (ZIP)!  ") // "código postal zip"
//
// The package also holds the small parsing helpers used by ingestion
// (SplitList, ParseInt, ParseFloat) and a generic Chunk for batching.
package textnorm
