// Package config loads kraken.yaml.
//
// The effective configuration is built in three layers: Default, then the
// YAML file named by the --config flag or $KRAKEN_CONFIG, then environment
// overrides (KRAKEN_DATA_DIR, KRAKEN_DB_PATH, KRAKEN_INDEX_DIR,
// KRAKEN_INDEX_TYPE, KRAKEN_EMBEDDING_PROVIDER, KRAKEN_EMBEDDING_MODEL,
// KRAKEN_EMBEDDING_BASE_URL). A .env file is read first with LoadDotEnv and
// never overrides variables already set.
//
// Example file:
//
//	embedding:
//	  provider: openai
//	  model_name: text-embedding-3-small
//	  batch_size: 64
//	  timeout: 60s
//	index:
//	  type: FlatIP        # or HNSW
//	  dir: data/indices
//	attributes:
//	  technical: {default_limit: 10, fuzzy_threshold: 70}
//	  semantic: {similarity_threshold: 0.65}
//	cde: {default_limit: 10, similarity_threshold: 0.65}
//	catalogs: {default_limit: 10, similarity_threshold: 0.65}
//	duplicates: {name_similarity_threshold: 80}
//
// Validate reports every problem at once, wrapped in ErrInvalidConfig.
package config
