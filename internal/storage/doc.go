// Package storage provides SQLite-based persistence for the data catalog.
//
// The storage layer manages:
//   - Technical attributes from the data dictionary
//   - Critical data elements (CDEs) from the business glossary
//   - Reference catalogs
//   - The ingestion log
//
// # Database Schema
//
// Tables:
//   - attributes: data dictionary rows keyed by attr_id (autoincrement)
//   - cdes: glossary rows with a unique cde_id
//   - catalogs: catalog rows keyed by id
//   - ingestion_log: one row per ingested file, grouped by run_id
//   - schema_version: applied migration versions (semver)
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("data/kraken.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	attrs, err := db.ListAll(ctx, types.EntityAttribute)
//
// ListAll returns rows ordered by primary key, converted to types.Entity with
// the column names as field names. The entity ID is attr_id for attributes,
// cde_id for CDEs and id for catalogs.
//
// # Transactions
//
// Use transactions for atomic ingestion:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	for _, a := range attrs {
//	    if err := tx.InsertAttribute(ctx, a); err != nil {
//	        return err
//	    }
//	}
//	if err := tx.InsertIngestionLog(ctx, entry); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// Nested transactions are not supported.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build
package storage
