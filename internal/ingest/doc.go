// Package ingest loads catalog spreadsheet exports into storage.
//
// Each export is a CSV file or an xlsx workbook (first sheet) whose name,
// without extension, selects the target table:
//
//	Mega_Diccionario     -> attributes
//	Base_CDEs            -> cdes
//	Base_Catalogos_S080  -> catalogs
//	DQ_Rules             -> cde_quality_rules
//
// Headers are matched against a list of known synonyms per field, ignoring
// case and a leading byte order mark. Rows that cannot be stored are counted
// as failed and skipped; the rest of the file is committed in one
// transaction. CDEs are upserted by cde_id. Quality rules are stored but not
// indexed.
//
// When an index Appender is attached, newly created entities are appended to
// their vector index after the commit. An index that is not loaded is noted
// in the ingestion log instead of failing the file.
package ingest
