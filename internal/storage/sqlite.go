package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/kraken/pkg/types"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidRecord is returned when a record is missing its natural key
	ErrInvalidRecord = errors.New("invalid record")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens the catalog database at dbPath and applies pending
// migrations. Use ":memory:" for an ephemeral database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) querier() querier {
	return t.tx
}

func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Entity listing

// listAllWithQuerier dispatches on the entity type
func (s *SQLiteStorage) listAllWithQuerier(ctx context.Context, q querier, entityType types.EntityType) ([]types.Entity, error) {
	switch entityType {
	case types.EntityAttribute:
		attrs, err := s.listAttributesWithQuerier(ctx, q)
		if err != nil {
			return nil, err
		}
		out := make([]types.Entity, len(attrs))
		for i, a := range attrs {
			out[i] = a.Entity()
		}
		return out, nil
	case types.EntityCDE:
		cdes, err := s.listCDEsWithQuerier(ctx, q)
		if err != nil {
			return nil, err
		}
		out := make([]types.Entity, len(cdes))
		for i, c := range cdes {
			out[i] = c.Entity()
		}
		return out, nil
	case types.EntityCatalog:
		catalogs, err := s.listCatalogsWithQuerier(ctx, q)
		if err != nil {
			return nil, err
		}
		out := make([]types.Entity, len(catalogs))
		for i, c := range catalogs {
			out[i] = c.Entity()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("list %q: %w", entityType, types.ErrInvalidEntityType)
	}
}

func (s *SQLiteStorage) ListAll(ctx context.Context, entityType types.EntityType) ([]types.Entity, error) {
	return s.listAllWithQuerier(ctx, s.querier(), entityType)
}

// Attribute operations

const attributeColumns = `attr_id, product, dominio, aplication_csi, origination_source,
		       table_source, dataset_description, physical_name, variable_name,
		       desc_raw, desc_clean, iniciativa, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttribute(r rowScanner) (*Attribute, error) {
	var a Attribute
	err := r.Scan(
		&a.AttrID, &a.Product, &a.Dominio, &a.ApplicationCSI, &a.OriginationSource,
		&a.TableSource, &a.DatasetDescription, &a.PhysicalName, &a.VariableName,
		&a.DescRaw, &a.DescClean, &a.Iniciativa, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// insertAttributeWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertAttributeWithQuerier(ctx context.Context, q querier, attr *Attribute) error {
	query := `
		INSERT INTO attributes (product, dominio, aplication_csi, origination_source,
		    table_source, dataset_description, physical_name, variable_name,
		    desc_raw, desc_clean, iniciativa, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		attr.Product, attr.Dominio, attr.ApplicationCSI, attr.OriginationSource,
		attr.TableSource, attr.DatasetDescription, attr.PhysicalName, attr.VariableName,
		attr.DescRaw, attr.DescClean, attr.Iniciativa, now)
	if err != nil {
		return fmt.Errorf("failed to insert attribute: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	attr.AttrID = id
	attr.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) InsertAttribute(ctx context.Context, attr *Attribute) error {
	return s.insertAttributeWithQuerier(ctx, s.querier(), attr)
}

// getAttributeWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getAttributeWithQuerier(ctx context.Context, q querier, attrID int64) (*Attribute, error) {
	query := `SELECT ` + attributeColumns + ` FROM attributes WHERE attr_id = ?`
	attr, err := scanAttribute(q.QueryRowContext(ctx, query, attrID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return attr, err
}

func (s *SQLiteStorage) GetAttribute(ctx context.Context, attrID int64) (*Attribute, error) {
	return s.getAttributeWithQuerier(ctx, s.querier(), attrID)
}

func (s *SQLiteStorage) listAttributesWithQuerier(ctx context.Context, q querier) ([]*Attribute, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+attributeColumns+` FROM attributes ORDER BY attr_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list attributes: %w", err)
	}
	defer rows.Close()

	var attrs []*Attribute
	for rows.Next() {
		attr, err := scanAttribute(rows)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, rows.Err()
}

// CDE operations

const cdeColumns = `id, cde_id, biz_term, desc_raw, desc_clean, prod_domains,
		       cons_domains, falta_desc, created_at`

func scanCDE(r rowScanner) (*CDE, error) {
	var c CDE
	err := r.Scan(
		&c.ID, &c.CDEID, &c.BizTerm, &c.DescRaw, &c.DescClean,
		&c.ProdDomains, &c.ConsDomains, &c.FaltaDesc, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// upsertCDEWithQuerier inserts a CDE or updates the row sharing its cde_id
func (s *SQLiteStorage) upsertCDEWithQuerier(ctx context.Context, q querier, cde *CDE) (bool, error) {
	if cde.CDEID == "" {
		return false, fmt.Errorf("cde without cde_id: %w", ErrInvalidRecord)
	}

	var existingID int64
	var createdAt time.Time
	err := q.QueryRowContext(ctx, "SELECT id, created_at FROM cdes WHERE cde_id = ?", cde.CDEID).Scan(&existingID, &createdAt)
	switch {
	case err == sql.ErrNoRows:
		now := time.Now()
		result, err := q.ExecContext(ctx, `
			INSERT INTO cdes (cde_id, biz_term, desc_raw, desc_clean, prod_domains,
			    cons_domains, falta_desc, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, cde.CDEID, cde.BizTerm, cde.DescRaw, cde.DescClean, cde.ProdDomains,
			cde.ConsDomains, cde.FaltaDesc, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert cde: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return false, err
		}
		cde.ID = id
		cde.CreatedAt = now
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up cde %s: %w", cde.CDEID, err)
	}

	_, err = q.ExecContext(ctx, `
		UPDATE cdes
		SET biz_term = ?, desc_raw = ?, desc_clean = ?, prod_domains = ?,
		    cons_domains = ?, falta_desc = ?
		WHERE id = ?
	`, cde.BizTerm, cde.DescRaw, cde.DescClean, cde.ProdDomains,
		cde.ConsDomains, cde.FaltaDesc, existingID)
	if err != nil {
		return false, fmt.Errorf("failed to update cde: %w", err)
	}
	cde.ID = existingID
	cde.CreatedAt = createdAt
	return false, nil
}

func (s *SQLiteStorage) UpsertCDE(ctx context.Context, cde *CDE) (bool, error) {
	return s.upsertCDEWithQuerier(ctx, s.querier(), cde)
}

// getCDEWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getCDEWithQuerier(ctx context.Context, q querier, cdeID string) (*CDE, error) {
	cde, err := scanCDE(q.QueryRowContext(ctx, `SELECT `+cdeColumns+` FROM cdes WHERE cde_id = ?`, cdeID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return cde, err
}

func (s *SQLiteStorage) GetCDE(ctx context.Context, cdeID string) (*CDE, error) {
	return s.getCDEWithQuerier(ctx, s.querier(), cdeID)
}

func (s *SQLiteStorage) listCDEsWithQuerier(ctx context.Context, q querier) ([]*CDE, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+cdeColumns+` FROM cdes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cdes: %w", err)
	}
	defer rows.Close()

	var cdes []*CDE
	for rows.Next() {
		cde, err := scanCDE(rows)
		if err != nil {
			return nil, err
		}
		cdes = append(cdes, cde)
	}
	return cdes, rows.Err()
}

// Catalog operations

const catalogColumns = `id, schema_name, table_name, desc_raw, desc_clean, atributos,
		       ejemplo_datos, cde, created_at`

func scanCatalog(r rowScanner) (*Catalog, error) {
	var c Catalog
	err := r.Scan(
		&c.ID, &c.Schema, &c.Table, &c.DescRaw, &c.DescClean,
		&c.Atributos, &c.EjemploDatos, &c.CDE, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// insertCatalogWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertCatalogWithQuerier(ctx context.Context, q querier, catalog *Catalog) error {
	query := `
		INSERT INTO catalogs (schema_name, table_name, desc_raw, desc_clean, atributos,
		    ejemplo_datos, cde, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		catalog.Schema, catalog.Table, catalog.DescRaw, catalog.DescClean,
		catalog.Atributos, catalog.EjemploDatos, catalog.CDE, now)
	if err != nil {
		return fmt.Errorf("failed to insert catalog: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	catalog.ID = id
	catalog.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) InsertCatalog(ctx context.Context, catalog *Catalog) error {
	return s.insertCatalogWithQuerier(ctx, s.querier(), catalog)
}

// getCatalogWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getCatalogWithQuerier(ctx context.Context, q querier, id int64) (*Catalog, error) {
	catalog, err := scanCatalog(q.QueryRowContext(ctx, `SELECT `+catalogColumns+` FROM catalogs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return catalog, err
}

func (s *SQLiteStorage) GetCatalog(ctx context.Context, id int64) (*Catalog, error) {
	return s.getCatalogWithQuerier(ctx, s.querier(), id)
}

func (s *SQLiteStorage) listCatalogsWithQuerier(ctx context.Context, q querier) ([]*Catalog, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+catalogColumns+` FROM catalogs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalogs: %w", err)
	}
	defer rows.Close()

	var catalogs []*Catalog
	for rows.Next() {
		catalog, err := scanCatalog(rows)
		if err != nil {
			return nil, err
		}
		catalogs = append(catalogs, catalog)
	}
	return catalogs, rows.Err()
}

// Quality rule operations

func (s *SQLiteStorage) insertQualityRuleWithQuerier(ctx context.Context, q querier, rule *QualityRule) error {
	if rule.CDEID == "" {
		return fmt.Errorf("quality rule without cde_id: %w", ErrInvalidRecord)
	}
	query := `
		INSERT INTO cde_quality_rules (cde_id, rule_natural, rule_standard, dimension,
		    field_type, max_length, scale, pattern, example, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		rule.CDEID, rule.RuleNatural, rule.RuleStandard, rule.Dimension,
		rule.FieldType, nullInt(rule.MaxLength), nullInt(rule.Scale),
		rule.Pattern, rule.Example, now)
	if err != nil {
		return fmt.Errorf("failed to insert quality rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rule.ID = id
	rule.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) InsertQualityRule(ctx context.Context, rule *QualityRule) error {
	return s.insertQualityRuleWithQuerier(ctx, s.querier(), rule)
}

func (s *SQLiteStorage) listQualityRulesWithQuerier(ctx context.Context, q querier, cdeID string, limit int) ([]*QualityRule, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, cde_id, rule_natural, rule_standard, dimension, field_type,
		       max_length, scale, pattern, example, created_at
		FROM cde_quality_rules
		WHERE ? = '' OR cde_id = ?
		ORDER BY id
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, cdeID, cdeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list quality rules: %w", err)
	}
	defer rows.Close()

	var rules []*QualityRule
	for rows.Next() {
		var r QualityRule
		var maxLength, scale sql.NullInt64
		if err := rows.Scan(&r.ID, &r.CDEID, &r.RuleNatural, &r.RuleStandard, &r.Dimension,
			&r.FieldType, &maxLength, &scale, &r.Pattern, &r.Example, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.MaxLength = intPtr(maxLength)
		r.Scale = intPtr(scale)
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

func (s *SQLiteStorage) ListQualityRules(ctx context.Context, cdeID string, limit int) ([]*QualityRule, error) {
	return s.listQualityRulesWithQuerier(ctx, s.querier(), cdeID, limit)
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

// Ingestion log operations

// insertIngestionLogWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertIngestionLogWithQuerier(ctx context.Context, q querier, entry *IngestionLog) error {
	if entry.RunID == "" {
		return fmt.Errorf("ingestion log without run id: %w", ErrInvalidRecord)
	}
	query := `
		INSERT INTO ingestion_log (run_id, file_name, table_name, rows_inserted,
		    rows_failed, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		entry.RunID, entry.FileName, entry.TableName, entry.RowsInserted,
		entry.RowsFailed, entry.Details, now)
	if err != nil {
		return fmt.Errorf("failed to insert ingestion log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	entry.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) InsertIngestionLog(ctx context.Context, entry *IngestionLog) error {
	return s.insertIngestionLogWithQuerier(ctx, s.querier(), entry)
}

// listIngestionLogsWithQuerier returns the most recent entries first
func (s *SQLiteStorage) listIngestionLogsWithQuerier(ctx context.Context, q querier, limit int) ([]*IngestionLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, run_id, file_name, table_name, rows_inserted, rows_failed,
		       details, created_at
		FROM ingestion_log
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion log: %w", err)
	}
	defer rows.Close()

	var entries []*IngestionLog
	for rows.Next() {
		var e IngestionLog
		if err := rows.Scan(&e.ID, &e.RunID, &e.FileName, &e.TableName,
			&e.RowsInserted, &e.RowsFailed, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStorage) ListIngestionLogs(ctx context.Context, limit int) ([]*IngestionLog, error) {
	return s.listIngestionLogsWithQuerier(ctx, s.querier(), limit)
}

// Status operations

// getStatusWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	status := &Status{Counts: make(map[types.EntityType]int, len(types.AllEntityTypes))}

	tables := map[types.EntityType]string{
		types.EntityAttribute: "attributes",
		types.EntityCDE:       "cdes",
		types.EntityCatalog:   "catalogs",
	}
	for _, t := range types.AllEntityTypes {
		var n int
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tables[t]).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", tables[t], err)
		}
		status.Counts[t] = n
	}
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM cde_quality_rules").Scan(&status.QualityRules); err != nil {
		return nil, fmt.Errorf("failed to count cde_quality_rules: %w", err)
	}

	// Calculate database size
	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.DatabaseMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	logs, err := s.listIngestionLogsWithQuerier(ctx, q, 1)
	if err != nil {
		return nil, err
	}
	if len(logs) > 0 {
		status.LastIngestion = logs[0]
	}
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// Transaction implementations route every call through the transaction querier

func (t *sqliteTx) ListAll(ctx context.Context, entityType types.EntityType) ([]types.Entity, error) {
	return t.storage.listAllWithQuerier(ctx, t.querier(), entityType)
}

func (t *sqliteTx) InsertAttribute(ctx context.Context, attr *Attribute) error {
	return t.storage.insertAttributeWithQuerier(ctx, t.querier(), attr)
}

func (t *sqliteTx) GetAttribute(ctx context.Context, attrID int64) (*Attribute, error) {
	return t.storage.getAttributeWithQuerier(ctx, t.querier(), attrID)
}

func (t *sqliteTx) UpsertCDE(ctx context.Context, cde *CDE) (bool, error) {
	return t.storage.upsertCDEWithQuerier(ctx, t.querier(), cde)
}

func (t *sqliteTx) GetCDE(ctx context.Context, cdeID string) (*CDE, error) {
	return t.storage.getCDEWithQuerier(ctx, t.querier(), cdeID)
}

func (t *sqliteTx) InsertCatalog(ctx context.Context, catalog *Catalog) error {
	return t.storage.insertCatalogWithQuerier(ctx, t.querier(), catalog)
}

func (t *sqliteTx) GetCatalog(ctx context.Context, id int64) (*Catalog, error) {
	return t.storage.getCatalogWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) InsertQualityRule(ctx context.Context, rule *QualityRule) error {
	return t.storage.insertQualityRuleWithQuerier(ctx, t.querier(), rule)
}

func (t *sqliteTx) ListQualityRules(ctx context.Context, cdeID string, limit int) ([]*QualityRule, error) {
	return t.storage.listQualityRulesWithQuerier(ctx, t.querier(), cdeID, limit)
}

func (t *sqliteTx) InsertIngestionLog(ctx context.Context, entry *IngestionLog) error {
	return t.storage.insertIngestionLogWithQuerier(ctx, t.querier(), entry)
}

func (t *sqliteTx) ListIngestionLogs(ctx context.Context, limit int) ([]*IngestionLog, error) {
	return t.storage.listIngestionLogsWithQuerier(ctx, t.querier(), limit)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
