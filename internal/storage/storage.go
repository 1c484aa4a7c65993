package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/dshills/kraken/pkg/types"
)

// Storage defines the interface for catalog persistence operations
type Storage interface {
	// ListAll returns every entity of the given type, ordered by primary key.
	// The order is stable so that ties in search scoring are deterministic.
	ListAll(ctx context.Context, entityType types.EntityType) ([]types.Entity, error)

	// Attribute operations
	InsertAttribute(ctx context.Context, attr *Attribute) error
	GetAttribute(ctx context.Context, attrID int64) (*Attribute, error)

	// CDE operations. UpsertCDE reports whether a new row was created.
	UpsertCDE(ctx context.Context, cde *CDE) (bool, error)
	GetCDE(ctx context.Context, cdeID string) (*CDE, error)

	// Catalog operations
	InsertCatalog(ctx context.Context, catalog *Catalog) error
	GetCatalog(ctx context.Context, id int64) (*Catalog, error)

	// Quality rule operations. ListQualityRules filters by CDE when cdeID is
	// not empty.
	InsertQualityRule(ctx context.Context, rule *QualityRule) error
	ListQualityRules(ctx context.Context, cdeID string, limit int) ([]*QualityRule, error)

	// Ingestion log operations
	InsertIngestionLog(ctx context.Context, entry *IngestionLog) error
	ListIngestionLogs(ctx context.Context, limit int) ([]*IngestionLog, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Lifecycle
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Storage
	Commit() error
	Rollback() error
}

// Attribute is a technical attribute from the data dictionary
type Attribute struct {
	AttrID             int64
	Product            string
	Dominio            string
	ApplicationCSI     string
	OriginationSource  string
	TableSource        string
	DatasetDescription string
	PhysicalName       string
	VariableName       string
	DescRaw            string
	DescClean          string
	Iniciativa         string
	CreatedAt          time.Time
}

// CDE is a critical data element from the business glossary
type CDE struct {
	ID          int64
	CDEID       string
	BizTerm     string
	DescRaw     string
	DescClean   string
	ProdDomains string
	ConsDomains string
	FaltaDesc   bool
	CreatedAt   time.Time
}

// Catalog is a reference catalog table entry
type Catalog struct {
	ID           int64
	Schema       string
	Table        string
	DescRaw      string
	DescClean    string
	Atributos    string
	EjemploDatos string
	CDE          string
	CreatedAt    time.Time
}

// QualityRule is a data quality rule defined for one CDE
type QualityRule struct {
	ID           int64
	CDEID        string
	RuleNatural  string
	RuleStandard string
	Dimension    string
	FieldType    string
	MaxLength    *int
	Scale        *int
	Pattern      string
	Example      string
	CreatedAt    time.Time
}

// IngestionLog records the outcome of ingesting one source file
type IngestionLog struct {
	ID           int64
	RunID        string
	FileName     string
	TableName    string
	RowsInserted int
	RowsFailed   int
	Details      string
	CreatedAt    time.Time
}

// Status summarizes the contents of the catalog database
type Status struct {
	Counts        map[types.EntityType]int
	QualityRules  int
	DatabaseMB    float64
	LastIngestion *IngestionLog
}

// Entity converts the attribute into a searchable entity keyed by attr_id
func (a *Attribute) Entity() types.Entity {
	id := strconv.FormatInt(a.AttrID, 10)
	return types.Entity{
		Type: types.EntityAttribute,
		ID:   id,
		Fields: map[string]string{
			types.FieldAttrID:         id,
			types.FieldProduct:        a.Product,
			types.FieldDominio:        a.Dominio,
			types.FieldApplicationCSI: a.ApplicationCSI,
			types.FieldOrigination:    a.OriginationSource,
			types.FieldTableSource:    a.TableSource,
			types.FieldDatasetDesc:    a.DatasetDescription,
			types.FieldPhysicalName:   a.PhysicalName,
			types.FieldVariableName:   a.VariableName,
			types.FieldDescRaw:        a.DescRaw,
			types.FieldDescClean:      a.DescClean,
			types.FieldIniciativa:     a.Iniciativa,
		},
	}
}

// Entity converts the CDE into a searchable entity keyed by cde_id
func (c *CDE) Entity() types.Entity {
	return types.Entity{
		Type: types.EntityCDE,
		ID:   c.CDEID,
		Fields: map[string]string{
			types.FieldID:          strconv.FormatInt(c.ID, 10),
			types.FieldCDEID:       c.CDEID,
			types.FieldBizTerm:     c.BizTerm,
			types.FieldDescRaw:     c.DescRaw,
			types.FieldDescClean:   c.DescClean,
			types.FieldProdDomains: c.ProdDomains,
			types.FieldConsDomains: c.ConsDomains,
			types.FieldFaltaDesc:   strconv.FormatBool(c.FaltaDesc),
		},
	}
}

// Entity converts the catalog into a searchable entity keyed by id
func (c *Catalog) Entity() types.Entity {
	id := strconv.FormatInt(c.ID, 10)
	return types.Entity{
		Type: types.EntityCatalog,
		ID:   id,
		Fields: map[string]string{
			types.FieldID:           id,
			types.FieldSchema:       c.Schema,
			types.FieldTable:        c.Table,
			types.FieldDescRaw:      c.DescRaw,
			types.FieldDescClean:    c.DescClean,
			types.FieldAtributos:    c.Atributos,
			types.FieldEjemploDatos: c.EjemploDatos,
			types.FieldCDE:          c.CDE,
		},
	}
}
