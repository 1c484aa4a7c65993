package types

import "strings"

// EntityType identifies the kind of catalog record being searched
type EntityType string

const (
	EntityAttribute EntityType = "attribute"
	EntityCDE       EntityType = "cde"
	EntityCatalog   EntityType = "catalog"
)

// AllEntityTypes lists every searchable entity type in build order
var AllEntityTypes = []EntityType{EntityAttribute, EntityCDE, EntityCatalog}

// Field names shared by storage, ingestion and the search façades
const (
	FieldAttrID         = "attr_id"
	FieldProduct        = "product"
	FieldDominio        = "dominio"
	FieldApplicationCSI = "aplication_csi"
	FieldOrigination    = "origination_source"
	FieldTableSource    = "table_source"
	FieldDatasetDesc    = "dataset_description"
	FieldPhysicalName   = "physical_name"
	FieldVariableName   = "variable_name"
	FieldDescRaw        = "desc_raw"
	FieldDescClean      = "desc_clean"
	FieldIniciativa     = "iniciativa"

	FieldCDEID       = "cde_id"
	FieldBizTerm     = "biz_term"
	FieldProdDomains = "prod_domains"
	FieldConsDomains = "cons_domains"
	FieldFaltaDesc   = "falta_desc"

	FieldID           = "id"
	FieldSchema       = "schema"
	FieldTable        = "table"
	FieldAtributos    = "atributos"
	FieldEjemploDatos = "ejemplo_datos"
	FieldCDE          = "cde"
)

// ParseEntityType converts a user supplied name into an EntityType.
// Plural forms ("attributes", "cdes", "catalogs") are accepted.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "attribute", "attributes":
		return EntityAttribute, nil
	case "cde", "cdes":
		return EntityCDE, nil
	case "catalog", "catalogs":
		return EntityCatalog, nil
	default:
		return "", ErrInvalidEntityType
	}
}

// Valid reports whether t is a known entity type
func (t EntityType) Valid() bool {
	switch t {
	case EntityAttribute, EntityCDE, EntityCatalog:
		return true
	}
	return false
}

// IndexName returns the vector index name backing this entity type
func (t EntityType) IndexName() string {
	switch t {
	case EntityAttribute:
		return "attributes_desc"
	case EntityCDE:
		return "cdes_desc"
	case EntityCatalog:
		return "catalogs_desc"
	}
	return ""
}

// Entity is a searchable catalog record.
// Identity is the (Type, ID) pair; IDs are unique within a type.
type Entity struct {
	Type   EntityType
	ID     string
	Fields map[string]string
}

// Field returns the value of a text field, or "" if absent
func (e Entity) Field(name string) string {
	if e.Fields == nil {
		return ""
	}
	return e.Fields[name]
}

// HasField reports whether the field exists and is non-blank
func (e Entity) HasField(name string) bool {
	return strings.TrimSpace(e.Field(name)) != ""
}

// Key returns the identity of the entity across types
func (e Entity) Key() string {
	return string(e.Type) + ":" + e.ID
}

// Validate checks if the entity is usable for search
func (e *Entity) Validate() error {
	if !e.Type.Valid() {
		return ErrInvalidEntityType
	}
	if e.ID == "" {
		return ErrEmptyEntityID
	}
	return nil
}
