package ingest

import (
	"strings"

	"github.com/dshills/kraken/pkg/types"
)

// column lists the header names accepted for one field, in priority order
type column struct {
	field    string
	synonyms []string
}

// columnSynonyms maps export headers to field names, per entity type.
// Headers are matched case-insensitively after trimming.
var columnSynonyms = map[types.EntityType][]column{
	types.EntityAttribute: {
		{types.FieldProduct, []string{"PRODUCT"}},
		{types.FieldDominio, []string{"DOMINIO"}},
		{types.FieldApplicationCSI, []string{"APPLICATION_CSI", "APLICATION_CSI"}},
		{types.FieldOrigination, []string{"ORIGINATION_SOURCE"}},
		{types.FieldTableSource, []string{"TABLE_SOURCE", "TABLESOURCE"}},
		{types.FieldDatasetDesc, []string{"DATASET_DESCRIPTION"}},
		{types.FieldPhysicalName, []string{"N_FISICO", "PHYSICAL_NAME"}},
		{types.FieldVariableName, []string{"VARIABLE_NAME", "N_VARIABLE", "VARIABLE"}},
		{types.FieldDescRaw, []string{"DESC_ESP", "DATASET_DESCRIPTION", "DESCRIPTIO"}},
		{types.FieldIniciativa, []string{"INICIATIVA"}},
	},
	types.EntityCDE: {
		{types.FieldCDEID, []string{"Enterprise_ID", "CDE", "ID_CDE"}},
		{types.FieldBizTerm, []string{"BIZ_TERM", "BUSINESS_TERM"}},
		{types.FieldDescRaw, []string{"DESCRIPCION_CDE", "DESC_CDE"}},
		{types.FieldProdDomains, []string{"PRODUCER_DOMAINS"}},
		{types.FieldConsDomains, []string{"CONSUMER_DOMAINS"}},
		{types.FieldFaltaDesc, []string{"FALTA_DESC"}},
	},
	types.EntityCatalog: {
		{types.FieldSchema, []string{"SCHEMA", "ESQUEMA"}},
		{types.FieldTable, []string{"TABLE", "TABLA"}},
		{types.FieldDescRaw, []string{"DESC_CORTA", "DESCRIPCION_CORTA", "DESCRIPTION", "DESC_CORT"}},
		{types.FieldAtributos, []string{"ATRIBUTOS", "ATTRIBUTES"}},
		{types.FieldEjemploDatos, []string{"EJEMPLO_DATOS", "SAMPLE_DATA", "EXAMPLES", "EJE_TXT_LARGO"}},
		{types.FieldCDE, []string{"CDE", "CDE_ID"}},
	},
}

// Quality rule fields. Rules are stored but not searched, so they have no
// entity type.
const (
	fieldRuleNatural  = "rule_natural"
	fieldRuleStandard = "rule_standard"
	fieldDimension    = "dimension"
	fieldFieldType    = "field_type"
	fieldMaxLength    = "max_length"
	fieldScale        = "scale"
	fieldPattern      = "pattern"
	fieldExample      = "example"
)

var qualityRuleColumns = []column{
	{types.FieldCDEID, []string{"Enterprise_ID", "CDE", "ID_CDE"}},
	{fieldRuleNatural, []string{"RULE_NATURAL"}},
	{fieldRuleStandard, []string{"RULE_STANDARD"}},
	{fieldDimension, []string{"DIMENSION"}},
	{fieldFieldType, []string{"FIELD_TYPE"}},
	{fieldMaxLength, []string{"MAX_LENGTH"}},
	{fieldScale, []string{"SCALE"}},
	{fieldPattern, []string{"PATTERN"}},
	{fieldExample, []string{"EXAMPLE"}},
}

// TableQualityRules is the storage table DQ_Rules exports load into
const TableQualityRules = "cde_quality_rules"

// target describes where one export file is loaded
type target struct {
	table      string
	entityType types.EntityType // empty for tables that are not searched
	columns    []column
}

func entityTarget(table string, t types.EntityType) target {
	return target{table: table, entityType: t, columns: columnSynonyms[t]}
}

// fileTargets maps export file names (without extension) to their target
var fileTargets = map[string]target{
	"Mega_Diccionario":    entityTarget("attributes", types.EntityAttribute),
	"Base_CDEs":           entityTarget("cdes", types.EntityCDE),
	"Base_Catalogos_S080": entityTarget("catalogs", types.EntityCatalog),
	"DQ_Rules":            {table: TableQualityRules, columns: qualityRuleColumns},
}

// EntityTypeForFile returns the entity type loaded from a file stem. Files
// that load a table without entities, such as DQ_Rules, report false.
func EntityTypeForFile(stem string) (types.EntityType, bool) {
	t, ok := fileTargets[stem]
	return t.entityType, ok && t.entityType != ""
}

// TableForFile returns the storage table loaded from a file stem
func TableForFile(stem string) (string, bool) {
	t, ok := fileTargets[stem]
	return t.table, ok
}

// mapHeader resolves each field to the index of its header column. A single
// column may feed several fields. Fields without a column are absent.
func mapHeader(columns []column, header []string) map[string]int {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := pos[key]; !dup {
			pos[key] = i
		}
	}

	out := make(map[string]int)
	for _, col := range columns {
		for _, syn := range col.synonyms {
			if i, ok := pos[strings.ToLower(syn)]; ok {
				out[col.field] = i
				break
			}
		}
	}
	return out
}
