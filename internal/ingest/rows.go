package ingest

import (
	"context"
	"math"
	"strings"

	"github.com/dshills/kraken/internal/storage"
	"github.com/dshills/kraken/internal/textnorm"
	"github.com/dshills/kraken/pkg/types"
)

// cleanRow fills desc_clean and normalizes the identifier columns
func cleanRow(row map[string]string) {
	if _, ok := row[types.FieldDescRaw]; ok {
		row[types.FieldDescClean] = textnorm.Normalize(row[types.FieldDescRaw])
	}
	for _, f := range []string{types.FieldPhysicalName, types.FieldVariableName} {
		if v, ok := row[f]; ok {
			row[f] = textnorm.Normalize(v)
		}
	}
	for _, f := range []string{types.FieldProdDomains, types.FieldConsDomains} {
		if v, ok := row[f]; ok {
			row[f] = strings.Join(textnorm.SplitList(v, "|"), "|")
		}
	}
}

func emptyRow(row map[string]string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

// parseFlag reads spreadsheet-style booleans
func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y", "si", "sí", "s", "x":
		return true
	}
	return textnorm.ParseInt(s, 0) != 0
}

// optionalInt parses a numeric cell; blank or non-integer cells are absent
func optionalInt(s string) *int {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	n := textnorm.ParseInt(s, math.MinInt)
	if n == math.MinInt {
		return nil
	}
	return &n
}

// storeRow writes one cleaned row and returns its entity. created is false
// when an existing record was updated in place. Rows of tables without
// entities return a zero Entity.
func storeRow(ctx context.Context, tx storage.Tx, tgt target, row map[string]string) (types.Entity, bool, error) {
	if emptyRow(row) {
		return types.Entity{}, false, ErrEmptyRow
	}
	cleanRow(row)

	if tgt.table == TableQualityRules {
		rule := &storage.QualityRule{
			CDEID:        row[types.FieldCDEID],
			RuleNatural:  row[fieldRuleNatural],
			RuleStandard: row[fieldRuleStandard],
			Dimension:    row[fieldDimension],
			FieldType:    row[fieldFieldType],
			MaxLength:    optionalInt(row[fieldMaxLength]),
			Scale:        optionalInt(row[fieldScale]),
			Pattern:      row[fieldPattern],
			Example:      row[fieldExample],
		}
		if err := tx.InsertQualityRule(ctx, rule); err != nil {
			return types.Entity{}, false, err
		}
		return types.Entity{}, true, nil
	}

	switch tgt.entityType {
	case types.EntityAttribute:
		attr := &storage.Attribute{
			Product:            row[types.FieldProduct],
			Dominio:            row[types.FieldDominio],
			ApplicationCSI:     row[types.FieldApplicationCSI],
			OriginationSource:  row[types.FieldOrigination],
			TableSource:        row[types.FieldTableSource],
			DatasetDescription: row[types.FieldDatasetDesc],
			PhysicalName:       row[types.FieldPhysicalName],
			VariableName:       row[types.FieldVariableName],
			DescRaw:            row[types.FieldDescRaw],
			DescClean:          row[types.FieldDescClean],
			Iniciativa:         row[types.FieldIniciativa],
		}
		if err := tx.InsertAttribute(ctx, attr); err != nil {
			return types.Entity{}, false, err
		}
		return attr.Entity(), true, nil

	case types.EntityCDE:
		cde := &storage.CDE{
			CDEID:       row[types.FieldCDEID],
			BizTerm:     row[types.FieldBizTerm],
			DescRaw:     row[types.FieldDescRaw],
			DescClean:   row[types.FieldDescClean],
			ProdDomains: row[types.FieldProdDomains],
			ConsDomains: row[types.FieldConsDomains],
			FaltaDesc:   parseFlag(row[types.FieldFaltaDesc]) || row[types.FieldDescRaw] == "",
		}
		created, err := tx.UpsertCDE(ctx, cde)
		if err != nil {
			return types.Entity{}, false, err
		}
		return cde.Entity(), created, nil

	case types.EntityCatalog:
		catalog := &storage.Catalog{
			Schema:       row[types.FieldSchema],
			Table:        row[types.FieldTable],
			DescRaw:      row[types.FieldDescRaw],
			DescClean:    row[types.FieldDescClean],
			Atributos:    row[types.FieldAtributos],
			EjemploDatos: row[types.FieldEjemploDatos],
			CDE:          row[types.FieldCDE],
		}
		if err := tx.InsertCatalog(ctx, catalog); err != nil {
			return types.Entity{}, false, err
		}
		return catalog.Entity(), true, nil
	}
	return types.Entity{}, false, types.ErrInvalidEntityType
}
