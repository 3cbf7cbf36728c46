// Package bqtype maps between the portable schema.DataType model and
// BigQuery's field type vocabulary, grounded on
// original_source/dbcrossbarlib/src/drivers/bigquery_shared/{table,
// table_name}.rs and original_source/dbcrossbar/src/drivers/bigquery_shared/
// data_type/grammar.rs (the field-type literals BOOLEAN/BYTES/DATE/DATETIME/
// FLOAT64/GEOGRAPHY/INT64/NUMERIC/STRING/TIMESTAMP/TIME/ARRAY/STRUCT this
// package's ColumnToField/FieldToColumn produce and consume).
package bqtype

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/tempstore"
)

// TableName is a BigQuery table name of the form "project:dataset.table",
// grounded on bigquery_shared/table_name.rs's TableName.
type TableName struct {
	Project string
	Dataset string
	Table   string
}

// tableNameRE mirrors table_name.rs's FromStr regex.
var tableNameRE = regexp.MustCompile(`^([^:.]+):([^:.]+)\.([^:.]+)$`)

// ParseTableName parses "project:dataset.table".
func ParseTableName(s string) (TableName, error) {
	m := tableNameRE.FindStringSubmatch(s)
	if m == nil {
		return TableName{}, fmt.Errorf("could not parse BigQuery table name: %q", s)
	}
	return TableName{Project: m[1], Dataset: m[2], Table: m[3]}, nil
}

// String renders the name the way BigQuery's own CLI displays it.
func (n TableName) String() string {
	return fmt.Sprintf("%s:%s.%s", n.Project, n.Dataset, n.Table)
}

// Dotted renders "project.dataset.table", the form BigQuery standard SQL
// expects in a FROM clause.
func (n TableName) Dotted() string {
	return fmt.Sprintf("%s.%s.%s", n.Project, n.Dataset, n.Table)
}

// TemporaryTableName derives a same-dataset staging table name, grounded on
// TableName::temporary_table_name.
func (n TableName) TemporaryTableName() TableName {
	return TableName{Project: n.Project, Dataset: n.Dataset, Table: "temp_" + n.Table + "_" + tempstore.RandomTag(5)}
}

// Field is one entry of a BigQuery TableSchema: a name, a type literal, a
// mode (NULLABLE/REQUIRED/REPEATED), and nested Fields when Type is
// "RECORD".
type Field struct {
	Name   string
	Type   string
	Mode   string
	Fields []Field
}

// scalarFieldTypes maps portable scalar types to BigQuery field type
// literals, grounded on the grammar.rs non_array_data_type rule.
var scalarFieldTypes = map[schema.DataType]string{
	schema.Bool:                     "BOOLEAN",
	schema.Int16:                    "INTEGER",
	schema.Int32:                    "INTEGER",
	schema.Int64:                    "INTEGER",
	schema.Float32:                  "FLOAT64",
	schema.Float64:                  "FLOAT64",
	schema.Decimal:                  "NUMERIC",
	schema.Text:                     "STRING",
	schema.Json:                     "STRING",
	schema.Uuid:                     "STRING",
	schema.Date:                     "DATE",
	schema.TimeWithoutTimeZone:      "TIME",
	schema.TimestampWithoutTimeZone: "DATETIME",
	schema.TimestampWithTimeZone:    "TIMESTAMP",
}

// fieldTypesToScalar is scalarFieldTypes's reverse, used by FieldToColumn
// when reading a live table's schema back. STRING is deliberately mapped to
// schema.Text: BigQuery has no separate JSON or UUID storage type, so a
// round trip through BigQuery widens both to text, matching how
// bigquery_can_import_from_csv treats them as plain strings.
var fieldTypesToScalar = map[string]schema.DataType{
	"BOOLEAN":   schema.Bool,
	"BOOL":      schema.Bool,
	"INTEGER":   schema.Int64,
	"INT64":     schema.Int64,
	"FLOAT":     schema.Float64,
	"FLOAT64":   schema.Float64,
	"NUMERIC":   schema.Decimal,
	"STRING":    schema.Text,
	"DATE":      schema.Date,
	"TIME":      schema.TimeWithoutTimeZone,
	"DATETIME":  schema.TimestampWithoutTimeZone,
	"TIMESTAMP": schema.TimestampWithTimeZone,
	"GEOGRAPHY": schema.Text, // read back as text; schema.GeoJsonType is not recovered
}

// CanImportFromCSV reports whether dt's CSV text can be loaded directly by
// a BigQuery load job without an intermediate cast, grounded on
// TableBigQueryExt::bigquery_can_import_from_csv. Only GEOGRAPHY needs a
// cast: BigQuery's CSV loader has no WKT-to-GEOGRAPHY conversion built in.
func CanImportFromCSV(dt schema.DataType) bool {
	_, isGeo := dt.(schema.GeoJsonType)
	return !isGeo
}

// ColumnToField converts a portable column to a BigQuery schema Field.
// forCSVImport selects the staging representation used while loading from
// CSV (GEOGRAPHY columns become STRING, to be cast back by a follow-up
// query; see bigquery.Driver.load).
func ColumnToField(col schema.Column, sch schema.Schema, forCSVImport bool) (Field, error) {
	f, err := dataTypeToField(col.Name, col.DataType, sch, forCSVImport)
	if err != nil {
		return Field{}, err
	}
	if f.Mode == "" {
		if col.IsNullable {
			f.Mode = "NULLABLE"
		} else {
			f.Mode = "REQUIRED"
		}
	}
	return f, nil
}

func dataTypeToField(name string, dt schema.DataType, sch schema.Schema, forCSVImport bool) (Field, error) {
	switch v := dt.(type) {
	case schema.ArrayType:
		elem, err := dataTypeToField(name, v.Element, sch, forCSVImport)
		if err != nil {
			return Field{}, err
		}
		elem.Mode = "REPEATED"
		return elem, nil
	case schema.GeoJsonType:
		if forCSVImport {
			return Field{Name: name, Type: "STRING"}, nil
		}
		return Field{Name: name, Type: "GEOGRAPHY"}, nil
	case schema.StructType:
		fields := make([]Field, len(v.Fields))
		for i, sf := range v.Fields {
			f, err := dataTypeToField(sf.Name, sf.DataType, sch, forCSVImport)
			if err != nil {
				return Field{}, err
			}
			if f.Mode == "" {
				if sf.IsNullable {
					f.Mode = "NULLABLE"
				} else {
					f.Mode = "REQUIRED"
				}
			}
			fields[i] = f
		}
		return Field{Name: name, Type: "RECORD", Fields: fields}, nil
	case schema.NamedType:
		resolved, err := sch.Resolve(v)
		if err != nil {
			return Field{}, err
		}
		return dataTypeToField(name, resolved, sch, forCSVImport)
	case schema.OneOfType:
		// BigQuery has no enum type; named one-of values load as STRING.
		return Field{Name: name, Type: "STRING"}, nil
	default:
		t, ok := scalarFieldTypes[dt]
		if !ok {
			return Field{}, fmt.Errorf("no BigQuery type mapping for %s", dt)
		}
		return Field{Name: name, Type: t}, nil
	}
}

// FieldToColumn converts one top-level BigQuery schema Field back to a
// portable Column, grounded on BqColumn::to_column.
func FieldToColumn(f Field) (schema.Column, error) {
	dt, err := fieldToDataType(f)
	if err != nil {
		return schema.Column{}, err
	}
	return schema.Column{Name: f.Name, DataType: dt, IsNullable: f.Mode != "REQUIRED"}, nil
}

func fieldToDataType(f Field) (schema.DataType, error) {
	if f.Mode == "REPEATED" {
		elem, err := fieldToDataType(Field{Name: f.Name, Type: f.Type, Fields: f.Fields})
		if err != nil {
			return nil, err
		}
		return schema.ArrayType{Element: elem}, nil
	}
	if f.Type == "RECORD" {
		fields := make([]schema.StructField, len(f.Fields))
		for i, nested := range f.Fields {
			col, err := FieldToColumn(nested)
			if err != nil {
				return nil, err
			}
			fields[i] = schema.StructField{Name: col.Name, DataType: col.DataType, IsNullable: col.IsNullable}
		}
		return schema.StructType{Fields: fields}, nil
	}
	dt, ok := fieldTypesToScalar[strings.ToUpper(f.Type)]
	if !ok {
		return nil, fmt.Errorf("no portable type mapping for BigQuery type %q", f.Type)
	}
	return dt, nil
}

// NeedsGeographyCast reports whether any column of sch needs the
// load-as-STRING-then-cast staging path.
func NeedsGeographyCast(sch schema.Schema) bool {
	var walk func(dt schema.DataType) bool
	walk = func(dt schema.DataType) bool {
		switch v := dt.(type) {
		case schema.GeoJsonType:
			return true
		case schema.ArrayType:
			return walk(v.Element)
		case schema.StructType:
			for _, f := range v.Fields {
				if walk(f.DataType) {
					return true
				}
			}
		}
		return false
	}
	for _, col := range sch.Table.Columns {
		if walk(col.DataType) {
			return true
		}
	}
	return false
}

// ImportSelectSQL builds the "SELECT ... FROM <temp>" statement that casts
// a staging table's STRING geography columns into GEOGRAPHY, grounded on
// BqTable::write_import_sql/write_import_select_expr. Nested struct/array
// geography columns are not cast; only top-level columns are rewritten.
func ImportSelectSQL(sch schema.Schema, tempTableDotted string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, col := range sch.Table.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		if _, ok := col.DataType.(schema.GeoJsonType); ok {
			fmt.Fprintf(&b, "ST_GEOGFROMTEXT(`%s`) AS `%s`", col.Name, col.Name)
		} else {
			fmt.Fprintf(&b, "`%s`", col.Name)
		}
	}
	fmt.Fprintf(&b, " FROM `%s`", tempTableDotted)
	return b.String()
}
