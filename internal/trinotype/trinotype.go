// Package trinotype implements Trino identifier quoting, table-name
// handling, and CREATE TABLE generation, grounded on
// original_source/crates/dbcrossbar_trino/{ident,quoted_string,
// table_options}.rs and original_source/dbcrossbar/src/drivers/trino_shared/
// mod.rs (TrinoTableName's three variants). dbcrossbar_trino_types' own
// data_type.rs/types.rs are not retained in the pack, so the scalar-type
// vocabulary below is reconstructed from Trino's own SQL type grammar
// (https://trino.io/docs/current/language/types.html) rather than ported.
package trinotype

import (
	"fmt"
	"strings"

	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/sqlddl"
)

// Ident is a Trino identifier. Unlike ordinary SQL, Trino identifiers are
// case-insensitive, so Ident stores the name lowercased and always renders
// it double-quoted, matching crates/dbcrossbar_trino/src/ident.rs's
// "always quote, so we never need a reserved-word list" approach (the
// earlier trino_shared/mod.rs only quoted when necessary; the newer crate
// superseded it).
type Ident struct {
	lower string
}

// NewIdent lowercases and wraps name. Trino identifiers cannot be empty.
func NewIdent(name string) (Ident, error) {
	if name == "" {
		return Ident{}, fmt.Errorf("trino identifiers cannot be the empty string")
	}
	return Ident{lower: strings.ToLower(name)}, nil
}

// MustIdent is NewIdent, panicking on error, for call sites (column names
// already validated by schema.Identifier) that cannot fail in practice.
func MustIdent(name string) Ident {
	id, err := NewIdent(name)
	if err != nil {
		panic(err)
	}
	return id
}

// Placeholder names an anonymous ROW field by position, grounded on
// TrinoIdent::placeholder.
func Placeholder(idx int) Ident {
	return Ident{lower: fmt.Sprintf("f__%d", idx)}
}

func (i Ident) String() string {
	return `"` + strings.ReplaceAll(i.lower, `"`, `""`) + `"`
}

// Unquoted returns the lowercased name without quoting.
func (i Ident) Unquoted() string { return i.lower }

// QuotedString renders s as a single-quoted Trino SQL string literal,
// grounded on crates/dbcrossbar_trino/src/quoted_string.rs.
func QuotedString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// TableName is a Trino table name, optionally schema- and catalog-
// qualified, grounded on trino_shared/mod.rs's TrinoTableName enum
// (Table/Schema/Catalog variants).
type TableName struct {
	Catalog Ident // zero value means "no catalog" (Table or Schema variant)
	Schema  Ident // zero value means "no schema" (Table variant)
	Table   Ident
}

// NewTableName builds the bare Table(table) variant.
func NewTableName(table string) (TableName, error) {
	t, err := NewIdent(table)
	if err != nil {
		return TableName{}, err
	}
	return TableName{Table: t}, nil
}

// NewSchemaTableName builds the Schema(schema, table) variant.
func NewSchemaTableName(schemaName, table string) (TableName, error) {
	s, err := NewIdent(schemaName)
	if err != nil {
		return TableName{}, err
	}
	t, err := NewIdent(table)
	if err != nil {
		return TableName{}, err
	}
	return TableName{Schema: s, Table: t}, nil
}

// NewCatalogTableName builds the Catalog(catalog, schema, table) variant.
func NewCatalogTableName(catalog, schemaName, table string) (TableName, error) {
	n, err := NewSchemaTableName(schemaName, table)
	if err != nil {
		return TableName{}, err
	}
	c, err := NewIdent(catalog)
	if err != nil {
		return TableName{}, err
	}
	n.Catalog = c
	return n, nil
}

// String renders the dot-separated, per-component-quoted display form,
// exercising exactly the invariant trino_shared/mod.rs's Display impl
// establishes: only the present components are shown, each individually
// quoted.
func (n TableName) String() string {
	var parts []string
	if n.Catalog != (Ident{}) {
		parts = append(parts, n.Catalog.String())
	}
	if n.Schema != (Ident{}) {
		parts = append(parts, n.Schema.String())
	}
	parts = append(parts, n.Table.String())
	return strings.Join(parts, ".")
}

// Unquoted renders the dot-separated display form without per-component
// quoting, for callers (such as sqlddl.Generator.CreateTableStatement) that
// apply their own identifier quoting to each dot-separated segment.
func (n TableName) Unquoted() string {
	var parts []string
	if n.Catalog != (Ident{}) {
		parts = append(parts, n.Catalog.Unquoted())
	}
	if n.Schema != (Ident{}) {
		parts = append(parts, n.Schema.Unquoted())
	}
	parts = append(parts, n.Table.Unquoted())
	return strings.Join(parts, ".")
}

// scalarTypes maps portable scalar types to Trino SQL type literals,
// reconstructed from Trino's type grammar (see package doc).
var scalarTypes = map[schema.DataType]string{
	schema.Bool:                     "BOOLEAN",
	schema.Int16:                    "SMALLINT",
	schema.Int32:                    "INTEGER",
	schema.Int64:                    "BIGINT",
	schema.Float32:                  "REAL",
	schema.Float64:                  "DOUBLE",
	schema.Decimal:                  "DECIMAL(38,9)",
	schema.Text:                     "VARCHAR",
	schema.Json:                     "JSON",
	schema.Uuid:                     "UUID",
	schema.Date:                     "DATE",
	schema.TimeWithoutTimeZone:      "TIME",
	schema.TimestampWithoutTimeZone: "TIMESTAMP",
	schema.TimestampWithTimeZone:    "TIMESTAMP WITH TIME ZONE",
}

// scalarsByLiteral is scalarTypes's reverse, used to read a live table's
// columns back via information_schema.columns.data_type.
var scalarsByLiteral = map[string]schema.DataType{
	"boolean":                  schema.Bool,
	"tinyint":                  schema.Int16,
	"smallint":                 schema.Int16,
	"integer":                  schema.Int32,
	"bigint":                   schema.Int64,
	"real":                     schema.Float32,
	"double":                   schema.Float64,
	"decimal":                  schema.Decimal,
	"varchar":                  schema.Text,
	"char":                     schema.Text,
	"json":                     schema.Json,
	"uuid":                     schema.Uuid,
	"date":                     schema.Date,
	"time":                     schema.TimeWithoutTimeZone,
	"timestamp":                schema.TimestampWithoutTimeZone,
	"timestamp with time zone": schema.TimestampWithTimeZone,
}

// ParseScalar looks up a bare Trino DDL type literal (as reported by
// information_schema.columns, with any parenthesized precision/scale
// already stripped by the caller).
func ParseScalar(literal string) (schema.DataType, error) {
	dt, ok := scalarsByLiteral[strings.ToLower(strings.TrimSpace(literal))]
	if !ok {
		return nil, fmt.Errorf("no portable type mapping for Trino type %q", literal)
	}
	return dt, nil
}

// SQLType renders dt as a Trino DDL type literal, with no nullability
// suffix (Trino expresses nullability as a per-column "NOT NULL" keyword,
// handled by TypeMapper.ColumnType below).
func SQLType(dt schema.DataType, sch schema.Schema) (string, error) {
	switch v := dt.(type) {
	case schema.ArrayType:
		elem, err := SQLType(v.Element, sch)
		if err != nil {
			return "", err
		}
		return "ARRAY(" + elem + ")", nil
	case schema.StructType:
		fields := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			t, err := SQLType(f.DataType, sch)
			if err != nil {
				return "", err
			}
			fields[i] = MustIdent(f.Name).String() + " " + t
		}
		return "ROW(" + strings.Join(fields, ", ") + ")", nil
	case schema.NamedType:
		resolved, err := sch.Resolve(v)
		if err != nil {
			return "", err
		}
		return SQLType(resolved, sch)
	case schema.OneOfType:
		// Trino has no enum type; named one-of values are stored as VARCHAR,
		// the same widening BigQuery's driver uses for the same reason.
		return "VARCHAR", nil
	case schema.GeoJsonType:
		return "", fmt.Errorf("trino has no portable geometry type; geometry columns are not supported by this driver")
	default:
		t, ok := scalarTypes[dt]
		if !ok {
			return "", fmt.Errorf("no Trino type mapping for %s", dt)
		}
		return t, nil
	}
}

// TypeMapper is a sqlddl.TypeMapper targeting Trino.
type TypeMapper struct{}

func (TypeMapper) ColumnType(col schema.Column, sch schema.Schema) (string, error) {
	sqlType, err := SQLType(col.DataType, sch)
	if err != nil {
		return "", err
	}
	if col.IsNullable {
		return sqlType, nil
	}
	return sqlType + " NOT NULL", nil
}

// Generator is the sqlddl.Generator used to emit Trino CREATE TABLE
// statements.
var Generator = sqlddl.Generator{Quote: '"', TypeMappings: TypeMapper{}}

// connectorsWithoutNotNull lists connector types that reject a "NOT NULL"
// column constraint in CREATE TABLE, grounded on
// TrinoCreateTable::downgrade_for_connector_type's existence (the exact
// connector list is not retained in this pack's source, so this one is
// reconstructed from Trino's own connector documentation: the memory and
// Hive connectors do not support column-level NOT NULL).
var connectorsWithoutNotNull = map[string]bool{
	"memory": true,
	"hive":   true,
}

// DowngradeForConnectorType strips "NOT NULL" from every column definition
// in createTableSQL when connectorType does not support it. This is a
// crude textual downgrade rather than a structural one (the original
// mutates a typed AST before rendering); documented as a simplification in
// DESIGN.md since this package renders DDL as a plain string via
// sqlddl.Generator rather than a Wadler-style pretty-printed document.
func DowngradeForConnectorType(createTableSQL, connectorType string) string {
	if !connectorsWithoutNotNull[strings.ToLower(connectorType)] {
		return createTableSQL
	}
	return strings.ReplaceAll(createTableSQL, " NOT NULL", "")
}

// HiveCSVWrapperTable builds the CREATE TABLE statement for an external
// Hive table reading CSV data from s3Location, grounded on
// TrinoCreateTable::hive_csv_wrapper_table. Every column is declared
// VARCHAR: the wrapper only exists to bulk-load text, and the real
// destination table (created separately) carries the real types.
func HiveCSVWrapperTable(name TableName, columns []schema.Column, s3Location string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", name)
	for i, col := range columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "    %s VARCHAR", MustIdent(col.Name))
	}
	b.WriteString("\n) WITH (\n")
	fmt.Fprintf(&b, "    format = 'CSV',\n")
	fmt.Fprintf(&b, "    csv_separator = ',',\n")
	fmt.Fprintf(&b, "    skip_header_line_count = 1,\n")
	fmt.Fprintf(&b, "    external_location = %s\n", QuotedString(s3Location))
	b.WriteString(")")
	return b.String()
}

// InsertFromWrapperTable builds the "INSERT INTO dest SELECT ... FROM
// wrapper" statement that casts every VARCHAR wrapper column to its real
// destination type, grounded on
// TrinoCreateTable::insert_from_wrapper_table_doc.
func InsertFromWrapperTable(dest TableName, columns []schema.Column, sch schema.Schema, wrapper TableName) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s\nSELECT ", dest)
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		sqlType, err := SQLType(col.DataType, sch)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "CAST(%s AS %s) AS %s", MustIdent(col.Name), sqlType, MustIdent(col.Name))
	}
	fmt.Fprintf(&b, "\nFROM %s", wrapper)
	return b.String(), nil
}
