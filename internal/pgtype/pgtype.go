// Package pgtype maps between the portable schema.DataType model and
// PostgreSQL DDL type literals, grounded on
// original_source/dbcrossbarlib/src/drivers/postgres_shared/{data_type,mod}.rs.
// It is shared by the postgres driver (a live connection) and the pgsql
// driver (a CREATE TABLE DDL file), since both dialects are PostgreSQL's.
package pgtype

import (
	"fmt"
	"strings"

	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/sqlddl"
)

// ScalarTypes maps each schema primitive to its PostgreSQL DDL type literal.
var ScalarTypes = map[schema.DataType]string{
	schema.Bool:                     "boolean",
	schema.Date:                     "date",
	schema.Decimal:                  "numeric",
	schema.Float32:                  "real",
	schema.Float64:                  "double precision",
	schema.Int16:                    "smallint",
	schema.Int32:                    "integer",
	schema.Int64:                    "bigint",
	schema.Json:                     "jsonb",
	schema.Text:                     "text",
	schema.TimestampWithTimeZone:    "timestamp with time zone",
	schema.TimestampWithoutTimeZone: "timestamp without time zone",
	schema.TimeWithoutTimeZone:      "time without time zone",
	schema.Uuid:                     "uuid",
}

// scalarsByLiteral is the reverse of ScalarTypes, plus the handful of
// synonyms PostgreSQL accepts in DDL (e.g. "int" for "integer"), used by
// ParseScalar to read a DDL file back.
var scalarsByLiteral = map[string]schema.DataType{
	"boolean":                      schema.Bool,
	"bool":                         schema.Bool,
	"date":                         schema.Date,
	"numeric":                      schema.Decimal,
	"decimal":                      schema.Decimal,
	"real":                         schema.Float32,
	"float4":                       schema.Float32,
	"double precision":             schema.Float64,
	"float8":                       schema.Float64,
	"smallint":                     schema.Int16,
	"int2":                         schema.Int16,
	"integer":                      schema.Int32,
	"int":                          schema.Int32,
	"int4":                         schema.Int32,
	"bigint":                       schema.Int64,
	"int8":                         schema.Int64,
	"json":                         schema.Json,
	"jsonb":                        schema.Json,
	"text":                         schema.Text,
	"timestamp with time zone":     schema.TimestampWithTimeZone,
	"timestamptz":                  schema.TimestampWithTimeZone,
	"timestamp without time zone":  schema.TimestampWithoutTimeZone,
	"timestamp":                    schema.TimestampWithoutTimeZone,
	"time without time zone":       schema.TimeWithoutTimeZone,
	"time":                         schema.TimeWithoutTimeZone,
	"uuid":                         schema.Uuid,
}

// ParseScalar looks up a bare (non-array, non-enum) PostgreSQL DDL type
// literal, case-insensitively.
func ParseScalar(literal string) (schema.DataType, error) {
	dt, ok := scalarsByLiteral[strings.ToLower(strings.TrimSpace(literal))]
	if !ok {
		return nil, fmt.Errorf("no portable type mapping for PostgreSQL type %q", literal)
	}
	return dt, nil
}

// TypeMapper is a sqlddl.TypeMapper targeting PostgreSQL. Named types
// (enums) are assumed already created by a preceding CREATE TYPE statement;
// see CreateTypeStatements.
type TypeMapper struct{}

func (TypeMapper) ColumnType(col schema.Column, sch schema.Schema) (string, error) {
	sqlType, err := SQLType(col.DataType, sch)
	if err != nil {
		return "", err
	}
	if col.IsNullable {
		return sqlType + " NULL", nil
	}
	return sqlType + " NOT NULL", nil
}

// SQLType renders dt as a PostgreSQL DDL type literal (with no
// nullability suffix).
func SQLType(dt schema.DataType, sch schema.Schema) (string, error) {
	switch v := dt.(type) {
	case schema.ArrayType:
		elem, err := baseSQLType(v.Element, sch)
		if err != nil {
			return "", err
		}
		return elem + "[]", nil
	case schema.GeoJsonType:
		return fmt.Sprintf("geometry(Geometry,%d)", v.SRID), nil
	case schema.NamedType:
		return schema.MustIdentifier(v.Name).Quoted('"'), nil
	case schema.OneOfType:
		return "", fmt.Errorf("one_of types must be referenced through a named type when writing PostgreSQL DDL")
	case schema.StructType:
		return "jsonb", nil
	default:
		sqlType, ok := ScalarTypes[dt]
		if !ok {
			return "", fmt.Errorf("no PostgreSQL type mapping for %s", dt)
		}
		return sqlType, nil
	}
}

// baseSQLType is like SQLType but rejects nested arrays, since PostgreSQL
// array element syntax cannot carry one more "[]" nesting level the way
// this package emits it.
func baseSQLType(dt schema.DataType, sch schema.Schema) (string, error) {
	if _, ok := dt.(schema.ArrayType); ok {
		return "", fmt.Errorf("nested arrays are not supported")
	}
	return SQLType(dt, sch)
}

// Generator is the sqlddl.Generator used to emit CREATE TABLE statements
// for both the postgres driver and the postgres-sql: DDL-file locator.
var Generator = sqlddl.Generator{Quote: '"', TypeMappings: TypeMapper{}}

// CreateTypeStatements returns one "CREATE TYPE ... AS ENUM (...)" statement
// per named OneOf type referenced transitively by sch.Table, in a
// deterministic order, grounded on spec.md §4.9 ("named types (enums) are
// fetched as CREATE TYPE ... AS ENUM").
func CreateTypeStatements(sch schema.Schema) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	var walk func(dt schema.DataType) error
	walk = func(dt schema.DataType) error {
		switch v := dt.(type) {
		case schema.NamedType:
			if seen[v.Name] {
				return nil
			}
			seen[v.Name] = true
			names = append(names, v.Name)
			return nil
		case schema.ArrayType:
			return walk(v.Element)
		case schema.StructType:
			for _, f := range v.Fields {
				if err := walk(f.DataType); err != nil {
					return err
				}
			}
			return nil
		default:
			return nil
		}
	}
	for _, col := range sch.Table.Columns {
		if err := walk(col.DataType); err != nil {
			return nil, err
		}
	}

	var statements []string
	for _, name := range names {
		base, err := sch.Resolve(schema.NamedType{Name: name})
		if err != nil {
			return nil, err
		}
		oneOf, ok := base.(schema.OneOfType)
		if !ok {
			continue // not an enum; some other named shape this package doesn't special-case
		}
		stmt := fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", schema.MustIdentifier(name).Quoted('"'), quoteList(oneOf.Values))
		statements = append(statements, stmt)
	}
	return statements, nil
}

func quoteList(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += Quote(v)
	}
	return out
}

// Quote escapes and quotes a PostgreSQL string literal, grounded on
// original_source/dbcrossbarlib/src/drivers/postgres_shared/mod.rs's
// pg_quote.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
