// Package sqlddl generates CREATE TABLE DDL from a portable schema.Table,
// grounded on the teacher's materialize/sql/sqlgen.go (TypeMapper/Generator
// decorator pattern) and materialize/sql/std_endpoint.go
// (CreateTableStatement's strings.Builder layout). Unlike the teacher, which
// maps a small fixed JSON-ish type set, a TypeMapper here maps the full
// schema.DataType sum type, since the drivers that use this package must
// emit every portable type spec.md defines.
package sqlddl

import (
	"fmt"
	"strings"

	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
)

// TypeMapper resolves a schema.Column to the SQL type string a dialect
// should use for it. Implementations decide nullability suffixes/prefixes
// themselves, since dialects disagree on whether "NULL"/"NOT NULL" is
// written and in which position.
type TypeMapper interface {
	ColumnType(col schema.Column, sch schema.Schema) (string, error)
}

// TypeMapperFunc adapts a function to TypeMapper.
type TypeMapperFunc func(col schema.Column, sch schema.Schema) (string, error)

func (f TypeMapperFunc) ColumnType(col schema.Column, sch schema.Schema) (string, error) {
	return f(col, sch)
}

// Generator renders DDL for one SQL dialect.
type Generator struct {
	// Quote is the identifier quote character (e.g. '"' for Postgres,
	// '`' for BigQuery legacy SQL).
	Quote rune
	// TypeMappings resolves each column's SQL type.
	TypeMappings TypeMapper
}

// QuoteIdentifier quotes name for this dialect, doubling any embedded quote
// character, matching schema.Identifier.Quoted.
func (g Generator) QuoteIdentifier(name string) string {
	return schema.MustIdentifier(name).Quoted(g.Quote)
}

// QuoteQualifiedName quotes a dot-separated name (e.g. "myschema.mytable")
// component by component, so a schema-qualified table name is not quoted as
// one single identifier containing a literal dot.
func (g Generator) QuoteQualifiedName(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = g.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// CreateTableStatement generates a CREATE TABLE statement for sch.Table,
// laid out the way the teacher's StdEndpoint.CreateTableStatement does:
// one column per line, a trailing close paren, no parameter placeholders.
func (g Generator) CreateTableStatement(sch schema.Schema, ifNotExists bool) (string, error) {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(g.QuoteQualifiedName(sch.Table.Name))
	b.WriteString(" (\n")

	for i, col := range sch.Table.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		if col.Comment != "" {
			b.WriteString("    -- ")
			b.WriteString(strings.ReplaceAll(col.Comment, "\n", " "))
			b.WriteString("\n")
		}
		b.WriteString("    ")
		b.WriteString(g.QuoteIdentifier(col.Name))
		b.WriteRune(' ')

		sqlType, err := g.TypeMappings.ColumnType(col, sch)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", col.Name, err)
		}
		b.WriteString(sqlType)
	}

	b.WriteString("\n)")
	return b.String(), nil
}
