package pgsql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dbcrossbar/dbcrossbar-go/internal/pgtype"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
)

// parseDDL reads back exactly the DDL shape pgtype.Generator and
// pgtype.CreateTypeStatements emit: zero or more "CREATE TYPE ... AS ENUM
// (...)" statements followed by one "CREATE TABLE ... (...)" statement. It is
// not a general PostgreSQL DDL parser.
func parseDDL(text string) (*schema.Schema, error) {
	namedTypes := make(map[string]schema.DataType)
	var table *schema.Table

	for _, stmt := range splitTopLevel(text, ';') {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		upper := strings.ToUpper(stmt)
		switch {
		case strings.HasPrefix(upper, "CREATE TYPE"):
			name, values, err := parseCreateType(stmt)
			if err != nil {
				return nil, err
			}
			namedTypes[name] = schema.OneOfType{Values: values}
		case strings.HasPrefix(upper, "CREATE TABLE"):
			if table != nil {
				return nil, fmt.Errorf("more than one CREATE TABLE statement")
			}
			t, err := parseCreateTable(stmt)
			if err != nil {
				return nil, err
			}
			table = t
		default:
			return nil, fmt.Errorf("unrecognized statement: %s", firstLine(stmt))
		}
	}

	if table == nil {
		return nil, fmt.Errorf("no CREATE TABLE statement found")
	}
	return &schema.Schema{Table: *table, NamedTypes: namedTypes}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var createTypeHeader = regexp.MustCompile(`(?is)^CREATE TYPE\s+(.+?)\s+AS\s+ENUM\s*$`)

func parseCreateType(stmt string) (name string, values []string, err error) {
	openIdx := strings.IndexByte(stmt, '(')
	if openIdx < 0 {
		return "", nil, fmt.Errorf("CREATE TYPE statement has no enum value list: %s", firstLine(stmt))
	}
	closeIdx, err := findMatchingParen(stmt, openIdx)
	if err != nil {
		return "", nil, err
	}
	header := createTypeHeader.FindStringSubmatch(strings.TrimSpace(stmt[:openIdx]))
	if header == nil {
		return "", nil, fmt.Errorf("malformed CREATE TYPE statement: %s", firstLine(stmt))
	}
	name, err = parseQualifiedName(header[1])
	if err != nil {
		return "", nil, err
	}

	body := stmt[openIdx+1 : closeIdx]
	for _, lit := range splitTopLevel(body, ',') {
		lit = strings.TrimSpace(lit)
		if lit == "" {
			continue
		}
		v, err := unquoteStringLiteral(lit)
		if err != nil {
			return "", nil, err
		}
		values = append(values, v)
	}
	return name, values, nil
}

func parseCreateTable(stmt string) (*schema.Table, error) {
	openIdx := strings.IndexByte(stmt, '(')
	if openIdx < 0 {
		return nil, fmt.Errorf("CREATE TABLE statement has no column list: %s", firstLine(stmt))
	}
	closeIdx, err := findMatchingParen(stmt, openIdx)
	if err != nil {
		return nil, err
	}

	header := strings.TrimSpace(stmt[:openIdx])
	header = trimCaseInsensitivePrefix(header, "CREATE TABLE")
	header = strings.TrimSpace(trimCaseInsensitivePrefix(strings.TrimSpace(header), "IF NOT EXISTS"))
	tableName, err := parseQualifiedName(header)
	if err != nil {
		return nil, fmt.Errorf("parsing table name: %w", err)
	}

	body := stmt[openIdx+1 : closeIdx]
	var columns []schema.Column
	for _, chunk := range splitTopLevel(body, ',') {
		col, ok, err := parseColumnDef(chunk)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", tableName, err)
		}
		if ok {
			columns = append(columns, col)
		}
	}
	return &schema.Table{Name: tableName, Columns: columns}, nil
}

func parseColumnDef(chunk string) (schema.Column, bool, error) {
	var comment string
	var defLines []string
	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "--") {
			comment = strings.TrimSpace(strings.TrimPrefix(line, "--"))
			continue
		}
		defLines = append(defLines, line)
	}
	if len(defLines) == 0 {
		return schema.Column{}, false, nil
	}
	def := strings.Join(defLines, " ")

	name, rest, err := splitIdentifierAndRest(def)
	if err != nil {
		return schema.Column{}, false, err
	}

	isNullable := false
	lowerRest := strings.ToLower(rest)
	switch {
	case strings.HasSuffix(lowerRest, " not null"):
		rest = strings.TrimSpace(rest[:len(rest)-len(" not null")])
	case strings.HasSuffix(lowerRest, " null"):
		isNullable = true
		rest = strings.TrimSpace(rest[:len(rest)-len(" null")])
	}

	dt, err := parseTypeLiteral(rest)
	if err != nil {
		return schema.Column{}, false, fmt.Errorf("column %q: %w", name, err)
	}
	return schema.Column{Name: name, DataType: dt, IsNullable: isNullable, Comment: comment}, true, nil
}

var geometryLiteral = regexp.MustCompile(`(?i)^geometry\(Geometry,\s*(\d+)\)$`)

func parseTypeLiteral(lit string) (schema.DataType, error) {
	lit = strings.TrimSpace(lit)
	if strings.HasSuffix(lit, "[]") {
		elem, err := parseBaseTypeLiteral(strings.TrimSpace(strings.TrimSuffix(lit, "[]")))
		if err != nil {
			return nil, err
		}
		return schema.ArrayType{Element: elem}, nil
	}
	return parseBaseTypeLiteral(lit)
}

func parseBaseTypeLiteral(lit string) (schema.DataType, error) {
	if strings.HasPrefix(lit, `"`) {
		name, err := unquoteDoubleQuoted(lit)
		if err != nil {
			return nil, err
		}
		return schema.NamedType{Name: name}, nil
	}
	if m := geometryLiteral.FindStringSubmatch(lit); m != nil {
		srid, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, err
		}
		return schema.GeoJsonType{SRID: int32(srid)}, nil
	}
	if lit == "jsonb" || lit == "json" {
		return schema.Json, nil
	}
	return pgtype.ParseScalar(lit)
}

// splitIdentifierAndRest splits "<ident> <rest of column definition>" into
// its name and the remaining type text, handling a double-quoted identifier.
func splitIdentifierAndRest(s string) (name, rest string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", fmt.Errorf("empty column definition")
	}
	if s[0] != '"' {
		idx := strings.IndexAny(s, " \t")
		if idx < 0 {
			return "", "", fmt.Errorf("column definition %q has no type", s)
		}
		return s[:idx], strings.TrimSpace(s[idx:]), nil
	}

	i := 1
	for i < len(s) {
		if s[i] == '"' {
			if i+1 < len(s) && s[i+1] == '"' {
				i += 2
				continue
			}
			i++
			break
		}
		i++
	}
	name, err = unquoteDoubleQuoted(s[:i])
	if err != nil {
		return "", "", err
	}
	return name, strings.TrimSpace(s[i:]), nil
}

func unquoteDoubleQuoted(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("expected a quoted identifier, got %q", s)
	}
	return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`), nil
}

func unquoteStringLiteral(s string) (string, error) {
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return "", fmt.Errorf("expected a quoted string literal, got %q", s)
	}
	return strings.ReplaceAll(s[1:len(s)-1], `''`, `'`), nil
}

// parseQualifiedName parses a possibly dot-qualified, possibly
// double-quoted name like `"public"."widgets"` or a bare `widgets` back
// into its plain dotted form ("public.widgets").
func parseQualifiedName(s string) (string, error) {
	parts := splitTopLevel(s, '.')
	out := make([]string, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, `"`) {
			v, err := unquoteDoubleQuoted(p)
			if err != nil {
				return "", err
			}
			out[i] = v
		} else {
			out[i] = p
		}
	}
	return strings.Join(out, "."), nil
}

func trimCaseInsensitivePrefix(s, prefix string) string {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return strings.TrimSpace(s[len(prefix):])
	}
	return s
}

// findMatchingParen returns the index in s of the ')' that closes the '('
// at openIdx, honoring nested parens and quoted strings/identifiers.
func findMatchingParen(s string, openIdx int) (int, error) {
	depth := 0
	inSingle, inDouble := false, false
	for i := openIdx; i < len(s); i++ {
		c := s[i]
		switch {
		case inSingle:
			if c == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					i++
					continue
				}
				inSingle = false
			}
		case inDouble:
			if c == '"' {
				if i+1 < len(s) && s[i+1] == '"' {
					i++
					continue
				}
				inDouble = false
			}
		default:
			switch c {
			case '\'':
				inSingle = true
			case '"':
				inDouble = true
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return i, nil
				}
			}
		}
	}
	return -1, fmt.Errorf("unbalanced parentheses")
}

// splitTopLevel splits s on sep, ignoring any sep found inside a
// parenthesized group or a single/double-quoted string.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	inSingle, inDouble := false, false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inSingle:
			if c == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					i++
					continue
				}
				inSingle = false
			}
		case inDouble:
			if c == '"' {
				if i+1 < len(s) && s[i+1] == '"' {
					i++
					continue
				}
				inDouble = false
			}
		default:
			switch {
			case c == '\'':
				inSingle = true
			case c == '"':
				inDouble = true
			case c == '(':
				depth++
			case c == ')':
				depth--
			case c == sep && depth == 0:
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
