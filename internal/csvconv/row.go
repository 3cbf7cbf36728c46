// Package csvconv implements the type-aware CSV normalizer (spec.md §4.8,
// C9): a common CSV format every driver reads and writes, plus the
// conversion between that format's text and a driver's native value for
// each portable DataType.
//
// encoding/csv cannot express this format's one load-bearing requirement --
// distinguishing NULL (an empty, unquoted field) from the empty string (an
// empty, quoted field) -- because its Writer decides quoting per field
// without a way to force it, and its Reader discards whether a field was
// quoted. Row encoding and decoding are implemented directly instead.
package csvconv

import (
	"strconv"
	"strings"
)

// Field is one CSV field together with whether it was, or should be,
// quoted. An unquoted empty Field is NULL; a quoted empty Field is the
// empty string.
type Field struct {
	Text   string
	Quoted bool
}

// Null is the canonical NULL field.
var Null = Field{}

// mustQuote reports whether text contains a character that forces RFC 4180
// quoting regardless of the caller's preference.
func mustQuote(text string) bool {
	return strings.ContainsAny(text, ",\"\r\n")
}

// EncodeRow renders fields as one RFC 4180 record, without a trailing
// newline.
func EncodeRow(fields []Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		quote := f.Quoted || mustQuote(f.Text)
		if !quote {
			b.WriteString(f.Text)
			continue
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f.Text, `"`, `""`))
		b.WriteByte('"')
	}
	return b.String()
}

// DecodeRow parses one RFC 4180 record (no trailing newline) into its
// fields, recording which were quoted in the source text.
func DecodeRow(line string) ([]Field, error) {
	var fields []Field
	var cur strings.Builder
	quoted := false
	inQuotes := false
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case inQuotes:
			if c == '"' {
				if i+1 < len(line) && line[i+1] == '"' {
					cur.WriteByte('"')
					i += 2
					continue
				}
				inQuotes = false
				i++
				continue
			}
			cur.WriteByte(c)
			i++
		case c == '"':
			if cur.Len() != 0 {
				return nil, newMalformedRowError(line, i)
			}
			quoted = true
			inQuotes = true
			i++
		case c == ',':
			fields = append(fields, Field{Text: cur.String(), Quoted: quoted})
			cur.Reset()
			quoted = false
			i++
		default:
			cur.WriteByte(c)
			i++
		}
	}
	if inQuotes {
		return nil, newMalformedRowError(line, len(line))
	}
	fields = append(fields, Field{Text: cur.String(), Quoted: quoted})
	return fields, nil
}

// MalformedRowError is returned by DecodeRow for an unterminated quoted
// field, or a quote appearing mid-field.
type MalformedRowError struct {
	Line   string
	Offset int
}

func newMalformedRowError(line string, offset int) MalformedRowError {
	return MalformedRowError{Line: line, Offset: offset}
}

func (e MalformedRowError) Error() string {
	return "malformed CSV row at offset " + strconv.Itoa(e.Offset) + ": " + e.Line
}
