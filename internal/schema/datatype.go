// Package schema defines the portable table schema and type model shared by
// every driver: a canonical representation of tables, columns, and
// user-defined named types, along with the conversions a driver needs to map
// them onto its own native type system.
package schema

import "fmt"

// DataType is the portable, database-agnostic representation of a column
// type. It is a closed set of variants; each variant is its own Go type
// implementing this interface, following the tagged-union style the spec
// calls for (Array, Struct, OneOf, Named, plus the primitives).
type DataType interface {
	// isDataType is unexported so that DataType can only be implemented by
	// the variants declared in this file.
	isDataType()
	// String renders the type for diagnostics and error messages.
	String() string
}

type primitive string

func (primitive) isDataType()      {}
func (p primitive) String() string { return string(p) }

// Primitive scalar types. These have no payload, so a single string-backed
// type serves all of them.
const (
	Bool                    primitive = "bool"
	Date                    primitive = "date"
	Decimal                 primitive = "decimal"
	Float32                 primitive = "float32"
	Float64                 primitive = "float64"
	Int16                   primitive = "int16"
	Int32                   primitive = "int32"
	Int64                   primitive = "int64"
	Json                    primitive = "json"
	Text                    primitive = "text"
	TimestampWithTimeZone   primitive = "timestamp_tz"
	TimestampWithoutTimeZone primitive = "timestamp_no_tz"
	TimeWithoutTimeZone     primitive = "time_no_tz"
	Uuid                    primitive = "uuid"
)

// ArrayType is DataType Array(element).
type ArrayType struct {
	Element DataType
}

func (ArrayType) isDataType() {}
func (a ArrayType) String() string {
	return fmt.Sprintf("array<%s>", a.Element)
}

// IsNestedArray reports whether the element type is itself an array. Most
// drivers refuse this at the edge; see spec.md §3.
func (a ArrayType) IsNestedArray() bool {
	_, ok := a.Element.(ArrayType)
	return ok
}

// GeoJsonType is DataType GeoJson(SRID).
type GeoJsonType struct {
	SRID int32
}

func (GeoJsonType) isDataType()      {}
func (g GeoJsonType) String() string { return fmt.Sprintf("geojson(%d)", g.SRID) }

// NamedType is DataType Named(type-name); it references an entry in the
// Schema's named-type table rather than embedding a value.
type NamedType struct {
	Name string
}

func (NamedType) isDataType()      {}
func (n NamedType) String() string { return fmt.Sprintf("named(%s)", n.Name) }

// OneOfType is DataType OneOf(values) — an enum represented by an ordered,
// unique set of string members. It always has at least one member.
type OneOfType struct {
	Values []string
}

func (OneOfType) isDataType() {}
func (o OneOfType) String() string {
	return fmt.Sprintf("one_of%v", o.Values)
}

// Validate checks the OneOf invariants: non-empty, unique members.
func (o OneOfType) Validate() error {
	if len(o.Values) == 0 {
		return fmt.Errorf("one_of type must have at least one member")
	}
	seen := make(map[string]struct{}, len(o.Values))
	for _, v := range o.Values {
		if _, dup := seen[v]; dup {
			return fmt.Errorf("one_of type has duplicate member %q", v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

// StructField is one member of a StructType.
type StructField struct {
	Name       string
	DataType   DataType
	IsNullable bool
}

// StructType is DataType Struct(fields) — an ordered list of named,
// optionally-nullable fields.
type StructType struct {
	Fields []StructField
}

func (StructType) isDataType()      {}
func (s StructType) String() string { return fmt.Sprintf("struct(%d fields)", len(s.Fields)) }

// ResolveNamed follows a chain of Named(n) references in types down to a
// non-Named base type, using the given named-type table. It detects cycles
// (which must be finite per spec.md §3) and returns an error naming the
// cycle rather than looping forever.
func ResolveNamed(dt DataType, types map[string]DataType) (DataType, error) {
	seen := make(map[string]struct{})
	cur := dt
	for {
		n, ok := cur.(NamedType)
		if !ok {
			return cur, nil
		}
		if _, visited := seen[n.Name]; visited {
			return nil, fmt.Errorf("cycle detected resolving named type %q", n.Name)
		}
		seen[n.Name] = struct{}{}
		next, ok := types[n.Name]
		if !ok {
			return nil, fmt.Errorf("named type %q is not defined in this schema", n.Name)
		}
		cur = next
	}
}
