package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// externalColumn is the JSON wire shape of Column, independent of our
// in-memory DataType interface so that json.Unmarshal has a concrete target.
type externalColumn struct {
	Name       string          `json:"name"`
	DataType   json.RawMessage `json:"data_type"`
	IsNullable bool            `json:"is_nullable"`
	Comment    string          `json:"comment,omitempty"`
}

type externalTable struct {
	Name    string           `json:"name"`
	Columns []externalColumn `json:"columns"`
}

type externalNamedType struct {
	Name     string          `json:"name"`
	DataType json.RawMessage `json:"data_type"`
}

// externalSchemaV2 is the schema JSON the writer always emits: a table plus
// the named-type table it may reference. See spec.md §6.
type externalSchemaV2 struct {
	NamedDataTypes []externalNamedType `json:"named_data_types"`
	Tables         []externalTable     `json:"tables"`
}

// ParseExternalSchema accepts either a bare table object (v1) or
// {named_data_types, tables} (v2), exactly as the original dbcrossbar-schema
// parser does (see original_source/dbcrossbarlib/src/drivers/
// dbcrossbar_schema/external_schema.rs): it is an untagged union distinguished
// only by the presence of a "tables" key.
func ParseExternalSchema(data []byte) (Schema, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Schema{}, fmt.Errorf("parsing dbcrossbar-schema JSON: %w", err)
	}

	if _, isV2 := probe["tables"]; isV2 {
		var v2 externalSchemaV2
		if err := json.Unmarshal(data, &v2); err != nil {
			return Schema{}, fmt.Errorf("parsing v2 dbcrossbar-schema JSON: %w", err)
		}
		if len(v2.Tables) != 1 {
			return Schema{}, fmt.Errorf("dbcrossbar-schema v2 document must contain exactly one table, found %d", len(v2.Tables))
		}
		return v2.toSchema()
	}

	var v1 externalTable
	if err := json.Unmarshal(data, &v1); err != nil {
		return Schema{}, fmt.Errorf("parsing v1 dbcrossbar-schema JSON: %w", err)
	}
	return (&externalSchemaV2{Tables: []externalTable{v1}}).toSchema()
}

// WriteExternalSchema always emits the v2 form, as spec.md §6 requires.
func WriteExternalSchema(s Schema) ([]byte, error) {
	v2 := externalSchemaV2{Tables: []externalTable{fromTable(s.Table)}}
	names := make([]string, 0, len(s.NamedTypes))
	for name := range s.NamedTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		raw, err := encodeDataType(s.NamedTypes[name])
		if err != nil {
			return nil, fmt.Errorf("encoding named type %q: %w", name, err)
		}
		v2.NamedDataTypes = append(v2.NamedDataTypes, externalNamedType{Name: name, DataType: raw})
	}
	return json.MarshalIndent(v2, "", "  ")
}

func (v2 *externalSchemaV2) toSchema() (Schema, error) {
	namedTypes := make(map[string]DataType, len(v2.NamedDataTypes))
	for _, nt := range v2.NamedDataTypes {
		dt, err := decodeDataType(nt.DataType)
		if err != nil {
			return Schema{}, fmt.Errorf("named type %q: %w", nt.Name, err)
		}
		namedTypes[nt.Name] = dt
	}

	table := v2.Tables[0]
	out := Table{Name: table.Name}
	for _, c := range table.Columns {
		dt, err := decodeDataType(c.DataType)
		if err != nil {
			return Schema{}, fmt.Errorf("column %q: %w", c.Name, err)
		}
		out.Columns = append(out.Columns, Column{
			Name:       c.Name,
			DataType:   dt,
			IsNullable: c.IsNullable,
			Comment:    c.Comment,
		})
	}

	s := Schema{Table: out, NamedTypes: namedTypes}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

func fromTable(t Table) externalTable {
	out := externalTable{Name: t.Name}
	for _, c := range t.Columns {
		raw, err := encodeDataType(c.DataType)
		if err != nil {
			// encodeDataType only fails for variants we control; a failure
			// here indicates a programmer error constructing an invalid
			// DataType, not a user-facing condition.
			panic(err)
		}
		out.Columns = append(out.Columns, externalColumn{
			Name:       c.Name,
			DataType:   raw,
			IsNullable: c.IsNullable,
			Comment:    c.Comment,
		})
	}
	return out
}

// wireDataType is the tagged-variant JSON shape used for DataType, e.g.
// {"type": "array", "element": {...}} or {"type": "bool"}.
type wireDataType struct {
	Type    string          `json:"type"`
	Element json.RawMessage `json:"element,omitempty"`
	SRID    int32           `json:"srid,omitempty"`
	Name    string          `json:"name,omitempty"`
	Values  []string        `json:"values,omitempty"`
	Fields  []wireField     `json:"fields,omitempty"`
}

type wireField struct {
	Name       string          `json:"name"`
	DataType   json.RawMessage `json:"data_type"`
	IsNullable bool            `json:"is_nullable"`
}

func encodeDataType(dt DataType) (json.RawMessage, error) {
	switch v := dt.(type) {
	case primitive:
		return json.Marshal(wireDataType{Type: string(v)})
	case ArrayType:
		elem, err := encodeDataType(v.Element)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireDataType{Type: "array", Element: elem})
	case GeoJsonType:
		return json.Marshal(wireDataType{Type: "geojson", SRID: v.SRID})
	case NamedType:
		return json.Marshal(wireDataType{Type: "named", Name: v.Name})
	case OneOfType:
		return json.Marshal(wireDataType{Type: "one_of", Values: v.Values})
	case StructType:
		fields := make([]wireField, 0, len(v.Fields))
		for _, f := range v.Fields {
			raw, err := encodeDataType(f.DataType)
			if err != nil {
				return nil, err
			}
			fields = append(fields, wireField{Name: f.Name, DataType: raw, IsNullable: f.IsNullable})
		}
		return json.Marshal(wireDataType{Type: "struct", Fields: fields})
	default:
		return nil, fmt.Errorf("cannot encode unknown data type %T", dt)
	}
}

func decodeDataType(raw json.RawMessage) (DataType, error) {
	var w wireDataType
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parsing data_type: %w", err)
	}
	switch w.Type {
	case string(Bool), string(Date), string(Decimal), string(Float32), string(Float64),
		string(Int16), string(Int32), string(Int64), string(Json), string(Text),
		string(TimestampWithTimeZone), string(TimestampWithoutTimeZone),
		string(TimeWithoutTimeZone), string(Uuid):
		return primitive(w.Type), nil
	case "array":
		elem, err := decodeDataType(w.Element)
		if err != nil {
			return nil, err
		}
		return ArrayType{Element: elem}, nil
	case "geojson":
		return GeoJsonType{SRID: w.SRID}, nil
	case "named":
		return NamedType{Name: w.Name}, nil
	case "one_of":
		ot := OneOfType{Values: w.Values}
		if err := ot.Validate(); err != nil {
			return nil, err
		}
		return ot, nil
	case "struct":
		fields := make([]StructField, 0, len(w.Fields))
		for _, f := range w.Fields {
			dt, err := decodeDataType(f.DataType)
			if err != nil {
				return nil, err
			}
			fields = append(fields, StructField{Name: f.Name, DataType: dt, IsNullable: f.IsNullable})
		}
		return StructType{Fields: fields}, nil
	default:
		return nil, fmt.Errorf("unknown data_type tag %q", w.Type)
	}
}
