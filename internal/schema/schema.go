package schema

import "fmt"

// Column is one column of a Table.
type Column struct {
	Name       string
	DataType   DataType
	IsNullable bool
	Comment    string
}

// Table is a named table: an ordered list of columns with unique names.
type Table struct {
	Name    string
	Columns []Column
}

// ColumnNamed returns the column with the given name, or false if none
// exists.
func (t Table) ColumnNamed(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Validate checks that column names are unique within the table, per
// spec.md §3.
func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("table %q has duplicate column name %q", t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// Schema is a named table plus the mapping from type-name to named
// user-defined types that its columns may reference.
//
// Invariant (spec.md §3): every column's data type either is a primitive, or
// transitively resolves through NamedTypes to one.
type Schema struct {
	Table      Table
	NamedTypes map[string]DataType
}

// Validate checks every schema invariant: unique column names, OneOf
// members, no cyclic or dangling Named references, and non-nested Array
// element types (Array(Array) is rejected at this layer; a driver that
// documents genuine support for nested arrays is expected to bypass
// Validate and do its own check).
func (s Schema) Validate() error {
	if err := s.Table.Validate(); err != nil {
		return err
	}
	for _, c := range s.Table.Columns {
		if err := s.validateDataType(c.DataType, nil); err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
	}
	return nil
}

func (s Schema) validateDataType(dt DataType, visiting map[string]struct{}) error {
	switch v := dt.(type) {
	case OneOfType:
		return v.Validate()
	case ArrayType:
		if v.IsNestedArray() {
			return fmt.Errorf("nested arrays are not supported: %s", v)
		}
		return s.validateDataType(v.Element, visiting)
	case StructType:
		for _, f := range v.Fields {
			if err := s.validateDataType(f.DataType, visiting); err != nil {
				return fmt.Errorf("struct field %q: %w", f.Name, err)
			}
		}
		return nil
	case NamedType:
		return s.walkNamed(v.Name, cloneGraySet(visiting))
	default:
		return nil
	}
}

// walkNamed performs the DFS gray/black cycle check described in spec.md §9:
// a name currently "gray" (on the active path) that is revisited indicates a
// cycle. No "black" set is kept: a name reached again along a different path
// is walked again.
func (s Schema) walkNamed(name string, gray map[string]struct{}) error {
	if _, onPath := gray[name]; onPath {
		return fmt.Errorf("cycle detected in named type %q", name)
	}
	target, ok := s.NamedTypes[name]
	if !ok {
		return fmt.Errorf("named type %q is not defined in this schema", name)
	}
	gray[name] = struct{}{}
	return s.validateDataType(target, gray)
}

func cloneGraySet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m)+1)
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// Resolve follows Named(n) through s.NamedTypes down to a non-Named base
// type.
func (s Schema) Resolve(dt DataType) (DataType, error) {
	return ResolveNamed(dt, s.NamedTypes)
}
