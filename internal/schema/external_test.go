package schema

import "testing"

func TestExternalSchemaV2RoundTrip(t *testing.T) {
	original := Schema{
		Table: Table{
			Name: "posts",
			Columns: []Column{
				{Name: "id", DataType: Int32},
				{Name: "tags", DataType: ArrayType{Element: Text}, IsNullable: true},
				{Name: "status", DataType: NamedType{Name: "post_status"}},
				{Name: "location", DataType: GeoJsonType{SRID: 4326}, IsNullable: true},
			},
		},
		NamedTypes: map[string]DataType{
			"post_status": OneOfType{Values: []string{"draft", "published"}},
		},
	}

	encoded, err := WriteExternalSchema(original)
	if err != nil {
		t.Fatalf("WriteExternalSchema: %v", err)
	}

	decoded, err := ParseExternalSchema(encoded)
	if err != nil {
		t.Fatalf("ParseExternalSchema: %v", err)
	}

	if decoded.Table.Name != original.Table.Name {
		t.Fatalf("table name mismatch: %q != %q", decoded.Table.Name, original.Table.Name)
	}
	if len(decoded.Table.Columns) != len(original.Table.Columns) {
		t.Fatalf("column count mismatch: %d != %d", len(decoded.Table.Columns), len(original.Table.Columns))
	}
	for i, c := range original.Table.Columns {
		got := decoded.Table.Columns[i]
		if got.Name != c.Name || got.IsNullable != c.IsNullable {
			t.Errorf("column %d mismatch: %+v != %+v", i, got, c)
		}
		if got.DataType.String() != c.DataType.String() {
			t.Errorf("column %d data type mismatch: %v != %v", i, got.DataType, c.DataType)
		}
	}
}

func TestParseExternalSchemaAcceptsBareTableV1(t *testing.T) {
	const v1 = `{"name": "t", "columns": [{"name": "id", "data_type": {"type": "int32"}, "is_nullable": false}]}`
	s, err := ParseExternalSchema([]byte(v1))
	if err != nil {
		t.Fatalf("ParseExternalSchema(v1): %v", err)
	}
	if s.Table.Name != "t" || len(s.Table.Columns) != 1 {
		t.Fatalf("unexpected parse of v1 schema: %+v", s)
	}
}

func TestParseExternalSchemaRejectsMultipleTablesV2(t *testing.T) {
	const v2 = `{"tables": [
		{"name": "a", "columns": []},
		{"name": "b", "columns": []}
	]}`
	if _, err := ParseExternalSchema([]byte(v2)); err == nil {
		t.Fatal("expected multi-table v2 document to be rejected")
	}
}
