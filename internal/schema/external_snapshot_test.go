package schema

import (
	"testing"

	"github.com/bradleyjkemp/cupaloy"
	"github.com/stretchr/testify/require"
)

// TestWriteExternalSchemaSnapshot pins the exact dbcrossbar-schema v2 JSON
// WriteExternalSchema emits for a table exercising every DataType variant,
// so a change to the wire format (field order, tag spelling, indentation)
// shows up as a diff against internal/schema/.snapshots instead of only
// failing some other package's round-trip test.
func TestWriteExternalSchemaSnapshot(t *testing.T) {
	sch := Schema{
		Table: Table{
			Name: "widgets",
			Columns: []Column{
				{Name: "id", DataType: Int64},
				{Name: "name", DataType: Text, IsNullable: true},
				{Name: "tags", DataType: ArrayType{Element: Text}, IsNullable: true},
				{Name: "status", DataType: NamedType{Name: "widget_status"}},
				{Name: "location", DataType: GeoJsonType{SRID: 4326}, IsNullable: true},
				{Name: "attributes", DataType: StructType{Fields: []StructField{
					{Name: "color", DataType: Text},
					{Name: "weight_oz", DataType: Float64, IsNullable: true},
				}}, IsNullable: true},
			},
		},
		NamedTypes: map[string]DataType{
			"widget_status": OneOfType{Values: []string{"active", "retired"}},
		},
	}

	encoded, err := WriteExternalSchema(sch)
	require.NoError(t, err)
	cupaloy.SnapshotT(t, string(encoded))
}
