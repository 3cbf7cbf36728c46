package bqtype

import (
	"testing"

	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
)

func TestParseTableNameSplitsProjectDatasetTable(t *testing.T) {
	n, err := ParseTableName("my-project:my_dataset.my_table")
	if err != nil {
		t.Fatalf("ParseTableName: %v", err)
	}
	if n.Project != "my-project" || n.Dataset != "my_dataset" || n.Table != "my_table" {
		t.Fatalf("parsed = %+v", n)
	}
	if n.String() != "my-project:my_dataset.my_table" {
		t.Fatalf("String() = %q", n.String())
	}
	if n.Dotted() != "my-project.my_dataset.my_table" {
		t.Fatalf("Dotted() = %q", n.Dotted())
	}
}

func TestParseTableNameRejectsMissingColon(t *testing.T) {
	if _, err := ParseTableName("my_dataset.my_table"); err == nil {
		t.Fatal("expected an error for a table name with no project")
	}
}

func TestTemporaryTableNameKeepsProjectAndDataset(t *testing.T) {
	n := TableName{Project: "p", Dataset: "d", Table: "widgets"}
	tmp := n.TemporaryTableName()
	if tmp.Project != "p" || tmp.Dataset != "d" {
		t.Fatalf("temp name changed project/dataset: %+v", tmp)
	}
	if tmp.Table == n.Table {
		t.Fatal("expected a distinct temporary table name")
	}
}

func TestColumnToFieldMapsScalarTypes(t *testing.T) {
	sch := schema.Schema{}
	f, err := ColumnToField(schema.Column{Name: "id", DataType: schema.Int64}, sch, false)
	if err != nil {
		t.Fatalf("ColumnToField: %v", err)
	}
	if f.Type != "INTEGER" || f.Mode != "REQUIRED" {
		t.Fatalf("field = %+v", f)
	}
}

func TestColumnToFieldMarksArraysRepeated(t *testing.T) {
	sch := schema.Schema{}
	f, err := ColumnToField(schema.Column{Name: "tags", DataType: schema.ArrayType{Element: schema.Text}, IsNullable: true}, sch, false)
	if err != nil {
		t.Fatalf("ColumnToField: %v", err)
	}
	if f.Type != "STRING" || f.Mode != "REPEATED" {
		t.Fatalf("field = %+v", f)
	}
}

func TestColumnToFieldStagesGeographyAsStringForCSVImport(t *testing.T) {
	sch := schema.Schema{}
	col := schema.Column{Name: "location", DataType: schema.GeoJsonType{SRID: 4326}}
	staged, err := ColumnToField(col, sch, true)
	if err != nil {
		t.Fatalf("ColumnToField: %v", err)
	}
	if staged.Type != "STRING" {
		t.Fatalf("staged field = %+v", staged)
	}
	final, err := ColumnToField(col, sch, false)
	if err != nil {
		t.Fatalf("ColumnToField: %v", err)
	}
	if final.Type != "GEOGRAPHY" {
		t.Fatalf("final field = %+v", final)
	}
}

func TestFieldToColumnRoundTripsStruct(t *testing.T) {
	f := Field{
		Name: "address",
		Type: "RECORD",
		Mode: "NULLABLE",
		Fields: []Field{
			{Name: "city", Type: "STRING", Mode: "REQUIRED"},
		},
	}
	col, err := FieldToColumn(f)
	if err != nil {
		t.Fatalf("FieldToColumn: %v", err)
	}
	st, ok := col.DataType.(schema.StructType)
	if !ok {
		t.Fatalf("expected StructType, got %T", col.DataType)
	}
	if len(st.Fields) != 1 || st.Fields[0].Name != "city" {
		t.Fatalf("fields = %+v", st.Fields)
	}
}

func TestNeedsGeographyCastDetectsTopLevelColumn(t *testing.T) {
	sch := schema.Schema{Table: schema.Table{Columns: []schema.Column{
		{Name: "id", DataType: schema.Int64},
		{Name: "location", DataType: schema.GeoJsonType{SRID: 4326}},
	}}}
	if !NeedsGeographyCast(sch) {
		t.Fatal("expected a geography cast to be needed")
	}
}

func TestNeedsGeographyCastFalseWithoutGeography(t *testing.T) {
	sch := schema.Schema{Table: schema.Table{Columns: []schema.Column{
		{Name: "id", DataType: schema.Int64},
	}}}
	if NeedsGeographyCast(sch) {
		t.Fatal("expected no geography cast to be needed")
	}
}

func TestImportSelectSQLCastsGeographyColumns(t *testing.T) {
	sch := schema.Schema{Table: schema.Table{Columns: []schema.Column{
		{Name: "id", DataType: schema.Int64},
		{Name: "location", DataType: schema.GeoJsonType{SRID: 4326}},
	}}}
	sql := ImportSelectSQL(sch, "proj.dataset.temp_t")
	want := "SELECT `id`, ST_GEOGFROMTEXT(`location`) AS `location` FROM `proj.dataset.temp_t`"
	if sql != want {
		t.Fatalf("ImportSelectSQL = %q, want %q", sql, want)
	}
}
