package dbschema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
)

func TestWriteThenReadSchemaRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")

	_, driver, err := Factory(path)
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}

	sch := schema.Schema{Table: schema.Table{
		Name: "widgets",
		Columns: []schema.Column{
			{Name: "id", DataType: schema.Int64},
			{Name: "name", DataType: schema.Text, IsNullable: true},
		},
	}}

	if err := driver.WriteSchema(context.Background(), sch, args.Default(), args.DestinationArguments{}); err != nil {
		t.Fatalf("WriteSchema: %v", err)
	}

	got, err := driver.Schema(context.Background(), args.SourceArguments{})
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if got.Table.Name != "widgets" || len(got.Table.Columns) != 2 {
		t.Fatalf("unexpected schema: %+v", got)
	}
}

func TestSchemaMissingFileReturnsError(t *testing.T) {
	_, driver, err := Factory(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	if _, err := driver.Schema(context.Background(), args.SourceArguments{}); err == nil {
		t.Fatal("expected an error reading a nonexistent file")
	}
}

func TestWriteSchemaRejectsExistingFileByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	_, driver, err := Factory(path)
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}

	sch := schema.Schema{Table: schema.Table{Name: "t", Columns: []schema.Column{{Name: "id", DataType: schema.Int64}}}}
	if err := driver.WriteSchema(context.Background(), sch, args.Default(), args.DestinationArguments{}); err == nil {
		t.Fatal("expected if_exists=error to reject an existing file")
	}
}
