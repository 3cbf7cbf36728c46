package pgsql

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
)

func writeAndReadBack(t *testing.T, sch schema.Schema) *schema.Schema {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.sql")

	_, driver, err := Factory(path)
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)

	if err := d.WriteSchema(context.Background(), sch, args.IfExists{Kind: args.IfExistsError}, args.DestinationArguments{}); err != nil {
		t.Fatalf("WriteSchema: %v", err)
	}

	got, err := d.Schema(context.Background(), args.SourceArguments{})
	if err != nil {
		contents, _ := os.ReadFile(path)
		t.Fatalf("Schema: %v\nDDL was:\n%s", err, contents)
	}
	return got
}

func TestRoundTripsSimpleTable(t *testing.T) {
	sch := schema.Schema{Table: schema.Table{
		Name: "public.widgets",
		Columns: []schema.Column{
			{Name: "id", DataType: schema.Int64},
			{Name: "name", DataType: schema.Text, IsNullable: true},
			{Name: "tags", DataType: schema.ArrayType{Element: schema.Text}, IsNullable: true},
		},
	}}

	got := writeAndReadBack(t, sch)

	if got.Table.Name != "public.widgets" {
		t.Fatalf("table name = %q", got.Table.Name)
	}
	id, ok := got.Table.ColumnNamed("id")
	if !ok || id.DataType != schema.Int64 || id.IsNullable {
		t.Fatalf("id column = %+v", id)
	}
	name, ok := got.Table.ColumnNamed("name")
	if !ok || name.DataType != schema.Text || !name.IsNullable {
		t.Fatalf("name column = %+v", name)
	}
	tags, ok := got.Table.ColumnNamed("tags")
	if !ok {
		t.Fatal("tags column missing")
	}
	arr, ok := tags.DataType.(schema.ArrayType)
	if !ok || arr.Element != schema.Text {
		t.Fatalf("tags column = %+v", tags)
	}
}

func TestRoundTripsEnumColumn(t *testing.T) {
	sch := schema.Schema{
		Table: schema.Table{
			Name: "widgets",
			Columns: []schema.Column{
				{Name: "status", DataType: schema.NamedType{Name: "widget_status"}},
			},
		},
		NamedTypes: map[string]schema.DataType{
			"widget_status": schema.OneOfType{Values: []string{"active", "retired"}},
		},
	}

	got := writeAndReadBack(t, sch)

	status, ok := got.Table.ColumnNamed("status")
	if !ok {
		t.Fatal("status column missing")
	}
	named, ok := status.DataType.(schema.NamedType)
	if !ok || named.Name != "widget_status" {
		t.Fatalf("status column = %+v", status)
	}
	resolved, err := got.Resolve(named)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	oneOf, ok := resolved.(schema.OneOfType)
	if !ok || len(oneOf.Values) != 2 || oneOf.Values[0] != "active" || oneOf.Values[1] != "retired" {
		t.Fatalf("resolved enum = %+v", resolved)
	}
}

func TestRoundTripsGeoJsonColumn(t *testing.T) {
	sch := schema.Schema{Table: schema.Table{
		Name: "places",
		Columns: []schema.Column{
			{Name: "location", DataType: schema.GeoJsonType{SRID: 4326}},
		},
	}}

	got := writeAndReadBack(t, sch)

	loc, ok := got.Table.ColumnNamed("location")
	if !ok {
		t.Fatal("location column missing")
	}
	geo, ok := loc.DataType.(schema.GeoJsonType)
	if !ok || geo.SRID != 4326 {
		t.Fatalf("location column = %+v", loc)
	}
}

func TestWriteSchemaObeysIfExistsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.sql")
	if err := os.WriteFile(path, []byte("-- already here\n"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	_, driver, err := Factory(path)
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	sch := schema.Schema{Table: schema.Table{Name: "t", Columns: []schema.Column{{Name: "id", DataType: schema.Int64}}}}

	if err := d.WriteSchema(context.Background(), sch, args.IfExists{Kind: args.IfExistsError}, args.DestinationArguments{}); err == nil {
		t.Fatal("expected an error when the file already exists and if_exists=error")
	}
}

func TestFeaturesAreSchemaOnly(t *testing.T) {
	_, driver, err := Factory("schema.sql")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	if !d.Features().Has(caps.FeatureSchema) {
		t.Fatal("expected FeatureSchema")
	}
}

func TestCountIsUnsupported(t *testing.T) {
	_, driver, err := Factory("schema.sql")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	if _, err := d.Count(context.Background(), args.SharedArguments{}, args.SourceArguments{}); err == nil {
		t.Fatal("expected Count to be unsupported")
	} else if !strings.Contains(err.Error(), "postgres-sql") {
		t.Fatalf("unexpected error: %v", err)
	}
}
