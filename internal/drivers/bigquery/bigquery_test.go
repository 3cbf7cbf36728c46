package bigquery

import (
	"context"
	"testing"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
)

func TestFactoryParsesProjectDatasetTable(t *testing.T) {
	loc, driver, err := Factory("my-project:my_dataset.widgets")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	l := loc.(Locator)
	if l.name.Project != "my-project" || l.name.Dataset != "my_dataset" || l.name.Table != "widgets" {
		t.Fatalf("parsed name = %+v", l.name)
	}
	if l.String() != "bigquery:my-project:my_dataset.widgets" {
		t.Fatalf("String() = %q", l.String())
	}
	if _, ok := driver.(Driver); !ok {
		t.Fatalf("Factory did not return a Driver")
	}
}

func TestFactoryRejectsMalformedTail(t *testing.T) {
	if _, _, err := Factory("my_dataset.widgets"); err == nil {
		t.Fatal("expected an error for a tail with no project")
	}
}

func TestProjectDatasetTableExposesLocatorFields(t *testing.T) {
	loc, _, err := Factory("p:d.t")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	project, dataset, table := loc.(Locator).ProjectDatasetTable()
	if project != "p" || dataset != "d" || table != "t" {
		t.Fatalf("ProjectDatasetTable() = %q, %q, %q", project, dataset, table)
	}
}

func TestFeaturesExcludeIfExistsErrorAndWriteSchema(t *testing.T) {
	_, driver, err := Factory("p:d.t")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	f := driver.(Driver).Features()
	for _, want := range []caps.Feature{
		caps.FeatureSchema, caps.FeatureLocalData, caps.FeatureWriteLocalData, caps.FeatureCount,
		caps.FeatureTemporaryStorage, caps.FeatureIfExistsOverwrite, caps.FeatureIfExistsAppend,
	} {
		if !f.Has(want) {
			t.Fatalf("expected feature %s", want.Name())
		}
	}
	if f.Has(caps.FeatureIfExistsError) {
		t.Fatal("bigquery load jobs cannot express --if-exists=error atomically")
	}
	if f.Has(caps.FeatureWriteSchema) {
		t.Fatal("bigquery has no standalone write_schema step")
	}
}

func TestWriteSchemaIsUnsupported(t *testing.T) {
	_, driver, err := Factory("p:d.t")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	err = driver.(Driver).WriteSchema(context.Background(), schema.Schema{}, args.IfExists{Kind: args.IfExistsError}, args.DestinationArguments{})
	if err == nil {
		t.Fatal("expected write_schema to be unsupported")
	}
}

func TestWriteDispositionMapsIfExistsKinds(t *testing.T) {
	overwrite, err := writeDisposition(args.IfExists{Kind: args.IfExistsOverwrite})
	if err != nil || overwrite != "WRITE_TRUNCATE" {
		t.Fatalf("overwrite disposition = %q, err = %v", overwrite, err)
	}
	appendDisp, err := writeDisposition(args.IfExists{Kind: args.IfExistsAppend})
	if err != nil || appendDisp != "WRITE_APPEND" {
		t.Fatalf("append disposition = %q, err = %v", appendDisp, err)
	}
	if _, err := writeDisposition(args.IfExists{Kind: args.IfExistsError}); err == nil {
		t.Fatal("expected an error for --if-exists=error")
	}
}

func TestTableFieldsConvertsColumnsThroughBqtype(t *testing.T) {
	sch := schema.Schema{Table: schema.Table{Columns: []schema.Column{
		{Name: "id", DataType: schema.Int64},
		{Name: "location", DataType: schema.GeoJsonType{SRID: 4326}},
	}}}
	staged, err := tableFields(sch, true)
	if err != nil {
		t.Fatalf("tableFields: %v", err)
	}
	if staged[1].Type != "STRING" {
		t.Fatalf("staged geography field = %+v", staged[1])
	}
	final, err := tableFields(sch, false)
	if err != nil {
		t.Fatalf("tableFields: %v", err)
	}
	if final[1].Type != "GEOGRAPHY" {
		t.Fatalf("final geography field = %+v", final[1])
	}
}
