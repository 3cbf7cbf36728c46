package gs

import (
	"context"
	"testing"

	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
)

func TestFactoryParsesBucketAndPrefix(t *testing.T) {
	loc, driver, err := Factory("//my-bucket/path/to/data/")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	if d.loc.bucket != "my-bucket" || d.loc.prefix != "path/to/data/" {
		t.Fatalf("loc = %+v", d.loc)
	}
	if loc.String() != "gs://my-bucket/path/to/data/" {
		t.Fatalf("String() = %q", loc.String())
	}
}

func TestFactoryRequiresBucket(t *testing.T) {
	if _, _, err := Factory("//"); err == nil {
		t.Fatal("expected an error when no bucket is named")
	}
}

func TestFactoryRejectsPrefixWithoutTrailingSlash(t *testing.T) {
	if _, _, err := Factory("//my-bucket/data"); err == nil {
		t.Fatal("expected an error for a prefix not ending in '/'")
	}
}

func TestObjectJoinsPrefixAndName(t *testing.T) {
	_, driver, err := Factory("//my-bucket/data/")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	if got := d.loc.object("widgets.csv"); got != "data/widgets.csv" {
		t.Fatalf("object = %q", got)
	}
}

func TestFeaturesDeclareLocalDataOnly(t *testing.T) {
	_, driver, err := Factory("//my-bucket/data/")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	f := d.Features()
	if !f.Has(caps.FeatureLocalData) || !f.Has(caps.FeatureWriteLocalData) {
		t.Fatal("expected local_data and write_local_data")
	}
	if f.Has(caps.FeatureCount) || f.Has(caps.FeatureSchema) {
		t.Fatal("gs has no schema or count support")
	}
}

func TestRemoveRejectsForeignLocatorType(t *testing.T) {
	_, driver, err := Factory("//my-bucket/data/")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	if err := d.Remove(context.Background(), fakeLocator{}); err == nil {
		t.Fatal("expected an error removing a non-gs locator")
	}
}

type fakeLocator struct{}

func (fakeLocator) String() string         { return "fake:x" }
func (fakeLocator) Scheme() string         { return "fake:" }
func (fakeLocator) RedactedString() string { return "fake:x" }

func TestSupportsWriteRemoteDataOnlyForBigQuerySources(t *testing.T) {
	_, driver, err := Factory("//my-bucket/data/")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	if d.SupportsWriteRemoteData(fakeLocator{}) {
		t.Fatal("expected no remote-data support for a non-bigquery source")
	}
	if !d.SupportsWriteRemoteData(fakeBigQueryLocator{}) {
		t.Fatal("expected remote-data support for a bigquery source")
	}
}

type fakeBigQueryLocator struct{}

func (fakeBigQueryLocator) String() string         { return "bigquery:p:d.t" }
func (fakeBigQueryLocator) Scheme() string         { return "bigquery:" }
func (fakeBigQueryLocator) RedactedString() string { return "bigquery:p:d.t" }
func (fakeBigQueryLocator) ProjectDatasetTable() (project, dataset, table string) {
	return "p", "d", "t"
}
