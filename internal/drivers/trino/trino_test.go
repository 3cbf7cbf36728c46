package trino

import (
	"strings"
	"testing"

	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
)

func TestFactoryParsesCatalogSchemaTable(t *testing.T) {
	_, driver, err := Factory("//user:secret@trino.example.com:8080/hive/public/widgets")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	if got := d.loc.name.String(); got != `"hive"."public"."widgets"` {
		t.Fatalf("name.String() = %q", got)
	}
}

func TestFactoryRejectsMissingSchemaOrTable(t *testing.T) {
	if _, _, err := Factory("//trino.example.com:8080/hive/public"); err == nil {
		t.Fatal("expected an error when schema/table is missing")
	}
}

func TestRedactedStringHidesPassword(t *testing.T) {
	loc, _, err := Factory("//user:secret@trino.example.com:8080/hive/public/widgets")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	redacted := loc.RedactedString()
	if strings.Contains(redacted, "secret") {
		t.Fatalf("password leaked in %q", redacted)
	}
}

func TestFactoryBuildsHTTPDSNByDefault(t *testing.T) {
	_, driver, err := Factory("//trino.example.com:8080/hive/public/widgets")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	if !strings.HasPrefix(d.loc.dsn, "http://trino.example.com:8080") {
		t.Fatalf("dsn = %q", d.loc.dsn)
	}
	if !strings.Contains(d.loc.dsn, "catalog=hive") || !strings.Contains(d.loc.dsn, "schema=public") {
		t.Fatalf("dsn missing catalog/schema: %q", d.loc.dsn)
	}
}

func TestFactoryHonorsSSLQueryParam(t *testing.T) {
	_, driver, err := Factory("//trino.example.com:8080/hive/public/widgets?ssl=true")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	if !strings.HasPrefix(d.loc.dsn, "https://") {
		t.Fatalf("dsn = %q, expected https scheme", d.loc.dsn)
	}
}

func TestFeaturesDeclareSchemaAndStagingSupport(t *testing.T) {
	_, driver, err := Factory("//trino.example.com:8080/hive/public/widgets")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	f := d.Features()
	for _, want := range []caps.Feature{
		caps.FeatureSchema, caps.FeatureWriteSchema,
		caps.FeatureLocalData, caps.FeatureWriteLocalData,
		caps.FeatureCount, caps.FeatureTemporaryStorage,
	} {
		if !f.Has(want) {
			t.Fatalf("expected feature %s to be declared", want.Name())
		}
	}
	if f.Has(caps.FeatureIfExistsAppend) {
		t.Fatal("append is not among the retained write_schema/write_remote_data behaviors")
	}
}

func TestBaseTypeLiteralStripsPrecision(t *testing.T) {
	cases := map[string]string{
		"decimal(38,9)": "decimal",
		"varchar(255)":  "varchar",
		"bigint":        "bigint",
	}
	for in, want := range cases {
		if got := baseTypeLiteral(in); got != want {
			t.Fatalf("baseTypeLiteral(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSupportsWriteRemoteDataOnlyForS3Sources(t *testing.T) {
	_, driver, err := Factory("//trino.example.com:8080/hive/public/widgets")
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	d := driver.(Driver)
	if d.SupportsWriteRemoteData(fakeLocator{}) {
		t.Fatal("expected no remote-data support for a non-s3 source")
	}
}

type fakeLocator struct{}

func (fakeLocator) String() string         { return "fake:x" }
func (fakeLocator) Scheme() string         { return "fake:" }
func (fakeLocator) RedactedString() string { return "fake:x" }
