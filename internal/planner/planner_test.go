package planner

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/execctx"
	"github.com/dbcrossbar/dbcrossbar-go/internal/locator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/streamutil"
	"github.com/dbcrossbar/dbcrossbar-go/internal/tempstore"
)

func testSchema() *schema.Schema {
	return &schema.Schema{Table: schema.Table{
		Name: "t",
		Columns: []schema.Column{
			{Name: "id", DataType: schema.Int64},
		},
	}}
}

type fakeLocator struct{ s string }

func (f fakeLocator) String() string         { return f.s }
func (f fakeLocator) Scheme() string         { return "fake:" }
func (f fakeLocator) RedactedString() string { return f.s }

// fakeDriver is a minimal locator.Driver for exercising the planner's
// decision tree without a real backing store.
type fakeDriver struct {
	features caps.Features

	schema *schema.Schema

	supportsRemoteFrom func(locator.Locator) bool
	writeRemoteData    func(ctx context.Context, source locator.Locator) ([]locator.Locator, error)

	localData func() <-chan streamutil.CsvStream

	removed *[]string
}

func (d fakeDriver) Features() caps.Features { return d.features }

func (d fakeDriver) Schema(ctx context.Context, source args.SourceArguments) (*schema.Schema, error) {
	return d.schema, nil
}

func (d fakeDriver) WriteSchema(ctx context.Context, sch schema.Schema, ifExists args.IfExists, dest args.DestinationArguments) error {
	return nil
}

func (d fakeDriver) LocalData(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (<-chan streamutil.CsvStream, error) {
	if d.localData == nil {
		return nil, nil
	}
	return d.localData(), nil
}

func (d fakeDriver) WriteLocalData(ctx context.Context, data <-chan streamutil.CsvStream, shared args.SharedArguments, dest args.DestinationArguments) (<-chan streamutil.Future[locator.Locator], error) {
	out := make(chan streamutil.Future[locator.Locator], 8)
	go func() {
		defer close(out)
		for range data {
			loc := fakeLocator{s: "fake:written"}
			out <- func(ctx context.Context) (locator.Locator, error) { return loc, nil }
		}
	}()
	return out, nil
}

func (d fakeDriver) SupportsWriteRemoteData(source locator.Locator) bool {
	if d.supportsRemoteFrom == nil {
		return false
	}
	return d.supportsRemoteFrom(source)
}

func (d fakeDriver) WriteRemoteData(ctx context.Context, source locator.Locator, shared args.SharedArguments, sourceArgs args.SourceArguments, dest args.DestinationArguments) ([]locator.Locator, error) {
	return d.writeRemoteData(ctx, source)
}

func (d fakeDriver) Count(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (int64, error) {
	return 0, nil
}

func (d fakeDriver) Remove(ctx context.Context, loc locator.Locator) error {
	if d.removed != nil {
		*d.removed = append(*d.removed, loc.String())
	}
	return nil
}

func testExecCtx() execctx.Context {
	log := logrus.New()
	log.SetOutput(io.Discard)
	ec, _ := execctx.Create(log)
	return ec
}

func oneRowStream() <-chan streamutil.CsvStream {
	ch := make(chan streamutil.CsvStream, 1)
	ch <- streamutil.CsvStream{Name: "part-0", Data: streamutil.FromBytes([]byte("id\n1\n"))}
	close(ch)
	return ch
}

func TestPlanShortCircuitsOnWriteRemoteData(t *testing.T) {
	sourceLoc := fakeLocator{s: "fake:source"}
	destLoc := fakeLocator{s: "fake:dest"}

	sourceDriver := fakeDriver{features: caps.With(caps.FeatureSchema), schema: testSchema()}
	destDriver := fakeDriver{
		features:           caps.With(caps.FeatureWriteRemoteData, caps.FeatureIfExistsError),
		supportsRemoteFrom: func(locator.Locator) bool { return true },
		writeRemoteData: func(ctx context.Context, source locator.Locator) ([]locator.Locator, error) {
			return []locator.Locator{destLoc}, nil
		},
	}

	p := New(locator.NewRegistry())
	res, err := p.Plan(context.Background(), testExecCtx(), Request{
		SourceLocator:    sourceLoc,
		SourceDriver:     sourceDriver,
		SourceDriverName: "fake-source",
		DestLocator:      destLoc,
		DestDriver:       destDriver,
		DestDriverName:   "fake-dest",
		DestBaseName:     "t",
		Dest:             args.UnverifiedDestinationArguments{IfExists: args.Default()},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(res.Locators) != 1 || res.Locators[0].String() != "fake:dest" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPlanFallsBackToFullyLocal(t *testing.T) {
	sourceLoc := fakeLocator{s: "fake:source"}
	destLoc := fakeLocator{s: "fake:dest"}

	sourceDriver := fakeDriver{
		features:  caps.With(caps.FeatureSchema, caps.FeatureLocalData),
		schema:    testSchema(),
		localData: oneRowStream,
	}
	destDriver := fakeDriver{
		features: caps.With(caps.FeatureWriteLocalData, caps.FeatureIfExistsError),
	}

	p := New(locator.NewRegistry())
	res, err := p.Plan(context.Background(), testExecCtx(), Request{
		SourceLocator:    sourceLoc,
		SourceDriver:     sourceDriver,
		SourceDriverName: "fake-source",
		DestLocator:      destLoc,
		DestDriver:       destDriver,
		DestDriverName:   "fake-dest",
		DestBaseName:     "t",
		Dest:             args.UnverifiedDestinationArguments{IfExists: args.Default()},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(res.Locators) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPlanStagesThroughTemporaryStorage(t *testing.T) {
	sourceLoc := fakeLocator{s: "fake:source"}

	var removedFromStaging []string

	sourceDriver := fakeDriver{
		features:  caps.With(caps.FeatureSchema, caps.FeatureLocalData),
		schema:    testSchema(),
		localData: oneRowStream,
	}

	reg := locator.NewRegistry()
	reg.Register("gs:", func(tail string) (locator.Locator, locator.Driver, error) {
		stagingLoc := fakeLocator{s: "gs:" + tail}
		stagingDriver := fakeDriver{
			features:  caps.With(caps.FeatureWriteLocalData, caps.FeatureIfExistsOverwrite, caps.FeatureLocalData),
			localData: oneRowStream,
			removed:   &removedFromStaging,
		}
		return stagingLoc, stagingDriver, nil
	})

	var remoteSource locator.Locator
	destDriver := fakeDriver{
		features: caps.With(caps.FeatureWriteRemoteData, caps.FeatureIfExistsError),
		supportsRemoteFrom: func(src locator.Locator) bool {
			return src.Scheme() == "gs:"
		},
		writeRemoteData: func(ctx context.Context, source locator.Locator) ([]locator.Locator, error) {
			remoteSource = source
			return []locator.Locator{fakeLocator{s: "fake:dest"}}, nil
		},
	}

	p := New(reg)
	res, err := p.Plan(context.Background(), testExecCtx(), Request{
		SourceLocator:    sourceLoc,
		SourceDriver:     sourceDriver,
		SourceDriverName: "fake-source",
		DestLocator:      fakeLocator{s: "fake:dest"},
		DestDriver:       destDriver,
		DestDriverName:   "bigquery",
		DestBaseName:     "t",
		Dest:             args.UnverifiedDestinationArguments{IfExists: args.Default()},
		Temporaries:      tempstore.New("gs://staging/"),
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(res.Locators) != 1 || res.Locators[0].String() != "fake:dest" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if remoteSource == nil || remoteSource.Scheme() != "gs:" {
		t.Fatalf("expected destination to write remote data from a gs: staging locator, got %v", remoteSource)
	}
	if len(removedFromStaging) != 1 {
		t.Fatalf("expected staged data to be cleaned up, removed=%v", removedFromStaging)
	}
}

func TestPlanFailsWithoutSchema(t *testing.T) {
	sourceLoc := fakeLocator{s: "fake:source"}
	destLoc := fakeLocator{s: "fake:dest"}

	sourceDriver := fakeDriver{features: caps.Features(0)}
	destDriver := fakeDriver{features: caps.With(caps.FeatureIfExistsError)}

	p := New(locator.NewRegistry())
	_, err := p.Plan(context.Background(), testExecCtx(), Request{
		SourceLocator:    sourceLoc,
		SourceDriver:     sourceDriver,
		SourceDriverName: "fake-source",
		DestLocator:      destLoc,
		DestDriver:       destDriver,
		DestDriverName:   "fake-dest",
		Dest:             args.UnverifiedDestinationArguments{IfExists: args.Default()},
	})
	if err == nil {
		t.Fatal("expected SchemaRequiredError")
	}
	if _, ok := err.(SchemaRequiredError); !ok {
		t.Fatalf("expected SchemaRequiredError, got %T: %v", err, err)
	}
}
