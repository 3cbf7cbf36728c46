// Package bigquery implements the bigquery: locator against Google
// BigQuery, grounded on original_source/dbcrossbarlib/src/drivers/bigquery/
// {local_data,write_local_data,schema,count}.rs and
// bigquery_shared/{table,table_name,mod}.rs. The original shells out to the
// `bq` CLI for every operation (`bq load`, `bq extract`, `bq query`,
// `bq show --schema`); this port uses the native
// google.golang.org/api/bigquery/v2 REST client instead, the same module
// the rest of the pack already depends on for Cloud Storage's
// google.golang.org/api/iterator.
package bigquery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	bq "google.golang.org/api/bigquery/v2"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/bqtype"
	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/gs"
	"github.com/dbcrossbar/dbcrossbar-go/internal/locator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/streamutil"
	"github.com/dbcrossbar/dbcrossbar-go/internal/tempstore"
)

// Scheme is this driver's registered locator scheme.
const Scheme = "bigquery:"

// Locator names a BigQuery table, e.g. "bigquery:my-project:my_dataset.widgets".
type Locator struct {
	name bqtype.TableName
}

func (l Locator) String() string         { return Scheme + l.name.String() }
func (l Locator) Scheme() string         { return Scheme }
func (l Locator) RedactedString() string { return l.String() } // no credentials live in the locator

// ProjectDatasetTable satisfies the unexported bigQuerySource interface
// internal/drivers/gs uses to recognize a BigQuery source for its own
// extract fast path, without importing this package.
func (l Locator) ProjectDatasetTable() (project, dataset, table string) {
	return l.name.Project, l.name.Dataset, l.name.Table
}

// Factory parses a bigquery: locator tail: "project:dataset.table".
func Factory(tail string) (locator.Locator, locator.Driver, error) {
	name, err := bqtype.ParseTableName(tail)
	if err != nil {
		return nil, nil, err
	}
	loc := Locator{name: name}
	return loc, Driver{loc: loc}, nil
}

// Driver implements locator.Driver for Locator.
type Driver struct {
	loc Locator
}

func (d Driver) Features() caps.Features {
	return caps.With(
		caps.FeatureSchema, caps.FeatureLocalData, caps.FeatureWriteLocalData, caps.FeatureCount,
		caps.FeatureWhereClause, caps.FeatureFromArg, caps.FeatureToArg, caps.FeatureTemporaryStorage,
		// BigQuery has no atomic "create if missing" primitive a load job can
		// use safely, so --if-exists=error is not offered, grounded on
		// if_exists_to_bq_load_arg's explicit rejection of IfExists::Error.
		caps.FeatureIfExistsOverwrite, caps.FeatureIfExistsAppend,
	)
}

func (d Driver) service(ctx context.Context) (*bq.Service, error) {
	svc, err := bq.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating BigQuery client: %w", err)
	}
	return svc, nil
}

func (d Driver) Schema(ctx context.Context, source args.SourceArguments) (*schema.Schema, error) {
	svc, err := d.service(ctx)
	if err != nil {
		return nil, err
	}
	table, err := svc.Tables.Get(d.loc.name.Project, d.loc.name.Dataset, d.loc.name.Table).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading schema for %s: %w", d.loc, err)
	}
	if table.Schema == nil {
		return nil, fmt.Errorf("table %s has no schema", d.loc)
	}
	columns := make([]schema.Column, len(table.Schema.Fields))
	for i, f := range table.Schema.Fields {
		col, err := bqtype.FieldToColumn(toBqtypeField(f))
		if err != nil {
			return nil, err
		}
		columns[i] = col
	}
	return &schema.Schema{Table: schema.Table{Name: d.loc.name.Table, Columns: columns}}, nil
}

func toBqtypeField(f *bq.TableFieldSchema) bqtype.Field {
	nested := make([]bqtype.Field, len(f.Fields))
	for i, n := range f.Fields {
		nested[i] = toBqtypeField(n)
	}
	return bqtype.Field{Name: f.Name, Type: f.Type, Mode: f.Mode, Fields: nested}
}

func toBqFields(fields []bqtype.Field) []*bq.TableFieldSchema {
	out := make([]*bq.TableFieldSchema, len(fields))
	for i, f := range fields {
		out[i] = &bq.TableFieldSchema{Name: f.Name, Type: f.Type, Mode: f.Mode, Fields: toBqFields(f.Fields)}
	}
	return out
}

// WriteSchema is unsupported: BigQuery tables are created implicitly by a
// load job (see write), not by a standalone DDL step, grounded on there
// being no write_schema.rs in the retained source for this driver.
func (d Driver) WriteSchema(ctx context.Context, sch schema.Schema, ifExists args.IfExists, dest args.DestinationArguments) error {
	return locator.ErrUnsupported{Driver: "bigquery", Operation: "write_schema"}
}

// stagingLocator resolves a gs: staging directory for this transfer,
// mirroring internal/drivers/redshift's use of internal/tempstore to find
// find_gs_temp_dir's Go equivalent.
func (d Driver) stagingLocator(shared args.SharedArguments) (gs.Locator, gs.Driver, error) {
	base, err := tempstore.New(shared.Temporaries()...).FindScheme(gs.Scheme, "bigquery", "bigquery")
	if err != nil {
		return gs.Locator{}, gs.Driver{}, err
	}
	stagingURL := strings.TrimSuffix(base, "/") + "/" + tempstore.RandomTag(12) + "/"
	loc, drv, err := gs.Factory(strings.TrimPrefix(stagingURL, gs.Scheme))
	if err != nil {
		return gs.Locator{}, gs.Driver{}, fmt.Errorf("building staging location %q: %w", stagingURL, err)
	}
	return loc.(gs.Locator), drv.(gs.Driver), nil
}

// LocalData extracts the table to a temporary gs:// directory, then streams
// the resulting CSV objects back, mirroring local_data.rs's two-hop
// structure (extract to gs://, then read from gs://).
func (d Driver) LocalData(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (<-chan streamutil.CsvStream, error) {
	stageLoc, stageDriver, err := d.stagingLocator(shared)
	if err != nil {
		return nil, err
	}
	if err := d.extract(ctx, stageLoc); err != nil {
		return nil, err
	}
	return stageDriver.LocalData(ctx, shared, args.SourceArguments{})
}

func (d Driver) extract(ctx context.Context, stageLoc gs.Locator) error {
	svc, err := d.service(ctx)
	if err != nil {
		return err
	}
	job := &bq.Job{
		Configuration: &bq.JobConfiguration{
			Extract: &bq.JobConfigurationExtract{
				SourceTable: &bq.TableReference{
					ProjectId: d.loc.name.Project,
					DatasetId: d.loc.name.Dataset,
					TableId:   d.loc.name.Table,
				},
				DestinationUris:   []string{stageLoc.String() + "*.csv"},
				DestinationFormat: "CSV",
				PrintHeader:       true,
			},
		},
	}
	return d.runJob(ctx, svc, job)
}

// WriteLocalData stages the incoming streams to gs:// first, waits for
// every upload, then loads the whole staged prefix with a single load job,
// mirroring write_local_data.rs's "stage everything, then load" structure
// (the same shape internal/drivers/redshift uses for UNLOAD/COPY).
func (d Driver) WriteLocalData(ctx context.Context, data <-chan streamutil.CsvStream, shared args.SharedArguments, dest args.DestinationArguments) (<-chan streamutil.Future[locator.Locator], error) {
	stageLoc, stageDriver, err := d.stagingLocator(shared)
	if err != nil {
		return nil, err
	}

	stagingDest, err := args.UnverifiedDestinationArguments{IfExists: args.IfExists{Kind: args.IfExistsOverwrite}}.
		Verify("gs", stageDriver.Features(), nil)
	if err != nil {
		return nil, err
	}
	stageFutures, err := stageDriver.WriteLocalData(ctx, data, shared, stagingDest)
	if err != nil {
		return nil, err
	}

	out := make(chan streamutil.Future[locator.Locator], 1)
	go func() {
		defer close(out)
		future := streamutil.Future[locator.Locator](func(ctx context.Context) (locator.Locator, error) {
			if _, err := streamutil.ConsumeChanWithParallelism(ctx, shared.MaxStreams(), stageFutures); err != nil {
				return nil, err
			}
			sch := shared.Schema()
			if sch == nil {
				return nil, fmt.Errorf("loading into %s requires a known schema", d.loc)
			}
			if err := d.load(ctx, stageLoc, *sch, dest); err != nil {
				return nil, err
			}
			return d.loc, nil
		})
		select {
		case out <- future:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func writeDisposition(ifExists args.IfExists) (string, error) {
	switch ifExists.Kind {
	case args.IfExistsOverwrite:
		return "WRITE_TRUNCATE", nil
	case args.IfExistsAppend:
		return "WRITE_APPEND", nil
	default:
		return "", fmt.Errorf("BigQuery only supports --if-exists=overwrite or --if-exists=append")
	}
}

// load runs the load job (and, when the schema contains a GEOGRAPHY column,
// the follow-up cast query) that gets staged CSV data into the destination
// table. There is no retained write_schema.rs/write_local_data.rs detail
// for the geography-cast step beyond bigquery_can_import_from_csv/
// write_import_sql's existence; the two-step "load as STRING, then
// CREATE OR REPLACE TABLE ... AS SELECT ST_GEOGFROMTEXT(...)" sequence here
// is this package's best-effort reconstruction of that machinery.
func (d Driver) load(ctx context.Context, stageLoc gs.Locator, sch schema.Schema, dest args.DestinationArguments) error {
	svc, err := d.service(ctx)
	if err != nil {
		return err
	}
	disposition, err := writeDisposition(dest.IfExists())
	if err != nil {
		return err
	}

	if !bqtype.NeedsGeographyCast(sch) {
		fields, err := tableFields(sch, false)
		if err != nil {
			return err
		}
		return d.runLoadJob(ctx, svc, stageLoc, d.loc.name, fields, disposition)
	}

	stagingFields, err := tableFields(sch, true)
	if err != nil {
		return err
	}
	tempName := d.loc.name.TemporaryTableName()
	if err := d.runLoadJob(ctx, svc, stageLoc, tempName, stagingFields, "WRITE_TRUNCATE"); err != nil {
		return err
	}
	defer d.dropTable(ctx, svc, tempName)

	createSQL := fmt.Sprintf("CREATE OR REPLACE TABLE `%s` AS %s", d.loc.name.Dotted(), bqtype.ImportSelectSQL(sch, tempName.Dotted()))
	if disposition == "WRITE_APPEND" {
		createSQL = fmt.Sprintf("INSERT INTO `%s` %s", d.loc.name.Dotted(), bqtype.ImportSelectSQL(sch, tempName.Dotted()))
	}
	return d.runQuery(ctx, svc, createSQL)
}

func tableFields(sch schema.Schema, forCSVImport bool) ([]bqtype.Field, error) {
	fields := make([]bqtype.Field, len(sch.Table.Columns))
	for i, col := range sch.Table.Columns {
		f, err := bqtype.ColumnToField(col, sch, forCSVImport)
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}
	return fields, nil
}

func (d Driver) runLoadJob(ctx context.Context, svc *bq.Service, stageLoc gs.Locator, dest bqtype.TableName, fields []bqtype.Field, disposition string) error {
	job := &bq.Job{
		Configuration: &bq.JobConfiguration{
			Load: &bq.JobConfigurationLoad{
				SourceUris: []string{stageLoc.String() + "*.csv"},
				DestinationTable: &bq.TableReference{
					ProjectId: dest.Project,
					DatasetId: dest.Dataset,
					TableId:   dest.Table,
				},
				Schema:           &bq.TableSchema{Fields: toBqFields(fields)},
				SourceFormat:     "CSV",
				SkipLeadingRows:  1,
				WriteDisposition: disposition,
			},
		},
	}
	return d.runJob(ctx, svc, job)
}

func (d Driver) runQuery(ctx context.Context, svc *bq.Service, sql string) error {
	job := &bq.Job{
		Configuration: &bq.JobConfiguration{
			Query: &bq.JobConfigurationQuery{
				Query:        sql,
				UseLegacySql: false,
			},
		},
	}
	return d.runJob(ctx, svc, job)
}

func (d Driver) dropTable(ctx context.Context, svc *bq.Service, name bqtype.TableName) {
	_ = svc.Tables.Delete(name.Project, name.Dataset, name.Table).Context(ctx).Do()
}

// runJob submits job and polls until it reaches the "DONE" state, grounded
// on how every retained BigQuery helper (load/extract/count) waits for its
// underlying `bq` subprocess to exit before reporting success.
func (d Driver) runJob(ctx context.Context, svc *bq.Service, job *bq.Job) error {
	inserted, err := svc.Jobs.Insert(d.loc.name.Project, job).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("starting BigQuery job: %w", err)
	}
	for {
		got, err := svc.Jobs.Get(d.loc.name.Project, inserted.JobReference.JobId).Location(inserted.JobReference.Location).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("polling BigQuery job %s: %w", inserted.JobReference.JobId, err)
		}
		if got.Status.State == "DONE" {
			if got.Status.ErrorResult != nil {
				return fmt.Errorf("BigQuery job %s failed: %s", inserted.JobReference.JobId, got.Status.ErrorResult.Message)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// SupportsWriteRemoteData reports whether source can be loaded straight
// from an existing gs:// prefix without first copying it locally, grounded
// on gs/write_local_data.rs's is_directory/write_remote_data branch (true
// only when the source is a gs: locator).
func (d Driver) SupportsWriteRemoteData(source locator.Locator) bool {
	return source.Scheme() == gs.Scheme
}

func (d Driver) WriteRemoteData(ctx context.Context, source locator.Locator, shared args.SharedArguments, sourceArgs args.SourceArguments, dest args.DestinationArguments) ([]locator.Locator, error) {
	srcLoc, ok := source.(gs.Locator)
	if !ok {
		return nil, locator.ErrUnsupported{Driver: "bigquery", Operation: "write_remote_data"}
	}
	sch := shared.Schema()
	if sch == nil {
		return nil, fmt.Errorf("loading into %s requires a known schema", d.loc)
	}
	if err := d.load(ctx, srcLoc, *sch, dest); err != nil {
		return nil, err
	}
	return []locator.Locator{d.loc}, nil
}

func (d Driver) Count(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (int64, error) {
	svc, err := d.service(ctx)
	if err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) FROM `" + d.loc.name.Dotted() + "`"
	if source.Where() != "" {
		query += " WHERE " + source.Where()
	}
	resp, err := svc.Jobs.Query(d.loc.name.Project, &bq.QueryRequest{Query: query, UseLegacySql: false}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", d.loc, err)
	}
	if len(resp.Rows) != 1 || len(resp.Rows[0].F) != 1 {
		return 0, fmt.Errorf("unexpected count result shape for %s", d.loc)
	}
	n, err := strconv.ParseInt(fmt.Sprint(resp.Rows[0].F[0].V), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing count result for %s: %w", d.loc, err)
	}
	return n, nil
}
