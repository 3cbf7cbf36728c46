// Package trino implements the trino: locator against a live Trino (née
// PrestoSQL) cluster, grounded on
// original_source/dbcrossbar/src/drivers/trino/{count,schema,
// write_local_data,write_remote_data,write_schema}.rs and
// trino_shared/mod.rs. The original uses the `prusto` Rust client; this port
// uses github.com/trinodb/trino-go-client's database/sql driver instead, the
// native Go client for the same wire protocol.
package trino

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/trinodb/trino-go-client/trino"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/csvconv"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/s3"
	"github.com/dbcrossbar/dbcrossbar-go/internal/locator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/streamutil"
	"github.com/dbcrossbar/dbcrossbar-go/internal/tempstore"
	"github.com/dbcrossbar/dbcrossbar-go/internal/trinotype"
	"github.com/dbcrossbar/dbcrossbar-go/internal/urlredact"
)

// Scheme is this driver's registered locator scheme.
const Scheme = "trino:"

// Locator names a catalog-qualified table on a Trino cluster:
// "trino://user:pw@host:port/catalog/schema/table".
type Locator struct {
	rawURL string
	dsn    string
	name   trinotype.TableName
}

func (l Locator) String() string         { return Scheme + l.rawURL }
func (l Locator) Scheme() string         { return Scheme }
func (l Locator) RedactedString() string { return Scheme + urlredact.String(l.rawURL) }

// Factory parses a trino: locator tail:
// "//user:pw@host:port/catalog/schema/table".
func Factory(tail string) (locator.Locator, locator.Driver, error) {
	u, err := url.Parse(tail)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing trino locator %q: %w", tail, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, nil, fmt.Errorf("trino locator %q must name catalog/schema/table", tail)
	}
	name, err := trinotype.NewCatalogTableName(parts[0], parts[1], parts[2])
	if err != nil {
		return nil, nil, err
	}

	scheme := "http"
	if u.Query().Get("ssl") == "true" {
		scheme = "https"
	}
	dsnURL := url.URL{Scheme: scheme, Host: u.Host, User: u.User, Path: "/"}
	dsn := fmt.Sprintf("%s?catalog=%s&schema=%s", dsnURL.String(), url.QueryEscape(parts[0]), url.QueryEscape(parts[1]))

	loc := Locator{rawURL: tail, dsn: dsn, name: name}
	return loc, Driver{loc: loc}, nil
}

// Driver implements locator.Driver for Locator.
type Driver struct {
	loc Locator
}

func (d Driver) Features() caps.Features {
	return caps.With(
		caps.FeatureSchema, caps.FeatureWriteSchema,
		caps.FeatureLocalData, caps.FeatureWriteLocalData, caps.FeatureCount,
		caps.FeatureWhereClause, caps.FeatureFromArg, caps.FeatureToArg, caps.FeatureTemporaryStorage,
		caps.FeatureIfExistsError, caps.FeatureIfExistsOverwrite,
	)
}

func (d Driver) open() (*sql.DB, error) {
	db, err := sql.Open("trino", d.loc.dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", d.loc.RedactedString(), err)
	}
	return db, nil
}

// connectorType queries Trino's system catalog for the connector backing
// this locator's catalog, used by write_schema/write_remote_data to decide
// whether "NOT NULL" needs to be downgraded, grounded on
// TrinoLocator::connector_type's existence (trino_shared/mod.rs); the exact
// query is not retained, so this is reconstructed against Trino's
// documented system.metadata.catalogs table.
func (d Driver) connectorType(ctx context.Context, db *sql.DB) (string, error) {
	var connector string
	err := db.QueryRowContext(ctx,
		"SELECT connector_name FROM system.metadata.catalogs WHERE catalog_name = ?",
		d.loc.name.Catalog.Unquoted(),
	).Scan(&connector)
	if err != nil {
		return "", fmt.Errorf("looking up connector type for catalog %q: %w", d.loc.name.Catalog.Unquoted(), err)
	}
	return connector, nil
}

func (d Driver) Schema(ctx context.Context, source args.SourceArguments) (*schema.Schema, error) {
	db, err := d.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_catalog = ? AND table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`,
		d.loc.name.Catalog.Unquoted(), d.loc.name.Schema.Unquoted(), d.loc.name.Table.Unquoted())
	if err != nil {
		return nil, fmt.Errorf("reading catalog for %s: %w", d.loc.RedactedString(), err)
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var name, dataType string
		var nullable bool
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		dt, err := trinotype.ParseScalar(baseTypeLiteral(dataType))
		if err != nil {
			return nil, err
		}
		columns = append(columns, schema.Column{Name: name, DataType: dt, IsNullable: nullable})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found (or has no columns)", d.loc.name)
	}
	return &schema.Schema{Table: schema.Table{Name: d.loc.name.Table.Unquoted(), Columns: columns}}, nil
}

// baseTypeLiteral strips a parenthesized precision/scale/length suffix
// (e.g. "decimal(38,9)" -> "decimal", "varchar(255)" -> "varchar") before
// the bare-literal lookup in trinotype.ParseScalar.
func baseTypeLiteral(literal string) string {
	if i := strings.IndexByte(literal, '('); i >= 0 {
		return literal[:i]
	}
	return literal
}

func (d Driver) WriteSchema(ctx context.Context, sch schema.Schema, ifExists args.IfExists, dest args.DestinationArguments) error {
	db, err := d.open()
	if err != nil {
		return err
	}
	defer db.Close()

	connectorType, err := d.connectorType(ctx, db)
	if err != nil {
		return err
	}

	ddlSchema := sch
	ddlSchema.Table.Name = d.loc.name.Unquoted()
	createStmt, err := trinotype.Generator.CreateTableStatement(ddlSchema, ifExists.Kind != args.IfExistsError)
	if err != nil {
		return fmt.Errorf("generating CREATE TABLE for %s: %w", d.loc.RedactedString(), err)
	}
	createStmt = trinotype.DowngradeForConnectorType(createStmt, connectorType)

	if ifExists.Kind == args.IfExistsOverwrite {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+d.loc.name.String()); err != nil {
			return fmt.Errorf("dropping existing table %s: %w", d.loc.RedactedString(), err)
		}
	}
	if _, err := db.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("creating table %s: %w", d.loc.RedactedString(), err)
	}
	return nil
}

func (d Driver) LocalData(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (<-chan streamutil.CsvStream, error) {
	db, err := d.open()
	if err != nil {
		return nil, err
	}
	sch, err := d.Schema(ctx, source)
	if err != nil {
		db.Close()
		return nil, err
	}

	query := "SELECT " + quotedColumnList(sch.Table.Columns) + " FROM " + d.loc.name.String()
	if source.Where() != "" {
		query += " WHERE " + source.Where()
	}

	w, stream := streamutil.NewBytePipe()
	go func() {
		defer db.Close()
		if err := d.streamRows(ctx, db, query, *sch, w); err != nil {
			w.CloseWithError(err)
			return
		}
		w.Close()
	}()

	out := make(chan streamutil.CsvStream, 1)
	out <- streamutil.CsvStream{Name: d.loc.name.Table.Unquoted(), Data: stream}
	close(out)
	return out, nil
}

func (d Driver) streamRows(ctx context.Context, db *sql.DB, query string, sch schema.Schema, w *streamutil.PipeWriter) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("querying %s: %w", d.loc.RedactedString(), err)
	}
	defer rows.Close()

	header := make([]csvconv.Field, len(sch.Table.Columns))
	for i, col := range sch.Table.Columns {
		header[i] = csvconv.Field{Text: col.Name, Quoted: false}
	}
	if _, err := w.Write([]byte(csvconv.EncodeRow(header) + "\n")); err != nil {
		return err
	}

	scanDest := make([]interface{}, len(sch.Table.Columns))
	scanVals := make([]interface{}, len(sch.Table.Columns))
	for i := range scanDest {
		scanDest[i] = &scanVals[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		fields := make([]csvconv.Field, len(sch.Table.Columns))
		for i, col := range sch.Table.Columns {
			if scanVals[i] == nil {
				fields[i] = csvconv.Null
				continue
			}
			field, err := csvconv.EncodeValue(col.DataType, scanVals[i])
			if err != nil {
				return fmt.Errorf("encoding column %q: %w", col.Name, err)
			}
			fields[i] = field
		}
		if _, err := w.Write([]byte(csvconv.EncodeRow(fields) + "\n")); err != nil {
			return err
		}
	}
	return rows.Err()
}

func quotedColumnList(columns []schema.Column) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = trinotype.MustIdent(c.Name).String()
	}
	return strings.Join(out, ", ")
}

// stagingLocator resolves an s3: staging directory, grounded on
// write_local_data.rs's find_s3_temp_dir (Trino writes always stage
// through S3, the same way internal/drivers/redshift does).
func (d Driver) stagingLocator(shared args.SharedArguments) (s3.Locator, s3.Driver, error) {
	base, err := tempstore.New(shared.Temporaries()...).FindScheme(s3.Scheme, "trino", "trino")
	if err != nil {
		return s3.Locator{}, s3.Driver{}, err
	}
	stagingURL := strings.TrimSuffix(base, "/") + "/" + tempstore.RandomTag(12) + "/"
	loc, drv, err := s3.Factory(strings.TrimPrefix(stagingURL, s3.Scheme))
	if err != nil {
		return s3.Locator{}, s3.Driver{}, fmt.Errorf("building staging location %q: %w", stagingURL, err)
	}
	return loc.(s3.Locator), drv.(s3.Driver), nil
}

// WriteLocalData stages the incoming streams to S3 first, waits for every
// upload, then loads the whole staged prefix via write_remote_data's
// wrapper-table dance, mirroring write_local_data.rs's
// "stage, consume_with_parallelism, then write_remote_data, then rmdir"
// structure. This duplicates the stage-then-load shape
// internal/drivers/redshift/internal/drivers/bigquery already use, which
// the original's own comment on this function acknowledges ("duplicates a
// fair bit of code with the Redshift-via-S3 uploader").
func (d Driver) WriteLocalData(ctx context.Context, data <-chan streamutil.CsvStream, shared args.SharedArguments, dest args.DestinationArguments) (<-chan streamutil.Future[locator.Locator], error) {
	stageLoc, stageDriver, err := d.stagingLocator(shared)
	if err != nil {
		return nil, err
	}

	stagingDest, err := args.UnverifiedDestinationArguments{IfExists: args.IfExists{Kind: args.IfExistsOverwrite}}.
		Verify("s3", stageDriver.Features(), nil)
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
			sourceArgs, err := args.UnverifiedSourceArguments{}.Verify("s3", stageDriver.Features())
			if err != nil {
				return nil, err
			}
			if _, err := d.WriteRemoteData(ctx, stageLoc, shared, sourceArgs, dest); err != nil {
				return nil, err
			}
			if remover, ok := stageDriver.(locator.Remover); ok {
				_ = remover.Remove(ctx, stageLoc)
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

func (d Driver) SupportsWriteRemoteData(source locator.Locator) bool {
	_, ok := source.(s3.Locator)
	return ok
}

// WriteRemoteData implements the wrapper-table dance: create an external
// Hive table over the staged CSV directory, create the real destination
// table, INSERT INTO ... SELECT with casts from the wrapper, then drop the
// wrapper, grounded on write_remote_data.rs.
func (d Driver) WriteRemoteData(ctx context.Context, source locator.Locator, shared args.SharedArguments, sourceArgs args.SourceArguments, dest args.DestinationArguments) ([]locator.Locator, error) {
	srcLoc, ok := source.(s3.Locator)
	if !ok {
		return nil, locator.ErrUnsupported{Driver: "trino", Operation: "write_remote_data"}
	}
	sch := shared.Schema()
	if sch == nil {
		return nil, fmt.Errorf("loading into %s requires a known schema", d.loc)
	}

	db, err := d.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	connectorType, err := d.connectorType(ctx, db)
	if err != nil {
		return nil, err
	}

	wrapperName, err := trinotype.NewCatalogTableName(d.loc.name.Catalog.Unquoted(), d.loc.name.Schema.Unquoted(), "dbcrossbar_wrapper_"+tempstore.RandomTag(8))
	if err != nil {
		return nil, err
	}
	wrapperSQL := trinotype.HiveCSVWrapperTable(wrapperName, sch.Table.Columns, srcLoc.String())
	if _, err := db.ExecContext(ctx, wrapperSQL); err != nil {
		return nil, fmt.Errorf("creating S3 wrapper table: %w", err)
	}
	defer db.ExecContext(ctx, "DROP TABLE IF EXISTS "+wrapperName.String())

	ddlSchema := *sch
	ddlSchema.Table.Name = d.loc.name.Unquoted()
	createStmt, err := trinotype.Generator.CreateTableStatement(ddlSchema, dest.IfExists().Kind != args.IfExistsError)
	if err != nil {
		return nil, fmt.Errorf("generating CREATE TABLE for %s: %w", d.loc.RedactedString(), err)
	}
	createStmt = trinotype.DowngradeForConnectorType(createStmt, connectorType)
	if dest.IfExists().Kind == args.IfExistsOverwrite {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+d.loc.name.String()); err != nil {
			return nil, fmt.Errorf("dropping existing table %s: %w", d.loc.RedactedString(), err)
		}
	}
	if _, err := db.ExecContext(ctx, createStmt); err != nil {
		return nil, fmt.Errorf("creating destination table %s: %w", d.loc.RedactedString(), err)
	}

	insertSQL, err := trinotype.InsertFromWrapperTable(d.loc.name, sch.Table.Columns, *sch, wrapperName)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, insertSQL); err != nil {
		return nil, fmt.Errorf("inserting from wrapper table into %s: %w", d.loc.RedactedString(), err)
	}

	return []locator.Locator{d.loc}, nil
}

func (d Driver) Count(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (int64, error) {
	db, err := d.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	query := "SELECT COUNT(*) FROM " + d.loc.name.String()
	if source.Where() != "" {
		query += " WHERE " + source.Where()
	}
	var n int64
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", d.loc.RedactedString(), err)
	}
	return n, nil
}

