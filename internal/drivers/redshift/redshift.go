// Package redshift implements the redshift: locator against Amazon Redshift,
// grounded on original_source/dbcrossbarlib/src/drivers/redshift/{local_data,
// write_local_data}.rs. Redshift speaks the PostgreSQL wire protocol (so this
// driver reuses lib/pq and internal/pgtype the same way internal/drivers/
// postgres does) but never streams rows directly: both retained source files
// route all data movement through an S3 staging location via UNLOAD/COPY,
// which this port reproduces with the internal/drivers/s3 driver standing in
// for the original's shelled-out `aws s3` staging step.
//
// The reverse direction (COPY FROM S3 INTO Redshift) and the
// RedshiftDriverArguments-style partner_sql/credentials hooks referenced by
// write_remote_data.rs are not present in the retained source subset; see
// DESIGN.md for how this package fills that gap.
package redshift

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	_ "github.com/lib/pq"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/s3"
	"github.com/dbcrossbar/dbcrossbar-go/internal/locator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/pgtype"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/streamutil"
	"github.com/dbcrossbar/dbcrossbar-go/internal/tempstore"
	"github.com/dbcrossbar/dbcrossbar-go/internal/urlredact"
)

// Scheme is this driver's registered locator scheme.
const Scheme = "redshift:"

// Locator names a table in a Redshift cluster, e.g.
// "redshift://user:pw@host:5439/db#public.widgets".
type Locator struct {
	rawURL string
	dsn    string
	table  string
}

func (l Locator) String() string         { return Scheme + l.rawURL }
func (l Locator) Scheme() string         { return Scheme }
func (l Locator) RedactedString() string { return Scheme + urlredact.String(l.rawURL) }

// ConnectionDSN and TableName satisfy the unexported postgresWireSource
// interface internal/drivers/s3 uses to recognize a Redshift source for its
// UNLOAD fast path, without s3 importing this package (which would cycle
// back through this package's own import of s3 for staging).
func (l Locator) ConnectionDSN() string { return l.dsn }
func (l Locator) TableName() string     { return l.table }

// Factory parses a redshift: locator tail: "//user:pw@host:5439/db#schema.table".
func Factory(tail string) (locator.Locator, locator.Driver, error) {
	u, err := url.Parse(tail)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redshift locator: %w", err)
	}
	table := u.Fragment
	if table == "" {
		return nil, nil, fmt.Errorf("redshift locator %q must name a table after '#'", tail)
	}
	dsnURL := *u
	dsnURL.Fragment = ""

	loc := Locator{rawURL: tail, dsn: dsnURL.String(), table: table}
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
		caps.FeatureIfExistsError, caps.FeatureIfExistsOverwrite, caps.FeatureIfExistsAppend,
	)
}

func (l Locator) namespaceAndTable() (string, string) {
	parts := strings.SplitN(l.table, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", parts[0]
}

func (l Locator) quotedTable() string {
	ns, table := l.namespaceAndTable()
	if ns == "" {
		return schema.MustIdentifier(table).Quoted('"')
	}
	return schema.MustIdentifier(ns).Quoted('"') + "." + schema.MustIdentifier(table).Quoted('"')
}

func (d Driver) open() (*sql.DB, error) {
	db, err := sql.Open("postgres", d.loc.dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", d.loc.RedactedString(), err)
	}
	return db, nil
}

// Schema reads the table's catalog the same way internal/drivers/postgres
// does, but rejects the enum and PostGIS geometry extensions Redshift does
// not ship, since USER-DEFINED/pg_enum and the geometry udt_name never
// appear in a Redshift catalog.
func (d Driver) Schema(ctx context.Context, source args.SourceArguments) (*schema.Schema, error) {
	db, err := d.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ns, table := d.loc.namespaceAndTable()
	if ns == "" {
		ns = "public"
	}

	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, ns, table)
	if err != nil {
		return nil, fmt.Errorf("reading catalog for %s: %w", d.loc.RedactedString(), err)
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var name, dataType string
		var isNullable bool
		if err := rows.Scan(&name, &dataType, &isNullable); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		dt, ok := redshiftCatalogTypes[dataType]
		if !ok {
			return nil, fmt.Errorf("no portable type mapping for Redshift type %q", dataType)
		}
		columns = append(columns, schema.Column{Name: name, DataType: dt, IsNullable: isNullable})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s.%s not found (or has no columns)", ns, table)
	}

	return &schema.Schema{Table: schema.Table{Name: table, Columns: columns}}, nil
}

func (d Driver) WriteSchema(ctx context.Context, sch schema.Schema, ifExists args.IfExists, dest args.DestinationArguments) error {
	for _, col := range sch.Table.Columns {
		switch col.DataType.(type) {
		case schema.NamedType, schema.OneOfType:
			return fmt.Errorf("column %q: Redshift has no enum type support, unlike PostgreSQL", col.Name)
		case schema.GeoJsonType:
			return fmt.Errorf("column %q: Redshift has no PostGIS geometry support", col.Name)
		}
	}

	db, err := d.open()
	if err != nil {
		return err
	}
	defer db.Close()

	ns, table := d.loc.namespaceAndTable()
	tableName := table
	if ns != "" {
		tableName = ns + "." + table
	}
	ddlSchema := sch
	ddlSchema.Table.Name = tableName
	createStmt, err := pgtype.Generator.CreateTableStatement(ddlSchema, false)
	if err != nil {
		return fmt.Errorf("generating CREATE TABLE for %s: %w", d.loc.RedactedString(), err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if ifExists.Kind == args.IfExistsOverwrite {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+d.loc.quotedTable()); err != nil {
			return fmt.Errorf("dropping existing table %s: %w", d.loc.RedactedString(), err)
		}
	}
	if _, err := tx.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("creating table %s: %w", d.loc.RedactedString(), err)
	}
	return tx.Commit()
}

// stagingLocator builds the s3: Locator/Driver pair this transfer stages
// through, reading the first configured s3: temporary-storage location
// (spec.md §4.6, --temporary) and appending a random tag directory so
// concurrent transfers never collide, grounded on find_s3_temp_dir's role in
// local_data.rs/write_local_data.rs.
func (d Driver) stagingLocator(shared args.SharedArguments) (s3.Locator, s3.Driver, error) {
	base, err := tempstore.New(shared.Temporaries()...).FindScheme(s3.Scheme, "redshift", "redshift")
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

// LocalData stages the selected rows out to S3 via UNLOAD, then streams the
// resulting CSV objects back the way internal/drivers/s3.Driver.LocalData
// always does, mirroring local_data.rs's two-hop structure.
func (d Driver) LocalData(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (<-chan streamutil.CsvStream, error) {
	stageLoc, stageDriver, err := d.stagingLocator(shared)
	if err != nil {
		return nil, err
	}
	if err := d.unload(ctx, source, stageLoc); err != nil {
		return nil, err
	}
	return stageDriver.LocalData(ctx, shared, args.SourceArguments{})
}

func (d Driver) unload(ctx context.Context, source args.SourceArguments, stageLoc s3.Locator) error {
	db, err := d.open()
	if err != nil {
		return err
	}
	defer db.Close()

	sch, err := d.Schema(ctx, source)
	if err != nil {
		return err
	}
	selectSQL := "SELECT " + quotedColumnList(sch.Table.Columns) + " FROM " + d.loc.quotedTable()
	if source.Where() != "" {
		selectSQL += " WHERE " + source.Where()
	}

	credentials, err := credentialsClause(source.DriverArgs())
	if err != nil {
		return err
	}

	unloadSQL := fmt.Sprintf("UNLOAD (%s) TO %s CREDENTIALS %s HEADER FORMAT CSV",
		pgtype.Quote(selectSQL), pgtype.Quote(stageLoc.String()), pgtype.Quote(credentials))
	if partnerSQL, ok := source.DriverArgs().Lookup("partner_sql"); ok {
		unloadSQL = partnerSQL + ";\n" + unloadSQL
	}

	if _, err := db.ExecContext(ctx, unloadSQL); err != nil {
		return fmt.Errorf("running UNLOAD against %s: %w", d.loc.RedactedString(), err)
	}
	return nil
}

func quotedColumnList(columns []schema.Column) string {
	out := ""
	for i, c := range columns {
		if i > 0 {
			out += ", "
		}
		out += schema.MustIdentifier(c.Name).Quoted('"')
	}
	return out
}

// credentialsClause resolves the CREDENTIALS string both UNLOAD and COPY
// need. There is no retained source for RedshiftDriverArguments, so this
// is an original design: prefer an explicit driver argument (--from-arg/
// --to-arg credentials=... or iam_role=...), else fall back to the standard
// AWS environment variables, matching how the s3 driver's own session()
// already defers to the ambient AWS credential chain.
func credentialsClause(driverArgs args.DriverArguments) (string, error) {
	if v, ok := driverArgs.Lookup("credentials"); ok {
		return v, nil
	}
	if role, ok := driverArgs.Lookup("iam_role"); ok {
		return "aws_iam_role=" + role, nil
	}
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey == "" || secretKey == "" {
		return "", fmt.Errorf("redshift UNLOAD/COPY needs AWS credentials: pass --from-arg/--to-arg credentials=... or set AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY")
	}
	clause := fmt.Sprintf("aws_access_key_id=%s;aws_secret_access_key=%s", accessKey, secretKey)
	if token := os.Getenv("AWS_SESSION_TOKEN"); token != "" {
		clause += ";token=" + token
	}
	return clause, nil
}

// WriteLocalData stages the incoming streams to S3 first, waiting for every
// upload to finish, then loads the whole staged prefix into the table with a
// single COPY, mirroring write_local_data.rs's "stage everything, then load"
// structure. The single resulting future is only reported once the COPY has
// actually committed.
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
			if err := d.load(ctx, stageLoc, dest); err != nil {
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

// load runs the COPY that reads every object staged beneath stageLoc into
// the destination table. There is no retained original source for this
// direction; it is modeled directly on Redshift's documented
// "COPY table FROM 's3://...' CREDENTIALS '...' CSV" syntax and on how
// internal/drivers/postgres.writeStream handles --if-exists for a live
// connection.
func (d Driver) load(ctx context.Context, stageLoc s3.Locator, dest args.DestinationArguments) error {
	db, err := d.open()
	if err != nil {
		return err
	}
	defer db.Close()

	credentials, err := credentialsClause(dest.DriverArgs())
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if dest.IfExists().Kind == args.IfExistsOverwrite {
		if _, err := tx.ExecContext(ctx, "TRUNCATE "+d.loc.quotedTable()); err != nil {
			return fmt.Errorf("truncating %s: %w", d.loc.RedactedString(), err)
		}
	}

	copySQL := fmt.Sprintf("COPY %s FROM %s CREDENTIALS %s IGNOREHEADER 1 CSV",
		d.loc.quotedTable(), pgtype.Quote(stageLoc.String()), pgtype.Quote(credentials))
	if partnerSQL, ok := dest.DriverArgs().Lookup("partner_sql"); ok {
		copySQL = partnerSQL + ";\n" + copySQL
	}
	if _, err := tx.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("running COPY into %s: %w", d.loc.RedactedString(), err)
	}
	return tx.Commit()
}

// redshiftCatalogTypes maps information_schema.columns.data_type values, as
// reported by Redshift, to portable types. Redshift never reports "ARRAY" or
// "USER-DEFINED" the way PostgreSQL's catalog does, so this map is flat,
// unlike internal/drivers/postgres's pgCatalogTypes.
var redshiftCatalogTypes = map[string]schema.DataType{
	"boolean":                      schema.Bool,
	"smallint":                     schema.Int16,
	"integer":                      schema.Int32,
	"bigint":                       schema.Int64,
	"real":                         schema.Float32,
	"double precision":             schema.Float64,
	"numeric":                      schema.Decimal,
	"text":                         schema.Text,
	"character varying":           schema.Text,
	"character":                   schema.Text,
	"date":                         schema.Date,
	"time without time zone":       schema.TimeWithoutTimeZone,
	"timestamp without time zone":  schema.TimestampWithoutTimeZone,
	"timestamp with time zone":     schema.TimestampWithTimeZone,
}

func (d Driver) SupportsWriteRemoteData(source locator.Locator) bool {
	return false
}

func (d Driver) WriteRemoteData(ctx context.Context, source locator.Locator, shared args.SharedArguments, sourceArgs args.SourceArguments, dest args.DestinationArguments) ([]locator.Locator, error) {
	return nil, locator.ErrUnsupported{Driver: "redshift", Operation: "write_remote_data"}
}

func (d Driver) Count(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (int64, error) {
	db, err := d.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	query := "SELECT COUNT(*) FROM " + d.loc.quotedTable()
	if source.Where() != "" {
		query += " WHERE " + source.Where()
	}
	var n int64
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", d.loc.RedactedString(), err)
	}
	return n, nil
}
