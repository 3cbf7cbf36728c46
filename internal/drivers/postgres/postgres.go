// Package postgres implements the postgres: locator against a live
// PostgreSQL database, grounded on
// original_source/dbcrossbarlib/src/drivers/postgres/{sql_schema_read,
// local_data,write_local_data,count}.rs and postgres_shared/mod.rs (quoting,
// table-name splitting). The locator is a connection URL with the target
// table named in its fragment, e.g. "postgres://user:pw@host/db#public.widgets".
package postgres

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/csvconv"
	"github.com/dbcrossbar/dbcrossbar-go/internal/locator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/pgtype"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/streamutil"
	"github.com/dbcrossbar/dbcrossbar-go/internal/urlredact"
)

// Scheme is this driver's registered locator scheme.
const Scheme = "postgres:"

// Locator names a table in a PostgreSQL database.
type Locator struct {
	rawURL string // full locator, minus the "postgres:" scheme prefix
	dsn    string // connection string, fragment stripped
	table  string // table name, possibly "schema.table"
}

func (l Locator) String() string         { return Scheme + l.rawURL }
func (l Locator) Scheme() string         { return Scheme }
func (l Locator) RedactedString() string { return Scheme + urlredact.String(l.rawURL) }

// Driver implements locator.Driver for Locator.
type Driver struct {
	loc Locator
}

// Factory parses a postgres: locator tail: "//user:pw@host/db#schema.table".
func Factory(tail string) (locator.Locator, locator.Driver, error) {
	u, err := url.Parse(tail)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing postgres locator: %w", err)
	}
	table := u.Fragment
	if table == "" {
		return nil, nil, fmt.Errorf("postgres locator %q must name a table after '#'", tail)
	}
	dsnURL := *u
	dsnURL.Fragment = ""

	loc := Locator{rawURL: tail, dsn: dsnURL.String(), table: table}
	return loc, Driver{loc: loc}, nil
}

func (d Driver) Features() caps.Features {
	return caps.With(
		caps.FeatureSchema, caps.FeatureLocalData, caps.FeatureWriteLocalData, caps.FeatureCount,
		caps.FeatureWhereClause, caps.FeatureIfExistsError, caps.FeatureIfExistsOverwrite, caps.FeatureIfExistsAppend,
	)
}

// namespaceAndTable splits "schema.table" into its components, or returns
// ("", table) if no schema was given, grounded on postgres_shared/mod.rs's
// TableName::split.
func (l Locator) namespaceAndTable() (string, string) {
	parts := strings.SplitN(l.table, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", parts[0]
}

// quotedTable renders the table name, schema-qualified if present, with
// each component double-quoted.
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

// catalogColumn is one row of the information_schema.columns query used by
// Schema.
type catalogColumn struct {
	name       string
	dataType   string
	udtName    string
	isNullable bool
}

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
		SELECT column_name, data_type, udt_name, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, ns, table)
	if err != nil {
		return nil, fmt.Errorf("reading catalog for %s: %w", d.loc.RedactedString(), err)
	}
	defer rows.Close()

	var catalogCols []catalogColumn
	for rows.Next() {
		var c catalogColumn
		if err := rows.Scan(&c.name, &c.dataType, &c.udtName, &c.isNullable); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		catalogCols = append(catalogCols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(catalogCols) == 0 {
		return nil, fmt.Errorf("table %s.%s not found (or has no columns)", ns, table)
	}

	namedTypes := make(map[string]schema.DataType)
	columns := make([]schema.Column, len(catalogCols))
	for i, c := range catalogCols {
		dt, err := d.resolveCatalogType(ctx, db, c, namedTypes)
		if err != nil {
			return nil, err
		}
		columns[i] = schema.Column{Name: c.name, DataType: dt, IsNullable: c.isNullable}
	}

	sch := schema.Schema{
		Table:      schema.Table{Name: table, Columns: columns},
		NamedTypes: namedTypes,
	}
	return &sch, nil
}

// resolveCatalogType maps one catalog row to a portable schema.DataType,
// fetching enum labels (via pg_enum) the first time a given enum udt_name is
// seen, per spec.md §4.9.
func (d Driver) resolveCatalogType(ctx context.Context, db *sql.DB, c catalogColumn, namedTypes map[string]schema.DataType) (schema.DataType, error) {
	if c.dataType == "ARRAY" {
		elemUdt := strings.TrimPrefix(c.udtName, "_")
		elem, ok := pgUdtToScalar[elemUdt]
		if !ok {
			return nil, fmt.Errorf("no portable type mapping for PostgreSQL array element type %q", elemUdt)
		}
		return schema.ArrayType{Element: elem}, nil
	}
	if c.dataType == "USER-DEFINED" {
		if _, known := namedTypes[c.udtName]; !known {
			values, err := d.fetchEnumLabels(ctx, db, c.udtName)
			if err != nil {
				return nil, err
			}
			namedTypes[c.udtName] = schema.OneOfType{Values: values}
		}
		return schema.NamedType{Name: c.udtName}, nil
	}
	if c.udtName == "geometry" {
		return schema.GeoJsonType{SRID: 4326}, nil
	}
	dt, ok := pgCatalogTypes[c.dataType]
	if !ok {
		return nil, fmt.Errorf("no portable type mapping for PostgreSQL type %q", c.dataType)
	}
	return dt, nil
}

func (d Driver) fetchEnumLabels(ctx context.Context, db *sql.DB, typeName string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT e.enumlabel
		FROM pg_enum e
		JOIN pg_type t ON t.oid = e.enumtypid
		WHERE t.typname = $1
		ORDER BY e.enumsortorder`, typeName)
	if err != nil {
		return nil, fmt.Errorf("reading enum labels for %q: %w", typeName, err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

func (d Driver) WriteSchema(ctx context.Context, sch schema.Schema, ifExists args.IfExists, dest args.DestinationArguments) error {
	db, err := d.open()
	if err != nil {
		return err
	}
	defer db.Close()

	ns, table := d.loc.namespaceAndTable()
	statements, err := pgtype.CreateTypeStatements(sch)
	if err != nil {
		return err
	}

	var tableName string
	if ns != "" {
		tableName = ns + "." + table
	} else {
		tableName = table
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
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating enum type: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("creating table %s: %w", d.loc.RedactedString(), err)
	}
	return tx.Commit()
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

	selectList, err := buildSelectList(sch.Table.Columns, *sch)
	if err != nil {
		db.Close()
		return nil, err
	}
	query := "SELECT " + selectList + " FROM " + d.loc.quotedTable()
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
	out <- streamutil.CsvStream{Name: d.loc.table, Data: stream}
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
			resolved, err := sch.Resolve(col.DataType)
			if err != nil {
				return fmt.Errorf("column %q: %w", col.Name, err)
			}
			switch resolved.(type) {
			case schema.ArrayType, schema.GeoJsonType:
				text, ok := scanVals[i].(string)
				if !ok {
					return fmt.Errorf("column %q: expected PostgreSQL to return text-encoded JSON, got %T", col.Name, scanVals[i])
				}
				canonical, err := csvconv.CanonicalizeJSONText(text)
				if err != nil {
					return fmt.Errorf("column %q: %w", col.Name, err)
				}
				fields[i] = csvconv.Field{Text: canonical, Quoted: true}
			default:
				field, err := csvconv.EncodeValue(col.DataType, scanVals[i])
				if err != nil {
					return fmt.Errorf("encoding column %q: %w", col.Name, err)
				}
				fields[i] = field
			}
		}
		if _, err := w.Write([]byte(csvconv.EncodeRow(fields) + "\n")); err != nil {
			return err
		}
	}
	return rows.Err()
}

// buildSelectList renders the SELECT-list for an export query, wrapping
// array and geometry columns per columnExportExpr so they arrive at Scan
// already rendered as the JSON/GeoJSON text csvconv's wire format expects.
func buildSelectList(columns []schema.Column, sch schema.Schema) (string, error) {
	parts := make([]string, len(columns))
	for i, c := range columns {
		expr, err := columnExportExpr(c, sch)
		if err != nil {
			return "", err
		}
		parts[i] = expr
	}
	return strings.Join(parts, ", "), nil
}

// columnExportExpr renders col's SELECT-list expression. Array columns are
// wrapped in array_to_json; geometry columns in
// ST_AsGeoJSON(ST_Transform(col, 4326)); both forms are aliased back to the
// column's own (quoted) name so downstream column lookups are unaffected.
// Array elements of a type csvconv itself renders as a JSON string (bigint,
// to avoid precision loss in a 53-bit-safe JSON number decoder, along with
// decimal, text, date/timestamp, and uuid) are additionally cast to ::text
// per element, so PostgreSQL's own array_to_json doesn't disagree with
// csvconv's element encoding (spec.md §4.9; arrayElementIsJSONString in
// internal/csvconv mirrors this same classification on the decode side).
func columnExportExpr(col schema.Column, sch schema.Schema) (string, error) {
	quoted := schema.MustIdentifier(col.Name).Quoted('"')
	dt, err := sch.Resolve(col.DataType)
	if err != nil {
		return "", fmt.Errorf("column %q: %w", col.Name, err)
	}
	switch t := dt.(type) {
	case schema.ArrayType:
		if arrayElementNeedsTextCast(t.Element) {
			return fmt.Sprintf(
				`(SELECT array_to_json(array_agg(elem::text)) FROM unnest(%s) elem) AS %s`,
				quoted, quoted), nil
		}
		return fmt.Sprintf(`array_to_json(%s)::text AS %s`, quoted, quoted), nil
	case schema.GeoJsonType:
		return fmt.Sprintf(`ST_AsGeoJSON(ST_Transform(%s, 4326)) AS %s`, quoted, quoted), nil
	default:
		return quoted, nil
	}
}

// arrayElementNeedsTextCast reports whether dt's array elements must be
// cast to ::text before array_to_json sees them, because PostgreSQL would
// otherwise emit them as a native JSON number/boolean where csvconv's own
// array encoding (see arrayElementIsJSONString in internal/csvconv) expects
// a JSON string.
func arrayElementNeedsTextCast(dt schema.DataType) bool {
	switch dt {
	case schema.Bool, schema.Int16, schema.Int32, schema.Float32, schema.Float64:
		return false
	default:
		return true
	}
}

func (d Driver) WriteLocalData(ctx context.Context, data <-chan streamutil.CsvStream, shared args.SharedArguments, dest args.DestinationArguments) (<-chan streamutil.Future[locator.Locator], error) {
	out := make(chan streamutil.Future[locator.Locator], shared.MaxStreams()+1)

	go func() {
		defer close(out)
		for stream := range data {
			stream := stream
			out <- func(ctx context.Context) (locator.Locator, error) {
				if err := d.writeStream(ctx, stream, dest); err != nil {
					return nil, err
				}
				return d.loc, nil
			}
		}
	}()
	return out, nil
}

func (d Driver) writeStream(ctx context.Context, stream streamutil.CsvStream, dest args.DestinationArguments) error {
	db, err := d.open()
	if err != nil {
		return err
	}
	defer db.Close()

	r := bufio.NewScanner(streamutil.NewStreamReader(stream.Data))
	r.Buffer(make([]byte, 64*1024), 16*1024*1024)
	if !r.Scan() {
		return r.Err()
	}
	headerFields, err := csvconv.DecodeRow(r.Text())
	if err != nil {
		return fmt.Errorf("reading CSV header: %w", err)
	}
	columns := make([]string, len(headerFields))
	for i, f := range headerFields {
		columns[i] = f.Text
	}

	sch, err := d.Schema(ctx, args.SourceArguments{})
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if dest.IfExists().Kind == args.IfExistsOverwrite {
		if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+d.loc.quotedTable()); err != nil {
			return fmt.Errorf("truncating %s: %w", d.loc.RedactedString(), err)
		}
	}

	ns, table := d.loc.namespaceAndTable()
	copyIn := pq.CopyInSchema(ns, table, columns...)
	if ns == "" {
		copyIn = pq.CopyIn(table, columns...)
	}
	stmt, err := tx.PrepareContext(ctx, copyIn)
	if err != nil {
		return fmt.Errorf("preparing COPY into %s: %w", d.loc.RedactedString(), err)
	}

	for r.Scan() {
		fields, err := csvconv.DecodeRow(r.Text())
		if err != nil {
			return fmt.Errorf("decoding CSV row: %w", err)
		}
		values := make([]interface{}, len(fields))
		for i, f := range fields {
			col, ok := sch.Table.ColumnNamed(columns[i])
			if !ok {
				return fmt.Errorf("column %q is not present in the destination schema", columns[i])
			}
			if f == csvconv.Null {
				values[i] = nil
				continue
			}
			v, err := csvconv.DecodeValue(col.DataType, f)
			if err != nil {
				return fmt.Errorf("decoding column %q: %w", columns[i], err)
			}
			resolved, err := sch.Resolve(col.DataType)
			if err != nil {
				return fmt.Errorf("column %q: %w", columns[i], err)
			}
			switch t := resolved.(type) {
			case schema.ArrayType:
				values[i] = pq.GenericArray{A: v}
			case schema.GeoJsonType:
				raw, ok := v.(json.RawMessage)
				if !ok {
					return fmt.Errorf("column %q: expected a geojson value, got %T", columns[i], v)
				}
				ewkt, err := geoJSONToEWKT(raw, t.SRID)
				if err != nil {
					return fmt.Errorf("column %q: %w", columns[i], err)
				}
				values[i] = ewkt
			default:
				values[i] = v
			}
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("writing row to %s: %w", d.loc.RedactedString(), err)
		}
	}
	if err := r.Err(); err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing COPY into %s: %w", d.loc.RedactedString(), err)
	}
	if err := stmt.Close(); err != nil {
		return err
	}
	return tx.Commit()
}

func (d Driver) SupportsWriteRemoteData(source locator.Locator) bool {
	return false
}

func (d Driver) WriteRemoteData(ctx context.Context, source locator.Locator, shared args.SharedArguments, sourceArgs args.SourceArguments, dest args.DestinationArguments) ([]locator.Locator, error) {
	return nil, locator.ErrUnsupported{Driver: "postgres", Operation: "write_remote_data"}
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

// pgCatalogTypes maps information_schema.columns.data_type values (as
// reported for non-ARRAY, non-USER-DEFINED columns) to portable types.
var pgCatalogTypes = map[string]schema.DataType{
	"boolean":                    schema.Bool,
	"smallint":                   schema.Int16,
	"integer":                    schema.Int32,
	"bigint":                     schema.Int64,
	"real":                       schema.Float32,
	"double precision":           schema.Float64,
	"numeric":                    schema.Decimal,
	"text":                       schema.Text,
	"character varying":         schema.Text,
	"character":                 schema.Text,
	"json":                       schema.Json,
	"jsonb":                      schema.Json,
	"uuid":                       schema.Uuid,
	"date":                       schema.Date,
	"time without time zone":     schema.TimeWithoutTimeZone,
	"timestamp without time zone": schema.TimestampWithoutTimeZone,
	"timestamp with time zone":   schema.TimestampWithTimeZone,
}

// pgUdtToScalar maps the udt_name of an array element (with its leading
// underscore stripped, e.g. "_int4" -> "int4") to a portable scalar type.
var pgUdtToScalar = map[string]schema.DataType{
	"bool":    schema.Bool,
	"int2":    schema.Int16,
	"int4":    schema.Int32,
	"int8":    schema.Int64,
	"float4":  schema.Float32,
	"float8":  schema.Float64,
	"numeric": schema.Decimal,
	"text":    schema.Text,
	"varchar": schema.Text,
	"json":    schema.Json,
	"jsonb":   schema.Json,
	"uuid":    schema.Uuid,
	"date":    schema.Date,
}

