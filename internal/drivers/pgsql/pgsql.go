// Package pgsql implements the postgres-sql: locator: a local file (or
// stdio) holding PostgreSQL CREATE TABLE/CREATE TYPE DDL, read and written
// without ever connecting to a database, grounded on
// original_source/dbcrossbarlib/src/drivers/postgres_sql/mod.rs. No SQL DDL
// parser appears anywhere in the example pack, so Schema's reverse parse is
// a minimal hand-rolled reader of exactly the shape this package (and the
// postgres driver) writes -- not a general PostgreSQL grammar.
package pgsql

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/pathlocator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/locator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/pgtype"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/streamutil"
)

// Scheme is this driver's registered locator scheme.
const Scheme = "postgres-sql:"

// Locator names a file (or stdio) holding PostgreSQL DDL.
type Locator struct {
	path pathlocator.PathOrStdio
}

func (l Locator) String() string         { return l.path.FormatLocator(Scheme) }
func (l Locator) Scheme() string         { return Scheme }
func (l Locator) RedactedString() string { return l.String() }

// Driver implements locator.Driver for Locator: schema only, never data.
type Driver struct {
	loc Locator
}

// Factory parses a postgres-sql: locator tail.
func Factory(tail string) (locator.Locator, locator.Driver, error) {
	loc := Locator{path: pathlocator.Parse(tail)}
	return loc, Driver{loc: loc}, nil
}

func (d Driver) Features() caps.Features {
	return caps.With(caps.FeatureSchema, caps.FeatureWriteSchema, caps.FeatureIfExistsError, caps.FeatureIfExistsOverwrite)
}

func (d Driver) Schema(ctx context.Context, source args.SourceArguments) (*schema.Schema, error) {
	r, err := d.loc.path.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", d.loc, err)
	}
	sch, err := parseDDL(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", d.loc, err)
	}
	return sch, nil
}

func (d Driver) WriteSchema(ctx context.Context, sch schema.Schema, ifExists args.IfExists, dest args.DestinationArguments) error {
	var b strings.Builder
	typeStatements, err := pgtype.CreateTypeStatements(sch)
	if err != nil {
		return err
	}
	for _, stmt := range typeStatements {
		b.WriteString(stmt)
		b.WriteString(";\n\n")
	}

	createStmt, err := pgtype.Generator.CreateTableStatement(sch, false)
	if err != nil {
		return fmt.Errorf("generating DDL for %s: %w", d.loc, err)
	}
	b.WriteString(createStmt)
	b.WriteString(";\n")

	w, err := d.loc.path.Create(ifExists)
	if err != nil {
		return err
	}
	defer w.Close()

	if _, err := w.Write([]byte(b.String())); err != nil {
		return fmt.Errorf("writing %s: %w", d.loc, err)
	}
	return nil
}

func (d Driver) LocalData(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (<-chan streamutil.CsvStream, error) {
	return nil, nil
}

func (d Driver) WriteLocalData(ctx context.Context, data <-chan streamutil.CsvStream, shared args.SharedArguments, dest args.DestinationArguments) (<-chan streamutil.Future[locator.Locator], error) {
	return nil, locator.ErrUnsupported{Driver: "postgres-sql", Operation: "write_local_data"}
}

func (d Driver) SupportsWriteRemoteData(source locator.Locator) bool {
	return false
}

func (d Driver) WriteRemoteData(ctx context.Context, source locator.Locator, shared args.SharedArguments, sourceArgs args.SourceArguments, dest args.DestinationArguments) ([]locator.Locator, error) {
	return nil, locator.ErrUnsupported{Driver: "postgres-sql", Operation: "write_remote_data"}
}

func (d Driver) Count(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (int64, error) {
	return 0, locator.ErrUnsupported{Driver: "postgres-sql", Operation: "count"}
}
