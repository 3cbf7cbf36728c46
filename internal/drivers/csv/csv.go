// Package csv implements the csv: locator: a single CSV file, a directory
// of CSV files sharing one schema, or stdio, grounded on
// original_source/dbcrossbar/src/data_streams/csv_converter.rs (schema
// inference) and original_source/dbcrossbarlib/src/path_or_stdio.rs
// (locator shape).
package csv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/csvconv"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/pathlocator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/locator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/streamutil"
)

// Scheme is this driver's registered locator scheme.
const Scheme = "csv:"

// Locator names a CSV file, a directory of CSV files, or stdio.
type Locator struct {
	path pathlocator.PathOrStdio
}

func (l Locator) String() string         { return l.path.FormatLocator(Scheme) }
func (l Locator) Scheme() string         { return Scheme }
func (l Locator) RedactedString() string { return l.String() }

// isDir reports whether this locator names a directory (trailing slash, by
// convention, exactly as the original CLI expects).
func (l Locator) isDir() bool {
	return !l.path.Stdio && strings.HasSuffix(l.path.Path, "/")
}

// Driver implements locator.Driver for Locator.
type Driver struct {
	loc Locator
}

// Factory parses a csv: locator tail.
func Factory(tail string) (locator.Locator, locator.Driver, error) {
	loc := Locator{path: pathlocator.Parse(tail)}
	return loc, Driver{loc: loc}, nil
}

func (d Driver) Features() caps.Features {
	return caps.With(
		caps.FeatureSchema, caps.FeatureLocalData, caps.FeatureWriteLocalData,
		caps.FeatureIfExistsError, caps.FeatureIfExistsOverwrite, caps.FeatureIfExistsAppend,
	)
}

// filePaths returns every CSV file this locator names, in a deterministic
// order: one for a single file or stdio, every "*.csv" entry for a
// directory.
func (d Driver) filePaths() ([]string, error) {
	if d.loc.path.Stdio || !d.loc.isDir() {
		return []string{d.loc.path.Path}, nil
	}

	entries, err := os.ReadDir(d.loc.path.Path)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", d.loc, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(d.loc.path.Path, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func (d Driver) Schema(ctx context.Context, source args.SourceArguments) (*schema.Schema, error) {
	paths, err := d.filePaths()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no CSV files found at %s", d.loc)
	}

	var header string
	if d.loc.path.Stdio {
		r, err := d.loc.path.Open()
		if err != nil {
			return nil, err
		}
		defer r.Close()
		header, err = readHeaderLine(r)
		if err != nil {
			return nil, err
		}
	} else {
		f, err := os.Open(paths[0])
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", paths[0], err)
		}
		defer f.Close()
		header, err = readHeaderLine(f)
		if err != nil {
			return nil, err
		}
	}

	fields, err := csvconv.DecodeRow(header)
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", d.loc, err)
	}

	tableName := tableNameFromLocator(d.loc)
	columns := make([]schema.Column, len(fields))
	for i, field := range fields {
		columns[i] = schema.Column{Name: field.Text, DataType: schema.Text, IsNullable: true}
	}
	sch := schema.Schema{Table: schema.Table{Name: tableName, Columns: columns}}
	return &sch, nil
}

func (d Driver) WriteSchema(ctx context.Context, sch schema.Schema, ifExists args.IfExists, dest args.DestinationArguments) error {
	return locator.ErrUnsupported{Driver: "csv", Operation: "write_schema"}
}

func (d Driver) LocalData(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (<-chan streamutil.CsvStream, error) {
	paths, err := d.filePaths()
	if err != nil {
		return nil, err
	}

	out := make(chan streamutil.CsvStream, len(paths))
	if d.loc.path.Stdio {
		r, err := d.loc.path.Open()
		if err != nil {
			return nil, err
		}
		out <- streamutil.CsvStream{Name: "stdin", Data: streamutil.FromReader(ctx, r)}
		close(out)
		return out, nil
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), ".csv")
		out <- streamutil.CsvStream{Name: name, Data: streamutil.FromReader(ctx, f)}
	}
	close(out)
	return out, nil
}

func (d Driver) WriteLocalData(ctx context.Context, data <-chan streamutil.CsvStream, shared args.SharedArguments, dest args.DestinationArguments) (<-chan streamutil.Future[locator.Locator], error) {
	out := make(chan streamutil.Future[locator.Locator], shared.MaxStreams()+1)

	go func() {
		defer close(out)
		for stream := range data {
			stream := stream
			out <- func(ctx context.Context) (locator.Locator, error) {
				dst, err := d.destPathFor(stream.Name)
				if err != nil {
					return nil, err
				}
				w, err := dst.path.Create(dest.IfExists())
				if err != nil {
					return nil, err
				}
				defer w.Close()

				r := streamutil.NewStreamReader(stream.Data)
				if _, err := io.Copy(w, r); err != nil {
					return nil, fmt.Errorf("writing %s: %w", dst, err)
				}
				return dst, nil
			}
		}
	}()
	return out, nil
}

// destPathFor resolves the locator a sub-stream should be written to: the
// locator itself for a single file or stdio, or "<dir>/<name>.csv" for a
// directory locator (one output file per CsvStream name, as produced by the
// planner's bounded-parallelism consumption).
func (d Driver) destPathFor(streamName string) (Locator, error) {
	if d.loc.path.Stdio || !d.loc.isDir() {
		return d.loc, nil
	}
	if err := os.MkdirAll(d.loc.path.Path, 0o755); err != nil {
		return Locator{}, fmt.Errorf("creating directory %s: %w", d.loc.path.Path, err)
	}
	return Locator{path: pathlocator.Parse(filepath.Join(d.loc.path.Path, streamName+".csv"))}, nil
}

func (d Driver) SupportsWriteRemoteData(source locator.Locator) bool {
	return false
}

func (d Driver) WriteRemoteData(ctx context.Context, source locator.Locator, shared args.SharedArguments, sourceArgs args.SourceArguments, dest args.DestinationArguments) ([]locator.Locator, error) {
	return nil, locator.ErrUnsupported{Driver: "csv", Operation: "write_remote_data"}
}

func (d Driver) Count(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (int64, error) {
	paths, err := d.filePaths()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("opening %s: %w", path, err)
		}
		n, err := countDataLines(f)
		f.Close()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func readHeaderLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("file has no header row")
	}
	return scanner.Text(), nil
}

func countDataLines(r io.Reader) (int64, error) {
	scanner := bufio.NewScanner(r)
	var n int64 = -1 // the header row does not count
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

func tableNameFromLocator(l Locator) string {
	if l.path.Stdio {
		return "stdin"
	}
	base := filepath.Base(strings.TrimSuffix(l.path.Path, "/"))
	return strings.TrimSuffix(base, ".csv")
}
