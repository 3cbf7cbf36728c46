// Package pathlocator implements the PathOrStdio helper shared by the file-
// backed locators (csv:, dbcrossbar-schema:, postgres-sql:): a locator tail
// that is either a filesystem path or "-" for stdin/stdout, grounded on
// original_source/dbcrossbarlib/src/path_or_stdio.rs.
package pathlocator

import (
	"fmt"
	"io"
	"os"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
)

// PathOrStdio is a parsed locator tail: either a path on disk, or stdio.
type PathOrStdio struct {
	Path  string
	Stdio bool
}

// Parse parses the portion of a locator string following its scheme
// prefix. A bare "-" means stdio; anything else is a filesystem path.
func Parse(tail string) PathOrStdio {
	if tail == "-" {
		return PathOrStdio{Stdio: true}
	}
	return PathOrStdio{Path: tail}
}

// String renders p back into its locator-tail spelling.
func (p PathOrStdio) String() string {
	if p.Stdio {
		return "-"
	}
	return p.Path
}

// FormatLocator renders scheme+tail, e.g. "csv:my_table.csv" or "csv:-".
func (p PathOrStdio) FormatLocator(scheme string) string {
	return scheme + p.String()
}

// Open returns a reader for this path: the named file, or os.Stdin for
// stdio. The caller is responsible for closing a non-stdio reader.
func (p PathOrStdio) Open() (io.ReadCloser, error) {
	if p.Stdio {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p.Path, err)
	}
	return f, nil
}

// Create opens this path for writing according to ifExists, or os.Stdout
// for stdio (ifExists is ignored for stdio, which is always appended to).
func (p PathOrStdio) Create(ifExists args.IfExists) (io.WriteCloser, error) {
	if p.Stdio {
		return nopWriteCloser{os.Stdout}, nil
	}

	flags := os.O_WRONLY | os.O_CREATE
	switch ifExists.Kind {
	case args.IfExistsError:
		flags |= os.O_EXCL
	case args.IfExistsOverwrite:
		flags |= os.O_TRUNC
	case args.IfExistsAppend:
		flags |= os.O_APPEND
	default:
		return nil, fmt.Errorf("if_exists=%s is not supported when writing to a local file", ifExists)
	}

	f, err := os.OpenFile(p.Path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", p.Path, err)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
