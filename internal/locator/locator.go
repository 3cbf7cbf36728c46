// Package locator implements the scheme-prefixed locator abstraction and
// driver registry (spec.md §4.4, C5), plus the generic driver kernel every
// concrete driver implements (C10): schema, write_schema, local_data,
// write_local_data, supports_write_remote_data, write_remote_data, count.
package locator

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/streamutil"
)

// Locator identifies a location and the driver that handles it. Locators
// are value-like and cheap to clone: they may carry connection configuration
// but never an open connection (spec.md §3).
type Locator interface {
	fmt.Stringer

	// Scheme returns this locator's registered scheme, including the
	// trailing colon (e.g. "postgres:").
	Scheme() string

	// RedactedString renders the locator for logs and error messages with
	// any embedded password elided, grounded on
	// original_source/dbcrossbar/src/url_with_hidden_password.rs.
	RedactedString() string
}

// Driver is the capability set every locator's backing driver exposes.
// Operations a driver does not implement return ErrUnsupported; spec.md §4.4
// requires this to be declared ahead of time via Features so the planner
// and argument verifier can reject a request before attempting it.
type Driver interface {
	// Features describes which of the operations below (and which
	// argument flags) this driver accepts.
	Features() caps.Features

	// Schema returns a table schema, or (nil, nil) if this locator does
	// not represent data with a schema.
	Schema(ctx context.Context, source args.SourceArguments) (*schema.Schema, error)

	// WriteSchema emits a schema in the driver's preferred form.
	WriteSchema(ctx context.Context, sch schema.Schema, ifExists args.IfExists, dest args.DestinationArguments) error

	// LocalData opens a read-side local data pipeline, or returns
	// (nil, nil) if this locator cannot produce local data.
	LocalData(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (<-chan streamutil.CsvStream, error)

	// WriteLocalData consumes local data, returning one future per
	// sub-stream that resolves to the locator of the persisted data.
	WriteLocalData(ctx context.Context, data <-chan streamutil.CsvStream, shared args.SharedArguments, dest args.DestinationArguments) (<-chan streamutil.Future[Locator], error)

	// SupportsWriteRemoteData is a declarative capability check for
	// skipping the local detour entirely when transferring from source.
	SupportsWriteRemoteData(source Locator) bool

	// WriteRemoteData performs an end-to-end transfer inside the
	// destination's ecosystem.
	WriteRemoteData(ctx context.Context, source Locator, shared args.SharedArguments, sourceArgs args.SourceArguments, dest args.DestinationArguments) ([]Locator, error)

	// Count returns the row count for the selected rows.
	Count(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (int64, error)
}

// Remover is implemented by drivers that can delete the data a locator
// names (S3, GCS, and other object-store-backed drivers). It is optional:
// the planner type-asserts for it when cleaning up staged data and treats
// its absence as "nothing to clean up".
type Remover interface {
	Remove(ctx context.Context, loc Locator) error
}

// ErrUnsupported is returned by a Driver method that Features declares this
// driver does not implement.
type ErrUnsupported struct {
	Driver    string
	Operation string
}

func (e ErrUnsupported) Error() string {
	return fmt.Sprintf("driver %q does not support %s", e.Driver, e.Operation)
}

// schemeRE matches a locator scheme prefix: a letter, then letters, digits,
// '-', '+', '.', ending in ':'. Grounded on
// original_source/dbcrossbarlib/src/lib.rs's SCHEME_RE.
var schemeRE = regexp.MustCompile(`^[A-Za-z][-A-Za-z0-9+.]*:`)

// ParseScheme extracts the scheme prefix (including trailing ':') from a
// locator string, or returns an error if none is found.
func ParseScheme(s string) (string, error) {
	loc := schemeRE.FindString(s)
	if loc == "" {
		return "", fmt.Errorf("cannot parse locator: %q", s)
	}
	return loc, nil
}
