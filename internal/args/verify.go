package args

import (
	"fmt"

	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
)

// VerificationError is returned by Verify when an argument exercises a
// feature its driver does not declare (spec.md §7). It names the offending
// flag and driver so the CLI can report a precise diagnostic.
type VerificationError struct {
	Driver  string
	Flag    string
	Message string
}

func (e VerificationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s is not supported by driver %q: %s", e.Flag, e.Driver, e.Message)
	}
	return fmt.Sprintf("%s is not supported by driver %q", e.Flag, e.Driver)
}

// UnverifiedSharedArguments carries the arguments common to both sides of a
// transfer, before they have been checked against either driver's Features.
type UnverifiedSharedArguments struct {
	Schema      *schema.Schema
	Temporaries []string
	MaxStreams  int
}

// SharedArguments is the Verified phase of UnverifiedSharedArguments. It has
// no driver-specific flags to reject, but is still gated behind Verify so
// that every argument bundle flowing into a driver has passed through the
// same typestate discipline (spec.md §9).
type SharedArguments struct {
	inner UnverifiedSharedArguments
}

// Verify always succeeds for SharedArguments: none of its fields are
// feature-gated.
func (u UnverifiedSharedArguments) Verify() SharedArguments {
	return SharedArguments{inner: u}
}

// Schema returns the user-supplied schema override, or nil.
func (s SharedArguments) Schema() *schema.Schema { return s.inner.Schema }

// Temporaries returns the configured staging location URIs.
func (s SharedArguments) Temporaries() []string { return s.inner.Temporaries }

// MaxStreams returns the bounded-parallelism cap for this transfer.
func (s SharedArguments) MaxStreams() int { return s.inner.MaxStreams }

// UnverifiedSourceArguments carries the source-side arguments before
// verification.
type UnverifiedSourceArguments struct {
	DriverArgs DriverArguments
	Where      string
}

// SourceArguments is the Verified phase of UnverifiedSourceArguments. Driver
// code accepts only this type, never the Unverified form.
type SourceArguments struct {
	inner UnverifiedSourceArguments
}

// Verify rejects a non-empty Where clause or non-empty DriverArgs that the
// driver's Features do not declare support for.
func (u UnverifiedSourceArguments) Verify(driverName string, features caps.Features) (SourceArguments, error) {
	if u.Where != "" && !features.Has(caps.FeatureWhereClause) {
		return SourceArguments{}, VerificationError{Driver: driverName, Flag: "--where"}
	}
	if !u.DriverArgs.IsEmpty() && !features.Has(caps.FeatureFromArg) {
		return SourceArguments{}, VerificationError{Driver: driverName, Flag: "--from-arg"}
	}
	return SourceArguments{inner: u}, nil
}

// DriverArgs returns the verified driver-specific arguments.
func (s SourceArguments) DriverArgs() DriverArguments { return s.inner.DriverArgs }

// Where returns the verified where-clause, or "" if none was given.
func (s SourceArguments) Where() string { return s.inner.Where }

// UnverifiedDestinationArguments carries the destination-side arguments
// before verification.
type UnverifiedDestinationArguments struct {
	DriverArgs DriverArguments
	IfExists   IfExists
}

// DestinationArguments is the Verified phase of
// UnverifiedDestinationArguments.
type DestinationArguments struct {
	inner UnverifiedDestinationArguments
}

// Verify checks that the driver declares the requested IfExists policy, that
// --to-arg is only used when supported, and that upsert key columns (if any)
// are actually present in schemaColumns.
func (u UnverifiedDestinationArguments) Verify(driverName string, features caps.Features, schemaColumns []string) (DestinationArguments, error) {
	if !u.DriverArgs.IsEmpty() && !features.Has(caps.FeatureToArg) {
		return DestinationArguments{}, VerificationError{Driver: driverName, Flag: "--to-arg"}
	}

	var required caps.Feature
	switch u.IfExists.Kind {
	case IfExistsError:
		required = caps.FeatureIfExistsError
	case IfExistsOverwrite:
		required = caps.FeatureIfExistsOverwrite
	case IfExistsAppend:
		required = caps.FeatureIfExistsAppend
	case IfExistsUpsert:
		required = caps.FeatureIfExistsUpsert
	}
	if !features.Has(required) {
		return DestinationArguments{}, VerificationError{
			Driver: driverName,
			Flag:   "--if-exists=" + u.IfExists.String(),
		}
	}

	if u.IfExists.Kind == IfExistsUpsert {
		present := make(map[string]struct{}, len(schemaColumns))
		for _, c := range schemaColumns {
			present[c] = struct{}{}
		}
		for _, key := range u.IfExists.UpsertKeys {
			if _, ok := present[key]; !ok {
				return DestinationArguments{}, VerificationError{
					Driver:  driverName,
					Flag:    "--if-exists=upsert-on",
					Message: fmt.Sprintf("upsert key column %q is not present in the schema", key),
				}
			}
		}
	}

	return DestinationArguments{inner: u}, nil
}

// DriverArgs returns the verified driver-specific arguments.
func (d DestinationArguments) DriverArgs() DriverArguments { return d.inner.DriverArgs }

// IfExists returns the verified collision policy.
func (d DestinationArguments) IfExists() IfExists { return d.inner.IfExists }
