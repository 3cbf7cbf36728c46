// Package planner implements the transfer planner (spec.md §4.7, C8): given
// a source and destination locator it chooses a direct remote transfer, a
// staged two-hop chain through temporary storage, or a fully local
// detour, and verifies both sides' arguments against their drivers'
// declared features along the way.
package planner

import (
	"context"
	"fmt"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/execctx"
	"github.com/dbcrossbar/dbcrossbar-go/internal/locator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/streamutil"
	"github.com/dbcrossbar/dbcrossbar-go/internal/tempstore"
)

// SchemaRequiredError is returned when the source locator exposes no schema
// and none was supplied via --schema.
type SchemaRequiredError struct {
	Source string
}

func (e SchemaRequiredError) Error() string {
	return fmt.Sprintf("source %q does not provide a schema, and none was given via --schema", e.Source)
}

// Request bundles everything the planner needs to carry out one transfer.
type Request struct {
	SourceLocator    locator.Locator
	SourceDriver     locator.Driver
	SourceDriverName string

	DestLocator    locator.Locator
	DestDriver     locator.Driver
	DestDriverName string

	// DestBaseName names the destination table/file, used to build the
	// temp_<basename>_<5-char suffix> name for any staging locator the
	// planner creates (spec.md §4.7).
	DestBaseName string

	Shared      args.UnverifiedSharedArguments
	Source      args.UnverifiedSourceArguments
	Dest        args.UnverifiedDestinationArguments
	Temporaries tempstore.Storage
}

// Result is what a transfer produced: the locator(s) of the data actually
// written, for `--display-output-locators`.
type Result struct {
	Locators []locator.Locator
}

// Planner resolves staging locators (S3, GCS, ...) named by temporary
// storage URIs through a driver registry.
type Planner struct {
	Registry *locator.Registry
}

// New returns a Planner that resolves staging locators through registry.
func New(registry *locator.Registry) Planner {
	return Planner{Registry: registry}
}

// Plan executes the algorithm in spec.md §4.7 and returns the locators the
// data ended up at.
func (p Planner) Plan(ctx context.Context, ec execctx.Context, req Request) (Result, error) {
	shared := req.Shared.Verify()

	sourceArgs, err := req.Source.Verify(req.SourceDriverName, req.SourceDriver.Features())
	if err != nil {
		return Result{}, err
	}

	sch, err := p.resolveSchema(ctx, shared, req, sourceArgs)
	if err != nil {
		return Result{}, err
	}

	schemaColumns := make([]string, len(sch.Table.Columns))
	for i, c := range sch.Table.Columns {
		schemaColumns[i] = c.Name
	}

	destArgs, err := req.Dest.Verify(req.DestDriverName, req.DestDriver.Features(), schemaColumns)
	if err != nil {
		return Result{}, err
	}

	// Step 3: a destination that can write remote-to-remote from this
	// exact source skips the local detour entirely.
	if req.DestDriver.SupportsWriteRemoteData(req.SourceLocator) {
		locs, err := req.DestDriver.WriteRemoteData(ctx, req.SourceLocator, shared, sourceArgs, destArgs)
		if err != nil {
			return Result{}, err
		}
		return Result{Locators: locs}, nil
	}

	// Step 4: look for a staging scheme shared by both endpoints and able
	// to carry a two-hop chain.
	if res, ok, err := p.tryStagedChain(ctx, ec, req, shared, sourceArgs, destArgs, schemaColumns); err != nil {
		return Result{}, err
	} else if ok {
		return res, nil
	}

	// Step 5: fully local fallback.
	return p.transferLocally(ctx, req.SourceDriver, req.DestDriver, shared, sourceArgs, destArgs)
}

func (p Planner) resolveSchema(ctx context.Context, shared args.SharedArguments, req Request, sourceArgs args.SourceArguments) (*schema.Schema, error) {
	if sch := shared.Schema(); sch != nil {
		return sch, nil
	}
	sch, err := req.SourceDriver.Schema(ctx, sourceArgs)
	if err != nil {
		return nil, err
	}
	if sch == nil {
		return nil, SchemaRequiredError{Source: req.SourceLocator.String()}
	}
	return sch, nil
}

// tryStagedChain attempts every staging scheme in cloud-affinity order
// (spec.md §4.7's tie-break) until one both sides can use, or reports that
// none worked (ok=false, err=nil) so the caller falls back to step 5.
func (p Planner) tryStagedChain(
	ctx context.Context,
	ec execctx.Context,
	req Request,
	shared args.SharedArguments,
	sourceArgs args.SourceArguments,
	destArgs args.DestinationArguments,
	schemaColumns []string,
) (Result, bool, error) {
	for _, scheme := range preferredStagingSchemes(req.SourceDriverName, req.DestDriverName) {
		stagingURI, err := req.Temporaries.FindScheme(scheme, req.SourceDriverName, req.DestDriverName)
		if err != nil {
			continue
		}

		stagingName := stagingURI + tempTableName(req.DestBaseName)
		stagingLocator, stagingDriver, err := p.Registry.Resolve(stagingName)
		if err != nil {
			ec.Log().WithError(err).WithField("scheme", scheme).Debug("could not resolve staging locator, trying next scheme")
			continue
		}

		if !req.DestDriver.SupportsWriteRemoteData(stagingLocator) {
			continue
		}

		localData, err := req.SourceDriver.LocalData(ctx, shared, sourceArgs)
		if err != nil {
			return Result{}, false, err
		}
		if localData == nil {
			continue
		}

		// Staging destinations always overwrite: they are ephemeral and
		// owned exclusively by this transfer (spec.md §4.7).
		stagingDestArgs, err := args.UnverifiedDestinationArguments{IfExists: args.IfExists{Kind: args.IfExistsOverwrite}}.
			Verify(driverNameFromScheme(scheme), stagingDriver.Features(), schemaColumns)
		if err != nil {
			continue
		}

		writeFutures, err := stagingDriver.WriteLocalData(ctx, localData, shared, stagingDestArgs)
		if err != nil {
			return Result{}, false, err
		}
		if _, err := streamutil.ConsumeChanWithParallelism(ctx, shared.MaxStreams(), writeFutures); err != nil {
			return Result{}, false, fmt.Errorf("staging data in %s: %w", stagingLocator.RedactedString(), err)
		}

		stagingSourceArgs, err := args.UnverifiedSourceArguments{}.Verify(driverNameFromScheme(scheme), stagingDriver.Features())
		if err != nil {
			return Result{}, false, err
		}

		locs, writeErr := req.DestDriver.WriteRemoteData(ctx, stagingLocator, shared, stagingSourceArgs, destArgs)
		p.cleanupStaging(ctx, ec, stagingDriver, stagingLocator)
		if writeErr != nil {
			return Result{}, false, writeErr
		}
		return Result{Locators: locs}, true, nil
	}
	return Result{}, false, nil
}

func (p Planner) transferLocally(ctx context.Context, sourceDriver, destDriver locator.Driver, shared args.SharedArguments, sourceArgs args.SourceArguments, destArgs args.DestinationArguments) (Result, error) {
	localData, err := sourceDriver.LocalData(ctx, shared, sourceArgs)
	if err != nil {
		return Result{}, err
	}
	if localData == nil {
		return Result{}, locator.ErrUnsupported{Operation: "local_data"}
	}

	futures, err := destDriver.WriteLocalData(ctx, localData, shared, destArgs)
	if err != nil {
		return Result{}, err
	}
	locs, err := streamutil.ConsumeChanWithParallelism(ctx, shared.MaxStreams(), futures)
	if err != nil {
		return Result{}, err
	}
	return Result{Locators: locs}, nil
}

// cleanupStaging best-effort removes the staged data. It runs after the
// destination's remote write whether or not that write succeeded, and a
// failure here is logged, never returned (spec.md §5, "cleanup is the
// Planner's responsibility... best-effort on failure").
func (p Planner) cleanupStaging(ctx context.Context, ec execctx.Context, stagingDriver locator.Driver, stagingLocator locator.Locator) {
	remover, ok := stagingDriver.(locator.Remover)
	if !ok {
		return
	}
	if err := remover.Remove(ctx, stagingLocator); err != nil {
		ec.Log().WithError(err).WithField("location", stagingLocator.RedactedString()).
			Warn("failed to clean up staged data")
	}
}

// tempTableName renders the planner's temp-table naming convention:
// temp_<basename>_<5-char random alphanumeric> (spec.md §4.7).
func tempTableName(baseName string) string {
	return fmt.Sprintf("temp_%s_%s", baseName, tempstore.RandomTag(5))
}
