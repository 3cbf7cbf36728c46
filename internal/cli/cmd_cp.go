package cli

import (
	"context"
	"fmt"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/planner"
	"github.com/dbcrossbar/dbcrossbar-go/internal/tempstore"
)

// cmdCp implements `cp <src_locator> <dst_locator>` (spec.md §6), grounded
// on original_source/dbcrossbar/src/cmd/cp.rs, generalized from its single
// `--schema` flag to the full argument surface spec.md §6 names.
type cmdCp struct {
	app *App

	Schema                string   `long:"schema" description:"locator to read the table schema from, instead of the source"`
	Temporary             []string `long:"temporary" description:"a temporary storage location usable during the transfer (repeatable)"`
	FromArg               []string `long:"from-arg" description:"key=value argument passed to the source driver (repeatable)"`
	ToArg                 []string `long:"to-arg" description:"key=value argument passed to the destination driver (repeatable)"`
	Where                 string   `long:"where" description:"SQL WHERE clause selecting source rows"`
	IfExists              string   `long:"if-exists" default:"error" description:"error, overwrite, append, or upsert-on:col1,col2"`
	DisplayOutputLocators bool     `long:"display-output-locators" description:"print the locator(s) the data was written to"`
	MaxStreams            int      `long:"max-streams" default:"4" description:"maximum number of sub-streams transferred concurrently"`

	Positional struct {
		Source string `positional-arg-name:"src-locator" required:"yes"`
		Dest   string `positional-arg-name:"dst-locator" required:"yes"`
	} `positional-args:"yes"`
}

func (c *cmdCp) Execute(_ []string) error {
	if err := c.app.init(); err != nil {
		return err
	}
	ctx := context.Background()
	ec, wait := c.app.execContext()

	sourceLoc, sourceDriver, err := c.app.registry.Resolve(c.Positional.Source)
	if err != nil {
		return fmt.Errorf("resolving source locator %s: %w", c.Positional.Source, err)
	}
	destLoc, destDriver, err := c.app.registry.Resolve(c.Positional.Dest)
	if err != nil {
		return fmt.Errorf("resolving destination locator %s: %w", c.Positional.Dest, err)
	}

	schemaOverride, err := resolveSchemaOverride(ctx, c.app.registry, c.Schema)
	if err != nil {
		return err
	}

	fromArgs, err := args.ParseDriverArguments(c.FromArg)
	if err != nil {
		return err
	}
	toArgs, err := args.ParseDriverArguments(c.ToArg)
	if err != nil {
		return err
	}
	ifExists, err := args.ParseIfExists(c.IfExists)
	if err != nil {
		return err
	}

	req := planner.Request{
		SourceLocator:    sourceLoc,
		SourceDriver:     sourceDriver,
		SourceDriverName: driverNameForScheme(sourceLoc.Scheme()),

		DestLocator:    destLoc,
		DestDriver:     destDriver,
		DestDriverName: driverNameForScheme(destLoc.Scheme()),
		DestBaseName:   destBaseName(c.Positional.Dest),

		Shared: args.UnverifiedSharedArguments{
			Schema:      schemaOverride,
			Temporaries: c.Temporary,
			MaxStreams:  c.MaxStreams,
		},
		Source:      args.UnverifiedSourceArguments{DriverArgs: fromArgs, Where: c.Where},
		Dest:        args.UnverifiedDestinationArguments{DriverArgs: toArgs, IfExists: ifExists},
		Temporaries: tempstore.New(c.Temporary...),
	}

	result, err := planner.New(c.app.registry).Plan(ctx, ec, req)
	if err != nil {
		return err
	}
	if err := wait(ctx); err != nil {
		return err
	}

	if c.DisplayOutputLocators {
		for _, loc := range result.Locators {
			fmt.Println(loc.String())
		}
	}
	return nil
}
