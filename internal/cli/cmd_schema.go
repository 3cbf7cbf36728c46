package cli

import (
	"context"
	"fmt"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
)

// cmdSchemaConv implements `schema conv <src_locator> <dst_locator>`
// (spec.md §6), grounded on
// original_source/dbcrossbar/src/cmd/schema/conv.rs: read a schema from one
// locator and write it to another, with no data transfer.
type cmdSchemaConv struct {
	app *App

	IfExists string `long:"if-exists" default:"error" description:"error, overwrite, or append"`

	Positional struct {
		Source string `positional-arg-name:"src-locator" required:"yes"`
		Dest   string `positional-arg-name:"dst-locator" required:"yes"`
	} `positional-args:"yes"`
}

func (c *cmdSchemaConv) Execute(_ []string) error {
	if err := c.app.init(); err != nil {
		return err
	}
	ctx := context.Background()

	sourceLoc, sourceDriver, err := c.app.registry.Resolve(c.Positional.Source)
	if err != nil {
		return fmt.Errorf("resolving source locator %s: %w", c.Positional.Source, err)
	}
	destLoc, destDriver, err := c.app.registry.Resolve(c.Positional.Dest)
	if err != nil {
		return fmt.Errorf("resolving destination locator %s: %w", c.Positional.Dest, err)
	}

	sourceArgs, err := args.UnverifiedSourceArguments{}.Verify(driverNameForScheme(sourceLoc.Scheme()), sourceDriver.Features())
	if err != nil {
		return err
	}
	sch, err := sourceDriver.Schema(ctx, sourceArgs)
	if err != nil {
		return fmt.Errorf("reading schema from %s: %w", c.Positional.Source, err)
	}
	if sch == nil {
		return fmt.Errorf("don't know how to read schema from %s", c.Positional.Source)
	}

	ifExists, err := args.ParseIfExists(c.IfExists)
	if err != nil {
		return err
	}
	destArgs, err := args.UnverifiedDestinationArguments{IfExists: ifExists}.
		Verify(driverNameForScheme(destLoc.Scheme()), destDriver.Features(), columnNames(*sch))
	if err != nil {
		return err
	}

	return destDriver.WriteSchema(ctx, *sch, ifExists, destArgs)
}
