package cli

import (
	"context"
	"fmt"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
)

// cmdCount implements `count <src_locator>` (spec.md §6), grounded on
// original_source/dbcrossbar/src/cmd/count.rs, including that file's
// `max_streams=1 until local counting is implemented` choice.
type cmdCount struct {
	app *App

	Schema    string   `long:"schema" description:"locator to read the table schema from, instead of the source"`
	Temporary []string `long:"temporary" description:"a temporary storage location usable while counting (repeatable)"`
	FromArg   []string `long:"from-arg" description:"key=value argument passed to the source driver (repeatable)"`
	Where     string   `long:"where" description:"SQL WHERE clause selecting rows to count"`

	Positional struct {
		Source string `positional-arg-name:"locator" required:"yes"`
	} `positional-args:"yes"`
}

func (c *cmdCount) Execute(_ []string) error {
	if err := c.app.init(); err != nil {
		return err
	}
	ctx := context.Background()

	sourceLoc, sourceDriver, err := c.app.registry.Resolve(c.Positional.Source)
	if err != nil {
		return fmt.Errorf("resolving locator %s: %w", c.Positional.Source, err)
	}

	sch, err := resolveSchemaOverride(ctx, c.app.registry, c.Schema)
	if err != nil {
		return err
	}
	if sch == nil {
		probeArgs, err := args.UnverifiedSourceArguments{}.Verify(driverNameForScheme(sourceLoc.Scheme()), sourceDriver.Features())
		if err != nil {
			return err
		}
		sch, err = sourceDriver.Schema(ctx, probeArgs)
		if err != nil {
			return fmt.Errorf("reading schema from %s: %w", c.Positional.Source, err)
		}
		if sch == nil {
			return fmt.Errorf("don't know how to read schema from %s", c.Positional.Source)
		}
	}

	fromArgs, err := args.ParseDriverArguments(c.FromArg)
	if err != nil {
		return err
	}

	shared := args.UnverifiedSharedArguments{
		Schema:      sch,
		Temporaries: c.Temporary,
		MaxStreams:  1,
	}.Verify()

	sourceArgs, err := args.UnverifiedSourceArguments{DriverArgs: fromArgs, Where: c.Where}.
		Verify(driverNameForScheme(sourceLoc.Scheme()), sourceDriver.Features())
	if err != nil {
		return err
	}

	count, err := sourceDriver.Count(ctx, shared, sourceArgs)
	if err != nil {
		return err
	}
	fmt.Println(count)
	return nil
}
