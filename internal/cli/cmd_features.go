package cli

import (
	"fmt"
	"sort"

	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
)

// allFeatures lists every capability bit in declaration order, for printing
// a driver's supported feature set.
var allFeatures = []caps.Feature{
	caps.FeatureSchema,
	caps.FeatureWriteSchema,
	caps.FeatureLocalData,
	caps.FeatureWriteLocalData,
	caps.FeatureWriteRemoteData,
	caps.FeatureCount,
	caps.FeatureWhereClause,
	caps.FeatureTemporaryStorage,
	caps.FeatureSchemaArg,
	caps.FeatureFromArg,
	caps.FeatureToArg,
	caps.FeatureIfExistsError,
	caps.FeatureIfExistsOverwrite,
	caps.FeatureIfExistsAppend,
	caps.FeatureIfExistsUpsert,
}

// cmdFeatures implements `features [<driver-name>]` (spec.md §6), grounded
// on original_source/dbcrossbar/src/cmd/features.rs.
type cmdFeatures struct {
	app *App

	Positional struct {
		Driver string `positional-arg-name:"driver-name"`
	} `positional-args:"yes"`
}

func (c *cmdFeatures) Execute(_ []string) error {
	if err := c.app.init(); err != nil {
		return err
	}

	if c.Positional.Driver != "" {
		return c.printOne(c.Positional.Driver)
	}

	schemes := c.app.registry.Schemes()
	sort.Strings(schemes)
	fmt.Println("Supported drivers:")
	for _, scheme := range schemes {
		fmt.Printf("- %s\n", driverNameForScheme(scheme))
	}
	fmt.Println()
	fmt.Println("Use `dbcrossbar features $DRIVER` to list the features supported by a driver.")
	return nil
}

func (c *cmdFeatures) printOne(name string) error {
	scheme := name + ":"
	features, err := probeFeatures(c.app.registry, scheme)
	if err != nil {
		return fmt.Errorf("unknown driver %q: %w", name, err)
	}
	fmt.Printf("%s features:\n", name)
	for _, feature := range allFeatures {
		if features.Has(feature) {
			fmt.Printf("- %s\n", feature.Name())
		}
	}
	return nil
}
