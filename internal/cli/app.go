package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/config"
	"github.com/dbcrossbar/dbcrossbar-go/internal/execctx"
	"github.com/dbcrossbar/dbcrossbar-go/internal/locator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/logging"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
)

// App is the shared state every command's Execute method needs: the driver
// registry, the persisted config store, and the base logger. It is built
// lazily on first use, so flag parsing (which always runs before Execute)
// can still fail fast without touching disk or the environment.
type App struct {
	Options *GlobalOptions

	registry *locator.Registry
	cfg      *config.Store
	log      *logrus.Logger
}

func (a *App) init() error {
	if a.registry != nil {
		return nil
	}
	a.registry = buildRegistry()
	a.log = logging.New(logging.Config{Verbose: a.Options.Verbose, Format: a.Options.LogFormat})

	path, err := config.DefaultPath()
	if err != nil {
		return fmt.Errorf("resolving configuration file location: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// execContext builds a fresh execution context rooted at the base logger,
// plus the wait function that blocks until every background worker the
// command spawns (directly, or transitively via the planner) finishes.
func (a *App) execContext() (execctx.Context, func(context.Context) error) {
	return execctx.Create(a.log)
}

// driverNameForScheme strips the trailing ':' from a registered scheme to
// recover the bare driver name VerificationError and planner.Request expect
// in diagnostics (spec.md §7).
func driverNameForScheme(scheme string) string {
	return strings.TrimSuffix(scheme, ":")
}

// resolveSchemaOverride resolves a --schema=<locator> flag value, if any,
// by reading that locator's own Schema(), grounded on
// original_source/dbcrossbar/src/cmd/cp.rs's
// `opt.schema.as_ref().unwrap_or(&opt.from_locator)`.
func resolveSchemaOverride(ctx context.Context, registry *locator.Registry, raw string) (*schema.Schema, error) {
	if raw == "" {
		return nil, nil
	}
	loc, driver, err := registry.Resolve(raw)
	if err != nil {
		return nil, fmt.Errorf("resolving --schema=%s: %w", raw, err)
	}
	sourceArgs, err := args.UnverifiedSourceArguments{}.Verify(driverNameForScheme(loc.Scheme()), driver.Features())
	if err != nil {
		return nil, err
	}
	sch, err := driver.Schema(ctx, sourceArgs)
	if err != nil {
		return nil, fmt.Errorf("reading --schema=%s: %w", raw, err)
	}
	if sch == nil {
		return nil, fmt.Errorf("--schema=%s does not provide a schema", raw)
	}
	return sch, nil
}

// columnNames extracts a schema's column names in order, for the upsert-key
// validation Verify performs on DestinationArguments.
func columnNames(sch schema.Schema) []string {
	names := make([]string, len(sch.Table.Columns))
	for i, c := range sch.Table.Columns {
		names[i] = c.Name
	}
	return names
}

// destBaseName extracts a short, SQL- and filesystem-safe name from a
// destination locator string, for the planner's temp_<name>_<tag> staging
// table convention (spec.md §4.7).
func destBaseName(rawLocator string) string {
	s := rawLocator
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimRight(s, "/")
		if i := strings.LastIndexByte(s, '/'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(s, filepath.Ext(s))
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "table"
	}
	return b.String()
}
