// Package cli wires the dbcrossbar command surface (spec.md §6) on top of
// the driver registry, planner, and argument bundles: the Go analog of
// original_source/dbcrossbar/src/cmd/*.rs, restructured the way
// go/flowctl/main.go builds its command tree out of tagged option structs.
package cli

import (
	"fmt"

	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/bigquery"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/csv"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/dbschema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/gs"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/pgsql"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/postgres"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/redshift"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/s3"
	"github.com/dbcrossbar/dbcrossbar-go/internal/drivers/trino"
	"github.com/dbcrossbar/dbcrossbar-go/internal/locator"
)

// buildRegistry registers every driver's scheme. This is the one place in
// the module that imports every driver package, the Go analog of
// all_drivers()/find_driver() in original_source/dbcrossbarlib/src/drivers.
func buildRegistry() *locator.Registry {
	r := locator.NewRegistry()
	r.Register(postgres.Scheme, postgres.Factory)
	r.Register(redshift.Scheme, redshift.Factory)
	r.Register(s3.Scheme, s3.Factory)
	r.Register(gs.Scheme, gs.Factory)
	r.Register(bigquery.Scheme, bigquery.Factory)
	r.Register(trino.Scheme, trino.Factory)
	r.Register(csv.Scheme, csv.Factory)
	r.Register(dbschema.Scheme, dbschema.Factory)
	r.Register(pgsql.Scheme, pgsql.Factory)
	return r
}

// driverProbeTails gives each driver a syntactically valid but otherwise
// meaningless locator tail, used only to construct a Driver instance so the
// `features` command can call Features() without naming a real table. No
// factory here opens a connection or touches a filesystem during parsing,
// so probing is safe to do unconditionally.
var driverProbeTails = map[string]string{
	postgres.Scheme: "//localhost/db#table",
	redshift.Scheme: "//localhost/db#table",
	s3.Scheme:       "//bucket/",
	gs.Scheme:       "//bucket/",
	bigquery.Scheme: "project:dataset.table",
	trino.Scheme:    "//localhost:8080/catalog/schema/table",
	csv.Scheme:      "-",
	dbschema.Scheme: "-",
	pgsql.Scheme:    "-",
}

// probeFeatures resolves scheme's registered driver against its probe tail
// and returns the Features it declares.
func probeFeatures(r *locator.Registry, scheme string) (caps.Features, error) {
	tail, ok := driverProbeTails[scheme]
	if !ok {
		return 0, fmt.Errorf("no probe locator registered for scheme %q", scheme)
	}
	_, driver, err := r.Resolve(scheme + tail)
	if err != nil {
		return 0, err
	}
	return driver.Features(), nil
}
