package planner

import "strings"

// cloud identifies a cloud provider, for staging-scheme affinity (spec.md
// §4.7), grounded on original_source/dbcrossbarlib/src/planner/clouds.rs.
type cloud int

const (
	cloudAws cloud = iota
	cloudGCloud
)

func (c cloud) String() string {
	switch c {
	case cloudAws:
		return "aws"
	case cloudGCloud:
		return "gcloud"
	default:
		return "unknown"
	}
}

// stagingScheme is the locator scheme prefix (with trailing ':') used to
// stage data in the given cloud.
func (c cloud) stagingScheme() string {
	switch c {
	case cloudAws:
		return "s3:"
	case cloudGCloud:
		return "gs:"
	default:
		return ""
	}
}

// driverClouds maps a driver name to the clouds it is native to, in
// preference order. A driver with no listed affinity can stage through any
// scheme the temporary-storage resolver offers.
var driverClouds = map[string][]cloud{
	"bigquery": {cloudGCloud},
	"gs":       {cloudGCloud},
	"redshift": {cloudAws},
	"trino":    {cloudAws},
	"s3":       {cloudAws},
}

// preferredStagingSchemes returns the staging schemes to try, in order, for
// a transfer between the named source and destination drivers: schemes
// native to the destination first, then the source, then every other known
// cloud, so that a driver pair sharing a native cloud (BigQuery<->GCS,
// Redshift/Trino<->S3) stages through it before falling back to a less
// natural hop.
func preferredStagingSchemes(sourceDriver, destDriver string) []string {
	seen := make(map[string]struct{}, 2)
	var out []string
	add := func(cs []cloud) {
		for _, c := range cs {
			s := c.stagingScheme()
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	add(driverClouds[destDriver])
	add(driverClouds[sourceDriver])
	add([]cloud{cloudGCloud, cloudAws})
	return out
}

// driverNameFromScheme extracts the bare scheme name (no ':') for use in
// driverClouds lookups and diagnostics, e.g. "s3:" -> "s3".
func driverNameFromScheme(scheme string) string {
	return strings.TrimSuffix(scheme, ":")
}
