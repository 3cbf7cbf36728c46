// Package args implements the argument bundles described in spec.md §3/§4.5:
// SharedArguments, SourceArguments, and DestinationArguments, each carried
// through an Unverified -> Verified typestate gated on a driver's declared
// Features, grounded on
// original_source/dbcrossbarlib/src/driver_args.rs and if_exists.rs.
package args

import (
	"fmt"
	"strings"
)

// DriverArguments is an ordered list of key=value pairs passed via
// --from-arg/--to-arg. Individual drivers deserialize them into
// driver-specific structs and must reject unknown keys.
type DriverArguments struct {
	pairs []keyValue
}

type keyValue struct {
	key, value string
}

// ParseDriverArguments parses a list of "key=value" strings, failing on any
// entry without an '='. The key ends at the first '='; any later '=' is
// part of the value.
func ParseDriverArguments(raw []string) (DriverArguments, error) {
	pairs := make([]keyValue, 0, len(raw))
	for _, arg := range raw {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return DriverArguments{}, fmt.Errorf("cannot parse driver argument: %q", arg)
		}
		pairs = append(pairs, keyValue{key: k, value: v})
	}
	return DriverArguments{pairs: pairs}, nil
}

// IsEmpty reports whether no driver arguments were given.
func (d DriverArguments) IsEmpty() bool {
	return len(d.pairs) == 0
}

// Iter calls fn for each key/value pair, in the order they were given.
func (d DriverArguments) Iter(fn func(key, value string)) {
	for _, kv := range d.pairs {
		fn(kv.key, kv.value)
	}
}

// Lookup returns the value for key, and whether it was present. If key
// appears more than once, the first occurrence wins.
func (d DriverArguments) Lookup(key string) (string, bool) {
	for _, kv := range d.pairs {
		if kv.key == key {
			return kv.value, true
		}
	}
	return "", false
}

// Keys returns every key present, for "unknown key" rejection by a strict
// driver-argument parser.
func (d DriverArguments) Keys() []string {
	out := make([]string, len(d.pairs))
	for i, kv := range d.pairs {
		out[i] = kv.key
	}
	return out
}
