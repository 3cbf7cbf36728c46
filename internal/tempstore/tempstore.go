// Package tempstore implements the temporary-storage resolver (spec.md
// §4.6), grounded on
// original_source/dbcrossbarlib/src/temporary_storage.rs.
package tempstore

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Storage holds the configured list of staging location URIs, in the order
// they should be tried.
type Storage struct {
	locations []string
}

// New returns a Storage wrapping locations, in priority order. Locations
// passed via --temporary on the command line should come first, with any
// locations from the persisted configuration appended after them so that
// the command line can override the configuration, per the original
// `with_config` contract.
func New(locations ...string) Storage {
	out := make([]string, len(locations))
	copy(out, locations)
	return Storage{locations: out}
}

// NoTemporaryStorageForScheme is returned by FindScheme when no configured
// location matches the required scheme. It names the scheme and, when
// known, the driver pair that required it, so the user knows exactly what
// to pass via --temporary.
type NoTemporaryStorageForScheme struct {
	Scheme       string
	SourceDriver string
	DestDriver   string
}

func (e NoTemporaryStorageForScheme) Error() string {
	if e.SourceDriver != "" && e.DestDriver != "" {
		return fmt.Sprintf(
			"no temporary storage location configured for scheme %q, which is required to transfer from %q to %q (pass --temporary)",
			e.Scheme, e.SourceDriver, e.DestDriver)
	}
	return fmt.Sprintf("no temporary storage location configured for scheme %q (pass --temporary)", e.Scheme)
}

// FindScheme returns the first configured location with the given scheme
// (which must end in ':'), or a NoTemporaryStorageForScheme error naming
// source and dest for a precise diagnostic.
func (s Storage) FindScheme(scheme, sourceDriver, destDriver string) (string, error) {
	if !strings.HasSuffix(scheme, ":") {
		panic(fmt.Sprintf("tempstore: scheme %q must end in ':'", scheme))
	}
	for _, loc := range s.locations {
		if strings.HasPrefix(loc, scheme) {
			return loc, nil
		}
	}
	return "", NoTemporaryStorageForScheme{Scheme: scheme, SourceDriver: sourceDriver, DestDriver: destDriver}
}

// randomTagAlphabet mirrors rand::distributions::Alphanumeric's character
// set (mixed-case letters and digits).
const randomTagAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomTag returns a random alphanumeric tag of length n, for use in
// temporary directory and temp-table names.
func RandomTag(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on a supported platform does not fail in
		// practice; if it ever does, there is no safe fallback for a
		// value used to name temporary storage.
		panic(fmt.Sprintf("tempstore: reading random bytes: %v", err))
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = randomTagAlphabet[int(b)%len(randomTagAlphabet)]
	}
	return string(out)
}
