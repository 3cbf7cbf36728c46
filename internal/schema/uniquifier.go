package schema

import (
	"fmt"
	"strings"
)

// Uniquifier turns arbitrary Unicode names into unique, lowercase ASCII
// identifiers, for drivers (e.g. BigQuery schema introspection) whose raw
// field names may collide once normalized. Grounded on
// original_source/dbcrossbarlib/src/uniquifier.rs.
type Uniquifier struct {
	used map[string]struct{}
}

// NewUniquifier returns an empty Uniquifier.
func NewUniquifier() *Uniquifier {
	return &Uniquifier{used: make(map[string]struct{})}
}

// UniqueIDFor returns a unique lowercase ASCII identifier derived from name.
// On collision it appends "_2", "_3", ... up to "_49", and gives up with an
// error once all of those are taken.
func (u *Uniquifier) UniqueIDFor(name string) (string, error) {
	id := nameToLowercaseID(name)
	if _, dup := u.used[id]; !dup {
		u.used[id] = struct{}{}
		return id, nil
	}
	for offset := 2; offset < 50; offset++ {
		alt := fmt.Sprintf("%s_%d", id, offset)
		if _, dup := u.used[alt]; !dup {
			u.used[alt] = struct{}{}
			return alt, nil
		}
	}
	return "", fmt.Errorf("too many name collisions for %q", name)
}

// nameToLowercaseID lowercases ASCII letters, passes through underscores and
// (non-leading) ASCII digits, and maps everything else -- including an
// entirely empty name -- to underscore.
func nameToLowercaseID(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(name))
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z'):
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r - 'A' + 'a')
		case i != 0 && r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
