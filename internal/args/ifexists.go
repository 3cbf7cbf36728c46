package args

import (
	"fmt"
	"strings"
)

// IfExistsKind is the destination collision policy (spec.md §4.4).
type IfExistsKind int

const (
	// IfExistsError rejects the transfer if the destination already
	// exists. This is the default.
	IfExistsError IfExistsKind = iota
	// IfExistsOverwrite replaces any existing destination data.
	IfExistsOverwrite
	// IfExistsAppend adds to any existing destination data.
	IfExistsAppend
	// IfExistsUpsert merges on the key columns named in IfExists.UpsertKeys.
	IfExistsUpsert
)

func (k IfExistsKind) String() string {
	switch k {
	case IfExistsError:
		return "error"
	case IfExistsOverwrite:
		return "overwrite"
	case IfExistsAppend:
		return "append"
	case IfExistsUpsert:
		return "upsert-on"
	default:
		return "unknown"
	}
}

// IfExists is the parsed --if-exists value.
type IfExists struct {
	Kind       IfExistsKind
	UpsertKeys []string
}

// String renders IfExists back into its CLI spelling.
func (e IfExists) String() string {
	if e.Kind == IfExistsUpsert {
		return "upsert-on:" + strings.Join(e.UpsertKeys, ",")
	}
	return e.Kind.String()
}

// ParseIfExists parses the --if-exists flag value: "error", "overwrite",
// "append", or "upsert-on:col1,col2,...".
func ParseIfExists(s string) (IfExists, error) {
	switch {
	case s == "error" || s == "":
		return IfExists{Kind: IfExistsError}, nil
	case s == "overwrite":
		return IfExists{Kind: IfExistsOverwrite}, nil
	case s == "append":
		return IfExists{Kind: IfExistsAppend}, nil
	case strings.HasPrefix(s, "upsert-on:"):
		keys := strings.Split(strings.TrimPrefix(s, "upsert-on:"), ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
			if keys[i] == "" {
				return IfExists{}, fmt.Errorf("upsert-on requires at least one non-empty column name, got %q", s)
			}
		}
		return IfExists{Kind: IfExistsUpsert, UpsertKeys: keys}, nil
	default:
		return IfExists{}, fmt.Errorf("invalid --if-exists value %q", s)
	}
}

// Default returns the default policy, IfExistsError.
func Default() IfExists {
	return IfExists{Kind: IfExistsError}
}
