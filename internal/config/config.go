// Package config implements the on-disk `config add|rm` key-value store
// (spec.md §6) plus environment-variable resolution for trace propagation
// (spec.md §6, "Environment"); cloud credentials are not resolved here but
// left to each cloud SDK, which reads its own environment. Modeled on
// go/materialize/config.go's "small struct loaded from a persisted store,
// looked up by name" shape.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPath is the config file location, honoring $XDG_CONFIG_HOME before
// falling back to ~/.config.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "dbcrossbar", "config.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving config directory: %w", err)
	}
	return filepath.Join(home, ".config", "dbcrossbar", "config.json"), nil
}

// Store is the persisted key-value config, serialized as one flat JSON
// object of string values -- every `config add <key> <value>` entry.
type Store struct {
	path   string
	values map[string]string
}

// Load reads the config file at path, treating a missing file as an empty
// store.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Store{path: path, values: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &Store{path: path, values: values}, nil
}

// Get returns the value for key, or ("", false) if unset.
func (s *Store) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Add sets key to value and persists the store.
func (s *Store) Add(key, value string) error {
	s.values[key] = value
	return s.save()
}

// Remove deletes key and persists the store. Removing an absent key is not
// an error.
func (s *Store) Remove(key string) error {
	delete(s.values, key)
	return s.save()
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %s: %w", s.path, err)
	}
	return nil
}

// TraceHeaders resolves the W3C trace-context headers to forward to cloud
// APIs, per spec.md §6: TRACEPARENT/TRACESTATE take precedence over their
// W3C_-prefixed, inherited-from-parent aliases.
func TraceHeaders() map[string]string {
	headers := map[string]string{}
	if v := firstNonEmptyEnv("TRACEPARENT", "W3C_TRACEPARENT"); v != "" {
		headers["traceparent"] = v
	}
	if v := firstNonEmptyEnv("TRACESTATE", "W3C_TRACESTATE"); v != "" {
		headers["tracestate"] = v
	}
	return headers
}

func firstNonEmptyEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
