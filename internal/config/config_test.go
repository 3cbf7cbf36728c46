package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := s.Get("anything"); ok {
		t.Fatal("expected no values in a missing-file store")
	}
}

func TestAddPersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Add("aws_access_key_id", "AKIA..."); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load (reload): %v", err)
	}
	v, ok := reloaded.Get("aws_access_key_id")
	if !ok || v != "AKIA..." {
		t.Fatalf("Get after reload = %q, %v", v, ok)
	}
}

func TestRemoveDeletesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Add("k", "v"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Remove("k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected key to be gone after Remove")
	}
}

func TestRemoveAbsentKeyIsNotAnError(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Remove("never-added"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestTraceHeadersPrefersUnprefixedOverW3CAlias(t *testing.T) {
	t.Setenv("TRACEPARENT", "00-trace-01")
	t.Setenv("W3C_TRACEPARENT", "00-other-01")
	headers := TraceHeaders()
	if headers["traceparent"] != "00-trace-01" {
		t.Fatalf("traceparent = %q", headers["traceparent"])
	}
}

func TestTraceHeadersFallsBackToW3CAlias(t *testing.T) {
	t.Setenv("TRACEPARENT", "")
	t.Setenv("TRACESTATE", "")
	t.Setenv("W3C_TRACEPARENT", "00-inherited-01")
	headers := TraceHeaders()
	if headers["traceparent"] != "00-inherited-01" {
		t.Fatalf("traceparent = %q", headers["traceparent"])
	}
}
