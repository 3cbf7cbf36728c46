package logging

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	log := New(Config{})
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want Info", log.GetLevel())
	}
}

func TestNewVerboseSetsDebugLevel(t *testing.T) {
	log := New(Config{Verbose: true})
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v, want Debug", log.GetLevel())
	}
}

func TestNewJSONFormatSelectsJSONFormatter(t *testing.T) {
	log := New(Config{Format: "json"})
	if _, ok := log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("formatter = %T, want *logrus.JSONFormatter", log.Formatter)
	}
}

func TestFormatErrorWalksCauseChain(t *testing.T) {
	root := fmt.Errorf("connection refused")
	wrapped := fmt.Errorf("querying widgets: %w", root)
	out := FormatError(wrapped)
	if !strings.Contains(out, "querying widgets") {
		t.Fatalf("missing top-level message: %q", out)
	}
	if !strings.Contains(out, "caused by: connection refused") {
		t.Fatalf("missing cause chain: %q", out)
	}
}
