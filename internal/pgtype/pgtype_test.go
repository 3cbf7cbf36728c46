package pgtype

import "testing"

func TestParseScalarIsCaseInsensitiveAndAcceptsSynonyms(t *testing.T) {
	for _, literal := range []string{"BIGINT", "bigint", "int8", " bigint "} {
		dt, err := ParseScalar(literal)
		if err != nil {
			t.Fatalf("ParseScalar(%q): %v", literal, err)
		}
		if dt.String() != "int64" {
			t.Fatalf("ParseScalar(%q) = %v", literal, dt)
		}
	}
}

func TestParseScalarRejectsUnknownType(t *testing.T) {
	if _, err := ParseScalar("frobnitz"); err == nil {
		t.Fatal("expected an error for an unknown type literal")
	}
}

func TestQuoteDoublesSingleQuotes(t *testing.T) {
	cases := map[string]string{
		"":        "''",
		"a":       "'a'",
		"'":       "''''",
		"'hello'": "'''hello'''",
	}
	for input, want := range cases {
		if got := Quote(input); got != want {
			t.Fatalf("Quote(%q) = %q, want %q", input, got, want)
		}
	}
}
