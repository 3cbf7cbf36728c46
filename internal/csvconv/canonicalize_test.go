package csvconv

import (
	"testing"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/stretchr/testify/require"

	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
)

// TestCanonicalizeJSONPreservesSemanticEquality re-whitespaces and
// re-orders the keys of a Json-column value and checks, via jsonpatch.Equal,
// that canonicalizeJSON's output still represents the same document as the
// messy input it was derived from (spec.md §4.8).
func TestCanonicalizeJSONPreservesSemanticEquality(t *testing.T) {
	messy := []byte(`{
		"name"  :  "left-widget",
		"tags": ["red", "small"],
		"weight_oz": 12.5
	}`)

	got, err := canonicalizeJSON(messy)
	require.NoError(t, err)
	require.True(t, jsonpatch.Equal([]byte(got), messy), "canonicalized form must equal its messy input")

	reordered := []byte(`{"weight_oz": 12.5, "tags": ["red","small"], "name": "left-widget"}`)
	require.True(t, jsonpatch.Equal([]byte(got), reordered), "canonicalized form must equal a reordered document")

	different := []byte(`{"name": "right-widget", "tags": ["red","small"], "weight_oz": 12.5}`)
	require.False(t, jsonpatch.Equal([]byte(got), different), "canonicalized form must not equal a genuinely different document")
}

// TestEncodeValueCanonicalizesJsonColumn checks that EncodeValue runs a Json
// column's string value through the same canonicalization, so two
// differently-formatted-but-equal documents produce identical CSV text.
func TestEncodeValueCanonicalizesJsonColumn(t *testing.T) {
	a, err := EncodeValue(schema.Json, `{"b": 2, "a": 1}`)
	require.NoError(t, err)
	b, err := EncodeValue(schema.Json, "{\n  \"a\": 1,\n  \"b\": 2\n}")
	require.NoError(t, err)

	require.Equal(t, a.Text, b.Text, "two semantically equal documents must canonicalize identically")
	require.True(t, jsonpatch.Equal([]byte(a.Text), []byte(`{"a": 1, "b": 2}`)))
}
