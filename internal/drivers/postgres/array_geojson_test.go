package postgres

import (
	"testing"

	"github.com/dbcrossbar/dbcrossbar-go/internal/csvconv"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
)

func TestColumnExportExprWrapsPlainColumn(t *testing.T) {
	sch := schema.Schema{Table: schema.Table{Columns: []schema.Column{
		{Name: "id", DataType: schema.Int64},
	}}}
	expr, err := columnExportExpr(sch.Table.Columns[0], sch)
	if err != nil {
		t.Fatalf("columnExportExpr: %v", err)
	}
	if expr != `"id"` {
		t.Fatalf("expr = %q", expr)
	}
}

func TestColumnExportExprWrapsNativeJSONArray(t *testing.T) {
	sch := schema.Schema{Table: schema.Table{Columns: []schema.Column{
		{Name: "ratings", DataType: schema.ArrayType{Element: schema.Int32}},
	}}}
	expr, err := columnExportExpr(sch.Table.Columns[0], sch)
	if err != nil {
		t.Fatalf("columnExportExpr: %v", err)
	}
	want := `array_to_json("ratings")::text AS "ratings"`
	if expr != want {
		t.Fatalf("expr = %q, want %q", expr, want)
	}
}

func TestColumnExportExprWrapsBigintArrayWithTextCast(t *testing.T) {
	sch := schema.Schema{Table: schema.Table{Columns: []schema.Column{
		{Name: "ids", DataType: schema.ArrayType{Element: schema.Int64}},
	}}}
	expr, err := columnExportExpr(sch.Table.Columns[0], sch)
	if err != nil {
		t.Fatalf("columnExportExpr: %v", err)
	}
	want := `(SELECT array_to_json(array_agg(elem::text)) FROM unnest("ids") elem) AS "ids"`
	if expr != want {
		t.Fatalf("expr = %q, want %q", expr, want)
	}
}

func TestColumnExportExprWrapsTextArrayWithTextCast(t *testing.T) {
	sch := schema.Schema{Table: schema.Table{Columns: []schema.Column{
		{Name: "tags", DataType: schema.ArrayType{Element: schema.Text}},
	}}}
	expr, err := columnExportExpr(sch.Table.Columns[0], sch)
	if err != nil {
		t.Fatalf("columnExportExpr: %v", err)
	}
	want := `(SELECT array_to_json(array_agg(elem::text)) FROM unnest("tags") elem) AS "tags"`
	if expr != want {
		t.Fatalf("expr = %q, want %q", expr, want)
	}
}

func TestColumnExportExprWrapsGeometry(t *testing.T) {
	sch := schema.Schema{Table: schema.Table{Columns: []schema.Column{
		{Name: "location", DataType: schema.GeoJsonType{SRID: 4326}},
	}}}
	expr, err := columnExportExpr(sch.Table.Columns[0], sch)
	if err != nil {
		t.Fatalf("columnExportExpr: %v", err)
	}
	want := `ST_AsGeoJSON(ST_Transform("location", 4326)) AS "location"`
	if expr != want {
		t.Fatalf("expr = %q, want %q", expr, want)
	}
}

func TestGeoJSONToEWKTPoint(t *testing.T) {
	ewkt, err := geoJSONToEWKT([]byte(`{"type":"Point","coordinates":[1,2]}`), 4326)
	if err != nil {
		t.Fatalf("geoJSONToEWKT: %v", err)
	}
	if ewkt != "SRID=4326;POINT(1 2)" {
		t.Fatalf("ewkt = %q", ewkt)
	}
}

func TestGeoJSONToEWKTPolygon(t *testing.T) {
	ewkt, err := geoJSONToEWKT([]byte(
		`{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,4],[0,4],[0,0]]]}`), 4326)
	if err != nil {
		t.Fatalf("geoJSONToEWKT: %v", err)
	}
	want := "SRID=4326;POLYGON((0 0,4 0,4 4,0 4,0 0))"
	if ewkt != want {
		t.Fatalf("ewkt = %q, want %q", ewkt, want)
	}
}

func TestGeoJSONToEWKTRejectsUnknownType(t *testing.T) {
	_, err := geoJSONToEWKT([]byte(`{"type":"Sphere","coordinates":[1,2]}`), 4326)
	if err == nil {
		t.Fatal("expected an error for an unsupported geometry type")
	}
}

// TestArrayColumnExportAndImportRoundTrip simulates, end to end, the text
// PostgreSQL's array_to_json would produce for the export side
// (columnExportExpr) being canonicalized and decoded, and the resulting Go
// value being re-encoded for the COPY-based import side (writeStream),
// without requiring a live database connection.
func TestArrayColumnExportAndImportRoundTrip(t *testing.T) {
	dt := schema.ArrayType{Element: schema.Int32}

	// What PostgreSQL's array_to_json("ratings")::text would send back for
	// {3, 4, 5} -- a native (unquoted) JSON number array, per
	// arrayElementNeedsTextCast's classification for Int32.
	exported := `[3,4,5]`

	canonical, err := csvconv.CanonicalizeJSONText(exported)
	if err != nil {
		t.Fatalf("CanonicalizeJSONText: %v", err)
	}
	field := csvconv.Field{Text: canonical, Quoted: true}

	decoded, err := csvconv.DecodeValue(dt, field)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	elems := decoded.([]interface{})
	if len(elems) != 3 || elems[0] != int32(3) || elems[1] != int32(4) || elems[2] != int32(5) {
		t.Fatalf("unexpected decoded array: %v", elems)
	}

	// Re-encoding for import must produce the same JSON text the export
	// side sent, so round-tripping a value through both directions of the
	// postgres: driver is lossless.
	reEncoded, err := csvconv.EncodeValue(dt, decoded)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	if reEncoded.Text != canonical {
		t.Fatalf("reEncoded.Text = %q, want %q", reEncoded.Text, canonical)
	}
}

// TestBigintArrayColumnExportAndImportRoundTrip exercises the doubly-wrapped
// bigint array path, where array_to_json(array_agg(elem::text)) sends every
// element back as a JSON string even for values well within int32 range.
func TestBigintArrayColumnExportAndImportRoundTrip(t *testing.T) {
	dt := schema.ArrayType{Element: schema.Int64}
	exported := `["1","9007199254740993"]`

	field := csvconv.Field{Text: exported, Quoted: true}
	decoded, err := csvconv.DecodeValue(dt, field)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	elems := decoded.([]interface{})
	if elems[0] != int64(1) || elems[1] != int64(9007199254740993) {
		t.Fatalf("unexpected decoded array: %v", elems)
	}
}

// TestGeometryColumnExportAndImportRoundTrip simulates the text
// ST_AsGeoJSON(ST_Transform(...)) would produce for the export side being
// canonicalized, decoded, and then converted to the EWKT literal the import
// side binds into a COPY stream.
func TestGeometryColumnExportAndImportRoundTrip(t *testing.T) {
	dt := schema.GeoJsonType{SRID: 4326}
	exported := `{"type":"Point","coordinates":[1,2]}`

	canonical, err := csvconv.CanonicalizeJSONText(exported)
	if err != nil {
		t.Fatalf("CanonicalizeJSONText: %v", err)
	}
	field := csvconv.Field{Text: canonical, Quoted: true}

	if _, err := csvconv.DecodeValue(dt, field); err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}

	ewkt, err := geoJSONToEWKT([]byte(canonical), dt.SRID)
	if err != nil {
		t.Fatalf("geoJSONToEWKT: %v", err)
	}
	if ewkt != "SRID=4326;POINT(1 2)" {
		t.Fatalf("ewkt = %q", ewkt)
	}
}
