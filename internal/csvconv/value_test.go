package csvconv

import (
	"testing"
	"time"

	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
)

func roundTrip(t *testing.T, dt schema.DataType, v interface{}) interface{} {
	t.Helper()
	field, err := EncodeValue(dt, v)
	if err != nil {
		t.Fatalf("EncodeValue(%v): %v", v, err)
	}
	got, err := DecodeValue(dt, field)
	if err != nil {
		t.Fatalf("DecodeValue(%q): %v", field.Text, err)
	}
	return got
}

func TestPrimitiveRoundTrip(t *testing.T) {
	if got := roundTrip(t, schema.Bool, true); got != true {
		t.Errorf("bool round trip: %v", got)
	}
	if got := roundTrip(t, schema.Int64, int64(-42)); got != int64(-42) {
		t.Errorf("int64 round trip: %v", got)
	}
	if got := roundTrip(t, schema.Float64, 3.14159265); got != 3.14159265 {
		t.Errorf("float64 round trip: %v", got)
	}
	if got := roundTrip(t, schema.Text, "hello, world"); got != "hello, world" {
		t.Errorf("text round trip: %v", got)
	}
	if got := roundTrip(t, schema.Decimal, "123456789012345678901234.56"); got != "123456789012345678901234.56" {
		t.Errorf("decimal round trip: %v", got)
	}
}

func TestFloat32RoundTripsExactlyWithinRange(t *testing.T) {
	want := float32(1.5)
	if got := roundTrip(t, schema.Float32, want); got != want {
		t.Errorf("float32 round trip: got %v, want %v", got, want)
	}
}

func TestNullVsEmptyStringDistinction(t *testing.T) {
	nullField, err := EncodeValue(schema.Text, nil)
	if err != nil {
		t.Fatalf("EncodeValue(nil): %v", err)
	}
	if nullField.Quoted || nullField.Text != "" {
		t.Fatalf("NULL field should be unquoted empty, got %+v", nullField)
	}

	emptyField, err := EncodeValue(schema.Text, "")
	if err != nil {
		t.Fatalf("EncodeValue(\"\"): %v", err)
	}
	if !emptyField.Quoted {
		t.Fatalf("empty string field must be quoted to distinguish from NULL, got %+v", emptyField)
	}

	row := EncodeRow([]Field{nullField, emptyField})
	fields, err := DecodeRow(row)
	if err != nil {
		t.Fatalf("DecodeRow(%q): %v", row, err)
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}

	nullVal, err := DecodeValue(schema.Text, fields[0])
	if err != nil || nullVal != nil {
		t.Fatalf("expected NULL, got %v, %v", nullVal, err)
	}
	emptyVal, err := DecodeValue(schema.Text, fields[1])
	if err != nil || emptyVal != "" {
		t.Fatalf("expected empty string, got %v, %v", emptyVal, err)
	}
}

func TestTimestampWithTimeZoneNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	in := time.Date(2024, 3, 1, 9, 30, 0, 0, loc)

	field, err := EncodeValue(schema.TimestampWithTimeZone, in)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	if field.Text[len(field.Text)-1] != 'Z' {
		t.Fatalf("expected a Z-suffixed timestamp, got %q", field.Text)
	}

	got, err := DecodeValue(schema.TimestampWithTimeZone, field)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	gotTime := got.(time.Time)
	if !gotTime.Equal(in) {
		t.Fatalf("timestamp did not round trip: got %v, want %v", gotTime, in)
	}
}

func TestLeapSecondRejected(t *testing.T) {
	_, err := DecodeValue(schema.TimestampWithoutTimeZone, Field{Text: "2024-06-30T23:59:60", Quoted: false})
	if _, ok := err.(LeapSecondsNotSupportedError); !ok {
		t.Fatalf("expected LeapSecondsNotSupportedError, got %v", err)
	}
}

func TestInt64ArrayElementsStringifiedAsJSON(t *testing.T) {
	dt := schema.ArrayType{Element: schema.Int64}
	in := []interface{}{int64(1), int64(9007199254740993), nil}

	field, err := EncodeValue(dt, in)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	if field.Text != `["1","9007199254740993",null]` {
		t.Fatalf("unexpected JSON: %s", field.Text)
	}

	got, err := DecodeValue(dt, field)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	arr := got.([]interface{})
	if arr[0] != int64(1) || arr[1] != int64(9007199254740993) || arr[2] != nil {
		t.Fatalf("unexpected decoded array: %v", arr)
	}
}

func TestFloat64ArrayElementsStayJSONNumbers(t *testing.T) {
	dt := schema.ArrayType{Element: schema.Float64}
	in := []interface{}{1.5, -2.25, nil}

	field, err := EncodeValue(dt, in)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	if field.Text != `[1.5,-2.25,null]` {
		t.Fatalf("unexpected JSON: %s", field.Text)
	}

	got, err := DecodeValue(dt, field)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	arr := got.([]interface{})
	if arr[0] != 1.5 || arr[1] != -2.25 || arr[2] != nil {
		t.Fatalf("unexpected decoded array: %v", arr)
	}
}

func TestBoolArrayElementsRoundTripAsJSONBooleans(t *testing.T) {
	dt := schema.ArrayType{Element: schema.Bool}
	in := []interface{}{true, false, nil}

	field, err := EncodeValue(dt, in)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	if field.Text != `[true,false,null]` {
		t.Fatalf("unexpected JSON: %s", field.Text)
	}

	got, err := DecodeValue(dt, field)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	arr := got.([]interface{})
	if arr[0] != true || arr[1] != false || arr[2] != nil {
		t.Fatalf("unexpected decoded array: %v", arr)
	}
}

func TestDateArrayRoundTripsThroughScalarFormat(t *testing.T) {
	dt := schema.ArrayType{Element: schema.Date}
	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	in := []interface{}{d1, d2, nil}

	field, err := EncodeValue(dt, in)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	if field.Text != `["2024-01-02","2024-12-31",null]` {
		t.Fatalf("unexpected JSON: %s", field.Text)
	}

	got, err := DecodeValue(dt, field)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	arr := got.([]interface{})
	if !arr[0].(time.Time).Equal(d1) || !arr[1].(time.Time).Equal(d2) || arr[2] != nil {
		t.Fatalf("unexpected decoded array: %v", arr)
	}
}

func TestUuidArrayRoundTripsThroughScalarFormat(t *testing.T) {
	dt := schema.ArrayType{Element: schema.Uuid}
	in := []interface{}{
		"b7e7b3d0-1b0a-4e8a-9d0a-8f7a6e5d4c3b",
		"00000000-0000-0000-0000-000000000000",
	}

	field, err := EncodeValue(dt, in)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}

	got, err := DecodeValue(dt, field)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	arr := got.([]interface{})
	if arr[0] != in[0] || arr[1] != in[1] {
		t.Fatalf("unexpected decoded array: %v", arr)
	}
}

func TestDecodeArrayRejectsMixedElementTypes(t *testing.T) {
	dt := schema.ArrayType{Element: schema.Text}
	field := Field{Text: `["a", 1, null]`, Quoted: true}

	_, err := DecodeValue(dt, field)
	if err == nil {
		t.Fatal("expected an error for an array mixing strings and numbers")
	}
	if _, ok := err.(UnsupportedConversionError); !ok {
		t.Fatalf("expected UnsupportedConversionError, got %T: %v", err, err)
	}
}

func TestOneOfRejectsValueNotAMember(t *testing.T) {
	dt := schema.OneOfType{Values: []string{"a", "b"}}
	_, err := DecodeValue(dt, Field{Text: "c", Quoted: true})
	if err == nil {
		t.Fatal("expected an error for a value outside the one_of set")
	}
}

func TestDecodeRowHandlesQuotedCommasAndEscapedQuotes(t *testing.T) {
	fields, err := DecodeRow(`1,"a,b","she said ""hi"""`)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d: %+v", len(fields), fields)
	}
	if fields[1].Text != "a,b" {
		t.Errorf("fields[1] = %q", fields[1].Text)
	}
	if fields[2].Text != `she said "hi"` {
		t.Errorf("fields[2] = %q", fields[2].Text)
	}
}
