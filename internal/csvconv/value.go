package csvconv

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
)

// LeapSecondsNotSupportedError is returned when decoding a time, timestamp,
// or timestamp-with-timezone value whose seconds component is 60 or
// greater, per spec.md §4.8.
type LeapSecondsNotSupportedError struct {
	Text string
}

func (e LeapSecondsNotSupportedError) Error() string {
	return fmt.Sprintf("leap seconds are not supported: %q", e.Text)
}

// UnsupportedConversionError is returned when a value's wire representation
// cannot be converted to or from its portable DataType, per spec.md §8 — for
// example a JSON array whose elements are not all the same kind after
// deserialization.
type UnsupportedConversionError struct {
	Reason string
}

func (e UnsupportedConversionError) Error() string {
	return fmt.Sprintf("unsupported conversion: %s", e.Reason)
}

// CanonicalizeJSONText re-encodes a JSON document so that whitespace and
// object key order are normalized without altering its semantic content.
// Drivers that receive an already-JSON-rendered column (for example
// PostgreSQL's array_to_json or ST_AsGeoJSON output) call this directly to
// produce the same canonical text EncodeValue would have produced, without
// round-tripping back through a driver-native Go value first.
func CanonicalizeJSONText(raw string) (string, error) {
	return canonicalizeJSON([]byte(raw))
}

// EncodeValue renders a driver-native Go value as the common CSV Field for
// dt. dt must already be resolved past any NamedType indirection (see
// schema.ResolveNamed); a nil v encodes to Null regardless of dt.
func EncodeValue(dt schema.DataType, v interface{}) (Field, error) {
	if v == nil {
		return Null, nil
	}

	switch t := dt.(type) {
	case schema.OneOfType:
		s, ok := v.(string)
		if !ok {
			return Field{}, fmt.Errorf("one_of value must be a string, got %T", v)
		}
		return Field{Text: s, Quoted: true}, nil
	case schema.ArrayType:
		return encodeArray(t, v)
	case schema.GeoJsonType:
		raw, err := toJSONText(v)
		if err != nil {
			return Field{}, err
		}
		return Field{Text: raw, Quoted: true}, nil
	case schema.StructType:
		raw, err := toJSONText(v)
		if err != nil {
			return Field{}, err
		}
		return Field{Text: raw, Quoted: true}, nil
	case schema.NamedType:
		return Field{}, fmt.Errorf("csvconv: NamedType %q must be resolved before encoding", t.Name)
	}

	if dt == schema.Json {
		raw, err := toJSONText(v)
		if err != nil {
			return Field{}, err
		}
		return Field{Text: raw, Quoted: true}, nil
	}

	switch dt {
	case schema.Bool:
		b, ok := v.(bool)
		if !ok {
			return Field{}, fmt.Errorf("bool value must be a bool, got %T", v)
		}
		if b {
			return Field{Text: "t"}, nil
		}
		return Field{Text: "f"}, nil

	case schema.Int16, schema.Int32, schema.Int64:
		n, err := toInt64(v)
		if err != nil {
			return Field{}, err
		}
		return Field{Text: strconv.FormatInt(n, 10)}, nil

	case schema.Float32:
		f, ok := v.(float32)
		if !ok {
			return Field{}, fmt.Errorf("float32 value must be a float32, got %T", v)
		}
		return Field{Text: strconv.FormatFloat(float64(f), 'g', -1, 32)}, nil

	case schema.Float64:
		f, ok := v.(float64)
		if !ok {
			return Field{}, fmt.Errorf("float64 value must be a float64, got %T", v)
		}
		return Field{Text: strconv.FormatFloat(f, 'g', -1, 64)}, nil

	case schema.Decimal:
		s, ok := v.(string)
		if !ok {
			return Field{}, fmt.Errorf("decimal value must be its decimal text as a string, got %T", v)
		}
		return Field{Text: s}, nil

	case schema.Text, schema.Uuid:
		s, ok := v.(string)
		if !ok {
			return Field{}, fmt.Errorf("%s value must be a string, got %T", dt, v)
		}
		return Field{Text: s, Quoted: true}, nil

	case schema.Date:
		tm, ok := v.(time.Time)
		if !ok {
			return Field{}, fmt.Errorf("date value must be a time.Time, got %T", v)
		}
		return Field{Text: tm.Format("2006-01-02")}, nil

	case schema.TimeWithoutTimeZone:
		d, ok := v.(time.Duration)
		if !ok {
			return Field{}, fmt.Errorf("time value must be a time.Duration since midnight, got %T", v)
		}
		return Field{Text: formatTimeOfDay(d)}, nil

	case schema.TimestampWithTimeZone:
		tm, ok := v.(time.Time)
		if !ok {
			return Field{}, fmt.Errorf("timestamp_tz value must be a time.Time, got %T", v)
		}
		return Field{Text: tm.UTC().Format("2006-01-02T15:04:05.999999999Z")}, nil

	case schema.TimestampWithoutTimeZone:
		tm, ok := v.(time.Time)
		if !ok {
			return Field{}, fmt.Errorf("timestamp_no_tz value must be a time.Time, got %T", v)
		}
		return Field{Text: tm.Format("2006-01-02T15:04:05.999999999")}, nil
	}

	return Field{}, fmt.Errorf("csvconv: unsupported data type %s", dt)
}

// DecodeValue parses field back into a driver-native Go value for dt. An
// unquoted empty field always decodes to (nil, nil): NULL.
func DecodeValue(dt schema.DataType, field Field) (interface{}, error) {
	if field.Text == "" && !field.Quoted {
		return nil, nil
	}

	switch t := dt.(type) {
	case schema.OneOfType:
		if err := t.Validate(); err != nil {
			return nil, err
		}
		for _, allowed := range t.Values {
			if allowed == field.Text {
				return field.Text, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of %v", field.Text, t.Values)
	case schema.ArrayType:
		return decodeArray(t, field)
	case schema.GeoJsonType:
		var raw json.RawMessage
		if err := json.Unmarshal([]byte(field.Text), &raw); err != nil {
			return nil, fmt.Errorf("decoding geojson: %w", err)
		}
		return json.RawMessage(field.Text), nil
	case schema.StructType:
		var raw json.RawMessage
		if err := json.Unmarshal([]byte(field.Text), &raw); err != nil {
			return nil, fmt.Errorf("decoding struct: %w", err)
		}
		return json.RawMessage(field.Text), nil
	case schema.NamedType:
		return nil, fmt.Errorf("csvconv: NamedType %q must be resolved before decoding", t.Name)
	}

	switch dt {
	case schema.Bool:
		switch field.Text {
		case "t":
			return true, nil
		case "f":
			return false, nil
		default:
			return nil, fmt.Errorf("invalid bool text %q, want \"t\" or \"f\"", field.Text)
		}

	case schema.Int16:
		n, err := strconv.ParseInt(field.Text, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid int16 text %q: %w", field.Text, err)
		}
		return int16(n), nil

	case schema.Int32:
		n, err := strconv.ParseInt(field.Text, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid int32 text %q: %w", field.Text, err)
		}
		return int32(n), nil

	case schema.Int64:
		n, err := strconv.ParseInt(field.Text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int64 text %q: %w", field.Text, err)
		}
		return n, nil

	case schema.Float32:
		f, err := strconv.ParseFloat(field.Text, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid float32 text %q: %w", field.Text, err)
		}
		return float32(f), nil

	case schema.Float64:
		f, err := strconv.ParseFloat(field.Text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float64 text %q: %w", field.Text, err)
		}
		return f, nil

	case schema.Decimal:
		return field.Text, nil

	case schema.Text, schema.Json:
		return field.Text, nil

	case schema.Uuid:
		if _, err := uuid.Parse(field.Text); err != nil {
			return nil, fmt.Errorf("invalid uuid text %q: %w", field.Text, err)
		}
		return field.Text, nil

	case schema.Date:
		tm, err := time.Parse("2006-01-02", field.Text)
		if err != nil {
			return nil, fmt.Errorf("invalid date text %q: %w", field.Text, err)
		}
		return tm, nil

	case schema.TimeWithoutTimeZone:
		return parseTimeOfDay(field.Text)

	case schema.TimestampWithTimeZone:
		tm, err := parseTimestamp(field.Text)
		if err != nil {
			return nil, err
		}
		return tm.UTC(), nil

	case schema.TimestampWithoutTimeZone:
		return parseTimestamp(field.Text)
	}

	return nil, fmt.Errorf("csvconv: unsupported data type %s", dt)
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("integer value must be an int16/int32/int64, got %T", v)
	}
}

// toJSONText renders v as a single-line JSON document for a Json column. A
// string value is assumed to already hold a JSON document and is
// canonicalized (whitespace and key order normalized) rather than passed
// through verbatim, so two semantically identical documents produce
// byte-identical CSV output (spec.md §4.8).
func toJSONText(v interface{}) (string, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return canonicalizeJSON(raw)
	}
	if s, ok := v.(string); ok {
		return canonicalizeJSON([]byte(s))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// canonicalizeJSON decodes and re-encodes raw, collapsing whitespace and
// fixing map key order (Go's encoding/json always sorts object keys on
// Marshal) without altering its semantic content.
func canonicalizeJSON(raw []byte) (string, error) {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("canonicalizing json: %w", err)
	}
	b, err := json.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("canonicalizing json: %w", err)
	}
	return string(b), nil
}

// arrayElementIsJSONString reports whether dt's array elements are rendered
// as a JSON string rather than a native JSON number or boolean. Bigint
// (Int64) is deliberately included so a JSON decoder in a language with
// 53-bit-safe integers (e.g. JavaScript) does not silently lose precision
// (spec.md §4.8).
func arrayElementIsJSONString(dt schema.DataType) bool {
	switch dt {
	case schema.Bool, schema.Int16, schema.Int32, schema.Float32, schema.Float64:
		return false
	default:
		return true
	}
}

// encodeArray renders v (a []interface{} of element values) as a JSON
// array, recursing through EncodeValue per element so every element type
// (not only scalars with a JSON-native shape) is rendered the same way it
// would be as a standalone column (spec.md §4.8).
func encodeArray(t schema.ArrayType, v interface{}) (Field, error) {
	elems, ok := v.([]interface{})
	if !ok {
		return Field{}, fmt.Errorf("array value must be a []interface{}, got %T", v)
	}

	out := make([]json.RawMessage, len(elems))
	for i, e := range elems {
		if e == nil {
			out[i] = json.RawMessage("null")
			continue
		}
		field, err := EncodeValue(t.Element, e)
		if err != nil {
			return Field{}, fmt.Errorf("array element %d: %w", i, err)
		}
		if arrayElementIsJSONString(t.Element) {
			b, err := json.Marshal(field.Text)
			if err != nil {
				return Field{}, fmt.Errorf("array element %d: %w", i, err)
			}
			out[i] = b
			continue
		}
		if b, ok := e.(bool); ok {
			if b {
				out[i] = json.RawMessage("true")
			} else {
				out[i] = json.RawMessage("false")
			}
			continue
		}
		out[i] = json.RawMessage(field.Text)
	}

	b, err := json.Marshal(out)
	if err != nil {
		return Field{}, fmt.Errorf("encoding array: %w", err)
	}
	return Field{Text: string(b), Quoted: true}, nil
}

// decodeArray parses field back into a []interface{}, recursing through
// DecodeValue per element and rejecting (as an UnsupportedConversionError)
// an array whose non-null elements are not all the same JSON kind, per
// spec.md §8.
func decodeArray(t schema.ArrayType, field Field) (interface{}, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(field.Text), &raw); err != nil {
		return nil, fmt.Errorf("decoding array: %w", err)
	}

	if err := checkHomogeneousJSONArray(raw); err != nil {
		return nil, err
	}

	stringified := arrayElementIsJSONString(t.Element)

	out := make([]interface{}, len(raw))
	for i, r := range raw {
		if string(r) == "null" {
			out[i] = nil
			continue
		}

		var elemField Field
		if stringified {
			var s string
			if err := json.Unmarshal(r, &s); err != nil {
				return nil, fmt.Errorf("array element %d: expected a JSON string, got %s: %w", i, r, err)
			}
			elemField = Field{Text: s, Quoted: true}
		} else if t.Element == schema.Bool {
			var b bool
			if err := json.Unmarshal(r, &b); err != nil {
				return nil, fmt.Errorf("array element %d: expected a JSON boolean, got %s: %w", i, r, err)
			}
			if b {
				elemField = Field{Text: "t"}
			} else {
				elemField = Field{Text: "f"}
			}
		} else {
			elemField = Field{Text: strings.TrimSpace(string(r))}
		}

		v, err := DecodeValue(t.Element, elemField)
		if err != nil {
			return nil, fmt.Errorf("array element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// jsonKind classifies a json.Unmarshal-decoded value's shape for
// checkHomogeneousJSONArray.
func jsonKind(v interface{}) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return "unknown"
	}
}

// checkHomogeneousJSONArray rejects an array whose non-null elements are
// not all the same JSON kind (spec.md §8: "array with mixed element types
// after deserialization: rejected as UnsupportedConversion").
func checkHomogeneousJSONArray(raw []json.RawMessage) error {
	kind := ""
	for _, r := range raw {
		var v interface{}
		if err := json.Unmarshal(r, &v); err != nil {
			return fmt.Errorf("decoding array element: %w", err)
		}
		if v == nil {
			continue
		}
		k := jsonKind(v)
		if kind == "" {
			kind = k
			continue
		}
		if kind != k {
			return UnsupportedConversionError{
				Reason: fmt.Sprintf("array mixes %s and %s elements", kind, k),
			}
		}
	}
	return nil
}

// formatTimeOfDay renders a duration since midnight as HH:MM:SS[.fraction].
func formatTimeOfDay(d time.Duration) string {
	if d < 0 || d >= 24*time.Hour {
		d = d % (24 * time.Hour)
		if d < 0 {
			d += 24 * time.Hour
		}
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	nanos := d

	base := fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	if nanos == 0 {
		return base
	}
	frac := strings.TrimRight(fmt.Sprintf("%09d", nanos), "0")
	return base + "." + frac
}

// parseTimeOfDay parses HH:MM:SS[.fraction] into a duration since midnight,
// rejecting a leap second (SS >= 60).
func parseTimeOfDay(text string) (time.Duration, error) {
	h, m, s, nanos, err := splitClock(text)
	if err != nil {
		return 0, err
	}
	if s >= 60 {
		return 0, LeapSecondsNotSupportedError{Text: text}
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(nanos), nil
}

// parseTimestamp parses an ISO-8601 "YYYY-MM-DDTHH:MM:SS[.fraction][Z]"
// value, rejecting a leap second.
func parseTimestamp(text string) (time.Time, error) {
	trimmed := strings.TrimSuffix(text, "Z")
	datePart, clockPart, ok := strings.Cut(trimmed, "T")
	if !ok {
		return time.Time{}, fmt.Errorf("invalid timestamp text %q: missing 'T' separator", text)
	}
	date, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp text %q: %w", text, err)
	}
	h, m, s, nanos, err := splitClock(clockPart)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp text %q: %w", text, err)
	}
	if s >= 60 {
		return time.Time{}, LeapSecondsNotSupportedError{Text: text}
	}
	loc := time.UTC
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, s, nanos, loc), nil
}

func splitClock(text string) (h, m, s, nanos int, err error) {
	parts := strings.SplitN(text, ":", 3)
	if len(parts) != 3 {
		return 0, 0, 0, 0, fmt.Errorf("invalid time text %q", text)
	}
	h, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid hour in %q: %w", text, err)
	}
	m, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid minute in %q: %w", text, err)
	}
	secText := parts[2]
	fracText := ""
	if dot := strings.IndexByte(secText, '.'); dot >= 0 {
		fracText = secText[dot+1:]
		secText = secText[:dot]
	}
	s, err = strconv.Atoi(secText)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid second in %q: %w", text, err)
	}
	if fracText != "" {
		for len(fracText) < 9 {
			fracText += "0"
		}
		fracText = fracText[:9]
		nanos, err = strconv.Atoi(fracText)
		if err != nil {
			return 0, 0, 0, 0, fmt.Errorf("invalid fractional seconds in %q: %w", text, err)
		}
	}
	return h, m, s, nanos, nil
}
