package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TimeLayout is the canonical storage format for timestamps: UTC with
// fixed-width millisecond precision, so lexicographic order equals
// chronological order inside the store.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Value is a sealed interface representing a typed catalog value.
// Only Null, String, Int, Float, and Time implement it.
type Value interface {
	catalogValue() // Marker method - seals interface to this package
}

// Null represents an absent (SQL NULL) value.
type Null struct{}

func (Null) catalogValue() {}

// String represents a text value. Always NFC-normalized on construction.
type String string

func (String) catalogValue() {}

// Int represents an integer value. Always int64.
type Int int64

func (Int) catalogValue() {}

// Float represents a real value.
type Float float64

func (Float) catalogValue() {}

// Time represents a UTC timestamp value.
type Time time.Time

func (Time) catalogValue() {}

// NewString constructs a String, applying Unicode NFC normalization so that
// equal-looking text compares equal regardless of its source encoding.
func NewString(s string) String {
	return String(norm.NFC.String(s))
}

// NewTime constructs a Time, truncated to the stored millisecond precision
// and converted to UTC.
func NewTime(t time.Time) Time {
	return Time(t.UTC().Truncate(time.Millisecond))
}

// IsNull reports whether v is the Null value (or nil).
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// FormatValue renders a value in its canonical external form:
// timestamps in TimeLayout, NULL as an empty string.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Time:
		return time.Time(val).UTC().Format(TimeLayout)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// timestampLayouts are accepted on input, most specific first.
// All are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an external timestamp literal as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Coerce converts an external string literal to a Value of the given type.
// An empty literal coerces to Null.
func Coerce(ft FieldType, literal string) (Value, error) {
	if literal == "" {
		return Null{}, nil
	}
	switch ft {
	case TypeText:
		return NewString(literal), nil
	case TypeInteger:
		n, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", literal)
		}
		return Int(n), nil
	case TypeReal:
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", literal)
		}
		return Float(f), nil
	case TypeTimestamp:
		t, err := ParseTimestamp(literal)
		if err != nil {
			return nil, err
		}
		return NewTime(t), nil
	default:
		return nil, fmt.Errorf("unsupported field type %q", ft)
	}
}

// Compare orders two non-null values of the same declared type.
// Returns -1, 0, or 1. Numeric values compare across Int/Float.
func Compare(a, b Value) (int, error) {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		if !ok {
			return 0, fmt.Errorf("cannot compare text with %T", b)
		}
		return strings.Compare(string(av), string(bv)), nil
	case Int:
		return compareNumeric(float64(av), b)
	case Float:
		return compareNumeric(float64(av), b)
	case Time:
		bv, ok := b.(Time)
		if !ok {
			return 0, fmt.Errorf("cannot compare timestamp with %T", b)
		}
		return time.Time(av).Compare(time.Time(bv)), nil
	default:
		return 0, fmt.Errorf("cannot compare %T", a)
	}
}

func compareNumeric(a float64, b Value) (int, error) {
	var bf float64
	switch bv := b.(type) {
	case Int:
		bf = float64(bv)
	case Float:
		bf = float64(bv)
	default:
		return 0, fmt.Errorf("cannot compare number with %T", b)
	}
	switch {
	case a < bf:
		return -1, nil
	case a > bf:
		return 1, nil
	default:
		return 0, nil
	}
}

// NumericValue extracts a float64 from an Int or Float value.
func NumericValue(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	default:
		return 0, false
	}
}

// EqualWithin reports whether two values are equal, allowing an absolute
// tolerance for numeric values. Strings and timestamps compare exactly.
// Two nulls are equal; a null never equals a non-null.
func EqualWithin(a, b Value, tolerance float64) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if af, ok := NumericValue(a); ok {
		bf, ok := NumericValue(b)
		if !ok {
			return false
		}
		diff := af - bf
		if diff < 0 {
			diff = -diff
		}
		return diff <= tolerance
	}
	cmp, err := Compare(a, b)
	return err == nil && cmp == 0
}
