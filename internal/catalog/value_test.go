package catalog

import (
	"testing"
	"time"
)

func TestCoerce_Text(t *testing.T) {
	v, err := Coerce(TypeText, "ML")
	if err != nil {
		t.Fatalf("Coerce() failed: %v", err)
	}
	if v != String("ML") {
		t.Errorf("got %v, want ML", v)
	}
}

func TestCoerce_EmptyIsNull(t *testing.T) {
	v, err := Coerce(TypeReal, "")
	if err != nil {
		t.Fatalf("Coerce() failed: %v", err)
	}
	if !IsNull(v) {
		t.Errorf("empty literal should coerce to Null, got %v", v)
	}
}

func TestCoerce_BadNumber(t *testing.T) {
	if _, err := Coerce(TypeReal, "abc"); err == nil {
		t.Error("expected error for non-numeric literal")
	}
	if _, err := Coerce(TypeInteger, "3.5"); err == nil {
		t.Error("expected error for fractional integer literal")
	}
}

func TestCoerce_Timestamp(t *testing.T) {
	cases := []struct {
		literal string
		want    time.Time
	}{
		{"2024-05-01T12:30:00Z", time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)},
		{"2024-05-01T12:30:00", time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)},
		{"2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-05-01 12:30:00", time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		v, err := Coerce(TypeTimestamp, tc.literal)
		if err != nil {
			t.Fatalf("Coerce(%q) failed: %v", tc.literal, err)
		}
		got, ok := v.(Time)
		if !ok {
			t.Fatalf("Coerce(%q) returned %T, want Time", tc.literal, v)
		}
		if !time.Time(got).Equal(tc.want) {
			t.Errorf("Coerce(%q) = %v, want %v", tc.literal, time.Time(got), tc.want)
		}
	}
}

func TestNewString_NormalizesNFC(t *testing.T) {
	// "é" as combining sequence (e + U+0301) vs precomposed U+00E9.
	combining := NewString("é")
	precomposed := NewString("é")
	if combining != precomposed {
		t.Errorf("NFC normalization failed: %q != %q", combining, precomposed)
	}
}

func TestCompare_Numeric(t *testing.T) {
	cmp, err := Compare(Int(3), Float(3.0))
	if err != nil {
		t.Fatalf("Compare() failed: %v", err)
	}
	if cmp != 0 {
		t.Errorf("Int(3) vs Float(3.0) = %d, want 0", cmp)
	}

	cmp, err = Compare(Float(2.5), Int(3))
	if err != nil {
		t.Fatalf("Compare() failed: %v", err)
	}
	if cmp != -1 {
		t.Errorf("Float(2.5) vs Int(3) = %d, want -1", cmp)
	}
}

func TestCompare_TypeMismatch(t *testing.T) {
	if _, err := Compare(String("a"), Int(1)); err == nil {
		t.Error("expected error comparing text with integer")
	}
}

func TestEqualWithin(t *testing.T) {
	cases := []struct {
		name      string
		a, b      Value
		tolerance float64
		want      bool
	}{
		{"exact floats", Float(45.0), Float(45.0), 0, true},
		{"within tolerance", Float(45.0), Float(45.0005), 0.001, true},
		{"outside tolerance", Float(45.0), Float(45.1), 0.001, false},
		{"zero tolerance differs", Float(45.0), Float(45.0000001), 0, false},
		{"both null", Null{}, Null{}, 0, true},
		{"null vs value", Null{}, Float(1.0), 1e9, false},
		{"strings exact", String("ML"), String("ML"), 0.5, true},
		{"strings differ", String("ML"), String("Mw"), 0.5, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EqualWithin(tc.a, tc.b, tc.tolerance); got != tc.want {
				t.Errorf("EqualWithin(%v, %v, %v) = %v, want %v", tc.a, tc.b, tc.tolerance, got, tc.want)
			}
		})
	}
}

func TestFormatValue_TimeLayout(t *testing.T) {
	v := NewTime(time.Date(2024, 5, 1, 12, 30, 0, 123456789, time.UTC))
	got := FormatValue(v)
	want := "2024-05-01T12:30:00.123Z"
	if got != want {
		t.Errorf("FormatValue() = %q, want %q", got, want)
	}
}
