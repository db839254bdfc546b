package risk

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValueContribution(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want float64
	}{
		{"number below cap", Number(50), 0.5},
		{"number at cap", Number(100), 1},
		{"number above cap", Number(250), 1},
		{"zero", Number(0), 0},
		{"bool true", Bool(true), 0.2},
		{"bool false", Bool(false), 0},
		{"string", String("smoker"), 0},
		{"time", Time(time.Now()), 0},
		{"absent", Value{}, 0},
	}

	for _, tc := range cases {
		if got := tc.v.Contribution(); got != tc.want {
			t.Errorf("%s: Contribution() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	cases := []Value{
		Number(42.5),
		Bool(true),
		Bool(false),
		String("housing insecure"),
		Time(ts),
	}

	for _, in := range cases {
		data, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal %v: %v", in, err)
		}
		var out Value
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if !in.Equal(out) {
			t.Errorf("round trip %s: got %v, want %v", data, out, in)
		}
	}
}

func TestValueUnmarshalNull(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte("null"), &v); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !v.IsAbsent() {
		t.Error("expected absent value for null")
	}
}

func TestValueAccessors(t *testing.T) {
	if f, ok := Number(7).Float(); !ok || f != 7 {
		t.Error("Float accessor failed")
	}
	if _, ok := Bool(true).Float(); ok {
		t.Error("Float should reject bool kind")
	}
	if s, ok := String("x").Str(); !ok || s != "x" {
		t.Error("Str accessor failed")
	}
	if b, ok := Bool(true).BoolVal(); !ok || !b {
		t.Error("BoolVal accessor failed")
	}
}
