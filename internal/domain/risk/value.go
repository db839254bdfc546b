package risk

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the concrete type held by a Value.
type Kind int

const (
	KindAbsent Kind = iota
	KindNumber
	KindBool
	KindString
	KindTime
)

// Value is a tagged union over the types a factor value, model input, or
// cohort criterion value may take: number, bool, string, or timestamp.
// The zero Value is absent.
type Value struct {
	kind Kind
	num  float64
	b    bool
	str  string
	t    time.Time
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Time returns a timestamp Value.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Kind returns the kind tag.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether the value is the zero (absent) Value.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Float returns the numeric value. The second return is false for
// non-numeric kinds.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// BoolVal returns the boolean value. The second return is false for
// non-boolean kinds.
func (v Value) BoolVal() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Str returns the string value. The second return is false for
// non-string kinds.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// TimeVal returns the timestamp value. The second return is false for
// non-time kinds.
func (v Value) TimeVal() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// Contribution maps a model input value to a per-feature contribution in
// [0,1]: numbers map via min(value/100, 1); booleans contribute 0.2 when
// true; all other kinds contribute 0.
func (v Value) Contribution() float64 {
	switch v.kind {
	case KindNumber:
		c := v.num / 100
		if c > 1 {
			return 1
		}
		return c
	case KindBool:
		if v.b {
			return 0.2
		}
		return 0
	default:
		return 0
	}
}

// Equal reports deep equality of kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.str == o.str
	case KindTime:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

// String implements fmt.Stringer for logging.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return fmt.Sprintf("%g", v.num)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindString:
		return v.str
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return "<absent>"
	}
}

// MarshalJSON renders the value as its native JSON type. Timestamps are
// RFC3339 strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindString:
		return json.Marshal(v.str)
	case KindTime:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON parses a native JSON scalar. Strings that parse as RFC3339
// timestamps become time values.
func (v *Value) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*v = Value{}
		return nil
	}
	if s == "true" || s == "false" {
		*v = Bool(s == "true")
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		if t, err := time.Parse(time.RFC3339Nano, str); err == nil {
			*v = Time(t)
			return nil
		}
		*v = String(str)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("unsupported value literal %s: %w", s, err)
	}
	*v = Number(f)
	return nil
}
