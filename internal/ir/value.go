package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface representing a scalar record attribute.
// Only Null, Text, Number, and Bool implement this.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null represents an absent attribute value.
// Using an explicit type ensures all Values satisfy the sealed interface.
type Null struct{}

func (Null) irValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Text represents a string attribute value.
type Text string

func (Text) irValue() {}

// Number represents a numeric attribute value.
type Number float64

func (Number) irValue() {}

// Bool represents a boolean attribute value.
type Bool bool

func (Bool) irValue() {}

// IsNull reports whether v is absent. A nil Value counts as absent.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// ValueOf converts a decoded JSON or YAML scalar into a Value.
// Accepts nil, string, bool, every Go integer and float kind, json.Number,
// and Value itself.
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return Text(val), nil
	case bool:
		return Bool(val), nil
	case float64:
		return Number(val), nil
	case float32:
		return Number(float64(val)), nil
	case int:
		return Number(float64(val)), nil
	case int32:
		return Number(float64(val)), nil
	case int64:
		return Number(float64(val)), nil
	case uint:
		return Number(float64(val)), nil
	case uint32:
		return Number(float64(val)), nil
	case uint64:
		return Number(float64(val)), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return Number(f), nil
	default:
		return nil, fmt.Errorf("unsupported attribute type: %T (only scalars allowed)", v)
	}
}

// Interface converts a Value back into a plain Go value (nil, string, float64, bool).
func Interface(v Value) any {
	switch val := v.(type) {
	case Text:
		return string(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}

// Equal reports whether two values are the same kind and value.
// Null equals nil.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case Number:
		bv, ok := b.(Number)
		return ok && (av == bv || (math.IsNaN(float64(av)) && math.IsNaN(float64(bv))))
	default:
		return a == b
	}
}

// String renders a value for human-readable output.
func String(v Value) string {
	switch val := v.(type) {
	case Text:
		return string(val)
	case Number:
		return strconv.FormatFloat(float64(val), 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	default:
		return "null"
	}
}

// Attributes maps attribute names to values.
// Use SortedKeys() for deterministic iteration.
type Attributes map[string]Value

// Clone returns an independent copy of the attributes.
// A nil receiver yields an empty, non-nil map.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge returns a copy of a with every entry of other written over it.
func (a Attributes) Merge(other Attributes) Attributes {
	out := a.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Get returns the value for key, or Null if absent.
func (a Attributes) Get(key string) Value {
	if v, ok := a[key]; ok && v != nil {
		return v
	}
	return Null{}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 which produces a different order for
// characters outside the BMP.
func (a Attributes) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	// If all compared units are equal, shorter string comes first
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// NewAttributes builds Attributes from plain Go values.
// Returns an error naming the first key whose value is not a scalar.
func NewAttributes(m map[string]any) (Attributes, error) {
	out := make(Attributes, len(m))
	for k, raw := range m {
		v, err := ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// MustAttributes is like NewAttributes but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustAttributes(m map[string]any) Attributes {
	attrs, err := NewAttributes(m)
	if err != nil {
		panic(err)
	}
	return attrs
}

// MarshalJSON implements json.Marshaler with canonical key ordering.
func (a Attributes) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(a)
}

// UnmarshalJSON implements json.Unmarshaler for Attributes.
// Nested arrays and objects are rejected: attributes are scalars only.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	attrs, err := NewAttributes(raw)
	if err != nil {
		return err
	}
	*a = attrs
	return nil
}
