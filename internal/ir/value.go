package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface representing a record field value.
// Only Null, String, Int, Number, Bool and Opaque implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null field value.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string field value.
type String string

func (String) value() {}

// Int represents an integral field value (sku, quantity).
type Int int64

func (Int) value() {}

// Number represents a non-integral numeric field value (price).
type Number float64

func (Number) value() {}

// Bool represents a boolean field value.
type Bool bool

func (Bool) value() {}

// Opaque is a nested object or array member, kept as canonical JSON text.
// Rules only test it for presence.
type Opaque string

func (Opaque) value() {}

// MarshalJSON implements json.Marshaler for Opaque.
func (o Opaque) MarshalJSON() ([]byte, error) {
	return []byte(o), nil
}

// Fields is the body of a record: field name to member value.
// Use SortedKeys() for deterministic iteration.
type Fields map[string]Value

// Has reports whether the field is present and not null.
func (f Fields) Has(name string) bool {
	v, ok := f[name]
	if !ok || v == nil {
		return false
	}
	_, isNull := v.(Null)
	return !isNull
}

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge returns a copy of f with every field of patch written over it.
func (f Fields) Merge(patch Fields) Fields {
	out := f.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// SortedKeys returns keys in canonical order (UTF-16 code units).
func (f Fields) SortedKeys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// MarshalJSON encodes the fields as canonical JSON.
func (f Fields) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(f)
}

// UnmarshalJSON decodes a JSON object. Nested members become Opaque.
func (f *Fields) UnmarshalJSON(data []byte) error {
	parsed, err := ParseFields(data)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// compareKeysUTF16 compares strings by UTF-16 code units, the ordering
// canonical JSON requires. Go's native string order is UTF-8 byte order,
// which differs for supplementary-plane characters.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// ToValue converts a plain Go value into a Value.
// Accepts the types produced by encoding/json, gopkg.in/yaml.v3 and CUE decoding.
func ToValue(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of range: %d", val)
		}
		return Int(val), nil
	case float32:
		return numberValue(float64(val))
	case float64:
		return numberValue(val)
	case json.Number:
		return parseNumber(string(val))
	case map[string]any, []any:
		raw, err := MarshalCanonical(val)
		if err != nil {
			return nil, err
		}
		return Opaque(raw), nil
	default:
		return nil, fmt.Errorf("unsupported field type: %T", v)
	}
}

// FieldsFromMap converts a map of plain Go values into Fields.
func FieldsFromMap(m map[string]any) (Fields, error) {
	out := make(Fields, len(m))
	for k, v := range m {
		val, err := ToValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// Interface returns the plain Go representation of a Value.
func Interface(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case Opaque:
		return json.RawMessage(val)
	default:
		return nil
	}
}

// ToMap converts fields back to plain Go values.
func (f Fields) ToMap() map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = Interface(v)
	}
	return out
}

// numberValue keeps whole floats as Number; the distinction between Int
// and Number is decided by the JSON literal, not by the magnitude.
func numberValue(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number: %v", f)
	}
	return Number(f), nil
}

// parseNumber maps a JSON number literal to Int when it is written as an
// integer that fits in int64, and to Number otherwise.
func parseNumber(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := json.Number(s).Int64(); err == nil {
			return Int(i), nil
		}
	}
	var f float64
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return numberValue(f)
}

// decodeMember decodes one member of a record object.
func decodeMember(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case 'n':
		return Null{}, nil
	case '{', '[':
		return decodeOpaque(data)
	default:
		return parseNumber(string(data))
	}
}

// decodeOpaque canonicalizes a nested member. Numbers keep their Int or
// Number reading.
func decodeOpaque(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	raw, err := MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	return Opaque(raw), nil
}
