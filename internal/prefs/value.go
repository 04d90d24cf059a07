// Package prefs models typed preference values and the backend capability
// used to read and mutate the host preference store.
package prefs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates the closed set of value types a preference can hold.
type Kind int

const (
	// KindInvalid is the zero Kind, so an uninitialized Value is never
	// mistaken for Bool(false).
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a tagged union over the preference value types. Comparison is
// always structural and type-aware; two values of different kinds are never
// equal, even when their textual renderings coincide.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	dict map[string]Value
}

func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func String(s string) Value  { return Value{kind: KindString, s: s} }
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

func Dict(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindDict, dict: m}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBool() bool    { return v.b }
func (v Value) AsInt() int64    { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsString() string { return v.s }

// AsList returns the element slice. Callers must not mutate it.
func (v Value) AsList() []Value { return v.list }

// AsDict returns the underlying map. Callers must not mutate it.
func (v Value) AsDict() map[string]Value { return v.dict }

// Equal reports structural equality. Scalars compare by declared type and
// value; lists compare element-wise in order; dicts compare by key set and
// per-key value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(v.dict) != len(o.dict) {
			return false
		}
		for k, vv := range v.dict {
			ov, ok := o.dict[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the value for logs and reports.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindDict:
		keys := make([]string, 0, len(v.dict))
		for k := range v.dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.dict[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "<invalid>"
}

// FromAny converts a decoded document value (yaml.v3 or json shapes) into a
// Value. Unsupported underlying types are rejected rather than coerced.
func FromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint64:
		if t > 1<<63-1 {
			return Value{}, fmt.Errorf("integer %d overflows int64", t)
		}
		return Int(int64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("number %q: %w", t.String(), err)
		}
		return Float(f), nil
	case []any:
		list := make([]Value, len(t))
		for i, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			list[i] = v
		}
		return List(list...), nil
	case map[string]any:
		dict := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			dict[k] = v
		}
		return Dict(dict), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// ToAny converts a Value back into plain Go shapes for encoding.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.ToAny()
		}
		return out
	case KindDict:
		out := make(map[string]any, len(v.dict))
		for k, e := range v.dict {
			out[k] = e.ToAny()
		}
		return out
	}
	return nil
}

// MarshalJSON encodes the value untagged; the kind is recovered from the
// JSON shape on decode. Whole floats keep an explicit decimal point so they
// do not collapse into integers on the way back.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindFloat:
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return []byte(s), nil
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindDict:
		return json.Marshal(v.dict)
	default:
		return json.Marshal(v.ToAny())
	}
}

// UnmarshalJSON decodes an untagged value. Numbers without a fraction or
// exponent decode as integers so that int/float identity survives a snapshot
// round trip.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
