package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the shape of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is a small closed set of serializable shapes used for the
// open-ended diagnosis and audit log payloads.
// The zero value is null.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
	l    []Value
	m    Fields
}

// Fields maps payload keys to values.
type Fields map[string]Value

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int returns a numeric value from an integer.
func Int(i int) Value { return Number(float64(i)) }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List returns a list value of vs.
func List(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{kind: KindList, l: vs}
}

// Map returns a nested mapping value.
func Map(f Fields) Value {
	if f == nil {
		f = Fields{}
	}
	return Value{kind: KindMap, m: f}
}

// Strings converts ss into a list of string values.
func Strings(ss []string) Value {
	vs := make([]Value, 0, len(ss))
	for _, s := range ss {
		vs = append(vs, String(s))
	}
	return List(vs...)
}

// OptBool returns a boolean value for b or null if b is nil.
func OptBool(b *bool) Value {
	if b == nil {
		return Null()
	}
	return Bool(*b)
}

// OptInt returns a numeric value for i or null if i is nil.
func OptInt(i *int) Value {
	if i == nil {
		return Null()
	}
	return Int(*i)
}

// Kind returns the shape of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string held by v, or the empty string.
func (v Value) Str() string { return v.s }

// Num returns the number held by v, or zero.
func (v Value) Num() float64 { return v.n }

// Truth returns the boolean held by v, or false.
func (v Value) Truth() bool { return v.b }

// Get returns the value at key k of a mapping value.
func (v Value) Get(k string) Value {
	if v.kind != KindMap {
		return Null()
	}
	return v.m[k]
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		l := make([]Value, len(v.l))
		for i := range v.l {
			l[i] = v.l[i].Clone()
		}
		return Value{kind: KindList, l: l}
	case KindMap:
		return Value{kind: KindMap, m: v.m.Clone()}
	default:
		return v
	}
}

// Equal reports whether v and o hold the same shape and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindNumber:
		return v.n == o.n
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, mv := range v.m {
			ov, ok := o.m[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v for human consumption, e.g. in log lines.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		parts := make([]string, 0, len(v.l))
		for _, i := range v.l {
			parts = append(parts, i.String())
		}
		return "[" + strings.Join(parts, " ") + "]"
	case KindMap:
		keys := v.m.keys()
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+":"+v.m[k].String())
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return "null"
	}
}

// MarshalJSON encodes v as its natural JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		return json.Marshal(v.n)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.l == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.l)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(map[string]Value(v.m))
	}
	return nil, fmt.Errorf("marshal value: invalid kind %d", v.kind)
}

// UnmarshalJSON decodes any JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	nv, err := valueOf(raw)
	if err != nil {
		return err
	}
	*v = nv
	return nil
}

func valueOf(raw interface{}) (Value, error) {
	switch r := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(r), nil
	case bool:
		return Bool(r), nil
	case json.Number:
		n, err := r.Float64()
		if err != nil {
			return Null(), fmt.Errorf("converting number: %w", err)
		}
		return Number(n), nil
	case []interface{}:
		l := make([]Value, 0, len(r))
		for _, i := range r {
			iv, err := valueOf(i)
			if err != nil {
				return Null(), err
			}
			l = append(l, iv)
		}
		return List(l...), nil
	case map[string]interface{}:
		m := make(Fields, len(r))
		for k, i := range r {
			iv, err := valueOf(i)
			if err != nil {
				return Null(), err
			}
			m[k] = iv
		}
		return Map(m), nil
	}
	return Null(), fmt.Errorf("unsupported JSON type %T", raw)
}

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	c := make(Fields, len(f))
	for k, v := range f {
		c[k] = v.Clone()
	}
	return c
}

func (f Fields) keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
