package bson

import "fmt"

// Kind identifies the dynamic type carried by a Value.
type Kind byte

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindArray
	KindObject
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Value is the tagged-variant sum type backing every record field.
// Only the field matching Kind is meaningful; the others are zero.
type Value struct {
	Kind      Kind
	Bool      bool
	Int64     int64
	Float64   float64
	Str       string
	Bytes     []byte
	Array     []Value
	Object    map[string]Value
	Timestamp int64 // milliseconds since Unix epoch
}

func Null() Value                  { return Value{Kind: KindNull} }
func Bool(b bool) Value            { return Value{Kind: KindBool, Bool: b} }
func Int64(i int64) Value          { return Value{Kind: KindInt64, Int64: i} }
func Float64(f float64) Value      { return Value{Kind: KindFloat64, Float64: f} }
func String(s string) Value        { return Value{Kind: KindString, Str: s} }
func Bytes(b []byte) Value         { return Value{Kind: KindBytes, Bytes: b} }
func Array(v []Value) Value        { return Value{Kind: KindArray, Array: v} }
func Object(m map[string]Value) Value {
	return Value{Kind: KindObject, Object: m}
}
func Timestamp(ms int64) Value { return Value{Kind: KindTimestamp, Timestamp: ms} }

// Equal reports whether two values are structurally and byte-identical.
// Used by update-merge logic to detect no-op writes.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindInt64:
		return a.Int64 == b.Int64
	case KindFloat64:
		return a.Float64 == b.Float64
	case KindString:
		return a.Str == b.Str
	case KindBytes:
		if len(a.Bytes) != len(b.Bytes) {
			return false
		}
		for i := range a.Bytes {
			if a.Bytes[i] != b.Bytes[i] {
				return false
			}
		}
		return true
	case KindTimestamp:
		return a.Timestamp == b.Timestamp
	case KindArray:
		if len(a.Array) != len(b.Array) {
			return false
		}
		for i := range a.Array {
			if !Equal(a.Array[i], b.Array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.Object) != len(b.Object) {
			return false
		}
		for k, av := range a.Object {
			bv, ok := b.Object[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Record is a mapping from field name to Value. The "_id" key is
// mandatory and must hold a KindString value (spec section 3).
type Record map[string]Value

// ID returns the record's "_id" field as a string, if present and well-typed.
func (r Record) ID() (string, bool) {
	v, ok := r["_id"]
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch v.Kind {
	case KindBytes:
		cp := make([]byte, len(v.Bytes))
		copy(cp, v.Bytes)
		v.Bytes = cp
		return v
	case KindArray:
		cp := make([]Value, len(v.Array))
		for i, e := range v.Array {
			cp[i] = cloneValue(e)
		}
		v.Array = cp
		return v
	case KindObject:
		cp := make(map[string]Value, len(v.Object))
		for k, e := range v.Object {
			cp[k] = cloneValue(e)
		}
		v.Object = cp
		return v
	default:
		return v
	}
}
