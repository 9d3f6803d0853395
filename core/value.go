package core

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ValueKind identifies which member of the Value union is set
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindID
	KindArray
)

func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindID:
		return "id"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// Value is a closed tagged union of the literal types a predicate can compare
// against. The zero Value is invalid and is rejected at compile time.
type Value struct {
	kind  ValueKind
	b     bool
	isInt bool
	i     int64
	f     float64
	s     string
	id    bson.ObjectID
	items []Value
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func Int(i int64) Value {
	return Value{kind: KindNumber, isInt: true, i: i}
}

func Float(f float64) Value {
	return Value{kind: KindNumber, f: f}
}

func String(s string) Value {
	return Value{kind: KindString, s: s}
}

func ID(id bson.ObjectID) Value {
	return Value{kind: KindID, id: id}
}

// Array builds an array value. Element kinds are checked when the query is
// compiled: every element must share one kind and nested arrays are not allowed.
func Array(items ...Value) Value {
	v := Value{kind: KindArray, items: make([]Value, len(items))}
	copy(v.items, items)
	return v
}

// Strings is a shorthand for an array of string values
func Strings(ss ...string) Value {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return Value{kind: KindArray, items: items}
}

// IDs is a shorthand for an array of id values
func IDs(ids ...bson.ObjectID) Value {
	items := make([]Value, len(ids))
	for i, id := range ids {
		items[i] = ID(id)
	}
	return Value{kind: KindArray, items: items}
}

func (v Value) Kind() ValueKind { return v.kind }

// ElemKind returns the shared kind of an array's elements. Empty arrays and
// non-arrays report KindInvalid.
func (v Value) ElemKind() ValueKind {
	if v.kind != KindArray || len(v.items) == 0 {
		return KindInvalid
	}
	return v.items[0].kind
}

func (v Value) Items() []Value {
	out := make([]Value, len(v.items))
	copy(out, v.items)
	return out
}

// validate reports problems that must fail compilation
func (v Value) validate() error {
	switch v.kind {
	case KindInvalid:
		return fmt.Errorf("value is not set")
	case KindArray:
		var ek ValueKind
		for i, it := range v.items {
			if it.kind == KindArray {
				return fmt.Errorf("nested array at index %d", i)
			}
			if it.kind == KindInvalid {
				return fmt.Errorf("invalid element at index %d", i)
			}
			if i == 0 {
				ek = it.kind
			} else if it.kind != ek {
				return fmt.Errorf("mixed array: element %d is %s, want %s", i, it.kind, ek)
			}
		}
	}
	return nil
}

// BSON returns the driver representation of the value
func (v Value) BSON() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if v.isInt {
			return v.i
		}
		return v.f
	case KindString:
		return v.s
	case KindID:
		return v.id
	case KindArray:
		a := make(bson.A, len(v.items))
		for i, it := range v.items {
			a[i] = it.BSON()
		}
		return a
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		if v.isInt {
			return strconv.FormatInt(v.i, 10)
		}
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindID:
		return "ObjectID(" + v.id.Hex() + ")"
	case KindArray:
		parts := make([]string, len(v.items))
		for i, it := range v.items {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return "<invalid>"
	}
}
