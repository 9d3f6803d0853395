package core

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Op is a comparison operator applied to a predicate's value.
// OpNone means raw equality: the field is set directly to the value.
type Op string

const (
	OpNone  Op = ""
	OpEq    Op = "$eq"
	OpNe    Op = "$ne"
	OpGt    Op = "$gt"
	OpGte   Op = "$gte"
	OpLt    Op = "$lt"
	OpLte   Op = "$lte"
	OpIn    Op = "$in"
	OpNin   Op = "$nin"
	OpRegex Op = "$regex"
)

func (op Op) valid() bool {
	switch op {
	case OpNone, OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin, OpRegex:
		return true
	}
	return false
}

func (op Op) wantsArray() bool {
	return op == OpIn || op == OpNin
}

// Combinator joins the predicates of one filter group
type Combinator string

const (
	CombAnd Combinator = "$and"
	CombOr  Combinator = "$or"
)

// Predicate is a single filter condition. want records the kind demanded by
// the typed helper that created it, KindInvalid when any kind is accepted.
type Predicate struct {
	Field string
	Op    Op
	Value Value
	want  ValueKind
}

func (p Predicate) check() error {
	if p.Field == "" {
		return fmt.Errorf("predicate has an empty field name")
	}
	if !p.Op.valid() {
		return fmt.Errorf("field %q: unknown operator %q", p.Field, p.Op)
	}
	if err := p.Value.validate(); err != nil {
		return fmt.Errorf("field %q: %v", p.Field, err)
	}

	kind := p.Value.Kind()
	if p.Op.wantsArray() {
		if kind != KindArray {
			return fmt.Errorf("field %q: operator %s needs an array, got %s", p.Field, p.Op, kind)
		}
		kind = p.Value.ElemKind()
		if kind == KindInvalid {
			// an empty list is fine for $in/$nin
			return nil
		}
	}

	if p.Op == OpRegex && kind != KindString {
		return fmt.Errorf("field %q: operator %s needs a string, got %s", p.Field, p.Op, kind)
	}

	if p.want != KindInvalid && kind != p.want {
		return fmt.Errorf("field %q: expected %s value, got %s", p.Field, p.want, kind)
	}
	return nil
}

// doc renders the predicate as a single filter document
func (p Predicate) doc() bson.D {
	if p.Op == OpNone {
		return bson.D{{Key: p.Field, Value: p.Value.BSON()}}
	}
	return bson.D{{Key: p.Field, Value: bson.D{{Key: string(p.Op), Value: p.Value.BSON()}}}}
}

// FilterGroup is a numbered set of predicates combined with one operator
type FilterGroup struct {
	ID    int
	Comb  Combinator
	Preds []Predicate
}

func (g FilterGroup) clone() FilterGroup {
	g.Preds = append([]Predicate(nil), g.Preds...)
	return g
}

// clauses returns the top-level conjuncts contributed by this group. AND groups
// flatten into the outer conjunction; OR groups become one $or clause.
func (g FilterGroup) clauses() []bson.D {
	if g.Comb == CombOr {
		arr := make(bson.A, len(g.Preds))
		for i, p := range g.Preds {
			arr[i] = p.doc()
		}
		return []bson.D{{{Key: string(CombOr), Value: arr}}}
	}

	out := make([]bson.D, len(g.Preds))
	for i, p := range g.Preds {
		out[i] = p.doc()
	}
	return out
}
