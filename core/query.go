package core

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// SortField is one key of a sort specification. Dir is 1 or -1.
type SortField struct {
	Field string
	Dir   int
}

func Asc(field string) SortField  { return SortField{Field: field, Dir: 1} }
func Desc(field string) SortField { return SortField{Field: field, Dir: -1} }

// QuerySpec accumulates everything needed to compile a query. It is an
// immutable value: every builder method returns a modified copy, so a partly
// built query can be shared and extended on different code paths.
type QuerySpec struct {
	collection string
	ungrouped  []Predicate
	groups     []FilterGroup
	current    int // index into groups, -1 when no group is open
	text       string
	joins      []JoinSpec
	sort       []SortField
	skip       int64
	limit      int64
	count      bool
}

// Get starts a query against the named collection
func Get(collection string) QuerySpec {
	return QuerySpec{collection: collection, current: -1}
}

func (q QuerySpec) clone() QuerySpec {
	q.ungrouped = append([]Predicate(nil), q.ungrouped...)
	if q.groups != nil {
		groups := make([]FilterGroup, len(q.groups))
		for i, g := range q.groups {
			groups[i] = g.clone()
		}
		q.groups = groups
	}
	q.joins = append([]JoinSpec(nil), q.joins...)
	q.sort = append([]SortField(nil), q.sort...)
	return q
}

func (q QuerySpec) Collection() string { return q.collection }

// Groups returns a copy of the explicit filter groups
func (q QuerySpec) Groups() []FilterGroup {
	return q.clone().groups
}

func (q QuerySpec) Joins() []JoinSpec {
	return append([]JoinSpec(nil), q.joins...)
}

// HasFilter reports whether any predicate or text term has been added
func (q QuerySpec) HasFilter() bool {
	if len(q.ungrouped) > 0 || q.text != "" {
		return true
	}
	for _, g := range q.groups {
		if len(g.Preds) > 0 {
			return true
		}
	}
	return false
}

// And opens a new group whose predicates must all match
func (q QuerySpec) And() QuerySpec {
	return q.openGroup(CombAnd)
}

// Or opens a new group of which at least one predicate must match
func (q QuerySpec) Or() QuerySpec {
	return q.openGroup(CombOr)
}

func (q QuerySpec) openGroup(c Combinator) QuerySpec {
	q = q.clone()
	q.groups = append(q.groups, FilterGroup{ID: len(q.groups) + 1, Comb: c})
	q.current = len(q.groups) - 1
	return q
}

func (q QuerySpec) add(p Predicate) QuerySpec {
	q = q.clone()
	if q.current < 0 {
		q.ungrouped = append(q.ungrouped, p)
	} else {
		g := &q.groups[q.current]
		g.Preds = append(g.Preds, p)
	}
	return q
}

// Filter appends a predicate without constraining the value's kind
func (q QuerySpec) Filter(field string, op Op, v Value) QuerySpec {
	return q.add(Predicate{Field: field, Op: op, Value: v})
}

func (q QuerySpec) FilterString(field string, op Op, v Value) QuerySpec {
	return q.add(Predicate{Field: field, Op: op, Value: v, want: KindString})
}

func (q QuerySpec) FilterNumber(field string, op Op, v Value) QuerySpec {
	return q.add(Predicate{Field: field, Op: op, Value: v, want: KindNumber})
}

func (q QuerySpec) FilterBool(field string, op Op, v Value) QuerySpec {
	return q.add(Predicate{Field: field, Op: op, Value: v, want: KindBool})
}

func (q QuerySpec) FilterID(field string, op Op, v Value) QuerySpec {
	return q.add(Predicate{Field: field, Op: op, Value: v, want: KindID})
}

// FilterArray compares the field against a whole array value,
// or with $in / $nin against its elements.
func (q QuerySpec) FilterArray(field string, op Op, v Value) QuerySpec {
	p := Predicate{Field: field, Op: op, Value: v}
	if !op.wantsArray() {
		p.want = KindArray
	}
	return q.add(p)
}

// Text sets the free-text search term. Text search is always ANDed with the
// rest of the filter.
func (q QuerySpec) Text(term string) QuerySpec {
	q = q.clone()
	q.text = term
	return q
}

func (q QuerySpec) JoinOne(collection, localField, foreignField, alias string, opts ...JoinOption) QuerySpec {
	return q.join(CardOne, collection, localField, foreignField, alias, opts)
}

func (q QuerySpec) JoinMany(collection, localField, foreignField, alias string, opts ...JoinOption) QuerySpec {
	return q.join(CardMany, collection, localField, foreignField, alias, opts)
}

func (q QuerySpec) join(card Cardinality, collection, localField, foreignField, alias string, opts []JoinOption) QuerySpec {
	j := JoinSpec{
		Collection:   collection,
		LocalField:   localField,
		ForeignField: foreignField,
		Alias:        alias,
		Card:         card,
	}
	for _, o := range opts {
		o(&j)
	}
	q = q.clone()
	q.joins = append(q.joins, j)
	return q
}

// Sort replaces the sort order
func (q QuerySpec) Sort(fields ...SortField) QuerySpec {
	q = q.clone()
	q.sort = append([]SortField(nil), fields...)
	return q
}

func (q QuerySpec) Skip(n int64) QuerySpec {
	q = q.clone()
	q.skip = n
	return q
}

func (q QuerySpec) Limit(n int64) QuerySpec {
	q = q.clone()
	q.limit = n
	return q
}

// Count marks the query as count-only. Its data pipeline ends in the count
// stage and the document-returning executor calls refuse it.
func (q QuerySpec) Count() QuerySpec {
	q = q.clone()
	q.count = true
	return q
}

func (q QuerySpec) IsCount() bool { return q.count }

// withPage is used by the executor to apply paging without touching the
// caller's copy.
func (q QuerySpec) withPage(skip, limit int64) QuerySpec {
	q = q.clone()
	q.skip = skip
	q.limit = limit
	return q
}

// matchDoc builds the filter document. It returns nil when there is nothing
// to filter on.
func (q QuerySpec) matchDoc() bson.D {
	var clauses []bson.D

	// predicates added before any And()/Or() form one implicit AND group
	if len(q.ungrouped) > 0 {
		clauses = append(clauses, FilterGroup{Comb: CombAnd, Preds: q.ungrouped}.clauses()...)
	}
	for _, g := range q.groups {
		clauses = append(clauses, g.clauses()...)
	}

	if len(clauses) == 0 && q.text == "" {
		return nil
	}

	var doc bson.D
	if q.text != "" {
		doc = append(doc, bson.E{Key: "$text", Value: bson.D{{Key: "$search", Value: q.text}}})
	}

	switch {
	case len(clauses) == 1 && q.text == "":
		doc = clauses[0]
	case len(clauses) > 0:
		arr := make(bson.A, len(clauses))
		for i, c := range clauses {
			arr[i] = c
		}
		doc = append(doc, bson.E{Key: string(CombAnd), Value: arr})
	}
	return doc
}
