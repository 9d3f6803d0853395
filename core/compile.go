package core

import (
	"fmt"
	"strings"
)

// CountField is the name of the scalar produced by the count pipeline
const CountField = "total_items"

// Compiled holds the two pipelines derived from one QuerySpec. Both start
// with the same Match/Lookup/Unwind/Merge stage values.
type Compiled struct {
	Data  Pipeline
	Count Pipeline
}

// Compiler turns QuerySpecs into pipelines. A Compiler is safe for
// concurrent use.
type Compiler struct {
	defaultSort []SortField
	cache       *pipelineCache
}

// CompilerOption configures a Compiler
type CompilerOption func(*Compiler) error

// WithDefaultSort sets the sort applied when a query has none
func WithDefaultSort(fields ...SortField) CompilerOption {
	return func(c *Compiler) error {
		c.defaultSort = append([]SortField(nil), fields...)
		return nil
	}
}

// WithCache memoizes up to size compiled specs
func WithCache(size int) CompilerOption {
	return func(c *Compiler) (err error) {
		if size <= 0 {
			return nil
		}
		c.cache, err = newPipelineCache(size)
		return
	}
}

func NewCompiler(opts ...CompilerOption) (*Compiler, error) {
	c := &Compiler{}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Compile builds the data and count pipelines for q
func (c *Compiler) Compile(q QuerySpec) (Compiled, error) {
	if c.cache == nil {
		return c.compile(q)
	}

	key, keyErr := c.cache.key(q, c.defaultSort)
	if keyErr == nil {
		if v, ok := c.cache.get(key); ok {
			return v, nil
		}
	}

	v, err := c.compile(q)
	if err != nil {
		return v, err
	}
	if keyErr == nil {
		c.cache.set(key, v)
	}
	return v, nil
}

func (c *Compiler) compile(q QuerySpec) (Compiled, error) {
	if strings.TrimSpace(q.collection) == "" {
		return Compiled{}, ErrMissingCollection
	}

	if err := checkFilters(q); err != nil {
		return Compiled{}, err
	}

	if q.skip < 0 || q.limit < 0 {
		return Compiled{}, invalidf("negative skip or limit (%d, %d)", q.skip, q.limit)
	}

	base := Pipeline{Collection: q.collection}

	if m := q.matchDoc(); m != nil {
		base.stages = append(base.stages, MatchStage{Filter: m})
	}

	joinStages, err := compileJoins(q.joins)
	if err != nil {
		return Compiled{}, err
	}
	base.stages = append(base.stages, joinStages...)

	// a count-only query has no page; its data pipeline is the count pipeline
	if q.count {
		count := base.withTail(CountStage{Field: CountField})
		return Compiled{Data: count, Count: count}, nil
	}

	var tail []Stage

	sort := q.sort
	if len(sort) == 0 {
		sort = c.defaultSort
	}
	if len(sort) != 0 {
		for _, f := range sort {
			if f.Field == "" || (f.Dir != 1 && f.Dir != -1) {
				return Compiled{}, invalidf("bad sort key %q (%d)", f.Field, f.Dir)
			}
		}
		tail = append(tail, SortStage{Fields: append([]SortField(nil), sort...)})
	}
	if q.skip > 0 {
		tail = append(tail, SkipStage{N: q.skip})
	}
	if q.limit > 0 {
		tail = append(tail, LimitStage{N: q.limit})
	}

	return Compiled{
		Data:  base.withTail(tail...),
		Count: base.withTail(CountStage{Field: CountField}),
	}, nil
}

func checkFilters(q QuerySpec) error {
	for _, p := range q.ungrouped {
		if err := p.check(); err != nil {
			return invalidf("%v", err)
		}
	}
	for _, g := range q.groups {
		if len(g.Preds) == 0 {
			return invalidf("filter group %d (%s) is empty", g.ID, g.Comb)
		}
		for _, p := range g.Preds {
			if err := p.check(); err != nil {
				return invalidf("group %d: %v", g.ID, err)
			}
		}
	}
	return nil
}

// compileJoins emits lookup stages in declaration order. A nested join
// may only reference a top-level join declared before it.
func compileJoins(joins []JoinSpec) ([]Stage, error) {
	var stages []Stage
	seen := make(map[string]JoinSpec, len(joins))

	for _, j := range joins {
		if j.Collection == "" || j.LocalField == "" || j.ForeignField == "" || j.Alias == "" {
			return nil, invalidf("join %q is missing collection or field names", j.Alias)
		}
		key := j.Alias
		if j.nested() {
			key = j.Into + "." + j.Alias
		}
		if _, dup := seen[key]; dup {
			return nil, invalidf("join alias %q declared twice", key)
		}

		if !j.nested() {
			seen[j.Alias] = j
			stages = append(stages, LookupStage{
				From:         j.Collection,
				LocalField:   j.LocalField,
				ForeignField: j.ForeignField,
				As:           j.Alias,
			})
			if j.Card == CardOne {
				stages = append(stages, UnwindStage{Path: j.Alias, PreserveEmpty: true})
			}
			continue
		}

		parent, ok := seen[j.Into]
		if !ok {
			return nil, fmt.Errorf("%w: join %q merges into undeclared alias %q",
				ErrUnresolvedJoinTarget, j.Alias, j.Into)
		}
		if parent.nested() {
			return nil, invalidf("join %q: cannot merge into nested join %q", j.Alias, j.Into)
		}

		seen[key] = j
		stages = append(stages,
			LookupStage{
				From:         j.Collection,
				LocalField:   j.localPath(),
				ForeignField: j.ForeignField,
				As:           j.tempAlias(),
			},
			MergeStage{
				Parent:       j.Into,
				ParentCard:   parent.Card,
				Alias:        j.Alias,
				Card:         j.Card,
				Temp:         j.tempAlias(),
				Local:        j.relLocal(),
				ForeignField: j.ForeignField,
			})
	}
	return stages, nil
}
