package core

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mitchellh/hashstructure/v2"
)

// pipelineCache memoizes compiled pipelines. Compiled values are immutable
// so a cached entry can be replayed by any number of executions.
type pipelineCache struct {
	cache *lru.TwoQueueCache[uint64, Compiled]
}

func newPipelineCache(size int) (*pipelineCache, error) {
	c, err := lru.New2Q[uint64, Compiled](size)
	if err != nil {
		return nil, err
	}
	return &pipelineCache{cache: c}, nil
}

func (c *pipelineCache) get(key uint64) (Compiled, bool) {
	return c.cache.Get(key)
}

func (c *pipelineCache) set(key uint64, v Compiled) {
	c.cache.Add(key, v)
}

func (c *pipelineCache) Len() int {
	return c.cache.Len()
}

// specKey is the hashable projection of a QuerySpec
type specKey struct {
	Collection  string
	Ungrouped   []predKey
	Groups      []groupKey
	Text        string
	Joins       []JoinSpec
	Sort        []SortField
	DefaultSort []SortField
	Skip        int64
	Limit       int64
	Count       bool
}

type groupKey struct {
	ID    int
	Comb  string
	Preds []predKey
}

type predKey struct {
	Field string
	Op    string
	Want  uint8
	Kind  uint8
	Ints  []bool // int or float per number, elements for arrays
	Value string
}

func keyOf(p Predicate) predKey {
	return predKey{
		Field: p.Field,
		Op:    string(p.Op),
		Want:  uint8(p.want),
		Kind:  uint8(p.Value.Kind()),
		Ints:  intFlags(p.Value),
		Value: p.Value.String(),
	}
}

// intFlags tells Int(1) from Float(1), which print the same but render to
// different BSON types
func intFlags(v Value) []bool {
	if v.kind != KindArray {
		return []bool{v.isInt}
	}
	out := make([]bool, len(v.items))
	for i, it := range v.items {
		out[i] = it.isInt
	}
	return out
}

func (c *pipelineCache) key(q QuerySpec, defaultSort []SortField) (uint64, error) {
	k := specKey{
		Collection:  q.collection,
		Text:        q.text,
		Joins:       q.joins,
		Sort:        q.sort,
		DefaultSort: defaultSort,
		Skip:        q.skip,
		Limit:       q.limit,
		Count:       q.count,
	}
	for _, p := range q.ungrouped {
		k.Ungrouped = append(k.Ungrouped, keyOf(p))
	}
	for _, g := range q.groups {
		gk := groupKey{ID: g.ID, Comb: string(g.Comb)}
		for _, p := range g.Preds {
			gk.Preds = append(gk.Preds, keyOf(p))
		}
		k.Groups = append(k.Groups, gk)
	}
	return hashstructure.Hash(k, hashstructure.FormatV2, nil)
}
