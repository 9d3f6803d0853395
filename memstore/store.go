// Package memstore is an in-process document store that evaluates compiled
// pipelines directly. It backs tests and local runs where no MongoDB server
// is available; behaviour follows the server for every stage the compiler
// emits, with $text approximated by a case-insensitive substring search.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bizfeed/docq/core"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Store is safe for concurrent use
type Store struct {
	mu          sync.RWMutex
	collections map[string][]doc
}

var (
	_ core.Store  = (*Store)(nil)
	_ core.Writer = (*Store)(nil)
)

func New() *Store {
	return &Store{collections: make(map[string][]doc)}
}

// Insert adds documents to a collection. Documents are round-tripped
// through BSON so struct tags apply; a missing _id is generated.
func (s *Store) Insert(collection string, docs ...any) error {
	prepared := make([]doc, 0, len(docs))
	for _, d := range docs {
		raw, err := bson.Marshal(d)
		if err != nil {
			return fmt.Errorf("memstore: insert into %s: %w", collection, err)
		}
		var bd bson.D
		if err := bson.Unmarshal(raw, &bd); err != nil {
			return fmt.Errorf("memstore: insert into %s: %w", collection, err)
		}
		m := normalize(bd).(doc)
		if _, ok := m["_id"]; !ok {
			m["_id"] = bson.NewObjectID()
		}
		prepared = append(prepared, m)
	}

	s.mu.Lock()
	s.collections[collection] = append(s.collections[collection], prepared...)
	s.mu.Unlock()
	return nil
}

// Len returns the number of documents in a collection
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Drop removes a collection
func (s *Store) Drop(collection string) {
	s.mu.Lock()
	delete(s.collections, collection)
	s.mu.Unlock()
}

func (s *Store) snapshot(collection string) []doc {
	src := s.collections[collection]
	out := make([]doc, len(src))
	for i, d := range src {
		out[i] = deepCopy(d).(doc)
	}
	return out
}

// Aggregate evaluates p against a snapshot of the data
func (s *Store) Aggregate(ctx context.Context, p core.Pipeline) (core.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.snapshot(p.Collection)

	for _, st := range p.Stages() {
		var err error
		switch st := st.(type) {
		case core.MatchStage:
			docs, err = s.match(docs, st)
		case core.LookupStage:
			docs = s.lookup(docs, st)
		case core.UnwindStage:
			docs = unwind(docs, st)
		case core.MergeStage:
			docs = merge(docs, st)
		case core.SortStage:
			sortDocs(docs, st)
		case core.SkipStage:
			if st.N >= int64(len(docs)) {
				docs = nil
			} else {
				docs = docs[st.N:]
			}
		case core.LimitStage:
			if st.N < int64(len(docs)) {
				docs = docs[:st.N]
			}
		case core.CountStage:
			if len(docs) == 0 {
				docs = nil
			} else {
				docs = []doc{{st.Field: int32(len(docs))}}
			}
		default:
			err = fmt.Errorf("memstore: unsupported stage %s", st.Kind())
		}
		if err != nil {
			return nil, err
		}
	}

	return &cursor{docs: docs, pos: -1}, nil
}

func (s *Store) match(docs []doc, st core.MatchStage) ([]doc, error) {
	out := docs[:0]
	for _, d := range docs {
		ok, err := matches(d, st.Filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// lookup attaches the foreign documents whose foreign field equals any of
// the local values. A missing local field matches as null.
func (s *Store) lookup(docs []doc, st core.LookupStage) []doc {
	foreign := s.collections[st.From]

	for _, d := range docs {
		locals, found := lookup(d, st.LocalField)
		if !found || len(locals) == 0 {
			locals = []any{nil}
		}
		locals = candidates(locals)

		joined := []any{}
		for _, f := range foreign {
			fv, ffound := lookup(f, st.ForeignField)
			for _, l := range locals {
				if equals(fv, ffound, l) {
					joined = append(joined, deepCopy(f))
					break
				}
			}
		}
		setPath(d, st.As, joined)
	}
	return docs
}

func unwind(docs []doc, st core.UnwindStage) []doc {
	var out []doc
	for _, d := range docs {
		v, ok := d[st.Path]
		arr, isArr := v.([]any)

		switch {
		case !ok || v == nil:
			if st.PreserveEmpty {
				out = append(out, d)
			}
		case !isArr:
			out = append(out, d)
		case len(arr) == 0:
			if st.PreserveEmpty {
				delete(d, st.Path)
				out = append(out, d)
			}
		default:
			for _, el := range arr {
				cp := deepCopy(d).(doc)
				cp[st.Path] = deepCopy(el)
				out = append(out, cp)
			}
		}
	}
	return out
}

func merge(docs []doc, st core.MergeStage) []doc {
	for _, d := range docs {
		joined, _ := d[st.Temp].([]any)

		fold := func(el doc) {
			keys, found := lookup(el, st.Local)
			if !found || len(keys) == 0 {
				keys = []any{nil}
			}
			var picked []any
			for _, j := range joined {
				jd, ok := j.(doc)
				if !ok {
					continue
				}
				fv, ffound := lookup(jd, st.ForeignField)
				for _, k := range keys {
					if equals(fv, ffound, k) {
						picked = append(picked, jd)
						break
					}
				}
			}
			if st.Card == core.CardMany {
				if picked == nil {
					picked = []any{}
				}
				el[st.Alias] = picked
			} else if len(picked) > 0 {
				el[st.Alias] = picked[0]
			}
		}

		switch parent := d[st.Parent].(type) {
		case doc:
			fold(parent)
		case []any:
			for _, el := range parent {
				if ed, ok := el.(doc); ok {
					fold(ed)
				}
			}
		}
		delete(d, st.Temp)
	}
	return docs
}

func sortDocs(docs []doc, st core.SortStage) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range st.Fields {
			c := sortCompare(docs[i], docs[j], f.Field)
			if c != 0 {
				return c*f.Dir < 0
			}
		}
		return false
	})
}

// UpdateMany applies a $set update to every matching document
func (s *Store) UpdateMany(ctx context.Context, collection string, filter, update bson.D) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	u, _ := normalize(update).(doc)
	set, ok := u["$set"].(doc)
	if !ok || len(u) != 1 {
		return 0, fmt.Errorf("memstore: only $set updates are supported")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, d := range s.collections[collection] {
		ok, err := matches(d, filter)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		for k, v := range set {
			setPath(d, k, deepCopy(v))
		}
		n++
	}
	return n, nil
}

func (s *Store) DeleteMany(ctx context.Context, collection string, filter bson.D) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.collections[collection]
	kept := make([]doc, 0, len(src))
	for _, d := range src {
		ok, err := matches(d, filter)
		if err != nil {
			return 0, err
		}
		if !ok {
			kept = append(kept, d)
		}
	}
	s.collections[collection] = kept
	return int64(len(src) - len(kept)), nil
}

type cursor struct {
	docs []doc
	pos  int
	err  error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos+1 >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

// Decode round-trips the current document through BSON into v
func (c *cursor) Decode(v any) error {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return fmt.Errorf("memstore: no current document")
	}
	raw, err := bson.Marshal(c.docs[c.pos])
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, v)
}

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close(context.Context) error {
	c.docs = nil
	return nil
}
