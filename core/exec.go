package core

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/bizfeed/docq/core"

// Observer receives execution events, typically to feed metrics
type Observer interface {
	RoundTrip(collection, phase string, d time.Duration, err error)
	Skipped(collection string)
}

type nopObserver struct{}

func (nopObserver) RoundTrip(string, string, time.Duration, error) {}
func (nopObserver) Skipped(string)                                 {}

// Executor runs compiled pipelines against a store. It performs no retries
// and sets no timeouts of its own; both are left to the caller's context.
type Executor struct {
	store   Store
	comp    *Compiler
	log     *zap.Logger
	obs     Observer
	tracer  trace.Tracer
	maxSize int64
}

// Option configures an Executor
type Option func(*Executor)

func WithLogger(log *zap.Logger) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Executor) {
		if o != nil {
			e.obs = o
		}
	}
}

func WithCompiler(c *Compiler) Option {
	return func(e *Executor) {
		if c != nil {
			e.comp = c
		}
	}
}

// WithMaxPageSize caps the page size accepted by Pageable
func WithMaxPageSize(n int64) Option {
	return func(e *Executor) {
		e.maxSize = n
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

func NewExecutor(st Store, opts ...Option) *Executor {
	e := &Executor{
		store:  st,
		comp:   &Compiler{},
		log:    zap.NewNop(),
		obs:    nopObserver{},
		tracer: otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Compile compiles q with the executor's compiler
func (e *Executor) Compile(q QuerySpec) (Compiled, error) {
	return e.comp.Compile(q)
}

// Pageable returns one page of q along with the total count of the
// filtered set. The count runs first; if it fails the page is not fetched.
func Pageable[T any](ctx context.Context, e *Executor, q QuerySpec, page, size int64) (PagingResult[T], error) {
	var res PagingResult[T]

	if err := documents(q); err != nil {
		return res, err
	}
	pg, err := NewPaging(page, size)
	if err != nil {
		return res, err
	}
	pg = pg.Clamp(e.maxSize)

	c, err := e.comp.Compile(q.withPage(pg.Skip(), pg.Limit()))
	if err != nil {
		return res, err
	}

	total, err := e.count(ctx, c.Count)
	if err != nil {
		return res, err
	}

	items, err := decodeAll[T](ctx, e, c.Data)
	if err != nil {
		return res, err
	}

	res.TotalItems = total
	res.TotalPages = pg.TotalPages(total)
	res.Page = pg.Page()
	res.Size = pg.Size()
	res.Items = items
	return res, nil
}

// One returns the first matching document or ErrNotFound
func One[T any](ctx context.Context, e *Executor, q QuerySpec) (T, error) {
	v, err := FindOne[T](ctx, e, q)
	if err != nil {
		var zero T
		return zero, err
	}
	if v == nil {
		var zero T
		return zero, ErrNotFound
	}
	return *v, nil
}

// FindOne is like One but returns nil when nothing matches
func FindOne[T any](ctx context.Context, e *Executor, q QuerySpec) (*T, error) {
	if err := documents(q); err != nil {
		return nil, err
	}
	c, err := e.comp.Compile(q.Limit(1))
	if err != nil {
		return nil, err
	}
	items, err := decodeAll[T](ctx, e, c.Data)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

// All returns every matching document, ignoring any skip or limit on q
func All[T any](ctx context.Context, e *Executor, q QuerySpec) ([]T, error) {
	if err := documents(q); err != nil {
		return nil, err
	}
	c, err := e.comp.Compile(q.withPage(0, 0))
	if err != nil {
		return nil, err
	}
	return decodeAll[T](ctx, e, c.Data)
}

// FindMany returns the matching documents honoring q's own skip and limit
func FindMany[T any](ctx context.Context, e *Executor, q QuerySpec) ([]T, error) {
	if err := documents(q); err != nil {
		return nil, err
	}
	c, err := e.comp.Compile(q)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](ctx, e, c.Data)
}

// Count runs only the count pipeline of q. It accepts count-only queries.
func Count(ctx context.Context, e *Executor, q QuerySpec) (int64, error) {
	c, err := e.comp.Compile(q.withPage(0, 0))
	if err != nil {
		return 0, err
	}
	return e.count(ctx, c.Count)
}

// Update sets fields on every document matching q. q must carry a filter
// and no joins.
func Update(ctx context.Context, e *Executor, q QuerySpec, set bson.D) (int64, error) {
	w, filter, err := e.writeTarget(q)
	if err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, invalidf("update of %s has no fields to set", q.collection)
	}

	var n int64
	err = e.roundTrip(ctx, q.collection, "update", func(ctx context.Context) (err error) {
		n, err = w.UpdateMany(ctx, q.collection, filter, bson.D{{Key: "$set", Value: set}})
		return
	})
	return n, err
}

// Delete removes every document matching q
func Delete(ctx context.Context, e *Executor, q QuerySpec) (int64, error) {
	w, filter, err := e.writeTarget(q)
	if err != nil {
		return 0, err
	}

	var n int64
	err = e.roundTrip(ctx, q.collection, "delete", func(ctx context.Context) (err error) {
		n, err = w.DeleteMany(ctx, q.collection, filter)
		return
	})
	return n, err
}

// documents rejects count-only queries in calls that decode documents
func documents(q QuerySpec) error {
	if q.count {
		return invalidf("query on %s is count-only", q.collection)
	}
	return nil
}

func (e *Executor) writeTarget(q QuerySpec) (Writer, bson.D, error) {
	if q.collection == "" {
		return nil, nil, ErrMissingCollection
	}
	if !q.HasFilter() {
		return nil, nil, invalidf("write to %s without a filter", q.collection)
	}
	if len(q.joins) != 0 {
		return nil, nil, invalidf("write to %s cannot use joins", q.collection)
	}
	if err := checkFilters(q); err != nil {
		return nil, nil, err
	}
	w, ok := e.store.(Writer)
	if !ok {
		return nil, nil, invalidf("store does not support writes")
	}
	return w, q.matchDoc(), nil
}

type countRow struct {
	TotalItems int64 `bson:"total_items"`
}

// count runs a count pipeline. No row back means an empty set.
func (e *Executor) count(ctx context.Context, p Pipeline) (int64, error) {
	var total int64

	err := e.roundTrip(ctx, p.Collection, "count", func(ctx context.Context) error {
		cur, err := e.store.Aggregate(ctx, p)
		if err != nil {
			return err
		}
		defer cur.Close(ctx) //nolint:errcheck

		if cur.Next(ctx) {
			var row countRow
			if err := cur.Decode(&row); err != nil {
				return err
			}
			total = row.TotalItems
		}
		return cur.Err()
	})
	return total, err
}

// decodeAll runs p and decodes each document into T. Documents that do not
// decode are logged and skipped so one bad record cannot fail a page.
func decodeAll[T any](ctx context.Context, e *Executor, p Pipeline) ([]T, error) {
	items := []T{}

	err := e.roundTrip(ctx, p.Collection, "data", func(ctx context.Context) error {
		cur, err := e.store.Aggregate(ctx, p)
		if err != nil {
			return err
		}
		defer cur.Close(ctx) //nolint:errcheck

		for cur.Next(ctx) {
			var v T
			if err := cur.Decode(&v); err != nil {
				e.log.Warn("skipping document",
					zap.String("collection", p.Collection),
					zap.Error(errors.Join(ErrDeserialization, err)))
				e.obs.Skipped(p.Collection)
				continue
			}
			items = append(items, v)
		}
		return cur.Err()
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// roundTrip wraps one store call with tracing, metrics and error mapping.
// ctx is passed through so a session bound to it applies to the call.
func (e *Executor) roundTrip(ctx context.Context, collection, phase string, fn func(context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "docq."+phase, trace.WithAttributes(
		attribute.String("db.collection", collection),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	e.obs.RoundTrip(collection, phase, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Debug("store call failed",
			zap.String("collection", collection),
			zap.String("phase", phase),
			zap.Error(err))
		return storeError(collection, phase, err)
	}
	return nil
}
