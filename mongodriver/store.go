// Package mongodriver runs compiled docq pipelines against MongoDB.
package mongodriver

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/bizfeed/docq/core"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

// Config holds the connection settings for a Store.
type Config struct {
	URI      string
	Database string
	// Prefix is prepended to every collection name.
	Prefix string

	ConnectRetries uint
	PingTimeout    time.Duration
}

// Store implements core.Store and core.Writer for MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	prefix string
	log    *zap.Logger
}

var (
	_ core.Store  = (*Store)(nil)
	_ core.Writer = (*Store)(nil)
)

// Open connects to MongoDB and pings the primary, retrying until the server
// answers or the retries run out.
func Open(ctx context.Context, conf Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if conf.URI == "" {
		return nil, fmt.Errorf("mongodriver: connection uri is required")
	}
	if conf.Database == "" {
		return nil, fmt.Errorf("mongodriver: database name is required")
	}
	if conf.ConnectRetries == 0 {
		conf.ConnectRetries = 10
	}
	if conf.PingTimeout == 0 {
		conf.PingTimeout = 2 * time.Second
	}

	client, err := mongo.Connect(options.Client().ApplyURI(conf.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodriver: connect: %w", err)
	}

	err = retry.Do(
		func() error {
			pctx, cancel := context.WithTimeout(ctx, conf.PingTimeout)
			defer cancel()
			return client.Ping(pctx, readpref.Primary())
		},
		retry.Context(ctx),
		retry.Attempts(conf.ConnectRetries),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("database ping", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		client.Disconnect(context.Background()) //nolint:errcheck
		return nil, fmt.Errorf("mongodriver: ping: %w", err)
	}

	return NewStore(client, conf.Database, conf.Prefix, log), nil
}

// NewStore wraps an already connected client.
func NewStore(client *mongo.Client, database, prefix string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		client: client,
		db:     client.Database(database),
		prefix: prefix,
		log:    log,
	}
}

// Ping checks that the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodriver: ping: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Name returns the collection name as stored on the server.
func (s *Store) Name(collection string) string {
	return s.prefix + collection
}

func (s *Store) coll(collection string) *mongo.Collection {
	return s.db.Collection(s.Name(collection))
}

// Aggregate runs the pipeline. Lookup stages name their target collection
// without the prefix, so it is applied here before the pipeline is sent.
func (s *Store) Aggregate(ctx context.Context, p core.Pipeline) (core.Cursor, error) {
	pipeline := s.render(p)

	if ce := s.log.Check(zap.DebugLevel, "aggregate"); ce != nil {
		ce.Write(zap.String("collection", s.Name(p.Collection)), zap.Any("pipeline", pipeline))
	}

	cur, err := s.coll(p.Collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodriver: aggregate: %w", err)
	}
	return cur, nil
}

func (s *Store) render(p core.Pipeline) bson.A {
	if s.prefix == "" {
		return p.BSON()
	}
	out := make(bson.A, 0, p.Len())
	for _, st := range p.Stages() {
		if l, ok := st.(core.LookupStage); ok {
			l.From = s.Name(l.From)
			st = l
		}
		for _, d := range st.Render() {
			out = append(out, d)
		}
	}
	return out
}

// UpdateMany applies update to every document matching filter and returns
// the number of modified documents.
func (s *Store) UpdateMany(ctx context.Context, collection string, filter, update bson.D) (int64, error) {
	res, err := s.coll(collection).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("mongodriver: updateMany: %w", err)
	}
	return res.ModifiedCount, nil
}

// DeleteMany removes every document matching filter.
func (s *Store) DeleteMany(ctx context.Context, collection string, filter bson.D) (int64, error) {
	res, err := s.coll(collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongodriver: deleteMany: %w", err)
	}
	return res.DeletedCount, nil
}

// InsertMany inserts documents and returns how many were written.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []any) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	res, err := s.coll(collection).InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("mongodriver: insertMany: %w", err)
	}
	return len(res.InsertedIDs), nil
}

// EnsureTextIndex creates the text index that $text searches on a
// collection require.
func (s *Store) EnsureTextIndex(ctx context.Context, collection string, fields ...string) error {
	keys := make(bson.D, len(fields))
	for i, f := range fields {
		keys[i] = bson.E{Key: f, Value: "text"}
	}
	_, err := s.coll(collection).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys})
	if err != nil {
		return fmt.Errorf("mongodriver: create text index on %s: %w", collection, err)
	}
	return nil
}

// Drop removes a collection.
func (s *Store) Drop(ctx context.Context, collection string) error {
	if err := s.coll(collection).Drop(ctx); err != nil {
		return fmt.Errorf("mongodriver: drop %s: %w", collection, err)
	}
	return nil
}

// WithTransaction runs fn inside a transaction. Every store call made with
// the context passed to fn joins the transaction, including both round trips
// of a core.Pageable call. Transactions require a replica set.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongodriver: start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("mongodriver: transaction: %w", err)
	}
	return nil
}
