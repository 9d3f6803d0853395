package core

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Cursor is a lazy, one-shot sequence of result documents.
// *mongo.Cursor satisfies it.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(v any) error
	Err() error
	Close(ctx context.Context) error
}

// Store runs a compiled pipeline. Any session or transaction the caller
// needs travels in ctx.
type Store interface {
	Aggregate(ctx context.Context, p Pipeline) (Cursor, error)
}

// Writer is implemented by stores that accept filtered writes
type Writer interface {
	UpdateMany(ctx context.Context, collection string, filter, update bson.D) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter bson.D) (int64, error)
}
