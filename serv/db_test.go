package serv

import (
	"context"
	"testing"
	"time"

	"github.com/bizfeed/docq/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewDBMemory(t *testing.T) {
	c, err := NewConfig("database:\n  type: memory\n", "yaml")
	require.NoError(t, err)

	ctx := context.Background()
	db, err := newDB(ctx, c, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &memstore.Store{}, db.store)
	assert.NoError(t, db.ping(ctx))
	assert.NoError(t, db.close(ctx))
}

func TestNewDBUnsupported(t *testing.T) {
	c := &Config{DB: Database{Type: "postgres"}}
	_, err := newDB(context.Background(), c, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestNewDBMongoUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping connection attempt in short mode")
	}

	c := &Config{DB: Database{
		Type:           "mongodb",
		ConnString:     "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=100",
		DBName:         "docq",
		ConnectRetries: 1,
		PingTimeout:    200 * time.Millisecond,
	}}
	_, err := newDB(context.Background(), c, zap.NewNop())
	assert.ErrorContains(t, err, "database init")
}
