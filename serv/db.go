package serv

import (
	"context"

	"github.com/bizfeed/docq/core"
	"github.com/bizfeed/docq/memstore"
	"github.com/bizfeed/docq/mongodriver"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// dbConn is the store the service runs queries against, plus the hooks the
// service needs around it
type dbConn struct {
	store core.Store
	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// newDB opens the store named by database.type. Callers own the returned
// connection and must call its close hook.
func newDB(ctx context.Context, conf *Config, log *zap.Logger) (*dbConn, error) {
	switch conf.DB.Type {
	case "memory":
		log.Warn("using the in-memory store, data is lost on exit")
		st := memstore.New()
		return &dbConn{
			store: st,
			ping:  func(context.Context) error { return nil },
			close: func(context.Context) error { return nil },
		}, nil

	case "", "mongodb":
		st, err := mongodriver.Open(ctx, mongodriver.Config{
			URI:            conf.MongoURI(),
			Database:       conf.DB.DBName,
			Prefix:         conf.DB.CollectionPrefix,
			ConnectRetries: conf.DB.ConnectRetries,
			PingTimeout:    conf.DB.PingTimeout,
		}, log)
		if err != nil {
			return nil, errors.Wrap(err, "database init")
		}
		return &dbConn{store: st, ping: st.Ping, close: st.Close}, nil

	default:
		return nil, errors.Errorf("unsupported database type %q: supported types are mongodb, memory", conf.DB.Type)
	}
}
