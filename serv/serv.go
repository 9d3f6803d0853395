package serv

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bizfeed/docq/core"
	"github.com/bizfeed/docq/i18n"
	"github.com/bizfeed/docq/queryfile"
	"github.com/bizfeed/docq/serv/internal/util"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version string

const serverName = "docq"

// Service wires a store, the query executor and the supporting pieces
// configured by Config
type Service struct {
	conf    *Config
	log     *zap.SugaredLogger // sugared logger
	zlog    *zap.Logger        // faster logger
	fs      afero.Fs
	tp      trace.TracerProvider
	db      *dbConn
	exec    *core.Executor
	tr      *i18n.Table
	metrics *Metrics

	mu      sync.RWMutex
	queries map[string]*queryfile.File

	srv *http.Server
}

type Option func(*Service) error

// OptionSetFS sets the filesystem translation and query files are read from
func OptionSetFS(fs afero.Fs) Option {
	return func(s *Service) error {
		s.fs = fs
		return nil
	}
}

// OptionSetLogger replaces the logger built from the config
func OptionSetLogger(l *zap.Logger) Option {
	return func(s *Service) error {
		s.zlog = l
		return nil
	}
}

func OptionSetTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) error {
		s.tp = tp
		return nil
	}
}

// SetVersion sets the version reported in logs
func SetVersion(v string) { version = v }

// NewService connects to the configured store and loads translations and
// query files
func NewService(ctx context.Context, conf *Config, options ...Option) (*Service, error) {
	s := &Service{conf: conf, fs: afero.NewOsFs()}

	for _, op := range options {
		if err := op(s); err != nil {
			return nil, err
		}
	}

	if s.zlog == nil {
		zlog, err := util.NewLogger(conf.ShouldUseJSONLogs(), conf.LogLevel)
		if err != nil {
			return nil, err
		}
		s.zlog = zlog
	}
	s.log = s.zlog.Sugar()

	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) init(ctx context.Context) error {
	var err error

	s.tr, err = i18n.Load(s.fs, s.conf.AbsolutePath(s.conf.I18n.Path), s.conf.I18n.DefaultLanguage)
	if err != nil {
		return errors.Wrap(err, "translations")
	}

	s.queries, err = queryfile.LoadDir(s.fs, s.conf.AbsolutePath(s.conf.Query.Path))
	if err != nil {
		return errors.Wrap(err, "query files")
	}

	sort, err := s.conf.SortFields()
	if err != nil {
		return err
	}
	comp, err := core.NewCompiler(
		core.WithDefaultSort(sort...),
		core.WithCache(s.conf.Query.CacheSize))
	if err != nil {
		return errors.Wrap(err, "compiler")
	}

	if s.conf.Metrics.Enable {
		s.metrics = NewMetrics()
	}

	s.db, err = newDB(ctx, s.conf, s.zlog)
	if err != nil {
		return err
	}

	opts := []core.Option{
		core.WithLogger(s.zlog.Named("exec")),
		core.WithCompiler(comp),
		core.WithMaxPageSize(s.conf.Query.MaxPageSize),
		core.WithTracerProvider(s.tp),
	}
	if s.metrics != nil {
		opts = append(opts, core.WithObserver(s.metrics))
	}
	s.exec = core.NewExecutor(s.db.store, opts...)

	s.log.Debugf("loaded %d query files and languages %s",
		len(s.queries), strings.Join(s.tr.Languages(), ","))
	return nil
}

func (s *Service) Executor() *core.Executor { return s.exec }

func (s *Service) Store() core.Store { return s.db.store }

func (s *Service) Translations() *i18n.Table { return s.tr }

// Context returns ctx carrying the translation table and the language
// negotiated from an Accept-Language value
func (s *Service) Context(ctx context.Context, acceptLanguage string) context.Context {
	ctx = i18n.WithTable(ctx, s.tr)
	return i18n.WithLanguage(ctx, s.tr.Match(acceptLanguage))
}

// Queries lists the names of the loaded query files
func (s *Service) Queries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.queries))
	for n := range s.queries {
		names = append(names, n)
	}
	return names
}

// Query returns the named query file
func (s *Service) Query(name string) (*queryfile.File, error) {
	s.mu.RLock()
	f, ok := s.queries[name]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(core.ErrNotFound, "query %q", name)
	}
	return f, nil
}

// RunQuery runs a named query and returns one page of raw documents. A zero
// page or size falls back to the query file and then to the config.
func (s *Service) RunQuery(ctx context.Context, name string, page, size int64) (core.PagingResult[bson.M], error) {
	var res core.PagingResult[bson.M]

	f, err := s.Query(name)
	if err != nil {
		return res, err
	}
	q, err := f.Build()
	if err != nil {
		return res, err
	}

	if page == 0 {
		page = max(f.Page, 1)
	}
	if size == 0 {
		size = f.Size
	}
	if size == 0 {
		size = s.conf.Query.DefaultPageSize
	}
	return core.Pageable[bson.M](ctx, s.exec, q, page, size)
}

// Explain compiles a named query without running it
func (s *Service) Explain(name string) (core.Compiled, error) {
	f, err := s.Query(name)
	if err != nil {
		return core.Compiled{}, err
	}
	q, err := f.Build()
	if err != nil {
		return core.Compiled{}, err
	}
	return s.exec.Compile(q)
}

// Ping checks the store is reachable within the configured ping timeout
func (s *Service) Ping(ctx context.Context) error {
	if t := s.conf.DB.PingTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	return s.db.ping(ctx)
}

// Handler returns the HTTP handler serving health and metrics
func (s *Service) Handler() http.Handler {
	return routesHandler(s)
}

// Start serves HTTP until ctx is done or the process is interrupted
func (s *Service) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.srv = &http.Server{
		Addr:              s.conf.HostPort,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.srv.RegisterOnShutdown(func() {
		s.log.Info("shutdown complete")
	})

	ver := version
	if ver == "" {
		ver = "not-set"
	}

	fields := []zapcore.Field{
		zap.String("version", ver),
		zap.String("host-port", s.conf.HostPort),
		zap.String("app-name", s.conf.AppName),
		zap.String("env", os.Getenv("GO_ENV")),
		zap.Bool("production", s.conf.Production),
		zap.String("database", s.conf.DB.Type),
		zap.Int("queries", len(s.Queries())),
	}

	if err := s.initQueryWatcher(ctx); err != nil {
		return err
	}

	l, err := net.Listen("tcp", s.conf.HostPort)
	if err != nil {
		return fmt.Errorf("failed to init port: %w", err)
	}
	s.zlog.Info("docq started", fields...)

	errc := make(chan error, 1)
	go func() {
		errc <- s.srv.Serve(l)
	}()

	select {
	case err := <-errc:
		if err != http.ErrServerClosed {
			return fmt.Errorf("failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		s.log.Warnf("shutdown: %s", err)
	}
	return nil
}

// Close releases the store connection
func (s *Service) Close(ctx context.Context) error {
	defer s.zlog.Sync() //nolint:errcheck
	if s.db == nil {
		return nil
	}
	if err := s.db.close(ctx); err != nil {
		return err
	}
	s.log.Infof("closed database connection: %s", s.conf.DB.Type)
	return nil
}

// Set the server header
func setServerHeader(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", serverName)
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
