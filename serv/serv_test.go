package serv

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bizfeed/docq/core"
	"github.com/bizfeed/docq/memstore"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

const testConfig = `
database:
  type: memory
query:
  default_page_size: 2
  default_sort: ["name"]
cors_allowed_origins: ["https://app.example"]
`

func newTestService(t *testing.T, src string, opts ...Option) (*Service, *memstore.Store) {
	t.Helper()

	conf, err := NewConfig(src, "yaml")
	require.NoError(t, err)
	conf.ConfigPath = "/app"

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/queries/active.yaml", []byte(`
collection: members
filters:
  - { field: deleted, type: bool, value: false }
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/queries/broken.yaml", []byte(`
collection: members
filters:
  - { field: age, type: number, value: old }
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/i18n/en.yaml", []byte("internal: \"Something broke.\"\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/i18n/es.yaml", []byte("internal: \"Algo se rompió.\"\n"), 0o644))

	opts = append([]Option{OptionSetFS(fs), OptionSetLogger(zaptest.NewLogger(t))}, opts...)
	s, err := NewService(context.Background(), conf, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) }) //nolint:errcheck

	st := s.Store().(*memstore.Store)
	for _, m := range []bson.M{
		{"name": "carla", "deleted": false},
		{"name": "ana", "deleted": false},
		{"name": "bea", "deleted": false},
		{"name": "dan", "deleted": true},
	} {
		require.NoError(t, st.Insert("members", m))
	}
	return s, st
}

func TestRunQuery(t *testing.T) {
	s, _ := newTestService(t, testConfig)
	ctx := context.Background()

	assert.ElementsMatch(t, []string{"active", "broken"}, s.Queries())
	assert.Equal(t, []string{"en", "es"}, s.Translations().Languages())

	res, err := s.RunQuery(ctx, "active", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.TotalItems)
	assert.Equal(t, int64(2), res.TotalPages)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "ana", res.Items[0]["name"])
	assert.Equal(t, "bea", res.Items[1]["name"])

	res, err = s.RunQuery(ctx, "active", 2, 0)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "carla", res.Items[0]["name"])

	_, err = s.RunQuery(ctx, "nope", 1, 10)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.RunQuery(ctx, "broken", 1, 10)
	assert.Error(t, err)
}

func TestExplain(t *testing.T) {
	s, _ := newTestService(t, testConfig)

	c, err := s.Explain("active")
	require.NoError(t, err)
	assert.Equal(t, []core.StageKind{core.StageMatch, core.StageSort}, c.Data.Kinds())
	assert.Equal(t, []core.StageKind{core.StageMatch, core.StageCount}, c.Count.Kinds())
}

func TestHealthRoute(t *testing.T) {
	s, _ := newTestService(t, testConfig)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, healthRoute, nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, serverName, w.Header().Get("Server"))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	var body health
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)

	// the caller's request id is kept
	req = httptest.NewRequest(http.MethodGet, healthRoute, nil)
	req.Header.Set(requestIDHeader, "abc123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc123", w.Header().Get(requestIDHeader))
}

func TestHealthRouteTranslatesFailure(t *testing.T) {
	s, _ := newTestService(t, testConfig)
	s.db.ping = func(context.Context) error { return errors.New("connection refused") }

	req := httptest.NewRequest(http.MethodGet, healthRoute, nil)
	req.Header.Set("Accept-Language", "es-EC,es;q=0.9")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body health
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "Algo se rompió.", body.Error)
}

func TestMetricsRoute(t *testing.T) {
	s, _ := newTestService(t, testConfig)
	_, err := s.RunQuery(context.Background(), "active", 1, 2)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, metricsRoute, nil))
	require.Equal(t, http.StatusOK, w.Code)

	b, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `docq_store_round_trips_total{collection="members",phase="count"} 1`)
	assert.Contains(t, string(b), `docq_store_round_trips_total{collection="members",phase="data"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	s, _ := newTestService(t, testConfig+"metrics:\n  enable: false\n")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, metricsRoute, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimiter(t *testing.T) {
	s, _ := newTestService(t, testConfig+"rate_limiter:\n  rate: 0.001\n  bucket: 1\n")
	h := s.Handler()

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, healthRoute, nil)
		req.RemoteAddr = "192.0.2.10:5000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes[i] = w.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)

	// another client has its own bucket
	req := httptest.NewRequest(http.MethodGet, healthRoute, nil)
	req.RemoteAddr = "192.0.2.11:5000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoundTripsAreTraced(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { tp.Shutdown(context.Background()) }) //nolint:errcheck

	s, _ := newTestService(t, testConfig, OptionSetTracerProvider(tp))
	_, err := s.RunQuery(context.Background(), "active", 1, 2)
	require.NoError(t, err)

	var names []string
	for _, sp := range sr.Ended() {
		names = append(names, sp.Name())
	}
	assert.Equal(t, []string{"docq.count", "docq.data"}, names)
}
