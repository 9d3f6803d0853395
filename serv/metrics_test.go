package serv

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()

	m.RoundTrip("posts", "data", 3*time.Millisecond, nil)
	m.RoundTrip("posts", "data", 5*time.Millisecond, errors.New("boom"))
	m.RoundTrip("posts", "count", time.Millisecond, nil)
	m.Skipped("posts")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.trips.WithLabelValues("posts", "data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trips.WithLabelValues("posts", "count")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("posts", "data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues("posts")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.latency))
}
