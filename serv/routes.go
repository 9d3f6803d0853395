package serv

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/bizfeed/docq/i18n"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/xid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	healthRoute  = "/health"
	metricsRoute = "/metrics"

	requestIDHeader = "X-Request-Id"
)

// routesHandler is the main handler for all routes
func routesHandler(s *Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(middleware.Recoverer)

	if rl := s.conf.RateLimiter; rl.Rate > 0 {
		r.Use(newIPLimiter(rate.Limit(rl.Rate), rl.Bucket).handler)
	}

	if len(s.conf.AllowedOrigins) != 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   s.conf.AllowedOrigins,
			AllowCredentials: true,
		}).Handler)
	}

	r.Get(healthRoute, healthCheckHandler(s))

	if s.metrics != nil {
		r.Method(http.MethodGet, metricsRoute, s.metrics.Handler())
	}

	return otelhttp.NewHandler(setServerHeader(r), serverName)
}

type health struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func healthCheckHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := health{Status: "ok"}
		code := http.StatusOK

		if err := s.Ping(r.Context()); err != nil {
			ctx := s.Context(r.Context(), r.Header.Get("Accept-Language"))
			s.zlog.Error("health check failed",
				zap.String("request_id", w.Header().Get(requestIDHeader)),
				zap.Error(err))
			h = health{Status: "unavailable", Error: i18n.Error(ctx, err)}
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(h) //nolint:errcheck
	}
}

// requestID tags each response with a request id, keeping the caller's
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = xid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// ipLimiter keeps one token bucket per client address
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newIPLimiter(r rate.Limit, burst int) *ipLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ipLimiter{limiters: make(map[string]*rate.Limiter), rate: r, burst: burst}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[ip] = lim
	}
	return lim
}

func (l *ipLimiter) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.get(ip).Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
