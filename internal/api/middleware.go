package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hackgods/clinic-scheduling-engine/internal/actor"
	"github.com/hackgods/clinic-scheduling-engine/internal/metrics"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
	HeaderPatientID = "X-Patient-ID"
)

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// LoggingMiddleware logs every request with method, path, status, duration and request ID,
// and records the request metrics under the matched route pattern.
func LoggingMiddleware(log *zap.Logger, m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap ResponseWriter to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			route := routePattern(r)

			if m != nil {
				m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
				m.RequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
			}

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", duration),
				zap.String("request_id", GetRequestID(r.Context())),
			)
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// ActorMiddleware reads the caller identity the gateway has already authenticated.
// Requests without identity headers run as guests.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawRole := r.Header.Get(HeaderActorRole)
		if rawRole == "" {
			next.ServeHTTP(w, r)
			return
		}

		role := actor.Role(rawRole)
		if !role.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_actor_role", "unknown role "+strconv.Quote(rawRole))
			return
		}

		who := actor.Actor{Role: role}
		if raw := r.Header.Get(HeaderActorID); raw != "" {
			id, ok := parseUUID(w, raw, "actor_id")
			if !ok {
				return
			}
			who.ID = id
		}
		if raw := r.Header.Get(HeaderPatientID); raw != "" {
			id, ok := parseUUID(w, raw, "patient_id")
			if !ok {
				return
			}
			who.PatientID = &id
		}
		if role != actor.RoleGuest && who.ID == uuid.Nil {
			writeError(w, http.StatusBadRequest, "invalid_actor_id", HeaderActorID+" is required for role "+rawRole)
			return
		}

		next.ServeHTTP(w, r.WithContext(actor.WithActor(r.Context(), who)))
	})
}

// RateLimitConfig configures the per-client limiter on public endpoints.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL drops a client's bucket once it has been unused this long. Default 10m.
	IdleTTL time.Duration
}

const defaultLimiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type clientLimiters struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	now       func() time.Time
	limiters  map[string]*clientLimiter
	lastSweep time.Time
}

func newClientLimiters(cfg RateLimitConfig, now func() time.Time) *clientLimiters {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultLimiterIdleTTL
	}
	return &clientLimiters{cfg: cfg, now: now, limiters: make(map[string]*clientLimiter), lastSweep: now()}
}

func (c *clientLimiters) get(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= c.cfg.IdleTTL {
		for k, cl := range c.limiters {
			if now.Sub(cl.lastSeen) >= c.cfg.IdleTTL {
				delete(c.limiters, k)
			}
		}
		c.lastSweep = now
	}

	cl, ok := c.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(c.cfg.RequestsPerSecond), c.cfg.Burst)}
		c.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimitMiddleware keeps one token bucket per client IP. A non-positive rate disables it.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	store := newClientLimiters(cfg, time.Now)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !store.get(clientIP(r)).Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
