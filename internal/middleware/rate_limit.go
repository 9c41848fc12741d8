package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/welldanyogia/contact-mailer/internal/logger"
	"github.com/welldanyogia/contact-mailer/internal/metrics"
)

// Counter is a fixed-window hit counter shared by the admission guards.
//
// Hit records one request for key and returns the count inside the current
// window together with the time left until the window closes. The first hit
// of a key, or the first hit after its window elapsed, opens a new window
// with count 1. Implementations must make the increment and the window check
// a single atomic step.
type Counter interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (count int64, ttl time.Duration, err error)
}

type windowState struct {
	start   time.Time
	expires time.Time
	count   int64
}

// MemoryCounter implements Counter for a single process.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*windowState
	now     func() time.Time
}

// NewMemoryCounter creates an in-memory counter using the wall clock.
func NewMemoryCounter() *MemoryCounter {
	return NewMemoryCounterWithClock(time.Now)
}

// NewMemoryCounterWithClock creates an in-memory counter reading time from now.
func NewMemoryCounterWithClock(now func() time.Time) *MemoryCounter {
	return &MemoryCounter{
		windows: make(map[string]*windowState),
		now:     now,
	}
}

// Hit implements Counter. Once a key is over its limit the stored count stays
// at limit+1 until the window closes.
func (c *MemoryCounter) Hit(_ context.Context, key string, limit int, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.expires) {
		w = &windowState{start: now, expires: now.Add(window), count: 1}
		c.windows[key] = w
		return w.count, window, nil
	}

	if w.count <= int64(limit) {
		w.count++
	}
	return w.count, w.expires.Sub(now), nil
}

// Len returns the number of tracked keys.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// Sweep removes every key whose window has closed.
func (c *MemoryCounter) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, w := range c.windows {
		if !now.Before(w.expires) {
			delete(c.windows, key)
		}
	}
}

// StartCleanup sweeps expired keys every interval until ctx is done.
func (c *MemoryCounter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

// GuardConfig describes one guarded endpoint.
type GuardConfig struct {
	// Endpoint namespaces the counter keys and labels metrics, e.g. "send".
	Endpoint string
	Limit    int
	Window   time.Duration
	// Message is the localized error returned with 429.
	Message string
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// Remaining returns how many more requests the window admits.
func (d Decision) Remaining() int {
	remaining := int64(d.Limit) - d.Count
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// Guard limits requests per client IP for a single endpoint.
type Guard struct {
	cfg     GuardConfig
	counter Counter
	logger  *slog.Logger
	now     func() time.Time
}

// NewGuard creates a guard backed by counter.
func NewGuard(cfg GuardConfig, counter Counter, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		cfg:     cfg,
		counter: counter,
		logger:  log,
		now:     time.Now,
	}
}

// Admit records a request from clientIP and reports whether it may proceed.
// A failing counter backend admits the request.
func (g *Guard) Admit(ctx context.Context, clientIP string) Decision {
	key := g.cfg.Endpoint + ":" + clientIP

	count, ttl, err := g.counter.Hit(ctx, key, g.cfg.Limit, g.cfg.Window)
	if err != nil {
		metrics.RateLimitErrorsTotal.WithLabelValues(g.cfg.Endpoint).Inc()
		g.logger.WarnContext(ctx, "rate limit counter unavailable, admitting request",
			slog.String("correlation_id", logger.GetCorrelationID(ctx)),
			slog.String("endpoint", g.cfg.Endpoint),
			slog.String("error", err.Error()),
		)
		return Decision{Allowed: true, Limit: g.cfg.Limit}
	}

	return Decision{
		Allowed:    count <= int64(g.cfg.Limit),
		Count:      count,
		Limit:      g.cfg.Limit,
		RetryAfter: ttl,
	}
}

// Middleware rejects requests over the limit with 429 before they reach next.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		d := g.Admit(r.Context(), ip)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(g.now().Add(d.RetryAfter).Unix(), 10))

		if !d.Allowed {
			metrics.RateLimitedTotal.WithLabelValues(g.cfg.Endpoint).Inc()
			g.logger.InfoContext(r.Context(), "request rate limited",
				slog.String("correlation_id", logger.GetCorrelationID(r.Context())),
				slog.String("endpoint", g.cfg.Endpoint),
				slog.String("client_ip", ip),
				slog.Int64("count", d.Count),
			)
			writeRateLimitError(w, d.RetryAfter, g.cfg.Message)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeRateLimitError writes a 429 Too Many Requests response
func writeRateLimitError(w http.ResponseWriter, retryAfter time.Duration, message string) {
	seconds := int64((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
