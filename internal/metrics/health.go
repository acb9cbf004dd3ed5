package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Pinger is a dependency that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus tracks dependency health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	sqlite Pinger
	redis  Pinger

	lastTick        time.Time
	lastTickSource  string
	sqliteOK        bool
	sqliteLatencyMs float64
	redisOK         bool
	redisLatencyMs  float64
	lastCheckAt     time.Time
	startedAt       time.Time
	now             func() time.Time

	// Clients reports the number of connected stream clients (optional).
	Clients func() int
}

// NewHealthStatus creates a health tracker. Either dependency may be nil
// when disabled by configuration.
func NewHealthStatus(sqlite, redis Pinger) *HealthStatus {
	return &HealthStatus{
		sqlite:    sqlite,
		redis:     redis,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// RecordTick notes the time and source of the latest quote.
func (h *HealthStatus) RecordTick(t time.Time, source string) {
	h.mu.Lock()
	h.lastTick = t
	h.lastTickSource = source
	h.mu.Unlock()
}

// Check probes every dependency once.
func (h *HealthStatus) Check(ctx context.Context) {
	sqliteOK, sqliteMs := probe(ctx, h.sqlite)
	redisOK, redisMs := probe(ctx, h.redis)

	h.mu.Lock()
	h.sqliteOK, h.sqliteLatencyMs = sqliteOK, sqliteMs
	h.redisOK, h.redisLatencyMs = redisOK, redisMs
	h.lastCheckAt = h.now()
	h.mu.Unlock()
}

func probe(ctx context.Context, p Pinger) (bool, float64) {
	if p == nil {
		return false, 0
	}
	start := time.Now()
	err := p.Ping(ctx)
	return err == nil, float64(time.Since(start).Microseconds()) / 1000.0
}

// StartLivenessChecker probes dependencies every interval until ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			h.Check(probeCtx)
			cancel()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

type healthReport struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	LastTickTime    string  `json:"last_tick_time,omitempty"`
	LastTickSource  string  `json:"last_tick_source,omitempty"`
	TickAge         string  `json:"tick_age,omitempty"`
	SQLiteEnabled   bool    `json:"sqlite_enabled"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisOK         bool    `json:"redis_ok"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	Clients         int     `json:"clients"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

func (h *HealthStatus) report() (healthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	r := healthReport{
		Status:          "healthy",
		Uptime:          now.Sub(h.startedAt).Round(time.Second).String(),
		LastTickSource:  h.lastTickSource,
		SQLiteEnabled:   h.sqlite != nil,
		SQLiteOK:        h.sqliteOK,
		SQLiteLatencyMs: h.sqliteLatencyMs,
		RedisEnabled:    h.redis != nil,
		RedisOK:         h.redisOK,
		RedisLatencyMs:  h.redisLatencyMs,
	}
	if !h.lastTick.IsZero() {
		r.LastTickTime = h.lastTick.UTC().Format(time.RFC3339)
		r.TickAge = now.Sub(h.lastTick).Round(time.Millisecond).String()
	}
	if !h.lastCheckAt.IsZero() {
		r.LastCheckAt = h.lastCheckAt.UTC().Format(time.RFC3339)
	}
	if h.Clients != nil {
		r.Clients = h.Clients()
	}

	code := http.StatusOK
	if (r.SQLiteEnabled && !h.sqliteOK) || (r.RedisEnabled && !h.redisOK) {
		r.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	return r, code
}

// ServeHTTP handles /healthz.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	r, code := h.report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(r)
}
