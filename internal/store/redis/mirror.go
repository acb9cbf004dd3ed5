// Package redis mirrors outbound stream events onto Redis so other
// processes can follow the same topics.
//
// Each event is PUBLISHed on "pub:<topic>" and SET as "latest:<topic>".
// Writes run on a single goroutine behind a circuit breaker; while the
// breaker is open events are held in a bounded buffer and flushed once a
// probe succeeds.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultQueueSize  = 1024
	defaultMaxPending = 10000
	defaultLatestTTL  = 30 * time.Minute
)

// Config configures the Redis mirror.
type Config struct {
	Addr      string // e.g. "localhost:6379"
	Password  string
	DB        int
	QueueSize int
	LatestTTL time.Duration
}

type pendingWrite struct {
	topic string
	env   []byte
}

type writeFunc func(ctx context.Context, topic string, env []byte) error

// Mirror implements model.EventMirror.
type Mirror struct {
	client *goredis.Client
	write  writeFunc
	cb     *CircuitBreaker
	log    *slog.Logger
	ttl    time.Duration

	queue   chan pendingWrite
	flushCh chan struct{}

	mu         sync.Mutex
	pending    []pendingWrite
	maxPending int

	// OnDrop is called when an event is discarded (optional).
	OnDrop func()
	// OnFlush is called after buffered events are replayed (optional).
	OnFlush func(count int)
}

// New connects to Redis and returns a Mirror. Call Run to start writing.
func New(cfg Config, log *slog.Logger) (*Mirror, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	m := newMirror(cfg, log)
	m.client = client
	m.write = m.pipelineWrite
	m.log.Info("connected", "addr", cfg.Addr)
	return m, nil
}

func newMirror(cfg Config, log *slog.Logger) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = defaultLatestTTL
	}
	m := &Mirror{
		cb:         NewCircuitBreaker(5, 10*time.Second),
		log:        log.With("component", "redis_mirror"),
		ttl:        cfg.LatestTTL,
		queue:      make(chan pendingWrite, cfg.QueueSize),
		flushCh:    make(chan struct{}, 1),
		maxPending: defaultMaxPending,
	}
	m.cb.OnStateChange = func(from, to State) {
		m.log.Warn("circuit breaker transition", "from", from.String(), "to", to.String())
		if to == StateClosed {
			m.requestFlush()
		}
	}
	return m
}

// Mirror queues env for topic. It never blocks; a full queue drops the event.
func (m *Mirror) Mirror(_ context.Context, topic string, env []byte) {
	select {
	case m.queue <- pendingWrite{topic: topic, env: env}:
	default:
		m.dropped()
	}
}

// Run drains the queue until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.flushCh:
			m.flush(ctx)
		case pw := <-m.queue:
			m.send(ctx, pw)
		}
	}
}

func (m *Mirror) send(ctx context.Context, pw pendingWrite) {
	err := m.cb.Execute(func() error {
		return m.write(ctx, pw.topic, pw.env)
	})
	switch {
	case err == nil:
		if m.Pending() > 0 {
			m.requestFlush()
		}
	case err == ErrCircuitOpen:
		m.buffer(pw)
	default:
		m.log.Error("mirror write failed", "topic", pw.topic, "error", err)
		m.buffer(pw)
	}
}

func (m *Mirror) requestFlush() {
	select {
	case m.flushCh <- struct{}{}:
	default:
	}
}

func (m *Mirror) pipelineWrite(ctx context.Context, topic string, env []byte) error {
	pipe := m.client.Pipeline()
	pipe.Publish(ctx, "pub:"+topic, env)
	pipe.Set(ctx, "latest:"+topic, env, m.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *Mirror) buffer(pw pendingWrite) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) >= m.maxPending {
		m.pending = m.pending[1:]
		m.dropped()
	}
	m.pending = append(m.pending, pw)
}

func (m *Mirror) flush(ctx context.Context) {
	m.mu.Lock()
	toFlush := m.pending
	m.pending = nil
	m.mu.Unlock()
	if len(toFlush) == 0 {
		return
	}

	for _, pw := range toFlush {
		m.send(ctx, pw)
	}
	m.log.Info("flushed buffered events", "count", len(toFlush))
	if m.OnFlush != nil {
		m.OnFlush(len(toFlush))
	}
}

func (m *Mirror) dropped() {
	if m.OnDrop != nil {
		m.OnDrop()
	}
}

// Pending returns the number of events waiting for the breaker to close.
func (m *Mirror) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Breaker exposes the circuit breaker for health reporting.
func (m *Mirror) Breaker() *CircuitBreaker { return m.cb }

// Ping checks the Redis connection.
func (m *Mirror) Ping(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (m *Mirror) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}
