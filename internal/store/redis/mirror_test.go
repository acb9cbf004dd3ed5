package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedWrite struct {
	topic string
	env   string
}

type fakeRedis struct {
	mu     sync.Mutex
	fail   bool
	writes []recordedWrite
}

func (f *fakeRedis) write(_ context.Context, topic string, env []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errFail
	}
	f.writes = append(f.writes, recordedWrite{topic, string(env)})
	return nil
}

func (f *fakeRedis) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeRedis) snapshot() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedWrite(nil), f.writes...)
}

func newTestMirror(t *testing.T, queue int) (*Mirror, *fakeRedis, *fakeClock) {
	t.Helper()
	fr := &fakeRedis{}
	m := newMirror(Config{QueueSize: queue}, nil)
	m.write = fr.write
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m.cb.now = clk.now
	return m, fr, clk
}

func TestMirror_WritesInOrder(t *testing.T) {
	m, fr, _ := newTestMirror(t, 16)
	ctx := context.Background()

	m.Mirror(ctx, "price:BTC", []byte(`{"seq":1}`))
	m.Mirror(ctx, "alerts", []byte(`{"seq":2}`))
	m.send(ctx, <-m.queue)
	m.send(ctx, <-m.queue)

	assert.Equal(t, []recordedWrite{
		{"price:BTC", `{"seq":1}`},
		{"alerts", `{"seq":2}`},
	}, fr.snapshot())
}

func TestMirror_FullQueueDrops(t *testing.T) {
	m, _, _ := newTestMirror(t, 1)
	drops := 0
	m.OnDrop = func() { drops++ }

	m.Mirror(context.Background(), "a", []byte("1"))
	m.Mirror(context.Background(), "a", []byte("2"))
	assert.Equal(t, 1, drops)
}

func TestMirror_BuffersWhileOpenAndFlushesOnRecovery(t *testing.T) {
	m, fr, clk := newTestMirror(t, 16)
	ctx := context.Background()
	flushed := 0
	m.OnFlush = func(n int) { flushed += n }

	fr.setFail(true)
	for i := 0; i < 7; i++ {
		m.send(ctx, pendingWrite{topic: "t", env: []byte{byte('0' + i)}})
	}
	assert.Equal(t, StateOpen, m.Breaker().CurrentState())
	assert.Equal(t, 7, m.Pending())
	assert.Empty(t, fr.snapshot())

	fr.setFail(false)
	clk.advance(11 * time.Second)
	m.send(ctx, pendingWrite{topic: "t", env: []byte("x")})
	require.Equal(t, StateClosed, m.Breaker().CurrentState())

	select {
	case <-m.flushCh:
	default:
		t.Fatal("expected a flush request after recovery")
	}
	m.flush(ctx)

	assert.Equal(t, 0, m.Pending())
	assert.Equal(t, 7, flushed)
	got := fr.snapshot()
	require.Len(t, got, 8)
	assert.Equal(t, "x", got[0].env)
	assert.Equal(t, "0", got[1].env)
	assert.Equal(t, "6", got[7].env)
}

func TestMirror_RunStopsOnCancel(t *testing.T) {
	m, fr, _ := newTestMirror(t, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	m.Mirror(ctx, "news", []byte("{}"))
	assert.Eventually(t, func() bool { return len(fr.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
