package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"coinstream/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	id     string
	mu     sync.Mutex
	msgs   [][]byte
	err    error
	closed bool
}

func (s *fakeSink) ID() string { return s.id }

func (s *fakeSink) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSink) envelopes(t *testing.T) []model.Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Envelope, len(s.msgs))
	for i, m := range s.msgs {
		require.NoError(t, json.Unmarshal(m, &out[i]), "raw: %s", m)
	}
	return out
}

type recordingMirror struct {
	mu     sync.Mutex
	topics []string
}

func (m *recordingMirror) Mirror(_ context.Context, topic string, _ []byte) {
	m.mu.Lock()
	m.topics = append(m.topics, topic)
	m.mu.Unlock()
}

func newTestBroadcaster(sinks ...*fakeSink) *Broadcaster {
	b := NewBroadcaster(NewRegistry(), nil, nil)
	b.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	for _, s := range sinks {
		b.Attach(s)
	}
	return b
}

func TestBroadcaster_NoSubscribersIsNoop(t *testing.T) {
	b := newTestBroadcaster()
	n, err := b.Publish("price:BTC", model.Event{Name: model.EventPriceUpdate, Data: map[string]float64{"price": 1}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBroadcaster_DeliversToSubscribersOnly(t *testing.T) {
	a, c := &fakeSink{id: "a"}, &fakeSink{id: "c"}
	b := newTestBroadcaster(a, c)
	b.Registry().Subscribe("a", "price:BTC")
	b.Registry().Subscribe("c", "price:ETH")

	n, err := b.Publish("price:BTC", model.Event{Name: model.EventPriceUpdate, Data: map[string]any{"symbol": "BTC", "price": 51000.0}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	envs := a.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, model.EventPriceUpdate, envs[0].Type)
	assert.Equal(t, "price:BTC", envs[0].Topic)
	assert.Equal(t, int64(1), envs[0].Seq)
	assert.JSONEq(t, `{"symbol":"BTC","price":51000}`, string(envs[0].Data))
	assert.Empty(t, c.envelopes(t))
}

func TestBroadcaster_BrokenClientIsolatedAndRemoved(t *testing.T) {
	ok1, broken, ok2 := &fakeSink{id: "ok1"}, &fakeSink{id: "broken", err: errors.New("write: broken pipe")}, &fakeSink{id: "ok2"}
	b := newTestBroadcaster(ok1, broken, ok2)
	for _, id := range []string{"ok1", "broken", "ok2"} {
		b.Registry().Subscribe(id, model.TopicAlerts)
	}

	var evicted []string
	b.OnEvict = func(id string, err error) { evicted = append(evicted, id) }

	n, err := b.Publish(model.TopicAlerts, model.Event{Name: model.EventAlertTriggered, Data: map[string]string{"id": "x"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, ok1.envelopes(t), 1)
	assert.Len(t, ok2.envelopes(t), 1)

	assert.Equal(t, []string{"broken"}, evicted)
	assert.True(t, broken.closed)
	assert.ElementsMatch(t, []string{"ok1", "ok2"}, b.Registry().SubscribersOf(model.TopicAlerts))
	assert.Equal(t, 2, b.Clients())
}

func TestBroadcaster_SlowConsumerEvicted(t *testing.T) {
	slow := &fakeSink{id: "slow", err: ErrSlowConsumer}
	b := newTestBroadcaster(slow)
	b.Registry().Subscribe("slow", model.TopicNews)

	var reason string
	b.OnEvict = func(_ string, err error) { reason = EvictReason(err) }

	_, err := b.Publish(model.TopicNews, model.Event{Name: model.EventNewsUpdate, Data: struct{}{}})
	require.NoError(t, err)
	assert.Equal(t, "slow_consumer", reason)
	assert.Zero(t, b.Clients())
}

func TestBroadcaster_PerClientFIFO(t *testing.T) {
	s := &fakeSink{id: "s"}
	b := newTestBroadcaster(s)
	b.Registry().Subscribe("s", "price:BTC")
	b.Registry().Subscribe("s", model.TopicMarket)

	for i := 0; i < 100; i++ {
		topic := "price:BTC"
		if i%2 == 1 {
			topic = model.TopicMarket
		}
		_, err := b.Publish(topic, model.Event{Name: "n", Data: i})
		require.NoError(t, err)
	}

	envs := s.envelopes(t)
	require.Len(t, envs, 100)
	for i, env := range envs {
		var v int
		require.NoError(t, json.Unmarshal(env.Data, &v))
		assert.Equal(t, i, v)
		assert.Equal(t, int64(i+1), env.Seq)
	}
}

func TestBroadcaster_ConcurrentPublishKeepsSeqOrderPerClient(t *testing.T) {
	s := &fakeSink{id: "s"}
	b := newTestBroadcaster(s)
	b.Registry().Subscribe("s", model.TopicStrategy)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Publish(model.TopicStrategy, model.Event{Name: "n", Data: i})
			}
		}()
	}
	wg.Wait()

	envs := s.envelopes(t)
	require.Len(t, envs, 400)
	for i := 1; i < len(envs); i++ {
		assert.Less(t, envs[i-1].Seq, envs[i].Seq)
	}
}

func TestBroadcaster_SendTo(t *testing.T) {
	s := &fakeSink{id: "s"}
	b := newTestBroadcaster(s)

	require.NoError(t, b.SendTo("s", model.Event{Name: "pong", Data: map[string]int{"a": 1}}))
	envs := s.envelopes(t)
	require.Len(t, envs, 1)
	assert.Empty(t, envs[0].Topic)
	assert.Zero(t, envs[0].Seq)

	assert.ErrorIs(t, b.SendTo("missing", model.Event{Name: "pong"}), ErrClientClosed)
}

func TestBroadcaster_SubscribeReplaysLatestOnce(t *testing.T) {
	early := &fakeSink{id: "early"}
	late := &fakeSink{id: "late"}
	b := newTestBroadcaster(early, late)
	b.Registry().Subscribe("early", model.TopicMarket)

	added, err := b.Subscribe("late", model.TopicNews)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Empty(t, late.envelopes(t), "nothing published yet")

	b.Publish(model.TopicMarket, model.Event{Name: model.EventMarketOverview, Data: 1})

	added, err = b.Subscribe("early", model.TopicMarket)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = b.Subscribe("late", model.TopicMarket)
	require.NoError(t, err)
	assert.True(t, added)

	b.Publish(model.TopicMarket, model.Event{Name: model.EventMarketOverview, Data: 2})

	seqs := func(s *fakeSink) []int64 {
		var out []int64
		for _, e := range s.envelopes(t) {
			out = append(out, e.Seq)
		}
		return out
	}
	assert.Equal(t, []int64{1, 2}, seqs(early))
	assert.Equal(t, []int64{1, 2}, seqs(late))
}

func TestBroadcaster_SubscribeDuringPublishKeepsSeqOrder(t *testing.T) {
	b := newTestBroadcaster()
	sinks := make([]*fakeSink, 20)
	for i := range sinks {
		sinks[i] = &fakeSink{id: fmt.Sprintf("c%d", i)}
		b.Attach(sinks[i])
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			b.Publish(model.TopicMarket, model.Event{Name: model.EventMarketOverview, Data: i})
		}
	}()
	for _, s := range sinks {
		_, err := b.Subscribe(s.id, model.TopicMarket)
		require.NoError(t, err)
	}
	<-done

	for _, s := range sinks {
		envs := s.envelopes(t)
		for i := 1; i < len(envs); i++ {
			require.Less(t, envs[i-1].Seq, envs[i].Seq, "client %s", s.id)
		}
	}
}

func TestBroadcaster_SubscribeReplayFailureIsReturned(t *testing.T) {
	s := &fakeSink{id: "s", err: ErrSlowConsumer}
	b := newTestBroadcaster(s)
	b.Publish(model.TopicNews, model.Event{Name: model.EventNewsUpdate, Data: 1})

	added, err := b.Subscribe("s", model.TopicNews)
	assert.True(t, added)
	assert.ErrorIs(t, err, ErrSlowConsumer)
}

func TestBroadcaster_UnmarshalablePayload(t *testing.T) {
	b := newTestBroadcaster()
	_, err := b.Publish("news", model.Event{Name: "bad", Data: make(chan int)})
	assert.Error(t, err)
}

func TestEncodeEnvelope(t *testing.T) {
	now := time.Date(2026, 2, 25, 10, 0, 1, 500, time.UTC)
	buf := encodeEnvelope("price_update", "price:BTC", []byte(`{"price":1.5}`), now, 42)

	var env model.Envelope
	require.NoError(t, json.Unmarshal(buf, &env), "raw: %s", buf)
	assert.Equal(t, "price_update", env.Type)
	assert.Equal(t, "price:BTC", env.Topic)
	assert.Equal(t, int64(42), env.Seq)
	assert.True(t, env.TS.Equal(now))
	assert.JSONEq(t, `{"price":1.5}`, string(env.Data))
}

func TestBroadcaster_MirrorsEveryPublish(t *testing.T) {
	m := &recordingMirror{}
	b := NewBroadcaster(NewRegistry(), m, nil)

	b.Publish(model.TopicSentiment, model.Event{Name: model.EventSentimentUpdate, Data: 1})
	b.Publish("price:ETH", model.Event{Name: model.EventPriceUpdate, Data: 2})

	assert.Equal(t, []string{model.TopicSentiment, "price:ETH"}, m.topics)
}

func TestBroadcaster_DetachAll(t *testing.T) {
	a, c := &fakeSink{id: "a"}, &fakeSink{id: "c"}
	b := newTestBroadcaster(a, c)
	b.Registry().Subscribe("a", model.TopicNews)

	assert.Equal(t, 2, b.DetachAll())
	assert.Equal(t, 0, b.Clients())
	assert.Empty(t, b.Registry().SubscribersOf(model.TopicNews))
	assert.True(t, a.closed)
	assert.True(t, c.closed)
	assert.Equal(t, 0, b.DetachAll())
}
