package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"coinstream/internal/model"
)

var (
	// ErrSlowConsumer is returned by Sink.Send when the client's queue is full.
	ErrSlowConsumer = errors.New("client send buffer full")

	// ErrClientClosed is returned by Sink.Send after the client disconnected.
	ErrClientClosed = errors.New("client closed")
)

// EvictReason labels a delivery error for metrics.
func EvictReason(err error) string {
	switch {
	case errors.Is(err, ErrSlowConsumer):
		return "slow_consumer"
	case errors.Is(err, ErrClientClosed):
		return "closed"
	default:
		return "write_error"
	}
}

// Sink is the delivery endpoint of one connected client.
type Sink interface {
	ID() string
	// Send queues msg without blocking. Any error means the client can no
	// longer be served and must be removed.
	Send(msg []byte) error
	// Close releases the client. Safe to call more than once.
	Close()
}

// Broadcaster fans events out to the clients subscribed to a topic.
// Publishing is serialized so every client sees events in publish order.
type Broadcaster struct {
	registry *Registry
	mirror   model.EventMirror
	log      *slog.Logger
	now      func() time.Time

	pubMu  sync.Mutex // serializes Publish: seq order == per-client order
	seq    int64
	latest map[string][]byte // topic -> last envelope

	mu    sync.RWMutex
	sinks map[string]Sink

	// Metrics hooks (optional)
	OnPublish func(event string, delivered int)
	OnEvict   func(clientID string, err error)
}

// NewBroadcaster creates a Broadcaster reading subscriptions from registry.
// mirror may be nil.
func NewBroadcaster(registry *Registry, mirror model.EventMirror, log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		mirror:   mirror,
		log:      log,
		now:      time.Now,
		latest:   make(map[string][]byte),
		sinks:    make(map[string]Sink),
	}
}

// Registry returns the subscription registry.
func (b *Broadcaster) Registry() *Registry { return b.registry }

// Attach makes s reachable for delivery.
func (b *Broadcaster) Attach(s Sink) {
	b.mu.Lock()
	b.sinks[s.ID()] = s
	b.mu.Unlock()
}

// Detach removes a client everywhere and closes its sink. Returns false
// if the client was not attached.
func (b *Broadcaster) Detach(clientID string) bool {
	b.mu.Lock()
	s, ok := b.sinks[clientID]
	delete(b.sinks, clientID)
	b.mu.Unlock()

	b.registry.RemoveClient(clientID)
	if ok {
		s.Close()
	}
	return ok
}

// DetachAll closes every client, on shutdown. Returns how many were attached.
func (b *Broadcaster) DetachAll() int {
	b.mu.RLock()
	ids := make([]string, 0, len(b.sinks))
	for id := range b.sinks {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	n := 0
	for _, id := range ids {
		if b.Detach(id) {
			n++
		}
	}
	return n
}

// Clients returns the number of attached clients.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks)
}

// Publish delivers ev to every subscriber of topic and returns how many
// clients accepted it. Clients whose Send fails are detached; delivery to
// the others continues. Publishing to a topic with no subscribers is a
// no-op apart from caching the envelope for late subscribers.
func (b *Broadcaster) Publish(topic string, ev model.Event) (int, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return 0, fmt.Errorf("publish %s on %s: %w", ev.Name, topic, err)
	}

	b.pubMu.Lock()
	b.seq++
	env := encodeEnvelope(ev.Name, topic, data, b.now().UTC(), b.seq)
	b.latest[topic] = env

	var (
		delivered int
		failed    map[string]error
	)
	ids := b.registry.SubscribersOf(topic)
	b.mu.RLock()
	for _, id := range ids {
		s, ok := b.sinks[id]
		if !ok {
			continue
		}
		if err := s.Send(env); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[id] = err
			continue
		}
		delivered++
	}
	b.mu.RUnlock()
	b.pubMu.Unlock()

	for id, err := range failed {
		b.log.Warn("dropping client after failed delivery", "client_id", id, "topic", topic, "error", err)
		b.Detach(id)
		if b.OnEvict != nil {
			b.OnEvict(id, err)
		}
	}

	if b.mirror != nil {
		b.mirror.Mirror(context.Background(), topic, env)
	}
	if b.OnPublish != nil {
		b.OnPublish(ev.Name, delivered)
	}
	return delivered, nil
}

// Subscribe adds topic for clientID. When the subscription is new and
// the topic has been published before, the last envelope is sent to the
// client right away. It runs under the publish lock so the replayed
// envelope cannot interleave with a concurrent Publish on the same topic.
func (b *Broadcaster) Subscribe(clientID, topic string) (bool, error) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if !b.registry.Subscribe(clientID, topic) {
		return false, nil
	}
	env, ok := b.latest[topic]
	if !ok {
		return true, nil
	}
	b.mu.RLock()
	s, attached := b.sinks[clientID]
	b.mu.RUnlock()
	if !attached {
		return true, nil
	}
	return true, s.Send(env)
}

// SendTo delivers a direct (topic-less) message to one client.
func (b *Broadcaster) SendTo(clientID string, ev model.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("send %s: %w", ev.Name, err)
	}
	b.mu.RLock()
	s, ok := b.sinks[clientID]
	b.mu.RUnlock()
	if !ok {
		return ErrClientClosed
	}
	return s.Send(encodeEnvelope(ev.Name, "", data, b.now().UTC(), 0))
}

// encodeEnvelope builds {"type","topic","data","ts","seq"} by hand; data is
// already valid JSON. Topic and seq are omitted for direct messages.
func encodeEnvelope(event, topic string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(event)+len(topic)+len(data)+96)
	buf = append(buf, `{"type":`...)
	buf = strconv.AppendQuote(buf, event)
	if topic != "" {
		buf = append(buf, `,"topic":`...)
		buf = strconv.AppendQuote(buf, topic)
	}
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, '"')
	if seq > 0 {
		buf = append(buf, `,"seq":`...)
		buf = strconv.AppendInt(buf, seq, 10)
	}
	buf = append(buf, '}')
	return buf
}
