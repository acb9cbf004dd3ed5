package gateway

import (
	"sort"
	"sync"
)

// Registry tracks which clients are subscribed to which topics.
// Reads return copies, so callers may iterate while other goroutines
// subscribe or remove clients.
type Registry struct {
	mu      sync.RWMutex
	topics  map[string]map[string]struct{} // topic -> client IDs
	clients map[string]map[string]struct{} // client ID -> topics
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		topics:  make(map[string]map[string]struct{}),
		clients: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds (clientID, topic). Returns false if it already existed.
func (r *Registry) Subscribe(clientID, topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.topics[topic]
	if !ok {
		subs = make(map[string]struct{})
		r.topics[topic] = subs
	}
	if _, dup := subs[clientID]; dup {
		return false
	}
	subs[clientID] = struct{}{}

	own, ok := r.clients[clientID]
	if !ok {
		own = make(map[string]struct{})
		r.clients[clientID] = own
	}
	own[topic] = struct{}{}
	return true
}

// Unsubscribe removes (clientID, topic). Returns false if it was absent.
func (r *Registry) Unsubscribe(clientID, topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.topics[topic]
	if !ok {
		return false
	}
	if _, ok := subs[clientID]; !ok {
		return false
	}
	delete(subs, clientID)
	if len(subs) == 0 {
		delete(r.topics, topic)
	}

	if own := r.clients[clientID]; own != nil {
		delete(own, topic)
		if len(own) == 0 {
			delete(r.clients, clientID)
		}
	}
	return true
}

// RemoveClient drops every subscription of clientID and returns how many
// there were.
func (r *Registry) RemoveClient(clientID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	own := r.clients[clientID]
	for topic := range own {
		if subs := r.topics[topic]; subs != nil {
			delete(subs, clientID)
			if len(subs) == 0 {
				delete(r.topics, topic)
			}
		}
	}
	delete(r.clients, clientID)
	return len(own)
}

// SubscribersOf returns a snapshot of the clients subscribed to topic.
func (r *Registry) SubscribersOf(topic string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.topics[topic]
	if len(subs) == 0 {
		return nil
	}
	out := make([]string, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}

// TopicsOf returns the sorted topics of clientID.
func (r *Registry) TopicsOf(clientID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	own := r.clients[clientID]
	out := make([]string, 0, len(own))
	for t := range own {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Stats returns the number of clients with at least one subscription
// and the number of topics with at least one subscriber.
func (r *Registry) Stats() (clients, topics int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients), len(r.topics)
}
