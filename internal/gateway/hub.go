// Package gateway serves WebSocket clients: it owns the subscription
// registry, fans out published events, and handles inbound control
// messages. It also exposes the small REST surface for alerts and
// latest values.
package gateway

import (
	"log/slog"
	"net/http"
	"strings"

	"coinstream/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// HubConfig configures a Hub.
type HubConfig struct {
	Symbols       []string // accepted symbols for price subscriptions
	ClientBuffer  int      // per-client queued messages
	DefaultTopics []string // subscribed on connect
}

// Hub accepts WebSocket connections and wires each client into the
// Registry and Broadcaster.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	symbols     map[string]bool
	buffer      int
	defaults    []string
	log         *slog.Logger

	// Metrics hooks (optional)
	OnConnect    func()
	OnDisconnect func(reason string) // connection closed or read failed
	OnEvict      func(reason string) // removed after a failed send
}

// NewHub creates a Hub over an existing Broadcaster.
func NewHub(cfg HubConfig, b *Broadcaster, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 256
	}
	syms := make(map[string]bool, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		syms[strings.ToUpper(s)] = true
	}
	return &Hub{
		registry:    b.Registry(),
		broadcaster: b,
		symbols:     syms,
		buffer:      cfg.ClientBuffer,
		defaults:    cfg.DefaultTopics,
		log:         log.With("component", "gateway"),
	}
}

// Broadcaster returns the hub's broadcaster.
func (h *Hub) Broadcaster() *Broadcaster { return h.broadcaster }

func (h *Hub) knownSymbol(s string) bool { return h.symbols[strings.ToUpper(s)] }

// ServeWS upgrades the request and starts the client's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	h.connect(conn)
}

func (h *Hub) connect(conn *websocket.Conn) *Client {
	c := newClient(uuid.New().String(), conn, h, h.buffer)
	h.broadcaster.Attach(c)
	for _, t := range h.defaults {
		h.registry.Subscribe(c.id, t)
	}
	if h.OnConnect != nil {
		h.OnConnect()
	}
	c.log.Info("ws client connected", "remote", conn.RemoteAddr().String())

	h.reply(c, model.Event{Name: model.EventConnectionStatus, Data: ConnectionStatus{
		Status:   "connected",
		ClientID: c.id,
		Message:  "Connected to real-time market data",
		Topics:   h.registry.TopicsOf(c.id),
	}})

	go c.writePump()
	go c.readPump()
	return c
}

// disconnect is called from the pumps when the connection fails.
func (h *Hub) disconnect(c *Client, err error) {
	if !h.broadcaster.Detach(c.id) {
		return
	}
	reason := "closed"
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		reason = "error"
	}
	c.log.Info("ws client disconnected", "reason", reason, "error", err)
	if h.OnDisconnect != nil {
		h.OnDisconnect(reason)
	}
}

// evict removes a client we failed to deliver to.
func (h *Hub) evict(c *Client, err error) {
	if !h.broadcaster.Detach(c.id) {
		return
	}
	reason := EvictReason(err)
	c.log.Warn("ws client evicted", "reason", reason, "error", err)
	if h.OnEvict != nil {
		h.OnEvict(reason)
	}
}
