package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"coinstream/internal/model"
)

// Inbound control message types.
const (
	MsgSubscribePrice    = "subscribe_price"
	MsgUnsubscribePrice  = "unsubscribe_price"
	MsgSubscribeAlerts   = "subscribe_alerts"
	MsgUnsubscribeAlerts = "unsubscribe_alerts"
	MsgSubscribe         = "subscribe"
	MsgUnsubscribe       = "unsubscribe"
	MsgPing              = "ping"
)

// Outbound direct message types.
const (
	MsgError = "error"
	MsgPong  = "pong"
)

// ControlMsg is the client → server control message.
type ControlMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
	Topic  string `json:"topic,omitempty"`
	ReqID  string `json:"req_id,omitempty"`
}

// ErrorData is the payload of a scoped error reply.
type ErrorData struct {
	ReqID   string `json:"req_id,omitempty"`
	Request string `json:"request,omitempty"`
	Message string `json:"message"`
}

// SubscriptionStatus acknowledges a subscribe or unsubscribe.
type SubscriptionStatus struct {
	ReqID  string `json:"req_id,omitempty"`
	Symbol string `json:"symbol,omitempty"`
	Topic  string `json:"topic"`
	Status string `json:"status"` // "subscribed" | "unsubscribed"
}

// ConnectionStatus is sent once after the upgrade.
type ConnectionStatus struct {
	Status   string   `json:"status"`
	ClientID string   `json:"client_id"`
	Message  string   `json:"message"`
	Topics   []string `json:"topics"`
}

// handleControl parses and applies one inbound message. Bad input only
// produces an error reply to this client.
func (h *Hub) handleControl(c *Client, raw []byte) {
	var msg ControlMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.replyError(c, "", "", "invalid JSON: "+err.Error())
		return
	}

	switch msg.Type {
	case MsgSubscribePrice, MsgUnsubscribePrice:
		symbol := strings.ToUpper(strings.TrimSpace(msg.Symbol))
		if symbol == "" {
			h.replyError(c, msg.ReqID, msg.Type, "symbol is required")
			return
		}
		if !h.knownSymbol(symbol) {
			h.replyError(c, msg.ReqID, msg.Type, "unknown symbol "+symbol)
			return
		}
		h.applySubscription(c, msg, model.PriceTopic(symbol), symbol, msg.Type == MsgSubscribePrice)

	case MsgSubscribeAlerts, MsgUnsubscribeAlerts:
		h.applySubscription(c, msg, model.TopicAlerts, "", msg.Type == MsgSubscribeAlerts)

	case MsgSubscribe, MsgUnsubscribe:
		topic := strings.TrimSpace(msg.Topic)
		if !model.ValidTopic(topic) {
			h.replyError(c, msg.ReqID, msg.Type, "unknown topic "+topic)
			return
		}
		if sym, ok := strings.CutPrefix(topic, "price:"); ok && !h.knownSymbol(sym) {
			h.replyError(c, msg.ReqID, msg.Type, "unknown symbol "+sym)
			return
		}
		h.applySubscription(c, msg, topic, "", msg.Type == MsgSubscribe)

	case MsgPing:
		h.reply(c, model.Event{Name: MsgPong, Data: map[string]any{
			"req_id":    msg.ReqID,
			"server_ts": time.Now().UnixMilli(),
		}})

	case "":
		h.replyError(c, msg.ReqID, "", "missing message type")

	default:
		h.replyError(c, msg.ReqID, msg.Type, "unsupported message type "+msg.Type)
	}
}

func (h *Hub) applySubscription(c *Client, msg ControlMsg, topic, symbol string, subscribe bool) {
	status := "unsubscribed"
	if subscribe {
		status = "subscribed"
	} else if h.registry.Unsubscribe(c.id, topic) {
		c.log.Debug("client unsubscribed", "topic", topic)
	}

	h.reply(c, model.Event{Name: model.EventSubscription, Data: SubscriptionStatus{
		ReqID:  msg.ReqID,
		Symbol: symbol,
		Topic:  topic,
		Status: status,
	}})
	if !subscribe {
		return
	}

	added, err := h.broadcaster.Subscribe(c.id, topic)
	if err != nil {
		h.evict(c, err)
		return
	}
	if added {
		c.log.Debug("client subscribed", "topic", topic)
	}
}

func (h *Hub) replyError(c *Client, reqID, request, message string) {
	h.reply(c, model.Event{Name: MsgError, Data: ErrorData{
		ReqID:   reqID,
		Request: request,
		Message: message,
	}})
}

func (h *Hub) reply(c *Client, ev model.Event) {
	if err := h.broadcaster.SendTo(c.id, ev); err != nil {
		h.evict(c, err)
	}
}
