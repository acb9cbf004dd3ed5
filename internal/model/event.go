package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Event names carried in the outbound envelope.
const (
	EventPriceUpdate      = "price_update"
	EventIndicatorUpdate  = "indicator_update"
	EventMarketOverview   = "market_overview"
	EventSentimentUpdate  = "sentiment_update"
	EventNewsUpdate       = "news_update"
	EventStrategyUpdate   = "strategy_update"
	EventAlertTriggered   = "alert_triggered"
	EventConnectionStatus = "connection_status"
	EventSubscription     = "subscription_status"
)

// Broadcast topics.
const (
	TopicAlerts    = "alerts"
	TopicSentiment = "sentiment"
	TopicStrategy  = "strategy"
	TopicNews      = "news"
	TopicMarket    = "market"

	pricePrefix = "price:"
)

// DefaultTopics are subscribed for every new connection.
var DefaultTopics = []string{TopicMarket, TopicSentiment, TopicNews, TopicStrategy}

// PriceTopic returns "price:SYMBOL".
func PriceTopic(symbol string) string {
	return pricePrefix + strings.ToUpper(symbol)
}

// ValidTopic reports whether clients may subscribe to topic.
func ValidTopic(topic string) bool {
	switch topic {
	case TopicAlerts, TopicSentiment, TopicStrategy, TopicNews, TopicMarket:
		return true
	}
	return strings.HasPrefix(topic, pricePrefix) && len(topic) > len(pricePrefix)
}

// Event is one outbound message before envelope encoding.
type Event struct {
	Name string
	Data any
}

// Envelope is the wire format delivered to clients.
type Envelope struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data"`
	TS    time.Time       `json:"ts"`
	Seq   int64           `json:"seq,omitempty"`
}
