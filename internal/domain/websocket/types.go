// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents different real-time event types
type EventType string

const (
	// Connection events
	EventTypePing      EventType = "ping"
	EventTypePong      EventType = "pong"
	EventTypeConnected EventType = "connected"
	EventTypeError     EventType = "error"

	// Session state (server -> client)
	EventTypeStateChanged      EventType = "state:changed"
	EventTypeNavigationChanged EventType = "navigation:changed"

	// Session queries (client -> server)
	EventTypeStateGet        EventType = "state:get"
	EventTypeCapabilityCheck EventType = "capability:check"

	// Capability answer (server -> client)
	EventTypeCapabilityResult EventType = "capability:result"

	// Subscription events
	EventTypeSubscribe   EventType = "subscribe"
	EventTypeUnsubscribe EventType = "unsubscribe"
)

// WSMessage is the universal message format
type WSMessage struct {
	Type      EventType       `json:"type"`
	Data      interface{}     `json:"data,omitempty"`
	RawData   json.RawMessage `json:"-"`
	Timestamp time.Time       `json:"timestamp"`
	ID        string          `json:"id,omitempty"`
}

// Subscription channels that clients can subscribe to
type ChannelType string

const (
	ChannelState      ChannelType = "state"
	ChannelNavigation ChannelType = "navigation"
)

// DefaultChannels are subscribed on connect
var DefaultChannels = []ChannelType{ChannelState, ChannelNavigation}

// SubscribeRequest sent by client to subscribe to specific channels
type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

// UnsubscribeRequest sent by client to unsubscribe from channels
type UnsubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

// ErrorData for error events
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NavigationData for navigation:changed
type NavigationData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CapabilityRequest for capability:check
type CapabilityRequest struct {
	Capability string `json:"capability"`
}

// CapabilityResultData for capability:result
type CapabilityResultData struct {
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason"`
}

// Helper to create messages
func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		ID:        ulid.Make().String(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes a client frame. The payload is kept raw so handlers
// can decode it into their own request type.
func ParseMessage(data []byte) (*WSMessage, error) {
	var frame struct {
		Type EventType       `json:"type"`
		Data json.RawMessage `json:"data"`
		ID   string          `json:"id"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	return &WSMessage{
		Type:      frame.Type,
		RawData:   frame.Data,
		Timestamp: time.Now(),
		ID:        frame.ID,
	}, nil
}

// DecodeData unmarshals the raw client payload into target
func (m *WSMessage) DecodeData(target interface{}) error {
	if len(m.RawData) == 0 {
		return nil
	}
	return json.Unmarshal(m.RawData, target)
}
