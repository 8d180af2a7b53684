// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	"loadboard-service/internal/domain/auth"
	wstypes "loadboard-service/internal/domain/websocket"
	"loadboard-service/internal/service/navigation"

	"go.uber.org/zap"
)

// MessageHandler answers client requests for the event types it supports.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error
	SupportedEvents() []wstypes.EventType
}

// Hub fans session state out to every connected UI socket.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	// Registration/unregistration
	Register   chan *Client
	unregister chan *Client

	// Broadcasting
	broadcast chan *BroadcastMessage

	handlers map[wstypes.EventType]MessageHandler

	// snapshot is sent to each client on connect
	snapshot func() auth.State
	logger   *zap.Logger
}

type BroadcastMessage struct {
	Channel wstypes.ChannelType
	Message *wstypes.WSMessage
}

func NewHub(snapshot func() auth.State, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan *BroadcastMessage, 256),
		handlers:   make(map[wstypes.EventType]MessageHandler),
		snapshot:   snapshot,
		logger:     logger,
	}
}

// RegisterHandler registers a message handler. Call before Run.
func (h *Hub) RegisterHandler(handler MessageHandler) {
	for _, eventType := range handler.SupportedEvents() {
		h.handlers[eventType] = handler
	}
}

// HandleClientMessage delegates to the registered handler, reporting
// whether one existed.
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	handler, exists := h.handlers[msg.Type]
	if !exists {
		return false, nil
	}
	return true, handler.HandleMessage(ctx, client, msg)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("state stream client connected",
		zap.String("client_id", client.id),
		zap.Int("total", total),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"client_id": client.id,
		"channels":  wstypes.DefaultChannels,
	}))
	if h.snapshot != nil {
		client.SendMessage(wstypes.NewMessage(wstypes.EventTypeStateChanged, h.snapshot()))
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.Close()

		h.logger.Info("state stream client disconnected",
			zap.String("client_id", client.id),
			zap.Int("total", len(h.clients)),
		)
	}
}

// BroadcastMessage delivers msg to every client subscribed to its channel.
func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.IsSubscribed(msg.Channel) {
			client.SendMessage(msg.Message)
		}
	}
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Public methods for broadcasting

func (h *Hub) BroadcastState(state auth.State) {
	h.enqueue(&BroadcastMessage{
		Channel: wstypes.ChannelState,
		Message: wstypes.NewMessage(wstypes.EventTypeStateChanged, state),
	})
}

func (h *Hub) BroadcastNavigation(from, to navigation.Target) {
	h.enqueue(&BroadcastMessage{
		Channel: wstypes.ChannelNavigation,
		Message: wstypes.NewMessage(wstypes.EventTypeNavigationChanged, wstypes.NavigationData{
			From: string(from),
			To:   string(to),
		}),
	})
}

// enqueue never blocks. When the queue is full the oldest pending message
// is dropped so the newest state always goes out.
func (h *Hub) enqueue(msg *BroadcastMessage) {
	for {
		select {
		case h.broadcast <- msg:
			return
		default:
		}

		select {
		case old := <-h.broadcast:
			h.logger.Warn("broadcast queue full, dropping oldest message", zap.String("type", string(old.Message.Type)))
		default:
		}
	}
}

// Relay forwards coordinator snapshots to the hub until updates is closed
// or ctx is done. Each snapshot is also routed through nav.
func (h *Hub) Relay(ctx context.Context, updates <-chan auth.State, nav *navigation.Navigator) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			h.BroadcastState(state)
			if nav != nil {
				from := nav.Current()
				if nav.Apply(state) {
					h.BroadcastNavigation(from, nav.Current())
				}
			}
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}
