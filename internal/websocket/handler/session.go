// internal/websocket/handler/session.go
package handler

import (
	"context"
	"fmt"

	"loadboard-service/internal/domain/auth"
	wstypes "loadboard-service/internal/domain/websocket"
	"loadboard-service/internal/service/access"
	ws "loadboard-service/internal/websocket"
)

// StateReader is satisfied by the session coordinator.
type StateReader interface {
	State() auth.State
	Authorize(c access.Capability) (auth.State, access.Decision)
}

// SessionHandler answers state and capability queries over the socket.
type SessionHandler struct {
	sessions StateReader
}

func NewSessionHandler(sessions StateReader) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// SupportedEvents returns events this handler supports
func (h *SessionHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{
		wstypes.EventTypeStateGet,
		wstypes.EventTypeCapabilityCheck,
	}
}

// HandleMessage processes session-related messages
func (h *SessionHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	switch msg.Type {
	case wstypes.EventTypeStateGet:
		reply := wstypes.NewMessage(wstypes.EventTypeStateChanged, h.sessions.State())
		reply.ID = msg.ID
		client.SendMessage(reply)
		return nil

	case wstypes.EventTypeCapabilityCheck:
		return h.handleCapabilityCheck(client, msg)

	default:
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}
}

// handleCapabilityCheck evaluates the gate against the state right now
func (h *SessionHandler) handleCapabilityCheck(client *ws.Client, msg *wstypes.WSMessage) error {
	var req wstypes.CapabilityRequest
	if err := msg.DecodeData(&req); err != nil {
		return fmt.Errorf("invalid request data: %w", err)
	}

	capability, err := access.Parse(req.Capability)
	if err != nil {
		return err
	}

	_, d := h.sessions.Authorize(capability)
	reply := wstypes.NewMessage(wstypes.EventTypeCapabilityResult, wstypes.CapabilityResultData{
		Capability: string(d.Capability),
		Allowed:    d.Allowed,
		Reason:     string(d.Reason),
	})
	reply.ID = msg.ID
	client.SendMessage(reply)
	return nil
}
