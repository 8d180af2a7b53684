// internal/pkg/session/manager.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loadboard-service/internal/domain/auth"
	xerrors "loadboard-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// Manager keeps sessions in redis, one current session per device, and
// carries session-change events over pub/sub.
type Manager struct {
	client *redis.Client
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// CreateSession stores a session until its ExpiresAt
func (m *Manager) CreateSession(ctx context.Context, s *SessionData) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	if err := m.client.Set(ctx, m.sessionKey(s.DeviceID, s.ID), data, ttl).Err(); err != nil {
		return redisError(err, "store session")
	}
	return nil
}

// GetSession retrieves a session; a missing one is (nil, nil)
func (m *Manager) GetSession(ctx context.Context, deviceID, id string) (*SessionData, error) {
	data, err := m.client.Get(ctx, m.sessionKey(deviceID, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, redisError(err, "get session")
	}

	var s SessionData
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// SetCurrent points the device at session id
func (m *Manager) SetCurrent(ctx context.Context, deviceID, id string, ttl time.Duration) error {
	if err := m.client.Set(ctx, m.currentKey(deviceID), id, ttl).Err(); err != nil {
		return redisError(err, "set current session")
	}
	return nil
}

// CurrentSession returns the device's current session, or nil when there is
// none or it has expired from redis.
func (m *Manager) CurrentSession(ctx context.Context, deviceID string) (*SessionData, error) {
	id, err := m.client.Get(ctx, m.currentKey(deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, redisError(err, "get current session")
	}
	return m.GetSession(ctx, deviceID, id)
}

// InvalidateSession removes the session and clears the device pointer if it
// still refers to it.
func (m *Manager) InvalidateSession(ctx context.Context, deviceID, id string) error {
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, m.sessionKey(deviceID, id))
	pipe.Del(ctx, m.currentKey(deviceID))
	if _, err := pipe.Exec(ctx); err != nil {
		return redisError(err, "invalidate session")
	}
	return nil
}

// Publish sends a session-change event to the device's channel
func (m *Manager) Publish(ctx context.Context, deviceID string, ev auth.SessionEvent) error {
	data, err := EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := m.client.Publish(ctx, m.eventsChannel(deviceID), data).Err(); err != nil {
		return redisError(err, "publish session event")
	}
	return nil
}

// Subscribe opens a subscription to the device's events and waits for redis
// to confirm it, so no event published afterwards is missed.
func (m *Manager) Subscribe(ctx context.Context, deviceID string) (*redis.PubSub, error) {
	ps := m.client.Subscribe(ctx, m.eventsChannel(deviceID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, redisError(err, "subscribe session events")
	}
	return ps, nil
}

// EncodeEvent builds a pub/sub payload
func EncodeEvent(ev auth.SessionEvent) ([]byte, error) {
	return json.Marshal(eventMessage{
		ID:         ev.ID,
		Type:       ev.Type,
		Session:    FromSession(ev.Session),
		OccurredAt: ev.OccurredAt,
	})
}

// DecodeEvent parses a pub/sub payload
func DecodeEvent(payload string) (auth.SessionEvent, error) {
	var msg eventMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return auth.SessionEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return auth.SessionEvent{
		ID:         msg.ID,
		Type:       msg.Type,
		Session:    msg.Session.ToSession(),
		OccurredAt: msg.OccurredAt,
	}, nil
}

// Helper functions
func (m *Manager) sessionKey(deviceID, id string) string {
	return fmt.Sprintf("session:%s:%s", deviceID, id)
}

func (m *Manager) currentKey(deviceID string) string {
	return fmt.Sprintf("session:current:%s", deviceID)
}

func (m *Manager) eventsChannel(deviceID string) string {
	return fmt.Sprintf("session:events:%s", deviceID)
}

func redisError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", xerrors.ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", xerrors.ErrNetwork, op, err)
}
