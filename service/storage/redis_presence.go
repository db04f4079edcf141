package storage

import (
	"context"
	"sync"
	"time"

	"github.com/Virstriker/ChatApp/logger"
	"github.com/Virstriker/ChatApp/service/chat"
	"github.com/Virstriker/ChatApp/tools/safe"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// PresenceStore is the part of a redis client the mirror needs.
type PresenceStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// presence key: im:presence:<user>
// Value: node id, TTL controls the online validity period
func presenceKey(user string) string { return "im:presence:" + user }

// PresenceMirror copies the live roster into redis for outside tooling.
// The gateway itself never reads it back.
type PresenceMirror struct {
	store  PresenceStore
	nodeID string
	ttl    time.Duration

	mu     sync.Mutex
	online map[string]struct{}
}

func NewPresenceMirror(store PresenceStore, nodeID string, ttl time.Duration) *PresenceMirror {
	safe.MustNotNil(store, "presence store")
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &PresenceMirror{store: store, nodeID: nodeID, ttl: ttl, online: make(map[string]struct{})}
}

func (m *PresenceMirror) Name() string { return "redis-presence" }

func (m *PresenceMirror) OnPresence(ctx context.Context, c chat.PresenceChange) error {
	switch c.Kind {
	case chat.PresenceOnline:
		m.mu.Lock()
		m.online[c.ParticipantID] = struct{}{}
		m.mu.Unlock()
		return m.presenceOnline(ctx, c.ParticipantID)
	case chat.PresenceOffline:
		m.mu.Lock()
		delete(m.online, c.ParticipantID)
		m.mu.Unlock()
		return m.presenceOffline(ctx, c.ParticipantID)
	}
	return nil
}

func (m *PresenceMirror) OnDelivery(context.Context, chat.DeliveryOutcome) error { return nil }

// Run renews the TTL of every mirrored participant until ctx ends, then
// removes the keys this node wrote.
func (m *PresenceMirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.clear()
			return
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil {
				logger.Warnf("[presence] refresh err=%v", err)
			}
		}
	}
}

// Refresh re-sets every known online key with a fresh TTL.
func (m *PresenceMirror) Refresh(ctx context.Context) error {
	var firstErr error
	for _, id := range m.snapshot() {
		if err := m.presenceOnline(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Lookup reports the node a participant is mirrored on. Only for tooling.
func (m *PresenceMirror) Lookup(ctx context.Context, user string) (nodeID string, online bool, err error) {
	val, err := m.store.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (m *PresenceMirror) presenceOnline(ctx context.Context, user string) error {
	if err := m.store.Set(ctx, presenceKey(user), m.nodeID, m.ttl).Err(); err != nil {
		return errors.Wrapf(err, "set presence %s", user)
	}
	return nil
}

func (m *PresenceMirror) presenceOffline(ctx context.Context, user string) error {
	if err := m.store.Del(ctx, presenceKey(user)).Err(); err != nil {
		return errors.Wrapf(err, "del presence %s", user)
	}
	return nil
}

func (m *PresenceMirror) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.online))
	for id := range m.online {
		out = append(out, id)
	}
	return out
}

func (m *PresenceMirror) clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ids := m.snapshot()
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, presenceKey(id))
	}
	if err := m.store.Del(ctx, keys...).Err(); err != nil {
		logger.Warnf("[presence] clear %d keys err=%v", len(keys), err)
	}
	m.mu.Lock()
	m.online = make(map[string]struct{})
	m.mu.Unlock()
}
