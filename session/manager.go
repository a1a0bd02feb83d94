package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spoc-ai/voicebridge/config"
)

// UpstreamDialer opens a fresh model connection for a new session. Injected
// so tests can run the relay against a fake endpoint.
type UpstreamDialer func(ctx context.Context) (Upstream, error)

// Manager owns every live session. Entries exist exactly as long as their
// connection does.
type Manager struct {
	sessions map[string]*ClientSession
	mu       sync.RWMutex
	redis    *redis.Client
	config   *config.Config
	dial     UpstreamDialer
}

// NewManager creates a session manager. Redis is a best-effort metadata
// mirror; the relay runs fine without it.
func NewManager(cfg *config.Config, dial UpstreamDialer) (*Manager, error) {
	if dial == nil {
		return nil, fmt.Errorf("upstream dialer is required")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient = nil
	}

	return &Manager{
		sessions: make(map[string]*ClientSession),
		redis:    redisClient,
		config:   cfg,
		dial:     dial,
	}, nil
}

// CreateSession dials an upstream connection and binds it 1:1 to the client
// connection. The upstream handshake is already in flight when this returns.
// The dial happens outside the registry lock so a slow endpoint cannot stall
// other sessions; the cap is re-checked when inserting.
func (sm *Manager) CreateSession(ctx context.Context, clientConn ClientConn) (*ClientSession, error) {
	sm.mu.RLock()
	count := len(sm.sessions)
	sm.mu.RUnlock()
	if count >= sm.config.MaxSessions {
		return nil, fmt.Errorf("maximum sessions reached")
	}

	up, err := sm.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open upstream connection: %w", err)
	}

	sessionID := uuid.New().String()
	cs := New(ctx, sessionID, clientConn, up, Options{
		HandshakeTimeout: sm.config.HandshakeTimeout,
		MaxFrameSize:     sm.config.MaxFrameSize,
	})

	sm.mu.Lock()
	if len(sm.sessions) >= sm.config.MaxSessions {
		sm.mu.Unlock()
		cs.Close()
		return nil, fmt.Errorf("maximum sessions reached")
	}
	sm.sessions[sessionID] = cs
	sm.mu.Unlock()

	sm.mirrorSession(ctx, cs)
	return cs, nil
}

func (sm *Manager) mirrorSession(ctx context.Context, cs *ClientSession) {
	if sm.redis == nil {
		return
	}
	sm.redis.HSet(ctx, "session:"+cs.ID, map[string]interface{}{
		"created_at":    cs.CreatedAt.Format(time.RFC3339),
		"last_activity": cs.LastActivity.Format(time.RFC3339),
		"status":        "active",
	})
	sm.redis.SAdd(ctx, "active_sessions", cs.ID)
	sm.redis.Expire(ctx, "session:"+cs.ID, sm.config.SessionTimeout)
}

// GetSession retrieves a session by ID.
func (sm *Manager) GetSession(sessionID string) (*ClientSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	cs, ok := sm.sessions[sessionID]
	return cs, ok
}

// RemoveSession closes and forgets a session.
func (sm *Manager) RemoveSession(ctx context.Context, sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	cs, ok := sm.sessions[sessionID]
	if !ok {
		return nil
	}

	cs.Close()
	delete(sm.sessions, sessionID)
	sm.forget(ctx, sessionID)
	return nil
}

func (sm *Manager) forget(ctx context.Context, sessionID string) {
	if sm.redis == nil {
		return
	}
	sm.redis.Del(ctx, "session:"+sessionID)
	sm.redis.SRem(ctx, "active_sessions", sessionID)
}

// ActiveSessionCount returns the number of live sessions.
func (sm *Manager) ActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupInactiveSessions drops sessions idle past the configured timeout.
func (sm *Manager) CleanupInactiveSessions(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for id, cs := range sm.sessions {
		if now.Sub(cs.LastActive()) > sm.config.SessionTimeout {
			cs.Close()
			delete(sm.sessions, id)
			sm.forget(ctx, id)
		}
	}
}

// StartCleanupRoutine ticks CleanupInactiveSessions until ctx is done.
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupInactiveSessions(ctx)
		}
	}
}

// Shutdown closes every session and the Redis mirror.
func (sm *Manager) Shutdown() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for id, cs := range sm.sessions {
		cs.Close()
		delete(sm.sessions, id)
	}
	if sm.redis != nil {
		sm.redis.Close()
	}
}
