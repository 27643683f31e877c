package resources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/antibyte/stuck/pkg/configuration"
	"github.com/antibyte/stuck/pkg/logger"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrTooManySessions   = errors.New("too many sessions")
	ErrRateLimitExceeded = errors.New("message rate limit exceeded")
)

// SessionResourceManager keeps track of live websocket sessions and their runs.
type SessionResourceManager struct {
	*ExecutionManager
	sessions      map[string]*SessionResource // SessionID -> SessionResource
	sessionsMutex sync.RWMutex

	maxPerIP    int
	maxPerOwner int
	maxMessages int64
}

// SessionResource holds the state of a single session
type SessionResource struct {
	SessionID    string
	Owner        string
	IPAddress    string
	CreatedAt    time.Time
	LastActivity time.Time
	Connections  int

	MessageCount int64 // messages in the current window
	MaxMessages  int64 // messages allowed per minute
	windowStart  time.Time
}

func NewSessionResourceManager() *SessionResourceManager {
	return &SessionResourceManager{
		ExecutionManager: NewExecutionManager(),
		sessions:         make(map[string]*SessionResource),
		maxPerIP:         configuration.GetInt("Security", "max_sessions_per_ip", 5),
		maxPerOwner:      configuration.GetInt("Security", "max_sessions_per_user", 3),
		maxMessages:      configuration.GetInt64("Security", "rate_limit_messages", 120),
	}
}

// RegisterSession adds a connection for the session. A session that is already
// known only gains a connection; a new one must fit the per-IP and per-owner limits.
func (srm *SessionResourceManager) RegisterSession(sessionID, owner, ipAddress string) error {
	srm.sessionsMutex.Lock()
	defer srm.sessionsMutex.Unlock()

	now := time.Now()
	if existing, exists := srm.sessions[sessionID]; exists {
		existing.Connections++
		existing.LastActivity = now
		logger.Debug(logger.AreaSession, "Session reconnected: %s (connections: %d)", sessionID, existing.Connections)
		return nil
	}

	ownerCount, ipCount := 0, 0
	for _, session := range srm.sessions {
		if session.Owner == owner {
			ownerCount++
		}
		if session.IPAddress == ipAddress {
			ipCount++
		}
	}
	if srm.maxPerOwner > 0 && ownerCount >= srm.maxPerOwner {
		logger.SecurityWarn("Session limit per user reached for %s: %d", owner, ownerCount)
		return fmt.Errorf("%w for %s: %d", ErrTooManySessions, owner, ownerCount)
	}
	if srm.maxPerIP > 0 && ipCount >= srm.maxPerIP {
		logger.SecurityWarn("Session limit per IP reached for %s: %d", ipAddress, ipCount)
		return fmt.Errorf("%w for IP %s: %d", ErrTooManySessions, ipAddress, ipCount)
	}

	srm.sessions[sessionID] = &SessionResource{
		SessionID:    sessionID,
		Owner:        owner,
		IPAddress:    ipAddress,
		CreatedAt:    now,
		LastActivity: now,
		Connections:  1,
		MaxMessages:  srm.maxMessages,
		windowStart:  now,
	}
	logger.Info(logger.AreaSession, "Session registered: %s (owner: %s, IP: %s)", sessionID, owner, ipAddress)
	return nil
}

// UnregisterSession drops a connection. The session and its run go away with the last one.
func (srm *SessionResourceManager) UnregisterSession(sessionID string) error {
	srm.sessionsMutex.Lock()
	defer srm.sessionsMutex.Unlock()

	session, exists := srm.sessions[sessionID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	session.Connections--
	if session.Connections > 0 {
		return nil
	}
	srm.removeLocked(session)
	return nil
}

func (srm *SessionResourceManager) removeLocked(session *SessionResource) {
	delete(srm.sessions, session.SessionID)
	srm.StopExecution(session.SessionID)
	logger.Info(logger.AreaSession, "Session unregistered: %s (owner: %s, duration: %v)",
		session.SessionID, session.Owner, time.Since(session.CreatedAt).Round(time.Second))
}

// CheckSessionLimits counts a client message against the per-minute limit.
func (srm *SessionResourceManager) CheckSessionLimits(sessionID string) error {
	srm.sessionsMutex.Lock()
	defer srm.sessionsMutex.Unlock()

	session, exists := srm.sessions[sessionID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	now := time.Now()
	session.LastActivity = now
	if now.Sub(session.windowStart) >= time.Minute {
		session.windowStart = now
		session.MessageCount = 0
	}
	session.MessageCount++

	if session.MaxMessages > 0 && session.MessageCount > session.MaxMessages {
		return fmt.Errorf("%w for session %s: %d > %d per minute",
			ErrRateLimitExceeded, sessionID, session.MessageCount, session.MaxMessages)
	}
	return nil
}

// Touch marks the session as active.
func (srm *SessionResourceManager) Touch(sessionID string) {
	srm.sessionsMutex.Lock()
	defer srm.sessionsMutex.Unlock()
	if session, exists := srm.sessions[sessionID]; exists {
		session.LastActivity = time.Now()
	}
}

// GetSessionStats returns counters over all sessions
func (srm *SessionResourceManager) GetSessionStats() map[string]interface{} {
	srm.sessionsMutex.RLock()
	defer srm.sessionsMutex.RUnlock()

	owners := make(map[string]int)
	ips := make(map[string]int)
	for _, session := range srm.sessions {
		owners[session.Owner]++
		ips[session.IPAddress]++
	}

	return map[string]interface{}{
		"total_sessions": len(srm.sessions),
		"unique_owners":  len(owners),
		"unique_ips":     len(ips),
		"executions":     srm.ExecutionCount(),
	}
}

// CleanupInactiveSessions removes sessions idle for longer than maxInactiveTime
// and returns how many were removed.
func (srm *SessionResourceManager) CleanupInactiveSessions(maxInactiveTime time.Duration) int {
	srm.sessionsMutex.Lock()
	defer srm.sessionsMutex.Unlock()

	now := time.Now()
	removed := 0
	for _, session := range srm.sessions {
		if now.Sub(session.LastActivity) > maxInactiveTime {
			srm.removeLocked(session)
			removed++
		}
	}
	if removed > 0 {
		logger.Info(logger.AreaSession, "Cleaned up %d inactive sessions", removed)
	}
	return removed
}

// StartPeriodicCleanup removes idle sessions every interval until ctx is done.
func (srm *SessionResourceManager) StartPeriodicCleanup(ctx context.Context, interval, maxInactiveTime time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srm.CleanupInactiveSessions(maxInactiveTime)
			}
		}
	}()
}

// GetSessionResource returns a copy of the session's state
func (srm *SessionResourceManager) GetSessionResource(sessionID string) (SessionResource, error) {
	srm.sessionsMutex.RLock()
	defer srm.sessionsMutex.RUnlock()

	session, exists := srm.sessions[sessionID]
	if !exists {
		return SessionResource{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return *session, nil
}
