package terminal

import (
	"errors"
	"sync"
	"time"

	"github.com/antibyte/stuck/pkg/configuration"
	"github.com/antibyte/stuck/pkg/logger"
)

var (
	errConnectRate = errors.New("too many connection attempts")
	errServerFull  = errors.New("client limit reached")
)

// connectWindow is the interval connection attempts are counted over.
const connectWindow = time.Minute

type connectCount struct {
	attempts int
	since    time.Time
}

// ClientManager owns the live websocket clients, one per session, and
// throttles connection attempts per IP.
type ClientManager struct {
	mu         sync.Mutex
	clients    map[string]*Client
	connects   map[string]*connectCount
	maxClients int
	maxPerMin  int
}

func NewClientManager() *ClientManager {
	return &ClientManager{
		clients:    make(map[string]*Client),
		connects:   make(map[string]*connectCount),
		maxClients: configuration.GetInt("WebSocket", "max_clients", 100),
		maxPerMin:  configuration.GetInt("Security", "rate_limit_connects", 30),
	}
}

// Admit counts a connection attempt from ip and checks the client limit.
func (cm *ClientManager) Admit(ip string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := time.Now()
	count := cm.connects[ip]
	if count == nil || now.Sub(count.since) > connectWindow {
		count = &connectCount{since: now}
		cm.connects[ip] = count
	}
	count.attempts++
	if cm.maxPerMin > 0 && count.attempts > cm.maxPerMin {
		logger.SecurityWarn("Rate limit exceeded for IP %s: %d connects in the last minute", ip, count.attempts)
		return errConnectRate
	}
	if cm.maxClients > 0 && len(cm.clients) >= cm.maxClients {
		logger.SecurityWarn("Client limit of %d reached, rejecting %s", cm.maxClients, ip)
		return errServerFull
	}
	return nil
}

// AddClient makes client the connection of its session and returns the
// connection it replaces, if any, so the caller can close it.
func (cm *ClientManager) AddClient(sessionID string, client *Client) *Client {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	previous := cm.clients[sessionID]
	cm.clients[sessionID] = client
	logger.WebSocketDebug("Client added for session %s", sessionID)
	return previous
}

// RemoveClient forgets client unless a newer connection replaced it.
func (cm *ClientManager) RemoveClient(sessionID string, client *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.clients[sessionID] == client {
		delete(cm.clients, sessionID)
		logger.WebSocketDebug("Client removed for session %s", sessionID)
	}
}

func (cm *ClientManager) GetClientCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.clients)
}

// pruneConnects drops counters whose window has passed.
func (cm *ClientManager) pruneConnects() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	now := time.Now()
	for ip, count := range cm.connects {
		if now.Sub(count.since) > connectWindow {
			delete(cm.connects, ip)
		}
	}
}
