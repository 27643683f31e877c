package terminal

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antibyte/stuck/pkg/auth"
	"github.com/antibyte/stuck/pkg/configuration"
	"github.com/antibyte/stuck/pkg/logger"
	"github.com/antibyte/stuck/pkg/resources"
	"github.com/antibyte/stuck/pkg/shared"
	"github.com/antibyte/stuck/pkg/storage"

	"github.com/gorilla/websocket"
)

// Store is the persistence the playground needs.
type Store interface {
	auth.UserStore
	SaveProgram(owner, name, source string) (*storage.Program, error)
	GetProgram(owner, id string) (*storage.Program, error)
	ListPrograms(owner string) ([]storage.Program, error)
	DeleteProgram(owner, id string) error
	RecordRun(run *storage.Run) error
	ListRuns(programID string, limit int) ([]storage.Run, error)
}

// Server is the playground: REST endpoints for one-shot runs and stored
// programs, and a websocket endpoint for interactive runs.
type Server struct {
	store     Store
	auth      *auth.Handlers
	sessions  *resources.SessionResourceManager
	clients   *ClientManager
	validator *SecurityValidator
	upgrader  websocket.Upgrader
	mux       *http.ServeMux

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(store Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:     store,
		auth:      auth.NewHandlers(store),
		sessions:  resources.NewSessionResourceManager(),
		clients:   NewClientManager(),
		validator: NewSecurityValidator(),
		mux:       http.NewServeMux(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
	s.routes()

	idle := configuration.GetDuration("Server", "session_idle", 30*time.Minute)
	if idle > 0 {
		s.sessions.StartPeriodicCleanup(ctx, idle/6+time.Second, idle)
	}
	go s.pruneLoop()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/auth/session", s.auth.HandleCreateSession)
	s.mux.HandleFunc("/api/auth/login", s.auth.HandleLogin)
	s.mux.HandleFunc("/api/auth/register", s.auth.HandleRegister)
	s.mux.HandleFunc("/api/auth/validate", s.auth.HandleTokenValidation)
	s.mux.HandleFunc("/api/auth/logout", s.auth.HandleLogout)

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/run", auth.RequireToken(s.handleRun))
	s.mux.HandleFunc("GET /api/programs", auth.RequireToken(s.handleListPrograms))
	s.mux.HandleFunc("POST /api/programs", auth.RequireToken(s.handleSaveProgram))
	s.mux.HandleFunc("GET /api/programs/{id}", auth.RequireToken(s.handleGetProgram))
	s.mux.HandleFunc("DELETE /api/programs/{id}", auth.RequireToken(s.handleDeleteProgram))
	s.mux.HandleFunc("POST /api/programs/{id}/run", auth.RequireToken(s.handleRunProgram))
	s.mux.HandleFunc("GET /api/programs/{id}/runs", auth.RequireToken(s.handleListRuns))

	s.mux.HandleFunc("GET /ws", s.HandleWebSocket)
}

// Handler returns the playground's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Close stops all runs and background work.
func (s *Server) Close() {
	s.cancel()
	s.sessions.StopAll()
}

func (s *Server) pruneLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.clients.pruneConnects()
		}
	}
}

// checkOrigin accepts the configured origins, or same-host and origin-less
// requests when none are configured.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	allowed := configuration.GetList("WebSocket", "allowed_origins")
	if len(allowed) == 0 {
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	logger.SecurityWarn("WebSocket request from disallowed origin rejected: %s", origin)
	return false
}

// HandleWebSocket authenticates the request and upgrades it to a session connection.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ipAddress := auth.ClientIP(r)

	switch err := s.clients.Admit(ipAddress); {
	case errors.Is(err, errServerFull):
		http.Error(w, "Server overloaded", http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	tokenString, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	identity, err := auth.ValidateToken(tokenString)
	if err != nil {
		logger.AuthWarn("Invalid websocket token from %s: %v", ipAddress, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := s.validator.ValidateSessionID(identity.SessionID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.sessions.RegisterSession(identity.SessionID, identity.Owner(), ipAddress); err != nil {
		if errors.Is(err, resources.ErrTooManySessions) {
			http.Error(w, "Too many sessions", http.StatusTooManyRequests)
			return
		}
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WebSocketWarn("WebSocket upgrade failed for %s: %v", ipAddress, err)
		s.sessions.UnregisterSession(identity.SessionID)
		return
	}

	client := &Client{
		conn:      conn,
		send:      make(chan []byte, getSendBuffer()),
		server:    s,
		ipAddress: ipAddress,
		sessionID: identity.SessionID,
		owner:     identity.Owner(),
		shutdown:  make(chan struct{}),
	}
	if previous := s.clients.AddClient(client.sessionID, client); previous != nil {
		logger.WebSocketDebug("Session %s reconnected, closing previous connection", client.sessionID)
		previous.close()
	}

	go client.writePump()
	go client.readPump()

	client.sendMessage(shared.Message{Type: shared.MessageTypeSession, SessionID: client.sessionID})
	logger.Info(logger.AreaWebSocket, "Client connected: session %s from %s", client.sessionID, ipAddress)
}

func (s *Server) cleanupClient(c *Client) {
	c.close()
	s.clients.RemoveClient(c.sessionID, c)
	if err := s.sessions.UnregisterSession(c.sessionID); err != nil {
		logger.WebSocketDebug("Cleanup of session %s: %v", c.sessionID, err)
	}
	logger.Info(logger.AreaWebSocket, "Client disconnected: session %s", c.sessionID)
}
