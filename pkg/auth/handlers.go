package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode"

	"github.com/antibyte/stuck/pkg/configuration"
	"github.com/antibyte/stuck/pkg/logger"
	"github.com/antibyte/stuck/pkg/storage"

	"github.com/google/uuid"
)

// UserStore is the part of the storage layer the auth handlers need.
type UserStore interface {
	CreateUser(username, password string) error
	VerifyUser(username, password string) error
}

// Handlers serves the /api/auth endpoints.
type Handlers struct {
	users UserStore
}

func NewHandlers(users UserStore) *Handlers {
	return &Handlers{users: users}
}

// LoginRequest is the body of login and register requests
type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	SessionID string `json:"sessionId,omitempty"`
}

// LoginResponse is returned by all auth endpoints
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message"`
}

func setHeaders(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Content-Type", "application/json")
}

func setTokenCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     "guest_token",
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// HandleCreateSession creates a new guest session and returns its id and token
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	setHeaders(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		logger.AuthWarn("Invalid method for session creation: %s", r.Method)
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := generateSessionID()
	token, err := GenerateGuestToken(sessionID)
	if err != nil {
		logger.AuthError("Failed to generate guest token for session %s: %v", sessionID, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	setTokenCookie(w, token, int(getTokenExpiration().Seconds()))

	logger.AuthInfo("New guest session created: %s for IP: %s", sessionID, getClientIP(r))
	respond(w, http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Message:   "Session created successfully",
	})
}

// HandleLogin checks username and password and issues a user token
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, false)
}

// HandleRegister creates a user account and logs it in
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, true)
}

func (h *Handlers) handleCredentials(w http.ResponseWriter, r *http.Request, register bool) {
	setHeaders(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		logger.AuthWarn("Invalid JSON in login request: %v", err)
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	if register {
		if err := ValidateCredentials(req.Username, req.Password); err != nil {
			respondWithError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.users.CreateUser(req.Username, req.Password); err != nil {
			if errors.Is(err, storage.ErrUserExists) {
				respondWithError(w, err.Error(), http.StatusConflict)
				return
			}
			logger.AuthError("Failed to register %s: %v", req.Username, err)
			respondWithError(w, "Registration failed", http.StatusInternalServerError)
			return
		}
		logger.AuthInfo("User registered: %s from %s", req.Username, getClientIP(r))
	} else if err := h.users.VerifyUser(req.Username, req.Password); err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) {
			logger.AuthWarn("Failed login for %q from %s", req.Username, getClientIP(r))
			respondWithError(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		logger.AuthError("Login check failed for %s: %v", req.Username, err)
		respondWithError(w, "Login failed", http.StatusInternalServerError)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" || !isValidSessionID(sessionID) {
		sessionID = generateSessionID()
	}
	token, err := GenerateUserToken(sessionID, req.Username)
	if err != nil {
		logger.AuthError("Failed to generate user token for %s: %v", req.Username, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	setTokenCookie(w, token, int(getTokenExpiration().Seconds()))

	respond(w, http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Username:  req.Username,
		Message:   "Login successful",
	})
}

// HandleTokenValidation reports the identity a token carries
func (h *Handlers) HandleTokenValidation(w http.ResponseWriter, r *http.Request) {
	setHeaders(w, "GET, POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	tokenString, err := ExtractTokenFromRequest(r)
	if err != nil {
		respondWithError(w, "Token not found", http.StatusUnauthorized)
		return
	}
	identity, err := ValidateToken(tokenString)
	if err != nil {
		logger.AuthWarn("Token validation failed: %v", err)
		respondWithError(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	respond(w, http.StatusOK, LoginResponse{
		Success:   true,
		SessionID: identity.SessionID,
		Username:  identity.Username,
		Message:   "Token valid",
	})
}

// HandleLogout clears the token cookie
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	setHeaders(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	setTokenCookie(w, "", -1)
	logger.AuthInfo("Token cookie cleared for %s", getClientIP(r))
	respond(w, http.StatusOK, LoginResponse{Success: true, Message: "Logout successful"})
}

// ValidateCredentials applies the [Security] username and password rules.
func ValidateCredentials(username, password string) error {
	minUser := configuration.GetInt("Security", "min_username_length", 3)
	maxUser := configuration.GetInt("Security", "max_username_length", 20)
	if n := len(username); n < minUser || n > maxUser {
		return fmt.Errorf("username must be %d to %d characters", minUser, maxUser)
	}
	if strings.EqualFold(username, guestSubject) {
		return fmt.Errorf("username %q is reserved", username)
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return fmt.Errorf("username may only contain letters, digits, '_' and '-'")
		}
	}

	minPass := configuration.GetInt("Security", "min_password_length", 6)
	maxPass := configuration.GetInt("Security", "max_password_length", 100)
	if n := len(password); n < minPass || n > maxPass {
		return fmt.Errorf("password must be %d to %d characters", minPass, maxPass)
	}
	return nil
}

// generateSessionID creates a unique session ID
func generateSessionID() string {
	return "guest_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func isValidSessionID(sessionID string) bool {
	if len(sessionID) < 8 || len(sessionID) > 64 {
		return false
	}
	for _, r := range sessionID {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ClientIP is getClientIP for the server package.
func ClientIP(r *http.Request) string {
	return getClientIP(r)
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn(logger.AreaAuth, "Failed to encode response: %v", err)
	}
}

// respondWithError sends an error response as JSON
func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	respond(w, statusCode, LoginResponse{Success: false, Message: message})
}
