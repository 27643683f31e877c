package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/antibyte/stuck/pkg/configuration"
	"github.com/antibyte/stuck/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultJWTSecret = "fallback_secret_change_in_production"
	tokenIssuer      = "stuck"
	guestSubject     = "guest"
)

var (
	ErrNoToken      = errors.New("no token found in request")
	ErrInvalidToken = errors.New("invalid token")
)

// getJWTSecret retrieves the JWT secret from environment variable or configuration
func getJWTSecret() string {
	if envSecret := os.Getenv("JWT_SECRET_KEY"); envSecret != "" {
		return envSecret
	}

	secret := configuration.GetString("JWT", "secret_key", "")
	if secret == "" {
		logger.SecurityWarn("Using fallback JWT secret - set JWT_SECRET_KEY or [JWT] secret_key for production!")
		return defaultJWTSecret
	}
	return secret
}

func getTokenExpiration() time.Duration {
	hours := configuration.GetInt("JWT", "token_expiration_hours", 24)
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// GuestClaims are the claims of an anonymous playground session.
type GuestClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// UserClaims are the claims of a logged-in user.
type UserClaims struct {
	SessionID string `json:"sid"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

func registeredClaims(subject, sessionID string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(getTokenExpiration())),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    tokenIssuer,
		Subject:   subject,
		ID:        sessionID,
	}
}

func sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(getJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("token could not be signed: %w", err)
	}
	return signed, nil
}

// GenerateGuestToken generates a JWT token for a guest session
func GenerateGuestToken(sessionID string) (string, error) {
	signed, err := sign(GuestClaims{
		SessionID:        sessionID,
		RegisteredClaims: registeredClaims(guestSubject, sessionID),
	})
	if err != nil {
		return "", err
	}
	logger.AuthInfo("Guest token generated for session %s", sessionID)
	return signed, nil
}

// GenerateUserToken generates a JWT token for a logged-in user session
func GenerateUserToken(sessionID, username string) (string, error) {
	signed, err := sign(UserClaims{
		SessionID:        sessionID,
		Username:         username,
		RegisteredClaims: registeredClaims(username, sessionID),
	})
	if err != nil {
		return "", err
	}
	logger.AuthInfo("User token generated for session %s, user %s", sessionID, username)
	return signed, nil
}

func keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
	}
	return []byte(getJWTSecret()), nil
}

func parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc,
		jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// ValidateGuestToken validates a JWT token for a guest session
func ValidateGuestToken(tokenString string) (*GuestClaims, error) {
	claims := &GuestClaims{}
	if err := parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Subject != guestSubject {
		return nil, fmt.Errorf("%w: not a guest token", ErrInvalidToken)
	}
	return claims, nil
}

// ValidateUserToken validates a JWT token for a logged-in user session
func ValidateUserToken(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}
	if err := parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Username == "" || claims.Subject != claims.Username {
		return nil, fmt.Errorf("%w: not a user token", ErrInvalidToken)
	}
	return claims, nil
}

// ValidateToken accepts guest and user tokens and returns the identity they carry.
func ValidateToken(tokenString string) (Identity, error) {
	claims := &UserClaims{}
	if err := parse(tokenString, claims); err != nil {
		return Identity{}, err
	}
	if claims.SessionID == "" {
		return Identity{}, fmt.Errorf("%w: no session id", ErrInvalidToken)
	}
	if claims.Subject == guestSubject {
		return Identity{SessionID: claims.SessionID}, nil
	}
	if claims.Username == "" || claims.Subject != claims.Username {
		return Identity{}, fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	return Identity{SessionID: claims.SessionID, Username: claims.Username}, nil
}

// ExtractTokenFromRequest extracts the JWT token from the HTTP request.
// The token can be passed as a Bearer token, as the guest_token cookie or as the token query parameter.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1], nil
		}
		return "", fmt.Errorf("invalid authorization header format")
	}

	if cookie, err := r.Cookie("guest_token"); err == nil {
		return cookie.Value, nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", ErrNoToken
}

// RequireToken is a middleware for handlers that need a guest or user token.
func RequireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}
		tokenString, err := ExtractTokenFromRequest(r)
		if err != nil {
			logger.AuthWarn("No token in request from %s: %v", getClientIP(r), err)
			respondWithError(w, "Unauthorized: token missing", http.StatusUnauthorized)
			return
		}

		identity, err := ValidateToken(tokenString)
		if err != nil {
			logger.AuthWarn("Invalid token from %s: %v", getClientIP(r), err)
			respondWithError(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(NewContextWithIdentity(r.Context(), identity)))
	}
}
