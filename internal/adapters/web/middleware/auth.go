package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SessionStore issues and validates bearer tokens for the single operator
// account. An empty password hash disables authentication entirely, which
// is the expected mode on an isolated lab box.
type SessionStore struct {
	passwordHash string

	mu     sync.RWMutex
	tokens map[string]struct{}
}

// NewSessionStore creates a store validating against the bcrypt hash.
func NewSessionStore(passwordHash string) *SessionStore {
	return &SessionStore{
		passwordHash: passwordHash,
		tokens:       make(map[string]struct{}),
	}
}

// Enabled reports whether auth is configured.
func (s *SessionStore) Enabled() bool {
	return s.passwordHash != ""
}

// Login validates the password and mints a token.
func (s *SessionStore) Login(password string) (string, bool) {
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return "", false
	}
	token := uuid.New().String()
	s.mu.Lock()
	s.tokens[token] = struct{}{}
	s.mu.Unlock()
	return token, true
}

// Logout revokes a token.
func (s *SessionStore) Logout(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// Validate reports whether the token is live.
func (s *SessionStore) Validate(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[token]
	return ok
}

// AuthMiddleware ensures the request carries a valid session.
func AuthMiddleware(sessions *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			// Token from cookie, falling back to the Authorization header
			// for API clients.
			var token string
			if cookie, err := r.Cookie("auth_token"); err == nil {
				token = cookie.Value
			}
			if token == "" {
				authHeader := r.Header.Get("Authorization")
				if strings.HasPrefix(authHeader, "Bearer ") {
					token = strings.TrimPrefix(authHeader, "Bearer ")
				}
			}

			if token == "" || !sessions.Validate(token) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
