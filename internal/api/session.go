package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionTTL bounds how long a bearer token stays valid.
const DefaultSessionTTL = 12 * time.Hour

var (
	// ErrInvalidCredentials is returned when the email or password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionNotFound is returned for unknown, revoked or expired tokens.
	ErrSessionNotFound = errors.New("session not found")
)

// Auth gates the API behind the single configured credential pair.
type Auth struct {
	email string
	hash  []byte
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time
}

// NewAuth hashes password with bcrypt. Both values are required.
func NewAuth(email, password string, ttl time.Duration) (*Auth, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, errors.New("admin email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Auth{
		email:    strings.ToLower(email),
		hash:     hash,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]time.Time),
	}, nil
}

// Login checks the credentials and issues a bearer token.
func (a *Auth) Login(email, password string) (string, time.Time, error) {
	if !strings.EqualFold(strings.TrimSpace(email), a.email) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	token := uuid.NewString()
	expires := a.now().Add(a.ttl)
	a.mu.Lock()
	a.sessions[token] = expires
	a.mu.Unlock()
	return token, expires, nil
}

// Logout revokes token. Unknown tokens are ignored.
func (a *Auth) Logout(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

// Validate reports whether token is live, pruning it once expired.
func (a *Auth) Validate(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	expires, ok := a.sessions[token]
	if !ok {
		return ErrSessionNotFound
	}
	if !a.now().Before(expires) {
		delete(a.sessions, token)
		return ErrSessionNotFound
	}
	return nil
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Middleware rejects requests without a live bearer token. Creating a session
// is the only API route exempt from the check.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == sessionPath && r.Method == http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		if err := a.Validate(bearerToken(r)); err != nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
