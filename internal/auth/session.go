package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrAuthRequired is raised client-side, before any network call, when
	// an operation needing a logged-in user is invoked without one.
	ErrAuthRequired = errors.New("authentication required")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims mirrors the access-token claims issued by the shop backend.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Session holds the bearer credential obtained at login. The client has no
// signing secret, so the token is parsed unverified purely to read the user
// id and expiry; the server remains the authority on validity.
type Session struct {
	token  string
	claims Claims
}

// NewSession parses a bearer token into a session.
func NewSession(token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	return &Session{token: token, claims: claims}, nil
}

func (s *Session) Token() string {
	return s.token
}

// UserID returns the user id claim, falling back to the token subject.
func (s *Session) UserID() string {
	if s.claims.UserID != "" {
		return s.claims.UserID
	}
	return s.claims.Subject
}

func (s *Session) Email() string {
	return s.claims.Email
}

// Expired reports whether the token's expiry has passed. Tokens without an
// expiry claim are treated as live; the server will reject them if not.
func (s *Session) Expired() bool {
	if s.claims.ExpiresAt == nil {
		return false
	}
	return time.Now().After(s.claims.ExpiresAt.Time)
}

// Live reports whether the session can authenticate a call.
func (s *Session) Live() bool {
	return s != nil && !s.Expired()
}

// Decorate attaches the bearer credential to an outgoing request.
func (s *Session) Decorate(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.token)
}
