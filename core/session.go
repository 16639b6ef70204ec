package core

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// DefaultSessionDuration is the default lifetime for a session (24 hours).
const DefaultSessionDuration = 24 * time.Hour

// sessionIDBytes is the entropy of a session ID (256 bits).
const sessionIDBytes = 32

// GenerateSessionID returns a random session ID from crypto/rand,
// base64 URL-encoded without padding so it needs no escaping in URLs
// or cookies.
func GenerateSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf), nil
}

// Session represents a server-side session with expiry tracking. It is used
// both for authenticated UI sessions and as the envelope for wizard state
// in the document session store.
type Session struct {
	// ID is the unique session identifier (base64 URL-encoded random bytes)
	ID string

	// CreatedAt is when the session was created
	CreatedAt time.Time

	// ExpiresAt is when the session becomes invalid
	ExpiresAt time.Time
}

// NewSession creates a new Session with the given ID and default 24-hour expiration.
// CreatedAt is set to the current time.
func NewSession(id string) Session {
	now := time.Now()
	return Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(DefaultSessionDuration),
	}
}

// NewSessionWithDuration creates a new Session with a custom expiration duration.
// CreatedAt is set to the current time.
func NewSessionWithDuration(id string, duration time.Duration) Session {
	now := time.Now()
	return Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
	}
}

// IsExpired returns true if the session has passed its expiration time.
func (s Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// TimeRemaining returns the duration until the session expires.
// Returns a negative duration if already expired.
func (s Session) TimeRemaining() time.Duration {
	return time.Until(s.ExpiresAt)
}
