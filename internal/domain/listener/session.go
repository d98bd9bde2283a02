// Package listener provides the Listener domain entity: one user attached to
// the server through any number of browser connections.
package listener

import "time"

// Session represents a listener attached to the server.
type Session struct {
	UserID      string    // Empty for the anonymous listener
	DisplayName string    // Display name (optional)
	Connections int       // Open websocket connections
	JoinedAt    time.Time // First attach time
	LastSeenAt  time.Time // Last request or disconnect
}

// NewSession creates a new listener session.
func NewSession(userID, displayName string) *Session {
	now := time.Now()
	return &Session{
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    now,
		LastSeenAt:  now,
	}
}

// Anonymous reports whether the listener is not signed in.
func (s *Session) Anonymous() bool {
	return s.UserID == ""
}

// Touch records activity.
func (s *Session) Touch() {
	s.LastSeenAt = time.Now()
}

// Connect records a new open connection.
func (s *Session) Connect() {
	s.Connections++
	s.Touch()
}

// Disconnect records a closed connection.
func (s *Session) Disconnect() {
	if s.Connections > 0 {
		s.Connections--
	}
	s.Touch()
}

// Idle reports whether the listener has no connections and has not been
// seen for longer than ttl.
func (s *Session) Idle(now time.Time, ttl time.Duration) bool {
	return s.Connections == 0 && now.Sub(s.LastSeenAt) > ttl
}
