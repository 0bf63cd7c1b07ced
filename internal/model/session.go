package model

import "time"

// Session binds an opaque client session id to one authenticated user.
// Nothing else is kept in session state.
type Session struct {
	ID        string    `json:"id"        db:"id"`
	UserID    int64     `json:"userId"    db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
