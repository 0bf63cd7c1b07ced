// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account. Email is the login key and is unique across
// all users; PasswordHash is a bcrypt hash, never the plaintext.
type User struct {
	ID           int64     `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
