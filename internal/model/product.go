package model

import "time"

// Product is a catalog entry owned by exactly one user.
//
// OwnerID is set once at creation; no update path writes it.
type Product struct {
	ID          int64     `json:"id"          db:"id"`
	OwnerID     int64     `json:"ownerId"     db:"owner_id"`
	Image       string    `json:"image"       db:"image"`
	Name        string    `json:"name"        db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`
}
