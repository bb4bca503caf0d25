package model

import "time"

// SessionData is what the session store keeps for an issued token.
type SessionData struct {
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
