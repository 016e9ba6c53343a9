package domain

import "time"

type APIKey struct {
	TokenHash string
	UserID    string
	Name      string
	Active    bool
	CreatedAt time.Time
}
