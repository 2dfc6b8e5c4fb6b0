package models

import "time"

// User mirrors one identity-provider account into local storage.
// Column names are lowercase (isonline, lastseen); JSON is camelCase. The
// struct tags are the single normalization boundary between the two.
type User struct {
	ID        string     `db:"id" json:"id"`
	Username  string     `db:"username" json:"username"`
	Email     string     `db:"email" json:"email,omitempty"`
	IsOnline  bool       `db:"isonline" json:"isOnline"`
	LastSeen  *time.Time `db:"lastseen" json:"lastSeen"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}
