package domain

import "time"

// Role is an ordered privilege scalar. Higher values grant more access, so
// role checks are plain numeric comparisons rather than set membership.
type Role int

const (
	RoleUser  Role = 1
	RoleAdmin Role = 9
)

// User represents a persisted account record. ODACC is the numeric account
// handle users may log in with instead of their email.
type User struct {
	ID           int64
	Odacc        string
	Nickname     string
	Email        string
	PasswordHash string
	AvatarURL    string
	Birthday     *time.Time
	Address      string
	Gender       string
	Role         Role
	CreatedAt    time.Time
}
