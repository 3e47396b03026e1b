package domain

import "time"

// DefaultAuthority is granted to every self-registered account.
const DefaultAuthority = "USER"

// User is an account that owns tasks.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Enabled      bool
	Authorities  []string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
