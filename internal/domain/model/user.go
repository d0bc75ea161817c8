package model

import "time"

// User is the owning principal of jobs. Authentication is email/password;
// the password never leaves the web layer unhashed.
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	DisplayName      string
	IsActive         bool
	IsAdmin          bool
	TotalGenerations int
	CreatedAt        time.Time
	LastLoginAt      *time.Time
}
