package domain

import "time"

// StatusBanned marks a user who may not authenticate.
const StatusBanned = "banned"

// User is an account. Credentials live in Identity rows, never here.
type User struct {
	ID            string
	Username      string // optional, unique when set
	Email         string // optional, unique when set
	Active        bool   // false until activation when activation is required
	Status        string // "" or StatusBanned
	StatusMessage string // shown to banned users
	LastActive    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsBanned reports whether the user is banned.
func (u *User) IsBanned() bool { return u.Status == StatusBanned }

// BanMessage returns the reason given when the user was banned.
func (u *User) BanMessage() string {
	if !u.IsBanned() {
		return ""
	}
	return u.StatusMessage
}
