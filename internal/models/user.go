package models

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsAdmin      bool
	Active       bool
	CreatedAt    time.Time
}

// Identity is the authenticated caller as seen by the shipment core.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

// DefaultActorName is recorded in history when no acting identity is known.
const DefaultActorName = "Admin"

// ActorName returns the display name of an optional acting identity.
func ActorName(actor *Identity) string {
	if actor == nil || actor.Username == "" {
		return DefaultActorName
	}
	return actor.Username
}
