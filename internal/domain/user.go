// Package domain contains entity without logic, just meta-data
package domain

import "strings"

const (
	MaxUserIDLen  = 64
	MaxAddressLen = 128
)

type (
	UserID           string
	TransportAddress string
)

type PresenceState string

const (
	PresenceIdle      PresenceState = "idle"
	PresenceInSession PresenceState = "in-session"
)

// User is the public view of one online identity.
type User struct {
	ID      UserID           `json:"id"`
	Address TransportAddress `json:"address,omitempty"`
}

// ParseUserID trims and validates a client supplied identifier.
func ParseUserID(raw string) (UserID, error) {
	id := strings.TrimSpace(raw)
	if len(id) == 0 {
		return "", ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(id), nil
}

func ParseAddress(raw string) (TransportAddress, error) {
	addr := strings.TrimSpace(raw)
	if len(addr) == 0 {
		return "", ErrAddressEmpty
	}
	if len(addr) > MaxAddressLen {
		return "", ErrAddressTooLong
	}
	return TransportAddress(addr), nil
}
