package domain

import "errors"

var (
	ErrUserIDEmpty    = errors.New("user id empty")
	ErrUserIDTooLong  = errors.New("user id too long")
	ErrAddressEmpty   = errors.New("transport address empty")
	ErrAddressTooLong = errors.New("transport address too long")

	ErrNotRegistered    = errors.New("connection not registered")
	ErrAlreadyInCall    = errors.New("requester already in a call")
	ErrNoUsersAvailable = errors.New("no users available")
	ErrUserNotAvailable = errors.New("user not available")
	ErrUserInCall       = errors.New("user in call")
	ErrSessionNotFound  = errors.New("session not found")
	ErrAlreadyInRoom    = errors.New("already in room")
	ErrCallFull         = errors.New("call full")
)
