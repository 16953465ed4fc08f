// Copyright 2024-2026 Aiku AI

package intent

import (
	"errors"
	"fmt"

	"maunium.net/go/mautrix/id"
)

// ErrInvalidIdentity is returned when a user ID does not parse as
// @localpart:domain.
var ErrInvalidIdentity = errors.New("invalid matrix user ID")

// JoinError is returned when a room join fails even after the bot-invite
// fallback path has been exhausted.
type JoinError struct {
	UserID id.UserID
	RoomID id.RoomID
	Err    error
}

func (je *JoinError) Error() string {
	return fmt.Sprintf("failed to join room %s as %s: %v", je.RoomID, je.UserID, je.Err)
}

func (je *JoinError) Unwrap() error {
	return je.Err
}

// InviteError is returned when inviting a user to a room fails with
// anything other than a forbidden response.
type InviteError struct {
	Target id.UserID
	RoomID id.RoomID
	Err    error
}

func (ie *InviteError) Error() string {
	return fmt.Sprintf("failed to invite %s to %s: %v", ie.Target, ie.RoomID, ie.Err)
}

func (ie *InviteError) Unwrap() error {
	return ie.Err
}
