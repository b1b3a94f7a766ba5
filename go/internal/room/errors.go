package room

import "errors"

var (
	ErrNoRoom            = errors.New("no current room")
	ErrNoUser            = errors.New("no authenticated user")
	ErrRoomNotFound      = errors.New("room not found")
	ErrDuplicateCode     = errors.New("room code already in use")
	ErrRoomInactive      = errors.New("room is no longer active")
	ErrStaleRoom         = errors.New("room is no longer current")
	ErrNotHost           = errors.New("only the host can end the room")
	ErrEmptyMessage      = errors.New("message text is empty")
	ErrMessageTooLong    = errors.New("message text is too long")
	ErrInvalidSuggestion = errors.New("suggestion name is required")
	ErrUnknownSuggestion = errors.New("suggestion does not exist in this room")
	ErrInvalidDuration   = errors.New("invalid room duration")
	ErrInvalidRoomName   = errors.New("room name is required")
)
