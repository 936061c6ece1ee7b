package chat

import "errors"

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidContent = errors.New("invalid content")
	ErrStore          = errors.New("message store failure")
	ErrBroadcast      = errors.New("broadcast failure")
)
