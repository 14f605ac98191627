package users

import "errors"

var (
	ErrInvalidRole  = errors.New("invalid role")
	ErrCacheEmpty   = errors.New("no cached user list")
	ErrCacheCorrupt = errors.New("cached user list is unreadable")
)
