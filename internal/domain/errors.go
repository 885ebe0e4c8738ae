package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNoSession       = errors.New("no exchange session")
	ErrInvalidOrder    = errors.New("invalid order parameters")
	ErrInvalidSettings = errors.New("invalid settings")
	ErrAlreadySettled  = errors.New("bet already settled")
	ErrLockHeld        = errors.New("lock already held")
	ErrInvalidInput    = errors.New("invalid input")
)
