package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrValidation      = errors.New("validation failed")
	ErrVersionConflict = errors.New("version conflict")
	ErrStoreWrite      = errors.New("store write failed")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrSigningFailed   = errors.New("signing failed")
	ErrLockHeld        = errors.New("lock already held")
	ErrPositionClosed  = errors.New("position already closed")
)
