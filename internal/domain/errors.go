package domain

import "errors"

var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrStorage       = errors.New("storage unavailable")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrIgnored       = errors.New("event ignored")
	ErrInvalidEvent  = errors.New("invalid event")
	ErrNotConfigured = errors.New("feature not configured")
	ErrRateLimited   = errors.New("rate limited")
)
