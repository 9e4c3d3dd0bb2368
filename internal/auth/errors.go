package auth

import "errors"

var (
	ErrNotFound         = errors.New("auth: not found")
	ErrMultipleProfiles = errors.New("auth: multiple profiles for user")
	ErrInvalidInput     = errors.New("auth: invalid input")
	ErrUnauthorized     = errors.New("auth: unauthorized")
)
