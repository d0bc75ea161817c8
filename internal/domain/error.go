package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotReady         = errors.New("result not ready")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrAccountDisabled  = errors.New("account is deactivated")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrSynthesisTimeout = errors.New("synthesis timed out")
	ErrReadDatabaseRow  = errors.New("failed to read database row")
)
