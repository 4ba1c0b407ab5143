package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrDuplicateEmail        = errors.New("user with this email already exists")
	ErrDuplicateLogin        = errors.New("user with this login already exists")
	ErrInvalidActivationLink = errors.New("invalid activation link")
	ErrUserNotFound          = errors.New("user not found")
	ErrInvalidCredentials    = errors.New("invalid password")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotActivated          = errors.New("account is not activated")
	ErrForbidden             = errors.New("forbidden")
	ErrSearchUnavailable     = errors.New("user search is not configured")
	ErrInfrastructure        = errors.New("infrastructure failure")
)

func infra(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInfrastructure, op, err)
}
