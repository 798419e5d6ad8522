package entities

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrAlreadyExists   = errors.New("already exists")
	ErrValidation      = errors.New("validation error")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAlreadyResolved = errors.New("approval already resolved")
	ErrInvalidStatus   = errors.New("invalid approval status")
)
