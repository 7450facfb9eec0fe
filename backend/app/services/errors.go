package services

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrNotAssigned        = errors.New("device has no assignment")
	ErrInvalid            = errors.New("invalid request")
)
