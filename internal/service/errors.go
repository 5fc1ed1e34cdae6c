package service

import "errors"

// Failure taxonomy shared by every messaging operation. Handlers map these to
// HTTP statuses; bodies stay generic so denials never leak who or what was
// rejected.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidTarget   = errors.New("invalid target")
	ErrConflict        = errors.New("conflict")
)
