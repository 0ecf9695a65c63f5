package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidParams   = errors.New("invalid generation parameters")
	ErrInvalidStatus   = errors.New("invalid job status")
	ErrJobTerminal     = errors.New("job already finished")
	ErrJobExists       = errors.New("job already exists")
	ErrProviderFailure = errors.New("provider failure")
)
