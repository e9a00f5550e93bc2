package translate

import "errors"

var (
	// ErrInvalidGeometry is returned when geometry conversion fails.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrInvalidDateTime is returned when date or datetime parsing fails.
	ErrInvalidDateTime = errors.New("invalid datetime format")
)
