package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidEntityType = errors.New("invalid entity type")
	ErrEmptyEntityID     = errors.New("entity ID cannot be empty")
	ErrInvalidMode       = errors.New("invalid search mode")
	ErrInvalidScore      = errors.New("score must be between 0 and 1")
	ErrInvalidMethod     = errors.New("invalid match method")
)
