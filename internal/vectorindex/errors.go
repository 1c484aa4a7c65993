package vectorindex

import "errors"

var (
	// ErrUnknownIndexType is a configuration error: index.type names no backend
	ErrUnknownIndexType = errors.New("unknown index type")

	// ErrNotLoaded is returned by Add when no handle is attached for the name.
	// An attached but empty index is not an error.
	ErrNotLoaded = errors.New("index not loaded")

	// ErrIndexNotFound is returned by Open when no index is persisted under the name
	ErrIndexNotFound = errors.New("index not found")

	ErrLengthMismatch    = errors.New("texts and ids differ in length")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrCorruptIndex      = errors.New("corrupt index files")
	ErrInvalidName       = errors.New("invalid index name")
	ErrDirRequired       = errors.New("index directory is required")
	ErrEncoderRequired   = errors.New("encoder is required")
)
