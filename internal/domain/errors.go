package domain

import "errors"

var (
	ErrNotFound          = errors.New("analysis not found")
	ErrInvalidImage      = errors.New("invalid image data")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)
