package config

import "errors"

var (
	// ErrNoFormats is returned when no output format is requested
	ErrNoFormats = errors.New("at least one output format is required")
	// ErrInvalidMaxDepth is returned when max_depth is negative
	ErrInvalidMaxDepth = errors.New("max_depth must not be negative")
	// ErrInvalidChunkSize is returned when max_chunk_size is below 1024 bytes
	ErrInvalidChunkSize = errors.New("max_chunk_size must be at least 1024")
	// ErrInvalidTimeout is returned when request timeout is not greater than 0
	ErrInvalidTimeout = errors.New("request_timeout must be greater than 0")
	// ErrInvalidHeader is returned for a header not in "Name: Value" form
	ErrInvalidHeader = errors.New("header must be in 'Name: Value' format")
	// ErrInvalidPattern is returned for a glob that does not compile
	ErrInvalidPattern = errors.New("invalid include/exclude pattern")
)
