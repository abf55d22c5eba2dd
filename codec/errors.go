package codec

import (
	"errors"
	"io"
)

var (
	// ErrBufferTooSmall means a single value does not fit the configured
	// buffer. The writer panics with it; it is a sizing bug, not bad data.
	ErrBufferTooSmall = errors.New("codec: value is too large for the allocated buffer size")
	// ErrTruncated is returned when the stream ends before a value is complete.
	ErrTruncated = errors.New("codec: stream doesn't have enough data")
	// ErrCorrupted is returned for structurally invalid data (negative counts, bad parts, ...).
	ErrCorrupted = errors.New("codec: data is corrupted")
)

// IsCorrupt reports whether err belongs to the "treat as absent/corrupted" class.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrTruncated) || errors.Is(err, ErrCorrupted) || errors.Is(err, ErrBufferTooSmall) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
