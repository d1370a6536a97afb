// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffmeta

import (
	"errors"
	"fmt"
)

var (
	// ErrStopWalking is a sentinel error to signal that the walk should stop.
	// A Handler may return it from HandleTag; the walk then ends without error.
	ErrStopWalking = errors.New("stop walking")

	errInvalidFormat = errors.New("tiffmeta: invalid format")
)

// ProcessingError is returned when the TIFF structure itself cannot be read,
// e.g. a bad byte order marker, a rejected magic number or a truncated header.
// Nothing usable is recovered when this error is returned.
type ProcessingError struct {
	// Offset in the source where the problem was found.
	Offset int64
	Reason string
	Err    error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tiffmeta: invalid format at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("tiffmeta: invalid format at offset %d: %s", e.Offset, e.Reason)
}

func (e *ProcessingError) Unwrap() []error {
	if e.Err == nil {
		return []error{errInvalidFormat}
	}
	return []error{errInvalidFormat, e.Err}
}

func newProcessingError(offset int64, reason string, err error) *ProcessingError {
	return &ProcessingError{Offset: offset, Reason: reason, Err: err}
}

// IsInvalidFormat reports whether err is a fatal format error.
func IsInvalidFormat(err error) bool {
	return errors.Is(err, errInvalidFormat)
}

// BoundsError is returned by Reader when a read would go past the end of the source.
type BoundsError struct {
	Offset int64
	Width  int64
	// Length is the source length known at the time of the read.
	// For a capturing Reader this is everything buffered before the stream ended
	// or the capture limit was hit.
	Length int64
}

func (e *BoundsError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("tiffmeta: negative offset %d", e.Offset)
	}
	return fmt.Sprintf("tiffmeta: read of %d bytes at offset %d exceeds source length %d", e.Width, e.Offset, e.Length)
}
