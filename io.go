// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffmeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/text/encoding"
)

// DefaultLimitCaptureSize is the default maximum number of bytes a capturing
// Reader will buffer from its stream.
const DefaultLimitCaptureSize = 64 << 20

// source is the byte provider behind a Reader.
type source interface {
	// readAt fills p with the bytes at off.
	// It returns a *BoundsError if the range is not available.
	readAt(p []byte, off int64) error

	// checkRange returns a *BoundsError if the n bytes at off are not available.
	checkRange(off, n int64) error

	// length returns the current logical length.
	length() int64
}

// Reader provides positional, byte-order aware reads of TIFF data.
// All offsets are absolute from the start of the source.
// Note that this is not thread safe.
type Reader struct {
	src       source
	byteOrder binary.ByteOrder

	buf [8]byte
}

// NewIndexedReader returns a Reader with random access to the size bytes in r.
func NewIndexedReader(r io.ReaderAt, size int64) *Reader {
	return newReader(&indexedSource{r: r, size: size})
}

// NewBytesReader returns an indexed Reader over b.
func NewBytesReader(b []byte) *Reader {
	return NewIndexedReader(bytes.NewReader(b), int64(len(b)))
}

// NewCapturingReader returns a Reader over the forward-only stream r.
// Bytes are read from r on demand and kept, so earlier offsets can be read
// again without seeking. At most limit bytes are buffered; if limit <= 0,
// DefaultLimitCaptureSize is used.
func NewCapturingReader(r io.Reader, limit int64) *Reader {
	if limit <= 0 {
		limit = DefaultLimitCaptureSize
	}
	return newReader(&capturingSource{r: r, limit: limit})
}

func newReader(src source) *Reader {
	return &Reader{
		src:       src,
		byteOrder: binary.BigEndian,
	}
}

// Len returns the current logical length of the source.
// It is fixed for indexed readers and grows as a capturing reader buffers more data.
func (r *Reader) Len() int64 {
	return r.src.length()
}

// ByteOrder returns the byte order used for multi-byte reads.
func (r *Reader) ByteOrder() binary.ByteOrder {
	return r.byteOrder
}

// SetByteOrder sets the byte order used for multi-byte reads.
func (r *Reader) SetByteOrder(order binary.ByteOrder) {
	r.byteOrder = order
}

// SetMotorolaByteOrder selects big endian ("MM", Motorola) if motorola is true,
// little endian ("II", Intel) otherwise.
func (r *Reader) SetMotorolaByteOrder(motorola bool) {
	if motorola {
		r.byteOrder = binary.BigEndian
	} else {
		r.byteOrder = binary.LittleEndian
	}
}

// IsMotorolaByteOrder reports whether the reader is big endian.
func (r *Reader) IsMotorolaByteOrder() bool {
	return r.byteOrder == binary.BigEndian
}

func (r *Reader) readN(off int64, n int) ([]byte, error) {
	b := r.buf[:n]
	if err := r.src.readAt(b, off); err != nil {
		return nil, err
	}
	return b, nil
}

// Uint8 reads one byte at off.
func (r *Reader) Uint8(off int64) (uint8, error) {
	b, err := r.readN(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Int8 reads one signed byte at off.
func (r *Reader) Int8(off int64) (int8, error) {
	v, err := r.Uint8(off)
	return int8(v), err
}

// Uint16 reads a 16-bit unsigned integer at off.
func (r *Reader) Uint16(off int64) (uint16, error) {
	b, err := r.readN(off, 2)
	if err != nil {
		return 0, err
	}
	return r.byteOrder.Uint16(b), nil
}

// Int16 reads a 16-bit signed integer at off.
func (r *Reader) Int16(off int64) (int16, error) {
	v, err := r.Uint16(off)
	return int16(v), err
}

// Uint32 reads a 32-bit unsigned integer at off.
func (r *Reader) Uint32(off int64) (uint32, error) {
	b, err := r.readN(off, 4)
	if err != nil {
		return 0, err
	}
	return r.byteOrder.Uint32(b), nil
}

// Int32 reads a 32-bit signed integer at off.
func (r *Reader) Int32(off int64) (int32, error) {
	v, err := r.Uint32(off)
	return int32(v), err
}

// Float32 reads an IEEE 754 single precision value at off.
func (r *Reader) Float32(off int64) (float32, error) {
	v, err := r.Uint32(off)
	return math.Float32frombits(v), err
}

// Float64 reads an IEEE 754 double precision value at off.
func (r *Reader) Float64(off int64) (float64, error) {
	b, err := r.readN(off, 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(r.byteOrder.Uint64(b)), nil
}

// checkRange returns a *BoundsError if the n bytes at off are not available.
// A capturing reader buffers up to off+n to find out.
func (r *Reader) checkRange(off, n int64) error {
	if n < 0 {
		return &BoundsError{Offset: off, Width: n, Length: r.src.length()}
	}
	return r.src.checkRange(off, n)
}

// Bytes reads n bytes at off.
// The returned slice is owned by the caller.
func (r *Reader) Bytes(off, n int64) ([]byte, error) {
	if n < 0 {
		return nil, &BoundsError{Offset: off, Width: n, Length: r.src.length()}
	}
	if n == 0 {
		if off < 0 {
			return nil, &BoundsError{Offset: off, Length: r.src.length()}
		}
		return []byte{}, nil
	}
	if err := r.src.checkRange(off, n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if err := r.src.readAt(b, off); err != nil {
		return nil, err
	}
	return b, nil
}

// String reads n bytes at off and decodes them with enc.
// If enc is nil the bytes are used as is (UTF-8).
func (r *Reader) String(off, n int64, enc encoding.Encoding) (string, error) {
	b, err := r.Bytes(off, n)
	if err != nil {
		return "", err
	}
	return decodeString(b, enc)
}

// NullTerminatedString reads bytes at off up to the first NUL byte or maxLen
// bytes, whichever comes first, and decodes them with enc.
// Running into the end of the source before a NUL is found is not an error
// as long as at least one byte could be read.
func (r *Reader) NullTerminatedString(off int64, maxLen int, enc encoding.Encoding) (string, error) {
	var b []byte
	for i := range maxLen {
		c, err := r.Uint8(off + int64(i))
		if err != nil {
			if i == 0 {
				return "", err
			}
			break
		}
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return decodeString(b, enc)
}

// LengthPrefixedString reads a one byte length at off followed by that many bytes.
func (r *Reader) LengthPrefixedString(off int64, enc encoding.Encoding) (string, error) {
	n, err := r.Uint8(off)
	if err != nil {
		return "", err
	}
	return r.String(off+1, int64(n), enc)
}

func decodeString(b []byte, enc encoding.Encoding) (string, error) {
	if enc == nil {
		return string(b), nil
	}
	s, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode string: %w", err)
	}
	return string(s), nil
}

// indexedSource has random access to a source of known size.
type indexedSource struct {
	r    io.ReaderAt
	size int64
}

func (s *indexedSource) length() int64 {
	return s.size
}

func (s *indexedSource) checkRange(off, n int64) error {
	if off < 0 || n > s.size || off > s.size-n {
		return &BoundsError{Offset: off, Width: n, Length: s.size}
	}
	return nil
}

func (s *indexedSource) readAt(p []byte, off int64) error {
	n := int64(len(p))
	if err := s.checkRange(off, n); err != nil {
		return err
	}
	n2, err := s.r.ReadAt(p, off)
	if n2 == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("read %d bytes at offset %d: %w", n, off, err)
}

// capturingSource reads forward from a stream and keeps everything read
// in an append-only buffer.
type capturingSource struct {
	r     io.Reader
	limit int64

	buf []byte
	eof bool
	// Sticky non-EOF read error.
	err error
}

const captureChunkSize = 4096

func (s *capturingSource) length() int64 {
	return int64(len(s.buf))
}

func (s *capturingSource) checkRange(off, n int64) error {
	if off < 0 {
		return &BoundsError{Offset: off, Width: n, Length: s.length()}
	}
	if n > s.limit || off > s.limit-n {
		return &BoundsError{Offset: off, Width: n, Length: s.limit}
	}
	end := off + n
	if err := s.fill(end); err != nil {
		return err
	}
	if end > s.length() {
		return &BoundsError{Offset: off, Width: n, Length: s.length()}
	}
	return nil
}

func (s *capturingSource) readAt(p []byte, off int64) error {
	if err := s.checkRange(off, int64(len(p))); err != nil {
		return err
	}
	copy(p, s.buf[off:])
	return nil
}

// fill reads from the stream until at least end bytes are buffered
// or the stream is exhausted.
func (s *capturingSource) fill(end int64) error {
	for int64(len(s.buf)) < end {
		if s.err != nil {
			return s.err
		}
		if s.eof {
			return nil
		}
		// Grow by at most one chunk per read.
		want := min(int64(captureChunkSize), s.limit-int64(len(s.buf)))

		start := len(s.buf)
		s.buf = append(s.buf, make([]byte, want)...)
		n, err := io.ReadFull(s.r, s.buf[start:])
		s.buf = s.buf[:start+n]
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				s.eof = true
				return nil
			}
			// Bytes read before the error are still served.
			s.err = fmt.Errorf("read stream at offset %d: %w", start+n, err)
		}
	}
	return nil
}
