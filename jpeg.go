// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffmeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	markerSOI  = 0xffd8
	markerApp1 = 0xffe1
	markerSOS  = 0xffda
	markerEOI  = 0xffd9
)

var exifHeader = []byte("Exif\x00\x00")

// ReadJPEG reads the TIFF metadata in the EXIF segment of the JPEG stream r.
// Only the first EXIF segment is read. If there is none, the returned Metadata is empty.
// r is read forward only, so this works on non-seekable streams.
func ReadJPEG(r io.Reader, opts Options) (*Metadata, error) {
	opts = opts.withDefaults()

	var buf [4]byte
	read2 := func() (uint16, error) {
		if _, err := io.ReadFull(r, buf[:2]); err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint16(buf[:2]), nil
	}

	soi, err := read2()
	if err != nil || soi != markerSOI {
		return nil, newProcessingError(0, "not a JPEG", err)
	}

	for {
		marker, err := read2()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return &Metadata{}, nil
			}
			return nil, err
		}

		if marker == 0 || marker == 0xffff {
			// Padding.
			continue
		}

		if marker == markerSOS || marker == markerEOI {
			// Start of scan. We're done.
			return &Metadata{}, nil
		}

		// Read the 16-bit length of the segment. The value includes the 2 bytes for the
		// length itself, so we subtract 2 to get the number of remaining bytes.
		length, err := read2()
		if err != nil {
			return &Metadata{}, nil
		}
		if length < 2 {
			return nil, newProcessingError(0, fmt.Sprintf("invalid JPEG segment length %d", length), nil)
		}
		length -= 2

		if marker == markerApp1 && int(length) >= len(exifHeader) {
			header := make([]byte, len(exifHeader))
			if _, err := io.ReadFull(r, header); err != nil {
				return &Metadata{}, nil
			}
			length -= uint16(len(exifHeader))
			if bytes.Equal(header, exifHeader) {
				seg := io.LimitReader(r, int64(length))
				return decode(NewCapturingReader(seg, opts.LimitCaptureSize), opts)
			}
			// XMP or some other APP1 payload.
		}

		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return &Metadata{}, nil
		}
	}
}
