// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package tiffmeta reads the metadata stored in TIFF Image File Directories (IFDs),
// as found in TIFF and RAW files and in the EXIF segment of JPEG files.
//
// Files and other io.ReaderAt sources are read with random access.
// Forward-only streams are read with a capturing Reader, which buffers what it
// has read so that the walk can go back to earlier offsets.
// Both give the same result for the same bytes.
package tiffmeta

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"golang.org/x/text/encoding"
)

const (
	defaultLimitNumTags = 5000
	defaultLimitTagSize = 1 << 20
	defaultMaxDepth     = 16
)

// Options contains the options for the Read functions and Walk.
type Options struct {
	// The Handler to use. Default is an ExifHandler.
	Handler Handler

	// If set, tags for which this function returns false are skipped
	// in addition to those the Handler skips.
	ShouldHandleTag func(dir *Directory, tagID uint16) bool

	// Charset is used to decode ASCII values.
	// If not set, the bytes are used as is.
	Charset encoding.Encoding

	// Warnf will be called for each warning.
	Warnf func(string, ...any)

	// Timeout is the maximum time to spend reading metadata.
	// If set to 0, there is no timeout.
	Timeout time.Duration

	// LimitNumTags is the maximum number of IFD entries to read,
	// entries pointing to nested IFDs included.
	// Default value is 5000.
	LimitNumTags uint32

	// LimitTagSize is the maximum size in bytes of a tag value to read.
	// Tag values larger than this will be skipped.
	// Default value is 1 MiB.
	LimitTagSize uint32

	// LimitCaptureSize is the maximum number of bytes to buffer when reading
	// from a stream. Default value is DefaultLimitCaptureSize.
	LimitCaptureSize int64

	// MaxDepth is the maximum nesting depth of sub-IFDs.
	// Default value is 16.
	MaxDepth int
}

func (opts Options) withDefaults() Options {
	if opts.Handler == nil {
		opts.Handler = &ExifHandler{}
	}
	if opts.Warnf == nil {
		opts.Warnf = func(string, ...any) {}
	}
	if opts.LimitNumTags == 0 {
		opts.LimitNumTags = defaultLimitNumTags
	}
	if opts.LimitTagSize == 0 {
		opts.LimitTagSize = defaultLimitTagSize
	}
	if opts.LimitCaptureSize <= 0 {
		opts.LimitCaptureSize = DefaultLimitCaptureSize
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}
	return opts
}

// ReadFile reads the TIFF metadata in the named file.
func ReadFile(filename string, opts Options) (*Metadata, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return ReadAt(f, fi.Size(), opts)
}

// ReadAt reads the TIFF metadata in the first size bytes of r.
func ReadAt(r io.ReaderAt, size int64, opts Options) (*Metadata, error) {
	return decode(NewIndexedReader(r, size), opts)
}

// ReadBytes reads the TIFF metadata in b.
func ReadBytes(b []byte, opts Options) (*Metadata, error) {
	return decode(NewBytesReader(b), opts)
}

// Read reads the TIFF metadata from the stream r.
// r is only read forward and only as far as needed.
func Read(r io.Reader, opts Options) (*Metadata, error) {
	opts = opts.withDefaults()
	return decode(NewCapturingReader(r, opts.LimitCaptureSize), opts)
}

func decode(br *Reader, opts Options) (md *Metadata, err error) {
	opts = opts.withDefaults()

	errFromRecover := func(r any) error {
		if r == nil {
			return nil
		}
		if errp, ok := r.(error); ok {
			return fmt.Errorf("tiffmeta: panic during walk: %w", errp)
		}
		return fmt.Errorf("tiffmeta: panic during walk: %v", r)
	}

	walk := func() (md *Metadata, err error) {
		defer func() {
			if err2 := errFromRecover(recover()); err2 != nil {
				md, err = nil, err2
			}
		}()
		return Walk(br, opts.Handler, opts)
	}

	if opts.Timeout <= 0 {
		return walk()
	}

	type result struct {
		md  *Metadata
		err error
	}
	resc := make(chan result, 1)
	go func() {
		md, err := walk()
		resc <- result{md, err}
	}()

	select {
	case <-time.After(opts.Timeout):
		return nil, fmt.Errorf("timed out after %s", opts.Timeout)
	case res := <-resc:
		return res.md, res.err
	}
}

// DateTime returns the time the picture was taken.
// It checks DateTimeOriginal in the Exif IFD first, then DateTime in IFD0.
// The time is in the local time zone, as EXIF stores no offset.
func (m *Metadata) DateTime() (time.Time, error) {
	var s string
	if d, found := m.Directory(DirectoryExif); found {
		s, _ = d.StringValue(TagDateTimeOriginal)
	}
	if s == "" {
		if d, found := m.Directory(DirectoryIFD0); found {
			s, _ = d.StringValue(TagDateTime)
		}
	}
	if s == "" {
		return time.Time{}, nil
	}

	const layout = "2006:01:02 15:04:05"
	return time.ParseInLocation(layout, s, time.Local)
}

// LatLong returns the GPS position in decimal degrees.
// South and west are negative.
func (m *Metadata) LatLong() (lat float64, long float64, found bool) {
	d, found := m.Directory(DirectoryGPS)
	if !found {
		return 0, 0, false
	}

	latVal, ok1 := d.Value(TagGPSLatitude)
	longVal, ok2 := d.Value(TagGPSLongitude)
	if !ok1 || !ok2 {
		return 0, 0, false
	}

	lat, ok1 = toDegrees(latVal)
	long, ok2 = toDegrees(longVal)
	if !ok1 || !ok2 {
		return 0, 0, false
	}

	if ref, _ := d.StringValue(TagGPSLatitudeRef); ref == "S" {
		lat = -lat
	}
	if ref, _ := d.StringValue(TagGPSLongitudeRef); ref == "W" {
		long = -long
	}

	return lat, long, true
}

// toDegrees converts degrees, minutes and seconds to decimal degrees.
func toDegrees(v any) (float64, bool) {
	var parts []float64
	switch vv := v.(type) {
	case []Rat[uint32]:
		for _, r := range vv {
			parts = append(parts, r.Float64())
		}
	case []float64:
		parts = vv
	default:
		f, ok := toFloat64(v)
		return f, ok
	}
	if len(parts) != 3 {
		return 0, false
	}
	deg := parts[0] + parts[1]/60 + parts[2]/3600
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0, false
	}
	return deg, true
}
