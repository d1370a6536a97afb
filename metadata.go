// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffmeta

import (
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DirectoryType identifies the kind of IFD a Directory was decoded from.
type DirectoryType string

const (
	DirectoryIFD0      DirectoryType = "IFD0"
	DirectoryThumbnail DirectoryType = "IFD1"
	DirectoryExif      DirectoryType = "ExifIFD"
	DirectoryGPS       DirectoryType = "GPSInfoIFD"
	DirectoryInterop   DirectoryType = "InteroperabilityIFD"
	DirectorySubIFD    DirectoryType = "SubIFD"
)

// Tag is a decoded IFD entry.
type Tag struct {
	ID    uint16
	Type  DataType
	Count uint32

	// Value is the decoded value, see Directory.Value.
	Value any
}

// Directory holds the tags decoded from one IFD and any errors
// encountered while decoding them.
type Directory struct {
	Type DirectoryType

	// Namespace is the path to the IFD, e.g. "IFD0/GPSInfoIFD".
	Namespace string

	// Offset of the IFD in the source.
	Offset int64

	tags map[uint16]Tag
	ids  []uint16
	errs *multierror.Error
}

func newDirectory(typ DirectoryType, namespace string, offset int64) *Directory {
	return &Directory{
		Type:      typ,
		Namespace: namespace,
		Offset:    offset,
		tags:      make(map[uint16]Tag),
	}
}

// Set stores tag, replacing any earlier tag with the same ID.
func (d *Directory) Set(tag Tag) {
	if _, found := d.tags[tag.ID]; !found {
		d.ids = append(d.ids, tag.ID)
	}
	d.tags[tag.ID] = tag
}

// Tag returns the tag with the given id.
func (d *Directory) Tag(id uint16) (Tag, bool) {
	t, found := d.tags[id]
	return t, found
}

// Has reports whether the tag with the given id is present.
func (d *Directory) Has(id uint16) bool {
	_, found := d.tags[id]
	return found
}

// Value returns the decoded value of a tag.
//
// Values have these types, with a slice of the same element type when the count is above 1:
//
//	BYTE                 uint8 ([]byte)
//	ASCII                string
//	SHORT                uint16
//	LONG, IFD            uint32
//	RATIONAL             Rat[uint32]
//	SBYTE                int8
//	SSHORT               int16
//	SLONG                int32
//	SRATIONAL            Rat[int32]
//	FLOAT                float32
//	DOUBLE               float64
//	UNDEFINED, unknown   []byte (always a slice)
func (d *Directory) Value(id uint16) (any, bool) {
	t, found := d.tags[id]
	if !found {
		return nil, false
	}
	return t.Value, true
}

// Int returns the tag value as an integer.
// Slices give their first element, rationals their integer quotient
// and strings are parsed.
func (d *Directory) Int(id uint16) (int64, bool) {
	v, found := d.Value(id)
	if !found {
		return 0, false
	}
	return toInt64(v)
}

// Float returns the tag value as a float64.
func (d *Directory) Float(id uint16) (float64, bool) {
	v, found := d.Value(id)
	if !found {
		return 0, false
	}
	return toFloat64(v)
}

// StringValue returns a string representation of the tag value.
// Numeric slices are space delimited.
func (d *Directory) StringValue(id uint16) (string, bool) {
	v, found := d.Value(id)
	if !found {
		return "", false
	}
	return toString(v), true
}

// Tags returns the tags in the order they were first seen.
func (d *Directory) Tags() []Tag {
	tags := make([]Tag, len(d.ids))
	for i, id := range d.ids {
		tags[i] = d.tags[id]
	}
	return tags
}

// Len returns the number of tags.
func (d *Directory) Len() int {
	return len(d.ids)
}

// AddError records a non-fatal error.
func (d *Directory) AddError(err error) {
	d.errs = multierror.Append(d.errs, err)
}

// addErrorf records a non-fatal error with the directory namespace as prefix.
func (d *Directory) addErrorf(format string, args ...any) {
	d.AddError(fmt.Errorf("%s: %w", d.Namespace, fmt.Errorf(format, args...)))
}

// HasErrors reports whether any errors were recorded.
func (d *Directory) HasErrors() bool {
	return d.errs != nil && len(d.errs.Errors) > 0
}

// Errors returns the recorded errors in the order they occurred.
func (d *Directory) Errors() []error {
	if d.errs == nil {
		return nil
	}
	return d.errs.Errors
}

// Err returns all recorded errors as one error, or nil.
func (d *Directory) Err() error {
	return d.errs.ErrorOrNil()
}

func (d *Directory) String() string {
	return fmt.Sprintf("%s (%d tags)", d.Namespace, len(d.ids))
}

// Metadata is the result of walking a TIFF structure.
type Metadata struct {
	byteOrder   binary.ByteOrder
	directories []*Directory
	thumbnail   []byte
}

func (m *Metadata) addDirectory(d *Directory) *Directory {
	m.directories = append(m.directories, d)
	return d
}

// Directories returns all directories in discovery order.
func (m *Metadata) Directories() []*Directory {
	return append([]*Directory(nil), m.directories...)
}

// Directory returns the first directory of the given type.
func (m *Metadata) Directory(typ DirectoryType) (*Directory, bool) {
	for _, d := range m.directories {
		if d.Type == typ {
			return d, true
		}
	}
	return nil, false
}

// DirectoriesOf returns all directories of the given type in discovery order.
func (m *Metadata) DirectoriesOf(typ DirectoryType) []*Directory {
	var dirs []*Directory
	for _, d := range m.directories {
		if d.Type == typ {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// HasErrors reports whether any directory has errors.
func (m *Metadata) HasErrors() bool {
	for _, d := range m.directories {
		if d.HasErrors() {
			return true
		}
	}
	return false
}

// Errors returns the errors of all directories.
func (m *Metadata) Errors() []error {
	var errs []error
	for _, d := range m.directories {
		errs = append(errs, d.Errors()...)
	}
	return errs
}

// ByteOrder returns the byte order the data was decoded with.
func (m *Metadata) ByteOrder() binary.ByteOrder {
	return m.byteOrder
}

// Thumbnail returns the thumbnail bytes captured by a ThumbnailHandler.
func (m *Metadata) Thumbnail() ([]byte, bool) {
	return m.thumbnail, m.thumbnail != nil
}
