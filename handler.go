// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffmeta

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

// Handler is called by Walk to interpret the IFDs it finds.
// The *Directory passed to the methods is only valid for the duration
// of the call to Walk and must not be retained.
type Handler interface {
	// AcceptMagic reports whether magic, the 16-bit value following the
	// byte order marker, identifies a supported file.
	AcceptMagic(magic uint16) bool

	// ByteOrder returns the byte order to decode with, given the one declared in the header.
	ByteOrder(declared binary.ByteOrder) binary.ByteOrder

	// ChainDirectory returns the directory type of the index'th IFD
	// in the top-level chain of IFDs.
	ChainDirectory(index int) DirectoryType

	// SubDirectory reports whether the value of tagID in dir holds the offset(s)
	// of nested IFDs, and if so their directory type.
	SubDirectory(dir *Directory, tagID uint16) (DirectoryType, bool)

	// ShouldHandleTag reports whether the tag should be decoded and passed to HandleTag.
	ShouldHandleTag(dir *Directory, tagID uint16) bool

	// HandleTag stores a decoded tag in dir.
	// Returning ErrStopWalking stops the walk; any other error is recorded on dir.
	HandleTag(dir *Directory, tag Tag) error

	// Thumbnail is called after all tags of dir are handled and may return
	// the location of an embedded thumbnail to capture.
	Thumbnail(dir *Directory) (offset, length int64, ok bool)
}

const standardMagic = 42

// Tag ids used by the handlers.
const (
	TagImageWidth              = 0x0100
	TagImageLength             = 0x0101
	TagBitsPerSample           = 0x0102
	TagCompression             = 0x0103
	TagOrientation             = 0x0112
	TagDateTime                = 0x0132
	TagSubIFDs                 = 0x014a
	TagThumbnailOffset         = 0x0201
	TagThumbnailLength         = 0x0202
	TagExifIFDPointer          = 0x8769
	TagGPSInfoIFDPointer       = 0x8825
	TagDateTimeOriginal        = 0x9003
	TagUserComment             = 0x9286
	TagXPTitle                 = 0x9c9b
	TagXPSubject               = 0x9c9f
	TagPixelXDimension         = 0xa002
	TagPixelYDimension         = 0xa003
	TagInteroperabilityPointer = 0xa005
	TagDefaultCropSize         = 0xc620

	TagGPSLatitudeRef  = 0x0001
	TagGPSLatitude     = 0x0002
	TagGPSLongitudeRef = 0x0003
	TagGPSLongitude    = 0x0004
)

var exifIFDPointers = map[uint16]DirectoryType{
	TagExifIFDPointer:          DirectoryExif,
	TagGPSInfoIFDPointer:       DirectoryGPS,
	TagInteroperabilityPointer: DirectoryInterop,
	TagSubIFDs:                 DirectorySubIFD,
}

var _ Handler = (*ExifHandler)(nil)

// ExifHandler handles standard TIFF and EXIF data.
// The zero value is ready to use.
type ExifHandler struct {
	// If set, overrides the byte order declared in the header.
	// Some producers write a marker that does not match the data.
	ForceByteOrder binary.ByteOrder

	// If set, only tags for which this returns true are decoded.
	Filter func(dir *Directory, tagID uint16) bool
}

// AcceptMagic accepts the standard TIFF magic number 42.
func (h *ExifHandler) AcceptMagic(magic uint16) bool {
	return magic == standardMagic
}

// ByteOrder returns ForceByteOrder if set, else the declared byte order.
func (h *ExifHandler) ByteOrder(declared binary.ByteOrder) binary.ByteOrder {
	if h.ForceByteOrder != nil {
		return h.ForceByteOrder
	}
	return declared
}

// ChainDirectory names the top-level IFDs IFD0, IFD1, IFD2 and so on.
func (h *ExifHandler) ChainDirectory(index int) DirectoryType {
	switch index {
	case 0:
		return DirectoryIFD0
	case 1:
		return DirectoryThumbnail
	default:
		return DirectoryType(fmt.Sprintf("IFD%d", index))
	}
}

// SubDirectory reports the Exif, GPS, Interoperability and SubIFD pointers.
func (h *ExifHandler) SubDirectory(dir *Directory, tagID uint16) (DirectoryType, bool) {
	typ, found := exifIFDPointers[tagID]
	if !found {
		return "", false
	}
	// Only the GPS IFD uses the low tag ids, so e.g. tag 0xa005
	// is a pointer everywhere but the GPS IFD.
	if dir.Type == DirectoryGPS {
		return "", false
	}
	return typ, true
}

// ShouldHandleTag applies Filter, if set.
func (h *ExifHandler) ShouldHandleTag(dir *Directory, tagID uint16) bool {
	if h.Filter == nil {
		return true
	}
	return h.Filter(dir, tagID)
}

// HandleTag decodes UserComment and the Windows XP tags to strings and stores the tag in dir.
func (h *ExifHandler) HandleTag(dir *Directory, tag Tag) error {
	if dir.Type != DirectoryGPS {
		switch {
		case tag.ID == TagUserComment:
			if b, ok := tag.Value.([]byte); ok {
				s, err := decodeUserComment(b)
				if err != nil {
					return fmt.Errorf("UserComment: %w", err)
				}
				tag.Value = s
			}
		case tag.ID >= TagXPTitle && tag.ID <= TagXPSubject:
			if b, ok := tag.Value.([]byte); ok {
				s, err := decodeUTF16(b, binary.LittleEndian)
				if err != nil {
					return fmt.Errorf("tag 0x%04x: %w", tag.ID, err)
				}
				tag.Value = s
			}
		}
	}
	dir.Set(tag)
	return nil
}

// Thumbnail never reports a thumbnail.
func (h *ExifHandler) Thumbnail(dir *Directory) (int64, int64, bool) {
	return 0, 0, false
}

var _ Handler = (*ThumbnailHandler)(nil)

// ThumbnailHandler is an ExifHandler that also captures the JPEG thumbnail
// referenced from IFD1, see Metadata.Thumbnail.
type ThumbnailHandler struct {
	ExifHandler
}

// ShouldHandleTag always accepts the thumbnail offset and length in IFD1.
func (h *ThumbnailHandler) ShouldHandleTag(dir *Directory, tagID uint16) bool {
	if dir.Type == DirectoryThumbnail && (tagID == TagThumbnailOffset || tagID == TagThumbnailLength) {
		return true
	}
	return h.ExifHandler.ShouldHandleTag(dir, tagID)
}

// Thumbnail returns the range given by the thumbnail offset and length tags in IFD1.
func (h *ThumbnailHandler) Thumbnail(dir *Directory) (int64, int64, bool) {
	if dir.Type != DirectoryThumbnail {
		return 0, 0, false
	}
	offset, ok1 := dir.Int(TagThumbnailOffset)
	length, ok2 := dir.Int(TagThumbnailLength)
	if !ok1 || !ok2 || length <= 0 {
		return 0, 0, false
	}
	return offset, length, true
}

// The first 8 bytes of a UserComment identify its character code.
var (
	userCommentASCII   = []byte("ASCII\x00\x00\x00")
	userCommentUnicode = []byte("UNICODE\x00")
	userCommentJIS     = []byte("JIS\x00\x00\x00\x00\x00")
)

func decodeUserComment(b []byte) (string, error) {
	if len(b) < 8 {
		return printableString(string(trimBytesNulls(b))), nil
	}
	prefix, body := b[:8], b[8:]
	switch {
	case bytes.Equal(prefix, userCommentUnicode):
		// EXIF leaves the byte order of UNICODE comments open;
		// a BOM, if present, wins.
		return decodeUTF16(body, binary.BigEndian)
	case bytes.Equal(prefix, userCommentJIS):
		s, err := decodeString(trimBytesNulls(body), japanese.ShiftJIS)
		if err != nil {
			return "", err
		}
		return printableString(s), nil
	case bytes.Equal(prefix, userCommentASCII):
		return printableString(string(trimBytesNulls(body))), nil
	default:
		// Undefined character code, often all zeroes.
		return printableString(string(trimBytesNulls(body))), nil
	}
}

func decodeUTF16(b []byte, order binary.ByteOrder) (string, error) {
	endianness := unicode.BigEndian
	if order == binary.LittleEndian {
		endianness = unicode.LittleEndian
	}
	s, err := decodeString(b, unicode.UTF16(endianness, unicode.UseBOM))
	if err != nil {
		return "", err
	}
	return printableString(s), nil
}
