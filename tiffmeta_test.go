// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffmeta_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bep/tiffmeta"
	"github.com/rwcarlsen/goexif/tiff"

	qt "github.com/frankban/quicktest"
)

func newSunrise() *tiffmeta.TIFFBuilder {
	b := tiffmeta.NewTIFFBuilder(binary.LittleEndian)
	ifd0 := b.IFD().
		Short(tiffmeta.TagImageWidth, 400).
		Short(tiffmeta.TagImageLength, 267).
		ASCII(0x010f, "NIKON CORPORATION").
		ASCII(0x0110, "NIKON D750").
		Short(tiffmeta.TagOrientation, 1).
		Rational(0x011a, 72, 1).
		ASCII(0x0131, "Adobe Photoshop Lightroom Classic 12.4 (Macintosh)").
		ASCII(tiffmeta.TagDateTime, "2017:10:27 08:26:10").
		ASCII(0x8298, "Bjørn Erik Pedersen")
	exif := b.IFD().
		Rational(0x829a, 1, 200).
		Rational(0x829d, 9, 1).
		ASCII(tiffmeta.TagDateTimeOriginal, "2017:10:27 08:26:10").
		Rational(0x920a, 21, 1)
	ifd1 := b.IFD().
		Short(tiffmeta.TagCompression, 6).
		Long(0x011a, 72)
	ifd0.Pointer(tiffmeta.TagExifIFDPointer, exif).Next(ifd1)
	return b
}

func TestReadFile(t *testing.T) {
	c := qt.New(t)

	filename := filepath.Join(t.TempDir(), "sunrise.tif")
	c.Assert(os.WriteFile(filename, newSunrise().Bytes(), 0o644), qt.IsNil)

	md, err := tiffmeta.ReadFile(filename, tiffmeta.Options{})
	c.Assert(err, qt.IsNil)
	c.Assert(md.HasErrors(), qt.IsFalse)

	ifd0, found := md.Directory(tiffmeta.DirectoryIFD0)
	c.Assert(found, qt.IsTrue)
	s, _ := ifd0.StringValue(0x8298)
	c.Assert(s, qt.Equals, "Bjørn Erik Pedersen")
	orientation, _ := ifd0.Int(tiffmeta.TagOrientation)
	c.Assert(orientation, qt.Equals, int64(1))

	exif, found := md.Directory(tiffmeta.DirectoryExif)
	c.Assert(found, qt.IsTrue)
	v, _ := exif.Value(0x829a)
	c.Assert(v.(tiffmeta.Rat[uint32]).String(), qt.Equals, "1/200")
	fl, _ := exif.Float(0x920a)
	c.Assert(fl, qt.Equals, 21.0)

	tm, err := md.DateTime()
	c.Assert(err, qt.IsNil)
	c.Assert(tm.Year(), qt.Equals, 2017)

	_, err = tiffmeta.ReadFile(filepath.Join(t.TempDir(), "nope.tif"), tiffmeta.Options{})
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestReadAt(t *testing.T) {
	c := qt.New(t)

	data := newSunrise().Bytes()
	// Prefix the data with some garbage and read through a section.
	prefixed := append([]byte("garbage!"), data...)
	r := bytes.NewReader(prefixed)

	md, err := tiffmeta.ReadAt(io.NewSectionReader(r, 8, int64(len(data))), int64(len(data)), tiffmeta.Options{})
	c.Assert(err, qt.IsNil)
	c.Assert(md.Directories(), qt.HasLen, 3)
}

func newJPEG(segments ...[]byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xd8})
	for _, seg := range segments {
		buf.Write(seg)
	}
	// Start of scan followed by some image data.
	buf.Write([]byte{0xff, 0xda, 0x00, 0x04, 0x01, 0x02})
	buf.WriteString(strings.Repeat("\x00", 100))
	buf.Write([]byte{0xff, 0xd9})
	return buf.Bytes()
}

func segment(marker byte, payload []byte) []byte {
	seg := []byte{0xff, marker}
	seg = binary.BigEndian.AppendUint16(seg, uint16(len(payload)+2))
	return append(seg, payload...)
}

func TestReadJPEG(t *testing.T) {
	c := qt.New(t)

	tiffData := newSunrise().Bytes()
	jfif := segment(0xe0, []byte("JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00"))
	xmp := segment(0xe1, []byte("http://ns.adobe.com/xap/1.0/\x00<x:xmpmeta/>"))
	exif := segment(0xe1, append([]byte("Exif\x00\x00"), tiffData...))

	c.Run("EXIF", func(c *qt.C) {
		md, err := tiffmeta.ReadJPEG(bytes.NewReader(newJPEG(jfif, xmp, exif)), tiffmeta.Options{})
		c.Assert(err, qt.IsNil)
		c.Assert(md.Directories(), qt.HasLen, 3)
		ifd0, _ := md.Directory(tiffmeta.DirectoryIFD0)
		s, _ := ifd0.StringValue(0x0110)
		c.Assert(s, qt.Equals, "NIKON D750")
	})

	c.Run("Padding", func(c *qt.C) {
		padded := append([]byte{0xff, 0xff}, exif...)
		md, err := tiffmeta.ReadJPEG(bytes.NewReader(newJPEG(padded)), tiffmeta.Options{})
		c.Assert(err, qt.IsNil)
		c.Assert(md.Directories(), qt.HasLen, 3)
	})

	c.Run("NoEXIF", func(c *qt.C) {
		md, err := tiffmeta.ReadJPEG(bytes.NewReader(newJPEG(jfif, xmp)), tiffmeta.Options{})
		c.Assert(err, qt.IsNil)
		c.Assert(md.Directories(), qt.HasLen, 0)
	})

	c.Run("Truncated", func(c *qt.C) {
		data := newJPEG(jfif)
		md, err := tiffmeta.ReadJPEG(bytes.NewReader(data[:10]), tiffmeta.Options{})
		c.Assert(err, qt.IsNil)
		c.Assert(md.Directories(), qt.HasLen, 0)
	})

	c.Run("TruncatedEXIF", func(c *qt.C) {
		data := newJPEG(exif)
		// Cut the TIFF data after the entries of IFD0.
		md, err := tiffmeta.ReadJPEG(bytes.NewReader(data[:2+4+6+100]), tiffmeta.Options{})
		c.Assert(err, qt.IsNil)
		c.Assert(md.HasErrors(), qt.IsTrue)
	})

	c.Run("NotJPEG", func(c *qt.C) {
		_, err := tiffmeta.ReadJPEG(bytes.NewReader(tiffData), tiffmeta.Options{})
		c.Assert(tiffmeta.IsInvalidFormat(err), qt.IsTrue)
	})

	c.Run("BadSegmentLength", func(c *qt.C) {
		_, err := tiffmeta.ReadJPEG(bytes.NewReader([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x01}), tiffmeta.Options{})
		c.Assert(tiffmeta.IsInvalidFormat(err), qt.IsTrue)
	})
}

// TestAgainstGoexif checks the decoded values against an independent decoder.
func TestAgainstGoexif(t *testing.T) {
	c := qt.New(t)

	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		c.Run(order.String(), func(c *qt.C) {
			b := newSunrise()
			b.Order = order
			data := b.Bytes()

			x, err := tiff.Decode(bytes.NewReader(data))
			c.Assert(err, qt.IsNil)

			md, err := tiffmeta.Read(bytes.NewReader(data), tiffmeta.Options{})
			c.Assert(err, qt.IsNil)

			chain := []tiffmeta.DirectoryType{tiffmeta.DirectoryIFD0, tiffmeta.DirectoryThumbnail}
			c.Assert(x.Dirs, qt.HasLen, len(chain))

			for i, xdir := range x.Dirs {
				d, found := md.Directory(chain[i])
				c.Assert(found, qt.IsTrue)

				var n int
				for _, xtag := range xdir.Tags {
					if xtag.Id == tiffmeta.TagExifIFDPointer {
						continue
					}
					n++
					tag, found := d.Tag(xtag.Id)
					c.Assert(found, qt.IsTrue, qt.Commentf("tag 0x%04x", xtag.Id))
					c.Assert(tag.Count, qt.Equals, xtag.Count)

					switch tag.Type {
					case tiffmeta.TypeASCII:
						xs, err := xtag.StringVal()
						c.Assert(err, qt.IsNil)
						s, _ := d.StringValue(xtag.Id)
						c.Assert(s, qt.Equals, xs)
					case tiffmeta.TypeShort, tiffmeta.TypeLong:
						xi, err := xtag.Int(0)
						c.Assert(err, qt.IsNil)
						i, _ := d.Int(xtag.Id)
						c.Assert(i, qt.Equals, int64(xi))
					case tiffmeta.TypeRational:
						num, den, err := xtag.Rat2(0)
						c.Assert(err, qt.IsNil)
						v, _ := d.Value(xtag.Id)
						r := v.(tiffmeta.Rat[uint32])
						c.Assert([]int64{int64(r.Num()), int64(r.Den())}, qt.DeepEquals, []int64{num, den})
					}
				}
				c.Assert(d.Len(), qt.Equals, n)
			}
		})
	}
}
