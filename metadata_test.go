// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffmeta

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestDirectory(t *testing.T) {
	c := qt.New(t)

	d := newDirectory(DirectoryExif, "IFD0/ExifIFD", 100)
	c.Assert(d.Len(), qt.Equals, 0)
	c.Assert(d.HasErrors(), qt.IsFalse)
	c.Assert(d.Err(), qt.IsNil)
	c.Assert(d.Errors(), qt.IsNil)

	d.Set(Tag{ID: 2, Type: TypeShort, Count: 1, Value: uint16(20)})
	d.Set(Tag{ID: 1, Type: TypeShort, Count: 1, Value: uint16(10)})
	d.Set(Tag{ID: 2, Type: TypeLong, Count: 1, Value: uint32(30)})

	c.Assert(d.Len(), qt.Equals, 2)
	var ids []uint16
	for _, tag := range d.Tags() {
		ids = append(ids, tag.ID)
	}
	c.Assert(ids, qt.DeepEquals, []uint16{2, 1})

	v, ok := d.Int(2)
	c.Assert(ok, qt.IsTrue)
	c.Assert(v, qt.Equals, int64(30))

	_, ok = d.Value(3)
	c.Assert(ok, qt.IsFalse)
	_, ok = d.Int(3)
	c.Assert(ok, qt.IsFalse)
	_, ok = d.Float(3)
	c.Assert(ok, qt.IsFalse)
	_, ok = d.StringValue(3)
	c.Assert(ok, qt.IsFalse)

	errBoom := errors.New("boom")
	d.AddError(errBoom)
	d.addErrorf("tag 0x%04x: %w", 5, &BoundsError{Offset: 1, Width: 2, Length: 3})

	c.Assert(d.HasErrors(), qt.IsTrue)
	c.Assert(d.Errors(), qt.HasLen, 2)
	c.Assert(d.Errors()[1], qt.ErrorMatches, "IFD0/ExifIFD: tag 0x0005: tiffmeta: read of 2 bytes at offset 1 exceeds source length 3")
	c.Assert(d.Err(), qt.ErrorIs, errBoom)
	c.Assert(d.Err(), qt.ErrorAs, new(*BoundsError))
	c.Assert(d.String(), qt.Equals, "IFD0/ExifIFD (2 tags)")
}

func TestMetadataDirectories(t *testing.T) {
	c := qt.New(t)

	m := &Metadata{}
	m.addDirectory(newDirectory(DirectoryIFD0, "IFD0", 8))
	m.addDirectory(newDirectory(DirectorySubIFD, "IFD0/SubIFD", 100))
	sub2 := m.addDirectory(newDirectory(DirectorySubIFD, "IFD0/SubIFD", 200))

	d, found := m.Directory(DirectorySubIFD)
	c.Assert(found, qt.IsTrue)
	c.Assert(d.Offset, qt.Equals, int64(100))
	c.Assert(m.DirectoriesOf(DirectorySubIFD), qt.HasLen, 2)
	_, found = m.Directory(DirectoryGPS)
	c.Assert(found, qt.IsFalse)

	dirs := m.Directories()
	dirs[0] = nil
	c.Assert(m.Directories()[0], qt.IsNotNil)

	c.Assert(m.HasErrors(), qt.IsFalse)
	sub2.AddError(errors.New("bad"))
	c.Assert(m.HasErrors(), qt.IsTrue)
	c.Assert(m.Errors(), qt.HasLen, 1)
}

func TestMetadataDateTime(t *testing.T) {
	c := qt.New(t)

	read := func(ifd0DateTime, exifDateTime string) (time.Time, error) {
		b := NewTIFFBuilder(binary.LittleEndian)
		ifd0 := b.IFD().Short(TagImageWidth, 1)
		if ifd0DateTime != "" {
			ifd0.ASCII(TagDateTime, ifd0DateTime)
		}
		if exifDateTime != "" {
			ifd0.Pointer(TagExifIFDPointer, b.IFD().ASCII(TagDateTimeOriginal, exifDateTime))
		}
		md, err := ReadBytes(b.Bytes(), Options{})
		c.Assert(err, qt.IsNil)
		return md.DateTime()
	}

	tm, err := read("2021:01:01 00:00:00", "2023:05:06 07:08:09")
	c.Assert(err, qt.IsNil)
	c.Assert(tm, qt.DeepEquals, time.Date(2023, 5, 6, 7, 8, 9, 0, time.Local))

	tm, err = read("2021:01:01 10:11:12", "")
	c.Assert(err, qt.IsNil)
	c.Assert(tm, qt.DeepEquals, time.Date(2021, 1, 1, 10, 11, 12, 0, time.Local))

	tm, err = read("", "")
	c.Assert(err, qt.IsNil)
	c.Assert(tm.IsZero(), qt.IsTrue)

	_, err = read("yesterday", "")
	c.Assert(err, qt.IsNotNil)
}

func TestMetadataLatLong(t *testing.T) {
	c := qt.New(t)

	read := func(latRef, longRef string) (float64, float64, bool) {
		b := NewTIFFBuilder(binary.BigEndian)
		ifd0 := b.IFD()
		gps := b.IFD().
			ASCII(TagGPSLatitudeRef, latRef).
			Rational(TagGPSLatitude, 59, 1, 30, 1, 0, 1).
			ASCII(TagGPSLongitudeRef, longRef).
			Rational(TagGPSLongitude, 10, 1, 15, 1, 36, 1)
		ifd0.Pointer(TagGPSInfoIFDPointer, gps)
		data := b.Bytes()

		md, err := ReadBytes(data, Options{})
		c.Assert(err, qt.IsNil)
		return md.LatLong()
	}

	lat, long, found := read("N", "E")
	c.Assert(found, qt.IsTrue)
	c.Assert(lat, eq, 59.5)
	c.Assert(long, eq, 10.26)

	lat, long, found = read("S", "W")
	c.Assert(found, qt.IsTrue)
	c.Assert(lat, eq, -59.5)
	c.Assert(long, eq, -10.26)

	b := NewTIFFBuilder(binary.LittleEndian)
	b.IFD().Short(TagImageWidth, 1)
	md, err := ReadBytes(b.Bytes(), Options{})
	c.Assert(err, qt.IsNil)
	_, _, found = md.LatLong()
	c.Assert(found, qt.IsFalse)
}

func TestMetadataDimensions(t *testing.T) {
	c := qt.New(t)

	read := func(build func(b *TIFFBuilder, ifd0 *IFDBuilder)) (int, int, bool) {
		b := NewTIFFBuilder(binary.LittleEndian)
		ifd0 := b.IFD()
		build(b, ifd0)
		md, err := ReadBytes(b.Bytes(), Options{Handler: &RawHandler{}})
		c.Assert(err, qt.IsNil)
		return md.Dimensions()
	}

	c.Run("LargestWins", func(c *qt.C) {
		w, h, ok := read(func(b *TIFFBuilder, ifd0 *IFDBuilder) {
			ifd0.Short(TagImageWidth, 160).Short(TagImageLength, 120)
			ifd0.Pointer(TagSubIFDs, b.IFD().Long(TagImageWidth, 6000).Long(TagImageLength, 4000))
			ifd0.Pointer(TagExifIFDPointer, b.IFD().Short(TagPixelXDimension, 1024).Short(TagPixelYDimension, 768))
		})
		c.Assert(ok, qt.IsTrue)
		c.Assert([]int{w, h}, qt.DeepEquals, []int{6000, 4000})
	})

	c.Run("DefaultCropSize", func(c *qt.C) {
		w, h, ok := read(func(b *TIFFBuilder, ifd0 *IFDBuilder) {
			ifd0.Short(TagImageWidth, 160).Short(TagImageLength, 120)
			ifd0.Pointer(TagSubIFDs, b.IFD().
				Long(TagImageWidth, 6000).
				Long(TagImageLength, 4000).
				Short(TagDefaultCropSize, 5984, 3984))
		})
		c.Assert(ok, qt.IsTrue)
		c.Assert([]int{w, h}, qt.DeepEquals, []int{5984, 3984})
	})

	c.Run("DefaultCropSizeRational", func(c *qt.C) {
		w, h, ok := read(func(b *TIFFBuilder, ifd0 *IFDBuilder) {
			ifd0.Short(TagImageWidth, 160).Short(TagImageLength, 120)
			ifd0.Rational(TagDefaultCropSize, 11968, 2, 7968, 2)
		})
		c.Assert(ok, qt.IsTrue)
		c.Assert([]int{w, h}, qt.DeepEquals, []int{5984, 3984})
	})

	c.Run("LargeDimensions", func(c *qt.C) {
		w, h, ok := read(func(b *TIFFBuilder, ifd0 *IFDBuilder) {
			ifd0.Long(TagImageWidth, 0xffffffff).Long(TagImageLength, 0xffffffff)
			ifd0.Pointer(TagSubIFDs, b.IFD().Long(TagImageWidth, 6000).Long(TagImageLength, 4000))
		})
		c.Assert(ok, qt.IsTrue)
		c.Assert([]int64{int64(w), int64(h)}, qt.DeepEquals, []int64{0xffffffff, 0xffffffff})
	})

	c.Run("None", func(c *qt.C) {
		_, _, ok := read(func(b *TIFFBuilder, ifd0 *IFDBuilder) {
			ifd0.Short(TagOrientation, 1)
		})
		c.Assert(ok, qt.IsFalse)
	})
}

func TestTagName(t *testing.T) {
	c := qt.New(t)

	c.Assert(TagName(DirectoryIFD0, TagImageWidth), qt.Equals, "ImageWidth")
	c.Assert(TagName(DirectoryThumbnail, TagThumbnailOffset), qt.Equals, "ThumbnailOffset")
	c.Assert(TagName(DirectoryExif, 0x829a), qt.Equals, "ExposureTime")
	c.Assert(TagName(DirectoryExif, TagUserComment), qt.Equals, "UserComment")
	c.Assert(TagName(DirectorySubIFD, TagDefaultCropSize), qt.Equals, "DefaultCropSize")
	c.Assert(TagName(DirectoryGPS, TagGPSLatitude), qt.Equals, "GPSLatitude")
	c.Assert(TagName(DirectoryInterop, 0x0001), qt.Equals, "InteroperabilityIndex")
	c.Assert(TagName(DirectoryIFD0, TagGPSLatitude), qt.Equals, "UnknownTag_0x0002")
	c.Assert(TagName(DirectoryGPS, TagImageWidth), qt.Equals, "UnknownTag_0x0100")
}
