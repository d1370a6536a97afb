// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package tiffmeta

// Magic numbers used in place of 42 by some RAW formats.
const (
	rawMagicOlympusORF  = 0x4f52 // "RO"
	rawMagicOlympusORF2 = 0x5352 // "SR"
	rawMagicPanasonic   = 0x0055
)

var _ Handler = (*RawHandler)(nil)

// RawHandler is an ExifHandler that also accepts the TIFF variants
// used by Olympus ORF and Panasonic RW2 files.
type RawHandler struct {
	ExifHandler
}

// AcceptMagic accepts 42 and the Olympus and Panasonic RAW magic numbers.
func (h *RawHandler) AcceptMagic(magic uint16) bool {
	switch magic {
	case standardMagic, rawMagicOlympusORF, rawMagicOlympusORF2, rawMagicPanasonic:
		return true
	default:
		return false
	}
}

// Dimensions returns the image dimensions found in m.
//
// RAW files often store a small preview in IFD0 and the full image in a SubIFD,
// so the largest of the IFD0, ExifIFD and SubIFD dimensions is used,
// unless a DefaultCropSize is present, which always wins.
func (m *Metadata) Dimensions() (width, height int, ok bool) {
	var bestW, bestH int64
	consider := func(w, h int64) {
		if w <= 0 || h <= 0 {
			return
		}
		if uint64(w)*uint64(h) > uint64(bestW)*uint64(bestH) {
			bestW, bestH = w, h
		}
	}

	var cropW, cropH int
	for _, d := range m.directories {
		switch d.Type {
		case DirectoryIFD0, DirectorySubIFD:
			w, _ := d.Int(TagImageWidth)
			h, _ := d.Int(TagImageLength)
			consider(w, h)
		case DirectoryExif:
			w, _ := d.Int(TagPixelXDimension)
			h, _ := d.Int(TagPixelYDimension)
			consider(w, h)
		}
		if d.Type == DirectoryIFD0 || d.Type == DirectorySubIFD {
			if w, h, found := defaultCropSize(d); found {
				cropW, cropH = w, h
			}
		}
	}

	if cropW > 0 && cropH > 0 {
		return cropW, cropH, true
	}

	return int(bestW), int(bestH), bestW > 0 && bestH > 0
}

// defaultCropSize reads a DefaultCropSize tag value.
// It may be stored as SHORT, LONG or RATIONAL pairs.
func defaultCropSize(d *Directory) (int, int, bool) {
	v, found := d.Value(TagDefaultCropSize)
	if !found {
		return 0, 0, false
	}
	var w, h float64
	switch vv := v.(type) {
	case []uint16:
		if len(vv) != 2 {
			return 0, 0, false
		}
		w, h = float64(vv[0]), float64(vv[1])
	case []uint32:
		if len(vv) != 2 {
			return 0, 0, false
		}
		w, h = float64(vv[0]), float64(vv[1])
	case []Rat[uint32]:
		if len(vv) != 2 || vv[0].Den() == 0 || vv[1].Den() == 0 {
			return 0, 0, false
		}
		w, h = vv[0].Float64(), vv[1].Float64()
	default:
		return 0, 0, false
	}
	return int(w), int(h), true
}
