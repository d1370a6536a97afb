// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffmeta

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path"
	"slices"
)

const (
	byteOrderBigEndian    = 0x4d4d // "MM"
	byteOrderLittleEndian = 0x4949 // "II"

	headerSize   = 8
	ifdEntrySize = 12
	ifdCountSize = 2
)

// ifdFrame is an IFD waiting to be walked.
type ifdFrame struct {
	offset    int64
	typ       DirectoryType
	namespace string
	depth     int
	// Position in the top-level chain, -1 for nested IFDs.
	chainIndex int
}

type walker struct {
	r    *Reader
	h    Handler
	opts Options
	md   *Metadata

	visited map[int64]bool
	stack   []ifdFrame
	numTags uint32
	stopped bool
}

// Walk reads the TIFF header at offset 0 of r and walks all IFDs reachable
// from it, calling h for every entry.
//
// A malformed header returns a *ProcessingError and no Metadata.
// Problems inside an IFD are recorded on the affected Directory and the walk continues.
// If h is nil, the Handler in opts is used, which defaults to an ExifHandler.
func Walk(r *Reader, h Handler, opts Options) (*Metadata, error) {
	opts = opts.withDefaults()
	if h == nil {
		h = opts.Handler
	}
	w := &walker{
		r:       r,
		h:       h,
		opts:    opts,
		md:      &Metadata{},
		visited: make(map[int64]bool),
	}

	first, err := w.readHeader()
	if err != nil {
		return nil, err
	}

	// The entry count of the first IFD must be readable,
	// or there is nothing to return.
	if _, err := r.Uint16(first); err != nil {
		return nil, newProcessingError(first, "first IFD out of range", err)
	}

	w.push(ifdFrame{
		offset:     first,
		typ:        h.ChainDirectory(0),
		namespace:  string(h.ChainDirectory(0)),
		chainIndex: 0,
	})

	for len(w.stack) > 0 && !w.stopped {
		frame := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		if w.visited[frame.offset] {
			w.opts.Warnf("skipping %s at offset %d: IFD already visited", frame.namespace, frame.offset)
			continue
		}
		w.visited[frame.offset] = true
		w.walkIFD(frame)
	}

	return w.md, nil
}

// readHeader validates the 8 byte header, sets the byte order
// and returns the offset of the first IFD.
func (w *walker) readHeader() (int64, error) {
	r := w.r
	marker, err := r.Bytes(0, 2)
	if err != nil {
		return 0, newProcessingError(0, "failed to read byte order marker", err)
	}
	switch binary.BigEndian.Uint16(marker) {
	case byteOrderBigEndian:
		r.SetByteOrder(binary.BigEndian)
	case byteOrderLittleEndian:
		r.SetByteOrder(binary.LittleEndian)
	default:
		return 0, newProcessingError(0, fmt.Sprintf("invalid byte order marker %q", marker), nil)
	}

	magic, err := r.Uint16(2)
	if err != nil {
		return 0, newProcessingError(2, "failed to read magic number", err)
	}
	if !w.h.AcceptMagic(magic) {
		return 0, newProcessingError(2, fmt.Sprintf("unsupported magic number 0x%04x", magic), nil)
	}

	r.SetByteOrder(w.h.ByteOrder(r.ByteOrder()))
	w.md.byteOrder = r.ByteOrder()

	first, err := r.Uint32(4)
	if err != nil {
		return 0, newProcessingError(4, "failed to read offset of first IFD", err)
	}
	if first < headerSize {
		return 0, newProcessingError(4, "first IFD offset points into the header", nil)
	}
	return int64(first), nil
}

func (w *walker) push(f ifdFrame) {
	if w.visited[f.offset] {
		w.opts.Warnf("skipping %s at offset %d: IFD already visited", f.namespace, f.offset)
		return
	}
	if f.depth > w.opts.MaxDepth {
		w.opts.Warnf("skipping %s at offset %d: nesting deeper than %d", f.namespace, f.offset, w.opts.MaxDepth)
		return
	}
	w.stack = append(w.stack, f)
}

// A tag is represented in 12 bytes:
//   - 2 bytes for the tag ID
//   - 2 bytes for the data type
//   - 4 bytes for the number of data values of the specified type
//   - 4 bytes for the value itself, if it fits, otherwise for a pointer to another location where the data may be found;
//     this could be a pointer to the beginning of another IFD.
func (w *walker) walkIFD(f ifdFrame) {
	r := w.r
	dir := w.md.addDirectory(newDirectory(f.typ, f.namespace, f.offset))

	numEntries, err := r.Uint16(f.offset)
	if err != nil {
		dir.addErrorf("IFD at offset %d out of range: %w", f.offset, err)
		return
	}

	var subs []ifdFrame
	entriesOK := true

	for i := range int64(numEntries) {
		entryOffset := f.offset + ifdCountSize + i*ifdEntrySize
		sub, err := w.walkEntry(dir, entryOffset, f)
		if err != nil {
			dir.addErrorf("entry %d of %d: %w", i, numEntries, err)
			entriesOK = false
			break
		}
		subs = append(subs, sub...)
		if w.stopped {
			return
		}
	}

	if offset, length, ok := w.h.Thumbnail(dir); ok {
		b, err := r.Bytes(offset, length)
		if err != nil {
			dir.addErrorf("thumbnail: %w", err)
		} else {
			w.md.thumbnail = b
		}
	}

	// The next IFD is a sibling in the top-level chain; it is pushed
	// before the sub-IFDs so they are walked first.
	if entriesOK && f.chainIndex >= 0 {
		nextPtr := f.offset + ifdCountSize + int64(numEntries)*ifdEntrySize
		next, err := r.Uint32(nextPtr)
		if err != nil {
			dir.addErrorf("next IFD offset: %w", err)
		} else if next != 0 {
			idx := f.chainIndex + 1
			typ := w.h.ChainDirectory(idx)
			w.push(ifdFrame{
				offset:     int64(next),
				typ:        typ,
				namespace:  string(typ),
				depth:      f.depth,
				chainIndex: idx,
			})
		}
	}

	for _, sub := range slices.Backward(subs) {
		w.push(sub)
	}
}

// walkEntry decodes the entry at offset and returns any sub-IFDs it points to.
// A non-nil error means the entry itself could not be read, and the rest of the IFD is skipped.
// Problems with the entry's value are recorded on dir.
func (w *walker) walkEntry(dir *Directory, offset int64, f ifdFrame) ([]ifdFrame, error) {
	r := w.r
	entry, err := r.Bytes(offset, ifdEntrySize)
	if err != nil {
		return nil, err
	}
	order := r.ByteOrder()
	tagID := order.Uint16(entry[0:2])
	typ := DataType(order.Uint16(entry[2:4]))
	count := order.Uint32(entry[4:8])

	byteCount := int64(count) * typ.Size()
	valueOffset := offset + 8
	if byteCount > 4 {
		valueOffset = int64(order.Uint32(entry[8:12]))
	}

	// Pointer entries count towards the limit.
	w.numTags++
	if w.numTags > w.opts.LimitNumTags {
		w.opts.Warnf("stopping after %d tags", w.opts.LimitNumTags)
		w.stopped = true
		return nil, nil
	}

	if subType, isPointer := w.h.SubDirectory(dir, tagID); isPointer {
		return w.subIFDs(dir, f, tagID, typ, count, valueOffset, subType), nil
	}

	if !w.h.ShouldHandleTag(dir, tagID) {
		return nil, nil
	}
	if w.opts.ShouldHandleTag != nil && !w.opts.ShouldHandleTag(dir, tagID) {
		return nil, nil
	}

	if byteCount > int64(w.opts.LimitTagSize) {
		// A payload that is not there is an error, not just too big.
		if err := r.checkRange(valueOffset, byteCount); err != nil {
			dir.addErrorf("tag 0x%04x (%s, count %d): %w", tagID, typ, count, err)
			return nil, nil
		}
		w.opts.Warnf("%s: skipping tag 0x%04x: %d bytes exceeds limit %d", dir.Namespace, tagID, byteCount, w.opts.LimitTagSize)
		return nil, nil
	}

	if !typ.Known() {
		w.opts.Warnf("%s: tag 0x%04x has unknown type %d, reading as raw bytes", dir.Namespace, tagID, typ)
	}

	raw, err := r.Bytes(valueOffset, byteCount)
	if err != nil {
		dir.addErrorf("tag 0x%04x (%s, count %d): %w", tagID, typ, count, err)
		return nil, nil
	}

	val, err := decodeValue(typ, count, raw, order, w.opts.Charset)
	if err != nil {
		dir.addErrorf("tag 0x%04x: %w", tagID, err)
		return nil, nil
	}

	if err := w.h.HandleTag(dir, Tag{ID: tagID, Type: typ, Count: count, Value: val}); err != nil {
		if errors.Is(err, ErrStopWalking) {
			w.stopped = true
			return nil, nil
		}
		dir.addErrorf("tag 0x%04x: %w", tagID, err)
	}

	return nil, nil
}

// subIFDs reads the offsets stored in a pointer tag.
func (w *walker) subIFDs(dir *Directory, f ifdFrame, tagID uint16, typ DataType, count uint32, valueOffset int64, subType DirectoryType) []ifdFrame {
	switch typ {
	case TypeLong, TypeIFD, TypeShort, TypeUndefined:
	default:
		dir.addErrorf("pointer tag 0x%04x has invalid type %s", tagID, typ)
		return nil
	}
	if typ == TypeUndefined {
		// Some writers store the pointer as 4 undefined bytes.
		if count != 4 {
			dir.addErrorf("pointer tag 0x%04x has invalid count %d", tagID, count)
			return nil
		}
		typ, count = TypeLong, 1
	}
	if int64(count)*typ.Size() > int64(w.opts.LimitTagSize) {
		dir.addErrorf("pointer tag 0x%04x has too many offsets (%d)", tagID, count)
		return nil
	}

	raw, err := w.r.Bytes(valueOffset, int64(count)*typ.Size())
	if err != nil {
		dir.addErrorf("pointer tag 0x%04x: %w", tagID, err)
		return nil
	}
	val, _ := decodeValue(typ, count, raw, w.r.ByteOrder(), nil)

	var frames []ifdFrame
	for _, offset := range toUint32s(val) {
		if offset == 0 {
			continue
		}
		frames = append(frames, ifdFrame{
			offset:     int64(offset),
			typ:        subType,
			namespace:  path.Join(f.namespace, string(subType)),
			depth:      f.depth + 1,
			chainIndex: -1,
		})
	}
	return frames
}
