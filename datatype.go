// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffmeta

// DataType is the TIFF field type code stored in each IFD entry.
//
//go:generate stringer -type=DataType -linecomment
type DataType uint16

const (
	TypeByte      DataType = 1  // BYTE
	TypeASCII     DataType = 2  // ASCII
	TypeShort     DataType = 3  // SHORT
	TypeLong      DataType = 4  // LONG
	TypeRational  DataType = 5  // RATIONAL
	TypeSByte     DataType = 6  // SBYTE
	TypeUndefined DataType = 7  // UNDEFINED
	TypeSShort    DataType = 8  // SSHORT
	TypeSLong     DataType = 9  // SLONG
	TypeSRational DataType = 10 // SRATIONAL
	TypeFloat     DataType = 11 // FLOAT
	TypeDouble    DataType = 12 // DOUBLE
	// TypeIFD is the TIFF-EP type for sub-IFD offsets.
	TypeIFD DataType = 13 // IFD
)

// Size in bytes of each type.
var dataTypeSize = [...]int64{
	TypeByte:      1,
	TypeASCII:     1,
	TypeShort:     2,
	TypeLong:      4,
	TypeRational:  8,
	TypeSByte:     1,
	TypeUndefined: 1,
	TypeSShort:    2,
	TypeSLong:     4,
	TypeSRational: 8,
	TypeFloat:     4,
	TypeDouble:    8,
	TypeIFD:       4,
}

// Known reports whether t is one of the type codes 1 to 13.
func (t DataType) Known() bool {
	return t >= TypeByte && t <= TypeIFD
}

// Size returns the width in bytes of one element of type t.
// Unknown types are read as raw bytes and have size 1.
func (t DataType) Size() int64 {
	if !t.Known() {
		return 1
	}
	return dataTypeSize[t]
}
