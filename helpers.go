// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffmeta

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	textencoding "golang.org/x/text/encoding"
)

// Rat is a rational number.
type Rat[T int32 | uint32] interface {
	Num() T
	Den() T
	Float64() float64

	// String returns the string representation of the rational number.
	// If the denominator is 1, the string will be the numerator only.
	String() string
}

var (
	_ encoding.TextUnmarshaler = (*rat[int32])(nil)
	_ encoding.TextMarshaler   = rat[int32]{}
)

// rat is a rational number.
// It's a lightweight version of math/big.rat.
type rat[T int32 | uint32] struct {
	num T
	den T
}

// Num returns the numerator of the rational number.
func (r rat[T]) Num() T {
	return r.num
}

// Den returns the denominator of the rational number.
func (r rat[T]) Den() T {
	return r.den
}

// Float64 returns the float64 representation of the rational number.
// A zero denominator gives ±Inf or NaN.
func (r rat[T]) Float64() float64 {
	return float64(r.num) / float64(r.den)
}

// String returns the string representation of the rational number.
// If the denominator is 1, the string will be the numerator only.
func (r rat[T]) String() string {
	if r.den == 1 {
		return fmt.Sprintf("%d", r.num)
	}
	return fmt.Sprintf("%d/%d", r.num, r.den)
}

func (r *rat[T]) UnmarshalText(text []byte) error {
	s := string(text)
	if !strings.Contains(s, "/") {
		num, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("failed to parse %q as a rational number: %w", s, err)
		}
		r.num = T(num)
		r.den = 1
		return nil
	}
	if _, err := fmt.Sscanf(s, "%d/%d", &r.num, &r.den); err != nil {
		return fmt.Errorf("failed to parse %q as a rational number: %w", s, err)
	}
	return nil
}

func (r rat[T]) MarshalText() (text []byte, err error) {
	return []byte(r.String()), nil
}

var errZeroDenominator = errors.New("denominator must be non-zero")

// NewRat returns a new Rat with the given numerator and denominator,
// reduced to lowest terms with a positive denominator.
func NewRat[T int32 | uint32](num, den T) (Rat[T], error) {
	if den == 0 {
		return nil, errZeroDenominator
	}

	// Remove the greatest common divisor.
	gcd := func(a, b T) T {
		for b != 0 {
			a, b = b, a%b
		}
		return a
	}
	d := gcd(num, den)
	if d != 1 && d != 0 {
		num, den = num/d, den/d
	}

	// Denominator must be positive.
	if den < 0 {
		num, den = -num, -den
	}

	return &rat[T]{num: num, den: den}, nil
}

// decodeValue converts the raw bytes of an IFD entry to a Go value.
// A count of 1 gives a scalar, otherwise a slice.
// raw must hold count*typ.Size() bytes.
func decodeValue(typ DataType, count uint32, raw []byte, order binary.ByteOrder, enc textencoding.Encoding) (any, error) {
	if count == 0 {
		return nil, nil
	}
	switch typ {
	case TypeASCII:
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}
		return decodeString(raw, enc)
	case TypeByte:
		if count == 1 {
			return raw[0], nil
		}
		return bytes.Clone(raw), nil
	case TypeSByte:
		return decodeElems(raw, 1, func(b []byte) int8 { return int8(b[0]) }), nil
	case TypeShort:
		return decodeElems(raw, 2, order.Uint16), nil
	case TypeSShort:
		return decodeElems(raw, 2, func(b []byte) int16 { return int16(order.Uint16(b)) }), nil
	case TypeLong, TypeIFD:
		return decodeElems(raw, 4, order.Uint32), nil
	case TypeSLong:
		return decodeElems(raw, 4, func(b []byte) int32 { return int32(order.Uint32(b)) }), nil
	case TypeRational:
		return decodeElems(raw, 8, func(b []byte) Rat[uint32] {
			return rat[uint32]{num: order.Uint32(b), den: order.Uint32(b[4:])}
		}), nil
	case TypeSRational:
		return decodeElems(raw, 8, func(b []byte) Rat[int32] {
			return rat[int32]{num: int32(order.Uint32(b)), den: int32(order.Uint32(b[4:]))}
		}), nil
	case TypeFloat:
		return decodeElems(raw, 4, func(b []byte) float32 { return math.Float32frombits(order.Uint32(b)) }), nil
	case TypeDouble:
		return decodeElems(raw, 8, func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) }), nil
	default:
		// UNDEFINED and unknown type codes.
		return bytes.Clone(raw), nil
	}
}

func decodeElems[T any](raw []byte, size int, f func([]byte) T) any {
	n := len(raw) / size
	if n == 1 {
		return f(raw)
	}
	values := make([]T, n)
	for i := range values {
		values[i] = f(raw[i*size:])
	}
	return values
}

type float64Provider interface {
	Float64() float64
}

// toInt64 is a best-effort integer coercion.
// Slices give their first element.
func toInt64(v any) (int64, bool) {
	switch vv := v.(type) {
	case uint8:
		return int64(vv), true
	case int8:
		return int64(vv), true
	case uint16:
		return int64(vv), true
	case int16:
		return int64(vv), true
	case uint32:
		return int64(vv), true
	case int32:
		return int64(vv), true
	case int64:
		return vv, true
	case int:
		return int64(vv), true
	case float32:
		return floatToInt64(float64(vv))
	case float64:
		return floatToInt64(vv)
	case Rat[uint32]:
		if vv.Den() == 0 {
			return 0, false
		}
		return int64(vv.Num() / vv.Den()), true
	case Rat[int32]:
		if vv.Den() == 0 {
			return 0, false
		}
		return int64(vv.Num() / vv.Den()), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(vv), 10, 64)
		return i, err == nil
	}
	if first, ok := firstElem(v); ok {
		return toInt64(first)
	}
	return 0, false
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func toFloat64(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64Provider:
		return vv.Float64(), true
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(vv), 64)
		return f, err == nil
	}
	if first, ok := firstElem(v); ok {
		return toFloat64(first)
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// firstElem returns the first element of one of the slice types produced by decodeValue.
func firstElem(v any) (any, bool) {
	var first any
	switch vv := v.(type) {
	case []byte:
		if len(vv) > 0 {
			first = vv[0]
		}
	case []int8:
		if len(vv) > 0 {
			first = vv[0]
		}
	case []uint16:
		if len(vv) > 0 {
			first = vv[0]
		}
	case []int16:
		if len(vv) > 0 {
			first = vv[0]
		}
	case []uint32:
		if len(vv) > 0 {
			first = vv[0]
		}
	case []int32:
		if len(vv) > 0 {
			first = vv[0]
		}
	case []float32:
		if len(vv) > 0 {
			first = vv[0]
		}
	case []float64:
		if len(vv) > 0 {
			first = vv[0]
		}
	case []Rat[uint32]:
		if len(vv) > 0 {
			first = vv[0]
		}
	case []Rat[int32]:
		if len(vv) > 0 {
			first = vv[0]
		}
	}
	return first, first != nil
}

// toUint32s returns the values of an integer tag as offsets.
func toUint32s(v any) []uint32 {
	switch vv := v.(type) {
	case uint32:
		return []uint32{vv}
	case []uint32:
		return vv
	case uint16:
		return []uint32{uint32(vv)}
	case []uint16:
		offsets := make([]uint32, len(vv))
		for i, o := range vv {
			offsets[i] = uint32(o)
		}
		return offsets
	default:
		return nil
	}
}

// toString is a best-effort string representation.
// Slices are space delimited.
func toString(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	case []byte:
		return printableString(string(trimBytesNulls(vv)))
	case fmt.Stringer:
		return vv.String()
	case []int8:
		return joinSpaceDelimited(vv)
	case []uint16:
		return joinSpaceDelimited(vv)
	case []int16:
		return joinSpaceDelimited(vv)
	case []uint32:
		return joinSpaceDelimited(vv)
	case []int32:
		return joinSpaceDelimited(vv)
	case []float32:
		return joinSpaceDelimited(vv)
	case []float64:
		return joinSpaceDelimited(vv)
	case []Rat[uint32]:
		return joinSpaceDelimited(vv)
	case []Rat[int32]:
		return joinSpaceDelimited(vv)
	default:
		return fmt.Sprintf("%v", vv)
	}
}

func joinSpaceDelimited[T any](values []T) string {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%v", v)
	}
	return sb.String()
}

func printableString(s string) string {
	ss := strings.Map(func(r rune) rune {
		if unicode.IsGraphic(r) {
			return r
		}
		return -1
	}, s)

	return strings.TrimSpace(ss)
}

func trimBytesNulls(b []byte) []byte {
	var lo, hi int
	for lo = 0; lo < len(b) && b[lo] == 0; lo++ {
	}
	for hi = len(b) - 1; hi >= 0 && b[hi] == 0; hi-- {
	}
	if lo > hi {
		return nil
	}
	return b[lo : hi+1]
}
