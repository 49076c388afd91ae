package flatwire

import (
	"encoding/binary"
	"math"
)

type (
	// A UOffsetT stores an unsigned forward-relative offset to a
	// table, string, vector or vtable.
	UOffsetT uint32
	// A SOffsetT stores a signed offset; objects use one to point
	// back at their vtable.
	SOffsetT int32
	// A VOffsetT stores a field offset inside a vtable, relative to
	// the owning object's start.
	VOffsetT uint16
)

// Typed object references. The wire representation of all three is a
// plain UOffsetT; the distinct types keep a string offset from being
// handed to a field that expects a table, and vice versa.
type (
	// TableOffset references a finished table.
	TableOffset UOffsetT
	// StringOffset references a finished string.
	StringOffset UOffsetT
	// VectorOffset references a finished vector.
	VectorOffset UOffsetT
)

// Byte widths of the wire primitives.
const (
	SizeBool     = 1
	SizeInt8     = 1
	SizeUint8    = 1
	SizeInt16    = 2
	SizeUint16   = 2
	SizeInt32    = 4
	SizeUint32   = 4
	SizeInt64    = 8
	SizeUint64   = 8
	SizeFloat32  = 4
	SizeFloat64  = 8
	SizeByte     = 1
	SizeUOffsetT = 4
	SizeSOffsetT = 4
	SizeVOffsetT = 2
)

// vtableMetadataFields is the count of metadata entries (vtable byte
// size, object byte size) at the front of every vtable.
const vtableMetadataFields = 2

// fileIdentifierLength is the byte length of an optional buffer magic.
const fileIdentifierLength = 4

// GetUint16 decodes a little-endian uint16 from buf.
func GetUint16(buf []byte) uint16 { return binary.LittleEndian.Uint16(buf) }

// GetUint32 decodes a little-endian uint32 from buf.
func GetUint32(buf []byte) uint32 { return binary.LittleEndian.Uint32(buf) }

// GetUint64 decodes a little-endian uint64 from buf.
func GetUint64(buf []byte) uint64 { return binary.LittleEndian.Uint64(buf) }

// GetFloat32 decodes a little-endian float32 from buf.
func GetFloat32(buf []byte) float32 { return math.Float32frombits(GetUint32(buf)) }

// GetFloat64 decodes a little-endian float64 from buf.
func GetFloat64(buf []byte) float64 { return math.Float64frombits(GetUint64(buf)) }

// GetUOffsetT decodes a UOffsetT from buf.
func GetUOffsetT(buf []byte) UOffsetT { return UOffsetT(GetUint32(buf)) }

// GetSOffsetT decodes a SOffsetT from buf.
func GetSOffsetT(buf []byte) SOffsetT { return SOffsetT(GetUint32(buf)) }

// GetVOffsetT decodes a VOffsetT from buf.
func GetVOffsetT(buf []byte) VOffsetT { return VOffsetT(GetUint16(buf)) }

// WriteUint16 encodes a little-endian uint16 into buf.
func WriteUint16(buf []byte, n uint16) { binary.LittleEndian.PutUint16(buf, n) }

// WriteUint32 encodes a little-endian uint32 into buf.
func WriteUint32(buf []byte, n uint32) { binary.LittleEndian.PutUint32(buf, n) }

// WriteUint64 encodes a little-endian uint64 into buf.
func WriteUint64(buf []byte, n uint64) { binary.LittleEndian.PutUint64(buf, n) }

// WriteUOffsetT encodes a UOffsetT into buf.
func WriteUOffsetT(buf []byte, n UOffsetT) { WriteUint32(buf, uint32(n)) }

// WriteSOffsetT encodes a SOffsetT into buf.
func WriteSOffsetT(buf []byte, n SOffsetT) { WriteUint32(buf, uint32(n)) }

// WriteVOffsetT encodes a VOffsetT into buf.
func WriteVOffsetT(buf []byte, n VOffsetT) { WriteUint16(buf, uint16(n)) }

// writeScalarBits encodes the low `size` bytes of raw little-endian
// scalar bits into buf. Every supported scalar is stored this way, so
// one routine covers all widths.
func writeScalarBits(buf []byte, bits uint64, size int) {
	switch size {
	case 1:
		buf[0] = byte(bits)
	case 2:
		WriteUint16(buf, uint16(bits))
	case 4:
		WriteUint32(buf, uint32(bits))
	case 8:
		WriteUint64(buf, bits)
	}
}

// readScalarBits decodes `size` bytes of raw little-endian scalar bits
// from buf. Narrow values are returned zero-extended; signed callers
// sign-extend from the declared width themselves.
func readScalarBits(buf []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(GetUint16(buf))
	case 4:
		return uint64(GetUint32(buf))
	case 8:
		return GetUint64(buf)
	}
	return 0
}
