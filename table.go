package flatwire

import (
	"math"

	"golang.org/x/xerrors"
)

// Table is a read-only, zero-copy view over a finished buffer at a
// base offset, resolving fields through vtable indirection against a
// TypeDescriptor. It borrows the buffer; the view is valid for as long
// as the backing bytes stay unmodified. Any number of Table handles
// may alias one buffer concurrently.
//
// Every computed address is validated against the buffer extent before
// it is dereferenced: a corrupted buffer yields a DecodeError, never an
// out-of-bounds access.
type Table struct {
	buf  []byte
	pos  UOffsetT
	desc *TypeDescriptor
	reg  *Registry
}

// Root wraps buf at the root table recorded in its first 4 bytes. The
// registry resolves nested table types; pass nil when desc references
// none.
func Root(buf []byte, desc *TypeDescriptor, reg *Registry) (*Table, error) {
	if err := bcheck(buf, 0, SizeUOffsetT); err != nil {
		return nil, err
	}
	pos := GetUOffsetT(buf)
	if err := bcheck(buf, pos, SizeSOffsetT); err != nil {
		return nil, err
	}
	return &Table{buf: buf, pos: pos, desc: desc, reg: reg}, nil
}

// bcheck validates that n bytes starting at off lie inside buf.
func bcheck(buf []byte, off UOffsetT, n int) error {
	if uint64(off)+uint64(n) > uint64(len(buf)) {
		return decodeErr(ErrOutOfBounds, off, n)
	}
	return nil
}

// Pos returns the table's base offset into the buffer.
func (t *Table) Pos() UOffsetT { return t.pos }

// Descriptor returns the type metadata the view decodes against.
func (t *Table) Descriptor() *TypeDescriptor { return t.desc }

// vtable resolves the table's back-reference and validates the vtable
// extent, returning the vtable position and its declared byte size.
func (t *Table) vtable() (UOffsetT, VOffsetT, error) {
	if err := bcheck(t.buf, t.pos, SizeSOffsetT); err != nil {
		return 0, 0, err
	}
	back := GetSOffsetT(t.buf[t.pos:])
	v := int64(t.pos) - int64(back)
	if v < 0 || v+SizeVOffsetT > int64(len(t.buf)) {
		return 0, 0, decodeErr(ErrOutOfBounds, t.pos, SizeVOffsetT)
	}
	vpos := UOffsetT(v)
	vsize := GetVOffsetT(t.buf[vpos:])
	if int(vsize) < vtableMetadataFields*SizeVOffsetT {
		return 0, 0, decodeErr(ErrOutOfBounds, vpos, vtableMetadataFields*SizeVOffsetT)
	}
	if err := bcheck(t.buf, vpos, int(vsize)); err != nil {
		return 0, 0, err
	}
	return vpos, vsize, nil
}

// fieldPos resolves a slot to the absolute position of its inline
// storage. Absent, deprecated, or beyond-vtable slots report
// present=false; the caller then falls back to the descriptor default.
// The field's declared width is validated against both the vtable's
// recorded object size and the buffer extent.
func (t *Table) fieldPos(slot int, want ...Kind) (f FieldDescriptor, pos UOffsetT, present bool, err error) {
	f, err = t.desc.Field(slot)
	if err != nil {
		return f, 0, false, err
	}
	ok := false
	for _, k := range want {
		if f.Kind == k {
			ok = true
			break
		}
	}
	if !ok {
		return f, 0, false, xerrors.Errorf("type %q field %q is %v: %w", t.desc.Name(), f.Name, f.Kind, ErrKindMismatch)
	}
	if f.Deprecated {
		return f, 0, false, nil
	}

	vpos, vsize, err := t.vtable()
	if err != nil {
		return f, 0, false, err
	}
	sb := slotByteOffset(slot)
	if int(sb)+SizeVOffsetT > int(vsize) {
		return f, 0, false, nil
	}
	rel := GetVOffsetT(t.buf[vpos+UOffsetT(sb):])
	if rel == 0 {
		return f, 0, false, nil
	}

	objSize := GetVOffsetT(t.buf[vpos+SizeVOffsetT:])
	if int(rel)+f.Size > int(objSize) {
		return f, 0, false, decodeErr(ErrSlotWidth, t.pos+UOffsetT(rel), f.Size)
	}
	pos = t.pos + UOffsetT(rel)
	if err := bcheck(t.buf, pos, f.Size); err != nil {
		return f, 0, false, err
	}
	return f, pos, true, nil
}

// Present reports whether a slot carries an explicit value in this
// table, as opposed to falling back to its default.
func (t *Table) Present(slot int) (bool, error) {
	f, err := t.desc.Field(slot)
	if err != nil {
		return false, err
	}
	if f.Deprecated {
		return false, nil
	}
	vpos, vsize, err := t.vtable()
	if err != nil {
		return false, err
	}
	sb := slotByteOffset(slot)
	if int(sb)+SizeVOffsetT > int(vsize) {
		return false, nil
	}
	return GetVOffsetT(t.buf[vpos+UOffsetT(sb):]) != 0, nil
}

// scalarBits reads a scalar slot as raw bits, or its default when
// absent.
func (t *Table) scalarBits(slot int, want ...Kind) (uint64, error) {
	f, pos, present, err := t.fieldPos(slot, want...)
	if err != nil {
		return 0, err
	}
	if !present {
		return f.Default, nil
	}
	return readScalarBits(t.buf[pos:], f.Size), nil
}

// Bool reads a bool slot.
func (t *Table) Bool(slot int) (bool, error) {
	bits, err := t.scalarBits(slot, KindBool)
	return bits != 0, err
}

// Int8 reads an int8 slot.
func (t *Table) Int8(slot int) (int8, error) {
	bits, err := t.scalarBits(slot, KindInt8)
	return int8(uint8(bits)), err
}

// Uint8 reads a uint8 slot.
func (t *Table) Uint8(slot int) (uint8, error) {
	bits, err := t.scalarBits(slot, KindUint8)
	return uint8(bits), err
}

// Int16 reads an int16 slot.
func (t *Table) Int16(slot int) (int16, error) {
	bits, err := t.scalarBits(slot, KindInt16)
	return int16(uint16(bits)), err
}

// Uint16 reads a uint16 slot.
func (t *Table) Uint16(slot int) (uint16, error) {
	bits, err := t.scalarBits(slot, KindUint16)
	return uint16(bits), err
}

// Int32 reads an int32 slot.
func (t *Table) Int32(slot int) (int32, error) {
	bits, err := t.scalarBits(slot, KindInt32)
	return int32(uint32(bits)), err
}

// Uint32 reads a uint32 slot.
func (t *Table) Uint32(slot int) (uint32, error) {
	bits, err := t.scalarBits(slot, KindUint32)
	return uint32(bits), err
}

// Int64 reads an int64 slot.
func (t *Table) Int64(slot int) (int64, error) {
	bits, err := t.scalarBits(slot, KindInt64)
	return int64(bits), err
}

// Uint64 reads a uint64 slot.
func (t *Table) Uint64(slot int) (uint64, error) {
	return t.scalarBits(slot, KindUint64)
}

// Float32 reads a float32 slot.
func (t *Table) Float32(slot int) (float32, error) {
	bits, err := t.scalarBits(slot, KindFloat32)
	return math.Float32frombits(uint32(bits)), err
}

// Float64 reads a float64 slot.
func (t *Table) Float64(slot int) (float64, error) {
	bits, err := t.scalarBits(slot, KindFloat64)
	return math.Float64frombits(bits), err
}

// indirect reads the uoffset stored at pos and resolves it to the
// target's start, validating the landing position.
func (t *Table) indirect(pos UOffsetT, need int) (UOffsetT, error) {
	if err := bcheck(t.buf, pos, SizeUOffsetT); err != nil {
		return 0, err
	}
	target := uint64(pos) + uint64(GetUOffsetT(t.buf[pos:]))
	if target+uint64(need) > uint64(len(t.buf)) {
		return 0, decodeErr(ErrOutOfBounds, pos, need)
	}
	return UOffsetT(target), nil
}

// lookupType resolves a referenced table type through the registry.
func (t *Table) lookupType(name string) (*TypeDescriptor, error) {
	if t.reg != nil {
		if d, ok := t.reg.Lookup(name); ok {
			return d, nil
		}
	}
	return nil, xerrors.Errorf("%q: %w", name, ErrUnknownType)
}

// TableField resolves a nested table slot. present is false when the
// slot is absent.
func (t *Table) TableField(slot int) (*Table, bool, error) {
	f, pos, present, err := t.fieldPos(slot, KindTable)
	if err != nil || !present {
		return nil, false, err
	}
	target, err := t.indirect(pos, SizeSOffsetT)
	if err != nil {
		return nil, false, err
	}
	desc, err := t.lookupType(f.TypeName)
	if err != nil {
		return nil, false, err
	}
	return &Table{buf: t.buf, pos: target, desc: desc, reg: t.reg}, true, nil
}

// stringAt decodes length-prefixed string bytes starting at target,
// excluding the reserved trailing terminator.
func (t *Table) stringAt(target UOffsetT) ([]byte, error) {
	length := GetUOffsetT(t.buf[target:])
	start := target + SizeUOffsetT
	if err := bcheck(t.buf, start, int(length)); err != nil {
		return nil, err
	}
	return t.buf[start : start+length], nil
}

// BytesField resolves a string slot to its raw bytes without copying.
func (t *Table) BytesField(slot int) ([]byte, bool, error) {
	_, pos, present, err := t.fieldPos(slot, KindString)
	if err != nil || !present {
		return nil, false, err
	}
	target, err := t.indirect(pos, SizeUOffsetT)
	if err != nil {
		return nil, false, err
	}
	s, err := t.stringAt(target)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// StringField resolves a string slot.
func (t *Table) StringField(slot int) (string, bool, error) {
	s, present, err := t.BytesField(slot)
	return string(s), present, err
}

// VectorField resolves a vector slot to a lazy element view.
func (t *Table) VectorField(slot int) (*Vector, bool, error) {
	f, pos, present, err := t.fieldPos(slot, KindVector)
	if err != nil || !present {
		return nil, false, err
	}
	target, err := t.indirect(pos, SizeUOffsetT)
	if err != nil {
		return nil, false, err
	}
	count := int(GetUOffsetT(t.buf[target:]))
	elems := target + SizeUOffsetT
	if err := bcheck(t.buf, elems, count*f.ElemSize); err != nil {
		return nil, false, err
	}
	return &Vector{buf: t.buf, pos: elems, count: count, field: f, reg: t.reg}, true, nil
}

// UnionField resolves a union value slot together with its
// discriminant from the preceding slot. present is false when the
// union carries no value.
func (t *Table) UnionField(slot int) (byte, *Table, bool, error) {
	f, pos, present, err := t.fieldPos(slot, KindUnion)
	if err != nil {
		return 0, nil, false, err
	}
	tagBits, err := t.scalarBits(slot-1, KindUnionTag)
	if err != nil {
		return 0, nil, false, err
	}
	tag := byte(tagBits)
	if tag == 0 || !present {
		return tag, nil, false, nil
	}
	v, ok := f.variant(tag)
	if !ok {
		return tag, nil, false, xerrors.Errorf("type %q field %q tag %d: %w", t.desc.Name(), f.Name, tag, ErrUnknownUnionTag)
	}
	target, err := t.indirect(pos, SizeSOffsetT)
	if err != nil {
		return tag, nil, false, err
	}
	desc, err := t.lookupType(v.TypeName)
	if err != nil {
		return tag, nil, false, err
	}
	return tag, &Table{buf: t.buf, pos: target, desc: desc, reg: t.reg}, true, nil
}

// Vector is a lazy, finite, restartable view over a vector's elements:
// fixed-stride reads for scalars, per-element indirection for tables
// and strings. Its full extent was bounds-validated at construction.
type Vector struct {
	buf   []byte
	pos   UOffsetT // first element
	count int
	field FieldDescriptor
	reg   *Registry
}

// Len returns the element count.
func (v *Vector) Len() int { return v.count }

func (v *Vector) elemPos(i int) (UOffsetT, error) {
	if i < 0 || i >= v.count {
		return 0, decodeErr(ErrOutOfBounds, v.pos, i*v.field.ElemSize)
	}
	return v.pos + UOffsetT(i*v.field.ElemSize), nil
}

func (v *Vector) scalarAt(i int, want Kind) (uint64, error) {
	if v.field.Elem != want {
		return 0, xerrors.Errorf("vector of %v read as %v: %w", v.field.Elem, want, ErrKindMismatch)
	}
	pos, err := v.elemPos(i)
	if err != nil {
		return 0, err
	}
	return readScalarBits(v.buf[pos:], v.field.ElemSize), nil
}

// BoolAt reads element i of a bool vector.
func (v *Vector) BoolAt(i int) (bool, error) {
	bits, err := v.scalarAt(i, KindBool)
	return bits != 0, err
}

// Uint8At reads element i of a uint8 vector.
func (v *Vector) Uint8At(i int) (uint8, error) {
	bits, err := v.scalarAt(i, KindUint8)
	return uint8(bits), err
}

// Int8At reads element i of an int8 vector.
func (v *Vector) Int8At(i int) (int8, error) {
	bits, err := v.scalarAt(i, KindInt8)
	return int8(uint8(bits)), err
}

// Uint16At reads element i of a uint16 vector.
func (v *Vector) Uint16At(i int) (uint16, error) {
	bits, err := v.scalarAt(i, KindUint16)
	return uint16(bits), err
}

// Int16At reads element i of an int16 vector.
func (v *Vector) Int16At(i int) (int16, error) {
	bits, err := v.scalarAt(i, KindInt16)
	return int16(uint16(bits)), err
}

// Uint32At reads element i of a uint32 vector.
func (v *Vector) Uint32At(i int) (uint32, error) {
	bits, err := v.scalarAt(i, KindUint32)
	return uint32(bits), err
}

// Int32At reads element i of an int32 vector.
func (v *Vector) Int32At(i int) (int32, error) {
	bits, err := v.scalarAt(i, KindInt32)
	return int32(uint32(bits)), err
}

// Uint64At reads element i of a uint64 vector.
func (v *Vector) Uint64At(i int) (uint64, error) {
	return v.scalarAt(i, KindUint64)
}

// Int64At reads element i of an int64 vector.
func (v *Vector) Int64At(i int) (int64, error) {
	bits, err := v.scalarAt(i, KindInt64)
	return int64(bits), err
}

// Float32At reads element i of a float32 vector.
func (v *Vector) Float32At(i int) (float32, error) {
	bits, err := v.scalarAt(i, KindFloat32)
	return math.Float32frombits(uint32(bits)), err
}

// Float64At reads element i of a float64 vector.
func (v *Vector) Float64At(i int) (float64, error) {
	bits, err := v.scalarAt(i, KindFloat64)
	return math.Float64frombits(bits), err
}

// Bytes returns a uint8 vector's payload without copying.
func (v *Vector) Bytes() ([]byte, error) {
	if v.field.Elem != KindUint8 {
		return nil, xerrors.Errorf("vector of %v read as bytes: %w", v.field.Elem, ErrKindMismatch)
	}
	return v.buf[v.pos : v.pos+UOffsetT(v.count)], nil
}

// indirectAt resolves the offset element i points at.
func (v *Vector) indirectAt(i, need int) (UOffsetT, error) {
	pos, err := v.elemPos(i)
	if err != nil {
		return 0, err
	}
	target := uint64(pos) + uint64(GetUOffsetT(v.buf[pos:]))
	if target+uint64(need) > uint64(len(v.buf)) {
		return 0, decodeErr(ErrOutOfBounds, pos, need)
	}
	return UOffsetT(target), nil
}

// TableAt resolves element i of a table vector.
func (v *Vector) TableAt(i int) (*Table, error) {
	if v.field.Elem != KindTable {
		return nil, xerrors.Errorf("vector of %v read as table: %w", v.field.Elem, ErrKindMismatch)
	}
	target, err := v.indirectAt(i, SizeSOffsetT)
	if err != nil {
		return nil, err
	}
	var desc *TypeDescriptor
	if v.reg != nil {
		if d, ok := v.reg.Lookup(v.field.TypeName); ok {
			desc = d
		}
	}
	if desc == nil {
		return nil, xerrors.Errorf("%q: %w", v.field.TypeName, ErrUnknownType)
	}
	return &Table{buf: v.buf, pos: target, desc: desc, reg: v.reg}, nil
}

// StringAt resolves element i of a string vector.
func (v *Vector) StringAt(i int) (string, error) {
	if v.field.Elem != KindString {
		return "", xerrors.Errorf("vector of %v read as string: %w", v.field.Elem, ErrKindMismatch)
	}
	target, err := v.indirectAt(i, SizeUOffsetT)
	if err != nil {
		return "", err
	}
	length := GetUOffsetT(v.buf[target:])
	start := target + SizeUOffsetT
	if err := bcheck(v.buf, start, int(length)); err != nil {
		return "", err
	}
	return string(v.buf[start : start+length]), nil
}
