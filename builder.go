package flatwire

import (
	"math"

	"golang.org/x/xerrors"
)

// Builder is a state machine for encoding FlatBuffers objects. Buffers
// are constructed last-first: callers walk their value tree depth
// first, building children before the parents that reference them.
//
// A Builder session is strictly single-writer. After Finish the only
// surviving artifact is the returned byte slice; the Builder itself can
// be reused through Reset.
type Builder struct {
	buf   *Buffer
	cache *vtableCache

	// stack holds the contexts of objects under construction. Only the
	// top context accepts field writes; nesting is strictly
	// child-before-parent.
	stack []objectContext

	// scratch holds the serialized candidate vtable between EndObject
	// and the cache decision, reused across objects.
	scratch []byte

	inVector bool
	finished bool
}

// objectContext is the per-object build state: the descriptor, the
// buffer offset the object started at, and the recorded field offsets
// (0 = absent/default) sized to the descriptor's slot count.
type objectContext struct {
	desc  *TypeDescriptor
	start UOffsetT
	slots []UOffsetT
}

// NewBuilder initializes a Builder with an initial buffer of
// initialSize bytes. The buffer grows as needed.
func NewBuilder(initialSize int) *Builder {
	return &Builder{
		buf:   newBuffer(initialSize),
		cache: newVTableCache(),
	}
}

// Reset truncates the underlying buffer and bookkeeping, allowing
// alloc-free reuse of the Builder.
func (b *Builder) Reset() {
	b.buf.bytes = b.buf.bytes[:cap(b.buf.bytes)]
	b.buf.head = UOffsetT(len(b.buf.bytes))
	b.buf.align = alignmentTracker{}
	b.cache.reset()
	b.stack = b.stack[:0]
	b.scratch = b.scratch[:0]
	b.inVector = false
	b.finished = false
}

// Offset returns the number of bytes written so far.
func (b *Builder) Offset() UOffsetT { return b.buf.Offset() }

// Depth returns the number of objects currently under construction.
func (b *Builder) Depth() int { return len(b.stack) }

func (b *Builder) writable() error {
	if b.finished {
		return ErrAlreadyFinished
	}
	return nil
}

// StartObject opens a new object described by desc. An object may be
// started while another is open only as a strictly nested child: the
// child must be ended before any further field of the parent is added,
// which the stack discipline enforces by directing all field writes at
// the innermost object.
func (b *Builder) StartObject(desc *TypeDescriptor) error {
	if err := b.writable(); err != nil {
		return err
	}
	if b.inVector {
		return xerrors.Errorf("start object %q inside vector: %w", desc.Name(), ErrNesting)
	}
	b.stack = append(b.stack, objectContext{
		desc:  desc,
		start: b.buf.Offset(),
		slots: make([]UOffsetT, desc.SlotCount()),
	})
	return nil
}

// slotField validates a field write against the top context: no vector
// may be open, an object must be open, the slot in range and live, and
// its declared kind one of want.
func (b *Builder) slotField(slot int, want ...Kind) (*objectContext, FieldDescriptor, error) {
	if err := b.writable(); err != nil {
		return nil, FieldDescriptor{}, err
	}
	if b.inVector {
		return nil, FieldDescriptor{}, xerrors.Errorf("add slot %d inside vector: %w", slot, ErrNesting)
	}
	if len(b.stack) == 0 {
		return nil, FieldDescriptor{}, xerrors.Errorf("add slot %d: %w", slot, ErrNesting)
	}
	ctx := &b.stack[len(b.stack)-1]
	f, err := ctx.desc.Field(slot)
	if err != nil {
		return nil, FieldDescriptor{}, err
	}
	if f.Deprecated {
		return nil, FieldDescriptor{}, xerrors.Errorf("type %q field %q: %w", ctx.desc.Name(), f.Name, ErrDeprecatedSlot)
	}
	for _, k := range want {
		if f.Kind == k {
			return ctx, f, nil
		}
	}
	return nil, FieldDescriptor{}, xerrors.Errorf("type %q field %q is %v: %w", ctx.desc.Name(), f.Name, f.Kind, ErrKindMismatch)
}

// addScalarBits records a scalar field write. A value equal to the
// descriptor's canonical default is elided: nothing is written and the
// slot stays absent, which the wire format mandates for compactness.
func (b *Builder) addScalarBits(slot int, bits uint64, want ...Kind) error {
	ctx, f, err := b.slotField(slot, want...)
	if err != nil {
		return err
	}
	if bits == f.Default {
		return nil
	}
	b.buf.Prep(f.Size, 0)
	b.buf.placeScalarBits(bits, f.Size)
	ctx.slots[slot] = b.buf.Offset()
	return nil
}

// AddBool writes a bool field unless it equals the slot's default.
func (b *Builder) AddBool(slot int, v bool) error {
	bits := uint64(0)
	if v {
		bits = 1
	}
	return b.addScalarBits(slot, bits, KindBool)
}

// AddInt8 writes an int8 field unless it equals the slot's default.
func (b *Builder) AddInt8(slot int, v int8) error {
	return b.addScalarBits(slot, uint64(uint8(v)), KindInt8)
}

// AddUint8 writes a uint8 field unless it equals the slot's default.
func (b *Builder) AddUint8(slot int, v uint8) error {
	return b.addScalarBits(slot, uint64(v), KindUint8)
}

// AddInt16 writes an int16 field unless it equals the slot's default.
func (b *Builder) AddInt16(slot int, v int16) error {
	return b.addScalarBits(slot, uint64(uint16(v)), KindInt16)
}

// AddUint16 writes a uint16 field unless it equals the slot's default.
func (b *Builder) AddUint16(slot int, v uint16) error {
	return b.addScalarBits(slot, uint64(v), KindUint16)
}

// AddInt32 writes an int32 field unless it equals the slot's default.
func (b *Builder) AddInt32(slot int, v int32) error {
	return b.addScalarBits(slot, uint64(uint32(v)), KindInt32)
}

// AddUint32 writes a uint32 field unless it equals the slot's default.
func (b *Builder) AddUint32(slot int, v uint32) error {
	return b.addScalarBits(slot, uint64(v), KindUint32)
}

// AddInt64 writes an int64 field unless it equals the slot's default.
func (b *Builder) AddInt64(slot int, v int64) error {
	return b.addScalarBits(slot, uint64(v), KindInt64)
}

// AddUint64 writes a uint64 field unless it equals the slot's default.
func (b *Builder) AddUint64(slot int, v uint64) error {
	return b.addScalarBits(slot, v, KindUint64)
}

// AddFloat32 writes a float32 field unless its bit pattern equals the
// slot's default.
func (b *Builder) AddFloat32(slot int, v float32) error {
	return b.addScalarBits(slot, uint64(math.Float32bits(v)), KindFloat32)
}

// AddFloat64 writes a float64 field unless its bit pattern equals the
// slot's default.
func (b *Builder) AddFloat64(slot int, v float64) error {
	return b.addScalarBits(slot, math.Float64bits(v), KindFloat64)
}

// addOffset records a 4-byte uoffset field resolving to target, which
// must already be finalized; offset 0 marks the field absent.
func (b *Builder) addOffset(slot int, target UOffsetT, want ...Kind) error {
	ctx, f, err := b.slotField(slot, want...)
	if err != nil {
		return err
	}
	if target == 0 {
		return nil
	}
	if target > b.buf.Offset() {
		return xerrors.Errorf("type %q field %q target %d: %w", ctx.desc.Name(), f.Name, target, ErrDanglingOffset)
	}
	b.buf.Prep(SizeUOffsetT, 0)
	b.buf.placeUOffsetT(b.buf.Offset() - target + UOffsetT(SizeUOffsetT))
	ctx.slots[slot] = b.buf.Offset()
	return nil
}

// AddTable writes a nested table field referencing an already-built
// table.
func (b *Builder) AddTable(slot int, off TableOffset) error {
	return b.addOffset(slot, UOffsetT(off), KindTable)
}

// AddString writes a string field referencing an already-built string.
func (b *Builder) AddString(slot int, off StringOffset) error {
	return b.addOffset(slot, UOffsetT(off), KindString)
}

// AddVector writes a vector field referencing an already-built vector.
func (b *Builder) AddVector(slot int, off VectorOffset) error {
	return b.addOffset(slot, UOffsetT(off), KindVector)
}

// AddUnion writes a union value and its discriminant. The value slot
// carries the table offset; the discriminant byte lands in the
// preceding slot, per the descriptor pairing. Tag 0 or a zero offset
// leaves the union absent.
func (b *Builder) AddUnion(slot int, tag byte, off TableOffset) error {
	_, f, err := b.slotField(slot, KindUnion)
	if err != nil {
		return err
	}
	if tag == 0 || off == 0 {
		return nil
	}
	if _, ok := f.variant(tag); !ok {
		return xerrors.Errorf("type field %q tag %d: %w", f.Name, tag, ErrUnknownUnionTag)
	}
	if err := b.addOffset(slot, UOffsetT(off), KindUnion); err != nil {
		return err
	}
	return b.addScalarBits(slot-1, uint64(tag), KindUnionTag)
}

// EndObject closes the innermost object: it writes the object's
// soffset back-reference, emits or reuses a vtable covering the
// highest present slot, and returns the finished table's offset for
// use as a parent field or the buffer root.
func (b *Builder) EndObject() (TableOffset, error) {
	if err := b.writable(); err != nil {
		return 0, err
	}
	if b.inVector {
		return 0, xerrors.Errorf("end object inside vector: %w", ErrNesting)
	}
	if len(b.stack) == 0 {
		return 0, xerrors.Errorf("end object: %w", ErrNesting)
	}
	ctx := &b.stack[len(b.stack)-1]

	// Reserve the object's vtable back-reference; it is patched once
	// the vtable's final position is known.
	b.buf.Prep(SizeSOffsetT, 0)
	b.buf.placeSOffsetT(0)
	objectOffset := b.buf.Offset()

	// The vtable only needs to cover the highest present slot.
	slots := ctx.slots
	for len(slots) > 0 && slots[len(slots)-1] == 0 {
		slots = slots[:len(slots)-1]
	}

	vtableBytes := (len(slots) + vtableMetadataFields) * SizeVOffsetT
	objectSize := objectOffset - ctx.start

	if cap(b.scratch) < vtableBytes {
		b.scratch = make([]byte, vtableBytes)
	}
	b.scratch = b.scratch[:vtableBytes]
	WriteVOffsetT(b.scratch[0:], VOffsetT(vtableBytes))
	WriteVOffsetT(b.scratch[SizeVOffsetT:], VOffsetT(objectSize))
	for i, fieldOff := range slots {
		rel := VOffsetT(0)
		if fieldOff != 0 {
			rel = VOffsetT(objectOffset - fieldOff)
		}
		WriteVOffsetT(b.scratch[int(slotByteOffset(i)):], rel)
	}

	vt := b.cache.lookupOrInsert(b.buf, b.scratch)
	b.buf.writeSOffsetTAt(objectOffset, SOffsetT(vt)-SOffsetT(objectOffset))

	b.stack = b.stack[:len(b.stack)-1]
	return TableOffset(objectOffset), nil
}

// CreateString writes a length-prefixed, NUL-terminated string and
// returns its offset. The write is contiguous; it cannot be split or
// interleaved with other writes.
func (b *Builder) CreateString(s string) (StringOffset, error) {
	if err := b.startInline(len(s)); err != nil {
		return 0, err
	}
	b.buf.placeScalarBits(0, SizeByte) // C-string interop terminator
	b.buf.placeString(s)
	b.buf.placeUOffsetT(UOffsetT(len(s)))
	return StringOffset(b.buf.Offset()), nil
}

// CreateByteString writes a byte slice with string framing (length
// prefix and NUL terminator).
func (b *Builder) CreateByteString(s []byte) (StringOffset, error) {
	if err := b.startInline(len(s)); err != nil {
		return 0, err
	}
	b.buf.placeScalarBits(0, SizeByte)
	b.buf.placeBytes(s)
	b.buf.placeUOffsetT(UOffsetT(len(s)))
	return StringOffset(b.buf.Offset()), nil
}

// CreateByteVector writes a vector of raw bytes, without a terminator.
func (b *Builder) CreateByteVector(v []byte) (VectorOffset, error) {
	if err := b.writable(); err != nil {
		return 0, err
	}
	if b.inVector {
		return 0, xerrors.Errorf("create byte vector inside vector: %w", ErrNesting)
	}
	b.buf.Prep(SizeUOffsetT, len(v)*SizeByte)
	b.buf.placeBytes(v)
	b.buf.placeUOffsetT(UOffsetT(len(v)))
	return VectorOffset(b.buf.Offset()), nil
}

func (b *Builder) startInline(n int) error {
	if err := b.writable(); err != nil {
		return err
	}
	if b.inVector {
		return xerrors.Errorf("create string inside vector: %w", ErrNesting)
	}
	b.buf.Prep(SizeUOffsetT, (n+1)*SizeByte)
	return nil
}

// StartVector readies the buffer for a vector of numElems elements of
// elemSize bytes each. Elements are then prepended in reverse order
// (last element first) and the vector closed with EndVector.
func (b *Builder) StartVector(elemSize, numElems, alignment int) error {
	if err := b.writable(); err != nil {
		return err
	}
	if b.inVector {
		return xerrors.Errorf("start vector: %w", ErrNesting)
	}
	b.inVector = true
	b.buf.Prep(SizeUint32, elemSize*numElems)
	b.buf.Prep(alignment, elemSize*numElems) // in case alignment > elemSize
	return nil
}

// EndVector writes the element count and returns the vector's offset.
func (b *Builder) EndVector(numElems int) (VectorOffset, error) {
	if err := b.writable(); err != nil {
		return 0, err
	}
	if !b.inVector {
		return 0, xerrors.Errorf("end vector: %w", ErrNesting)
	}
	b.inVector = false
	// Space was reserved by StartVector.
	b.buf.placeUOffsetT(UOffsetT(numElems))
	return VectorOffset(b.buf.Offset()), nil
}

// prependScalarBits writes one vector element.
func (b *Builder) prependScalarBits(bits uint64, size int) error {
	if err := b.writable(); err != nil {
		return err
	}
	if !b.inVector {
		return xerrors.Errorf("prepend element: %w", ErrNesting)
	}
	b.buf.Prep(size, 0)
	b.buf.placeScalarBits(bits, size)
	return nil
}

// PrependBool prepends a bool vector element.
func (b *Builder) PrependBool(v bool) error {
	bits := uint64(0)
	if v {
		bits = 1
	}
	return b.prependScalarBits(bits, SizeBool)
}

// PrependUint8 prepends a uint8 vector element.
func (b *Builder) PrependUint8(v uint8) error { return b.prependScalarBits(uint64(v), SizeUint8) }

// PrependUint16 prepends a uint16 vector element.
func (b *Builder) PrependUint16(v uint16) error { return b.prependScalarBits(uint64(v), SizeUint16) }

// PrependUint32 prepends a uint32 vector element.
func (b *Builder) PrependUint32(v uint32) error { return b.prependScalarBits(uint64(v), SizeUint32) }

// PrependUint64 prepends a uint64 vector element.
func (b *Builder) PrependUint64(v uint64) error { return b.prependScalarBits(v, SizeUint64) }

// PrependInt8 prepends an int8 vector element.
func (b *Builder) PrependInt8(v int8) error { return b.prependScalarBits(uint64(uint8(v)), SizeInt8) }

// PrependInt16 prepends an int16 vector element.
func (b *Builder) PrependInt16(v int16) error {
	return b.prependScalarBits(uint64(uint16(v)), SizeInt16)
}

// PrependInt32 prepends an int32 vector element.
func (b *Builder) PrependInt32(v int32) error {
	return b.prependScalarBits(uint64(uint32(v)), SizeInt32)
}

// PrependInt64 prepends an int64 vector element.
func (b *Builder) PrependInt64(v int64) error { return b.prependScalarBits(uint64(v), SizeInt64) }

// PrependFloat32 prepends a float32 vector element.
func (b *Builder) PrependFloat32(v float32) error {
	return b.prependScalarBits(uint64(math.Float32bits(v)), SizeFloat32)
}

// PrependFloat64 prepends a float64 vector element.
func (b *Builder) PrependFloat64(v float64) error {
	return b.prependScalarBits(math.Float64bits(v), SizeFloat64)
}

// prependOffsetElem writes one offset vector element resolving to
// target.
func (b *Builder) prependOffsetElem(target UOffsetT) error {
	if err := b.writable(); err != nil {
		return err
	}
	if !b.inVector {
		return xerrors.Errorf("prepend offset element: %w", ErrNesting)
	}
	if target == 0 || target > b.buf.Offset() {
		return xerrors.Errorf("prepend offset element %d: %w", target, ErrDanglingOffset)
	}
	b.buf.Prep(SizeUOffsetT, 0)
	b.buf.placeUOffsetT(b.buf.Offset() - target + UOffsetT(SizeUOffsetT))
	return nil
}

// PrependTableOffset prepends a table reference vector element.
func (b *Builder) PrependTableOffset(off TableOffset) error {
	return b.prependOffsetElem(UOffsetT(off))
}

// PrependStringOffset prepends a string reference vector element.
func (b *Builder) PrependStringOffset(off StringOffset) error {
	return b.prependOffsetElem(UOffsetT(off))
}

// CreateTableVector writes a vector of references to already-built
// tables, preserving element order.
func (b *Builder) CreateTableVector(offs []TableOffset) (VectorOffset, error) {
	if err := b.StartVector(SizeUOffsetT, len(offs), SizeUOffsetT); err != nil {
		return 0, err
	}
	for i := len(offs) - 1; i >= 0; i-- {
		if err := b.PrependTableOffset(offs[i]); err != nil {
			return 0, err
		}
	}
	return b.EndVector(len(offs))
}

// CreateStringVector writes a vector of references to already-built
// strings, preserving element order.
func (b *Builder) CreateStringVector(offs []StringOffset) (VectorOffset, error) {
	if err := b.StartVector(SizeUOffsetT, len(offs), SizeUOffsetT); err != nil {
		return 0, err
	}
	for i := len(offs) - 1; i >= 0; i-- {
		if err := b.PrependStringOffset(offs[i]); err != nil {
			return 0, err
		}
	}
	return b.EndVector(len(offs))
}

// Finish finalizes the buffer: it pads the eventual buffer start to
// the session's accumulated maximum alignment, writes the optional
// 4-byte file identifier, then the root table offset, and returns the
// immutable finished slice. fileIdentifier is "" for none.
func (b *Builder) Finish(root TableOffset, fileIdentifier string) ([]byte, error) {
	if err := b.writable(); err != nil {
		return nil, err
	}
	if len(b.stack) > 0 || b.inVector {
		return nil, ErrOpenObject
	}
	if root == 0 || UOffsetT(root) > b.buf.Offset() {
		return nil, xerrors.Errorf("finish root %d: %w", root, ErrDanglingOffset)
	}
	if fileIdentifier != "" {
		if len(fileIdentifier) != fileIdentifierLength {
			return nil, xerrors.Errorf("%q: %w", fileIdentifier, ErrFileIdentifier)
		}
		b.buf.Prep(b.buf.MinAlign(), SizeUOffsetT+fileIdentifierLength)
		b.buf.placeString(fileIdentifier)
	}
	b.buf.Prep(b.buf.MinAlign(), SizeUOffsetT)
	b.buf.placeUOffsetT(b.buf.Offset() - UOffsetT(root) + UOffsetT(SizeUOffsetT))
	b.finished = true
	return b.buf.Finished(), nil
}
