package flatwire

import (
	"math"

	"golang.org/x/xerrors"
)

// Kind identifies the wire representation of a field slot.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindUnionTag // union discriminant byte
	KindString
	KindVector
	KindTable
	KindUnion // union value offset; its discriminant occupies the preceding slot
)

var kindNames = [...]string{
	"bool", "int8", "uint8", "int16", "uint16", "int32", "uint32",
	"int64", "uint64", "float32", "float64", "uniontag", "string",
	"vector", "table", "union",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// scalar reports whether the kind is stored inline in the object.
func (k Kind) scalar() bool { return k <= KindUnionTag }

// size is the inline byte width of the kind; offset kinds occupy one
// UOffsetT. Alignment equals size for every kind.
func (k Kind) size() int {
	switch k {
	case KindBool, KindInt8, KindUint8, KindUnionTag:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt64, KindUint64, KindFloat64:
		return 8
	default:
		return 4
	}
}

// A UnionVariant maps one union discriminant value to the table type
// it selects. Tag 0 is reserved for "no value".
type UnionVariant struct {
	Tag      byte
	TypeName string
}

// FieldDescriptor describes one slot of a record type: its wire kind,
// inline byte width and alignment, canonical default (raw little-endian
// bits), and whether the slot is deprecated. Deprecated slots consume
// their index but are never written or read, so indices stay stable
// across schema evolution.
type FieldDescriptor struct {
	Name       string
	Kind       Kind
	Size       int
	Align      int
	Default    uint64
	Deprecated bool

	// Vector element description, when Kind is KindVector.
	Elem     Kind
	ElemSize int

	// Referenced table type for KindTable, and for vectors of tables.
	// Resolved lazily through a Registry, which is what lets mutually
	// referential types describe each other.
	TypeName string

	// Variants is the discriminant table for KindUnion.
	Variants []UnionVariant
}

func scalarField(name string, kind Kind, def uint64) FieldDescriptor {
	return FieldDescriptor{Name: name, Kind: kind, Size: kind.size(), Align: kind.size(), Default: def}
}

func offsetField(name string, kind Kind) FieldDescriptor {
	return FieldDescriptor{Name: name, Kind: kind, Size: SizeUOffsetT, Align: SizeUOffsetT}
}

// BoolField describes a bool slot with the given default.
func BoolField(name string, def bool) FieldDescriptor {
	bits := uint64(0)
	if def {
		bits = 1
	}
	return scalarField(name, KindBool, bits)
}

// Int8Field describes an int8 slot with the given default.
func Int8Field(name string, def int8) FieldDescriptor {
	return scalarField(name, KindInt8, uint64(uint8(def)))
}

// Uint8Field describes a uint8 slot with the given default.
func Uint8Field(name string, def uint8) FieldDescriptor {
	return scalarField(name, KindUint8, uint64(def))
}

// Int16Field describes an int16 slot with the given default.
func Int16Field(name string, def int16) FieldDescriptor {
	return scalarField(name, KindInt16, uint64(uint16(def)))
}

// Uint16Field describes a uint16 slot with the given default.
func Uint16Field(name string, def uint16) FieldDescriptor {
	return scalarField(name, KindUint16, uint64(def))
}

// Int32Field describes an int32 slot with the given default.
func Int32Field(name string, def int32) FieldDescriptor {
	return scalarField(name, KindInt32, uint64(uint32(def)))
}

// Uint32Field describes a uint32 slot with the given default.
func Uint32Field(name string, def uint32) FieldDescriptor {
	return scalarField(name, KindUint32, uint64(def))
}

// Int64Field describes an int64 slot with the given default.
func Int64Field(name string, def int64) FieldDescriptor {
	return scalarField(name, KindInt64, uint64(def))
}

// Uint64Field describes a uint64 slot with the given default.
func Uint64Field(name string, def uint64) FieldDescriptor {
	return scalarField(name, KindUint64, def)
}

// Float32Field describes a float32 slot with the given default.
// Defaults compare by bit pattern, so NaN defaults elide consistently.
func Float32Field(name string, def float32) FieldDescriptor {
	return scalarField(name, KindFloat32, uint64(math.Float32bits(def)))
}

// Float64Field describes a float64 slot with the given default.
func Float64Field(name string, def float64) FieldDescriptor {
	return scalarField(name, KindFloat64, math.Float64bits(def))
}

// StringField describes a string slot. Offset fields default to
// absent; there is no inline default.
func StringField(name string) FieldDescriptor {
	return offsetField(name, KindString)
}

// TableField describes a nested table slot referencing typeName.
func TableField(name, typeName string) FieldDescriptor {
	f := offsetField(name, KindTable)
	f.TypeName = typeName
	return f
}

// VectorField describes a vector slot of scalar elements.
func VectorField(name string, elem Kind) FieldDescriptor {
	f := offsetField(name, KindVector)
	f.Elem = elem
	f.ElemSize = elem.size()
	return f
}

// TableVectorField describes a vector slot whose elements are tables
// of typeName.
func TableVectorField(name, typeName string) FieldDescriptor {
	f := offsetField(name, KindVector)
	f.Elem = KindTable
	f.ElemSize = SizeUOffsetT
	f.TypeName = typeName
	return f
}

// StringVectorField describes a vector slot of strings.
func StringVectorField(name string) FieldDescriptor {
	f := offsetField(name, KindVector)
	f.Elem = KindString
	f.ElemSize = SizeUOffsetT
	return f
}

// UnionTagField describes the discriminant byte slot of a union. It
// must immediately precede its UnionField.
func UnionTagField(name string) FieldDescriptor {
	return scalarField(name, KindUnionTag, 0)
}

// UnionField describes the value offset slot of a union. The variants
// map discriminant values to table types.
func UnionField(name string, variants ...UnionVariant) FieldDescriptor {
	f := offsetField(name, KindUnion)
	f.Variants = variants
	return f
}

// Deprecated marks a field descriptor deprecated, retaining its slot
// index.
func Deprecated(f FieldDescriptor) FieldDescriptor {
	f.Deprecated = true
	return f
}

// TypeDescriptor is the per-type static metadata consumed by Builder
// and Table: the ordered field slots plus optional file identifier and
// extension. Build one per record type at startup and treat it as
// immutable from then on.
type TypeDescriptor struct {
	name   string
	fields []FieldDescriptor
	fileID string
	ext    string
}

// A DescriptorOption customizes a TypeDescriptor at construction.
type DescriptorOption func(*TypeDescriptor)

// WithFileIdentifier registers a 4-byte magic identifying buffers
// whose root is this type.
func WithFileIdentifier(id string) DescriptorOption {
	return func(d *TypeDescriptor) { d.fileID = id }
}

// WithFileExtension sets the conventional file extension for buffers
// of this type.
func WithFileExtension(ext string) DescriptorOption {
	return func(d *TypeDescriptor) { d.ext = ext }
}

// NewTypeDescriptor builds the descriptor for one record type. Slot
// indices follow declaration order and must never be renumbered; retire
// fields with Deprecated instead. A KindUnion field must be declared
// immediately after its KindUnionTag discriminant.
func NewTypeDescriptor(name string, fields []FieldDescriptor, opts ...DescriptorOption) (*TypeDescriptor, error) {
	d := &TypeDescriptor{name: name, fields: fields}
	for _, opt := range opts {
		opt(d)
	}
	if d.fileID != "" && len(d.fileID) != fileIdentifierLength {
		return nil, xerrors.Errorf("type %q: identifier %q: %w", name, d.fileID, ErrFileIdentifier)
	}
	for i, f := range fields {
		if f.Kind == KindUnion {
			if i == 0 || fields[i-1].Kind != KindUnionTag {
				return nil, xerrors.Errorf("type %q: union field %q needs a uniontag at slot %d: %w",
					name, f.Name, i-1, ErrKindMismatch)
			}
		}
	}
	return d, nil
}

// MustTypeDescriptor is NewTypeDescriptor for static startup data,
// panicking on a malformed declaration.
func MustTypeDescriptor(name string, fields []FieldDescriptor, opts ...DescriptorOption) *TypeDescriptor {
	d, err := NewTypeDescriptor(name, fields, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Name returns the type identity used for registry lookups.
func (d *TypeDescriptor) Name() string { return d.name }

// SlotCount returns the number of declared slots, deprecated included.
func (d *TypeDescriptor) SlotCount() int { return len(d.fields) }

// Field returns the descriptor of one slot.
func (d *TypeDescriptor) Field(slot int) (FieldDescriptor, error) {
	if slot < 0 || slot >= len(d.fields) {
		return FieldDescriptor{}, xerrors.Errorf("type %q slot %d: %w", d.name, slot, ErrSlotRange)
	}
	return d.fields[slot], nil
}

// Fields returns the ordered slot descriptors.
func (d *TypeDescriptor) Fields() []FieldDescriptor { return d.fields }

// Default returns the canonical default of a slot as raw scalar bits.
func (d *TypeDescriptor) Default(slot int) uint64 {
	if slot < 0 || slot >= len(d.fields) {
		return 0
	}
	return d.fields[slot].Default
}

// FileIdentifier returns the registered 4-byte magic, or "" when the
// type declares none.
func (d *TypeDescriptor) FileIdentifier() string { return d.fileID }

// FileExtension returns the registered extension, defaulting to "bin".
func (d *TypeDescriptor) FileExtension() string {
	if d.ext == "" {
		return "bin"
	}
	return d.ext
}

// SlotOffsets returns, per slot, the byte offset of its entry inside a
// vtable covering every slot: the two metadata entries first, then one
// VOffsetT per slot.
func (d *TypeDescriptor) SlotOffsets() []VOffsetT {
	offs := make([]VOffsetT, len(d.fields))
	for i := range d.fields {
		offs[i] = slotByteOffset(i)
	}
	return offs
}

// slotByteOffset converts a slot index to its vtable byte offset.
func slotByteOffset(slot int) VOffsetT {
	return VOffsetT((vtableMetadataFields + slot) * SizeVOffsetT)
}

// variant returns the union variant selected by tag.
func (f *FieldDescriptor) variant(tag byte) (UnionVariant, bool) {
	for _, v := range f.Variants {
		if v.Tag == tag {
			return v, true
		}
	}
	return UnionVariant{}, false
}
