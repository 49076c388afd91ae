package flatwire

// Marshaler is the value side of encoding: a type that can populate a
// builder with its own content, children before parents, and return
// the offset of its root table.
type Marshaler interface {
	MarshalFlat(b *Builder) (TableOffset, error)
}

// Unmarshaler is the value side of decoding: a type that reads every
// field it cares about out of a root table view.
type Unmarshaler interface {
	UnmarshalFlat(t *Table) error
}

// Serialize runs a full builder session over v and returns the
// finished immutable buffer. The descriptor's file identifier, when
// declared, is stamped into the buffer.
func Serialize(v Marshaler, desc *TypeDescriptor) ([]byte, error) {
	b := NewBuilder(0)
	root, err := v.MarshalFlat(b)
	if err != nil {
		return nil, err
	}
	return b.Finish(root, desc.FileIdentifier())
}

// Deserialize constructs the root table of buf and decodes it into v.
// The registry resolves nested table types; pass nil when desc
// references none.
func Deserialize(buf []byte, desc *TypeDescriptor, reg *Registry, v Unmarshaler) error {
	t, err := Root(buf, desc, reg)
	if err != nil {
		return err
	}
	return v.UnmarshalFlat(t)
}

// FileIdentifier returns the 4-byte magic declared by the type, or ""
// when it declares none.
func FileIdentifier(desc *TypeDescriptor) string { return desc.FileIdentifier() }

// FileExtension returns the conventional file extension for buffers of
// the type.
func FileExtension(desc *TypeDescriptor) string { return desc.FileExtension() }

// SlotOffsets returns each slot's byte offset within a full vtable for
// the type.
func SlotOffsets(desc *TypeDescriptor) []VOffsetT { return desc.SlotOffsets() }

// HasIdentifier reports whether buf carries the type's file identifier
// at its fixed position after the root offset.
func HasIdentifier(desc *TypeDescriptor, buf []byte) bool {
	id := desc.FileIdentifier()
	if id == "" || len(buf) < SizeUOffsetT+fileIdentifierLength {
		return false
	}
	return string(buf[SizeUOffsetT:SizeUOffsetT+fileIdentifierLength]) == id
}
