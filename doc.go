// Package flatwire implements the FlatBuffers wire format: a
// vtable-indirected, offset-based binary layout supporting zero-copy
// random-access reads without an unpacking pass.
//
// The package is descriptor driven. An externally supplied
// TypeDescriptor lists, per record type, the ordered field slots with
// their wire kind, byte width, default value and deprecated flag; the
// Builder consumes it while encoding and the Table consults it while
// decoding. Schema compilation is out of scope: descriptors are built
// once at startup with the constructor functions in this package, or
// emitted by an external code generator.
//
// Buffers are written from the high end downward, child before parent.
// A Builder session is single-writer; a finished buffer is immutable
// and may be read concurrently by any number of Table handles.
//
// Typical encode flow:
//
//	b := flatwire.NewBuilder(0)
//	name, _ := b.CreateString("moop")
//	_ = b.StartObject(desc)
//	_ = b.AddString(0, name)
//	_ = b.AddInt32(1, 42)
//	root, _ := b.EndObject()
//	buf, _ := b.Finish(root, desc.FileIdentifier())
//
// Decoding resolves fields through vtable indirection with every
// computed offset validated against the buffer extent, so a corrupted
// buffer yields a DecodeError rather than an out-of-bounds access:
//
//	t, _ := flatwire.Root(buf, desc, registry)
//	v, _ := t.Int32(1)
package flatwire
