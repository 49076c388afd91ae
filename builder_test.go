package flatwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var oneInt32Desc = MustTypeDescriptor("OneInt32", []FieldDescriptor{
	Int32Field("x", 1),
})

func TestCreateStringLayout(t *testing.T) {
	b := NewBuilder(0)
	off, err := b.CreateString("moop")
	require.NoError(t, err)
	assert.Equal(t, StringOffset(12), off)

	want := []byte{
		4, 0, 0, 0, // length
		'm', 'o', 'o', 'p',
		0,       // terminator
		0, 0, 0, // alignment pad
	}
	assert.Equal(t, want, b.buf.Finished())
}

// The canonical smallest table: one int32 slot with default 1, written
// with value 2. The finished buffer is exactly 20 bytes.
func TestOneFieldTableLayout(t *testing.T) {
	b := NewBuilder(0)
	require.NoError(t, b.StartObject(oneInt32Desc))
	require.NoError(t, b.AddInt32(0, 2))
	root, err := b.EndObject()
	require.NoError(t, err)
	buf, err := b.Finish(root, "")
	require.NoError(t, err)

	want := []byte{
		12, 0, 0, 0, // root table offset
		0, 0, // pad to 4-byte alignment
		6, 0, // vtable byte size
		8, 0, // object byte size
		4, 0, // slot 0 offset within object
		6, 0, 0, 0, // soffset back-reference to the vtable
		2, 0, 0, 0, // x
	}
	assert.Equal(t, want, buf)
}

// Writing the default value elides the field entirely: the vtable
// covers zero slots and the buffer shrinks.
func TestDefaultElision(t *testing.T) {
	b := NewBuilder(0)
	require.NoError(t, b.StartObject(oneInt32Desc))
	require.NoError(t, b.AddInt32(0, 1))
	root, err := b.EndObject()
	require.NoError(t, err)
	buf, err := b.Finish(root, "")
	require.NoError(t, err)

	want := []byte{
		8, 0, 0, 0, // root table offset
		4, 0, // vtable byte size: metadata only, no slots
		4, 0, // object byte size
		4, 0, 0, 0, // soffset back-reference
	}
	assert.Equal(t, want, buf)
	assert.Less(t, len(buf), 20)

	tbl, err := Root(buf, oneInt32Desc, nil)
	require.NoError(t, err)
	present, err := tbl.Present(0)
	require.NoError(t, err)
	assert.False(t, present)
	x, err := tbl.Int32(0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), x)
}

func TestVTableDeduplication(t *testing.T) {
	b := NewBuilder(0)

	build := func(v int32) TableOffset {
		require.NoError(t, b.StartObject(oneInt32Desc))
		require.NoError(t, b.AddInt32(0, v))
		off, err := b.EndObject()
		require.NoError(t, err)
		return off
	}
	first := build(0x11)
	second := build(0x12)
	third := build(0x13)

	vec, err := b.CreateTableVector([]TableOffset{first, second, third})
	require.NoError(t, err)

	holderDesc := MustTypeDescriptor("Holder", []FieldDescriptor{
		TableVectorField("items", "OneInt32"),
	})
	require.NoError(t, b.StartObject(holderDesc))
	require.NoError(t, b.AddVector(0, vec))
	root, err := b.EndObject()
	require.NoError(t, err)
	buf, err := b.Finish(root, "")
	require.NoError(t, err)

	// All three identically-shaped children resolve to one vtable.
	child := []byte{6, 0, 8, 0, 4, 0}
	assert.Equal(t, 1, bytes.Count(buf, child))

	reg := NewRegistry().MustRegister(oneInt32Desc, holderDesc)
	tbl, err := Root(buf, holderDesc, reg)
	require.NoError(t, err)
	items, present, err := tbl.VectorField(0)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, 3, items.Len())
	for i, want := range []int32{0x11, 0x12, 0x13} {
		item, err := items.TableAt(i)
		require.NoError(t, err)
		x, err := item.Int32(0)
		require.NoError(t, err)
		assert.Equal(t, want, x)
	}
}

func TestEmptyVector(t *testing.T) {
	b := NewBuilder(0)
	require.NoError(t, b.StartVector(SizeInt64, 0, SizeInt64))
	vec, err := b.EndVector(0)
	require.NoError(t, err)

	desc := MustTypeDescriptor("Empty", []FieldDescriptor{
		VectorField("xs", KindInt64),
	})
	require.NoError(t, b.StartObject(desc))
	require.NoError(t, b.AddVector(0, vec))
	root, err := b.EndObject()
	require.NoError(t, err)
	buf, err := b.Finish(root, "")
	require.NoError(t, err)

	tbl, err := Root(buf, desc, nil)
	require.NoError(t, err)
	xs, present, err := tbl.VectorField(0)
	require.NoError(t, err)
	require.True(t, present)
	assert.Zero(t, xs.Len())
	_, err = xs.Int64At(0)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestVectorPreservesOrder(t *testing.T) {
	b := NewBuilder(0)
	vals := []int64{10, -20, 30, -40}
	require.NoError(t, b.StartVector(SizeInt64, len(vals), SizeInt64))
	for i := len(vals) - 1; i >= 0; i-- {
		require.NoError(t, b.PrependInt64(vals[i]))
	}
	vec, err := b.EndVector(len(vals))
	require.NoError(t, err)

	desc := MustTypeDescriptor("Longs", []FieldDescriptor{
		VectorField("xs", KindInt64),
	})
	require.NoError(t, b.StartObject(desc))
	require.NoError(t, b.AddVector(0, vec))
	root, err := b.EndObject()
	require.NoError(t, err)
	buf, err := b.Finish(root, "")
	require.NoError(t, err)

	tbl, err := Root(buf, desc, nil)
	require.NoError(t, err)
	xs, _, err := tbl.VectorField(0)
	require.NoError(t, err)
	require.Equal(t, len(vals), xs.Len())
	for i, want := range vals {
		got, err := xs.Int64At(i)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestNestedObjectConstruction(t *testing.T) {
	inner := MustTypeDescriptor("Inner", []FieldDescriptor{
		Int32Field("v", 0),
	})
	outer := MustTypeDescriptor("Outer", []FieldDescriptor{
		TableField("inner", "Inner"),
		Int32Field("w", 0),
	})

	b := NewBuilder(0)
	require.NoError(t, b.StartObject(outer))
	assert.Equal(t, 1, b.Depth())

	// Strictly nested child, built to completion before the parent
	// takes further fields.
	require.NoError(t, b.StartObject(inner))
	assert.Equal(t, 2, b.Depth())
	require.NoError(t, b.AddInt32(0, 7))
	innerOff, err := b.EndObject()
	require.NoError(t, err)

	require.NoError(t, b.AddTable(0, innerOff))
	require.NoError(t, b.AddInt32(1, 9))
	root, err := b.EndObject()
	require.NoError(t, err)
	assert.Zero(t, b.Depth())

	buf, err := b.Finish(root, "")
	require.NoError(t, err)

	reg := NewRegistry().MustRegister(inner, outer)
	tbl, err := Root(buf, outer, reg)
	require.NoError(t, err)
	w, err := tbl.Int32(1)
	require.NoError(t, err)
	assert.Equal(t, int32(9), w)
	in, present, err := tbl.TableField(0)
	require.NoError(t, err)
	require.True(t, present)
	v, err := in.Int32(0)
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)
}

func TestBuilderMisuse(t *testing.T) {
	t.Run("end without start", func(t *testing.T) {
		b := NewBuilder(0)
		_, err := b.EndObject()
		assert.ErrorIs(t, err, ErrNesting)
	})

	t.Run("add outside object", func(t *testing.T) {
		b := NewBuilder(0)
		assert.ErrorIs(t, b.AddInt32(0, 1), ErrNesting)
	})

	t.Run("slot out of range", func(t *testing.T) {
		b := NewBuilder(0)
		require.NoError(t, b.StartObject(oneInt32Desc))
		assert.ErrorIs(t, b.AddInt32(5, 1), ErrSlotRange)
	})

	t.Run("kind mismatch", func(t *testing.T) {
		b := NewBuilder(0)
		require.NoError(t, b.StartObject(oneInt32Desc))
		assert.ErrorIs(t, b.AddInt64(0, 1), ErrKindMismatch)
	})

	t.Run("deprecated slot", func(t *testing.T) {
		desc := MustTypeDescriptor("Dep", []FieldDescriptor{
			Deprecated(Int32Field("gone", 0)),
		})
		b := NewBuilder(0)
		require.NoError(t, b.StartObject(desc))
		assert.ErrorIs(t, b.AddInt32(0, 3), ErrDeprecatedSlot)
	})

	t.Run("dangling offset", func(t *testing.T) {
		desc := MustTypeDescriptor("Ref", []FieldDescriptor{
			TableField("child", "OneInt32"),
		})
		b := NewBuilder(0)
		require.NoError(t, b.StartObject(desc))
		assert.ErrorIs(t, b.AddTable(0, TableOffset(999)), ErrDanglingOffset)
	})

	t.Run("finish with open object", func(t *testing.T) {
		b := NewBuilder(0)
		require.NoError(t, b.StartObject(oneInt32Desc))
		_, err := b.Finish(TableOffset(4), "")
		assert.ErrorIs(t, err, ErrOpenObject)
	})

	t.Run("finish twice", func(t *testing.T) {
		b := NewBuilder(0)
		require.NoError(t, b.StartObject(oneInt32Desc))
		root, err := b.EndObject()
		require.NoError(t, err)
		_, err = b.Finish(root, "")
		require.NoError(t, err)
		_, err = b.Finish(root, "")
		assert.ErrorIs(t, err, ErrAlreadyFinished)
	})

	t.Run("write after finish", func(t *testing.T) {
		b := NewBuilder(0)
		require.NoError(t, b.StartObject(oneInt32Desc))
		root, err := b.EndObject()
		require.NoError(t, err)
		_, err = b.Finish(root, "")
		require.NoError(t, err)
		assert.ErrorIs(t, b.StartObject(oneInt32Desc), ErrAlreadyFinished)
		_, err = b.CreateString("late")
		assert.ErrorIs(t, err, ErrAlreadyFinished)
	})

	t.Run("bad file identifier", func(t *testing.T) {
		b := NewBuilder(0)
		require.NoError(t, b.StartObject(oneInt32Desc))
		root, err := b.EndObject()
		require.NoError(t, err)
		_, err = b.Finish(root, "TOOLONG")
		assert.ErrorIs(t, err, ErrFileIdentifier)
	})

	t.Run("interleave vector and string", func(t *testing.T) {
		b := NewBuilder(0)
		require.NoError(t, b.StartVector(SizeInt32, 1, SizeInt32))
		_, err := b.CreateString("no")
		assert.ErrorIs(t, err, ErrNesting)
		assert.ErrorIs(t, b.StartVector(SizeInt32, 1, SizeInt32), ErrNesting)
	})

	t.Run("field write inside vector", func(t *testing.T) {
		desc := MustTypeDescriptor("Mixed", []FieldDescriptor{
			Int32Field("x", 0),
			VectorField("xs", KindInt64),
		})
		b := NewBuilder(0)
		require.NoError(t, b.StartObject(desc))
		require.NoError(t, b.StartVector(SizeInt64, 2, SizeInt64))
		require.NoError(t, b.PrependInt64(7))
		// A scalar landing here would fuse into the element bytes.
		assert.ErrorIs(t, b.AddInt32(0, 5), ErrNesting)
		require.NoError(t, b.PrependInt64(8))
		vec, err := b.EndVector(2)
		require.NoError(t, err)
		require.NoError(t, b.AddVector(1, vec))
		root, err := b.EndObject()
		require.NoError(t, err)
		buf, err := b.Finish(root, "")
		require.NoError(t, err)

		tbl, err := Root(buf, desc, nil)
		require.NoError(t, err)
		xs, present, err := tbl.VectorField(1)
		require.NoError(t, err)
		require.True(t, present)
		require.Equal(t, 2, xs.Len())
		first, err := xs.Int64At(0)
		require.NoError(t, err)
		assert.Equal(t, int64(8), first)
		second, err := xs.Int64At(1)
		require.NoError(t, err)
		assert.Equal(t, int64(7), second)
	})

	t.Run("end object inside vector", func(t *testing.T) {
		b := NewBuilder(0)
		require.NoError(t, b.StartObject(oneInt32Desc))
		require.NoError(t, b.StartVector(SizeInt32, 1, SizeInt32))
		_, err := b.EndObject()
		assert.ErrorIs(t, err, ErrNesting)
	})

	t.Run("end vector without start", func(t *testing.T) {
		b := NewBuilder(0)
		_, err := b.EndVector(0)
		assert.ErrorIs(t, err, ErrNesting)
	})
}

func TestBuilderReset(t *testing.T) {
	build := func(b *Builder) []byte {
		require.NoError(t, b.StartObject(oneInt32Desc))
		require.NoError(t, b.AddInt32(0, 77))
		root, err := b.EndObject()
		require.NoError(t, err)
		buf, err := b.Finish(root, "")
		require.NoError(t, err)
		return buf
	}

	b := NewBuilder(0)
	first := append([]byte(nil), build(b)...)
	b.Reset()
	second := build(b)
	assert.Equal(t, first, second)
}

func BenchmarkVTableDeduplication(b *testing.B) {
	bld := NewBuilder(1 << 16)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bld.Reset()
		for j := 0; j < 100; j++ {
			_ = bld.StartObject(oneInt32Desc)
			_ = bld.AddInt32(0, int32(j)+2)
			_, _ = bld.EndObject()
		}
	}
}
