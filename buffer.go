package flatwire

// alignmentTracker records the largest alignment requirement seen
// during a build session. Finish pads the buffer's start to this
// value so downstream systems may embed the finished slice by address.
type alignmentTracker struct {
	max int
}

func (t *alignmentTracker) note(n int) {
	if n > t.max {
		t.max = n
	}
}

// Max returns the session's minalign, never less than 1.
func (t *alignmentTracker) Max() int {
	if t.max < 1 {
		return 1
	}
	return t.max
}

// Buffer is a growable byte store written from its high end downward.
// Offsets handed out are distances from the write head to the buffer's
// high end; they are lengths, not addresses, so growth never
// invalidates them.
type Buffer struct {
	bytes []byte
	head  UOffsetT
	align alignmentTracker
}

func newBuffer(initialSize int) *Buffer {
	if initialSize < 0 {
		initialSize = 0
	}
	return &Buffer{
		bytes: make([]byte, initialSize),
		head:  UOffsetT(initialSize),
	}
}

// Offset is the number of bytes written so far, which doubles as the
// offset of the most recently placed datum from the buffer's high end.
func (b *Buffer) Offset() UOffsetT {
	return UOffsetT(len(b.bytes)) - b.head
}

// Finished returns the written region. Only meaningful after the final
// alignment pad; Builder.Finish is the sole caller.
func (b *Buffer) Finished() []byte {
	return b.bytes[b.head:]
}

// MinAlign returns the running maximum alignment observed so far.
func (b *Buffer) MinAlign() int { return b.align.Max() }

// Pad writes n zero bytes at the head.
func (b *Buffer) Pad(n int) {
	for i := 0; i < n; i++ {
		b.head--
		b.bytes[b.head] = 0
	}
}

// Prep readies the buffer for writing an element of `size` bytes after
// `additionalBytes` have been written, padding so the element lands on
// a multiple of `size` relative to the buffer's eventual start and
// growing the buffer if the head would run out of room. If all that is
// needed is alignment, additionalBytes is 0.
func (b *Buffer) Prep(size, additionalBytes int) {
	b.align.note(size)

	// Alignment needed such that `size` is properly aligned after
	// `additionalBytes`.
	alignSize := (^(len(b.bytes) - int(b.head) + additionalBytes)) + 1
	alignSize &= size - 1

	for int(b.head) <= alignSize+size+additionalBytes {
		oldLen := len(b.bytes)
		b.grow()
		b.head += UOffsetT(len(b.bytes) - oldLen)
	}
	b.Pad(alignSize)
}

// grow doubles the capacity and copies the written bytes to the high
// end of the new buffer, preserving all previously returned offsets.
func (b *Buffer) grow() {
	if int64(len(b.bytes))&0xC0000000 != 0 {
		panic("flatwire: cannot grow buffer beyond 2 gigabytes")
	}
	newLen := len(b.bytes) * 2
	if newLen == 0 {
		newLen = 1
	}
	if cap(b.bytes) >= newLen {
		b.bytes = b.bytes[:newLen]
	} else {
		extension := make([]byte, newLen-len(b.bytes))
		b.bytes = append(b.bytes, extension...)
	}
	middle := newLen / 2
	copy(b.bytes[middle:], b.bytes[:middle])
}

// Place pads so the write lands on a multiple of align, writes data,
// and returns the resulting offset.
func (b *Buffer) Place(data []byte, align int) UOffsetT {
	b.Prep(align, len(data))
	b.placeBytes(data)
	return b.Offset()
}

// placeBytes writes data at the head without alignment or growth
// checks; the caller must have called Prep.
func (b *Buffer) placeBytes(data []byte) {
	b.head -= UOffsetT(len(data))
	copy(b.bytes[b.head:], data)
}

// placeString writes the bytes of s at the head without alignment or
// growth checks.
func (b *Buffer) placeString(s string) {
	b.head -= UOffsetT(len(s))
	copy(b.bytes[b.head:], s)
}

// placeScalarBits writes raw little-endian scalar bits of the given
// width at the head. No alignment or growth checks.
func (b *Buffer) placeScalarBits(bits uint64, size int) {
	b.head -= UOffsetT(size)
	writeScalarBits(b.bytes[b.head:], bits, size)
}

func (b *Buffer) placeUOffsetT(off UOffsetT) {
	b.head -= UOffsetT(SizeUOffsetT)
	WriteUOffsetT(b.bytes[b.head:], off)
}

func (b *Buffer) placeSOffsetT(off SOffsetT) {
	b.head -= UOffsetT(SizeSOffsetT)
	WriteSOffsetT(b.bytes[b.head:], off)
}

// writeSOffsetTAt patches an already-written SOffsetT at the position
// `off` bytes from the high end. EndObject uses it to point a placed
// object at its vtable.
func (b *Buffer) writeSOffsetTAt(off UOffsetT, v SOffsetT) {
	WriteSOffsetT(b.bytes[UOffsetT(len(b.bytes))-off:], v)
}

// bytesAt returns the n written bytes starting `off` bytes from the
// high end.
func (b *Buffer) bytesAt(off UOffsetT, n int) []byte {
	start := UOffsetT(len(b.bytes)) - off
	return b.bytes[start : start+UOffsetT(n)]
}
