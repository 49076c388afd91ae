package flatwire

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

// vtableCache deduplicates vtables within one build session.
// Candidates arrive fully serialized; a 64-bit hash of the slot
// entries selects a bucket and a byte-for-byte comparison against each
// prior vtable in the bucket confirms the match, so hash collisions
// cannot alias distinct vtables.
//
// Equality covers the vtable length and every slot entry. The object
// byte size is excluded: alignment padding in front of an object's
// first field is charged to its extent, so two objects with identical
// slot patterns can record sizes that differ by a pad. The size field
// is advisory (it exists for streaming consumers) and sharing across
// such objects is what bounds buffer growth on homogeneous data.
type vtableCache struct {
	buckets map[uint64][]UOffsetT
}

func newVTableCache() *vtableCache {
	return &vtableCache{buckets: make(map[uint64][]UOffsetT)}
}

func (c *vtableCache) reset() {
	for k := range c.buckets {
		delete(c.buckets, k)
	}
}

// lookupOrInsert returns the offset of a previously committed vtable
// equal to candidate, discarding the candidate. When no prior vtable
// matches, it commits the candidate to buf and registers the resulting
// offset.
func (c *vtableCache) lookupOrInsert(buf *Buffer, candidate []byte) UOffsetT {
	metadata := vtableMetadataFields * SizeVOffsetT
	sum := xxhash.Sum64(candidate[metadata:])
	for _, prior := range c.buckets[sum] {
		if int(prior) < len(candidate) {
			continue
		}
		committed := buf.bytesAt(prior, len(candidate))
		if int(GetVOffsetT(committed)) != len(candidate) {
			continue
		}
		if bytes.Equal(committed[metadata:], candidate[metadata:]) {
			return prior
		}
	}

	buf.Prep(SizeVOffsetT, len(candidate))
	buf.placeBytes(candidate)
	off := buf.Offset()
	c.buckets[sum] = append(c.buckets[sum], off)
	return off
}
