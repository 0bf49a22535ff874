package blockcodec

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// TagSizeBytes is the size of the integrity tag that is stored at the
// end of every block.
const TagSizeBytes = 8

// Encode a block in place, by replacing its final TagSizeBytes bytes
// with an XXH64 checksum of the bytes preceding them. Blocks that are
// too small to hold a tag are left untouched.
//
// The tag permits detecting blocks that are internally consistent,
// but were written with different parameters.
func Encode(block []byte) {
	if len(block) < TagSizeBytes {
		return
	}
	payloadSizeBytes := len(block) - TagSizeBytes
	binary.LittleEndian.PutUint64(block[payloadSizeBytes:], xxhash.Sum64(block[:payloadSizeBytes]))
}

// VerifyTag returns whether the tag stored in a block corresponds to
// the payload preceding it. Blocks that are too small to hold a tag
// are always considered valid.
func VerifyTag(block []byte) bool {
	if len(block) < TagSizeBytes {
		return true
	}
	payloadSizeBytes := len(block) - TagSizeBytes
	return binary.LittleEndian.Uint64(block[payloadSizeBytes:]) == xxhash.Sum64(block[:payloadSizeBytes])
}

// Comparison of a block that was read back from storage against the
// block that was expected to be stored.
type Comparison struct {
	// Whether the blocks are byte-for-byte identical. If set, all
	// other fields are zero.
	Match bool
	// Whether the tags stored in both blocks differ.
	TagMismatch bool
	// Offsets within the block of the first and the last byte that
	// differ.
	FirstMismatch int
	LastMismatch  int
	// Number of bytes that differ.
	MismatchedBytes int
}

// Compare a block read from storage against the expected contents,
// which must have been encoded using Encode().
//
// The tags are compared first, as they tend to differ if any other
// part of the block differs. Matching tags do not imply that the
// blocks are identical, so the full block is always compared to
// exclude the possibility of collisions.
func Compare(read, expected []byte) Comparison {
	if len(read) != len(expected) {
		panic("Blocks to compare have different sizes")
	}

	tagMismatch := false
	if len(expected) >= TagSizeBytes {
		tagOffset := len(expected) - TagSizeBytes
		tagMismatch = !bytes.Equal(read[tagOffset:], expected[tagOffset:])
	}
	if !tagMismatch && bytes.Equal(read, expected) {
		return Comparison{Match: true}
	}

	c := Comparison{
		TagMismatch:   tagMismatch,
		FirstMismatch: -1,
	}
	for i := range expected {
		if read[i] != expected[i] {
			if c.FirstMismatch < 0 {
				c.FirstMismatch = i
			}
			c.LastMismatch = i
			c.MismatchedBytes++
		}
	}
	return c
}
