package blockdevice

import (
	"unsafe"
)

// NewAlignedBuffer allocates a buffer whose address is a multiple of a
// given alignment, which must be a power of two. Direct I/O requires
// that buffers are aligned to the sector size of the storage medium.
func NewAlignedBuffer(sizeBytes, alignmentBytes int) []byte {
	if alignmentBytes <= 1 {
		return make([]byte, sizeBytes)
	}
	if alignmentBytes&(alignmentBytes-1) != 0 {
		panic("Alignment must be a power of two")
	}
	b := make([]byte, sizeBytes+alignmentBytes)
	offset := 0
	if misalignment := int(uintptr(unsafe.Pointer(unsafe.SliceData(b))) & uintptr(alignmentBytes-1)); misalignment != 0 {
		offset = alignmentBytes - misalignment
	}
	return b[offset : offset+sizeBytes : offset+sizeBytes]
}
