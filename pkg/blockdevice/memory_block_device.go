package blockdevice

import (
	"io"
	"syscall"
)

// MemoryBlockDevice is a BlockDevice that is backed by a byte slice.
// It never loses or corrupts data, making it useful for testing and
// for dry runs.
type MemoryBlockDevice struct {
	data            []byte
	sectorSizeBytes int
}

var _ BlockDevice = (*MemoryBlockDevice)(nil)

// NewMemoryBlockDevice creates a MemoryBlockDevice of a given size.
// Its contents are initially zero.
func NewMemoryBlockDevice(sizeBytes, sectorSizeBytes int) *MemoryBlockDevice {
	return &MemoryBlockDevice{
		data:            make([]byte, sizeBytes),
		sectorSizeBytes: sectorSizeBytes,
	}
}

// Bytes returns the contents of the MemoryBlockDevice. Changes made to
// the returned slice are visible to subsequent reads.
func (bd *MemoryBlockDevice) Bytes() []byte {
	return bd.data
}

// Geometry returns the geometry of the MemoryBlockDevice, which can be
// passed to NewSharedOpener().
func (bd *MemoryBlockDevice) Geometry() Geometry {
	return Geometry{
		SizeBytes:       int64(len(bd.data)),
		SectorSizeBytes: bd.sectorSizeBytes,
		IsBlockDevice:   true,
	}
}

// ReadAt copies data out of the MemoryBlockDevice.
func (bd *MemoryBlockDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, syscall.EINVAL
	}
	if off >= int64(len(bd.data)) {
		return 0, io.EOF
	}
	n := copy(p, bd.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt copies data into the MemoryBlockDevice. Writes beyond the
// end of the MemoryBlockDevice are truncated, as they would be on a
// physical device.
func (bd *MemoryBlockDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, syscall.EINVAL
	}
	if off >= int64(len(bd.data)) {
		return 0, syscall.ENOSPC
	}
	n := copy(bd.data[off:], p)
	if n < len(p) {
		return n, syscall.ENOSPC
	}
	return n, nil
}

// Sync is a no-op, as all writes are applied immediately.
func (bd *MemoryBlockDevice) Sync() error {
	return nil
}

// Close is a no-op. The contents of the MemoryBlockDevice remain
// accessible through Bytes().
func (bd *MemoryBlockDevice) Close() error {
	return nil
}
