package blockdevice

import (
	"io"
	"os"
)

// BlockDevice is an interface for interacting with a block device like
// storage medium. Block devices support random access reads and writes.
// They differ from plain files, in that their size is fixed.
//
// Storage media tend to store data in sectors. These sectors cannot be
// read from and written to partially. When a BlockDevice is opened
// with direct I/O enabled, offsets, sizes and memory addresses of
// buffers must be aligned to the sector size. NewAlignedBuffer() can
// be used to allocate buffers that meet this requirement.
//
// Because of caching, writes may not be applied against the underlying
// storage medium immediately. The Sync() function can be used to block
// execution until all previous writes are persisted.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt

	Sync() error
	Close() error
}

var _ BlockDevice = (*os.File)(nil)

// CacheDropper is implemented by BlockDevices that are capable of
// evicting their contents from the operating system's page cache.
// This is needed to ensure that data that was just written is read
// back from the storage medium, as opposed to from memory.
type CacheDropper interface {
	DropCache() error
}

// DropCache evicts the contents of a BlockDevice from the page cache,
// if supported. BlockDevices opened with direct I/O bypass the page
// cache, in which case this is a no-op.
func DropCache(bd BlockDevice) error {
	if cd, ok := bd.(CacheDropper); ok {
		return cd.DropCache()
	}
	return nil
}

// Geometry of a storage medium, as reported by the operating system at
// the time it was opened.
type Geometry struct {
	// Total size of the storage medium. For regular files, this is
	// the size of the file at the time it was opened.
	SizeBytes int64
	// Size of the smallest unit of I/O that the storage medium
	// supports. Offsets and sizes of I/O must be a multiple of
	// this value when direct I/O is enabled.
	SectorSizeBytes int
	// Whether the storage medium is a device node, as opposed to a
	// regular file. Regular files can grow when written to.
	IsBlockDevice bool
	// Whether the page cache is bypassed. This may be false even
	// if direct I/O was requested, as some file systems don't
	// support it.
	DirectIO bool
}

// OpenOptions controls how a storage medium is opened.
type OpenOptions struct {
	// Open the storage medium for writing, as opposed to only
	// for reading.
	Write bool
	// Attempt to bypass the page cache.
	DirectIO bool
	// Create a regular file if it does not exist.
	Create bool
}
