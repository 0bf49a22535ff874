package blockdevice

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type alignmentCheckingBlockDevice struct {
	BlockDevice
	alignmentBytes int64
}

// NewAlignmentCheckingBlockDevice creates a decorator for BlockDevice
// that rejects reads and writes whose offset or size is not a multiple
// of a given alignment. Rejected operations are not forwarded to the
// underlying BlockDevice, meaning that no partial I/O takes place.
//
// Operating systems tend to report misaligned direct I/O with EINVAL,
// which is indistinguishable from other failures. This decorator
// yields more descriptive errors.
func NewAlignmentCheckingBlockDevice(base BlockDevice, alignmentBytes int) BlockDevice {
	return &alignmentCheckingBlockDevice{
		BlockDevice:    base,
		alignmentBytes: int64(alignmentBytes),
	}
}

func (bd *alignmentCheckingBlockDevice) checkAlignment(p []byte, off int64) error {
	if off%bd.alignmentBytes != 0 {
		return status.Errorf(codes.InvalidArgument, "Offset %d is not aligned to %d bytes", off, bd.alignmentBytes)
	}
	if int64(len(p))%bd.alignmentBytes != 0 {
		return status.Errorf(codes.InvalidArgument, "Size %d is not aligned to %d bytes", len(p), bd.alignmentBytes)
	}
	return nil
}

func (bd *alignmentCheckingBlockDevice) ReadAt(p []byte, off int64) (int, error) {
	if err := bd.checkAlignment(p, off); err != nil {
		return 0, err
	}
	return bd.BlockDevice.ReadAt(p, off)
}

func (bd *alignmentCheckingBlockDevice) WriteAt(p []byte, off int64) (int, error) {
	if err := bd.checkAlignment(p, off); err != nil {
		return 0, err
	}
	return bd.BlockDevice.WriteAt(p, off)
}

func (bd *alignmentCheckingBlockDevice) DropCache() error {
	return DropCache(bd.BlockDevice)
}
