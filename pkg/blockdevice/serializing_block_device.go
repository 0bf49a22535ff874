package blockdevice

import (
	"context"

	"github.com/buildbarn/bb-disktest/pkg/util"

	"golang.org/x/sync/semaphore"
)

type serializingBlockDevice struct {
	BlockDevice
	semaphore *semaphore.Weighted
}

// NewSerializingBlockDevice is a decorator for BlockDevice that limits
// the number of calls to ReadAt(), WriteAt() and Sync() that may run in
// parallel. When a semaphore with weight one is shared by multiple
// decorators, they may be used to let multiple workers share a single
// handle to a storage medium that does not support concurrent
// positioned I/O.
func NewSerializingBlockDevice(base BlockDevice, semaphore *semaphore.Weighted) BlockDevice {
	return &serializingBlockDevice{
		BlockDevice: base,
		semaphore:   semaphore,
	}
}

func (bd *serializingBlockDevice) acquire() {
	if err := util.AcquireSemaphore(context.Background(), bd.semaphore, 1); err != nil {
		panic("acquiring semaphore with background context should never fail")
	}
}

func (bd *serializingBlockDevice) ReadAt(p []byte, off int64) (int, error) {
	bd.acquire()
	defer bd.semaphore.Release(1)

	return bd.BlockDevice.ReadAt(p, off)
}

func (bd *serializingBlockDevice) WriteAt(p []byte, off int64) (int, error) {
	bd.acquire()
	defer bd.semaphore.Release(1)

	return bd.BlockDevice.WriteAt(p, off)
}

func (bd *serializingBlockDevice) Sync() error {
	bd.acquire()
	defer bd.semaphore.Release(1)

	return bd.BlockDevice.Sync()
}

func (bd *serializingBlockDevice) DropCache() error {
	bd.acquire()
	defer bd.semaphore.Release(1)

	return DropCache(bd.BlockDevice)
}
