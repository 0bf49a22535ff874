//go:build freebsd
// +build freebsd

package blockdevice

import (
	"log"
	"unsafe"

	"github.com/buildbarn/bb-disktest/pkg/util"

	"golang.org/x/sys/unix"
)

func openWithFlags(path string, flags int, directIO bool) (int, bool, error) {
	if directIO {
		fd, err := unix.Open(path, flags|unix.O_DIRECT, 0o666)
		if err != unix.EINVAL {
			return fd, true, err
		}
		log.Printf("File system containing %#v does not support direct I/O, falling back to buffered I/O", path)
	}
	fd, err := unix.Open(path, flags, 0o666)
	return fd, false, err
}

func getDeviceGeometry(fd int) (int64, int, error) {
	var sectorSizeBytes uint32
	if _, _, err := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.DIOCGSECTORSIZE, uintptr(unsafe.Pointer(&sectorSizeBytes))); err != 0 {
		return 0, 0, util.StatusWrap(StatusFromIOError(err), "Failed to obtain sector size")
	}
	var deviceSizeBytes int64
	if _, _, err := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.DIOCGMEDIASIZE, uintptr(unsafe.Pointer(&deviceSizeBytes))); err != 0 {
		return 0, 0, util.StatusWrap(StatusFromIOError(err), "Failed to obtain media size")
	}
	return deviceSizeBytes, int(sectorSizeBytes), nil
}

func syncFile(fd int) error {
	return unix.Fsync(fd)
}

// Data written through O_DIRECT bypasses the buffer cache. Buffered
// writes are evicted by the kernel on its own accord.
func dropCache(fd int) error {
	return nil
}
