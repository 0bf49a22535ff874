//go:build linux
// +build linux

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
		// File systems like tmpfs don't support O_DIRECT.
		log.Printf("File system containing %#v does not support direct I/O, falling back to buffered I/O", path)
	}
	fd, err := unix.Open(path, flags, 0o666)
	return fd, false, err
}

func getDeviceGeometry(fd int) (int64, int, error) {
	sectorSizeBytes, err := unix.IoctlGetUint32(fd, unix.BLKSSZGET)
	if err != nil {
		return 0, 0, util.StatusWrap(StatusFromIOError(err), "Failed to obtain sector size")
	}
	var deviceSizeBytes uint64
	if _, _, err := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&deviceSizeBytes))); err != 0 {
		return 0, 0, util.StatusWrap(StatusFromIOError(err), "Failed to obtain device size")
	}
	return int64(deviceSizeBytes), int(sectorSizeBytes), nil
}

func syncFile(fd int) error {
	return unix.Fdatasync(fd)
}

func dropCache(fd int) error {
	return unix.Fadvise(fd, 0, 0, unix.FADV_DONTNEED)
}
