//go:build darwin
// +build darwin

package blockdevice

import (
	"log"

	"github.com/buildbarn/bb-disktest/pkg/util"

	"golang.org/x/sys/unix"
)

// Values of ioctls declared in <sys/disk.h>, which are not provided by
// golang.org/x/sys/unix.
const (
	dkiocGetBlockSize  = 0x40046418
	dkiocGetBlockCount = 0x40086419
)

func openWithFlags(path string, flags int, directIO bool) (int, bool, error) {
	fd, err := unix.Open(path, flags, 0o666)
	if err != nil || !directIO {
		return fd, false, err
	}
	// macOS has no O_DIRECT. Caching can only be disabled on a file
	// descriptor after it has been opened.
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_NOCACHE, 1); err != nil {
		log.Printf("Failed to disable caching for %#v, falling back to buffered I/O: %s", path, err)
		return fd, false, nil
	}
	return fd, true, nil
}

func getDeviceGeometry(fd int) (int64, int, error) {
	sectorSizeBytes, err := unix.IoctlGetUint32(fd, dkiocGetBlockSize)
	if err != nil {
		return 0, 0, util.StatusWrap(StatusFromIOError(err), "Failed to obtain sector size")
	}
	sectorCount, err := unix.IoctlGetInt(fd, dkiocGetBlockCount)
	if err != nil {
		return 0, 0, util.StatusWrap(StatusFromIOError(err), "Failed to obtain sector count")
	}
	return int64(sectorCount) * int64(sectorSizeBytes), int(sectorSizeBytes), nil
}

func syncFile(fd int) error {
	return unix.Fsync(fd)
}

func dropCache(fd int) error {
	return nil
}
