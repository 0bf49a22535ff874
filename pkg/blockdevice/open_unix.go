//go:build darwin || freebsd || linux
// +build darwin freebsd linux

package blockdevice

import (
	"io"

	"github.com/buildbarn/bb-disktest/pkg/util"

	"golang.org/x/sys/unix"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Open a device node or regular file, so that it can be accessed as a
// BlockDevice. The geometry of the storage medium is returned as well.
//
// When direct I/O is requested but not supported by the file system,
// a warning is logged and the page cache is used instead. Whether
// direct I/O is in effect is reported through Geometry.DirectIO.
func Open(path string, options OpenOptions) (BlockDevice, Geometry, error) {
	flags := unix.O_RDONLY
	if options.Write {
		flags = unix.O_RDWR
	}
	if options.Create {
		flags |= unix.O_CREAT
	}
	fd, directIO, err := openWithFlags(path, flags|unix.O_CLOEXEC, options.DirectIO)
	if err != nil {
		return nil, Geometry{}, util.StatusWrapf(StatusFromIOError(err), "Failed to open %#v", path)
	}

	geometry, err := getGeometry(fd)
	if err != nil {
		unix.Close(fd)
		return nil, Geometry{}, util.StatusWrapf(err, "Failed to obtain geometry of %#v", path)
	}
	geometry.DirectIO = directIO
	return &fileBlockDevice{fd: fd}, geometry, nil
}

func getGeometry(fd int) (Geometry, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return Geometry{}, StatusFromIOError(err)
	}
	switch stat.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		return Geometry{
			SizeBytes:       stat.Size,
			SectorSizeBytes: int(stat.Blksize),
		}, nil
	case unix.S_IFBLK, unix.S_IFCHR:
		sizeBytes, sectorSizeBytes, err := getDeviceGeometry(fd)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{
			SizeBytes:       sizeBytes,
			SectorSizeBytes: sectorSizeBytes,
			IsBlockDevice:   true,
		}, nil
	default:
		return Geometry{}, status.Error(codes.InvalidArgument, "File is not a regular file or device node")
	}
}

type fileBlockDevice struct {
	fd int
}

func (bd *fileBlockDevice) ReadAt(p []byte, off int64) (int, error) {
	// Like pwrite(), pread() may return fewer bytes than requested
	// without reporting an error. Invoke it repeatedly until the
	// buffer is filled, an error occurs or the end of the storage
	// medium is reached.
	nTotal := 0
	for len(p) > 0 {
		n, err := unix.Pread(bd.fd, p, off)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nTotal, err
		}
		if n == 0 {
			return nTotal, io.EOF
		}
		nTotal += n
		p = p[n:]
		off += int64(n)
	}
	return nTotal, nil
}

func (bd *fileBlockDevice) WriteAt(p []byte, off int64) (int, error) {
	// The pwrite() system call cannot return a size and error at
	// the same time. If an error occurs after one or more bytes are
	// written, it returns the size without an error (a "short
	// write"). As WriteAt() must return an error in those cases, we
	// must invoke pwrite() repeatedly.
	nTotal := 0
	for len(p) > 0 {
		n, err := unix.Pwrite(bd.fd, p, off)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nTotal, err
		}
		if n == 0 {
			return nTotal, io.ErrShortWrite
		}
		nTotal += n
		p = p[n:]
		off += int64(n)
	}
	return nTotal, nil
}

func (bd *fileBlockDevice) Sync() error {
	if err := syncFile(bd.fd); err != nil {
		return util.StatusWrap(StatusFromIOError(err), "Failed to synchronize")
	}
	return nil
}

func (bd *fileBlockDevice) DropCache() error {
	if err := dropCache(bd.fd); err != nil {
		return util.StatusWrap(StatusFromIOError(err), "Failed to drop page cache")
	}
	return nil
}

func (bd *fileBlockDevice) Close() error {
	if err := unix.Close(bd.fd); err != nil {
		return util.StatusWrap(StatusFromIOError(err), "Failed to close file descriptor")
	}
	return nil
}
