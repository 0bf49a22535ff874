//go:build windows
// +build windows

package blockdevice

import (
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/buildbarn/bb-disktest/pkg/util"

	"golang.org/x/sys/windows"
)

// Values of ioctls declared in <winioctl.h>.
const (
	ioctlDiskGetDriveGeometry = 0x70000
	ioctlDiskGetLengthInfo    = 0x7405c
)

var (
	kernel32          = windows.NewLazySystemDLL("kernel32.dll")
	getDiskFreeSpaceW = kernel32.NewProc("GetDiskFreeSpaceW")
)

// DISK_GEOMETRY.
type diskGeometry struct {
	Cylinders         int64
	MediaType         uint32
	TracksPerCylinder uint32
	SectorsPerTrack   uint32
	BytesPerSector    uint32
}

// Open a physical drive (e.g., \\.\PhysicalDrive1) or regular file, so
// that it can be accessed as a BlockDevice. The geometry of the storage
// medium is returned as well.
func Open(path string, options OpenOptions) (BlockDevice, Geometry, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, Geometry{}, util.StatusWrapf(err, "Failed to convert path %#v to UTF-16", path)
	}

	var access uint32 = windows.GENERIC_READ
	if options.Write {
		access |= windows.GENERIC_WRITE
	}
	var createmode uint32 = windows.OPEN_EXISTING
	if options.Create {
		createmode = windows.OPEN_ALWAYS
	}
	var attributes uint32 = windows.FILE_ATTRIBUTE_NORMAL
	if options.DirectIO {
		attributes |= windows.FILE_FLAG_NO_BUFFERING | windows.FILE_FLAG_WRITE_THROUGH
	}
	handle, err := windows.CreateFile(
		pathPtr,
		access,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		createmode,
		attributes,
		0)
	if err != nil {
		return nil, Geometry{}, util.StatusWrapf(StatusFromIOError(err), "Failed to open %#v", path)
	}

	geometry, err := getGeometry(path, handle)
	if err != nil {
		windows.CloseHandle(handle)
		return nil, Geometry{}, util.StatusWrapf(err, "Failed to obtain geometry of %#v", path)
	}
	geometry.DirectIO = options.DirectIO

	// os.File implements ReadAt() and WriteAt() using overlapped
	// I/O, which does not modify the file pointer.
	return os.NewFile(uintptr(handle), path), geometry, nil
}

func getGeometry(path string, handle windows.Handle) (Geometry, error) {
	var bytesReturned uint32
	if strings.HasPrefix(path, `\\.\`) {
		var sizeBytes int64
		if err := windows.DeviceIoControl(
			handle,
			ioctlDiskGetLengthInfo,
			/*inBuffer=*/ nil,
			/*inBufferSize=*/ 0,
			(*byte)(unsafe.Pointer(&sizeBytes)),
			uint32(unsafe.Sizeof(sizeBytes)),
			&bytesReturned,
			/*overlapped=*/ nil,
		); err != nil {
			return Geometry{}, util.StatusWrap(StatusFromIOError(err), "Failed to obtain device size")
		}
		var geometry diskGeometry
		if err := windows.DeviceIoControl(
			handle,
			ioctlDiskGetDriveGeometry,
			/*inBuffer=*/ nil,
			/*inBufferSize=*/ 0,
			(*byte)(unsafe.Pointer(&geometry)),
			uint32(unsafe.Sizeof(geometry)),
			&bytesReturned,
			/*overlapped=*/ nil,
		); err != nil {
			return Geometry{}, util.StatusWrap(StatusFromIOError(err), "Failed to obtain drive geometry")
		}
		return Geometry{
			SizeBytes:       sizeBytes,
			SectorSizeBytes: int(geometry.BytesPerSector),
			IsBlockDevice:   true,
		}, nil
	}

	var fileInfo windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(handle, &fileInfo); err != nil {
		return Geometry{}, util.StatusWrap(StatusFromIOError(err), "Failed to get file information")
	}

	// Get the sector size from the volume on which the file is
	// located, including the trailing backslash (see
	// GetDiskFreeSpaceW).
	absolutePath, err := filepath.Abs(path)
	if err != nil {
		return Geometry{}, util.StatusWrap(err, "Failed to get absolute path")
	}
	rootPathPtr, err := windows.UTF16PtrFromString(filepath.VolumeName(absolutePath) + `\`)
	if err != nil {
		return Geometry{}, util.StatusWrap(err, "Failed to convert root path to UTF-16")
	}
	var bytesPerSector uint32
	r, _, err := getDiskFreeSpaceW.Call(
		uintptr(unsafe.Pointer(rootPathPtr)),
		/*sectorsPerCluster=*/ 0,
		uintptr(unsafe.Pointer(&bytesPerSector)),
		/*numberOfFreeClusters=*/ 0,
		/*totalNumberOfClusters=*/ 0)
	if r == 0 {
		return Geometry{}, util.StatusWrap(err, "Failed to get disk sector size")
	}
	return Geometry{
		SizeBytes:       int64(fileInfo.FileSizeHigh)<<32 | int64(fileInfo.FileSizeLow),
		SectorSizeBytes: int(bytesPerSector),
	}, nil
}
