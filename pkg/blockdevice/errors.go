package blockdevice

import (
	"errors"
	"io"
	"io/fs"
	"syscall"

	"github.com/buildbarn/bb-disktest/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusFromIOError converts an error returned by the operating system
// to a gRPC status. The status code reflects how the error should be
// treated:
//
//   - UNAVAILABLE: transient failures that may succeed when retried.
//   - DATA_LOSS: the storage medium disappeared.
//   - RESOURCE_EXHAUSTED: there is no space left to write to.
//   - INVALID_ARGUMENT: I/O was not aligned to the sector size.
//
// Errors that are already gRPC statuses are returned as is.
func StatusFromIOError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, fs.ErrNotExist):
		code = codes.NotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EROFS):
		code = codes.PermissionDenied
	case errors.Is(err, syscall.EINVAL):
		code = codes.InvalidArgument
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EFBIG):
		code = codes.ResourceExhausted
	case errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO):
		code = codes.DataLoss
	case errors.Is(err, syscall.EIO), errors.Is(err, syscall.EINTR), errors.Is(err, syscall.EAGAIN), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF), errors.Is(err, io.ErrShortWrite):
		code = codes.Unavailable
	default:
		code = codes.Unknown
	}
	return status.Error(code, err.Error())
}

// IsRetryable returns whether an error returned by ReadBlock() or
// WriteBlock() may not reoccur if the operation is retried at the same
// offset.
func IsRetryable(err error) bool {
	return status.Code(err) == codes.Unavailable
}

// ReadBlock reads exactly len(p) bytes from a BlockDevice at a given
// offset. Reads that return fewer bytes are reported as UNAVAILABLE,
// so that they may be retried.
func ReadBlock(bd BlockDevice, p []byte, off int64) error {
	n, err := bd.ReadAt(p, off)
	if n == len(p) {
		// io.ReaderAt permits returning io.EOF when the read
		// ends at the end of the storage medium.
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return util.StatusWrapf(StatusFromIOError(err), "Short read of %d out of %d bytes at offset %d", n, len(p), off)
}

// WriteBlock writes exactly len(p) bytes to a BlockDevice at a given
// offset. Writes that store fewer bytes are reported as UNAVAILABLE,
// so that they may be retried.
func WriteBlock(bd BlockDevice, p []byte, off int64) error {
	n, err := bd.WriteAt(p, off)
	if err == nil && n == len(p) {
		return nil
	}
	if err == nil {
		err = io.ErrShortWrite
	}
	return util.StatusWrapf(StatusFromIOError(err), "Short write of %d out of %d bytes at offset %d", n, len(p), off)
}
