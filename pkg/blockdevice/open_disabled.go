//go:build !darwin && !freebsd && !linux && !windows
// +build !darwin,!freebsd,!linux,!windows

package blockdevice

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Open a device node or regular file. This is not supported on this
// platform.
func Open(path string, options OpenOptions) (BlockDevice, Geometry, error) {
	return nil, Geometry{}, status.Error(codes.Unimplemented, "Raw device access is not supported on this platform")
}
