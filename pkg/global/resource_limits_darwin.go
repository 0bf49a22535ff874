//go:build darwin

package global

import (
	"golang.org/x/sys/unix"
)

var resourceLimitNames = map[string]int{
	"AS":      unix.RLIMIT_AS,
	"FSIZE":   unix.RLIMIT_FSIZE,
	"MEMLOCK": unix.RLIMIT_MEMLOCK,
	"NOFILE":  unix.RLIMIT_NOFILE,
	"NPROC":   unix.RLIMIT_NPROC,
}

type resourceLimitValueType = uint64
