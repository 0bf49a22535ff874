package session

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Mode of operation of a session.
type Mode int

const (
	// ModeWriteVerify writes the pattern to the range, flushes it
	// to the storage medium and reads it back.
	ModeWriteVerify Mode = iota
	// ModeWrite only writes the pattern to the range.
	ModeWrite
	// ModeVerify only reads back a pattern written by a previous
	// session, which must have used the same seed, algorithm and
	// block size.
	ModeVerify
)

var modeNames = map[Mode]string{
	ModeWriteVerify: "WRITE_VERIFY",
	ModeWrite:       "WRITE",
	ModeVerify:      "VERIFY",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

func (m Mode) writes() bool {
	return m == ModeWrite || m == ModeWriteVerify
}

func (m Mode) verifies() bool {
	return m == ModeVerify || m == ModeWriteVerify
}

// ParseMode converts the name of a mode, as used in configuration
// files, to its enumeration value. The empty string yields
// ModeWriteVerify.
func ParseMode(name string) (Mode, error) {
	if name == "" {
		return ModeWriteVerify, nil
	}
	for mode, modeName := range modeNames {
		if strings.EqualFold(name, modeName) {
			return mode, nil
		}
	}
	return 0, status.Errorf(codes.InvalidArgument, "Unknown mode %#v", name)
}

// MismatchPolicy determines how verification proceeds after a block is
// found whose contents differ from what was expected.
type MismatchPolicy int

const (
	// MismatchPolicyStopOnFirst stops verification once the
	// earliest mismatching block in the range has been found.
	// Blocks preceding it are always verified, meaning the
	// reported offset does not depend on scheduling.
	MismatchPolicyStopOnFirst MismatchPolicy = iota
	// MismatchPolicyScanAll verifies every block in the range,
	// reporting the extent of all mismatching data.
	MismatchPolicyScanAll
)

var mismatchPolicyNames = map[MismatchPolicy]string{
	MismatchPolicyStopOnFirst: "STOP_ON_FIRST",
	MismatchPolicyScanAll:     "SCAN_ALL",
}

func (p MismatchPolicy) String() string {
	if name, ok := mismatchPolicyNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseMismatchPolicy converts the name of a mismatch policy, as used
// in configuration files, to its enumeration value. The empty string
// yields MismatchPolicyStopOnFirst.
func ParseMismatchPolicy(name string) (MismatchPolicy, error) {
	if name == "" {
		return MismatchPolicyStopOnFirst, nil
	}
	for policy, policyName := range mismatchPolicyNames {
		if strings.EqualFold(name, policyName) {
			return policy, nil
		}
	}
	return 0, status.Errorf(codes.InvalidArgument, "Unknown mismatch policy %#v", name)
}
