package session

import (
	"time"

	"github.com/buildbarn/bb-disktest/pkg/keystream"
	"github.com/google/uuid"
)

// Status of a session that has finished.
type Status int

const (
	// StatusCompleted indicates that all blocks in the range were
	// processed, or that verification stopped at the first
	// mismatch. Whether the data was intact is reported through
	// Result.Mismatch.
	StatusCompleted Status = iota
	// StatusAborted indicates that the session was canceled before
	// all blocks were processed.
	StatusAborted
	// StatusFailed indicates that the session was misconfigured, or
	// that I/O against the storage medium failed.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "COMPLETED"
	case StatusAborted:
		return "ABORTED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// PassResult contains statistics of a single pass over the range.
type PassResult struct {
	// Number of bytes whose I/O fully completed.
	BytesProcessed int64
	Duration       time.Duration
}

// Mismatch describes data read back from the storage medium that
// differs from what was written.
type Mismatch struct {
	// Absolute offset of the first byte that differs.
	OffsetBytes int64
	// Number of bytes starting at OffsetBytes, up to and including
	// the last byte that was found to differ.
	LengthBytes int64
	// Number of bytes and blocks that differ.
	MismatchedBytes  int64
	MismatchedBlocks int64
	// Set when the earliest mismatch is at the start of the range,
	// or when the mismatching data is a validly encoded block.
	// Both are typical for data that was written using a
	// different seed, algorithm or block size, as opposed to data
	// that got corrupted.
	PossibleParameterMismatch bool
}

func (m *Mismatch) endBytes() int64 {
	return m.OffsetBytes + m.LengthBytes
}

// merge another mismatch into the current one. As workers process
// disjoint blocks, the mismatches they report never overlap.
func (m *Mismatch) merge(other *Mismatch) {
	end := max(m.endBytes(), other.endBytes())
	if other.OffsetBytes < m.OffsetBytes {
		m.OffsetBytes = other.OffsetBytes
		m.PossibleParameterMismatch = other.PossibleParameterMismatch
	}
	m.LengthBytes = end - m.OffsetBytes
	m.MismatchedBytes += other.MismatchedBytes
	m.MismatchedBlocks += other.MismatchedBlocks
}

// Result of a session. Results are never modified after being returned.
type Result struct {
	SessionID uuid.UUID

	// Parameters that need to be provided to subsequent sessions
	// to verify the data that was written.
	Seed           []byte
	Algorithm      keystream.Algorithm
	InvertPattern  bool
	BlockSizeBytes int

	// Range of the storage medium that was processed.
	StartBytes int64
	EndBytes   int64

	// Statistics of the passes that were started. These are nil
	// if the pass did not start.
	WritePass  *PassResult
	VerifyPass *PassResult

	Status Status
	// Reason the session was aborted or failed.
	Failure error
	// Number of workers that did not finish their current block
	// within the shutdown grace period after cancellation.
	UnresponsiveWorkers int

	// Data that was read back and differs from the data that was
	// expected. Nil if all data that was verified matched.
	Mismatch *Mismatch
}
