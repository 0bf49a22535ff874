package session

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/buildbarn/bb-disktest/pkg/blockcodec"
	"github.com/buildbarn/bb-disktest/pkg/blockdevice"
	"github.com/buildbarn/bb-disktest/pkg/keystream"
	"github.com/buildbarn/bb-disktest/pkg/partition"
	"github.com/buildbarn/bb-disktest/pkg/util"
	"github.com/cenkalti/backoff/v4"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type pass int

const (
	passWrite pass = iota
	passVerify
)

func (p pass) String() string {
	if p == passWrite {
		return "Write"
	}
	return "Verify"
}

// passState is shared by all workers participating in a single pass.
type passState struct {
	bytesProcessed atomic.Int64
	// Blocks with an index above this value no longer need to be
	// verified, as a mismatch has already been found in an
	// earlier block.
	stopBlockIndex atomic.Uint64
	// Offset at which writes failed due to the storage medium
	// being full. Blocks at or above it are not written.
	endOfMediumBytes atomic.Int64
	// End of the highest block written so far.
	writtenEndBytes atomic.Int64
}

func newPassState() *passState {
	var ps passState
	ps.stopBlockIndex.Store(^uint64(0))
	ps.endOfMediumBytes.Store(math.MaxInt64)
	return &ps
}

func (ps *passState) lowerEndOfMediumBytes(offset int64) {
	for {
		current := ps.endOfMediumBytes.Load()
		if offset >= current || ps.endOfMediumBytes.CompareAndSwap(current, offset) {
			return
		}
	}
}

func (ps *passState) raiseWrittenEndBytes(end int64) {
	for {
		current := ps.writtenEndBytes.Load()
		if end <= current || ps.writtenEndBytes.CompareAndSwap(current, end) {
			return
		}
	}
}

func (ps *passState) lowerStopBlockIndex(index uint64) {
	for {
		current := ps.stopBlockIndex.Load()
		if index >= current || ps.stopBlockIndex.CompareAndSwap(current, index) {
			return
		}
	}
}

// tally is handed back by a worker to the session exactly once per
// pass.
type tally struct {
	worker   int
	mismatch *Mismatch
	err      error
}

// worker processes the blocks of a single assignment. Workers reuse
// their buffers across blocks and passes, so that no allocations take
// place while processing.
type worker struct {
	assignment     partition.Assignment
	blockDevice    blockdevice.BlockDevice
	generator      keystream.Generator
	blockSizeBytes int64
	startBytes     int64
	endBytes       int64
	mismatchPolicy MismatchPolicy
	maximumRetries int
	retryInterval  time.Duration
	metrics        *sessionMetrics

	expected []byte
	read     []byte
}

func (w *worker) run(ctx context.Context, p pass, ps *passState) tally {
	t := tally{worker: w.assignment.Worker}
	for index := range w.assignment.Indices() {
		// Cancellation is only observed between blocks, so that
		// no I/O is interrupted halfway.
		if ctx.Err() != nil {
			break
		}
		if p == passVerify && w.mismatchPolicy == MismatchPolicyStopOnFirst && index > ps.stopBlockIndex.Load() {
			break
		}
		offset := int64(index) * w.blockSizeBytes
		if offset >= w.endBytes || (p == passWrite && offset >= ps.endOfMediumBytes.Load()) {
			break
		}

		// A truncated tail block is a prefix of the full block,
		// so that its contents don't depend on where the range
		// ends.
		w.generator.BlockAt(index, w.expected)
		blockcodec.Encode(w.expected)
		size := min(w.blockSizeBytes, w.endBytes-offset)
		expected := w.expected[:size]

		switch p {
		case passWrite:
			if err := w.retry(ctx, func() error {
				return blockdevice.WriteBlock(w.blockDevice, expected, offset)
			}); err != nil {
				if status.Code(err) == codes.ResourceExhausted {
					// The storage medium is full.
					// Writing stops here, and the
					// range is truncated.
					ps.lowerEndOfMediumBytes(offset)
					return t
				}
				if ctx.Err() == nil {
					t.err = util.StatusWrapf(err, "Worker %d failed to write block at offset %d", w.assignment.Worker, offset)
				}
				return t
			}
			w.metrics.blocksWritten.Inc()
			ps.raiseWrittenEndBytes(offset + size)
		case passVerify:
			read := w.read[:size]
			if err := w.retry(ctx, func() error {
				return blockdevice.ReadBlock(w.blockDevice, read, offset)
			}); err != nil {
				if ctx.Err() == nil {
					t.err = util.StatusWrapf(err, "Worker %d failed to read block at offset %d", w.assignment.Worker, offset)
				}
				return t
			}
			w.metrics.blocksVerified.Inc()
			if c := blockcodec.Compare(read, expected); !c.Match {
				w.metrics.blocksMismatched.Inc()
				m := &Mismatch{
					OffsetBytes:      offset + int64(c.FirstMismatch),
					LengthBytes:      int64(c.LastMismatch - c.FirstMismatch + 1),
					MismatchedBytes:  int64(c.MismatchedBytes),
					MismatchedBlocks: 1,
					PossibleParameterMismatch: offset == w.startBytes ||
						(c.TagMismatch && len(read) >= blockcodec.TagSizeBytes && blockcodec.VerifyTag(read)),
				}
				if t.mismatch == nil {
					t.mismatch = m
				} else {
					t.mismatch.merge(m)
				}
				if w.mismatchPolicy == MismatchPolicyStopOnFirst {
					ps.lowerStopBlockIndex(index)
				}
			}
		}

		ps.bytesProcessed.Add(size)
	}
	return t
}

// retry an operation against the storage medium at the same offset,
// as long as it fails with errors that are transient. Once the maximum
// number of retries is exceeded, the storage medium is considered to
// be gone.
func (w *worker) retry(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.retryInterval
	b.MaxElapsedTime = 0
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		if attempts > 1 {
			w.metrics.retries.Inc()
		}
		err := operation()
		if err != nil && !blockdevice.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.maximumRetries)), ctx))
	if err != nil && blockdevice.IsRetryable(err) {
		w.metrics.retriesExhausted.Inc()
		return util.StatusWrapfWithCode(err, codes.DataLoss, "Storage medium did not recover after %d attempts", attempts)
	}
	return err
}
