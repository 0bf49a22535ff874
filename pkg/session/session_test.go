package session_test

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/buildbarn/bb-disktest/internal/mock"
	"github.com/buildbarn/bb-disktest/pkg/blockdevice"
	"github.com/buildbarn/bb-disktest/pkg/keystream"
	"github.com/buildbarn/bb-disktest/pkg/partition"
	"github.com/buildbarn/bb-disktest/pkg/session"
	"github.com/buildbarn/bb-disktest/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.uber.org/mock/gomock"
)

var exampleSessionID = uuid.MustParse("36ebab65-3c4e-4d65-9a43-e3d9b9bd7a06")

func newMemoryOptions(bd *blockdevice.MemoryBlockDevice) session.Options {
	options := session.Options{
		DeviceName:          "memory",
		Seed:                []byte("Hello"),
		BlockSizeBytes:      4096,
		Workers:             4,
		MaximumRetries:      3,
		RetryInterval:       time.Millisecond,
		ShutdownGracePeriod: time.Minute,
		UUIDGenerator: func() (uuid.UUID, error) {
			return exampleSessionID, nil
		},
	}
	if bd != nil {
		options.Opener = blockdevice.NewSharedOpener(bd, bd.Geometry())
	}
	return options
}

// faultyBlockDevice permits injecting behavior into writes.
type faultyBlockDevice struct {
	blockdevice.BlockDevice
	onWrite func(off int64)
	closed  atomic.Bool
}

func (bd *faultyBlockDevice) WriteAt(p []byte, off int64) (int, error) {
	bd.onWrite(off)
	return bd.BlockDevice.WriteAt(p, off)
}

func (bd *faultyBlockDevice) Close() error {
	bd.closed.Store(true)
	return nil
}

func TestRunRoundTripMemory(t *testing.T) {
	// Sizes that are not a multiple of the block size cause the
	// last block to be truncated.
	const sizeBytes = 64*4096 + 1000

	var reference []byte
	for _, algorithm := range []keystream.Algorithm{keystream.AlgorithmBLAKE3, keystream.AlgorithmChaCha20} {
		for _, policy := range []partition.Policy{partition.PolicyStriped, partition.PolicyContiguous} {
			for _, workers := range []int{1, 3, 8, 100} {
				bd := blockdevice.NewMemoryBlockDevice(sizeBytes, 512)
				options := newMemoryOptions(bd)
				options.Algorithm = algorithm
				options.PartitionPolicy = policy
				options.Workers = workers

				result := session.Run(context.Background(), options)
				require.Equal(t, session.Result{
					SessionID:      exampleSessionID,
					Seed:           []byte("Hello"),
					Algorithm:      algorithm,
					BlockSizeBytes: 4096,
					StartBytes:     0,
					EndBytes:       sizeBytes,
					WritePass: &session.PassResult{
						BytesProcessed: sizeBytes,
						Duration:       result.WritePass.Duration,
					},
					VerifyPass: &session.PassResult{
						BytesProcessed: sizeBytes,
						Duration:       result.VerifyPass.Duration,
					},
					Status: session.StatusCompleted,
				}, result)

				// The data written may not depend on the
				// number of workers or the partition
				// policy.
				if algorithm == keystream.AlgorithmBLAKE3 {
					if reference == nil {
						reference = append([]byte(nil), bd.Bytes()...)
					} else {
						require.Equal(t, reference, bd.Bytes())
					}
				}
			}
		}
	}
}

func TestRunRoundTripFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	options := session.Options{
		Opener:              blockdevice.NewPathOpener(path),
		DeviceName:          path,
		Seed:                []byte("Hello"),
		LengthBytes:         256 * 1024,
		BlockSizeBytes:      16 * 1024,
		Workers:             4,
		Mode:                session.ModeWrite,
		DirectIO:            true,
		MaximumRetries:      3,
		ShutdownGracePeriod: time.Minute,
		ProgressInterval:    time.Millisecond,
	}

	t.Run("Write", func(t *testing.T) {
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusCompleted, result.Status)
		require.NoError(t, result.Failure)
		require.Equal(t, int64(256*1024), result.WritePass.BytesProcessed)
		require.Nil(t, result.VerifyPass)
	})

	t.Run("Verify", func(t *testing.T) {
		// A subsequent session using the same parameters should
		// be able to read back the data.
		verifyOptions := options
		verifyOptions.Mode = session.ModeVerify
		verifyOptions.LengthBytes = 0
		result := session.Run(context.Background(), verifyOptions)
		require.Equal(t, session.StatusCompleted, result.Status)
		require.Nil(t, result.WritePass)
		require.Equal(t, int64(256*1024), result.VerifyPass.BytesProcessed)
		require.Nil(t, result.Mismatch)
	})

	t.Run("VerifyWithOtherSeed", func(t *testing.T) {
		// Using a different seed should cause the very first
		// block to mismatch, which is reported as a possible
		// parameter mismatch.
		verifyOptions := options
		verifyOptions.Mode = session.ModeVerify
		verifyOptions.Seed = []byte("World")
		result := session.Run(context.Background(), verifyOptions)
		require.Equal(t, session.StatusCompleted, result.Status)
		require.NotNil(t, result.Mismatch)
		require.Less(t, result.Mismatch.OffsetBytes, int64(16*1024))
		require.Equal(t, int64(1), result.Mismatch.MismatchedBlocks)
		require.True(t, result.Mismatch.PossibleParameterMismatch)
	})

	t.Run("VerifyWithOtherBlockSize", func(t *testing.T) {
		// Blocks of a different size are validly encoded, but
		// are placed at different offsets.
		verifyOptions := options
		verifyOptions.Mode = session.ModeVerify
		verifyOptions.BlockSizeBytes = 8 * 1024
		verifyOptions.MismatchPolicy = session.MismatchPolicyScanAll
		result := session.Run(context.Background(), verifyOptions)
		require.Equal(t, session.StatusCompleted, result.Status)
		require.Equal(t, int64(32), result.Mismatch.MismatchedBlocks)
		require.True(t, result.Mismatch.PossibleParameterMismatch)
	})

	t.Run("VerifyBeyondEndOfFile", func(t *testing.T) {
		verifyOptions := options
		verifyOptions.Mode = session.ModeVerify
		verifyOptions.LengthBytes = 512 * 1024
		result := session.Run(context.Background(), verifyOptions)
		require.Equal(t, session.StatusFailed, result.Status)
		require.Equal(t, codes.OutOfRange, status.Code(result.Failure))
	})
}

func TestRunTailBlockPrefix(t *testing.T) {
	// A block that is truncated by the end of the range should be
	// a prefix of the full block at the same index. Data written
	// with a shorter range can then be verified as part of a
	// longer one, and the other way around.
	short := blockdevice.NewMemoryBlockDevice(3*4096, 512)
	options := newMemoryOptions(short)
	options.Mode = session.ModeWrite
	options.LengthBytes = 10240
	result := session.Run(context.Background(), options)
	require.Equal(t, session.StatusCompleted, result.Status)
	require.Equal(t, int64(10240), result.EndBytes)
	tail := append([]byte(nil), short.Bytes()[8192:10240]...)
	require.Equal(t, make([]byte, 2048), short.Bytes()[10240:])

	full := blockdevice.NewMemoryBlockDevice(3*4096, 512)
	options = newMemoryOptions(full)
	options.Mode = session.ModeWrite
	result = session.Run(context.Background(), options)
	require.Equal(t, session.StatusCompleted, result.Status)
	require.Equal(t, int64(3*4096), result.EndBytes)
	require.Equal(t, short.Bytes()[:10240], full.Bytes()[:10240])
	require.Equal(t, tail, full.Bytes()[8192:10240])

	options = newMemoryOptions(full)
	options.Mode = session.ModeVerify
	options.LengthBytes = 10240
	result = session.Run(context.Background(), options)
	require.Equal(t, session.StatusCompleted, result.Status)
	require.Nil(t, result.Mismatch)
	require.Equal(t, int64(10240), result.VerifyPass.BytesProcessed)
}

func TestRunLogsParameters(t *testing.T) {
	// The parameters needed to verify the pattern later on should
	// be logged before any data is written, so that they are not
	// lost if the process is terminated.
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	bd := blockdevice.NewMemoryBlockDevice(4*4096, 512)
	options := newMemoryOptions(bd)
	options.Mode = session.ModeWrite
	options.InvertPattern = true
	options.Algorithm = keystream.AlgorithmChaCha20
	result := session.Run(context.Background(), options)
	require.Equal(t, session.StatusCompleted, result.Status)

	firstLine, _, _ := strings.Cut(buf.String(), "\n")
	require.Contains(t, firstLine, "Session 36ebab65-3c4e-4d65-9a43-e3d9b9bd7a06: ")
	require.Contains(t, firstLine, "seed \"Hello\", algorithm CHACHA20, inverted true and block size 4096")
}

func TestRunTamperDetection(t *testing.T) {
	bd := blockdevice.NewMemoryBlockDevice(64*4096, 512)
	options := newMemoryOptions(bd)
	options.Mode = session.ModeWrite
	require.Equal(t, session.StatusCompleted, session.Run(context.Background(), options).Status)

	// Alter a single bit in the middle of a block. Only that byte
	// should be reported.
	bd.Bytes()[10*4096+123] ^= 0x04

	options.Mode = session.ModeVerify
	result := session.Run(context.Background(), options)
	require.Equal(t, session.StatusCompleted, result.Status)
	require.Equal(t, &session.Mismatch{
		OffsetBytes:      10*4096 + 123,
		LengthBytes:      1,
		MismatchedBytes:  1,
		MismatchedBlocks: 1,
	}, result.Mismatch)
}

func TestRunMismatchPolicies(t *testing.T) {
	bd := blockdevice.NewMemoryBlockDevice(64*4096, 512)
	options := newMemoryOptions(bd)
	options.Mode = session.ModeWrite
	require.Equal(t, session.StatusCompleted, session.Run(context.Background(), options).Status)

	tampered := []int{40*4096 + 7, 9*4096 + 100, 9*4096 + 200, 23 * 4096}
	for _, offset := range tampered {
		bd.Bytes()[offset] ^= 0xff
	}

	t.Run("StopOnFirst", func(t *testing.T) {
		// The reported mismatch should always be the earliest
		// one, regardless of how blocks are distributed across
		// workers.
		for _, policy := range []partition.Policy{partition.PolicyStriped, partition.PolicyContiguous} {
			for workers := 1; workers <= 16; workers++ {
				options.Mode = session.ModeVerify
				options.PartitionPolicy = policy
				options.Workers = workers
				result := session.Run(context.Background(), options)
				require.Equal(t, session.StatusCompleted, result.Status)
				require.Equal(t, &session.Mismatch{
					OffsetBytes:      9*4096 + 100,
					LengthBytes:      101,
					MismatchedBytes:  2,
					MismatchedBlocks: 1,
				}, result.Mismatch, "Policy %s, %d workers", policy, workers)
			}
		}
	})

	t.Run("ScanAll", func(t *testing.T) {
		// The extents of all mismatches should be merged.
		options.Mode = session.ModeVerify
		options.MismatchPolicy = session.MismatchPolicyScanAll
		options.Workers = 5
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusCompleted, result.Status)
		require.Equal(t, int64(64*4096), result.VerifyPass.BytesProcessed)
		require.Equal(t, &session.Mismatch{
			OffsetBytes:      9*4096 + 100,
			LengthBytes:      40*4096 + 7 - (9*4096 + 100) + 1,
			MismatchedBytes:  4,
			MismatchedBlocks: 3,
		}, result.Mismatch)
	})
}

func TestRunInvertedPattern(t *testing.T) {
	plain := blockdevice.NewMemoryBlockDevice(16*4096, 512)
	options := newMemoryOptions(plain)
	options.Mode = session.ModeWrite
	require.Equal(t, session.StatusCompleted, session.Run(context.Background(), options).Status)

	inverted := blockdevice.NewMemoryBlockDevice(16*4096, 512)
	options = newMemoryOptions(inverted)
	options.InvertPattern = true
	result := session.Run(context.Background(), options)
	require.Equal(t, session.StatusCompleted, result.Status)
	require.Nil(t, result.Mismatch)

	// Payloads should be complemented. Tags are computed over the
	// complemented payload.
	for i := 0; i < 4096-8; i++ {
		require.Equal(t, ^plain.Bytes()[i], inverted.Bytes()[i])
	}
}

func TestRunOffsetRounding(t *testing.T) {
	bd := blockdevice.NewMemoryBlockDevice(16*4096, 512)
	options := newMemoryOptions(bd)
	options.OffsetBytes = 5000
	options.LengthBytes = 8192
	result := session.Run(context.Background(), options)
	require.Equal(t, session.StatusCompleted, result.Status)
	require.Equal(t, int64(4096), result.StartBytes)
	require.Equal(t, int64(4096+8192), result.EndBytes)

	// Data outside of the range should be left untouched.
	require.Equal(t, make([]byte, 4096), bd.Bytes()[:4096])
	require.Equal(t, make([]byte, 4*4096), bd.Bytes()[12*4096:])
}

func TestRunSharedHandle(t *testing.T) {
	ctrl := gomock.NewController(t)

	// In shared handle mode, the storage medium should only be
	// opened once.
	bd := blockdevice.NewMemoryBlockDevice(64*4096, 512)
	opener := mock.NewMockOpener(ctrl)
	opener.EXPECT().Open(blockdevice.OpenOptions{
		Write:  true,
		Create: true,
	}).Return(bd, bd.Geometry(), nil)

	options := newMemoryOptions(bd)
	options.Opener = opener
	options.Workers = 8
	options.SharedHandle = true
	result := session.Run(context.Background(), options)
	require.Equal(t, session.StatusCompleted, result.Status)
	require.Equal(t, int64(64*4096), result.VerifyPass.BytesProcessed)
	require.Nil(t, result.Mismatch)
}

func TestRunAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel the session after a couple of blocks have been
	// written.
	var writes atomic.Int32
	memory := blockdevice.NewMemoryBlockDevice(256*4096, 512)
	bd := &faultyBlockDevice{
		BlockDevice: memory,
		onWrite: func(off int64) {
			if writes.Add(1) == 3 {
				cancel()
			}
		},
	}
	options := newMemoryOptions(memory)
	options.Opener = blockdevice.NewSharedOpener(bd, memory.Geometry())

	result := session.Run(ctx, options)
	require.Equal(t, session.StatusAborted, result.Status)
	testutil.RequireEqualStatus(t, status.Error(codes.Canceled, "context canceled"), result.Failure)
	require.Equal(t, 0, result.UnresponsiveWorkers)
	require.Nil(t, result.VerifyPass)

	// Every worker may complete the block it was working on.
	require.Greater(t, result.WritePass.BytesProcessed, int64(0))
	require.LessOrEqual(t, result.WritePass.BytesProcessed, int64((3+4)*4096))
}

func TestRunUnresponsiveWorker(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Let the write of the worker block until the test is done.
	memory := blockdevice.NewMemoryBlockDevice(4096, 512)
	writeStarted := make(chan struct{})
	writeRelease := make(chan struct{})
	primary := &faultyBlockDevice{BlockDevice: memory}
	workerHandle := &faultyBlockDevice{
		BlockDevice: memory,
		onWrite: func(off int64) {
			close(writeStarted)
			<-writeRelease
		},
	}
	opener := mock.NewMockOpener(ctrl)
	gomock.InOrder(
		opener.EXPECT().Open(gomock.Any()).Return(primary, memory.Geometry(), nil),
		opener.EXPECT().Open(gomock.Any()).Return(workerHandle, memory.Geometry(), nil))

	// The grace period should start when the session is canceled.
	clock := mock.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(time.Unix(1000, 0)).AnyTimes()
	timer := mock.NewMockTimer(ctrl)
	timerChan := make(chan time.Time, 1)
	clock.EXPECT().NewTimer(30*time.Second).DoAndReturn(func(d time.Duration) (*mock.MockTimer, <-chan time.Time) {
		timerChan <- time.Unix(1030, 0)
		return timer, timerChan
	})
	timer.EXPECT().Stop().Return(false)

	options := newMemoryOptions(memory)
	options.Opener = opener
	options.Workers = 1
	options.Clock = clock
	options.ShutdownGracePeriod = 30 * time.Second

	go func() {
		<-writeStarted
		cancel()
	}()
	result := session.Run(ctx, options)
	require.Equal(t, session.StatusAborted, result.Status)
	require.Equal(t, 1, result.UnresponsiveWorkers)
	require.Equal(t, &session.PassResult{}, result.WritePass)

	// The handle of the unresponsive worker may still be in use,
	// so it should not have been closed.
	require.True(t, primary.closed.Load())
	require.False(t, workerHandle.closed.Load())
	close(writeRelease)
}

func TestRunRetries(t *testing.T) {
	ctrl := gomock.NewController(t)

	geometry := blockdevice.Geometry{
		SizeBytes:       4096,
		SectorSizeBytes: 512,
		IsBlockDevice:   true,
	}

	t.Run("Recovery", func(t *testing.T) {
		// Short writes should be retried at the same offset.
		bd := mock.NewMockBlockDevice(ctrl)
		opener := mock.NewMockOpener(ctrl)
		opener.EXPECT().Open(gomock.Any()).Return(bd, geometry, nil).Times(2)
		gomock.InOrder(
			bd.EXPECT().WriteAt(gomock.Len(4096), int64(0)).Return(1000, nil).Times(2),
			bd.EXPECT().WriteAt(gomock.Len(4096), int64(0)).Return(4096, nil))
		bd.EXPECT().Sync().Return(nil).Times(2)
		bd.EXPECT().Close().Return(nil).Times(2)

		options := newMemoryOptions(nil)
		options.Opener = opener
		options.Workers = 1
		options.Mode = session.ModeWrite
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusCompleted, result.Status)
		require.Equal(t, int64(4096), result.WritePass.BytesProcessed)
	})

	t.Run("Exhausted", func(t *testing.T) {
		// Once the maximum number of retries is exceeded, the
		// storage medium should be considered gone.
		bd := mock.NewMockBlockDevice(ctrl)
		opener := mock.NewMockOpener(ctrl)
		opener.EXPECT().Open(gomock.Any()).Return(bd, geometry, nil).Times(2)
		bd.EXPECT().WriteAt(gomock.Len(4096), int64(0)).Return(1000, nil).Times(4)
		bd.EXPECT().Close().Return(nil).Times(2)
		errorLogger := mock.NewMockErrorLogger(ctrl)
		errorLogger.EXPECT().Log(gomock.Any())

		options := newMemoryOptions(nil)
		options.Opener = opener
		options.Workers = 1
		options.Mode = session.ModeWrite
		options.ErrorLogger = errorLogger
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusFailed, result.Status)
		testutil.RequireEqualStatus(
			t,
			status.Error(codes.DataLoss, "Worker 0 failed to write block at offset 0: Storage medium did not recover after 4 attempts: Short write of 1000 out of 4096 bytes at offset 0: short write"),
			result.Failure)
		require.Equal(t, int64(0), result.WritePass.BytesProcessed)
	})

	t.Run("NoSpace", func(t *testing.T) {
		// Running out of space is not transient, so it should
		// not be retried. It marks the end of the storage
		// medium instead of causing the session to fail.
		bd := mock.NewMockBlockDevice(ctrl)
		opener := mock.NewMockOpener(ctrl)
		opener.EXPECT().Open(gomock.Any()).Return(bd, geometry, nil).Times(2)
		bd.EXPECT().WriteAt(gomock.Len(4096), int64(0)).Return(0, status.Error(codes.ResourceExhausted, "No space left on device"))
		bd.EXPECT().Sync().Return(nil).Times(2)
		bd.EXPECT().Close().Return(nil).Times(2)

		options := newMemoryOptions(nil)
		options.Opener = opener
		options.Workers = 1
		options.ErrorLogger = mock.NewMockErrorLogger(ctrl)
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusCompleted, result.Status)
		require.NoError(t, result.Failure)
		require.Equal(t, int64(0), result.EndBytes)
		require.Equal(t, int64(0), result.WritePass.BytesProcessed)
		require.Equal(t, int64(0), result.VerifyPass.BytesProcessed)
		require.Nil(t, result.Mismatch)
	})
}

func TestRunUntilFull(t *testing.T) {
	// Regular files grow when written to. Without an explicit
	// length, writing should continue until the file system runs
	// out of space, after which only the data that was written is
	// verified.
	for _, policy := range []partition.Policy{partition.PolicyStriped, partition.PolicyContiguous} {
		bd := blockdevice.NewMemoryBlockDevice(10*4096, 512)
		options := newMemoryOptions(bd)
		options.Opener = blockdevice.NewSharedOpener(bd, blockdevice.Geometry{
			SizeBytes:       0,
			SectorSizeBytes: 512,
		})
		options.Workers = 3
		options.PartitionPolicy = policy
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusCompleted, result.Status)
		require.NoError(t, result.Failure)
		require.Equal(t, int64(0), result.StartBytes)
		require.Equal(t, int64(10*4096), result.EndBytes)
		require.Equal(t, int64(10*4096), result.WritePass.BytesProcessed)
		require.Equal(t, int64(10*4096), result.VerifyPass.BytesProcessed)
		require.Nil(t, result.Mismatch)
	}

	t.Run("PartialTail", func(t *testing.T) {
		// A block that could only be written partially is
		// not verified.
		bd := blockdevice.NewMemoryBlockDevice(10*4096+1000, 512)
		options := newMemoryOptions(bd)
		options.Opener = blockdevice.NewSharedOpener(bd, blockdevice.Geometry{
			SizeBytes:       0,
			SectorSizeBytes: 512,
		})
		options.Workers = 2
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusCompleted, result.Status)
		require.Equal(t, int64(10*4096), result.EndBytes)
		require.Equal(t, int64(10*4096), result.VerifyPass.BytesProcessed)
		require.Nil(t, result.Mismatch)
	})

	t.Run("VerifyUsesFileSize", func(t *testing.T) {
		// Reading never extends a regular file, so verification
		// stops at its current size.
		bd := blockdevice.NewMemoryBlockDevice(4*4096, 512)
		result := session.Run(context.Background(), newMemoryOptions(bd))
		require.Equal(t, session.StatusCompleted, result.Status)

		options := newMemoryOptions(bd)
		options.Opener = blockdevice.NewSharedOpener(bd, blockdevice.Geometry{
			SizeBytes:       4 * 4096,
			SectorSizeBytes: 512,
		})
		options.Mode = session.ModeVerify
		result = session.Run(context.Background(), options)
		require.Equal(t, session.StatusCompleted, result.Status)
		require.Equal(t, int64(4*4096), result.EndBytes)
		require.Nil(t, result.Mismatch)
	})
}

func TestRunAlignment(t *testing.T) {
	ctrl := gomock.NewController(t)

	geometry := blockdevice.Geometry{
		SizeBytes:       1 << 20,
		SectorSizeBytes: 4096,
		IsBlockDevice:   true,
		DirectIO:        true,
	}

	t.Run("BlockSize", func(t *testing.T) {
		// Blocks smaller than the sector size cannot be
		// written using direct I/O. No I/O may take place.
		bd := mock.NewMockBlockDevice(ctrl)
		opener := mock.NewMockOpener(ctrl)
		opener.EXPECT().Open(blockdevice.OpenOptions{
			Write:    true,
			DirectIO: true,
			Create:   true,
		}).Return(bd, geometry, nil)
		bd.EXPECT().Close()

		options := newMemoryOptions(nil)
		options.Opener = opener
		options.BlockSizeBytes = 512
		options.DirectIO = true
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusFailed, result.Status)
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Invalid block size: Block size 512 is not a multiple of the sector size 4096"), result.Failure)
		require.Nil(t, result.WritePass)
	})

	t.Run("RangeEnd", func(t *testing.T) {
		bd := mock.NewMockBlockDevice(ctrl)
		opener := mock.NewMockOpener(ctrl)
		opener.EXPECT().Open(gomock.Any()).Return(bd, geometry, nil)
		bd.EXPECT().Close()

		options := newMemoryOptions(nil)
		options.Opener = opener
		options.LengthBytes = 10000
		options.DirectIO = true
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusFailed, result.Status)
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "End of range 10000 is not a multiple of the sector size 4096"), result.Failure)
	})

	t.Run("TrailingPartialSector", func(t *testing.T) {
		// When verifying a regular file whose size is not a
		// multiple of the sector size, the trailing partial
		// sector cannot be read using direct I/O. The end of
		// the range is rounded down instead.
		bd := blockdevice.NewMemoryBlockDevice(3*4096+100, 512)
		options := newMemoryOptions(bd)
		options.Mode = session.ModeWrite
		options.LengthBytes = 3 * 4096
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusCompleted, result.Status)

		options = newMemoryOptions(bd)
		options.Opener = blockdevice.NewSharedOpener(bd, blockdevice.Geometry{
			SizeBytes:       3*4096 + 100,
			SectorSizeBytes: 4096,
			DirectIO:        true,
		})
		options.Mode = session.ModeVerify
		options.DirectIO = true
		result = session.Run(context.Background(), options)
		require.Equal(t, session.StatusCompleted, result.Status)
		require.Equal(t, int64(3*4096), result.EndBytes)
		require.Equal(t, int64(3*4096), result.VerifyPass.BytesProcessed)
		require.Nil(t, result.Mismatch)
	})

	t.Run("DefaultBlockSize", func(t *testing.T) {
		// Without an explicit block size, 1 MiB blocks should
		// be used.
		bd := blockdevice.NewMemoryBlockDevice(3<<20, 4096)
		options := newMemoryOptions(bd)
		options.BlockSizeBytes = 0
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusCompleted, result.Status)
		require.Equal(t, 1<<20, result.BlockSizeBytes)
	})
}

func TestRunConfigurationErrors(t *testing.T) {
	ctrl := gomock.NewController(t)

	for name, testCase := range map[string]struct {
		modify func(options *session.Options)
		err    error
	}{
		"EmptySeed": {
			modify: func(options *session.Options) { options.Seed = nil },
			err:    status.Error(codes.InvalidArgument, "Invalid seed: Seed is empty"),
		},
		"ZeroWorkers": {
			modify: func(options *session.Options) { options.Workers = 0 },
			err:    status.Error(codes.InvalidArgument, "Invalid worker count: Worker count must be positive, not 0"),
		},
		"BlockSizeNotPowerOfTwo": {
			modify: func(options *session.Options) { options.BlockSizeBytes = 1000 },
			err:    status.Error(codes.InvalidArgument, "Invalid block size: Block size 1000 is not a power of two"),
		},
		"BlockSizeTooSmall": {
			modify: func(options *session.Options) { options.BlockSizeBytes = 4 },
			err:    status.Error(codes.InvalidArgument, "Invalid block size: Block size 4 is not in range [8, 1073741824]"),
		},
		"NegativeOffset": {
			modify: func(options *session.Options) { options.OffsetBytes = -1 },
			err:    status.Error(codes.InvalidArgument, "Invalid offset: Offset -1 is negative"),
		},
	} {
		t.Run(name, func(t *testing.T) {
			// The storage medium may not be opened if the
			// configuration is invalid.
			options := newMemoryOptions(nil)
			options.Opener = mock.NewMockOpener(ctrl)
			testCase.modify(&options)
			result := session.Run(context.Background(), options)
			require.Equal(t, session.StatusFailed, result.Status)
			testutil.RequireEqualStatus(t, testCase.err, result.Failure)
			require.Nil(t, result.WritePass)
		})
	}

	t.Run("RangeExceedsDevice", func(t *testing.T) {
		bd := blockdevice.NewMemoryBlockDevice(16*4096, 512)
		options := newMemoryOptions(bd)
		options.LengthBytes = 32 * 4096
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusFailed, result.Status)
		testutil.RequireEqualStatus(t, status.Error(codes.OutOfRange, "Range [0, 131072) exceeds the size of \"memory\", which is 65536 bytes"), result.Failure)
		require.Equal(t, make([]byte, 16*4096), bd.Bytes())
	})

	t.Run("OpenFailure", func(t *testing.T) {
		opener := mock.NewMockOpener(ctrl)
		opener.EXPECT().Open(gomock.Any()).Return(nil, blockdevice.Geometry{}, status.Error(codes.PermissionDenied, "Permission denied"))

		options := newMemoryOptions(nil)
		options.Opener = opener
		result := session.Run(context.Background(), options)
		require.Equal(t, session.StatusFailed, result.Status)
		testutil.RequireEqualStatus(t, status.Error(codes.PermissionDenied, "Failed to open \"memory\": Permission denied"), result.Failure)
	})
}
