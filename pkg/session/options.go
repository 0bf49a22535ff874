package session

import (
	"time"

	"github.com/buildbarn/bb-disktest/pkg/blockcodec"
	"github.com/buildbarn/bb-disktest/pkg/blockdevice"
	"github.com/buildbarn/bb-disktest/pkg/clock"
	"github.com/buildbarn/bb-disktest/pkg/keystream"
	"github.com/buildbarn/bb-disktest/pkg/partition"
	"github.com/buildbarn/bb-disktest/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// MaximumBlockSizeBytes is the largest block size that may be
	// used. Every worker allocates two buffers of this size.
	MaximumBlockSizeBytes = 1 << 30

	// defaultMinimumBlockSizeBytes is the block size that is used
	// if none is configured, unless the sector size of the storage
	// medium is larger.
	defaultMinimumBlockSizeBytes = 1 << 20
	defaultRetryInterval         = 100 * time.Millisecond
)

// Options of a session. All options are fixed at the start of the
// session.
type Options struct {
	// Opener of handles to the storage medium. One handle is opened
	// for every worker, unless SharedHandle is set.
	Opener blockdevice.Opener
	// Name of the storage medium, used in log messages and as the
	// label of metrics.
	DeviceName string

	// Parameters that determine the contents of the pattern.
	// Sessions that verify data need to use the same values as the
	// session that wrote it.
	Seed          []byte
	Algorithm     keystream.Algorithm
	InvertPattern bool

	// The range of the storage medium to process. The offset is
	// rounded down to a multiple of the block size. A length of
	// zero causes the range to end at the end of the storage
	// medium.
	OffsetBytes int64
	LengthBytes int64
	// Size of the blocks that are written and read. A block size
	// of zero causes a block size of 1 MiB or the sector size of
	// the storage medium to be used, whichever is larger.
	BlockSizeBytes int

	Workers         int
	Mode            Mode
	MismatchPolicy  MismatchPolicy
	PartitionPolicy partition.Policy

	// Whether to bypass the page cache.
	DirectIO bool
	// Let all workers share a single handle to the storage medium,
	// serializing their operations.
	SharedHandle bool

	// Number of times I/O that failed due to transient errors is
	// retried at the same offset, and the initial delay between
	// attempts.
	MaximumRetries int
	RetryInterval  time.Duration

	// Amount of time to wait for workers to finish their current
	// block after the session is canceled.
	ShutdownGracePeriod time.Duration
	// Interval at which progress is logged. Zero disables progress
	// logging.
	ProgressInterval time.Duration

	Clock         clock.Clock
	UUIDGenerator util.UUIDGenerator
	ErrorLogger   util.ErrorLogger
}

func (o *Options) validate() error {
	if o.Opener == nil {
		return status.Error(codes.InvalidArgument, "No storage medium provided")
	}
	if o.OffsetBytes < 0 {
		return status.Errorf(codes.InvalidArgument, "Invalid offset: Offset %d is negative", o.OffsetBytes)
	}
	if o.LengthBytes < 0 {
		return status.Errorf(codes.InvalidArgument, "Invalid length: Length %d is negative", o.LengthBytes)
	}
	if o.BlockSizeBytes != 0 {
		if err := validateBlockSize(o.BlockSizeBytes); err != nil {
			return err
		}
	}
	if o.Workers <= 0 {
		return status.Errorf(codes.InvalidArgument, "Invalid worker count: Worker count must be positive, not %d", o.Workers)
	}
	if _, ok := modeNames[o.Mode]; !ok {
		return status.Errorf(codes.InvalidArgument, "Unknown mode %d", o.Mode)
	}
	if _, ok := mismatchPolicyNames[o.MismatchPolicy]; !ok {
		return status.Errorf(codes.InvalidArgument, "Unknown mismatch policy %d", o.MismatchPolicy)
	}
	if o.PartitionPolicy.String() == "UNKNOWN" {
		return status.Errorf(codes.InvalidArgument, "Unknown partition policy %d", o.PartitionPolicy)
	}
	if o.MaximumRetries < 0 {
		return status.Errorf(codes.InvalidArgument, "Invalid maximum retries: Value %d is negative", o.MaximumRetries)
	}
	return nil
}

func validateBlockSize(blockSizeBytes int) error {
	if blockSizeBytes < blockcodec.TagSizeBytes || blockSizeBytes > MaximumBlockSizeBytes {
		return status.Errorf(codes.InvalidArgument, "Invalid block size: Block size %d is not in range [%d, %d]", blockSizeBytes, blockcodec.TagSizeBytes, MaximumBlockSizeBytes)
	}
	if blockSizeBytes&(blockSizeBytes-1) != 0 {
		return status.Errorf(codes.InvalidArgument, "Invalid block size: Block size %d is not a power of two", blockSizeBytes)
	}
	return nil
}
