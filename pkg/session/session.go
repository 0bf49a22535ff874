package session

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/buildbarn/bb-disktest/pkg/blockdevice"
	"github.com/buildbarn/bb-disktest/pkg/clock"
	"github.com/buildbarn/bb-disktest/pkg/keystream"
	"github.com/buildbarn/bb-disktest/pkg/partition"
	"github.com/buildbarn/bb-disktest/pkg/program"
	"github.com/buildbarn/bb-disktest/pkg/util"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type session struct {
	options Options
	metrics *sessionMetrics
	result  Result

	// Whether the range extends until the storage medium is full,
	// as opposed to a known end offset.
	untilFull bool

	primary blockdevice.BlockDevice
	workers []*worker
	// Workers that did not report back within the shutdown grace
	// period. Their handles may still be in use.
	unresponsive []bool
}

// Run a session that writes a pattern to a storage medium and/or
// verifies that the pattern can be read back.
//
// Errors are not returned directly. They are reported through the
// Status and Failure fields of the Result instead, so that the
// statistics gathered up to the point of failure remain available.
// Misconfiguration is detected before any data is written.
//
// Cancelation of the context causes workers to stop after finishing
// their current block, yielding a result with StatusAborted.
func Run(ctx context.Context, options Options) Result {
	if options.Clock == nil {
		options.Clock = clock.SystemClock
	}
	if options.UUIDGenerator == nil {
		options.UUIDGenerator = uuid.NewRandom
	}
	if options.ErrorLogger == nil {
		options.ErrorLogger = util.DefaultErrorLogger
	}
	if options.RetryInterval <= 0 {
		options.RetryInterval = defaultRetryInterval
	}

	s := &session{
		options: options,
		metrics: newSessionMetrics(options.DeviceName),
		result: Result{
			Seed:           options.Seed,
			Algorithm:      options.Algorithm,
			InvertPattern:  options.InvertPattern,
			BlockSizeBytes: options.BlockSizeBytes,
		},
	}
	if err := s.run(ctx); err != nil {
		s.fail(err)
	}
	if err := s.closeHandles(); err != nil {
		if s.result.Status == StatusCompleted {
			s.fail(err)
		} else {
			s.options.ErrorLogger.Log(err)
		}
	}
	s.metrics.finished(s.result.Status)
	return s.result
}

func (s *session) fail(err error) {
	if s.result.Status != StatusFailed {
		s.result.Status = StatusFailed
		s.result.Failure = err
	}
}

func (s *session) run(ctx context.Context) error {
	sessionID, err := s.options.UUIDGenerator()
	if err != nil {
		return util.StatusWrap(err, "Failed to generate session ID")
	}
	s.result.SessionID = sessionID

	if err := s.options.validate(); err != nil {
		return err
	}
	generator, err := keystream.NewGenerator(s.options.Algorithm, s.options.Seed, s.options.InvertPattern)
	if err != nil {
		return err
	}

	mode := s.options.Mode
	openOptions := blockdevice.OpenOptions{
		Write:    mode.writes(),
		DirectIO: s.options.DirectIO,
	}
	primary, geometry, err := s.options.Opener.Open(blockdevice.OpenOptions{
		Write:    openOptions.Write,
		DirectIO: openOptions.DirectIO,
		Create:   mode.writes(),
	})
	if err != nil {
		return util.StatusWrapf(err, "Failed to open %#v", s.options.DeviceName)
	}
	s.primary = primary

	blockSizeBytes, err := s.computeRange(geometry)
	if err != nil {
		return err
	}
	startBytes, endBytes := s.result.StartBytes, s.result.EndBytes
	firstBlock := uint64(startBytes / blockSizeBytes)
	blockCount := uint64((endBytes - startBytes + blockSizeBytes - 1) / blockSizeBytes)
	partitionPolicy := s.options.PartitionPolicy
	if s.untilFull && partitionPolicy != partition.PolicyStriped {
		// Contiguous slabs of an unbounded range would place
		// all but the first worker beyond the end of the
		// storage medium.
		log.Printf("Range of %#v extends until the storage medium is full, using striped partitioning", s.options.DeviceName)
		partitionPolicy = partition.PolicyStriped
	}
	assignments, err := partition.Partition(firstBlock, blockCount, s.options.Workers, partitionPolicy)
	if err != nil {
		return err
	}

	// Give every worker its own handle, so that I/O may be
	// performed in parallel. In shared handle mode, all workers
	// use the primary handle one at a time.
	var sharedSemaphore *semaphore.Weighted
	if s.options.SharedHandle {
		sharedSemaphore = semaphore.NewWeighted(1)
	}
	s.unresponsive = make([]bool, len(assignments))
	for _, assignment := range assignments {
		var handle blockdevice.BlockDevice
		handleGeometry := geometry
		if s.options.SharedHandle {
			handle = blockdevice.NewSerializingBlockDevice(blockdevice.NewNonClosingBlockDevice(primary), sharedSemaphore)
		} else {
			handle, handleGeometry, err = s.options.Opener.Open(openOptions)
			if err != nil {
				return util.StatusWrapf(err, "Failed to open %#v for worker %d", s.options.DeviceName, assignment.Worker)
			}
		}
		alignmentBytes := 1
		if handleGeometry.DirectIO {
			alignmentBytes = handleGeometry.SectorSizeBytes
			handle = blockdevice.NewAlignmentCheckingBlockDevice(handle, alignmentBytes)
		}
		s.workers = append(s.workers, &worker{
			assignment:     assignment,
			blockDevice:    blockdevice.NewMetricsBlockDevice(handle, s.options.DeviceName),
			generator:      generator,
			blockSizeBytes: blockSizeBytes,
			startBytes:     startBytes,
			endBytes:       endBytes,
			mismatchPolicy: s.options.MismatchPolicy,
			maximumRetries: s.options.MaximumRetries,
			retryInterval:  s.options.RetryInterval,
			metrics:        s.metrics,
			expected:       blockdevice.NewAlignedBuffer(int(blockSizeBytes), alignmentBytes),
			read:           blockdevice.NewAlignedBuffer(int(blockSizeBytes), alignmentBytes),
		})
	}

	// The seed is logged upfront, so that the pattern can be
	// verified later on, even if this process does not terminate
	// cleanly.
	rangeSize := humanize.IBytes(uint64(endBytes - startBytes))
	if s.untilFull {
		rangeSize = "until full"
	}
	log.Printf(
		"Session %s: %s of %#v in range [%d, %d) (%s), using %d workers, seed %#v, algorithm %s, inverted %t and block size %d (%s)",
		sessionID,
		mode,
		s.options.DeviceName,
		startBytes,
		endBytes,
		rangeSize,
		len(s.workers),
		string(s.options.Seed),
		s.options.Algorithm,
		s.options.InvertPattern,
		blockSizeBytes,
		humanize.IBytes(uint64(blockSizeBytes)))

	if mode.writes() {
		s.result.WritePass = s.runPass(ctx, passWrite)
		if s.result.Status != StatusCompleted {
			return nil
		}
		// Data needs to be persisted before it can be verified.
		// Evict it from the page cache, so that it is read back
		// from the storage medium.
		if err := s.flush(); err != nil {
			return err
		}
	}
	if mode.verifies() {
		s.result.VerifyPass = s.runPass(ctx, passVerify)
	}
	return nil
}

// computeRange determines the block size and the range of the storage
// medium to process, and validates them against its geometry.
func (s *session) computeRange(geometry blockdevice.Geometry) (int64, error) {
	blockSizeBytes := s.options.BlockSizeBytes
	if blockSizeBytes == 0 {
		blockSizeBytes = max(geometry.SectorSizeBytes, defaultMinimumBlockSizeBytes)
		if err := validateBlockSize(blockSizeBytes); err != nil {
			return 0, err
		}
	}
	s.result.BlockSizeBytes = blockSizeBytes

	sectorSizeBytes := int64(geometry.SectorSizeBytes)
	if geometry.DirectIO {
		if sectorSizeBytes <= 0 || sectorSizeBytes&(sectorSizeBytes-1) != 0 {
			return 0, status.Errorf(codes.InvalidArgument, "Sector size %d of %#v is not a power of two", sectorSizeBytes, s.options.DeviceName)
		}
		if int64(blockSizeBytes)%sectorSizeBytes != 0 {
			return 0, status.Errorf(codes.InvalidArgument, "Invalid block size: Block size %d is not a multiple of the sector size %d", blockSizeBytes, sectorSizeBytes)
		}
	}

	b := int64(blockSizeBytes)
	startBytes := s.options.OffsetBytes - s.options.OffsetBytes%b
	if startBytes != s.options.OffsetBytes {
		log.Printf("Offset %d is not a multiple of the block size, rounding down to %d", s.options.OffsetBytes, startBytes)
	}
	var endBytes int64
	if s.options.LengthBytes == 0 && !geometry.IsBlockDevice && s.options.Mode.writes() {
		// Regular files grow when written to. Keep writing
		// until the file system runs out of space.
		s.untilFull = true
		endBytes = math.MaxInt64 - math.MaxInt64%b
	} else if s.options.LengthBytes == 0 {
		endBytes = geometry.SizeBytes
		if startBytes > endBytes {
			return 0, status.Errorf(codes.OutOfRange, "Offset %d exceeds the size of %#v, which is %d bytes", startBytes, s.options.DeviceName, geometry.SizeBytes)
		}
		if geometry.DirectIO && endBytes%sectorSizeBytes != 0 {
			// The trailing partial sector of a regular
			// file cannot be read using direct I/O.
			roundedEndBytes := max(startBytes, endBytes-endBytes%sectorSizeBytes)
			log.Printf("Size %d of %#v is not a multiple of the sector size %d, rounding down the end of the range to %d", endBytes, s.options.DeviceName, sectorSizeBytes, roundedEndBytes)
			endBytes = roundedEndBytes
		}
	} else {
		if s.options.LengthBytes > math.MaxInt64-startBytes {
			return 0, status.Errorf(codes.OutOfRange, "Range starting at offset %d with length %d overflows", startBytes, s.options.LengthBytes)
		}
		endBytes = startBytes + s.options.LengthBytes
	}
	// Regular files grow when written to.
	if endBytes > geometry.SizeBytes && (geometry.IsBlockDevice || !s.options.Mode.writes()) {
		return 0, status.Errorf(codes.OutOfRange, "Range [%d, %d) exceeds the size of %#v, which is %d bytes", startBytes, endBytes, s.options.DeviceName, geometry.SizeBytes)
	}
	if geometry.DirectIO && endBytes%sectorSizeBytes != 0 {
		return 0, status.Errorf(codes.InvalidArgument, "End of range %d is not a multiple of the sector size %d", endBytes, sectorSizeBytes)
	}
	if endBytes == startBytes {
		log.Printf("Warning: Range [%d, %d) of %#v is empty, so no data will be processed", startBytes, endBytes, s.options.DeviceName)
	}

	s.result.StartBytes = startBytes
	s.result.EndBytes = endBytes
	return b, nil
}

// runPass lets all workers process their assignment, and waits for
// them to hand back their tallies.
func (s *session) runPass(ctx context.Context, p pass) *PassResult {
	ps := newPassState()
	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timeStart := s.options.Clock.Now()
	tallies := make(chan tally, len(s.workers))
	for _, w := range s.workers {
		go func() {
			tallies <- w.run(passCtx, p, ps)
		}()
	}

	received := make([]*tally, len(s.workers))
	program.RunLocal(passCtx, func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		if s.options.ProgressInterval > 0 {
			totalBytes := s.result.EndBytes - s.result.StartBytes
			if s.untilFull {
				totalBytes = 0
			}
			dependenciesGroup.Go((&progressReporter{
				clock:      s.options.Clock,
				interval:   s.options.ProgressInterval,
				pass:       p,
				deviceName: s.options.DeviceName,
				totalBytes: totalBytes,
				state:      ps,
				timeStart:  timeStart,
			}).run)
		}

		// Once the pass is canceled, give workers a limited
		// amount of time to finish the block they are working
		// on. Workers may be stuck on unresponsive storage.
		done := ctx.Done()
		var gracePeriodExpired <-chan time.Time
		for remaining := len(s.workers); remaining > 0; {
			select {
			case t := <-tallies:
				received[t.worker] = &t
				remaining--
				if t.err != nil {
					s.options.ErrorLogger.Log(t.err)
					cancel()
				}
			case <-done:
				done = nil
				timer, timerChan := s.options.Clock.NewTimer(s.options.ShutdownGracePeriod)
				defer timer.Stop()
				gracePeriodExpired = timerChan
			case <-gracePeriodExpired:
				log.Printf("%d workers did not stop within %s", remaining, s.options.ShutdownGracePeriod)
				s.result.UnresponsiveWorkers = remaining
				remaining = 0
			}
		}
		return nil
	})

	passResult := &PassResult{
		BytesProcessed: ps.bytesProcessed.Load(),
		Duration:       s.options.Clock.Now().Sub(timeStart),
	}

	var failure error
	var mismatch *Mismatch
	for i, t := range received {
		if t == nil {
			s.unresponsive[i] = true
			continue
		}
		if t.err != nil && failure == nil {
			failure = t.err
		}
		if t.mismatch != nil {
			if mismatch == nil {
				mismatch = t.mismatch
			} else if s.options.MismatchPolicy == MismatchPolicyScanAll {
				mismatch.merge(t.mismatch)
			} else if t.mismatch.OffsetBytes < mismatch.OffsetBytes {
				// Blocks beyond the earliest mismatch may
				// have been verified before the other
				// workers learned about it. Discard them.
				mismatch = t.mismatch
			}
		}
	}
	s.result.Mismatch = mismatch

	if p == passWrite {
		s.truncateAtEndOfMedium(ps)
	}
	if failure != nil {
		s.fail(failure)
	} else if err := ctx.Err(); err != nil {
		s.result.Status = StatusAborted
		s.result.Failure = util.StatusFromContext(ctx)
	}
	return passResult
}

// truncateAtEndOfMedium lowers the end of the range to the offset at
// which the storage medium turned out to be full, so that the verify
// pass only reads back data that was actually written.
func (s *session) truncateAtEndOfMedium(ps *passState) {
	endBytes := ps.endOfMediumBytes.Load()
	if endBytes < s.result.EndBytes {
		log.Printf("Warning: %#v is full at offset %d, truncating the range to [%d, %d)", s.options.DeviceName, endBytes, s.result.StartBytes, endBytes)
	} else if s.untilFull {
		// The pass stopped before the storage medium was
		// full. Report the range that was written.
		endBytes = max(s.result.StartBytes, ps.writtenEndBytes.Load())
	} else {
		return
	}
	s.untilFull = false
	s.result.EndBytes = endBytes
	for i, w := range s.workers {
		if !s.unresponsive[i] {
			w.endBytes = endBytes
		}
	}
}

func (s *session) flush() error {
	var errs []error
	handles := []blockdevice.BlockDevice{s.primary}
	if !s.options.SharedHandle {
		for _, w := range s.workers {
			handles = append(handles, w.blockDevice)
		}
	}
	for _, handle := range handles {
		if err := handle.Sync(); err != nil {
			errs = append(errs, util.StatusWrap(err, "Failed to synchronize written data"))
		} else if err := blockdevice.DropCache(handle); err != nil {
			errs = append(errs, util.StatusWrap(err, "Failed to drop cached data"))
		}
	}
	return util.StatusFromMultiple(errs)
}

// closeHandles closes all handles that are no longer in use. Handles of
// unresponsive workers are left open, as closing them could cause
// their pending I/O to be applied against a different file.
func (s *session) closeHandles() error {
	var errs []error
	anyUnresponsive := false
	for i, w := range s.workers {
		if s.unresponsive[i] {
			anyUnresponsive = true
		} else if err := w.blockDevice.Close(); err != nil {
			errs = append(errs, util.StatusWrapf(err, "Failed to close handle of worker %d", i))
		}
	}
	if s.primary != nil && !(anyUnresponsive && s.options.SharedHandle) {
		if err := s.primary.Close(); err != nil {
			errs = append(errs, util.StatusWrap(err, "Failed to close primary handle"))
		}
	}
	return util.StatusFromMultiple(errs)
}
