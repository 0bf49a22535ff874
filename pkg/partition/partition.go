package partition

import (
	"iter"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Assignment of block indices to a single worker. The indices form an
// arithmetic progression, so that assignments can be represented in
// constant space regardless of the size of the range.
type Assignment struct {
	Worker int
	First  uint64
	Stride uint64
	Count  uint64
}

// Block returns the index of the k-th block of the assignment.
func (a Assignment) Block(k uint64) uint64 {
	return a.First + k*a.Stride
}

// Contains returns whether a block index is part of the assignment.
func (a Assignment) Contains(index uint64) bool {
	if a.Count == 0 || index < a.First {
		return false
	}
	delta := index - a.First
	return delta%a.Stride == 0 && delta/a.Stride < a.Count
}

// Indices yields all block indices of the assignment in increasing
// order.
func (a Assignment) Indices() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for k := uint64(0); k < a.Count; k++ {
			if !yield(a.Block(k)) {
				return
			}
		}
	}
}

// Partition a range of blocks across a number of workers. Exactly one
// Assignment is returned per worker, ordered by worker number. The
// assignments are disjoint, and their union is equal to the range.
// Workers for which there is no work receive an empty assignment.
func Partition(firstBlock, blockCount uint64, workers int, policy Policy) ([]Assignment, error) {
	if workers <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "Worker count must be positive, not %d", workers)
	}
	n := uint64(workers)
	assignments := make([]Assignment, 0, workers)
	switch policy {
	case PolicyStriped:
		// Worker i owns the blocks whose absolute index is
		// congruent to i modulo n, regardless of where the range
		// starts.
		for i := uint64(0); i < n; i++ {
			skip := (i + n - firstBlock%n) % n
			a := Assignment{
				Worker: int(i),
				First:  firstBlock + skip,
				Stride: n,
			}
			if skip < blockCount {
				a.Count = (blockCount - skip + n - 1) / n
			}
			assignments = append(assignments, a)
		}
	case PolicyContiguous:
		// The first blockCount%n slabs receive one additional
		// block.
		slabSize, remainder := blockCount/n, blockCount%n
		next := firstBlock
		for i := uint64(0); i < n; i++ {
			count := slabSize
			if i < remainder {
				count++
			}
			assignments = append(assignments, Assignment{
				Worker: int(i),
				First:  next,
				Stride: 1,
				Count:  count,
			})
			next += count
		}
	default:
		return nil, status.Errorf(codes.InvalidArgument, "Unknown partition policy %d", policy)
	}
	return assignments, nil
}
