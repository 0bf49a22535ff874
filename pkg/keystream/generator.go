package keystream

import (
	"github.com/zeebo/blake3"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MaximumSeedSizeBytes is the largest seed accepted by NewGenerator.
const MaximumSeedSizeBytes = 4096

// keyDerivationContext is the BLAKE3 key derivation context that is
// used to turn seeds of arbitrary length into keys. Changing it
// changes the contents of every block.
const keyDerivationContext = "bb-disktest 2026-10-19 keystream key v1"

// Generator of block contents. The contents of a block are a pure
// function of the seed, the algorithm, the block index and the number
// of bytes requested. Shorter requests for the same block index yield
// a prefix of longer ones.
//
// Implementations keep no state between calls. They are safe for
// concurrent use, and any block can be generated without generating
// the ones preceding it.
type Generator interface {
	BlockAt(index uint64, payload []byte)
}

// ValidateSeed returns an INVALID_ARGUMENT error if a seed cannot be
// used to construct a Generator.
func ValidateSeed(seed []byte) error {
	if len(seed) == 0 {
		return status.Error(codes.InvalidArgument, "Invalid seed: Seed is empty")
	}
	if len(seed) > MaximumSeedSizeBytes {
		return status.Errorf(codes.InvalidArgument, "Invalid seed: Seed is %d bytes in size, while at most %d bytes are permitted", len(seed), MaximumSeedSizeBytes)
	}
	return nil
}

// NewGenerator creates a Generator for a given algorithm and seed. If
// inverted is set, every byte that is generated is complemented. This
// makes it possible to exercise every bit of the medium with both
// values by running two sessions.
func NewGenerator(algorithm Algorithm, seed []byte, inverted bool) (Generator, error) {
	if err := ValidateSeed(seed); err != nil {
		return nil, err
	}
	var key [32]byte
	blake3.DeriveKey(keyDerivationContext, seed, key[:])

	var g Generator
	switch algorithm {
	case AlgorithmBLAKE3:
		g = &blake3Generator{key: key}
	case AlgorithmChaCha20:
		g = &chaCha20Generator{key: key}
	default:
		return nil, status.Errorf(codes.InvalidArgument, "Unknown keystream algorithm %d", algorithm)
	}
	if inverted {
		g = invertingGenerator{base: g}
	}
	return g, nil
}

type invertingGenerator struct {
	base Generator
}

func (g invertingGenerator) BlockAt(index uint64, payload []byte) {
	g.base.BlockAt(index, payload)
	for i := range payload {
		payload[i] = ^payload[i]
	}
}
