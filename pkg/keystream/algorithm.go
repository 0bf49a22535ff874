package keystream

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Algorithm of the pseudo-random function that is used to compute the
// contents of blocks. Data written with one algorithm can only be
// verified using the same algorithm.
type Algorithm int

const (
	// AlgorithmBLAKE3 computes blocks by reading the extendable output
	// of BLAKE3 in keyed mode, using the block index as the input.
	AlgorithmBLAKE3 Algorithm = iota
	// AlgorithmChaCha20 computes blocks by taking the ChaCha20
	// keystream, using the block index as the nonce.
	AlgorithmChaCha20
)

// DefaultAlgorithm is used when no algorithm is configured explicitly.
const DefaultAlgorithm = AlgorithmBLAKE3

var algorithmNames = map[Algorithm]string{
	AlgorithmBLAKE3:   "BLAKE3",
	AlgorithmChaCha20: "CHACHA20",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseAlgorithm converts the name of an algorithm, as used in
// configuration files, to its enumeration value. The empty string
// yields the default algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	if name == "" {
		return DefaultAlgorithm, nil
	}
	for algorithm, algorithmName := range algorithmNames {
		if strings.EqualFold(name, algorithmName) {
			return algorithm, nil
		}
	}
	return 0, status.Errorf(codes.InvalidArgument, "Unknown keystream algorithm %#v", name)
}
