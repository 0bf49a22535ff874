package keystream

import (
	"encoding/hex"

	"github.com/buildbarn/bb-disktest/pkg/random"
)

// generatedSeedEntropyBytes is the amount of entropy in seeds created
// by GenerateSeed.
const generatedSeedEntropyBytes = 20

// GenerateSeed creates a random seed. The seed only consists of
// hexadecimal characters, so that it can be printed and passed back
// verbatim to a subsequent session that verifies the data.
func GenerateSeed(generator random.SingleThreadedGenerator) []byte {
	var entropy [generatedSeedEntropyBytes]byte
	generator.Read(entropy[:])
	return []byte(hex.EncodeToString(entropy[:]))
}
