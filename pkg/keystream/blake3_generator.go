package keystream

import (
	"encoding/binary"

	"github.com/buildbarn/bb-disktest/pkg/util"
	"github.com/zeebo/blake3"
)

type blake3Generator struct {
	key [32]byte
}

func (g *blake3Generator) BlockAt(index uint64, payload []byte) {
	hasher := util.Must(blake3.NewKeyed(g.key[:]))
	var indexBytes [8]byte
	binary.LittleEndian.PutUint64(indexBytes[:], index)
	hasher.Write(indexBytes[:])
	// Reading from the extendable output function cannot fail.
	hasher.Digest().Read(payload)
}
