package keystream

import (
	"encoding/binary"

	"github.com/buildbarn/bb-disktest/pkg/util"

	"golang.org/x/crypto/chacha20"
)

type chaCha20Generator struct {
	key [32]byte
}

func (g *chaCha20Generator) BlockAt(index uint64, payload []byte) {
	var nonce [chacha20.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[chacha20.NonceSize-8:], index)
	cipher := util.Must(chacha20.NewUnauthenticatedCipher(g.key[:], nonce[:]))
	clear(payload)
	cipher.XORKeyStream(payload, payload)
}
