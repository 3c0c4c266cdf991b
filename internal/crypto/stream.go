package crypto

import (
	"golang.org/x/crypto/chacha20"
)

// Stream is a deterministic ChaCha20 keystream. The same seed always yields
// the same byte sequence.
type Stream struct {
	cipher *chacha20.Cipher
}

// NewStream keys a ChaCha20 keystream with seed and an all-zero nonce.
func NewStream(seed [32]byte) *Stream {
	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce)
	if err != nil {
		// key and nonce sizes are fixed above
		panic(err)
	}
	return &Stream{cipher: c}
}

// Read fills p with keystream bytes. It never fails.
func (s *Stream) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	s.cipher.XORKeyStream(p, p)
	return len(p), nil
}

// Uint64n returns a uniformly distributed value in [0, n).
func (s *Stream) Uint64n(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	// rejection sampling avoids modulo bias
	limit := ^uint64(0) - (^uint64(0) % n)
	var buf [8]byte
	for {
		_, _ = s.Read(buf[:])
		v := uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
			uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56
		if v < limit {
			return v % n
		}
	}
}
