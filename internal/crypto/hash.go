package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

type Hash [HashSize]byte

// Seed is the per-block randomness used to derive grid padding.
type Seed [SeedSize]byte

func HashData(data ...[]byte) Hash {
	h, _ := blake2b.New256(nil)
	for _, d := range data {
		h.Write(d)
	}
	var result Hash
	copy(result[:], h.Sum(nil))
	return result
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first five bytes in hex, for logs.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:5])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash decodes a hex string with an optional 0x prefix.
func ParseHash(s string) (Hash, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Hash{}, fmt.Errorf("decode hash: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("invalid hash length %d", len(b))
	}
	return Hash(b), nil
}
