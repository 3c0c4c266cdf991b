package store

import "encoding/binary"

// Key prefixes
const (
	prefixHeader byte = iota + 1
	prefixBlock
	prefixNumber
	prefixMeta
)

var keyFinalized = makeKey(prefixMeta, []byte("finalized"))

// makeKey creates a key from a prefix and hash
func makeKey(prefix byte, hash []byte) []byte {
	key := make([]byte, 1+len(hash))
	key[0] = prefix
	copy(key[1:], hash)
	return key
}

// numberKey is big endian so iteration follows block order.
func numberKey(number uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], number)
	return makeKey(prefixNumber, b[:])
}
