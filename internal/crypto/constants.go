package crypto

const (
	HashSize = 32
	// SeedSize is the size of the per-block randomness seed.
	SeedSize = 32
)
