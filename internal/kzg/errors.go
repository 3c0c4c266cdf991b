package kzg

import "errors"

var (
	ErrCellLengthExceeded = errors.New("cell index beyond grid dimensions")
	ErrTargetDimsInvalid  = errors.New("target dimensions do not divide the grid")
	ErrParamsTooSmall     = errors.New("public parameters too small")
	ErrParamsCorrupt      = errors.New("corrupt public parameters")
	ErrInvalidCommitment  = errors.New("invalid commitment encoding")
	ErrInvalidProof       = errors.New("invalid proof encoding")
	ErrVerificationFailed = errors.New("proof verification failed")
	ErrCommitmentCount    = errors.New("commitment count mismatch")
	ErrQuotientRemainder  = errors.New("multiproof quotient has a remainder")
	ErrDimensionsMismatch = errors.New("polynomial and evaluation grids differ in size")
)
