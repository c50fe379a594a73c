package chaincode

import "errors"

// Error kinds surfaced by contract operations. Every failure wraps exactly one
// of these so clients and tests can match with errors.Is; on error the peer
// discards the transaction's write set, so nothing is persisted.
var (
	// ErrUnauthorized rejects a caller lacking the required role.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidState rejects an action invalid for the current lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidArgument rejects malformed or unknown inputs.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCryptography rejects ciphertexts, proofs, or engine operations that
	// fail validation.
	ErrCryptography = errors.New("cryptographic check failed")
)
