package fhe

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Handle identifies a ciphertext held by the engine. It is the keccak256
// digest of the ciphertext bytes, so a handle can be stored on-ledger while
// the bytes stay inside the engine.
type Handle = common.Hash

// CiphertextType tags the plaintext domain a ciphertext encodes. Operations
// reject operands of mismatched types.
type CiphertextType uint8

const (
	TypeBool CiphertextType = iota
	TypeUint8
	TypeUint64
)

func (t CiphertextType) String() string {
	switch t {
	case TypeBool:
		return "ebool"
	case TypeUint8:
		return "euint8"
	case TypeUint64:
		return "euint64"
	default:
		return "einvalid"
	}
}

var (
	ErrProofInvalid  = errors.New("fhe: proof does not match contract/caller binding")
	ErrNoPermission  = errors.New("fhe: party lacks permission on ciphertext")
	ErrUnknownHandle = errors.New("fhe: unknown ciphertext handle")
	ErrTypeMismatch  = errors.New("fhe: operand type mismatch")
)

// Engine is the fixed operation set a contract consumes from the external FHE
// coprocessor. Every operation names the contract acting on the ciphertexts;
// the engine enforces that the contract may use each operand.
//
// Permission model: the contract that produces a value through an engine
// operation may keep computing on it, but public decryption always requires a
// durable AllowContract grant, and sealing to a user requires a durable
// AllowUser grant. Imported ciphertexts carry no permissions at all until
// granted.
type Engine interface {
	// EncryptConstant trivially encrypts a public constant for the contract.
	EncryptConstant(contract common.Address, value uint64, t CiphertextType) (Handle, error)

	// VerifyAndImport accepts an externally produced ciphertext together with
	// the proof binding it to this contract and the submitting caller. It
	// fails with ErrProofInvalid when the binding does not match.
	VerifyAndImport(ciphertext, proof []byte, contract, caller common.Address, t CiphertextType) (Handle, error)

	// AllowContract durably grants a contract operation and decryption rights.
	AllowContract(h Handle, contract common.Address) error
	// AllowUser durably grants a user the right to have the value sealed to them.
	AllowUser(h Handle, user common.Address) error

	// Eq compares two ciphertexts of the same type into an encrypted bool.
	Eq(contract common.Address, a, b Handle) (Handle, error)
	// Select picks ifTrue or ifFalse depending on the encrypted condition.
	// The result is a fresh ciphertext, never one of the operand handles.
	Select(contract common.Address, cond, ifTrue, ifFalse Handle) (Handle, error)
	// Add homomorphically adds two ciphertexts of the same type.
	Add(contract common.Address, a, b Handle) (Handle, error)

	// Decrypt publicly reveals the value. Requires a durable contract grant.
	Decrypt(contract common.Address, h Handle) (uint64, error)
	// Seal re-encrypts the value so that only the holder of the given key can
	// read it. Requires a durable user grant.
	Seal(user common.Address, userPublicKey *ecdsa.PublicKey, h Handle) ([]byte, error)
}
