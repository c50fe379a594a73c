package fhe

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// Sealer re-encrypts plaintexts to a single recipient. A fresh ephemeral key
// is generated per payload; the shared secret is the keccak256 of the ECDH
// point, and the payload is AES-256-GCM with the ephemeral public key and
// nonce prepended.
type Sealer struct{}

func NewSealer() *Sealer {
	return &Sealer{}
}

func (s *Sealer) Seal(recipient *ecdsa.PublicKey, plaintext []byte) ([]byte, error) {
	ephemKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	sharedSecret := ecdhSecret(ephemKey, recipient)

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, err
	}

	payload := crypto.FromECDSAPub(&ephemKey.PublicKey)
	payload = append(payload, nonce...)
	return gcm.Seal(payload, nonce, plaintext, nil), nil
}

// OpenSealed is the client-side inverse of Seal.
func OpenSealed(recipient *ecdsa.PrivateKey, payload []byte) ([]byte, error) {
	if len(payload) < 65 {
		return nil, errors.New("sealed payload too short")
	}

	ephemPub, err := crypto.UnmarshalPubkey(payload[:65])
	if err != nil {
		return nil, err
	}

	sharedSecret := ecdhSecret(recipient, ephemPub)

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	rest := payload[65:]
	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, errors.New("sealed payload too short")
	}

	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func ecdhSecret(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) []byte {
	x, y := crypto.S256().ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	return Keccak256(x.Bytes(), y.Bytes())
}

// Keccak256 computes the Keccak-256 hash over the concatenation of the inputs.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}
