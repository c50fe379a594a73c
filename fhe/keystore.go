package fhe

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/roasbeef/go-go-gadget-paillier"
	"golang.org/x/crypto/chacha20"
)

// Credentials identify an engine instance and carry the seed feeding its
// Paillier key generation.
type Credentials struct {
	EngineID string `json:"engine_id"`
	Seed     string `json:"seed"`
}

func (c *Credentials) SeedBytes() ([]byte, error) {
	seed, err := hexutil.Decode(ensureHexPrefix(c.Seed))
	if err != nil {
		return nil, fmt.Errorf("failed to decode engine seed: %v", err)
	}
	if len(seed) != chacha20.KeySize {
		return nil, fmt.Errorf("engine seed must be %d bytes, got %d", chacha20.KeySize, len(seed))
	}
	return seed, nil
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

// LoadOrGenerateCredentials reads the credentials file, creating it with a
// fresh random seed when missing.
func LoadOrGenerateCredentials(path string) (*Credentials, error) {
	if data, err := os.ReadFile(path); err == nil {
		var creds Credentials
		if err := json.Unmarshal(data, &creds); err != nil {
			return nil, fmt.Errorf("failed to parse engine credentials: %v", err)
		}
		if _, err := creds.SeedBytes(); err != nil {
			return nil, err
		}
		return &creds, nil
	}

	seed := make([]byte, chacha20.KeySize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate engine seed: %v", err)
	}

	creds := Credentials{
		EngineID: uuid.New().String(),
		Seed:     hexutil.Encode(seed),
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal engine credentials: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to save engine credentials: %v", err)
	}

	return &creds, nil
}

// DeriveKey generates a Paillier keypair of the given size, drawing all
// randomness from a chacha20 keystream over the 32-byte seed.
func DeriveKey(seed []byte, bits int) (*paillier.PrivateKey, error) {
	stream, err := newSeedReader(seed)
	if err != nil {
		return nil, err
	}

	key, err := paillier.GenerateKey(stream, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to derive engine key: %v", err)
	}
	return key, nil
}

// seedReader serves the chacha20 keystream as an io.Reader. The generator may
// read from several goroutines, so Read is locked.
type seedReader struct {
	mu sync.Mutex
	c  *chacha20.Cipher
}

func newSeedReader(seed []byte) (io.Reader, error) {
	c, err := chacha20.NewUnauthenticatedCipher(seed, make([]byte, chacha20.NonceSize))
	if err != nil {
		return nil, fmt.Errorf("failed to build seed stream: %v", err)
	}
	return &seedReader{c: c}, nil
}

func (r *seedReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range p {
		p[i] = 0
	}
	r.c.XORKeyStream(p, p)
	return len(p), nil
}
