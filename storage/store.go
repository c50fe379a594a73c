package storage

import (
	"sync"

	"boardvote/models"
)

// CiphertextStore persists engine-held ciphertexts keyed by handle hex.
// Get returns nil without error when the handle is unknown.
type CiphertextStore interface {
	Put(handle string, ct models.Ciphertext) error
	Get(handle string) (*models.Ciphertext, error)
	Count() int
}

// MemoryStore keeps ciphertexts in a map. It is the default for tests and
// short-lived engines.
type MemoryStore struct {
	mu  sync.RWMutex
	cts map[string]models.Ciphertext
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cts: make(map[string]models.Ciphertext)}
}

func (s *MemoryStore) Put(handle string, ct models.Ciphertext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cts[handle] = copyCiphertext(ct)
	return nil
}

func (s *MemoryStore) Get(handle string) (*models.Ciphertext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ct, ok := s.cts[handle]
	if !ok {
		return nil, nil
	}
	out := copyCiphertext(ct)
	return &out, nil
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cts)
}

// copyCiphertext deep-copies a record so callers never alias stored state.
func copyCiphertext(ct models.Ciphertext) models.Ciphertext {
	out := models.Ciphertext{
		Bytes:    append([]byte(nil), ct.Bytes...),
		Type:     ct.Type,
		Producer: ct.Producer,
	}
	if ct.Contracts != nil {
		out.Contracts = make(map[string]bool, len(ct.Contracts))
		for k, v := range ct.Contracts {
			out.Contracts[k] = v
		}
	}
	if ct.Users != nil {
		out.Users = make(map[string]bool, len(ct.Users))
		for k, v := range ct.Users {
			out.Users[k] = v
		}
	}
	return out
}
