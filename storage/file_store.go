package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"boardvote/models"
)

// FileStore is a CiphertextStore backed by a single JSON file. The whole map
// is loaded on open and rewritten on every Put, which is plenty for the
// handful of counters and votes an engine instance holds.
type FileStore struct {
	path string
	mu   sync.RWMutex
	cts  map[string]models.Ciphertext
}

func NewFileStore(dataDir string) (*FileStore, error) {
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %v", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	s := &FileStore{
		path: filepath.Join(absPath, "ciphertexts.json"),
		cts:  make(map[string]models.Ciphertext),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open file %s: %v", s.path, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&s.cts); err != nil {
		return fmt.Errorf("failed to decode ciphertexts from %s: %v", s.path, err)
	}

	log.Printf("Loaded %d ciphertexts from %s", len(s.cts), s.path)
	return nil
}

func (s *FileStore) flush() error {
	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(s.cts); err != nil {
		return fmt.Errorf("failed to encode ciphertexts: %v", err)
	}
	return nil
}

func (s *FileStore) Put(handle string, ct models.Ciphertext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cts[handle] = copyCiphertext(ct)
	return s.flush()
}

func (s *FileStore) Get(handle string) (*models.Ciphertext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ct, ok := s.cts[handle]
	if !ok {
		return nil, nil
	}
	out := copyCiphertext(ct)
	return &out, nil
}

func (s *FileStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cts)
}
