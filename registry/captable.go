package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// CapTable is the company's official shareholder register, maintained outside
// the ledger. The contract consults it before registering a shareholder.
type CapTable interface {
	HolderExists(address string) bool
	GetHolder(address string) (*HolderRecord, error)
}

// HolderRecord contains the official registered holding for one address.
type HolderRecord struct {
	Address     string    `json:"address"`
	LegalName   string    `json:"legal_name"`
	Shares      uint64    `json:"shares"`
	IsActive    bool      `json:"is_active"`
	LastUpdated time.Time `json:"last_updated"`
}

// FileCapTable implements CapTable backed by a JSON file, for dev deployments
// and tests.
type FileCapTable struct {
	holders map[string]*HolderRecord
	mu      sync.RWMutex
	config  Config
}

type Config struct {
	HoldersFilePath string `json:"holders_file_path"`
}

func NewFileCapTable(config Config) (*FileCapTable, error) {
	table := &FileCapTable{
		holders: make(map[string]*HolderRecord),
		config:  config,
	}

	dir := filepath.Dir(config.HoldersFilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %v", err)
	}

	return table, nil
}

// LoadHoldersFromFile loads the register from its JSON file, creating a
// default file when none exists yet.
func (t *FileCapTable) LoadHoldersFromFile() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.config.HoldersFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return t.createDefaultHoldersFile()
		}
		return fmt.Errorf("failed to read holders file: %v", err)
	}

	var holdersData struct {
		Holders []*HolderRecord `json:"holders"`
	}

	if err := json.Unmarshal(data, &holdersData); err != nil {
		return fmt.Errorf("failed to unmarshal holder data: %v", err)
	}

	t.holders = make(map[string]*HolderRecord)
	for _, holder := range holdersData.Holders {
		if err := validateHolderData(holder); err != nil {
			return fmt.Errorf("invalid holder data for %s: %v", holder.Address, err)
		}
		t.holders[normalizeAddress(holder.Address)] = holder
	}

	return nil
}

func (t *FileCapTable) createDefaultHoldersFile() error {
	defaultHolders := struct {
		Holders []*HolderRecord `json:"holders"`
	}{
		Holders: []*HolderRecord{
			{
				Address:     "0x1111111111111111111111111111111111111111",
				LegalName:   "Founders Trust",
				Shares:      400,
				IsActive:    true,
				LastUpdated: time.Now(),
			},
			{
				Address:     "0x2222222222222222222222222222222222222222",
				LegalName:   "Employee Pool",
				Shares:      100,
				IsActive:    true,
				LastUpdated: time.Now(),
			},
		},
	}

	data, err := json.MarshalIndent(defaultHolders, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal default holder data: %v", err)
	}

	if err := os.WriteFile(t.config.HoldersFilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to save default holders file: %v", err)
	}

	for _, holder := range defaultHolders.Holders {
		t.holders[normalizeAddress(holder.Address)] = holder
	}

	return nil
}

func validateHolderData(holder *HolderRecord) error {
	if holder.Address == "" {
		return fmt.Errorf("address is required")
	}
	if holder.LegalName == "" {
		return fmt.Errorf("legal name is required")
	}
	if holder.Shares == 0 {
		return fmt.Errorf("shares must be positive")
	}
	return nil
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func (t *FileCapTable) HolderExists(address string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	holder, exists := t.holders[normalizeAddress(address)]
	return exists && holder.IsActive
}

func (t *FileCapTable) GetHolder(address string) (*HolderRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	holder, exists := t.holders[normalizeAddress(address)]
	if !exists {
		return nil, fmt.Errorf("holder %s not found in cap table", address)
	}

	if !holder.IsActive {
		return nil, fmt.Errorf("holder %s is inactive", address)
	}

	// Return a copy to prevent modification of internal state
	holderCopy := *holder
	return &holderCopy, nil
}

// TestHelper functions for easier testing
type TestHelper struct {
	table *FileCapTable
}

func NewTestHelper(table *FileCapTable) *TestHelper {
	return &TestHelper{table: table}
}

func (th *TestHelper) AddTestHolder(holder *HolderRecord) error {
	th.table.mu.Lock()
	defer th.table.mu.Unlock()

	th.table.holders[normalizeAddress(holder.Address)] = holder
	return nil
}

func (th *TestHelper) RemoveTestHolder(address string) {
	th.table.mu.Lock()
	defer th.table.mu.Unlock()

	delete(th.table.holders, normalizeAddress(address))
}
