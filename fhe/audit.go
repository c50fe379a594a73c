package fhe

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// AuditRecord is one privileged engine operation (a public decrypt or a seal)
// in the hash-chained audit log.
type AuditRecord struct {
	ID       string `json:"id"`
	Op       string `json:"op"`
	Handle   string `json:"handle"`
	Party    string `json:"party"`
	At       int64  `json:"at"`
	PrevHash []byte `json:"prev_hash"`
	Hash     []byte `json:"hash"`
}

func (r *AuditRecord) calculateHash() []byte {
	buffer := new(bytes.Buffer)
	buffer.WriteString(r.ID)
	buffer.WriteString(r.Op)
	buffer.WriteString(r.Handle)
	buffer.WriteString(r.Party)
	binary.Write(buffer, binary.BigEndian, r.At)
	buffer.Write(r.PrevHash)

	hash := sha256.Sum256(buffer.Bytes())
	return hash[:]
}

// AuditLog records every reveal the engine performs, each record chained to
// the previous one by hash.
type AuditLog struct {
	mu      sync.RWMutex
	records []AuditRecord
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) Append(op string, h Handle, party common.Address) AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := AuditRecord{
		ID:     uuid.New().String(),
		Op:     op,
		Handle: h.Hex(),
		Party:  party.Hex(),
		At:     time.Now().Unix(),
	}
	if n := len(l.records); n > 0 {
		rec.PrevHash = append([]byte(nil), l.records[n-1].Hash...)
	}
	rec.Hash = rec.calculateHash()

	l.records = append(l.records, rec)
	return rec
}

// Records returns a copy of the log.
func (l *AuditLog) Records() []AuditRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]AuditRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Verify recomputes every hash and link in the chain.
func (l *AuditLog) Verify() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := range l.records {
		rec := &l.records[i]
		if !bytes.Equal(rec.Hash, rec.calculateHash()) {
			return false
		}
		if i == 0 {
			if len(rec.PrevHash) != 0 {
				return false
			}
			continue
		}
		if !bytes.Equal(rec.PrevHash, l.records[i-1].Hash) {
			return false
		}
	}
	return true
}
