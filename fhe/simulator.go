package fhe

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/roasbeef/go-go-gadget-paillier"

	"boardvote/models"
	"boardvote/storage"
)

// SimEngine stands in for the external FHE engine: a key-holding coprocessor
// evaluating the fixed operation set over Paillier ciphertexts. Addition runs
// homomorphically on the ciphertext bytes; equality and selection are
// evaluated inside the engine's trust boundary and their results re-encrypted
// fresh. Handles are content addresses, so ciphertext bytes never leave the
// engine.
type SimEngine struct {
	mu      sync.Mutex
	priv    *paillier.PrivateKey
	store   storage.CiphertextStore
	sealer  *Sealer
	audit   *AuditLog
	metrics *OpMetrics
}

func NewSimEngine(priv *paillier.PrivateKey, store storage.CiphertextStore) *SimEngine {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &SimEngine{
		priv:    priv,
		store:   store,
		sealer:  NewSealer(),
		audit:   NewAuditLog(),
		metrics: NewOpMetrics(),
	}
}

// PublicKey exposes the engine encryption key clients encrypt inputs under.
func (e *SimEngine) PublicKey() *paillier.PublicKey {
	return &e.priv.PublicKey
}

// Audit returns the log of every decrypt and seal the engine performed.
func (e *SimEngine) Audit() *AuditLog {
	return e.audit
}

func (e *SimEngine) Metrics() *OpMetrics {
	return e.metrics
}

func (e *SimEngine) EncryptConstant(contract common.Address, value uint64, t CiphertextType) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.track("encrypt_constant")()

	if err := checkRange(value, t); err != nil {
		return Handle{}, err
	}
	return e.encryptValue(new(big.Int).SetUint64(value), t, contract)
}

func (e *SimEngine) VerifyAndImport(ciphertext, proof []byte, contract, caller common.Address, t CiphertextType) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.track("verify_import")()

	if len(ciphertext) == 0 {
		return Handle{}, fmt.Errorf("%w: empty ciphertext", ErrProofInvalid)
	}
	if !bytes.Equal(proof, inputProof(ciphertext, contract, caller)) {
		return Handle{}, ErrProofInvalid
	}
	// Imported values carry no permissions; the contract grants explicitly.
	return e.put(ciphertext, t, common.Address{})
}

func (e *SimEngine) AllowContract(h Handle, contract common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.track("allow_contract")()

	rec, err := e.record(h)
	if err != nil {
		return err
	}
	if rec.Contracts == nil {
		rec.Contracts = make(map[string]bool)
	}
	rec.Contracts[contract.Hex()] = true
	return e.store.Put(h.Hex(), *rec)
}

func (e *SimEngine) AllowUser(h Handle, user common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.track("allow_user")()

	rec, err := e.record(h)
	if err != nil {
		return err
	}
	if rec.Users == nil {
		rec.Users = make(map[string]bool)
	}
	rec.Users[user.Hex()] = true
	return e.store.Put(h.Hex(), *rec)
}

func (e *SimEngine) Eq(contract common.Address, a, b Handle) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.track("eq")()

	ra, err := e.operand(a, contract)
	if err != nil {
		return Handle{}, err
	}
	rb, err := e.operand(b, contract)
	if err != nil {
		return Handle{}, err
	}
	if ra.Type != rb.Type {
		return Handle{}, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, CiphertextType(ra.Type), CiphertextType(rb.Type))
	}

	va, err := e.decryptValue(ra)
	if err != nil {
		return Handle{}, err
	}
	vb, err := e.decryptValue(rb)
	if err != nil {
		return Handle{}, err
	}

	bit := big.NewInt(0)
	if va.Cmp(vb) == 0 {
		bit = big.NewInt(1)
	}
	return e.encryptValue(bit, TypeBool, contract)
}

func (e *SimEngine) Select(contract common.Address, cond, ifTrue, ifFalse Handle) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.track("select")()

	rc, err := e.operand(cond, contract)
	if err != nil {
		return Handle{}, err
	}
	if CiphertextType(rc.Type) != TypeBool {
		return Handle{}, fmt.Errorf("%w: condition must be ebool, got %s", ErrTypeMismatch, CiphertextType(rc.Type))
	}
	rt, err := e.operand(ifTrue, contract)
	if err != nil {
		return Handle{}, err
	}
	rf, err := e.operand(ifFalse, contract)
	if err != nil {
		return Handle{}, err
	}
	if rt.Type != rf.Type {
		return Handle{}, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, CiphertextType(rt.Type), CiphertextType(rf.Type))
	}

	vc, err := e.decryptValue(rc)
	if err != nil {
		return Handle{}, err
	}
	chosen := rf
	if vc.Sign() != 0 {
		chosen = rt
	}
	v, err := e.decryptValue(chosen)
	if err != nil {
		return Handle{}, err
	}
	// Fresh randomness: the result handle never equals either branch.
	return e.encryptValue(v, CiphertextType(rt.Type), contract)
}

func (e *SimEngine) Add(contract common.Address, a, b Handle) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.track("add")()

	ra, err := e.operand(a, contract)
	if err != nil {
		return Handle{}, err
	}
	rb, err := e.operand(b, contract)
	if err != nil {
		return Handle{}, err
	}
	if ra.Type != rb.Type {
		return Handle{}, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, CiphertextType(ra.Type), CiphertextType(rb.Type))
	}

	sum := paillier.AddCipher(&e.priv.PublicKey, ra.Bytes, rb.Bytes)
	return e.put(sum, CiphertextType(ra.Type), contract)
}

func (e *SimEngine) Decrypt(contract common.Address, h Handle) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.track("decrypt")()

	rec, err := e.record(h)
	if err != nil {
		return 0, err
	}
	// Public reveal demands the durable grant; producing the value is not enough.
	if !rec.Contracts[contract.Hex()] {
		return 0, fmt.Errorf("%w: contract %s may not decrypt %s", ErrNoPermission, contract.Hex(), h.Hex())
	}

	v, err := e.decryptValue(rec)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("decrypted value out of uint64 range")
	}

	e.audit.Append("decrypt", h, contract)
	return v.Uint64(), nil
}

func (e *SimEngine) Seal(user common.Address, userPublicKey *ecdsa.PublicKey, h Handle) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.track("seal")()

	rec, err := e.record(h)
	if err != nil {
		return nil, err
	}
	if !rec.Users[user.Hex()] {
		return nil, fmt.Errorf("%w: user %s may not unseal %s", ErrNoPermission, user.Hex(), h.Hex())
	}

	v, err := e.decryptValue(rec)
	if err != nil {
		return nil, err
	}
	if !v.IsUint64() {
		return nil, fmt.Errorf("sealed value out of uint64 range")
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v.Uint64())

	sealed, err := e.sealer.Seal(userPublicKey, buf)
	if err != nil {
		return nil, fmt.Errorf("seal for %s: %v", user.Hex(), err)
	}

	e.audit.Append("seal", h, user)
	return sealed, nil
}

// EncryptInput encrypts a value for submission by caller to contract and
// returns the ciphertext plus the proof binding it to that pair. Clients and
// tests build vote submissions with it.
func EncryptInput(pub *paillier.PublicKey, value uint64, contract, caller common.Address) (ciphertext, proof []byte, err error) {
	ct, err := paillier.Encrypt(pub, new(big.Int).SetUint64(value).Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt input: %v", err)
	}
	return ct, inputProof(ct, contract, caller), nil
}

func inputProof(ciphertext []byte, contract, caller common.Address) []byte {
	return Keccak256(ciphertext, contract.Bytes(), caller.Bytes())
}

func (e *SimEngine) track(op string) func() {
	start := time.Now()
	return func() { e.metrics.Record(op, time.Since(start)) }
}

func (e *SimEngine) record(h Handle) (*models.Ciphertext, error) {
	rec, err := e.store.Get(h.Hex())
	if err != nil {
		return nil, fmt.Errorf("load ciphertext: %v", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h.Hex())
	}
	return rec, nil
}

func (e *SimEngine) operand(h Handle, contract common.Address) (*models.Ciphertext, error) {
	rec, err := e.record(h)
	if err != nil {
		return nil, err
	}
	if !canCompute(rec, contract) {
		return nil, fmt.Errorf("%w: contract %s on %s", ErrNoPermission, contract.Hex(), h.Hex())
	}
	return rec, nil
}

func canCompute(rec *models.Ciphertext, contract common.Address) bool {
	hex := contract.Hex()
	return rec.Producer == hex || rec.Contracts[hex]
}

func (e *SimEngine) encryptValue(v *big.Int, t CiphertextType, producer common.Address) (Handle, error) {
	ct, err := paillier.Encrypt(&e.priv.PublicKey, v.Bytes())
	if err != nil {
		return Handle{}, fmt.Errorf("paillier encrypt: %v", err)
	}
	return e.put(ct, t, producer)
}

func (e *SimEngine) decryptValue(rec *models.Ciphertext) (*big.Int, error) {
	plain, err := paillier.Decrypt(e.priv, rec.Bytes)
	if err != nil {
		return nil, fmt.Errorf("paillier decrypt: %v", err)
	}
	return new(big.Int).SetBytes(plain), nil
}

// put stores ciphertext bytes under their content address. Re-storing the
// same bytes keeps the existing access list.
func (e *SimEngine) put(ct []byte, t CiphertextType, producer common.Address) (Handle, error) {
	h := common.BytesToHash(Keccak256(ct))

	rec, err := e.store.Get(h.Hex())
	if err != nil {
		return Handle{}, fmt.Errorf("load ciphertext: %v", err)
	}
	if rec == nil {
		rec = &models.Ciphertext{Bytes: ct, Type: uint8(t)}
	} else if rec.Type != uint8(t) {
		return Handle{}, fmt.Errorf("%w: handle %s already stored as %s", ErrTypeMismatch, h.Hex(), CiphertextType(rec.Type))
	}
	if rec.Producer == "" && producer != (common.Address{}) {
		rec.Producer = producer.Hex()
	}

	if err := e.store.Put(h.Hex(), *rec); err != nil {
		return Handle{}, fmt.Errorf("store ciphertext: %v", err)
	}
	return h, nil
}

func checkRange(value uint64, t CiphertextType) error {
	switch t {
	case TypeBool:
		if value > 1 {
			return fmt.Errorf("%w: constant %d out of range for ebool", ErrTypeMismatch, value)
		}
	case TypeUint8:
		if value > 0xff {
			return fmt.Errorf("%w: constant %d out of range for euint8", ErrTypeMismatch, value)
		}
	case TypeUint64:
	default:
		return fmt.Errorf("%w: unknown ciphertext type %d", ErrTypeMismatch, uint8(t))
	}
	return nil
}
