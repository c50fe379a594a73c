// Test harness for the governance chaincode.
//
// Provides an in-memory world-state ledger, a minimal ChaincodeStub backed by
// it, reusable caller identities, and helpers to drive the contract through
// whole governance flows without peers, orderers, or real crypto material.
// The engine behind the contract is a real SimEngine over a small shared
// Paillier key, so encrypted tallies behave exactly as in production, just
// faster.
//
// Byte slices are copied on their way in and out of the ledger maps to avoid
// aliasing between test code and stored state.

package chaincode

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/hyperledger/fabric-chaincode-go/v2/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
	"github.com/hyperledger/fabric-protos-go-apiv2/ledger/queryresult"
	"github.com/hyperledger/fabric-protos-go-apiv2/msp"
	"github.com/roasbeef/go-go-gadget-paillier"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"boardvote/fhe"
	"boardvote/models"
	"boardvote/storage"
)

const (
	testChannel     = "govchan-01"
	testCompany     = "Hyperion Analytics Ltd"
	testTotalShares = uint64(1000)

	testBaseTime int64 = 1700000000
	day          int64 = 86400
)

/* in-memory world state */

type testEvent struct {
	name    string
	payload []byte
}

// memLedger is a tiny in-memory world state used by the mock stub. It tracks
// state and emitted events.
type memLedger struct {
	ws     map[string][]byte
	events []testEvent
}

func newMemLedger() *memLedger {
	return &memLedger{ws: make(map[string][]byte)}
}

func (m *memLedger) getState(key string) ([]byte, error) {
	if v, ok := m.ws[key]; ok {
		return append([]byte(nil), v...), nil // Copy for safety
	}
	return nil, nil
}

func (m *memLedger) putState(key string, val []byte) error {
	m.ws[key] = append([]byte(nil), val...) // Copy for safety
	return nil
}

func (m *memLedger) delState(key string) error {
	delete(m.ws, key)
	return nil
}

func (m *memLedger) setEvent(name string, payload []byte) error {
	m.events = append(m.events, testEvent{name: name, payload: append([]byte(nil), payload...)})
	return nil
}

// iterRange materializes a range scan over world state. It honors
// [start, end) lexicographic bounds and sorts keys for deterministic order.
func (m *memLedger) iterRange(start, end string) *memIter {
	var keys []string
	for k := range m.ws {
		if (start == "" || k >= start) && (end == "" || k < end) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	vals := make([][]byte, len(keys))
	for i, k := range keys {
		vals[i] = append([]byte(nil), m.ws[k]...) // Copy for safety
	}
	return &memIter{keys: keys, vals: vals}
}

// memIter implements the subset of shim.StateQueryIteratorInterface the
// contract uses, over a pre-materialized KV slice.
type memIter struct {
	keys []string
	vals [][]byte
	i    int
}

func (it *memIter) HasNext() bool { return it.i < len(it.keys) }

func (it *memIter) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("iterator exhausted")
	}
	kv := &queryresult.KV{Key: it.keys[it.i], Value: it.vals[it.i]}
	it.i++
	return kv, nil
}

func (it *memIter) Close() error { return nil }

/* mock stub */

// mockStub implements the stub methods the contract calls, wired to the
// in-memory ledger. The embedded nil interface panics loudly on anything
// unimplemented, which keeps the harness honest about what the contract uses.
type mockStub struct {
	shim.ChaincodeStubInterface
	mem     *memLedger
	creator []byte
	txID    string
	now     int64
}

func (s *mockStub) GetState(key string) ([]byte, error)   { return s.mem.getState(key) }
func (s *mockStub) PutState(key string, v []byte) error   { return s.mem.putState(key, v) }
func (s *mockStub) DelState(key string) error             { return s.mem.delState(key) }
func (s *mockStub) SetEvent(n string, p []byte) error     { return s.mem.setEvent(n, p) }
func (s *mockStub) GetTxID() string                       { return s.txID }
func (s *mockStub) GetChannelID() string                  { return testChannel }

func (s *mockStub) GetCreator() ([]byte, error) {
	return append([]byte(nil), s.creator...), nil
}

func (s *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return &timestamppb.Timestamp{Seconds: s.now}, nil
}

func (s *mockStub) GetStateByRange(start, end string) (shim.StateQueryIteratorInterface, error) {
	return s.mem.iterRange(start, end), nil
}

// simpleTxCtx adapts a raw stub to the contractapi transaction context. The
// contract never touches the client identity, so that side stays nil.
type simpleTxCtx struct{ s shim.ChaincodeStubInterface }

func (c *simpleTxCtx) GetStub() shim.ChaincodeStubInterface  { return c.s }
func (c *simpleTxCtx) GetClientIdentity() cid.ClientIdentity { return nil }

/* caller identities */

// persona is a reusable test identity: serialized Fabric creator bytes, the
// address the contract derives from them, and a secp256k1 keypair for sealed
// ballot retrieval.
type persona struct {
	name    string
	creator []byte
	addr    common.Address
	key     *ecdsa.PrivateKey
}

func (p *persona) pubHex() string {
	return hex.EncodeToString(ethcrypto.FromECDSAPub(&p.key.PublicKey))
}

var (
	personaMu  sync.Mutex
	personaSet = map[string]*persona{}
)

// getPersona returns the cached persona for a name, creating it on first use.
// Identity material is immutable, so sharing across tests is safe and skips
// repeated RSA key generation.
func getPersona(t *testing.T, name string) *persona {
	t.Helper()
	personaMu.Lock()
	defer personaMu.Unlock()

	if p, ok := personaSet[name]; ok {
		return p
	}

	idBytes := devCertPEM(t)
	sid := &msp.SerializedIdentity{Mspid: "CorpMSP", IdBytes: idBytes}
	creator, err := proto.Marshal(sid)
	if err != nil {
		t.Fatalf("marshal identity for %s: %v", name, err)
	}

	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key for %s: %v", name, err)
	}

	p := &persona{
		name:    name,
		creator: creator,
		addr:    common.BytesToAddress(ethcrypto.Keccak256(idBytes)[12:]),
		key:     key,
	}
	personaSet[name] = p
	return p
}

// devCertPEM generates a minimal self-signed cert, good enough for creator
// parsing. Every call yields distinct bytes, so personas get distinct
// addresses.
func devCertPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate cert key: %v", err)
	}
	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

/* shared engine key */

var (
	engineKeyOnce sync.Once
	engineKey     *paillier.PrivateKey
	engineKeyErr  error
)

// testEngineKey returns a process-wide 1024-bit Paillier key. Small for
// speed; every test still runs real ciphertext math.
func testEngineKey(t *testing.T) *paillier.PrivateKey {
	t.Helper()
	engineKeyOnce.Do(func() {
		engineKey, engineKeyErr = fhe.DeriveKey(bytes.Repeat([]byte{0x42}, 32), 1024)
	})
	if engineKeyErr != nil {
		t.Fatalf("derive test engine key: %v", engineKeyErr)
	}
	return engineKey
}

/* harness */

type harness struct {
	t      *testing.T
	mem    *memLedger
	stub   *mockStub
	ctx    contractapi.TransactionContextInterface
	engine *fhe.SimEngine
	cc     *GovernanceContract

	owner *persona
	self  common.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mem := newMemLedger()
	owner := getPersona(t, "owner")
	stub := &mockStub{mem: mem, creator: owner.creator, txID: "tx-0001", now: testBaseTime}
	ctx := &simpleTxCtx{s: stub}
	engine := fhe.NewSimEngine(testEngineKey(t), storage.NewMemoryStore())

	h := &harness{
		t: t, mem: mem, stub: stub, ctx: ctx, engine: engine,
		cc:    NewGovernanceContract(engine, nil),
		owner: owner,
	}
	h.self = contractAddress(ctx)
	return h
}

// as switches the transaction creator for subsequent calls.
func (h *harness) as(p *persona) { h.stub.creator = p.creator }

// advance moves the transaction clock forward.
func (h *harness) advance(seconds int64) { h.stub.now += seconds }

func (h *harness) setTxID(id string) { h.stub.txID = id }

// seedGovernance initializes the company as the owner, gives the owner a
// board seat, and registers each persona with 100 shares.
func (h *harness) seedGovernance(holders ...*persona) {
	h.t.Helper()
	h.as(h.owner)
	requireNoErr(h.t, h.cc.InitializeCompany(h.ctx, testCompany, testTotalShares))
	requireNoErr(h.t, h.cc.AddBoardMember(h.ctx, h.owner.addr.Hex()))
	for _, p := range holders {
		requireNoErr(h.t, h.cc.AddShareholder(h.ctx, p.addr.Hex(), p.name, 100))
	}
}

// createProposal opens a seven-day general proposal as the owner.
func (h *harness) createProposal() uint64 {
	h.t.Helper()
	h.as(h.owner)
	id, err := h.cc.CreateProposal(h.ctx, "general", "Adopt the annual budget", "As circulated before the meeting.", 7)
	requireNoErr(h.t, err)
	return id
}

// encryptChoice builds a valid ballot submission for p: the engine-encrypted
// choice and the proof binding it to this contract and caller.
func (h *harness) encryptChoice(p *persona, choice models.VoteChoice) (string, string) {
	h.t.Helper()
	ct, proof, err := fhe.EncryptInput(h.engine.PublicKey(), uint64(choice), h.self, p.addr)
	requireNoErr(h.t, err)
	return base64.StdEncoding.EncodeToString(ct), base64.StdEncoding.EncodeToString(proof)
}

// castVote submits choice on the proposal as p.
func (h *harness) castVote(p *persona, proposalID uint64, choice models.VoteChoice) error {
	h.t.Helper()
	ct, proof := h.encryptChoice(p, choice)
	h.as(p)
	return h.cc.CastConfidentialVote(h.ctx, proposalID, ct, proof)
}

/* event helpers */

func (h *harness) eventCount(name string) int {
	n := 0
	for _, ev := range h.mem.events {
		if ev.name == name {
			n++
		}
	}
	return n
}

// lastEvent decodes the most recent event with the given name, failing the
// test when none was emitted.
func (h *harness) lastEvent(name string) map[string]any {
	h.t.Helper()
	for i := len(h.mem.events) - 1; i >= 0; i-- {
		if h.mem.events[i].name == name {
			var decoded map[string]any
			requireNoErr(h.t, json.Unmarshal(h.mem.events[i].payload, &decoded))
			return decoded
		}
	}
	h.t.Fatalf("no %s event emitted", name)
	return nil
}

/* assertions */

func requireNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func requireErrIs(t *testing.T, err, want error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", want)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func requireErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", wantSubstr)
	}
	if wantSubstr != "" && !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(wantSubstr)) {
		t.Fatalf("error %q does not contain %q", err.Error(), wantSubstr)
	}
}
