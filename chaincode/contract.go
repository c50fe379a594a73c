package chaincode

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
	"github.com/hyperledger/fabric-protos-go-apiv2/msp"
	"google.golang.org/protobuf/proto"

	"boardvote/fhe"
	"boardvote/models"
	"boardvote/registry"
)

/* Keys & constants (single namespace for this chaincode) */

const (
	keyCompany     = "COMPANY" // Company JSON, written exactly once
	keyAllocated   = "ALLOC"   // Shares handed to holders so far (decimal)
	keyProposalSeq = "PROPSEQ" // Last assigned proposal id (decimal)

	keyBoardPrefix  = "BOARD::"  // BOARD::<addr> → BoardMember JSON
	keyHolderPrefix = "HOLDER::" // HOLDER::<addr> → Shareholder JSON
	keyPropPrefix   = "PROP::"   // PROP::<id, zero-padded> → Proposal JSON
	keyTallyPrefix  = "TALLY::"  // TALLY::<id> → Tally JSON (counter handles)
	keyVotePrefix   = "VOTE::"   // VOTE::<id>::<addr> → VoteRecord JSON
	keyResultPrefix = "RES::"    // RES::<id> → Result JSON
)

const (
	eventCompanyInitialized    = "CompanyInitialized"
	eventBoardMemberAdded      = "BoardMemberAdded"
	eventBoardMemberRemoved    = "BoardMemberRemoved"
	eventShareholderRegistered = "ShareholderRegistered"
	eventProposalCreated       = "ProposalCreated"
	eventVoteCast              = "VoteCast"
	eventProposalFinalized     = "ProposalFinalized"
)

const contractName = "boardvote"

// GovernanceContract implements confidential corporate-governance voting.
//
// Shareholders submit encrypted ballots; the contract keeps three encrypted
// counters per proposal updated through the FHE engine without ever learning
// a choice, and decrypts the aggregates exactly once after the deadline.
type GovernanceContract struct {
	contractapi.Contract
	engine   fhe.Engine
	captable registry.CapTable
}

// NewGovernanceContract wires the contract to its FHE engine and, optionally,
// to the company's official cap table (nil skips the register check).
func NewGovernanceContract(engine fhe.Engine, captable registry.CapTable) *GovernanceContract {
	return &GovernanceContract{engine: engine, captable: captable}
}

/* Identity helpers */

// callerAddress derives the caller's address from the transaction creator:
// the last 20 bytes of the keccak256 of the identity bytes.
func callerAddress(ctx contractapi.TransactionContextInterface) (common.Address, error) {
	creator, err := ctx.GetStub().GetCreator()
	if err != nil {
		return common.Address{}, fmt.Errorf("get creator: %v", err)
	}
	if len(creator) == 0 {
		return common.Address{}, fmt.Errorf("empty creator identity")
	}

	var sid msp.SerializedIdentity
	if err := proto.Unmarshal(creator, &sid); err == nil && len(sid.IdBytes) > 0 {
		return common.BytesToAddress(ethcrypto.Keccak256(sid.IdBytes)[12:]), nil
	}
	return common.BytesToAddress(ethcrypto.Keccak256(creator)[12:]), nil
}

// contractAddress is the stable address this deployment acts under towards
// the engine, derived from the channel and chaincode name.
func contractAddress(ctx contractapi.TransactionContextInterface) common.Address {
	seed := ctx.GetStub().GetChannelID() + "::" + contractName
	return common.BytesToAddress(ethcrypto.Keccak256([]byte(seed))[12:])
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: bad address %q", ErrInvalidArgument, s)
	}
	return common.HexToAddress(s), nil
}

/* Small helpers */

// txNow returns the transaction timestamp in unix seconds; every time check
// in the contract uses this so endorsers agree on "now".
func txNow(ctx contractapi.TransactionContextInterface) int64 {
	ts, _ := ctx.GetStub().GetTxTimestamp()
	return ts.GetSeconds()
}

func mustJSON(v any) []byte { b, _ := json.Marshal(v); return b }

func boardKey(addr common.Address) string  { return keyBoardPrefix + addr.Hex() }
func holderKey(addr common.Address) string { return keyHolderPrefix + addr.Hex() }

func propKey(id uint64) string  { return fmt.Sprintf("%s%08d", keyPropPrefix, id) }
func tallyKey(id uint64) string { return fmt.Sprintf("%s%d", keyTallyPrefix, id) }
func resultKey(id uint64) string {
	return fmt.Sprintf("%s%d", keyResultPrefix, id)
}
func voteKey(id uint64, voter common.Address) string {
	return fmt.Sprintf("%s%d::%s", keyVotePrefix, id, voter.Hex())
}

func cryptoErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCryptography, op, err)
}

/* State loaders */

func getCompany(ctx contractapi.TransactionContextInterface) (*models.Company, error) {
	raw, err := ctx.GetStub().GetState(keyCompany)
	if err != nil {
		return nil, fmt.Errorf("read company: %v", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: company not initialized", ErrInvalidState)
	}
	var company models.Company
	if err := json.Unmarshal(raw, &company); err != nil {
		return nil, fmt.Errorf("decode company: %v", err)
	}
	return &company, nil
}

// requireOwner loads the company and checks the caller is its owner.
func requireOwner(ctx contractapi.TransactionContextInterface) (*models.Company, common.Address, error) {
	company, err := getCompany(ctx)
	if err != nil {
		return nil, common.Address{}, err
	}
	caller, err := callerAddress(ctx)
	if err != nil {
		return nil, common.Address{}, err
	}
	if company.Owner != caller.Hex() {
		return nil, common.Address{}, fmt.Errorf("%w: caller %s is not the company owner", ErrUnauthorized, caller.Hex())
	}
	return company, caller, nil
}

func getProposal(ctx contractapi.TransactionContextInterface, id uint64) (*models.Proposal, error) {
	raw, err := ctx.GetStub().GetState(propKey(id))
	if err != nil {
		return nil, fmt.Errorf("read proposal: %v", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: unknown proposal %d", ErrInvalidArgument, id)
	}
	var prop models.Proposal
	if err := json.Unmarshal(raw, &prop); err != nil {
		return nil, fmt.Errorf("decode proposal: %v", err)
	}
	return &prop, nil
}

func getTally(ctx contractapi.TransactionContextInterface, id uint64) (*models.Tally, error) {
	raw, err := ctx.GetStub().GetState(tallyKey(id))
	if err != nil {
		return nil, fmt.Errorf("read tally: %v", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: no tally for proposal %d", ErrInvalidState, id)
	}
	var tally models.Tally
	if err := json.Unmarshal(raw, &tally); err != nil {
		return nil, fmt.Errorf("decode tally: %v", err)
	}
	return &tally, nil
}

/* Diagnostics */

// WhoAmI returns the address the contract derives for the caller.
func (c *GovernanceContract) WhoAmI(ctx contractapi.TransactionContextInterface) (string, error) {
	caller, err := callerAddress(ctx)
	if err != nil {
		return "", err
	}
	return caller.Hex(), nil
}

// ContractAddress returns the address this deployment acts under.
func (c *GovernanceContract) ContractAddress(ctx contractapi.TransactionContextInterface) (string, error) {
	return contractAddress(ctx).Hex(), nil
}

// Ping is a liveness probe.
func (c *GovernanceContract) Ping(ctx contractapi.TransactionContextInterface) (string, error) {
	return "OK:" + ctx.GetStub().GetTxID(), nil
}
