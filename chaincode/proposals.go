package chaincode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

	"boardvote/fhe"
	"boardvote/models"
)

const maxVotingDays = 365

// CreateProposal opens a new proposal for voting. Board members only;
// votingDays must be in (0, 365]. Three zero counters are created in the
// engine and durably granted to the contract so finalization can decrypt them.
func (c *GovernanceContract) CreateProposal(ctx contractapi.TransactionContextInterface, proposalType, title, description string, votingDays uint64) (uint64, error) {
	if _, err := getCompany(ctx); err != nil {
		return 0, err
	}
	caller, err := callerAddress(ctx)
	if err != nil {
		return 0, err
	}

	seat, err := ctx.GetStub().GetState(boardKey(caller))
	if err != nil {
		return 0, fmt.Errorf("read board member: %v", err)
	}
	if seat == nil {
		return 0, fmt.Errorf("%w: only board members may create proposals", ErrUnauthorized)
	}

	ptype, err := models.ParseProposalType(proposalType)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if strings.TrimSpace(title) == "" {
		return 0, fmt.Errorf("%w: title must not be empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(description) == "" {
		return 0, fmt.Errorf("%w: description must not be empty", ErrInvalidArgument)
	}
	if votingDays == 0 || votingDays > maxVotingDays {
		return 0, fmt.Errorf("%w: voting days must be in (0, %d], got %d", ErrInvalidArgument, maxVotingDays, votingDays)
	}

	id, err := nextProposalID(ctx)
	if err != nil {
		return 0, err
	}

	now := txNow(ctx)
	prop := models.Proposal{
		ID:          id,
		Type:        ptype,
		Title:       title,
		Description: description,
		Creator:     caller.Hex(),
		CreatedAt:   now,
		Deadline:    now + int64(votingDays)*86400,
	}

	self := contractAddress(ctx)
	counters := make([]fhe.Handle, 3)
	for i := range counters {
		h, err := c.engine.EncryptConstant(self, 0, fhe.TypeUint64)
		if err != nil {
			return 0, cryptoErr("create counter", err)
		}
		if err := c.engine.AllowContract(h, self); err != nil {
			return 0, cryptoErr("grant counter", err)
		}
		counters[i] = h
	}

	tally := models.Tally{
		ProposalID: id,
		Yes:        counters[0].Hex(),
		No:         counters[1].Hex(),
		Abstain:    counters[2].Hex(),
	}

	if err := ctx.GetStub().PutState(propKey(id), mustJSON(prop)); err != nil {
		return 0, fmt.Errorf("write proposal: %v", err)
	}
	if err := ctx.GetStub().PutState(tallyKey(id), mustJSON(tally)); err != nil {
		return 0, fmt.Errorf("write tally: %v", err)
	}

	_ = ctx.GetStub().SetEvent(eventProposalCreated, mustJSON(map[string]any{
		"proposal_id": id,
		"type":        ptype.String(),
		"title":       title,
		"creator":     prop.Creator,
		"deadline":    prop.Deadline,
	}))
	return id, nil
}

func nextProposalID(ctx contractapi.TransactionContextInterface) (uint64, error) {
	raw, err := ctx.GetStub().GetState(keyProposalSeq)
	if err != nil {
		return 0, fmt.Errorf("read proposal sequence: %v", err)
	}
	var last uint64
	if raw != nil {
		last, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("decode proposal sequence: %v", err)
		}
	}

	id := last + 1
	if err := ctx.GetStub().PutState(keyProposalSeq, []byte(strconv.FormatUint(id, 10))); err != nil {
		return 0, fmt.Errorf("write proposal sequence: %v", err)
	}
	return id, nil
}

// GetProposal returns one proposal.
func (c *GovernanceContract) GetProposal(ctx contractapi.TransactionContextInterface, proposalID uint64) (*models.Proposal, error) {
	return getProposal(ctx, proposalID)
}

// ListProposals returns all proposals in id order, each with its derived
// status.
func (c *GovernanceContract) ListProposals(ctx contractapi.TransactionContextInterface) ([]*models.ProposalInfo, error) {
	it, err := ctx.GetStub().GetStateByRange(keyPropPrefix, keyPropPrefix+"~")
	if err != nil {
		return nil, fmt.Errorf("scan proposals: %v", err)
	}
	defer it.Close()

	now := txNow(ctx)
	out := []*models.ProposalInfo{}
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("scan proposals: %v", err)
		}
		var prop models.Proposal
		if err := json.Unmarshal(kv.Value, &prop); err != nil {
			continue
		}
		out = append(out, &models.ProposalInfo{Proposal: prop, Status: prop.Status(now)})
	}
	return out, nil
}
