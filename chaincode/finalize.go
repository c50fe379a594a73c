package chaincode

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

	"boardvote/models"
)

// FinalizeProposal decrypts the three counters and publishes the result.
// Anyone may call it once the deadline has passed; it succeeds exactly once
// per proposal. A proposal passes on a strict yes-over-no majority, so ties
// and abstain-only tallies fail.
func (c *GovernanceContract) FinalizeProposal(ctx contractapi.TransactionContextInterface, proposalID uint64) (*models.Result, error) {
	prop, err := getProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	now := txNow(ctx)
	if now < prop.Deadline {
		return nil, fmt.Errorf("%w: voting on proposal %d is still open until %d", ErrInvalidState, proposalID, prop.Deadline)
	}
	if prop.Finalized {
		return nil, fmt.Errorf("%w: proposal %d already finalized", ErrInvalidState, proposalID)
	}

	tally, err := getTally(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	self := contractAddress(ctx)
	yes, err := c.engine.Decrypt(self, common.HexToHash(tally.Yes))
	if err != nil {
		return nil, cryptoErr("decrypt yes counter", err)
	}
	no, err := c.engine.Decrypt(self, common.HexToHash(tally.No))
	if err != nil {
		return nil, cryptoErr("decrypt no counter", err)
	}
	abstain, err := c.engine.Decrypt(self, common.HexToHash(tally.Abstain))
	if err != nil {
		return nil, cryptoErr("decrypt abstain counter", err)
	}

	result := models.Result{
		ProposalID:  proposalID,
		Yes:         yes,
		No:          no,
		Abstain:     abstain,
		Passed:      yes > no,
		FinalizedAt: now,
	}

	prop.Finalized = true
	if err := ctx.GetStub().PutState(propKey(proposalID), mustJSON(prop)); err != nil {
		return nil, fmt.Errorf("write proposal: %v", err)
	}
	if err := ctx.GetStub().PutState(resultKey(proposalID), mustJSON(result)); err != nil {
		return nil, fmt.Errorf("write result: %v", err)
	}

	_ = ctx.GetStub().SetEvent(eventProposalFinalized, mustJSON(map[string]any{
		"proposal_id":   proposalID,
		"yes_votes":     yes,
		"no_votes":      no,
		"abstain_votes": abstain,
		"passed":        result.Passed,
	}))
	return &result, nil
}

// GetResults returns the decrypted totals of a finalized proposal.
func (c *GovernanceContract) GetResults(ctx contractapi.TransactionContextInterface, proposalID uint64) (*models.Result, error) {
	raw, err := ctx.GetStub().GetState(resultKey(proposalID))
	if err != nil {
		return nil, fmt.Errorf("read result: %v", err)
	}
	if raw == nil {
		if _, err := getProposal(ctx, proposalID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: proposal %d not finalized yet", ErrInvalidState, proposalID)
	}
	var result models.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode result: %v", err)
	}
	return &result, nil
}
