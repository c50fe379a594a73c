package chaincode

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

	"boardvote/fhe"
	"boardvote/models"
)

// CastConfidentialVote records a shareholder's encrypted ballot and folds it
// into the running counters without learning the choice.
//
// The counter update runs unconditionally for all three choice values, so the
// write pattern is identical whatever the ballot says. Each updated counter is
// re-granted to the contract: permissions do not propagate through engine
// operations, and finalization later needs to decrypt exactly these handles.
func (c *GovernanceContract) CastConfidentialVote(ctx contractapi.TransactionContextInterface, proposalID uint64, encryptedChoice, proof string) error {
	caller, err := callerAddress(ctx)
	if err != nil {
		return err
	}

	holder, err := ctx.GetStub().GetState(holderKey(caller))
	if err != nil {
		return fmt.Errorf("read shareholder: %v", err)
	}
	if holder == nil {
		return fmt.Errorf("%w: only registered shareholders may vote", ErrUnauthorized)
	}

	prop, err := getProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	now := txNow(ctx)
	if now >= prop.Deadline {
		return fmt.Errorf("%w: voting on proposal %d closed", ErrInvalidState, proposalID)
	}

	existing, err := ctx.GetStub().GetState(voteKey(proposalID, caller))
	if err != nil {
		return fmt.Errorf("read vote record: %v", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s already voted on proposal %d", ErrInvalidState, caller.Hex(), proposalID)
	}

	ctBytes, err := base64.StdEncoding.DecodeString(encryptedChoice)
	if err != nil {
		return fmt.Errorf("%w: encrypted choice is not valid base64: %v", ErrInvalidArgument, err)
	}
	proofBytes, err := base64.StdEncoding.DecodeString(proof)
	if err != nil {
		return fmt.Errorf("%w: proof is not valid base64: %v", ErrInvalidArgument, err)
	}

	self := contractAddress(ctx)
	voteHandle, err := c.engine.VerifyAndImport(ctBytes, proofBytes, self, caller, fhe.TypeUint8)
	if err != nil {
		return cryptoErr("verify ballot", err)
	}

	// Both grants are required: the contract's for the tally operations below,
	// the voter's for their own later self-verification.
	if err := c.engine.AllowContract(voteHandle, self); err != nil {
		return cryptoErr("grant contract on ballot", err)
	}
	if err := c.engine.AllowUser(voteHandle, caller); err != nil {
		return cryptoErr("grant voter on ballot", err)
	}

	tally, err := getTally(ctx, proposalID)
	if err != nil {
		return err
	}

	one, err := c.engine.EncryptConstant(self, 1, fhe.TypeUint64)
	if err != nil {
		return cryptoErr("encode increment", err)
	}
	zero, err := c.engine.EncryptConstant(self, 0, fhe.TypeUint64)
	if err != nil {
		return cryptoErr("encode increment", err)
	}

	counters := []fhe.Handle{
		common.HexToHash(tally.Yes),
		common.HexToHash(tally.No),
		common.HexToHash(tally.Abstain),
	}
	choices := []models.VoteChoice{models.ChoiceYes, models.ChoiceNo, models.ChoiceAbstain}

	for i, choice := range choices {
		encoded, err := c.engine.EncryptConstant(self, uint64(choice), fhe.TypeUint8)
		if err != nil {
			return cryptoErr("encode choice constant", err)
		}
		isChoice, err := c.engine.Eq(self, voteHandle, encoded)
		if err != nil {
			return cryptoErr("compare ballot", err)
		}
		increment, err := c.engine.Select(self, isChoice, one, zero)
		if err != nil {
			return cryptoErr("select increment", err)
		}
		updated, err := c.engine.Add(self, counters[i], increment)
		if err != nil {
			return cryptoErr("add to counter", err)
		}
		if err := c.engine.AllowContract(updated, self); err != nil {
			return cryptoErr("re-grant counter", err)
		}
		counters[i] = updated
	}

	tally.Yes = counters[0].Hex()
	tally.No = counters[1].Hex()
	tally.Abstain = counters[2].Hex()
	tally.Votes++

	record := models.VoteRecord{
		ProposalID: proposalID,
		Voter:      caller.Hex(),
		Handle:     voteHandle.Hex(),
		CastAt:     now,
		TxID:       ctx.GetStub().GetTxID(),
	}

	if err := ctx.GetStub().PutState(tallyKey(proposalID), mustJSON(tally)); err != nil {
		return fmt.Errorf("write tally: %v", err)
	}
	if err := ctx.GetStub().PutState(voteKey(proposalID, caller), mustJSON(record)); err != nil {
		return fmt.Errorf("write vote record: %v", err)
	}

	_ = ctx.GetStub().SetEvent(eventVoteCast, mustJSON(map[string]any{
		"proposal_id": proposalID,
		"voter":       caller.Hex(),
	}))
	return nil
}

// HasVoted reports whether the address already voted on the proposal.
func (c *GovernanceContract) HasVoted(ctx contractapi.TransactionContextInterface, proposalID uint64, address string) (bool, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return false, err
	}
	if _, err := getProposal(ctx, proposalID); err != nil {
		return false, err
	}
	raw, err := ctx.GetStub().GetState(voteKey(proposalID, addr))
	if err != nil {
		return false, fmt.Errorf("read vote record: %v", err)
	}
	return raw != nil, nil
}

// GetVoteCount returns the plaintext turnout for a proposal. Turnout is
// public; only the choices are confidential.
func (c *GovernanceContract) GetVoteCount(ctx contractapi.TransactionContextInterface, proposalID uint64) (uint64, error) {
	if _, err := getProposal(ctx, proposalID); err != nil {
		return 0, err
	}
	tally, err := getTally(ctx, proposalID)
	if err != nil {
		return 0, err
	}
	return tally.Votes, nil
}

// GetMyVote seals the caller's own stored ballot to the public key they
// supply, so they can verify their vote off-chain. It never reveals anyone
// else's ballot.
func (c *GovernanceContract) GetMyVote(ctx contractapi.TransactionContextInterface, proposalID uint64, publicKey string) (string, error) {
	caller, err := callerAddress(ctx)
	if err != nil {
		return "", err
	}
	if _, err := getProposal(ctx, proposalID); err != nil {
		return "", err
	}

	raw, err := ctx.GetStub().GetState(voteKey(proposalID, caller))
	if err != nil {
		return "", fmt.Errorf("read vote record: %v", err)
	}
	if raw == nil {
		return "", fmt.Errorf("%w: %s has not voted on proposal %d", ErrInvalidState, caller.Hex(), proposalID)
	}
	var record models.VoteRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", fmt.Errorf("decode vote record: %v", err)
	}

	pub, err := parsePublicKey(publicKey)
	if err != nil {
		return "", err
	}

	sealed, err := c.engine.Seal(caller, pub, common.HexToHash(record.Handle))
	if err != nil {
		return "", cryptoErr("seal ballot", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func parsePublicKey(s string) (*ecdsa.PublicKey, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not valid hex: %v", ErrInvalidArgument, err)
	}
	pub, err := ethcrypto.UnmarshalPubkey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: bad public key: %v", ErrInvalidArgument, err)
	}
	return pub, nil
}
