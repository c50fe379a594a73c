package models

import (
	"fmt"
	"strings"
)

// ProposalType classifies what a proposal asks the shareholders to decide.
type ProposalType uint8

const (
	ProposalGeneral ProposalType = iota
	ProposalBudget
	ProposalBoardChange
	ProposalMerger
	ProposalDividend
)

func (t ProposalType) String() string {
	switch t {
	case ProposalGeneral:
		return "general"
	case ProposalBudget:
		return "budget"
	case ProposalBoardChange:
		return "board-change"
	case ProposalMerger:
		return "merger"
	case ProposalDividend:
		return "dividend"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseProposalType maps a user-supplied type name to its enum value.
func ParseProposalType(s string) (ProposalType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "general":
		return ProposalGeneral, nil
	case "budget":
		return ProposalBudget, nil
	case "board-change", "board_change":
		return ProposalBoardChange, nil
	case "merger":
		return ProposalMerger, nil
	case "dividend":
		return ProposalDividend, nil
	default:
		return 0, fmt.Errorf("unknown proposal type %q", s)
	}
}

// VoteChoice is the plaintext ballot domain. Zero is deliberately not a valid
// choice so an uninitialized value never matches a counter.
type VoteChoice uint8

const (
	ChoiceYes     VoteChoice = 1
	ChoiceNo      VoteChoice = 2
	ChoiceAbstain VoteChoice = 3
)

type Company struct {
	Name        string `json:"name"`
	TotalShares uint64 `json:"total_shares"`
	Owner       string `json:"owner"`
	CreatedAt   int64  `json:"created_at"`
}

type BoardMember struct {
	Address string `json:"address"`
	AddedAt int64  `json:"added_at"`
}

type Shareholder struct {
	Address      string `json:"address"`
	Name         string `json:"name"`
	Shares       uint64 `json:"shares"`
	RegisteredAt int64  `json:"registered_at"`
}

type Proposal struct {
	ID          uint64       `json:"id"`
	Type        ProposalType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Creator     string       `json:"creator"`
	CreatedAt   int64        `json:"created_at"`
	Deadline    int64        `json:"deadline"`
	Finalized   bool         `json:"finalized"`
}

// ProposalStatus is derived from the deadline and the finalized flag; it is
// never stored.
type ProposalStatus string

const (
	StatusVotingOpen   ProposalStatus = "voting_open"
	StatusVotingClosed ProposalStatus = "voting_closed"
	StatusFinalized    ProposalStatus = "finalized"
)

func (p *Proposal) Status(now int64) ProposalStatus {
	switch {
	case p.Finalized:
		return StatusFinalized
	case now >= p.Deadline:
		return StatusVotingClosed
	default:
		return StatusVotingOpen
	}
}

// ProposalInfo is a proposal together with its derived status, for listings.
type ProposalInfo struct {
	Proposal
	Status ProposalStatus `json:"status"`
}

// Tally holds the handles of the three running encrypted counters for a
// proposal plus the plaintext turnout. The counter values themselves live in
// the engine and are never visible here.
type Tally struct {
	ProposalID uint64 `json:"proposal_id"`
	Yes        string `json:"yes"`
	No         string `json:"no"`
	Abstain    string `json:"abstain"`
	Votes      uint64 `json:"votes"`
}

// VoteRecord marks that a shareholder has voted and keeps the handle of their
// stored ciphertext for later self-verification. It carries no choice data.
type VoteRecord struct {
	ProposalID uint64 `json:"proposal_id"`
	Voter      string `json:"voter"`
	Handle     string `json:"handle"`
	CastAt     int64  `json:"cast_at"`
	TxID       string `json:"tx_id"`
}

type Result struct {
	ProposalID  uint64 `json:"proposal_id"`
	Yes         uint64 `json:"yes_votes"`
	No          uint64 `json:"no_votes"`
	Abstain     uint64 `json:"abstain_votes"`
	Passed      bool   `json:"passed"`
	FinalizedAt int64  `json:"finalized_at"`
}

// Ciphertext is an engine-held encrypted value together with its access list.
// Producer is the contract that created the value through an engine operation;
// Contracts and Users are the durable grants added explicitly afterwards.
type Ciphertext struct {
	Bytes     []byte          `json:"bytes"`
	Type      uint8           `json:"type"`
	Producer  string          `json:"producer,omitempty"`
	Contracts map[string]bool `json:"contracts,omitempty"`
	Users     map[string]bool `json:"users,omitempty"`
}
