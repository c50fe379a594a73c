package chaincode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

	"boardvote/models"
)

// InitializeCompany records the company exactly once; the caller becomes the
// owner. Every later registration and proposal hangs off this record.
func (c *GovernanceContract) InitializeCompany(ctx contractapi.TransactionContextInterface, name string, totalShares uint64) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: company name must not be empty", ErrInvalidArgument)
	}
	if totalShares == 0 {
		return fmt.Errorf("%w: total shares must be positive", ErrInvalidArgument)
	}

	existing, err := ctx.GetStub().GetState(keyCompany)
	if err != nil {
		return fmt.Errorf("read company: %v", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: company already initialized", ErrInvalidState)
	}

	caller, err := callerAddress(ctx)
	if err != nil {
		return err
	}

	company := models.Company{
		Name:        name,
		TotalShares: totalShares,
		Owner:       caller.Hex(),
		CreatedAt:   txNow(ctx),
	}

	if err := ctx.GetStub().PutState(keyCompany, mustJSON(company)); err != nil {
		return fmt.Errorf("write company: %v", err)
	}
	if err := ctx.GetStub().PutState(keyAllocated, []byte("0")); err != nil {
		return fmt.Errorf("write allocation: %v", err)
	}

	_ = ctx.GetStub().SetEvent(eventCompanyInitialized, mustJSON(map[string]any{
		"name":         name,
		"total_shares": totalShares,
		"owner":        company.Owner,
	}))
	return nil
}

// AddBoardMember registers an address as a board seat. Owner only.
func (c *GovernanceContract) AddBoardMember(ctx contractapi.TransactionContextInterface, address string) error {
	if _, _, err := requireOwner(ctx); err != nil {
		return err
	}
	addr, err := parseAddress(address)
	if err != nil {
		return err
	}

	existing, err := ctx.GetStub().GetState(boardKey(addr))
	if err != nil {
		return fmt.Errorf("read board member: %v", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s is already a board member", ErrInvalidArgument, addr.Hex())
	}

	member := models.BoardMember{Address: addr.Hex(), AddedAt: txNow(ctx)}
	if err := ctx.GetStub().PutState(boardKey(addr), mustJSON(member)); err != nil {
		return fmt.Errorf("write board member: %v", err)
	}

	_ = ctx.GetStub().SetEvent(eventBoardMemberAdded, mustJSON(map[string]string{
		"address": addr.Hex(),
	}))
	return nil
}

// RemoveBoardMember clears a board seat. Owner only; the owner's own seat
// cannot be removed.
func (c *GovernanceContract) RemoveBoardMember(ctx contractapi.TransactionContextInterface, address string) error {
	company, _, err := requireOwner(ctx)
	if err != nil {
		return err
	}
	addr, err := parseAddress(address)
	if err != nil {
		return err
	}

	if company.Owner == addr.Hex() {
		return fmt.Errorf("%w: the owner's board seat cannot be removed", ErrInvalidArgument)
	}

	existing, err := ctx.GetStub().GetState(boardKey(addr))
	if err != nil {
		return fmt.Errorf("read board member: %v", err)
	}
	if existing == nil {
		return fmt.Errorf("%w: %s is not a board member", ErrInvalidArgument, addr.Hex())
	}

	if err := ctx.GetStub().DelState(boardKey(addr)); err != nil {
		return fmt.Errorf("delete board member: %v", err)
	}

	_ = ctx.GetStub().SetEvent(eventBoardMemberRemoved, mustJSON(map[string]string{
		"address": addr.Hex(),
	}))
	return nil
}

// AddShareholder registers a holder with a share count. Owner only; the
// cumulative allocation may never exceed the company's total shares, and when
// a cap table is wired the holder must appear there with at least that many
// shares.
func (c *GovernanceContract) AddShareholder(ctx contractapi.TransactionContextInterface, address, name string, shares uint64) error {
	company, _, err := requireOwner(ctx)
	if err != nil {
		return err
	}
	addr, err := parseAddress(address)
	if err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: shareholder name must not be empty", ErrInvalidArgument)
	}
	if shares == 0 {
		return fmt.Errorf("%w: shares must be positive", ErrInvalidArgument)
	}

	existing, err := ctx.GetStub().GetState(holderKey(addr))
	if err != nil {
		return fmt.Errorf("read shareholder: %v", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s is already registered", ErrInvalidArgument, addr.Hex())
	}

	allocated, err := getAllocated(ctx)
	if err != nil {
		return err
	}
	if allocated+shares > company.TotalShares {
		return fmt.Errorf("%w: allocating %d shares exceeds the %d authorized (%d already allocated)",
			ErrInvalidArgument, shares, company.TotalShares, allocated)
	}

	if c.captable != nil {
		holder, err := c.captable.GetHolder(addr.Hex())
		if err != nil {
			return fmt.Errorf("%w: %s is not in the official cap table: %v", ErrInvalidArgument, addr.Hex(), err)
		}
		if holder.Shares < shares {
			return fmt.Errorf("%w: cap table lists %d shares for %s, got %d",
				ErrInvalidArgument, holder.Shares, addr.Hex(), shares)
		}
	}

	shareholder := models.Shareholder{
		Address:      addr.Hex(),
		Name:         name,
		Shares:       shares,
		RegisteredAt: txNow(ctx),
	}

	if err := ctx.GetStub().PutState(holderKey(addr), mustJSON(shareholder)); err != nil {
		return fmt.Errorf("write shareholder: %v", err)
	}
	if err := putAllocated(ctx, allocated+shares); err != nil {
		return err
	}

	_ = ctx.GetStub().SetEvent(eventShareholderRegistered, mustJSON(map[string]any{
		"address": addr.Hex(),
		"shares":  shares,
	}))
	return nil
}

func getAllocated(ctx contractapi.TransactionContextInterface) (uint64, error) {
	raw, err := ctx.GetStub().GetState(keyAllocated)
	if err != nil {
		return 0, fmt.Errorf("read allocation: %v", err)
	}
	if raw == nil {
		return 0, nil
	}
	v, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode allocation: %v", err)
	}
	return v, nil
}

func putAllocated(ctx contractapi.TransactionContextInterface, v uint64) error {
	if err := ctx.GetStub().PutState(keyAllocated, []byte(strconv.FormatUint(v, 10))); err != nil {
		return fmt.Errorf("write allocation: %v", err)
	}
	return nil
}

/* Read-only queries */

// GetCompany returns the company record.
func (c *GovernanceContract) GetCompany(ctx contractapi.TransactionContextInterface) (*models.Company, error) {
	return getCompany(ctx)
}

// IsBoardMember reports whether the address holds a board seat.
func (c *GovernanceContract) IsBoardMember(ctx contractapi.TransactionContextInterface, address string) (bool, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return false, err
	}
	raw, err := ctx.GetStub().GetState(boardKey(addr))
	if err != nil {
		return false, fmt.Errorf("read board member: %v", err)
	}
	return raw != nil, nil
}

// IsShareholder reports whether the address is a registered shareholder.
func (c *GovernanceContract) IsShareholder(ctx contractapi.TransactionContextInterface, address string) (bool, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return false, err
	}
	raw, err := ctx.GetStub().GetState(holderKey(addr))
	if err != nil {
		return false, fmt.Errorf("read shareholder: %v", err)
	}
	return raw != nil, nil
}

// GetShareholder returns one holder's registration.
func (c *GovernanceContract) GetShareholder(ctx contractapi.TransactionContextInterface, address string) (*models.Shareholder, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	raw, err := ctx.GetStub().GetState(holderKey(addr))
	if err != nil {
		return nil, fmt.Errorf("read shareholder: %v", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s is not a registered shareholder", ErrInvalidArgument, addr.Hex())
	}
	var holder models.Shareholder
	if err := json.Unmarshal(raw, &holder); err != nil {
		return nil, fmt.Errorf("decode shareholder: %v", err)
	}
	return &holder, nil
}

// ListShareholders returns the full roster in key order.
func (c *GovernanceContract) ListShareholders(ctx contractapi.TransactionContextInterface) ([]*models.Shareholder, error) {
	it, err := ctx.GetStub().GetStateByRange(keyHolderPrefix, keyHolderPrefix+"~")
	if err != nil {
		return nil, fmt.Errorf("scan shareholders: %v", err)
	}
	defer it.Close()

	out := []*models.Shareholder{}
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("scan shareholders: %v", err)
		}
		var holder models.Shareholder
		if err := json.Unmarshal(kv.Value, &holder); err != nil {
			continue
		}
		out = append(out, &holder)
	}
	return out, nil
}
