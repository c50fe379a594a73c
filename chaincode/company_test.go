package chaincode

import (
	"path/filepath"
	"testing"
	"time"

	"boardvote/registry"
)

func TestInitializeCompany(t *testing.T) {
	h := newHarness(t)
	h.as(h.owner)

	requireNoErr(t, h.cc.InitializeCompany(h.ctx, testCompany, testTotalShares))

	company, err := h.cc.GetCompany(h.ctx)
	requireNoErr(t, err)
	if company.Name != testCompany {
		t.Fatalf("company name = %q, want %q", company.Name, testCompany)
	}
	if company.TotalShares != testTotalShares {
		t.Fatalf("total shares = %d, want %d", company.TotalShares, testTotalShares)
	}
	if company.Owner != h.owner.addr.Hex() {
		t.Fatalf("owner = %s, want %s", company.Owner, h.owner.addr.Hex())
	}
	if company.CreatedAt != testBaseTime {
		t.Fatalf("created at = %d, want %d", company.CreatedAt, testBaseTime)
	}

	ev := h.lastEvent(eventCompanyInitialized)
	if ev["owner"] != h.owner.addr.Hex() {
		t.Fatalf("event owner = %v, want %s", ev["owner"], h.owner.addr.Hex())
	}
}

func TestInitializeCompanyExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.as(h.owner)
	requireNoErr(t, h.cc.InitializeCompany(h.ctx, testCompany, testTotalShares))

	err := h.cc.InitializeCompany(h.ctx, "Second Corp", 500)
	requireErrIs(t, err, ErrInvalidState)
	requireErrContains(t, err, "already initialized")

	// A different caller cannot re-initialize either.
	h.as(getPersona(t, "alice"))
	err = h.cc.InitializeCompany(h.ctx, "Takeover Corp", 500)
	requireErrIs(t, err, ErrInvalidState)

	company, err := h.cc.GetCompany(h.ctx)
	requireNoErr(t, err)
	if company.Name != testCompany || company.Owner != h.owner.addr.Hex() {
		t.Fatalf("company record changed after rejected re-initialization: %+v", company)
	}
}

func TestInitializeCompanyValidation(t *testing.T) {
	h := newHarness(t)
	h.as(h.owner)

	requireErrIs(t, h.cc.InitializeCompany(h.ctx, "", 100), ErrInvalidArgument)
	requireErrIs(t, h.cc.InitializeCompany(h.ctx, "   ", 100), ErrInvalidArgument)
	requireErrIs(t, h.cc.InitializeCompany(h.ctx, testCompany, 0), ErrInvalidArgument)
}

func TestQueriesBeforeInitialization(t *testing.T) {
	h := newHarness(t)

	_, err := h.cc.GetCompany(h.ctx)
	requireErrIs(t, err, ErrInvalidState)
	requireErrContains(t, err, "not initialized")

	err = h.cc.AddBoardMember(h.ctx, getPersona(t, "alice").addr.Hex())
	requireErrIs(t, err, ErrInvalidState)
}

func TestAddBoardMember(t *testing.T) {
	h := newHarness(t)
	bob := getPersona(t, "bob")
	h.seedGovernance()

	requireNoErr(t, h.cc.AddBoardMember(h.ctx, bob.addr.Hex()))

	isMember, err := h.cc.IsBoardMember(h.ctx, bob.addr.Hex())
	requireNoErr(t, err)
	if !isMember {
		t.Fatal("bob should hold a board seat")
	}

	ev := h.lastEvent(eventBoardMemberAdded)
	if ev["address"] != bob.addr.Hex() {
		t.Fatalf("event address = %v, want %s", ev["address"], bob.addr.Hex())
	}

	err = h.cc.AddBoardMember(h.ctx, bob.addr.Hex())
	requireErrIs(t, err, ErrInvalidArgument)
	requireErrContains(t, err, "already a board member")

	err = h.cc.AddBoardMember(h.ctx, "not-an-address")
	requireErrIs(t, err, ErrInvalidArgument)
}

func TestAddBoardMemberOwnerOnly(t *testing.T) {
	h := newHarness(t)
	alice := getPersona(t, "alice")
	h.seedGovernance()

	h.as(alice)
	err := h.cc.AddBoardMember(h.ctx, alice.addr.Hex())
	requireErrIs(t, err, ErrUnauthorized)
	requireErrContains(t, err, "not the company owner")
}

func TestOwnerHasNoImplicitBoardSeat(t *testing.T) {
	h := newHarness(t)
	h.as(h.owner)
	requireNoErr(t, h.cc.InitializeCompany(h.ctx, testCompany, testTotalShares))

	isMember, err := h.cc.IsBoardMember(h.ctx, h.owner.addr.Hex())
	requireNoErr(t, err)
	if isMember {
		t.Fatal("initialization must not seat the owner on the board")
	}

	_, err = h.cc.CreateProposal(h.ctx, "general", "Title", "Description", 7)
	requireErrIs(t, err, ErrUnauthorized)
}

func TestRemoveBoardMember(t *testing.T) {
	h := newHarness(t)
	bob := getPersona(t, "bob")
	h.seedGovernance()
	requireNoErr(t, h.cc.AddBoardMember(h.ctx, bob.addr.Hex()))

	requireNoErr(t, h.cc.RemoveBoardMember(h.ctx, bob.addr.Hex()))

	isMember, err := h.cc.IsBoardMember(h.ctx, bob.addr.Hex())
	requireNoErr(t, err)
	if isMember {
		t.Fatal("bob should no longer hold a board seat")
	}

	ev := h.lastEvent(eventBoardMemberRemoved)
	if ev["address"] != bob.addr.Hex() {
		t.Fatalf("event address = %v, want %s", ev["address"], bob.addr.Hex())
	}

	err = h.cc.RemoveBoardMember(h.ctx, bob.addr.Hex())
	requireErrIs(t, err, ErrInvalidArgument)
	requireErrContains(t, err, "not a board member")
}

func TestRemoveBoardMemberProtectsOwnerSeat(t *testing.T) {
	h := newHarness(t)
	h.seedGovernance()

	err := h.cc.RemoveBoardMember(h.ctx, h.owner.addr.Hex())
	requireErrIs(t, err, ErrInvalidArgument)
	requireErrContains(t, err, "owner's board seat")

	isMember, err := h.cc.IsBoardMember(h.ctx, h.owner.addr.Hex())
	requireNoErr(t, err)
	if !isMember {
		t.Fatal("owner's seat must survive the rejected removal")
	}
}

func TestRemoveBoardMemberOwnerOnly(t *testing.T) {
	h := newHarness(t)
	alice := getPersona(t, "alice")
	bob := getPersona(t, "bob")
	h.seedGovernance()
	requireNoErr(t, h.cc.AddBoardMember(h.ctx, bob.addr.Hex()))

	h.as(alice)
	requireErrIs(t, h.cc.RemoveBoardMember(h.ctx, bob.addr.Hex()), ErrUnauthorized)
}

func TestAddShareholder(t *testing.T) {
	h := newHarness(t)
	alice := getPersona(t, "alice")
	h.seedGovernance()

	requireNoErr(t, h.cc.AddShareholder(h.ctx, alice.addr.Hex(), "Alice Zhang", 250))

	holder, err := h.cc.GetShareholder(h.ctx, alice.addr.Hex())
	requireNoErr(t, err)
	if holder.Name != "Alice Zhang" || holder.Shares != 250 {
		t.Fatalf("holder = %+v", holder)
	}
	if holder.RegisteredAt != testBaseTime {
		t.Fatalf("registered at = %d, want %d", holder.RegisteredAt, testBaseTime)
	}

	isHolder, err := h.cc.IsShareholder(h.ctx, alice.addr.Hex())
	requireNoErr(t, err)
	if !isHolder {
		t.Fatal("alice should be a registered shareholder")
	}

	ev := h.lastEvent(eventShareholderRegistered)
	if ev["shares"] != float64(250) {
		t.Fatalf("event shares = %v, want 250", ev["shares"])
	}
}

func TestAddShareholderOwnerOnly(t *testing.T) {
	h := newHarness(t)
	alice := getPersona(t, "alice")
	h.seedGovernance()

	h.as(alice)
	err := h.cc.AddShareholder(h.ctx, alice.addr.Hex(), "Alice Zhang", 100)
	requireErrIs(t, err, ErrUnauthorized)
}

func TestAddShareholderValidation(t *testing.T) {
	h := newHarness(t)
	alice := getPersona(t, "alice")
	h.seedGovernance()

	requireErrIs(t, h.cc.AddShareholder(h.ctx, alice.addr.Hex(), "", 100), ErrInvalidArgument)
	requireErrIs(t, h.cc.AddShareholder(h.ctx, alice.addr.Hex(), "Alice Zhang", 0), ErrInvalidArgument)
	requireErrIs(t, h.cc.AddShareholder(h.ctx, "junk", "Alice Zhang", 100), ErrInvalidArgument)

	requireNoErr(t, h.cc.AddShareholder(h.ctx, alice.addr.Hex(), "Alice Zhang", 100))
	err := h.cc.AddShareholder(h.ctx, alice.addr.Hex(), "Alice Again", 100)
	requireErrIs(t, err, ErrInvalidArgument)
	requireErrContains(t, err, "already registered")
}

func TestShareAllocationCapped(t *testing.T) {
	h := newHarness(t)
	alice := getPersona(t, "alice")
	bob := getPersona(t, "bob")
	carol := getPersona(t, "carol")
	h.seedGovernance()

	requireNoErr(t, h.cc.AddShareholder(h.ctx, alice.addr.Hex(), "Alice Zhang", 600))
	requireNoErr(t, h.cc.AddShareholder(h.ctx, bob.addr.Hex(), "Bob Ngata", 400))

	err := h.cc.AddShareholder(h.ctx, carol.addr.Hex(), "Carol Reyes", 1)
	requireErrIs(t, err, ErrInvalidArgument)
	requireErrContains(t, err, "exceeds")
}

func TestListShareholders(t *testing.T) {
	h := newHarness(t)
	alice := getPersona(t, "alice")
	bob := getPersona(t, "bob")
	carol := getPersona(t, "carol")
	h.seedGovernance(alice, bob, carol)

	holders, err := h.cc.ListShareholders(h.ctx)
	requireNoErr(t, err)
	if len(holders) != 3 {
		t.Fatalf("got %d holders, want 3", len(holders))
	}

	seen := map[string]bool{}
	for _, holder := range holders {
		seen[holder.Address] = true
	}
	for _, p := range []*persona{alice, bob, carol} {
		if !seen[p.addr.Hex()] {
			t.Fatalf("missing holder %s", p.addr.Hex())
		}
	}
}

func TestAddShareholderCheckedAgainstCapTable(t *testing.T) {
	h := newHarness(t)
	alice := getPersona(t, "alice")
	bob := getPersona(t, "bob")
	carol := getPersona(t, "carol")
	dave := getPersona(t, "dave")

	table, err := registry.NewFileCapTable(registry.Config{
		HoldersFilePath: filepath.Join(t.TempDir(), "holders.json"),
	})
	requireNoErr(t, err)
	helper := registry.NewTestHelper(table)
	requireNoErr(t, helper.AddTestHolder(&registry.HolderRecord{
		Address: alice.addr.Hex(), LegalName: "Alice Zhang", Shares: 150, IsActive: true, LastUpdated: time.Now(),
	}))
	requireNoErr(t, helper.AddTestHolder(&registry.HolderRecord{
		Address: carol.addr.Hex(), LegalName: "Carol Reyes", Shares: 50, IsActive: true, LastUpdated: time.Now(),
	}))
	requireNoErr(t, helper.AddTestHolder(&registry.HolderRecord{
		Address: dave.addr.Hex(), LegalName: "Dave Okafor", Shares: 100, IsActive: false, LastUpdated: time.Now(),
	}))

	h.cc = NewGovernanceContract(h.engine, table)
	h.seedGovernance()

	// Registered holding within the official one.
	requireNoErr(t, h.cc.AddShareholder(h.ctx, alice.addr.Hex(), "Alice Zhang", 100))

	// Unknown to the register.
	err = h.cc.AddShareholder(h.ctx, bob.addr.Hex(), "Bob Ngata", 100)
	requireErrIs(t, err, ErrInvalidArgument)
	requireErrContains(t, err, "not in the official cap table")

	// Asking for more than the register lists.
	err = h.cc.AddShareholder(h.ctx, carol.addr.Hex(), "Carol Reyes", 100)
	requireErrIs(t, err, ErrInvalidArgument)
	requireErrContains(t, err, "cap table lists")

	// Inactive holders cannot register at all.
	err = h.cc.AddShareholder(h.ctx, dave.addr.Hex(), "Dave Okafor", 100)
	requireErrIs(t, err, ErrInvalidArgument)
}
