package fund_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlunch/lunchfund/fund"
)

// selectAndSettleSetup builds a session in buyers_selected with the
// given participants and returns its ID plus the first selected buyer.
func selectedSession(t *testing.T, st interface {
	GetSession(ctx context.Context, id string) (*fund.Session, error)
}, sessID string) *fund.Session {
	t.Helper()
	sess, err := st.GetSession(context.Background(), sessID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess
}

func TestSettleSession_EqualSplit(t *testing.T) {
	// GIVEN a selected session with five participants holding 200000 each
	st := newStore(t)
	ctx := context.Background()

	users := []fund.User{
		addUser(t, st, "alice", 200000),
		addUser(t, st, "bob", 200000),
		addUser(t, st, "carol", 200000),
		addUser(t, st, "dave", 200000),
		addUser(t, st, "erin", 200000),
	}
	sessID := joinAll(t, st, "2025-03-10", users...)

	selector := fund.NewRotationSelector(st, 2)
	buyers, err := selector.SelectBuyers(ctx, sessID)
	require.NoError(t, err)
	payer := buyers[0].UserID

	// WHEN the payer reports a 503000 bill
	engine := fund.NewSettlementEngine(st)
	summary, err := engine.SettleSession(ctx, sessID, payer, 503000, "receipt-42")
	require.NoError(t, err)

	// THEN the share is round(503000/5) = 100600, charged to everyone
	// including the payer
	assert.Equal(t, int64(100600), summary.AmountPerPerson)
	assert.Len(t, summary.Participants, 5)
	for _, u := range users {
		assert.Equal(t, int64(200000-100600), getBalance(t, st, u.ID), "user %s", u.Name)
	}

	// AND exactly one pending reimbursement exists for the full bill
	reimb, err := st.GetReimbursement(ctx, summary.ReimbursementID)
	require.NoError(t, err)
	assert.Equal(t, fund.ReimburseLunch, reimb.Type)
	assert.Equal(t, payer, reimb.SettlerID)
	assert.Equal(t, int64(503000), reimb.TotalAmount)
	assert.Equal(t, fund.ReimbursePending, reimb.Status)

	pending, err := st.ListPendingReimbursements(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// AND the session records the settlement
	sess := selectedSession(t, st, sessID)
	assert.Equal(t, fund.SessionSettled, sess.Status)
	assert.Equal(t, payer, sess.PayerID)
	assert.Equal(t, "receipt-42", sess.ReceiptRef)
}

func TestSettleSession_NotificationCarriesAmounts(t *testing.T) {
	// GIVEN a selected two-person session
	st := newStore(t)
	ctx := context.Background()

	alice := addUser(t, st, "alice", 50000)
	bob := addUser(t, st, "bob", 50000)
	sessID := joinAll(t, st, "2025-03-10", alice, bob)

	selector := fund.NewRotationSelector(st, 1)
	buyers, err := selector.SelectBuyers(ctx, sessID)
	require.NoError(t, err)

	// WHEN settling a 30000 bill
	engine := fund.NewSettlementEngine(st)
	_, err = engine.SettleSession(ctx, sessID, buyers[0].UserID, 30000, "")
	require.NoError(t, err)

	// THEN the enqueued settlement event names both amounts, so the
	// chat message can state the share
	pending, err := st.PendingNotifications(ctx, 10)
	require.NoError(t, err)
	var found bool
	for _, n := range pending {
		if n.Event != fund.EventSettlementComplete {
			continue
		}
		found = true
		assert.Equal(t, "15000", n.Payload["amount_per_person"])
		assert.Equal(t, "30000", n.Payload["total"])
	}
	assert.True(t, found, "no settlement notification enqueued")
}

func TestSettleSession_NegativeBalanceAllowed(t *testing.T) {
	// GIVEN a participant who cannot cover the split
	st := newStore(t)
	ctx := context.Background()

	alice := addUser(t, st, "alice", 100000)
	bob := addUser(t, st, "bob", 10000)
	sessID := joinAll(t, st, "2025-03-10", alice, bob)

	selector := fund.NewRotationSelector(st, 1)
	buyers, err := selector.SelectBuyers(ctx, sessID)
	require.NoError(t, err)

	// WHEN settling an equal split
	engine := fund.NewSettlementEngine(st)
	_, err = engine.SettleSession(ctx, sessID, buyers[0].UserID, 100000, "")
	require.NoError(t, err)

	// THEN the underfunded member simply goes negative
	assert.Equal(t, int64(10000-50000), getBalance(t, st, bob.ID))
}

func TestSettleSession_SecondCallChangesNothing(t *testing.T) {
	// GIVEN an already-settled session
	st := newStore(t)
	ctx := context.Background()

	alice := addUser(t, st, "alice", 100000)
	bob := addUser(t, st, "bob", 100000)
	sessID := joinAll(t, st, "2025-03-10", alice, bob)

	selector := fund.NewRotationSelector(st, 1)
	buyers, err := selector.SelectBuyers(ctx, sessID)
	require.NoError(t, err)
	payer := buyers[0].UserID

	engine := fund.NewSettlementEngine(st)
	_, err = engine.SettleSession(ctx, sessID, payer, 60000, "")
	require.NoError(t, err)

	balAfterFirst := getBalance(t, st, alice.ID)

	// WHEN settling a second time
	_, err = engine.SettleSession(ctx, sessID, payer, 60000, "")

	// THEN it fails and no balances moved and no second reimbursement
	require.ErrorIs(t, err, fund.ErrAlreadySettled)
	assert.Equal(t, balAfterFirst, getBalance(t, st, alice.ID))

	pending, err := st.ListPendingReimbursements(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSettleSession_PayerMustBeBuyer(t *testing.T) {
	// GIVEN a selected session
	st := newStore(t)
	ctx := context.Background()

	alice := addUser(t, st, "alice", 100000)
	bob := addUser(t, st, "bob", 100000)
	sessID := joinAll(t, st, "2025-03-10", alice, bob)

	selector := fund.NewRotationSelector(st, 1)
	buyers, err := selector.SelectBuyers(ctx, sessID)
	require.NoError(t, err)

	// WHEN someone who was not selected reports the bill
	var outsider string
	if buyers[0].UserID == alice.ID {
		outsider = bob.ID
	} else {
		outsider = alice.ID
	}
	engine := fund.NewSettlementEngine(st)
	_, err = engine.SettleSession(ctx, sessID, outsider, 60000, "")

	// THEN it is rejected before any money moves
	require.ErrorIs(t, err, fund.ErrNotABuyer)
	assert.Equal(t, int64(100000), getBalance(t, st, alice.ID))
	assert.Equal(t, int64(100000), getBalance(t, st, bob.ID))
}

func TestSettleSession_BeforeSelectionFails(t *testing.T) {
	st := newStore(t)
	alice := addUser(t, st, "alice", 100000)
	sessID := joinAll(t, st, "2025-03-10", alice)

	engine := fund.NewSettlementEngine(st)
	_, err := engine.SettleSession(context.Background(), sessID, alice.ID, 60000, "")
	require.ErrorIs(t, err, fund.ErrInvalidState)
}

func TestSettleSession_RejectsBadBill(t *testing.T) {
	st := newStore(t)
	engine := fund.NewSettlementEngine(st)
	_, err := engine.SettleSession(context.Background(), "any", "payer", 0, "")
	require.ErrorIs(t, err, fund.ErrValidation)
}

// =============================================================================
// ITEMIZED (MENU) SETTLEMENT
// =============================================================================

func TestSettleMenu_ItemizedCharges(t *testing.T) {
	// GIVEN a menu with two orders and well-funded participants
	st := newStore(t)
	ctx := context.Background()

	creator := addUser(t, st, "creator", 50000)
	bob := addUser(t, st, "bob", 50000)

	menus := fund.NewMenuService(st)
	m, err := menus.Create(ctx, creator.ID, "afternoon snacks")
	require.NoError(t, err)
	require.NoError(t, menus.PlaceOrder(ctx, m.ID, creator.ID, 12000, "coffee"))
	require.NoError(t, menus.PlaceOrder(ctx, m.ID, bob.ID, 18000, "cake"))
	require.NoError(t, menus.Lock(ctx, m.ID, creator.ID))

	// WHEN the creator settles
	engine := fund.NewSettlementEngine(st)
	summary, err := engine.SettleMenu(ctx, m.ID, creator.ID, "")
	require.NoError(t, err)

	// THEN each participant pays exactly their order
	assert.Equal(t, int64(30000), summary.TotalBill)
	assert.Equal(t, int64(50000-12000), getBalance(t, st, creator.ID))
	assert.Equal(t, int64(50000-18000), getBalance(t, st, bob.ID))

	reimb, err := st.GetReimbursement(ctx, summary.ReimbursementID)
	require.NoError(t, err)
	assert.Equal(t, fund.ReimburseSnack, reimb.Type)
	assert.Equal(t, int64(30000), reimb.TotalAmount)
}

func TestSettleMenu_InsufficientBalanceNamesEveryone(t *testing.T) {
	// GIVEN orders where two participants cannot cover theirs
	st := newStore(t)
	ctx := context.Background()

	creator := addUser(t, st, "creator", 50000)
	poor := addUser(t, st, "poor", 5000)
	broke := addUser(t, st, "broke", 0)

	menus := fund.NewMenuService(st)
	m, err := menus.Create(ctx, creator.ID, "snacks")
	require.NoError(t, err)
	require.NoError(t, menus.PlaceOrder(ctx, m.ID, creator.ID, 10000, ""))
	require.NoError(t, menus.PlaceOrder(ctx, m.ID, poor.ID, 10000, ""))
	require.NoError(t, menus.PlaceOrder(ctx, m.ID, broke.ID, 10000, ""))

	// WHEN settling
	engine := fund.NewSettlementEngine(st)
	_, err = engine.SettleMenu(ctx, m.ID, creator.ID, "")

	// THEN the error lists every underfunded user and nothing was charged
	require.ErrorIs(t, err, fund.ErrInsufficientBalance)
	var insuf *fund.InsufficientBalanceError
	require.ErrorAs(t, err, &insuf)
	require.Len(t, insuf.Shortfalls, 2)
	names := []string{insuf.Shortfalls[0].Name, insuf.Shortfalls[1].Name}
	assert.ElementsMatch(t, []string{"poor", "broke"}, names)

	assert.Equal(t, int64(50000), getBalance(t, st, creator.ID))
	assert.Equal(t, int64(5000), getBalance(t, st, poor.ID))
	assert.Equal(t, int64(0), getBalance(t, st, broke.ID))

	// AND the menu is still settleable
	menu, err := st.GetMenu(ctx, m.ID)
	require.NoError(t, err)
	assert.NotEqual(t, fund.MenuSettled, menu.Status)
}

func TestSettleMenu_OnlyCreatorMaySettle(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	creator := addUser(t, st, "creator", 50000)
	bob := addUser(t, st, "bob", 50000)

	menus := fund.NewMenuService(st)
	m, err := menus.Create(ctx, creator.ID, "snacks")
	require.NoError(t, err)
	require.NoError(t, menus.PlaceOrder(ctx, m.ID, bob.ID, 1000, ""))

	engine := fund.NewSettlementEngine(st)
	_, err = engine.SettleMenu(ctx, m.ID, bob.ID, "")
	require.ErrorIs(t, err, fund.ErrForbidden)
}

func TestSettleMenu_NoOrders(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	creator := addUser(t, st, "creator", 50000)
	menus := fund.NewMenuService(st)
	m, err := menus.Create(ctx, creator.ID, "snacks")
	require.NoError(t, err)

	engine := fund.NewSettlementEngine(st)
	_, err = engine.SettleMenu(ctx, m.ID, creator.ID, "")
	require.ErrorIs(t, err, fund.ErrNoParticipants)
}

func TestSettleMenu_SecondCallFails(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	creator := addUser(t, st, "creator", 50000)
	menus := fund.NewMenuService(st)
	m, err := menus.Create(ctx, creator.ID, "snacks")
	require.NoError(t, err)
	require.NoError(t, menus.PlaceOrder(ctx, m.ID, creator.ID, 1000, ""))

	engine := fund.NewSettlementEngine(st)
	_, err = engine.SettleMenu(ctx, m.ID, creator.ID, "")
	require.NoError(t, err)

	_, err = engine.SettleMenu(ctx, m.ID, creator.ID, "")
	require.ErrorIs(t, err, fund.ErrAlreadySettled)
}
