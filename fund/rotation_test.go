package fund_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlunch/lunchfund/fund"
)

func TestSelectBuyers_FairnessOrder(t *testing.T) {
	// GIVEN five participants with staggered rotation state
	st := newStore(t)
	ctx := context.Background()

	alice := addUser(t, st, "alice", 0)
	bob := addUser(t, st, "bob", 0)
	carol := addUser(t, st, "carol", 0)
	dave := addUser(t, st, "dave", 0)
	erin := addUser(t, st, "erin", 0)

	// carol and dave already rotated once; bob bought more recently than alice
	setRotation(t, st, alice, 0, "2025-02-01")
	setRotation(t, st, bob, 0, "2025-02-20")
	setRotation(t, st, carol, 1, "2025-03-01")
	setRotation(t, st, dave, 1, "2025-03-02")
	// erin never bought: index 0, no last date

	sessID := joinAll(t, st, "2025-03-10", alice, bob, carol, dave, erin)

	// WHEN selecting two buyers
	selector := fund.NewRotationSelector(st, 2)
	buyers, err := selector.SelectBuyers(ctx, sessID)
	require.NoError(t, err)

	// THEN the never-bought user goes first, then the stalest index-0 user
	require.Len(t, buyers, 2)
	assert.Equal(t, "erin", buyers[0].Name)
	assert.Equal(t, "alice", buyers[1].Name)

	// AND selected buyers moved to the back of the queue
	u, err := st.GetUser(ctx, erin.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, u.RotationIndex) // max was 1
	assert.Equal(t, 1, u.TotalBoughtTimes)
	require.NotNil(t, u.LastBoughtDate)
	assert.Equal(t, "2025-03-10", *u.LastBoughtDate)

	// AND the session froze its participant count
	sess, err := st.GetSession(ctx, sessID)
	require.NoError(t, err)
	assert.Equal(t, fund.SessionBuyersSelected, sess.Status)
	assert.Equal(t, 5, sess.TotalParticipants)
	assert.ElementsMatch(t, []string{erin.ID, alice.ID}, sess.BuyerIDs)
}

func TestSelectBuyers_ExcludesYesterdaysBuyers(t *testing.T) {
	// GIVEN yesterday's session where alice bought
	st := newStore(t)
	ctx := context.Background()

	alice := addUser(t, st, "alice", 0)
	bob := addUser(t, st, "bob", 0)
	carol := addUser(t, st, "carol", 0)

	seedSession(t, st, "2025-03-09", fund.SessionSettled, []string{alice.ID})
	sessID := joinAll(t, st, "2025-03-10", alice, bob, carol)

	// WHEN selecting two buyers from three participants
	selector := fund.NewRotationSelector(st, 2)
	buyers, err := selector.SelectBuyers(ctx, sessID)
	require.NoError(t, err)

	// THEN alice sits out
	require.Len(t, buyers, 2)
	for _, b := range buyers {
		assert.NotEqual(t, alice.ID, b.UserID)
	}
}

func TestSelectBuyers_BackfillsWhenPoolShort(t *testing.T) {
	// GIVEN three participants of whom two bought yesterday
	st := newStore(t)
	ctx := context.Background()

	alice := addUser(t, st, "alice", 0)
	bob := addUser(t, st, "bob", 0)
	carol := addUser(t, st, "carol", 0)

	seedSession(t, st, "2025-03-09", fund.SessionSettled, []string{alice.ID, bob.ID})
	sessID := joinAll(t, st, "2025-03-10", alice, bob, carol)

	// WHEN the target needs more buyers than the clean pool holds
	selector := fund.NewRotationSelector(st, 3)
	buyers, err := selector.SelectBuyers(ctx, sessID)
	require.NoError(t, err)

	// THEN yesterday's buyers backfill and everyone is selected
	assert.Len(t, buyers, 3)
	ids := make([]string, len(buyers))
	for i, b := range buyers {
		ids[i] = b.UserID
	}
	assert.ElementsMatch(t, []string{alice.ID, bob.ID, carol.ID}, ids)
	// the non-repeat participant still comes first
	assert.Equal(t, carol.ID, buyers[0].UserID)
}

func TestSelectBuyers_CycleReset(t *testing.T) {
	// GIVEN three users who have each completed a rotation pass
	st := newStore(t)
	ctx := context.Background()

	alice := addUser(t, st, "alice", 0)
	bob := addUser(t, st, "bob", 0)
	carol := addUser(t, st, "carol", 0)
	setRotation(t, st, alice, 2, "2025-03-01")
	setRotation(t, st, bob, 2, "2025-03-02")
	setRotation(t, st, carol, 2, "2025-03-03")

	sessID := joinAll(t, st, "2025-03-10", alice, bob, carol)

	// WHEN all three are selected, pushing every index past the
	// participant count
	selector := fund.NewRotationSelector(st, 3)
	_, err := selector.SelectBuyers(ctx, sessID)
	require.NoError(t, err)

	// THEN the cycle resets and every active index is 0 again
	for _, id := range []string{alice.ID, bob.ID, carol.ID} {
		u, err := st.GetUser(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, u.RotationIndex, "user %s", u.Name)
	}
}

func TestSelectBuyers_EvenOverConsecutiveDays(t *testing.T) {
	// GIVEN a fixed pool of five users who lunch together every day
	st := newStore(t)
	ctx := context.Background()

	users := []fund.User{
		addUser(t, st, "alice", 0),
		addUser(t, st, "bob", 0),
		addUser(t, st, "carol", 0),
		addUser(t, st, "dave", 0),
		addUser(t, st, "erin", 0),
	}

	// WHEN the rotation runs for ten consecutive sessions, two buyers
	// a day
	selector := fund.NewRotationSelector(st, 2)
	counts := make(map[string]int)
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	for day := 0; day < 10; day++ {
		date := start.AddDate(0, 0, day).Format(fund.DateLayout)
		sessID := joinAll(t, st, date, users...)
		buyers, err := selector.SelectBuyers(ctx, sessID)
		require.NoError(t, err)
		require.Len(t, buyers, 2)
		for _, b := range buyers {
			counts[b.UserID]++
		}
	}

	// THEN the twenty picks land as evenly as integer division allows:
	// nobody is more than one selection ahead of anyone else
	require.Len(t, counts, 5)
	lo, hi := 10, 0
	for _, c := range counts {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	assert.LessOrEqual(t, hi-lo, 1, "selection counts: %v", counts)
}

func TestSelectBuyers_NoParticipants(t *testing.T) {
	// GIVEN a session nobody joined
	st := newStore(t)
	seedSession(t, st, "2025-03-10", fund.SessionOrdering, nil)
	sess, err := st.GetSessionByDate(context.Background(), "2025-03-10")
	require.NoError(t, err)

	// WHEN selecting
	selector := fund.NewRotationSelector(st, 4)
	_, err = selector.SelectBuyers(context.Background(), sess.ID)

	// THEN it fails without touching the session
	require.ErrorIs(t, err, fund.ErrNoParticipants)
	sess, err = st.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, fund.SessionOrdering, sess.Status)
}

func TestSelectBuyers_SecondCallFails(t *testing.T) {
	// GIVEN a session whose buyers were already drawn
	st := newStore(t)
	alice := addUser(t, st, "alice", 0)
	sessID := joinAll(t, st, "2025-03-10", alice)

	selector := fund.NewRotationSelector(st, 4)
	_, err := selector.SelectBuyers(context.Background(), sessID)
	require.NoError(t, err)

	// WHEN selecting again
	_, err = selector.SelectBuyers(context.Background(), sessID)

	// THEN the status gate rejects it
	require.ErrorIs(t, err, fund.ErrInvalidState)
	assert.True(t, fund.IsConflict(err))
}

func TestSelectBuyers_UnknownSession(t *testing.T) {
	st := newStore(t)
	selector := fund.NewRotationSelector(st, 4)
	_, err := selector.SelectBuyers(context.Background(), "nope")
	require.ErrorIs(t, err, fund.ErrNotFound)
}
