package fund_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/crewlunch/lunchfund/fund"
	"github.com/crewlunch/lunchfund/store/sqlite"
)

// newStore returns a fresh in-memory store per test.
func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// userSeq spaces creation timestamps one second apart so the fairness
// tiebreak on created_at is deterministic (RFC3339 storage is
// second-granular).
var userSeq int

func addUser(t *testing.T, st *sqlite.Store, name string, balance int64) fund.User {
	t.Helper()
	userSeq++
	u := fund.User{
		ID:        uuid.New().String(),
		Name:      name,
		Balance:   balance,
		IsActive:  true,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(userSeq) * time.Second),
	}
	require.NoError(t, st.WithTx(context.Background(), func(tx fund.Tx) error {
		return tx.CreateUser(context.Background(), u)
	}))
	return u
}

func setRotation(t *testing.T, st *sqlite.Store, u fund.User, index int, lastBought string) {
	t.Helper()
	u.RotationIndex = index
	if lastBought != "" {
		u.LastBoughtDate = &lastBought
	}
	require.NoError(t, st.WithTx(context.Background(), func(tx fund.Tx) error {
		return tx.UpdateUser(context.Background(), u)
	}))
}

func getBalance(t *testing.T, st *sqlite.Store, userID string) int64 {
	t.Helper()
	u, err := st.GetUser(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u.Balance
}

// joinAll creates (lazily) and fills the session for date, returning its ID.
func joinAll(t *testing.T, st *sqlite.Store, date string, users ...fund.User) string {
	t.Helper()
	sessions := fund.NewSessionService(st)
	var id string
	for _, u := range users {
		sess, err := sessions.Join(context.Background(), u.ID, date)
		require.NoError(t, err)
		id = sess.ID
	}
	return id
}

// seedSession inserts a session row directly, used to fabricate
// yesterday's selection results.
func seedSession(t *testing.T, st *sqlite.Store, date string, status fund.SessionStatus, buyerIDs []string) {
	t.Helper()
	require.NoError(t, st.WithTx(context.Background(), func(tx fund.Tx) error {
		return tx.CreateSession(context.Background(), fund.Session{
			ID:        uuid.New().String(),
			Date:      date,
			Status:    status,
			BuyerIDs:  buyerIDs,
			CreatedAt: time.Now().UTC(),
		})
	}))
}
