package fund_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlunch/lunchfund/fund"
)

func seedReimbursement(t *testing.T, st interface {
	WithTx(ctx context.Context, fn func(tx fund.Tx) error) error
}, settlerID string, status fund.ReimbursementStatus) string {
	t.Helper()
	r := fund.Reimbursement{
		ID:          uuid.New().String(),
		Type:        fund.ReimburseLunch,
		RefID:       "sess-1",
		SettlerID:   settlerID,
		TotalAmount: 503000,
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.WithTx(context.Background(), func(tx fund.Tx) error {
		return tx.CreateReimbursement(context.Background(), r)
	}))
	return r.ID
}

func TestMarkTransferred_FromPending(t *testing.T) {
	// GIVEN a pending reimbursement
	st := newStore(t)
	payer := addUser(t, st, "payer", 0)
	id := seedReimbursement(t, st, payer.ID, fund.ReimbursePending)

	// WHEN the admin marks it transferred
	svc := fund.NewReimbursementService(st)
	r, err := svc.MarkTransferred(context.Background(), id, "admin-1", "sent via bank")
	require.NoError(t, err)

	// THEN status, admin fields, and timestamp are recorded
	assert.Equal(t, fund.ReimburseTransferred, r.Status)
	assert.Equal(t, "admin-1", r.AdminID)
	assert.Equal(t, "sent via bank", r.AdminNote)
	assert.NotNil(t, r.TransferredAt)
}

func TestMarkTransferred_RetryAfterDispute(t *testing.T) {
	// GIVEN a disputed reimbursement
	st := newStore(t)
	payer := addUser(t, st, "payer", 0)
	id := seedReimbursement(t, st, payer.ID, fund.ReimburseDisputed)

	// WHEN the admin re-runs the transfer
	svc := fund.NewReimbursementService(st)
	r, err := svc.MarkTransferred(context.Background(), id, "admin-1", "second attempt")

	// THEN the workflow re-enters admin_transferred
	require.NoError(t, err)
	assert.Equal(t, fund.ReimburseTransferred, r.Status)
}

func TestMarkTransferred_IneligibleStatusIsNotFound(t *testing.T) {
	st := newStore(t)
	payer := addUser(t, st, "payer", 0)
	svc := fund.NewReimbursementService(st)

	for _, status := range []fund.ReimbursementStatus{
		fund.ReimburseTransferred,
		fund.ReimburseConfirmed,
	} {
		id := seedReimbursement(t, st, payer.ID, status)
		_, err := svc.MarkTransferred(context.Background(), id, "admin-1", "")
		require.ErrorIs(t, err, fund.ErrNotFound, "status %s", status)
	}

	_, err := svc.MarkTransferred(context.Background(), "missing", "admin-1", "")
	require.ErrorIs(t, err, fund.ErrNotFound)
}

func TestConfirmReceipt_Received(t *testing.T) {
	// GIVEN a transferred reimbursement
	st := newStore(t)
	payer := addUser(t, st, "payer", 0)
	id := seedReimbursement(t, st, payer.ID, fund.ReimburseTransferred)

	// WHEN the settler confirms receipt
	svc := fund.NewReimbursementService(st)
	r, err := svc.ConfirmReceipt(context.Background(), id, payer.ID, fund.ResponseReceived)
	require.NoError(t, err)

	// THEN it is terminally confirmed
	assert.Equal(t, fund.ReimburseConfirmed, r.Status)
	assert.NotNil(t, r.ConfirmedAt)
}

func TestConfirmReceipt_NotReceived(t *testing.T) {
	st := newStore(t)
	payer := addUser(t, st, "payer", 0)
	id := seedReimbursement(t, st, payer.ID, fund.ReimburseTransferred)

	svc := fund.NewReimbursementService(st)
	r, err := svc.ConfirmReceipt(context.Background(), id, payer.ID, fund.ResponseNotReceived)
	require.NoError(t, err)
	assert.Equal(t, fund.ReimburseDisputed, r.Status)
}

func TestConfirmReceipt_OnlySettlerMayAnswer(t *testing.T) {
	// GIVEN someone else trying to confirm
	st := newStore(t)
	payer := addUser(t, st, "payer", 0)
	other := addUser(t, st, "other", 0)
	id := seedReimbursement(t, st, payer.ID, fund.ReimburseTransferred)

	svc := fund.NewReimbursementService(st)
	_, err := svc.ConfirmReceipt(context.Background(), id, other.ID, fund.ResponseReceived)
	require.ErrorIs(t, err, fund.ErrForbidden)
}

func TestConfirmReceipt_RequiresTransferredStatus(t *testing.T) {
	st := newStore(t)
	payer := addUser(t, st, "payer", 0)
	id := seedReimbursement(t, st, payer.ID, fund.ReimbursePending)

	svc := fund.NewReimbursementService(st)
	_, err := svc.ConfirmReceipt(context.Background(), id, payer.ID, fund.ResponseReceived)
	require.ErrorIs(t, err, fund.ErrNotFound)
}

func TestConfirmReceipt_RejectsBadResponse(t *testing.T) {
	st := newStore(t)
	svc := fund.NewReimbursementService(st)
	_, err := svc.ConfirmReceipt(context.Background(), "any", "user", "maybe")
	require.ErrorIs(t, err, fund.ErrValidation)
}

func TestReimbursement_FullLifecycle(t *testing.T) {
	// GIVEN a pending reimbursement
	st := newStore(t)
	payer := addUser(t, st, "payer", 0)
	id := seedReimbursement(t, st, payer.ID, fund.ReimbursePending)
	svc := fund.NewReimbursementService(st)
	ctx := context.Background()

	// transfer -> dispute -> retry transfer -> confirm
	_, err := svc.MarkTransferred(ctx, id, "admin", "first try")
	require.NoError(t, err)
	_, err = svc.ConfirmReceipt(ctx, id, payer.ID, fund.ResponseNotReceived)
	require.NoError(t, err)
	_, err = svc.MarkTransferred(ctx, id, "admin", "retry")
	require.NoError(t, err)
	r, err := svc.ConfirmReceipt(ctx, id, payer.ID, fund.ResponseReceived)
	require.NoError(t, err)

	assert.Equal(t, fund.ReimburseConfirmed, r.Status)

	// AND the terminal state accepts no further transitions
	_, err = svc.MarkTransferred(ctx, id, "admin", "")
	require.ErrorIs(t, err, fund.ErrNotFound)
	_, err = svc.ConfirmReceipt(ctx, id, payer.ID, fund.ResponseReceived)
	require.ErrorIs(t, err, fund.ErrNotFound)
}
