/*
reimbursement.go - Reimbursement state machine

PURPOSE:
  Tracks the manual bank transfer repaying whoever fronted a settled
  bill.

  pending ──▶ admin_transferred ──▶ user_confirmed   (terminal)
                     │        └───▶ user_disputed    (terminal*)
                     ▲                      │
                     └──────────────────────┘
  *disputed is terminal for the system; an admin may re-run the transfer,
   which re-enters admin_transferred.

  The request's lifecycle is independent of the session or menu that
  spawned it - the ledger mutation committed before this workflow began.
*/
package fund

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
)

// ReimbursementService drives the transfer/confirmation workflow.
type ReimbursementService struct {
	Store Store
}

func NewReimbursementService(store Store) *ReimbursementService {
	return &ReimbursementService{Store: store}
}

// MarkTransferred records that the admin sent the bank transfer.
// Allowed from pending and, to permit retries, from user_disputed.
// An ineligible or missing request fails with NotFound.
func (rs *ReimbursementService) MarkTransferred(ctx context.Context, requestID, adminID, note string) (*Reimbursement, error) {
	var out *Reimbursement
	err := rs.Store.WithTx(ctx, func(tx Tx) error {
		r, err := tx.GetReimbursement(ctx, requestID)
		if err != nil {
			return err
		}
		if r == nil || (r.Status != ReimbursePending && r.Status != ReimburseDisputed) {
			return ErrNotFound
		}

		now := time.Now().UTC()
		r.Status = ReimburseTransferred
		r.AdminID = adminID
		r.AdminNote = note
		r.TransferredAt = &now
		if err := tx.UpdateReimbursement(ctx, *r); err != nil {
			return err
		}

		n := Notification{
			ID:         uuid.New().String(),
			Event:      EventReimburseMarked,
			Recipients: []string{r.SettlerID},
			Payload:    map[string]string{"reimbursement_id": r.ID},
			Status:     NotifyPending,
			CreatedAt:  now,
		}
		if err := tx.EnqueueNotification(ctx, n); err != nil {
			return err
		}

		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"reimbursement": requestID, "admin": adminID}).Info("reimbursement marked transferred")
	return out, nil
}

// ConfirmReceipt records the settler's answer. Only the request's
// settler may confirm, and only from admin_transferred.
func (rs *ReimbursementService) ConfirmReceipt(ctx context.Context, requestID, userID string, response ConfirmResponse) (*Reimbursement, error) {
	if response != ResponseReceived && response != ResponseNotReceived {
		return nil, &ValidationError{Field: "response", Message: "must be received or not_received"}
	}

	var out *Reimbursement
	err := rs.Store.WithTx(ctx, func(tx Tx) error {
		r, err := tx.GetReimbursement(ctx, requestID)
		if err != nil {
			return err
		}
		if r == nil || r.Status != ReimburseTransferred {
			return ErrNotFound
		}
		if r.SettlerID != userID {
			return ErrForbidden
		}

		now := time.Now().UTC()
		if response == ResponseReceived {
			r.Status = ReimburseConfirmed
		} else {
			r.Status = ReimburseDisputed
		}
		r.ConfirmedAt = &now
		if err := tx.UpdateReimbursement(ctx, *r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"reimbursement": requestID,
		"status":        out.Status,
	}).Info("reimbursement receipt confirmed")
	return out, nil
}

// ListPending returns open requests for the admin screen.
func (rs *ReimbursementService) ListPending(ctx context.Context) ([]Reimbursement, error) {
	return rs.Store.ListPendingReimbursements(ctx)
}

// Get returns a single request.
func (rs *ReimbursementService) Get(ctx context.Context, requestID string) (*Reimbursement, error) {
	r, err := rs.Store.GetReimbursement(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}
