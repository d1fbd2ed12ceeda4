/*
deposit.go - Deposits and manual adjustments

PURPOSE:
  The only ways money enters the fund. Deposits are two-phase: the user
  creates a pending ledger entry, an admin approves (credit) or rejects
  (no credit). Adjustments are single-phase admin corrections that may
  deliberately push a balance negative.

LOCKING:
  Approve/reject lock the transaction row inside the store transaction,
  so two admins racing on the same deposit resolve to one approval and
  one AlreadyProcessed.
*/
package fund

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
)

// DepositService manages balance top-ups and corrections.
type DepositService struct {
	Store Store
}

func NewDepositService(store Store) *DepositService {
	return &DepositService{Store: store}
}

// CreateDeposit records a pending deposit. No balance change yet.
func (ds *DepositService) CreateDeposit(ctx context.Context, userID string, amount int64, note string) (*Transaction, error) {
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}

	var out *Transaction
	err := ds.Store.WithTx(ctx, func(tx Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil || !u.IsActive {
			return ErrNotFound
		}

		now := time.Now().UTC()
		t := Transaction{
			ID:        uuid.New().String(),
			UserID:    userID,
			Amount:    amount,
			Type:      TxDeposit,
			Status:    TxPending,
			Note:      note,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return err
		}
		out = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveDeposit credits the user and marks the deposit approved, in
// one transaction.
func (ds *DepositService) ApproveDeposit(ctx context.Context, transactionID, adminID string) (*Transaction, error) {
	return ds.decideDeposit(ctx, transactionID, adminID, true, "")
}

// RejectDeposit marks the deposit rejected without touching balance.
// The reason, when given, is appended to the entry's note.
func (ds *DepositService) RejectDeposit(ctx context.Context, transactionID, adminID, reason string) (*Transaction, error) {
	return ds.decideDeposit(ctx, transactionID, adminID, false, reason)
}

func (ds *DepositService) decideDeposit(ctx context.Context, transactionID, adminID string, approve bool, reason string) (*Transaction, error) {
	var out *Transaction
	err := ds.Store.WithTx(ctx, func(tx Tx) error {
		t, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrNotFound
		}
		if t.Type != TxDeposit {
			return &StateError{Entity: "transaction", Status: string(t.Type), Want: string(TxDeposit)}
		}
		if t.Status != TxPending {
			return ErrAlreadyProcessed
		}

		note := t.Note
		event := EventDepositApproved
		status := TxApproved
		if !approve {
			status = TxRejected
			event = EventDepositRejected
			if reason != "" {
				if note != "" {
					note += "; "
				}
				note += "rejected: " + reason
			}
		}

		if err := tx.SetTransactionStatus(ctx, t.ID, status, note); err != nil {
			return err
		}
		if approve {
			if err := tx.AddBalance(ctx, t.UserID, t.Amount); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		n := Notification{
			ID:         uuid.New().String(),
			Event:      event,
			Recipients: []string{t.UserID},
			Payload: map[string]string{
				"transaction_id": t.ID,
				"amount":         fmt.Sprintf("%d", t.Amount),
			},
			Status:    NotifyPending,
			CreatedAt: now,
		}
		if err := tx.EnqueueNotification(ctx, n); err != nil {
			return err
		}

		t.Status = status
		t.Note = note
		t.UpdatedAt = now
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"transaction": transactionID,
		"admin":       adminID,
		"status":      out.Status,
	}).Info("deposit decided")
	return out, nil
}

// AdjustBalance records a signed manual correction and applies it
// immediately. The note is mandatory - adjustments bypass approval, so
// the audit trail has to carry the why.
func (ds *DepositService) AdjustBalance(ctx context.Context, userID string, amount int64, adminID, note string) (*Transaction, error) {
	if amount == 0 {
		return nil, &ValidationError{Field: "amount", Message: "must be non-zero"}
	}
	if note == "" {
		return nil, &ValidationError{Field: "note", Message: "required for adjustments"}
	}

	var out *Transaction
	err := ds.Store.WithTx(ctx, func(tx Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrNotFound
		}

		now := time.Now().UTC()
		t := Transaction{
			ID:        uuid.New().String(),
			UserID:    userID,
			Amount:    amount,
			Type:      TxAdjustment,
			Status:    TxCompleted,
			Note:      note,
			Metadata:  map[string]string{"admin_id": adminID},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return err
		}
		if err := tx.AddBalance(ctx, userID, amount); err != nil {
			return err
		}
		out = &t
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user":   userID,
		"amount": amount,
		"admin":  adminID,
	}).Info("balance adjusted")
	return out, nil
}
