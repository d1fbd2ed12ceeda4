/*
settlement.go - Atomic bill settlement

PURPOSE:
  Turns a reported bill into balance deductions, ledger entries, and a
  reimbursement request, all in one store transaction.

TWO SETTLEMENT SHAPES, ONE ENGINE:
  - Equal split (daily lunch): round(total/participants) charged to
    everyone including the payer. Rounding drift of up to
    participants-1 units is accepted, not redistributed.
  - Itemized (snack menus): each participant is charged their exact
    order total, and the whole operation fails with InsufficientBalance
    - naming every underfunded user - if anyone cannot cover theirs.
  Both shapes are expressed as a SettlementSource and funnel through the
  same settle routine, so the commit/ledger/reimbursement behavior
  cannot diverge.

PAYER CREDIT:
  The payer is NOT credited the bill total in the ledger. They are
  charged like everyone else and recover their float through the
  reimbursement workflow. This avoids the window where "credit payer"
  and "debit everyone" are separately visible to a balance read.
*/
package fund

import (
	"context"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
)

// Charge is one participant's share of a settlement.
type Charge struct {
	UserID string
	Name   string
	Amount int64
}

// SettlementSource abstracts what is being settled: a daily session's
// equal split or a menu's itemized orders.
type SettlementSource interface {
	Kind() ReimbursementType
	RefID() string
	Charges() []Charge
	Total() int64
	// PerPerson is the equal-split share; 0 for itemized settlements.
	PerPerson() int64
	// EnforceBalance requires every participant to afford their charge
	// before anything is deducted.
	EnforceBalance() bool
}

// SettlementEngine settles sessions and menus.
type SettlementEngine struct {
	Store Store
}

func NewSettlementEngine(store Store) *SettlementEngine {
	return &SettlementEngine{Store: store}
}

// SettleSession splits totalBill evenly across the session's confirmed
// participants, deducts everyone, and opens a lunch reimbursement for
// the payer. A second call fails with AlreadySettled and changes
// nothing.
func (se *SettlementEngine) SettleSession(ctx context.Context, sessionID, payerID string, totalBill int64, receiptRef string) (*SettlementSummary, error) {
	if totalBill <= 0 {
		return nil, &ValidationError{Field: "total_bill", Message: "must be positive"}
	}

	var summary *SettlementSummary
	err := se.Store.WithTx(ctx, func(tx Tx) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return ErrNotFound
		}
		if sess.Status == SessionSettled {
			return ErrAlreadySettled
		}
		if sess.Status != SessionBuyersSelected && sess.Status != SessionBuying {
			return &StateError{Entity: "session", Status: string(sess.Status), Want: string(SessionBuyersSelected)}
		}
		if !sess.HasBuyer(payerID) {
			return ErrNotABuyer
		}

		participants, err := tx.ListParticipants(ctx, sess.ID)
		if err != nil {
			return err
		}
		if len(participants) == 0 {
			return ErrNoParticipants
		}

		src := &equalSplitSource{
			sessionID:    sess.ID,
			totalBill:    totalBill,
			perPerson:    SplitEven(totalBill, len(participants)),
			participants: participants,
		}

		reimbID, err := se.settle(ctx, tx, src, payerID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		sess.Status = SessionSettled
		sess.PayerID = payerID
		sess.TotalBill = totalBill
		sess.AmountPerPerson = src.perPerson
		sess.ReceiptRef = receiptRef
		sess.SettledAt = &now
		if err := tx.UpdateSession(ctx, *sess); err != nil {
			return err
		}

		summary = &SettlementSummary{
			ReimbursementID: reimbID,
			Participants:    userIDs(participants),
			AmountPerPerson: src.perPerson,
			TotalBill:       totalBill,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"session":    sessionID,
		"payer":      payerID,
		"total":      totalBill,
		"per_person": summary.AmountPerPerson,
	}).Info("session settled")

	return summary, nil
}

// SettleMenu charges every participant their exact itemized total and
// opens a snack reimbursement for the menu creator. Insufficient
// balance is checked for all participants before any deduction.
func (se *SettlementEngine) SettleMenu(ctx context.Context, menuID, settlerID, receiptRef string) (*SettlementSummary, error) {
	var summary *SettlementSummary
	err := se.Store.WithTx(ctx, func(tx Tx) error {
		menu, err := tx.GetMenu(ctx, menuID)
		if err != nil {
			return err
		}
		if menu == nil {
			return ErrNotFound
		}
		if menu.Status == MenuSettled {
			return ErrAlreadySettled
		}
		if settlerID != menu.CreatorID {
			return ErrForbidden
		}

		orders, err := tx.ListMenuOrders(ctx, menu.ID)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return ErrNoParticipants
		}

		src := &itemizedSource{menuID: menu.ID}
		for _, o := range orders {
			u, err := tx.GetUser(ctx, o.UserID)
			if err != nil {
				return err
			}
			if u == nil {
				return ErrNotFound
			}
			src.charges = append(src.charges, Charge{UserID: u.ID, Name: u.Name, Amount: o.Amount})
			src.total += o.Amount
		}

		reimbID, err := se.settle(ctx, tx, src, settlerID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		menu.Status = MenuSettled
		menu.TotalAmount = src.total
		menu.ReceiptRef = receiptRef
		menu.SettledAt = &now
		if err := tx.UpdateMenu(ctx, *menu); err != nil {
			return err
		}

		summary = &SettlementSummary{
			ReimbursementID: reimbID,
			Participants:    chargeUserIDs(src.charges),
			TotalBill:       src.total,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"menu":    menuID,
		"settler": settlerID,
		"total":   summary.TotalBill,
	}).Info("menu settled")

	return summary, nil
}

// settle applies a settlement source inside an open transaction:
// balance pre-check (itemized only), per-participant deduction plus
// expense ledger entry, exactly one reimbursement request, and the
// post-commit notification event.
func (se *SettlementEngine) settle(ctx context.Context, tx Tx, src SettlementSource, settlerID string) (string, error) {
	charges := src.Charges()

	if src.EnforceBalance() {
		var shortfalls []Shortfall
		for _, c := range charges {
			u, err := tx.GetUser(ctx, c.UserID)
			if err != nil {
				return "", err
			}
			if u.Balance < c.Amount {
				shortfalls = append(shortfalls, Shortfall{
					UserID:   u.ID,
					Name:     u.Name,
					Balance:  u.Balance,
					Required: c.Amount,
				})
			}
		}
		if len(shortfalls) > 0 {
			return "", &InsufficientBalanceError{Shortfalls: shortfalls}
		}
	}

	now := time.Now().UTC()
	recipients := make([]string, 0, len(charges))
	for _, c := range charges {
		if err := tx.AddBalance(ctx, c.UserID, -c.Amount); err != nil {
			return "", err
		}
		t := Transaction{
			ID:        uuid.New().String(),
			UserID:    c.UserID,
			Amount:    -c.Amount,
			Type:      TxExpense,
			Status:    TxCompleted,
			RefID:     src.RefID(),
			Note:      string(src.Kind()) + " settlement",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return "", err
		}
		recipients = append(recipients, c.UserID)
	}

	reimb := Reimbursement{
		ID:          uuid.New().String(),
		Type:        src.Kind(),
		RefID:       src.RefID(),
		SettlerID:   settlerID,
		TotalAmount: src.Total(),
		Status:      ReimbursePending,
		CreatedAt:   now,
	}
	if err := tx.CreateReimbursement(ctx, reimb); err != nil {
		return "", err
	}

	payload := map[string]string{
		"ref_id": src.RefID(),
		"kind":   string(src.Kind()),
		"total":  strconv.FormatInt(src.Total(), 10),
	}
	if pp := src.PerPerson(); pp > 0 {
		payload["amount_per_person"] = strconv.FormatInt(pp, 10)
	}
	n := Notification{
		ID:         uuid.New().String(),
		Event:      EventSettlementComplete,
		Recipients: recipients,
		Payload:    payload,
		Status:     NotifyPending,
		CreatedAt:  now,
	}
	if err := tx.EnqueueNotification(ctx, n); err != nil {
		return "", err
	}

	return reimb.ID, nil
}

// =============================================================================
// SETTLEMENT SOURCES
// =============================================================================

type equalSplitSource struct {
	sessionID    string
	totalBill    int64
	perPerson    int64
	participants []User
}

func (s *equalSplitSource) Kind() ReimbursementType { return ReimburseLunch }
func (s *equalSplitSource) RefID() string           { return s.sessionID }
func (s *equalSplitSource) Total() int64            { return s.totalBill }
func (s *equalSplitSource) PerPerson() int64        { return s.perPerson }
func (s *equalSplitSource) EnforceBalance() bool    { return false }

func (s *equalSplitSource) Charges() []Charge {
	charges := make([]Charge, len(s.participants))
	for i, u := range s.participants {
		charges[i] = Charge{UserID: u.ID, Name: u.Name, Amount: s.perPerson}
	}
	return charges
}

type itemizedSource struct {
	menuID  string
	charges []Charge
	total   int64
}

func (s *itemizedSource) Kind() ReimbursementType { return ReimburseSnack }
func (s *itemizedSource) RefID() string           { return s.menuID }
func (s *itemizedSource) Total() int64            { return s.total }
func (s *itemizedSource) PerPerson() int64        { return 0 }
func (s *itemizedSource) EnforceBalance() bool    { return true }
func (s *itemizedSource) Charges() []Charge       { return s.charges }

func userIDs(users []User) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

func chargeUserIDs(charges []Charge) []string {
	ids := make([]string, len(charges))
	for i, c := range charges {
		ids[i] = c.UserID
	}
	return ids
}
