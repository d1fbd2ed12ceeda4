/*
Package fund is the core engine of the lunch-fund manager.

PURPOSE:
  Domain types and algorithms for the shared lunch fund: buyer rotation,
  bill settlement, reimbursement tracking, and the deposit/adjustment
  ledger. Everything here operates against the Store interface and is
  ignorant of HTTP, SQL, and notification transports.

KEY CONCEPTS IN THIS FILE (types.go):
  - User: a fund member with a cached balance and rotation metadata
  - Session: one calendar day's group lunch order
  - Menu: an ad-hoc snack purchase with per-user itemized orders
  - Transaction: an entry in the append-only money ledger
  - Reimbursement: the tracked obligation to repay a buyer

DESIGN PRINCIPLES:
  1. Balance is a cached sum: it is only ever mutated in the same
     database transaction that appends the matching ledger entry, so the
     two cannot diverge.
  2. Statuses move forward only; there are no backward transitions.
  3. Amounts are int64 in the smallest currency unit.

SEE ALSO:
  - rotation.go:     Fair buyer selection
  - settlement.go:   Bill splitting and settlement
  - reimbursement.go: Admin transfer / user confirmation workflow
  - deposit.go:      Deposits and manual adjustments
*/
package fund

import "time"

// DateLayout is the canonical format for session dates.
const DateLayout = "2006-01-02"

// PreviousDate returns the calendar day before date (DateLayout).
func PreviousDate(date string) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, -1).Format(DateLayout), nil
}

// =============================================================================
// USER
// =============================================================================

// User is a member of the fund. Users are never hard-deleted; deactivated
// users keep their history but are excluded from future rotation.
type User struct {
	ID      string
	Name    string
	Balance int64

	// Rotation fairness metadata. Lower RotationIndex means more overdue
	// to be picked as a buyer. LastBoughtDate is nil for users who have
	// never bought.
	RotationIndex    int
	LastBoughtDate   *string
	TotalBoughtTimes int

	IsActive  bool
	CreatedAt time.Time
}

// =============================================================================
// SESSION - One calendar day's lunch order
// =============================================================================

type SessionStatus string

const (
	SessionOrdering       SessionStatus = "ordering"
	SessionBuyersSelected SessionStatus = "buyers_selected"
	SessionBuying         SessionStatus = "buying"
	SessionSettled        SessionStatus = "settled"
	SessionCancelled      SessionStatus = "cancelled"
)

// Session aggregates one day's order. Created lazily on the first join
// or selection for a date; never deleted.
type Session struct {
	ID     string
	Date   string // DateLayout
	Status SessionStatus

	// Selection results (set when status becomes buyers_selected)
	BuyerIDs          []string
	TotalParticipants int
	SelectedAt        *time.Time

	// Settlement results (set when status becomes settled)
	PayerID         string
	TotalBill       int64
	AmountPerPerson int64
	ReceiptRef      string
	SettledAt       *time.Time

	CreatedAt time.Time
}

// HasBuyer reports whether userID was selected as a buyer.
func (s *Session) HasBuyer(userID string) bool {
	for _, id := range s.BuyerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// =============================================================================
// MENU - Ad-hoc snack purchase with itemized per-user orders
// =============================================================================

type MenuStatus string

const (
	MenuOpen    MenuStatus = "open"
	MenuLocked  MenuStatus = "locked"
	MenuSettled MenuStatus = "settled"
)

type Menu struct {
	ID        string
	CreatorID string
	Title     string
	Status    MenuStatus

	TotalAmount int64 // sum of orders, recorded at settlement
	ReceiptRef  string
	SettledAt   *time.Time
	CreatedAt   time.Time
}

// MenuOrder is one user's itemized total on a menu. Unique per
// (menu, user); re-ordering while the menu is open replaces the amount.
type MenuOrder struct {
	MenuID string
	UserID string
	Amount int64
	Note   string
}

// =============================================================================
// TRANSACTION - Append-only money ledger entry
// =============================================================================

type TxType string

const (
	TxDeposit    TxType = "deposit"
	TxExpense    TxType = "expense"
	TxIncome     TxType = "income"
	TxAdjustment TxType = "adjustment"
)

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxApproved  TxStatus = "approved"
	TxRejected  TxStatus = "rejected"
	TxCompleted TxStatus = "completed"
)

// Transaction is the audit trail. Entries are never mutated except for
// the deposit status transition pending -> approved/rejected.
type Transaction struct {
	ID     string
	UserID string
	Amount int64 // signed
	Type   TxType
	Status TxStatus

	// Optional link to the session or menu that caused this entry.
	RefID string

	Note     string
	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// REIMBURSEMENT - Obligation to repay a buyer out-of-band
// =============================================================================

type ReimbursementType string

const (
	ReimburseLunch ReimbursementType = "lunch"
	ReimburseSnack ReimbursementType = "snack"
)

type ReimbursementStatus string

const (
	ReimbursePending     ReimbursementStatus = "pending"
	ReimburseTransferred ReimbursementStatus = "admin_transferred"
	ReimburseConfirmed   ReimbursementStatus = "user_confirmed"
	ReimburseDisputed    ReimbursementStatus = "user_disputed"
)

// ConfirmResponse is the settler's answer to "did the money arrive?".
type ConfirmResponse string

const (
	ResponseReceived    ConfirmResponse = "received"
	ResponseNotReceived ConfirmResponse = "not_received"
)

// Reimbursement tracks the manual bank transfer that repays whoever
// fronted a bill. Exactly one is created per settlement, and its
// lifecycle never feeds back into session or menu state.
type Reimbursement struct {
	ID          string
	Type        ReimbursementType
	RefID       string // settled session or menu
	SettlerID   string // who is owed money
	TotalAmount int64
	Status      ReimbursementStatus

	AdminID   string
	AdminNote string

	TransferredAt *time.Time
	ConfirmedAt   *time.Time
	CreatedAt     time.Time
}

// =============================================================================
// NOTIFICATION EVENT - Outbox row for post-commit delivery
// =============================================================================

// EventType identifies what happened; sinks decide how to word it.
type EventType string

const (
	EventBuyersSelected     EventType = "buyers_selected"
	EventSettlementComplete EventType = "settlement_complete"
	EventDepositApproved    EventType = "deposit_approved"
	EventDepositRejected    EventType = "deposit_rejected"
	EventReimburseMarked    EventType = "reimbursement_transferred"
)

type NotificationStatus string

const (
	NotifyPending NotificationStatus = "pending"
	NotifySent    NotificationStatus = "sent"
	NotifyFailed  NotificationStatus = "failed"
)

// Notification is appended in the same transaction as the ledger change
// it announces, then drained asynchronously. Delivery failure never
// rolls back the committed change.
type Notification struct {
	ID         string
	Event      EventType
	Recipients []string
	Payload    map[string]string
	Status     NotificationStatus
	CreatedAt  time.Time
	SentAt     *time.Time
}

// SelectedBuyer is the selection result returned to callers.
type SelectedBuyer struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// SettlementSummary is returned by the settlement engine.
type SettlementSummary struct {
	ReimbursementID string
	Participants    []string
	AmountPerPerson int64 // 0 for itemized settlements
	TotalBill       int64
}
