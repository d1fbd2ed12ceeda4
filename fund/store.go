/*
store.go - Persistence interfaces

PURPOSE:
  The fund services never touch the database directly. Every mutating
  operation runs inside Store.WithTx: the callback receives a Tx scoped
  to one database transaction, and the whole callback commits or rolls
  back as a unit. Services hold no cross-call state.

CONCURRENCY CONTRACT:
  WithTx serializes conflicting writers. Two settlement calls racing on
  one session resolve inside the store: the first commits, the second
  re-reads the session, sees "settled", and fails with ErrAlreadySettled
  without touching anything.

SEE ALSO:
  - store/sqlite: the SQLite implementation
*/
package fund

import "context"

// Store is the entry point to persistence.
type Store interface {
	Reader

	// WithTx runs fn inside one database transaction. If fn returns an
	// error the transaction rolls back and the error is returned verbatim.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reader provides the read-only queries services and handlers need
// outside a transaction.
type Reader interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	GetSessionByDate(ctx context.Context, date string) (*Session, error)
	GetMenu(ctx context.Context, id string) (*Menu, error)
	GetReimbursement(ctx context.Context, id string) (*Reimbursement, error)
	ListPendingReimbursements(ctx context.Context) ([]Reimbursement, error)
	ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]Transaction, error)
	ListParticipants(ctx context.Context, sessionID string) ([]User, error)
}

// Tx is the transactional view of the store. All reads inside a Tx see
// the transaction's own writes.
type Tx interface {
	// Users
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (*User, error)
	UpdateUser(ctx context.Context, u User) error
	ListActiveUsers(ctx context.Context) ([]User, error)
	// AddBalance applies a signed delta to the cached balance.
	AddBalance(ctx context.Context, userID string, delta int64) error
	// MaxRotationIndex is re-derived transactionally on every selection
	// rather than cached, to avoid a stale-counter race.
	MaxRotationIndex(ctx context.Context) (int, error)
	MinActiveRotationIndex(ctx context.Context) (int, error)
	ResetRotationIndexes(ctx context.Context) error

	// Sessions and participation
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	GetSessionByDate(ctx context.Context, date string) (*Session, error)
	UpdateSession(ctx context.Context, s Session) error
	AddParticipant(ctx context.Context, sessionID, userID string) error
	RemoveParticipant(ctx context.Context, sessionID, userID string) error
	// ListParticipants returns confirmed, active participants in fairness
	// order: rotation_index ASC, then last_bought_date ASC with
	// never-bought users first.
	ListParticipants(ctx context.Context, sessionID string) ([]User, error)

	// Menus
	CreateMenu(ctx context.Context, m Menu) error
	GetMenu(ctx context.Context, id string) (*Menu, error)
	UpdateMenu(ctx context.Context, m Menu) error
	UpsertMenuOrder(ctx context.Context, o MenuOrder) error
	ListMenuOrders(ctx context.Context, menuID string) ([]MenuOrder, error)

	// Ledger
	AppendTransaction(ctx context.Context, t Transaction) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	// SetTransactionStatus is the only permitted mutation of a ledger
	// entry (deposit pending -> approved/rejected).
	SetTransactionStatus(ctx context.Context, id string, status TxStatus, note string) error

	// Reimbursements
	CreateReimbursement(ctx context.Context, r Reimbursement) error
	GetReimbursement(ctx context.Context, id string) (*Reimbursement, error)
	UpdateReimbursement(ctx context.Context, r Reimbursement) error

	// Outbox
	EnqueueNotification(ctx context.Context, n Notification) error
}
