/*
Package sqlite provides the SQLite-backed implementation of fund.Store.

PURPOSE:
  Implements persistence for users, sessions, participation records,
  menus, the append-only transaction log, reimbursement requests, and
  the notification outbox. The same patterns apply to PostgreSQL; only
  minor SQL dialect differences.

TRANSACTION MODEL:
  WithTx wraps a database transaction behind the fund.Tx interface.
  A single mutex serializes writers, which stands in for row-level
  locking in a single-process deployment: two settlement calls racing
  on one session run strictly one after the other, and the loser
  observes the winner's committed status.

LEDGER ENFORCEMENT:
  - transactions are INSERTed and never DELETEd
  - the only UPDATE touches status and note (deposit approval)
  - balances are only mutated alongside a matching ledger INSERT inside
    the same SQL transaction

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better read
  concurrency and crash recovery.

USAGE:
  store, err := sqlite.New("./data/lunchfund.db")   // or ":memory:"
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - fund/store.go: Interface definitions
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/crewlunch/lunchfund/fund"
)

// Ensure Store implements fund.Store.
var _ fund.Store = (*Store)(nil)

// Store implements fund.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a Store at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The mutex is the write serializer; extra connections would bypass it.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0,
		rotation_index INTEGER NOT NULL DEFAULT 0,
		last_bought_date TEXT,
		total_bought_times INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_rotation
		ON users(is_active, rotation_index, last_bought_date);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		buyer_ids_json TEXT,
		total_participants INTEGER NOT NULL DEFAULT 0,
		selected_at TEXT,
		payer_id TEXT,
		total_bill INTEGER NOT NULL DEFAULT 0,
		amount_per_person INTEGER NOT NULL DEFAULT 0,
		receipt_ref TEXT,
		settled_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS participants (
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'confirmed',
		created_at TEXT NOT NULL,
		UNIQUE(session_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_participants_session
		ON participants(session_id);

	CREATE TABLE IF NOT EXISTS menus (
		id TEXT PRIMARY KEY,
		creator_id TEXT NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL,
		total_amount INTEGER NOT NULL DEFAULT 0,
		receipt_ref TEXT,
		settled_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS menu_orders (
		menu_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		note TEXT,
		UNIQUE(menu_id, user_id)
	);

	-- Append-only money ledger. The only UPDATE allowed is the deposit
	-- status transition (see SetTransactionStatus).
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		status TEXT NOT NULL,
		ref_id TEXT,
		note TEXT,
		metadata_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user
		ON transactions(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_ref
		ON transactions(ref_id);

	CREATE TABLE IF NOT EXISTS reimbursements (
		id TEXT PRIMARY KEY,
		rtype TEXT NOT NULL,
		ref_id TEXT NOT NULL,
		settler_id TEXT NOT NULL,
		total_amount INTEGER NOT NULL,
		status TEXT NOT NULL,
		admin_id TEXT,
		admin_note TEXT,
		transferred_at TEXT,
		confirmed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reimbursements_status
		ON reimbursements(status);

	-- Notification outbox: appended in the same transaction as the
	-- ledger change it announces, drained by the dispatcher.
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		event TEXT NOT NULL,
		recipients_json TEXT NOT NULL,
		payload_json TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		sent_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_status
		ON notifications(status, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONAL ACCESS
// =============================================================================

// WithTx runs fn inside one SQL transaction, serialized against other
// writers.
func (s *Store) WithTx(ctx context.Context, fn func(tx fund.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&storeTx{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// storeTx implements fund.Tx over an open *sql.Tx.
type storeTx struct {
	q querier
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = "id, name, balance, rotation_index, last_bought_date, total_bought_times, is_active, created_at"

func (t *storeTx) CreateUser(ctx context.Context, u fund.User) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Balance, u.RotationIndex, u.LastBoughtDate,
		u.TotalBoughtTimes, u.IsActive, u.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (t *storeTx) GetUser(ctx context.Context, id string) (*fund.User, error) {
	return getUser(ctx, t.q, id)
}

func (s *Store) GetUser(ctx context.Context, id string) (*fund.User, error) {
	return getUser(ctx, s.db, id)
}

func getUser(ctx context.Context, q querier, id string) (*fund.User, error) {
	row := q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func scanUser(scan func(...any) error) (*fund.User, error) {
	var (
		u              fund.User
		lastBoughtDate sql.NullString
		createdAt      string
	)
	err := scan(&u.ID, &u.Name, &u.Balance, &u.RotationIndex,
		&lastBoughtDate, &u.TotalBoughtTimes, &u.IsActive, &createdAt)
	if err != nil {
		return nil, err
	}
	if lastBoughtDate.Valid {
		u.LastBoughtDate = &lastBoughtDate.String
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func (t *storeTx) UpdateUser(ctx context.Context, u fund.User) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE users
		SET name = ?, balance = ?, rotation_index = ?, last_bought_date = ?,
		    total_bought_times = ?, is_active = ?
		WHERE id = ?`,
		u.Name, u.Balance, u.RotationIndex, u.LastBoughtDate,
		u.TotalBoughtTimes, u.IsActive, u.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *storeTx) ListActiveUsers(ctx context.Context) ([]fund.User, error) {
	rows, err := t.q.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE is_active = TRUE ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]fund.User, error) {
	defer rows.Close()
	var users []fund.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (t *storeTx) AddBalance(ctx context.Context, userID string, delta int64) error {
	res, err := t.q.ExecContext(ctx,
		"UPDATE users SET balance = balance + ? WHERE id = ?", delta, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *storeTx) MaxRotationIndex(ctx context.Context) (int, error) {
	var max int
	err := t.q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(rotation_index), 0) FROM users").Scan(&max)
	return max, err
}

func (t *storeTx) MinActiveRotationIndex(ctx context.Context) (int, error) {
	var min int
	err := t.q.QueryRowContext(ctx,
		"SELECT COALESCE(MIN(rotation_index), 0) FROM users WHERE is_active = TRUE").Scan(&min)
	return min, err
}

func (t *storeTx) ResetRotationIndexes(ctx context.Context) error {
	_, err := t.q.ExecContext(ctx,
		"UPDATE users SET rotation_index = 0 WHERE is_active = TRUE")
	return err
}

// =============================================================================
// SESSIONS AND PARTICIPATION
// =============================================================================

const sessionColumns = `id, date, status, buyer_ids_json, total_participants, selected_at,
	payer_id, total_bill, amount_per_person, receipt_ref, settled_at, created_at`

func (t *storeTx) CreateSession(ctx context.Context, sess fund.Session) error {
	buyerJSON, _ := json.Marshal(sess.BuyerIDs)
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Date, sess.Status, string(buyerJSON),
		sess.TotalParticipants, nullTime(sess.SelectedAt),
		nullStr(sess.PayerID), sess.TotalBill, sess.AmountPerPerson,
		nullStr(sess.ReceiptRef), nullTime(sess.SettledAt),
		sess.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (t *storeTx) UpdateSession(ctx context.Context, sess fund.Session) error {
	buyerJSON, _ := json.Marshal(sess.BuyerIDs)
	res, err := t.q.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, buyer_ids_json = ?, total_participants = ?, selected_at = ?,
		    payer_id = ?, total_bill = ?, amount_per_person = ?, receipt_ref = ?, settled_at = ?
		WHERE id = ?`,
		sess.Status, string(buyerJSON), sess.TotalParticipants, nullTime(sess.SelectedAt),
		nullStr(sess.PayerID), sess.TotalBill, sess.AmountPerPerson,
		nullStr(sess.ReceiptRef), nullTime(sess.SettledAt), sess.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *storeTx) GetSession(ctx context.Context, id string) (*fund.Session, error) {
	return getSessionBy(ctx, t.q, "id", id)
}

func (t *storeTx) GetSessionByDate(ctx context.Context, date string) (*fund.Session, error) {
	return getSessionBy(ctx, t.q, "date", date)
}

func (s *Store) GetSession(ctx context.Context, id string) (*fund.Session, error) {
	return getSessionBy(ctx, s.db, "id", id)
}

func (s *Store) GetSessionByDate(ctx context.Context, date string) (*fund.Session, error) {
	return getSessionBy(ctx, s.db, "date", date)
}

func getSessionBy(ctx context.Context, q querier, column, value string) (*fund.Session, error) {
	var (
		sess                  fund.Session
		buyerJSON             sql.NullString
		selectedAt, settledAt sql.NullString
		payerID, receiptRef   sql.NullString
		createdAt             string
	)
	err := q.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE "+column+" = ?", value,
	).Scan(&sess.ID, &sess.Date, &sess.Status, &buyerJSON, &sess.TotalParticipants,
		&selectedAt, &payerID, &sess.TotalBill, &sess.AmountPerPerson,
		&receiptRef, &settledAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if buyerJSON.Valid && buyerJSON.String != "" && buyerJSON.String != "null" {
		json.Unmarshal([]byte(buyerJSON.String), &sess.BuyerIDs)
	}
	sess.PayerID = payerID.String
	sess.ReceiptRef = receiptRef.String
	sess.SelectedAt = parseTimePtr(selectedAt)
	sess.SettledAt = parseTimePtr(settledAt)
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &sess, nil
}

func (t *storeTx) AddParticipant(ctx context.Context, sessionID, userID string) error {
	// Unique per (session, user); re-joining is a no-op.
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO participants (session_id, user_id, status, created_at)
		VALUES (?, ?, 'confirmed', ?)
		ON CONFLICT(session_id, user_id) DO NOTHING`,
		sessionID, userID, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (t *storeTx) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	_, err := t.q.ExecContext(ctx,
		"DELETE FROM participants WHERE session_id = ? AND user_id = ?",
		sessionID, userID)
	return err
}

func (t *storeTx) ListParticipants(ctx context.Context, sessionID string) ([]fund.User, error) {
	return listParticipants(ctx, t.q, sessionID)
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]fund.User, error) {
	return listParticipants(ctx, s.db, sessionID)
}

// listParticipants returns confirmed, active participants in fairness
// order: lowest rotation_index first, then oldest last_bought_date with
// never-bought (NULL) users ahead of everyone. Users selected together
// share an index and a date, so the next tiebreak is who has bought
// fewer times overall; without it the created_at fallback hands every
// tie to the oldest account and the long-run counts drift apart.
func listParticipants(ctx context.Context, q querier, sessionID string) ([]fund.User, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT u.id, u.name, u.balance, u.rotation_index, u.last_bought_date,
		       u.total_bought_times, u.is_active, u.created_at
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.session_id = ? AND p.status = 'confirmed' AND u.is_active = TRUE
		ORDER BY u.rotation_index ASC,
		         u.last_bought_date IS NOT NULL,
		         u.last_bought_date ASC,
		         u.total_bought_times ASC,
		         u.created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

// =============================================================================
// MENUS
// =============================================================================

const menuColumns = "id, creator_id, title, status, total_amount, receipt_ref, settled_at, created_at"

func (t *storeTx) CreateMenu(ctx context.Context, m fund.Menu) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO menus (`+menuColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.CreatorID, m.Title, m.Status, m.TotalAmount,
		nullStr(m.ReceiptRef), nullTime(m.SettledAt),
		m.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (t *storeTx) UpdateMenu(ctx context.Context, m fund.Menu) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE menus
		SET title = ?, status = ?, total_amount = ?, receipt_ref = ?, settled_at = ?
		WHERE id = ?`,
		m.Title, m.Status, m.TotalAmount, nullStr(m.ReceiptRef),
		nullTime(m.SettledAt), m.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *storeTx) GetMenu(ctx context.Context, id string) (*fund.Menu, error) {
	return getMenu(ctx, t.q, id)
}

func (s *Store) GetMenu(ctx context.Context, id string) (*fund.Menu, error) {
	return getMenu(ctx, s.db, id)
}

func getMenu(ctx context.Context, q querier, id string) (*fund.Menu, error) {
	var (
		m                     fund.Menu
		receiptRef, settledAt sql.NullString
		createdAt             string
	)
	err := q.QueryRowContext(ctx,
		"SELECT "+menuColumns+" FROM menus WHERE id = ?", id,
	).Scan(&m.ID, &m.CreatorID, &m.Title, &m.Status, &m.TotalAmount,
		&receiptRef, &settledAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.ReceiptRef = receiptRef.String
	m.SettledAt = parseTimePtr(settledAt)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

func (t *storeTx) UpsertMenuOrder(ctx context.Context, o fund.MenuOrder) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO menu_orders (menu_id, user_id, amount, note)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(menu_id, user_id) DO UPDATE SET
			amount = excluded.amount,
			note = excluded.note`,
		o.MenuID, o.UserID, o.Amount, nullStr(o.Note),
	)
	return err
}

func (t *storeTx) ListMenuOrders(ctx context.Context, menuID string) ([]fund.MenuOrder, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT menu_id, user_id, amount, note
		FROM menu_orders WHERE menu_id = ?
		ORDER BY user_id ASC`, menuID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []fund.MenuOrder
	for rows.Next() {
		var (
			o    fund.MenuOrder
			note sql.NullString
		)
		if err := rows.Scan(&o.MenuID, &o.UserID, &o.Amount, &note); err != nil {
			return nil, err
		}
		o.Note = note.String
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// =============================================================================
// TRANSACTION LEDGER
// =============================================================================

const txColumns = "id, user_id, amount, tx_type, status, ref_id, note, metadata_json, created_at, updated_at"

func (t *storeTx) AppendTransaction(ctx context.Context, entry fund.Transaction) error {
	metadataJSON, _ := json.Marshal(entry.Metadata)
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Amount, entry.Type, entry.Status,
		nullStr(entry.RefID), nullStr(entry.Note), string(metadataJSON),
		entry.CreatedAt.Format(time.RFC3339), entry.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (t *storeTx) GetTransaction(ctx context.Context, id string) (*fund.Transaction, error) {
	row := t.q.QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = ?", id)
	entry, err := scanTransaction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// SetTransactionStatus is the single permitted ledger mutation: the
// deposit status transition, with the note carried along.
func (t *storeTx) SetTransactionStatus(ctx context.Context, id string, status fund.TxStatus, note string) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE transactions SET status = ?, note = ?, updated_at = ?
		WHERE id = ?`,
		status, nullStr(note), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]fund.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []fund.Transaction
	for rows.Next() {
		entry, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanTransaction(scan func(...any) error) (*fund.Transaction, error) {
	var (
		entry                fund.Transaction
		refID, note, metaStr sql.NullString
		createdAt, updatedAt string
	)
	err := scan(&entry.ID, &entry.UserID, &entry.Amount, &entry.Type, &entry.Status,
		&refID, &note, &metaStr, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	entry.RefID = refID.String
	entry.Note = note.String
	if metaStr.Valid && metaStr.String != "" && metaStr.String != "null" {
		json.Unmarshal([]byte(metaStr.String), &entry.Metadata)
	}
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	entry.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &entry, nil
}

// =============================================================================
// REIMBURSEMENTS
// =============================================================================

const reimbColumns = `id, rtype, ref_id, settler_id, total_amount, status,
	admin_id, admin_note, transferred_at, confirmed_at, created_at`

func (t *storeTx) CreateReimbursement(ctx context.Context, r fund.Reimbursement) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO reimbursements (`+reimbColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Type, r.RefID, r.SettlerID, r.TotalAmount, r.Status,
		nullStr(r.AdminID), nullStr(r.AdminNote),
		nullTime(r.TransferredAt), nullTime(r.ConfirmedAt),
		r.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (t *storeTx) UpdateReimbursement(ctx context.Context, r fund.Reimbursement) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE reimbursements
		SET status = ?, admin_id = ?, admin_note = ?, transferred_at = ?, confirmed_at = ?
		WHERE id = ?`,
		r.Status, nullStr(r.AdminID), nullStr(r.AdminNote),
		nullTime(r.TransferredAt), nullTime(r.ConfirmedAt), r.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *storeTx) GetReimbursement(ctx context.Context, id string) (*fund.Reimbursement, error) {
	return getReimbursement(ctx, t.q, id)
}

func (s *Store) GetReimbursement(ctx context.Context, id string) (*fund.Reimbursement, error) {
	return getReimbursement(ctx, s.db, id)
}

func getReimbursement(ctx context.Context, q querier, id string) (*fund.Reimbursement, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+reimbColumns+" FROM reimbursements WHERE id = ?", id)
	r, err := scanReimbursement(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) ListPendingReimbursements(ctx context.Context) ([]fund.Reimbursement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reimbColumns+` FROM reimbursements
		WHERE status = 'pending'
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fund.Reimbursement
	for rows.Next() {
		r, err := scanReimbursement(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanReimbursement(scan func(...any) error) (*fund.Reimbursement, error) {
	var (
		r                          fund.Reimbursement
		adminID, adminNote         sql.NullString
		transferredAt, confirmedAt sql.NullString
		createdAt                  string
	)
	err := scan(&r.ID, &r.Type, &r.RefID, &r.SettlerID, &r.TotalAmount, &r.Status,
		&adminID, &adminNote, &transferredAt, &confirmedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	r.AdminID = adminID.String
	r.AdminNote = adminNote.String
	r.TransferredAt = parseTimePtr(transferredAt)
	r.ConfirmedAt = parseTimePtr(confirmedAt)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

// =============================================================================
// NOTIFICATION OUTBOX
// =============================================================================

func (t *storeTx) EnqueueNotification(ctx context.Context, n fund.Notification) error {
	recipientsJSON, _ := json.Marshal(n.Recipients)
	payloadJSON, _ := json.Marshal(n.Payload)
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO notifications (id, event, recipients_json, payload_json, status, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Event, string(recipientsJSON), string(payloadJSON),
		n.Status, n.CreatedAt.Format(time.RFC3339), nullTime(n.SentAt),
	)
	return err
}

// PendingNotifications returns the oldest undelivered outbox rows.
// Used by the dispatcher, not by the fund services.
func (s *Store) PendingNotifications(ctx context.Context, limit int) ([]fund.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event, recipients_json, payload_json, status, created_at, sent_at
		FROM notifications
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fund.Notification
	for rows.Next() {
		var (
			n                          fund.Notification
			recipientsJSON, payloadStr sql.NullString
			createdAt                  string
			sentAt                     sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.Event, &recipientsJSON, &payloadStr,
			&n.Status, &createdAt, &sentAt); err != nil {
			return nil, err
		}
		if recipientsJSON.Valid && recipientsJSON.String != "null" {
			json.Unmarshal([]byte(recipientsJSON.String), &n.Recipients)
		}
		if payloadStr.Valid && payloadStr.String != "" && payloadStr.String != "null" {
			json.Unmarshal([]byte(payloadStr.String), &n.Payload)
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		n.SentAt = parseTimePtr(sentAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotification records the delivery outcome of one outbox row.
func (s *Store) MarkNotification(ctx context.Context, id string, status fund.NotificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sentAt any
	if status == fund.NotifySent {
		sentAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET status = ?, sent_at = ? WHERE id = ?",
		status, sentAt, id)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fund.ErrNotFound
	}
	return nil
}
