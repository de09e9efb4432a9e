/*
Package sqlite provides the SQLite-backed implementation of the
loyalty persistence contracts.

PURPOSE:
  Implements CustomerStore, HistoryStore, and TransactionStore on a
  single database. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

ATOMIC ADJUSTMENT:
  AtomicAdjust runs one database transaction containing a conditional
  UPDATE:

    UPDATE customers
    SET available_points = available_points + ?, ...
    WHERE id = ? AND available_points + ? >= 0

  The increment happens server-side against the current row, never
  against a value read earlier by the caller, so concurrent
  adjustments cannot lose updates. RowsAffected == 0 distinguishes
  "customer missing" from "balance too low" via a follow-up SELECT.
  The tier is then re-derived from the post-update row and the whole
  thing commits atomically.

APPEND-ONLY LEDGER:
  No UPDATE statements exist for ledger_entries. The only DELETEs are
  the documented cascades (customer removal, transaction removal).

CONCURRENCY:
  Uses sync.RWMutex around writes, as SQLite allows one writer at a
  time. WAL mode keeps readers unblocked.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - loyalty/store.go: Interface definitions and cascade rules
  - loyalty/store/memory.go: In-memory implementation for testing
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
	"github.com/warp/loyalty-engine/loyalty"
)

// Store implements all loyalty storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ loyalty.CustomerStore    = (*Store)(nil)
	_ loyalty.HistoryStore     = (*Store)(nil)
	_ loyalty.TransactionStore = (*Store)(nil)
)

// New creates a SQLite store at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

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
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		phone TEXT,
		email TEXT,
		city TEXT,
		country TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		tier TEXT NOT NULL,
		available_points INTEGER NOT NULL DEFAULT 0 CHECK (available_points >= 0),
		lifetime_earned INTEGER NOT NULL DEFAULT 0 CHECK (lifetime_earned >= 0),
		tier_since TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_customers_created_at
		ON customers(created_at DESC);

	-- Append-only ledger of point-affecting events
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_tier TEXT NOT NULL,
		kind TEXT NOT NULL,
		points_delta INTEGER NOT NULL,
		title TEXT,
		tx_code TEXT,
		tx_total INTEGER,
		tx_store TEXT,
		tx_channel TEXT,
		occurred_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path: history listing per customer, newest first
	CREATE INDEX IF NOT EXISTS idx_entries_customer_created
		ON ledger_entries(customer_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_entries_created
		ON ledger_entries(created_at DESC);
	-- Transaction cascade lookups
	CREATE INDEX IF NOT EXISTS idx_entries_tx_code
		ON ledger_entries(tx_code) WHERE tx_code IS NOT NULL;

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_tier TEXT NOT NULL,
		store_code TEXT,
		store_name TEXT,
		channel TEXT,
		items_json TEXT,
		subtotal INTEGER NOT NULL CHECK (subtotal >= 0),
		points_earned INTEGER NOT NULL DEFAULT 0,
		paid_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_customer
		ON transactions(customer_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_paid_at
		ON transactions(paid_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_subtotal
		ON transactions(subtotal);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CUSTOMER STORE (loyalty.CustomerStore interface)
// =============================================================================

func (s *Store) FindCustomer(ctx context.Context, id string) (*loyalty.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectCustomer+" WHERE id = ?", id)
	return scanCustomer(row)
}

// AtomicAdjust applies the delta with a conditional server-side
// increment inside one database transaction. See the package comment.
func (s *Store) AtomicAdjust(ctx context.Context, id string, delta loyalty.PointsDelta, now time.Time) (*loyalty.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin adjust: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET available_points = available_points + ?,
		    lifetime_earned = lifetime_earned + ?,
		    updated_at = ?
		WHERE id = ? AND available_points + ? >= 0`,
		delta.Available, delta.Lifetime, fmtTime(now), id, delta.Available,
	)
	if err != nil {
		return nil, fmt.Errorf("adjust points: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("adjust points: %w", err)
	}
	if affected == 0 {
		// Either the customer is missing or the guard rejected the
		// debit; one more read tells them apart.
		var available int64
		err := tx.QueryRowContext(ctx,
			"SELECT available_points FROM customers WHERE id = ?", id,
		).Scan(&available)
		if err == sql.ErrNoRows {
			return nil, loyalty.ErrCustomerNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("adjust points: %w", err)
		}
		return nil, &loyalty.InsufficientBalanceError{
			CustomerID: id,
			Available:  available,
			Requested:  -delta.Available,
		}
	}

	customer, err := scanCustomer(tx.QueryRowContext(ctx, selectCustomer+" WHERE id = ?", id))
	if err != nil {
		return nil, err
	}

	// Tier is a pure function of the post-update lifetime total.
	if tier := loyalty.TierFor(customer.Membership.LifetimeEarned); tier != customer.Membership.Tier {
		_, err = tx.ExecContext(ctx,
			"UPDATE customers SET tier = ?, tier_since = ? WHERE id = ?",
			string(tier), fmtTime(now), id,
		)
		if err != nil {
			return nil, fmt.Errorf("update tier: %w", err)
		}
		customer.Membership.Tier = tier
		customer.Membership.TierSince = now
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit adjust: %w", err)
	}
	customer.UpdatedAt = now
	return customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c *loyalty.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers
		(id, full_name, phone, email, city, country, status, tier,
		 available_points, lifetime_earned, tier_since, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FullName, c.Phone, c.Email, c.Address.City, c.Address.Country,
		c.Status, string(c.Membership.Tier),
		c.Membership.AvailablePoints, c.Membership.LifetimeEarned,
		fmtTime(c.Membership.TierSince), fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("customer %s already exists", c.ID)
		}
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

// UpdateCustomer writes descriptive fields only. Membership columns
// are owned by AtomicAdjust.
func (s *Store) UpdateCustomer(ctx context.Context, c *loyalty.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET full_name = ?, phone = ?, email = ?, city = ?, country = ?,
		    status = ?, updated_at = ?
		WHERE id = ?`,
		c.FullName, c.Phone, c.Email, c.Address.City, c.Address.Country,
		c.Status, fmtTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loyalty.ErrCustomerNotFound
	}
	return nil
}

// DeleteCustomer removes the customer and cascades their ledger
// entries in one transaction.
func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM customers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loyalty.ErrCustomerNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM ledger_entries WHERE customer_id = ?", id); err != nil {
		return fmt.Errorf("cascade ledger entries: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListCustomers(ctx context.Context, opts loyalty.ListOptions) ([]loyalty.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectCustomer
	var where []string
	var args []any

	if opts.Search != "" {
		where = append(where, "(id LIKE ? OR full_name LIKE ? OR phone LIKE ? OR email LIKE ?)")
		p := "%" + opts.Search + "%"
		args = append(args, p, p, p, p)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += orderClause(customerSortColumns, opts, "created_at")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var result []loyalty.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

const selectCustomer = `
	SELECT id, full_name, phone, email, city, country, status, tier,
	       available_points, lifetime_earned, tier_since, created_at, updated_at
	FROM customers`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*loyalty.Customer, error) {
	var c loyalty.Customer
	var tier, tierSince, createdAt, updatedAt string
	err := row.Scan(
		&c.ID, &c.FullName, &c.Phone, &c.Email,
		&c.Address.City, &c.Address.Country, &c.Status, &tier,
		&c.Membership.AvailablePoints, &c.Membership.LifetimeEarned,
		&tierSince, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, loyalty.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	c.Membership.Tier = loyalty.Tier(tier)
	c.Membership.TierSince = parseTime(tierSince)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// =============================================================================
// HISTORY STORE (loyalty.HistoryStore interface)
// =============================================================================

// Append adds one ledger entry. There is no update path.
func (s *Store) Append(ctx context.Context, entry loyalty.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txCode, txStore, txChannel sql.NullString
	var txTotal sql.NullInt64
	if entry.Transaction != nil {
		txCode = sql.NullString{String: entry.Transaction.Code, Valid: true}
		txTotal = sql.NullInt64{Int64: entry.Transaction.Total, Valid: true}
		txStore = sql.NullString{String: entry.Transaction.Store, Valid: true}
		txChannel = sql.NullString{String: entry.Transaction.Channel, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, customer_id, customer_name, customer_tier, kind, points_delta,
		 title, tx_code, tx_total, tx_store, tx_channel, occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Customer.ID, entry.Customer.Name, string(entry.Customer.Tier),
		string(entry.Kind), entry.PointsDelta, entry.Title,
		txCode, txTotal, txStore, txChannel,
		fmtTime(entry.OccurredAt), fmtTime(entry.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("ledger entry %s already exists", entry.ID)
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, opts loyalty.ListOptions) ([]loyalty.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectEntry
	var where []string
	var args []any

	if opts.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, opts.CustomerID)
	}
	if opts.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, fmtTime(*opts.From))
	}
	if opts.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, fmtTime(*opts.To))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += orderClause(entrySortColumns, opts, "created_at")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var result []loyalty.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// DeleteByTransaction is the transaction-removal cascade.
func (s *Store) DeleteByTransaction(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM ledger_entries WHERE tx_code = ?", code)
	if err != nil {
		return fmt.Errorf("cascade ledger entries: %w", err)
	}
	return nil
}

const selectEntry = `
	SELECT id, customer_id, customer_name, customer_tier, kind, points_delta,
	       title, tx_code, tx_total, tx_store, tx_channel, occurred_at, created_at
	FROM ledger_entries`

func scanEntry(row rowScanner) (loyalty.LedgerEntry, error) {
	var e loyalty.LedgerEntry
	var tier, kind, occurredAt, createdAt string
	var title sql.NullString
	var txCode, txStore, txChannel sql.NullString
	var txTotal sql.NullInt64

	err := row.Scan(
		&e.ID, &e.Customer.ID, &e.Customer.Name, &tier, &kind, &e.PointsDelta,
		&title, &txCode, &txTotal, &txStore, &txChannel, &occurredAt, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("scan ledger entry: %w", err)
	}
	e.Customer.Tier = loyalty.Tier(tier)
	e.Kind = loyalty.EntryKind(kind)
	e.Title = title.String
	if txCode.Valid {
		e.Transaction = &loyalty.TransactionRef{
			Code:    txCode.String,
			Total:   txTotal.Int64,
			Store:   txStore.String,
			Channel: txChannel.String,
		}
	}
	e.OccurredAt = parseTime(occurredAt)
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

// =============================================================================
// TRANSACTION STORE (loyalty.TransactionStore interface)
// =============================================================================

func (s *Store) CreateTransaction(ctx context.Context, tx *loyalty.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	itemsJSON, err := json.Marshal(tx.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, customer_id, customer_name, customer_tier, store_code, store_name,
		 channel, items_json, subtotal, points_earned, paid_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Customer.ID, tx.Customer.Name, string(tx.Customer.Tier),
		tx.Store.Code, tx.Store.Name, tx.Channel, string(itemsJSON),
		tx.Subtotal, tx.PointsEarned, fmtTime(tx.PaidAt), fmtTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("transaction %s already exists", tx.ID)
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *Store) FindTransaction(ctx context.Context, id string) (*loyalty.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectTransaction+" WHERE id = ?", id)
	return scanTransaction(row)
}

// DeleteTransaction removes the transaction and cascades its EARN
// entry. The customer's balance is intentionally not reversed.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loyalty.ErrTransactionNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM ledger_entries WHERE tx_code = ?", id); err != nil {
		return fmt.Errorf("cascade ledger entries: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListTransactions(ctx context.Context, opts loyalty.ListOptions) ([]loyalty.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectTransaction
	var where []string
	var args []any

	if opts.Search != "" {
		where = append(where, "(id LIKE ? OR customer_id LIKE ? OR customer_name LIKE ?)")
		p := "%" + opts.Search + "%"
		args = append(args, p, p, p)
	}
	if opts.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, opts.CustomerID)
	}
	if opts.From != nil {
		where = append(where, "paid_at >= ?")
		args = append(args, fmtTime(*opts.From))
	}
	if opts.To != nil {
		where = append(where, "paid_at <= ?")
		args = append(args, fmtTime(*opts.To))
	}
	if opts.MinSubtotal != nil {
		where = append(where, "subtotal >= ?")
		args = append(args, *opts.MinSubtotal)
	}
	if opts.MaxSubtotal != nil {
		where = append(where, "subtotal <= ?")
		args = append(args, *opts.MaxSubtotal)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += orderClause(transactionSortColumns, opts, "paid_at")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var result []loyalty.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tx)
	}
	return result, rows.Err()
}

const selectTransaction = `
	SELECT id, customer_id, customer_name, customer_tier, store_code, store_name,
	       channel, items_json, subtotal, points_earned, paid_at, created_at
	FROM transactions`

func scanTransaction(row rowScanner) (*loyalty.Transaction, error) {
	var tx loyalty.Transaction
	var tier, paidAt, createdAt string
	var storeCode, storeName, channel, itemsJSON sql.NullString

	err := row.Scan(
		&tx.ID, &tx.Customer.ID, &tx.Customer.Name, &tier,
		&storeCode, &storeName, &channel, &itemsJSON,
		&tx.Subtotal, &tx.PointsEarned, &paidAt, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, loyalty.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	tx.Customer.Tier = loyalty.Tier(tier)
	tx.Store = loyalty.StoreRef{Code: storeCode.String, Name: storeName.String}
	tx.Channel = channel.String
	if itemsJSON.Valid && itemsJSON.String != "" && itemsJSON.String != "null" {
		if err := json.Unmarshal([]byte(itemsJSON.String), &tx.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	tx.PaidAt = parseTime(paidAt)
	tx.CreatedAt = parseTime(createdAt)
	return &tx, nil
}

// =============================================================================
// SORT / TIME HELPERS
// =============================================================================

// Sort columns are whitelisted; unknown fields fall back to the
// default. Tier sorts by rank, not lexically.
var (
	customerSortColumns = map[string]string{
		"createdAt":       "created_at",
		"fullName":        "full_name",
		"availablePoints": "available_points",
		"lifetimeEarned":  "lifetime_earned",
		"tier": `CASE tier
			WHEN 'BRONZE' THEN 0 WHEN 'SILVER' THEN 1
			WHEN 'GOLD' THEN 2 WHEN 'PLATINUM' THEN 3 ELSE -1 END`,
	}
	transactionSortColumns = map[string]string{
		"paidAt":       "paid_at",
		"createdAt":    "created_at",
		"subtotal":     "subtotal",
		"pointsEarned": "points_earned",
	}
	entrySortColumns = map[string]string{
		"createdAt":  "created_at",
		"occurredAt": "occurred_at",
	}
)

func orderClause(columns map[string]string, opts loyalty.ListOptions, defaultField string) string {
	column, ok := columns[opts.SortBy]
	if !ok {
		column = defaultField
	}
	dir := "DESC"
	if opts.Order == loyalty.SortAsc {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", column, dir, dir)
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
