/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (ledger.TxStore, invest.Store,
  funding.Store, ledger.AuditLog) using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The ledger tables are append-only:
  - No UPDATE statements on transactions or audit_log
  - No DELETE statements on transactions or audit_log
  - Corrections via reversal entries only

MONEY REPRESENTATION:
  All amounts are stored as decimal TEXT and parsed with shopspring/decimal.
  Never floats: REAL columns would reintroduce the rounding drift the
  decimal type exists to prevent.

BALANCE INVARIANT:
  Non-negativity is guarded by the read-modify-write in applyDelta, which
  runs under the store mutex (plain path) or inside the SQL transaction
  (WithTx path) and fails with InsufficientFundsError before any write.
  A SQL CHECK cannot enforce it because amounts are decimal TEXT.

KEY TABLES:
  transactions: Immutable ledger of all balance changes
  balances:     One mutable row per user
  plans:        Investment plan templates (catalog-managed)
  investments:  Open and completed investments
  deposits:     Inbound funding requests and their moderation state
  withdrawals:  Outbound requests and their moderation state
  audit_log:    Append-only record of admin actions

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The WithTx view runs with the
  write lock already held and therefore goes through unlocked helpers
  exclusively; locking inside the view would self-deadlock.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
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
	"github.com/shopspring/decimal"

	"github.com/warp/invest-ledger/funding"
	"github.com/warp/invest-ledger/invest"
	"github.com/warp/invest-ledger/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Interface checks.
var (
	_ ledger.TxStore  = (*Store)(nil)
	_ funding.Store   = (*Store)(nil)
	_ ledger.AuditLog = (*Store)(nil)
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query helper
// works unchanged inside and outside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The in-process mutex is the writer gate; a second connection would
	// bypass it.
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		delta TEXT NOT NULL,
		currency TEXT NOT NULL,
		description TEXT,
		reference_id TEXT,
		idempotency_key TEXT UNIQUE,
		effective_at TEXT NOT NULL,
		created_by TEXT,
		created_by_type TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user
		ON transactions(user_id, effective_at, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_type
		ON transactions(tx_type);

	-- Balances (the one mutable row per user)
	CREATE TABLE IF NOT EXISTS balances (
		user_id TEXT PRIMARY KEY,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Plans (catalog-managed templates)
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tier TEXT NOT NULL,
		min_investment TEXT NOT NULL,
		max_investment TEXT,
		roi_percent TEXT NOT NULL,
		duration_days INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Investments
	CREATE TABLE IF NOT EXISTS investments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		daily_roi TEXT NOT NULL,
		claimed_roi TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_investments_user
		ON investments(user_id, created_at);
	-- Maturity sweep: active investments ordered by end date
	CREATE INDEX IF NOT EXISTS idx_investments_status_end
		ON investments(status, end_date);

	-- Deposits
	CREATE TABLE IF NOT EXISTS deposits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount_usd TEXT NOT NULL,
		crypto_type TEXT NOT NULL,
		crypto_amount TEXT NOT NULL,
		proof_ref TEXT,
		plan_id TEXT,
		status TEXT NOT NULL,
		admin_id TEXT,
		admin_notes TEXT,
		tx_hash TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deposits_user
		ON deposits(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_deposits_status
		ON deposits(status, created_at);

	-- Withdrawals
	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		address TEXT NOT NULL,
		crypto_type TEXT NOT NULL,
		network TEXT,
		status TEXT NOT NULL,
		admin_id TEXT,
		admin_notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_user
		ON withdrawals(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_status
		ON withdrawals(status, created_at);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_type TEXT NOT NULL,
		action TEXT NOT NULL,
		user_id TEXT,
		reference_id TEXT,
		details_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_user
		ON audit_log(user_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_actor
		ON audit_log(actor_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER STORE (ledger.LedgerStore interface)
// =============================================================================

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx ledger.LedgerTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, db dbtx, tx ledger.LedgerTransaction) error {
	if tx.ID == "" {
		tx.ID = ledger.NewTransactionID()
	}
	if tx.CreatedAt.Time.IsZero() {
		tx.CreatedAt = ledger.TimePoint{Time: time.Now().UTC()}
	}

	query := `
		INSERT INTO transactions
		(id, user_id, tx_type, delta, currency, description, reference_id,
		 idempotency_key, effective_at, created_by, created_by_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.UserID),
		string(tx.Type),
		tx.Delta.Value.String(),
		tx.Delta.Currency,
		tx.Description,
		nullString(tx.ReferenceID),
		nullString(tx.IdempotencyKey),
		tx.EffectiveAt.Time.Format(time.RFC3339Nano),
		tx.CreatedBy,
		tx.CreatedByType,
		tx.CreatedAt.Time.Format(time.RFC3339Nano),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []ledger.LedgerTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Duplicates within the batch would otherwise surface as a partial
	// failure mid-loop.
	keys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if keys[tx.IdempotencyKey] {
				return ledger.ErrDuplicateIdempotencyKey
			}
			keys[tx.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

const txColumns = `id, user_id, tx_type, delta, currency, description, reference_id,
	       idempotency_key, effective_at, created_by, created_by_type, created_at`

// Load returns all transactions for a user, chronologically.
func (s *Store) Load(ctx context.Context, userID ledger.UserID) ([]ledger.LedgerTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadTransactions(ctx, s.db, userID)
}

func loadTransactions(ctx context.Context, db dbtx, userID ledger.UserID) ([]ledger.LedgerTransaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE user_id = ?
		ORDER BY effective_at ASC, created_at ASC
	`
	return queryTransactions(ctx, db, query, string(userID))
}

// LoadRange returns transactions in a time range.
func (s *Store) LoadRange(ctx context.Context, userID ledger.UserID, from, to ledger.TimePoint) ([]ledger.LedgerTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadTransactionsRange(ctx, s.db, userID, from, to)
}

func loadTransactionsRange(ctx context.Context, db dbtx, userID ledger.UserID, from, to ledger.TimePoint) ([]ledger.LedgerTransaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE user_id = ? AND effective_at >= ? AND effective_at <= ?
		ORDER BY effective_at ASC, created_at ASC
	`
	return queryTransactions(ctx, db, query, string(userID),
		from.Time.Format(time.RFC3339Nano), to.Time.Format(time.RFC3339Nano))
}

// Exists checks if an idempotency key has been used.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return keyExists(ctx, s.db, idempotencyKey)
}

func keyExists(ctx context.Context, db dbtx, idempotencyKey string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func queryTransactions(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.LedgerTransaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []ledger.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.LedgerTransaction, error) {
	var (
		tx             ledger.LedgerTransaction
		id, userID     string
		txType         string
		delta          string
		currency       string
		description    sql.NullString
		referenceID    sql.NullString
		idempotencyKey sql.NullString
		effectiveAt    string
		createdBy      sql.NullString
		createdByType  sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&id, &userID, &txType, &delta, &currency, &description,
		&referenceID, &idempotencyKey, &effectiveAt, &createdBy,
		&createdByType, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.ID = ledger.TransactionID(id)
	tx.UserID = ledger.UserID(userID)
	tx.Type = ledger.TransactionType(txType)
	tx.Delta = parseMoney(delta, currency)
	tx.Description = description.String
	tx.ReferenceID = referenceID.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.EffectiveAt = parseTimePoint(effectiveAt)
	tx.CreatedBy = createdBy.String
	tx.CreatedByType = createdByType.String
	tx.CreatedAt = parseTimePoint(createdAt)

	return tx, nil
}

// =============================================================================
// BALANCE STORE (ledger.BalanceStore interface)
// =============================================================================

// Balance returns the user's current balance. A missing row is zero.
func (s *Store) Balance(ctx context.Context, userID ledger.UserID) (ledger.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadBalance(ctx, s.db, userID)
}

func loadBalance(ctx context.Context, db dbtx, userID ledger.UserID) (ledger.Money, error) {
	var amount, currency string
	err := db.QueryRowContext(ctx,
		"SELECT amount, currency FROM balances WHERE user_id = ?",
		string(userID),
	).Scan(&amount, &currency)
	if err == sql.ErrNoRows {
		return ledger.USD(decimal.Zero), nil
	}
	if err != nil {
		return ledger.Money{}, fmt.Errorf("failed to load balance: %w", err)
	}
	return parseMoney(amount, currency), nil
}

// ApplyDelta atomically adds delta to the balance. A delta that would
// drive the balance negative fails with InsufficientFundsError.
func (s *Store) ApplyDelta(ctx context.Context, userID ledger.UserID, delta ledger.Money) (ledger.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return applyDelta(ctx, s.db, userID, delta)
}

// applyDelta is the read-modify-write at the heart of the balance
// invariant. Decimal arithmetic happens in Go, not SQL: SQLite would
// coerce the TEXT amounts to floats.
func applyDelta(ctx context.Context, db dbtx, userID ledger.UserID, delta ledger.Money) (ledger.Money, error) {
	current, err := loadBalance(ctx, db, userID)
	if err != nil {
		return ledger.Money{}, err
	}

	next := current.Add(delta)
	if next.IsNegative() {
		return ledger.Money{}, &ledger.InsufficientFundsError{
			UserID:    userID,
			Available: current,
			Requested: delta.Neg(),
		}
	}

	query := `
		INSERT INTO balances (user_id, amount, currency, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			amount = excluded.amount,
			updated_at = excluded.updated_at
	`
	_, err = db.ExecContext(ctx, query,
		string(userID),
		next.Value.String(),
		next.Currency,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return ledger.Money{}, fmt.Errorf("failed to apply balance delta: %w", err)
	}
	return next, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The store
// handed to fn satisfies funding.Store (and therefore invest.Store), so
// domain services can persist their records atomically with the ledger.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	// The view must only use unlocked helpers: the write lock is held
	// for the whole transaction.
	view := &txView{tx: sqlTx}
	if err := fn(view); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txView is the transaction-scoped store. Every method delegates to the
// shared unlocked helpers over the *sql.Tx.
type txView struct {
	tx *sql.Tx
}

var _ funding.Store = (*txView)(nil)

func (v *txView) Append(ctx context.Context, tx ledger.LedgerTransaction) error {
	return appendTx(ctx, v.tx, tx)
}

func (v *txView) AppendBatch(ctx context.Context, txs []ledger.LedgerTransaction) error {
	for _, tx := range txs {
		if err := appendTx(ctx, v.tx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (v *txView) Load(ctx context.Context, userID ledger.UserID) ([]ledger.LedgerTransaction, error) {
	return loadTransactions(ctx, v.tx, userID)
}

func (v *txView) LoadRange(ctx context.Context, userID ledger.UserID, from, to ledger.TimePoint) ([]ledger.LedgerTransaction, error) {
	return loadTransactionsRange(ctx, v.tx, userID, from, to)
}

func (v *txView) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return keyExists(ctx, v.tx, idempotencyKey)
}

func (v *txView) Balance(ctx context.Context, userID ledger.UserID) (ledger.Money, error) {
	return loadBalance(ctx, v.tx, userID)
}

func (v *txView) ApplyDelta(ctx context.Context, userID ledger.UserID, delta ledger.Money) (ledger.Money, error) {
	return applyDelta(ctx, v.tx, userID, delta)
}

func (v *txView) SavePlan(ctx context.Context, plan invest.Plan) error {
	return savePlan(ctx, v.tx, plan)
}

func (v *txView) GetPlan(ctx context.Context, id ledger.PlanID) (*invest.Plan, error) {
	return getPlan(ctx, v.tx, id)
}

func (v *txView) ListPlans(ctx context.Context, activeOnly bool) ([]invest.Plan, error) {
	return listPlans(ctx, v.tx, activeOnly)
}

func (v *txView) SaveInvestment(ctx context.Context, inv invest.Investment) error {
	return saveInvestment(ctx, v.tx, inv)
}

func (v *txView) UpdateInvestment(ctx context.Context, inv invest.Investment) error {
	return updateInvestment(ctx, v.tx, inv)
}

func (v *txView) GetInvestment(ctx context.Context, id ledger.InvestmentID) (*invest.Investment, error) {
	return getInvestment(ctx, v.tx, id)
}

func (v *txView) ListInvestmentsByUser(ctx context.Context, userID ledger.UserID) ([]invest.Investment, error) {
	return listInvestments(ctx, v.tx, "WHERE user_id = ?", string(userID))
}

func (v *txView) ListInvestmentsByStatus(ctx context.Context, status invest.Status) ([]invest.Investment, error) {
	return listInvestments(ctx, v.tx, "WHERE status = ?", string(status))
}

func (v *txView) SaveDeposit(ctx context.Context, d funding.Deposit) error {
	return saveDeposit(ctx, v.tx, d)
}

func (v *txView) UpdateDeposit(ctx context.Context, d funding.Deposit) error {
	return updateDeposit(ctx, v.tx, d)
}

func (v *txView) GetDeposit(ctx context.Context, id ledger.DepositID) (*funding.Deposit, error) {
	return getDeposit(ctx, v.tx, id)
}

func (v *txView) ListDepositsByUser(ctx context.Context, userID ledger.UserID) ([]funding.Deposit, error) {
	return listDeposits(ctx, v.tx, "WHERE user_id = ?", string(userID))
}

func (v *txView) ListDepositsByStatus(ctx context.Context, status funding.DepositStatus) ([]funding.Deposit, error) {
	return listDeposits(ctx, v.tx, "WHERE status = ?", string(status))
}

func (v *txView) SaveWithdrawal(ctx context.Context, w funding.Withdrawal) error {
	return saveWithdrawal(ctx, v.tx, w)
}

func (v *txView) UpdateWithdrawal(ctx context.Context, w funding.Withdrawal) error {
	return updateWithdrawal(ctx, v.tx, w)
}

func (v *txView) GetWithdrawal(ctx context.Context, id ledger.WithdrawalID) (*funding.Withdrawal, error) {
	return getWithdrawal(ctx, v.tx, id)
}

func (v *txView) ListWithdrawalsByUser(ctx context.Context, userID ledger.UserID) ([]funding.Withdrawal, error) {
	return listWithdrawals(ctx, v.tx, "WHERE user_id = ?", string(userID))
}

func (v *txView) ListWithdrawalsByStatus(ctx context.Context, status funding.WithdrawalStatus) ([]funding.Withdrawal, error) {
	return listWithdrawals(ctx, v.tx, "WHERE status = ?", string(status))
}

// =============================================================================
// PLAN STORE (invest.PlanStore interface)
// =============================================================================

// SavePlan inserts or replaces a plan (catalog upsert).
func (s *Store) SavePlan(ctx context.Context, plan invest.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePlan(ctx, s.db, plan)
}

func savePlan(ctx context.Context, db dbtx, plan invest.Plan) error {
	query := `
		INSERT INTO plans
		(id, name, tier, min_investment, max_investment, roi_percent,
		 duration_days, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tier = excluded.tier,
			min_investment = excluded.min_investment,
			max_investment = excluded.max_investment,
			roi_percent = excluded.roi_percent,
			duration_days = excluded.duration_days,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	var maxInv sql.NullString
	if plan.MaxInvestment != nil {
		maxInv = sql.NullString{String: plan.MaxInvestment.Value.String(), Valid: true}
	}
	_, err := db.ExecContext(ctx, query,
		string(plan.ID),
		plan.Name,
		string(plan.Tier),
		plan.MinInvestment.Value.String(),
		maxInv,
		plan.RoiPercent.String(),
		plan.DurationDays,
		plan.Active,
		plan.CreatedAt.Time.Format(time.RFC3339Nano),
		plan.UpdatedAt.Time.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// GetPlan returns the plan or nil when not found.
func (s *Store) GetPlan(ctx context.Context, id ledger.PlanID) (*invest.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPlan(ctx, s.db, id)
}

const planColumns = `id, name, tier, min_investment, max_investment, roi_percent,
	       duration_days, active, created_at, updated_at`

func getPlan(ctx context.Context, db dbtx, id ledger.PlanID) (*invest.Plan, error) {
	plans, err := queryPlans(ctx, db,
		"SELECT "+planColumns+" FROM plans WHERE id = ?", string(id))
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, nil
	}
	return &plans[0], nil
}

// ListPlans returns plans, optionally only the active ones.
func (s *Store) ListPlans(ctx context.Context, activeOnly bool) ([]invest.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPlans(ctx, s.db, activeOnly)
}

func listPlans(ctx context.Context, db dbtx, activeOnly bool) ([]invest.Plan, error) {
	query := "SELECT " + planColumns + " FROM plans"
	if activeOnly {
		query += " WHERE active"
	}
	query += " ORDER BY min_investment ASC"
	return queryPlans(ctx, db, query)
}

func queryPlans(ctx context.Context, db dbtx, query string, args ...any) ([]invest.Plan, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []invest.Plan
	for rows.Next() {
		var (
			p                    invest.Plan
			id, tier             string
			minInv, roi          string
			maxInv               sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&id, &p.Name, &tier, &minInv, &maxInv, &roi,
			&p.DurationDays, &p.Active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		p.ID = ledger.PlanID(id)
		p.Tier = invest.Tier(tier)
		p.MinInvestment = parseMoney(minInv, ledger.CurrencyUSD)
		if maxInv.Valid {
			m := parseMoney(maxInv.String, ledger.CurrencyUSD)
			p.MaxInvestment = &m
		}
		p.RoiPercent = mustDecimal(roi)
		p.CreatedAt = parseTimePoint(createdAt)
		p.UpdatedAt = parseTimePoint(updatedAt)
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// =============================================================================
// INVESTMENT STORE (invest.InvestmentStore interface)
// =============================================================================

func (s *Store) SaveInvestment(ctx context.Context, inv invest.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveInvestment(ctx, s.db, inv)
}

func saveInvestment(ctx context.Context, db dbtx, inv invest.Investment) error {
	query := `
		INSERT INTO investments
		(id, user_id, plan_id, principal, daily_roi, claimed_roi,
		 start_date, end_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		string(inv.ID),
		string(inv.UserID),
		string(inv.PlanID),
		inv.Principal.Value.String(),
		inv.DailyRoi.Value.String(),
		inv.ClaimedRoi.Value.String(),
		inv.StartDate.Time.Format(time.RFC3339Nano),
		inv.EndDate.Time.Format(time.RFC3339Nano),
		string(inv.Status),
		inv.CreatedAt.Time.Format(time.RFC3339Nano),
		inv.UpdatedAt.Time.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save investment: %w", err)
	}
	return nil
}

// UpdateInvestment rewrites the mutable fields (claimed_roi, status).
func (s *Store) UpdateInvestment(ctx context.Context, inv invest.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateInvestment(ctx, s.db, inv)
}

func updateInvestment(ctx context.Context, db dbtx, inv invest.Investment) error {
	query := `
		UPDATE investments
		SET claimed_roi = ?, status = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		inv.ClaimedRoi.Value.String(),
		string(inv.Status),
		inv.UpdatedAt.Time.Format(time.RFC3339Nano),
		string(inv.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update investment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Entity: "investment", ID: string(inv.ID)}
	}
	return nil
}

func (s *Store) GetInvestment(ctx context.Context, id ledger.InvestmentID) (*invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvestment(ctx, s.db, id)
}

const investmentColumns = `id, user_id, plan_id, principal, daily_roi, claimed_roi,
	       start_date, end_date, status, created_at, updated_at`

func getInvestment(ctx context.Context, db dbtx, id ledger.InvestmentID) (*invest.Investment, error) {
	invs, err := queryInvestments(ctx, db,
		"SELECT "+investmentColumns+" FROM investments WHERE id = ?", string(id))
	if err != nil {
		return nil, err
	}
	if len(invs) == 0 {
		return nil, nil
	}
	return &invs[0], nil
}

func (s *Store) ListInvestmentsByUser(ctx context.Context, userID ledger.UserID) ([]invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInvestments(ctx, s.db, "WHERE user_id = ?", string(userID))
}

func (s *Store) ListInvestmentsByStatus(ctx context.Context, status invest.Status) ([]invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInvestments(ctx, s.db, "WHERE status = ?", string(status))
}

func listInvestments(ctx context.Context, db dbtx, where string, args ...any) ([]invest.Investment, error) {
	query := "SELECT " + investmentColumns + " FROM investments " + where +
		" ORDER BY created_at ASC"
	return queryInvestments(ctx, db, query, args...)
}

func queryInvestments(ctx context.Context, db dbtx, query string, args ...any) ([]invest.Investment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query investments: %w", err)
	}
	defer rows.Close()

	var invs []invest.Investment
	for rows.Next() {
		var (
			inv                             invest.Investment
			id, userID, planID, status      string
			principal, dailyRoi, claimedRoi string
			startDate, endDate              string
			createdAt, updatedAt            string
		)
		if err := rows.Scan(&id, &userID, &planID, &principal, &dailyRoi,
			&claimedRoi, &startDate, &endDate, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		inv.ID = ledger.InvestmentID(id)
		inv.UserID = ledger.UserID(userID)
		inv.PlanID = ledger.PlanID(planID)
		inv.Principal = parseMoney(principal, ledger.CurrencyUSD)
		inv.DailyRoi = parseMoney(dailyRoi, ledger.CurrencyUSD)
		inv.ClaimedRoi = parseMoney(claimedRoi, ledger.CurrencyUSD)
		inv.StartDate = parseTimePoint(startDate)
		inv.EndDate = parseTimePoint(endDate)
		inv.Status = invest.Status(status)
		inv.CreatedAt = parseTimePoint(createdAt)
		inv.UpdatedAt = parseTimePoint(updatedAt)
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// =============================================================================
// DEPOSIT STORE (funding.DepositStore interface)
// =============================================================================

func (s *Store) SaveDeposit(ctx context.Context, d funding.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveDeposit(ctx, s.db, d)
}

func saveDeposit(ctx context.Context, db dbtx, d funding.Deposit) error {
	query := `
		INSERT INTO deposits
		(id, user_id, amount_usd, crypto_type, crypto_amount, proof_ref,
		 plan_id, status, admin_id, admin_notes, tx_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var planID sql.NullString
	if d.PlanID != nil {
		planID = sql.NullString{String: string(*d.PlanID), Valid: true}
	}
	_, err := db.ExecContext(ctx, query,
		string(d.ID),
		string(d.UserID),
		d.AmountUSD.Value.String(),
		d.CryptoType,
		d.CryptoAmount.String(),
		nullString(d.ProofRef),
		planID,
		string(d.Status),
		nullString(d.AdminID),
		nullString(d.AdminNotes),
		nullString(d.TxHash),
		d.CreatedAt.Time.Format(time.RFC3339Nano),
		d.UpdatedAt.Time.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save deposit: %w", err)
	}
	return nil
}

func (s *Store) UpdateDeposit(ctx context.Context, d funding.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateDeposit(ctx, s.db, d)
}

func updateDeposit(ctx context.Context, db dbtx, d funding.Deposit) error {
	query := `
		UPDATE deposits
		SET status = ?, admin_id = ?, admin_notes = ?, tx_hash = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		string(d.Status),
		nullString(d.AdminID),
		nullString(d.AdminNotes),
		nullString(d.TxHash),
		d.UpdatedAt.Time.Format(time.RFC3339Nano),
		string(d.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update deposit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Entity: "deposit", ID: string(d.ID)}
	}
	return nil
}

func (s *Store) GetDeposit(ctx context.Context, id ledger.DepositID) (*funding.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDeposit(ctx, s.db, id)
}

const depositColumns = `id, user_id, amount_usd, crypto_type, crypto_amount, proof_ref,
	       plan_id, status, admin_id, admin_notes, tx_hash, created_at, updated_at`

func getDeposit(ctx context.Context, db dbtx, id ledger.DepositID) (*funding.Deposit, error) {
	deposits, err := queryDeposits(ctx, db,
		"SELECT "+depositColumns+" FROM deposits WHERE id = ?", string(id))
	if err != nil {
		return nil, err
	}
	if len(deposits) == 0 {
		return nil, nil
	}
	return &deposits[0], nil
}

func (s *Store) ListDepositsByUser(ctx context.Context, userID ledger.UserID) ([]funding.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDeposits(ctx, s.db, "WHERE user_id = ?", string(userID))
}

func (s *Store) ListDepositsByStatus(ctx context.Context, status funding.DepositStatus) ([]funding.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDeposits(ctx, s.db, "WHERE status = ?", string(status))
}

func listDeposits(ctx context.Context, db dbtx, where string, args ...any) ([]funding.Deposit, error) {
	query := "SELECT " + depositColumns + " FROM deposits " + where +
		" ORDER BY created_at ASC"
	return queryDeposits(ctx, db, query, args...)
}

func queryDeposits(ctx context.Context, db dbtx, query string, args ...any) ([]funding.Deposit, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposits: %w", err)
	}
	defer rows.Close()

	var deposits []funding.Deposit
	for rows.Next() {
		var (
			d                              funding.Deposit
			id, userID, status             string
			amountUSD, cryptoAmount        string
			proofRef, planID               sql.NullString
			adminID, adminNotes, txHash    sql.NullString
			createdAt, updatedAt           string
		)
		if err := rows.Scan(&id, &userID, &amountUSD, &d.CryptoType,
			&cryptoAmount, &proofRef, &planID, &status, &adminID,
			&adminNotes, &txHash, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		d.ID = ledger.DepositID(id)
		d.UserID = ledger.UserID(userID)
		d.AmountUSD = parseMoney(amountUSD, ledger.CurrencyUSD)
		d.CryptoAmount = mustDecimal(cryptoAmount)
		d.ProofRef = proofRef.String
		if planID.Valid {
			pid := ledger.PlanID(planID.String)
			d.PlanID = &pid
		}
		d.Status = funding.DepositStatus(status)
		d.AdminID = adminID.String
		d.AdminNotes = adminNotes.String
		d.TxHash = txHash.String
		d.CreatedAt = parseTimePoint(createdAt)
		d.UpdatedAt = parseTimePoint(updatedAt)
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// =============================================================================
// WITHDRAWAL STORE (funding.WithdrawalStore interface)
// =============================================================================

func (s *Store) SaveWithdrawal(ctx context.Context, w funding.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveWithdrawal(ctx, s.db, w)
}

func saveWithdrawal(ctx context.Context, db dbtx, w funding.Withdrawal) error {
	query := `
		INSERT INTO withdrawals
		(id, user_id, amount, address, crypto_type, network, status,
		 admin_id, admin_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		string(w.ID),
		string(w.UserID),
		w.Amount.Value.String(),
		w.Address,
		w.CryptoType,
		nullString(w.Network),
		string(w.Status),
		nullString(w.AdminID),
		nullString(w.AdminNotes),
		w.CreatedAt.Time.Format(time.RFC3339Nano),
		w.UpdatedAt.Time.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save withdrawal: %w", err)
	}
	return nil
}

func (s *Store) UpdateWithdrawal(ctx context.Context, w funding.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateWithdrawal(ctx, s.db, w)
}

func updateWithdrawal(ctx context.Context, db dbtx, w funding.Withdrawal) error {
	query := `
		UPDATE withdrawals
		SET status = ?, admin_id = ?, admin_notes = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		string(w.Status),
		nullString(w.AdminID),
		nullString(w.AdminNotes),
		w.UpdatedAt.Time.Format(time.RFC3339Nano),
		string(w.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Entity: "withdrawal", ID: string(w.ID)}
	}
	return nil
}

func (s *Store) GetWithdrawal(ctx context.Context, id ledger.WithdrawalID) (*funding.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getWithdrawal(ctx, s.db, id)
}

const withdrawalColumns = `id, user_id, amount, address, crypto_type, network, status,
	       admin_id, admin_notes, created_at, updated_at`

func getWithdrawal(ctx context.Context, db dbtx, id ledger.WithdrawalID) (*funding.Withdrawal, error) {
	withdrawals, err := queryWithdrawals(ctx, db,
		"SELECT "+withdrawalColumns+" FROM withdrawals WHERE id = ?", string(id))
	if err != nil {
		return nil, err
	}
	if len(withdrawals) == 0 {
		return nil, nil
	}
	return &withdrawals[0], nil
}

func (s *Store) ListWithdrawalsByUser(ctx context.Context, userID ledger.UserID) ([]funding.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listWithdrawals(ctx, s.db, "WHERE user_id = ?", string(userID))
}

func (s *Store) ListWithdrawalsByStatus(ctx context.Context, status funding.WithdrawalStatus) ([]funding.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listWithdrawals(ctx, s.db, "WHERE status = ?", string(status))
}

func listWithdrawals(ctx context.Context, db dbtx, where string, args ...any) ([]funding.Withdrawal, error) {
	query := "SELECT " + withdrawalColumns + " FROM withdrawals " + where +
		" ORDER BY created_at ASC"
	return queryWithdrawals(ctx, db, query, args...)
}

func queryWithdrawals(ctx context.Context, db dbtx, query string, args ...any) ([]funding.Withdrawal, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []funding.Withdrawal
	for rows.Next() {
		var (
			w                    funding.Withdrawal
			id, userID, status   string
			amount               string
			network              sql.NullString
			adminID, adminNotes  sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&id, &userID, &amount, &w.Address, &w.CryptoType,
			&network, &status, &adminID, &adminNotes, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		w.ID = ledger.WithdrawalID(id)
		w.UserID = ledger.UserID(userID)
		w.Amount = parseMoney(amount, ledger.CurrencyUSD)
		w.Network = network.String
		w.Status = funding.WithdrawalStatus(status)
		w.AdminID = adminID.String
		w.AdminNotes = adminNotes.String
		w.CreatedAt = parseTimePoint(createdAt)
		w.UpdatedAt = parseTimePoint(updatedAt)
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

// =============================================================================
// AUDIT LOG (ledger.AuditLog interface)
// =============================================================================

// AppendAudit stores an audit entry. Append-only.
func (s *Store) AppendAudit(ctx context.Context, entry ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = string(ledger.NewTransactionID())
	}
	detailsJSON, _ := json.Marshal(entry.Details)

	query := `
		INSERT INTO audit_log
		(id, timestamp, actor_id, actor_type, action, user_id, reference_id, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Timestamp.Time.Format(time.RFC3339Nano),
		entry.ActorID,
		entry.ActorType,
		string(entry.Action),
		nullString(string(entry.UserID)),
		nullString(entry.ReferenceID),
		string(detailsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns audit entries matching the filter, newest first.
func (s *Store) QueryAudit(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, timestamp, actor_id, actor_type, action, user_id, reference_id, details_json
		FROM audit_log
	`
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != nil {
		clauses = append(clauses, "user_id = ?")
		args = append(args, string(*filter.UserID))
	}
	if filter.ActorID != nil {
		clauses = append(clauses, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			placeholders[i] = "?"
			args = append(args, string(a))
		}
		clauses = append(clauses, "action IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.From != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.From.Time.Format(time.RFC3339Nano))
	}
	if filter.To != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.To.Time.Format(time.RFC3339Nano))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			entry                  ledger.AuditEntry
			timestamp, action      string
			userID, referenceID    sql.NullString
			detailsJSON            sql.NullString
		)
		if err := rows.Scan(&entry.ID, &timestamp, &entry.ActorID,
			&entry.ActorType, &action, &userID, &referenceID, &detailsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Timestamp = parseTimePoint(timestamp)
		entry.Action = ledger.AuditAction(action)
		entry.UserID = ledger.UserID(userID.String)
		entry.ReferenceID = referenceID.String
		if detailsJSON.Valid && detailsJSON.String != "" {
			json.Unmarshal([]byte(detailsJSON.String), &entry.Details)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseMoney(value, currency string) ledger.Money {
	if currency == "" {
		currency = ledger.CurrencyUSD
	}
	return ledger.Money{Value: mustDecimal(value), Currency: currency}
}

func parseTimePoint(s string) ledger.TimePoint {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return ledger.TimePoint{Time: t.UTC()}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
