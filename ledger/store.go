/*
store.go - Persistence interfaces for the ledger engine

PURPOSE:
  Defines the interface between the engine and the relational store.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage.

KEY INTERFACES:
  LedgerStore:  Append-only transaction persistence
  BalanceStore: The one mutable row per user, guarded by the engine
  Store:        LedgerStore + BalanceStore
  TxStore:      Store with an atomic transaction wrapper
  AuditLog:     Best-effort moderation audit trail

APPEND-ONLY CONTRACT:
  LedgerStore has no Update and no Delete. Corrections are recorded as new
  entries with opposite sign.

IDEMPOTENCY:
  Every write may carry an idempotency key. If the key already exists the
  write is rejected, which makes double-submitted approvals safe.

ATOMICITY:
  WithTx gives all-or-nothing semantics across the balance row, the ledger
  append, and any domain records touched by the same operation. If the
  callback fails nothing is persisted.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite (same SQL ports to Postgres)
  - ledger/store/memory.go: In-memory for tests

SEE ALSO:
  - balance.go: BalanceService, the only caller of BalanceStore.ApplyDelta
  - log.go: TransactionLog over LedgerStore
*/
package ledger

import "context"

// =============================================================================
// LEDGER STORE - Append-only transaction persistence
// =============================================================================

// LedgerStore persists ledger transactions. APPEND-ONLY: no Update, no
// Delete, ever.
type LedgerStore interface {
	// Append persists one transaction. Fails with
	// ErrDuplicateIdempotencyKey if the key already exists.
	Append(ctx context.Context, tx LedgerTransaction) error

	// AppendBatch persists multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []LedgerTransaction) error

	// Load returns all transactions for a user, chronologically.
	Load(ctx context.Context, userID UserID) ([]LedgerTransaction, error)

	// LoadRange returns transactions in [from, to].
	LoadRange(ctx context.Context, userID UserID, from, to TimePoint) ([]LedgerTransaction, error)

	// Exists checks whether an idempotency key has been used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// BALANCE STORE - The single mutable row per user
// =============================================================================

// BalanceStore holds the persisted cash balance. Only
// BalanceService.ApplyDelta may write through it; no other component may
// touch a balance directly.
type BalanceStore interface {
	// Balance returns the current balance. A missing row is zero, not an
	// error.
	Balance(ctx context.Context, userID UserID) (Money, error)

	// ApplyDelta atomically adds delta to the user's balance and returns
	// the new value. A delta that would drive the balance negative fails
	// with an InsufficientFundsError and leaves the row untouched.
	ApplyDelta(ctx context.Context, userID UserID, delta Money) (Money, error)
}

// Store is the full persistence surface the balance engine needs.
type Store interface {
	LedgerStore
	BalanceStore
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support. Domain packages that need
// their own records inside the same transaction (investments, deposits)
// type-assert the callback's Store to their extended interface and fail
// with ErrStoreRequired if the store cannot provide it.
type TxStore interface {
	Store

	// WithTx executes fn atomically. If fn returns an error nothing is
	// persisted.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Who did what, when
// =============================================================================

// AuditEntry records a sensitive action. Best-effort: a failed audit write
// never rolls back the operation it describes.
type AuditEntry struct {
	ID          string
	Timestamp   TimePoint
	ActorID     string
	ActorType   string // "user", "admin", "system"
	Action      AuditAction
	UserID      UserID
	ReferenceID string
	Details     map[string]any
}

type AuditAction string

const (
	AuditDepositConfirmed   AuditAction = "deposit_confirmed"
	AuditDepositRejected    AuditAction = "deposit_rejected"
	AuditWithdrawalApproved AuditAction = "withdrawal_approved"
	AuditWithdrawalRejected AuditAction = "withdrawal_rejected"
	AuditInvestmentOpened   AuditAction = "investment_opened"
	AuditInvestmentMatured  AuditAction = "investment_matured"
	AuditBalanceAdjusted    AuditAction = "balance_adjusted"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	UserID  *UserID
	ActorID *string
	Actions []AuditAction
	From    *TimePoint
	To      *TimePoint
}
