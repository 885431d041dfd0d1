/*
log.go - Append-only transaction log

PURPOSE:
  The TransactionLog is the immutable record of every balance change:
  deposits, withdrawals, investment opens and completions, ROI claims,
  admin adjustments. It is both the audit trail shown to users and the
  source of truth the stored balance is reconciled against.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. CONSERVATION: The sum of a user's deltas equals their stored balance
  4. IDEMPOTENT: Same idempotency key = same entry (no duplicates)

WHY APPEND-ONLY?
  - Audit trail: every balance can be explained from its history
  - Reconciliation: Reconcile() replays the log against the stored row
  - Corrections are compensating entries, never edits

EXAMPLE FLOW:
  1. Admin confirms $5000 deposit:      TxDeposit        +5000
  2. User opens Gold plan with $5000:   TxInvestmentOpen -5000
  3. User claims 10 days of ROI:        TxRoiClaim       +166.67
  4. Plan matures:                      TxInvestmentCompleted +5333.33

SEE ALSO:
  - store.go: Low-level persistence interface
  - balance.go: BalanceService appends exactly one entry per delta
*/
package ledger

import "context"

// =============================================================================
// TRANSACTION LOG
// =============================================================================

// TransactionLog is the read/append surface over the ledger.
type TransactionLog interface {
	// Append adds one entry. Fails if its idempotency key exists.
	Append(ctx context.Context, tx LedgerTransaction) error

	// AppendBatch adds multiple entries atomically.
	AppendBatch(ctx context.Context, txs []LedgerTransaction) error

	// History returns all entries for a user, chronologically.
	History(ctx context.Context, userID UserID) ([]LedgerTransaction, error)

	// HistoryInRange returns entries in [from, to].
	HistoryInRange(ctx context.Context, userID UserID, from, to TimePoint) ([]LedgerTransaction, error)
}

// =============================================================================
// DEFAULT LOG - Implementation over LedgerStore
// =============================================================================

type DefaultLog struct {
	Store LedgerStore
}

func NewLog(store LedgerStore) *DefaultLog {
	return &DefaultLog{Store: store}
}

func (l *DefaultLog) Append(ctx context.Context, tx LedgerTransaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLog) AppendBatch(ctx context.Context, txs []LedgerTransaction) error {
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLog) History(ctx context.Context, userID UserID) ([]LedgerTransaction, error) {
	return l.Store.Load(ctx, userID)
}

func (l *DefaultLog) HistoryInRange(ctx context.Context, userID UserID, from, to TimePoint) ([]LedgerTransaction, error) {
	return l.Store.LoadRange(ctx, userID, from, to)
}

// ReplayBalance computes a user's balance purely from the ledger. Used by
// reconciliation to detect drift between the stored row and the history.
func ReplayBalance(txs []LedgerTransaction) Money {
	balance := ZeroUSD()
	for _, tx := range txs {
		balance = balance.Add(tx.Delta)
	}
	return balance
}
