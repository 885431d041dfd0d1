/*
balance.go - The single write path for user balances

PURPOSE:
  BalanceService owns read/modify access to every user's cash balance.
  The invariant it exists to enforce: EVERY balance change goes through
  ApplyDelta, and every successful ApplyDelta appends exactly one ledger
  entry in the same store transaction. No component mutates a balance any
  other way. Deposit confirmation, withdrawal approval, investment open,
  ROI claim and admin adjustment all funnel through here.

OVERDRAFT POLICY:
  A debit that would drive the balance negative fails hard with
  InsufficientFunds. The balance is never clamped to zero: clamping hides
  accounting bugs instead of surfacing them.

CONCURRENCY:
  ApplyDelta is atomic per user. The store serializes the read-modify-
  write (conditional update under the store's transaction), so two
  concurrent withdrawal approvals cannot both succeed if together they
  would overdraw. No cross-user locking exists because no operation spans
  two users' balances.

ABSENCE = ZERO:
  A user with no balance row has a zero balance. Asking for it is not an
  error.

SEE ALSO:
  - store.go: BalanceStore, the conditional-update primitive
  - log.go: The entry appended alongside every delta
*/
package ledger

import (
	"context"
	"fmt"
)

// =============================================================================
// BALANCE SERVICE
// =============================================================================

type BalanceService struct {
	Store TxStore
	Clock Clock
}

func NewBalanceService(store TxStore, clock Clock) *BalanceService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &BalanceService{Store: store, Clock: clock}
}

// Balance returns the user's current cash balance. Absence = zero.
func (b *BalanceService) Balance(ctx context.Context, userID UserID) (Money, error) {
	return b.Store.Balance(ctx, userID)
}

// ApplyDelta atomically applies a signed delta to the user's balance and
// appends the given ledger entry. Fails with InsufficientFunds if a debit
// would overdraw, with ErrDuplicateIdempotencyKey on a replayed key. On
// success returns the new balance.
func (b *BalanceService) ApplyDelta(ctx context.Context, userID UserID, delta Money, entry LedgerTransaction) (Money, error) {
	var newBalance Money
	err := b.Store.WithTx(ctx, func(st Store) error {
		var err error
		newBalance, err = b.ApplyDeltaIn(ctx, st, userID, delta, entry)
		return err
	})
	return newBalance, err
}

// ApplyDeltaIn is ApplyDelta inside an already-open store transaction.
// Lifecycle and approval services call this so their domain records and
// the balance settle together or not at all.
func (b *BalanceService) ApplyDeltaIn(ctx context.Context, st Store, userID UserID, delta Money, entry LedgerTransaction) (Money, error) {
	if entry.IdempotencyKey != "" {
		exists, err := st.Exists(ctx, entry.IdempotencyKey)
		if err != nil {
			return Money{}, err
		}
		if exists {
			return Money{}, ErrDuplicateIdempotencyKey
		}
	}

	newBalance, err := st.ApplyDelta(ctx, userID, delta)
	if err != nil {
		return Money{}, err
	}

	b.fillEntry(&entry, userID, delta)
	if err := st.Append(ctx, entry); err != nil {
		return Money{}, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return newBalance, nil
}

func (b *BalanceService) fillEntry(entry *LedgerTransaction, userID UserID, delta Money) {
	now := b.Clock.Now()
	if entry.ID == "" {
		entry.ID = NewTransactionID()
	}
	entry.UserID = userID
	entry.Delta = delta
	if entry.EffectiveAt.IsZero() {
		entry.EffectiveAt = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.CreatedByType == "" {
		entry.CreatedByType = "system"
	}
}

// =============================================================================
// ADMIN ADJUSTMENT
// =============================================================================

// Adjust applies a manual admin credit or debit with a reason. The same
// overdraft rule applies: an adjustment cannot take a balance negative.
func (b *BalanceService) Adjust(ctx context.Context, userID UserID, delta Money, adminID, reason string) (Money, error) {
	if delta.IsZero() {
		return Money{}, &ValidationError{Field: "amount", Message: "adjustment must be non-zero"}
	}
	txType := TxCredit
	if delta.IsNegative() {
		txType = TxDebit
	}
	return b.ApplyDelta(ctx, userID, delta, LedgerTransaction{
		Type:          txType,
		Description:   reason,
		CreatedBy:     adminID,
		CreatedByType: "admin",
	})
}

// =============================================================================
// RECONCILIATION - Ledger replay vs stored balance
// =============================================================================

// ReconciliationReport compares the stored balance row against the
// balance reconstructed from the ledger.
type ReconciliationReport struct {
	UserID       UserID
	Stored       Money
	FromLedger   Money
	Drift        Money // Stored - FromLedger; zero when consistent
	Transactions int
}

func (r ReconciliationReport) Consistent() bool { return r.Drift.IsZero() }

// Reconcile replays the user's ledger and reports any drift from the
// stored balance. Read-only; fixing drift is an explicit admin adjustment.
func (b *BalanceService) Reconcile(ctx context.Context, userID UserID) (ReconciliationReport, error) {
	stored, err := b.Store.Balance(ctx, userID)
	if err != nil {
		return ReconciliationReport{}, err
	}
	txs, err := b.Store.Load(ctx, userID)
	if err != nil {
		return ReconciliationReport{}, err
	}
	replayed := ReplayBalance(txs)
	return ReconciliationReport{
		UserID:       userID,
		Stored:       stored,
		FromLedger:   replayed,
		Drift:        stored.Sub(replayed),
		Transactions: len(txs),
	}, nil
}
