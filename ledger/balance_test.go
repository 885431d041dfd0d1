package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/invest-ledger/ledger"
	"github.com/warp/invest-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newBalanceService(t *testing.T) (*ledger.BalanceService, *store.TxMemory, *ledger.FixedClock) {
	st := store.NewTxMemory()
	clock := ledger.NewFixedClock(ledger.NewTimePoint(2026, 3, 1))
	return ledger.NewBalanceService(st, clock), st, clock
}

func creditEntry() ledger.LedgerTransaction {
	return ledger.LedgerTransaction{Type: ledger.TxCredit, Description: "test credit"}
}

// =============================================================================
// APPLY DELTA
// =============================================================================

func TestBalance_AbsenceIsZero(t *testing.T) {
	svc, _, _ := newBalanceService(t)

	b, err := svc.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, b.IsZero())
}

func TestApplyDelta_AppendsExactlyOneEntry(t *testing.T) {
	// GIVEN: A credit applied through the service
	// THEN: The balance moves and the ledger gains exactly one entry

	svc, st, clock := newBalanceService(t)
	ctx := context.Background()

	newBal, err := svc.ApplyDelta(ctx, "user-1", ledger.MustParseMoney("100"), creditEntry())
	require.NoError(t, err)
	assert.True(t, newBal.Value.Equal(decimal.NewFromInt(100)))

	txs, err := st.Load(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.TxCredit, txs[0].Type)
	assert.True(t, txs[0].Delta.Value.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, ledger.UserID("user-1"), txs[0].UserID)
	assert.NotEmpty(t, txs[0].ID, "entry gets a generated id")
	assert.True(t, txs[0].EffectiveAt.Equal(clock.Now()), "effective time filled from the clock")
	assert.Equal(t, "system", txs[0].CreatedByType)
}

func TestApplyDelta_OverdraftFailsHard(t *testing.T) {
	// GIVEN: A $100 balance
	// WHEN: Debiting $100.01
	// THEN: The call fails and neither the balance nor the ledger change

	svc, st, _ := newBalanceService(t)
	ctx := context.Background()

	_, err := svc.ApplyDelta(ctx, "user-1", ledger.MustParseMoney("100"), creditEntry())
	require.NoError(t, err)

	_, err = svc.ApplyDelta(ctx, "user-1", ledger.MustParseMoney("-100.01"), ledger.LedgerTransaction{Type: ledger.TxDebit})
	require.Error(t, err)

	var ifErr *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &ifErr)
	assert.True(t, ifErr.Available.Value.Equal(decimal.NewFromInt(100)))

	b, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, b.Value.Equal(decimal.NewFromInt(100)), "not clamped, not changed")

	txs, err := st.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1, "failed debit appends nothing")
}

func TestApplyDelta_ExactDrain_IsAllowed(t *testing.T) {
	svc, _, _ := newBalanceService(t)
	ctx := context.Background()

	_, err := svc.ApplyDelta(ctx, "user-1", ledger.MustParseMoney("100"), creditEntry())
	require.NoError(t, err)

	newBal, err := svc.ApplyDelta(ctx, "user-1", ledger.MustParseMoney("-100"), ledger.LedgerTransaction{Type: ledger.TxDebit})
	require.NoError(t, err)
	assert.True(t, newBal.IsZero())
}

func TestApplyDelta_DuplicateIdempotencyKey(t *testing.T) {
	// GIVEN: A delta already applied under a key
	// WHEN: Replaying the same key
	// THEN: The replay is refused and applies nothing

	svc, st, _ := newBalanceService(t)
	ctx := context.Background()

	entry := ledger.LedgerTransaction{Type: ledger.TxCredit, IdempotencyKey: "op-1"}
	_, err := svc.ApplyDelta(ctx, "user-1", ledger.MustParseMoney("50"), entry)
	require.NoError(t, err)

	_, err = svc.ApplyDelta(ctx, "user-1", ledger.MustParseMoney("50"), entry)
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	b, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, b.Value.Equal(decimal.NewFromInt(50)), "replay applied nothing")

	txs, err := st.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

// =============================================================================
// ADJUSTMENT
// =============================================================================

func TestAdjust_ZeroDelta_IsInvalid(t *testing.T) {
	svc, _, _ := newBalanceService(t)

	_, err := svc.Adjust(context.Background(), "user-1", ledger.ZeroUSD(), "admin-1", "no-op")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestAdjust_RecordsAdminAttribution(t *testing.T) {
	svc, st, _ := newBalanceService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, "user-1", ledger.MustParseMoney("25"), "admin-1", "goodwill credit")
	require.NoError(t, err)

	txs, err := st.Load(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.TxCredit, txs[0].Type)
	assert.Equal(t, "admin-1", txs[0].CreatedBy)
	assert.Equal(t, "admin", txs[0].CreatedByType)
	assert.Equal(t, "goodwill credit", txs[0].Description)
}

func TestAdjust_NegativeDelta_IsDebit(t *testing.T) {
	svc, st, _ := newBalanceService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, "user-1", ledger.MustParseMoney("100"), "admin-1", "seed")
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, "user-1", ledger.MustParseMoney("-30"), "admin-1", "correction")
	require.NoError(t, err)

	txs, err := st.Load(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, ledger.TxDebit, txs[1].Type)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestReconcile_ConsistentHistory(t *testing.T) {
	svc, _, _ := newBalanceService(t)
	ctx := context.Background()

	_, err := svc.ApplyDelta(ctx, "user-1", ledger.MustParseMoney("100"), creditEntry())
	require.NoError(t, err)
	_, err = svc.ApplyDelta(ctx, "user-1", ledger.MustParseMoney("-40"), ledger.LedgerTransaction{Type: ledger.TxDebit})
	require.NoError(t, err)

	report, err := svc.Reconcile(ctx, "user-1")
	require.NoError(t, err)

	assert.True(t, report.Consistent())
	assert.True(t, report.Stored.Value.Equal(decimal.NewFromInt(60)))
	assert.True(t, report.FromLedger.Value.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, 2, report.Transactions)
}

func TestReconcile_DetectsDrift(t *testing.T) {
	// GIVEN: A balance mutated directly on the store, bypassing the ledger
	// THEN: Reconciliation reports the drift instead of hiding it

	svc, st, _ := newBalanceService(t)
	ctx := context.Background()

	_, err := svc.ApplyDelta(ctx, "user-1", ledger.MustParseMoney("100"), creditEntry())
	require.NoError(t, err)

	// Tamper: balance moves with no matching ledger entry.
	_, err = st.ApplyDelta(ctx, "user-1", ledger.MustParseMoney("7"))
	require.NoError(t, err)

	report, err := svc.Reconcile(ctx, "user-1")
	require.NoError(t, err)

	assert.False(t, report.Consistent())
	assert.True(t, report.Drift.Value.Equal(decimal.NewFromInt(7)), "drift = %s", report.Drift)
}
