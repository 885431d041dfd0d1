package funding_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/invest-ledger/funding"
	"github.com/warp/invest-ledger/ledger"
	"github.com/warp/invest-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type withdrawalFixture struct {
	store       *sqlite.Store
	clock       *ledger.FixedClock
	balance     *ledger.BalanceService
	withdrawals *funding.WithdrawalService
}

func newWithdrawalFixture(t *testing.T) *withdrawalFixture {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := ledger.NewFixedClock(ledger.NewTimePoint(2026, 3, 1))
	balance := ledger.NewBalanceService(store, clock)
	withdrawals := funding.NewWithdrawalService(store, balance, clock)

	return &withdrawalFixture{store: store, clock: clock, balance: balance, withdrawals: withdrawals}
}

func (f *withdrawalFixture) fund(t *testing.T, user ledger.UserID, amount string) {
	_, err := f.balance.ApplyDelta(context.Background(), user, ledger.MustParseMoney(amount), ledger.LedgerTransaction{
		Type:        ledger.TxCredit,
		Description: "test funding",
	})
	require.NoError(t, err)
}

func (f *withdrawalFixture) balanceOf(t *testing.T, user ledger.UserID) decimal.Decimal {
	b, err := f.balance.Balance(context.Background(), user)
	require.NoError(t, err)
	return b.Value
}

func (f *withdrawalFixture) request(t *testing.T, user ledger.UserID, amount string) *funding.Withdrawal {
	w, err := f.withdrawals.Request(context.Background(), funding.RequestInput{
		UserID:     user,
		Amount:     ledger.MustParseMoney(amount),
		Address:    "bc1qtestaddress",
		CryptoType: "BTC",
		Network:    "bitcoin",
	})
	require.NoError(t, err)
	return w
}

// =============================================================================
// REQUEST
// =============================================================================

func TestRequestWithdrawal_DoesNotDebit(t *testing.T) {
	// GIVEN: A user with $100
	// WHEN: Requesting an $80 withdrawal
	// THEN: It is recorded pending and the balance is untouched until approval

	f := newWithdrawalFixture(t)
	f.fund(t, "user-1", "100")

	w := f.request(t, "user-1", "80")

	assert.Equal(t, funding.WithdrawalPending, w.Status)
	assert.True(t, f.balanceOf(t, "user-1").Equal(decimal.NewFromInt(100)), "no hold at request time")
}

func TestRequestWithdrawal_OverBalance(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, "user-1", "100")

	_, err := f.withdrawals.Request(context.Background(), funding.RequestInput{
		UserID:     "user-1",
		Amount:     ledger.MustParseMoney("100.01"),
		Address:    "bc1qtestaddress",
		CryptoType: "BTC",
	})
	require.Error(t, err)

	var ifErr *ledger.InsufficientFundsError
	assert.ErrorAs(t, err, &ifErr)
}

func TestRequestWithdrawal_Validation(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, "user-1", "100")
	ctx := context.Background()

	_, err := f.withdrawals.Request(ctx, funding.RequestInput{
		UserID: "user-1", Amount: ledger.MustParseMoney("-5"),
		Address: "addr", CryptoType: "BTC",
	})
	assert.ErrorIs(t, err, ledger.ErrValidation, "negative amount")

	_, err = f.withdrawals.Request(ctx, funding.RequestInput{
		UserID: "user-1", Amount: ledger.MustParseMoney("10"), CryptoType: "BTC",
	})
	assert.ErrorIs(t, err, ledger.ErrValidation, "missing address")

	_, err = f.withdrawals.Request(ctx, funding.RequestInput{
		UserID: "user-1", Amount: ledger.MustParseMoney("10"), Address: "addr",
	})
	assert.ErrorIs(t, err, ledger.ErrValidation, "missing crypto_type")
}

func TestWithdrawalEligibility(t *testing.T) {
	f := newWithdrawalFixture(t)
	ctx := context.Background()

	ok, err := f.withdrawals.Eligible(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok, "zero balance is not eligible")

	f.fund(t, "user-1", "0.01")
	ok, err = f.withdrawals.Eligible(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

// =============================================================================
// APPROVE
// =============================================================================

func TestApproveWithdrawal_DebitsBalance(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, "user-1", "100")
	w := f.request(t, "user-1", "80")
	ctx := context.Background()

	approved, err := f.withdrawals.Approve(ctx, w.ID, "admin-1", "paid out")
	require.NoError(t, err)

	assert.Equal(t, funding.WithdrawalApproved, approved.Status)
	assert.Equal(t, "admin-1", approved.AdminID)
	assert.True(t, f.balanceOf(t, "user-1").Equal(decimal.NewFromInt(20)))

	txs, err := f.store.Load(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, txs, 2) // funding credit + withdrawal debit
	assert.Equal(t, ledger.TxWithdrawal, txs[1].Type)
	assert.True(t, txs[1].Delta.Value.Equal(decimal.NewFromInt(-80)))
}

func TestApproveWithdrawal_RechecksSufficiency(t *testing.T) {
	// GIVEN: Two pending $80 requests against a $100 balance
	// WHEN: Approving both
	// THEN: The first succeeds, the second fails hard and stays pending

	f := newWithdrawalFixture(t)
	f.fund(t, "user-1", "100")
	first := f.request(t, "user-1", "80")
	second := f.request(t, "user-1", "80")
	ctx := context.Background()

	_, err := f.withdrawals.Approve(ctx, first.ID, "admin-1", "")
	require.NoError(t, err)

	_, err = f.withdrawals.Approve(ctx, second.ID, "admin-1", "")
	require.Error(t, err)
	var ifErr *ledger.InsufficientFundsError
	assert.ErrorAs(t, err, &ifErr)

	assert.True(t, f.balanceOf(t, "user-1").Equal(decimal.NewFromInt(20)), "no partial debit")
	got, err := f.store.GetWithdrawal(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, funding.WithdrawalPending, got.Status, "failed approval leaves it pending")
}

func TestApproveWithdrawal_Twice_Conflicts(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, "user-1", "100")
	w := f.request(t, "user-1", "50")
	ctx := context.Background()

	_, err := f.withdrawals.Approve(ctx, w.ID, "admin-1", "")
	require.NoError(t, err)

	_, err = f.withdrawals.Approve(ctx, w.ID, "admin-2", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
	assert.True(t, f.balanceOf(t, "user-1").Equal(decimal.NewFromInt(50)), "debit not doubled")
}

// =============================================================================
// REJECT
// =============================================================================

func TestRejectWithdrawal_NoBalanceEffect(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, "user-1", "100")
	w := f.request(t, "user-1", "80")
	ctx := context.Background()

	rejected, err := f.withdrawals.Reject(ctx, w.ID, "admin-1", "address on a sanctioned network")
	require.NoError(t, err)

	assert.Equal(t, funding.WithdrawalRejected, rejected.Status)
	assert.True(t, f.balanceOf(t, "user-1").Equal(decimal.NewFromInt(100)))
}

func TestRejectWithdrawal_AfterApprove_Conflicts(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, "user-1", "100")
	w := f.request(t, "user-1", "50")
	ctx := context.Background()

	_, err := f.withdrawals.Approve(ctx, w.ID, "admin-1", "")
	require.NoError(t, err)

	_, err = f.withdrawals.Reject(ctx, w.ID, "admin-2", "too late")
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
}

// =============================================================================
// LISTING
// =============================================================================

func TestListPendingWithdrawals(t *testing.T) {
	f := newWithdrawalFixture(t)
	f.fund(t, "user-1", "500")
	a := f.request(t, "user-1", "100")
	b := f.request(t, "user-1", "200")
	ctx := context.Background()

	_, err := f.withdrawals.Approve(ctx, a.ID, "admin-1", "")
	require.NoError(t, err)

	pending, err := f.withdrawals.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)
}
