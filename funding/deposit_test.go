package funding_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/invest-ledger/funding"
	"github.com/warp/invest-ledger/invest"
	"github.com/warp/invest-ledger/ledger"
	"github.com/warp/invest-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type depositFixture struct {
	store    *sqlite.Store
	clock    *ledger.FixedClock
	balance  *ledger.BalanceService
	deposits *funding.DepositService
}

func newDepositFixture(t *testing.T) *depositFixture {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := ledger.NewFixedClock(ledger.NewTimePoint(2026, 3, 1))
	balance := ledger.NewBalanceService(store, clock)
	lifecycle := invest.NewLifecycleService(store, balance, clock)
	rates := funding.StaticRates{
		"BTC":  decimal.NewFromInt(50000),
		"ETH":  decimal.NewFromInt(2500),
		"USDT": decimal.NewFromInt(1),
	}
	deposits := funding.NewDepositService(store, balance, lifecycle, rates, clock)

	return &depositFixture{store: store, clock: clock, balance: balance, deposits: deposits}
}

func (f *depositFixture) seedPlan(t *testing.T, id ledger.PlanID) {
	plan := invest.Plan{
		ID:            id,
		Name:          "Test Plan",
		Tier:          invest.TierGold,
		MinInvestment: ledger.MustParseMoney("100"),
		RoiPercent:    decimal.RequireFromString("10"),
		DurationDays:  30,
		Active:        true,
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}
	require.NoError(t, f.store.SavePlan(context.Background(), plan))
}

func (f *depositFixture) balanceOf(t *testing.T, user ledger.UserID) decimal.Decimal {
	b, err := f.balance.Balance(context.Background(), user)
	require.NoError(t, err)
	return b.Value
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmitDeposit_ExplicitUSD(t *testing.T) {
	// GIVEN: A deposit claim with a USD amount already stated
	// THEN: It is recorded pending, with no balance effect yet

	f := newDepositFixture(t)
	ctx := context.Background()

	d, err := f.deposits.Submit(ctx, funding.SubmitInput{
		UserID:       "user-1",
		AmountUSD:    ledger.MustParseMoney("250"),
		CryptoType:   "BTC",
		CryptoAmount: decimal.RequireFromString("0.005"),
		ProofRef:     "tx-abc123",
	})
	require.NoError(t, err)

	assert.Equal(t, funding.DepositPending, d.Status)
	assert.True(t, d.AmountUSD.Value.Equal(decimal.NewFromInt(250)))
	assert.True(t, f.balanceOf(t, "user-1").Equal(decimal.Zero), "pending deposits do not credit")
}

func TestSubmitDeposit_DerivesUSDFromRate(t *testing.T) {
	// GIVEN: Only a crypto amount, BTC at $50000
	// THEN: The USD value is fixed at submission time

	f := newDepositFixture(t)

	d, err := f.deposits.Submit(context.Background(), funding.SubmitInput{
		UserID:       "user-1",
		CryptoType:   "BTC",
		CryptoAmount: decimal.RequireFromString("0.01"),
		ProofRef:     "tx-abc123",
	})
	require.NoError(t, err)
	assert.True(t, d.AmountUSD.Value.Equal(decimal.NewFromInt(500)), "amount = %s", d.AmountUSD)
}

func TestSubmitDeposit_Validation(t *testing.T) {
	f := newDepositFixture(t)
	ctx := context.Background()

	_, err := f.deposits.Submit(ctx, funding.SubmitInput{
		UserID: "user-1", AmountUSD: ledger.MustParseMoney("100"), ProofRef: "p",
	})
	assert.ErrorIs(t, err, ledger.ErrValidation, "missing crypto_type")

	_, err = f.deposits.Submit(ctx, funding.SubmitInput{
		UserID: "user-1", AmountUSD: ledger.MustParseMoney("100"), CryptoType: "BTC",
	})
	assert.ErrorIs(t, err, ledger.ErrValidation, "missing proof_ref")

	_, err = f.deposits.Submit(ctx, funding.SubmitInput{
		UserID: "user-1", CryptoType: "BTC", ProofRef: "p",
	})
	assert.ErrorIs(t, err, ledger.ErrValidation, "no amount in either currency")
}

func TestSubmitDeposit_UnknownRateBlocks(t *testing.T) {
	f := newDepositFixture(t)

	_, err := f.deposits.Submit(context.Background(), funding.SubmitInput{
		UserID:       "user-1",
		CryptoType:   "DOGE",
		CryptoAmount: decimal.RequireFromString("1000"),
		ProofRef:     "tx-abc123",
	})
	assert.ErrorIs(t, err, ledger.ErrUpstreamUnavailable)
}

// =============================================================================
// CONFIRM
// =============================================================================

func TestConfirmDeposit_CreditsBalance(t *testing.T) {
	// GIVEN: A pending $250 deposit
	// WHEN: An admin confirms it
	// THEN: The user is credited and the ledger shows one deposit entry

	f := newDepositFixture(t)
	ctx := context.Background()

	d, err := f.deposits.Submit(ctx, funding.SubmitInput{
		UserID:       "user-1",
		AmountUSD:    ledger.MustParseMoney("250"),
		CryptoType:   "ETH",
		CryptoAmount: decimal.RequireFromString("0.1"),
		ProofRef:     "tx-abc123",
	})
	require.NoError(t, err)

	confirmed, err := f.deposits.Confirm(ctx, d.ID, "admin-1", "0xhash", "looks good")
	require.NoError(t, err)

	assert.Equal(t, funding.DepositConfirmed, confirmed.Status)
	assert.Equal(t, "admin-1", confirmed.AdminID)
	assert.True(t, f.balanceOf(t, "user-1").Equal(decimal.NewFromInt(250)))

	txs, err := f.store.Load(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.TxDeposit, txs[0].Type)
	assert.Equal(t, string(d.ID), txs[0].ReferenceID)
}

func TestConfirmDeposit_Twice_Conflicts(t *testing.T) {
	// GIVEN: An already confirmed deposit
	// WHEN: A second admin confirms from a stale view
	// THEN: The retry conflicts and the credit is not doubled

	f := newDepositFixture(t)
	ctx := context.Background()

	d, err := f.deposits.Submit(ctx, funding.SubmitInput{
		UserID: "user-1", AmountUSD: ledger.MustParseMoney("250"),
		CryptoType: "ETH", ProofRef: "tx-abc123",
	})
	require.NoError(t, err)
	_, err = f.deposits.Confirm(ctx, d.ID, "admin-1", "", "")
	require.NoError(t, err)

	_, err = f.deposits.Confirm(ctx, d.ID, "admin-2", "", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
	assert.True(t, f.balanceOf(t, "user-1").Equal(decimal.NewFromInt(250)))
}

func TestConfirmDeposit_AutoOpensTargetPlan(t *testing.T) {
	// GIVEN: A pending deposit targeting a plan
	// WHEN: Confirmed
	// THEN: The investment opens in the same transaction and the net
	//       balance effect is zero (credit then open debit)

	f := newDepositFixture(t)
	f.seedPlan(t, "plan-gold")
	ctx := context.Background()

	planID := ledger.PlanID("plan-gold")
	d, err := f.deposits.Submit(ctx, funding.SubmitInput{
		UserID: "user-1", AmountUSD: ledger.MustParseMoney("1000"),
		CryptoType: "BTC", ProofRef: "tx-abc123", PlanID: &planID,
	})
	require.NoError(t, err)

	_, err = f.deposits.Confirm(ctx, d.ID, "admin-1", "0xhash", "")
	require.NoError(t, err)

	assert.True(t, f.balanceOf(t, "user-1").Equal(decimal.Zero))

	txs, err := f.store.Load(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, ledger.TxDeposit, txs[0].Type)
	assert.Equal(t, ledger.TxInvestmentOpen, txs[1].Type)

	invs, err := f.store.ListInvestmentsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, invest.StatusActive, invs[0].Status)
	assert.True(t, invs[0].Principal.Value.Equal(decimal.NewFromInt(1000)))
}

func TestConfirmDeposit_PlanBelowMinimum_RollsBack(t *testing.T) {
	// GIVEN: A plan-targeted deposit below the plan minimum
	// WHEN: Confirmed
	// THEN: The whole confirmation rolls back, credit included

	f := newDepositFixture(t)
	f.seedPlan(t, "plan-gold") // min 100
	ctx := context.Background()

	planID := ledger.PlanID("plan-gold")
	d, err := f.deposits.Submit(ctx, funding.SubmitInput{
		UserID: "user-1", AmountUSD: ledger.MustParseMoney("50"),
		CryptoType: "BTC", ProofRef: "tx-abc123", PlanID: &planID,
	})
	require.NoError(t, err)

	_, err = f.deposits.Confirm(ctx, d.ID, "admin-1", "", "")
	require.ErrorIs(t, err, ledger.ErrValidation)

	assert.True(t, f.balanceOf(t, "user-1").Equal(decimal.Zero), "credit rolled back")
	got, err := f.store.GetDeposit(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, funding.DepositPending, got.Status, "deposit stays pending")
}

// =============================================================================
// REJECT
// =============================================================================

func TestRejectDeposit_NoBalanceEffect(t *testing.T) {
	f := newDepositFixture(t)
	ctx := context.Background()

	d, err := f.deposits.Submit(ctx, funding.SubmitInput{
		UserID: "user-1", AmountUSD: ledger.MustParseMoney("250"),
		CryptoType: "BTC", ProofRef: "tx-abc123",
	})
	require.NoError(t, err)

	rejected, err := f.deposits.Reject(ctx, d.ID, "admin-1", "proof does not match")
	require.NoError(t, err)

	assert.Equal(t, funding.DepositRejected, rejected.Status)
	assert.Equal(t, "proof does not match", rejected.AdminNotes)
	assert.True(t, f.balanceOf(t, "user-1").Equal(decimal.Zero))

	txs, err := f.store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestRejectDeposit_AfterConfirm_Conflicts(t *testing.T) {
	f := newDepositFixture(t)
	ctx := context.Background()

	d, err := f.deposits.Submit(ctx, funding.SubmitInput{
		UserID: "user-1", AmountUSD: ledger.MustParseMoney("250"),
		CryptoType: "BTC", ProofRef: "tx-abc123",
	})
	require.NoError(t, err)
	_, err = f.deposits.Confirm(ctx, d.ID, "admin-1", "", "")
	require.NoError(t, err)

	_, err = f.deposits.Reject(ctx, d.ID, "admin-2", "changed my mind")
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
	assert.True(t, f.balanceOf(t, "user-1").Equal(decimal.NewFromInt(250)), "confirmed credit stands")
}

// =============================================================================
// LISTING
// =============================================================================

func TestListPendingDeposits(t *testing.T) {
	f := newDepositFixture(t)
	ctx := context.Background()

	a, err := f.deposits.Submit(ctx, funding.SubmitInput{
		UserID: "user-1", AmountUSD: ledger.MustParseMoney("100"),
		CryptoType: "BTC", ProofRef: "tx-a",
	})
	require.NoError(t, err)
	b, err := f.deposits.Submit(ctx, funding.SubmitInput{
		UserID: "user-2", AmountUSD: ledger.MustParseMoney("200"),
		CryptoType: "ETH", ProofRef: "tx-b",
	})
	require.NoError(t, err)
	_, err = f.deposits.Confirm(ctx, a.ID, "admin-1", "", "")
	require.NoError(t, err)

	pending, err := f.deposits.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)
}
