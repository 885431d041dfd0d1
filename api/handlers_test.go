package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/invest-ledger/api"
	"github.com/warp/invest-ledger/factory"
	"github.com/warp/invest-ledger/funding"
	"github.com/warp/invest-ledger/ledger"
	"github.com/warp/invest-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type apiFixture struct {
	server *httptest.Server
	store  *sqlite.Store
	clock  *ledger.FixedClock
}

func newAPIFixture(t *testing.T) *apiFixture {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := ledger.NewFixedClock(ledger.NewTimePoint(2026, 3, 1))
	rates := funding.StaticRates{
		"BTC":  decimal.NewFromInt(50000),
		"ETH":  decimal.NewFromInt(2500),
		"USDT": decimal.NewFromInt(1),
	}

	catalog := factory.DefaultCatalog()
	require.NoError(t, factory.ApplyPlans(context.Background(), store, catalog.Plans, clock))

	h := api.NewHandler(store, store, rates, ledger.LogNotifier{}, clock)
	h.PaymentMethods = catalog.PaymentMethods

	server := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(server.Close)

	return &apiFixture{server: server, store: store, clock: clock}
}

// do sends a request with optional identity headers and decodes the body.
func (f *apiFixture) do(t *testing.T, method, path string, headers map[string]string, body any, out any) int {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func asUser(id string) map[string]string  { return map[string]string{"X-User-ID": id} }
func asAdmin(id string) map[string]string { return map[string]string{"X-Admin-ID": id} }

// =============================================================================
// CATALOG
// =============================================================================

func TestAPI_ListPlans(t *testing.T) {
	f := newAPIFixture(t)

	var plans []api.PlanDTO
	status := f.do(t, http.MethodGet, "/api/plans", nil, nil, &plans)

	assert.Equal(t, http.StatusOK, status)
	require.Len(t, plans, 4)
	for _, p := range plans {
		assert.True(t, p.Active, "public listing shows active plans only")
		assert.NotEmpty(t, p.TierLabel)
	}
}

func TestAPI_ListPaymentMethods(t *testing.T) {
	f := newAPIFixture(t)

	var methods []api.PaymentMethodDTO
	status := f.do(t, http.MethodGet, "/api/payment-methods", nil, nil, &methods)

	assert.Equal(t, http.StatusOK, status)
	require.Len(t, methods, 3)
	assert.NotEmpty(t, methods[0].WalletAddress)
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestAPI_MissingIdentityHeader(t *testing.T) {
	f := newAPIFixture(t)

	status := f.do(t, http.MethodGet, "/api/me/balance", nil, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status, "user endpoints need X-User-ID")

	status = f.do(t, http.MethodGet, "/api/admin/deposits/pending", nil, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status, "admin endpoints need X-Admin-ID")
}

// =============================================================================
// DEPOSIT FLOW
// =============================================================================

func TestAPI_DepositConfirmFlow(t *testing.T) {
	// GIVEN: A user submits a deposit claim
	// WHEN: An admin confirms it
	// THEN: The balance reflects the credit and the ledger shows one entry

	f := newAPIFixture(t)

	var dep api.DepositDTO
	status := f.do(t, http.MethodPost, "/api/me/deposits", asUser("alice"), api.SubmitDepositRequest{
		AmountUSD:  "500",
		CryptoType: "BTC",
		ProofRef:   "proof-1",
	}, &dep)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "pending", dep.Status)

	var confirmed api.DepositDTO
	status = f.do(t, http.MethodPost, "/api/admin/deposits/"+dep.ID+"/confirm", asAdmin("admin-1"),
		api.ConfirmDepositRequest{TxHash: "0xabc"}, &confirmed)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirmed", confirmed.Status)

	var bal api.BalanceDTO
	status = f.do(t, http.MethodGet, "/api/me/balance", asUser("alice"), nil, &bal)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "500", bal.Amount)

	var txs []api.TransactionDTO
	status = f.do(t, http.MethodGet, "/api/me/transactions", asUser("alice"), nil, &txs)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, txs, 1)
	assert.Equal(t, "deposit", txs[0].Type)
}

func TestAPI_DoubleConfirm_Conflicts(t *testing.T) {
	f := newAPIFixture(t)

	var dep api.DepositDTO
	f.do(t, http.MethodPost, "/api/me/deposits", asUser("alice"), api.SubmitDepositRequest{
		AmountUSD: "500", CryptoType: "BTC", ProofRef: "proof-1",
	}, &dep)
	status := f.do(t, http.MethodPost, "/api/admin/deposits/"+dep.ID+"/confirm", asAdmin("admin-1"), nil, nil)
	require.Equal(t, http.StatusOK, status)

	status = f.do(t, http.MethodPost, "/api/admin/deposits/"+dep.ID+"/confirm", asAdmin("admin-2"), nil, nil)
	assert.Equal(t, http.StatusConflict, status)
}

// =============================================================================
// INVESTMENT FLOW
// =============================================================================

func (f *apiFixture) fundUser(t *testing.T, user, amount string) {
	var dep api.DepositDTO
	status := f.do(t, http.MethodPost, "/api/me/deposits", asUser(user), api.SubmitDepositRequest{
		AmountUSD: amount, CryptoType: "USDT", ProofRef: "proof-" + user,
	}, &dep)
	require.Equal(t, http.StatusCreated, status)
	status = f.do(t, http.MethodPost, "/api/admin/deposits/"+dep.ID+"/confirm", asAdmin("admin-1"), nil, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestAPI_OpenClaimMatureFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.fundUser(t, "alice", "1000")

	// Open plan-silver: 10% over 30 days on $1000.
	var inv api.InvestmentDTO
	status := f.do(t, http.MethodPost, "/api/me/investments", asUser("alice"), api.OpenInvestmentRequest{
		PlanID: "plan-silver", Amount: "1000",
	}, &inv)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "active", inv.Status)

	// Premature maturity is a conflict.
	status = f.do(t, http.MethodPost, "/api/me/investments/"+inv.ID+"/mature", asUser("alice"), nil, nil)
	assert.Equal(t, http.StatusConflict, status)

	// Ten days in, claim the accrued ROI.
	f.clock.AdvanceDays(10)
	var claim api.ClaimResultDTO
	status = f.do(t, http.MethodPost, "/api/me/investments/"+inv.ID+"/claim", asUser("alice"), nil, &claim)
	require.Equal(t, http.StatusOK, status)
	claimed := decimal.RequireFromString(claim.Claimed)
	assert.True(t, claimed.Round(2).Equal(decimal.RequireFromString("33.33")), "claimed = %s", claim.Claimed)

	// The schedule reflects the mid-term position.
	var schedule api.ScheduleDTO
	status = f.do(t, http.MethodGet, "/api/me/investments/"+inv.ID+"/schedule", asUser("alice"), nil, &schedule)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, schedule.Entries, 30)
	assert.Equal(t, "1000", schedule.PrincipalBack)

	// At term end the payout is principal plus the unclaimed remainder.
	f.clock.AdvanceDays(20)
	var mature api.MatureResultDTO
	status = f.do(t, http.MethodPost, "/api/me/investments/"+inv.ID+"/mature", asUser("alice"), nil, &mature)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", mature.Investment.Status)

	// The 30-day division repeats, so compare at cent precision.
	payout := decimal.RequireFromString(mature.Payout)
	total := claimed.Add(payout)
	assert.True(t, total.Round(2).Equal(decimal.NewFromInt(1100)), "principal + full ROI, got %s", total)

	var bal api.BalanceDTO
	f.do(t, http.MethodGet, "/api/me/balance", asUser("alice"), nil, &bal)
	assert.True(t, decimal.RequireFromString(bal.Amount).Round(2).Equal(decimal.NewFromInt(1100)))
}

func TestAPI_InvestmentOwnership(t *testing.T) {
	// Another user's investment id reads as absent, not forbidden.
	f := newAPIFixture(t)
	f.fundUser(t, "alice", "1000")

	var inv api.InvestmentDTO
	status := f.do(t, http.MethodPost, "/api/me/investments", asUser("alice"), api.OpenInvestmentRequest{
		PlanID: "plan-silver", Amount: "1000",
	}, &inv)
	require.Equal(t, http.StatusCreated, status)

	status = f.do(t, http.MethodGet, "/api/me/investments/"+inv.ID, asUser("mallory"), nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_OpenInvestment_Unfunded(t *testing.T) {
	f := newAPIFixture(t)

	status := f.do(t, http.MethodPost, "/api/me/investments", asUser("alice"), api.OpenInvestmentRequest{
		PlanID: "plan-silver", Amount: "1000",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

// =============================================================================
// WITHDRAWAL FLOW
// =============================================================================

func TestAPI_WithdrawalFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.fundUser(t, "bob", "300")

	var wd api.WithdrawalDTO
	status := f.do(t, http.MethodPost, "/api/me/withdrawals", asUser("bob"), api.RequestWithdrawalRequest{
		Amount: "200", Address: "bc1qbobaddr", CryptoType: "BTC",
	}, &wd)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "pending", wd.Status)

	// Pending requests hold nothing.
	var bal api.BalanceDTO
	f.do(t, http.MethodGet, "/api/me/balance", asUser("bob"), nil, &bal)
	assert.Equal(t, "300", bal.Amount)

	var pending []api.WithdrawalDTO
	status = f.do(t, http.MethodGet, "/api/admin/withdrawals/pending", asAdmin("admin-1"), nil, &pending)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, pending, 1)

	status = f.do(t, http.MethodPost, "/api/admin/withdrawals/"+wd.ID+"/approve", asAdmin("admin-1"),
		api.ApproveWithdrawalRequest{Notes: "sent"}, nil)
	require.Equal(t, http.StatusOK, status)

	f.do(t, http.MethodGet, "/api/me/balance", asUser("bob"), nil, &bal)
	assert.Equal(t, "100", bal.Amount)
}

func TestAPI_Withdrawal_OverBalance(t *testing.T) {
	f := newAPIFixture(t)
	f.fundUser(t, "bob", "100")

	status := f.do(t, http.MethodPost, "/api/me/withdrawals", asUser("bob"), api.RequestWithdrawalRequest{
		Amount: "100.01", Address: "bc1qbobaddr", CryptoType: "BTC",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAPI_AdjustmentAndReconcile(t *testing.T) {
	f := newAPIFixture(t)

	status := f.do(t, http.MethodPost, "/api/admin/adjustments", asAdmin("admin-1"), api.AdjustmentRequest{
		UserID: "carol", Delta: "50", Reason: "promo credit",
	}, nil)
	require.Equal(t, http.StatusOK, status)

	var report api.ReconciliationDTO
	status = f.do(t, http.MethodGet, "/api/admin/users/carol/reconcile", asAdmin("admin-1"), nil, &report)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, report.Consistent)
	assert.Equal(t, "50", report.Stored)
	assert.Equal(t, 1, report.Transactions)
}

func TestAPI_CreatePlan(t *testing.T) {
	f := newAPIFixture(t)

	var plan api.PlanDTO
	status := f.do(t, http.MethodPost, "/api/admin/plans", asAdmin("admin-1"), api.CreatePlanRequest{
		ID: "plan-custom", Name: "Custom", Tier: "gold",
		MinInvestment: "100", RoiPercent: "9", DurationDays: 45,
	}, &plan)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "plan-custom", plan.ID)

	var plans []api.PlanDTO
	f.do(t, http.MethodGet, "/api/plans", nil, nil, &plans)
	assert.Len(t, plans, 5)
}

func TestAPI_Healthz(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
