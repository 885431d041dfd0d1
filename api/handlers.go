/*
handlers.go - HTTP API handlers for the investment ledger engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain services.

ENDPOINTS:
  Catalog:
    GET    /api/plans                         List active plans
    GET    /api/payment-methods               List platform wallets

  User (identified by X-User-ID header):
    GET    /api/me/balance                    Current balance
    GET    /api/me/transactions               Ledger history
    GET    /api/me/investments                List investments
    POST   /api/me/investments                Open an investment
    GET    /api/me/investments/{id}           Investment detail
    GET    /api/me/investments/{id}/schedule  Projected payout schedule
    POST   /api/me/investments/{id}/claim     Claim accrued ROI
    POST   /api/me/investments/{id}/mature    Request maturity payout
    POST   /api/me/deposits                   Submit a deposit
    GET    /api/me/deposits                   List deposits
    POST   /api/me/withdrawals                Request a withdrawal
    GET    /api/me/withdrawals                List withdrawals
    GET    /api/me/withdrawals/eligibility    Withdrawal eligibility

  Admin (identified by X-Admin-ID header):
    POST   /api/admin/plans                   Create/update a plan
    GET    /api/admin/deposits/pending        Pending deposits
    POST   /api/admin/deposits/{id}/confirm   Confirm a deposit
    POST   /api/admin/deposits/{id}/reject    Reject a deposit
    GET    /api/admin/withdrawals/pending     Pending withdrawals
    POST   /api/admin/withdrawals/{id}/approve  Approve a withdrawal
    POST   /api/admin/withdrawals/{id}/reject   Reject a withdrawal
    POST   /api/admin/adjustments             Manual balance adjustment
    GET    /api/admin/users/{id}/reconcile    Ledger replay vs stored balance
    POST   /api/admin/mature-eligible         Mature all ended investments
    GET    /api/admin/audit                   Audit log

IDENTITY:
  There is no authentication layer here. Handlers trust the X-User-ID and
  X-Admin-ID headers as the output of an upstream identity collaborator.
  A missing header is a 400.

ERROR HANDLING:
  Domain errors map to HTTP status via the ledger error taxonomy:
  - 400: Validation errors, invalid input
  - 404: Record not found
  - 409: Invalid state transition, duplicate idempotency key
  - 422: Insufficient funds
  - 503: Pricing upstream unavailable
  - 500: Everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - seed.go: Demo data loader
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/invest-ledger/funding"
	"github.com/warp/invest-ledger/invest"
	"github.com/warp/invest-ledger/ledger"
	"github.com/warp/invest-ledger/metrics"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Storage is everything the handlers read directly; the write paths go
// through the domain services.
type Storage interface {
	ledger.TxStore
	invest.PlanStore
	invest.InvestmentStore
	funding.DepositStore
	funding.WithdrawalStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       Storage
	Audit       ledger.AuditLog
	Balance     *ledger.BalanceService
	Lifecycle   *invest.LifecycleService
	Deposits    *funding.DepositService
	Withdrawals *funding.WithdrawalService
	Clock       ledger.Clock

	// Served verbatim from the catalog; wallet addresses never live in code.
	PaymentMethods []funding.PaymentMethod
}

// NewHandler wires the domain services over a single store.
func NewHandler(store Storage, audit ledger.AuditLog, rates funding.RateProvider, notifier ledger.Notifier, clock ledger.Clock) *Handler {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	balance := ledger.NewBalanceService(store, clock)
	lifecycle := invest.NewLifecycleService(store, balance, clock)
	lifecycle.Audit = audit
	lifecycle.Notifier = notifier
	deposits := funding.NewDepositService(store, balance, lifecycle, rates, clock)
	deposits.Audit = audit
	deposits.Notifier = notifier
	withdrawals := funding.NewWithdrawalService(store, balance, clock)
	withdrawals.Audit = audit
	withdrawals.Notifier = notifier

	return &Handler{
		Store:       store,
		Audit:       audit,
		Balance:     balance,
		Lifecycle:   lifecycle,
		Deposits:    deposits,
		Withdrawals: withdrawals,
		Clock:       clock,
	}
}

// userID extracts the acting user from the identity header.
func userID(r *http.Request) (ledger.UserID, bool) {
	id := r.Header.Get("X-User-ID")
	return ledger.UserID(id), id != ""
}

// adminID extracts the acting admin from the identity header.
func adminID(r *http.Request) (string, bool) {
	id := r.Header.Get("X-Admin-ID")
	return id, id != ""
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListPlans returns the active plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Store.ListPlans(r.Context(), true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list plans", err)
		return
	}
	dtos := make([]PlanDTO, len(plans))
	for i, p := range plans {
		dtos[i] = toPlanDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListPaymentMethods returns the platform receiving wallets.
func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	dtos := make([]PaymentMethodDTO, 0, len(h.PaymentMethods))
	for _, m := range h.PaymentMethods {
		if m.Active {
			dtos = append(dtos, toPaymentMethodDTO(m))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePlan creates or updates a plan (admin).
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Admin-ID header required", nil)
		return
	}
	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tier, err := invest.ParseTier(req.Tier)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	minInv, err := parseMoneyField(req.MinInvestment, "min_investment")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var maxInv *ledger.Money
	if req.MaxInvestment != "" {
		m, err := parseMoneyField(req.MaxInvestment, "max_investment")
		if err != nil {
			writeDomainError(w, err)
			return
		}
		maxInv = &m
	}
	roi, err := decimal.NewFromString(req.RoiPercent)
	if err != nil {
		writeDomainError(w, &ledger.ValidationError{Field: "roi_percent", Message: "invalid decimal"})
		return
	}

	now := h.Clock.Now()
	plan := invest.Plan{
		ID:            ledger.PlanID(req.ID),
		Name:          req.Name,
		Tier:          tier,
		MinInvestment: minInv,
		MaxInvestment: maxInv,
		RoiPercent:    roi,
		DurationDays:  req.DurationDays,
		Active:        req.Active == nil || *req.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if plan.ID == "" {
		writeDomainError(w, &ledger.ValidationError{Field: "id", Message: "required"})
		return
	}
	if err := plan.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if existing, err := h.Store.GetPlan(r.Context(), plan.ID); err == nil && existing != nil {
		plan.CreatedAt = existing.CreatedAt
	}
	if err := h.Store.SavePlan(r.Context(), plan); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save plan", err)
		return
	}

	ledger.BestEffortAudit(r.Context(), h.Audit, ledger.AuditEntry{
		Timestamp:   h.Clock.Now(),
		ActorID:     admin,
		ActorType:   "admin",
		Action:      "plan_saved",
		ReferenceID: string(plan.ID),
	})
	writeJSON(w, http.StatusCreated, toPlanDTO(plan))
}

// =============================================================================
// BALANCE AND LEDGER HANDLERS
// =============================================================================

// GetBalance returns the acting user's cash balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	balance, err := h.Balance.Balance(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		UserID:   string(uid),
		Amount:   balance.Value.String(),
		Currency: balance.Currency,
	})
}

// GetTransactions returns the acting user's ledger history.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	txs, err := h.Store.Load(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAdjustment applies an admin credit or debit.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Admin-ID header required", nil)
		return
	}
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeDomainError(w, &ledger.ValidationError{Field: "user_id", Message: "required"})
		return
	}
	delta, err := decimal.NewFromString(req.Delta)
	if err != nil {
		writeDomainError(w, &ledger.ValidationError{Field: "delta", Message: "invalid decimal"})
		return
	}

	newBalance, err := h.Balance.Adjust(r.Context(), ledger.UserID(req.UserID), ledger.USD(delta), admin, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		UserID:   req.UserID,
		Amount:   newBalance.Value.String(),
		Currency: newBalance.Currency,
	})
}

// Reconcile replays a user's ledger against the stored balance.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if _, ok := adminID(r); !ok {
		writeError(w, http.StatusBadRequest, "X-Admin-ID header required", nil)
		return
	}
	uid := ledger.UserID(chi.URLParam(r, "id"))
	report, err := h.Balance.Reconcile(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, ReconciliationDTO{
		UserID:       string(report.UserID),
		Stored:       report.Stored.Value.String(),
		FromLedger:   report.FromLedger.Value.String(),
		Drift:        report.Drift.Value.String(),
		Transactions: report.Transactions,
		Consistent:   report.Consistent(),
	})
}

// =============================================================================
// INVESTMENT HANDLERS
// =============================================================================

// ListInvestments returns the acting user's investments.
func (h *Handler) ListInvestments(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	invs, err := h.Lifecycle.ListByUser(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list investments", err)
		return
	}
	now := h.Clock.Now()
	dtos := make([]InvestmentDTO, len(invs))
	for i, inv := range invs {
		dtos[i] = toInvestmentDTO(inv, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// OpenInvestment opens a plan with a principal debited from the balance.
func (h *Handler) OpenInvestment(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	var req OpenInvestmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseMoneyField(req.Amount, "amount")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	inv, err := h.Lifecycle.OpenInvestment(r.Context(), uid, ledger.PlanID(req.PlanID), amount, string(uid), invest.OpenOptions{})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if plan, perr := h.Store.GetPlan(r.Context(), inv.PlanID); perr == nil && plan != nil {
		metrics.InvestmentsOpened.WithLabelValues(string(plan.Tier)).Inc()
	}
	writeJSON(w, http.StatusCreated, toInvestmentDTO(*inv, h.Clock.Now()))
}

// getOwnedInvestment loads an investment and checks it belongs to the caller.
func (h *Handler) getOwnedInvestment(r *http.Request, uid ledger.UserID) (*invest.Investment, error) {
	id := ledger.InvestmentID(chi.URLParam(r, "id"))
	inv, err := h.Lifecycle.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.UserID != uid {
		// Hide other users' investments behind the same 404.
		return nil, &ledger.NotFoundError{Entity: "investment", ID: string(id)}
	}
	return inv, nil
}

// GetInvestment returns one investment with its live claimable amount.
func (h *Handler) GetInvestment(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	inv, err := h.getOwnedInvestment(r, uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvestmentDTO(*inv, h.Clock.Now()))
}

// GetSchedule returns the projected payout timeline.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	inv, err := h.getOwnedInvestment(r, uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	schedule := invest.ProjectSchedule(*inv, h.Clock.Now())
	writeJSON(w, http.StatusOK, toScheduleDTO(schedule))
}

// ClaimRoi credits the accrued, unclaimed ROI to the balance.
func (h *Handler) ClaimRoi(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	inv, err := h.getOwnedInvestment(r, uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	claimed, updated, err := h.Lifecycle.ClaimRoi(r.Context(), inv.ID, string(uid))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if claimed.IsPositive() {
		metrics.RoiClaims.Inc()
	}
	writeJSON(w, http.StatusOK, ClaimResultDTO{
		Investment: toInvestmentDTO(*updated, h.Clock.Now()),
		Claimed:    claimed.Value.String(),
	})
}

// MatureInvestment pays out principal plus unclaimed ROI at term end.
func (h *Handler) MatureInvestment(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	inv, err := h.getOwnedInvestment(r, uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	payout, updated, err := h.Lifecycle.MatureInvestment(r.Context(), inv.ID, string(uid))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.InvestmentsMatured.Inc()
	writeJSON(w, http.StatusOK, MatureResultDTO{
		Investment: toInvestmentDTO(*updated, h.Clock.Now()),
		Payout:     payout.Value.String(),
	})
}

// MatureEligible sweeps every ended, still-active investment (admin).
func (h *Handler) MatureEligible(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Admin-ID header required", nil)
		return
	}
	matured, errs := h.Lifecycle.MatureEligible(r.Context(), admin)
	now := h.Clock.Now()
	result := MatureSweepDTO{Matured: make([]InvestmentDTO, len(matured))}
	for i, inv := range matured {
		result.Matured[i] = toInvestmentDTO(inv, now)
		metrics.InvestmentsMatured.Inc()
	}
	for _, e := range errs {
		result.Errors = append(result.Errors, e.Error())
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// DEPOSIT HANDLERS
// =============================================================================

// SubmitDeposit records a pending deposit claim.
func (h *Handler) SubmitDeposit(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	var req SubmitDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := funding.SubmitInput{
		UserID:     uid,
		CryptoType: req.CryptoType,
		ProofRef:   req.ProofRef,
	}
	if req.AmountUSD != "" {
		amount, err := parseMoneyField(req.AmountUSD, "amount_usd")
		if err != nil {
			writeDomainError(w, err)
			return
		}
		in.AmountUSD = amount
	}
	if req.CryptoAmount != "" {
		ca, err := decimal.NewFromString(req.CryptoAmount)
		if err != nil {
			writeDomainError(w, &ledger.ValidationError{Field: "crypto_amount", Message: "invalid decimal"})
			return
		}
		in.CryptoAmount = ca
	}
	if req.PlanID != "" {
		pid := ledger.PlanID(req.PlanID)
		in.PlanID = &pid
	}

	deposit, err := h.Deposits.Submit(r.Context(), in)
	if err != nil {
		if ledger.IsUpstream(err) {
			metrics.RateLookupFailures.WithLabelValues(req.CryptoType).Inc()
		}
		metrics.DepositsTotal.WithLabelValues("rejected_input").Inc()
		writeDomainError(w, err)
		return
	}
	metrics.DepositsTotal.WithLabelValues("submitted").Inc()
	writeJSON(w, http.StatusCreated, toDepositDTO(*deposit))
}

// ListDeposits returns the acting user's deposit history.
func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	deposits, err := h.Deposits.ListByUser(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deposits", err)
		return
	}
	writeJSON(w, http.StatusOK, toDepositDTOs(deposits))
}

// ListPendingDeposits returns deposits awaiting moderation (admin).
func (h *Handler) ListPendingDeposits(w http.ResponseWriter, r *http.Request) {
	if _, ok := adminID(r); !ok {
		writeError(w, http.StatusBadRequest, "X-Admin-ID header required", nil)
		return
	}
	deposits, err := h.Deposits.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deposits", err)
		return
	}
	writeJSON(w, http.StatusOK, toDepositDTOs(deposits))
}

// ConfirmDeposit credits the balance, optionally auto-opening a plan.
func (h *Handler) ConfirmDeposit(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Admin-ID header required", nil)
		return
	}
	var req ConfirmDepositRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // empty body allowed
	}

	id := ledger.DepositID(chi.URLParam(r, "id"))
	deposit, err := h.Deposits.Confirm(r.Context(), id, admin, req.TxHash, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.DepositsTotal.WithLabelValues("confirmed").Inc()
	writeJSON(w, http.StatusOK, toDepositDTO(*deposit))
}

// RejectDeposit marks a deposit rejected, no balance effect.
func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Admin-ID header required", nil)
		return
	}
	var req RejectRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // empty reason tolerated
	}

	id := ledger.DepositID(chi.URLParam(r, "id"))
	deposit, err := h.Deposits.Reject(r.Context(), id, admin, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.DepositsTotal.WithLabelValues("rejected").Inc()
	writeJSON(w, http.StatusOK, toDepositDTO(*deposit))
}

// =============================================================================
// WITHDRAWAL HANDLERS
// =============================================================================

// RequestWithdrawal records a pending withdrawal request.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	var req RequestWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseMoneyField(req.Amount, "amount")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	withdrawal, err := h.Withdrawals.Request(r.Context(), funding.RequestInput{
		UserID:     uid,
		Amount:     amount,
		Address:    req.Address,
		CryptoType: req.CryptoType,
		Network:    req.Network,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			metrics.InsufficientFundsRejections.Inc()
		}
		writeDomainError(w, err)
		return
	}
	metrics.WithdrawalsTotal.WithLabelValues("requested").Inc()
	writeJSON(w, http.StatusCreated, toWithdrawalDTO(*withdrawal))
}

// ListWithdrawals returns the acting user's withdrawal history.
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	withdrawals, err := h.Withdrawals.ListByUser(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list withdrawals", err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalDTOs(withdrawals))
}

// WithdrawalEligibility reports whether the user may request a withdrawal.
func (h *Handler) WithdrawalEligibility(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-User-ID header required", nil)
		return
	}
	available, err := h.Balance.Balance(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load balance", err)
		return
	}
	writeJSON(w, http.StatusOK, EligibilityDTO{
		Eligible:  available.IsPositive(),
		Available: available.Value.String(),
	})
}

// ListPendingWithdrawals returns withdrawals awaiting moderation (admin).
func (h *Handler) ListPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	if _, ok := adminID(r); !ok {
		writeError(w, http.StatusBadRequest, "X-Admin-ID header required", nil)
		return
	}
	withdrawals, err := h.Withdrawals.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list withdrawals", err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalDTOs(withdrawals))
}

// ApproveWithdrawal debits the balance and marks the request approved.
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Admin-ID header required", nil)
		return
	}
	var req ApproveWithdrawalRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	id := ledger.WithdrawalID(chi.URLParam(r, "id"))
	withdrawal, err := h.Withdrawals.Approve(r.Context(), id, admin, req.Notes)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			metrics.InsufficientFundsRejections.Inc()
		}
		writeDomainError(w, err)
		return
	}
	metrics.WithdrawalsTotal.WithLabelValues("approved").Inc()
	writeJSON(w, http.StatusOK, toWithdrawalDTO(*withdrawal))
}

// RejectWithdrawal marks a pending request rejected; no balance effect.
func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Admin-ID header required", nil)
		return
	}
	var req RejectRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	id := ledger.WithdrawalID(chi.URLParam(r, "id"))
	withdrawal, err := h.Withdrawals.Reject(r.Context(), id, admin, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.WithdrawalsTotal.WithLabelValues("rejected").Inc()
	writeJSON(w, http.StatusOK, toWithdrawalDTO(*withdrawal))
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// ListAudit returns audit entries, optionally filtered by user.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := adminID(r); !ok {
		writeError(w, http.StatusBadRequest, "X-Admin-ID header required", nil)
		return
	}
	var filter ledger.AuditFilter
	if u := r.URL.Query().Get("user_id"); u != "" {
		uid := ledger.UserID(u)
		filter.UserID = &uid
	}
	entries, err := h.Audit.QueryAudit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// HELPERS
// =============================================================================

func toDepositDTOs(deposits []funding.Deposit) []DepositDTO {
	dtos := make([]DepositDTO, len(deposits))
	for i, d := range deposits {
		dtos[i] = toDepositDTO(d)
	}
	return dtos
}

func toWithdrawalDTOs(withdrawals []funding.Withdrawal) []WithdrawalDTO {
	dtos := make([]WithdrawalDTO, len(withdrawals))
	for i, w := range withdrawals {
		dtos[i] = toWithdrawalDTO(w)
	}
	return dtos
}

// parseMoneyField parses a positive-or-zero decimal string into USD.
func parseMoneyField(s, field string) (ledger.Money, error) {
	if s == "" {
		return ledger.Money{}, &ledger.ValidationError{Field: field, Message: "required"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ledger.Money{}, &ledger.ValidationError{Field: field, Message: "invalid decimal"}
	}
	return ledger.USD(d), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the ledger error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "Insufficient funds", err)
	case ledger.IsConflict(err), errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, "Conflict", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case ledger.IsUpstream(err):
		writeError(w, http.StatusServiceUnavailable, "Upstream unavailable, try again shortly", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
