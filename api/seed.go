/*
seed.go - Demo data loader for testing and demonstrations

PURPOSE:
  Populates the store with realistic demo data: users with confirmed
  deposits, an investment part-way through its term, a pending deposit
  and a pending withdrawal for the moderation queue.

WHAT GETS SEEDED:
  alice: $5,000 confirmed deposit; $1,000 investment in plan-silver
         opened 10 days ago (ROI already accruing)
  bob:   $800 confirmed deposit; pending withdrawal of $200
  carol: pending $2,500 BTC deposit awaiting confirmation

HOW SEEDING WORKS:
  Everything flows through the same write paths production uses: credits
  via BalanceService, the investment via a store transaction mirroring
  the open path but with a backdated start so accrual is visible
  immediately. Ledger replay stays consistent for every seeded user.

USAGE VIA API:
  POST /api/admin/seed   (X-Admin-ID required)

NOTE:
  Seeding is additive and not idempotent. Only use on a fresh database
  in development/demo environments.

SEE ALSO:
  - handlers.go: Route registration
  - invest/lifecycle.go: The production open path this mirrors
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/invest-ledger/funding"
	"github.com/warp/invest-ledger/invest"
	"github.com/warp/invest-ledger/ledger"
)

// LoadSeed populates demo data (admin, development only).
func (h *Handler) LoadSeed(w http.ResponseWriter, r *http.Request) {
	if _, ok := adminID(r); !ok {
		writeError(w, http.StatusBadRequest, "X-Admin-ID header required", nil)
		return
	}
	if err := h.seed(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed demo data", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}

func (h *Handler) seed(ctx context.Context) error {
	// alice: funded and invested.
	if err := h.seedConfirmedDeposit(ctx, "alice", "5000", "BTC", "0.075"); err != nil {
		return err
	}
	if err := h.seedBackdatedInvestment(ctx, "alice", "plan-silver", "1000", 10); err != nil {
		return err
	}

	// bob: funded, waiting on a withdrawal.
	if err := h.seedConfirmedDeposit(ctx, "bob", "800", "ETH", "0.2"); err != nil {
		return err
	}
	_, err := h.Withdrawals.Request(ctx, funding.RequestInput{
		UserID:     "bob",
		Amount:     ledger.MustParseMoney("200"),
		Address:    "bc1qdemobobwithdrawaladdress0000000000000",
		CryptoType: "BTC",
		Network:    "bitcoin",
	})
	if err != nil {
		return fmt.Errorf("seed bob withdrawal: %w", err)
	}

	// carol: pending deposit for the moderation queue.
	_, err = h.Deposits.Submit(ctx, funding.SubmitInput{
		UserID:       "carol",
		AmountUSD:    ledger.MustParseMoney("2500"),
		CryptoType:   "BTC",
		CryptoAmount: decimal.RequireFromString("0.0375"),
		ProofRef:     "proof/demo-carol.png",
	})
	if err != nil {
		return fmt.Errorf("seed carol deposit: %w", err)
	}
	return nil
}

// seedConfirmedDeposit submits and immediately confirms a deposit so the
// user starts with a spendable balance.
func (h *Handler) seedConfirmedDeposit(ctx context.Context, user ledger.UserID, usd, cryptoType, cryptoAmount string) error {
	deposit, err := h.Deposits.Submit(ctx, funding.SubmitInput{
		UserID:       user,
		AmountUSD:    ledger.MustParseMoney(usd),
		CryptoType:   cryptoType,
		CryptoAmount: decimal.RequireFromString(cryptoAmount),
		ProofRef:     fmt.Sprintf("proof/demo-%s.png", user),
	})
	if err != nil {
		return fmt.Errorf("seed %s deposit: %w", user, err)
	}
	if _, err := h.Deposits.Confirm(ctx, deposit.ID, "seed-admin", "", "demo seed"); err != nil {
		return fmt.Errorf("seed %s confirm: %w", user, err)
	}
	return nil
}

// seedBackdatedInvestment mirrors the production open path but starts the
// term daysAgo in the past so accrued ROI is visible right away. The
// debit goes through the same transactional write path, so ledger replay
// still reconciles.
func (h *Handler) seedBackdatedInvestment(ctx context.Context, user ledger.UserID, planID ledger.PlanID, amount string, daysAgo int) error {
	principal := ledger.MustParseMoney(amount)

	return h.Store.WithTx(ctx, func(st ledger.Store) error {
		is, ok := st.(invest.Store)
		if !ok {
			return ledger.ErrStoreRequired
		}

		plan, err := is.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return &ledger.NotFoundError{Entity: "plan", ID: string(planID)}
		}
		if err := plan.ValidateAmount(principal); err != nil {
			return err
		}

		inv := invest.Investment{
			ID:         invest.NewInvestmentID(),
			UserID:     user,
			PlanID:     planID,
			Principal:  principal,
			DailyRoi:   invest.ComputeDailyRoi(principal, plan.RoiPercent, plan.DurationDays),
			ClaimedRoi: principal.Zero(),
			StartDate:  h.Clock.Now().AddDays(-daysAgo),
			Status:     invest.StatusActive,
			CreatedAt:  h.Clock.Now(),
			UpdatedAt:  h.Clock.Now(),
		}
		inv.EndDate = inv.StartDate.AddDays(plan.DurationDays)

		if _, err := h.Balance.ApplyDeltaIn(ctx, st, user, principal.Neg(), ledger.LedgerTransaction{
			Type:          ledger.TxInvestmentOpen,
			Description:   fmt.Sprintf("demo investment in %s", plan.Name),
			ReferenceID:   string(inv.ID),
			CreatedBy:     "seed-admin",
			CreatedByType: "admin",
		}); err != nil {
			return err
		}
		return is.SaveInvestment(ctx, inv)
	})
}
