/*
lifecycle.go - Investment lifecycle orchestration

PURPOSE:
  Orchestrates the three investment operations:
  1. Open:   validate plan bounds, debit principal, create the record
  2. Claim:  credit earned-but-unclaimed ROI, advance claimed_roi
  3. Mature: credit principal + remaining ROI, mark terminal completed

STATE MACHINE:
  active --[mature, precondition now >= end_date]--> completed
  No other transitions. No cancellation path.

ATOMICITY:
  Each operation is a single store transaction: the balance delta, the
  ledger entry, and the investment record commit together or not at all.
  An open whose record write fails leaves no debit behind.

IDEMPOTENCE:
  - Claim is naturally idempotent: claimed_roi tracks the cumulative
    total, so an immediate second claim computes 0 and no-ops.
  - Mature uses a stable idempotency key per investment, so a replayed
    maturity click cannot pay out twice.
  - Open is NOT idempotent (each call creates a new investment); callers
    that need dedupe pass their own idempotency key via OpenOptions.

SEE ALSO:
  - accrual.go: The pure figures these operations act on
  - ledger/balance.go: The settlement path underneath
*/
package invest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/warp/invest-ledger/ledger"
)

// =============================================================================
// ERRORS
// =============================================================================

// NotYetMaturedError is returned when maturing before end_date. It unwraps
// to ErrInvalidStateTransition: the caller acted on a stale view of the
// investment's eligibility.
type NotYetMaturedError struct {
	InvestmentID ledger.InvestmentID
	EndDate      ledger.TimePoint
	Now          ledger.TimePoint
}

func (e *NotYetMaturedError) Error() string {
	return fmt.Sprintf("investment %s not yet matured: ends %s, now %s",
		e.InvestmentID, e.EndDate, e.Now)
}

func (e *NotYetMaturedError) Unwrap() error { return ledger.ErrInvalidStateTransition }

// =============================================================================
// LIFECYCLE SERVICE
// =============================================================================

type LifecycleService struct {
	Store    ledger.TxStore
	Balance  *ledger.BalanceService
	Clock    ledger.Clock
	Audit    ledger.AuditLog
	Notifier ledger.Notifier
}

func NewLifecycleService(store ledger.TxStore, balance *ledger.BalanceService, clock ledger.Clock) *LifecycleService {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &LifecycleService{Store: store, Balance: balance, Clock: clock}
}

func NewInvestmentID() ledger.InvestmentID {
	return ledger.InvestmentID("inv-" + uuid.NewString())
}

// OpenOptions lets callers attach the operation that funded the open.
type OpenOptions struct {
	ReferenceID    string // e.g. the confirming deposit's id
	IdempotencyKey string // dedupe key; generated when empty
}

// OpenInvestment commits `amount` of the user's balance to a plan.
// Preconditions: the plan exists and is active, amount is within the plan
// bounds, and the balance covers it. The debit and the investment record
// are one transaction.
func (s *LifecycleService) OpenInvestment(ctx context.Context, userID ledger.UserID, planID ledger.PlanID, amount ledger.Money, actorID string, opts OpenOptions) (*Investment, error) {
	var inv *Investment
	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		is, ok := st.(Store)
		if !ok {
			return ledger.ErrStoreRequired
		}
		var err error
		inv, err = s.OpenInTx(ctx, is, userID, planID, amount, actorID, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterOpen(ctx, inv, actorID)
	return inv, nil
}

// OpenInTx is OpenInvestment inside an already-open store transaction.
// The deposit approval service uses it to auto-activate a plan in the same
// transaction as the deposit credit. Callers are responsible for emitting
// audit/notification after their transaction commits.
func (s *LifecycleService) OpenInTx(ctx context.Context, st Store, userID ledger.UserID, planID ledger.PlanID, amount ledger.Money, actorID string, opts OpenOptions) (*Investment, error) {
	plan, err := st.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, &ledger.NotFoundError{Entity: "plan", ID: string(planID)}
	}
	if !plan.Active {
		return nil, &ledger.ValidationError{Field: "plan_id", Message: "plan is not active"}
	}
	if err := plan.ValidateAmount(amount); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	inv := Investment{
		ID:         NewInvestmentID(),
		UserID:     userID,
		PlanID:     planID,
		Principal:  amount,
		DailyRoi:   ComputeDailyRoi(amount, plan.RoiPercent, plan.DurationDays),
		ClaimedRoi: amount.Zero(),
		StartDate:  now,
		EndDate:    now.AddDays(plan.DurationDays),
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	idemKey := opts.IdempotencyKey
	if idemKey == "" {
		idemKey = "open-" + string(inv.ID)
	}
	refID := opts.ReferenceID
	if refID == "" {
		refID = string(inv.ID)
	}

	// Insufficient balance surfaces here as InsufficientFunds.
	if _, err := s.Balance.ApplyDeltaIn(ctx, st, userID, amount.Neg(), ledger.LedgerTransaction{
		Type:           ledger.TxInvestmentOpen,
		Description:    fmt.Sprintf("opened %s with %s", plan.Name, amount),
		ReferenceID:    refID,
		IdempotencyKey: idemKey,
		CreatedBy:      actorID,
		CreatedByType:  "user",
	}); err != nil {
		return nil, err
	}

	if err := st.SaveInvestment(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to save investment: %w", err)
	}
	return &inv, nil
}

func (s *LifecycleService) afterOpen(ctx context.Context, inv *Investment, actorID string) {
	ledger.BestEffortAudit(ctx, s.Audit, ledger.AuditEntry{
		Timestamp:   s.Clock.Now(),
		ActorID:     actorID,
		ActorType:   "user",
		Action:      ledger.AuditInvestmentOpened,
		UserID:      inv.UserID,
		ReferenceID: string(inv.ID),
		Details:     map[string]any{"plan_id": inv.PlanID, "principal": inv.Principal.String()},
	})
	ledger.BestEffortNotify(ctx, s.Notifier, ledger.Notification{
		UserID:   inv.UserID,
		Title:    "Investment opened",
		Message:  fmt.Sprintf("%s committed, matures %s", inv.Principal, inv.EndDate),
		Category: "investment",
	})
}

// ClaimRoi credits the investment's claimable ROI to the user's balance.
// A claim with nothing claimable is a valid no-op, not an error.
func (s *LifecycleService) ClaimRoi(ctx context.Context, investmentID ledger.InvestmentID, actorID string) (ledger.Money, *Investment, error) {
	var (
		claimed ledger.Money
		updated *Investment
	)
	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		is, ok := st.(Store)
		if !ok {
			return ledger.ErrStoreRequired
		}

		inv, err := is.GetInvestment(ctx, investmentID)
		if err != nil {
			return err
		}
		if inv == nil {
			return &ledger.NotFoundError{Entity: "investment", ID: string(investmentID)}
		}
		if inv.Status != StatusActive {
			return &ledger.StateTransitionError{
				Entity: "investment", ID: string(investmentID),
				From: string(inv.Status), Attempted: "claim",
			}
		}

		now := s.Clock.Now()
		claimed = ClaimableRoi(*inv, now)
		if !claimed.IsPositive() {
			claimed = inv.ClaimedRoi.Zero()
			updated = inv
			return nil // nothing accrued yet; idempotent no-op
		}

		if _, err := s.Balance.ApplyDeltaIn(ctx, st, inv.UserID, claimed, ledger.LedgerTransaction{
			Type:           ledger.TxRoiClaim,
			Description:    fmt.Sprintf("ROI claim for %s", inv.ID),
			ReferenceID:    string(inv.ID),
			IdempotencyKey: "claim-" + string(inv.ID) + "-" + uuid.NewString(),
			CreatedBy:      actorID,
			CreatedByType:  "user",
		}); err != nil {
			return err
		}

		inv.ClaimedRoi = inv.ClaimedRoi.Add(claimed)
		inv.UpdatedAt = now
		if err := is.UpdateInvestment(ctx, *inv); err != nil {
			return fmt.Errorf("failed to update investment: %w", err)
		}
		updated = inv
		return nil
	})
	if err != nil {
		return ledger.Money{}, nil, err
	}

	if claimed.IsPositive() {
		ledger.BestEffortNotify(ctx, s.Notifier, ledger.Notification{
			UserID:   updated.UserID,
			Title:    "ROI claimed",
			Message:  fmt.Sprintf("%s credited to your balance", claimed),
			Category: "investment",
		})
	}
	return claimed, updated, nil
}

// MatureInvestment pays out principal + remaining ROI and marks the
// investment completed. Fails with NotYetMaturedError before end_date and
// with a state-transition conflict on an already-completed investment.
func (s *LifecycleService) MatureInvestment(ctx context.Context, investmentID ledger.InvestmentID, actorID string) (ledger.Money, *Investment, error) {
	var (
		payout  ledger.Money
		updated *Investment
	)
	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		is, ok := st.(Store)
		if !ok {
			return ledger.ErrStoreRequired
		}

		inv, err := is.GetInvestment(ctx, investmentID)
		if err != nil {
			return err
		}
		if inv == nil {
			return &ledger.NotFoundError{Entity: "investment", ID: string(investmentID)}
		}
		if inv.Status != StatusActive {
			return &ledger.StateTransitionError{
				Entity: "investment", ID: string(investmentID),
				From: string(inv.Status), Attempted: "mature",
			}
		}

		now := s.Clock.Now()
		if !CanMature(*inv, now) {
			return &NotYetMaturedError{InvestmentID: investmentID, EndDate: inv.EndDate, Now: now}
		}

		remaining := ClaimableRoi(*inv, now)
		payout = inv.Principal.Add(remaining)

		if _, err := s.Balance.ApplyDeltaIn(ctx, st, inv.UserID, payout, ledger.LedgerTransaction{
			Type:           ledger.TxInvestmentCompleted,
			Description:    fmt.Sprintf("maturity payout for %s", inv.ID),
			ReferenceID:    string(inv.ID),
			IdempotencyKey: "mature-" + string(inv.ID),
			CreatedBy:      actorID,
			CreatedByType:  "user",
		}); err != nil {
			return err
		}

		inv.ClaimedRoi = inv.ClaimedRoi.Add(remaining)
		inv.Status = StatusCompleted
		inv.UpdatedAt = now
		if err := is.UpdateInvestment(ctx, *inv); err != nil {
			return fmt.Errorf("failed to update investment: %w", err)
		}
		updated = inv
		return nil
	})
	if err != nil {
		return ledger.Money{}, nil, err
	}

	ledger.BestEffortAudit(ctx, s.Audit, ledger.AuditEntry{
		Timestamp:   s.Clock.Now(),
		ActorID:     actorID,
		ActorType:   "user",
		Action:      ledger.AuditInvestmentMatured,
		UserID:      updated.UserID,
		ReferenceID: string(updated.ID),
		Details:     map[string]any{"payout": payout.String()},
	})
	ledger.BestEffortNotify(ctx, s.Notifier, ledger.Notification{
		UserID:   updated.UserID,
		Title:    "Investment matured",
		Message:  fmt.Sprintf("%s returned to your balance", payout),
		Category: "investment",
	})
	return payout, updated, nil
}

// MatureEligible sweeps all active investments past their end date and
// matures each. Synchronous, admin-triggered; there is no background
// ticker; accrual is lazy and maturity is on demand. Per-investment
// failures do not stop the sweep.
func (s *LifecycleService) MatureEligible(ctx context.Context, actorID string) ([]Investment, []error) {
	active, err := listActive(ctx, s.Store)
	if err != nil {
		return nil, []error{err}
	}

	now := s.Clock.Now()
	var (
		matured []Investment
		errs    []error
	)
	for _, inv := range active {
		if !CanMature(inv, now) {
			continue
		}
		_, updated, err := s.MatureInvestment(ctx, inv.ID, actorID)
		if err != nil {
			errs = append(errs, fmt.Errorf("mature %s: %w", inv.ID, err))
			continue
		}
		matured = append(matured, *updated)
	}
	return matured, errs
}

func listActive(ctx context.Context, st ledger.TxStore) ([]Investment, error) {
	is, ok := st.(InvestmentStore)
	if !ok {
		return nil, ledger.ErrStoreRequired
	}
	return is.ListInvestmentsByStatus(ctx, StatusActive)
}

// ListByUser returns all of a user's investments, active and completed.
func (s *LifecycleService) ListByUser(ctx context.Context, userID ledger.UserID) ([]Investment, error) {
	is, ok := s.Store.(InvestmentStore)
	if !ok {
		return nil, ledger.ErrStoreRequired
	}
	return is.ListInvestmentsByUser(ctx, userID)
}

// Get returns one investment.
func (s *LifecycleService) Get(ctx context.Context, id ledger.InvestmentID) (*Investment, error) {
	is, ok := s.Store.(InvestmentStore)
	if !ok {
		return nil, ledger.ErrStoreRequired
	}
	return is.GetInvestment(ctx, id)
}
