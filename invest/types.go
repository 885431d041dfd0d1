// Package invest implements investment plans and the accrual lifecycle:
// opening a plan against a user's balance, claiming linearly-accrued ROI,
// and maturing the principal. All settlement goes through the ledger
// engine's BalanceService.
package invest

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/invest-ledger/ledger"
)

// =============================================================================
// INVESTMENT PLAN - Admin-managed template
// =============================================================================

// Plan is a fixed-duration investment product. RoiPercent is the TOTAL
// return over the full duration, not annualized: a 10% / 30-day plan pays
// 10% of principal spread linearly across 30 days.
type Plan struct {
	ID            ledger.PlanID
	Name          string
	Tier          Tier
	MinInvestment ledger.Money
	MaxInvestment *ledger.Money // nil = unbounded
	RoiPercent    decimal.Decimal
	DurationDays  int
	Active        bool

	CreatedAt ledger.TimePoint
	UpdatedAt ledger.TimePoint
}

// Validate checks the plan template itself.
func (p Plan) Validate() error {
	if p.Name == "" {
		return &ledger.ValidationError{Field: "name", Message: "required"}
	}
	if p.DurationDays < 1 {
		return &ledger.ValidationError{Field: "duration_days", Message: "must be at least 1"}
	}
	if !p.RoiPercent.IsPositive() {
		return &ledger.ValidationError{Field: "roi_percent", Message: "must be positive"}
	}
	if p.MinInvestment.IsNegative() {
		return &ledger.ValidationError{Field: "min_investment", Message: "must not be negative"}
	}
	if p.MaxInvestment != nil && p.MaxInvestment.LessThan(p.MinInvestment) {
		return &ledger.ValidationError{Field: "max_investment", Message: "must not be below min_investment"}
	}
	return nil
}

// ValidateAmount checks a proposed principal against the plan bounds,
// naming the violated bound.
func (p Plan) ValidateAmount(amount ledger.Money) error {
	if !amount.IsPositive() {
		return &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if amount.LessThan(p.MinInvestment) {
		return &ledger.ValidationError{
			Field:   "amount",
			Message: "below plan minimum of " + p.MinInvestment.String(),
		}
	}
	if p.MaxInvestment != nil && amount.GreaterThan(*p.MaxInvestment) {
		return &ledger.ValidationError{
			Field:   "amount",
			Message: "above plan maximum of " + p.MaxInvestment.String(),
		}
	}
	return nil
}

// =============================================================================
// ACTIVE INVESTMENT
// =============================================================================

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Investment is one committed principal on one plan. Created when the user
// commits balance; mutated only by ROI claims (ClaimedRoi grows) and by
// maturity (terminal completed). Never deleted: a completed investment is
// the historical record.
type Investment struct {
	ID     ledger.InvestmentID
	UserID ledger.UserID
	PlanID ledger.PlanID

	// Fixed at open
	Principal ledger.Money
	DailyRoi  ledger.Money
	StartDate ledger.TimePoint
	EndDate   ledger.TimePoint

	// Mutated over the lifecycle
	ClaimedRoi ledger.Money // monotonically non-decreasing
	Status     Status

	CreatedAt ledger.TimePoint
	UpdatedAt ledger.TimePoint
}

// DurationDays returns the investment's term length.
func (inv Investment) DurationDays() int {
	return ledger.DaysBetween(inv.StartDate, inv.EndDate)
}

// TotalRoi returns the full ROI the investment pays over its term.
func (inv Investment) TotalRoi() ledger.Money {
	return inv.DailyRoi.Mul(decimal.NewFromInt(int64(inv.DurationDays())))
}

// =============================================================================
// STORES
// =============================================================================

type PlanStore interface {
	SavePlan(ctx context.Context, plan Plan) error
	GetPlan(ctx context.Context, id ledger.PlanID) (*Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error)
}

type InvestmentStore interface {
	SaveInvestment(ctx context.Context, inv Investment) error
	UpdateInvestment(ctx context.Context, inv Investment) error
	GetInvestment(ctx context.Context, id ledger.InvestmentID) (*Investment, error)
	ListInvestmentsByUser(ctx context.Context, userID ledger.UserID) ([]Investment, error)
	ListInvestmentsByStatus(ctx context.Context, status Status) ([]Investment, error)
}

// Store is the extended store the lifecycle service needs inside a
// transaction. The SQLite store's transaction view satisfies it; stores
// that cannot are rejected with ledger.ErrStoreRequired.
type Store interface {
	ledger.Store
	PlanStore
	InvestmentStore
}
