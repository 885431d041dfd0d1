/*
accrual.go - Pure ROI accrual calculator

PURPOSE:
  The ONE place the daily-ROI formula lives. Every site that needs the
  figure (balance display, ROI claim, maturity payout, payout schedule)
  calls these functions, so what the UI shows as claimable is always what
  gets credited.

THE FORMULA:
  daily_roi  = principal * roi_percent / 100 / duration_days   (at open)
  elapsed    = floor((min(now, end) - start) in days)          (no partial days)
  earned     = daily_roi * elapsed
  claimable  = max(0, earned - claimed_so_far)

PROPERTIES:
  - Claimable is never negative
  - At now == start: claimable is 0 (nothing accrued yet)
  - At now == end:   earned == daily_roi * duration (full accrual)
  - Claims are naturally idempotent: claimed_roi tracks the cumulative
    total, so a second claim in the same instant yields 0

NO SIDE EFFECTS:
  Pure functions of (investment, now). No I/O, no store, fully
  deterministic, testable without a database.

SEE ALSO:
  - lifecycle.go: The services that act on these figures
  - schedule.go: Projected payout schedule built on the same formula
*/
package invest

import (
	"github.com/shopspring/decimal"

	"github.com/warp/invest-ledger/ledger"
)

var hundred = decimal.NewFromInt(100)

// ComputeDailyRoi derives the per-day payout fixed at open:
// principal * roiPercent / 100 / durationDays.
func ComputeDailyRoi(principal ledger.Money, roiPercent decimal.Decimal, durationDays int) ledger.Money {
	return principal.
		Mul(roiPercent).
		Div(hundred).
		Div(decimal.NewFromInt(int64(durationDays)))
}

// ElapsedDays returns whole days accrued so far, capped at the term:
// 0 before the start, DurationDays at and after the end.
func ElapsedDays(inv Investment, now ledger.TimePoint) int {
	if now.Before(inv.StartDate) {
		return 0
	}
	effectiveEnd := now.Min(inv.EndDate)
	return ledger.DaysBetween(inv.StartDate, effectiveEnd)
}

// TotalEarned returns the ROI earned (claimed or not) up to now.
func TotalEarned(inv Investment, now ledger.TimePoint) ledger.Money {
	return inv.DailyRoi.Mul(decimal.NewFromInt(int64(ElapsedDays(inv, now))))
}

// ClaimableRoi returns the earned-but-unclaimed portion, never negative.
func ClaimableRoi(inv Investment, now ledger.TimePoint) ledger.Money {
	claimable := TotalEarned(inv, now).Sub(inv.ClaimedRoi)
	return claimable.Max(claimable.Zero())
}

// CanMature reports whether the investment is eligible for the maturity
// claim: the term has elapsed and it is still active.
func CanMature(inv Investment, now ledger.TimePoint) bool {
	return now.AfterOrEqual(inv.EndDate) && inv.Status == StatusActive
}
