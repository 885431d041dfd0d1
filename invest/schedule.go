/*
schedule.go - Projected payout schedule

PURPOSE:
  Answers "what will this investment pay, and when?" for display. Built on
  the same accrual formula as claims, so the projection can never drift
  from what actually gets credited.

The schedule is a pure computation over the investment's fixed parameters;
it does not read the ledger. Past entries are marked accrued relative to
the supplied `now`.
*/
package invest

import (
	"github.com/warp/invest-ledger/ledger"
)

// ScheduleEntry is one projected daily payout.
type ScheduleEntry struct {
	Day     int // 1-based day of the term
	At      ledger.TimePoint
	Amount  ledger.Money
	Accrued bool // whether this day has already elapsed at `now`
}

// Schedule is the full projected payout timeline for one investment.
type Schedule struct {
	InvestmentID ledger.InvestmentID
	Entries      []ScheduleEntry

	TotalRoi       ledger.Money
	AccruedToDate  ledger.Money
	ClaimedToDate  ledger.Money
	ClaimableNow   ledger.Money
	PrincipalBack  ledger.Money
	MaturityPayout ledger.Money // principal + unclaimed remainder if matured at term end
}

// ProjectSchedule builds the payout timeline for an investment as of now.
func ProjectSchedule(inv Investment, now ledger.TimePoint) Schedule {
	duration := inv.DurationDays()
	elapsed := ElapsedDays(inv, now)

	entries := make([]ScheduleEntry, 0, duration)
	for day := 1; day <= duration; day++ {
		entries = append(entries, ScheduleEntry{
			Day:     day,
			At:      inv.StartDate.AddDays(day),
			Amount:  inv.DailyRoi,
			Accrued: day <= elapsed,
		})
	}

	totalRoi := inv.TotalRoi()
	return Schedule{
		InvestmentID:   inv.ID,
		Entries:        entries,
		TotalRoi:       totalRoi,
		AccruedToDate:  TotalEarned(inv, now),
		ClaimedToDate:  inv.ClaimedRoi,
		ClaimableNow:   ClaimableRoi(inv, now),
		PrincipalBack:  inv.Principal,
		MaturityPayout: inv.Principal.Add(totalRoi.Sub(inv.ClaimedRoi)),
	}
}
