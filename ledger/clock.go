package ledger

import (
	"sync"
	"time"
)

// =============================================================================
// TIME POINT - UTC point in time with day arithmetic
// =============================================================================

// TimePoint is a point in time, always UTC. Investment terms are day-based,
// so it carries day arithmetic (AddDays, DaysBetween) alongside the usual
// comparisons.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func At(t time.Time) TimePoint {
	return TimePoint{Time: t.UTC()}
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }

func (tp TimePoint) Min(other TimePoint) TimePoint {
	if tp.Before(other) {
		return tp
	}
	return other
}

func (tp TimePoint) IsZero() bool   { return tp.Time.IsZero() }
func (tp TimePoint) String() string { return tp.Time.Format(time.RFC3339) }

// DaysBetween returns the number of WHOLE days from `from` to `to`,
// truncating any partial day in progress. Negative if `to` precedes `from`.
// This is the elapsed-day rule the accrual calculator is built on: no
// accrual for a partial day.
func DaysBetween(from, to TimePoint) int {
	return int(to.Time.Sub(from.Time) / (24 * time.Hour))
}

// =============================================================================
// CLOCK - Injectable time source
// =============================================================================

// Clock supplies the current time. Every service takes a Clock so that
// accrual and maturity logic is deterministic in tests.
type Clock interface {
	Now() TimePoint
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() TimePoint { return At(time.Now()) }

// FixedClock is a test clock that only moves when told to.
type FixedClock struct {
	mu sync.Mutex
	t  TimePoint
}

func NewFixedClock(t TimePoint) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() TimePoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FixedClock) Set(t TimePoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = TimePoint{Time: c.t.Time.Add(d)}
}

func (c *FixedClock) AdvanceDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.AddDays(n)
}
