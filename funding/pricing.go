/*
pricing.go - Exchange-rate collaborator

PURPOSE:
  Converts a cryptocurrency amount to its USD equivalent at submission
  time. The engine treats the rate as an opaque multiplier: it rejects
  non-positive rates and does nothing else clever.

COLLABORATOR CONTRACT:
  - A pricing failure blocks only the operation that needed the rate.
  - CachedRateProvider applies a TTL and fails soft: on upstream failure
    it falls back to the last-known rate instead of blocking, and only
    errors when it has never seen a rate for the symbol.
*/
package funding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/invest-ledger/ledger"
)

// RateProvider supplies the USD rate for one unit of a crypto symbol.
type RateProvider interface {
	Rate(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// =============================================================================
// STATIC RATES - Fixed table (config/dev/tests)
// =============================================================================

type StaticRates map[string]decimal.Decimal

func (r StaticRates) Rate(_ context.Context, symbol string) (decimal.Decimal, error) {
	rate, ok := r[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s: %w", symbol, ledger.ErrUpstreamUnavailable)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate for %s: %w", symbol, ledger.ErrUpstreamUnavailable)
	}
	return rate, nil
}

// =============================================================================
// CACHED PROVIDER - TTL cache with last-known fallback
// =============================================================================

type CachedRateProvider struct {
	Source RateProvider
	TTL    time.Duration

	mu    sync.Mutex
	cache map[string]cachedRate
}

type cachedRate struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

func NewCachedRateProvider(source RateProvider, ttl time.Duration) *CachedRateProvider {
	return &CachedRateProvider{
		Source: source,
		TTL:    ttl,
		cache:  make(map[string]cachedRate),
	}
}

// Rate returns a cached rate while fresh, refreshes when stale, and falls
// back to the last-known rate if the upstream fails. Non-positive upstream
// rates are treated as upstream failures.
func (c *CachedRateProvider) Rate(ctx context.Context, symbol string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, hasLast := c.cache[symbol]
	if hasLast && time.Since(entry.fetchedAt) < c.TTL {
		return entry.rate, nil
	}

	rate, err := c.Source.Rate(ctx, symbol)
	if err == nil && !rate.IsPositive() {
		err = fmt.Errorf("non-positive rate for %s: %w", symbol, ledger.ErrUpstreamUnavailable)
	}
	if err != nil {
		if hasLast {
			return entry.rate, nil // fail soft on a stale-but-known rate
		}
		return decimal.Zero, err
	}

	c.cache[symbol] = cachedRate{rate: rate, fetchedAt: time.Now()}
	return rate, nil
}

// ConvertToUSD converts a crypto amount using the provider's current rate.
func ConvertToUSD(ctx context.Context, provider RateProvider, symbol string, amount decimal.Decimal) (ledger.Money, error) {
	rate, err := provider.Rate(ctx, symbol)
	if err != nil {
		return ledger.Money{}, err
	}
	return ledger.USD(amount.Mul(rate)), nil
}
