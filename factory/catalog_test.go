package factory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/invest-ledger/factory"
	"github.com/warp/invest-ledger/ledger"
	"github.com/warp/invest-ledger/store/sqlite"
)

func TestDefaultCatalog_Parses(t *testing.T) {
	catalog := factory.DefaultCatalog()

	require.Len(t, catalog.Plans, 4)
	require.Len(t, catalog.PaymentMethods, 3)

	byID := make(map[ledger.PlanID]int)
	for i, p := range catalog.Plans {
		byID[p.ID] = i
		assert.True(t, p.Active)
	}

	starter := catalog.Plans[byID["plan-starter"]]
	assert.True(t, starter.MinInvestment.Value.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, starter.MaxInvestment)
	assert.Equal(t, 30, starter.DurationDays)

	platinum := catalog.Plans[byID["plan-platinum"]]
	assert.Nil(t, platinum.MaxInvestment, "top tier is unbounded")
	assert.Equal(t, 90, platinum.DurationDays)
}

func TestParseCatalog_Failures(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"empty catalog", `{"plans": []}`},
		{"unknown tier", `{"plans": [{"id": "p1", "name": "P", "tier": "diamond",
			"min_investment": "100", "roi_percent": "10", "duration_days": 30}]}`},
		{"negative amount", `{"plans": [{"id": "p1", "name": "P", "tier": "gold",
			"min_investment": "-100", "roi_percent": "10", "duration_days": 30}]}`},
		{"zero duration", `{"plans": [{"id": "p1", "name": "P", "tier": "gold",
			"min_investment": "100", "roi_percent": "10", "duration_days": 0}]}`},
		{"max below min", `{"plans": [{"id": "p1", "name": "P", "tier": "gold",
			"min_investment": "100", "max_investment": "50", "roi_percent": "10", "duration_days": 30}]}`},
		{"duplicate plan id", `{"plans": [
			{"id": "p1", "name": "A", "tier": "gold", "min_investment": "100", "roi_percent": "10", "duration_days": 30},
			{"id": "p1", "name": "B", "tier": "silver", "min_investment": "100", "roi_percent": "8", "duration_days": 30}]}`},
		{"missing plan id", `{"plans": [{"name": "P", "tier": "gold",
			"min_investment": "100", "roi_percent": "10", "duration_days": 30}]}`},
		{"payment method without wallet", `{"plans": [
			{"id": "p1", "name": "P", "tier": "gold", "min_investment": "100", "roi_percent": "10", "duration_days": 30}],
			"payment_methods": [{"id": "pm1", "crypto_type": "BTC"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.ParseCatalog([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestParseCatalog_InactivePlan(t *testing.T) {
	catalog, err := factory.ParseCatalog([]byte(`{"plans": [
		{"id": "p1", "name": "Retired", "tier": "gold", "min_investment": "100",
		 "roi_percent": "10", "duration_days": 30, "active": false}]}`))
	require.NoError(t, err)
	assert.False(t, catalog.Plans[0].Active)
}

func TestApplyPlans_UpsertPreservesCreatedAt(t *testing.T) {
	// GIVEN: A plan seeded once, then re-applied later with new terms
	// THEN: The terms update but the original CreatedAt survives

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := ledger.NewFixedClock(ledger.NewTimePoint(2026, 3, 1))
	ctx := context.Background()

	catalog, err := factory.ParseCatalog([]byte(`{"plans": [
		{"id": "p1", "name": "Plan One", "tier": "gold", "min_investment": "100",
		 "roi_percent": "10", "duration_days": 30}]}`))
	require.NoError(t, err)
	require.NoError(t, factory.ApplyPlans(ctx, store, catalog.Plans, clock))

	firstApplied := clock.Now()
	clock.AdvanceDays(7)

	updated, err := factory.ParseCatalog([]byte(`{"plans": [
		{"id": "p1", "name": "Plan One v2", "tier": "gold", "min_investment": "200",
		 "roi_percent": "12", "duration_days": 30}]}`))
	require.NoError(t, err)
	require.NoError(t, factory.ApplyPlans(ctx, store, updated.Plans, clock))

	got, err := store.GetPlan(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Plan One v2", got.Name)
	assert.True(t, got.MinInvestment.Value.Equal(decimal.NewFromInt(200)))
	assert.True(t, got.CreatedAt.Equal(firstApplied), "created_at preserved across upsert")
	assert.True(t, got.UpdatedAt.Equal(clock.Now()))
}

func TestApplyPlans_LeavesAbsentPlansAlone(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := ledger.NewFixedClock(ledger.NewTimePoint(2026, 3, 1))
	ctx := context.Background()

	catalog, err := factory.ParseCatalog([]byte(`{"plans": [
		{"id": "p1", "name": "A", "tier": "gold", "min_investment": "100", "roi_percent": "10", "duration_days": 30},
		{"id": "p2", "name": "B", "tier": "silver", "min_investment": "100", "roi_percent": "8", "duration_days": 30}]}`))
	require.NoError(t, err)
	require.NoError(t, factory.ApplyPlans(ctx, store, catalog.Plans, clock))

	smaller, err := factory.ParseCatalog([]byte(`{"plans": [
		{"id": "p1", "name": "A", "tier": "gold", "min_investment": "100", "roi_percent": "10", "duration_days": 30}]}`))
	require.NoError(t, err)
	require.NoError(t, factory.ApplyPlans(ctx, store, smaller.Plans, clock))

	got, err := store.GetPlan(ctx, "p2")
	require.NoError(t, err)
	assert.NotNil(t, got, "plans missing from the file are not removed")
}
