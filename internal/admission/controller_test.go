package admission

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCheckLimitBoundary(t *testing.T) {
	ctx := context.Background()
	c := NewController(NewMemoryStore(), config.QuotaConfig{DailyLimit: 2, DailyBudgetUSD: 1.0},
		fixedClock(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)))

	ok, reason := c.Check(ctx, "10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, "OK", reason)

	c.Commit(ctx, "10.0.0.1")
	ok, _ = c.Check(ctx, "10.0.0.1")
	assert.True(t, ok, "one request of two used")

	c.Commit(ctx, "10.0.0.1")
	ok, reason = c.Check(ctx, "10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, "Rate limit exceeded (2 per day)", reason)

	assert.Equal(t, 0, c.RemainingRequests(ctx, "10.0.0.1"))
}

func TestCheckClientsIsolated(t *testing.T) {
	ctx := context.Background()
	c := NewController(NewMemoryStore(), config.QuotaConfig{DailyLimit: 1, DailyBudgetUSD: 1.0},
		fixedClock(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)))

	c.Commit(ctx, "10.0.0.1")
	ok, _ := c.Check(ctx, "10.0.0.1")
	assert.False(t, ok)

	ok, _ = c.Check(ctx, "10.0.0.2")
	assert.True(t, ok, "other clients keep their own ledger")
}

func TestBudgetAdvisory(t *testing.T) {
	ctx := context.Background()
	c := NewController(NewMemoryStore(), config.QuotaConfig{DailyLimit: 100, DailyBudgetUSD: 1.0},
		fixedClock(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)))

	c.AddCost(ctx, "client", 0.50)
	ok, _ := c.Check(ctx, "client")
	assert.True(t, ok, "under budget")
	assert.InDelta(t, 0.50, c.RemainingBudget(ctx, "client"), 0.001)

	// Cost is recorded even past the cap: the check is advisory and only
	// blocks the next request.
	c.AddCost(ctx, "client", 0.75)
	ok, reason := c.Check(ctx, "client")
	assert.False(t, ok)
	assert.Equal(t, "Free-tier budget exceeded ($1.00 per day)", reason)
	assert.Equal(t, 0.0, c.RemainingBudget(ctx, "client"))
}

func TestBudgetCountCheckIndependent(t *testing.T) {
	ctx := context.Background()
	c := NewController(NewMemoryStore(), config.QuotaConfig{DailyLimit: 1, DailyBudgetUSD: 10.0},
		fixedClock(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)))

	c.Commit(ctx, "client")
	ok, reason := c.Check(ctx, "client")
	assert.False(t, ok)
	assert.Contains(t, reason, "Rate limit exceeded", "count exhaustion reported even with budget left")
}

func TestRemainingBudgetNoCap(t *testing.T) {
	ctx := context.Background()
	c := NewController(NewMemoryStore(), config.QuotaConfig{DailyLimit: 10, DailyBudgetUSD: 0},
		fixedClock(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)))

	c.AddCost(ctx, "client", 5.0)
	assert.True(t, math.IsInf(c.RemainingBudget(ctx, "client"), 1))

	ok, _ := c.Check(ctx, "client")
	assert.True(t, ok, "no budget cap never blocks")
}

func TestAddCostIgnoresNonPositive(t *testing.T) {
	ctx := context.Background()
	c := NewController(NewMemoryStore(), config.QuotaConfig{DailyLimit: 10, DailyBudgetUSD: 1.0},
		fixedClock(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)))

	c.AddCost(ctx, "client", 0)
	c.AddCost(ctx, "client", -0.5)
	assert.InDelta(t, 1.0, c.RemainingBudget(ctx, "client"), 0.001)
}

func TestDayRollover(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 23, 59, 0, 0, time.UTC)
	c := NewController(NewMemoryStore(), config.QuotaConfig{DailyLimit: 1, DailyBudgetUSD: 1.0},
		func() time.Time { return now })

	c.Commit(ctx, "client")
	c.AddCost(ctx, "client", 1.0)
	ok, _ := c.Check(ctx, "client")
	require.False(t, ok)

	now = now.Add(2 * time.Minute) // past midnight
	ok, _ = c.Check(ctx, "client")
	assert.True(t, ok, "new calendar day starts a fresh ledger")
	assert.Equal(t, 1, c.RemainingRequests(ctx, "client"))
	assert.InDelta(t, 1.0, c.RemainingBudget(ctx, "client"), 0.001)
}

func TestMemoryStoreConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = store.IncrRequests(ctx, "k")
			_ = store.AddCost(ctx, "k", 0.01)
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}

	rec, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 50, rec.RequestCount)
	assert.InDelta(t, 0.50, rec.SpentUSD, 0.001)
}
