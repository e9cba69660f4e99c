// Package admission enforces the per-client daily request quota and
// monetary budget that gate entry to the classification pipeline.
package admission

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
	logx "github.com/zhiruiluo/esi-triage-mvp/pkg/logger"
)

// Controller decides whether a request may enter the pipeline. Both checks
// are advisory pre-checks: cost for an admitted request is always recorded
// even when it pushes spend over budget. Budget only blocks the next
// request, never one in flight.
type Controller struct {
	store       Store
	dailyLimit  int
	dailyBudget float64
	now         func() time.Time
}

// NewController builds the controller around an explicit keyed store and an
// injectable clock (nil means time.Now).
func NewController(store Store, cfg config.QuotaConfig, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{
		store:       store,
		dailyLimit:  cfg.DailyLimit,
		dailyBudget: cfg.DailyBudgetUSD,
		now:         now,
	}
}

// key partitions the ledger by client and calendar day (process-local time).
func (c *Controller) key(clientID string) string {
	return clientID + ":" + c.now().Format("2006-01-02")
}

// Check reports whether the client may issue another request today. The
// ledger is not mutated; call Commit after a successful check.
func (c *Controller) Check(ctx context.Context, clientID string) (bool, string) {
	rec, err := c.load(ctx, clientID)
	if err != nil {
		return true, "OK"
	}

	if rec.RequestCount >= c.dailyLimit {
		return false, fmt.Sprintf("Rate limit exceeded (%d per day)", c.dailyLimit)
	}
	if c.dailyBudget > 0 && rec.SpentUSD >= c.dailyBudget {
		return false, fmt.Sprintf("Free-tier budget exceeded ($%.2f per day)", c.dailyBudget)
	}
	return true, "OK"
}

// Commit increments the request count. Called only after Check succeeds and
// before pipeline execution.
func (c *Controller) Commit(ctx context.Context, clientID string) {
	if err := c.store.IncrRequests(ctx, c.key(clientID)); err != nil {
		logx.Warn().Err(err).Str("client", clientID).Msg("quota commit failed")
	}
}

// AddCost records USD spend for the client. Negative amounts are ignored.
func (c *Controller) AddCost(ctx context.Context, clientID string, usd float64) {
	if usd <= 0 {
		return
	}
	if err := c.store.AddCost(ctx, c.key(clientID), usd); err != nil {
		logx.Warn().Err(err).Str("client", clientID).Msg("cost record failed")
	}
}

// RemainingRequests returns the client's remaining daily quota.
func (c *Controller) RemainingRequests(ctx context.Context, clientID string) int {
	rec, err := c.load(ctx, clientID)
	if err != nil {
		return c.dailyLimit
	}
	if remaining := c.dailyLimit - rec.RequestCount; remaining > 0 {
		return remaining
	}
	return 0
}

// RemainingBudget returns the client's remaining daily budget in USD, or
// +Inf when no budget cap is configured.
func (c *Controller) RemainingBudget(ctx context.Context, clientID string) float64 {
	if c.dailyBudget <= 0 {
		return math.Inf(1)
	}
	rec, err := c.load(ctx, clientID)
	if err != nil {
		return c.dailyBudget
	}
	if remaining := c.dailyBudget - rec.SpentUSD; remaining > 0 {
		return remaining
	}
	return 0
}

// load reads the ledger, failing open: an unreachable shared store must not
// take the service down for an advisory limit.
func (c *Controller) load(ctx context.Context, clientID string) (Record, error) {
	rec, err := c.store.Get(ctx, c.key(clientID))
	if err != nil {
		logx.Warn().Err(err).Str("client", clientID).Msg("quota store unreachable, admitting")
	}
	return rec, err
}
