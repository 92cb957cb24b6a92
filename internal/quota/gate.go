// Package quota enforces daily call budgets for paid external APIs. The
// counters live in the ext_api_quota table behind the data API, keyed by
// (api_name, quota_date).
package quota

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/finbrand/logo-crawler/internal/logo"
	"github.com/finbrand/logo-crawler/internal/metaapi"
)

const quotaTable = "ext_api_quota"

// dataAPI is the slice of the metaapi client the gate needs.
type dataAPI interface {
	Query(ctx context.Context, table string, params map[string]string) (metaapi.Envelope, error)
	Upsert(ctx context.Context, table string, data metaapi.Row, conflictColumns ...string) (metaapi.Row, error)
}

// Gate implements logo.QuotaGate on top of the data API.
//
// The gate is deliberately fail-open: when the counter store cannot be
// reached, calls are allowed rather than blocked, because logo acquisition
// is not safety-critical and an unrelated outage must not stall batches.
// The check/consume pair is also not atomic across processes, so concurrent
// batch jobs can overrun the budget by a small amount.
type Gate struct {
	api        dataAPI
	clock      logo.Clock
	defaultMax int
	logger     *zap.Logger
}

// New builds a Gate. defaultMax seeds max_count for counters created lazily
// on first use of a (name, day) pair.
func New(api dataAPI, clock logo.Clock, defaultMax int, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		api:        api,
		clock:      clock,
		defaultMax: defaultMax,
		logger:     logger,
	}
}

// Allow reports whether n more calls fit in today's budget for apiName.
func (g *Gate) Allow(ctx context.Context, apiName string, n int) bool {
	env, err := g.api.Query(ctx, quotaTable, map[string]string{
		"api_name":   apiName,
		"quota_date": g.today(),
		"limit":      "1",
	})
	if err != nil {
		g.logger.Warn("quota check unreachable, failing open",
			zap.String("api_name", apiName),
			zap.Error(err),
		)
		return true
	}
	if len(env.Data) == 0 {
		// No counter yet today; the implicit value is zero used.
		return n <= g.defaultMax
	}
	used, _ := env.Data[0].Int("used_count")
	max, ok := env.Data[0].Int("max_count")
	if !ok || max <= 0 {
		max = int64(g.defaultMax)
	}
	allowed := used+int64(n) <= max
	if !allowed {
		g.logger.Info("quota exhausted",
			zap.String("api_name", apiName),
			zap.Int64("used", used),
			zap.Int64("max", max),
		)
	}
	return allowed
}

// Consume charges n calls against today's counter. The data API resolves the
// (api_name, quota_date) conflict by adding the delta to used_count.
func (g *Gate) Consume(ctx context.Context, apiName string, n int) error {
	_, err := g.api.Upsert(ctx, quotaTable, metaapi.Row{
		"api_name":   apiName,
		"quota_date": g.today(),
		"used_count": n,
		"max_count":  g.defaultMax,
	}, "api_name", "quota_date")
	if err != nil {
		g.logger.Warn("quota consume failed",
			zap.String("api_name", apiName),
			zap.Error(err),
		)
	}
	return err
}

// CheckAndReserve combines Allow and Consume for callers that want the
// budget charged up front. A consume failure after a positive check still
// reports true: an unreachable counter store never blocks acquisition.
func (g *Gate) CheckAndReserve(ctx context.Context, apiName string, n int) bool {
	if !g.Allow(ctx, apiName, n) {
		return false
	}
	if err := g.Consume(ctx, apiName, n); err != nil {
		g.logger.Warn("reserve persisted nothing, failing open",
			zap.String("api_name", apiName),
			zap.Error(err),
		)
	}
	return true
}

func (g *Gate) today() string {
	return g.clock.Now().Format(time.DateOnly)
}

var _ logo.QuotaGate = (*Gate)(nil)
