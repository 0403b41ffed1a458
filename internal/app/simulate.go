package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"oracle-miss-alerts/internal/classify"
	"oracle-miss-alerts/internal/report"
	"oracle-miss-alerts/internal/snapshot"
)

// SimulateReport 构造合成验证人状态，走真实的分类、渲染与投递路径发送一份报告。
// 四个类别各有一名验证人，便于核对频道内的完整版式。
func (a *App) SimulateReport(ctx context.Context) error {
	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	prev := simulatedSnapshot(now.Add(-a.Config.Monitor.Interval), 10, a.Logger)
	curr := simulatedSnapshot(now, 15, a.Logger)

	result := classify.Classify(prev, curr, a.Config.Monitor.LowBalanceThresholdBase(), a.Logger)
	msg := report.Build(result, curr.Rates, report.Options{
		Title:             a.Config.Monitor.ReportTitle,
		MaxRowsPerSection: a.Config.Monitor.MaxRowsPerSection,
	})

	return notifier.Notify(ctx, msg)
}

func simulatedSnapshot(at time.Time, misses uint64, logger zerolog.Logger) *snapshot.Snapshot {
	low := decimal.NewFromInt(200_000) // 0.20 MLD, below the default cutoff
	healthy := decimal.NewFromInt(25_000_000)

	rec := snapshot.Records{
		Validators: []snapshot.Validator{
			{Address: "symphonyvaloper1sim1", Moniker: "sim-missing-votes", VotePower: decimal.NewFromInt(4_000_000)},
			{Address: "symphonyvaloper1sim2", Moniker: "sim-low-balance", VotePower: decimal.NewFromInt(2_500_000)},
			{Address: "symphonyvaloper1sim3", Moniker: "sim-no-feeder", VotePower: decimal.NewFromInt(1_500_000)},
			{Address: "symphonyvaloper1sim4", Moniker: "sim-stable", VotePower: decimal.NewFromInt(2_000_000)},
		},
		Misses: map[string]uint64{
			"symphonyvaloper1sim1": misses,
			"symphonyvaloper1sim2": 3,
			"symphonyvaloper1sim3": 7,
			"symphonyvaloper1sim4": 0,
		},
		Feeders: map[string]string{
			"symphonyvaloper1sim1": "symphony1simfeeder1",
			"symphonyvaloper1sim2": "symphony1simfeeder2",
			"symphonyvaloper1sim4": "symphony1simfeeder4",
		},
		Balances: map[string]decimal.Decimal{
			"symphonyvaloper1sim1": healthy,
			"symphonyvaloper1sim2": low,
			"symphonyvaloper1sim4": healthy,
		},
		Rates: []snapshot.ExchangeRate{
			{Denom: "uusd", Rate: decimal.NewFromFloat(0.012345)},
		},
	}

	return snapshot.Build(rec, at, logger)
}
