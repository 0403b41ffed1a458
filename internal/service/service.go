package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"oracle-miss-alerts/internal/alerting"
	"oracle-miss-alerts/internal/classify"
	"oracle-miss-alerts/internal/config"
	"oracle-miss-alerts/internal/fetcher"
	"oracle-miss-alerts/internal/metrics"
	"oracle-miss-alerts/internal/report"
	"oracle-miss-alerts/internal/scheduler"
	"oracle-miss-alerts/internal/snapshot"
)

// Service orchestrates fetching, classification, reporting, and delivery.
// It owns the single-slot baseline snapshot that successive cycles diff
// against.
type Service struct {
	scheduler *scheduler.Scheduler
	source    fetcher.Source
	notifier  alerting.Notifier
	recorder  metrics.Recorder
	slot      *snapshot.Slot
	logger    zerolog.Logger

	threshold  decimal.Decimal
	reportOpts report.Options
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, source fetcher.Source, notifier alerting.Notifier, recorder metrics.Recorder, logger zerolog.Logger) *Service {
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	return &Service{
		scheduler: sched,
		source:    source,
		notifier:  notifier,
		recorder:  recorder,
		slot:      &snapshot.Slot{},
		logger:    logger.With().Str("component", "service").Logger(),
		threshold: cfg.Monitor.LowBalanceThresholdBase(),
		reportOpts: report.Options{
			Title:             cfg.Monitor.ReportTitle,
			MaxRowsPerSection: cfg.Monitor.MaxRowsPerSection,
		},
	}
}

// Run begins the fixed-interval monitoring loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.RunCycle)
}

// RunCycle 执行单个监控周期：抓取、分类、投递、更新基线。
func (s *Service) RunCycle(ctx context.Context, now time.Time) error {
	start := time.Now()

	records, err := s.source.Fetch(ctx)
	if err != nil {
		s.recorder.CycleCompleted("error", time.Since(start))
		return fmt.Errorf("fetch chain state: %w", err)
	}

	curr := snapshot.Build(records, now, s.logger)
	if curr.Size() == 0 {
		s.recorder.CycleCompleted("error", time.Since(start))
		return fmt.Errorf("fetched validator set is empty")
	}

	prev := s.slot.Get()
	result := classify.Classify(prev, curr, s.threshold, s.logger)

	msg := report.Build(result, curr.Rates, s.reportOpts)
	if err := s.notifier.Notify(ctx, msg); err != nil {
		// delivery failure never blocks the baseline update
		s.recorder.DeliveryFailed()
		s.logger.Error().Err(err).Time("cycle", now).Msg("failed to deliver report")
	}

	s.slot.Set(curr)

	s.recorder.Observe(result)
	s.recorder.CycleCompleted("ok", time.Since(start))

	s.logger.Info().Time("cycle", now).
		Int("validators", curr.Size()).
		Int("increased", len(result.Increased)).
		Int("low_balance", len(result.LowBalance)).
		Int("no_feeder", len(result.NoFeeder)).
		Int("stable", len(result.Stable)).
		Bool("healthy", msg.Healthy).
		Msg("monitoring cycle complete")

	return nil
}
