package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"oracle-miss-alerts/internal/alerting"
	"oracle-miss-alerts/internal/classify"
	"oracle-miss-alerts/internal/config"
	"oracle-miss-alerts/internal/fetcher"
	"oracle-miss-alerts/internal/metrics"
	"oracle-miss-alerts/internal/report"
	"oracle-miss-alerts/internal/scheduler"
	"oracle-miss-alerts/internal/service"
	"oracle-miss-alerts/internal/snapshot"
	"oracle-miss-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() fetcher.Source {
	return fetcher.NewClient(fetcher.Options{
		BaseURL:           a.Config.Chain.APIBase,
		Denom:             a.Config.Chain.Denom,
		Timeout:           a.Config.Chain.RequestTimeout,
		MaxAttempts:       a.Config.Chain.MaxAttempts,
		RetryBaseDelay:    a.Config.Chain.RetryBaseDelay,
		RequestsPerSecond: a.Config.Chain.RequestsPerSecond,
		FetchWorkers:      a.Config.Chain.FetchWorkers,
		PageLimit:         a.Config.Chain.PageLimit,
		UserAgent:         version.UserAgent(),
	}, a.Logger)
}

func (a *App) newNotifier() (alerting.Notifier, error) {
	if err := a.Config.ValidateDelivery(); err != nil {
		return nil, err
	}
	switch a.Config.Alerting.Destination {
	case "discord":
		cfg := a.Config.Alerting.Discord
		return alerting.NewDiscordNotifier(cfg.BotToken, cfg.ChannelID, cfg.APIBase, cfg.RequestTimeout, a.Logger), nil
	case "telegram":
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.RequestTimeout, a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown alerting destination %q", a.Config.Alerting.Destination)
	}
}

func (a *App) newRecorder() (metrics.Recorder, func(context.Context) error) {
	if !a.Config.Metrics.Enabled {
		return metrics.Noop{}, nil
	}
	prom := metrics.NewPrometheus(a.Config.Metrics.Listen, a.Logger)
	return prom, prom.Serve
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	recorder, serveMetrics := a.newRecorder()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Monitor.Interval,
		RunAtStart:   a.Config.Monitor.RunAtStart,
		StartupDelay: a.Config.Monitor.StartupDelay,
		OnSkip:       recorder.CycleSkipped,
	}, a.Logger)

	svc := service.New(a.Config, sched, a.newSource(), notifier, recorder, a.Logger)

	if serveMetrics != nil {
		go func() {
			if err := serveMetrics(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("metrics listener terminated")
			}
		}()
	}

	a.Logger.Info().
		Str("interval", a.Config.Monitor.Interval.String()).
		Str("destination", a.Config.Alerting.Destination).
		Msg("starting monitoring service")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// Once runs a single monitoring cycle, delivers the report, and exits.
func (a *App) Once(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	svc := service.New(a.Config, nil, a.newSource(), notifier, metrics.Noop{}, a.Logger)
	return svc.RunCycle(ctx, time.Now().UTC())
}

// PreviewOptions configure the preview command.
type PreviewOptions struct {
	Threshold float64
}

// Preview 抓取当前链上状态并将报告打印到标准输出，不投递也不更新基线。
func (a *App) Preview(ctx context.Context, opts PreviewOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	records, err := a.newSource().Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch chain state: %w", err)
	}

	now := time.Now().UTC()
	curr := snapshot.Build(records, now, a.Logger)
	if curr.Size() == 0 {
		return fmt.Errorf("fetched validator set is empty")
	}

	threshold := a.Config.ResolveThreshold(opts.Threshold)
	result := classify.Classify(nil, curr, threshold, a.Logger)
	msg := report.Build(result, curr.Rates, report.Options{
		Title:             a.Config.Monitor.ReportTitle,
		MaxRowsPerSection: a.Config.Monitor.MaxRowsPerSection,
	})

	fmt.Fprint(os.Stdout, report.RenderText(msg))
	return nil
}
