package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"oracle-miss-alerts/internal/classify"
)

// Recorder receives cycle observations. The monitoring service records
// through this narrow interface so the exporter stays optional.
type Recorder interface {
	CycleCompleted(status string, duration time.Duration)
	CycleSkipped()
	DeliveryFailed()
	Observe(res classify.Result)
}

// Noop discards all observations.
type Noop struct{}

func (Noop) CycleCompleted(string, time.Duration) {}
func (Noop) CycleSkipped()                        {}
func (Noop) DeliveryFailed()                      {}
func (Noop) Observe(classify.Result)              {}

// Prometheus exports cycle metrics on a /metrics listener.
type Prometheus struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Gauge
	validators    prometheus.Gauge
	categoryCount *prometheus.GaugeVec
	categoryPct   *prometheus.GaugeVec
	deliveryFails prometheus.Counter

	listen string
	logger zerolog.Logger
}

// NewPrometheus constructs the exporter with its own registry.
func NewPrometheus(listen string, logger zerolog.Logger) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		listen:   listen,
		logger:   logger.With().Str("component", "metrics").Logger(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oraclewatch_cycles_total",
			Help: "Monitoring cycles by outcome.",
		}, []string{"status"}),
		cycleDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oraclewatch_cycle_duration_seconds",
			Help: "Duration of the most recent monitoring cycle.",
		}),
		validators: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oraclewatch_validators",
			Help: "Validators in the most recent snapshot.",
		}),
		categoryCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oraclewatch_category_validators",
			Help: "Validators per classification category.",
		}, []string{"category"}),
		categoryPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oraclewatch_category_vote_power_pct",
			Help: "Vote power percentage per classification category.",
		}, []string{"category"}),
		deliveryFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oraclewatch_delivery_failures_total",
			Help: "Report deliveries that failed.",
		}),
	}
	p.registry.MustRegister(
		p.cycles, p.cycleDuration, p.validators,
		p.categoryCount, p.categoryPct, p.deliveryFails,
	)
	return p
}

func (p *Prometheus) CycleCompleted(status string, duration time.Duration) {
	p.cycles.WithLabelValues(status).Inc()
	p.cycleDuration.Set(duration.Seconds())
}

func (p *Prometheus) CycleSkipped() {
	p.cycles.WithLabelValues("skipped").Inc()
}

func (p *Prometheus) DeliveryFailed() {
	p.deliveryFails.Inc()
}

func (p *Prometheus) Observe(res classify.Result) {
	p.validators.Set(float64(res.Size()))
	for _, cat := range classify.Categories {
		p.categoryCount.WithLabelValues(string(cat)).Set(float64(len(res.Entries(cat))))
		pct, _ := res.Power[cat].Percentage.Float64()
		p.categoryPct.WithLabelValues(string(cat)).Set(pct)
	}
}

// Serve blocks on the /metrics listener until ctx is cancelled.
func (p *Prometheus) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: p.listen, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	p.logger.Info().Str("listen", p.listen).Msg("metrics listener started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

var (
	_ Recorder = (*Prometheus)(nil)
	_ Recorder = Noop{}
)
