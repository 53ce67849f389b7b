// Package metrics exports engine activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"wager-bot/internal/model"
)

// Namespace prefixes every metric name.
var Namespace = "wager"

// Collector counts registry events. It implements game.Observer.
type Collector struct {
	Events     *prometheus.CounterVec
	ValueMoved *prometheus.CounterVec
	Games      prometheus.Gauge
}

// NewCollector creates the metric set. Register it with MustRegister.
func NewCollector() *Collector {
	return &Collector{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_total",
			Help:      "Game events by kind.",
		}, []string{"kind"}),
		ValueMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "value_moved_total",
			Help:      "Smallest units moved in or out of escrow, approximated as float.",
		}, []string{"kind", "asset"}),
		Games: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "games",
			Help:      "Games held by the registry.",
		}),
	}
}

// Metrics lists the underlying collectors.
func (c *Collector) Metrics() []prometheus.Collector {
	return []prometheus.Collector{c.Events, c.ValueMoved, c.Games}
}

// MustRegister registers every metric with reg.
func (c *Collector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(c.Metrics()...)
}

// Observe implements game.Observer.
func (c *Collector) Observe(_ context.Context, ev model.Event, _ *model.GameRecord) error {
	c.Events.WithLabelValues(ev.Kind).Inc()
	if ev.Kind == model.EventCreated {
		c.Games.Inc()
	}
	if ev.Amount != nil && ev.Amount.Sign() > 0 {
		f, _ := new(big.Float).SetInt(ev.Amount).Float64()
		c.ValueMoved.WithLabelValues(ev.Kind, ev.Asset.String()).Add(f)
	}
	return nil
}

// PoolCollectors exposes database pool usage as gauges read on scrape.
func PoolCollectors(stats func() *pgxpool.Stat) []prometheus.Collector {
	gauge := func(name, help string, read func(*pgxpool.Stat) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(stats())) })
	}
	return []prometheus.Collector{
		gauge("conns_acquired", "Connections in use.", (*pgxpool.Stat).AcquiredConns),
		gauge("conns_idle", "Idle connections.", (*pgxpool.Stat).IdleConns),
		gauge("conns_total", "Open connections.", (*pgxpool.Stat).TotalConns),
	}
}

// Serve exposes reg on addr until ctx is done.
func Serve(ctx context.Context, addr string, reg prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
