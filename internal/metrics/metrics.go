// Package metrics registers the engine's Prometheus series:
//   - engine_ticks_total                    reconciliation passes run
//   - engine_open_positions                 open positions seen on the last tick
//   - engine_closes_total{reason}           positions closed, by exit reason
//   - engine_trailing_updates_total         successful stop-loss raises
//   - engine_position_errors_total{stage}   per-position failures (resolve|history|gateway|store)
//   - engine_quote_fallbacks_total          empty histories resolved via last quote
//
// Served by the HTTP handler started in cmd/engine at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_ticks_total",
		Help: "Reconciliation ticks run",
	})

	OpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_open_positions",
		Help: "Open positions seen on the last tick",
	})

	Closes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_closes_total",
		Help: "Positions closed, by exit reason",
	}, []string{"reason"})

	TrailingUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_trailing_updates_total",
		Help: "Successful trailing stop-loss raises",
	})

	PositionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_position_errors_total",
		Help: "Per-position evaluation failures, by stage",
	}, []string{"stage"})

	QuoteFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_quote_fallbacks_total",
		Help: "Empty bar histories resolved via the last traded quote",
	})
)

func init() {
	prometheus.MustRegister(
		Ticks,
		OpenPositions,
		Closes,
		TrailingUpdates,
		PositionErrors,
		QuoteFallbacks,
	)
}
