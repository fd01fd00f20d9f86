package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	metricTicks          = prometheus.NewCounter(prometheus.CounterOpts{Name: "intraday_engine_ticks_total", Help: "Engine ticks started"})
	metricTickErrors     = prometheus.NewCounter(prometheus.CounterOpts{Name: "intraday_engine_tick_errors_total", Help: "Ticks aborted before processing sessions"})
	metricTickDuration   = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "intraday_engine_tick_duration_seconds", Help: "Wall time spent per tick", Buckets: prometheus.DefBuckets})
	metricOutcomes       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "intraday_engine_session_outcomes_total", Help: "Per-session tick outcomes"}, []string{"action"})
	metricPanics         = prometheus.NewCounter(prometheus.CounterOpts{Name: "intraday_engine_session_panics_total", Help: "Recovered panics while processing a session"})
	metricQuarantined    = prometheus.NewCounter(prometheus.CounterOpts{Name: "intraday_engine_sessions_quarantined_total", Help: "Sessions stopped for invalid state"})
	metricTradesOpened   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "intraday_engine_trades_opened_total", Help: "Trades opened"}, []string{"mode"})
	metricTradesClosed   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "intraday_engine_trades_closed_total", Help: "Trades closed"}, []string{"mode", "reason"})
	metricAdvisorCalls   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "intraday_engine_advisor_calls_total", Help: "Advisor consultations by result"}, []string{"result"})
	metricActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{Name: "intraday_engine_active_sessions", Help: "ACTIVE sessions seen by the last tick"})
	metricHourlyTrades   = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "intraday_engine_hourly_trades", Help: "Trades opened in the current hour block"}, []string{"session"})
)

func init() {
	prometheus.MustRegister(
		metricTicks,
		metricTickErrors,
		metricTickDuration,
		metricOutcomes,
		metricPanics,
		metricQuarantined,
		metricTradesOpened,
		metricTradesClosed,
		metricAdvisorCalls,
		metricActiveSessions,
		metricHourlyTrades,
	)
}
