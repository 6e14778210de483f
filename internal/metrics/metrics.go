package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics 哨兵运行指标
type Metrics struct {
	registry *prometheus.Registry

	PollCycles    prometheus.Counter
	FetchFailures prometheus.Counter
	CycleDuration prometheus.Histogram
	Notifications *prometheus.CounterVec // labels: kind, outcome
	PersistErrors prometheus.Counter
	LastRSI       prometheus.Gauge
	LastPrice     prometheus.Gauge
	Chats         prometheus.Gauge
}

// NewMetrics 创建并注册指标到独立的registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentry_poll_cycles_total",
			Help: "Total poll cycles started",
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentry_fetch_failures_total",
			Help: "Poll cycles aborted because market data could not be fetched",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentry_cycle_duration_seconds",
			Help:    "Time from fetch start to dispatch end",
			Buckets: prometheus.DefBuckets,
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentry_notifications_total",
			Help: "Notifications dispatched by kind and outcome",
		}, []string{"kind", "outcome"}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentry_persist_errors_total",
			Help: "Evaluation cycles rolled back because state could not be saved",
		}),
		LastRSI: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentry_last_rsi",
			Help: "RSI computed in the last successful cycle",
		}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentry_last_price",
			Help: "Close price of the latest candle",
		}),
		Chats: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentry_chats",
			Help: "Number of known chats",
		}),
	}

	m.registry.MustRegister(
		m.PollCycles,
		m.FetchFailures,
		m.CycleDuration,
		m.Notifications,
		m.PersistErrors,
		m.LastRSI,
		m.LastPrice,
		m.Chats,
	)

	return m
}

// ObserveNotification outcome: delivered / failed
func (m *Metrics) ObserveNotification(kind string, delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	m.Notifications.WithLabelValues(kind, outcome).Inc()
}

// Handler /metrics处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 在addr上暴露/metrics，直到ctx取消
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	zap.L().Info("📈 指标服务已启动", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
