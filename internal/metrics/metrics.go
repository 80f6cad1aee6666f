// Package metrics exposes updater activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autoupdater"

// Metrics holds the updater's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	batchesTotal    *prometheus.CounterVec
	filesBackedUp   prometheus.Counter
	entriesApplied  prometheus.Counter
	waitEpisodes    prometheus.Counter
	stagingArchives prometheus.Gauge
	batchDuration   prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Archives processed, by outcome",
			},
			[]string{"status"},
		),
		filesBackedUp: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_backed_up_total",
			Help:      "Target files moved into backup folders",
		}),
		entriesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_applied_total",
			Help:      "Archive entries written to the target directory",
		}),
		waitEpisodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_wait_episodes_total",
			Help:      "Times an update had to wait for the target process to exit",
		}),
		stagingArchives: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staging_archives",
			Help:      "Archives found in staging by the last scan",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time spent applying one archive, excluding the process wait",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
		}),
	}

	reg.MustRegister(
		m.batchesTotal,
		m.filesBackedUp,
		m.entriesApplied,
		m.waitEpisodes,
		m.stagingArchives,
		m.batchDuration,
	)
	return m
}

// BatchFinished records one archive outcome.
func (m *Metrics) BatchFinished(status string, applied, backedUp int, took time.Duration) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(status).Inc()
	m.entriesApplied.Add(float64(applied))
	m.filesBackedUp.Add(float64(backedUp))
	if took > 0 {
		m.batchDuration.Observe(took.Seconds())
	}
}

// WaitEpisode records the start of a process wait.
func (m *Metrics) WaitEpisode() {
	if m == nil {
		return
	}
	m.waitEpisodes.Inc()
}

// StagingArchives sets the number of archives the last scan found.
func (m *Metrics) StagingArchives(n int) {
	if m == nil {
		return
	}
	m.stagingArchives.Set(float64(n))
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
