package gateway

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"
)

func writeMetric(w io.Writer, name, kind, help string, value any) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(w, "%s %v\n", name, value)
}

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
func metricsHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		snaps := deps.Sessions.List()
		writeMetric(w, "deckstream_sessions_active", "gauge", "Sessions connecting or streaming.", activeSessions(snaps))
		writeMetric(w, "deckstream_sessions_started_total", "counter", "Sessions started.", metrics.SessionsStarted.Load())
		writeMetric(w, "deckstream_sessions_completed_total", "counter", "Sessions that received the complete event.", metrics.SessionsCompleted.Load())
		writeMetric(w, "deckstream_sessions_errored_total", "counter", "Sessions that ended in an error.", metrics.SessionsErrored.Load())
		writeMetric(w, "deckstream_sessions_closed_total", "counter", "Sessions closed by the producer or the consumer.", metrics.SessionsClosed.Load())
		writeMetric(w, "deckstream_presentations_saved_total", "counter", "Presentations written to the store.", metrics.SessionsSaved.Load())
		writeMetric(w, "deckstream_layout_misses_total", "counter", "Layout misses, counted once per session, layout id and group.", metrics.LayoutMisses.Load())
		writeMetric(w, "deckstream_format_anomalies_total", "counter", "Streams that switched document shape after the first was detected.", metrics.FormatAnomalies.Load())

		registered := 0
		if deps.Resolver != nil {
			registered = deps.Resolver.Registry().Len()
		}
		writeMetric(w, "deckstream_layouts_registered", "gauge", "Registered layouts.", registered)
		writeMetric(w, "deckstream_uptime_seconds", "gauge", "Seconds since the gateway started.", fmt.Sprintf("%.0f", time.Since(startTime).Seconds()))

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		writeMetric(w, "go_goroutines", "gauge", "Number of goroutines.", runtime.NumGoroutine())
		writeMetric(w, "go_memstats_alloc_bytes", "gauge", "Bytes of allocated heap objects.", mem.Alloc)
		writeMetric(w, "go_memstats_sys_bytes", "gauge", "Total bytes of memory obtained from the OS.", mem.Sys)
	}
}
