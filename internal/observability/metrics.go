package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_active_sessions",
		Help: "Number of open chat sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_sessions_total",
		Help: "Total number of chat sessions accepted",
	})

	// Voice pipeline metrics
	activeListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_active_listeners",
		Help: "Number of running voice listeners",
	})

	utterancesSegmented = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_utterances_total",
		Help: "Total number of utterances committed by the VAD segmenter",
	})

	utteranceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_utterance_duration_seconds",
		Help:    "Duration of committed utterances in seconds",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 30},
	})

	transcriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_transcriptions_total",
		Help: "Transcription results by outcome",
	}, []string{"outcome"}) // ok, filtered

	// Command dispatch metrics
	dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_dispatches_total",
		Help: "Command dispatches by outcome",
	}, []string{"outcome"}) // completed, timeout, failed

	dispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_dispatch_latency_seconds",
		Help:    "Command dispatch latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// RecordSessionStart increments the session gauges.
func RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd decrements the active session gauge.
func RecordSessionEnd() {
	activeSessions.Dec()
}

// RecordListenerStart increments the running listener gauge.
func RecordListenerStart() {
	activeListeners.Inc()
}

// RecordListenerStop decrements the running listener gauge.
func RecordListenerStop() {
	activeListeners.Dec()
}

// RecordUtteranceSegmented records one committed utterance of the given
// duration in seconds.
func RecordUtteranceSegmented(seconds float64) {
	utterancesSegmented.Inc()
	utteranceDuration.Observe(seconds)
}

// RecordTranscription records one transcription outcome: "ok" or "filtered".
func RecordTranscription(outcome string) {
	transcriptions.WithLabelValues(outcome).Inc()
}

// RecordDispatch records one command dispatch outcome and its latency.
func RecordDispatch(outcome string, elapsed time.Duration) {
	dispatches.WithLabelValues(outcome).Inc()
	dispatchLatency.Observe(elapsed.Seconds())
}

// RecordError records an error by type and component.
func RecordError(errType, component string) {
	errorsTotal.WithLabelValues(errType, component).Inc()
}
