package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "disktest",
			Name:      "session_blocks_total",
			Help:      "Total number of blocks processed by sessions, by operation.",
		},
		[]string{"name", "operation"})
	sessionRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "disktest",
			Name:      "session_retries_total",
			Help:      "Total number of I/O operations that were retried due to transient errors, and the number of times retrying was given up.",
		},
		[]string{"name", "outcome"})
	sessionsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "disktest",
			Name:      "sessions_finished_total",
			Help:      "Total number of sessions that finished, by status.",
		},
		[]string{"name", "status"})
)

func init() {
	prometheus.MustRegister(sessionBlocksTotal)
	prometheus.MustRegister(sessionRetriesTotal)
	prometheus.MustRegister(sessionsFinishedTotal)
}

type sessionMetrics struct {
	name             string
	blocksWritten    prometheus.Counter
	blocksVerified   prometheus.Counter
	blocksMismatched prometheus.Counter
	retries          prometheus.Counter
	retriesExhausted prometheus.Counter
}

func newSessionMetrics(name string) *sessionMetrics {
	return &sessionMetrics{
		name:             name,
		blocksWritten:    sessionBlocksTotal.WithLabelValues(name, "Written"),
		blocksVerified:   sessionBlocksTotal.WithLabelValues(name, "Verified"),
		blocksMismatched: sessionBlocksTotal.WithLabelValues(name, "Mismatched"),
		retries:          sessionRetriesTotal.WithLabelValues(name, "Retried"),
		retriesExhausted: sessionRetriesTotal.WithLabelValues(name, "Exhausted"),
	}
}

func (m *sessionMetrics) finished(s Status) {
	sessionsFinishedTotal.WithLabelValues(m.name, s.String()).Inc()
}
