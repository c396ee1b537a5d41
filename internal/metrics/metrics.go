// Package metrics holds the prometheus collectors for a chat session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bevie"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	frames           *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec
	linksDeposited   prometheus.Counter
	linksOverwritten prometheus.Counter
	linksConsumed    prometheus.Counter
	turns            *prometheus.CounterVec
	eventCards       prometheus.Counter
	presenceWaiting  prometheus.Gauge
	transportErrors  prometheus.Counter
	diagnostics      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Inbound frames by decoded kind.",
		}, []string{"kind"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Frames or tool payloads that failed to decode.",
		}, []string{"stage"}),
		linksDeposited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_links_deposited_total",
			Help:      "Calendar links taken from tool responses.",
		}),
		linksOverwritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_links_overwritten_total",
			Help:      "Pending calendar links replaced before a reply consumed them.",
		}),
		linksConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_links_consumed_total",
			Help:      "Calendar links attached to an assistant turn.",
		}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns handed to the renderer by sender.",
		}, []string{"sender"}),
		eventCards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_cards_total",
			Help:      "Assistant turns carrying an extracted event card.",
		}),
		presenceWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_waiting",
			Help:      "1 while a reply is awaited.",
		}),
		transportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Connection faults.",
		}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Diagnostic log lines by level and delivery result.",
		}, []string{"level", "result"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.frames,
			m.decodeErrors,
			m.linksDeposited,
			m.linksOverwritten,
			m.linksConsumed,
			m.turns,
			m.eventCards,
			m.presenceWaiting,
			m.transportErrors,
			m.diagnostics,
		)
	}
	return m
}

func (m *Metrics) Frame(kind string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(kind).Inc()
}

func (m *Metrics) DecodeError(stage string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) LinkDeposited(overwrote bool) {
	if m == nil {
		return
	}
	m.linksDeposited.Inc()
	if overwrote {
		m.linksOverwritten.Inc()
	}
}

func (m *Metrics) LinkConsumed() {
	if m == nil {
		return
	}
	m.linksConsumed.Inc()
}

func (m *Metrics) Turn(sender string, withCard bool) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(sender).Inc()
	if withCard {
		m.eventCards.Inc()
	}
}

func (m *Metrics) SetWaiting(waiting bool) {
	if m == nil {
		return
	}
	if waiting {
		m.presenceWaiting.Set(1)
	} else {
		m.presenceWaiting.Set(0)
	}
}

func (m *Metrics) TransportError() {
	if m == nil {
		return
	}
	m.transportErrors.Inc()
}

func (m *Metrics) Diagnostic(level, result string) {
	if m == nil {
		return
	}
	m.diagnostics.WithLabelValues(level, result).Inc()
}
