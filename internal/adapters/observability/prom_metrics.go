package observability

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roastwire/roastwire/internal/ports"
)

type PromObs struct {
	counters map[string]prometheus.Counter
	gauges   map[string]*prometheus.GaugeVec
	histos   map[string]prometheus.Observer
	drops    *prometheus.CounterVec
}

func NewPromObs() *PromObs {
	streamed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roastwire_samples_streamed_total",
		Help: "Telemetry samples broadcast on live channels.",
	})
	replayed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roastwire_replayed_samples_total",
		Help: "Samples replayed from the history buffer for sync requests.",
	})
	badFrames := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roastwire_bad_frames_total",
		Help: "Inbound frames discarded as malformed or unknown.",
	})
	alarms := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roastwire_alarms_fired_total",
		Help: "Alarm rules fired across all sessions.",
	})
	connections := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roastwire_active_connections",
		Help: "Open live-channel connections per machine.",
	}, []string{"machine"})
	historyLen := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roastwire_history_samples",
		Help: "Samples currently retained in the history buffer per machine.",
	}, []string{"machine"})
	broadcastLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roastwire_broadcast_latency_seconds",
		Help:    "Latency from driver sample arrival to fan-out enqueue.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
	drops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roastwire_frames_dropped_total",
		Help: "Outbound frames dropped per machine (slow clients, closed connections).",
	}, []string{"machine", "reason"})

	prometheus.MustRegister(streamed, replayed, badFrames, alarms,
		connections, historyLen, broadcastLatency, drops)

	return &PromObs{
		counters: map[string]prometheus.Counter{
			"roastwire_samples_streamed_total": streamed,
			"roastwire_replayed_samples_total": replayed,
			"roastwire_bad_frames_total":       badFrames,
			"roastwire_alarms_fired_total":     alarms,
		},
		gauges: map[string]*prometheus.GaugeVec{
			"roastwire_active_connections": connections,
			"roastwire_history_samples":    historyLen,
		},
		histos: map[string]prometheus.Observer{
			"roastwire_broadcast_latency_seconds": broadcastLatency,
		},
		drops: drops,
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("ERROR: %s: %v", msg, err)
	}
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("CRITICAL: %s: %v", msg, err)
	}
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	p.SetMachineGauge(name, "", v)
}

// SetMachineGauge sets a per-machine gauge. The plain SetGauge entry point
// uses an empty machine label so the Observability interface stays usable
// for machine-agnostic values.
func (p *PromObs) SetMachineGauge(name, machine string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.WithLabelValues(machine).Set(v)
	}
}

func (p *PromObs) RecordDrop(machineID string, reason string) {
	p.drops.WithLabelValues(machineID, reason).Inc()
}

var _ ports.Observability = (*PromObs)(nil)
