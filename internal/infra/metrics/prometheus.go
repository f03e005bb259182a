package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"echoloop/internal/domain"
)

// Metrics mirrors machine and stream snapshots into Prometheus. It is fed by
// the supervisor between blocks, never from the audio callback.
type Metrics struct {
	// Stream metrics
	Blocks           prometheus.Counter
	InputUnderflows  prometheus.Counter
	InputOverflows   prometheus.Counter
	OutputUnderflows prometheus.Counter
	OutputOverflows  prometheus.Counter

	// Phase machine metrics
	Phase          *prometheus.GaugeVec
	Transitions    prometheus.Counter
	Cycles         prometheus.Counter
	Detections     prometheus.Counter
	DetectorErrors prometheus.Counter
	CaptureFull    prometheus.Counter

	registry *prometheus.Registry

	mu          sync.Mutex
	lastMachine domain.Snapshot
	lastStream  domain.StreamStats
}

var phases = []domain.Phase{
	domain.PhaseIdle,
	domain.PhaseAnnouncing,
	domain.PhaseCapturing,
	domain.PhaseEchoing,
}

// NewMetrics creates and registers all metrics on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		Blocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "echoloop_blocks_total",
			Help: "Total number of audio blocks delivered by the engine",
		}),
		InputUnderflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "echoloop_input_underflows_total",
			Help: "Blocks whose input was missing and replaced by silence",
		}),
		InputOverflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "echoloop_input_overflows_total",
			Help: "Blocks where the driver dropped input samples",
		}),
		OutputUnderflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "echoloop_output_underflows_total",
			Help: "Blocks where the driver ran out of output samples",
		}),
		OutputOverflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "echoloop_output_overflows_total",
			Help: "Blocks where the driver discarded output samples",
		}),

		Phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "echoloop_phase",
			Help: "1 for the currently active phase, 0 otherwise",
		}, []string{"phase"}),
		Transitions: factory.NewCounter(prometheus.CounterOpts{
			Name: "echoloop_phase_transitions_total",
			Help: "Total number of phase transitions",
		}),
		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "echoloop_cycles_total",
			Help: "Completed listen, chime, record, echo cycles",
		}),
		Detections: factory.NewCounter(prometheus.CounterOpts{
			Name: "echoloop_wake_detections_total",
			Help: "Wake phrase detections",
		}),
		DetectorErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "echoloop_detector_errors_total",
			Help: "Detector calls that failed and were treated as no detection",
		}),
		CaptureFull: factory.NewCounter(prometheus.CounterOpts{
			Name: "echoloop_capture_full_total",
			Help: "Wall-clock captures ended early because the capture buffer filled",
		}),

		registry: reg,
	}

	m.setPhase(domain.PhaseIdle)
	return m
}

// Observe applies the change since the previous snapshot.
func (m *Metrics) Observe(machine domain.Snapshot, stream domain.StreamStats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prevM, prevS := m.lastMachine, m.lastStream
	m.lastMachine, m.lastStream = machine, stream

	addDelta(m.Blocks, stream.Blocks, prevS.Blocks)
	addDelta(m.InputUnderflows, stream.InputUnderflows, prevS.InputUnderflows)
	addDelta(m.InputOverflows, stream.InputOverflows, prevS.InputOverflows)
	addDelta(m.OutputUnderflows, stream.OutputUnderflows, prevS.OutputUnderflows)
	addDelta(m.OutputOverflows, stream.OutputOverflows, prevS.OutputOverflows)

	addDelta(m.Transitions, machine.Transitions, prevM.Transitions)
	addDelta(m.Cycles, machine.Cycles, prevM.Cycles)
	addDelta(m.Detections, machine.Detections, prevM.Detections)
	addDelta(m.DetectorErrors, machine.DetectorErrors, prevM.DetectorErrors)
	addDelta(m.CaptureFull, machine.CaptureFull, prevM.CaptureFull)

	m.setPhase(machine.Phase)
}

func (m *Metrics) setPhase(active domain.Phase) {
	for _, p := range phases {
		v := 0.0
		if p == active {
			v = 1
		}
		m.Phase.WithLabelValues(p.String()).Set(v)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// addDelta tolerates counters that went backwards (a restarted engine).
func addDelta(c prometheus.Counter, now, prev uint64) {
	if now > prev {
		c.Add(float64(now - prev))
	}
}
