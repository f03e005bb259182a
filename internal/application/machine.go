package application

import (
	"fmt"
	"sync/atomic"
	"time"

	"echoloop/internal/domain"
)

type MachineConfig struct {
	SampleRate      int
	BlockSize       int
	CaptureDuration time.Duration
	DeadlineMode    domain.DeadlineMode
	// Clock is only consulted in wall-clock deadline mode. Defaults to time.Now.
	Clock func() time.Time
}

// Machine is the per-block phase controller: listen, chime, record, echo.
//
// OnBlock must only be called from one goroutine (the engine's audio thread).
// It never allocates, locks, or blocks. Other goroutines observe the machine
// through Snapshot, which reads atomics only.
type Machine struct {
	detector  Detector
	chime     []int16
	capture   *CaptureBuffer
	blockSize int
	mode      domain.DeadlineMode
	clock     func() time.Time

	deadlineSamples int
	deadlineTime    time.Duration

	phase     domain.Phase
	entering  bool
	cursor    int
	elapsed   int
	startedAt time.Time

	published      atomic.Int32
	blocks         atomic.Uint64
	transitions    atomic.Uint64
	cycles         atomic.Uint64
	detections     atomic.Uint64
	detectorErrors atomic.Uint64
	captureFull    atomic.Uint64
}

func NewMachine(cfg MachineConfig, detector Detector, chime []int16) (*Machine, error) {
	if cfg.SampleRate <= 0 {
		return nil, &domain.ConfigError{Field: "sample_rate", Msg: fmt.Sprintf("must be positive, got %d", cfg.SampleRate)}
	}
	if cfg.BlockSize <= 0 {
		return nil, &domain.ConfigError{Field: "block_size", Msg: fmt.Sprintf("must be positive, got %d", cfg.BlockSize)}
	}
	if cfg.CaptureDuration <= 0 {
		return nil, &domain.ConfigError{Field: "capture_duration", Msg: "must be positive"}
	}
	if detector == nil {
		return nil, &domain.ConfigError{Field: "detector", Msg: "required"}
	}

	mode := cfg.DeadlineMode
	if mode == "" {
		mode = domain.DeadlineSamples
	}
	if mode != domain.DeadlineSamples && mode != domain.DeadlineWallClock {
		return nil, &domain.ConfigError{Field: "deadline_mode", Msg: fmt.Sprintf("unknown mode %q", mode)}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	samples := SamplesFor(cfg.CaptureDuration, cfg.SampleRate)
	capacity := roundUp(samples, cfg.BlockSize)
	if mode == domain.DeadlineWallClock {
		// Head room for driver jitter; a full buffer also ends the capture.
		capacity += max(4*cfg.BlockSize, roundUp(capacity/10, cfg.BlockSize))
	}

	m := &Machine{
		detector:        detector,
		chime:           chime,
		capture:         NewCaptureBuffer(capacity),
		blockSize:       cfg.BlockSize,
		mode:            mode,
		clock:           clock,
		deadlineSamples: samples,
		deadlineTime:    cfg.CaptureDuration,
		phase:           domain.PhaseIdle,
	}
	m.published.Store(int32(domain.PhaseIdle))
	return m, nil
}

// OnBlock processes exactly one block and returns out[:frames] fully written.
// A phase change decided here takes effect from the next block: the new
// phase's cursor and buffers are reset when that block begins.
func (m *Machine) OnBlock(in []int16, frames int, out []int16) []int16 {
	if frames < 0 {
		frames = 0
	}
	if frames > cap(out) {
		frames = cap(out)
	}
	out = out[:frames]

	if m.entering {
		m.enter()
	}

	ev := domain.EventNone
	switch m.phase {
	case domain.PhaseIdle:
		clear(out)
		ev = m.listen(in)
	case domain.PhaseAnnouncing:
		m.cursor = m.play(out, m.chime)
		if m.cursor >= len(m.chime) {
			ev = domain.EventChimeDone
		}
	case domain.PhaseCapturing:
		clear(out)
		if m.record(in) {
			ev = domain.EventCaptureDone
		}
	case domain.PhaseEchoing:
		m.cursor = m.play(out, m.capture.Samples())
		if m.cursor >= m.capture.Len() {
			ev = domain.EventEchoDone
		}
	default:
		clear(out)
	}

	m.blocks.Add(1)
	if ev != domain.EventNone {
		m.apply(ev)
	}
	return out
}

func (m *Machine) listen(in []int16) domain.Event {
	detected, err := m.classify(in)
	if err != nil {
		m.detectorErrors.Add(1)
		return domain.EventNone
	}
	if !detected {
		return domain.EventNone
	}
	m.detections.Add(1)
	return domain.EventDetected
}

// classify shields the audio path from a misbehaving detector.
func (m *Machine) classify(in []int16) (detected bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			detected, err = false, domain.ErrDetectorTransient
		}
	}()
	return m.detector.Classify(in)
}

// play copies src[cursor:] into out, zero-pads the tail and returns the
// advanced cursor clamped to len(src).
func (m *Machine) play(out, src []int16) int {
	cursor := m.cursor
	if cursor > len(src) {
		cursor = len(src)
	}
	n := copy(out, src[cursor:])
	clear(out[n:])
	return min(cursor+m.blockSize, len(src))
}

// rearm resets the detector, shielding the audio path like classify does.
func (m *Machine) rearm() {
	defer func() {
		if r := recover(); r != nil {
			m.detectorErrors.Add(1)
		}
	}()
	m.detector.Reset()
}

func (m *Machine) record(in []int16) bool {
	m.capture.Append(in)
	m.elapsed += m.blockSize

	if m.mode == domain.DeadlineWallClock {
		if m.clock().Sub(m.startedAt) >= m.deadlineTime {
			return true
		}
		if m.capture.Remaining() < m.blockSize {
			// Blocks arrived faster than real time and the buffer is full.
			m.captureFull.Add(1)
			return true
		}
		return false
	}
	return m.elapsed >= m.deadlineSamples
}

func (m *Machine) apply(ev domain.Event) {
	next := domain.Next(m.phase, ev)
	if next == m.phase {
		return
	}

	switch next {
	case domain.PhaseAnnouncing:
		m.rearm()
	case domain.PhaseIdle:
		m.rearm()
		m.cycles.Add(1)
	}

	m.phase = next
	m.entering = true
	m.published.Store(int32(next))
	m.transitions.Add(1)
}

// enter resets the state owned by the phase that starts with this block.
func (m *Machine) enter() {
	m.entering = false
	m.cursor = 0

	if m.phase == domain.PhaseCapturing {
		m.elapsed = 0
		m.capture.Reset()
		if m.mode == domain.DeadlineWallClock {
			m.startedAt = m.clock()
		}
	}
}

// Phase, Cursor and Captured read live state and must only be called from
// the goroutine driving OnBlock. Use Snapshot everywhere else.
func (m *Machine) Phase() domain.Phase { return m.phase }

// Cursor is the offset reached by the last block. After a transition it
// still holds the finished phase's value until the next block starts.

func (m *Machine) Cursor() int { return m.cursor }

func (m *Machine) Captured() []int16 { return m.capture.Samples() }

// CaptureSamples is the configured deadline in samples.
func (m *Machine) CaptureSamples() int { return m.deadlineSamples }

func (m *Machine) Snapshot() domain.Snapshot {
	phase := domain.Phase(m.published.Load())
	return domain.Snapshot{
		Phase:          phase,
		PhaseName:      phase.String(),
		Blocks:         m.blocks.Load(),
		Transitions:    m.transitions.Load(),
		Cycles:         m.cycles.Load(),
		Detections:     m.detections.Load(),
		DetectorErrors: m.detectorErrors.Load(),
		CaptureFull:    m.captureFull.Load(),
	}
}

// SamplesFor converts d to a sample count at rate, rounding up.
func SamplesFor(d time.Duration, rate int) int {
	if d <= 0 || rate <= 0 {
		return 0
	}
	n := (int64(d)*int64(rate) + int64(time.Second) - 1) / int64(time.Second)
	return int(n)
}

func roundUp(n, multiple int) int {
	if multiple <= 0 {
		return n
	}
	return (n + multiple - 1) / multiple * multiple
}
