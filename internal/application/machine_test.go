package application_test

import (
	"errors"
	"math/rand"
	"slices"
	"testing"
	"time"

	"echoloop/internal/application"
	"echoloop/internal/domain"
)

type mockDetector struct {
	fireOn map[int]bool
	failOn map[int]bool
	panics bool
	always bool
	calls  int
	resets int

	resetPanics bool
}

func (m *mockDetector) Classify(_ []int16) (bool, error) {
	i := m.calls
	m.calls++
	if m.panics {
		panic("detector exploded")
	}
	if m.failOn[i] {
		return false, domain.ErrDetectorTransient
	}
	return m.always || m.fireOn[i], nil
}

func (m *mockDetector) Reset() {
	m.resets++
	if m.resetPanics {
		panic("reset exploded")
	}
}

// everyNth fires on every nth call without allocating.
type everyNth struct {
	n     int
	calls int
}

func (e *everyNth) Classify(_ []int16) (bool, error) {
	e.calls++
	return e.calls%e.n == 0, nil
}

func (e *everyNth) Reset() {}

func newMachine(t *testing.T, captureSamples int, det application.Detector, chime []int16) *application.Machine {
	t.Helper()
	m, err := application.NewMachine(application.MachineConfig{
		SampleRate:      1000,
		BlockSize:       4,
		CaptureDuration: time.Duration(captureSamples) * time.Millisecond,
	}, det, chime)
	if err != nil {
		t.Fatalf("creating machine: %v", err)
	}
	return m
}

func block(vals ...int16) []int16 {
	b := make([]int16, 4)
	copy(b, vals)
	return b
}

func run(m *application.Machine, in []int16) []int16 {
	out := make([]int16, 4)
	return slices.Clone(m.OnBlock(in, 4, out))
}

func TestMachine_ChimeTailPadded(t *testing.T) {
	det := &mockDetector{fireOn: map[int]bool{0: true}}
	m := newMachine(t, 8, det, []int16{10, 20, 30})

	run(m, block())
	if m.Phase() != domain.PhaseAnnouncing {
		t.Fatalf("phase: got %v, want announcing", m.Phase())
	}

	got := run(m, block())
	if want := []int16{10, 20, 30, 0}; !slices.Equal(got, want) {
		t.Errorf("chime block: got %v, want %v", got, want)
	}
	if m.Phase() != domain.PhaseCapturing {
		t.Errorf("phase: got %v, want capturing", m.Phase())
	}
	if m.Cursor() != 3 {
		t.Errorf("cursor after final chime block: got %d, want 3", m.Cursor())
	}
}

func TestMachine_ChimeCursorEndsAtLength(t *testing.T) {
	det := &mockDetector{fireOn: map[int]bool{0: true}}
	chime := []int16{1, 2, 3, 4, 5, 6}
	m := newMachine(t, 8, det, chime)

	run(m, block())
	got := run(m, block())
	if !slices.Equal(got, []int16{1, 2, 3, 4}) {
		t.Errorf("first chime block: got %v", got)
	}
	if m.Cursor() != 4 || m.Phase() != domain.PhaseAnnouncing {
		t.Fatalf("after first block: cursor %d phase %v", m.Cursor(), m.Phase())
	}

	out := make([]int16, 4)
	tail := m.OnBlock(block(), 4, out)
	if !slices.Equal(tail, []int16{5, 6, 0, 0}) {
		t.Errorf("tail block: got %v", tail)
	}
	if len(tail) != 4 {
		t.Errorf("tail length: got %d, want 4", len(tail))
	}
	if m.Phase() != domain.PhaseCapturing || m.Cursor() != len(chime) {
		t.Errorf("after tail: phase %v cursor %d, want capturing at %d", m.Phase(), m.Cursor(), len(chime))
	}

	// The first capture block starts from a fresh cursor and buffer.
	run(m, block(7, 7, 7, 7))
	if m.Cursor() != 0 || !slices.Equal(m.Captured(), []int16{7, 7, 7, 7}) {
		t.Errorf("first capture block: cursor %d captured %v", m.Cursor(), m.Captured())
	}
}

func TestMachine_CaptureThenEcho(t *testing.T) {
	det := &mockDetector{fireOn: map[int]bool{0: true}}
	m := newMachine(t, 8, det, []int16{10, 20, 30})

	run(m, block())
	run(m, block())
	if m.Phase() != domain.PhaseCapturing {
		t.Fatalf("phase: got %v, want capturing", m.Phase())
	}

	if got := run(m, block(1, 2, 3, 4)); !slices.Equal(got, block()) {
		t.Errorf("capture output not silent: %v", got)
	}
	if m.Phase() != domain.PhaseCapturing {
		t.Fatalf("capture ended early")
	}
	run(m, block(5, 6, 7, 8))
	if m.Phase() != domain.PhaseEchoing {
		t.Fatalf("phase: got %v, want echoing", m.Phase())
	}
	if want := []int16{1, 2, 3, 4, 5, 6, 7, 8}; !slices.Equal(m.Captured(), want) {
		t.Errorf("captured: got %v, want %v", m.Captured(), want)
	}

	if got := run(m, block(9, 9, 9, 9)); !slices.Equal(got, []int16{1, 2, 3, 4}) {
		t.Errorf("echo block 1: got %v", got)
	}
	if got := run(m, block(9, 9, 9, 9)); !slices.Equal(got, []int16{5, 6, 7, 8}) {
		t.Errorf("echo block 2: got %v", got)
	}
	if m.Phase() != domain.PhaseIdle {
		t.Errorf("phase: got %v, want idle", m.Phase())
	}

	snap := m.Snapshot()
	if snap.Cycles != 1 || snap.Transitions != 4 || snap.Detections != 1 || snap.Blocks != 6 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.PhaseName != "idle" {
		t.Errorf("phase name: got %q", snap.PhaseName)
	}
}

func TestMachine_CaptureRoundsUpToBlock(t *testing.T) {
	det := &mockDetector{fireOn: map[int]bool{0: true}}
	m := newMachine(t, 10, det, nil)

	run(m, block())
	run(m, block())
	blocks := 0
	for m.Phase() == domain.PhaseCapturing {
		run(m, block(7, 7, 7, 7))
		blocks++
	}
	if blocks != 3 {
		t.Errorf("capture blocks: got %d, want 3", blocks)
	}
	if len(m.Captured()) != 12 {
		t.Errorf("captured length: got %d, want 12", len(m.Captured()))
	}
	if m.CaptureSamples() != 10 {
		t.Errorf("capture samples: got %d, want 10", m.CaptureSamples())
	}
}

func TestMachine_DetectionTakesEffectNextBlock(t *testing.T) {
	det := &mockDetector{fireOn: map[int]bool{3: true}}
	m := newMachine(t, 8, det, []int16{10, 20, 30})

	for k := 0; k < 3; k++ {
		run(m, block(100, 100, 100, 100))
		if m.Phase() != domain.PhaseIdle {
			t.Fatalf("block %d: phase %v, want idle", k, m.Phase())
		}
	}

	got := run(m, block(100, 100, 100, 100))
	if !slices.Equal(got, block()) {
		t.Errorf("detection block output: got %v, want silence", got)
	}
	if m.Phase() != domain.PhaseAnnouncing {
		t.Errorf("phase after detection: got %v, want announcing", m.Phase())
	}
	if got := run(m, block()); !slices.Equal(got, []int16{10, 20, 30, 0}) {
		t.Errorf("block k+1: got %v", got)
	}
}

func TestMachine_DetectorRearmed(t *testing.T) {
	det := &mockDetector{fireOn: map[int]bool{0: true}}
	m := newMachine(t, 4, det, []int16{1})

	for i := 0; i < 4; i++ {
		run(m, block())
	}
	if m.Phase() != domain.PhaseIdle {
		t.Fatalf("phase: got %v, want idle", m.Phase())
	}
	if det.resets != 2 {
		t.Errorf("resets: got %d, want 2 (announce entry and idle entry)", det.resets)
	}
	if det.calls != 1 {
		t.Errorf("detector consulted outside idle: %d calls", det.calls)
	}
}

func TestMachine_DetectorFaultsKeepIdle(t *testing.T) {
	tests := []struct {
		name string
		det  *mockDetector
	}{
		{name: "transient error", det: &mockDetector{failOn: map[int]bool{0: true, 1: true, 2: true}}},
		{name: "panic", det: &mockDetector{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(t, 8, tt.det, []int16{1, 2})

			for i := 0; i < 3; i++ {
				got := run(m, block(500, 500, 500, 500))
				if !slices.Equal(got, block()) {
					t.Errorf("block %d output: got %v, want silence", i, got)
				}
			}
			if m.Phase() != domain.PhaseIdle {
				t.Errorf("phase: got %v, want idle", m.Phase())
			}
			if n := m.Snapshot().DetectorErrors; n != 3 {
				t.Errorf("detector errors: got %d, want 3", n)
			}
		})
	}
}

func TestMachine_DetectorResetPanicIsContained(t *testing.T) {
	det := &mockDetector{fireOn: map[int]bool{0: true}, resetPanics: true}
	m := newMachine(t, 4, det, []int16{1})

	for i := 0; i < 4; i++ {
		run(m, block())
	}
	if m.Phase() != domain.PhaseIdle {
		t.Fatalf("phase: got %v, want idle", m.Phase())
	}
	if det.resets != 2 {
		t.Errorf("resets: got %d, want 2", det.resets)
	}
	snap := m.Snapshot()
	if snap.DetectorErrors != 2 || snap.Cycles != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestMachine_EmptyChime(t *testing.T) {
	det := &mockDetector{fireOn: map[int]bool{0: true}}
	m := newMachine(t, 4, det, nil)

	run(m, block())
	got := run(m, block())
	if !slices.Equal(got, block()) {
		t.Errorf("empty chime block: got %v, want silence", got)
	}
	if m.Phase() != domain.PhaseCapturing {
		t.Errorf("phase: got %v, want capturing", m.Phase())
	}
}

func TestMachine_OutputLength(t *testing.T) {
	det := &mockDetector{always: true}
	m := newMachine(t, 8, det, []int16{1, 2, 3, 4, 5})

	for i := 0; i < 20; i++ {
		out := make([]int16, 8)
		frames := 1 + i%4
		got := m.OnBlock(block(1, 1, 1, 1), frames, out)
		if len(got) != frames {
			t.Fatalf("block %d in %v: got %d samples, want %d", i, m.Phase(), len(got), frames)
		}
	}

	out := make([]int16, 2)
	if got := m.OnBlock(block(), 4, out); len(got) != 2 {
		t.Errorf("frames beyond capacity: got %d, want 2", len(got))
	}
	if got := m.OnBlock(block(), -1, out); len(got) != 0 {
		t.Errorf("negative frames: got %d, want 0", len(got))
	}
}

// refModel replays the transition rules independently of Machine.
type refModel struct {
	phase           domain.Phase
	cursor, elapsed int
	chimeLen        int
	captureLen      int
	deadline        int
}

func (r *refModel) step(detected bool) {
	switch r.phase {
	case domain.PhaseIdle:
		if detected {
			r.phase, r.cursor = domain.PhaseAnnouncing, 0
		}
	case domain.PhaseAnnouncing:
		r.cursor += 4
		if r.cursor >= r.chimeLen {
			r.phase, r.elapsed, r.captureLen = domain.PhaseCapturing, 0, 0
		}
	case domain.PhaseCapturing:
		r.elapsed += 4
		r.captureLen += 4
		if r.elapsed >= r.deadline {
			r.phase, r.cursor = domain.PhaseEchoing, 0
		}
	case domain.PhaseEchoing:
		r.cursor += 4
		if r.cursor >= r.captureLen {
			r.phase = domain.PhaseIdle
		}
	}
}

func TestMachine_MatchesReferenceModel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	fires := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		if rng.Intn(10) == 0 {
			fires[i] = true
		}
	}

	det := &mockDetector{fireOn: fires}
	m := newMachine(t, 10, det, []int16{1, 2, 3, 4, 5, 6, 7})
	ref := &refModel{chimeLen: 7, deadline: 10}

	for i := 0; i < 2000; i++ {
		call := det.calls
		run(m, block(int16(i), 1, 2, 3))
		ref.step(ref.phase == domain.PhaseIdle && fires[call])

		if m.Phase() != ref.phase {
			t.Fatalf("block %d: machine %v, reference %v", i, m.Phase(), ref.phase)
		}
		if m.Snapshot().Phase != m.Phase() {
			t.Fatalf("block %d: snapshot %v disagrees with live %v", i, m.Snapshot().Phase, m.Phase())
		}
	}
	if m.Snapshot().Cycles == 0 {
		t.Error("expected at least one completed cycle")
	}
}

func TestMachine_WallClockDeadline(t *testing.T) {
	start := time.Unix(0, 0)
	now := start
	clock := func() time.Time {
		now = now.Add(2 * time.Millisecond)
		return now
	}

	det := &mockDetector{fireOn: map[int]bool{0: true}}
	m, err := application.NewMachine(application.MachineConfig{
		SampleRate:      1000,
		BlockSize:       4,
		CaptureDuration: 10 * time.Millisecond,
		DeadlineMode:    domain.DeadlineWallClock,
		Clock:           clock,
	}, det, nil)
	if err != nil {
		t.Fatalf("creating machine: %v", err)
	}

	run(m, block())
	run(m, block())
	blocks := 0
	for m.Phase() == domain.PhaseCapturing {
		run(m, block(3, 3, 3, 3))
		blocks++
	}
	if blocks != 5 {
		t.Errorf("capture blocks: got %d, want 5", blocks)
	}
	if len(m.Captured()) != 20 {
		t.Errorf("captured: got %d samples, want 20", len(m.Captured()))
	}
	if n := m.Snapshot().CaptureFull; n != 0 {
		t.Errorf("capture full: got %d, want 0", n)
	}
}

func TestMachine_WallClockFullBufferEndsCapture(t *testing.T) {
	frozen := time.Unix(0, 0)
	det := &mockDetector{fireOn: map[int]bool{0: true}}
	m, err := application.NewMachine(application.MachineConfig{
		SampleRate:      1000,
		BlockSize:       4,
		CaptureDuration: 10 * time.Millisecond,
		DeadlineMode:    domain.DeadlineWallClock,
		Clock:           func() time.Time { return frozen },
	}, det, nil)
	if err != nil {
		t.Fatalf("creating machine: %v", err)
	}

	run(m, block())
	run(m, block())
	for i := 0; i < 100 && m.Phase() == domain.PhaseCapturing; i++ {
		run(m, block(3, 3, 3, 3))
	}
	if m.Phase() != domain.PhaseEchoing {
		t.Fatalf("phase: got %v, want echoing", m.Phase())
	}
	// 12 samples for the deadline plus 16 of head room.
	if len(m.Captured()) != 28 {
		t.Errorf("captured: got %d samples, want 28", len(m.Captured()))
	}
	if n := m.Snapshot().CaptureFull; n != 1 {
		t.Errorf("capture full: got %d, want 1", n)
	}
}

func TestMachine_NoAllocations(t *testing.T) {
	m := newMachine(t, 10, &everyNth{n: 3}, []int16{1, 2, 3, 4, 5})
	in := block(1, 2, 3, 4)
	out := make([]int16, 4)

	allocs := testing.AllocsPerRun(200, func() {
		for i := 0; i < 16; i++ {
			m.OnBlock(in, 4, out)
		}
	})
	if allocs != 0 {
		t.Errorf("OnBlock allocated %.1f times per run", allocs)
	}
	if m.Snapshot().Cycles == 0 {
		t.Error("expected the allocation run to complete cycles")
	}
}

func TestNewMachine_Invalid(t *testing.T) {
	det := &mockDetector{}
	tests := []struct {
		name string
		cfg  application.MachineConfig
		det  application.Detector
	}{
		{name: "zero rate", cfg: application.MachineConfig{BlockSize: 4, CaptureDuration: time.Second}, det: det},
		{name: "zero block", cfg: application.MachineConfig{SampleRate: 1000, CaptureDuration: time.Second}, det: det},
		{name: "zero capture", cfg: application.MachineConfig{SampleRate: 1000, BlockSize: 4}, det: det},
		{name: "unknown mode", cfg: application.MachineConfig{SampleRate: 1000, BlockSize: 4, CaptureDuration: time.Second, DeadlineMode: "frames"}, det: det},
		{name: "no detector", cfg: application.MachineConfig{SampleRate: 1000, BlockSize: 4, CaptureDuration: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := application.NewMachine(tt.cfg, tt.det, nil)
			if !errors.Is(err, domain.ErrConfig) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}

func TestSamplesFor(t *testing.T) {
	tests := []struct {
		d    time.Duration
		rate int
		want int
	}{
		{d: 3 * time.Second, rate: 16000, want: 48000},
		{d: time.Millisecond, rate: 44100, want: 45},
		{d: 0, rate: 16000, want: 0},
		{d: time.Second, rate: 0, want: 0},
	}

	for _, tt := range tests {
		if got := application.SamplesFor(tt.d, tt.rate); got != tt.want {
			t.Errorf("SamplesFor(%v, %d): got %d, want %d", tt.d, tt.rate, got, tt.want)
		}
	}
}
