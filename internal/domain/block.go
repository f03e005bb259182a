package domain

// BlockHandler consumes one captured block and fills one output block.
// in and out are only valid for the duration of the call.
type BlockHandler interface {
	OnBlock(in []int16, frames int, out []int16) []int16
}

// StreamStatus carries the driver's per-block timing flags.
type StreamStatus uint8

const (
	StatusInputUnderflow StreamStatus = 1 << iota
	StatusInputOverflow
	StatusOutputUnderflow
	StatusOutputOverflow
)

// StreamStats are cumulative engine counters.
type StreamStats struct {
	Blocks           uint64 `json:"blocks"`
	InputUnderflows  uint64 `json:"input_underflows"`
	InputOverflows   uint64 `json:"input_overflows"`
	OutputUnderflows uint64 `json:"output_underflows"`
	OutputOverflows  uint64 `json:"output_overflows"`
}

// Snapshot is a published view of the phase machine, safe to read from any
// goroutine.
type Snapshot struct {
	Phase          Phase  `json:"-"`
	PhaseName      string `json:"phase"`
	Blocks         uint64 `json:"blocks"`
	Transitions    uint64 `json:"transitions"`
	Cycles         uint64 `json:"cycles"`
	Detections     uint64 `json:"detections"`
	DetectorErrors uint64 `json:"detector_errors"`
	// CaptureFull counts wall-clock captures ended by a full buffer before
	// the deadline elapsed.
	CaptureFull    uint64 `json:"capture_full"`
}

// Status is what the appliance reports to its operators.
type Status struct {
	Engine  string      `json:"engine"`
	Running bool        `json:"running"`
	Machine Snapshot    `json:"machine"`
	Stream  StreamStats `json:"stream"`
}
