package domain

type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseAnnouncing
	PhaseCapturing
	PhaseEchoing

	numPhases
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAnnouncing:
		return "announcing"
	case PhaseCapturing:
		return "capturing"
	case PhaseEchoing:
		return "echoing"
	default:
		return "unknown"
	}
}

// Event is what a single block can produce for the phase it ran in.
type Event uint8

const (
	EventNone Event = iota
	EventDetected
	EventChimeDone
	EventCaptureDone
	EventEchoDone

	numEvents
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventDetected:
		return "detected"
	case EventChimeDone:
		return "chime_done"
	case EventCaptureDone:
		return "capture_done"
	case EventEchoDone:
		return "echo_done"
	default:
		return "unknown"
	}
}

// transitions maps phase x event to the next phase. Events that do not
// belong to a phase leave it where it is.
var transitions = [numPhases][numEvents]Phase{
	PhaseIdle: {
		EventNone:        PhaseIdle,
		EventDetected:    PhaseAnnouncing,
		EventChimeDone:   PhaseIdle,
		EventCaptureDone: PhaseIdle,
		EventEchoDone:    PhaseIdle,
	},
	PhaseAnnouncing: {
		EventNone:        PhaseAnnouncing,
		EventDetected:    PhaseAnnouncing,
		EventChimeDone:   PhaseCapturing,
		EventCaptureDone: PhaseAnnouncing,
		EventEchoDone:    PhaseAnnouncing,
	},
	PhaseCapturing: {
		EventNone:        PhaseCapturing,
		EventDetected:    PhaseCapturing,
		EventChimeDone:   PhaseCapturing,
		EventCaptureDone: PhaseEchoing,
		EventEchoDone:    PhaseCapturing,
	},
	PhaseEchoing: {
		EventNone:        PhaseEchoing,
		EventDetected:    PhaseEchoing,
		EventChimeDone:   PhaseEchoing,
		EventCaptureDone: PhaseEchoing,
		EventEchoDone:    PhaseIdle,
	},
}

// Next returns the phase that follows p when e occurs.
func Next(p Phase, e Event) Phase {
	if p < 0 || p >= numPhases || e >= numEvents {
		return p
	}
	return transitions[p][e]
}

// DeadlineMode selects how the capture phase decides it is done.
type DeadlineMode string

const (
	DeadlineSamples   DeadlineMode = "samples"
	DeadlineWallClock DeadlineMode = "wallclock"
)
