package application

import "echoloop/internal/domain"

// Recorder receives periodic machine and stream snapshots, e.g. for metrics.
type Recorder interface {
	Observe(machine domain.Snapshot, stream domain.StreamStats)
}

type NoopRecorder struct{}

func (n *NoopRecorder) Observe(_ domain.Snapshot, _ domain.StreamStats) {}
