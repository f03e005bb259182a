package audio

import (
	"context"
	"sync"

	"echoloop/internal/domain"
)

// SimEngine replays scripted input blocks through a handler and records the
// output. Driver faults can be injected per block.
type SimEngine struct {
	blockSize int
	blocks    [][]int16
	statuses  map[int]domain.StreamStatus

	mu       sync.Mutex
	outputs  [][]int16
	running  bool
	cancel   context.CancelFunc
	finished chan struct{}
	done     chan struct{}
	counters Counters
}

func NewSimEngine(blockSize int, blocks [][]int16) *SimEngine {
	return &SimEngine{
		blockSize: blockSize,
		blocks:    blocks,
		statuses:  make(map[int]domain.StreamStatus),
		done:      make(chan struct{}),
	}
}

// WithStatus reports status for the given block index.
func (s *SimEngine) WithStatus(block int, status domain.StreamStatus) *SimEngine {
	s.statuses[block] = status
	return s
}

func (s *SimEngine) Name() string {
	return "sim"
}

func (s *SimEngine) Start(ctx context.Context, handler domain.BlockHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.finished != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.finished = make(chan struct{})
	s.running = true

	go func() {
		defer close(s.finished)
		if s.drive(runCtx, handler) {
			close(s.done)
		}
	}()
	return nil
}

// Drive runs every block through handler on the calling goroutine.
func (s *SimEngine) Drive(handler domain.BlockHandler) {
	s.drive(context.Background(), handler)
}

func (s *SimEngine) drive(ctx context.Context, handler domain.BlockHandler) bool {
	in := make([]int16, s.blockSize)
	out := make([]int16, s.blockSize)

	for i, block := range s.blocks {
		if ctx.Err() != nil {
			return false
		}
		clear(in)
		copy(in, block)
		Deliver(handler, in, out, s.statuses[i], &s.counters)

		s.mu.Lock()
		s.outputs = append(s.outputs, append([]int16(nil), out...))
		s.mu.Unlock()
	}
	return true
}

func (s *SimEngine) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, finished := s.cancel, s.finished
	s.mu.Unlock()

	cancel()
	<-finished
	return nil
}

func (s *SimEngine) Done() <-chan struct{} {
	return s.done
}

func (s *SimEngine) Stats() domain.StreamStats {
	return s.counters.Snapshot()
}

// Outputs returns a copy of every output block delivered so far.
func (s *SimEngine) Outputs() [][]int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]int16(nil), s.outputs...)
}
