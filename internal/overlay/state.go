package overlay

import (
	"sync"
	"sync/atomic"
)

// Snapshot is one published set of detections.
type Snapshot struct {
	Detections []DisplayDetection
	Version    uint64
}

// State holds the most recently published detections. Publish and Current
// may be called from different goroutines; readers never see a partially
// written set.
type State struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64

	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewState returns a State with an empty published set.
func NewState() *State {
	s := &State{subs: make(map[chan struct{}]struct{})}
	s.current.Store(&Snapshot{Detections: []DisplayDetection{}})
	return s
}

// Publish replaces the published set. The slice is copied, so the caller
// may reuse it.
func (s *State) Publish(dets []DisplayDetection) {
	cp := make([]DisplayDetection, len(dets))
	copy(cp, dets)

	s.current.Store(&Snapshot{
		Detections: cp,
		Version:    s.version.Add(1),
	})
	s.notify()
}

// Current returns the latest published detections. The returned slice is
// shared between readers and must not be modified.
func (s *State) Current() []DisplayDetection {
	return s.current.Load().Detections
}

// Snapshot returns the latest published set together with its version.
// Version 0 means nothing has been published yet.
func (s *State) Snapshot() Snapshot {
	return *s.current.Load()
}

// Subscribe returns a channel that receives a signal after each publish.
// Signals are coalesced: a slow reader sees at least one signal after the
// latest publish, not one per publish. Call the returned func to stop.
func (s *State) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

func (s *State) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
