package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/bernardo/visionups/internal/codec"
	"github.com/bernardo/visionups/internal/frame"
	"github.com/bernardo/visionups/internal/overlay"
)

var (
	// ErrAlreadyRunning is returned when Run is called on a running pipeline.
	ErrAlreadyRunning = errors.New("pipeline already running")
	// ErrDetectTimeout is recorded when the detector exceeds the configured timeout.
	ErrDetectTimeout = errors.New("detector timed out")
)

// Detector runs inference on a frame and returns the result in the
// codec wire format.
type Detector interface {
	Detect(f *frame.Raw) (string, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(f *frame.Raw) (string, error)

// Detect calls fn(f).
func (fn DetectorFunc) Detect(f *frame.Raw) (string, error) {
	return fn(f)
}

// DisplaySize is the pixel size of the surface detections are drawn on.
type DisplaySize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Config holds pipeline options.
type Config struct {
	// Mapper converts model-space boxes to display space.
	Mapper overlay.Mapper
	// Display is the initial display size. It may be zero until the render
	// surface is laid out.
	Display DisplaySize
	// DetectTimeout bounds how long a cycle waits for the detector.
	// Zero means wait indefinitely.
	DetectTimeout time.Duration
	// Clock is the time source for frame rate windows. Defaults to the wall clock.
	Clock clock.Clock
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Captured         uint64  `json:"captured"`
	Admitted         uint64  `json:"admitted"`
	Dropped          uint64  `json:"dropped"`
	Completed        uint64  `json:"completed"`
	DetectorFailures uint64  `json:"detector_failures"`
	DecodeSkips      uint64  `json:"decode_skips"`
	FPS              float64 `json:"fps"`
	Busy             bool    `json:"busy"`
}

// Pipeline admits captured frames through a Gate and processes them on a
// single worker goroutine started by Run.
type Pipeline struct {
	detector Detector
	gate     Gate
	rate     *RateMonitor
	state    *overlay.State
	clock    clock.Clock
	timeout  time.Duration

	mapper  atomic.Pointer[overlay.Mapper]
	display atomic.Pointer[DisplaySize]

	// handoff orders Submit's send against the shutdown drain.
	handoff sync.Mutex
	work    chan *frame.Raw
	done    chan struct{}
	running atomic.Bool

	captured    atomic.Uint64
	admitted    atomic.Uint64
	dropped     atomic.Uint64
	completed   atomic.Uint64
	failures    atomic.Uint64
	decodeSkips atomic.Uint64
}

// New creates a pipeline that publishes into state.
func New(d Detector, state *overlay.State, cfg Config) *Pipeline {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	p := &Pipeline{
		detector: d,
		rate:     NewRateMonitor(clk.Now().UnixMilli()),
		state:    state,
		clock:    clk,
		timeout:  cfg.DetectTimeout,
		// One slot is enough: the gate admits a frame only after the worker
		// has taken the previous one.
		work: make(chan *frame.Raw, 1),
		done: make(chan struct{}),
	}

	mapper := cfg.Mapper
	if mapper.ModelWidth <= 0 || mapper.ModelHeight <= 0 {
		mapper = overlay.NewMapper(overlay.DefaultModelSize)
	}
	p.mapper.Store(&mapper)

	display := cfg.Display
	p.display.Store(&display)

	return p
}

// Submit offers a captured frame to the pipeline. If a frame is already in
// flight the new frame is released immediately and Submit returns false.
// Submit never blocks on the detector.
func (p *Pipeline) Submit(f *frame.Raw) bool {
	p.captured.Add(1)

	if !p.gate.TryAdmit() {
		p.dropped.Add(1)
		f.Release()
		return false
	}

	p.handoff.Lock()
	defer p.handoff.Unlock()

	select {
	case <-p.done:
		p.gate.Release()
		p.dropped.Add(1)
		f.Release()
		return false
	default:
	}

	p.admitted.Add(1)
	p.work <- f
	return true
}

// Run processes admitted frames until ctx is cancelled. It returns
// ctx.Err() on shutdown.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return ctx.Err()
		case f := <-p.work:
			p.cycle(f)
		}
	}
}

// shutdown stops admission and gives back a frame that was admitted but
// never picked up. Holding handoff guarantees no Submit sends after the drain.
func (p *Pipeline) shutdown() {
	p.handoff.Lock()
	defer p.handoff.Unlock()

	close(p.done)
	select {
	case f := <-p.work:
		p.gate.Release()
		f.Release()
	default:
	}
}

// cycle runs one admitted frame through detection, decoding, mapping and
// publishing. The gate and then the frame are released on every path,
// unless a timed-out detector call still owns them.
func (p *Pipeline) cycle(f *frame.Raw) {
	owned := true
	defer func() {
		if r := recover(); r != nil {
			p.failures.Add(1)
			log.Printf("Recovered from panic in detection cycle: %v", r)
		}
		if owned {
			p.gate.Release()
			f.Release()
		}
	}()

	text, abandoned, err := p.detect(f)
	if abandoned {
		owned = false
	}
	if err != nil {
		// Leave the previous overlay in place so transient failures don't flicker.
		p.failures.Add(1)
		log.Printf("Error running detector: %v", err)
		return
	}

	dets, report := codec.DecodeWithReport(text)
	if report.Skipped > 0 {
		p.decodeSkips.Add(uint64(report.Skipped))
	}

	size := p.DisplaySize()
	display := p.Mapper().MapToDisplay(dets, size.Width, size.Height)

	p.rate.RecordFrameCompletion(p.clock.Now().UnixMilli())
	p.completed.Add(1)
	p.state.Publish(display)
}

type detectResult struct {
	text string
	err  error
}

// Detector call states used to hand ownership of a timed-out frame to the
// goroutine still running the detector.
const (
	callPending int32 = iota
	callDelivered
	callAbandoned
)

// detect calls the detector, honouring the configured timeout. When the
// call times out, abandoned is true and the detector goroutine releases the
// gate and frame once the call finally returns.
func (p *Pipeline) detect(f *frame.Raw) (text string, abandoned bool, err error) {
	if p.timeout <= 0 {
		text, err = p.callDetector(f)
		return text, false, err
	}

	var state atomic.Int32
	results := make(chan detectResult, 1)

	go func() {
		text, err := p.callDetector(f)
		if state.CompareAndSwap(callPending, callDelivered) {
			results <- detectResult{text: text, err: err}
			return
		}
		p.gate.Release()
		f.Release()
	}()

	timer := p.clock.Timer(p.timeout)
	defer timer.Stop()

	select {
	case r := <-results:
		return r.text, false, r.err
	case <-timer.C:
		if state.CompareAndSwap(callPending, callAbandoned) {
			return "", true, fmt.Errorf("%w after %s", ErrDetectTimeout, p.timeout)
		}
		// The result arrived as the timer fired.
		r := <-results
		return r.text, false, r.err
	}
}

func (p *Pipeline) callDetector(f *frame.Raw) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return p.detector.Detect(f)
}

// SetDisplaySize updates the size of the render surface. It takes effect
// from the next cycle.
func (p *Pipeline) SetDisplaySize(size DisplaySize) {
	p.display.Store(&size)
}

// DisplaySize returns the current render surface size.
func (p *Pipeline) DisplaySize() DisplaySize {
	return *p.display.Load()
}

// SetScaleMode switches how model space is fitted to the display.
func (p *Pipeline) SetScaleMode(mode overlay.ScaleMode) {
	m := *p.mapper.Load()
	m.Mode = mode
	p.mapper.Store(&m)
}

// Mapper returns the current coordinate mapper.
func (p *Pipeline) Mapper() overlay.Mapper {
	return *p.mapper.Load()
}

// Overlay returns the state the pipeline publishes into.
func (p *Pipeline) Overlay() *overlay.State {
	return p.state
}

// FPS returns the completed-frame rate of the previous one-second window.
func (p *Pipeline) FPS() float64 {
	return p.rate.Rate()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Captured:         p.captured.Load(),
		Admitted:         p.admitted.Load(),
		Dropped:          p.dropped.Load(),
		Completed:        p.completed.Load(),
		DetectorFailures: p.failures.Load(),
		DecodeSkips:      p.decodeSkips.Load(),
		FPS:              p.rate.Rate(),
		Busy:             p.gate.Busy(),
	}
}
