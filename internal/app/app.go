// Package app wires camera capture, detection and the overlay state into a
// running application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/bernardo/visionups/internal/capture"
	"github.com/bernardo/visionups/internal/detector"
	"github.com/bernardo/visionups/internal/overlay"
	"github.com/bernardo/visionups/internal/pipeline"
	"github.com/bernardo/visionups/internal/store"
)

// DefaultSampleInterval is how often a running session records throughput.
const DefaultSampleInterval = 5 * time.Second

// ErrDisplaySize is returned for negative display dimensions.
var ErrDisplaySize = errors.New("display size must not be negative")

// Config holds configuration options for the application.
type Config struct {
	Store    *store.Store
	CameraID int
	// Camera overrides the device camera, mainly for tests.
	Camera capture.Camera
	// Detector overrides the ONNX detector built from DetectorConfig.
	Detector       detector.Detector
	DetectorConfig detector.Config

	ModelSize     int
	Display       pipeline.DisplaySize
	ScaleMode     overlay.ScaleMode
	DetectTimeout time.Duration

	// Preview enables the JPEG preview slot served over MJPEG.
	Preview        bool
	SampleInterval time.Duration
	Clock          clock.Clock
}

// Status is a point-in-time summary for status renderers.
type Status struct {
	Running bool    `json:"running"`
	Enabled bool    `json:"enabled"`
	FPS     float64 `json:"fps"`
	Objects int     `json:"objects"`
	Error   string  `json:"error,omitempty"`
}

// run is one Start/Stop cycle.
type run struct {
	pipeline *pipeline.Pipeline
	cancel   context.CancelFunc
	group    *errgroup.Group
	session  *store.Session
}

// App is the main application that orchestrates capture and detection.
type App struct {
	config   Config
	camera   capture.Camera
	detector detector.Detector
	initErr  error
	state    *overlay.State
	preview  *capture.Preview
	clock    clock.Clock

	enabled bool
	display pipeline.DisplaySize
	mode    overlay.ScaleMode
	current *run
	last    pipeline.Stats
	mu      sync.RWMutex

	// lifecycle serialises Start, Stop and Close.
	lifecycle sync.Mutex
}

// New creates a new App instance with the given configuration. A detector
// that fails to initialise is recorded and reported by InitError; the App
// remains usable for serving status.
func New(config Config) *App {
	if config.ModelSize <= 0 {
		config.ModelSize = overlay.DefaultModelSize
	}
	if config.SampleInterval <= 0 {
		config.SampleInterval = DefaultSampleInterval
	}
	if config.ScaleMode == "" {
		config.ScaleMode = overlay.ModeStretch
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	a := &App{
		config:  config,
		camera:  config.Camera,
		state:   overlay.NewState(),
		clock:   clk,
		enabled: true,
		display: config.Display,
		mode:    config.ScaleMode,
	}

	if a.camera == nil {
		a.camera = capture.NewCamera(config.CameraID)
	}
	if config.Preview {
		a.preview = capture.NewPreview()
	}

	if config.Detector != nil {
		a.detector = config.Detector
	} else if d, err := detector.NewONNXDetector(config.DetectorConfig); err == nil {
		a.detector = d
		log.Printf("Loaded detection model %s", config.DetectorConfig.ModelPath)
	} else {
		a.initErr = err
		log.Printf("Detector not available: %v", err)
	}

	a.loadSettings()
	return a
}

// loadSettings applies persisted runtime settings over the configured ones.
func (a *App) loadSettings() {
	if a.config.Store == nil {
		return
	}

	settings, err := a.config.Store.Settings().All()
	if err != nil {
		log.Printf("Failed to load settings: %v", err)
		return
	}

	if v, ok := settings[store.SettingEnabled]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			a.enabled = b
		}
	}
	if v, ok := settings[store.SettingScaleMode]; ok {
		if mode, err := overlay.ParseScaleMode(v); err == nil {
			a.mode = mode
		}
	}
	w, wok := settings[store.SettingDisplayWidth]
	h, hok := settings[store.SettingDisplayHeight]
	if wok && hok {
		width, werr := strconv.ParseFloat(w, 64)
		height, herr := strconv.ParseFloat(h, 64)
		if werr == nil && herr == nil && width >= 0 && height >= 0 {
			a.display = pipeline.DisplaySize{Width: width, Height: height}
		}
	}
}

func (a *App) saveSetting(key, value string) {
	if a.config.Store == nil {
		return
	}
	if err := a.config.Store.Settings().Set(key, value); err != nil {
		log.Printf("Failed to save setting %s: %v", key, err)
	}
}

// SetEnabled enables or disables detection. Frames captured while disabled
// are released without being submitted.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()
	a.saveSetting(store.SettingEnabled, strconv.FormatBool(enabled))
}

// IsEnabled returns whether detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetDetector sets the detector implementation used by the next Start and
// clears any initialisation error.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
	a.initErr = nil
}

// Detector returns the detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// InitError returns the detector initialisation error, if any.
func (a *App) InitError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.initErr
}

// Start opens the camera and begins the detection pipeline.
func (a *App) Start() error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.RLock()
	running := a.current != nil
	d := a.detector
	initErr := a.initErr
	display := a.display
	mode := a.mode
	a.mu.RUnlock()

	// Don't start if already running
	if running {
		return nil
	}
	if initErr != nil {
		return fmt.Errorf("detector unavailable: %w", initErr)
	}
	if d == nil {
		return errors.New("no detector configured")
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	mapper := overlay.NewMapper(a.config.ModelSize)
	mapper.Mode = mode
	p := pipeline.New(d, a.state, pipeline.Config{
		Mapper:        mapper,
		Display:       display,
		DetectTimeout: a.config.DetectTimeout,
		Clock:         a.clock,
	})

	r := &run{pipeline: p, session: a.startSession()}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	r.cancel = cancel
	r.group = group

	group.Go(func() error { return p.Run(gctx) })
	group.Go(func() error { return a.captureLoop(gctx, p) })
	if r.session != nil {
		group.Go(func() error { return a.sampleLoop(gctx, p, r.session.ID) })
	}

	a.mu.Lock()
	a.current = r
	a.mu.Unlock()

	log.Println("Detection pipeline started")
	return nil
}

func (a *App) startSession() *store.Session {
	if a.config.Store == nil {
		return nil
	}

	sess := &store.Session{
		CameraID:  a.config.CameraID,
		ModelPath: a.config.DetectorConfig.ModelPath,
	}
	if err := a.config.Store.Sessions().Create(sess); err != nil {
		log.Printf("Failed to create session: %v", err)
		return nil
	}
	return sess
}

// Stop halts the detection pipeline and closes the camera. The detector is
// kept for a later Start.
func (a *App) Stop() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	r := a.current
	a.current = nil
	a.mu.Unlock()

	if r == nil {
		return
	}

	r.cancel()
	if err := r.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Detection pipeline exited with error: %v", err)
	}

	// Close the camera
	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}

	stats := r.pipeline.Stats()
	a.mu.Lock()
	a.last = stats
	a.mu.Unlock()

	if r.session != nil {
		r.session.FramesCaptured = stats.Captured
		r.session.FramesAdmitted = stats.Admitted
		r.session.FramesDropped = stats.Dropped
		r.session.FramesCompleted = stats.Completed
		r.session.DetectorFailures = stats.DetectorFailures
		r.session.DecodeSkips = stats.DecodeSkips
		r.session.LastFPS = stats.FPS
		if err := a.config.Store.Sessions().Finish(r.session); err != nil {
			log.Printf("Failed to finish session %s: %v", r.session.ID, err)
		}
	}

	log.Println("Detection pipeline stopped")
}

// Close stops the pipeline and releases the detector.
func (a *App) Close() error {
	a.Stop()

	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	d := a.detector
	a.detector = nil
	a.mu.Unlock()

	if d == nil {
		return nil
	}
	return d.Close()
}

// IsRunning reports whether the pipeline is running.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current != nil
}

func (a *App) running() *pipeline.Pipeline {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return nil
	}
	return a.current.pipeline
}

// Overlay returns the overlay state. It outlives individual runs.
func (a *App) Overlay() *overlay.State {
	return a.state
}

// Preview returns the JPEG preview slot, or nil when previews are disabled.
func (a *App) Preview() *capture.Preview {
	return a.preview
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// FPS returns the completed-frame rate, or zero when stopped.
func (a *App) FPS() float64 {
	if p := a.running(); p != nil {
		return p.FPS()
	}
	return 0
}

// Stats returns the counters of the running pipeline, or of the last run
// when stopped.
func (a *App) Stats() pipeline.Stats {
	if p := a.running(); p != nil {
		return p.Stats()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Status returns a summary for status renderers.
func (a *App) Status() Status {
	s := Status{
		Running: a.IsRunning(),
		Enabled: a.IsEnabled(),
		FPS:     a.FPS(),
		Objects: len(a.state.Current()),
	}
	if err := a.InitError(); err != nil {
		s.Error = err.Error()
	}
	return s
}

// SetDisplaySize updates the render surface size, applies it to the running
// pipeline and persists it.
func (a *App) SetDisplaySize(size pipeline.DisplaySize) error {
	if size.Width < 0 || size.Height < 0 {
		return ErrDisplaySize
	}

	a.mu.Lock()
	a.display = size
	a.mu.Unlock()

	if p := a.running(); p != nil {
		p.SetDisplaySize(size)
	}

	a.saveSetting(store.SettingDisplayWidth, strconv.FormatFloat(size.Width, 'f', -1, 64))
	a.saveSetting(store.SettingDisplayHeight, strconv.FormatFloat(size.Height, 'f', -1, 64))
	return nil
}

// DisplaySize returns the render surface size.
func (a *App) DisplaySize() pipeline.DisplaySize {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.display
}

// SetScaleMode switches how model space is fitted to the display.
func (a *App) SetScaleMode(mode overlay.ScaleMode) {
	a.mu.Lock()
	a.mode = mode
	a.mu.Unlock()

	if p := a.running(); p != nil {
		p.SetScaleMode(mode)
	}
	a.saveSetting(store.SettingScaleMode, string(mode))
}

// ScaleMode returns the current scale mode.
func (a *App) ScaleMode() overlay.ScaleMode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mode
}
