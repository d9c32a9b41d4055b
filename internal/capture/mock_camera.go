package capture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bernardo/visionups/internal/frame"
)

// MockFrame is a frame template played back by MockCamera.
type MockFrame struct {
	Data     []byte
	Width    int
	Height   int
	Stride   int
	Channels int
}

// SolidFrame returns a packed frame template filled with value.
func SolidFrame(width, height, channels int, value byte) MockFrame {
	data := make([]byte, width*height*channels)
	for i := range data {
		data[i] = value
	}
	return MockFrame{Data: data, Width: width, Height: height, Stride: width * channels, Channels: channels}
}

// MockCamera plays back frame templates for testing. It tracks frames that
// have been read but not yet released.
type MockCamera struct {
	frames      []MockFrame
	index       int
	loop        bool
	mu          sync.Mutex
	running     bool
	fps         int
	read        atomic.Int64
	outstanding atomic.Int64
}

func NewMockCamera(frames []MockFrame, loop bool) *MockCamera {
	return &MockCamera{
		frames: frames,
		loop:   loop,
		fps:    DefaultFPS,
	}
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.index = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *MockCamera) ReadFrame() (*frame.Raw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}

	if len(c.frames) == 0 {
		return nil, fmt.Errorf("no frames available: %w", ErrFrameRead)
	}

	if c.index >= len(c.frames) {
		if c.loop {
			c.index = 0
		} else {
			return nil, fmt.Errorf("no more frames: %w", ErrFrameRead)
		}
	}

	// Copy the template so the pipeline never aliases it
	tmpl := c.frames[c.index]
	data := make([]byte, len(tmpl.Data))
	copy(data, tmpl.Data)
	c.index++

	c.read.Add(1)
	c.outstanding.Add(1)
	return frame.New(data, tmpl.Width, tmpl.Height, tmpl.Stride, tmpl.Channels, time.Now().UnixMilli(), func() {
		c.outstanding.Add(-1)
	}), nil
}

func (c *MockCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetFrames replaces the frame sequence
func (c *MockCamera) SetFrames(frames []MockFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.index = 0
}

// Reset restarts playback from the beginning
func (c *MockCamera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
}

// FramesRead returns the number of frames handed out so far.
func (c *MockCamera) FramesRead() int64 {
	return c.read.Load()
}

// Outstanding returns the number of frames read but not yet released.
func (c *MockCamera) Outstanding() int64 {
	return c.outstanding.Load()
}
