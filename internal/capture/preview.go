package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/bernardo/visionups/internal/frame"
)

// Preview keeps the most recent captured frame as a JPEG for MJPEG
// clients. Frames are only encoded while someone is watching.
type Preview struct {
	mu       sync.Mutex
	jpeg     []byte
	version  uint64
	watchers map[chan struct{}]struct{}

	encode func(f *frame.Raw) ([]byte, error)
}

// NewPreview creates an empty Preview that encodes with OpenCV.
func NewPreview() *Preview {
	return &Preview{
		watchers: make(map[chan struct{}]struct{}),
		encode:   EncodeJPEG,
	}
}

// EncodeJPEG encodes a frame as JPEG.
func EncodeJPEG(f *frame.Raw) ([]byte, error) {
	bgr, err := ToBGR(f)
	if err != nil {
		return nil, err
	}
	defer bgr.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, bgr)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close; keep a Go copy.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Update encodes f as the latest preview image when there are watchers.
// The frame is not released.
func (p *Preview) Update(f *frame.Raw) error {
	if !p.Watched() {
		return nil
	}

	data, err := p.encode(f)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.jpeg = data
	p.version++
	for ch := range p.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Latest returns the most recent JPEG and its version. The slice must not be
// modified.
func (p *Preview) Latest() ([]byte, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jpeg, p.version
}

// Watch registers a watcher. The returned channel receives a signal after
// each update; signals coalesce. Call cancel to unregister.
func (p *Preview) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	p.mu.Lock()
	p.watchers[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, ch)
			p.mu.Unlock()
		})
	}
}

// Watched reports whether any watcher is registered.
func (p *Preview) Watched() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watchers) > 0
}
