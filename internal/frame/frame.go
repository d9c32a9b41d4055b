// Package frame defines the raw pixel buffer handed from the capture
// subsystem to the detection pipeline.
package frame

import (
	"errors"
	"sync"
)

// ErrInvalidGeometry is returned when a frame's dimensions do not describe
// its buffer.
var ErrInvalidGeometry = errors.New("invalid frame geometry")

// Raw is a borrowed pixel buffer. The pipeline reads it for the duration of
// one cycle and must call Release when done, whatever the outcome.
type Raw struct {
	Data      []byte
	Width     int
	Height    int
	Stride    int // bytes per row, may exceed Width*Channels
	Channels  int // bytes per pixel
	Timestamp int64

	releaseOnce sync.Once
	release     func()
}

// New creates a frame whose release callback runs once when Release is called.
// release may be nil.
func New(data []byte, width, height, stride, channels int, timestamp int64, release func()) *Raw {
	return &Raw{
		Data:      data,
		Width:     width,
		Height:    height,
		Stride:    stride,
		Channels:  channels,
		Timestamp: timestamp,
		release:   release,
	}
}

// Validate checks that the geometry fits the buffer.
func (f *Raw) Validate() error {
	if f.Width <= 0 || f.Height <= 0 || f.Channels <= 0 {
		return ErrInvalidGeometry
	}
	if f.Stride < f.Width*f.Channels {
		return ErrInvalidGeometry
	}
	// The last row only needs Width*Channels bytes.
	if len(f.Data) < (f.Height-1)*f.Stride+f.Width*f.Channels {
		return ErrInvalidGeometry
	}
	return nil
}

// Packed returns the pixels with row padding removed. When the buffer has
// no padding the underlying slice is returned without copying.
func (f *Raw) Packed() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	rowBytes := f.Width * f.Channels
	if f.Stride == rowBytes {
		return f.Data[:rowBytes*f.Height], nil
	}

	out := make([]byte, rowBytes*f.Height)
	for y := 0; y < f.Height; y++ {
		copy(out[y*rowBytes:(y+1)*rowBytes], f.Data[y*f.Stride:y*f.Stride+rowBytes])
	}
	return out, nil
}

// Release returns the buffer to its producer. Only the first call has an
// effect.
func (f *Raw) Release() {
	f.releaseOnce.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}
