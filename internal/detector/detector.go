// Package detector provides object detection backends that report results in
// the codec wire format.
package detector

import (
	"errors"

	"github.com/bernardo/visionups/internal/frame"
)

// ErrModelNotFound is returned when the model file does not exist.
var ErrModelNotFound = errors.New("model not found")

// Detector defines the interface for object detection implementations.
type Detector interface {
	// Detect runs inference on a frame and returns the detections encoded
	// as "cls,score,cx,cy,w,h|" entries in model input space.
	// Returns an empty string if nothing is detected.
	Detect(f *frame.Raw) (string, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for object detection.
type Config struct {
	// ModelPath is the path to a YOLOv8 ONNX export.
	ModelPath string

	// InputSize is the square network input size in pixels (default: 320).
	InputSize int

	// ConfThreshold is the minimum class score for a candidate (0.0-1.0).
	ConfThreshold float64

	// NMSThreshold is the IoU above which overlapping boxes are suppressed.
	NMSThreshold float64

	// InputName and OutputName are the network layer names.
	InputName  string
	OutputName string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelPath:     "yolov8n.onnx",
		InputSize:     320,
		ConfThreshold: 0.25,
		NMSThreshold:  0.45,
		InputName:     "images",
		OutputName:    "output0",
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ModelPath == "" {
		c.ModelPath = d.ModelPath
	}
	if c.InputSize <= 0 {
		c.InputSize = d.InputSize
	}
	if c.ConfThreshold <= 0 {
		c.ConfThreshold = d.ConfThreshold
	}
	if c.NMSThreshold <= 0 {
		c.NMSThreshold = d.NMSThreshold
	}
	if c.InputName == "" {
		c.InputName = d.InputName
	}
	if c.OutputName == "" {
		c.OutputName = d.OutputName
	}
	return c
}
