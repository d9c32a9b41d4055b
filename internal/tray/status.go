package tray

import (
	"errors"
	"fmt"

	"github.com/bernardo/visionups/internal/detector"
)

// LowFPS is the frame rate below which the status is flagged as slow.
const LowFPS = 10

// Status is what the tray displays.
type Status struct {
	FPS     float64
	Objects int
	// Published is false until the first detection cycle completes.
	Published bool
	Err       error
}

// Title formats the status line, e.g. "FPS: 14 | Objects: 3".
func Title(s Status) string {
	switch {
	case errors.Is(s.Err, detector.ErrModelNotFound):
		return "ERROR: model not found"
	case s.Err != nil:
		return "ERROR: " + s.Err.Error()
	case !s.Published:
		return "Ready. Looking for objects..."
	}

	title := fmt.Sprintf("FPS: %d | Objects: %d", int(s.FPS), s.Objects)
	if s.FPS < LowFPS {
		title = "⚠ " + title
	}
	return title
}
