// Package overlay turns model-space detections into display-space boxes and
// hands the latest set from the processing path to render sinks.
package overlay

import (
	"fmt"
	"math"
	"strings"

	"github.com/bernardo/visionups/internal/catalog"
	"github.com/bernardo/visionups/internal/codec"
)

// DefaultModelSize is the side of the square model coordinate space.
const DefaultModelSize = 320

// ScaleMode selects how model space is fitted onto the display.
type ScaleMode string

const (
	// ModeStretch scales each axis independently. Boxes are distorted when
	// the display aspect ratio differs from the model's.
	ModeStretch ScaleMode = "stretch"
	// ModeLetterbox scales both axes by the same factor and centres the
	// model square on the display.
	ModeLetterbox ScaleMode = "letterbox"
)

// ParseScaleMode parses a mode name. The empty string selects ModeStretch.
func ParseScaleMode(s string) (ScaleMode, error) {
	switch ScaleMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStretch:
		return ModeStretch, nil
	case ModeLetterbox:
		return ModeLetterbox, nil
	default:
		return "", fmt.Errorf("unknown scale mode %q", s)
	}
}

// Rect is an axis-aligned rectangle in display pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// DisplayDetection is a detection ready to be drawn.
type DisplayDetection struct {
	Rect    Rect    `json:"rect"`
	Caption string  `json:"caption"`
	ClassID int     `json:"class_id"`
	Score   float64 `json:"score"`
}

// Mapper maps model-space boxes into display space.
type Mapper struct {
	ModelWidth  float64
	ModelHeight float64
	Mode        ScaleMode
}

// NewMapper returns a stretch-mode mapper for a square model space of the
// given size.
func NewMapper(modelSize float64) Mapper {
	return Mapper{ModelWidth: modelSize, ModelHeight: modelSize, Mode: ModeStretch}
}

// MapToDisplay converts detections for a display of the given size.
// A zero display dimension yields zero-area rectangles. Detections with a
// non-finite field are dropped.
func (m Mapper) MapToDisplay(dets []codec.Detection, displayWidth, displayHeight float64) []DisplayDetection {
	scaleX, scaleY, offsetX, offsetY := m.transform(displayWidth, displayHeight)

	out := make([]DisplayDetection, 0, len(dets))
	for _, d := range dets {
		if !finite(d) {
			continue
		}
		halfW, halfH := d.Width/2, d.Height/2
		out = append(out, DisplayDetection{
			Rect: Rect{
				Left:   (d.CenterX-halfW)*scaleX + offsetX,
				Top:    (d.CenterY-halfH)*scaleY + offsetY,
				Right:  (d.CenterX+halfW)*scaleX + offsetX,
				Bottom: (d.CenterY+halfH)*scaleY + offsetY,
			},
			Caption: Caption(d.ClassID, d.Score),
			ClassID: d.ClassID,
			Score:   d.Score,
		})
	}
	return out
}

func finite(d codec.Detection) bool {
	for _, v := range [...]float64{d.Score, d.CenterX, d.CenterY, d.Width, d.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (m Mapper) transform(displayWidth, displayHeight float64) (scaleX, scaleY, offsetX, offsetY float64) {
	if m.ModelWidth <= 0 || m.ModelHeight <= 0 {
		return 0, 0, 0, 0
	}

	scaleX = displayWidth / m.ModelWidth
	scaleY = displayHeight / m.ModelHeight

	if m.Mode == ModeLetterbox {
		s := math.Min(scaleX, scaleY)
		offsetX = (displayWidth - m.ModelWidth*s) / 2
		offsetY = (displayHeight - m.ModelHeight*s) / 2
		scaleX, scaleY = s, s
	}
	return scaleX, scaleY, offsetX, offsetY
}

// Caption formats the label for a detection, e.g. "Worker 87%".
func Caption(classID int, score float64) string {
	return fmt.Sprintf("%s %d%%", catalog.Label(classID), int(math.Round(score*100)))
}
