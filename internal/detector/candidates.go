package detector

import (
	"image"

	"github.com/bernardo/visionups/internal/codec"
)

// candidate is a box that passed the confidence threshold, before NMS.
type candidate struct {
	classID int
	score   float32
	box     image.Rectangle
}

// collectCandidates scans a YOLOv8 output tensor laid out as rows x cols,
// where rows is 4 box coordinates followed by one score per class and each
// column is one prediction. Only the best class of each column is kept, and
// only if its score exceeds threshold.
func collectCandidates(data []float32, rows, cols int, threshold float32) []candidate {
	if rows <= 4 || cols <= 0 || len(data) < rows*cols {
		return nil
	}

	var out []candidate
	for i := 0; i < cols; i++ {
		var best float32
		bestClass := -1
		for c := 4; c < rows; c++ {
			if s := data[c*cols+i]; s > best {
				best = s
				bestClass = c - 4
			}
		}
		if best <= threshold {
			continue
		}

		cx := data[i]
		cy := data[cols+i]
		w := data[2*cols+i]
		h := data[3*cols+i]

		left := int(cx - w/2)
		top := int(cy - h/2)
		out = append(out, candidate{
			classID: bestClass,
			score:   best,
			box:     image.Rect(left, top, left+int(w), top+int(h)),
		})
	}
	return out
}

// toDetections converts the candidates selected by indices back to
// centre/size form.
func toDetections(cands []candidate, indices []int) []codec.Detection {
	dets := make([]codec.Detection, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(cands) {
			continue
		}
		c := cands[idx]
		w := float64(c.box.Dx())
		h := float64(c.box.Dy())
		dets = append(dets, codec.Detection{
			ClassID: c.classID,
			Score:   float64(c.score),
			CenterX: float64(c.box.Min.X) + w/2,
			CenterY: float64(c.box.Min.Y) + h/2,
			Width:   w,
			Height:  h,
		})
	}
	return dets
}
