package capture

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/bernardo/visionups/internal/frame"
)

// FromMat wraps an 8-bit Mat as a frame without copying. Ownership of the
// Mat passes to the frame: releasing the frame closes it.
func FromMat(mat gocv.Mat, timestamp int64) (*frame.Raw, error) {
	if mat.Type() != gocv.MatTypeCV8UC1 && mat.Type() != gocv.MatTypeCV8UC3 && mat.Type() != gocv.MatTypeCV8UC4 {
		return nil, fmt.Errorf("unsupported mat type %v", mat.Type())
	}

	data, err := mat.DataPtrUint8()
	if err != nil {
		return nil, fmt.Errorf("access mat data: %w", err)
	}

	return frame.New(data, mat.Cols(), mat.Rows(), mat.Step(), mat.Channels(), timestamp, func() {
		mat.Close()
	}), nil
}

// ToBGR builds a 3-channel BGR Mat from a frame. Frames with 3 channels
// are taken to be BGR, 4 channels RGBA and 1 channel grayscale. The caller
// must close the returned Mat.
func ToBGR(f *frame.Raw) (gocv.Mat, error) {
	pixels, err := f.Packed()
	if err != nil {
		return gocv.Mat{}, err
	}

	var mt gocv.MatType
	var code gocv.ColorConversionCode
	switch f.Channels {
	case 1:
		mt, code = gocv.MatTypeCV8UC1, gocv.ColorGrayToBGR
	case 3:
		mt = gocv.MatTypeCV8UC3
	case 4:
		mt, code = gocv.MatTypeCV8UC4, gocv.ColorRGBAToBGR
	default:
		return gocv.Mat{}, fmt.Errorf("unsupported channel count %d", f.Channels)
	}

	src, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, pixels)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("wrap frame: %w", err)
	}
	if f.Channels == 3 {
		// NewMatFromBytes may share pixels with the frame, which is
		// released before the caller is done with the Mat.
		bgr := src.Clone()
		src.Close()
		return bgr, nil
	}
	defer src.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(src, &bgr, code)
	return bgr, nil
}
