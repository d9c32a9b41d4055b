package capture

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/bernardo/visionups/internal/frame"
)

func TestFromMat(t *testing.T) {
	mat := gocv.NewMatWithSize(4, 6, gocv.MatTypeCV8UC3)
	f, err := FromMat(mat, 42)
	if err != nil {
		t.Fatalf("FromMat() error = %v", err)
	}
	defer f.Release()

	if f.Width != 6 || f.Height != 4 || f.Channels != 3 {
		t.Errorf("FromMat() = %dx%dx%d, want 6x4x3", f.Width, f.Height, f.Channels)
	}
	if f.Timestamp != 42 {
		t.Errorf("Timestamp = %d, want 42", f.Timestamp)
	}
	if err := f.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestFromMat_UnsupportedType(t *testing.T) {
	mat := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV32FC1)
	defer mat.Close()

	if _, err := FromMat(mat, 0); err == nil {
		t.Error("FromMat() with float mat should fail")
	}
}

func TestToBGR(t *testing.T) {
	tests := []struct {
		name     string
		channels int
	}{
		{name: "gray", channels: 1},
		{name: "bgr", channels: 3},
		{name: "rgba", channels: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := SolidFrame(8, 4, tt.channels, 128)
			f := frame.New(tmpl.Data, tmpl.Width, tmpl.Height, tmpl.Stride, tmpl.Channels, 0, nil)

			bgr, err := ToBGR(f)
			if err != nil {
				t.Fatalf("ToBGR() error = %v", err)
			}
			defer bgr.Close()

			if bgr.Channels() != 3 {
				t.Errorf("Channels() = %d, want 3", bgr.Channels())
			}
			if bgr.Cols() != 8 || bgr.Rows() != 4 {
				t.Errorf("size = %dx%d, want 8x4", bgr.Cols(), bgr.Rows())
			}
		})
	}
}

func TestToBGR_UnsupportedChannels(t *testing.T) {
	f := frame.New(make([]byte, 8), 2, 2, 4, 2, 0, nil)
	if _, err := ToBGR(f); err == nil {
		t.Error("ToBGR() with 2 channels should fail")
	}
}
