package detector

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/bernardo/visionups/internal/capture"
	"github.com/bernardo/visionups/internal/codec"
	"github.com/bernardo/visionups/internal/frame"
)

// ONNXDetector runs a YOLOv8 ONNX model through the OpenCV DNN module.
type ONNXDetector struct {
	cfg Config
	mu  sync.Mutex
	net gocv.Net
}

// NewONNXDetector loads the model at cfg.ModelPath. It returns
// ErrModelNotFound when the file does not exist.
func NewONNXDetector(cfg Config) (*ONNXDetector, error) {
	cfg = cfg.withDefaults()

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
		}
		return nil, fmt.Errorf("stat model: %w", err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("load model %s: network is empty", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &ONNXDetector{cfg: cfg, net: net}, nil
}

// InputSize returns the network input size, which is also the coordinate
// space of reported boxes.
func (d *ONNXDetector) InputSize() int {
	return d.cfg.InputSize
}

// Detect runs the network on f and returns the surviving boxes after NMS.
func (d *ONNXDetector) Detect(f *frame.Raw) (string, error) {
	img, err := capture.ToBGR(f)
	if err != nil {
		return "", fmt.Errorf("convert frame: %w", err)
	}
	defer img.Close()

	size := d.cfg.InputSize
	// Scale to [0,1], resize without cropping and swap BGR to RGB.
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, d.cfg.InputName)
	out := d.net.Forward(d.cfg.OutputName)
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 {
		return "", fmt.Errorf("unexpected output shape %v", dims)
	}
	rows, cols := dims[1], dims[2]

	data, err := out.DataPtrFloat32()
	if err != nil {
		return "", fmt.Errorf("read output: %w", err)
	}

	cands := collectCandidates(data, rows, cols, float32(d.cfg.ConfThreshold))
	if len(cands) == 0 {
		return "", nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.box
		scores[i] = c.score
	}
	indices := gocv.NMSBoxes(boxes, scores, float32(d.cfg.ConfThreshold), float32(d.cfg.NMSThreshold))

	return codec.Encode(toDetections(cands, indices)), nil
}

// Close releases the network.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
