package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YuNet output layout, one row per face:
// 0-3 box (x, y, w, h), 4-13 five landmark (x, y) pairs, 14 score.
const (
	yunetCols      = 15
	yunetLandmarks = 4
	yunetScore     = 14
)

// YuNetDetector finds faces and their five landmarks with OpenCV's
// FaceDetectorYN. The input size follows the frames it is given.
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // Protects inference
	size     image.Point
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Check if model file exists first
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	size := image.Pt(cfg.InputWidth, cfg.InputHeight)
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",                             // No config file needed for ONNX
		size,                           // Initial input size, updated per frame
		float32(cfg.ConfidenceThresh),  // Score threshold
		float32(cfg.NMSThresh),         // NMS threshold
		5000,                           // Top K
		int(gocv.NetBackendDefault),    // Backend
		int(gocv.NetTargetCPU),         // Target
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
		size:     size,
	}, nil
}

// DetectMat finds faces in a BGR frame.
func (d *YuNetDetector) DetectMat(img gocv.Mat) ([]Face, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if size := image.Pt(img.Cols(), img.Rows()); size != d.size {
		d.detector.SetInputSize(size)
		d.size = size
	}

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(img, &faces)
	return parseFaces(faces)
}

// parseFaces converts the detector's CV_32F output, one face per row.
func parseFaces(rows gocv.Mat) ([]Face, error) {
	if rows.Empty() {
		return nil, nil
	}
	if rows.Cols() < yunetCols {
		return nil, fmt.Errorf("unexpected detector output: %d columns", rows.Cols())
	}

	out := make([]Face, 0, rows.Rows())
	for r := 0; r < rows.Rows(); r++ {
		f := Face{
			X:          float64(rows.GetFloatAt(r, 0)),
			Y:          float64(rows.GetFloatAt(r, 1)),
			W:          float64(rows.GetFloatAt(r, 2)),
			H:          float64(rows.GetFloatAt(r, 3)),
			Confidence: float64(rows.GetFloatAt(r, yunetScore)),
		}
		for i := 0; i < NumLandmarks; i++ {
			f.Landmarks[i] = Point{
				X: float64(rows.GetFloatAt(r, yunetLandmarks+2*i)),
				Y: float64(rows.GetFloatAt(r, yunetLandmarks+2*i+1)),
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

var _ Detector = (*YuNetDetector)(nil)
