// Package detection provides face and landmark detection using computer vision
package detection

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// Point is an image position in pixels.
type Point struct {
	X, Y float64
}

// Landmark indices in Face.Landmarks, in YuNet output order.
const (
	RightEye = iota
	LeftEye
	NoseTip
	RightMouth
	LeftMouth
	NumLandmarks
)

// Face represents a detected face
type Face struct {
	X, Y       float64 // Top-left corner in pixels
	W, H       float64 // Width and height in pixels
	Landmarks  [NumLandmarks]Point
	Confidence float64 // Detection confidence (0-1)
}

// Center returns the center point of the bounding box
func (f Face) Center() (x, y float64) {
	return f.X + f.W/2, f.Y + f.H/2
}

// Area returns the area of the bounding box
func (f Face) Area() float64 {
	return f.W * f.H
}

// MouthGap returns the vertical distance in pixels from the nose tip to the
// midpoint of the mouth corners. It grows as the jaw drops.
func (f Face) MouthGap() float64 {
	nose := f.Landmarks[NoseTip]
	r, l := f.Landmarks[RightMouth], f.Landmarks[LeftMouth]
	midY := (r.Y + l.Y) / 2
	return math.Abs(midY - nose.Y)
}

// Detector is the interface for face detection backends
type Detector interface {
	// DetectMat finds faces and their landmarks in a BGR frame
	DetectMat(img gocv.Mat) ([]Face, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	NMSThresh        float64 // Non-maximum suppression threshold
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// Validate checks the detector configuration.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("model path is required")
	}
	if c.ConfidenceThresh < 0 || c.ConfidenceThresh > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %v", c.ConfidenceThresh)
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return fmt.Errorf("input size must be positive, got %dx%d", c.InputWidth, c.InputHeight)
	}
	return nil
}

// SelectBest picks the best face from multiple detections
// Priority: confidence * 0.7 + relative area * 0.3
func SelectBest(faces []Face) *Face {
	if len(faces) == 0 {
		return nil
	}

	if len(faces) == 1 {
		return &faces[0]
	}

	// Find max area for normalization
	maxArea := 0.0
	for _, f := range faces {
		if f.Area() > maxArea {
			maxArea = f.Area()
		}
	}

	bestScore := -1.0
	var best *Face

	for i := range faces {
		score := faces[i].Confidence * 0.7
		if maxArea > 0 {
			score += (faces[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &faces[i]
		}
	}

	return best
}
