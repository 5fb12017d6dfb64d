// Package face holds the model-independent types shared by detection,
// matching and enrollment: embeddings, bounding boxes and detected faces.
package face

import (
	"errors"
	"image"
)

// ErrInvalidImage is returned when an image cannot be decoded or has no pixels.
var ErrInvalidImage = errors.New("invalid image")

// ErrDetectorFailure is returned when the external detector fails on one input.
var ErrDetectorFailure = errors.New("detector failure")

// Method names the preprocessing variant a detection was found under.
type Method string

const (
	MethodOriginal           Method = "original"
	MethodEnhanced           Method = "enhanced"
	MethodHistogramEqualized Method = "histogram_equalized"
)

// Face is a single face returned by a Detector.
type Face struct {
	BoundingBox BoundingBox
	Embedding   Embedding
	Method      Method
}

// Detector is the external face detection and embedding capability.
// Implementations may return an empty slice when no face is present.
type Detector interface {
	Detect(img image.Image) ([]Face, error)
}

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(img image.Image) ([]Face, error)

// Detect calls f(img).
func (f DetectorFunc) Detect(img image.Image) ([]Face, error) {
	return f(img)
}

// Largest returns the index of the face with the largest bounding box area,
// or -1 when faces is empty. Earlier faces win ties.
func Largest(faces []Face) int {
	best := -1
	bestArea := -1.0
	for i, f := range faces {
		if a := f.BoundingBox.Area(); a > bestArea {
			best = i
			bestArea = a
		}
	}
	return best
}

// IsEmpty reports whether img is nil or has zero width or height.
func IsEmpty(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	return b.Dx() <= 0 || b.Dy() <= 0
}
