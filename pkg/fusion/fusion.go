// Package fusion runs the detector over several preprocessing variants of an
// image and merges the results into one set of distinct faces.
package fusion

import (
	"errors"
	"fmt"
	"image"

	"github.com/MrCodeEU/faceroll/pkg/face"
	"github.com/MrCodeEU/faceroll/pkg/logging"
)

// DefaultOverlapThreshold is the overlap ratio above which two detections are
// treated as the same face.
const DefaultOverlapThreshold = 0.7

// Transform produces a preprocessing variant of an image. It must keep the
// image dimensions so boxes from every variant share one coordinate space.
type Transform func(img image.Image) (image.Image, error)

// Variant is one preprocessing pass.
type Variant struct {
	Method    face.Method
	Transform Transform
}

// Original is the pass over the unmodified image.
func Original() Variant {
	return Variant{Method: face.MethodOriginal}
}

// VariantError records a preprocessing pass that produced no detections
// because the transform or the detector failed.
type VariantError struct {
	Method face.Method
	Err    error
}

func (e *VariantError) Error() string {
	return fmt.Sprintf("variant %s: %v", e.Method, e.Err)
}

// Unwrap exposes both the detector failure marker and the cause.
func (e *VariantError) Unwrap() []error {
	return []error{face.ErrDetectorFailure, e.Err}
}

// Result is the outcome of fusing one image. Failures lists the variants that
// were skipped; the remaining variants still contribute faces.
type Result struct {
	Faces    []face.Face
	Failures []*VariantError
	// Pooled is the number of detections before deduplication.
	Pooled int
}

// Fuser combines a detector with an ordered list of preprocessing variants.
type Fuser struct {
	detector         face.Detector
	variants         []Variant
	overlapThreshold float64
}

// New creates a Fuser. With no variants only the original image is used.
func New(detector face.Detector, variants ...Variant) *Fuser {
	if len(variants) == 0 {
		variants = []Variant{Original()}
	}
	return &Fuser{
		detector:         detector,
		variants:         variants,
		overlapThreshold: DefaultOverlapThreshold,
	}
}

// SetOverlapThreshold changes the duplicate overlap ratio.
func (f *Fuser) SetOverlapThreshold(threshold float64) {
	f.overlapThreshold = threshold
}

// Variants returns the configured passes in order.
func (f *Fuser) Variants() []Variant {
	return f.variants
}

// DetectUniqueFaces runs every variant, pools the detections in variant order
// and drops duplicates. A nil or zero-size image yields face.ErrInvalidImage.
func (f *Fuser) DetectUniqueFaces(img image.Image) (Result, error) {
	if face.IsEmpty(img) {
		return Result{}, face.ErrInvalidImage
	}

	var (
		res    Result
		pooled []face.Face
	)
	for _, v := range f.variants {
		faces, err := f.detectVariant(img, v)
		if err != nil {
			res.Failures = append(res.Failures, &VariantError{Method: v.Method, Err: err})
			continue
		}
		pooled = append(pooled, faces...)
	}

	res.Pooled = len(pooled)
	res.Faces = Deduplicate(pooled, f.overlapThreshold)

	logging.Debugf("Fused %d detections from %d variants into %d faces",
		res.Pooled, len(f.variants)-len(res.Failures), len(res.Faces))

	return res, nil
}

func (f *Fuser) detectVariant(img image.Image, v Variant) ([]face.Face, error) {
	src := img
	if v.Transform != nil {
		out, err := v.Transform(img)
		if err != nil {
			return nil, fmt.Errorf("preprocess: %w", err)
		}
		if face.IsEmpty(out) || out.Bounds().Size() != img.Bounds().Size() {
			return nil, errors.New("preprocess changed image dimensions")
		}
		src = out
	}

	faces, err := f.detector.Detect(src)
	if err != nil {
		return nil, err
	}

	for i := range faces {
		if faces[i].Method == "" {
			faces[i].Method = v.Method
		}
	}
	return faces, nil
}

// Deduplicate keeps faces in order, dropping any face whose overlap ratio
// with an already kept face exceeds threshold. First seen wins.
func Deduplicate(faces []face.Face, threshold float64) []face.Face {
	unique := make([]face.Face, 0, len(faces))
	for _, candidate := range faces {
		duplicate := false
		for _, kept := range unique {
			if face.OverlapRatio(candidate.BoundingBox, kept.BoundingBox) > threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			unique = append(unique, candidate)
		}
	}
	return unique
}
