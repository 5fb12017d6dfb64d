// Package preprocess implements the image transforms applied before
// detection: the fusion variants and the enrollment augmentations. Images are
// processed as BGR OpenCV matrices.
package preprocess

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/MrCodeEU/faceroll/pkg/face"
)

// toMat converts img to an 8-bit 3-channel BGR matrix.
func toMat(img image.Image) (gocv.Mat, error) {
	if face.IsEmpty(img) {
		return gocv.NewMat(), face.ErrInvalidImage
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return mat, fmt.Errorf("failed to convert image: %w", err)
	}
	if mat.Empty() {
		return mat, face.ErrInvalidImage
	}
	return mat, nil
}

// fromMat converts a BGR matrix back to an image.
func fromMat(mat gocv.Mat) (image.Image, error) {
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert matrix: %w", err)
	}
	return img, nil
}

// apply runs fn on the BGR matrix of img and returns the result as an image.
func apply(img image.Image, fn func(src gocv.Mat, dst *gocv.Mat) error) (image.Image, error) {
	src, err := toMat(img)
	defer src.Close()
	if err != nil {
		return nil, err
	}

	dst := gocv.NewMat()
	defer dst.Close()

	if err := fn(src, &dst); err != nil {
		return nil, err
	}
	if dst.Empty() {
		return nil, fmt.Errorf("transform produced an empty image")
	}
	return fromMat(dst)
}
