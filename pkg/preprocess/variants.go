package preprocess

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/MrCodeEU/faceroll/pkg/face"
	"github.com/MrCodeEU/faceroll/pkg/fusion"
)

// Enhancement factors of the enhanced variant.
const (
	EnhanceBrightness = 1.2
	EnhanceContrast   = 1.5
	EnhanceSharpness  = 1.3
)

// DefaultVariants is the default detection pass order.
var DefaultVariants = []face.Method{
	face.MethodOriginal,
	face.MethodEnhanced,
	face.MethodHistogramEqualized,
}

// Variants returns the fusion variants for the given method names, in order.
func Variants(names []string) ([]fusion.Variant, error) {
	variants := make([]fusion.Variant, 0, len(names))
	for _, name := range names {
		switch face.Method(name) {
		case face.MethodOriginal:
			variants = append(variants, fusion.Original())
		case face.MethodEnhanced:
			variants = append(variants, fusion.Variant{Method: face.MethodEnhanced, Transform: Enhance})
		case face.MethodHistogramEqualized:
			variants = append(variants, fusion.Variant{Method: face.MethodHistogramEqualized, Transform: EqualizeHistogram})
		default:
			return nil, fmt.Errorf("unknown preprocessing variant: %s", name)
		}
	}
	return variants, nil
}

// Enhance raises brightness, then contrast around the mean gray level, then
// sharpness against a 3x3 smoothed copy.
func Enhance(img image.Image) (image.Image, error) {
	return apply(img, func(src gocv.Mat, dst *gocv.Mat) error {
		bright := gocv.NewMat()
		defer bright.Close()
		src.ConvertToWithParams(&bright, gocv.MatTypeCV8UC3, EnhanceBrightness, 0)

		gray := gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(bright, &gray, gocv.ColorBGRToGray)
		mean := gocv.Mean(gray).Val1

		// out = mean + c*(x - mean)
		contrasted := gocv.NewMat()
		defer contrasted.Close()
		bright.ConvertToWithParams(&contrasted, gocv.MatTypeCV8UC3,
			EnhanceContrast, float32(mean*(1-EnhanceContrast)))

		kernel := smoothKernel()
		defer kernel.Close()
		smooth := gocv.NewMat()
		defer smooth.Close()
		gocv.Filter2D(contrasted, &smooth, gocv.MatType(-1), kernel, image.Pt(-1, -1), 0, gocv.BorderReplicate)

		// out = smooth + s*(x - smooth)
		gocv.AddWeighted(contrasted, EnhanceSharpness, smooth, 1-EnhanceSharpness, 0, dst)
		return nil
	})
}

// smoothKernel is the 3x3 smoothing filter with a weighted centre.
func smoothKernel() gocv.Mat {
	k := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			k.SetFloatAt(r, c, 1.0/13)
		}
	}
	k.SetFloatAt(1, 1, 5.0/13)
	return k
}

// EqualizeHistogram equalizes the grayscale histogram and returns it as a
// three-channel image.
func EqualizeHistogram(img image.Image) (image.Image, error) {
	return apply(img, func(src gocv.Mat, dst *gocv.Mat) error {
		gray := gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

		equalized := gocv.NewMat()
		defer equalized.Close()
		gocv.EqualizeHist(gray, &equalized)

		gocv.CvtColor(equalized, dst, gocv.ColorGrayToBGR)
		return nil
	})
}
