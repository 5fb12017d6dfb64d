// Package annotate draws detection records onto images for visual review.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/MrCodeEU/faceroll/pkg/gallery"
	"github.com/MrCodeEU/faceroll/pkg/report"
)

const (
	boxThickness = 3
	fontFace     = gocv.FontHersheySimplex
	fontScale    = 0.6
	fontWeight   = 1
	labelPadding = 5
	lineSpacing  = 2
	unknownLabel = "Unknown"
)

var (
	matchedColor   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	unmatchedColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	black          = color.RGBA{A: 255}
	white          = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// DefaultPrefix is prepended to the source file name.
const DefaultPrefix = "annotated_"

// Annotator writes annotated copies of input images into a directory.
type Annotator struct {
	dir     string
	prefix  string
	quality int
}

// New creates an Annotator writing to dir with the given file name prefix and
// JPEG quality.
func New(dir, prefix string, quality int) *Annotator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if quality < 1 || quality > 100 {
		quality = 95
	}
	return &Annotator{dir: dir, prefix: prefix, quality: quality}
}

// OutputPath returns where the annotated copy of srcPath is written.
func (a *Annotator) OutputPath(srcPath string) string {
	return filepath.Join(a.dir, a.prefix+filepath.Base(srcPath))
}

// Label returns the two label lines for a record: the display name (or
// "Unknown") and the confidence with two decimals.
func Label(r report.DetectionRecord) (name, confidence string) {
	name = unknownLabel
	if r.Matched() {
		name = gallery.DisplayName(r.IdentityKey())
	}
	return name, fmt.Sprintf("%.2f", r.Confidence)
}

// Annotate draws records onto img and writes it next to the other annotated
// images. It returns the written path.
func (a *Annotator) Annotate(srcPath string, img image.Image, records []report.DetectionRecord) (string, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return "", fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return "", fmt.Errorf("empty image: %s", srcPath)
	}

	for _, r := range records {
		draw(&mat, r)
	}

	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	out := a.OutputPath(srcPath)
	if ok := gocv.IMWriteWithParams(out, mat, []int{int(gocv.IMWriteJpegQuality), a.quality}); !ok {
		return "", fmt.Errorf("failed to write %s", out)
	}
	return out, nil
}

func draw(mat *gocv.Mat, r report.DetectionRecord) {
	boxColor, textColor := unmatchedColor, white
	if r.Matched() {
		boxColor, textColor = matchedColor, black
	}

	b := r.BoundingBox
	half := boxThickness / 2
	gocv.Rectangle(mat, image.Rect(b[0]-half, b[1]-half, b[2]+half, b[3]+half), boxColor, boxThickness)

	name, conf := Label(r)
	nameSize := gocv.GetTextSize(name, fontFace, fontScale, fontWeight)
	confSize := gocv.GetTextSize(conf, fontFace, fontScale, fontWeight)

	textW := max(nameSize.X, confSize.X)
	textH := nameSize.Y + confSize.Y + labelPadding

	x := b[0]
	y := max(0, b[1]-textH-2*labelPadding)

	gocv.Rectangle(mat,
		image.Rect(x-labelPadding, y-labelPadding, x+textW+2*labelPadding, y+textH+labelPadding),
		boxColor, -1)

	// PutText anchors at the baseline.
	gocv.PutText(mat, name, image.Pt(x, y+nameSize.Y), fontFace, fontScale, textColor, fontWeight)
	gocv.PutText(mat, conf, image.Pt(x, y+nameSize.Y+lineSpacing+confSize.Y), fontFace, fontScale, textColor, fontWeight)
}
