package visualize

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"sort"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MrCodeEU/faceroll/pkg/face"
	"github.com/MrCodeEU/faceroll/pkg/gallery"
)

// MinSamples is the smallest sample count that is plotted. Fewer samples do
// not show any structure.
const MinSamples = 6

const (
	width       = 1200
	height      = 800
	margin      = 70
	legendWidth = 220
	pointRadius = 5
	title       = "Face Embeddings Clustering Visualization"
)

// palette is the tab10 color cycle.
var palette = []color.RGBA{
	{31, 119, 180, 255},
	{255, 127, 14, 255},
	{44, 160, 44, 255},
	{214, 39, 40, 255},
	{148, 103, 189, 255},
	{140, 86, 75, 255},
	{227, 119, 194, 255},
	{127, 127, 127, 255},
	{188, 189, 34, 255},
	{23, 190, 207, 255},
}

// ShouldRender reports whether n samples are enough for a plot.
func ShouldRender(n int) bool {
	return n >= MinSamples
}

// WriteFile renders the plot to a PNG file at path.
func WriteFile(path string, samples []face.Embedding, labels []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVisualization, err)
	}
	if err := Render(f, samples, labels); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrVisualization, err)
	}
	return nil
}

// Render draws one point per sample, colored by label, and encodes the plot
// as PNG.
func Render(w io.Writer, samples []face.Embedding, labels []string) error {
	if len(samples) != len(labels) {
		return fmt.Errorf("%w: %d samples but %d labels", ErrVisualization, len(samples), len(labels))
	}
	points, err := Project(samples)
	if err != nil {
		return err
	}

	identities := uniqueSorted(labels)
	colorOf := make(map[string]color.RGBA, len(identities))
	for i, id := range identities {
		colorOf[id] = palette[i%len(palette)]
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	plot := image.Rect(margin, margin, width-legendWidth, height-margin)
	drawFrame(img, plot)

	minX, maxX, minY, maxY := extent(points)
	for i, p := range points {
		px := plot.Min.X + int(scale(p[0], minX, maxX)*float64(plot.Dx()))
		py := plot.Max.Y - int(scale(p[1], minY, maxY)*float64(plot.Dy()))
		fillCircle(img, px, py, pointRadius, colorOf[labels[i]])
	}

	drawText(img, title, width/2-len(title)*7/2, margin/2)
	drawText(img, "PCA Component 1", plot.Min.X+plot.Dx()/2-50, height-margin/2)
	drawText(img, "PCA Component 2", 10, margin-10)

	lx, ly := width-legendWidth+20, margin+10
	drawText(img, "Identities", lx, ly)
	for i, id := range identities {
		y := ly + 20*(i+1)
		draw.Draw(img, image.Rect(lx, y-10, lx+12, y+2), image.NewUniform(colorOf[id]), image.Point{}, draw.Src)
		drawText(img, gallery.DisplayName(id), lx+20, y)
	}

	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("%w: %v", ErrVisualization, err)
	}
	return nil
}

func uniqueSorted(labels []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

func extent(points [][2]float64) (minX, maxX, minY, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
		minY, maxY = math.Min(minY, p[1]), math.Max(maxY, p[1])
	}
	return
}

// scale maps v into [0.05, 0.95] of the range so points stay off the frame.
func scale(v, lo, hi float64) float64 {
	if hi == lo {
		return 0.5
	}
	return 0.05 + 0.9*(v-lo)/(hi-lo)
}

func drawFrame(img *image.RGBA, r image.Rectangle) {
	gray := color.RGBA{80, 80, 80, 255}
	for x := r.Min.X; x <= r.Max.X; x++ {
		img.Set(x, r.Min.Y, gray)
		img.Set(x, r.Max.Y, gray)
	}
	for y := r.Min.Y; y <= r.Max.Y; y++ {
		img.Set(r.Min.X, y, gray)
		img.Set(r.Max.X, y, gray)
	}
}

func fillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				img.Set(cx+dx, cy+dy, c)
			}
		}
	}
}

func drawText(img *image.RGBA, s string, x, y int) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
