package face

import (
	"image"
	"math"
)

// BoundingBox is an axis-aligned box in pixel coordinates, (X1,Y1) top-left
// and (X2,Y2) bottom-right.
type BoundingBox struct {
	X1, Y1, X2, Y2 float64
}

// FromRectangle converts an image.Rectangle into a BoundingBox.
func FromRectangle(r image.Rectangle) BoundingBox {
	return BoundingBox{
		X1: float64(r.Min.X),
		Y1: float64(r.Min.Y),
		X2: float64(r.Max.X),
		Y2: float64(r.Max.Y),
	}
}

// Width returns the box width, never negative.
func (b BoundingBox) Width() float64 {
	return math.Max(0, b.X2-b.X1)
}

// Height returns the box height, never negative.
func (b BoundingBox) Height() float64 {
	return math.Max(0, b.Y2-b.Y1)
}

// Area returns the box area.
func (b BoundingBox) Area() float64 {
	return b.Width() * b.Height()
}

// IntersectionArea returns the area shared by two boxes.
func (b BoundingBox) IntersectionArea(o BoundingBox) float64 {
	w := math.Min(b.X2, o.X2) - math.Max(b.X1, o.X1)
	h := math.Min(b.Y2, o.Y2) - math.Max(b.Y1, o.Y1)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// OverlapRatio returns the intersection area divided by the smaller of the two
// box areas. A box fully contained in another yields 1. Degenerate boxes
// (zero area) overlap nothing.
func OverlapRatio(a, b BoundingBox) float64 {
	smaller := math.Min(a.Area(), b.Area())
	if smaller <= 0 {
		return 0
	}
	return a.IntersectionArea(b) / smaller
}

// Ints rounds the box to integer pixel coordinates [x1, y1, x2, y2],
// truncating toward zero.
func (b BoundingBox) Ints() [4]int {
	return [4]int{int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)}
}

// Rectangle converts the box to an image.Rectangle.
func (b BoundingBox) Rectangle() image.Rectangle {
	c := b.Ints()
	return image.Rect(c[0], c[1], c[2], c[3])
}
