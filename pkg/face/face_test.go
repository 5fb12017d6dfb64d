package face

import (
	"errors"
	"image"
	"math"
	"testing"
)

func TestOverlapRatio(t *testing.T) {
	tests := []struct {
		name     string
		a, b     BoundingBox
		expected float64
	}{
		{
			name:     "identical boxes",
			a:        BoundingBox{0, 0, 10, 10},
			b:        BoundingBox{0, 0, 10, 10},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			a:        BoundingBox{0, 0, 10, 10},
			b:        BoundingBox{20, 20, 30, 30},
			expected: 0.0,
		},
		{
			name:     "touching edges",
			a:        BoundingBox{0, 0, 10, 10},
			b:        BoundingBox{10, 0, 20, 10},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			a:        BoundingBox{0, 0, 10, 10},
			b:        BoundingBox{5, 5, 15, 15},
			expected: 25.0 / 100.0,
		},
		{
			name:     "small box inside large box",
			a:        BoundingBox{0, 0, 20, 20},
			b:        BoundingBox{5, 5, 15, 15},
			expected: 1.0,
		},
		{
			name:     "different sizes divide by the smaller area",
			a:        BoundingBox{0, 0, 10, 10},
			b:        BoundingBox{2, 0, 22, 10},
			expected: 80.0 / 100.0,
		},
		{
			name:     "degenerate box",
			a:        BoundingBox{0, 0, 0, 10},
			b:        BoundingBox{0, 0, 10, 10},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OverlapRatio(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("OverlapRatio(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
			if rev := OverlapRatio(tt.b, tt.a); math.Abs(rev-got) > 1e-9 {
				t.Errorf("OverlapRatio is not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestBoundingBoxInts(t *testing.T) {
	b := BoundingBox{10.7, 20.2, 30.9, 40.5}
	got := b.Ints()
	want := [4]int{10, 20, 30, 40}
	if got != want {
		t.Errorf("Ints() = %v, want %v", got, want)
	}
	if r := b.Rectangle(); r != image.Rect(10, 20, 30, 40) {
		t.Errorf("Rectangle() = %v", r)
	}
}

func TestFromRectangle(t *testing.T) {
	b := FromRectangle(image.Rect(1, 2, 11, 22))
	if b.Width() != 10 || b.Height() != 20 || b.Area() != 200 {
		t.Errorf("unexpected box %+v", b)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := Embedding{1, 2, 3}
	b := Embedding{-2, 0.5, 4}

	if got := CosineSimilarity(a, a); math.Abs(got-1) > 1e-6 {
		t.Errorf("self similarity = %v, want 1", got)
	}
	if ab, ba := CosineSimilarity(a, b), CosineSimilarity(b, a); ab != ba {
		t.Errorf("similarity not symmetric: %v vs %v", ab, ba)
	}
	if got := CosineSimilarity(Embedding{1, 0}, Embedding{0, 1}); got != 0 {
		t.Errorf("orthogonal similarity = %v, want 0", got)
	}
	if got := CosineSimilarity(Embedding{1, 0}, Embedding{-3, 0}); math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite similarity = %v, want -1", got)
	}
	// Scale must not matter: the full formula is applied.
	if got := CosineSimilarity(Embedding{2, 0}, Embedding{5, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("unnormalized similarity = %v, want 1", got)
	}
	if got := CosineSimilarity(Embedding{0, 0}, Embedding{1, 0}); got != 0 {
		t.Errorf("zero vector similarity = %v, want 0", got)
	}
	if got := CosineSimilarity(Embedding{1, 0}, Embedding{1, 0, 0}); got != 0 {
		t.Errorf("mismatched dims similarity = %v, want 0", got)
	}
}

func TestNormalize(t *testing.T) {
	n, err := Embedding{3, 4}.Normalize()
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if math.Abs(n.Norm()-1) > 1e-6 {
		t.Errorf("norm = %v, want 1", n.Norm())
	}
	if math.Abs(float64(n[0])-0.6) > 1e-6 || math.Abs(float64(n[1])-0.8) > 1e-6 {
		t.Errorf("Normalize = %v, want [0.6 0.8]", n)
	}

	_, err = Embedding{0, 0, 0}.Normalize()
	if !errors.Is(err, ErrZeroNorm) {
		t.Errorf("expected ErrZeroNorm, got %v", err)
	}
	_, err = Embedding{}.Normalize()
	if !errors.Is(err, ErrZeroNorm) {
		t.Errorf("expected ErrZeroNorm for empty embedding, got %v", err)
	}
}

func TestNormalizeDoesNotMutate(t *testing.T) {
	e := Embedding{3, 4}
	_, _ = e.Normalize()
	if e[0] != 3 || e[1] != 4 {
		t.Errorf("Normalize mutated its receiver: %v", e)
	}
}

func TestEuclideanDistance(t *testing.T) {
	d := EuclideanDistance(Embedding{1, 2, 3}, Embedding{4, 6, 8})
	if math.Abs(d-7.0710678) > 1e-4 {
		t.Errorf("distance = %v", d)
	}
	if d := EuclideanDistance(Embedding{1}, Embedding{1, 2}); d != math.MaxFloat64 {
		t.Errorf("mismatched dims distance = %v", d)
	}
}

func TestLargest(t *testing.T) {
	faces := []Face{
		{BoundingBox: BoundingBox{0, 0, 10, 10}},
		{BoundingBox: BoundingBox{0, 0, 30, 30}},
		{BoundingBox: BoundingBox{50, 50, 80, 80}},
	}
	if got := Largest(faces); got != 1 {
		t.Errorf("Largest = %d, want 1 (first of equal areas)", got)
	}
	if got := Largest(nil); got != -1 {
		t.Errorf("Largest(nil) = %d, want -1", got)
	}
}

func TestIsEmpty(t *testing.T) {
	if !IsEmpty(nil) {
		t.Error("nil image should be empty")
	}
	if !IsEmpty(image.NewRGBA(image.Rect(0, 0, 0, 10))) {
		t.Error("zero-width image should be empty")
	}
	if IsEmpty(image.NewRGBA(image.Rect(0, 0, 2, 2))) {
		t.Error("2x2 image should not be empty")
	}
}
