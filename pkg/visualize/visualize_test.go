package visualize

import (
	"bytes"
	"errors"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrCodeEU/faceroll/pkg/face"
)

func clusters() ([]face.Embedding, []string) {
	samples := []face.Embedding{
		{1, 0.1, 0, 0}, {0.9, 0, 0.1, 0}, {1, 0, 0, 0.1},
		{0, 0, 1, 0.1}, {0.1, 0, 0.9, 0}, {0, 0.1, 1, 0},
	}
	labels := []string{"alice", "alice", "alice", "bob", "bob", "bob"}
	return samples, labels
}

func TestShouldRender(t *testing.T) {
	if ShouldRender(5) {
		t.Error("5 samples should not be rendered")
	}
	if !ShouldRender(6) {
		t.Error("6 samples should be rendered")
	}
}

func TestProject_SeparatesClusters(t *testing.T) {
	samples, _ := clusters()

	points, err := Project(samples)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if len(points) != len(samples) {
		t.Fatalf("expected %d points, got %d", len(samples), len(points))
	}

	centroid := func(ps [][2]float64) float64 {
		var s float64
		for _, p := range ps {
			s += p[0]
		}
		return s / float64(len(ps))
	}
	a, b := centroid(points[:3]), centroid(points[3:])
	if math.Abs(a-b) < 1 {
		t.Errorf("clusters should separate on the first component: %f vs %f", a, b)
	}
}

func TestProject_Errors(t *testing.T) {
	if _, err := Project([]face.Embedding{{1, 2}}); !errors.Is(err, ErrVisualization) {
		t.Errorf("expected ErrVisualization for one sample, got %v", err)
	}
	if _, err := Project([]face.Embedding{{1, 2}, {1, 2, 3}}); !errors.Is(err, ErrVisualization) {
		t.Errorf("expected ErrVisualization for mixed dimensions, got %v", err)
	}
}

func TestRender(t *testing.T) {
	samples, labels := clusters()

	var buf bytes.Buffer
	if err := Render(&buf, samples, labels); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != width || img.Bounds().Dy() != height {
		t.Errorf("unexpected size %v", img.Bounds())
	}

	if err := Render(&buf, samples, labels[:2]); !errors.Is(err, ErrVisualization) {
		t.Errorf("expected ErrVisualization for label mismatch, got %v", err)
	}
}

func TestWriteFile(t *testing.T) {
	samples, labels := clusters()
	path := filepath.Join(t.TempDir(), "viz.png")

	if err := WriteFile(path, samples, labels); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Error("expected a non-empty file")
	}

	bad := filepath.Join(t.TempDir(), "bad.png")
	if err := WriteFile(bad, samples[:1], labels[:1]); err == nil {
		t.Error("expected error")
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Error("failed render should not leave a file")
	}
}
