package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/MrCodeEU/faceroll/pkg/face"
	"github.com/MrCodeEU/faceroll/pkg/fusion"
	"github.com/MrCodeEU/faceroll/pkg/gallery"
	"github.com/MrCodeEU/faceroll/pkg/imageio"
	"github.com/MrCodeEU/faceroll/pkg/report"
)

// pixelDetector reports one face per distinct non-black pixel in the first
// row, with the pixel color as embedding. Pixel x yields a box at 20*x.
type pixelDetector struct{}

func (pixelDetector) Detect(img image.Image) ([]face.Face, error) {
	var faces []face.Face
	b := img.Bounds()
	for x := b.Min.X; x < b.Max.X; x++ {
		r, g, bl, _ := img.At(x, b.Min.Y).RGBA()
		if r == 0 && g == 0 && bl == 0 {
			continue
		}
		faces = append(faces, face.Face{
			BoundingBox: face.BoundingBox{X1: float64(20 * x), Y1: 0, X2: float64(20*x + 10), Y2: 10},
			Embedding:   face.Embedding{float32(r), float32(g), float32(bl)},
		})
	}
	return faces, nil
}

type mockAnnotator struct {
	mu          sync.Mutex
	AnnotateErr error
	calls       map[string]int
}

func (m *mockAnnotator) Annotate(srcPath string, img image.Image, records []report.DetectionRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[filepath.Base(srcPath)] = len(records)
	return "out/" + filepath.Base(srcPath), m.AnnotateErr
}

func writeFaces(t *testing.T, path string, colors ...color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 2))
	for x, c := range colors {
		img.Set(x, 0, c)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
)

func testGallery(t *testing.T) *gallery.Gallery {
	t.Helper()
	g := gallery.New()
	if err := g.Add("alice", face.Embedding{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := g.Add("bob", face.Embedding{0, 1, 0}); err != nil {
		t.Fatal(err)
	}
	return g
}

func classroom(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFaces(t, filepath.Join(dir, "a.png"), red, green)
	writeFaces(t, filepath.Join(dir, "b.png"), blue)
	writeFaces(t, filepath.Join(dir, "c.png"), red, red)
	if err := os.WriteFile(filepath.Join(dir, "d.jpg"), []byte("corrupt"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRunDir(t *testing.T) {
	dir := classroom(t)
	annotator := &mockAnnotator{}
	r := NewRunner(fusion.New(pixelDetector{}), testGallery(t), Options{Threshold: 0.45, Annotator: annotator})

	summary, err := r.RunDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("RunDir failed: %v", err)
	}

	if summary.ProcessedImages != 4 {
		t.Errorf("ProcessedImages = %d, want 4", summary.ProcessedImages)
	}
	if summary.TotalFaces != 5 {
		t.Fatalf("TotalFaces = %d, want 5", summary.TotalFaces)
	}
	if !reflect.DeepEqual(summary.RecognizedStudents, []string{"alice", "bob"}) {
		t.Errorf("RecognizedStudents = %v", summary.RecognizedStudents)
	}
	if summary.RecognitionRate != 0.6 {
		t.Errorf("RecognitionRate = %f, want 0.6", summary.RecognitionRate)
	}

	// Image c has two faces close to alice; deduplication keeps both boxes
	// apart, matching only allows alice once.
	var c []report.DetectionRecord
	for _, d := range summary.Detections {
		if d.ImageIndex == 2 {
			c = append(c, d)
		}
	}
	if len(c) != 2 || !c[0].Matched() || c[1].Matched() {
		t.Errorf("unexpected records for image c: %+v", c)
	}

	if annotator.calls["a.png"] != 2 || annotator.calls["b.png"] != 1 {
		t.Errorf("unexpected annotations %v", annotator.calls)
	}
	if _, ok := annotator.calls["d.jpg"]; ok {
		t.Error("broken image must not be annotated")
	}
}

func TestRun_AnnotationFailureIgnored(t *testing.T) {
	dir := classroom(t)
	g := testGallery(t)

	plain, err := NewRunner(fusion.New(pixelDetector{}), g, Options{Threshold: 0.45}).RunDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	failing := &mockAnnotator{AnnotateErr: errors.New("disk full")}
	annotated, err := NewRunner(fusion.New(pixelDetector{}), g, Options{Threshold: 0.45, Annotator: failing}).RunDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(plain, annotated) {
		t.Error("annotation failures must not change the result")
	}
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	dir := t.TempDir()
	for i, cs := range [][]color.RGBA{{red}, {green, blue}, {blue, red}, {}, {green}, {red, green, blue}} {
		writeFaces(t, filepath.Join(dir, string(rune('a'+i))+".png"), cs...)
	}
	g := testGallery(t)

	seq, err := NewRunner(fusion.New(pixelDetector{}), g, Options{Threshold: 0.45}).RunDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	par, err := NewRunner(fusion.New(pixelDetector{}), g, Options{Threshold: 0.45, Workers: 4}).RunDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(seq, par) {
		t.Errorf("parallel result differs:\n seq %+v\n par %+v", seq, par)
	}
}

func TestRun_Idempotent(t *testing.T) {
	dir := classroom(t)
	r := NewRunner(fusion.New(pixelDetector{}), testGallery(t), Options{Threshold: 0.45})

	first, err := r.RunDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.RunDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated runs should give identical results")
	}
}

func TestRunDir_Errors(t *testing.T) {
	r := NewRunner(fusion.New(pixelDetector{}), testGallery(t), Options{})

	if _, err := r.RunDir(context.Background(), filepath.Join(t.TempDir(), "none")); !errors.Is(err, imageio.ErrInputDirNotFound) {
		t.Errorf("expected ErrInputDirNotFound, got %v", err)
	}
	if _, err := r.RunDir(context.Background(), t.TempDir()); !errors.Is(err, imageio.ErrNoInputImages) {
		t.Errorf("expected ErrNoInputImages, got %v", err)
	}
}

func TestRun_Canceled(t *testing.T) {
	dir := classroom(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 3} {
		r := NewRunner(fusion.New(pixelDetector{}), testGallery(t), Options{Workers: workers})
		if _, err := r.RunDir(ctx, dir); !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: expected context.Canceled, got %v", workers, err)
		}
	}
}

func TestNewRunner_RunID(t *testing.T) {
	a := NewRunner(fusion.New(pixelDetector{}), gallery.New(), Options{})
	b := NewRunner(fusion.New(pixelDetector{}), gallery.New(), Options{})
	if a.RunID() == "" || a.RunID() == b.RunID() {
		t.Errorf("expected distinct run ids, got %q and %q", a.RunID(), b.RunID())
	}
}
