// Package recognition provides the dlib backed face detector.
// It uses go-face for face detection, landmark extraction, and descriptor generation,
// and exposes the result as model-independent face.Face values.
package recognition

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/Kagami/go-face"

	facepkg "github.com/MrCodeEU/faceroll/pkg/face"
	"github.com/MrCodeEU/faceroll/pkg/logging"
)

// DescriptorSize is the dimension of a dlib face descriptor.
const DescriptorSize = len(face.Descriptor{})

// ErrModelNotLoaded is returned when models are not loaded.
var ErrModelNotLoaded = errors.New("recognition models not loaded")

// FaceEngine is the subset of go-face used by the recognizer.
type FaceEngine interface {
	Recognize(data []byte) ([]face.Face, error)
	Close()
}

// cnnEngine is implemented by engines that support the CNN detector.
type cnnEngine interface {
	RecognizeCNN(data []byte) ([]face.Face, error)
}

// EngineFactory creates a FaceEngine from a model directory.
type EngineFactory func(modelPath string) (FaceEngine, error)

func defaultFactory(modelPath string) (FaceEngine, error) {
	return face.NewRecognizer(modelPath)
}

// DlibRecognizer implements face.Detector using dlib via go-face.
// dlib itself is not safe for concurrent use, so detections are serialized.
type DlibRecognizer struct {
	engine      FaceEngine
	factory     EngineFactory
	modelPath   string
	loaded      bool
	useCNN      bool
	jpegQuality int
	mu          sync.Mutex
}

// NewRecognizer creates a new DlibRecognizer instance.
func NewRecognizer() *DlibRecognizer {
	return &DlibRecognizer{
		factory:     defaultFactory,
		jpegQuality: 95,
	}
}

// SetUseCNN switches to the slower but more accurate CNN face detector.
// Requires mmod_human_face_detector.dat in the model directory.
func (r *DlibRecognizer) SetUseCNN(useCNN bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.useCNN = useCNN
}

// LoadModels loads the dlib face recognition models from the specified path.
// The path should contain:
// - shape_predictor_5_face_landmarks.dat
// - dlib_face_recognition_resnet_model_v1.dat
// - mmod_human_face_detector.dat (optional, for CNN detection)
func (r *DlibRecognizer) LoadModels(modelPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return nil
	}

	logging.Infof("Loading face recognition models from: %s", modelPath)

	engine, err := r.factory(modelPath)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}

	r.engine = engine
	r.modelPath = modelPath
	r.loaded = true

	logging.Info("Face recognition models loaded successfully")
	return nil
}

// IsLoaded returns true if models are loaded.
func (r *DlibRecognizer) IsLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// Close releases the recognizer resources.
func (r *DlibRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine != nil {
		r.engine.Close()
		r.engine = nil
	}
	r.loaded = false
	return nil
}

// Detect finds every face in img and returns its bounding box and descriptor.
// An image without faces yields an empty slice and no error.
func (r *DlibRecognizer) Detect(img image.Image) ([]facepkg.Face, error) {
	if facepkg.IsEmpty(img) {
		return nil, facepkg.ErrInvalidImage
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.jpegQuality}); err != nil {
		return nil, fmt.Errorf("%w: encode image: %v", facepkg.ErrDetectorFailure, err)
	}
	return r.DetectBytes(buf.Bytes())
}

// DetectBytes runs detection on JPEG encoded image data.
func (r *DlibRecognizer) DetectBytes(data []byte) ([]facepkg.Face, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return nil, ErrModelNotLoaded
	}

	var (
		faces []face.Face
		err   error
	)
	if cnn, ok := r.engine.(cnnEngine); ok && r.useCNN {
		faces, err = cnn.RecognizeCNN(data)
	} else {
		faces, err = r.engine.Recognize(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", facepkg.ErrDetectorFailure, err)
	}

	result := make([]facepkg.Face, len(faces))
	for i, f := range faces {
		desc := make(facepkg.Embedding, len(f.Descriptor))
		copy(desc, f.Descriptor[:])
		result[i] = facepkg.Face{
			BoundingBox: facepkg.FromRectangle(f.Rectangle),
			Embedding:   desc,
		}
	}

	logging.Debugf("Detected %d face(s) in image", len(result))
	return result, nil
}
