// Package imageio lists and decodes input images.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	// Registered decoders.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/MrCodeEU/faceroll/pkg/face"
)

// ErrInputDirNotFound is returned when the input directory does not exist.
var ErrInputDirNotFound = errors.New("input folder not found")

// ErrNoInputImages is returned when the input directory has no usable images.
var ErrNoInputImages = errors.New("no images found in input folder")

// Extensions lists the accepted image file extensions.
var Extensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

// IsImageFile reports whether name has an accepted extension.
func IsImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ListImages returns the image files directly inside dir, sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrInputDirNotFound, dir)
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInputImages, dir)
	}

	sort.Strings(paths)
	return paths, nil
}

// Load decodes the image at path. Unreadable or empty images yield
// face.ErrInvalidImage.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", face.ErrInvalidImage, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", face.ErrInvalidImage, path, err)
	}
	if face.IsEmpty(img) {
		return nil, fmt.Errorf("%w: %s: zero-size image", face.ErrInvalidImage, path)
	}
	return img, nil
}
