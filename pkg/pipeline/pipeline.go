// Package pipeline runs batch recognition over a folder of images.
package pipeline

import (
	"context"
	"image"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/faceroll/pkg/fusion"
	"github.com/MrCodeEU/faceroll/pkg/gallery"
	"github.com/MrCodeEU/faceroll/pkg/imageio"
	"github.com/MrCodeEU/faceroll/pkg/logging"
	"github.com/MrCodeEU/faceroll/pkg/matching"
	"github.com/MrCodeEU/faceroll/pkg/report"
)

// Annotator writes an annotated copy of an input image.
type Annotator interface {
	Annotate(srcPath string, img image.Image, records []report.DetectionRecord) (string, error)
}

// Loader decodes an input image.
type Loader func(path string) (image.Image, error)

// Options configures a Runner.
type Options struct {
	Threshold float64
	Workers   int
	// Annotator is optional; nil disables annotated output.
	Annotator Annotator
	// Loader defaults to imageio.Load.
	Loader Loader
}

// Runner processes images against a loaded gallery. The gallery is only read.
type Runner struct {
	fuser     *fusion.Fuser
	gallery   *gallery.Gallery
	threshold float64
	workers   int
	annotator Annotator
	load      Loader
	runID     string
	log       *logrus.Entry
}

// NewRunner creates a Runner with a fresh run id.
func NewRunner(fuser *fusion.Fuser, g *gallery.Gallery, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Loader == nil {
		opts.Loader = imageio.Load
	}
	runID := uuid.NewString()
	return &Runner{
		fuser:     fuser,
		gallery:   g,
		threshold: opts.Threshold,
		workers:   opts.Workers,
		annotator: opts.Annotator,
		load:      opts.Loader,
		runID:     runID,
		log:       logging.Run("recognition", runID),
	}
}

// RunID identifies this run in the logs.
func (r *Runner) RunID() string {
	return r.runID
}

// RunDir lists the images of dir and runs them. A missing folder or a folder
// without images is fatal.
func (r *Runner) RunDir(ctx context.Context, dir string) (report.Summary, error) {
	paths, err := imageio.ListImages(dir)
	if err != nil {
		return report.Summary{}, err
	}
	return r.Run(ctx, paths)
}

// Run processes paths in order; the image index is the position in paths.
// Failures of single images are logged and skipped.
func (r *Runner) Run(ctx context.Context, paths []string) (report.Summary, error) {
	r.log.Infof("Processing %d images", len(paths))

	var records []report.DetectionRecord
	var err error
	if r.workers > 1 && len(paths) > 1 {
		records, err = r.runParallel(ctx, paths)
	} else {
		records, err = r.runSequential(ctx, paths)
	}
	if err != nil {
		return report.Summary{}, err
	}

	summary := report.Summarize(records, len(paths))
	r.log.WithFields(logging.Fields{
		"images":     summary.ProcessedImages,
		"faces":      summary.TotalFaces,
		"recognized": len(summary.RecognizedStudents),
		"rate":       summary.RecognitionRate,
		"confidence": summary.AverageConfidence,
	}).Info("Recognition complete")

	return summary, nil
}

func (r *Runner) runSequential(ctx context.Context, paths []string) ([]report.DetectionRecord, error) {
	var records []report.DetectionRecord
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.log.Infof("Processing image %d/%d: %s", i+1, len(paths), filepath.Base(path))
		records = append(records, r.processLogged(i, path)...)
	}
	return records, nil
}

// runParallel gives every worker its own accumulator and merges them in image
// order at the end.
func (r *Runner) runParallel(ctx context.Context, paths []string) ([]report.DetectionRecord, error) {
	workers := min(r.workers, len(paths))
	jobs := make(chan int)
	results := make([][]report.DetectionRecord, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range jobs {
				results[w] = append(results[w], r.processLogged(i, paths[i])...)
			}
		}(w)
	}

	var err error
feed:
	for i := range paths {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, err
	}

	var merged []report.DetectionRecord
	for _, rs := range results {
		merged = append(merged, rs...)
	}
	report.SortRecords(merged)
	return merged, nil
}

func (r *Runner) processLogged(imageIndex int, path string) []report.DetectionRecord {
	records, err := r.ProcessImage(imageIndex, path)
	if err != nil {
		r.log.WithError(err).WithFields(logging.Fields{
			"file":        path,
			"image_index": imageIndex,
		}).Warn("Skipping image")
		return nil
	}
	return records
}

// ProcessImage fuses, matches and annotates one image. Annotation is best
// effort and never affects the returned records.
func (r *Runner) ProcessImage(imageIndex int, path string) ([]report.DetectionRecord, error) {
	log := r.log.WithFields(logging.Fields{"file": filepath.Base(path), "image_index": imageIndex})

	img, err := r.load(path)
	if err != nil {
		return nil, err
	}

	res, err := r.fuser.DetectUniqueFaces(img)
	if err != nil {
		return nil, err
	}
	for _, f := range res.Failures {
		log.WithError(f).WithField("variant", f.Method).Debug("Variant skipped")
	}
	if len(res.Failures) == len(r.fuser.Variants()) {
		log.Warn("Detector failed for every preprocessing variant")
	}
	log.Infof("Processing %d unique faces", len(res.Faces))

	records := matching.MatchFaces(imageIndex, res.Faces, r.gallery, r.threshold)
	for _, rec := range records {
		if rec.Matched() {
			log.WithField("face_index", rec.FaceIndex).Infof("Recognized: %s (confidence: %.3f)",
				gallery.DisplayName(rec.IdentityKey()), rec.Confidence)
		}
	}

	if r.annotator != nil {
		if out, err := r.annotator.Annotate(path, img, records); err != nil {
			log.WithError(err).Error("Error saving annotated image")
		} else {
			log.Debugf("Saved annotated image: %s", out)
		}
	}

	return records, nil
}
