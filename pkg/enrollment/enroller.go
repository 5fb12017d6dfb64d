package enrollment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/faceroll/pkg/face"
	"github.com/MrCodeEU/faceroll/pkg/gallery"
	"github.com/MrCodeEU/faceroll/pkg/imageio"
	"github.com/MrCodeEU/faceroll/pkg/logging"
)

// ErrDatasetNotFound is returned when the dataset directory does not exist.
var ErrDatasetNotFound = errors.New("dataset folder not found")

// DefaultAugmentations is the number of augmented copies tried per photo.
const DefaultAugmentations = 2

// Augmenter produces a randomly perturbed copy of an image.
type Augmenter interface {
	Augment(img image.Image) (image.Image, error)
}

// IdentityResult describes the enrollment of one identity.
type IdentityResult struct {
	Key    string
	Folder string
	// Images counts photos whose original version yielded a face.
	Images  int
	Samples int
	Err     error
}

// Enrolled reports whether the identity made it into the gallery.
func (r IdentityResult) Enrolled() bool {
	return r.Err == nil
}

// Report is the outcome of an enrollment run.
type Report struct {
	Gallery    *gallery.Gallery
	Identities []IdentityResult
	// Samples and Labels hold every collected embedding with its identity,
	// in collection order.
	Samples []face.Embedding
	Labels  []string
}

// TotalImages sums the images of the enrolled identities.
func (r *Report) TotalImages() int {
	total := 0
	for _, id := range r.Identities {
		if id.Enrolled() {
			total += id.Images
		}
	}
	return total
}

// Enroller walks a dataset of one folder per identity.
type Enroller struct {
	detector      face.Detector
	augmenter     Augmenter
	aggregator    *Aggregator
	augmentations int
	progress      io.Writer
	onIdentity    func(IdentityResult)
	log           *logrus.Entry
}

// NewEnroller creates an Enroller. augmenter may be nil to disable
// augmentation.
func NewEnroller(detector face.Detector, augmenter Augmenter, aggregator *Aggregator) *Enroller {
	if aggregator == nil {
		aggregator = NewAggregator(PolicyAuto)
	}
	return &Enroller{
		detector:      detector,
		augmenter:     augmenter,
		aggregator:    aggregator,
		augmentations: DefaultAugmentations,
		log:           logging.Component("enrollment"),
	}
}

// SetAugmentations sets the number of augmented copies per photo.
func (e *Enroller) SetAugmentations(n int) {
	if n < 0 {
		n = 0
	}
	e.augmentations = n
}

// SetProgressWriter enables a progress bar on w.
func (e *Enroller) SetProgressWriter(w io.Writer) {
	e.progress = w
}

// SetIdentityFunc registers fn to be called as soon as each identity is
// finished, in completion order.
func (e *Enroller) SetIdentityFunc(fn func(IdentityResult)) {
	e.onIdentity = fn
}

// SetLogger replaces the log entry, e.g. to attach a run id.
func (e *Enroller) SetLogger(entry *logrus.Entry) {
	e.log = entry
}

type identityDir struct {
	key    string
	folder string
	images []string
}

// Enroll processes datasetDir and returns the resulting gallery. It fails with
// ErrNoFacesEnrolled when no identity produced a representative embedding; the
// report is returned in that case too.
func (e *Enroller) Enroll(ctx context.Context, datasetDir string) (*Report, error) {
	dirs, err := scanDataset(datasetDir)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, d := range dirs {
		total += len(d.images)
	}
	bar := e.newProgressBar(total)

	rep := &Report{Gallery: gallery.New()}

	// Folders that normalize to the same key are enrolled as one identity,
	// finished once its last folder is done.
	last := make(map[string]int, len(dirs))
	for i, d := range dirs {
		last[d.key] = i
	}
	results := map[string]*IdentityResult{}
	samples := map[string][]face.Embedding{}

	for i, d := range dirs {
		res, ok := results[d.key]
		if !ok {
			res = &IdentityResult{Key: d.key, Folder: d.folder}
			results[d.key] = res
		}
		e.log.Infof("Processing identity: %s", d.folder)

		for _, path := range d.images {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			collected, original := e.enrollImage(path)
			if original {
				res.Images++
			}
			for _, emb := range collected {
				samples[d.key] = append(samples[d.key], emb)
				rep.Samples = append(rep.Samples, emb)
				rep.Labels = append(rep.Labels, d.key)
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		}

		if last[d.key] == i {
			e.finish(rep, res, samples[d.key])
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if rep.Gallery.Len() == 0 {
		return rep, ErrNoFacesEnrolled
	}
	return rep, nil
}

// finish aggregates the samples of one identity and adds it to the gallery.
func (e *Enroller) finish(rep *Report, res *IdentityResult, samples []face.Embedding) {
	res.Samples = len(samples)

	emb, err := e.aggregator.Aggregate(res.Key, samples)
	if err == nil {
		err = rep.Gallery.Add(res.Key, emb)
	}
	if err != nil {
		res.Err = err
		e.log.WithField("identity", res.Key).Warnf("No faces detected for %s", res.Folder)
	} else {
		e.log.WithFields(logging.Fields{
			"identity": res.Key,
			"images":   res.Images,
			"samples":  res.Samples,
		}).Infof("Processed %d images for %s", res.Images, res.Folder)
	}

	rep.Identities = append(rep.Identities, *res)
	if e.onIdentity != nil {
		e.onIdentity(*res)
	}
}

// enrollImage collects the embedding of the largest face in the photo and in
// each augmented copy. original reports whether the unmodified photo yielded
// a face.
func (e *Enroller) enrollImage(path string) (collected []face.Embedding, original bool) {
	log := e.log.WithField("file", path)

	img, err := imageio.Load(path)
	if err != nil {
		log.WithError(err).Warn("Skipping broken file")
		return nil, false
	}

	if emb, ok := e.largestFace(img); ok {
		collected = append(collected, emb)
		original = true
	} else {
		log.Debug("No face found in original image")
	}

	if e.augmenter == nil {
		return collected, original
	}
	for i := 0; i < e.augmentations; i++ {
		aug, err := e.augmenter.Augment(img)
		if err != nil {
			log.WithError(err).WithField("augmentation", i).Debug("Augmentation failed")
			continue
		}
		if emb, ok := e.largestFace(aug); ok {
			collected = append(collected, emb)
		}
	}
	return collected, original
}

func (e *Enroller) largestFace(img image.Image) (face.Embedding, bool) {
	faces, err := e.detector.Detect(img)
	if err != nil {
		e.log.WithError(err).Debug("Detector failed")
		return nil, false
	}
	i := face.Largest(faces)
	if i < 0 || !faces[i].Embedding.Valid() {
		return nil, false
	}
	return faces[i].Embedding, true
}

func (e *Enroller) newProgressBar(total int) *progressbar.ProgressBar {
	if e.progress == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionSetWriter(e.progress),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
}

// scanDataset lists identity folders and their images in name order.
// Non-directories at the top level are ignored.
func scanDataset(datasetDir string) ([]identityDir, error) {
	entries, err := os.ReadDir(datasetDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetDir)
		}
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var dirs []identityDir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		key := gallery.NormalizeKey(entry.Name())
		if key == "" {
			continue
		}

		personDir := filepath.Join(datasetDir, entry.Name())
		files, err := os.ReadDir(personDir)
		if err != nil {
			logging.WithError(err).Warnf("Skipping unreadable folder %s", personDir)
			continue
		}

		d := identityDir{key: key, folder: entry.Name()}
		for _, f := range files {
			if f.IsDir() || !imageio.IsImageFile(f.Name()) {
				continue
			}
			d.images = append(d.images, filepath.Join(personDir, f.Name()))
		}
		sort.Strings(d.images)
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].folder < dirs[j].folder })

	return dirs, nil
}
