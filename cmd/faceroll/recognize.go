package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/faceroll/pkg/annotate"
	"github.com/MrCodeEU/faceroll/pkg/fusion"
	"github.com/MrCodeEU/faceroll/pkg/gallery"
	"github.com/MrCodeEU/faceroll/pkg/imageio"
	"github.com/MrCodeEU/faceroll/pkg/logging"
	"github.com/MrCodeEU/faceroll/pkg/pipeline"
	"github.com/MrCodeEU/faceroll/pkg/preprocess"
	"github.com/MrCodeEU/faceroll/pkg/recognition"
	"github.com/MrCodeEU/faceroll/pkg/report"
)

var recognizeFlags struct {
	input      string
	gallery    string
	threshold  float64
	output     string
	workers    int
	noAnnotate bool
}

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Recognize enrolled identities in a folder of group photos",
	Long: `Runs every image of the input folder through detection, matching and
annotation and prints the attendance summary as one JSON object.

On a fatal error a JSON error payload is printed instead and the exit
status is 1.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRecognizeFlags(cmd)

		summary, err := runRecognize(cmd.Context())
		if err != nil {
			logging.WithError(err).Error("Recognition failed")
			if werr := report.WriteJSON(os.Stdout, report.NewErrorPayload(err)); werr != nil {
				return werr
			}
			return errReported
		}
		return report.WriteJSON(os.Stdout, summary)
	},
}

func init() {
	f := recognizeCmd.Flags()
	f.StringVar(&recognizeFlags.input, "input", "", "Folder of images to process")
	f.StringVar(&recognizeFlags.gallery, "gallery", "", "Gallery file to match against")
	f.Float64Var(&recognizeFlags.threshold, "threshold", 0, "Cosine similarity a match must exceed")
	f.StringVar(&recognizeFlags.output, "output", "", "Folder for annotated images")
	f.IntVar(&recognizeFlags.workers, "workers", 0, "Number of images processed in parallel")
	f.BoolVar(&recognizeFlags.noAnnotate, "no-annotate", false, "Do not write annotated images")
	rootCmd.AddCommand(recognizeCmd)
}

func applyRecognizeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("input") {
		cfg.Output.InputDir = recognizeFlags.input
	}
	if f.Changed("gallery") {
		cfg.Gallery.Path = recognizeFlags.gallery
	}
	if f.Changed("threshold") {
		cfg.Recognition.Threshold = recognizeFlags.threshold
	}
	if f.Changed("output") {
		cfg.Output.AnnotatedDir = recognizeFlags.output
	}
	if f.Changed("workers") {
		cfg.Recognition.Workers = recognizeFlags.workers
	}
	if recognizeFlags.noAnnotate {
		cfg.Output.Annotate = false
	}
}

func runRecognize(ctx context.Context) (report.Summary, error) {
	if err := cfg.Validate(); err != nil {
		return report.Summary{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return report.Summary{}, err
	}

	g, err := loadGallery(ctx)
	if err != nil {
		return report.Summary{}, err
	}

	paths, err := imageio.ListImages(cfg.Output.InputDir)
	if err != nil {
		return report.Summary{}, err
	}

	recognizer := recognition.NewRecognizer()
	if err := recognizer.LoadModels(cfg.Recognition.ModelPath); err != nil {
		return report.Summary{}, fmt.Errorf("%w (run 'faceroll download-models' first)", err)
	}
	defer func() { _ = recognizer.Close() }()
	recognizer.SetUseCNN(cfg.Recognition.CNNDetector)

	variants, err := preprocess.Variants(cfg.Recognition.Variants)
	if err != nil {
		return report.Summary{}, err
	}
	fuser := fusion.New(recognizer, variants...)
	fuser.SetOverlapThreshold(cfg.Recognition.OverlapThreshold)

	opts := pipeline.Options{
		Threshold: cfg.Recognition.Threshold,
		Workers:   cfg.Recognition.Workers,
	}
	if cfg.Output.Annotate {
		opts.Annotator = annotate.New(cfg.Output.AnnotatedDir, cfg.Output.AnnotatedPrefix, cfg.Output.JPEGQuality)
	}

	runner := pipeline.NewRunner(fuser, g, opts)
	logging.WithField("run_id", runner.RunID()).Debugf("Recognizing %d images from %s", len(paths), cfg.Output.InputDir)
	return runner.Run(ctx, paths)
}

// loadGallery opens the configured store and loads a non-empty gallery.
func loadGallery(ctx context.Context) (*gallery.Gallery, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()
	return gallery.LoadNonEmpty(ctx, store)
}

func openStore(ctx context.Context) (gallery.Store, error) {
	return gallery.Open(ctx, gallery.Options{
		Backend:           cfg.Gallery.Backend,
		Path:              cfg.Gallery.Path,
		EncryptionEnabled: cfg.Gallery.EncryptionEnabled,
		Passphrase:        cfg.Gallery.Passphrase,
		DatabaseURL:       cfg.Gallery.DatabaseURL,
	})
}

// errReported marks a failure whose details were already written to stdout.
var errReported = errors.New("failure already reported")
