package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/faceroll/pkg/enrollment"
	"github.com/MrCodeEU/faceroll/pkg/gallery"
	"github.com/MrCodeEU/faceroll/pkg/logging"
	"github.com/MrCodeEU/faceroll/pkg/preprocess"
	"github.com/MrCodeEU/faceroll/pkg/recognition"
	"github.com/MrCodeEU/faceroll/pkg/visualize"
)

var enrollFlags struct {
	dataset       string
	gallery       string
	augmentations int
	aggregation   string
	seed          int64
	visualization string
}

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Build the gallery from a dataset of one folder per identity",
	Long: `Walks the dataset folder, where every subfolder holds the photos of one
identity, and stores one representative embedding per identity.

Each photo is also tried with a number of randomly augmented copies. A
scatter plot of all collected embeddings is written when enough samples
were found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyEnrollFlags(cmd)
		return runEnroll(cmd.Context())
	},
}

func init() {
	f := enrollCmd.Flags()
	f.StringVar(&enrollFlags.dataset, "dataset", "", "Dataset folder with one subfolder per identity")
	f.StringVar(&enrollFlags.gallery, "gallery", "", "Gallery file to write")
	f.IntVar(&enrollFlags.augmentations, "augmentations", 0, "Augmented copies tried per photo")
	f.StringVar(&enrollFlags.aggregation, "aggregation", "", "Aggregation policy: auto, mean or median")
	f.Int64Var(&enrollFlags.seed, "seed", 0, "Augmentation seed (0 picks a random one)")
	f.StringVar(&enrollFlags.visualization, "visualization", "", "Path of the embedding scatter plot (empty disables it)")
	rootCmd.AddCommand(enrollCmd)
}

func applyEnrollFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("dataset") {
		cfg.Enrollment.DatasetDir = enrollFlags.dataset
	}
	if f.Changed("gallery") {
		cfg.Gallery.Path = enrollFlags.gallery
	}
	if f.Changed("augmentations") {
		cfg.Enrollment.AugmentationsPerImage = enrollFlags.augmentations
	}
	if f.Changed("aggregation") {
		cfg.Enrollment.Aggregation = enrollFlags.aggregation
	}
	if f.Changed("seed") {
		cfg.Enrollment.Seed = enrollFlags.seed
	}
	if f.Changed("visualization") {
		cfg.Enrollment.Visualization = enrollFlags.visualization
	}
}

func runEnroll(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	policy, err := enrollment.ParsePolicy(cfg.Enrollment.Aggregation)
	if err != nil {
		return err
	}

	recognizer := recognition.NewRecognizer()
	if err := recognizer.LoadModels(cfg.Recognition.ModelPath); err != nil {
		return fmt.Errorf("%w (run 'faceroll download-models' first)", err)
	}
	defer func() { _ = recognizer.Close() }()
	recognizer.SetUseCNN(cfg.Recognition.CNNDetector)

	var augmenter enrollment.Augmenter
	if cfg.Enrollment.AugmentationsPerImage > 0 {
		augmenter = preprocess.NewAugmenter(preprocess.DefaultAugmentConfig(), cfg.Enrollment.Seed)
	}

	enroller := enrollment.NewEnroller(recognizer, augmenter, enrollment.NewAggregator(policy))
	enroller.SetAugmentations(cfg.Enrollment.AugmentationsPerImage)
	enroller.SetProgressWriter(os.Stderr)
	enroller.SetIdentityFunc(printIdentity)
	enroller.SetLogger(logging.Run("enrollment", uuid.NewString()))

	fmt.Printf("Enrolling identities from %s...\n", cfg.Enrollment.DatasetDir)

	rep, err := enroller.Enroll(ctx, cfg.Enrollment.DatasetDir)
	if errors.Is(err, enrollment.ErrNoFacesEnrolled) {
		fmt.Println("No faces were enrolled. Check the dataset photos.")
		return errReported
	}
	if err != nil {
		return err
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Save(ctx, rep.Gallery); err != nil {
		return err
	}

	renderVisualization(rep)

	fmt.Println()
	fmt.Printf("Identities enrolled: %d\n", rep.Gallery.Len())
	fmt.Printf("Total images:        %d\n", rep.TotalImages())
	fmt.Printf("Gallery saved to:    %s\n", galleryLocation())
	return nil
}

// printIdentity writes one progress line per finished identity.
func printIdentity(id enrollment.IdentityResult) {
	name := gallery.DisplayName(id.Key)
	if !id.Enrolled() {
		fmt.Printf("  %-24s no faces detected\n", name)
		return
	}
	fmt.Printf("  %-24s %d images, %d samples\n", name, id.Images, id.Samples)
}

// renderVisualization writes the scatter plot. Failures are only logged.
func renderVisualization(rep *enrollment.Report) {
	path := cfg.Enrollment.Visualization
	if path == "" {
		return
	}
	if !visualize.ShouldRender(len(rep.Samples)) {
		logging.Debugf("Skipping visualization: only %d samples", len(rep.Samples))
		return
	}
	if err := visualize.WriteFile(path, rep.Samples, rep.Labels); err != nil {
		logging.WithError(err).Warn("Could not create training visualization")
		return
	}
	fmt.Printf("Visualization saved: %s\n", path)
}

func galleryLocation() string {
	if cfg.Gallery.Backend == "postgres" {
		return "postgres"
	}
	return cfg.Gallery.Path
}
