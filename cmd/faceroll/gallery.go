package main

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/faceroll/pkg/face"
	"github.com/MrCodeEU/faceroll/pkg/gallery"
	"github.com/MrCodeEU/faceroll/pkg/logging"
	"github.com/MrCodeEU/faceroll/pkg/matching"
	"github.com/MrCodeEU/faceroll/pkg/recognition"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage enrolled identities",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all enrolled identities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGallery(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "KEY\tNAME\tNORM")
		g.Each(func(key string, emb face.Embedding) bool {
			fmt.Fprintf(w, "%s\t%s\t%.4f\n", key, gallery.DisplayName(key), emb.Norm())
			return true
		})
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\nTotal: %d identities\n", g.Len())
		return nil
	},
}

var galleryRemoveCmd = &cobra.Command{
	Use:   "remove <identity>",
	Short: "Remove an identity from the gallery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		g, err := store.Load(ctx)
		if err != nil {
			return err
		}
		key := gallery.NormalizeKey(args[0])
		if !g.Remove(key) {
			return fmt.Errorf("identity '%s' is not enrolled", args[0])
		}
		if err := store.Save(ctx, g); err != nil {
			return err
		}

		logging.WithField("identity", key).Info("Removed identity from gallery")
		fmt.Printf("Identity '%s' has been removed.\n", key)
		return nil
	},
}

var galleryInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show gallery dimension and how close identities are to each other",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGallery(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Identities: %d\n", g.Len())
		fmt.Printf("Dimension:  %d\n", g.Dimension())
		if err := checkDimension(g.Dimension()); err != nil {
			fmt.Printf("Warning: %v\n", err)
		}

		stats, ok := pairwiseSimilarity(g)
		if !ok {
			fmt.Println("Need at least two identities for pairwise similarity.")
			return nil
		}
		fmt.Printf("Most similar:  %s / %s (%.4f, distance %.4f)\n", stats.maxA, stats.maxB, stats.max, stats.maxDistance)
		fmt.Printf("Least similar: %s / %s (%.4f)\n", stats.minA, stats.minB, stats.min)
		if stats.max > cfg.Recognition.Threshold {
			fmt.Printf("Warning: the closest pair is above the match threshold %.2f\n", cfg.Recognition.Threshold)
		}

		neighbors, err := nearestNeighbors(g)
		if err != nil {
			return err
		}
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "IDENTITY\tNEAREST\tSIMILARITY")
		for _, key := range g.Keys() {
			n := neighbors[key]
			fmt.Fprintf(w, "%s\t%s\t%.4f\n", key, n.Identity, n.Similarity)
		}
		return w.Flush()
	},
}

func init() {
	galleryCmd.AddCommand(galleryListCmd, galleryRemoveCmd, galleryInspectCmd)
	rootCmd.AddCommand(galleryCmd)
}

// nearestNeighbors finds for every identity the closest other identity.
func nearestNeighbors(g *gallery.Gallery) (map[string]matching.Match, error) {
	out := make(map[string]matching.Match, g.Len())
	for _, key := range g.Keys() {
		others, err := gallery.FromMap(g.ToMap())
		if err != nil {
			return nil, err
		}
		others.Remove(key)
		emb, _ := g.Get(key)
		out[key] = matching.Best(emb, others)
	}
	return out, nil
}

// checkDimension reports galleries that were not built from dlib descriptors.
// Matching such a gallery against detector output always fails.
func checkDimension(dim int) error {
	if dim != recognition.DescriptorSize {
		return fmt.Errorf("gallery dimension %d does not match the detector descriptor size %d", dim, recognition.DescriptorSize)
	}
	return nil
}

type similarityStats struct {
	min, max               float64
	minA, minB, maxA, maxB string
	// maxDistance is the euclidean distance of the closest pair.
	maxDistance            float64
}

// pairwiseSimilarity finds the closest and farthest pair of identities.
func pairwiseSimilarity(g *gallery.Gallery) (similarityStats, bool) {
	keys := g.Keys()
	if len(keys) < 2 {
		return similarityStats{}, false
	}

	s := similarityStats{min: math.Inf(1), max: math.Inf(-1)}
	for i := 0; i < len(keys); i++ {
		a, _ := g.Get(keys[i])
		for j := i + 1; j < len(keys); j++ {
			b, _ := g.Get(keys[j])
			sim := face.CosineSimilarity(a, b)
			if sim > s.max {
				s.max, s.maxA, s.maxB = sim, keys[i], keys[j]
				s.maxDistance = face.EuclideanDistance(a, b)
			}
			if sim < s.min {
				s.min, s.minA, s.minB = sim, keys[i], keys[j]
			}
		}
	}
	return s, true
}
