package main

import (
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/faceroll/pkg/logging"
)

type model struct {
	Name string
	URL  string
}

var models = []model{
	{
		Name: "shape_predictor_5_face_landmarks.dat",
		URL:  "http://dlib.net/files/shape_predictor_5_face_landmarks.dat.bz2",
	},
	{
		Name: "dlib_face_recognition_resnet_model_v1.dat",
		URL:  "http://dlib.net/files/dlib_face_recognition_resnet_model_v1.dat.bz2",
	},
	{
		Name: "mmod_human_face_detector.dat",
		URL:  "http://dlib.net/files/mmod_human_face_detector.dat.bz2",
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download-models [dir]",
	Short: "Download the dlib detection and recognition models",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modelDir := cfg.Recognition.ModelPath
		if len(args) > 0 {
			modelDir = args[0]
		}
		return downloadModels(cmd.Context(), modelDir)
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
}

func downloadModels(ctx context.Context, modelDir string) error {
	logging.Infof("Downloading models to: %s", modelDir)

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	for _, m := range models {
		targetPath := filepath.Join(modelDir, m.Name)
		if _, err := os.Stat(targetPath); err == nil {
			logging.Infof("Model %s already exists, skipping", m.Name)
			continue
		}

		logging.Infof("Downloading %s...", m.Name)
		if err := downloadAndExtract(ctx, client, m, targetPath); err != nil {
			return fmt.Errorf("failed to download %s: %w", m.Name, err)
		}
		logging.Infof("Successfully downloaded %s", m.Name)
	}

	logging.Info("All models downloaded successfully!")
	return nil
}

// downloadAndExtract streams the bzip2 archive into targetPath. A partial
// file is removed so the next run retries it.
func downloadAndExtract(ctx context.Context, client *http.Client, m model, targetPath string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmpPath := targetPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	bar := progressbar.DefaultBytes(resp.ContentLength, m.Name)
	body := io.TeeReader(resp.Body, bar)

	if _, err = io.Copy(out, bzip2.NewReader(body)); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, targetPath)
}
