// Package config provides configuration management for faceroll.
// It loads configuration from YAML files with sensible defaults and
// lets FACEROLL_* environment variables override selected keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all faceroll configuration.
type Config struct {
	Recognition RecognitionConfig `yaml:"recognition"`
	Enrollment  EnrollmentConfig  `yaml:"enrollment"`
	Gallery     GalleryConfig     `yaml:"gallery"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RecognitionConfig holds detection and matching settings.
type RecognitionConfig struct {
	// Threshold is the cosine similarity a match must strictly exceed.
	Threshold float64 `yaml:"threshold"`
	// OverlapThreshold is the overlap ratio above which two detections are duplicates.
	OverlapThreshold float64  `yaml:"overlap_threshold"`
	Variants         []string `yaml:"variants"`
	ModelPath        string   `yaml:"model_path"`
	CNNDetector      bool     `yaml:"cnn_detector"`
	Workers          int      `yaml:"workers"`
}

// EnrollmentConfig holds gallery building settings.
type EnrollmentConfig struct {
	DatasetDir            string `yaml:"dataset_dir"`
	AugmentationsPerImage int    `yaml:"augmentations_per_image"`
	Aggregation           string `yaml:"aggregation"`
	Seed                  int64  `yaml:"seed"`
	Visualization         string `yaml:"visualization"`
}

// GalleryConfig holds gallery persistence settings.
type GalleryConfig struct {
	Backend           string `yaml:"backend"`
	Path              string `yaml:"path"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
	Passphrase        string `yaml:"passphrase"`
	DatabaseURL       string `yaml:"database_url"`
}

// OutputConfig holds recognition input and annotation output settings.
type OutputConfig struct {
	InputDir        string `yaml:"input_dir"`
	AnnotatedDir    string `yaml:"annotated_dir"`
	AnnotatedPrefix string `yaml:"annotated_prefix"`
	Annotate        bool   `yaml:"annotate"`
	JPEGQuality     int    `yaml:"jpeg_quality"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Recognition: RecognitionConfig{
			Threshold:        0.45,
			OverlapThreshold: 0.7,
			Variants:         []string{"original", "enhanced", "histogram_equalized"},
			ModelPath:        filepath.Join(homeDir, ".local/share/faceroll/models"),
			CNNDetector:      false,
			Workers:          1,
		},
		Enrollment: EnrollmentConfig{
			DatasetDir:            "dataset",
			AugmentationsPerImage: 2,
			Aggregation:           "auto",
			Seed:                  0,
			Visualization:         "training_visualization.png",
		},
		Gallery: GalleryConfig{
			Backend:           "file",
			Path:              "face_embeddings.json",
			EncryptionEnabled: false,
		},
		Output: OutputConfig{
			InputDir:        "test-images",
			AnnotatedDir:    "output",
			AnnotatedPrefix: "annotated_",
			Annotate:        true,
			JPEGQuality:     95,
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   "",
			Format: "text",
		},
	}
}

// Load loads configuration from the specified file.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, err
	}

	return config, nil
}

// LoadDefault tries to load configuration from default locations.
func LoadDefault() (*Config, error) {
	// Try system config first
	if _, err := os.Stat("/etc/faceroll/faceroll.yaml"); err == nil {
		return Load("/etc/faceroll/faceroll.yaml")
	}

	// Try user config
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	userConfig := filepath.Join(homeDir, ".config/faceroll/faceroll.yaml")
	if _, err := os.Stat(userConfig); err == nil {
		return Load(userConfig)
	}

	// Return defaults
	return DefaultConfig(), nil
}

// ApplyEnv overrides configuration values from FACEROLL_* environment
// variables. Values that fail to parse are reported and leave the field as is.
func (c *Config) ApplyEnv() error {
	var errs []string

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}

	float("FACEROLL_THRESHOLD", &c.Recognition.Threshold)
	str("FACEROLL_MODEL_PATH", &c.Recognition.ModelPath)
	integer("FACEROLL_WORKERS", &c.Recognition.Workers)
	str("FACEROLL_DATASET_DIR", &c.Enrollment.DatasetDir)
	str("FACEROLL_AGGREGATION", &c.Enrollment.Aggregation)
	str("FACEROLL_GALLERY_BACKEND", &c.Gallery.Backend)
	str("FACEROLL_GALLERY_PATH", &c.Gallery.Path)
	boolean("FACEROLL_GALLERY_ENCRYPTION", &c.Gallery.EncryptionEnabled)
	str("FACEROLL_GALLERY_PASSPHRASE", &c.Gallery.Passphrase)
	str("FACEROLL_DATABASE_URL", &c.Gallery.DatabaseURL)
	str("FACEROLL_INPUT_DIR", &c.Output.InputDir)
	str("FACEROLL_OUTPUT_DIR", &c.Output.AnnotatedDir)
	str("FACEROLL_LOG_LEVEL", &c.Logging.Level)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Recognition.Threshold < -1 || c.Recognition.Threshold > 1 {
		return fmt.Errorf("threshold must be between -1 and 1, got %f", c.Recognition.Threshold)
	}
	if c.Recognition.OverlapThreshold <= 0 || c.Recognition.OverlapThreshold > 1 {
		return fmt.Errorf("overlap_threshold must be in (0, 1], got %f", c.Recognition.OverlapThreshold)
	}
	if len(c.Recognition.Variants) == 0 {
		return fmt.Errorf("at least one preprocessing variant is required")
	}
	validVariants := map[string]bool{"original": true, "enhanced": true, "histogram_equalized": true}
	for _, v := range c.Recognition.Variants {
		if !validVariants[v] {
			return fmt.Errorf("invalid variant: %s (must be original, enhanced, or histogram_equalized)", v)
		}
	}
	if c.Recognition.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Recognition.Workers)
	}

	if c.Enrollment.AugmentationsPerImage < 0 {
		return fmt.Errorf("augmentations_per_image must not be negative, got %d", c.Enrollment.AugmentationsPerImage)
	}
	validAggregations := map[string]bool{"auto": true, "mean": true, "median": true}
	if !validAggregations[c.Enrollment.Aggregation] {
		return fmt.Errorf("invalid aggregation: %s (must be auto, mean, or median)", c.Enrollment.Aggregation)
	}

	switch c.Gallery.Backend {
	case "file":
		if c.Gallery.Path == "" {
			return fmt.Errorf("gallery path is required for the file backend")
		}
	case "postgres":
		if c.Gallery.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid gallery backend: %s (must be file or postgres)", c.Gallery.Backend)
	}

	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.Output.JPEGQuality)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Recognition.ModelPath = ExpandPath(c.Recognition.ModelPath)
	c.Enrollment.DatasetDir = ExpandPath(c.Enrollment.DatasetDir)
	c.Enrollment.Visualization = ExpandPath(c.Enrollment.Visualization)
	c.Gallery.Path = ExpandPath(c.Gallery.Path)
	c.Output.InputDir = ExpandPath(c.Output.InputDir)
	c.Output.AnnotatedDir = ExpandPath(c.Output.AnnotatedDir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates the directories written to during a run.
func (c *Config) EnsureDirectories() error {
	if c.Output.Annotate && c.Output.AnnotatedDir != "" {
		if err := os.MkdirAll(c.Output.AnnotatedDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if c.Gallery.Backend == "file" {
		if dir := filepath.Dir(c.Gallery.Path); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return fmt.Errorf("failed to create gallery directory: %w", err)
			}
		}
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}
