// Package config loads service settings from the environment, optionally seeded
// from a YAML file named by ANNOTATOR_CONFIG.
package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/Lllllllleong/pdfannotator/internal/fonts"
	"github.com/Lllllllleong/pdfannotator/internal/gcp"
)

// DefaultMinFontBytes rejects placeholder or error pages served with a 200 status.
// A complete CJK font is several megabytes.
const DefaultMinFontBytes = 1024 * 1024

var DefaultFontCandidates = []string{
	"./NotoSansTC-Medium.ttf",
	"./NotoSansTC-Regular.ttf",
}

// Config holds all configuration shared by the commands.
type Config struct {
	Port                string   `yaml:"port"`
	FontBaseURL         string   `yaml:"fontBaseUrl"`
	FontCandidates      []string `yaml:"fontCandidates"`
	MinFontBytes        int64    `yaml:"minFontBytes"`
	FontDir             string   `yaml:"fontDir"`
	DefaultZoom         float64  `yaml:"defaultZoom"`
	ProjectID           string   `yaml:"projectId"`
	ExportBucket        string   `yaml:"exportBucket"`
	FirestoreCollection string   `yaml:"firestoreCollection"`
}

// Load reads the optional YAML file first, then lets environment variables override it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                "8080",
		FontCandidates:      DefaultFontCandidates,
		MinFontBytes:        DefaultMinFontBytes,
		DefaultZoom:         1.5,
		FirestoreCollection: "exports",
	}

	if path := gcp.GetEnv("ANNOTATOR_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = gcp.GetEnv("PORT", cfg.Port)
	cfg.FontBaseURL = gcp.GetEnv("FONT_BASE_URL", cfg.FontBaseURL)
	cfg.FontDir = gcp.GetEnv("FONT_DIR", cfg.FontDir)
	cfg.ProjectID = gcp.GetEnv("PROJECT_ID", cfg.ProjectID)
	cfg.ExportBucket = gcp.GetEnv("EXPORT_BUCKET", cfg.ExportBucket)
	cfg.FirestoreCollection = gcp.GetEnv("FIRESTORE_COLLECTION", cfg.FirestoreCollection)

	if v := gcp.GetEnv("FONT_CANDIDATES", ""); v != "" {
		cfg.FontCandidates = splitList(v)
	}
	if v := gcp.GetEnv("MIN_FONT_BYTES", ""); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("MIN_FONT_BYTES: %w", err)
		}
		cfg.MinFontBytes = n
	}
	if v := gcp.GetEnv("DEFAULT_ZOOM", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("DEFAULT_ZOOM: %w", err)
		}
		cfg.DefaultZoom = f
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FontResolver builds a resolver over the configured candidates. objects may be nil
// when no gs:// candidate is configured.
func (c *Config) FontResolver(objects fonts.ObjectReader) *fonts.Resolver {
	return &fonts.Resolver{
		Candidates: c.FontCandidates,
		BaseURL:    c.FontBaseURL,
		MinBytes:   c.MinFontBytes,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Objects:    objects,
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if len(c.FontCandidates) == 0 {
		return fmt.Errorf("at least one font candidate must be configured")
	}
	if c.MinFontBytes < 0 {
		return fmt.Errorf("minFontBytes must not be negative, got %d", c.MinFontBytes)
	}
	if c.DefaultZoom <= 0 {
		return fmt.Errorf("defaultZoom must be positive, got %v", c.DefaultZoom)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
