// Package config loads application settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application settings.
type Config struct {
	Addr      string
	CameraID  int
	DataDir   string
	StaticDir string

	ModelPath     string
	ModelSize     int // model coordinate space the mapper scales from
	InputSize     int // network input size
	ConfThreshold float64
	NMSThreshold  float64

	DisplayWidth  int
	DisplayHeight int
	ScaleMode     string
	DetectTimeout time.Duration

	Preview bool
	Tray    bool
}

// DefaultEnvFile is the optional dotenv file read by Load.
const DefaultEnvFile = ".env"

// Load reads envFile, if it exists, into the process environment without
// overriding variables that are already set, then builds a Config from the
// environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	home, _ := os.UserHomeDir()

	cfg := &Config{
		Addr:      getEnv("ADDR", "localhost:8080"),
		CameraID:  getEnvAsInt("CAMERA_ID", 0),
		DataDir:   getEnv("DATA_DIR", filepath.Join(home, ".visionups")),
		StaticDir: getEnv("STATIC_DIR", "web"),

		ModelPath:     getEnv("MODEL_PATH", "yolov8n.onnx"),
		ModelSize:     getEnvAsInt("MODEL_SIZE", 320),
		ConfThreshold: getEnvAsFloat("CONF_THRESHOLD", 0.25),
		NMSThreshold:  getEnvAsFloat("NMS_THRESHOLD", 0.45),

		DisplayWidth:  getEnvAsInt("DISPLAY_WIDTH", 0),
		DisplayHeight: getEnvAsInt("DISPLAY_HEIGHT", 0),
		ScaleMode:     getEnv("SCALE_MODE", "stretch"),
		DetectTimeout: time.Duration(getEnvAsInt("DETECT_TIMEOUT_MS", 0)) * time.Millisecond,

		Preview: getEnvAsBool("PREVIEW", true),
		Tray:    getEnvAsBool("TRAY", false),
	}
	// The network reports boxes in its input space, so both follow one another
	// unless set separately.
	cfg.InputSize = getEnvAsInt("INPUT_SIZE", cfg.ModelSize)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.ModelSize <= 0:
		return fmt.Errorf("MODEL_SIZE must be positive, got %d", c.ModelSize)
	case c.InputSize <= 0:
		return fmt.Errorf("INPUT_SIZE must be positive, got %d", c.InputSize)
	case c.ConfThreshold < 0 || c.ConfThreshold > 1:
		return fmt.Errorf("CONF_THRESHOLD must be within [0,1], got %g", c.ConfThreshold)
	case c.NMSThreshold < 0 || c.NMSThreshold > 1:
		return fmt.Errorf("NMS_THRESHOLD must be within [0,1], got %g", c.NMSThreshold)
	case c.DisplayWidth < 0 || c.DisplayHeight < 0:
		return fmt.Errorf("DISPLAY_WIDTH and DISPLAY_HEIGHT must not be negative, got %dx%d", c.DisplayWidth, c.DisplayHeight)
	case c.DetectTimeout < 0:
		return fmt.Errorf("DETECT_TIMEOUT_MS must not be negative, got %s", c.DetectTimeout)
	}
	return nil
}

// DBPath returns the sqlite database location inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "visionups.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
