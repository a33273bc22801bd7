// Package config reads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variable prefix.
const Prefix = "SIGNLINK_"

// Config holds every runtime setting.
type Config struct {
	Addr        string
	DBPath      string
	CameraID    int
	FPS         int
	ModelPath   string
	ModelInput  string
	ModelOutput string
	ORTLib      string
	Calibration string
	StaticDir   string
	LogFile     string
	LogLevel    string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Addr:        "127.0.0.1:8080",
		DBPath:      "signlink.db",
		CameraID:    0,
		FPS:         30,
		ModelPath:   "models/sign_cnn.onnx",
		ModelInput:  "input",
		ModelOutput: "output",
		Calibration: "models/hist_data.json",
		StaticDir:   "web",
		LogLevel:    "info",
	}
}

// Load applies envFile (missing is fine) and then SIGNLINK_* variables over
// the defaults. Variables already set in the process win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv overlays the variables returned by lookup on the defaults.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	strs := map[string]*string{
		"ADDR":         &cfg.Addr,
		"DB_PATH":      &cfg.DBPath,
		"MODEL_PATH":   &cfg.ModelPath,
		"MODEL_INPUT":  &cfg.ModelInput,
		"MODEL_OUTPUT": &cfg.ModelOutput,
		"ORT_LIB":      &cfg.ORTLib,
		"CALIBRATION":  &cfg.Calibration,
		"STATIC_DIR":   &cfg.StaticDir,
		"LOG_FILE":     &cfg.LogFile,
		"LOG_LEVEL":    &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(Prefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CAMERA_ID": &cfg.CameraID,
		"FPS":       &cfg.FPS,
	}
	for key, dst := range ints {
		v, ok := lookup(Prefix + key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s%s: %w", Prefix, key, err)
		}
		*dst = n
	}

	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("config: fps must be positive, got %d", c.FPS)
	}
	if c.CameraID < 0 {
		return fmt.Errorf("config: camera id must not be negative, got %d", c.CameraID)
	}
	if c.Addr == "" {
		return errors.New("config: listen address is empty")
	}
	return nil
}
