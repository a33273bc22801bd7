package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 30, cfg.FPS)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"SIGNLINK_ADDR":        ":9000",
		"SIGNLINK_CAMERA_ID":   "2",
		"SIGNLINK_FPS":         "15",
		"SIGNLINK_MODEL_PATH":  "/opt/model.onnx",
		"SIGNLINK_CALIBRATION": "https://example.com/hist_data.json",
		"SIGNLINK_LOG_LEVEL":   "debug",
		"UNRELATED":            "x",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 2, cfg.CameraID)
	assert.Equal(t, 15, cfg.FPS)
	assert.Equal(t, "/opt/model.onnx", cfg.ModelPath)
	assert.Equal(t, "https://example.com/hist_data.json", cfg.Calibration)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, Default().DBPath, cfg.DBPath)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"fps not a number", map[string]string{"SIGNLINK_FPS": "fast"}},
		{"zero fps", map[string]string{"SIGNLINK_FPS": "0"}},
		{"negative camera", map[string]string{"SIGNLINK_CAMERA_ID": "-1"}},
		{"empty addr", map[string]string{"SIGNLINK_ADDR": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(lookupFrom(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SIGNLINK_DB_PATH=/tmp/from-file.db\nSIGNLINK_FPS=12\n"), 0o644))

	t.Setenv("SIGNLINK_FPS", "24")
	// godotenv sets variables in the process; make sure they are cleaned up.
	t.Setenv("SIGNLINK_DB_PATH", "")
	require.NoError(t, os.Unsetenv("SIGNLINK_DB_PATH"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
	assert.Equal(t, 24, cfg.FPS, "process environment should win over the file")
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}
