package pulsestate

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.75, cfg.Detector.ThresholdHigh)
	assert.Equal(t, -0.75, cfg.Detector.ThresholdLow)
	assert.Equal(t, 0.2, cfg.Detector.Refractory)
	assert.Len(t, cfg.DwellEdges(), 101)

	opts := cfg.HMMOptions(nil)
	assert.Equal(t, 500, opts.MaxIterations)
	assert.Equal(t, 16, opts.Symbols)
	assert.Equal(t, 10, opts.Restarts)
}

func TestConfig_ValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"thresholds":  func(c *Config) { c.Detector.ThresholdLow = c.Detector.ThresholdHigh },
		"hysteresis":  func(c *Config) { c.Detector.AutoThreshold = true; c.Detector.Hysteresis = 0.6 },
		"filterOrder": func(c *Config) { c.Filter.CutoffHz = 5; c.Filter.Order = 3 },
		"window":      func(c *Config) { c.Rate.Window = 0 },
		"states":      func(c *Config) { c.HMM.States = 0 },
		"restarts":    func(c *Config) { c.HMM.Restarts = 0 },
		"emission":    func(c *Config) { c.HMM.Emission = "poisson" },
		"dwell":       func(c *Config) { c.Dwell.MaxSeconds = c.Dwell.MinSeconds },
		"spectrum":    func(c *Config) { c.Spectrum.MaxRate = 0.1 },
		"logLevel":    func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PULSE_HMM_STATES", "3")
	t.Setenv("PULSE_HMM_EMISSION", "discrete")
	t.Setenv("PULSE_CAPTURE_DURATION", "90s")
	t.Setenv("PULSE_AUTO_THRESHOLD", "true")
	t.Setenv("PULSE_HMM_RESTARTS", "4")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.HMM.States)
	assert.Equal(t, "discrete", cfg.HMM.Emission)
	assert.Equal(t, 90*time.Second, cfg.Acquisition.Duration)
	assert.True(t, cfg.Detector.AutoThreshold)
	assert.Equal(t, 4, cfg.HMMOptions(nil).Restarts)
}

func TestLoadConfig_EnvFileAndPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.env")
	content := "PULSE_RATE_WINDOW=20\nPULSE_HMM_STATES=4\n# comment\nPULSE_LOG_FORMAT=json\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// 进程环境变量优先
	t.Setenv("PULSE_HMM_STATES", "5")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 20.0, cfg.Rate.Window)
	assert.Equal(t, 5, cfg.HMM.States)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	t.Setenv("PULSE_HMM_STATES", "three")
	_, err = LoadConfig("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("debug", "json", &buf)
	require.NoError(t, err)
	logger.WithField("stage", "detect").Debug("hello")
	assert.Contains(t, buf.String(), `"stage":"detect"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = NewLogger("loud", "text", &buf)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewLogger("info", "xml", &buf)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
