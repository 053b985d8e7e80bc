// File: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 7*time.Second, cfg.Browser.DefaultTimeout)
	assert.Equal(t, ProviderGemini, cfg.Agent.LLM.Provider)
	assert.Equal(t, 6, cfg.Agent.MaxIterations)
	assert.Equal(t, 2, cfg.Agent.Retries)
	assert.Equal(t, "security_results", cfg.Scan.OutputDir)
	assert.False(t, cfg.Scan.SafeMode)
	assert.True(t, cfg.Network.CaptureEnabled)
}

func TestValidate(t *testing.T) {
	t.Run("Default Config Is Valid", func(t *testing.T) {
		assert.NoError(t, NewDefault().Validate())
	})

	t.Run("Rejects Nonpositive Timeout", func(t *testing.T) {
		cfg := NewDefault()
		cfg.Browser.DefaultTimeout = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.default_timeout")
	})

	t.Run("Rejects Nonpositive Iterations", func(t *testing.T) {
		cfg := NewDefault()
		cfg.Agent.MaxIterations = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent.max_iterations")
	})

	t.Run("Rejects Negative Retries", func(t *testing.T) {
		cfg := NewDefault()
		cfg.Agent.Retries = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("Rejects Unknown Provider", func(t *testing.T) {
		cfg := NewDefault()
		cfg.Agent.LLM.Provider = "mystery"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown llm provider")
	})

	t.Run("Rejects Schemeless Target", func(t *testing.T) {
		cfg := NewDefault()
		cfg.Scan.TargetURL = "target.test"
		assert.Error(t, cfg.Validate())

		cfg.Scan.TargetURL = "https://target.test"
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	t.Run("Missing File Falls Back To Defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
		// An explicitly named file that does not exist is an error...
		require.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("No File On Search Path Uses Defaults", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(t.TempDir()))
		defer func() { _ = os.Chdir(wd) }()

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.Agent.MaxIterations)
	})

	t.Run("File Values Override Defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := []byte("agent:\n  max_iterations: 12\nscan:\n  safe_mode: true\nlogger:\n  level: debug\n")
		require.NoError(t, os.WriteFile(path, content, 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 12, cfg.Agent.MaxIterations)
		assert.True(t, cfg.Scan.SafeMode)
		assert.Equal(t, "debug", cfg.Logger.Level)
		// Untouched values keep their defaults.
		assert.Equal(t, 2, cfg.Agent.Retries)
	})
}
