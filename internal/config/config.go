// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is constructed once at
// startup and threaded explicitly through every component constructor; no
// component reads flags or environment variables on its own.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Scan    ScanConfig    `mapstructure:"scan" yaml:"scan"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the Chrome process and its tabs.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
}

// NetworkConfig controls traffic capture and the optional recording proxy.
type NetworkConfig struct {
	CaptureEnabled bool   `mapstructure:"capture_enabled" yaml:"capture_enabled"`
	ProxyEnabled   bool   `mapstructure:"proxy_enabled" yaml:"proxy_enabled"`
	ProxyAddr      string `mapstructure:"proxy_addr" yaml:"proxy_addr"`
}

// LLMProvider names a reasoning-service backend.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	// ProviderOpenAICompat covers any chat-completions compatible endpoint
	// (OpenAI, DeepSeek, local gateways).
	ProviderOpenAICompat LLMProvider = "openai-compat"
)

// LLMConfig describes the reasoning-service connection.
type LLMConfig struct {
	Provider          LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// AgentConfig groups the settings of the autonomous agent loop.
type AgentConfig struct {
	LLM           LLMConfig `mapstructure:"llm" yaml:"llm"`
	MaxIterations int       `mapstructure:"max_iterations" yaml:"max_iterations"`
	Retries       int       `mapstructure:"retries" yaml:"retries"`
}

// ScanConfig gets its marching orders from CLI flags, not the config file.
type ScanConfig struct {
	TargetURL         string `mapstructure:"-" yaml:"-"`
	OutputDir         string `mapstructure:"output_dir" yaml:"output_dir"`
	SafeMode          bool   `mapstructure:"safe_mode" yaml:"safe_mode"`
	ExportCSV         bool   `mapstructure:"export_csv" yaml:"export_csv"`
	IncludeThirdParty bool   `mapstructure:"include_third_party" yaml:"include_third_party"`
}

// NewDefault returns a Config populated with production defaults.
func NewDefault() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "rogue",
			MaxSize:     50,
			MaxBackups:  3,
			MaxAge:      14,
		},
		Browser: BrowserConfig{
			Headless:       true,
			DefaultTimeout: 7 * time.Second,
		},
		Network: NetworkConfig{
			CaptureEnabled: true,
			ProxyAddr:      "127.0.0.1:8899",
		},
		Agent: AgentConfig{
			LLM: LLMConfig{
				Provider:          ProviderGemini,
				Model:             "gemini-1.5-pro",
				APITimeout:        120 * time.Second,
				Temperature:       0.2,
				MaxTokens:         8192,
				RequestsPerMinute: 30,
			},
			MaxIterations: 6,
			Retries:       2,
		},
		Scan: ScanConfig{
			OutputDir: "security_results",
		},
	}
}

// Validate checks the invariants a run cannot recover from.
func (c *Config) Validate() error {
	if c.Browser.DefaultTimeout <= 0 {
		return fmt.Errorf("browser.default_timeout must be positive")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be a positive integer")
	}
	if c.Agent.Retries < 0 {
		return fmt.Errorf("agent.retries must not be negative")
	}
	switch c.Agent.LLM.Provider {
	case ProviderGemini, ProviderOpenAICompat:
	default:
		return fmt.Errorf("unknown llm provider: %q", c.Agent.LLM.Provider)
	}
	if c.Scan.TargetURL != "" && !strings.HasPrefix(c.Scan.TargetURL, "http://") &&
		!strings.HasPrefix(c.Scan.TargetURL, "https://") {
		return fmt.Errorf("scan target must start with http:// or https://")
	}
	return nil
}

// Load reads configuration from the given file (or the default search path),
// layers environment variables on top, and unmarshals into defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".rogue"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ROGUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults plus env vars suffice.
	}

	cfg := NewDefault()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
