package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr          = ":8001"
	DefaultModel               = "gpt-4o-mini"
	DefaultTemperature         = 0.4
	DefaultEndpoint            = "https://api.openai.com/v1/chat/completions"
	DefaultSystemPrompt        = "You write concise QBR narratives. Respond ONLY with JSON matching the requested shape."
	DefaultDeclineThresholdPct = -10
)

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Narrative NarrativeConfig `yaml:"narrative"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Reports   ReportsConfig   `yaml:"reports"`
	UI        UIConfig        `yaml:"ui"`

	// LoadedFrom is the file or directory the configuration came from.
	LoadedFrom string `yaml:"-"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	ListenAddr             string   `yaml:"listen_addr"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
	ReadTimeoutSeconds     int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int      `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// friends. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// OpenAIConfig holds provider settings used by the proxy endpoint and by
// direct-mode generation.
type OpenAIConfig struct {
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Endpoint       string  `yaml:"endpoint"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	SystemPrompt   string  `yaml:"system_prompt"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// NarrativeConfig tunes the decline policy, fallback next steps, and the
// LLM defaults applied beneath the dataset's own llm_config.
type NarrativeConfig struct {
	DeclineThresholdPct *int           `yaml:"decline_threshold_pct"`
	NextSteps           NextStepConfig `yaml:"next_steps"`
	LLM                 LLMDefaults    `yaml:"llm"`
	// WarnIntervalSeconds throttles repeated generation-failure warnings.
	WarnIntervalSeconds int `yaml:"warn_interval_seconds"`
}

// NextStepConfig overrides the fallback next-step descriptions.
type NextStepConfig struct {
	ApproveExpansion       string `yaml:"approve_expansion"`
	MaintainResponsiveness string `yaml:"maintain_responsiveness"`
	RecalibrateBaseline    string `yaml:"recalibrate_baseline"`
}

// LLMDefaults mirror the dataset llm_config block.
type LLMDefaults struct {
	Enabled       *bool    `yaml:"enabled"`
	Model         string   `yaml:"model"`
	Temperature   *float64 `yaml:"temperature"`
	ProxyEndpoint string   `yaml:"proxy_endpoint"`
}

// DatasetConfig locates the reporting data.
type DatasetConfig struct {
	Path           string `yaml:"path"`
	URL            string `yaml:"url"`
	RefreshMinutes int    `yaml:"refresh_minutes"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RecorderConfig controls the SQLite hydration audit log.
type RecorderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RateLimitConfig bounds LLM-consuming requests per client IP. A negative
// request count disables limiting.
type RateLimitConfig struct {
	Requests      int `yaml:"requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// ReportsConfig controls offline report regeneration by the service when
// the dataset changes.
type ReportsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Dir            string `yaml:"dir"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// UIConfig selects the console surface: "headless" (plain log lines) or
// "tview" (status dashboard, interactive terminals only).
type UIConfig struct {
	Mode string `yaml:"mode"`
}

// Load reads a YAML file, or every *.yaml/*.yml file in a directory merged
// in name order, then applies defaults and validates the result.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	files := []string{path}
	if info.IsDir() {
		if files, err = yamlFiles(path); err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no YAML files found in %s", path)
		}
	}

	var cfg Config
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", file, err)
		}
	}
	cfg.LoadedFrom = path
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.normalize()
	return &cfg
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8000", "http://127.0.0.1:8000"}
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 60
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 10
	}

	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		c.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if strings.TrimSpace(c.OpenAI.Model) == "" {
		c.OpenAI.Model = DefaultModel
	}
	if strings.TrimSpace(c.OpenAI.Endpoint) == "" {
		c.OpenAI.Endpoint = DefaultEndpoint
	}
	if c.OpenAI.Temperature == 0 {
		c.OpenAI.Temperature = DefaultTemperature
	}
	if strings.TrimSpace(c.OpenAI.SystemPrompt) == "" {
		c.OpenAI.SystemPrompt = DefaultSystemPrompt
	}
	if c.OpenAI.TimeoutSeconds == 0 {
		c.OpenAI.TimeoutSeconds = 30
	}

	if c.Narrative.DeclineThresholdPct == nil {
		v := DefaultDeclineThresholdPct
		c.Narrative.DeclineThresholdPct = &v
	}
	if c.Narrative.WarnIntervalSeconds == 0 {
		c.Narrative.WarnIntervalSeconds = 60
	}

	if strings.TrimSpace(c.Dataset.Path) == "" {
		c.Dataset.Path = filepath.Join("data", "data.json")
	}
	if c.Dataset.TimeoutSeconds == 0 {
		c.Dataset.TimeoutSeconds = 30
	}
	if strings.TrimSpace(c.Recorder.Path) == "" {
		c.Recorder.Path = filepath.Join("data", "qbr", "hydrations.db")
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 20
	}
	if strings.TrimSpace(c.Logging.Dir) == "" {
		c.Logging.Dir = filepath.Join("data", "logs")
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = 7
	}
	c.UI.Mode = strings.ToLower(strings.TrimSpace(c.UI.Mode))
	if c.UI.Mode == "" {
		c.UI.Mode = "headless"
	}
	if strings.TrimSpace(c.Reports.Dir) == "" {
		c.Reports.Dir = filepath.Join("data", "reports")
	}
	if c.Reports.TimeoutSeconds == 0 {
		c.Reports.TimeoutSeconds = 120
	}
}

func (c *Config) validate() error {
	var errs []error
	if *c.Narrative.DeclineThresholdPct > 0 {
		errs = append(errs, fmt.Errorf("narrative.decline_threshold_pct must be zero or negative, got %d", *c.Narrative.DeclineThresholdPct))
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		errs = append(errs, fmt.Errorf("openai.temperature must be within [0,2], got %v", c.OpenAI.Temperature))
	}
	if t := c.Narrative.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("narrative.llm.temperature must be within [0,2], got %v", *t))
	}
	if c.OpenAI.MaxTokens < 0 {
		errs = append(errs, errors.New("openai.max_tokens must not be negative"))
	}
	if c.OpenAI.TimeoutSeconds < 0 || c.Dataset.TimeoutSeconds < 0 || c.Reports.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.Dataset.RefreshMinutes < 0 {
		errs = append(errs, errors.New("dataset.refresh_minutes must not be negative"))
	}
	if c.RateLimit.WindowSeconds < 0 {
		errs = append(errs, errors.New("rate_limit.window_seconds must not be negative"))
	}
	if c.UI.Mode != "headless" && c.UI.Mode != "tview" {
		errs = append(errs, fmt.Errorf("ui.mode must be headless or tview, got %q", c.UI.Mode))
	}
	if c.Logging.RetentionDays < 0 {
		errs = append(errs, errors.New("logging.retention_days must not be negative"))
	}
	return errors.Join(errs...)
}

// OpenAITimeout returns the per-call generation timeout.
func (c *Config) OpenAITimeout() time.Duration {
	return time.Duration(c.OpenAI.TimeoutSeconds) * time.Second
}

// DatasetRefresh returns the remote dataset poll interval; zero disables it.
func (c *Config) DatasetRefresh() time.Duration {
	return time.Duration(c.Dataset.RefreshMinutes) * time.Minute
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Listen: %s (origins: %s)\n", c.Server.ListenAddr, strings.Join(c.Server.AllowedOrigins, ", "))
	keyState := "missing"
	if c.OpenAI.APIKey != "" {
		keyState = "set"
	}
	fmt.Printf("OpenAI: model=%s endpoint=%s key=%s timeout=%ds\n", c.OpenAI.Model, c.OpenAI.Endpoint, keyState, c.OpenAI.TimeoutSeconds)
	fmt.Printf("Narrative: decline threshold %d%%\n", *c.Narrative.DeclineThresholdPct)
	if c.Dataset.URL != "" {
		fmt.Printf("Dataset: %s (from %s, refresh=%dm)\n", c.Dataset.Path, c.Dataset.URL, c.Dataset.RefreshMinutes)
	} else {
		fmt.Printf("Dataset: %s\n", c.Dataset.Path)
	}
	if c.Recorder.Enabled {
		fmt.Printf("Recorder: %s\n", c.Recorder.Path)
	}
	if c.Reports.Enabled {
		fmt.Printf("Reports: %s\n", c.Reports.Dir)
	}
	fmt.Printf("UI: %s\n", c.UI.Mode)
	if c.RateLimit.Requests > 0 {
		fmt.Printf("Rate limit: %d requests per %ds\n", c.RateLimit.Requests, c.RateLimit.WindowSeconds)
	}
}
