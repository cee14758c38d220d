// Package config provides configuration loading and management for Foreman.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Foreman configuration
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Repo     RepoConfig     `yaml:"repo"`
	NATS     NATSConfig     `yaml:"nats"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Executor ExecutorConfig `yaml:"executor"`
}

// ModelConfig configures the LLM model settings
type ModelConfig struct {
	// Name is the model to use for planning and verdict normalization
	Name string `yaml:"name"`
	// Endpoint is the OpenAI-compatible API endpoint
	Endpoint string `yaml:"endpoint"`
	// APIKey is the bearer token, if the endpoint requires one
	APIKey string `yaml:"api_key"`
	// Timeout is the maximum time to wait for model responses
	Timeout time.Duration `yaml:"timeout"`
}

// RepoConfig configures the project repository settings
type RepoConfig struct {
	// Path is the project root path (auto-detected from git if empty)
	Path string `yaml:"path"`
}

// NATSConfig configures the NATS connection used for delegated work and
// event publishing
type NATSConfig struct {
	// URL is the NATS server URL (empty = events go to the log only)
	URL string `yaml:"url"`
}

// WorkflowConfig configures the orchestration loop
type WorkflowConfig struct {
	// MaxAttempts is the per-task attempt cap (0 = default)
	MaxAttempts int `yaml:"max_attempts"`
	// DevelopTimeout bounds one development stage
	DevelopTimeout time.Duration `yaml:"develop_timeout"`
	// ReviewTimeout bounds one review stage
	ReviewTimeout time.Duration `yaml:"review_timeout"`
	// ReportTimeout bounds verdict normalization and report composition
	ReportTimeout time.Duration `yaml:"report_timeout"`
	// ReportTailBytes bounds the stored development report
	ReportTailBytes int `yaml:"report_tail_bytes"`
	// AutoResume continues an existing active plan without prompting
	AutoResume bool `yaml:"auto_resume"`
}

// ExecutorConfig configures the delegated executor
type ExecutorConfig struct {
	// MaxRetries is the number of additional attempts after the first
	// for retryable failures
	MaxRetries int `yaml:"max_retries"`
	// Allowlist restricts the actions the collaborator may take
	// (empty = allow all)
	Allowlist []string `yaml:"allowlist"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Name:     "qwen2.5-coder:32b",
			Endpoint: "http://localhost:11434/v1",
			Timeout:  5 * time.Minute,
		},
		Repo: RepoConfig{
			Path: "", // Auto-detect
		},
		NATS: NATSConfig{
			URL: "",
		},
		Workflow: WorkflowConfig{
			MaxAttempts:     3,
			DevelopTimeout:  30 * time.Minute,
			ReviewTimeout:   10 * time.Minute,
			ReportTimeout:   2 * time.Minute,
			ReportTailBytes: 16 * 1024,
			AutoResume:      false,
		},
		Executor: ExecutorConfig{
			MaxRetries: 2,
			Allowlist:  nil, // Allow all
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.Endpoint == "" {
		return fmt.Errorf("model.endpoint is required")
	}
	if c.Workflow.MaxAttempts < 0 {
		return fmt.Errorf("workflow.max_attempts must not be negative")
	}
	if c.Executor.MaxRetries < 0 {
		return fmt.Errorf("executor.max_retries must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Model
	if other.Model.Name != "" {
		c.Model.Name = other.Model.Name
	}
	if other.Model.Endpoint != "" {
		c.Model.Endpoint = other.Model.Endpoint
	}
	if other.Model.APIKey != "" {
		c.Model.APIKey = other.Model.APIKey
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}

	// Repo
	if other.Repo.Path != "" {
		c.Repo.Path = other.Repo.Path
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// Workflow
	if other.Workflow.MaxAttempts != 0 {
		c.Workflow.MaxAttempts = other.Workflow.MaxAttempts
	}
	if other.Workflow.DevelopTimeout != 0 {
		c.Workflow.DevelopTimeout = other.Workflow.DevelopTimeout
	}
	if other.Workflow.ReviewTimeout != 0 {
		c.Workflow.ReviewTimeout = other.Workflow.ReviewTimeout
	}
	if other.Workflow.ReportTimeout != 0 {
		c.Workflow.ReportTimeout = other.Workflow.ReportTimeout
	}
	if other.Workflow.ReportTailBytes != 0 {
		c.Workflow.ReportTailBytes = other.Workflow.ReportTailBytes
	}
	if other.Workflow.AutoResume {
		c.Workflow.AutoResume = true
	}

	// Executor
	if other.Executor.MaxRetries != 0 {
		c.Executor.MaxRetries = other.Executor.MaxRetries
	}
	if len(other.Executor.Allowlist) > 0 {
		c.Executor.Allowlist = other.Executor.Allowlist
	}
}
