package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the workspace-relative location of the config file.
const DefaultPath = ".loom/config.yaml"

// Config holds all codeloom configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM provider used by the exchange loop
	Provider ProviderConfig `yaml:"provider"`

	// Context retrieval defaults
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Prompt composition
	Prompt PromptConfig `yaml:"prompt"`

	// Memory backend (ram or sqlite) and embeddings
	Memory MemoryConfig `yaml:"memory"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "codeloom",
		Version: "0.3.0",

		Provider: ProviderConfig{
			Name:      "gemini",
			Model:     "gemini-2.5-flash",
			Timeout:   "120s",
			MaxTokens: 8192,
		},

		Retrieval: RetrievalConfig{
			TurnLimit:           10,
			IncludeCodeBlocks:   true,
			CodeBlockLimit:      5,
			IncludeMemories:     true,
			MaxMemories:         5,
			SimilarityThreshold: 0.3,
		},

		Prompt: PromptConfig{
			MaxTokens:           32000,
			SystemPriority:      1000,
			TaskPriority:        800,
			PreferencesPriority: 600,
			MemoryPriority:      400,
			SystemPrompt:        defaultSystemPrompt,
		},

		Memory: MemoryConfig{
			Backend:          "sqlite",
			DatabasePath:     ".loom/memory.db",
			CompressionLevel: 3,
			CompressAbove:    4096,
			Embedding: EmbeddingConfig{
				Provider: "none",
				Model:    "gemini-embedding-001",
				TaskType: "SEMANTIC_SIMILARITY",
			},
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
		},
	}
}

const defaultSystemPrompt = `You are a coding assistant working inside a long-lived session.
Return code in fenced blocks tagged with their language. When asked to change
one artifact, return only that artifact.`

// Load loads configuration from a YAML file.
// A missing file yields the defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Provider.APIKey = key
	}
	// GEMINI_API_KEY wins over GOOGLE_API_KEY, matching the genai client.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Provider.APIKey = key
	}
	if model := os.Getenv("LOOM_MODEL"); model != "" {
		c.Provider.Model = model
	}
	if path := os.Getenv("LOOM_DB"); path != "" {
		c.Memory.DatabasePath = path
	}
	if c.Memory.Embedding.APIKey == "" {
		c.Memory.Embedding.APIKey = c.Provider.APIKey
	}
}

// GetProviderTimeout returns the provider timeout as a duration.
func (c *Config) GetProviderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Provider.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// ValidProviders lists the provider adapters compiled into codeloom.
var ValidProviders = []string{"gemini", "echo"}

// ValidBackends lists the memory backends.
var ValidBackends = []string{"ram", "sqlite"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.Provider.Name) {
		return fmt.Errorf("invalid provider: %s (valid: %v)", c.Provider.Name, ValidProviders)
	}
	if c.Provider.Name == "gemini" && c.Provider.APIKey == "" {
		return fmt.Errorf("gemini provider requires an API key (set GEMINI_API_KEY or GOOGLE_API_KEY)")
	}
	if !contains(ValidBackends, c.Memory.Backend) {
		return fmt.Errorf("invalid memory backend: %s (valid: %v)", c.Memory.Backend, ValidBackends)
	}
	if c.Memory.Backend == "sqlite" && c.Memory.DatabasePath == "" {
		return fmt.Errorf("sqlite memory backend requires database_path")
	}
	if err := c.Prompt.validate(); err != nil {
		return err
	}
	if c.Retrieval.TurnLimit < 0 || c.Retrieval.CodeBlockLimit < 0 {
		return fmt.Errorf("retrieval limits must be non-negative")
	}
	return nil
}

// ResolvePath makes a workspace-relative path absolute.
func ResolvePath(workspace, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
