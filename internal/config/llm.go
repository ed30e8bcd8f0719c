package config

// ProviderConfig configures the language-model provider.
type ProviderConfig struct {
	Name      string `yaml:"name"` // gemini, echo
	APIKey    string `yaml:"api_key,omitempty"`
	Model     string `yaml:"model"`
	Timeout   string `yaml:"timeout"`
	MaxTokens int    `yaml:"max_tokens"`
}
