package config

// MemoryConfig configures the external memory backend.
type MemoryConfig struct {
	// Backend: "ram" (process lifetime) or "sqlite"
	Backend string `yaml:"backend"`

	// SQLite database path, workspace-relative unless absolute
	DatabasePath string `yaml:"database_path"`

	// zstd level for stored payloads and the size (bytes) above which they are compressed
	CompressionLevel int `yaml:"compression_level"`
	CompressAbove    int `yaml:"compress_above"`

	Embedding EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig configures semantic similarity for memory search.
type EmbeddingConfig struct {
	// Provider: "none" (keyword overlap scoring) or "genai"
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key,omitempty"`
	Model    string `yaml:"model"`

	// TaskType for GenAI embeddings: SEMANTIC_SIMILARITY, RETRIEVAL_DOCUMENT,
	// RETRIEVAL_QUERY, CODE_RETRIEVAL_QUERY
	TaskType string `yaml:"task_type"`
}
