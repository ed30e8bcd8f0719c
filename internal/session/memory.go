package session

import (
	"context"
	"fmt"

	"codeloom/internal/config"
	"codeloom/internal/logging"
	"codeloom/internal/memory"
)

// OpenMemory builds the configured memory backend. The returned close
// function is never nil.
func OpenMemory(ctx context.Context, cfg config.MemoryConfig, workspace string) (memory.Store, func() error, error) {
	noop := func() error { return nil }

	var embedder memory.Embedder
	switch cfg.Embedding.Provider {
	case "", "none":
	case "genai":
		e, err := memory.NewGenAIEmbedder(ctx, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.TaskType)
		if err != nil {
			return nil, noop, fmt.Errorf("embedding: %w", err)
		}
		embedder = e
	default:
		return nil, noop, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	switch cfg.Backend {
	case "ram":
		logging.Boot("memory backend: ram")
		return memory.NewRAMStore(embedder), noop, nil
	case "sqlite":
		path := config.ResolvePath(workspace, cfg.DatabasePath)
		s, err := memory.NewSQLiteStore(path, memory.SQLiteOptions{
			CompressionLevel: cfg.CompressionLevel,
			CompressAbove:    cfg.CompressAbove,
			Embedder:         embedder,
		})
		if err != nil {
			return nil, noop, err
		}
		logging.Boot("memory backend: sqlite at %s", path)
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}
