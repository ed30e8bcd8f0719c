package config

import "fmt"

// RetrievalConfig holds the default context retrieval options.
type RetrievalConfig struct {
	TurnLimit           int      `yaml:"turn_limit"`
	IncludeCodeBlocks   bool     `yaml:"include_code_blocks"`
	CodeBlockLimit      int      `yaml:"code_block_limit"`
	IncludeMemories     bool     `yaml:"include_memories"`
	MemoryTypes         []string `yaml:"memory_types,omitempty"`
	MaxMemories         int      `yaml:"max_memories"`
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
}

// PromptConfig configures prompt composition.
type PromptConfig struct {
	// MaxTokens is the composed prompt ceiling; 0 disables the budget.
	MaxTokens int `yaml:"max_tokens"`

	SystemPriority      int `yaml:"system_priority"`
	TaskPriority        int `yaml:"task_priority"`
	PreferencesPriority int `yaml:"preferences_priority"`
	MemoryPriority      int `yaml:"memory_priority"`

	SystemPrompt string `yaml:"system_prompt"`
	Preferences  string `yaml:"preferences,omitempty"`
}

// MaxPriority is the highest priority a prompt layer may carry.
const MaxPriority = 1000

func (p PromptConfig) validate() error {
	if p.MaxTokens < 0 {
		return fmt.Errorf("prompt.max_tokens must be non-negative")
	}
	for name, v := range map[string]int{
		"system_priority":      p.SystemPriority,
		"task_priority":        p.TaskPriority,
		"preferences_priority": p.PreferencesPriority,
		"memory_priority":      p.MemoryPriority,
	} {
		if v < 0 || v > MaxPriority {
			return fmt.Errorf("prompt.%s must be in [0, %d], got %d", name, MaxPriority, v)
		}
	}
	return nil
}
