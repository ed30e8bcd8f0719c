package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetState() {
	CloseAll()
	CloseAudit()
	optsMu.Lock()
	opts = Options{}
	optsMu.Unlock()
}

// TestAllCategoriesLog tests that all categories create log files when debug mode is on
func TestAllCategoriesLog(t *testing.T) {
	resetState()
	defer resetState()

	tempDir := t.TempDir()
	if err := Initialize(tempDir, Options{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("Expected debug mode to be enabled")
	}

	for _, cat := range AllCategories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Session("Convenience session log")
	Graph("Convenience graph log")
	CodeBlock("Convenience codeblock log")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".loom", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	for _, cat := range AllCategories {
		found := false
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("Log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug mode is off
func TestDebugModeDisabled(t *testing.T) {
	resetState()
	defer resetState()

	tempDir := t.TempDir()
	if err := Initialize(tempDir, Options{DebugMode: false}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	Get(CategorySession).Info("should not be written")
	Graph("should not be written")

	if _, err := os.Stat(filepath.Join(tempDir, ".loom", "logs")); !os.IsNotExist(err) {
		t.Errorf("Expected no logs directory in production mode, got err=%v", err)
	}
}

func TestCategoryFilter(t *testing.T) {
	resetState()
	defer resetState()

	tempDir := t.TempDir()
	err := Initialize(tempDir, Options{
		DebugMode:  true,
		Categories: map[string]bool{"prompt": false},
	})
	if err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsCategoryEnabled(CategoryPrompt) {
		t.Error("prompt category should be disabled")
	}
	if !IsCategoryEnabled(CategoryGraph) {
		t.Error("unlisted categories should default to enabled")
	}
	if Get(CategoryPrompt).sugar != nil {
		t.Error("disabled category should return a no-op logger")
	}
}

func TestInitializeRequiresWorkspace(t *testing.T) {
	if err := Initialize("", Options{}); err == nil {
		t.Fatal("expected error for empty workspace")
	}
}

func TestAuditWritesJSONLines(t *testing.T) {
	resetState()
	defer resetState()

	tempDir := t.TempDir()
	if err := Initialize(tempDir, Options{DebugMode: true, JSONFormat: true}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if err := InitAudit(tempDir); err != nil {
		t.Fatalf("InitAudit failed: %v", err)
	}

	a := Audit("sess-1")
	a.LLMCall("gemini-2.5-flash", 120, 40, 15*time.Millisecond, nil)
	a.ExchangeEnd("turn-1", 20*time.Millisecond, nil)
	CloseAudit()

	data, err := os.ReadFile(filepath.Join(tempDir, ".loom", "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"event":"llm_call"`) || !strings.Contains(lines[0], `"session":"sess-1"`) {
		t.Errorf("unexpected audit line: %s", lines[0])
	}
}

func TestTimerThreshold(t *testing.T) {
	timer := StartTimer(CategoryContext, "op")
	if d := timer.StopWithThreshold(time.Hour); d < 0 {
		t.Errorf("negative duration %v", d)
	}
}
