package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func resetState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	enabled = false
	logLevel = LevelInfo
}

// TestAllCategoriesLog verifies every category creates a log file when
// debug is enabled.
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()
	resetState()
	defer resetState()

	if err := Initialize(tempDir, true, "debug"); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot,
		CategoryStore,
		CategoryScheduler,
		CategoryAffect,
		CategoryPipeline,
		CategoryLearner,
		CategoryRumination,
		CategoryAPI,
		CategoryServer,
		CategoryTelemetry,
	}

	for _, cat := range categories {
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}
	CloseAll()

	date := time.Now().Format("2006-01-02")
	for _, cat := range categories {
		logPath := filepath.Join(tempDir, "logs", date+"_"+string(cat)+".log")
		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Errorf("Log file missing for category %s: %v", cat, err)
			continue
		}
		content := string(data)
		for _, level := range []string{"[INFO]", "[DEBUG]", "[WARN]", "[ERROR]"} {
			if !strings.Contains(content, level) {
				t.Errorf("Category %s log missing %s entry", cat, level)
			}
		}
	}
}

// TestDisabledIsNoOp verifies nothing is written when debug is off.
func TestDisabledIsNoOp(t *testing.T) {
	tempDir := t.TempDir()
	resetState()
	defer resetState()

	if err := Initialize(tempDir, false, "info"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	Boot("this should go nowhere")
	Scheduler("and so should this")

	if _, err := os.Stat(filepath.Join(tempDir, "logs")); !os.IsNotExist(err) {
		t.Error("logs directory created in production mode")
	}
}

// TestLevelFiltering verifies messages below the configured level are
// dropped.
func TestLevelFiltering(t *testing.T) {
	tempDir := t.TempDir()
	resetState()
	defer resetState()

	if err := Initialize(tempDir, true, "warn"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	logger := Get(CategoryPipeline)
	logger.Debug("dropped debug")
	logger.Info("dropped info")
	logger.Warn("kept warn")
	logger.Error("kept error")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(tempDir, "logs", date+"_pipeline.log"))
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "dropped debug") || strings.Contains(content, "dropped info") {
		t.Error("Below-level messages were written")
	}
	if !strings.Contains(content, "kept warn") || !strings.Contains(content, "kept error") {
		t.Error("At-or-above-level messages were dropped")
	}
}

// TestConcurrentLogging exercises Get and logging from many goroutines.
func TestConcurrentLogging(t *testing.T) {
	tempDir := t.TempDir()
	resetState()
	defer resetState()

	if err := Initialize(tempDir, true, "debug"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	var wg sync.WaitGroup
	categories := []Category{CategoryStore, CategoryScheduler, CategoryPipeline}
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger := Get(categories[n%len(categories)])
			logger.Info("concurrent message %d", n)
		}(i)
	}
	wg.Wait()
	CloseAll()
}

// TestTimer verifies the timer returns a sane duration.
func TestTimer(t *testing.T) {
	tempDir := t.TempDir()
	resetState()
	defer resetState()

	if err := Initialize(tempDir, true, "debug"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	timer := StartTimer(CategoryScheduler, "test operation")
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.Stop()
	if elapsed < 5*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 5ms", elapsed)
	}
}
