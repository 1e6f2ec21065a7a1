package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fuzzy-grid/internal/config"
)

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestNewLogger_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app", "grid.log")
	logger, err := NewLogger(config.LoggingConfig{
		Level:       "info",
		Encoding:    "console",
		OutputPaths: []string{"stdout"},
		File:        config.RotatingFileConfig{Path: path, MaxSizeMB: 1},
	})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("网格测试")
	logger.Debug("不应写入")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "网格测试") {
		t.Fatalf("expected info line in file, got %q", content)
	}
	if strings.Contains(content, "不应写入") {
		t.Fatalf("debug line must be filtered at info level")
	}
}
