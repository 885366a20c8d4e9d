package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	dataPath := "/tmp/flashkv"
	cfg := NewDefaultConfig(dataPath)

	if cfg.Version != CurrentConfigVersion {
		t.Errorf("expected version %d, got %d", CurrentConfigVersion, cfg.Version)
	}

	if cfg.ImagePath != filepath.Join(dataPath, DefaultImageFileName) {
		t.Errorf("expected image path %s, got %s", filepath.Join(dataPath, DefaultImageFileName), cfg.ImagePath)
	}

	if cfg.PageSize != 4096 || cfg.PageCount != 3 {
		t.Errorf("unexpected geometry %d x %d", cfg.PageCount, cfg.PageSize)
	}

	if !cfg.StrictProgram {
		t.Error("strict programming should be on by default")
	}

	geom := cfg.Geometry()
	if geom.Size() != 3*4096 {
		t.Errorf("expected region size %d, got %d", 3*4096, geom.Size())
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig("/tmp/flashkv")
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}

	testCases := []struct {
		name     string
		mutate   func(*Config)
		expected string
	}{
		{
			name:     "invalid version",
			mutate:   func(c *Config) { c.Version = 0 },
			expected: "invalid configuration: invalid version 0",
		},
		{
			name:     "two pages",
			mutate:   func(c *Config) { c.PageCount = 2 },
			expected: "invalid configuration: page count must be 3",
		},
		{
			name:     "unaligned page",
			mutate:   func(c *Config) { c.PageSize = 1022 },
			expected: "invalid configuration: page size must be a multiple of 4",
		},
		{
			name:     "page smaller than header",
			mutate:   func(c *Config) { c.PageSize = 32 },
			expected: "invalid configuration: page size must exceed the 36 byte header",
		},
		{
			name:     "empty image path",
			mutate:   func(c *Config) { c.ImagePath = "" },
			expected: "invalid configuration: image path not specified",
		},
		{
			name:     "negative timeout",
			mutate:   func(c *Config) { c.FlashTimeout = -time.Second },
			expected: "invalid configuration: flash durations must not be negative",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig("/tmp/flashkv")
			tc.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if err.Error() != tc.expected {
				t.Errorf("expected error %q, got %q", tc.expected, err.Error())
			}
		})
	}
}

func TestConfigSaveLoad(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, DefaultConfigFileName)

	cfg := NewDefaultConfig(tempDir)
	cfg.PageSize = 1024
	cfg.FlashTimeout = 250 * time.Millisecond

	if err := cfg.Save(path); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if loaded.PageSize != 1024 {
		t.Errorf("expected page size 1024, got %d", loaded.PageSize)
	}
	if loaded.FlashTimeout != 250*time.Millisecond {
		t.Errorf("expected flash timeout 250ms, got %s", loaded.FlashTimeout)
	}

	_, err = LoadConfig(filepath.Join(tempDir, "missing.json"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("FLASHKV_PAGE_SIZE", "2048")
	t.Setenv("FLASHKV_FLASH_LATENCY", "2ms")
	t.Setenv("FLASHKV_STRICT_PROGRAM", "false")
	t.Setenv("FLASHKV_LOG_LEVEL", "debug")

	cfg := NewDefaultConfig("/tmp/flashkv")
	cfg.LoadFromEnv()

	if cfg.PageSize != 2048 {
		t.Errorf("expected page size 2048, got %d", cfg.PageSize)
	}
	if cfg.FlashLatency != 2*time.Millisecond {
		t.Errorf("expected latency 2ms, got %s", cfg.FlashLatency)
	}
	if cfg.StrictProgram {
		t.Error("expected strict programming to be disabled")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.LogLevel)
	}
}

func TestConfigUpdate(t *testing.T) {
	cfg := NewDefaultConfig("/tmp/flashkv")

	cfg.Update(func(c *Config) {
		c.PageSize = 8192
		c.LogLevel = "warn"
	})

	if cfg.PageSize != 8192 {
		t.Errorf("expected page size %d, got %d", 8192, cfg.PageSize)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.LogLevel)
	}
}
