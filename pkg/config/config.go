package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/KevoDB/flashkv/pkg/flash"
	"github.com/KevoDB/flashkv/pkg/record"
)

const (
	DefaultConfigFileName = "flashkv.json"
	DefaultImageFileName  = "flash.img"
	CurrentConfigVersion  = 1
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("config not found")
)

type Config struct {
	Version int `json:"version"`

	// Flash region layout. Changing either after data has been written
	// makes the existing image unreadable.
	PageSize  uint32 `json:"page_size"`
	PageCount int    `json:"page_count"`

	// Backing image for the file medium
	ImagePath string `json:"image_path"`

	// Flash controller behaviour
	FlashLatency  time.Duration `json:"flash_latency"`
	FlashTimeout  time.Duration `json:"flash_timeout"` // 0 waits forever
	StrictProgram bool          `json:"strict_program"`

	// Logging
	LogLevel string `json:"log_level"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with an image under dataPath
func NewDefaultConfig(dataPath string) *Config {
	return &Config{
		Version: CurrentConfigVersion,

		PageSize:  flash.DefaultPageSize,
		PageCount: flash.DefaultPageCount,
		ImagePath: filepath.Join(dataPath, DefaultImageFileName),

		FlashLatency:  0,
		FlashTimeout:  0,
		StrictProgram: true,

		LogLevel: "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.PageCount != flash.DefaultPageCount {
		return fmt.Errorf("%w: page count must be %d", ErrInvalidConfig, flash.DefaultPageCount)
	}

	if c.PageSize%record.WordSize != 0 {
		return fmt.Errorf("%w: page size must be a multiple of %d", ErrInvalidConfig, record.WordSize)
	}

	if c.PageSize <= record.HeaderSize {
		return fmt.Errorf("%w: page size must exceed the %d byte header", ErrInvalidConfig, record.HeaderSize)
	}

	if c.ImagePath == "" {
		return fmt.Errorf("%w: image path not specified", ErrInvalidConfig)
	}

	if c.FlashLatency < 0 || c.FlashTimeout < 0 {
		return fmt.Errorf("%w: flash durations must not be negative", ErrInvalidConfig)
	}

	return nil
}

// Geometry returns the flash layout described by the configuration
func (c *Config) Geometry() flash.Geometry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return flash.Geometry{PageSize: c.PageSize, PageCount: c.PageCount}
}

// LoadFromEnv overrides fields from FLASHKV_* environment variables
func (c *Config) LoadFromEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if val := os.Getenv("FLASHKV_PAGE_SIZE"); val != "" {
		if size, err := strconv.ParseUint(val, 10, 32); err == nil {
			c.PageSize = uint32(size)
		}
	}

	if val := os.Getenv("FLASHKV_IMAGE_PATH"); val != "" {
		c.ImagePath = val
	}

	if val := os.Getenv("FLASHKV_FLASH_LATENCY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.FlashLatency = d
		}
	}

	if val := os.Getenv("FLASHKV_FLASH_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.FlashTimeout = d
		}
	}

	if val := os.Getenv("FLASHKV_STRICT_PROGRAM"); val != "" {
		if strict, err := strconv.ParseBool(val); err == nil {
			c.StrictProgram = strict
		}
	}

	if val := os.Getenv("FLASHKV_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
}

// LoadConfig reads and validates the configuration file at path
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to path atomically
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	data, err := json.MarshalIndent(c, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
