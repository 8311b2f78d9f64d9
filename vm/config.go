package vm

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config holds frame manager configuration
type Config struct {
	// Physical Memory Configuration
	FrameCount uint32 `json:"frame_count"` // Number of user frames in the physical pool

	// Swap Configuration
	SwapPath        string `json:"swap_path"`        // Path of the swap file
	SwapSlots       uint32 `json:"swap_slots"`       // Number of page slots on the swap device
	SwapCompression string `json:"swap_compression"` // Slot compression (none, lz4, snappy, auto)

	// Observability Configuration
	EnableMetrics bool   `json:"enable_metrics"` // Whether to log metrics on shutdown
	LogLevel      string `json:"log_level"`      // Log level (debug, info, warn, error)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		FrameCount:      256,
		SwapPath:        "./hexframe.swap",
		SwapSlots:       1024,
		SwapCompression: "lz4",
		EnableMetrics:   true,
		LogLevel:        "info",
	}
}

// LoadConfigFromFile loads configuration from a JSON file
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	err = json.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadConfigFromEnv loads configuration from environment variables
// Falls back to default values if environment variables are not set
func LoadConfigFromEnv() *Config {
	return DefaultConfig().ApplyEnv()
}

// ApplyEnv overrides fields from HEXFRAME_* environment variables
func (c *Config) ApplyEnv() *Config {
	if val := os.Getenv("HEXFRAME_FRAME_COUNT"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			c.FrameCount = uint32(n)
		}
	}

	if val := os.Getenv("HEXFRAME_SWAP_PATH"); val != "" {
		c.SwapPath = val
	}

	if val := os.Getenv("HEXFRAME_SWAP_SLOTS"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			c.SwapSlots = uint32(n)
		}
	}

	if val := os.Getenv("HEXFRAME_SWAP_COMPRESSION"); val != "" {
		c.SwapCompression = val
	}

	if val := os.Getenv("HEXFRAME_ENABLE_METRICS"); val != "" {
		c.EnableMetrics = val == "true" || val == "1"
	}

	if val := os.Getenv("HEXFRAME_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}

	return c
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(path, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.FrameCount == 0 {
		return fmt.Errorf("frame count must be greater than 0")
	}

	if c.SwapPath == "" {
		return fmt.Errorf("swap path cannot be empty")
	}

	if c.SwapSlots == 0 {
		return fmt.Errorf("swap slot count must be greater than 0")
	}

	if _, err := ParseCompression(c.SwapCompression); err != nil {
		return err
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
