// config.go: YAML configuration and logger construction.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config is the library and CLI configuration.
//
// Example config file:
//
//	default_method: AES-256-GCM
//	chunk_size: 65536
//	output_suffix: .arocrypt
//	keystore_dir: /home/user/.arocrypt/keystore
//	log:
//	  level: info
//	  format: text
type Config struct {
	DefaultMethod string    `yaml:"default_method"`
	ChunkSize     int       `yaml:"chunk_size"`
	OutputSuffix  string    `yaml:"output_suffix"`
	KeystoreDir   string    `yaml:"keystore_dir"`
	Log           LogConfig `yaml:"log"`
}

// LogConfig selects logrus level and formatter.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Configuration defaults.
const (
	DefaultMethod       = "AES-256-GCM"
	DefaultOutputSuffix = ".arocrypt"
	MinChunkSize        = 4 * 1024
	MaxChunkSize        = 16 * 1024 * 1024
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		DefaultMethod: DefaultMethod,
		ChunkSize:     DefaultChunkSize,
		OutputSuffix:  DefaultOutputSuffix,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a YAML file. Missing fields take their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the operator
	if err != nil {
		return Config{}, wrapError(ErrIO, err, ErrCodeIO, fmt.Sprintf("failed to read config %s", path))
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, applies defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, wrapError(ErrInvalidInput, err, ErrCodeInvalidInput, "failed to parse config")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DefaultMethod == "" {
		c.DefaultMethod = def.DefaultMethod
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.OutputSuffix == "" {
		c.OutputSuffix = def.OutputSuffix
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Validate checks every field.
func (c Config) Validate() error {
	if _, err := LookupAlgorithm(c.DefaultMethod); err != nil {
		return err
	}
	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize {
		return newError(ErrInvalidInput, ErrCodeInvalidInput,
			fmt.Sprintf("chunk_size must be between %d and %d, got %d", MinChunkSize, MaxChunkSize, c.ChunkSize))
	}
	if !strings.HasPrefix(c.OutputSuffix, ".") {
		return newError(ErrInvalidInput, ErrCodeInvalidInput, "output_suffix must start with a dot")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return wrapError(ErrInvalidInput, err, ErrCodeInvalidInput, "invalid log level")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	return nil
}

// NewLogger builds a logrus logger writing to stderr.
func NewLogger(cfg LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, wrapError(ErrInvalidInput, err, ErrCodeInvalidInput, "invalid log level")
	}
	logger.SetLevel(lvl)

	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("unknown log format %q", cfg.Format))
	}
	return logger, nil
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
