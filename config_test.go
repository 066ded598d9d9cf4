// config_test.go: Tests for configuration parsing and logger construction.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agilira/arocrypt"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := arocrypt.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "AES-256-GCM", cfg.DefaultMethod)
	assert.Equal(t, ".arocrypt", cfg.OutputSuffix)
}

func TestParseConfig_AppliesDefaults(t *testing.T) {
	cfg, err := arocrypt.ParseConfig([]byte("default_method: AES-128-CTR\nlog:\n  format: json\n"))
	require.NoError(t, err)
	assert.Equal(t, "AES-128-CTR", cfg.DefaultMethod)
	assert.Equal(t, arocrypt.DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, ".arocrypt", cfg.OutputSuffix)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestParseConfig_Rejects(t *testing.T) {
	tests := map[string]struct {
		yaml string
		want error
	}{
		"bad yaml":       {"default_method: [", arocrypt.ErrInvalidInput},
		"unknown method": {"default_method: DES", arocrypt.ErrUnsupportedAlgorithm},
		"small chunk":    {"chunk_size: 16", arocrypt.ErrInvalidInput},
		"huge chunk":     {"chunk_size: 1073741824", arocrypt.ErrInvalidInput},
		"suffix no dot":  {"output_suffix: enc", arocrypt.ErrInvalidInput},
		"log level":      {"log:\n  level: loud", arocrypt.ErrInvalidInput},
		"log format":     {"log:\n  format: xml", arocrypt.ErrInvalidInput},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := arocrypt.ParseConfig([]byte(tt.yaml))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arocrypt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size: 8192\noutput_suffix: .enc\n"), 0o600))

	cfg, err := arocrypt.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8192, cfg.ChunkSize)
	assert.Equal(t, ".enc", cfg.OutputSuffix)

	_, err = arocrypt.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, arocrypt.ErrIO))
}

func TestNewLogger(t *testing.T) {
	logger, err := arocrypt.NewLogger(arocrypt.LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger, err = arocrypt.NewLogger(arocrypt.LogConfig{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	_, err = arocrypt.NewLogger(arocrypt.LogConfig{Format: "xml"})
	assert.True(t, errors.Is(err, arocrypt.ErrInvalidInput))
}

func TestEngineOptions(t *testing.T) {
	cfg := arocrypt.DefaultConfig()
	cfg.DefaultMethod = "AES-192-CBC"
	engine, err := arocrypt.NewEngine(arocrypt.WithConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, "AES-192-CBC", engine.DefaultMethod())

	engine, err = arocrypt.NewEngine(arocrypt.WithDefaultMethod("aes-128-gcm"))
	require.NoError(t, err)
	assert.Equal(t, "AES-128-GCM", engine.DefaultMethod())

	for name, opt := range map[string]arocrypt.Option{
		"chunk":  arocrypt.WithChunkSize(1),
		"suffix": arocrypt.WithOutputSuffix("x"),
		"codec":  arocrypt.WithPixelCodec(nil),
		"method": arocrypt.WithDefaultMethod("RC4"),
	} {
		_, err := arocrypt.NewEngine(opt)
		assert.Error(t, err, name)
	}
}
