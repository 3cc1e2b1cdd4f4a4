// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestGenerateDefaultConfig_WritesReadableYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	if err := GenerateDefaultConfig(path); err != nil {
		t.Fatalf("GenerateDefaultConfig failed: %v", err)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected config file to exist: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("expected non-empty default config body")
	}
}

func TestLoad_AppliesDefaultsWithNoConfigFile(t *testing.T) {
	defer viper.Reset()

	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	defer os.Chdir(cwd)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.WorkerConcurrency != 5 {
		t.Errorf("expected default worker_concurrency=5, got %d", cfg.WorkerConcurrency)
	}
	if cfg.EmbeddingProvider != "mock" {
		t.Errorf("expected default embedding_provider=mock, got %q", cfg.EmbeddingProvider)
	}
	if cfg.ThematicCacheDir != "./cache/thematic" {
		t.Errorf("expected default thematic_cache_dir, got %q", cfg.ThematicCacheDir)
	}

	if _, err := os.Stat(filepath.Dir(cfg.ThematicCacheDir)); err != nil {
		t.Errorf("expected thematic cache parent dir created: %v", err)
	}
}

func TestLoad_EnvOverrideWinsOverDefault(t *testing.T) {
	defer viper.Reset()

	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	defer os.Chdir(cwd)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	t.Setenv("CIL_WORKER_CONCURRENCY", "17")
	t.Setenv("CIL_LLM_PROVIDER", "openai")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.WorkerConcurrency != 17 {
		t.Errorf("expected CIL_WORKER_CONCURRENCY env override to win, got %d", cfg.WorkerConcurrency)
	}
	if cfg.LLMProvider != "openai" {
		t.Errorf("expected CIL_LLM_PROVIDER env override to win, got %q", cfg.LLMProvider)
	}
}
