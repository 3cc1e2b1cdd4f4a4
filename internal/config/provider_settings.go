// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"encoding/json"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/northbound/cil/internal/logger"
)

// ProviderSettings are the hot-reloadable provider/model overrides exposed
// at PUT /settings/provider and PUT /settings/api-keys. The source system
// stores this as a process-global dict; Design Note §9 replaces that with
// a config handle swapped atomically on file change.
type ProviderSettings struct {
	LLMProvider        string            `json:"llm_provider"`
	LLMModel           string            `json:"llm_model"`
	EmbeddingProvider  string            `json:"embedding_provider"`
	EmbeddingModel     string            `json:"embedding_model"`
	APIKeysByProvider  map[string]string `json:"api_keys_by_provider"`
}

// Masked returns a copy with every API key reduced to first4...last4,
// per §6 "Secrets returned by any introspection endpoint are masked."
func (p ProviderSettings) Masked() ProviderSettings {
	masked := p
	masked.APIKeysByProvider = make(map[string]string, len(p.APIKeysByProvider))
	for provider, key := range p.APIKeysByProvider {
		masked.APIKeysByProvider[provider] = maskKey(key)
	}
	return masked
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// ProviderSettingsStore watches a JSON file with fsnotify (repurposed from
// the teacher's filesystem-watcher dependency, here watching one settings
// file instead of an ingest directory) and atomically swaps the in-memory
// handle on write.
type ProviderSettingsStore struct {
	path    string
	current atomic.Pointer[ProviderSettings]
	watcher *fsnotify.Watcher
}

func NewProviderSettingsStore(path string) (*ProviderSettingsStore, error) {
	s := &ProviderSettingsStore{path: path}

	initial, err := readProviderSettings(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		initial = &ProviderSettings{APIKeysByProvider: map[string]string{}}
		if writeErr := s.writeLocked(*initial); writeErr != nil {
			return nil, writeErr
		}
	}
	s.current.Store(initial)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}
	s.watcher = watcher

	go s.watchLoop()

	return s, nil
}

func (s *ProviderSettingsStore) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			settings, err := readProviderSettings(s.path)
			if err != nil {
				logger.Warnf("provider settings reload failed: %v", err)
				continue
			}
			s.current.Store(settings)
			logger.Printf("provider settings hot-reloaded from %s", s.path)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("provider settings watcher error: %v", err)
		}
	}
}

func (s *ProviderSettingsStore) Get() ProviderSettings {
	return *s.current.Load()
}

func (s *ProviderSettingsStore) Set(settings ProviderSettings) error {
	if err := s.writeLocked(settings); err != nil {
		return err
	}
	s.current.Store(&settings)
	return nil
}

func (s *ProviderSettingsStore) writeLocked(settings ProviderSettings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

func (s *ProviderSettingsStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func readProviderSettings(path string) (*ProviderSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var settings ProviderSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	if settings.APIKeysByProvider == nil {
		settings.APIKeysByProvider = map[string]string{}
	}
	return &settings, nil
}
