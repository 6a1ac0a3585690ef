// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	// Create a temp directory
	tempDir, err := os.MkdirTemp("", "scribe-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configPath := filepath.Join(tempDir, ".scribe", "scribe.yaml")

	// Create the config
	err = createDefault(configPath)
	if err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	// Verify the file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	// Read and verify the config
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var cfg ScribeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	// Verify some defaults
	if cfg.Gateway.URL != "http://localhost:12300" {
		t.Errorf("Gateway.URL = %q, want %q", cfg.Gateway.URL, "http://localhost:12300")
	}
	if cfg.Defaults.Format != "markdown" {
		t.Errorf("Defaults.Format = %q, want %q", cfg.Defaults.Format, "markdown")
	}
}

// TestCreateDefault_DirectoryCreation verifies directory is created.
func TestCreateDefault_DirectoryCreation(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "scribe-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	// Use a nested path
	configPath := filepath.Join(tempDir, "deep", "nested", "path", "scribe.yaml")

	err = createDefault(configPath)
	if err != nil {
		t.Fatalf("createDefault() failed with nested path: %v", err)
	}

	// Verify the directories were created
	dirPath := filepath.Dir(configPath)
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		t.Fatal("nested directories were not created")
	}
}

// TestCreateDefault_FilePermissions verifies the config is not world readable.
// The file can hold a bearer token.
func TestCreateDefault_FilePermissions(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "scribe-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configPath := filepath.Join(tempDir, "scribe.yaml")
	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("failed to stat config file: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		t.Errorf("config file permissions = %o, want no group/other access", perm)
	}
}

// TestLoadInternal_FirstRun verifies the config is created and parsed when
// no file exists yet.
func TestLoadInternal_FirstRun(t *testing.T) {
	tempHome, err := os.MkdirTemp("", "scribe-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempHome)
	t.Setenv("HOME", tempHome)

	prev := Global
	defer func() { Global = prev }()
	Global = ScribeConfig{}

	if err := loadInternal(); err != nil {
		t.Fatalf("loadInternal() failed: %v", err)
	}

	// The file should exist now
	configPath := filepath.Join(tempHome, ".scribe", "scribe.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("first run did not create the config file")
	}

	// Global should hold the defaults
	if Global.Gateway.URL != "http://localhost:12300" {
		t.Errorf("Global.Gateway.URL = %q, want default", Global.Gateway.URL)
	}
}

// TestLoadInternal_ExistingFile verifies user edits survive a reload.
func TestLoadInternal_ExistingFile(t *testing.T) {
	tempHome, err := os.MkdirTemp("", "scribe-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempHome)
	t.Setenv("HOME", tempHome)

	configDir := filepath.Join(tempHome, ".scribe")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	edited := []byte("gateway:\n  url: http://scribe.internal:9000\n  timeout_seconds: 45\n")
	if err := os.WriteFile(filepath.Join(configDir, "scribe.yaml"), edited, 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	prev := Global
	defer func() { Global = prev }()
	Global = ScribeConfig{}

	if err := loadInternal(); err != nil {
		t.Fatalf("loadInternal() failed: %v", err)
	}

	if Global.Gateway.URL != "http://scribe.internal:9000" {
		t.Errorf("Gateway.URL = %q, want the edited value", Global.Gateway.URL)
	}
	if Global.Gateway.TimeoutSeconds != 45 {
		t.Errorf("Gateway.TimeoutSeconds = %d, want 45", Global.Gateway.TimeoutSeconds)
	}
}

// TestLoadInternal_MalformedFile verifies a corrupt config is reported, not
// silently replaced.
func TestLoadInternal_MalformedFile(t *testing.T) {
	tempHome, err := os.MkdirTemp("", "scribe-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempHome)
	t.Setenv("HOME", tempHome)

	configDir := filepath.Join(tempHome, ".scribe")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	bad := []byte("gateway: [not: a: mapping\n")
	if err := os.WriteFile(filepath.Join(configDir, "scribe.yaml"), bad, 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	prev := Global
	defer func() { Global = prev }()

	if err := loadInternal(); err == nil {
		t.Error("loadInternal() should fail on malformed YAML")
	}
}
