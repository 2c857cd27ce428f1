package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() config {
	return config{
		Port:           "8000",
		SharedSecret:   "s3cret",
		MaxConcurrent:  100,
		MaxTokens:      300,
		VectorSize:     768,
		ScoreThreshold: 0.7,
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config)
		errorMsg string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *config) {},
		},
		{
			name:     "empty port",
			mutate:   func(c *config) { c.Port = "" },
			errorMsg: "port",
		},
		{
			name:     "missing shared secret",
			mutate:   func(c *config) { c.SharedSecret = "" },
			errorMsg: "shared_secret",
		},
		{
			name:     "zero max concurrent",
			mutate:   func(c *config) { c.MaxConcurrent = 0 },
			errorMsg: "max_concurrent",
		},
		{
			name:     "negative synthesis grace",
			mutate:   func(c *config) { c.SynthesisGraceSec = -1 },
			errorMsg: "synthesis_grace_sec",
		},
		{
			name:     "zero max tokens",
			mutate:   func(c *config) { c.MaxTokens = 0 },
			errorMsg: "max_tokens",
		},
		{
			name:     "score threshold above one",
			mutate:   func(c *config) { c.ScoreThreshold = 1.5 },
			errorMsg: "score_threshold must be between 0 and 1",
		},
		{
			name:     "negative retention",
			mutate:   func(c *config) { c.RetentionDays = -7 },
			errorMsg: "retention_days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error, got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestLoadConfigYAMLOverridesEnv(t *testing.T) {
	t.Setenv("GATEWAY_SHARED_SECRET", "from-env")
	t.Setenv("GATEWAY_PORT", "9100")
	t.Setenv("OLLAMA_MODEL", "mistral:7b")

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	yamlBody := `
port: "9200"
ollama_model: llama3:8b
max_concurrent: 25
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("GATEWAY_CONFIG", path)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Port != "9200" {
		t.Errorf("Port = %q, want the YAML value", cfg.Port)
	}
	if cfg.OllamaModel != "llama3:8b" {
		t.Errorf("OllamaModel = %q, want the YAML value", cfg.OllamaModel)
	}
	if cfg.MaxConcurrent != 25 {
		t.Errorf("MaxConcurrent = %d, want 25", cfg.MaxConcurrent)
	}
	// Keys absent from the file keep their env values.
	if cfg.SharedSecret != "from-env" {
		t.Errorf("SharedSecret = %q, want the env value", cfg.SharedSecret)
	}
}

func TestLoadConfigWithoutFileUsesEnv(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG", "")
	t.Setenv("GATEWAY_SHARED_SECRET", "s3cret")
	t.Setenv("GATEWAY_PORT", "8500")
	t.Setenv("RETRIEVAL_SCORE_THRESHOLD", "0.55")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Port != "8500" {
		t.Errorf("Port = %q, want 8500", cfg.Port)
	}
	if cfg.ScoreThreshold != 0.55 {
		t.Errorf("ScoreThreshold = %v, want 0.55", cfg.ScoreThreshold)
	}
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	t.Setenv("GATEWAY_SHARED_SECRET", "s3cret")
	t.Setenv("GATEWAY_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("port: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("GATEWAY_SHARED_SECRET", "s3cret")
	t.Setenv("GATEWAY_CONFIG", path)

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected a parse error for malformed YAML")
	}
}

func TestLoadConfigRejectsInvalidResult(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG", "")
	t.Setenv("GATEWAY_SHARED_SECRET", "")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected validation to reject an empty shared secret")
	}
}
