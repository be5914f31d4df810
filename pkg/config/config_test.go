package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ListenAddr != defaultListenAddr {
		t.Errorf("expected default listen addr, got %s", cfg.Server.ListenAddr)
	}
	if cfg.Router.DefaultConfidenceThreshold != defaultConfidenceThreshold {
		t.Errorf("expected default threshold, got %f", cfg.Router.DefaultConfidenceThreshold)
	}
	if cfg.Scoring.Provider != ScoringProviderOpenAI {
		t.Errorf("expected openai scoring default, got %s", cfg.Scoring.Provider)
	}
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  listen_addr: ":9090"
scoring:
  provider: ollama
  model: nomic-embed-text
router:
  reuse_similarity_threshold: 0.88
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Server.ListenAddr)
	}
	if cfg.Scoring.Provider != ScoringProviderOllama {
		t.Errorf("expected ollama, got %s", cfg.Scoring.Provider)
	}
	if cfg.Router.ReuseSimilarityThreshold != 0.88 {
		t.Errorf("expected 0.88, got %f", cfg.Router.ReuseSimilarityThreshold)
	}
	// Unset fields still get defaults.
	if cfg.Sweep.IntervalSec != defaultSweepIntervalSec {
		t.Errorf("expected default sweep interval, got %d", cfg.Sweep.IntervalSec)
	}
}

func TestValidateRejectsBadProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scoring:\n  provider: quantum\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown scoring provider")
	}
}

func TestValidateRejectsInvertedQuotas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
router:
  default_max_escalations_day: 10
  default_max_escalations_week: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error when weekly quota is below daily quota")
	}
}

func TestSecretsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json.enc")
	secrets := map[string]string{
		SecretOpenAIKey:    "sk-test-123",
		SecretAnthropicKey: "sk-ant-456",
	}

	if err := SaveSecretsFile(path, "hunter2", secrets); err != nil {
		t.Fatalf("SaveSecretsFile failed: %v", err)
	}

	SetSecretsForTesting(nil)
	if err := LoadSecretsFile(path, "hunter2"); err != nil {
		t.Fatalf("LoadSecretsFile failed: %v", err)
	}
	defer SetSecretsForTesting(nil)

	got, err := GetSecret(SecretOpenAIKey)
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if got != "sk-test-123" {
		t.Errorf("expected sk-test-123, got %s", got)
	}
}

func TestSecretsWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json.enc")
	if err := SaveSecretsFile(path, "correct", map[string]string{"K": "v"}); err != nil {
		t.Fatalf("SaveSecretsFile failed: %v", err)
	}

	if err := LoadSecretsFile(path, "wrong"); err == nil {
		t.Error("expected decryption failure with wrong password")
	}
}

func TestGetSecretEnvFallback(t *testing.T) {
	SetSecretsForTesting(nil)
	t.Setenv("ORCH_TEST_SECRET", "from-env")

	got, err := GetSecret("ORCH_TEST_SECRET")
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if got != "from-env" {
		t.Errorf("expected env value, got %s", got)
	}

	if _, err := GetSecret("ORCH_TEST_MISSING"); err == nil {
		t.Error("expected error for missing secret")
	}
}
