package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Agent.MaxAgentIterations <= 0 {
		t.Fatalf("MaxAgentIterations = %d, want > 0", cfg.Agent.MaxAgentIterations)
	}
	if cfg.Agent.MaxMessageChars <= 0 {
		t.Fatalf("MaxMessageChars = %d, want > 0", cfg.Agent.MaxMessageChars)
	}
	if cfg.Agent.HistoryLimit <= 0 {
		t.Fatalf("HistoryLimit = %d, want > 0", cfg.Agent.HistoryLimit)
	}
	if cfg.Gateway.Port == 0 {
		t.Fatal("Gateway.Port should have a default")
	}
	if cfg.Cron.MaintenanceExpr == "" {
		t.Fatal("Cron.MaintenanceExpr should have a default")
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	want := DefaultConfig()
	if cfg.Agent.Model != want.Agent.Model {
		t.Fatalf("Model = %q, want default %q", cfg.Agent.Model, want.Agent.Model)
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"agent": {"model": "meta-llama/Llama-3.3-70B-Instruct-Turbo", "max_agent_iterations": 5},
		"channels": {"whatsapp": {"enabled": true, "phone_number_id": "123", "access_token": "tok"}}
	}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Agent.Model != "meta-llama/Llama-3.3-70B-Instruct-Turbo" {
		t.Fatalf("Model = %q, want file value", cfg.Agent.Model)
	}
	if cfg.Agent.MaxAgentIterations != 5 {
		t.Fatalf("MaxAgentIterations = %d, want 5", cfg.Agent.MaxAgentIterations)
	}
	if !cfg.Channels.WhatsApp.Enabled {
		t.Fatal("WhatsApp.Enabled should be true from file")
	}
	// Untouched fields keep defaults.
	if cfg.Agent.MaxMessageChars != DefaultConfig().Agent.MaxMessageChars {
		t.Fatalf("MaxMessageChars = %d, want default", cfg.Agent.MaxMessageChars)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"agent": {"model": "from-file"}}`), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TWIGA_AGENT_MODEL", "from-env")
	t.Setenv("TWIGA_PROVIDERS_OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Agent.Model != "from-env" {
		t.Fatalf("Model = %q, want %q", cfg.Agent.Model, "from-env")
	}
	if cfg.Providers.OpenAI.APIKey != "sk-test" {
		t.Fatalf("APIKey = %q, want %q", cfg.Providers.OpenAI.APIKey, "sk-test")
	}
}

func TestFlexibleStringSliceMixedTypes(t *testing.T) {
	var f FlexibleStringSlice
	if err := json.Unmarshal([]byte(`["255712345678", 255787654321]`), &f); err != nil {
		t.Fatalf("UnmarshalJSON error = %v", err)
	}

	want := []string{"255712345678", "255787654321"}
	if len(f) != len(want) {
		t.Fatalf("len = %d, want %d", len(f), len(want))
	}
	for i := range want {
		if f[i] != want[i] {
			t.Fatalf("f[%d] = %q, want %q", i, f[i], want[i])
		}
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Agent.Model = "round-trip-model"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Agent.Model != "round-trip-model" {
		t.Fatalf("Model = %q, want %q", loaded.Agent.Model, "round-trip-model")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	got := expandHome("~/.twiga/store.db")
	want := filepath.Join(home, ".twiga", "store.db")
	if got != want {
		t.Fatalf("expandHome() = %q, want %q", got, want)
	}

	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("absolute path changed: %q", got)
	}
}
