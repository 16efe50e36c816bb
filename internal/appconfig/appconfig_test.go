// internal/appconfig/appconfig_test.go
package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearBackendEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"X_API_KEY", "X_API_BASE_URL", "GROK_MODEL_ID", "ANTHROPIC_API_KEY", "CLAUDE_MODEL_ID", "GOOGLE_API_KEY", "GEMINI_MODEL_ID"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoadDefaults verifies that a missing default config file yields the
// built-in defaults for every slot.
func TestLoadDefaults(t *testing.T) {
	clearBackendEnv(t)
	oldCwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Listen != ":5000" {
		t.Fatalf("expected default listen :5000, got %q", cfg.Listen)
	}
	if cfg.MinChars != 24000 || cfg.MaxChars != 30000 {
		t.Fatalf("unexpected size bounds %d..%d", cfg.MinChars, cfg.MaxChars)
	}
	if cfg.DraftTimeout() != 300*time.Second {
		t.Fatalf("expected draft timeout 300s, got %v", cfg.DraftTimeout())
	}
	if cfg.BoundMaxTokens != 20000 {
		t.Fatalf("expected bound max tokens 20000, got %d", cfg.BoundMaxTokens)
	}
	if cfg.StreamMaxBytes != 50<<20 {
		t.Fatalf("expected 50 MiB stream ceiling, got %d", cfg.StreamMaxBytes)
	}
	if cfg.MaxUploadBytes() != 100<<20 {
		t.Fatalf("expected 100 MiB upload ceiling, got %d", cfg.MaxUploadBytes())
	}
	if cfg.MergeBackend != SlotGrok {
		t.Fatalf("expected merge backend grok, got %q", cfg.MergeBackend)
	}
	if cfg.Store.Type != StoreMemory {
		t.Fatalf("expected memory store, got %q", cfg.Store.Type)
	}
	for _, slot := range Slots {
		if _, ok := cfg.Backends[slot]; !ok {
			t.Fatalf("expected default backend %q", slot)
		}
	}
	if got := cfg.Backends[SlotSonnet].Type; got != TypeAnthropic {
		t.Fatalf("expected sonnet type anthropic, got %q", got)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	clearBackendEnv(t)
	path := writeConfig(t, `{
  "listen": ":8080",
  "minChars": 100,
  "maxChars": 200,
  "mergeBackend": "Sonnet",
  "backends": {
    "grok": { "type": "mock", "mockText": "hello" },
    "sonnet": { "type": "Claude", "model": "claude-test", "temperature": 0.2 }
  }
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ConfigPath != path {
		t.Fatalf("expected config path %q, got %q", path, cfg.ConfigPath)
	}
	if cfg.Listen != ":8080" || cfg.MinChars != 100 || cfg.MaxChars != 200 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.MergeBackend != SlotSonnet {
		t.Fatalf("expected merge backend normalized to sonnet, got %q", cfg.MergeBackend)
	}
	grok := cfg.Backends[SlotGrok]
	if grok.Type != TypeMock || grok.MockText != "hello" {
		t.Fatalf("unexpected grok backend %+v", grok)
	}
	sonnet := cfg.Backends[SlotSonnet]
	if sonnet.Type != TypeAnthropic {
		t.Fatalf("expected claude alias normalized to anthropic, got %q", sonnet.Type)
	}
	if sonnet.Model != "claude-test" {
		t.Fatalf("expected model override, got %q", sonnet.Model)
	}
	if sonnet.Temperature == nil || *sonnet.Temperature != 0.2 {
		t.Fatalf("expected temperature 0.2, got %v", sonnet.Temperature)
	}
	if sonnet.URL == "" {
		t.Fatalf("expected default url to survive a partial override")
	}
}

func TestLoadReadsProviderEnv(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("X_API_KEY", "xai-secret")
	t.Setenv("GROK_MODEL_ID", "grok-env")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-secret")
	t.Setenv("GOOGLE_API_KEY", "google-secret")

	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := cfg.Backends[SlotGrok].APIKey; got != "xai-secret" {
		t.Fatalf("expected grok key from X_API_KEY, got %q", got)
	}
	if got := cfg.Backends[SlotGrok].Model; got != "grok-env" {
		t.Fatalf("expected grok model from GROK_MODEL_ID, got %q", got)
	}
	if got := cfg.Backends[SlotSonnet].APIKey; got != "anthropic-secret" {
		t.Fatalf("expected sonnet key from ANTHROPIC_API_KEY, got %q", got)
	}
	if got := cfg.Backends[SlotGemini].APIKey; got != "google-secret" {
		t.Fatalf("expected gemini key from GOOGLE_API_KEY, got %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	clearBackendEnv(t)
	cases := map[string]string{
		"invalid json":      `{"listen": `,
		"inverted bounds":   `{"minChars": 500, "maxChars": 100}`,
		"unknown type":      `{"backends": {"gemini": {"type": "ollama"}}}`,
		"unknown merge":     `{"mergeBackend": "mistral"}`,
		"unknown store":     `{"store": {"type": "sqlite"}}`,
		"zero stream limit": `{"streamMaxBytes": 0}`,
		"zero bound budget": `{"boundMaxTokens": 0}`,
		"negative budget":   `{"boundMaxTokens": -5}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, payload)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for an explicit missing file")
	}
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("CONCILIUM_DOTENV_PROBE=present\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("CONCILIUM_DOTENV_PROBE", "")
	os.Unsetenv("CONCILIUM_DOTENV_PROBE")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv error: %v", err)
	}
	if got := os.Getenv("CONCILIUM_DOTENV_PROBE"); got != "present" {
		t.Fatalf("expected probe variable to be loaded, got %q", got)
	}
}

func TestShowConfigMasksKeys(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("X_API_KEY", "xai-abcdef123456")
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	var buf bytes.Buffer
	ShowConfig(&buf, cfg)
	out := buf.String()
	if strings.Contains(out, "xai-abcdef123456") {
		t.Fatalf("api key leaked into output:\n%s", out)
	}
	if !strings.Contains(out, "3456") {
		t.Fatalf("expected masked key suffix in output:\n%s", out)
	}
	for _, slot := range Slots {
		if !strings.Contains(out, slot) {
			t.Fatalf("expected slot %q in output:\n%s", slot, out)
		}
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret(""); got != "(unset)" {
		t.Fatalf("unexpected mask for empty secret: %q", got)
	}
	if got := MaskSecret("abc"); got != "****" {
		t.Fatalf("unexpected mask for short secret: %q", got)
	}
	if got := MaskSecret("secret-value"); got != "********alue" {
		t.Fatalf("unexpected mask: %q", got)
	}
}
