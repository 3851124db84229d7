package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.json")
}

func writeTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestLoad_WritesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults not written: %v", err)
	}
	if cfg.Storage.Backend != "file" || cfg.Storage.Key != "bloxsModelSlice" || cfg.Storage.Codec != "json" {
		t.Errorf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Monitor.Schedule != "@every 1m" || !cfg.Monitor.Enabled {
		t.Errorf("unexpected monitor defaults: %+v", cfg.Monitor)
	}
	if cfg.ProbeTimeout() != 10*time.Second {
		t.Errorf("expected 10s probe timeout, got %v", cfg.ProbeTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := tempConfigPath(t)
	t.Setenv("BOXWATCH_PROBE_URL", "http://10.0.0.2:9000")
	t.Setenv("BOXWATCH_NATS_URL", "nats://10.0.0.3:4222")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("BOXWATCH_NATS_TOKEN", "nats-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Probe.BaseURL != "http://10.0.0.2:9000" {
		t.Errorf("probe url not overridden: %s", cfg.Probe.BaseURL)
	}
	if cfg.Storage.NATS.URL != "nats://10.0.0.3:4222" || cfg.Notify.NATSURL != "nats://10.0.0.3:4222" {
		t.Errorf("nats url not overridden: %s / %s", cfg.Storage.NATS.URL, cfg.Notify.NATSURL)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("telegram token not overridden: %s", cfg.Telegram.Token)
	}
	if cfg.Storage.NATS.Token != "nats-token" || cfg.Notify.NATSToken != "nats-token" {
		t.Errorf("nats token not overridden: %s / %s", cfg.Storage.NATS.Token, cfg.Notify.NATSToken)
	}
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	path := tempConfigPath(t)

	original := defaults()
	original.DataDir = "/tmp/test-data"
	original.LogLevel = "debug"
	original.Storage.Backend = "sqlite"
	original.Probe.BaseURL = "http://box.local"
	original.Notify.Targets = []string{"telegram:42", "nats:boxwatch.status"}
	original.Telegram.Token = "bot-token-456"

	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DataDir != original.DataDir || loaded.LogLevel != original.LogLevel {
		t.Errorf("top-level mismatch: %+v", loaded)
	}
	if loaded.Storage.Backend != "sqlite" || loaded.Probe.BaseURL != "http://box.local" {
		t.Errorf("nested mismatch: %+v %+v", loaded.Storage, loaded.Probe)
	}
	if len(loaded.Notify.Targets) != 2 || loaded.Notify.Targets[0] != "telegram:42" {
		t.Errorf("targets mismatch: %v", loaded.Notify.Targets)
	}
	if loaded.Telegram.Token != original.Telegram.Token {
		t.Errorf("Telegram.Token mismatch: %v != %v", loaded.Telegram.Token, original.Telegram.Token)
	}
}

func TestSave_AtomicWrite(t *testing.T) {
	path := tempConfigPath(t)

	if err := Save(path, &Config{LogLevel: "info"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should not exist after successful save")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("saved file is not valid JSON: %v", err)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "config.json")

	if err := Save(path, &Config{LogLevel: "warn"}); err != nil {
		t.Fatalf("Save should create parent directory, got: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should exist: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }},
		{"nats without url", func(c *Config) { c.Storage.Backend = "nats"; c.Storage.NATS.URL = "" }},
		{"unknown codec", func(c *Config) { c.Storage.Codec = "xml" }},
		{"empty key", func(c *Config) { c.Storage.Key = "" }},
		{"empty probe url", func(c *Config) { c.Probe.BaseURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAPIURL(t *testing.T) {
	cfg := defaults()
	cfg.HTTP.Listen = ":7420"
	if got := cfg.APIURL(); got != "http://127.0.0.1:7420" {
		t.Errorf("unexpected api url: %s", got)
	}
	cfg.HTTP.Listen = "10.0.0.1:80"
	if got := cfg.APIURL(); got != "http://10.0.0.1:80" {
		t.Errorf("unexpected api url: %s", got)
	}
}

func TestListValues_Mask(t *testing.T) {
	cfg := &Config{LogLevel: "info"}
	cfg.Telegram.Token = "bot-token-abcd"

	plain, err := ListValues(cfg, false)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if plain["telegram.token"] != "bot-token-abcd" {
		t.Errorf("expected unmasked telegram.token, got %v", plain["telegram.token"])
	}

	masked, err := ListValues(cfg, true)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if masked["telegram.token"] != "***abcd" {
		t.Errorf("expected masked telegram.token=***abcd, got %v", masked["telegram.token"])
	}
	if masked["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", masked["log_level"])
	}
}

func TestGetValue_ExistingKey(t *testing.T) {
	path := tempConfigPath(t)

	cfg := defaults()
	cfg.LogLevel = "debug"
	cfg.Storage.MaxConcurrentWrites = 8
	writeTestConfig(t, path, cfg)

	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "debug" {
		t.Errorf("expected log_level=debug, got %v", v)
	}

	v, err = GetValue(path, "storage.max_concurrent_writes")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	// JSON numbers are float64
	if v != float64(8) {
		t.Errorf("expected 8, got %v (%T)", v, v)
	}
}

func TestGetValue_UnknownKey(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, defaults())

	_, err := GetValue(path, "nonexistent.key")
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	expected := "unknown config key: nonexistent.key"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestSetValue(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, defaults())

	tests := []struct {
		key   string
		value string
		want  any
	}{
		{"log_level", "debug", "debug"},
		{"probe.max_attempts", "5", float64(5)},
		{"monitor.enabled", "false", false},
		{"probe.base_url", "http://box.local:8080", "http://box.local:8080"},
		{"custom.setting", "value", "value"},
	}
	for _, tt := range tests {
		if err := SetValue(path, tt.key, tt.value); err != nil {
			t.Fatalf("SetValue(%s) failed: %v", tt.key, err)
		}
		v, err := GetValue(path, tt.key)
		if err != nil {
			t.Fatalf("GetValue(%s) failed: %v", tt.key, err)
		}
		if v != tt.want {
			t.Errorf("%s: expected %v (%T), got %v (%T)", tt.key, tt.want, tt.want, v, v)
		}
	}

	// Other values are preserved
	v, err := GetValue(path, "storage.backend")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "file" {
		t.Errorf("expected storage.backend=file (preserved), got %v", v)
	}
}

func TestSetValue_NonexistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.json")
	if err := SetValue(path, "log_level", "debug"); err == nil {
		t.Fatal("expected error for nonexistent file, got nil")
	}
}
