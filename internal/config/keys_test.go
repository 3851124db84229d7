package config

import (
	"os"
	"slices"
	"strings"
	"testing"
)

func TestKeysCoverConfig(t *testing.T) {
	keys := Keys()
	for _, want := range []string{
		"data_dir",
		"storage.backend",
		"storage.nats.url",
		"storage.nats.token",
		"probe.timeout_seconds",
		"notify.targets",
		"telegram.token",
	} {
		if !slices.Contains(keys, want) {
			t.Errorf("expected key %s in %v", want, keys)
		}
	}
	if slices.Contains(keys, "storage") || slices.Contains(keys, "storage.nats") {
		t.Error("objects must not be listed as keys")
	}
	if !slices.IsSorted(keys) {
		t.Error("expected sorted keys")
	}
}

func TestSecretKeysFromTags(t *testing.T) {
	for _, key := range []string{"telegram.token", "storage.nats.token", "notify.nats_token"} {
		if !IsSecretKey(key) {
			t.Errorf("%s should be secret", key)
		}
	}
	for _, key := range []string{"probe.base_url", "storage.nats.url", "telegram"} {
		if IsSecretKey(key) {
			t.Errorf("%s should not be secret", key)
		}
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"long", "123456:ABCdefGHIjkl", "***Ijkl"},
		{"empty", "", ""},
		{"short", "ab", "***ab"},
		{"exactly four", "abcd", "***abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSecret(tt.value); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestGetPath(t *testing.T) {
	m := map[string]any{
		"storage": map[string]any{
			"nats": map[string]any{"bucket": "boxwatch"},
		},
		"notify": map[string]any{"targets": []any{"log:"}},
	}

	if v, ok := getPath(m, "storage.nats.bucket"); !ok || v != "boxwatch" {
		t.Errorf("expected boxwatch, got %v (%v)", v, ok)
	}
	if v, ok := getPath(m, "notify.targets"); !ok || len(v.([]any)) != 1 {
		t.Errorf("expected list value, got %v", v)
	}
	for _, key := range []string{"storage.nats.missing", "notify.targets.x", "storage..nats", ""} {
		if _, ok := getPath(m, key); ok {
			t.Errorf("expected %q to be absent", key)
		}
	}
}

func TestSetPath(t *testing.T) {
	m := map[string]any{"log_level": "info"}

	if err := setPath(m, "storage.nats.url", "nats://127.0.0.1:4222"); err != nil {
		t.Fatal(err)
	}
	if v, _ := getPath(m, "storage.nats.url"); v != "nats://127.0.0.1:4222" {
		t.Errorf("expected nested value, got %v", v)
	}

	err := setPath(m, "log_level.verbose", true)
	if err == nil || !strings.Contains(err.Error(), "log_level is not an object") {
		t.Errorf("expected not-an-object error, got %v", err)
	}
	if m["log_level"] != "info" {
		t.Errorf("log_level must be left alone, got %v", m["log_level"])
	}

	if err := setPath(m, "storage.", "x"); err == nil {
		t.Error("expected error for empty key segment")
	}
}

func TestSetValue_RejectsWrongType(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, defaults())
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := SetValue(path, "probe.max_attempts", "many"); err == nil {
		t.Fatal("expected error for a string in an int field")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("config file changed after a rejected set")
	}
}

func TestListValues_MasksEverySecret(t *testing.T) {
	cfg := defaults()
	cfg.Telegram.Token = "bot-token-abcd"
	cfg.Storage.NATS.Token = "nats-secret-wxyz"

	values, err := ListValues(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if values["telegram.token"] != "***abcd" || values["storage.nats.token"] != "***wxyz" {
		t.Errorf("secrets not masked: %v %v", values["telegram.token"], values["storage.nats.token"])
	}
	if values["notify.nats_token"] != "" {
		t.Errorf("empty secret should stay empty, got %v", values["notify.nats_token"])
	}
	if values["storage.backend"] != "file" {
		t.Errorf("expected storage.backend=file, got %v", values["storage.backend"])
	}
}
