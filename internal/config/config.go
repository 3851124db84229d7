package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Storage  struct {
		Backend             string `json:"backend"`
		Key                 string `json:"key"`
		Codec               string `json:"codec"`
		MaxConcurrentWrites int    `json:"max_concurrent_writes"`
		NATS                struct {
			URL    string `json:"url"`
			Token  string `json:"token" sensitive:"true"`
			Bucket string `json:"bucket"`
		} `json:"nats"`
	} `json:"storage"`
	Probe struct {
		BaseURL        string `json:"base_url"`
		TimeoutSeconds int    `json:"timeout_seconds"`
		MaxAttempts    int    `json:"max_attempts"`
	} `json:"probe"`
	Monitor struct {
		Enabled  bool   `json:"enabled"`
		Schedule string `json:"schedule"`
	} `json:"monitor"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Notify struct {
		Targets   []string `json:"targets"`
		NATSURL   string   `json:"nats_url"`
		NATSToken string   `json:"nats_token" sensitive:"true"`
	} `json:"notify"`
	Telegram struct {
		Token string `json:"token" sensitive:"true"`
	} `json:"telegram"`
}

// ProbeTimeout returns the per-call probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Probe.TimeoutSeconds) * time.Second
}

// APIURL returns the base URL clients use to reach the daemon's HTTP API.
func (c *Config) APIURL() string {
	listen := c.HTTP.Listen
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}
	return "http://" + listen
}

func defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".boxwatch"),
		LogLevel: "info",
	}
	cfg.Storage.Backend = "file"
	cfg.Storage.Key = "bloxsModelSlice"
	cfg.Storage.Codec = "json"
	cfg.Storage.MaxConcurrentWrites = 2
	cfg.Storage.NATS.Bucket = "boxwatch"
	cfg.Probe.BaseURL = "http://127.0.0.1:8080"
	cfg.Probe.TimeoutSeconds = 10
	cfg.Probe.MaxAttempts = 3
	cfg.Monitor.Enabled = true
	cfg.Monitor.Schedule = "@every 1m"
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:7420"
	cfg.Notify.Targets = []string{"log:"}
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if dir := os.Getenv("BOXWATCH_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if url := os.Getenv("BOXWATCH_PROBE_URL"); url != "" {
		cfg.Probe.BaseURL = url
	}
	if url := os.Getenv("BOXWATCH_NATS_URL"); url != "" {
		cfg.Storage.NATS.URL = url
	}
	if token := os.Getenv("BOXWATCH_NATS_TOKEN"); token != "" {
		cfg.Storage.NATS.Token = token
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if cfg.Notify.NATSURL == "" {
		cfg.Notify.NATSURL = cfg.Storage.NATS.URL
		if cfg.Notify.NATSToken == "" {
			cfg.Notify.NATSToken = cfg.Storage.NATS.Token
		}
	}

	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "file", "badger", "sqlite", "nats", "memory":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	if c.Storage.Backend == "nats" && c.Storage.NATS.URL == "" {
		return fmt.Errorf("storage.nats.url is required for the nats backend")
	}
	switch c.Storage.Codec {
	case "json", "yaml":
	default:
		return fmt.Errorf("unknown storage codec: %s", c.Storage.Codec)
	}
	if c.Storage.Key == "" {
		return fmt.Errorf("storage.key must not be empty")
	}
	if c.Probe.BaseURL == "" {
		return fmt.Errorf("probe.base_url must not be empty")
	}
	return nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into a generic nested map using its JSON field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns every config value keyed by its dot path, optionally
// with secrets masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any)
	leaves("", m, values)
	if mask {
		for key := range secretKeys {
			if s, ok := values[key].(string); ok {
				values[key] = maskSecret(s)
			}
		}
	}
	return values, nil
}

// GetValue loads the config at path and returns the value at the dot key.
// Keys Config does not know are looked up in the file itself.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	if v, ok := getPath(m, key); ok {
		return v, nil
	}

	fileMap, err := readFileMap(path)
	if err != nil {
		return nil, err
	}
	if v, ok := getPath(fileMap, key); ok {
		return v, nil
	}
	return nil, fmt.Errorf("unknown config key: %s", key)
}

// SetValue updates one dot key in the config file at path. The value is
// parsed as JSON when possible (numbers, booleans, arrays) and stored as a
// string otherwise. A value of the wrong type for a known key is rejected
// before the file is touched. The file must already exist.
func SetValue(path, key, value string) error {
	m, err := readFileMap(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	if err := setPath(m, key, parsed); err != nil {
		return err
	}

	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if knownKeys[key] {
		var check Config
		if err := json.Unmarshal(out, &check); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return writeAtomic(path, append(out, '\n'))
}

func readFileMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}
