package config

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// Config fields are addressed on the command line by the dot path of their
// JSON names ("storage.nats.url"). Fields tagged sensitive:"true" are masked
// when listed.
var knownKeys, secretKeys = describe(reflect.TypeFor[Config](), "")

func describe(t reflect.Type, prefix string) (known, secret map[string]bool) {
	known = make(map[string]bool)
	secret = make(map[string]bool)
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		key := prefix + name
		if f.Type.Kind() == reflect.Struct {
			k, s := describe(f.Type, key+".")
			maps.Copy(known, k)
			maps.Copy(secret, s)
			continue
		}
		known[key] = true
		if f.Tag.Get("sensitive") == "true" {
			secret[key] = true
		}
	}
	return known, secret
}

// IsSecretKey reports whether the dot key names a secret field.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Keys returns every dot key Config knows about, sorted.
func Keys() []string {
	return slices.Sorted(maps.Keys(knownKeys))
}

func splitKey(key string) ([]string, error) {
	parts := strings.Split(key, ".")
	if slices.Contains(parts, "") {
		return nil, fmt.Errorf("invalid config key: %q", key)
	}
	return parts, nil
}

// leaves writes every non-object value of m into out under its dot key.
// Lists are values, not objects.
func leaves(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		if child, ok := v.(map[string]any); ok {
			leaves(prefix+k+".", child, out)
			continue
		}
		out[prefix+k] = v
	}
}

func getPath(m map[string]any, key string) (any, bool) {
	parts, err := splitKey(key)
	if err != nil {
		return nil, false
	}
	var cur any = m
	for _, p := range parts {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath stores v at key, creating intermediate objects. It refuses to
// replace a value that is not an object with one, so "log_level.x" cannot
// wipe log_level.
func setPath(m map[string]any, key string, v any) error {
	parts, err := splitKey(key)
	if err != nil {
		return err
	}
	cur := m
	for i, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok {
			child := make(map[string]any)
			cur[p] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("config key %s is not an object", strings.Join(parts[:i+1], "."))
		}
		cur = child
	}
	cur[parts[len(parts)-1]] = v
	return nil
}

// maskSecret keeps the last four characters of s, enough to tell two
// tokens apart.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "***" + s
	}
	return "***" + s[len(s)-4:]
}
