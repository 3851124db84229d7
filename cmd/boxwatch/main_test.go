package main

import (
	"testing"
)

func TestSplitList(t *testing.T) {
	got := splitList(" log: , telegram:42,,nats:boxwatch.status ")
	want := []string{"log:", "telegram:42", "nats:boxwatch.status"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if splitList("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestParseAttrs(t *testing.T) {
	got := parseAttrs(map[string]string{
		"port":   "4001",
		"pinned": "true",
		"fw":     "2.4.1",
		"empty":  "",
		"list":   "[a, b]",
	})
	if got["port"] != 4001 {
		t.Errorf("port: expected int 4001, got %#v", got["port"])
	}
	if got["pinned"] != true {
		t.Errorf("pinned: expected true, got %#v", got["pinned"])
	}
	if got["fw"] != "2.4.1" {
		t.Errorf("fw: expected string, got %#v", got["fw"])
	}
	if got["empty"] != "" {
		t.Errorf("empty: expected empty string, got %#v", got["empty"])
	}
	if got["list"] != "[a, b]" {
		t.Errorf("list: expected raw string, got %#v", got["list"])
	}
	if parseAttrs(nil) != nil {
		t.Error("expected nil for no attrs")
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"device", "list"},
		{"device", "add"},
		{"device", "update"},
		{"device", "remove"},
		{"device", "select"},
		{"device", "check"},
		{"device", "space"},
		{"device", "history"},
		{"config", "list"},
		{"config", "get"},
		{"config", "set"},
		{"config", "validate"},
		{"stop"},
		{"restart"},
		{"status"},
		{"setup"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil {
			t.Errorf("%v: %v", path, err)
			continue
		}
		if cmd.Name() != path[len(path)-1] {
			t.Errorf("%v resolved to %q", path, cmd.Name())
		}
	}
}
