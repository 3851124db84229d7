// internal/types/models_test.go
package types

import (
	"reflect"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestDevicePatchApplyMergesOnlySuppliedFields(t *testing.T) {
	base := Device{
		PeerID:    "A",
		Name:      "kitchen",
		FreeSpace: &FreeSpace{Size: 10, Avail: 5},
		Attrs:     map[string]any{"ip": "10.0.0.2", "fw": "1.0"},
	}

	got := DevicePatch{PeerID: "A", Attrs: map[string]any{"fw": "1.1"}}.Apply(base)

	if got.Name != "kitchen" {
		t.Errorf("expected name preserved, got %q", got.Name)
	}
	if got.FreeSpace == nil || got.FreeSpace.Avail != 5 {
		t.Errorf("expected free space preserved, got %+v", got.FreeSpace)
	}
	if got.Attrs["ip"] != "10.0.0.2" || got.Attrs["fw"] != "1.1" {
		t.Errorf("unexpected attrs %v", got.Attrs)
	}
	if base.Attrs["fw"] != "1.0" {
		t.Error("patch must not mutate the base record")
	}
}

func TestDevicePatchApplyOnEmptyBase(t *testing.T) {
	got := DevicePatch{PeerID: "B", Name: strPtr("garage")}.Apply(Device{})
	want := Device{PeerID: "B", Name: "garage"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestDevicesCloneIsDeep(t *testing.T) {
	ds := Devices{"A": {PeerID: "A", FreeSpace: &FreeSpace{Avail: 1}, Attrs: map[string]any{"k": "v"}}}
	cp := ds.Clone()
	cp["A"].FreeSpace.Avail = 99
	cp["A"].Attrs["k"] = "changed"

	if ds["A"].FreeSpace.Avail != 1 {
		t.Error("clone shares FreeSpace with original")
	}
	if ds["A"].Attrs["k"] != "v" {
		t.Error("clone shares Attrs with original")
	}
}

func TestAttrsKeepTheirTypes(t *testing.T) {
	base := Device{PeerID: "A", Attrs: map[string]any{"port": 4001, "tags": []any{"a"}}}
	got := DevicePatch{
		PeerID: "A",
		Attrs:  map[string]any{"pinned": true, "limits": map[string]any{"gb": 2.5}},
	}.Apply(base)

	if got.Attrs["port"] != 4001 || got.Attrs["pinned"] != true {
		t.Errorf("unexpected attrs %v", got.Attrs)
	}
	limits, ok := got.Attrs["limits"].(map[string]any)
	if !ok || limits["gb"] != 2.5 {
		t.Fatalf("expected nested map, got %#v", got.Attrs["limits"])
	}

	cp := got.Clone()
	cp.Attrs["limits"].(map[string]any)["gb"] = 0.0
	cp.Attrs["tags"].([]any)[0] = "b"
	if limits["gb"] != 2.5 {
		t.Error("clone shares nested map with original")
	}
	if got.Attrs["tags"].([]any)[0] != "a" {
		t.Error("clone shares nested slice with original")
	}
}

func TestConnectionStatusValid(t *testing.T) {
	for _, s := range []ConnectionStatus{StatusPending, StatusConnected, StatusDisconnected} {
		if !s.Valid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if ConnectionStatus("UNKNOWN").Valid() {
		t.Error("expected UNKNOWN to be invalid")
	}
}
