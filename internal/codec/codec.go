// Package codec encodes the persisted device projection into a versioned
// envelope. The envelope mirrors the layout written by earlier releases:
// {"state":{"devices":{...}},"version":1}.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/user/boxwatch/internal/types"
)

// Version is the envelope version written by this build.
const Version = 1

// ErrVersionMismatch is returned by Decode when the envelope was written by a
// different version. There is no migration; callers discard the blob.
var ErrVersionMismatch = errors.New("persisted state version mismatch")

var (
	_ types.Codec = JSON{}
	_ types.Codec = YAML{}
)

type projection struct {
	Devices types.Devices `json:"devices" yaml:"devices"`
}

type envelope struct {
	State   projection `json:"state" yaml:"state"`
	Version int        `json:"version" yaml:"version"`
}

func wrap(devices types.Devices) envelope {
	if devices == nil {
		devices = types.Devices{}
	}
	return envelope{State: projection{Devices: devices}, Version: Version}
}

func unwrap(env envelope) (types.Devices, error) {
	if env.Version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, env.Version, Version)
	}
	devices := env.State.Devices
	if devices == nil {
		devices = types.Devices{}
	}
	for key, d := range devices {
		if d.PeerID == "" {
			d.PeerID = key
			devices[key] = d
		} else if d.PeerID != key {
			return nil, fmt.Errorf("device key %q does not match peer id %q", key, d.PeerID)
		}
	}
	return devices, nil
}

// JSON is the default codec.
type JSON struct{}

func (JSON) Encode(devices types.Devices) (string, error) {
	data, err := json.Marshal(wrap(devices))
	if err != nil {
		return "", fmt.Errorf("marshal devices: %w", err)
	}
	return string(data), nil
}

func (JSON) Decode(data string) (types.Devices, error) {
	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, fmt.Errorf("unmarshal devices: %w", err)
	}
	return unwrap(env)
}

// YAML writes the same envelope as YAML, for stores that are read by people.
type YAML struct{}

func (YAML) Encode(devices types.Devices) (string, error) {
	data, err := yaml.Marshal(wrap(devices))
	if err != nil {
		return "", fmt.Errorf("marshal devices: %w", err)
	}
	return string(data), nil
}

func (YAML) Decode(data string) (types.Devices, error) {
	var env envelope
	if err := yaml.Unmarshal([]byte(data), &env); err != nil {
		return nil, fmt.Errorf("unmarshal devices: %w", err)
	}
	return unwrap(env)
}

// ByName returns the codec registered under name ("json" or "yaml").
func ByName(name string) (types.Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "yaml":
		return YAML{}, nil
	default:
		return nil, fmt.Errorf("unknown codec: %s", name)
	}
}
