// internal/types/models.go
package types

import (
	"maps"
)

// ConnectionStatus is the live connectivity state recorded for a peer.
type ConnectionStatus string

const (
	StatusPending      ConnectionStatus = "PENDING"
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// Valid reports whether s is one of the three known statuses.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConnected, StatusDisconnected:
		return true
	}
	return false
}

// FreeSpace is the storage report of a box, as returned by the probe.
type FreeSpace struct {
	Size           uint64  `json:"size" yaml:"size"`
	Avail          uint64  `json:"avail" yaml:"avail"`
	Used           uint64  `json:"used" yaml:"used"`
	UsedPercentage float64 `json:"used_percentage" yaml:"used_percentage"`
}

// Device is a paired box. PeerID never changes once the record exists.
type Device struct {
	PeerID    PeerID         `json:"peerId" yaml:"peerId"`
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	FreeSpace *FreeSpace     `json:"freeSpace,omitempty" yaml:"freeSpace,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// Clone returns a copy of d that shares no memory with it.
func (d Device) Clone() Device {
	out := d
	if d.FreeSpace != nil {
		fs := *d.FreeSpace
		out.FreeSpace = &fs
	}
	if d.Attrs != nil {
		out.Attrs = cloneAttrs(d.Attrs)
	}
	return out
}

// cloneAttrs copies m along with any nested maps and slices, which is all a
// decoded JSON or YAML value can hold.
func cloneAttrs(m map[string]any) map[string]any {
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneAttrs(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// DevicePatch carries a partial device update. Nil fields are left untouched;
// each key in Attrs overwrites the same key on the target.
type DevicePatch struct {
	PeerID    PeerID
	Name      *string
	FreeSpace *FreeSpace
	Attrs     map[string]any
}

// Apply merges the supplied fields of p into d and returns the result.
// A zero d is treated as an empty record for p.PeerID.
func (p DevicePatch) Apply(d Device) Device {
	out := d.Clone()
	out.PeerID = p.PeerID
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.FreeSpace != nil {
		fs := *p.FreeSpace
		out.FreeSpace = &fs
	}
	if len(p.Attrs) > 0 {
		if out.Attrs == nil {
			out.Attrs = make(map[string]any, len(p.Attrs))
		}
		for k, v := range p.Attrs {
			out.Attrs[k] = cloneValue(v)
		}
	}
	return out
}

// Devices is the device collection keyed by peer ID.
type Devices map[PeerID]Device

// Clone deep-copies the collection. A nil collection clones to an empty one.
func (ds Devices) Clone() Devices {
	out := make(Devices, len(ds))
	for k, d := range ds {
		out[k] = d.Clone()
	}
	return out
}

// Statuses is the connection status collection keyed by peer ID.
type Statuses map[PeerID]ConnectionStatus

func (ss Statuses) Clone() Statuses {
	out := make(Statuses, len(ss))
	maps.Copy(out, ss)
	return out
}
