// internal/types/interfaces.go
package types

import (
	"context"
)

// BlobStore is the durable key/value storage the state container persists into.
// Values are opaque strings. Get reports ok=false for an absent key.
type BlobStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Codec converts the persisted projection to and from its textual form.
type Codec interface {
	Encode(devices Devices) (string, error)
	Decode(data string) (Devices, error)
}

// Probe queries the currently connected box. Neither call is addressed to a
// particular peer; callers decide where to record the result.
type Probe interface {
	FetchFreeSpace(ctx context.Context) (*FreeSpace, error)
	CheckConnectivity(ctx context.Context) (bool, error)
}
