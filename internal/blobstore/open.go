package blobstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nats-io/nats.go"

	"github.com/user/boxwatch/internal/types"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend string // file, badger, sqlite, nats, memory
	DataDir string
	NATSURL   string
	NATSToken string
	NATSKV    string
}

// Open creates the backend named by opts.Backend. File-based backends live
// under opts.DataDir.
func Open(ctx context.Context, opts Options) (types.BlobStore, error) {
	switch opts.Backend {
	case "", "file":
		return NewFileStore(filepath.Join(opts.DataDir, "state")), nil
	case "badger":
		return NewBadgerStore(filepath.Join(opts.DataDir, "badger"))
	case "sqlite":
		return NewSQLiteStore(filepath.Join(opts.DataDir, "state.db"))
	case "nats":
		if opts.NATSURL == "" {
			return nil, fmt.Errorf("nats backend requires a url")
		}
		bucket := opts.NATSKV
		if bucket == "" {
			bucket = "boxwatch"
		}
		var extra []nats.Option
		if opts.NATSToken != "" {
			extra = append(extra, nats.Token(opts.NATSToken))
		}
		return NewNATSStore(ctx, opts.NATSURL, bucket, extra...)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", opts.Backend)
	}
}
