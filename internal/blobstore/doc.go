// Package blobstore provides the durable key/value backends the state
// container persists its device projection into. Values are opaque strings.
package blobstore

import (
	"errors"

	"github.com/user/boxwatch/internal/types"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("blob store closed")

// Compile-time interface compliance checks.
var _ types.BlobStore = (*MemoryStore)(nil)
var _ types.BlobStore = (*FileStore)(nil)
var _ types.BlobStore = (*BadgerStore)(nil)
var _ types.BlobStore = (*SQLiteStore)(nil)
var _ types.BlobStore = (*NATSStore)(nil)
