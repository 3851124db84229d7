// Package state holds the in-memory model of paired boxes: the device
// collection, per-peer connection status and the selected box. Only the
// device collection is persisted; it is loaded once by Hydrate and, from
// then on, written back after every change without blocking the caller.
package state
