// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

// PeerID identifies a paired box. It is the key of the device collection.
type PeerID string

type EventID string

func NewEventID() EventID {
	return EventID(uuid.New().String())
}
