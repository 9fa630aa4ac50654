package discovery

import (
	"context"
	"errors"

	"dyson-go-home/internal/dyson"
)

// ErrAlreadyRegistered is returned when a device serial already has a
// pending registration.
var ErrAlreadyRegistered = errors.New("device already registered for discovery")

// Discoverer finds appliances announcing themselves on the local network.
// The announcement mechanism itself (mDNS internals) belongs to the external
// device library; this is the contract the bridge consumes.
//
// Register returns a channel that yields a candidate host address for the
// device on every announcement. The channel stays open until Unregister is
// called or the discoverer stops, so a failed connect attempt can wait for
// the next announcement.
type Discoverer interface {
	Start(ctx context.Context) error
	Stop()
	Register(device dyson.Device) (<-chan string, error)
	Unregister(serial string)
}
