package link

import (
	"context"
	"fmt"
)

type AddressKind uint8

const (
	AddressRandom AddressKind = iota
	AddressPublic
)

func (k AddressKind) String() string {
	switch k {
	case AddressRandom:
		return "random"
	case AddressPublic:
		return "public"
	default:
		return fmt.Sprintf("AddressKind(%d)", uint8(k))
	}
}

// Connect attempt order within one connect cycle.
var AddressKinds = []AddressKind{AddressRandom, AddressPublic}

// PeerDescriptor is produced by discovery, identified by Address.
type PeerDescriptor struct {
	Name    string
	Address string
	RSSI    int32
}

func (p PeerDescriptor) String() string {
	return fmt.Sprintf("%s (%s rssi=%d)", p.Name, p.Address, p.RSSI)
}

// Channel is a writable/notifiable byte pipe to one connected peer.
// Implementations: hardware/ble, hardware/serialport, tests.
type Channel interface {
	// Write runs on the supervisor tick, it must hand bytes to the stack
	// without waiting for the peer (BLE write without response).
	Write(b []byte) error
	// OnNotify installs receive callback. It may be called from any goroutine.
	OnNotify(func([]byte))
	Disconnect() error
	// Done is closed when the link is lost without Disconnect.
	Done() <-chan struct{}
}

type Transport interface {
	// Connect resolves the peer and returns a channel ready for Write and OnNotify.
	// Blocking, no timeout is imposed by the caller beyond ctx.
	Connect(ctx context.Context, address string, kind AddressKind) (Channel, error)
}

type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
