package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/vesctel/hardware/vesc"
	"github.com/temoto/vesctel/internal/link"
)

//go:generate stringer -type=State -trimprefix=State
type State uint32

const (
	StateIdle         State = iota // no peer selected
	StateConnecting                // +ok=Connected +fail=Idle
	StateConnected                 // +lost/stale=Reconnecting +disconnect=Idle
	StateReconnecting              // +deadline=connect +ok=Connected +gone/cancel=Idle
)

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	ErrPeerIndex = errors.New("peer index out of range")
	ErrBusy      = errors.New("supervisor busy")
	ErrStopped   = errors.New("supervisor stopped")
)

type StatusKind uint8

const (
	StatusWaiting StatusKind = iota
	StatusFresh
	StatusStale
)

// Status is summary for display. Age is only meaningful for Fresh.
type Status struct {
	Kind StatusKind
	Age  time.Duration
}

func (s Status) String() string {
	switch s.Kind {
	case StatusWaiting:
		return "waiting"
	case StatusFresh:
		return fmt.Sprintf("fresh(%s)", s.Age.Round(time.Millisecond))
	case StatusStale:
		return "stale"
	default:
		return fmt.Sprintf("Status(%d)", s.Kind)
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

const (
	DefaultPollInterval      = 300 * time.Millisecond
	DefaultStaleTimeout      = 5 * time.Second
	DefaultReconnectInterval = 5 * time.Second
	DefaultGracePeriod       = 10 * time.Second
	DefaultAliveInterval     = 1 * time.Second
	DefaultScanDuration      = 5 * time.Second
	DefaultTickInterval      = 100 * time.Millisecond
)

// Config is fixed at construction. Zero durations mean default.
// Negative AliveInterval disables periodic ALIVE, one probe is still sent after connect.
type Config struct {
	PollInterval      time.Duration
	StaleTimeout      time.Duration
	ReconnectInterval time.Duration
	GracePeriod       time.Duration
	AliveInterval     time.Duration
	ScanDuration      time.Duration
	TickInterval      time.Duration
	Link              link.Config
}

func durationDefault(x, def time.Duration) time.Duration {
	if x == 0 {
		return def
	}
	return x
}

func (c Config) withDefaults() Config {
	c.PollInterval = durationDefault(c.PollInterval, DefaultPollInterval)
	c.StaleTimeout = durationDefault(c.StaleTimeout, DefaultStaleTimeout)
	c.ReconnectInterval = durationDefault(c.ReconnectInterval, DefaultReconnectInterval)
	c.GracePeriod = durationDefault(c.GracePeriod, DefaultGracePeriod)
	c.AliveInterval = durationDefault(c.AliveInterval, DefaultAliveInterval)
	c.ScanDuration = durationDefault(c.ScanDuration, DefaultScanDuration)
	c.TickInterval = durationDefault(c.TickInterval, DefaultTickInterval)
	return c
}

// Discovery finds candidate peers, already filtered by name marker.
// Result order is discovery order.
type Discovery interface {
	Scan(ctx context.Context, d time.Duration) ([]link.PeerDescriptor, error)
}

//go:generate stringer -type=EventKind -trimprefix=Event
type EventKind uint8

const (
	EventScanned EventKind = iota
	EventConnected
	EventConnectFailed
	EventLost
	EventStale
	EventReconnectFailed
	EventAbandoned
	EventDisconnected
)

type Event struct {
	Kind        EventKind
	State       State // after transition
	Peer        link.PeerDescriptor
	AddressKind link.AddressKind // of successful connect
	Err         error
	At          time.Time
}

func (e Event) String() string {
	s := fmt.Sprintf("%s state=%s peer=%s", e.Kind.String(), e.State.String(), e.Peer.Address)
	if e.Err != nil {
		s += " err=" + e.Err.Error()
	}
	return s
}

// Snapshot is consistent copy of supervisor view for display and uplink.
type Snapshot struct {
	At       time.Time
	State    State
	Status   Status
	Target   *link.PeerDescriptor
	Peers    []link.PeerDescriptor
	Reading  *vesc.Reading
	Stat     link.Stat
	Scanning bool
	Error    string
}
