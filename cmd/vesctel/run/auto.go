package run

import (
	"strings"
	"time"

	"github.com/temoto/vesctel/helpers"
	"github.com/temoto/vesctel/internal/link"
	"github.com/temoto/vesctel/internal/supervisor"
)

type action uint8

const (
	actionNone action = iota
	actionScan
	actionSelect
)

// autoConnect keeps daemon looking for a board while supervisor is Idle.
// Fresh scan results arm one select attempt. Empty scans and failed
// connects space out the next scan.
type autoConnect struct {
	prefer   string
	armed    bool
	backoff  helpers.Backoff
	lastScan time.Time
}

func newAutoConnect(prefer string) *autoConnect {
	return &autoConnect{
		prefer:  prefer,
		backoff: helpers.Backoff{Min: time.Second, Max: 30 * time.Second, K: 2},
	}
}

func (self *autoConnect) onEvent(e supervisor.Event) {
	switch e.Kind {
	case supervisor.EventScanned:
		self.armed = true
	case supervisor.EventConnected:
		self.backoff.Reset()
	case supervisor.EventConnectFailed:
		self.backoff.Failure()
	}
}

func (self *autoConnect) step(now time.Time, s supervisor.Snapshot) (action, int) {
	if s.State != supervisor.StateIdle {
		return actionNone, 0
	}
	if self.armed {
		self.armed = false
		if i, ok := pick(s.Peers, self.prefer); ok {
			return actionSelect, i
		}
		self.backoff.Failure()
		return actionNone, 0
	}
	if s.Scanning || now.Sub(self.lastScan) < self.backoff.Delay() {
		return actionNone, 0
	}
	self.lastScan = now
	return actionScan, 0
}

// pick returns first peer matching prefer by address or name substring,
// with empty prefer the strongest signal.
func pick(peers []link.PeerDescriptor, prefer string) (int, bool) {
	if len(peers) == 0 {
		return 0, false
	}
	if prefer != "" {
		for i, p := range peers {
			if strings.EqualFold(p.Address, prefer) || strings.Contains(strings.ToLower(p.Name), strings.ToLower(prefer)) {
				return i, true
			}
		}
		return 0, false
	}
	best := 0
	for i, p := range peers {
		if p.RSSI > peers[best].RSSI {
			best = i
		}
	}
	return best, true
}
