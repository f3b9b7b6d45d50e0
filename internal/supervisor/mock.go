package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/temoto/vesctel/internal/link"
)

// MockDiscovery returns configured peers immediately.
type MockDiscovery struct {
	mu    sync.Mutex
	peers []link.PeerDescriptor
	err   error
	calls int
}

var _ Discovery = &MockDiscovery{}

func NewMockDiscovery(peers ...link.PeerDescriptor) *MockDiscovery {
	return &MockDiscovery{peers: peers}
}

func (self *MockDiscovery) Scan(ctx context.Context, d time.Duration) ([]link.PeerDescriptor, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.calls++
	if self.err != nil {
		return nil, self.err
	}
	return append([]link.PeerDescriptor(nil), self.peers...), nil
}

func (self *MockDiscovery) SetPeers(peers ...link.PeerDescriptor) {
	self.mu.Lock()
	self.peers = peers
	self.mu.Unlock()
}

func (self *MockDiscovery) SetError(err error) {
	self.mu.Lock()
	self.err = err
	self.mu.Unlock()
}

func (self *MockDiscovery) Calls() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.calls
}
