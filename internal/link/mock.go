package link

// Public API to easy create transport stubs to test your code.
import (
	"context"
	"sync"

	"github.com/juju/errors"
)

type MockChannel struct {
	mu           sync.Mutex
	notify       func([]byte)
	written      [][]byte
	writeErr     error
	done         chan struct{}
	lostOnce     sync.Once
	disconnected int
}

var _ Channel = &MockChannel{}

func NewMockChannel() *MockChannel {
	return &MockChannel{done: make(chan struct{})}
}

func (self *MockChannel) Write(b []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.writeErr != nil {
		return self.writeErr
	}
	self.written = append(self.written, append([]byte(nil), b...))
	return nil
}

func (self *MockChannel) OnNotify(f func([]byte)) {
	self.mu.Lock()
	self.notify = f
	self.mu.Unlock()
}

func (self *MockChannel) Disconnect() error {
	self.mu.Lock()
	self.disconnected++
	self.mu.Unlock()
	return nil
}

func (self *MockChannel) Done() <-chan struct{} { return self.done }

// Push simulates notification from peer.
func (self *MockChannel) Push(b []byte) {
	self.mu.Lock()
	f := self.notify
	self.mu.Unlock()
	if f != nil {
		f(b)
	}
}

// Lose simulates link loss reported by transport.
func (self *MockChannel) Lose() { self.lostOnce.Do(func() { close(self.done) }) }

func (self *MockChannel) SetWriteError(err error) {
	self.mu.Lock()
	self.writeErr = err
	self.mu.Unlock()
}

func (self *MockChannel) Written() [][]byte {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([][]byte(nil), self.written...)
}

func (self *MockChannel) Disconnected() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.disconnected
}

type MockAttempt struct {
	Address string
	Kind    AddressKind
}

type MockTransport struct {
	mu sync.Mutex
	// reject decides attempt outcome, nil func or nil error means success
	reject   func(address string, kind AddressKind) error
	attempts []MockAttempt
	channels []*MockChannel
}

var _ Transport = &MockTransport{}

func (self *MockTransport) SetReject(f func(address string, kind AddressKind) error) {
	self.mu.Lock()
	self.reject = f
	self.mu.Unlock()
}

func (self *MockTransport) Connect(ctx context.Context, address string, kind AddressKind) (Channel, error) {
	self.mu.Lock()
	self.attempts = append(self.attempts, MockAttempt{Address: address, Kind: kind})
	reject := self.reject
	self.mu.Unlock()
	// reject may block to simulate slow connect
	if reject != nil {
		if err := reject(address, kind); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	c := NewMockChannel()
	self.channels = append(self.channels, c)
	return c, nil
}

func (self *MockTransport) Attempts() []MockAttempt {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]MockAttempt(nil), self.attempts...)
}

// Channels returns every channel handed out, in order.
func (self *MockTransport) Channels() []*MockChannel {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]*MockChannel(nil), self.channels...)
}

func (self *MockTransport) Last() *MockChannel {
	self.mu.Lock()
	defer self.mu.Unlock()
	if len(self.channels) == 0 {
		return nil
	}
	return self.channels[len(self.channels)-1]
}
