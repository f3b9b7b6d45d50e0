package link

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/atomic_clock"
	"github.com/temoto/vesctel/hardware/vesc"
	"github.com/temoto/vesctel/log2"
)

const modName string = "link"

const DefaultInboxSize = 64

var (
	ErrNotBound = errors.New("no transport bound")
	ErrClosed   = errors.New("session closed")
)

type Config struct {
	Layout    vesc.Layout
	StrictCRC bool
	BufferMax int
	InboxSize int
}

type Stat struct {
	Parser       vesc.ParserStat
	Readings     uint32
	AliveAcks    uint32
	TooShort     uint32
	Unrecognized uint32
	Dropped      uint32 // notifications lost to full inbox
	Sent         uint32
	SendErrors   uint32
}

// Session binds frame codec and telemetry decoder to one connected Channel.
// Notification callback only queues bytes; Ingest, called from the owner's
// tick, runs the codec. Session knows nothing about reconnect policy.
type Session struct {
	Log *log2.Log

	layout vesc.Layout
	inbox  chan []byte
	closed uint32
	lost   <-chan struct{}

	lastReading atomic_clock.Clock
	lastAlive   atomic_clock.Clock
	dropped     uint32

	mu     sync.Mutex
	ch     Channel
	parser vesc.Parser
	latest *vesc.Reading
	stat   Stat
}

func NewSession(ch Channel, c Config, log *log2.Log) *Session {
	inboxSize := c.InboxSize
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	self := &Session{
		Log:    log,
		layout: c.Layout.WithDefaults(),
		inbox:  make(chan []byte, inboxSize),
		ch:     ch,
		parser: vesc.Parser{VerifyCRC: c.StrictCRC, Max: c.BufferMax},
	}
	if ch != nil {
		self.lost = ch.Done()
		ch.OnNotify(self.notify)
	}
	return self
}

// Transport callback. Transport may reuse b after return.
func (self *Session) notify(b []byte) {
	if atomic.LoadUint32(&self.closed) != 0 {
		return
	}
	chunk := make([]byte, len(b))
	copy(chunk, b)
	select {
	case self.inbox <- chunk:
	default:
		atomic.AddUint32(&self.dropped, 1)
	}
}

// Ingest drains queued notifications. Returns number of new readings.
func (self *Session) Ingest(now time.Time) int {
	n := 0
	for {
		select {
		case chunk := <-self.inbox:
			n += self.OnBytesReceived(chunk, now)
		default:
			return n
		}
	}
}

// OnBytesReceived feeds the codec and replaces latest reading for every decoded frame.
// Decode failures are counted, never returned.
func (self *Session) OnBytesReceived(b []byte, now time.Time) int {
	self.mu.Lock()
	defer self.mu.Unlock()
	n := 0
	self.parser.Feed(b, func(f vesc.Frame) {
		r, err := vesc.Decode(f.Raw, &self.layout)
		switch errors.Cause(err) {
		case nil:
			r.CapturedAt = now
			self.latest = &r
			self.lastReading.Set(now.UnixNano())
			self.stat.Readings++
			n++
			self.Log.Debugf("%s reading %s", modName, r.String())
		case vesc.ErrAliveAck:
			self.lastAlive.Set(now.UnixNano())
			self.stat.AliveAcks++
		case vesc.ErrTooShort:
			self.stat.TooShort++
			self.Log.Debugf("%s frame=%s err=%v", modName, f.String(), err)
		default:
			self.stat.Unrecognized++
			self.Log.Debugf("%s frame=%s err=%v", modName, f.String(), err)
		}
	})
	return n
}

func (self *Session) SendAliveProbe() error {
	return self.send(vesc.COMMAND_ALIVE)
}

func (self *Session) RequestTelemetry() error {
	return self.send(vesc.COMMAND_GET_VALUES)
}

// Channel write happens outside mu.
func (self *Session) send(cmd vesc.Command_t) error {
	op := "write " + cmd.String()
	self.mu.Lock()
	ch := self.ch
	self.mu.Unlock()
	var err error
	switch {
	case atomic.LoadUint32(&self.closed) != 0:
		err = &TransportError{Op: op, Err: ErrClosed}
	case ch == nil:
		err = &TransportError{Op: op, Err: ErrNotBound}
	default:
		if werr := ch.Write(vesc.Encode(cmd)); werr != nil {
			err = &TransportError{Op: op, Err: werr}
		}
	}
	self.mu.Lock()
	if err != nil {
		self.stat.SendErrors++
	} else {
		self.stat.Sent++
	}
	self.mu.Unlock()
	return err
}

func (self *Session) LatestReading() (vesc.Reading, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.latest == nil {
		return vesc.Reading{}, false
	}
	return *self.latest, true
}

// TimeSinceLastReading returns false if nothing was decoded yet.
func (self *Session) TimeSinceLastReading(now time.Time) (time.Duration, bool) {
	if self.lastReading.IsZero() {
		return 0, false
	}
	return since(now, &self.lastReading), true
}

func (self *Session) TimeSinceLastAlive(now time.Time) (time.Duration, bool) {
	if self.lastAlive.IsZero() {
		return 0, false
	}
	return since(now, &self.lastAlive), true
}

func since(now time.Time, c *atomic_clock.Clock) time.Duration {
	t := atomic_clock.New()
	t.Set(now.UnixNano())
	return t.Sub(c)
}

// Lost reports transport-side disconnect.
func (self *Session) Lost() bool {
	if self.lost == nil {
		return false
	}
	select {
	case <-self.lost:
		return true
	default:
		return false
	}
}

func (self *Session) Stat() Stat {
	self.mu.Lock()
	defer self.mu.Unlock()
	s := self.stat
	s.Parser = self.parser.Stat()
	s.Dropped = atomic.LoadUint32(&self.dropped)
	return s
}

// Close releases the channel. Late notifications are discarded.
// Safe to call more than once.
func (self *Session) Close() error {
	if !atomic.CompareAndSwapUint32(&self.closed, 0, 1) {
		return nil
	}
	self.mu.Lock()
	ch := self.ch
	self.ch = nil
	self.parser.Reset()
	self.mu.Unlock()
	if ch == nil {
		return nil
	}
	if err := ch.Disconnect(); err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}
