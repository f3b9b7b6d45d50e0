// Package supervisor owns the connection lifecycle: scan, select, connect,
// poll, detect stale data, reconnect.
// All state transitions happen under one mutex, driven by Tick.
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/vesctel/hardware/vesc"
	"github.com/temoto/vesctel/helpers"
	"github.com/temoto/vesctel/helpers/msync"
	"github.com/temoto/vesctel/internal/link"
	"github.com/temoto/vesctel/log2"
)

const modName string = "supervisor"

const eventBuffer = 32

type connectResult struct {
	attempt uint64
	peer    link.PeerDescriptor
	ch      link.Channel
	kind    link.AddressKind
	err     error
}

type scanResult struct {
	peers []link.PeerDescriptor
	err   error
}

type Supervisor struct {
	Log *log2.Log
	// Clock is used by Run, commands and StatusSummary. Set before Run.
	Clock func() time.Time

	config    Config
	transport link.Transport
	discovery Discovery
	alive     *alive.Alive
	ctx       context.Context
	cancel    context.CancelFunc
	kick      msync.Signal
	events    chan Event
	results   chan connectResult
	scans     chan scanResult

	state uint32 // State, written under mu

	mu            sync.Mutex
	peers         []link.PeerDescriptor
	target        *link.PeerDescriptor
	session       *link.Session
	reading       *vesc.Reading
	connectedAt   time.Time
	deadline      time.Time
	nextPoll      time.Time
	nextAlive     time.Time
	attempt       uint64
	connecting    bool
	connectCancel context.CancelFunc
	scanning      bool
	lastErr       error
}

func New(c Config, t link.Transport, d Discovery, log *log2.Log) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	self := &Supervisor{
		Log:       log,
		Clock:     time.Now,
		config:    c.withDefaults(),
		transport: t,
		discovery: d,
		alive:     alive.NewAlive(),
		ctx:       ctx,
		cancel:    cancel,
		kick:      msync.NewSignal(),
		events:    make(chan Event, eventBuffer),
		results:   make(chan connectResult, 4),
		scans:     make(chan scanResult, 1),
	}
	return self
}

func (self *Supervisor) Config() Config { return self.config }

// Events delivers transition notifications. Events are dropped when nobody reads.
func (self *Supervisor) Events() <-chan Event { return self.events }

func (self *Supervisor) CurrentState() State { return State(atomic.LoadUint32(&self.state)) }
func (self *Supervisor) setState(new State) { atomic.StoreUint32(&self.state, uint32(new)) }

func (self *Supervisor) now() time.Time {
	if self.Clock == nil {
		return time.Now()
	}
	return self.Clock()
}

// Run ticks until ctx is done or Stop.
func (self *Supervisor) Run(ctx context.Context) error {
	if !self.alive.Add(1) {
		return ErrStopped
	}
	defer self.alive.Done()
	tmr := time.NewTicker(self.config.TickInterval)
	defer tmr.Stop()
	stopch := self.alive.StopChan()
	for {
		select {
		case <-ctx.Done():
			self.Stop()
			return ctx.Err()
		case <-stopch:
			return nil
		case <-tmr.C:
		case <-self.kick:
		}
		self.Tick(self.now())
	}
}

// Stop cancels pending connect and scan, releases transport.
// Safe to call more than once. Wait blocks until Run returns.
func (self *Supervisor) Stop() {
	self.alive.Stop()
	self.cancel()
	self.mu.Lock()
	defer self.mu.Unlock()
	self.invalidateAttempt()
	self.releaseSession()
	self.setState(StateIdle)
}

func (self *Supervisor) Wait() { self.alive.Wait() }

// Tick runs one cycle: ingest buffered bytes, evaluate transitions, issue scheduled requests.
func (self *Supervisor) Tick(now time.Time) {
	self.mu.Lock()
	defer self.mu.Unlock()

	// ingest
	if self.session != nil && self.session.Ingest(now) > 0 {
		if r, ok := self.session.LatestReading(); ok {
			self.reading = &r
		}
	}

	// transitions
	self.collect(now)
	switch self.CurrentState() {
	case StateConnected:
		self.checkConnected(now)
	case StateReconnecting:
		self.checkReconnecting(now)
	}

	// requests
	if self.CurrentState() == StateConnected {
		self.poll(now)
	}
}

func (self *Supervisor) collect(now time.Time) {
	for {
		select {
		case sr := <-self.scans:
			self.scanning = false
			if sr.err != nil {
				self.lastErr = sr.err
				self.Log.Errorf("%s scan err=%v", modName, sr.err)
				continue
			}
			self.peers = sr.peers
			self.Log.Debugf("%s scan found=%d", modName, len(sr.peers))
			self.emit(Event{Kind: EventScanned, At: now})

		case res := <-self.results:
			if !self.connecting || res.attempt != self.attempt {
				// cancelled attempt completed late
				if res.ch != nil {
					if err := res.ch.Disconnect(); err != nil {
						self.Log.Debugf("%s stale attempt disconnect err=%v", modName, err)
					}
				}
				continue
			}
			self.finishAttempt()
			if res.err != nil {
				self.connectFailed(now, res.err)
			} else {
				self.bind(now, res)
			}

		default:
			return
		}
	}
}

func (self *Supervisor) connectFailed(now time.Time, err error) {
	self.lastErr = err
	peer := self.targetPeer()
	switch self.CurrentState() {
	case StateConnecting:
		self.Log.Errorf("%s connect peer=%s err=%v", modName, peer.Address, err)
		self.target = nil
		self.setState(StateIdle)
		self.emit(Event{Kind: EventConnectFailed, Peer: peer, Err: err, At: now})
	case StateReconnecting:
		self.Log.Infof("%s reconnect peer=%s err=%v", modName, peer.Address, err)
		self.deadline = now.Add(self.config.ReconnectInterval)
		self.emit(Event{Kind: EventReconnectFailed, Peer: peer, Err: err, At: now})
	default:
		self.Log.Errorf("%s connect result in state=%s err=%v", modName, self.CurrentState(), err)
	}
}

func (self *Supervisor) bind(now time.Time, res connectResult) {
	self.releaseSession()
	self.session = link.NewSession(res.ch, self.config.Link, self.Log)
	self.connectedAt = now
	self.nextPoll = now
	self.nextAlive = now
	self.lastErr = nil
	self.setState(StateConnected)
	self.Log.Infof("%s connected peer=%s kind=%s", modName, res.peer.String(), res.kind.String())
	self.emit(Event{Kind: EventConnected, Peer: res.peer, AddressKind: res.kind, At: now})
}

func (self *Supervisor) checkConnected(now time.Time) {
	if self.session.Lost() {
		self.lose(now, EventLost, errors.New("link lost"))
		return
	}
	if now.Sub(self.connectedAt) <= self.config.GracePeriod {
		return
	}
	if age := self.age(now); age > self.config.StaleTimeout {
		self.lose(now, EventStale, errors.Errorf("no telemetry for %s", age))
	}
}

func (self *Supervisor) checkReconnecting(now time.Time) {
	if self.target == nil {
		self.setState(StateIdle)
		return
	}
	if !self.known(self.target.Address) {
		peer := *self.target
		self.Log.Infof("%s peer=%s gone, abandon reconnect", modName, peer.Address)
		self.invalidateAttempt()
		self.target = nil
		self.setState(StateIdle)
		self.emit(Event{Kind: EventAbandoned, Peer: peer, At: now})
		self.startScan()
		return
	}
	if self.connecting || now.Before(self.deadline) {
		return
	}
	self.startConnect(*self.target)
}

func (self *Supervisor) poll(now time.Time) {
	// zero nextAlive means periodic probe disabled
	if !self.nextAlive.IsZero() && !now.Before(self.nextAlive) {
		self.nextAlive = time.Time{}
		if self.config.AliveInterval > 0 {
			self.nextAlive = now.Add(self.config.AliveInterval)
		}
		if err := self.session.SendAliveProbe(); err != nil {
			self.lose(now, EventLost, err)
			return
		}
	}
	if !now.Before(self.nextPoll) {
		self.nextPoll = now.Add(self.config.PollInterval)
		if err := self.session.RequestTelemetry(); err != nil {
			self.lose(now, EventLost, err)
			return
		}
	}
}

// lose moves Connected to Reconnecting, remembering target.
func (self *Supervisor) lose(now time.Time, kind EventKind, err error) {
	peer := self.targetPeer()
	self.lastErr = err
	self.Log.Infof("%s %s peer=%s err=%v", modName, kind.String(), peer.Address, err)
	self.releaseSession()
	self.deadline = now.Add(self.config.ReconnectInterval)
	self.setState(StateReconnecting)
	self.emit(Event{Kind: kind, Peer: peer, Err: err, At: now})
	self.startScan()
}

func (self *Supervisor) age(now time.Time) time.Duration {
	if self.session != nil {
		if d, ok := self.session.TimeSinceLastReading(now); ok {
			return d
		}
	}
	return now.Sub(self.connectedAt)
}

func (self *Supervisor) known(address string) bool {
	for _, p := range self.peers {
		if p.Address == address {
			return true
		}
	}
	return false
}

func (self *Supervisor) targetPeer() link.PeerDescriptor {
	if self.target == nil {
		return link.PeerDescriptor{}
	}
	return *self.target
}

// startConnect launches connect attempt off the tick goroutine.
// Result is consumed by next Tick. Caller holds mu.
func (self *Supervisor) startConnect(peer link.PeerDescriptor) {
	self.invalidateAttempt()
	self.releaseSession()
	ctx, cancel := context.WithCancel(self.ctx)
	self.connecting = true
	self.connectCancel = cancel
	id := self.attempt
	self.Log.Debugf("%s connect peer=%s attempt=%d", modName, peer.Address, id)
	go func() {
		ch, kind, err := self.dial(ctx, peer.Address)
		if ch != nil && ctx.Err() != nil {
			_ = ch.Disconnect()
			ch, err = nil, errors.Trace(ctx.Err())
		}
		res := connectResult{attempt: id, peer: peer, ch: ch, kind: kind, err: err}
		select {
		case self.results <- res:
			self.kick.Set()
		default:
			if ch != nil {
				_ = ch.Disconnect()
			}
		}
	}()
}

// dial tries address kinds in order, at most one fallback.
func (self *Supervisor) dial(ctx context.Context, address string) (link.Channel, link.AddressKind, error) {
	errs := make([]error, 0, len(link.AddressKinds))
	for _, kind := range link.AddressKinds {
		ch, err := self.transport.Connect(ctx, address, kind)
		if err == nil {
			return ch, kind, nil
		}
		self.Log.Debugf("%s connect address=%s kind=%s err=%v", modName, address, kind.String(), err)
		errs = append(errs, errors.Annotatef(err, "kind=%s", kind.String()))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, link.AddressRandom, &link.TransportError{Op: "connect " + address, Err: helpers.FoldErrors(errs)}
}

// invalidateAttempt makes in-flight connect result stale. Caller holds mu.
func (self *Supervisor) invalidateAttempt() {
	self.attempt++
	self.finishAttempt()
}

func (self *Supervisor) finishAttempt() {
	self.connecting = false
	if self.connectCancel != nil {
		self.connectCancel()
		self.connectCancel = nil
	}
}

// releaseSession closes current session before any new attempt. Caller holds mu.
func (self *Supervisor) releaseSession() {
	if self.session == nil {
		return
	}
	if err := self.session.Close(); err != nil {
		self.Log.Errorf("%s release err=%v", modName, err)
	}
	self.session = nil
}

func (self *Supervisor) startScan() bool {
	if self.discovery == nil || self.scanning || self.ctx.Err() != nil {
		return false
	}
	self.scanning = true
	d := self.config.ScanDuration
	go func() {
		peers, err := self.discovery.Scan(self.ctx, d)
		if err != nil {
			err = errors.Annotate(err, "scan")
		}
		self.scans <- scanResult{peers: peers, err: err}
		self.kick.Set()
	}()
	return true
}

func (self *Supervisor) emit(e Event) {
	e.State = self.CurrentState()
	select {
	case self.events <- e:
	default:
		self.Log.Debugf("%s event dropped %s", modName, e.String())
	}
}

// Scan starts background discovery unless one is running.
func (self *Supervisor) Scan() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.startScan()
}

func (self *Supervisor) Peers() []link.PeerDescriptor {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]link.PeerDescriptor(nil), self.peers...)
}

// SelectPeer starts connecting to peer by index in last discovery results.
// Only allowed from Idle.
func (self *Supervisor) SelectPeer(index int) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if index < 0 || index >= len(self.peers) {
		return errors.Annotatef(ErrPeerIndex, "index=%d peers=%d", index, len(self.peers))
	}
	if s := self.CurrentState(); s != StateIdle {
		return errors.Annotatef(ErrBusy, "state=%s", s.String())
	}
	peer := self.peers[index]
	self.target = &peer
	self.setState(StateConnecting)
	self.Log.Infof("%s select peer=%s", modName, peer.String())
	self.startConnect(peer)
	return nil
}

// RequestNow sends telemetry request immediately and restarts poll interval.
func (self *Supervisor) RequestNow() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.CurrentState() != StateConnected || self.session == nil {
		return errors.Annotatef(link.ErrNotBound, "state=%s", self.CurrentState().String())
	}
	self.nextPoll = self.now().Add(self.config.PollInterval)
	return self.session.RequestTelemetry()
}

// Disconnect returns to Idle from any state and forgets remembered peer.
func (self *Supervisor) Disconnect() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	var err error
	if self.session != nil {
		err = self.session.Close()
		self.session = nil
	}
	prev := self.CurrentState()
	peer := self.targetPeer()
	self.invalidateAttempt()
	self.target = nil
	self.setState(StateIdle)
	if prev != StateIdle {
		self.Log.Infof("%s disconnect peer=%s", modName, peer.Address)
		self.emit(Event{Kind: EventDisconnected, Peer: peer, Err: err, At: self.now()})
	}
	return err
}

// CancelReconnect gives up reconnection. No-op in other states.
func (self *Supervisor) CancelReconnect() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.CurrentState() != StateReconnecting {
		return false
	}
	peer := self.targetPeer()
	self.invalidateAttempt()
	self.target = nil
	self.setState(StateIdle)
	self.emit(Event{Kind: EventDisconnected, Peer: peer, At: self.now()})
	return true
}

// RetryNow moves reconnect deadline to now. No-op in other states.
func (self *Supervisor) RetryNow() bool {
	self.mu.Lock()
	if self.CurrentState() != StateReconnecting {
		self.mu.Unlock()
		return false
	}
	self.deadline = self.now()
	self.mu.Unlock()
	self.kick.Set()
	return true
}

func (self *Supervisor) LatestReading() (vesc.Reading, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.reading == nil {
		return vesc.Reading{}, false
	}
	return *self.reading, true
}

// StatusSummary depends only on wall time, not on tick count.
func (self *Supervisor) StatusSummary() Status {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.status(self.now())
}

// status is Fresh only while Connected, a kept reading from a lost or
// abandoned link is Stale.
func (self *Supervisor) status(now time.Time) Status {
	switch self.CurrentState() {
	case StateConnecting:
		return Status{Kind: StatusWaiting}
	case StateConnected:
		if self.reading != nil {
			if age := now.Sub(self.reading.CapturedAt); age <= self.config.StaleTimeout {
				return Status{Kind: StatusFresh, Age: age}
			}
		}
		if now.Sub(self.connectedAt) <= self.config.GracePeriod {
			return Status{Kind: StatusWaiting}
		}
	}
	return Status{Kind: StatusStale}
}

func (self *Supervisor) Snapshot() Snapshot {
	self.mu.Lock()
	defer self.mu.Unlock()
	now := self.now()
	s := Snapshot{
		At:       now,
		State:    self.CurrentState(),
		Status:   self.status(now),
		Peers:    append([]link.PeerDescriptor(nil), self.peers...),
		Scanning: self.scanning,
	}
	if self.target != nil {
		t := *self.target
		s.Target = &t
	}
	if self.reading != nil {
		r := *self.reading
		s.Reading = &r
	}
	if self.session != nil {
		s.Stat = self.session.Stat()
	}
	if self.lastErr != nil {
		s.Error = self.lastErr.Error()
	}
	return s
}
