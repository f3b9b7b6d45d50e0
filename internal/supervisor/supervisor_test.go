package supervisor

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/vesctel/hardware/vesc"
	"github.com/temoto/vesctel/helpers"
	"github.com/temoto/vesctel/internal/link"
	"github.com/temoto/vesctel/log2"
)

// GET_VALUES response: fet=21.5 motor=-5.2 voltage=40.0
const testValuesHex = "02350400d7ffcc000000000000000000000000000000000000000000000190000000000000000000000000000000000000000000000000b67603"

var testPeer = link.PeerDescriptor{Name: "VESC BLE UART", Address: "d4:36:39:aa:bb:cc", RSSI: -60}

type tenv struct {
	t   testing.TB
	tr  *link.MockTransport
	d   *MockDiscovery
	s   *Supervisor
	now time.Time
	t0  time.Time
}

func testEnv(t testing.TB, c Config) *tenv {
	env := &tenv{
		t:   t,
		tr:  &link.MockTransport{},
		d:   NewMockDiscovery(testPeer),
		now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	env.s = New(c, env.tr, env.d, log2.NewTest(t, log2.LDebug))
	env.s.Clock = func() time.Time { return env.now }
	t.Cleanup(env.s.Stop)
	return env
}

func (env *tenv) advance(d time.Duration) {
	env.now = env.now.Add(d)
	env.s.Tick(env.now)
}

// waitEvent ticks without moving clock until event of kind arrives.
func (env *tenv) waitEvent(kind EventKind) Event {
	env.t.Helper()
	var found Event
	require.Eventually(env.t, func() bool {
		env.s.Tick(env.now)
		for {
			select {
			case e := <-env.s.Events():
				if e.Kind == kind {
					found = e
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, time.Millisecond, "waiting event %s", kind.String())
	return found
}

func (env *tenv) scan() {
	env.t.Helper()
	require.True(env.t, env.s.Scan())
	env.waitEvent(EventScanned)
}

// connect selects first peer and returns its channel.
func (env *tenv) connect() *link.MockChannel {
	env.t.Helper()
	env.scan()
	require.NoError(env.t, env.s.SelectPeer(0))
	e := env.waitEvent(EventConnected)
	require.Equal(env.t, StateConnected, env.s.CurrentState())
	require.Equal(env.t, testPeer, e.Peer)
	env.t0 = env.now
	return env.tr.Last()
}

func countCommand(ch *link.MockChannel, cmd vesc.Command_t) int {
	n := 0
	frame := vesc.Encode(cmd)
	for _, b := range ch.Written() {
		if string(b) == string(frame) {
			n++
		}
	}
	return n
}

func TestConnectAndPoll(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	require.Equal(t, StateIdle, env.s.CurrentState())
	ch := env.connect()

	assert.Equal(t, []link.MockAttempt{{Address: testPeer.Address, Kind: link.AddressRandom}}, env.tr.Attempts())
	written := ch.Written()
	require.Len(t, written, 2)
	assert.Equal(t, vesc.Encode(vesc.COMMAND_ALIVE), written[0])
	assert.Equal(t, helpers.MustHex("020104408403"), written[1])

	env.s.Tick(env.now)
	assert.Len(t, ch.Written(), 2)
	env.advance(300 * time.Millisecond)
	assert.Equal(t, 2, countCommand(ch, vesc.COMMAND_GET_VALUES))
	env.advance(300 * time.Millisecond)
	env.advance(300 * time.Millisecond)
	assert.Equal(t, 4, countCommand(ch, vesc.COMMAND_GET_VALUES))
	env.advance(100 * time.Millisecond)
	assert.Equal(t, 2, countCommand(ch, vesc.COMMAND_ALIVE))

	_, ok := env.s.LatestReading()
	require.False(t, ok)
	ch.Push(helpers.MustHex(testValuesHex))
	env.advance(50 * time.Millisecond)
	r, ok := env.s.LatestReading()
	require.True(t, ok)
	assert.Equal(t, float32(21.5), r.FetTemperature)
	assert.Equal(t, float32(40.0), r.InputVoltage)
	assert.Equal(t, env.now, r.CapturedAt)

	env.now = env.now.Add(1200 * time.Millisecond)
	assert.Equal(t, Status{Kind: StatusFresh, Age: 1200 * time.Millisecond}, env.s.StatusSummary())

	snap := env.s.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	require.NotNil(t, snap.Target)
	assert.Equal(t, testPeer.Address, snap.Target.Address)
	require.NotNil(t, snap.Reading)
	assert.Equal(t, uint32(1), snap.Stat.Readings)
}

func TestAddressKindFallback(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	env.tr.SetReject(func(address string, kind link.AddressKind) error {
		if kind == link.AddressRandom {
			return stderrors.New("rejected")
		}
		return nil
	})
	env.scan()
	require.NoError(t, env.s.SelectPeer(0))
	e := env.waitEvent(EventConnected)
	assert.Equal(t, link.AddressPublic, e.AddressKind)
	assert.Equal(t, []link.MockAttempt{
		{Address: testPeer.Address, Kind: link.AddressRandom},
		{Address: testPeer.Address, Kind: link.AddressPublic},
	}, env.tr.Attempts())
}

func TestConnectFailed(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	env.tr.SetReject(func(string, link.AddressKind) error { return stderrors.New("rejected") })
	env.scan()
	require.NoError(t, env.s.SelectPeer(0))
	assert.Equal(t, StateConnecting, env.s.CurrentState())
	assert.Equal(t, StatusWaiting, env.s.StatusSummary().Kind)
	e := env.waitEvent(EventConnectFailed)
	assert.Equal(t, StateIdle, env.s.CurrentState())
	assert.Equal(t, StateIdle, e.State)
	var te *link.TransportError
	require.True(t, stderrors.As(e.Err, &te))
	assert.Len(t, env.tr.Attempts(), 2, "one fallback, no retry")

	// no automatic retry from Idle
	env.advance(time.Minute)
	assert.Len(t, env.tr.Attempts(), 2)
	assert.Nil(t, env.s.Snapshot().Target)
}

func TestStaleReconnect(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	first := env.connect()

	for i := 1; i <= 10; i++ {
		env.advance(time.Second)
		require.Equal(t, StateConnected, env.s.CurrentState(), "t0+%ds", i)
		require.Equal(t, StatusWaiting, env.s.StatusSummary().Kind, "t0+%ds", i)
	}
	env.advance(500 * time.Millisecond)
	require.Equal(t, StateReconnecting, env.s.CurrentState())
	e := env.waitEvent(EventStale)
	assert.Equal(t, testPeer, e.Peer)
	assert.Equal(t, 1, first.Disconnected())
	assert.Equal(t, StatusStale, env.s.StatusSummary().Kind)
	assert.Equal(t, testPeer.Address, env.s.Snapshot().Target.Address)

	// rescan on entering Reconnecting
	env.waitEvent(EventScanned)
	assert.Equal(t, 2, env.d.Calls())

	env.advance(4 * time.Second)
	assert.Len(t, env.tr.Attempts(), 1)
	env.advance(time.Second)
	env.waitEvent(EventConnected)
	assert.Len(t, env.tr.Attempts(), 2)
	second := env.tr.Last()
	assert.NotSame(t, first, second)

	// grace restarts after reconnect
	env.advance(9 * time.Second)
	assert.Equal(t, StateConnected, env.s.CurrentState())
	assert.Equal(t, StatusWaiting, env.s.StatusSummary().Kind)
}

func TestStatusWallTime(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	env.connect()

	env.now = env.t0.Add(9 * time.Second)
	assert.Equal(t, StatusWaiting, env.s.StatusSummary().Kind)
	env.now = env.t0
	for env.now.Before(env.t0.Add(10 * time.Second)) {
		env.advance(100 * time.Millisecond)
		require.Equal(t, StatusWaiting, env.s.StatusSummary().Kind)
	}
	env.now = env.t0.Add(10*time.Second + time.Millisecond)
	assert.Equal(t, StatusStale, env.s.StatusSummary().Kind)
}

func TestFreshAfterGrace(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	ch := env.connect()
	for i := 0; i < 30; i++ {
		ch.Push(helpers.MustHex(testValuesHex))
		env.advance(time.Second)
	}
	assert.Equal(t, StateConnected, env.s.CurrentState())
	assert.Equal(t, StatusFresh, env.s.StatusSummary().Kind)
	assert.Equal(t, 0, ch.Disconnected())
}

func TestStatusNotConnected(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	ch := env.connect()
	ch.Push(helpers.MustHex(testValuesHex))
	env.advance(100 * time.Millisecond)
	require.Equal(t, StatusFresh, env.s.StatusSummary().Kind)

	ch.Lose()
	env.advance(100 * time.Millisecond)
	require.Equal(t, StateReconnecting, env.s.CurrentState())
	assert.Equal(t, StatusStale, env.s.StatusSummary().Kind)

	require.True(t, env.s.CancelReconnect())
	assert.Equal(t, StatusStale, env.s.StatusSummary().Kind)
	// last value stays available for display
	r, ok := env.s.LatestReading()
	require.True(t, ok)
	assert.Equal(t, float32(40.0), r.InputVoltage)
}

func TestLinkLost(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	ch := env.connect()
	env.advance(time.Second)
	ch.Lose()
	env.advance(100 * time.Millisecond)
	assert.Equal(t, StateReconnecting, env.s.CurrentState(), "within grace")
	env.waitEvent(EventLost)
	assert.Equal(t, 1, ch.Disconnected())
}

func TestWriteFailure(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	ch := env.connect()
	ch.SetWriteError(stderrors.New("gatt write"))
	env.advance(300 * time.Millisecond)
	assert.Equal(t, StateReconnecting, env.s.CurrentState())
	e := env.waitEvent(EventLost)
	var te *link.TransportError
	require.True(t, stderrors.As(e.Err, &te))
	assert.Contains(t, te.Op, "GET_VALUES")
}

func TestAbandon(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	ch := env.connect()
	env.d.SetPeers()
	ch.Lose()
	env.advance(100 * time.Millisecond)
	require.Equal(t, StateReconnecting, env.s.CurrentState())

	e := env.waitEvent(EventAbandoned)
	assert.Equal(t, testPeer, e.Peer)
	assert.Equal(t, StateIdle, env.s.CurrentState())
	assert.Nil(t, env.s.Snapshot().Target)
	// rediscovery after abandon
	require.Eventually(t, func() bool {
		env.s.Tick(env.now)
		return env.d.Calls() >= 3
	}, 2*time.Second, time.Millisecond)
	env.advance(time.Minute)
	assert.Len(t, env.tr.Attempts(), 1)
}

func TestRetryCancel(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	assert.False(t, env.s.RetryNow())
	assert.False(t, env.s.CancelReconnect())

	ch := env.connect()
	env.tr.SetReject(func(string, link.AddressKind) error { return stderrors.New("out of range") })
	ch.Lose()
	env.advance(100 * time.Millisecond)
	require.Equal(t, StateReconnecting, env.s.CurrentState())
	env.waitEvent(EventScanned)

	require.True(t, env.s.RetryNow())
	env.waitEvent(EventReconnectFailed)
	assert.Equal(t, StateReconnecting, env.s.CurrentState())
	assert.Len(t, env.tr.Attempts(), 3)

	// deadline reset after failure
	env.advance(4 * time.Second)
	assert.Len(t, env.tr.Attempts(), 3)
	env.advance(time.Second)
	env.waitEvent(EventReconnectFailed)
	assert.Len(t, env.tr.Attempts(), 5)

	require.True(t, env.s.CancelReconnect())
	assert.Equal(t, StateIdle, env.s.CurrentState())
	env.waitEvent(EventDisconnected)
	assert.Nil(t, env.s.Snapshot().Target)
	env.advance(time.Minute)
	assert.Len(t, env.tr.Attempts(), 5)
}

func TestDisconnect(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	ch := env.connect()
	require.NoError(t, env.s.Disconnect())
	assert.Equal(t, StateIdle, env.s.CurrentState())
	assert.Equal(t, 1, ch.Disconnected())
	env.waitEvent(EventDisconnected)

	// late notification after release is ignored
	n := len(ch.Written())
	ch.Push(helpers.MustHex(testValuesHex))
	env.advance(time.Minute)
	_, ok := env.s.LatestReading()
	assert.False(t, ok)
	assert.Len(t, ch.Written(), n)
	assert.Len(t, env.tr.Attempts(), 1)
}

type gateTransport struct {
	gate chan struct{}
	ch   *link.MockChannel
}

// Connect ignores ctx, like platform stacks that cannot abort connect.
func (self *gateTransport) Connect(ctx context.Context, address string, kind link.AddressKind) (link.Channel, error) {
	<-self.gate
	return self.ch, nil
}

func TestCancelledAttemptReleased(t *testing.T) {
	t.Parallel()
	tr := &gateTransport{gate: make(chan struct{}), ch: link.NewMockChannel()}
	s := New(Config{}, tr, NewMockDiscovery(testPeer), log2.NewTest(t, log2.LDebug))
	defer s.Stop()
	require.True(t, s.Scan())
	require.Eventually(t, func() bool {
		s.Tick(time.Now())
		return len(s.Peers()) == 1
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, s.SelectPeer(0))
	require.Equal(t, StateConnecting, s.CurrentState())
	require.NoError(t, s.Disconnect())
	close(tr.gate)
	require.Eventually(t, func() bool {
		s.Tick(time.Now())
		return tr.ch.Disconnected() == 1
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, StateIdle, s.CurrentState())
	assert.Empty(t, tr.ch.Written())
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{})
	err := env.s.SelectPeer(0)
	assert.Equal(t, ErrPeerIndex, errors.Cause(err))
	err = env.s.RequestNow()
	assert.Equal(t, link.ErrNotBound, errors.Cause(err))

	ch := env.connect()
	err = env.s.SelectPeer(0)
	assert.Equal(t, ErrBusy, errors.Cause(err))
	err = env.s.SelectPeer(-1)
	assert.Equal(t, ErrPeerIndex, errors.Cause(err))

	require.NoError(t, env.s.RequestNow())
	assert.Equal(t, 2, countCommand(ch, vesc.COMMAND_GET_VALUES))
	env.advance(200 * time.Millisecond)
	assert.Equal(t, 2, countCommand(ch, vesc.COMMAND_GET_VALUES), "poll interval restarted")
	env.advance(100 * time.Millisecond)
	assert.Equal(t, 3, countCommand(ch, vesc.COMMAND_GET_VALUES))
}

func TestAliveDisabled(t *testing.T) {
	t.Parallel()
	env := testEnv(t, Config{AliveInterval: -1})
	ch := env.connect()
	for i := 0; i < 10; i++ {
		env.advance(time.Second)
	}
	assert.Equal(t, 1, countCommand(ch, vesc.COMMAND_ALIVE))
}

func TestRun(t *testing.T) {
	t.Parallel()
	tr := &link.MockTransport{}
	s := New(Config{TickInterval: 5 * time.Millisecond, PollInterval: 10 * time.Millisecond},
		tr, NewMockDiscovery(testPeer), log2.NewTest(t, log2.LDebug))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.True(t, s.Scan())
	require.Eventually(t, func() bool { return len(s.Peers()) == 1 }, 2*time.Second, time.Millisecond)
	require.NoError(t, s.SelectPeer(0))
	require.Eventually(t, func() bool {
		ch := tr.Last()
		return ch != nil && countCommand(ch, vesc.COMMAND_GET_VALUES) >= 3
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, StateConnected, s.CurrentState())

	cancel()
	assert.Equal(t, context.Canceled, <-done)
	s.Wait()
	assert.Equal(t, StateIdle, s.CurrentState())
	assert.Equal(t, 1, tr.Last().Disconnected())
	assert.Equal(t, ErrStopped, s.Run(context.Background()))
}
