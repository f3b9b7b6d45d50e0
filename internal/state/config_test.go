package state_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/vesctel/hardware/vesc"
	"github.com/temoto/vesctel/internal/link"
	"github.com/temoto/vesctel/internal/state"
	state_new "github.com/temoto/vesctel/internal/state/new"
	"github.com/temoto/vesctel/internal/supervisor"
	"github.com/temoto/vesctel/log2"
	tele_api "github.com/temoto/vesctel/tele"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, context.Context)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, ctx context.Context) {
			g := state.GetGlobal(ctx)
			sc := g.Config.SupervisorConfig()
			assert.Equal(t, supervisor.DefaultPollInterval, sc.PollInterval)
			assert.Equal(t, supervisor.DefaultStaleTimeout, sc.StaleTimeout)
			assert.Equal(t, supervisor.DefaultGracePeriod, sc.GracePeriod)
			assert.Equal(t, supervisor.StateIdle, g.Supervisor.CurrentState())
		}, ""},

		{"link", `
link {
	transport = "serial"
	strict_crc = true
	buffer_max = 512
	layout { temp_fet = 5 voltage = 31 }
}
serial { ports = ["/dev/ttyUSB0"] baud = 230400 }`,
			func(t testing.TB, ctx context.Context) {
				g := state.GetGlobal(ctx)
				lc := g.Config.SupervisorConfig().Link
				assert.True(t, lc.StrictCRC)
				assert.Equal(t, 512, lc.BufferMax)
				l := lc.Layout.WithDefaults()
				assert.Equal(t, 5, l.TempFet)
				assert.Equal(t, 31, l.Voltage)
				assert.Equal(t, vesc.DefaultLayout.TempMotor, l.TempMotor)
				assert.Equal(t, []string{"/dev/ttyUSB0"}, g.Config.SerialConfig().Ports)
				assert.Equal(t, 230400, g.Config.SerialConfig().Baud)
			}, ""},

		{"supervisor", `supervisor { poll_interval_ms = 500 stale_timeout_sec = 3 alive_interval_ms = -1 }`,
			func(t testing.TB, ctx context.Context) {
				sc := state.GetGlobal(ctx).Supervisor.Config()
				assert.Equal(t, 500*time.Millisecond, sc.PollInterval)
				assert.Equal(t, 3*time.Second, sc.StaleTimeout)
				assert.Equal(t, -time.Millisecond, sc.AliveInterval)
			}, ""},

		{"include-normalize", `
link { name_filter = "x" }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "name-vesc" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, ctx context.Context) {
				g := state.GetGlobal(ctx)
				assert.Equal(t, "VESC", g.Config.BleConfig().NameFilter)
			}, ""},

		{"include-overwrites", `
link { name_filter = "other" }
include "name-vesc" {}`,
			func(t testing.TB, ctx context.Context) {
				g := state.GetGlobal(ctx)
				assert.Equal(t, "VESC", g.Config.Link.NameFilter)
			}, ""},

		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-transport", `link { transport = "usb" }`, nil, `link.transport="usb"`},
		{"error-serial-ports", `link { transport = "serial" }`, nil, "requires serial.ports"},
		{"error-buffer-small", `link { buffer_max = 16 }`, nil, "link.buffer_max=16 must be 0 (default) or at least 260"},
		{"error-buffer-negative", `link { buffer_max = -1 }`, nil, "link.buffer_max=-1"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			ctx, g := state_new.NewContext(log, tele_api.Noop{})
			g.Hardware.Link.Transport = &link.MockTransport{}
			g.Hardware.Link.Discovery = supervisor.NewMockDiscovery()

			fs := state.NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"empty":        "",
				"name-vesc":    `link { name_filter = "VESC" }`,
				"error-syntax": "hello",
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := state.ReadConfig(log, fs, "test-inline")
			if err == nil {
				err = g.Init(ctx, cfg)
			}
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, ctx)
				}
			} else {
				require.Error(t, err)
				if !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		t.Run(c.name, mkCheck(c))
	}
}

func TestUnknownTransport(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	ctx, g := state_new.NewContext(log, tele_api.Noop{})
	cfg := &state.Config{}
	cfg.Link.Transport = "carrier-pigeon"
	err := g.Init(ctx, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown link.transport="carrier-pigeon"`)
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../../vesctel.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	cfg := state.MustReadConfig(log, state.NewOsFullReader(), "../../vesctel.hcl")
	assert.Equal(t, state.TransportBle, cfg.Link.Transport)
	assert.Equal(t, "127.0.0.1:8088", cfg.Dashfeed.Listen)
	assert.False(t, cfg.Tele.Enabled)
}

type recordTele struct {
	tele_api.Noop
	mu        sync.Mutex
	telemetry []*tele_api.Telemetry
	errors    []error
}

func (self *recordTele) Telemetry(tm *tele_api.Telemetry) {
	self.mu.Lock()
	self.telemetry = append(self.telemetry, tm)
	self.mu.Unlock()
}

func (self *recordTele) Error(e error) {
	self.mu.Lock()
	self.errors = append(self.errors, e)
	self.mu.Unlock()
}

func TestCommand(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	rec := &recordTele{}
	ctx, g := state_new.NewContext(log, rec)
	tr := &link.MockTransport{}
	disc := supervisor.NewMockDiscovery(link.PeerDescriptor{Name: "VESC BLE UART", Address: "D4:36:39:00:00:01", RSSI: -60})
	g.Hardware.Link.Transport, g.Hardware.Link.Discovery = tr, disc
	g.MustInit(ctx, state.MustReadConfig(log, state.NewMockFullReader(map[string]string{"test-inline": ""}), "test-inline"))
	defer g.Stop()
	s := g.Supervisor
	tick := func() { s.Tick(time.Now()) }
	cmd := func(kind tele_api.Command_Kind, index int32) error {
		return state.TeleCommand(ctx, &tele_api.Command{Kind: kind, Index: index})
	}

	err := cmd(tele_api.Command_Now, 0)
	assert.Equal(t, link.ErrNotBound, errors.Cause(err))
	err = cmd(tele_api.Command_Select, 0)
	assert.Equal(t, supervisor.ErrPeerIndex, errors.Cause(err))

	require.NoError(t, cmd(tele_api.Command_Scan, 0))
	require.Eventually(t, func() bool { tick(); return len(s.Peers()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, cmd(tele_api.Command_Select, 0))
	require.Eventually(t, func() bool { tick(); return s.CurrentState() == supervisor.StateConnected }, time.Second, time.Millisecond)
	err = cmd(tele_api.Command_Select, 0)
	assert.Equal(t, supervisor.ErrBusy, errors.Cause(err))

	require.NoError(t, cmd(tele_api.Command_Now, 0))
	written := tr.Last().Written()
	require.NotEmpty(t, written)
	assert.Equal(t, vesc.Encode(vesc.COMMAND_GET_VALUES), written[len(written)-1])

	err = cmd(tele_api.Command_Cancel, 0)
	assert.True(t, errors.IsNotValid(err), "err=%v", err)
	err = cmd(tele_api.Command_Retry, 0)
	assert.True(t, errors.IsNotValid(err), "err=%v", err)

	require.NoError(t, cmd(tele_api.Command_Report, 0))
	rec.mu.Lock()
	require.Len(t, rec.telemetry, 1)
	assert.Equal(t, tele_api.State_Connected, rec.telemetry[0].State)
	assert.Equal(t, "D4:36:39:00:00:01", rec.telemetry[0].Peer)
	rec.mu.Unlock()

	require.NoError(t, cmd(tele_api.Command_Disconnect, 0))
	assert.Equal(t, supervisor.StateIdle, s.CurrentState())

	err = cmd(tele_api.Command_Invalid, 0)
	assert.True(t, errors.IsNotSupported(err), "err=%v", err)
}
