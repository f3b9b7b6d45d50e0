package run

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/vesctel/internal/link"
	"github.com/temoto/vesctel/internal/supervisor"
)

func TestPick(t *testing.T) {
	t.Parallel()
	peers := []link.PeerDescriptor{
		{Name: "VESC rear", Address: "D4:36:39:00:00:01", RSSI: -80},
		{Name: "VESC front", Address: "D4:36:39:00:00:02", RSSI: -55},
		{Name: "VESC spare", Address: "D4:36:39:00:00:03", RSSI: -55},
	}
	cases := []struct {
		prefer string
		index  int
		ok     bool
	}{
		{"", 1, true},
		{"rear", 0, true},
		{"d4:36:39:00:00:03", 2, true},
		{"trolley", 0, false},
	}
	for _, c := range cases {
		i, ok := pick(peers, c.prefer)
		assert.Equal(t, c.ok, ok, "prefer=%s", c.prefer)
		assert.Equal(t, c.index, i, "prefer=%s", c.prefer)
	}
	_, ok := pick(nil, "")
	assert.False(t, ok)
}

func TestAutoConnect(t *testing.T) {
	t.Parallel()
	a := newAutoConnect("")
	peer := link.PeerDescriptor{Name: "VESC", Address: "D4:36:39:00:00:01"}
	idle := supervisor.Snapshot{State: supervisor.StateIdle}
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	act, _ := a.step(t0, idle)
	assert.Equal(t, actionScan, act)
	act, _ = a.step(t0, supervisor.Snapshot{State: supervisor.StateIdle, Scanning: true})
	assert.Equal(t, actionNone, act)

	// scan found nothing: next scan after backoff
	a.onEvent(supervisor.Event{Kind: supervisor.EventScanned})
	act, _ = a.step(t0, idle)
	assert.Equal(t, actionNone, act)
	act, _ = a.step(t0.Add(500*time.Millisecond), idle)
	assert.Equal(t, actionNone, act)
	act, _ = a.step(t0.Add(time.Second), idle)
	assert.Equal(t, actionScan, act)

	a.onEvent(supervisor.Event{Kind: supervisor.EventScanned})
	act, i := a.step(t0.Add(2*time.Second), supervisor.Snapshot{State: supervisor.StateIdle, Peers: []link.PeerDescriptor{peer}})
	assert.Equal(t, actionSelect, act)
	assert.Equal(t, 0, i)

	act, _ = a.step(t0.Add(3*time.Second), supervisor.Snapshot{State: supervisor.StateConnected})
	assert.Equal(t, actionNone, act)
	a.onEvent(supervisor.Event{Kind: supervisor.EventConnected})
	assert.Equal(t, time.Duration(0), a.backoff.Delay())
	a.onEvent(supervisor.Event{Kind: supervisor.EventLost})
	act, _ = a.step(t0.Add(4*time.Second), supervisor.Snapshot{State: supervisor.StateReconnecting})
	assert.Equal(t, actionNone, act)
}
