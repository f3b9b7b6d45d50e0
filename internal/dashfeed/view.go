package dashfeed

import (
	"github.com/temoto/vesctel/internal/supervisor"
	"github.com/temoto/vesctel/internal/tele"
	tele_api "github.com/temoto/vesctel/tele"
)

const (
	TypeSnapshot = "snapshot"
	TypeEvent    = "event"
	TypeResult   = "result"
)

// Message is every server to client websocket frame.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Request is client to server websocket frame.
type Request struct {
	Id    uint32 `json:"id"`
	Cmd   string `json:"cmd"`
	Index int32  `json:"index"`
}

type Result struct {
	Id    uint32 `json:"id"`
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type Peer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	RSSI    int32  `json:"rssi"`
}

// View is snapshot shaped for display. Telemetry fields are inlined.
type View struct {
	*tele_api.Telemetry
	StateName string `json:"state_name"`
	Status    string `json:"status"`
	AgeMs     int64  `json:"age_ms,omitempty"`
	Peers     []Peer `json:"peers"`
	Scanning  bool   `json:"scanning"`
}

type EventView struct {
	Kind    string `json:"kind"`
	State   string `json:"state"`
	Address string `json:"address,omitempty"`
	Error   string `json:"error,omitempty"`
	At      int64  `json:"at"`
}

func NewView(s supervisor.Snapshot) View {
	v := View{
		Telemetry: tele.FromSnapshot(s),
		StateName: s.State.String(),
		Status:    s.Status.String(),
		Peers:     make([]Peer, len(s.Peers)),
		Scanning:  s.Scanning,
	}
	if s.Status.Kind == supervisor.StatusFresh {
		v.AgeMs = s.Status.Age.Milliseconds()
	}
	for i, p := range s.Peers {
		v.Peers[i] = Peer{Name: p.Name, Address: p.Address, RSSI: p.RSSI}
	}
	return v
}

func NewEventView(e supervisor.Event) EventView {
	ev := EventView{
		Kind:    e.Kind.String(),
		State:   e.State.String(),
		Address: e.Peer.Address,
		At:      e.At.UnixNano(),
	}
	if e.Err != nil {
		ev.Error = e.Err.Error()
	}
	return ev
}
