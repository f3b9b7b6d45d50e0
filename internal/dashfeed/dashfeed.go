// Package dashfeed pushes supervisor snapshots to display clients over websocket
// and accepts operator commands back.
package dashfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/temoto/vesctel/internal/supervisor"
	"github.com/temoto/vesctel/log2"
	tele_api "github.com/temoto/vesctel/tele"
)

const (
	DefaultWriteTimeout = 100 * time.Millisecond
	shutdownTimeout     = 2 * time.Second
)

// Controller is implemented by state.Global.
type Controller interface {
	Snapshot() supervisor.Snapshot
	Command(ctx context.Context, c *tele_api.Command) error
}

type Hub struct {
	Log          *log2.Log
	WriteTimeout time.Duration

	ctl      Controller
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func New(ctl Controller, log *log2.Log) *Hub {
	return &Hub{
		Log:          log,
		WriteTimeout: DefaultWriteTimeout,
		ctl:          ctl,
		upgrader: websocket.Upgrader{
			// display runs on the same box or LAN
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (self *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", self.handleWebSocket)
	mux.HandleFunc("/status", self.handleStatus)
	return mux
}

// Serve blocks until ctx is done or listener fails.
func (self *Hub) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: self.Handler()}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
		self.closeAll()
	}()
	self.Log.Infof("dashfeed listen=%s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Annotatef(err, "dashfeed listen=%s", addr)
	}
	return nil
}

func (self *Hub) Clients() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.clients)
}

func (self *Hub) PublishSnapshot(s supervisor.Snapshot) {
	self.Broadcast(Message{Type: TypeSnapshot, Payload: NewView(s)})
}

func (self *Hub) PublishEvent(e supervisor.Event) {
	self.Broadcast(Message{Type: TypeEvent, Payload: NewEventView(e)})
}

// Broadcast writes to all clients in parallel, failed clients are dropped.
func (self *Hub) Broadcast(m Message) {
	self.mu.Lock()
	clients := make([]*client, 0, len(self.clients))
	for c := range self.clients {
		clients = append(clients, c)
	}
	self.mu.Unlock()

	var wg sync.WaitGroup
	var failedMu sync.Mutex
	var failed []*client
	for _, c := range clients {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			if err := self.write(c, m); err != nil {
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	for _, c := range failed {
		self.remove(c)
	}
}

func (self *Hub) write(c *client, m Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(self.WriteTimeout))
	return c.conn.WriteJSON(m)
}

func (self *Hub) add(c *client) {
	self.mu.Lock()
	self.clients[c] = struct{}{}
	self.mu.Unlock()
}

func (self *Hub) remove(c *client) {
	self.mu.Lock()
	_, ok := self.clients[c]
	delete(self.clients, c)
	self.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

func (self *Hub) closeAll() {
	self.mu.Lock()
	clients := self.clients
	self.clients = make(map[*client]struct{})
	self.mu.Unlock()
	for c := range clients {
		_ = c.conn.Close()
	}
}

func (self *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		self.Log.Debugf("dashfeed upgrade remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	c := &client{conn: conn}
	self.add(c)
	defer self.remove(c)
	if err := self.write(c, Message{Type: TypeSnapshot, Payload: NewView(self.ctl.Snapshot())}); err != nil {
		return
	}

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				self.Log.Debugf("dashfeed read remote=%s err=%v", r.RemoteAddr, err)
			}
			return
		}
		res := Result{Id: req.Id, Ok: true}
		if err := self.exec(r.Context(), req); err != nil {
			res.Ok, res.Error = false, err.Error()
		}
		if err := self.write(c, Message{Type: TypeResult, Payload: res}); err != nil {
			return
		}
	}
}

func (self *Hub) exec(ctx context.Context, req Request) error {
	kind, err := ParseCommand(req.Cmd)
	if err != nil {
		return err
	}
	self.Log.Infof("dashfeed command id=%d cmd=%s index=%d", req.Id, kind.String(), req.Index)
	return self.ctl.Command(ctx, &tele_api.Command{Id: req.Id, Kind: kind, Index: req.Index})
}

// ParseCommand accepts command names case insensitive: select, now, disconnect, cancel, retry, scan, report.
func ParseCommand(s string) (tele_api.Command_Kind, error) {
	for name, v := range tele_api.Command_Kind_value {
		if v != int32(tele_api.Command_Invalid) && strings.EqualFold(name, s) {
			return tele_api.Command_Kind(v), nil
		}
	}
	return tele_api.Command_Invalid, errors.NotValidf("command=%q", s)
}

func (self *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(Result{Error: "method not allowed"})
		return
	}
	if err := json.NewEncoder(w).Encode(NewView(self.ctl.Snapshot())); err != nil {
		self.Log.Debugf("dashfeed status write err=%v", err)
	}
}
