// Package run is the daemon: keep a board connected, mirror it to tele and dashfeed.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/vesctel/cmd/vesctel/subcmd"
	"github.com/temoto/vesctel/helpers"
	"github.com/temoto/vesctel/internal/dashfeed"
	"github.com/temoto/vesctel/internal/state"
	"github.com/temoto/vesctel/internal/supervisor"
	"github.com/temoto/vesctel/internal/tele"
	"github.com/temoto/vesctel/log2"
)

const defaultPublishInterval = time.Second

var Mod = subcmd.Mod{Name: "run", Usage: "daemon: connect, poll, publish", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)
	g.Log.Debugf("config=%+v", g.Config)
	defer g.Tele.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-g.Alive.StopChan()
		cancel()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		g.Log.Infof("signal=%v stopping", s)
		g.Stop()
	}()

	s := g.Supervisor
	g.Alive.Add(1)
	go func() {
		defer g.Alive.Done()
		if err := s.Run(ctx); err != nil && errors.Cause(err) != context.Canceled {
			g.Error(err, "supervisor")
		}
	}()

	var hub *dashfeed.Hub
	if addr := g.Config.Dashfeed.Listen; addr != "" {
		hub = dashfeed.New(g, g.Log.Clone(log2.LInfo))
		g.Alive.Add(1)
		go func() {
			defer g.Alive.Done()
			if err := hub.Serve(ctx, addr); err != nil {
				g.Error(err)
				g.Stop()
			}
		}()
	}

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("vesctel running transport=%s", g.Config.Link.Transport)

	d := &daemonLoop{
		g:           g,
		s:           s,
		hub:         hub,
		auto:        newAutoConnect(g.Config.Link.AutoPick),
		autoEnabled: g.Config.Link.AutoConnect,
	}
	interval := helpers.IntMillisecondDefault(g.Config.Tele.PublishIntervalMs, defaultPublishInterval)
	d.loop(ctx, interval)

	g.Alive.Wait()
	return nil
}

type daemonLoop struct {
	g           *state.Global
	s           *supervisor.Supervisor
	hub         *dashfeed.Hub
	auto        *autoConnect
	autoEnabled bool
}

func (self *daemonLoop) loop(ctx context.Context, interval time.Duration) {
	tmr := time.NewTicker(interval)
	defer tmr.Stop()
	self.publish()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-self.s.Events():
			self.onEvent(e)
		case <-tmr.C:
			self.publish()
		}
	}
}

func (self *daemonLoop) onEvent(e supervisor.Event) {
	switch e.Kind {
	case supervisor.EventConnectFailed, supervisor.EventReconnectFailed:
		self.g.Log.Infof("event %s", e.String())
	default:
		self.g.Log.Debugf("event %s", e.String())
	}
	self.g.Tele.State(tele.StateFrom(e.State))
	if self.hub != nil {
		self.hub.PublishEvent(e)
	}
	self.auto.onEvent(e)
	self.autoStep()
}

func (self *daemonLoop) publish() {
	snap := self.s.Snapshot()
	self.g.Tele.State(tele.StateFrom(snap.State))
	self.g.Tele.Telemetry(tele.FromSnapshot(snap))
	if self.hub != nil {
		self.hub.PublishSnapshot(snap)
	}
	self.autoStep()
}

func (self *daemonLoop) autoStep() {
	if !self.autoEnabled {
		return
	}
	act, index := self.auto.step(time.Now(), self.s.Snapshot())
	switch act {
	case actionScan:
		self.s.Scan()
	case actionSelect:
		if err := self.s.SelectPeer(index); err != nil {
			self.g.Log.Debugf("auto select index=%d err=%v", index, err)
		}
	}
}
