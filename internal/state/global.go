package state

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/vesctel/internal/supervisor"
	"github.com/temoto/vesctel/internal/tele"
	"github.com/temoto/vesctel/log2"
	tele_api "github.com/temoto/vesctel/tele"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Hardware     hardware // hardware.go
	Log          *log2.Log
	Supervisor   *supervisor.Supervisor
	Tele         tele_api.Teler

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// TeleCommand is tele.CommandHandler resolving Global from context.
func TeleCommand(ctx context.Context, c *tele_api.Command) error {
	return GetGlobal(ctx).Command(ctx, c)
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg

	g.Log.Infof("build version=%s", g.BuildVersion)
	if g.Config.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	// Tele.Init gets g.Log clone before SetErrorFunc, so Tele.Log.Error doesn't recurse on itself
	if err := g.Tele.Init(ctx, g.Log.Clone(log2.LInfo), g.Config.Tele); err != nil {
		g.Tele = tele_api.Noop{}
		return errors.Annotate(err, "tele init")
	}
	g.Log.SetErrorFunc(g.Tele.Error)

	if g.BuildVersion == "unknown" {
		g.Error(fmt.Errorf("build version is not set, please use script/build"))
	} else if g.Config.Tele.Enabled && strings.HasSuffix(g.BuildVersion, "-dirty") {
		g.Error(fmt.Errorf("running development build with uncommited changes, bad idea for production"))
	}

	transport, discovery, err := g.Link()
	if err != nil {
		return errors.Annotate(err, "link")
	}
	g.Supervisor = supervisor.New(g.Config.SupervisorConfig(), transport, discovery, g.Log.Clone(log2.LInfo))
	if g.Config.Link.LogDebug {
		g.Supervisor.Log.SetLevel(log2.LDebug)
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

// Command executes operator request from tele or dashfeed.
func (g *Global) Command(ctx context.Context, c *tele_api.Command) error {
	s := g.Supervisor
	if s == nil {
		return errors.Errorf("code error Command before Init")
	}
	switch c.Kind {
	case tele_api.Command_Scan:
		if !s.Scan() {
			return errors.Annotate(supervisor.ErrBusy, "scan")
		}
		return nil

	case tele_api.Command_Select:
		return s.SelectPeer(int(c.Index))

	case tele_api.Command_Now:
		return s.RequestNow()

	case tele_api.Command_Disconnect:
		return s.Disconnect()

	case tele_api.Command_Cancel:
		if !s.CancelReconnect() {
			return errors.NotValidf("cancel in state=%s", s.CurrentState().String())
		}
		return nil

	case tele_api.Command_Retry:
		if !s.RetryNow() {
			return errors.NotValidf("retry in state=%s", s.CurrentState().String())
		}
		return nil

	case tele_api.Command_Report:
		g.Tele.Telemetry(tele.FromSnapshot(s.Snapshot()))
		return nil

	default:
		return errors.NotSupportedf("command kind=%s", c.Kind.String())
	}
}

func (g *Global) Snapshot() supervisor.Snapshot { return g.Supervisor.Snapshot() }

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		// Log reports to tele via SetErrorFunc
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(err)
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	if g.Supervisor != nil {
		g.Supervisor.Stop()
	}
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}
