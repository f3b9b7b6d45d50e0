// Sorry, workaround to import cycles.
package state_new

import (
	"context"
	"os"
	"testing"

	"github.com/temoto/alive/v2"
	"github.com/temoto/vesctel/internal/link"
	"github.com/temoto/vesctel/internal/state"
	"github.com/temoto/vesctel/internal/supervisor"
	"github.com/temoto/vesctel/log2"
	tele_api "github.com/temoto/vesctel/tele"
)

func NewContext(log *log2.Log, teler tele_api.Teler) (context.Context, *state.Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &state.Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  teler,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, state.ContextKey, g)

	return ctx, g
}

type TestEnv struct {
	Transport *link.MockTransport
	Discovery *supervisor.MockDiscovery
}

// NewTestContext binds mock transport, so Init never touches radio or tty.
func NewTestContext(t testing.TB, buildVersion string, confString string) (context.Context, *state.Global, TestEnv) {
	fs := state.NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("vesctel_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log, tele_api.Noop{})
	g.BuildVersion = buildVersion
	env := TestEnv{
		Transport: &link.MockTransport{},
		Discovery: supervisor.NewMockDiscovery(),
	}
	g.Hardware.Link.Transport = env.Transport
	g.Hardware.Link.Discovery = env.Discovery
	g.MustInit(ctx, state.MustReadConfig(log, fs, "test-inline"))
	t.Cleanup(g.Stop)
	return ctx, g, env
}
