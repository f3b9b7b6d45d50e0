// Package console is interactive operator prompt over the supervisor.
package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/vesctel/cmd/vesctel/subcmd"
	"github.com/temoto/vesctel/helpers/cli"
	"github.com/temoto/vesctel/internal/dashfeed"
	"github.com/temoto/vesctel/internal/state"
	tele_api "github.com/temoto/vesctel/tele"
)

const modName = "console"

const usage = `commands:
- scan          discover peers
- peers         list last discovery results
- select N      connect to peer N
- now           request telemetry immediately
- status        state, data freshness, latest reading
- stat          codec and session counters
- disconnect    drop link, forget peer
- cancel        stop reconnecting
- retry         reconnect now
- help
`

var Mod = subcmd.Mod{Name: modName, Usage: "interactive prompt", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)
	s := g.Supervisor

	g.Alive.Add(1)
	go func() {
		defer g.Alive.Done()
		_ = s.Run(ctx)
	}()
	go func() {
		stopch := g.Alive.StopChan()
		for {
			select {
			case e := <-s.Events():
				g.Log.Infof("event %s", e.String())
			case <-stopch:
				return
			}
		}
	}()

	cli.MainLoop("vesctel", newExecutor(ctx), newCompleter(), g.Stop)
	g.Stop()
	g.Alive.Wait()
	return nil
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "scan"}, {Text: "peers"}, {Text: "select"}, {Text: "now"}, {Text: "status"},
		{Text: "stat"}, {Text: "disconnect"}, {Text: "cancel"}, {Text: "retry"}, {Text: "help"},
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context) func(string) {
	g := state.GetGlobal(ctx)
	return func(line string) {
		out, err := Exec(ctx, line)
		if err != nil {
			g.Log.Errorf(errors.ErrorStack(err))
			return
		}
		if out != "" {
			g.Log.Info(out)
		}
	}
}

// Exec runs one console line, returns text for operator.
func Exec(ctx context.Context, line string) (string, error) {
	g := state.GetGlobal(ctx)
	s := g.Supervisor
	words := strings.Fields(line)
	if len(words) == 0 {
		return "", nil
	}

	switch words[0] {
	case "help", "/help", "?":
		return usage, nil

	case "peers":
		peers := s.Peers()
		if len(peers) == 0 {
			return "no peers, try scan", nil
		}
		var b strings.Builder
		for i, p := range peers {
			fmt.Fprintf(&b, "%d: %s\n", i, p.String())
		}
		return b.String(), nil

	case "status":
		snap := s.Snapshot()
		out := fmt.Sprintf("state=%s data=%s", snap.State.String(), snap.Status.String())
		if snap.Target != nil {
			out += " peer=" + snap.Target.String()
		}
		if snap.Reading != nil {
			out += " " + snap.Reading.String()
		}
		if snap.Error != "" {
			out += " error=" + snap.Error
		}
		return out, nil

	case "stat":
		return fmt.Sprintf("%+v", s.Snapshot().Stat), nil
	}

	kind, err := dashfeed.ParseCommand(words[0])
	if err != nil {
		return "", errors.Annotate(err, "type help for list")
	}
	cmd := &tele_api.Command{Kind: kind}
	if kind == tele_api.Command_Select {
		if len(words) != 2 {
			return "", errors.NotValidf("usage: select N")
		}
		i, err := strconv.ParseInt(words[1], 10, 32)
		if err != nil {
			return "", errors.Annotatef(err, "select index=%s", words[1])
		}
		cmd.Index = int32(i)
	}
	if err := g.Command(ctx, cmd); err != nil {
		return "", err
	}
	return "ok", nil
}
