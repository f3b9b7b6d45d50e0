package tele

import (
	"context"
	"encoding/hex"

	"github.com/c-bata/go-prompt"
	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
	"github.com/temoto/vesctel/cmd/vesctel/subcmd"
	"github.com/temoto/vesctel/helpers/cli"
	"github.com/temoto/vesctel/internal/state"
	tele_api "github.com/temoto/vesctel/tele"
)

const modName = "tele"

var Mod = subcmd.Mod{Name: modName, Usage: "hex telemetry payloads from stdin to text", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	cli.MainLoop(modName, newExecutor(ctx), newCompleter(ctx), nil)
	g.Log.Debugf("tele decode done")
	return nil
}

func newCompleter(ctx context.Context) func(d prompt.Document) []prompt.Suggest {
	return func(d prompt.Document) []prompt.Suggest {
		return nil
	}
}

func newExecutor(ctx context.Context) func(string) {
	g := state.GetGlobal(ctx)
	return func(line string) {
		s, err := DecodeTelemetry(line)
		if err != nil {
			g.Log.Error(err)
			return
		}
		g.Log.Info(s)
	}
}

func DecodeTelemetry(line string) (string, error) {
	// mosquitto_sub wrongly strips leading zero in hex format
	if len(line)%2 == 1 {
		line = "0" + line
	}
	b, err := hex.DecodeString(line)
	if err != nil {
		return "", errors.Annotate(err, "hex.Decode")
	}

	var tm tele_api.Telemetry
	if err := proto.Unmarshal(b, &tm); err != nil {
		return "", errors.Annotate(err, "proto.Unmarshal")
	}
	return proto.MarshalTextString(&tm), nil
}
