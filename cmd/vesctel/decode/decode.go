// Package decode prints frames and readings from hex dumps, e.g. captured with btmon.
package decode

import (
	"context"
	"encoding/hex"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/vesctel/cmd/vesctel/subcmd"
	"github.com/temoto/vesctel/hardware/vesc"
	"github.com/temoto/vesctel/helpers/cli"
	"github.com/temoto/vesctel/internal/state"
)

const modName = "decode"

var Mod = subcmd.Mod{Name: modName, Usage: "hex lines from stdin to frames and readings", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	d := NewDecoder(config)
	exec := func(line string) {
		out, err := d.Line(line)
		if err != nil {
			g.Log.Error(err)
			return
		}
		for _, s := range out {
			g.Log.Info(s)
		}
	}
	cli.MainLoop(modName, exec, func(prompt.Document) []prompt.Suggest { return nil }, nil)
	st := d.Parser.Stat()
	g.Log.Infof("frames=%d garbage=%d resync=%d crc_error=%d overflow=%d buffered=%d",
		st.Frames, st.Garbage, st.Resync, st.CRCError, st.Overflow, d.Parser.Buffered())
	return nil
}

// Decoder keeps parser state across lines, frames may span lines.
type Decoder struct {
	Parser vesc.Parser
	Layout vesc.Layout
}

func NewDecoder(config *state.Config) *Decoder {
	return &Decoder{
		Parser: vesc.Parser{VerifyCRC: config.Link.StrictCRC, Max: config.Link.BufferMax},
		Layout: config.Link.Layout,
	}
}

var hexCleaner = strings.NewReplacer(" ", "", "\t", "", ":", "", "0x", "", "0X", "")

func (self *Decoder) Line(line string) ([]string, error) {
	s := hexCleaner.Replace(line)
	if len(s)%2 == 1 {
		return nil, errors.NotValidf("odd hex length=%d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Annotatef(err, "hex line=%s", line)
	}
	var out []string
	self.Parser.Feed(b, func(f vesc.Frame) {
		text := f.String()
		if !f.CRCValid() {
			text += " crc=bad"
		}
		r, err := vesc.Decode(f.Raw, &self.Layout)
		switch {
		case err == nil:
			text += " " + r.String()
		case errors.Cause(err) == vesc.ErrAliveAck:
			text += " alive-ack"
		default:
			text += " decode: " + err.Error()
		}
		out = append(out, text)
	})
	return out, nil
}
