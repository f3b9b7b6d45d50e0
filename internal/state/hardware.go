package state

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/temoto/vesctel/hardware/ble"
	"github.com/temoto/vesctel/hardware/serialport"
	"github.com/temoto/vesctel/internal/link"
	"github.com/temoto/vesctel/internal/supervisor"
	"github.com/temoto/vesctel/log2"
)

type hardware struct {
	Link struct {
		once
		Transport link.Transport
		Discovery supervisor.Discovery
	}
}

// Link opens configured transport once. Preset Transport (tests) is kept as is.
func (g *Global) Link() (link.Transport, supervisor.Discovery, error) {
	x := &g.Hardware.Link // short alias
	_ = x.do(func() error {
		if x.Transport != nil { // state-new testing mode
			return nil
		}

		linkLog := g.Log.Clone(log2.LInfo)
		if g.Config.Link.LogDebug {
			linkLog.SetLevel(log2.LDebug)
		}
		switch g.Config.Link.Transport {
		case "", TransportBle:
			a := ble.New(g.Config.BleConfig(), linkLog)
			x.Transport, x.Discovery = a, a
		case TransportSerial:
			p := serialport.New(g.Config.SerialConfig(), linkLog)
			x.Transport, x.Discovery = p, p
		default:
			return fmt.Errorf("config: unknown link.transport=\"%s\" valid: ble, serial", g.Config.Link.Transport)
		}
		return nil
	})
	return x.Transport, x.Discovery, x.err
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
