// Package serialport carries the same VESC UART frames over a tty,
// e.g. USB adapter or HM-10 module in transparent mode.
package serialport

import (
	"context"
	"expvar"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/tarm/serial"
	"github.com/temoto/vesctel/helpers"
	"github.com/temoto/vesctel/internal/link"
	"github.com/temoto/vesctel/log2"
)

const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 100 * time.Millisecond
	readBufferSize     = 256
)

var (
	statRx = expvar.NewInt("serialport.rx")
	statTx = expvar.NewInt("serialport.tx")
)

type Config struct {
	Ports       []string
	Baud        int
	ReadTimeout time.Duration
}

type OpenFunc func(*serial.Config) (io.ReadWriteCloser, error)

type Port struct {
	Log  *log2.Log
	Open OpenFunc
	// Stat reports whether port path exists, used by Scan.
	Stat func(path string) error

	config Config
}

var _ link.Transport = &Port{}

func New(c Config, log *log2.Log) *Port {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return &Port{
		Log:    log,
		Open:   openSerial,
		Stat:   statPath,
		config: c,
	}
}

func openSerial(c *serial.Config) (io.ReadWriteCloser, error) { return serial.OpenPort(c) }

func statPath(path string) error {
	_, err := os.Stat(path)
	return err
}

// Scan lists configured ports present now. Duration is ignored, ports do not advertise.
func (self *Port) Scan(ctx context.Context, d time.Duration) ([]link.PeerDescriptor, error) {
	peers := make([]link.PeerDescriptor, 0, len(self.config.Ports))
	for _, path := range self.config.Ports {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		if err := self.Stat(path); err != nil {
			self.Log.Debugf("serialport scan skip path=%s err=%v", path, err)
			continue
		}
		peers = append(peers, link.PeerDescriptor{Name: filepath.Base(path), Address: path})
	}
	return peers, nil
}

// Connect ignores address kind, tty has no such notion.
func (self *Port) Connect(ctx context.Context, address string, kind link.AddressKind) (link.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	rwc, err := self.Open(&serial.Config{
		Name:        address,
		Baud:        self.config.Baud,
		ReadTimeout: self.config.ReadTimeout,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "serialport open path=%s", address)
	}
	ch := &channel{
		log:    self.Log,
		path:   address,
		closer: rwc,
		rw:     helpers.NewStatReadWriter(rwc, statRx, statTx),
		done:   make(chan struct{}),
	}
	go ch.reader()
	return ch, nil
}

type channel struct {
	log    *log2.Log
	path   string
	closer io.Closer
	rw     io.ReadWriter
	wmu    sync.Mutex
	notify atomic.Value // func([]byte)
	closed uint32
	done   chan struct{}
	once   sync.Once
}

func (self *channel) Write(b []byte) error {
	self.wmu.Lock()
	defer self.wmu.Unlock()
	return errors.Annotatef(helpers.WriteAll(self.rw, b), "serialport write path=%s", self.path)
}

func (self *channel) OnNotify(f func([]byte)) { self.notify.Store(f) }

func (self *channel) Disconnect() error {
	if !atomic.CompareAndSwapUint32(&self.closed, 0, 1) {
		return nil
	}
	return errors.Annotatef(self.closer.Close(), "serialport close path=%s", self.path)
}

func (self *channel) Done() <-chan struct{} { return self.done }

// tarm/serial reports read timeout as io.EOF.
func (self *channel) reader() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := self.rw.Read(buf)
		if n > 0 {
			if f, ok := self.notify.Load().(func([]byte)); ok && f != nil {
				f(buf[:n])
			}
		}
		if atomic.LoadUint32(&self.closed) != 0 {
			return
		}
		switch {
		case err == nil, err == io.EOF:
		default:
			self.log.Debugf("serialport path=%s read err=%v", self.path, err)
			self.once.Do(func() { close(self.done) })
			return
		}
	}
}
