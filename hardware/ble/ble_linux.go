//go:build linux

package ble

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/vesctel/internal/link"
	"github.com/temoto/vesctel/log2"
	"tinygo.org/x/bluetooth"
)

type Adapter struct {
	Log     *log2.Log
	config  Config
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error
	scanMu     sync.Mutex

	mu       sync.Mutex
	channels map[string]*channel
}

var _ link.Transport = &Adapter{}

func New(c Config, log *log2.Log) *Adapter {
	return &Adapter{
		Log:      log,
		config:   c,
		adapter:  bluetooth.DefaultAdapter,
		channels: make(map[string]*channel),
	}
}

func (self *Adapter) enable() error {
	self.enableOnce.Do(func() {
		self.adapter.SetConnectHandler(self.onConnectEvent)
		self.enableErr = errors.Annotate(self.adapter.Enable(), "ble adapter enable")
	})
	return self.enableErr
}

// Scan blocks for d or until ctx is done.
func (self *Adapter) Scan(ctx context.Context, d time.Duration) ([]link.PeerDescriptor, error) {
	if err := self.enable(); err != nil {
		return nil, err
	}
	self.scanMu.Lock()
	defer self.scanMu.Unlock()

	var mu sync.Mutex
	peers := newPeerSet()
	stop := make(chan struct{})
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		case <-stop:
			return
		}
		if err := self.adapter.StopScan(); err != nil {
			self.Log.Debugf("ble StopScan err=%v", err)
		}
	}()
	err := self.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		name := r.LocalName()
		if !MatchName(name, self.config.NameFilter) {
			return
		}
		mu.Lock()
		peers.add(link.PeerDescriptor{Name: name, Address: r.Address.String(), RSSI: int32(r.RSSI)})
		mu.Unlock()
	})
	close(stop)
	if err != nil {
		return nil, errors.Annotate(err, "ble scan")
	}
	mu.Lock()
	defer mu.Unlock()
	return peers.peers(), nil
}

func (self *Adapter) Connect(ctx context.Context, address string, kind link.AddressKind) (link.Channel, error) {
	if err := self.enable(); err != nil {
		return nil, err
	}
	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return nil, errors.Annotatef(err, "ble address=%s", address)
	}
	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}
	addr.SetRandom(kind == link.AddressRandom)

	type result struct {
		device bluetooth.Device
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		device, err := self.adapter.Connect(addr, bluetooth.ConnectionParams{})
		resultCh <- result{device, err}
	}()
	var r result
	select {
	case r = <-resultCh:
	case <-ctx.Done():
		// late success must not leak connection
		go func() {
			if late := <-resultCh; late.err == nil {
				_ = late.device.Disconnect()
			}
		}()
		return nil, errors.Trace(ctx.Err())
	}
	if r.err != nil {
		return nil, errors.Annotatef(r.err, "ble connect address=%s kind=%s", address, kind)
	}

	ch, err := self.setup(r.device, address)
	if err != nil {
		_ = r.device.Disconnect()
		return nil, err
	}
	if ctx.Err() != nil {
		_ = ch.Disconnect()
		return nil, errors.Trace(ctx.Err())
	}
	return ch, nil
}

func (self *Adapter) setup(device bluetooth.Device, address string) (*channel, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{bluetooth.ServiceUUIDNordicUART})
	if err != nil {
		return nil, errors.Annotate(err, "ble discover services")
	}
	if len(services) == 0 {
		return nil, errors.NotFoundf("ble UART service")
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		bluetooth.CharacteristicUUIDUARTRX,
		bluetooth.CharacteristicUUIDUARTTX,
	})
	if err != nil {
		return nil, errors.Annotate(err, "ble discover characteristics")
	}
	ch := &channel{
		owner:  self,
		key:    NormalizeAddress(address),
		device: device,
		chunk:  self.config.chunk(),
		done:   make(chan struct{}),
	}
	var foundRx, foundTx bool
	for _, c := range chars {
		switch c.UUID() {
		case bluetooth.CharacteristicUUIDUARTRX:
			ch.rx, foundRx = c, true
		case bluetooth.CharacteristicUUIDUARTTX:
			ch.tx, foundTx = c, true
		}
	}
	if !(foundRx && foundTx) {
		return nil, errors.NotFoundf("ble UART characteristics rx=%t tx=%t", foundRx, foundTx)
	}
	if err := ch.tx.EnableNotifications(ch.onNotify); err != nil {
		return nil, errors.Annotate(err, "ble enable notifications")
	}
	self.mu.Lock()
	self.channels[ch.key] = ch
	self.mu.Unlock()
	return ch, nil
}

func (self *Adapter) onConnectEvent(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	key := NormalizeAddress(device.Address.String())
	self.mu.Lock()
	ch, ok := self.channels[key]
	delete(self.channels, key)
	self.mu.Unlock()
	if ok {
		self.Log.Debugf("ble peer=%s disconnected", key)
		ch.lose()
	}
}

func (self *Adapter) forget(ch *channel) {
	self.mu.Lock()
	if self.channels[ch.key] == ch {
		delete(self.channels, ch.key)
	}
	self.mu.Unlock()
}

type channel struct {
	owner  *Adapter
	key    string
	device bluetooth.Device
	rx     bluetooth.DeviceCharacteristic
	tx     bluetooth.DeviceCharacteristic
	chunk  int
	notify atomic.Value // func([]byte)
	done   chan struct{}
	once   sync.Once
}

func (self *channel) Write(b []byte) error {
	for _, c := range splitChunks(b, self.chunk) {
		if _, err := self.rx.WriteWithoutResponse(c); err != nil {
			return errors.Annotate(err, "ble write")
		}
	}
	return nil
}

func (self *channel) OnNotify(f func([]byte)) { self.notify.Store(f) }

func (self *channel) onNotify(b []byte) {
	if f, ok := self.notify.Load().(func([]byte)); ok && f != nil {
		f(b)
	}
}

func (self *channel) Disconnect() error {
	self.owner.forget(self)
	return errors.Annotate(self.device.Disconnect(), "ble disconnect")
}

func (self *channel) Done() <-chan struct{} { return self.done }

func (self *channel) lose() { self.once.Do(func() { close(self.done) }) }
