package state

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/vesctel/hardware/ble"
	"github.com/temoto/vesctel/hardware/serialport"
	"github.com/temoto/vesctel/hardware/vesc"
	"github.com/temoto/vesctel/helpers"
	"github.com/temoto/vesctel/internal/link"
	"github.com/temoto/vesctel/internal/supervisor"
	"github.com/temoto/vesctel/log2"
	tele_config "github.com/temoto/vesctel/tele/config"
)

const (
	TransportBle    = "ble"
	TransportSerial = "serial"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	LogDebug bool `hcl:"log_debug"`

	Link struct { //nolint:maligned
		Transport   string      `hcl:"transport"`
		NameFilter  string      `hcl:"name_filter"`
		ScanSec     int         `hcl:"scan_sec"`
		AutoConnect bool        `hcl:"auto_connect"`
		AutoPick    string      `hcl:"auto_pick"`
		StrictCRC   bool        `hcl:"strict_crc"`
		BufferMax   int         `hcl:"buffer_max"`
		WriteChunk  int         `hcl:"write_chunk"`
		LogDebug    bool        `hcl:"log_debug"`
		Layout      vesc.Layout `hcl:"layout"`
	}
	Serial struct {
		Ports         []string `hcl:"ports"`
		Baud          int      `hcl:"baud"`
		ReadTimeoutMs int      `hcl:"read_timeout_ms"`
	}
	Supervisor struct {
		PollIntervalMs       int `hcl:"poll_interval_ms"`
		StaleTimeoutSec      int `hcl:"stale_timeout_sec"`
		ReconnectIntervalSec int `hcl:"reconnect_interval_sec"`
		GraceSec             int `hcl:"grace_sec"`
		// negative: single ALIVE after connect
		AliveIntervalMs int `hcl:"alive_interval_ms"`
		TickMs          int `hcl:"tick_ms"`
	}
	Dashfeed struct {
		Listen string `hcl:"listen"`
	}
	Tele tele_config.Config `hcl:"tele"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) SupervisorConfig() supervisor.Config {
	s := &c.Supervisor
	return supervisor.Config{
		PollInterval:      helpers.IntMillisecondDefault(s.PollIntervalMs, supervisor.DefaultPollInterval),
		StaleTimeout:      helpers.IntSecondDefault(s.StaleTimeoutSec, supervisor.DefaultStaleTimeout),
		ReconnectInterval: helpers.IntSecondDefault(s.ReconnectIntervalSec, supervisor.DefaultReconnectInterval),
		GracePeriod:       helpers.IntSecondDefault(s.GraceSec, supervisor.DefaultGracePeriod),
		AliveInterval:     helpers.IntMillisecondDefault(s.AliveIntervalMs, supervisor.DefaultAliveInterval),
		ScanDuration:      helpers.IntSecondDefault(c.Link.ScanSec, supervisor.DefaultScanDuration),
		TickInterval:      helpers.IntMillisecondDefault(s.TickMs, supervisor.DefaultTickInterval),
		Link: link.Config{
			Layout:    c.Link.Layout,
			StrictCRC: c.Link.StrictCRC,
			BufferMax: c.Link.BufferMax,
		},
	}
}

func (c *Config) BleConfig() ble.Config {
	return ble.Config{NameFilter: c.Link.NameFilter, Chunk: c.Link.WriteChunk}
}

func (c *Config) SerialConfig() serialport.Config {
	return serialport.Config{
		Ports:       c.Serial.Ports,
		Baud:        c.Serial.Baud,
		ReadTimeout: time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond,
	}
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		log.Fatalf("config duplicate source=%s", source.Name)
	} else {
		log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	}
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func (c *Config) validate() error {
	errs := make([]error, 0, 4)
	switch c.Link.Transport {
	case "", TransportBle, TransportSerial:
	default:
		errs = append(errs, errors.NotValidf("config: link.transport=%q valid: ble, serial", c.Link.Transport))
	}
	if c.Link.BufferMax < 0 || (c.Link.BufferMax > 0 && c.Link.BufferMax < vesc.FrameMax) {
		errs = append(errs, errors.NotValidf("config: link.buffer_max=%d must be 0 (default) or at least %d", c.Link.BufferMax, vesc.FrameMax))
	}
	if c.Link.Transport == TransportSerial && len(c.Serial.Ports) == 0 {
		errs = append(errs, errors.NotValidf("config: link.transport=serial requires serial.ports"))
	}
	if c.Supervisor.PollIntervalMs < 0 || c.Supervisor.StaleTimeoutSec < 0 ||
		c.Supervisor.ReconnectIntervalSec < 0 || c.Supervisor.GraceSec < 0 {
		errs = append(errs, errors.NotValidf("config: supervisor intervals must not be negative"))
	}
	return helpers.FoldErrors(errs)
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
