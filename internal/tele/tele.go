package tele

import (
	"context"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
	"github.com/temoto/vesctel/log2"
	tele_api "github.com/temoto/vesctel/tele"
	tele_config "github.com/temoto/vesctel/tele/config"
)

const defaultClientId = "vesctel"

// CommandHandler executes remote command. Error is logged and reported as telemetry.
type CommandHandler func(context.Context, *tele_api.Command) error

// Tele contract:
// - Init() fails only with invalid config, network issues ignored
// - State/Telemetry/Error never block on network
// - State is retained on broker, last state wins
// - Telemetry may be lost when offline
type tele struct {
	config    tele_config.Config
	log       *log2.Log
	transport Transporter
	handler   CommandHandler
	enabled   bool

	mu           sync.Mutex
	currentState tele_api.State
}

func New(handler CommandHandler) tele_api.Teler {
	return &tele{handler: handler}
}

func NewWithTransporter(trans Transporter, handler CommandHandler) tele_api.Teler {
	return &tele{transport: trans, handler: handler}
}

func (self *tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.config = teleConfig
	if self.config.ClientId == "" {
		self.config.ClientId = defaultClientId
	}
	self.log = log
	if self.config.LogDebug {
		self.log = log.Clone(log2.LDebug)
	}
	if !self.config.Enabled {
		return nil
	}

	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	willPayload := []byte{byte(tele_api.State_Disconnected)}
	if err := self.transport.Init(ctx, self.log, self.config, self.onCommandMessage, willPayload); err != nil {
		return errors.Annotate(err, "tele transport")
	}
	self.enabled = true
	self.State(tele_api.State_Boot)
	return nil
}

func (self *tele) Close() {
	if !self.enabled {
		return
	}
	self.State(tele_api.State_Disconnected)
	self.transport.Close()
	self.enabled = false
}

// State publishes only changes.
func (self *tele) State(s tele_api.State) {
	if !self.enabled {
		return
	}
	self.mu.Lock()
	changed := self.currentState != s
	self.currentState = s
	self.mu.Unlock()
	if changed {
		self.transport.SendState([]byte{byte(s)})
	}
}

func (self *tele) Telemetry(tm *tele_api.Telemetry) {
	if !self.enabled {
		return
	}
	if tm.ClientId == "" {
		tm.ClientId = self.config.ClientId
	}
	if tm.Time == 0 {
		tm.Time = time.Now().UnixNano()
	}
	if tm.State == tele_api.State_Invalid {
		self.mu.Lock()
		tm.State = self.currentState
		self.mu.Unlock()
	}
	payload, err := proto.Marshal(tm)
	if err != nil {
		self.log.Errorf("CRITICAL telemetry Marshal tm=%#v err=%v", tm, err)
		return
	}
	if !self.transport.SendTelemetry(payload) {
		self.log.Debugf("tele telemetry not sent, offline")
	}
}

func (self *tele) Error(e error) {
	if e == nil {
		return
	}
	self.log.Debugf("tele error=%v", e)
	self.Telemetry(&tele_api.Telemetry{Error: e.Error()})
}

func (self *tele) onCommandMessage(ctx context.Context, payload []byte) bool {
	if len(payload) == 0 {
		self.log.Errorf("tele command empty payload")
		return true
	}
	var cmd tele_api.Command
	if err := proto.Unmarshal(payload, &cmd); err != nil {
		self.Error(errors.Annotatef(err, "tele command parse payload=%x", payload))
		return true
	}
	self.log.Infof("tele command id=%d kind=%s index=%d", cmd.Id, cmd.Kind.String(), cmd.Index)
	if self.handler == nil {
		self.Error(errors.NotSupportedf("tele command=%s", cmd.Kind.String()))
		return true
	}
	if err := self.handler(ctx, &cmd); err != nil {
		self.Error(errors.Annotatef(err, "tele command id=%d kind=%s", cmd.Id, cmd.Kind.String()))
	}
	return true
}
