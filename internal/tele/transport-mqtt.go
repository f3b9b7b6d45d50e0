package tele

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/vesctel/helpers"
	"github.com/temoto/vesctel/log2"
	tele_config "github.com/temoto/vesctel/tele/config"
)

const (
	defaultKeepalive   = 60 * time.Second
	defaultPingTimeout = 30 * time.Second
	closeQuiesceMs     = 250
)

type transportMqtt struct {
	log       *log2.Log
	onCommand func([]byte) bool
	m         mqtt.Client
	mopt      *mqtt.ClientOptions

	topicPrefix    string
	topicConnect   string
	topicState     string
	topicTelemetry string
	topicCommand   string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback, willPayload []byte) error {
	self.log = log
	if teleConfig.MqttBroker == "" {
		return errors.NotValidf("tele mqtt_broker empty")
	}
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log
	if teleConfig.MqttLogDebug {
		mqtt.DEBUG = log
	}

	clientId := teleConfig.ClientId
	credFun := func() (string, string) {
		return clientId, teleConfig.MqttPassword
	}
	self.onCommand = func(payload []byte) bool {
		return onCommand(ctx, payload)
	}
	self.topicPrefix = clientId
	self.topicConnect = fmt.Sprintf("%s/c", self.topicPrefix)
	self.topicState = fmt.Sprintf("%s/w/1s", self.topicPrefix)
	self.topicTelemetry = fmt.Sprintf("%s/w/1t", self.topicPrefix)
	self.topicCommand = fmt.Sprintf("%s/r/c", self.topicPrefix)
	keepAlive := helpers.IntSecondDefault(teleConfig.KeepaliveSec, defaultKeepalive)
	pingTimeout := helpers.IntSecondDefault(teleConfig.PingTimeoutSec, defaultPingTimeout)
	retryInterval := helpers.IntSecondDefault(teleConfig.KeepaliveSec/2, defaultPingTimeout)
	var store mqtt.Store = mqtt.NewMemoryStore()
	if teleConfig.StorePath != "" {
		store = mqtt.NewFileStore(teleConfig.StorePath)
	}

	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetBinaryWill(self.topicConnect, willPayload, 1, true).
		SetCleanSession(false).
		SetClientID(clientId).
		SetCredentialsProvider(credFun).
		SetDefaultPublishHandler(self.messageHandler).
		SetKeepAlive(keepAlive).
		SetPingTimeout(pingTimeout).
		SetOrderMatters(false).
		SetResumeSubs(true).
		SetStore(store).
		SetConnectRetryInterval(retryInterval).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler).
		SetConnectRetry(true)
	self.m = mqtt.NewClient(self.mopt)
	// with ConnectRetry token completes only on success, do not wait
	if token := self.m.Connect(); token.Error() != nil {
		self.log.Errorf("tele mqtt connect err=%v", token.Error())
	}
	return nil
}

func (self *transportMqtt) Close() {
	if self.m == nil {
		return
	}
	self.log.Infof("tele mqtt close")
	if token := self.m.Unsubscribe(self.topicCommand); token.WaitTimeout(time.Second) && token.Error() != nil {
		self.log.Errorf("tele mqtt unsubscribe err=%v", token.Error())
	}
	self.m.Disconnect(closeQuiesceMs)
}

func (self *transportMqtt) SendState(payload []byte) bool {
	self.log.Debugf("tele mqtt state payload=%x", payload)
	self.m.Publish(self.topicState, 1, true, payload)
	return true
}

func (self *transportMqtt) SendTelemetry(payload []byte) bool {
	if !self.m.IsConnectionOpen() {
		// telemetry is periodic, next one will be fresher
		return false
	}
	self.m.Publish(self.topicTelemetry, 0, false, payload)
	return true
}

func (self *transportMqtt) messageHandler(c mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	self.log.Debugf("tele mqtt message topic=%s payload=%x", msg.Topic(), payload)
	self.onCommand(payload)
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("tele mqtt disconnect err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("tele mqtt connect")
	if token := c.Subscribe(self.topicCommand, 1, nil); token.Wait() && token.Error() != nil {
		self.log.Errorf("tele mqtt subscribe err=%v", token.Error())
	} else {
		c.Publish(self.topicConnect, 1, true, []byte{0x01})
	}
}
