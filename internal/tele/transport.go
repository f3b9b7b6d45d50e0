package tele

import (
	"context"

	"github.com/temoto/vesctel/log2"
	tele_config "github.com/temoto/vesctel/tele/config"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - application may start without network available
// - Send* never block on network, false means message was not queued
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback, willPayload []byte) error
	SendState(payload []byte) bool
	SendTelemetry(payload []byte) bool
	Close()
}

type CommandCallback func(context.Context, []byte) bool
