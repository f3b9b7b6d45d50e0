package tele

import (
	"context"

	"github.com/temoto/vesctel/log2"
	tele_config "github.com/temoto/vesctel/tele/config"
)

// Teler is telemetry uplink, vehicle side.
// Calls never block on network.
type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	Close()
	State(State)
	Telemetry(*Telemetry)
	Error(error)
}
