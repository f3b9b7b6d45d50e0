package tele

import (
	"context"

	"github.com/temoto/vesctel/log2"
	tele_config "github.com/temoto/vesctel/tele/config"
)

type Noop struct{}

var _ Teler = Noop{} // compile-time interface test

func (Noop) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }

func (Noop) Close() {}

func (Noop) State(State) {}

func (Noop) Telemetry(*Telemetry) {}

func (Noop) Error(error) {}
