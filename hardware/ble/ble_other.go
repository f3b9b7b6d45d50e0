//go:build !linux

package ble

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/vesctel/internal/link"
	"github.com/temoto/vesctel/log2"
)

type Adapter struct {
	Log    *log2.Log
	config Config
}

var _ link.Transport = &Adapter{}

func New(c Config, log *log2.Log) *Adapter { return &Adapter{Log: log, config: c} }

func (self *Adapter) Scan(ctx context.Context, d time.Duration) ([]link.PeerDescriptor, error) {
	return nil, errors.NotSupportedf("ble on this platform")
}

func (self *Adapter) Connect(ctx context.Context, address string, kind link.AddressKind) (link.Channel, error) {
	return nil, errors.NotSupportedf("ble on this platform")
}
