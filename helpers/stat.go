package helpers

import (
	"expvar"
	"io"
)

// StatReadWriter counts transferred bytes into expvar counters.
// Nil counter is skipped.
type StatReadWriter struct {
	RW io.ReadWriter
	Rx *expvar.Int
	Tx *expvar.Int
}

var _ io.ReadWriter = &StatReadWriter{}

func NewStatReadWriter(rw io.ReadWriter, rx, tx *expvar.Int) *StatReadWriter {
	return &StatReadWriter{RW: rw, Rx: rx, Tx: tx}
}

func (self *StatReadWriter) Read(p []byte) (n int, err error) {
	n, err = self.RW.Read(p)
	if self.Rx != nil {
		self.Rx.Add(int64(n))
	}
	return
}

func (self *StatReadWriter) Write(p []byte) (n int, err error) {
	n, err = self.RW.Write(p)
	if self.Tx != nil {
		self.Tx.Add(int64(n))
	}
	return
}
