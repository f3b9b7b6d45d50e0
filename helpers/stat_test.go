package helpers

import (
	"bytes"
	"expvar"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatReadWriter(t *testing.T) {
	t.Parallel()
	var rx, tx expvar.Int
	buf := bytes.NewBuffer(nil)
	s := NewStatReadWriter(buf, &rx, &tx)
	_, _ = s.Write(MustHex("02011ef3ff03"))
	assert.Equal(t, int64(6), tx.Value())
	assert.Equal(t, int64(0), rx.Value())

	p := make([]byte, 4)
	_, _ = s.Read(p[:0])
	assert.Equal(t, int64(0), rx.Value())
	_, _ = s.Read(p)
	_, _ = s.Read(p)
	assert.Equal(t, int64(6), rx.Value())

	quiet := NewStatReadWriter(buf, nil, nil)
	n, err := quiet.Write([]byte{0x02})
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
