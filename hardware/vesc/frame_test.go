package vesc

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/vesctel/helpers"
)

const testValuesHex = "02350400d7ffcc000000000000000000000000000000000000000000000190000000000000000000000000000000000000000000000000b67603"

func TestEncode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "020104408403", hex.EncodeToString(Encode(COMMAND_GET_VALUES)))
	assert.Equal(t, "02011ef3ff03", hex.EncodeToString(Encode(COMMAND_ALIVE)))

	f, err := NewFrame(COMMAND_GET_VALUES, 0x01)
	require.NoError(t, err)
	assert.Equal(t, "02020401dce503", hex.EncodeToString(f.Raw))
	assert.True(t, f.CRCValid())

	_, err = NewFrame(COMMAND_GET_VALUES, make([]byte, PayloadMax)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload longer")
}

func feedString(p *Parser, b []byte) string {
	var fs []string
	p.Feed(b, func(f Frame) {
		fs = append(fs, fmt.Sprintf("%02x:%s", byte(f.Command), hex.EncodeToString(f.Payload)))
	})
	return strings.Join(fs, ",")
}

func TestParserFeed(t *testing.T) {
	t.Parallel()
	type Case struct {
		name     string
		input    string
		expect   string
		buffered int
	}
	cases := []Case{
		{"empty", "", "", 0},
		{"get-values-request", "020104408403", "04:04", 0},
		{"alive", "02011ef3ff03", "1e:1e", 0},
		{"garbage-prefix", "ffaa00020104408403", "04:04", 0},
		{"partial", "02010440", "", 4},
		{"lone-start", "02", "", 1},
		{"spurious-start", "0201aa020104408403", "04:04", 0},
		{"two-frames", "02010440840302011ef3ff03", "04:04,1e:1e", 0},
		{"frame-and-partial", "02010440840302011e", "04:04", 3},
		{"bad-crc-lenient", "020104000003", "04:04", 0},
		{"zero-length", "0200000003", "00:", 0},
		{"stop-mismatch", "020104408404", "", 0},
		{"values", testValuesHex, "04:" + testValuesHex[4:len(testValuesHex)-6], 0},
	}
	helpers.RandUnix().Shuffle(len(cases), func(i int, j int) { cases[i], cases[j] = cases[j], cases[i] })
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			var p Parser
			actual := feedString(&p, helpers.MustHex(c.input))
			assert.Equal(t, c.expect, actual, "input=%s", c.input)
			assert.Equal(t, c.buffered, p.Buffered(), "input=%s", c.input)
		})
	}
}

func TestParserFragmentation(t *testing.T) {
	t.Parallel()
	rnd := helpers.RandUnix()
	stream := helpers.MustHex("aa0201aa" + "020104408403" + "55" + testValuesHex + "02011ef3ff03" + "0201")
	var whole Parser
	expect := feedString(&whole, stream)
	require.Equal(t, 3, strings.Count(expect, ",")+1)

	split := func(chunks [][]byte) string {
		var p Parser
		var fs []string
		for _, c := range chunks {
			if s := feedString(&p, c); s != "" {
				fs = append(fs, s)
			}
		}
		assert.Equal(t, whole.Buffered(), p.Buffered())
		return strings.Join(fs, ",")
	}

	bytewise := make([][]byte, len(stream))
	for i := range stream {
		bytewise[i] = stream[i : i+1]
	}
	assert.Equal(t, expect, split(bytewise), "one byte at a time")

	for try := 1; try <= 200; try++ {
		var chunks [][]byte
		rest := stream
		for len(rest) > 0 {
			n := 1 + rnd.Intn(len(rest))
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		assert.Equal(t, expect, split(chunks), "try=%d chunks=%x", try, chunks)
	}
}

func TestParserGarbage(t *testing.T) {
	t.Parallel()
	rnd := helpers.RandUnix()
	frame := helpers.MustHex(testValuesHex)
	for n := 0; n <= 50; n++ {
		prefix := make([]byte, n)
		rnd.Read(prefix)
		for i := range prefix {
			if prefix[i] == START {
				prefix[i] = 0x55
			}
		}
		var p Parser
		count := p.Feed(append(prefix, frame...), func(f Frame) {
			assert.Equal(t, frame, f.Raw)
		})
		assert.Equal(t, 1, count, "prefix=%x", prefix)
		assert.Equal(t, uint32(n), p.Stat().Garbage)
	}
}

func TestParserStrictCRC(t *testing.T) {
	t.Parallel()
	p := Parser{VerifyCRC: true}
	actual := feedString(&p, helpers.MustHex("020104000003020104408403"))
	assert.Equal(t, "04:04", actual)
	assert.Equal(t, uint32(1), p.Stat().CRCError)
	assert.Equal(t, uint32(1), p.Stat().Frames)
}

func TestParserSmallMax(t *testing.T) {
	t.Parallel()
	assert.Equal(t, FrameMax, (&Parser{Max: 16}).limit())
	assert.Equal(t, DefaultBufferMax, (&Parser{}).limit())
	assert.Equal(t, 4096, (&Parser{Max: 4096}).limit())

	// BLE sized chunks must not lose a frame even with tiny configured cap
	p := Parser{Max: 16}
	frame := helpers.MustHex(testValuesHex)
	n := 0
	for len(frame) > 0 {
		k := 20
		if k > len(frame) {
			k = len(frame)
		}
		n += p.Feed(frame[:k], nil)
		frame = frame[k:]
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, uint32(0), p.Stat().Overflow)
}

func TestParserBounded(t *testing.T) {
	t.Parallel()
	p := Parser{Max: 8}
	// longest possible frame header, body still missing
	head := append([]byte{START, 0xff}, make([]byte, 250)...)
	assert.Equal(t, "", feedString(&p, head))
	assert.Equal(t, len(head), p.Buffered())

	// stop byte never arrives: one byte resync, rest is garbage
	assert.Equal(t, "", feedString(&p, make([]byte, 300)))
	assert.Equal(t, 0, p.Buffered())
	assert.Equal(t, uint32(1), p.Stat().Resync)
	assert.Equal(t, uint32(0), p.Stat().Overflow)

	assert.Equal(t, "04:04", feedString(&p, Encode(COMMAND_GET_VALUES)))
}
