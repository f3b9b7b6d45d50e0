package vesc

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/vesctel/crc"
)

// Short frame on the wire:
// START | LEN | payload[LEN] | CRC16 hi | CRC16 lo | STOP
// payload[0] is the command byte as delivered by the peer.
const (
	START byte = 0x02
	STOP  byte = 0x03

	frameOverhead = 5
	PayloadMax    = 255
	FrameMax      = PayloadMax + frameOverhead

	DefaultBufferMax = 1024
)

var ErrPayloadOverflow = errors.New("vesc: payload longer than short frame allows")

type Frame struct {
	Command Command_t
	// Bytes between length and CRC.
	Payload []byte
	// Complete frame from START to STOP. Telemetry offsets are relative to Raw.
	Raw []byte
}

func NewFrame(cmd Command_t, data ...byte) (Frame, error) {
	plen := 1 + len(data)
	if plen > PayloadMax {
		return Frame{}, errors.Annotatef(ErrPayloadOverflow, "command=%s length=%d", cmd.String(), plen)
	}
	raw := make([]byte, plen+frameOverhead)
	raw[0] = START
	raw[1] = byte(plen)
	raw[2] = byte(cmd)
	copy(raw[3:], data)
	sum := crc.CRC16_p1021_n(0, raw[2:2+plen])
	binary.BigEndian.PutUint16(raw[2+plen:], sum)
	raw[len(raw)-1] = STOP
	return Frame{Command: cmd, Payload: raw[2 : 2+plen], Raw: raw}, nil
}

// Encode returns wire bytes of a request without arguments.
func Encode(cmd Command_t) []byte {
	f, err := NewFrame(cmd)
	if err != nil {
		panic("code error " + err.Error())
	}
	return f.Raw
}

func (self *Frame) CRC() uint16 {
	if len(self.Raw) < frameOverhead {
		return 0
	}
	return binary.BigEndian.Uint16(self.Raw[len(self.Raw)-3:])
}

func (self *Frame) CRCValid() bool {
	return crc.CRC16_p1021_n(0, self.Payload) == self.CRC()
}

func (self *Frame) String() string {
	return fmt.Sprintf("command=%s length=%d payload=%s", self.Command.String(), len(self.Payload), hex.EncodeToString(self.Payload))
}

type ParserStat struct {
	Frames   uint32
	Garbage  uint32 // bytes skipped looking for START
	Resync   uint32 // spurious START dropped
	CRCError uint32
	Overflow uint32 // bytes discarded by buffer cap
}

// Parser accumulates transport bytes and extracts complete frames.
// Not safe for concurrent use and not reentrant from the Feed callback.
type Parser struct {
	// VerifyCRC rejects frames with mismatching checksum the same way as a bad stop byte.
	VerifyCRC bool
	// Max caps buffered bytes, default DefaultBufferMax.
	Max int

	buf  []byte
	stat ParserStat
}

func (self *Parser) Buffered() int    { return len(self.buf) }
func (self *Parser) Stat() ParserStat { return self.stat }
func (self *Parser) Reset()           { self.buf = self.buf[:0] }

// limit never drops below FrameMax so a fragmented frame always fits.
func (self *Parser) limit() int {
	switch {
	case self.Max <= 0:
		return DefaultBufferMax
	case self.Max < FrameMax:
		return FrameMax
	}
	return self.Max
}

// Feed appends b and calls fun for every complete frame, in order.
// Partial frame at the end stays buffered for the next Feed.
// Returns number of emitted frames.
func (self *Parser) Feed(b []byte, fun func(Frame)) int {
	self.buf = append(self.buf, b...)
	emitted := 0
	rest := self.buf
	for len(rest) > 0 {
		i := bytes.IndexByte(rest, START)
		if i < 0 {
			self.stat.Garbage += uint32(len(rest))
			rest = rest[len(rest):]
			break
		}
		if i > 0 {
			self.stat.Garbage += uint32(i)
			rest = rest[i:]
		}
		if len(rest) < 2 {
			break
		}
		plen := int(rest[1])
		need := plen + frameOverhead
		if len(rest) < need {
			break
		}
		if rest[need-1] != STOP {
			self.stat.Resync++
			rest = rest[1:]
			continue
		}
		raw := make([]byte, need)
		copy(raw, rest[:need])
		f := Frame{Payload: raw[2 : 2+plen], Raw: raw}
		if plen > 0 {
			f.Command = Command_t(f.Payload[0])
		}
		if self.VerifyCRC && !f.CRCValid() {
			self.stat.CRCError++
			rest = rest[1:]
			continue
		}
		rest = rest[need:]
		self.stat.Frames++
		emitted++
		if fun != nil {
			fun(f)
		}
	}
	n := copy(self.buf, rest)
	self.buf = self.buf[:n]
	if len(self.buf) > self.limit() {
		self.stat.Overflow += uint32(len(self.buf))
		self.buf = self.buf[:0]
	}
	return emitted
}
