package vesc

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/juju/errors"
)

var (
	ErrTooShort     = errors.New("vesc: telemetry too short")
	ErrUnrecognized = errors.New("vesc: unrecognized frame")
	// ErrAliveAck is not a fault: frame is a liveness acknowledgment, no reading inside.
	ErrAliveAck = errors.New("vesc: alive acknowledgment")
)

// Layout is the GET_VALUES response offset table.
// Offsets are relative to the raw frame (START at 0, LEN at 1, command at 2).
// Zero value of any field means default, see DefaultLayout.
type Layout struct {
	Command   int `hcl:"command"`
	MinLength int `hcl:"min_length"`

	TempFet          int `hcl:"temp_fet"`
	TempMotor        int `hcl:"temp_motor"`
	CurrentMotor     int `hcl:"current_motor"`
	CurrentInput     int `hcl:"current_input"`
	CurrentD         int `hcl:"current_d"`
	CurrentQ         int `hcl:"current_q"`
	Duty             int `hcl:"duty"`
	ERPM             int `hcl:"erpm"`
	Voltage          int `hcl:"voltage"`
	AmpHours         int `hcl:"amp_hours"`
	AmpHoursCharged  int `hcl:"amp_hours_charged"`
	WattHours        int `hcl:"watt_hours"`
	WattHoursCharged int `hcl:"watt_hours_charged"`
	Tachometer       int `hcl:"tachometer"`
	TachometerAbs    int `hcl:"tachometer_abs"`
	Fault            int `hcl:"fault"`
}

var DefaultLayout = Layout{
	Command:   int(COMMAND_GET_VALUES),
	MinLength: 50,

	TempFet:          3,
	TempMotor:        5,
	CurrentMotor:     7,
	CurrentInput:     11,
	CurrentD:         15,
	CurrentQ:         19,
	Duty:             23,
	ERPM:             25,
	Voltage:          29,
	AmpHours:         31,
	AmpHoursCharged:  35,
	WattHours:        39,
	WattHoursCharged: 43,
	Tachometer:       47,
	TachometerAbs:    51,
	Fault:            55,
}

// WithDefaults returns copy where every zero offset is taken from DefaultLayout.
func (l Layout) WithDefaults() Layout {
	d := DefaultLayout
	def := func(v *int, dv int) {
		if *v == 0 {
			*v = dv
		}
	}
	def(&l.Command, d.Command)
	def(&l.MinLength, d.MinLength)
	def(&l.TempFet, d.TempFet)
	def(&l.TempMotor, d.TempMotor)
	def(&l.CurrentMotor, d.CurrentMotor)
	def(&l.CurrentInput, d.CurrentInput)
	def(&l.CurrentD, d.CurrentD)
	def(&l.CurrentQ, d.CurrentQ)
	def(&l.Duty, d.Duty)
	def(&l.ERPM, d.ERPM)
	def(&l.Voltage, d.Voltage)
	def(&l.AmpHours, d.AmpHours)
	def(&l.AmpHoursCharged, d.AmpHoursCharged)
	def(&l.WattHours, d.WattHours)
	def(&l.WattHoursCharged, d.WattHoursCharged)
	def(&l.Tachometer, d.Tachometer)
	def(&l.TachometerAbs, d.TachometerAbs)
	def(&l.Fault, d.Fault)
	return l
}

type Field uint32

const (
	FieldCurrentMotor Field = 1 << iota
	FieldCurrentInput
	FieldCurrentD
	FieldCurrentQ
	FieldDuty
	FieldERPM
	FieldAmpHours
	FieldAmpHoursCharged
	FieldWattHours
	FieldWattHoursCharged
	FieldTachometer
	FieldTachometerAbs
	FieldFault
)

// Reading is immutable after Decode; a newer one supersedes it.
type Reading struct {
	FetTemperature   float32 // °C
	MotorTemperature float32 // °C
	InputVoltage     float32 // V

	// Optional, see Has()
	CurrentMotor     float32 // A
	CurrentInput     float32 // A
	CurrentD         float32 // A
	CurrentQ         float32 // A
	Duty             float32 // 0..1
	ERPM             int32
	AmpHours         float32
	AmpHoursCharged  float32
	WattHours        float32
	WattHoursCharged float32
	Tachometer       int32
	TachometerAbs    int32
	Fault            uint8

	CapturedAt time.Time
	present    Field
}

func (r Reading) Has(f Field) bool { return r.present&f != 0 }

func (r Reading) String() string {
	return fmt.Sprintf("fet=%.1fC motor=%.1fC voltage=%.1fV", r.FetTemperature, r.MotorTemperature, r.InputVoltage)
}

// Decode maps raw frame bytes to Reading. Pure function, CapturedAt is left zero.
func Decode(raw []byte, layout *Layout) (Reading, error) {
	l := DefaultLayout
	if layout != nil {
		l = layout.WithDefaults()
	}
	var r Reading
	if len(raw) > 2 && Command_t(raw[2]) == COMMAND_ALIVE && len(raw) < l.MinLength {
		return r, ErrAliveAck
	}
	if len(raw) < l.MinLength {
		return r, errors.Annotatef(ErrTooShort, "length=%d min=%d", len(raw), l.MinLength)
	}
	if int(raw[2]) != l.Command {
		return r, errors.Annotatef(ErrUnrecognized, "command=%s", Command_t(raw[2]).String())
	}

	var ok [3]bool
	r.FetTemperature, ok[0] = scaledI16(raw, l.TempFet, 10)
	r.MotorTemperature, ok[1] = scaledI16(raw, l.TempMotor, 10)
	r.InputVoltage, ok[2] = scaledI16(raw, l.Voltage, 10)
	if !(ok[0] && ok[1] && ok[2]) {
		return Reading{}, errors.Annotatef(ErrTooShort, "length=%d layout exceeds frame", len(raw))
	}

	optF := func(dst *float32, f Field, v float32, ok bool) {
		if ok {
			*dst = v
			r.present |= f
		}
	}
	optI := func(dst *int32, f Field, v int32, ok bool) {
		if ok {
			*dst = v
			r.present |= f
		}
	}
	v, has := scaledI32(raw, l.CurrentMotor, 100)
	optF(&r.CurrentMotor, FieldCurrentMotor, v, has)
	v, has = scaledI32(raw, l.CurrentInput, 100)
	optF(&r.CurrentInput, FieldCurrentInput, v, has)
	v, has = scaledI32(raw, l.CurrentD, 100)
	optF(&r.CurrentD, FieldCurrentD, v, has)
	v, has = scaledI32(raw, l.CurrentQ, 100)
	optF(&r.CurrentQ, FieldCurrentQ, v, has)
	v, has = scaledI16(raw, l.Duty, 1000)
	optF(&r.Duty, FieldDuty, v, has)
	v, has = scaledI32(raw, l.AmpHours, 10000)
	optF(&r.AmpHours, FieldAmpHours, v, has)
	v, has = scaledI32(raw, l.AmpHoursCharged, 10000)
	optF(&r.AmpHoursCharged, FieldAmpHoursCharged, v, has)
	v, has = scaledI32(raw, l.WattHours, 10000)
	optF(&r.WattHours, FieldWattHours, v, has)
	v, has = scaledI32(raw, l.WattHoursCharged, 10000)
	optF(&r.WattHoursCharged, FieldWattHoursCharged, v, has)

	i, has := readI32(raw, l.ERPM)
	optI(&r.ERPM, FieldERPM, i, has)
	i, has = readI32(raw, l.Tachometer)
	optI(&r.Tachometer, FieldTachometer, i, has)
	i, has = readI32(raw, l.TachometerAbs)
	optI(&r.TachometerAbs, FieldTachometerAbs, i, has)

	// fault byte must come before trailing CRC and STOP
	if l.Fault > 0 && l.Fault < len(raw)-3 {
		r.Fault = raw[l.Fault]
		r.present |= FieldFault
	}
	return r, nil
}

// Multi-byte fields must end before trailing CRC and STOP.
func fits(raw []byte, off, size int) bool {
	return off > 2 && off+size <= len(raw)-3
}

func scaledI16(raw []byte, off int, div float32) (float32, bool) {
	if !fits(raw, off, 2) {
		return 0, false
	}
	return float32(int16(binary.BigEndian.Uint16(raw[off:]))) / div, true
}

func readI32(raw []byte, off int) (int32, bool) {
	if !fits(raw, off, 4) {
		return 0, false
	}
	return int32(binary.BigEndian.Uint32(raw[off:])), true
}

func scaledI32(raw []byte, off int, div float32) (float32, bool) {
	i, ok := readI32(raw, off)
	return float32(i) / div, ok
}
