package tele

import (
	"github.com/temoto/vesctel/hardware/vesc"
	"github.com/temoto/vesctel/internal/link"
	"github.com/temoto/vesctel/internal/supervisor"
	tele_api "github.com/temoto/vesctel/tele"
)

func StateFrom(s supervisor.State) tele_api.State {
	switch s {
	case supervisor.StateIdle:
		return tele_api.State_Idle
	case supervisor.StateConnecting:
		return tele_api.State_Connecting
	case supervisor.StateConnected:
		return tele_api.State_Connected
	case supervisor.StateReconnecting:
		return tele_api.State_Reconnecting
	default:
		return tele_api.State_Invalid
	}
}

// FromSnapshot builds uplink message. Optional fields absent from reading stay zero.
func FromSnapshot(s supervisor.Snapshot) *tele_api.Telemetry {
	tm := &tele_api.Telemetry{
		Time:  s.At.UnixNano(),
		State: StateFrom(s.State),
		Error: s.Error,
		Stat:  statFrom(s.Stat),
	}
	if s.Target != nil {
		tm.Peer = s.Target.Address
	}
	if s.Reading != nil {
		tm.Reading = readingFrom(s.Reading)
	}
	return tm
}

func readingFrom(r *vesc.Reading) *tele_api.Telemetry_Reading {
	tr := &tele_api.Telemetry_Reading{
		FetTemperature:   r.FetTemperature,
		MotorTemperature: r.MotorTemperature,
		InputVoltage:     r.InputVoltage,
		CapturedAt:       r.CapturedAt.UnixNano(),
	}
	if r.Has(vesc.FieldCurrentMotor) {
		tr.CurrentMotor = r.CurrentMotor
	}
	if r.Has(vesc.FieldCurrentInput) {
		tr.CurrentIn = r.CurrentInput
	}
	if r.Has(vesc.FieldDuty) {
		tr.DutyCycle = r.Duty
	}
	if r.Has(vesc.FieldERPM) {
		tr.Rpm = r.ERPM
	}
	if r.Has(vesc.FieldAmpHours) {
		tr.AmpHours = r.AmpHours
	}
	if r.Has(vesc.FieldAmpHoursCharged) {
		tr.AmpHoursCharged = r.AmpHoursCharged
	}
	if r.Has(vesc.FieldWattHours) {
		tr.WattHours = r.WattHours
	}
	if r.Has(vesc.FieldWattHoursCharged) {
		tr.WattHoursCharged = r.WattHoursCharged
	}
	if r.Has(vesc.FieldTachometer) {
		tr.Tachometer = r.Tachometer
	}
	if r.Has(vesc.FieldTachometerAbs) {
		tr.TachometerAbs = r.TachometerAbs
	}
	if r.Has(vesc.FieldFault) {
		tr.Fault = uint32(r.Fault)
	}
	return tr
}

func statFrom(s link.Stat) *tele_api.Telemetry_Stat {
	return &tele_api.Telemetry_Stat{
		Frames:       s.Parser.Frames,
		Garbage:      s.Parser.Garbage,
		Resync:       s.Parser.Resync,
		CrcError:     s.Parser.CRCError,
		Overflow:     s.Parser.Overflow,
		Readings:     s.Readings,
		AliveAcks:    s.AliveAcks,
		TooShort:     s.TooShort,
		Unrecognized: s.Unrecognized,
		Dropped:      s.Dropped,
		Sent:         s.Sent,
		SendErrors:   s.SendErrors,
	}
}
