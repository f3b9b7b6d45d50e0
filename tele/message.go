package tele

// Wire messages, field numbers and names match tele.proto.
// Marshaled by golang/protobuf reflection on struct tags.

import (
	proto "github.com/golang/protobuf/proto"
)

type State int32

const (
	State_Invalid      State = 0
	State_Boot         State = 1
	State_Idle         State = 2
	State_Connecting   State = 3
	State_Connected    State = 4
	State_Reconnecting State = 5
	State_Disconnected State = 6
)

var State_name = map[int32]string{
	0: "Invalid",
	1: "Boot",
	2: "Idle",
	3: "Connecting",
	4: "Connected",
	5: "Reconnecting",
	6: "Disconnected",
}

var State_value = map[string]int32{
	"Invalid":      0,
	"Boot":         1,
	"Idle":         2,
	"Connecting":   3,
	"Connected":    4,
	"Reconnecting": 5,
	"Disconnected": 6,
}

func (x State) String() string { return proto.EnumName(State_name, int32(x)) }

type Command_Kind int32

const (
	Command_Invalid    Command_Kind = 0
	Command_Scan       Command_Kind = 1
	Command_Select     Command_Kind = 2
	Command_Now        Command_Kind = 3
	Command_Disconnect Command_Kind = 4
	Command_Cancel     Command_Kind = 5
	Command_Retry      Command_Kind = 6
	Command_Report     Command_Kind = 7
)

var Command_Kind_name = map[int32]string{
	0: "Invalid",
	1: "Scan",
	2: "Select",
	3: "Now",
	4: "Disconnect",
	5: "Cancel",
	6: "Retry",
	7: "Report",
}

var Command_Kind_value = map[string]int32{
	"Invalid":    0,
	"Scan":       1,
	"Select":     2,
	"Now":        3,
	"Disconnect": 4,
	"Cancel":     5,
	"Retry":      6,
	"Report":     7,
}

func (x Command_Kind) String() string { return proto.EnumName(Command_Kind_name, int32(x)) }

type Telemetry struct {
	ClientId             string             `protobuf:"bytes,1,opt,name=client_id,json=clientId,proto3" json:"client_id,omitempty"`
	Time                 int64              `protobuf:"varint,2,opt,name=time,proto3" json:"time,omitempty"`
	State                State              `protobuf:"varint,3,opt,name=state,proto3,enum=tele.State" json:"state,omitempty"`
	Peer                 string             `protobuf:"bytes,4,opt,name=peer,proto3" json:"peer,omitempty"`
	Reading              *Telemetry_Reading `protobuf:"bytes,5,opt,name=reading,proto3" json:"reading,omitempty"`
	Stat                 *Telemetry_Stat    `protobuf:"bytes,6,opt,name=stat,proto3" json:"stat,omitempty"`
	Error                string             `protobuf:"bytes,7,opt,name=error,proto3" json:"error,omitempty"`
	XXX_NoUnkeyedLiteral struct{}           `json:"-"`
	XXX_unrecognized     []byte             `json:"-"`
	XXX_sizecache        int32              `json:"-"`
}

func (m *Telemetry) Reset()         { *m = Telemetry{} }
func (m *Telemetry) String() string { return proto.CompactTextString(m) }
func (*Telemetry) ProtoMessage()    {}

func (m *Telemetry) GetReading() *Telemetry_Reading {
	if m != nil {
		return m.Reading
	}
	return nil
}

func (m *Telemetry) GetStat() *Telemetry_Stat {
	if m != nil {
		return m.Stat
	}
	return nil
}

type Telemetry_Reading struct {
	FetTemperature       float32  `protobuf:"fixed32,1,opt,name=fet_temperature,json=fetTemperature,proto3" json:"fet_temperature,omitempty"`
	MotorTemperature     float32  `protobuf:"fixed32,2,opt,name=motor_temperature,json=motorTemperature,proto3" json:"motor_temperature,omitempty"`
	InputVoltage         float32  `protobuf:"fixed32,3,opt,name=input_voltage,json=inputVoltage,proto3" json:"input_voltage,omitempty"`
	CurrentMotor         float32  `protobuf:"fixed32,4,opt,name=current_motor,json=currentMotor,proto3" json:"current_motor,omitempty"`
	CurrentIn            float32  `protobuf:"fixed32,5,opt,name=current_in,json=currentIn,proto3" json:"current_in,omitempty"`
	DutyCycle            float32  `protobuf:"fixed32,6,opt,name=duty_cycle,json=dutyCycle,proto3" json:"duty_cycle,omitempty"`
	Rpm                  int32    `protobuf:"varint,7,opt,name=rpm,proto3" json:"rpm,omitempty"`
	AmpHours             float32  `protobuf:"fixed32,8,opt,name=amp_hours,json=ampHours,proto3" json:"amp_hours,omitempty"`
	AmpHoursCharged      float32  `protobuf:"fixed32,9,opt,name=amp_hours_charged,json=ampHoursCharged,proto3" json:"amp_hours_charged,omitempty"`
	WattHours            float32  `protobuf:"fixed32,10,opt,name=watt_hours,json=wattHours,proto3" json:"watt_hours,omitempty"`
	WattHoursCharged     float32  `protobuf:"fixed32,11,opt,name=watt_hours_charged,json=wattHoursCharged,proto3" json:"watt_hours_charged,omitempty"`
	Tachometer           int32    `protobuf:"varint,12,opt,name=tachometer,proto3" json:"tachometer,omitempty"`
	TachometerAbs        int32    `protobuf:"varint,13,opt,name=tachometer_abs,json=tachometerAbs,proto3" json:"tachometer_abs,omitempty"`
	Fault                uint32   `protobuf:"varint,14,opt,name=fault,proto3" json:"fault,omitempty"`
	CapturedAt           int64    `protobuf:"varint,15,opt,name=captured_at,json=capturedAt,proto3" json:"captured_at,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *Telemetry_Reading) Reset()         { *m = Telemetry_Reading{} }
func (m *Telemetry_Reading) String() string { return proto.CompactTextString(m) }
func (*Telemetry_Reading) ProtoMessage()    {}

type Telemetry_Stat struct {
	Frames               uint32   `protobuf:"varint,1,opt,name=frames,proto3" json:"frames,omitempty"`
	Garbage              uint32   `protobuf:"varint,2,opt,name=garbage,proto3" json:"garbage,omitempty"`
	Resync               uint32   `protobuf:"varint,3,opt,name=resync,proto3" json:"resync,omitempty"`
	CrcError             uint32   `protobuf:"varint,4,opt,name=crc_error,json=crcError,proto3" json:"crc_error,omitempty"`
	Overflow             uint32   `protobuf:"varint,5,opt,name=overflow,proto3" json:"overflow,omitempty"`
	Readings             uint32   `protobuf:"varint,6,opt,name=readings,proto3" json:"readings,omitempty"`
	AliveAcks            uint32   `protobuf:"varint,7,opt,name=alive_acks,json=aliveAcks,proto3" json:"alive_acks,omitempty"`
	TooShort             uint32   `protobuf:"varint,8,opt,name=too_short,json=tooShort,proto3" json:"too_short,omitempty"`
	Unrecognized         uint32   `protobuf:"varint,9,opt,name=unrecognized,proto3" json:"unrecognized,omitempty"`
	Dropped              uint32   `protobuf:"varint,10,opt,name=dropped,proto3" json:"dropped,omitempty"`
	Sent                 uint32   `protobuf:"varint,11,opt,name=sent,proto3" json:"sent,omitempty"`
	SendErrors           uint32   `protobuf:"varint,12,opt,name=send_errors,json=sendErrors,proto3" json:"send_errors,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *Telemetry_Stat) Reset()         { *m = Telemetry_Stat{} }
func (m *Telemetry_Stat) String() string { return proto.CompactTextString(m) }
func (*Telemetry_Stat) ProtoMessage()    {}

type Command struct {
	Id                   uint32       `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Kind                 Command_Kind `protobuf:"varint,2,opt,name=kind,proto3,enum=tele.Command_Kind" json:"kind,omitempty"`
	Index                int32        `protobuf:"varint,3,opt,name=index,proto3" json:"index,omitempty"`
	XXX_NoUnkeyedLiteral struct{}     `json:"-"`
	XXX_unrecognized     []byte       `json:"-"`
	XXX_sizecache        int32        `json:"-"`
}

func (m *Command) Reset()         { *m = Command{} }
func (m *Command) String() string { return proto.CompactTextString(m) }
func (*Command) ProtoMessage()    {}

func init() {
	proto.RegisterEnum("tele.State", State_name, State_value)
	proto.RegisterEnum("tele.Command_Kind", Command_Kind_name, Command_Kind_value)
	proto.RegisterType((*Telemetry)(nil), "tele.Telemetry")
	proto.RegisterType((*Telemetry_Reading)(nil), "tele.Telemetry.Reading")
	proto.RegisterType((*Telemetry_Stat)(nil), "tele.Telemetry.Stat")
	proto.RegisterType((*Command)(nil), "tele.Command")
}
