package msgs

import (
	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/record"
)

// Stat mirrors record.Stat.
type Stat struct {
	Avg int32 `protobuf:"varint,1,opt,name=avg,proto3" json:"avg,omitempty"`
	Max int32 `protobuf:"varint,2,opt,name=max,proto3" json:"max,omitempty"`
	Min int32 `protobuf:"varint,3,opt,name=min,proto3" json:"min,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Stat) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Stat) Reset() { *m = Stat{} }

// String implements proto.Message.
func (m *Stat) String() string { return proto.CompactTextString(m) }

func statFrom(s record.Stat) *Stat {
	return &Stat{Avg: int32(s.Avg), Max: int32(s.Max), Min: int32(s.Min)}
}

func (m *Stat) record() record.Stat {
	if m == nil {
		return record.Stat{}
	}
	return record.Stat{Avg: int16(m.Avg), Max: int16(m.Max), Min: int16(m.Min)}
}

// TelemetryReport is a telemetry record persisted to a memory.
type TelemetryReport struct {
	Memory        string  `protobuf:"bytes,1,opt,name=memory,proto3" json:"memory,omitempty"`
	Address       uint32  `protobuf:"varint,2,opt,name=address,proto3" json:"address,omitempty"`
	UnixTime      uint32  `protobuf:"varint,3,opt,name=unix_time,proto3" json:"unix_time,omitempty"`
	UptimeMs      uint32  `protobuf:"varint,4,opt,name=uptime_ms,proto3" json:"uptime_ms,omitempty"`
	Pressure      uint32  `protobuf:"varint,5,opt,name=pressure,proto3" json:"pressure,omitempty"`
	Altitude      int32   `protobuf:"varint,6,opt,name=altitude,proto3" json:"altitude,omitempty"`
	VerticalSpeed *Stat   `protobuf:"bytes,7,opt,name=vertical_speed,proto3" json:"vertical_speed,omitempty"`
	Temperatures  []int32 `protobuf:"varint,8,rep,packed,name=temperatures,proto3" json:"temperatures,omitempty"`
	AccX          *Stat   `protobuf:"bytes,9,opt,name=acc_x,proto3" json:"acc_x,omitempty"`
	AccY          *Stat   `protobuf:"bytes,10,opt,name=acc_y,proto3" json:"acc_y,omitempty"`
	AccZ          *Stat   `protobuf:"bytes,11,opt,name=acc_z,proto3" json:"acc_z,omitempty"`
	Voltage       *Stat   `protobuf:"bytes,12,opt,name=voltage,proto3" json:"voltage,omitempty"`
	Current       *Stat   `protobuf:"bytes,13,opt,name=current,proto3" json:"current,omitempty"`
	Errors        uint32  `protobuf:"varint,14,opt,name=errors,proto3" json:"errors,omitempty"`
	State         uint32  `protobuf:"varint,15,opt,name=state,proto3" json:"state,omitempty"`
	SubState      uint32  `protobuf:"varint,16,opt,name=sub_state,proto3" json:"sub_state,omitempty"`
	Switches      uint32  `protobuf:"varint,17,opt,name=switches,proto3" json:"switches,omitempty"`
}

// NewTelemetryReport creates a report of rec saved at addr of mem.
func NewTelemetryReport(mem string, addr uint32, rec *record.Telemetry) *TelemetryReport {
	temps := make([]int32, len(rec.Temperatures))
	for i, t := range rec.Temperatures {
		temps[i] = int32(t)
	}
	return &TelemetryReport{
		Memory:        mem,
		Address:       addr,
		UnixTime:      rec.UnixTime,
		UptimeMs:      rec.UptimeMs,
		Pressure:      rec.Pressure,
		Altitude:      rec.Altitude,
		VerticalSpeed: statFrom(rec.VerticalSpeed),
		Temperatures:  temps,
		AccX:          statFrom(rec.AccX),
		AccY:          statFrom(rec.AccY),
		AccZ:          statFrom(rec.AccZ),
		Voltage:       statFrom(rec.Voltage),
		Current:       statFrom(rec.Current),
		Errors:        uint32(rec.Errors),
		State:         uint32(rec.State),
		SubState:      uint32(rec.SubState),
		Switches:      uint32(rec.Switches),
	}
}

// Record converts the report back to a telemetry record.
func (m *TelemetryReport) Record() record.Telemetry {
	rec := record.Telemetry{
		UnixTime:      m.UnixTime,
		UptimeMs:      m.UptimeMs,
		Pressure:      m.Pressure,
		Altitude:      m.Altitude,
		VerticalSpeed: m.VerticalSpeed.record(),
		AccX:          m.AccX.record(),
		AccY:          m.AccY.record(),
		AccZ:          m.AccZ.record(),
		Voltage:       m.Voltage.record(),
		Current:       m.Current.record(),
		Errors:        uint16(m.Errors),
		State:         uint8(m.State),
		SubState:      uint8(m.SubState),
		Switches:      uint8(m.Switches),
	}
	for i := 0; i < len(rec.Temperatures) && i < len(m.Temperatures); i++ {
		rec.Temperatures[i] = int16(m.Temperatures[i])
	}
	return rec
}

// NewMessage implements Message.
func (m *TelemetryReport) NewMessage() fx.Message { return &TelemetryReport{} }

// TypeID implements SerializableMessage.
func (m *TelemetryReport) TypeID() uint32 { return TelemetryReportTypeID }

// Serializable implements SerializableMessage.
func (m *TelemetryReport) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *TelemetryReport) ProtoMessage() {}

// Reset implements proto.Message.
func (m *TelemetryReport) Reset() { *m = TelemetryReport{} }

// String implements proto.Message.
func (m *TelemetryReport) String() string { return proto.CompactTextString(m) }

// EventReport is an accepted event.
type EventReport struct {
	UnixTime uint32 `protobuf:"varint,1,opt,name=unix_time,proto3" json:"unix_time,omitempty"`
	UptimeMs uint32 `protobuf:"varint,2,opt,name=uptime_ms,proto3" json:"uptime_ms,omitempty"`
	State    uint32 `protobuf:"varint,3,opt,name=state,proto3" json:"state,omitempty"`
	SubState uint32 `protobuf:"varint,4,opt,name=sub_state,proto3" json:"sub_state,omitempty"`
	Code     uint32 `protobuf:"varint,5,opt,name=code,proto3" json:"code,omitempty"`
	Name     string `protobuf:"bytes,6,opt,name=name,proto3" json:"name,omitempty"`
	Payload  []byte `protobuf:"bytes,7,opt,name=payload,proto3" json:"payload,omitempty"`
}

// NewEventReport creates a report of rec.
func NewEventReport(rec *record.Event) *EventReport {
	return &EventReport{
		UnixTime: rec.UnixTime,
		UptimeMs: rec.UptimeMs,
		State:    uint32(rec.State),
		SubState: uint32(rec.SubState),
		Code:     uint32(rec.Code),
		Name:     rec.Code.String(),
		Payload:  append([]byte(nil), rec.Payload[:]...),
	}
}

// Record converts the report back to an event record.
func (m *EventReport) Record() record.Event {
	rec := record.Event{
		UnixTime: m.UnixTime,
		UptimeMs: m.UptimeMs,
		State:    uint8(m.State),
		SubState: uint8(m.SubState),
		Code:     record.EventCode(m.Code),
	}
	copy(rec.Payload[:], m.Payload)
	return rec
}

// NewMessage implements Message.
func (m *EventReport) NewMessage() fx.Message { return &EventReport{} }

// TypeID implements SerializableMessage.
func (m *EventReport) TypeID() uint32 { return EventReportTypeID }

// Serializable implements SerializableMessage.
func (m *EventReport) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *EventReport) ProtoMessage() {}

// Reset implements proto.Message.
func (m *EventReport) Reset() { *m = EventReport{} }

// String implements proto.Message.
func (m *EventReport) String() string { return proto.CompactTextString(m) }

// DeviceMeta describes the flight computer. It is published retained.
type DeviceMeta struct {
	DeviceId     string `protobuf:"bytes,1,opt,name=device_id,json=deviceId,proto3" json:"device_id,omitempty"`
	Firmware     uint32 `protobuf:"varint,2,opt,name=firmware,proto3" json:"firmware,omitempty"`
	Reboots      uint32 `protobuf:"varint,3,opt,name=reboots,proto3" json:"reboots,omitempty"`
	RebootReason uint32 `protobuf:"varint,4,opt,name=reboot_reason,proto3" json:"reboot_reason,omitempty"`
	BootTime     uint32 `protobuf:"varint,5,opt,name=boot_time,proto3" json:"boot_time,omitempty"`
	Simulator    bool   `protobuf:"varint,6,opt,name=simulator,proto3" json:"simulator,omitempty"`
}

// NewMessage implements Message.
func (m *DeviceMeta) NewMessage() fx.Message { return &DeviceMeta{} }

// TypeID implements SerializableMessage.
func (m *DeviceMeta) TypeID() uint32 { return DeviceMetaTypeID }

// Serializable implements SerializableMessage.
func (m *DeviceMeta) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *DeviceMeta) ProtoMessage() {}

// Reset implements proto.Message.
func (m *DeviceMeta) Reset() { *m = DeviceMeta{} }

// String implements proto.Message.
func (m *DeviceMeta) String() string { return proto.CompactTextString(m) }

// TypeID Groups
const (
	GroupDevice    uint32 = 0x00000000
	GroupTelemetry uint32 = 0x00010000
)

// TypeIDs
const (
	DeviceMetaTypeID      uint32 = GroupDevice | TypeIDKindReport | 0x0000
	TelemetryReportTypeID uint32 = GroupTelemetry | TypeIDKindReport | 0x0000
	EventReportTypeID     uint32 = GroupTelemetry | TypeIDKindEvent | 0x0001
)
