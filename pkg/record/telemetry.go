package record

import (
	"encoding/binary"
	"errors"
)

// Serialized record sizes. They are also the address strides of the
// partitions holding the records.
const (
	TelemetrySize = 64
	EventSize     = 16
	PayloadSize   = 5
)

// Sentinel is substituted for a reading that could not be taken.
const Sentinel int16 = 32767

var (
	// ErrShortBuffer indicates the buffer can't hold a full record.
	ErrShortBuffer = errors.New("short record buffer")
)

// Stat is the per-window average and extrema of one metric.
type Stat struct {
	Avg int16 `json:"avg"`
	Max int16 `json:"max"`
	Min int16 `json:"min"`
}

// Telemetry is the summary of one accumulation window.
//
// Layout (little-endian, no implicit padding):
//
//	 0 unix_time u32      4 up_time_ms u32     8 pressure u32
//	12 altitude i32      16 vertical_speed 3xi16
//	22 temperatures 3xi16
//	28 acc_x 3xi16       34 acc_y 3xi16       40 acc_z 3xi16
//	46 voltage 3xi16     52 current 3xi16
//	58 error_flags u16   60 state u8          61 sub_state u8
//	62 switch_bits u8    63 padding
type Telemetry struct {
	UnixTime      uint32   `json:"unix_time"`
	UptimeMs      uint32   `json:"uptime_ms"`
	Pressure      uint32   `json:"pressure"`
	Altitude      int32    `json:"altitude"`
	VerticalSpeed Stat     `json:"vertical_speed"`
	Temperatures  [3]int16 `json:"temperatures"`
	AccX          Stat     `json:"acc_x"`
	AccY          Stat     `json:"acc_y"`
	AccZ          Stat     `json:"acc_z"`
	Voltage       Stat     `json:"voltage"`
	Current       Stat     `json:"current"`
	Errors        uint16   `json:"errors"`
	State         uint8    `json:"state"`
	SubState      uint8    `json:"sub_state"`
	Switches      uint8    `json:"switches"`
}

func putStat(b []byte, s Stat) {
	binary.LittleEndian.PutUint16(b[0:], uint16(s.Avg))
	binary.LittleEndian.PutUint16(b[2:], uint16(s.Max))
	binary.LittleEndian.PutUint16(b[4:], uint16(s.Min))
}

func getStat(b []byte) Stat {
	return Stat{
		Avg: int16(binary.LittleEndian.Uint16(b[0:])),
		Max: int16(binary.LittleEndian.Uint16(b[2:])),
		Min: int16(binary.LittleEndian.Uint16(b[4:])),
	}
}

// MarshalTo serializes the record into b.
func (t *Telemetry) MarshalTo(b []byte) error {
	if len(b) < TelemetrySize {
		return ErrShortBuffer
	}
	le := binary.LittleEndian
	le.PutUint32(b[0:], t.UnixTime)
	le.PutUint32(b[4:], t.UptimeMs)
	le.PutUint32(b[8:], t.Pressure)
	le.PutUint32(b[12:], uint32(t.Altitude))
	putStat(b[16:], t.VerticalSpeed)
	for i, v := range t.Temperatures {
		le.PutUint16(b[22+2*i:], uint16(v))
	}
	putStat(b[28:], t.AccX)
	putStat(b[34:], t.AccY)
	putStat(b[40:], t.AccZ)
	putStat(b[46:], t.Voltage)
	putStat(b[52:], t.Current)
	le.PutUint16(b[58:], t.Errors)
	b[60] = t.State
	b[61] = t.SubState
	b[62] = t.Switches
	b[63] = 0
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (t *Telemetry) MarshalBinary() ([]byte, error) {
	b := make([]byte, TelemetrySize)
	return b, t.MarshalTo(b)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (t *Telemetry) UnmarshalBinary(b []byte) error {
	if len(b) < TelemetrySize {
		return ErrShortBuffer
	}
	le := binary.LittleEndian
	t.UnixTime = le.Uint32(b[0:])
	t.UptimeMs = le.Uint32(b[4:])
	t.Pressure = le.Uint32(b[8:])
	t.Altitude = int32(le.Uint32(b[12:]))
	t.VerticalSpeed = getStat(b[16:])
	for i := range t.Temperatures {
		t.Temperatures[i] = int16(le.Uint16(b[22+2*i:]))
	}
	t.AccX = getStat(b[28:])
	t.AccY = getStat(b[34:])
	t.AccZ = getStat(b[40:])
	t.Voltage = getStat(b[46:])
	t.Current = getStat(b[52:])
	t.Errors = le.Uint16(b[58:])
	t.State = b[60]
	t.SubState = b[61]
	t.Switches = b[62]
	return nil
}
