package record

import "encoding/binary"

// Event is a discrete timestamped occurrence.
//
// Layout: unix_time u32, up_time_ms u32, state u8, sub_state u8,
// event_code u8, payload 5xu8.
type Event struct {
	UnixTime uint32            `json:"unix_time"`
	UptimeMs uint32            `json:"uptime_ms"`
	State    uint8             `json:"state"`
	SubState uint8             `json:"sub_state"`
	Code     EventCode         `json:"code"`
	Payload  [PayloadSize]byte `json:"payload"`
}

// MarshalTo serializes the record into b.
func (e *Event) MarshalTo(b []byte) error {
	if len(b) < EventSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(b[0:], e.UnixTime)
	binary.LittleEndian.PutUint32(b[4:], e.UptimeMs)
	b[8] = e.State
	b[9] = e.SubState
	b[10] = uint8(e.Code)
	copy(b[11:EventSize], e.Payload[:])
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e *Event) MarshalBinary() ([]byte, error) {
	b := make([]byte, EventSize)
	return b, e.MarshalTo(b)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *Event) UnmarshalBinary(b []byte) error {
	if len(b) < EventSize {
		return ErrShortBuffer
	}
	e.UnixTime = binary.LittleEndian.Uint32(b[0:])
	e.UptimeMs = binary.LittleEndian.Uint32(b[4:])
	e.State = b[8]
	e.SubState = b[9]
	e.Code = EventCode(b[10])
	copy(e.Payload[:], b[11:EventSize])
	return nil
}
