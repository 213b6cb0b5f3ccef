package config

import (
	"encoding/binary"
	"errors"

	"github.com/golang/glog"

	"github.com/robotalks/iris/pkg/storage"
)

// Register identification.
const (
	Magic           uint16 = 0xBABE
	Version         uint16 = 3
	FirmwareVersion uint8  = 3
	RegisterSize           = 40
)

var (
	// ErrBadMagic indicates the register was never written or is corrupt.
	ErrBadMagic = errors.New("configuration magic mismatch")
	// ErrVersion indicates a register written by another layout version.
	ErrVersion = errors.New("configuration version mismatch")
)

// CursorID names one of the persisted write cursors.
type CursorID int

// Cursors
const (
	FRAMTelemetryCursor CursorID = iota
	FRAMEventCursor
	NORTelemetryCursor
	NOREventCursor
	NumCursors
)

var cursorNames = [NumCursors]string{"fram_telemetry", "fram_event", "nor_telemetry", "nor_event"}

func (id CursorID) String() string {
	if id >= 0 && id < NumCursors {
		return cursorNames[id]
	}
	return "unknown"
}

// Register is the state that survives a reset.
//
// Layout (little-endian):
//
//	 0 magic u16          2 version u16        4 reboots u16
//	 6 reboot_reason u16  8 nor_tlm_period u16 10 fram_tlm_period u16
//	12 baro_period u16   14 temp_period u16   16 power_period u16
//	18 acc_period u16    20 cursors 4xu32
//	36 nor_device u8     37 flight_state u8   38 flight_sub_state u8
//	39 simulator u8
type Register struct {
	Magic        uint16
	Version      uint16
	Reboots      uint16
	RebootReason uint16

	// Save periods in seconds.
	NORTelemetryPeriod  uint16
	FRAMTelemetryPeriod uint16
	// Read periods in milliseconds.
	BarometerPeriod     uint16
	TemperaturePeriod   uint16
	PowerPeriod         uint16
	AccelerometerPeriod uint16

	Cursors [NumCursors]uint32

	NORDevice      uint8
	FlightState    uint8
	FlightSubState uint8
	Simulator      uint8
}

const (
	offCursors     = 20
	offFlightState = 37
)

// MarshalTo serializes the register into b.
func (r *Register) MarshalTo(b []byte) {
	le := binary.LittleEndian
	le.PutUint16(b[0:], r.Magic)
	le.PutUint16(b[2:], r.Version)
	le.PutUint16(b[4:], r.Reboots)
	le.PutUint16(b[6:], r.RebootReason)
	le.PutUint16(b[8:], r.NORTelemetryPeriod)
	le.PutUint16(b[10:], r.FRAMTelemetryPeriod)
	le.PutUint16(b[12:], r.BarometerPeriod)
	le.PutUint16(b[14:], r.TemperaturePeriod)
	le.PutUint16(b[16:], r.PowerPeriod)
	le.PutUint16(b[18:], r.AccelerometerPeriod)
	for i, c := range r.Cursors {
		le.PutUint32(b[offCursors+4*i:], c)
	}
	b[36] = r.NORDevice
	b[37] = r.FlightState
	b[38] = r.FlightSubState
	b[39] = r.Simulator
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Magic and
// version are checked before any other field is decoded.
func (r *Register) UnmarshalBinary(b []byte) error {
	if len(b) < RegisterSize {
		return errors.New("short configuration register")
	}
	le := binary.LittleEndian
	if le.Uint16(b[0:]) != Magic {
		return ErrBadMagic
	}
	if le.Uint16(b[2:]) != Version {
		return ErrVersion
	}
	r.Magic = Magic
	r.Version = Version
	r.Reboots = le.Uint16(b[4:])
	r.RebootReason = le.Uint16(b[6:])
	r.NORTelemetryPeriod = le.Uint16(b[8:])
	r.FRAMTelemetryPeriod = le.Uint16(b[10:])
	r.BarometerPeriod = le.Uint16(b[12:])
	r.TemperaturePeriod = le.Uint16(b[14:])
	r.PowerPeriod = le.Uint16(b[16:])
	r.AccelerometerPeriod = le.Uint16(b[18:])
	for i := range r.Cursors {
		r.Cursors[i] = le.Uint32(b[offCursors+4*i:])
	}
	r.NORDevice = b[36]
	r.FlightState = b[37]
	r.FlightSubState = b[38]
	r.Simulator = b[39]
	return nil
}

// Store keeps the Register in a byte store, writing changes through.
type Store struct {
	Mem  storage.ByteStore
	Base uint32
	Reg  Register
	// Trusted is false when the persisted register was unusable and
	// defaults were applied.
	Trusted bool
}

// Load reads the register at base. When magic or version don't match,
// defaults are applied, persisted, and the store is marked untrusted.
func Load(mem storage.ByteStore, base uint32, defaults Register) (*Store, error) {
	s := &Store{Mem: mem, Base: base}
	buf := make([]byte, RegisterSize)
	if err := mem.ReadAt(base, buf); err != nil {
		return nil, err
	}
	err := s.Reg.UnmarshalBinary(buf)
	if err == nil {
		s.Trusted = true
		return s, nil
	}
	glog.Warningf("configuration register not trusted: %v, applying defaults", err)
	s.Reg = defaults
	s.Reg.Magic, s.Reg.Version = Magic, Version
	return s, s.Save()
}

// Save writes the whole register.
func (s *Store) Save() error {
	buf := make([]byte, RegisterSize)
	s.Reg.MarshalTo(buf)
	return s.Mem.WriteAt(s.Base, buf)
}

// NoteBoot counts a reboot and records its reason.
func (s *Store) NoteBoot(reason uint16) error {
	s.Reg.Reboots++
	s.Reg.RebootReason = reason
	return s.Save()
}

// FlightState returns the persisted flight state and sub state.
func (s *Store) FlightState() (uint8, uint8) {
	return s.Reg.FlightState, s.Reg.FlightSubState
}

// SetFlightState persists a new flight state.
func (s *Store) SetFlightState(state, sub uint8) error {
	s.Reg.FlightState, s.Reg.FlightSubState = state, sub
	return s.Mem.WriteAt(s.Base+offFlightState, []byte{state, sub})
}

// Cursor returns the persisted cursor id as a storage.Cursor.
func (s *Store) Cursor(id CursorID) storage.Cursor {
	return &cursorRef{store: s, id: id}
}

type cursorRef struct {
	store *Store
	id    CursorID
}

func (c *cursorRef) Load() uint32 {
	return c.store.Reg.Cursors[c.id]
}

// Store writes only the 4 bytes of the cursor. The cursor is left
// unchanged when the write fails.
func (c *cursorRef) Store(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	if err := c.store.Mem.WriteAt(c.store.Base+offCursors+4*uint32(c.id), b[:]); err != nil {
		return err
	}
	c.store.Reg.Cursors[c.id] = v
	return nil
}
