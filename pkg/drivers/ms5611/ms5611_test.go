package ms5611

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var datasheet = Calibration{40127, 36924, 23317, 23282, 33464, 28312}

type fakeBus struct {
	prom    Calibration
	d1, d2  uint32
	pending uint32
	cmds    []byte
	err     error
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	if b.err != nil {
		return b.err
	}
	if addr != Address {
		return errors.New("nack")
	}
	cmd := w[0]
	b.cmds = append(b.cmds, cmd)
	switch {
	case cmd == cmdReset:
	case cmd >= cmdPROM && cmd < cmdPROM+12:
		v := b.prom[(cmd-cmdPROM)/2]
		r[0], r[1] = byte(v>>8), byte(v)
	case cmd == cmdConvertD1:
		b.pending = b.d1
	case cmd == cmdConvertD2:
		b.pending = b.d2
	case cmd == cmdADCRead:
		r[0], r[1], r[2] = byte(b.pending>>16), byte(b.pending>>8), byte(b.pending)
		b.pending = 0
	}
	return nil
}

func newDevice(bus *fakeBus) (*Device, *[]time.Duration) {
	var sleeps []time.Duration
	d := New(bus)
	d.Sleep = func(t time.Duration) { sleeps = append(sleeps, t) }
	return &d, &sleeps
}

func TestCompensateDatasheet(t *testing.T) {
	p, temp := datasheet.Compensate(9085466, 8569150)
	require.Equal(t, int32(100009), p)
	require.Equal(t, int32(2007), temp)
}

func TestCompensateSecondOrder(t *testing.T) {
	p, temp := datasheet.Compensate(9085466, 7900000)
	require.Equal(t, int32(95215), p)
	require.Equal(t, int32(-457), temp)
}

func TestRead(t *testing.T) {
	bus := &fakeBus{prom: datasheet, d1: 9085466, d2: 8569150}
	d, sleeps := newDevice(bus)

	_, _, err := d.Read()
	require.Equal(t, ErrNotCalibrated, err)

	require.NoError(t, d.Configure())
	require.Equal(t, datasheet, d.Calibration())
	p, temp, err := d.Read()
	require.NoError(t, err)
	require.Equal(t, int32(100009), p)
	require.Equal(t, int32(2007), temp)
	require.Equal(t, []byte{
		cmdReset, 0xA2, 0xA4, 0xA6, 0xA8, 0xAA, 0xAC,
		cmdConvertD1, cmdADCRead, cmdConvertD2, cmdADCRead,
	}, bus.cmds)
	require.Len(t, *sleeps, 3)
	require.Equal(t, DefaultConversionTime, (*sleeps)[0])
}

func TestInvalidCalibration(t *testing.T) {
	bus := &fakeBus{prom: Calibration{0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF}}
	d, _ := newDevice(bus)
	require.Equal(t, ErrCalibration, d.Configure())
}

func TestConversionNotReady(t *testing.T) {
	bus := &fakeBus{prom: datasheet}
	d, _ := newDevice(bus)
	require.NoError(t, d.Configure())
	_, _, err := d.Read()
	require.Equal(t, ErrConversion, err)
}

func TestBusError(t *testing.T) {
	bus := &fakeBus{prom: datasheet, d1: 1, d2: 1}
	d, _ := newDevice(bus)
	require.NoError(t, d.Configure())
	bus.err = errors.New("bus stuck")
	_, _, err := d.Read()
	require.Equal(t, bus.err, err)
}
