package sensors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers/tester"

	"github.com/robotalks/iris/pkg/drivers/ina226"
	"github.com/robotalks/iris/pkg/drivers/ms5611"
	"github.com/robotalks/iris/pkg/record"
)

// fakeBaro answers the MS5611 command protocol with the datasheet
// calibration.
type fakeBaro struct {
	prom    [6]uint16
	d1, d2  uint32
	pending uint32
	err     error
}

func (b *fakeBaro) Tx(w, r []byte) error {
	if b.err != nil {
		return b.err
	}
	switch cmd := w[0]; {
	case cmd >= 0xA2 && cmd < 0xAE:
		v := b.prom[(cmd-0xA2)/2]
		r[0], r[1] = byte(v>>8), byte(v)
	case cmd == 0x48:
		b.pending = b.d1
	case cmd == 0x58:
		b.pending = b.d2
	case cmd == 0x00:
		r[0], r[1], r[2] = byte(b.pending>>16), byte(b.pending>>8), byte(b.pending)
	}
	return nil
}

// muxBus routes the barometer to fakeBaro and everything else to the
// register based tester bus.
type muxBus struct {
	baro *fakeBaro
	bus  *tester.I2CBus
}

func (m *muxBus) Tx(addr uint16, w, r []byte) error {
	if addr == ms5611.Address {
		return m.baro.Tx(w, r)
	}
	return m.bus.Tx(addr, w, r)
}

type i2cFixture struct {
	sensors *I2CSensors
	baro    *fakeBaro
	acc     *tester.I2CDevice8
	power   *tester.I2CDevice16
	probes  [3]*tester.I2CDevice8
}

func newI2CFixture(t *testing.T) *i2cFixture {
	f := &i2cFixture{
		baro: &fakeBaro{
			prom: [6]uint16{40127, 36924, 23317, 23282, 33464, 28312},
			d1:   9085466,
			d2:   8569150,
		},
	}
	bus := tester.NewI2CBus(t)
	f.acc = bus.NewDevice(0x53)
	f.power = tester.NewI2CDevice16(t, ina226.Address)
	f.power.Registers = map[uint8]uint16{
		ina226.RegConfig:         0x4127,
		ina226.RegBusVoltage:     5920,
		ina226.RegCurrent:        180,
		ina226.RegCalibration:    0,
		ina226.RegMaskEnable:     0,
		ina226.RegManufacturerID: ina226.ManufacturerID,
	}
	bus.AddDevice(f.power)
	for i, addr := range ThermometerAddresses {
		f.probes[i] = bus.NewDevice(uint8(addr))
	}
	f.sensors = NewI2CSensors(&muxBus{baro: f.baro, bus: bus})
	f.sensors.Baro.Sleep = func(time.Duration) {}
	return f
}

func TestI2CSensorsReset(t *testing.T) {
	f := newI2CFixture(t)
	require.NoError(t, f.sensors.ResetBus())
	require.Equal(t, uint8(0x03), f.acc.Registers[0x31]&0x03)
	require.NotZero(t, f.acc.Registers[0x2D]&0x08, "measure mode")
	require.Equal(t, uint16(ina226.DefaultCalibration), f.power.Registers[ina226.RegCalibration])
	for _, p := range f.probes {
		require.Equal(t, uint8(0x60), p.Registers[1])
	}

	f.probes[1].Err = errors.New("nack")
	require.Error(t, f.sensors.ResetBus())
}

func TestI2CSensorsRead(t *testing.T) {
	f := newI2CFixture(t)
	require.NoError(t, f.sensors.ResetBus())

	p, temp, err := f.sensors.ReadPressureAndTemperature()
	require.NoError(t, err)
	require.Equal(t, uint32(100009), p)
	require.Equal(t, int32(2007), temp)

	copy(f.acc.Registers[0x32:], []byte{0x1F, 0x00, 0xFE, 0xFF, 0xE1, 0xFF})
	x, y, z, err := f.sensors.ReadAccelerations()
	require.NoError(t, err)
	require.Equal(t, []int16{992, -64, -992}, []int16{x, y, z})

	v, c, err := f.sensors.ReadPower()
	require.NoError(t, err)
	require.Equal(t, int16(740), v)
	require.Equal(t, int16(180), c)

	for i, raw := range [][]byte{{0x19, 0x00}, {0xE7, 0x00}, {0x32, 0x10}} {
		copy(f.probes[i].Registers[0:], raw)
	}
	temps, err := f.sensors.ReadTemperatures()
	require.NoError(t, err)
	require.Equal(t, [3]int16{250, -250, 500}, temps)
}

func TestI2CSensorsReadErrors(t *testing.T) {
	f := newI2CFixture(t)
	require.NoError(t, f.sensors.ResetBus())
	nack := errors.New("nack")

	f.acc.Err = nack
	_, _, _, err := f.sensors.ReadAccelerations()
	require.Equal(t, nack, err)
	f.acc.Err = nil
	_, _, _, err = f.sensors.ReadAccelerations()
	require.NoError(t, err)

	f.power.Err = nack
	_, _, err = f.sensors.ReadPower()
	require.Equal(t, nack, err)

	f.baro.err = nack
	_, _, err = f.sensors.ReadPressureAndTemperature()
	require.Equal(t, nack, err)

	copy(f.probes[0].Registers[0:], []byte{0x19, 0x00})
	copy(f.probes[2].Registers[0:], []byte{0x19, 0x00})
	f.probes[1].Err = nack
	temps, err := f.sensors.ReadTemperatures()
	require.Equal(t, nack, err)
	require.Equal(t, [3]int16{250, record.Sentinel, 250}, temps)
}
