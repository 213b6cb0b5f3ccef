package sensors

import (
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/adxl345"

	"github.com/robotalks/iris/pkg/drivers/ina226"
	"github.com/robotalks/iris/pkg/drivers/ms5611"
	"github.com/robotalks/iris/pkg/drivers/tmp75"
	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/record"
)

// ThermometerAddresses are the TMP75 probes: outside, payload box and
// battery.
var ThermometerAddresses = [3]uint16{0x48, 0x49, 0x4A}

// trapBus records the first failed transfer. The adxl345 driver drops
// bus errors.
type trapBus struct {
	drivers.I2C
	err error
}

func (b *trapBus) Tx(addr uint16, w, r []byte) error {
	err := b.I2C.Tx(addr, w, r)
	if err != nil && b.err == nil {
		b.err = err
	}
	return err
}

func (b *trapBus) take() error {
	err := b.err
	b.err = nil
	return err
}

// I2CSensors binds the flight sensors on a single I2C bus.
type I2CSensors struct {
	Baro   ms5611.Device
	Acc    adxl345.Device
	Power  ina226.Device
	Probes [3]tmp75.Device

	PowerConfig ina226.Config

	accBus *trapBus
}

// NewI2CSensors creates the devices at their default addresses. Call
// ResetBus to configure them.
func NewI2CSensors(bus drivers.I2C) *I2CSensors {
	s := &I2CSensors{
		Baro:   ms5611.New(bus),
		Power:  ina226.New(bus),
		accBus: &trapBus{I2C: bus},
	}
	s.Acc = adxl345.New(s.accBus)
	for i, addr := range ThermometerAddresses {
		s.Probes[i] = tmp75.New(bus)
		s.Probes[i].Address = addr
	}
	return s
}

// ResetBus implements BusResetter by configuring every device again.
func (s *I2CSensors) ResetBus() error {
	var errs fx.AggregatedError
	errs.Add(s.Baro.Configure())
	s.accBus.take()
	s.Acc.Configure()
	s.Acc.SetRange(adxl345.RANGE_16G)
	errs.Add(s.accBus.take())
	errs.Add(s.Power.Configure(s.PowerConfig))
	for i := range s.Probes {
		errs.Add(s.Probes[i].Configure())
	}
	return errs.Aggregate()
}

// ReadPressureAndTemperature implements Barometer.
func (s *I2CSensors) ReadPressureAndTemperature() (uint32, int32, error) {
	p, t, err := s.Baro.Read()
	if err != nil {
		return 0, 0, err
	}
	if p < 0 {
		p = 0
	}
	return uint32(p), t, nil
}

// ReadAccelerations implements Accelerometer.
func (s *I2CSensors) ReadAccelerations() (x, y, z int16, err error) {
	s.accBus.take()
	ax, ay, az, _ := s.Acc.ReadAcceleration()
	if err = s.accBus.take(); err != nil {
		return 0, 0, 0, err
	}
	return int16(ax), int16(ay), int16(az), nil
}

// ReadPower implements PowerMonitor.
func (s *I2CSensors) ReadPower() (voltage, current int16, err error) {
	mv, err := s.Power.BusVoltage()
	if err != nil {
		return 0, 0, err
	}
	if current, err = s.Power.Current(); err != nil {
		return 0, 0, err
	}
	return int16(mv / 10), current, nil
}

// ReadTemperatures implements Thermometers.
func (s *I2CSensors) ReadTemperatures() ([3]int16, error) {
	var temps [3]int16
	var errs fx.AggregatedError
	for i := range s.Probes {
		t, err := s.Probes[i].ReadTemperature()
		if err != nil {
			t = record.Sentinel
			errs.Add(err)
		}
		temps[i] = t
	}
	return temps, errs.Aggregate()
}
