// Package ina226 provides a driver for the INA226 current and power
// monitor over I2C.
package ina226

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Address with A0 and A1 tied to ground.
const Address = 0x40

// Registers
const (
	RegConfig         = 0x00
	RegShuntVoltage   = 0x01
	RegBusVoltage     = 0x02
	RegPower          = 0x03
	RegCurrent        = 0x04
	RegCalibration    = 0x05
	RegMaskEnable     = 0x06
	RegManufacturerID = 0xFE
)

// ManufacturerID is the content of RegManufacturerID ("TI").
const ManufacturerID = 0x5449

// Defaults for a 2 mΩ shunt with a 1 mA current LSB: 64 sample average,
// 2.116 ms conversions, continuous shunt and bus, conversion ready alert.
const (
	DefaultConfig      = 0x476F
	DefaultCalibration = 0x0A00
	DefaultMask        = 0x0800
)

// ErrUnknownDevice is returned when the manufacturer id doesn't match.
var ErrUnknownDevice = errors.New("ina226: unknown device")

// Config holds the register values written by Configure.
type Config struct {
	Config      uint16
	Calibration uint16
	Mask        uint16
}

// Device wraps an I2C connection to an INA226 device.
type Device struct {
	bus     drivers.I2C
	Address uint16
}

// New creates a new INA226 connection. The I2C bus must already be
// configured. This function only creates the Device object; it does not
// touch the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: Address,
	}
}

// Configure checks the device identity and writes cfg. Zero fields take
// the defaults.
func (d *Device) Configure(cfg Config) error {
	id, err := d.ReadRegister(RegManufacturerID)
	if err != nil {
		return err
	}
	if id != ManufacturerID {
		return ErrUnknownDevice
	}
	if cfg.Config == 0 {
		cfg.Config = DefaultConfig
	}
	if cfg.Calibration == 0 {
		cfg.Calibration = DefaultCalibration
	}
	if cfg.Mask == 0 {
		cfg.Mask = DefaultMask
	}
	if err := d.WriteRegister(RegConfig, cfg.Config); err != nil {
		return err
	}
	if err := d.WriteRegister(RegCalibration, cfg.Calibration); err != nil {
		return err
	}
	return d.WriteRegister(RegMaskEnable, cfg.Mask)
}

// ReadRegister reads a 16-bit register.
func (d *Device) ReadRegister(reg uint8) (uint16, error) {
	data := []byte{0, 0}
	if err := d.bus.Tx(d.Address, []byte{reg}, data); err != nil {
		return 0, err
	}
	return uint16(data[0])<<8 | uint16(data[1]), nil
}

// WriteRegister writes a 16-bit register.
func (d *Device) WriteRegister(reg uint8, v uint16) error {
	return d.bus.Tx(d.Address, []byte{reg, byte(v >> 8), byte(v)}, nil)
}

// BusVoltage returns the bus voltage in mV (1.25 mV per LSB).
func (d *Device) BusVoltage() (int32, error) {
	v, err := d.ReadRegister(RegBusVoltage)
	if err != nil {
		return 0, err
	}
	return int32(v) * 125 / 100, nil
}

// Current returns the current in units of the calibrated LSB (mA with
// the default calibration).
func (d *Device) Current() (int16, error) {
	v, err := d.ReadRegister(RegCurrent)
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}
