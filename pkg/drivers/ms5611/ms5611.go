// Package ms5611 provides a driver for the MS5611 barometric pressure
// sensor over I2C.
//
// A reading issues two conversions (pressure D1, temperature D2) at the
// highest oversampling ratio, each followed by ConversionTime, then
// applies the first and second order compensation of the datasheet.
package ms5611

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// Address is the I2C address with CSB low.
const Address = 0x77

const (
	cmdReset     = 0x1E
	cmdConvertD1 = 0x48 // OSR 4096
	cmdConvertD2 = 0x58 // OSR 4096
	cmdADCRead   = 0x00
	cmdPROM      = 0xA2 // C1, C2..C6 follow every 2 addresses
)

// DefaultConversionTime covers the 8.22 ms conversion at OSR 4096.
const DefaultConversionTime = 9 * time.Millisecond

// Errors returned by the driver.
var (
	ErrNotCalibrated = errors.New("ms5611: calibration not loaded")
	ErrCalibration   = errors.New("ms5611: invalid calibration data")
	ErrConversion    = errors.New("ms5611: conversion not ready")
)

// Calibration holds the factory coefficients C1..C6.
type Calibration [6]uint16

// Device wraps an I2C connection to an MS5611 device.
type Device struct {
	bus     drivers.I2C
	Address uint16
	// ConversionTime is waited after each conversion command.
	ConversionTime time.Duration
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)

	cal        Calibration
	calibrated bool
	buf        [3]byte
}

// New creates a new MS5611 connection. The I2C bus must already be
// configured. This function only creates the Device object; it does not
// touch the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:            bus,
		Address:        Address,
		ConversionTime: DefaultConversionTime,
	}
}

func (d *Device) sleep(t time.Duration) {
	if d.Sleep != nil {
		d.Sleep(t)
	} else {
		time.Sleep(t)
	}
}

// Configure resets the device and loads its calibration.
func (d *Device) Configure() error {
	d.calibrated = false
	if err := d.bus.Tx(d.Address, []byte{cmdReset}, nil); err != nil {
		return err
	}
	d.sleep(d.ConversionTime)
	var cal Calibration
	for i := range cal {
		data := d.buf[:2]
		if err := d.bus.Tx(d.Address, []byte{cmdPROM + byte(2*i)}, data); err != nil {
			return err
		}
		cal[i] = uint16(data[0])<<8 | uint16(data[1])
	}
	for _, c := range cal {
		if c != 0 && c != 0xFFFF {
			d.cal, d.calibrated = cal, true
			return nil
		}
	}
	return ErrCalibration
}

// Calibration returns the loaded coefficients.
func (d *Device) Calibration() Calibration {
	return d.cal
}

func (d *Device) convert(cmd byte) (uint32, error) {
	if err := d.bus.Tx(d.Address, []byte{cmd}, nil); err != nil {
		return 0, err
	}
	d.sleep(d.ConversionTime)
	data := d.buf[:3]
	if err := d.bus.Tx(d.Address, []byte{cmdADCRead}, data); err != nil {
		return 0, err
	}
	v := uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
	if v == 0 {
		// the ADC reads 0 when it is read before the conversion ends
		return 0, ErrConversion
	}
	return v, nil
}

// ReadRaw runs both conversions and returns the raw D1 and D2 values.
func (d *Device) ReadRaw() (d1, d2 uint32, err error) {
	if !d.calibrated {
		return 0, 0, ErrNotCalibrated
	}
	if d1, err = d.convert(cmdConvertD1); err != nil {
		return
	}
	d2, err = d.convert(cmdConvertD2)
	return
}

// Read returns the compensated pressure in Pa (hundredths of mbar) and
// temperature in hundredths of a degree Celsius.
func (d *Device) Read() (pressure, temperature int32, err error) {
	d1, d2, err := d.ReadRaw()
	if err != nil {
		return 0, 0, err
	}
	pressure, temperature = d.cal.Compensate(d1, d2)
	return pressure, temperature, nil
}

// Compensate converts raw conversions into pressure (Pa) and temperature
// (hundredths of a degree), with second order compensation below 20 °C.
func (c Calibration) Compensate(d1, d2 uint32) (pressure, temperature int32) {
	dT := int64(d2) - int64(c[4])*256
	temp := 2000 + dT*int64(c[5])/(1<<23)
	off := int64(c[1])*(1<<16) + int64(c[3])*dT/(1<<7)
	sens := int64(c[0])*(1<<15) + int64(c[2])*dT/(1<<8)
	if temp < 2000 {
		t2 := dT * dT / (1 << 31)
		d := (temp - 2000) * (temp - 2000)
		off2 := 5 * d / 2
		sens2 := 5 * d / 4
		if temp < -1500 {
			d = (temp + 1500) * (temp + 1500)
			off2 += 7 * d
			sens2 += 11 * d / 2
		}
		temp -= t2
		off -= off2
		sens -= sens2
	}
	p := (int64(d1)*sens/(1<<21) - off) / (1 << 15)
	return int32(p), int32(temp)
}
