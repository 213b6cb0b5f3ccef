// Package tmp75 provides a driver for the TMP75 temperature sensor over
// I2C, configured for 12-bit resolution.
package tmp75

import "tinygo.org/x/drivers"

// Address with A0..A2 tied to ground.
const Address = 0x48

const (
	regTemperature = 0x00
	regConfig      = 0x01

	config12Bit = 0x60
)

// Device wraps an I2C connection to a TMP75 device.
type Device struct {
	bus     drivers.I2C
	Address uint16
}

// New creates a new TMP75 connection. The I2C bus must already be
// configured. This function only creates the Device object; it does not
// touch the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: Address,
	}
}

// Configure selects 12-bit continuous conversion.
func (d *Device) Configure() error {
	return d.bus.Tx(d.Address, []byte{regConfig, config12Bit}, nil)
}

// ReadTemperature returns the temperature in tenths of a degree Celsius.
func (d *Device) ReadTemperature() (int16, error) {
	data := []byte{0, 0}
	if err := d.bus.Tx(d.Address, []byte{regTemperature}, data); err != nil {
		return 0, err
	}
	raw := int16(uint16(data[0])<<8|uint16(data[1])) >> 4
	return int16(int32(raw) * 10 / 16), nil
}
