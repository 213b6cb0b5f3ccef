// Package sensors samples the flight computer sensors, each on its own
// period, and feeds the readings into the telemetry accumulator.
package sensors

import (
	"fmt"

	"github.com/robotalks/iris/pkg/record"
)

// Barometer reads pressure (Pa) and temperature (hundredths of °C).
type Barometer interface {
	ReadPressureAndTemperature() (pressure uint32, temperature int32, err error)
}

// Accelerometer reads the three axes in milli-g.
type Accelerometer interface {
	ReadAccelerations() (x, y, z int16, err error)
}

// PowerMonitor reads the supply voltage (10 mV units) and current (mA).
type PowerMonitor interface {
	ReadPower() (voltage, current int16, err error)
}

// Thermometers read the ambient temperatures in tenths of °C. A probe
// that fails reports record.Sentinel and makes the error non-nil.
type Thermometers interface {
	ReadTemperatures() ([3]int16, error)
}

// DigitalSignal reads the level of an input line.
type DigitalSignal interface {
	ReadSignal() bool
}

// BusResetter reinitializes the sensor bus after a read failure.
type BusResetter interface {
	ResetBus() error
}

// EventLogger records events.
type EventLogger interface {
	LogEvent(code record.EventCode, payload [record.PayloadSize]byte) error
}

// ID identifies a sensor in error events.
type ID uint8

// Sensors
const (
	SensorBarometer ID = iota
	SensorAccelerometer
	SensorPower
	SensorTemperature
	numSensors
)

var sensorNames = [numSensors]string{"barometer", "accelerometer", "power", "temperature"}

func (id ID) String() string {
	if id < numSensors {
		return sensorNames[id]
	}
	return fmt.Sprintf("sensor%d", uint8(id))
}

// Flag is the telemetry error bit of the sensor.
func (id ID) Flag() uint16 {
	switch id {
	case SensorBarometer:
		return record.ErrorBarometer
	case SensorAccelerometer:
		return record.ErrorAccelerometer
	case SensorPower:
		return record.ErrorPower
	case SensorTemperature:
		return record.ErrorTemperature
	}
	return 0
}

// ReadError reports a failed sensor read.
type ReadError struct {
	Sensor ID
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s read error: %v", e.Sensor, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}
