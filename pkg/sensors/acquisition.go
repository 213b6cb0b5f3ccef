package sensors

import (
	"github.com/golang/glog"

	"github.com/robotalks/iris/pkg/clock"
	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/telemetry"
)

// Periods are the read periods in milliseconds.
type Periods struct {
	Barometer     uint32 `yaml:"barometer"`
	Temperature   uint32 `yaml:"temperature"`
	Power         uint32 `yaml:"power"`
	Accelerometer uint32 `yaml:"accelerometer"`
}

// DefaultPeriods are the read periods of the reference hardware.
var DefaultPeriods = Periods{
	Barometer:     1000,
	Temperature:   1000,
	Power:         100,
	Accelerometer: 100,
}

func (p Periods) of(id ID) uint32 {
	switch id {
	case SensorBarometer:
		return p.Barometer
	case SensorAccelerometer:
		return p.Accelerometer
	case SensorPower:
		return p.Power
	case SensorTemperature:
		return p.Temperature
	}
	return 0
}

// Readings are the latest values read from the sensors.
type Readings struct {
	Pressure      uint32
	BaroTemp      int32
	Acceleration  [3]int16
	Voltage       int16
	Current       int16
	Temperatures  [3]int16
	VerticalSpeed int32
	Altitude      int32
	Failures      [numSensors]uint32
	LastError     [numSensors]error
}

// Acquisition reads every attached sensor once its period elapsed. Any
// sensor may be nil.
type Acquisition struct {
	Clock         clock.Clock
	Accumulator   *telemetry.Accumulator
	Events        EventLogger
	Barometer     Barometer
	Accelerometer Accelerometer
	Power         PowerMonitor
	Thermometers  Thermometers
	Bus           BusResetter
	Periods       Periods

	Latest Readings

	last    [numSensors]uint64
	started [numSensors]bool
}

// NewAcquisition creates an Acquisition with the default periods.
func NewAcquisition(clk clock.Clock, acc *telemetry.Accumulator, events EventLogger) *Acquisition {
	return &Acquisition{
		Clock:       clk,
		Accumulator: acc,
		Events:      events,
		Periods:     DefaultPeriods,
	}
}

func (a *Acquisition) due(id ID, now uint64) bool {
	if a.started[id] && now-a.last[id] < uint64(a.Periods.of(id)) {
		return false
	}
	a.started[id], a.last[id] = true, now
	return true
}

// Tick reads the sensors that are due. Failures are handled here:
// sentinel values, the sensor error flag, an I2C_ERROR_RESET event and a
// bus reset. The returned error only reports them.
func (a *Acquisition) Tick() error {
	now := a.Clock.UptimeMs()
	var errs fx.AggregatedError
	if a.Barometer != nil && a.due(SensorBarometer, now) {
		errs.Add(a.readBarometer(now))
	}
	if a.Accelerometer != nil && a.due(SensorAccelerometer, now) {
		errs.Add(a.readAccelerometer())
	}
	if a.Power != nil && a.due(SensorPower, now) {
		errs.Add(a.readPower())
	}
	if a.Thermometers != nil && a.due(SensorTemperature, now) {
		errs.Add(a.readTemperatures())
	}
	return errs.Aggregate()
}

// Control implements framework.Controller.
func (a *Acquisition) Control(fx.ControlContext) error {
	a.Tick()
	return nil
}

// AddToLoop implements framework.LoopAdder.
func (a *Acquisition) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvSense, a)
}

func (a *Acquisition) readBarometer(now uint64) error {
	p, temp, err := a.Barometer.ReadPressureAndTemperature()
	if err != nil {
		a.Accumulator.SetPressure(uint32(record.Sentinel))
		a.Accumulator.SetAltitude(int32(record.Sentinel))
		return a.fail(SensorBarometer, err)
	}
	a.Accumulator.RecordBarometer(now, p)
	a.Latest.Pressure, a.Latest.BaroTemp = p, temp
	a.Latest.Altitude = a.Accumulator.Altitude()
	a.Latest.VerticalSpeed = a.Accumulator.CurrentVerticalSpeed()
	return nil
}

// Failed accelerometer and power reads are not averaged in; a window
// without any valid sample carries Sentinel.
func (a *Acquisition) readAccelerometer() error {
	x, y, z, err := a.Accelerometer.ReadAccelerations()
	if err != nil {
		a.Accumulator.MarkUnavailable(telemetry.AccX)
		a.Accumulator.MarkUnavailable(telemetry.AccY)
		a.Accumulator.MarkUnavailable(telemetry.AccZ)
		return a.fail(SensorAccelerometer, err)
	}
	a.Accumulator.RecordSample(telemetry.AccX, int32(x))
	a.Accumulator.RecordSample(telemetry.AccY, int32(y))
	a.Accumulator.RecordSample(telemetry.AccZ, int32(z))
	a.Latest.Acceleration = [3]int16{x, y, z}
	return nil
}

func (a *Acquisition) readPower() error {
	v, c, err := a.Power.ReadPower()
	if err != nil {
		a.Accumulator.MarkUnavailable(telemetry.Voltage)
		a.Accumulator.MarkUnavailable(telemetry.Current)
		return a.fail(SensorPower, err)
	}
	a.Accumulator.RecordSample(telemetry.Voltage, int32(v))
	a.Accumulator.RecordSample(telemetry.Current, int32(c))
	a.Latest.Voltage, a.Latest.Current = v, c
	return nil
}

func (a *Acquisition) readTemperatures() error {
	temps, err := a.Thermometers.ReadTemperatures()
	a.Accumulator.SetTemperatures(temps)
	a.Latest.Temperatures = temps
	if err != nil {
		return a.fail(SensorTemperature, err)
	}
	return nil
}

func (a *Acquisition) fail(id ID, err error) error {
	rerr := &ReadError{Sensor: id, Err: err}
	glog.Warning(rerr)
	a.Latest.Failures[id]++
	a.Latest.LastError[id] = err
	a.Accumulator.RaiseErrors(id.Flag())
	if a.Events != nil {
		if err := a.Events.LogEvent(record.EventI2CErrorReset, [record.PayloadSize]byte{byte(id)}); err != nil {
			glog.Warningf("i2c error event: %v", err)
		}
	}
	if a.Bus != nil {
		if err := a.Bus.ResetBus(); err != nil {
			glog.Warningf("bus reset: %v", err)
		}
	}
	return rerr
}
