package sensors

import (
	"errors"
	"math"
	"sync"

	"github.com/robotalks/iris/pkg/clock"
	"github.com/robotalks/iris/pkg/record"
)

// ErrSimulated is returned by a Simulator sensor set to fail.
var ErrSimulated = errors.New("simulated sensor failure")

// FlightProfile describes a simulated balloon flight. Altitudes are in
// cm and rates in cm/s.
type FlightProfile struct {
	LaunchAfter uint64 `yaml:"launch-after"` // ms of uptime
	Ground      int32  `yaml:"ground"`
	Burst       int32  `yaml:"burst"`
	ClimbRate   int32  `yaml:"climb-rate"`
	DescentRate int32  `yaml:"descent-rate"`
}

// DefaultFlightProfile climbs to 30 km at 5 m/s a minute after boot.
var DefaultFlightProfile = FlightProfile{
	LaunchAfter: 60000,
	Burst:       3000000,
	ClimbRate:   500,
	DescentRate: 800,
}

// Altitude is the profile altitude at uptime ms.
func (p FlightProfile) Altitude(ms uint64) int32 {
	if ms <= p.LaunchAfter || p.ClimbRate <= 0 {
		return p.Ground
	}
	t := int64(ms - p.LaunchAfter)
	climbMs := int64(p.Burst-p.Ground) * 1000 / int64(p.ClimbRate)
	if t < climbMs {
		return p.Ground + int32(t*int64(p.ClimbRate)/1000)
	}
	alt := int64(p.Burst) - (t-climbMs)*int64(p.DescentRate)/1000
	if alt < int64(p.Ground) {
		return p.Ground
	}
	return int32(alt)
}

// PressureAt is the standard atmosphere pressure in Pa at alt cm.
func PressureAt(alt int32) uint32 {
	h := float64(alt)
	var p float64
	switch {
	case alt <= 1100000:
		p = 101325 * math.Pow(1-h/4433080, 1/0.190163)
	case alt <= 2500000:
		p = 22552 * math.Exp((1100000-h)/633828.2)
	default:
		p = 2481 * math.Pow((2500000-h)/3333080+1, 1/0.190163)
	}
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	return uint32(math.Round(p))
}

// TemperatureAt is the standard atmosphere temperature in hundredths of
// °C at alt cm.
func TemperatureAt(alt int32) int32 {
	t := 1500 - int64(alt)*650/100000
	if t < -5650 {
		t = -5650
	}
	return int32(t)
}

// Simulator provides every sensor from a flight profile. It stands in
// for the hardware on a development host.
type Simulator struct {
	Clock   clock.Clock
	Profile FlightProfile
	// Voltage in 10 mV units and Current in mA.
	Voltage int16
	Current int16

	lock   sync.Mutex
	fail   [numSensors]bool
	probes [3]bool
	low    bool
	resets int
}

// NewSimulator creates a Simulator flying the default profile.
func NewSimulator(clk clock.Clock) *Simulator {
	return &Simulator{
		Clock:   clk,
		Profile: DefaultFlightProfile,
		Voltage: 740,
		Current: 180,
	}
}

// SetFailure makes the sensor fail until cleared.
func (s *Simulator) SetFailure(id ID, fail bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if id < numSensors {
		s.fail[id] = fail
	}
}

// SetProbeFailure makes a single temperature probe fail.
func (s *Simulator) SetProbeFailure(probe int, fail bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if probe >= 0 && probe < len(s.probes) {
		s.probes[probe] = fail
	}
}

// SetSignal drives the simulated sunrise line; low is asserted.
func (s *Simulator) SetSignal(low bool) {
	s.lock.Lock()
	s.low = low
	s.lock.Unlock()
}

// Resets is the number of bus resets requested.
func (s *Simulator) Resets() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.resets
}

func (s *Simulator) failing(id ID) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.fail[id]
}

func (s *Simulator) altitude() int32 {
	return s.Profile.Altitude(s.Clock.UptimeMs())
}

// ReadPressureAndTemperature implements Barometer.
func (s *Simulator) ReadPressureAndTemperature() (uint32, int32, error) {
	if s.failing(SensorBarometer) {
		return 0, 0, ErrSimulated
	}
	alt := s.altitude()
	return PressureAt(alt), TemperatureAt(alt), nil
}

// ReadAccelerations implements Accelerometer. The payload swings
// slightly under the balloon.
func (s *Simulator) ReadAccelerations() (x, y, z int16, err error) {
	if s.failing(SensorAccelerometer) {
		return 0, 0, 0, ErrSimulated
	}
	phase := float64(s.Clock.UptimeMs()%4000) / 4000 * 2 * math.Pi
	x = int16(math.Round(40 * math.Sin(phase)))
	y = int16(math.Round(25 * math.Cos(phase)))
	z = -1000
	return
}

// ReadPower implements PowerMonitor.
func (s *Simulator) ReadPower() (voltage, current int16, err error) {
	if s.failing(SensorPower) {
		return 0, 0, ErrSimulated
	}
	return s.Voltage, s.Current, nil
}

// ReadTemperatures implements Thermometers. The probes read the outside
// air, the inside of the payload box and the battery.
func (s *Simulator) ReadTemperatures() ([3]int16, error) {
	outside := int16(TemperatureAt(s.altitude()) / 10)
	temps := [3]int16{outside, outside/4 + 150, outside/8 + 100}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.fail[SensorTemperature] {
		return [3]int16{record.Sentinel, record.Sentinel, record.Sentinel}, ErrSimulated
	}
	var err error
	for i, failed := range s.probes {
		if failed {
			temps[i], err = record.Sentinel, ErrSimulated
		}
	}
	return temps, err
}

// ReadSignal implements DigitalSignal.
func (s *Simulator) ReadSignal() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return !s.low
}

// ResetBus implements BusResetter.
func (s *Simulator) ResetBus() error {
	s.lock.Lock()
	s.resets++
	s.lock.Unlock()
	return nil
}
