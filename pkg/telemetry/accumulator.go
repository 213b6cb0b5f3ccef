// Package telemetry aggregates sensor samples into the summary records
// persisted by the data logger.
package telemetry

import (
	"math"

	"github.com/robotalks/iris/pkg/record"
)

// Instance selects one of the two accumulation windows.
type Instance int

// Instances, one per destination memory.
const (
	FRAM Instance = iota
	NOR
	NumInstances
)

func (i Instance) String() string {
	switch i {
	case FRAM:
		return "fram"
	case NOR:
		return "nor"
	}
	return "unknown"
}

// Metric is a sensor quantity aggregated with mean/min/max.
type Metric int

// Metrics
const (
	VerticalSpeed Metric = iota
	AccX
	AccY
	AccZ
	Voltage
	Current
	numMetrics
)

type window struct {
	rec   record.Telemetry
	count [numMetrics]uint32
	mean  [numMetrics]float64
}

func (w *window) stat(m Metric) *record.Stat {
	switch m {
	case VerticalSpeed:
		return &w.rec.VerticalSpeed
	case AccX:
		return &w.rec.AccX
	case AccY:
		return &w.rec.AccY
	case AccZ:
		return &w.rec.AccZ
	case Voltage:
		return &w.rec.Voltage
	case Current:
		return &w.rec.Current
	}
	return nil
}

// Accumulator builds one telemetry record per Instance from the same
// sample stream. Each instance is reset on its own schedule.
type Accumulator struct {
	windows [NumInstances]window
	ring    altitudeRing

	pressure      uint32
	altitude      int32
	verticalSpeed int32
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

func clamp16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// RecordSample adds value to metric m of every instance.
func (a *Accumulator) RecordSample(m Metric, value int32) {
	if m < 0 || m >= numMetrics {
		return
	}
	v := float64(value)
	for i := range a.windows {
		w := &a.windows[i]
		s := w.stat(m)
		if w.count[m] == 0 {
			*s = record.Stat{Avg: 0, Max: math.MinInt16, Min: math.MaxInt16}
			w.mean[m] = 0
		}
		w.count[m]++
		w.mean[m] += (v - w.mean[m]) / float64(w.count[m])
		s.Avg = clamp16(math.Round(w.mean[m]))
		if c := clamp16(v); c > s.Max {
			s.Max = c
		}
		if c := clamp16(v); c < s.Min {
			s.Min = c
		}
	}
}

// MarkUnavailable fills metric m with Sentinel in every window holding
// no sample of m yet. A later valid sample replaces it.
func (a *Accumulator) MarkUnavailable(m Metric) {
	if m < 0 || m >= numMetrics {
		return
	}
	for i := range a.windows {
		w := &a.windows[i]
		if w.count[m] == 0 {
			*w.stat(m) = record.Stat{Avg: record.Sentinel, Max: record.Sentinel, Min: record.Sentinel}
		}
	}
}

// Count is the number of samples of m in the instance window.
func (a *Accumulator) Count(inst Instance, m Metric) uint32 {
	return a.windows[inst].count[m]
}

// Mean is the unrounded running mean of m in the instance window.
func (a *Accumulator) Mean(inst Instance, m Metric) float64 {
	return a.windows[inst].mean[m]
}

// SetPressure sets the latest pressure reading of every instance.
func (a *Accumulator) SetPressure(p uint32) {
	a.pressure = p
	for i := range a.windows {
		a.windows[i].rec.Pressure = p
	}
}

// SetAltitude sets the latest altitude of every instance.
func (a *Accumulator) SetAltitude(alt int32) {
	a.altitude = alt
	for i := range a.windows {
		a.windows[i].rec.Altitude = alt
	}
}

// SetTemperatures sets the latest temperature readings.
func (a *Accumulator) SetTemperatures(temps [3]int16) {
	for i := range a.windows {
		a.windows[i].rec.Temperatures = temps
	}
}

// SetSwitch sets or clears switch bits.
func (a *Accumulator) SetSwitch(bits uint8, on bool) {
	for i := range a.windows {
		if on {
			a.windows[i].rec.Switches |= bits
		} else {
			a.windows[i].rec.Switches &^= bits
		}
	}
}

// RaiseErrors ors flags into the error bits of every instance.
func (a *Accumulator) RaiseErrors(flags uint16) {
	for i := range a.windows {
		a.windows[i].rec.Errors |= flags
	}
}

// RecordBarometer runs one barometer cycle: it derives the altitude from
// pressure, stores the sample in the altitude history and feeds the
// resulting vertical speed as a sample.
func (a *Accumulator) RecordBarometer(uptimeMs uint64, pressure uint32) {
	alt := AltitudeFromPressure(pressure)
	a.SetPressure(pressure)
	a.SetAltitude(alt)
	// ring times are int32 ms and wrap after about 24.8 days of uptime;
	// vertical speed reads 0 from then on
	a.ring.add(int32(uptimeMs), alt)
	a.verticalSpeed = a.ComputeVerticalSpeed(uptimeMs)
	a.RecordSample(VerticalSpeed, a.verticalSpeed)
}

// Pressure is the latest pressure.
func (a *Accumulator) Pressure() uint32 { return a.pressure }

// Altitude is the latest altitude in cm.
func (a *Accumulator) Altitude() int32 { return a.altitude }

// CurrentVerticalSpeed is the latest vertical speed in cm/s.
func (a *Accumulator) CurrentVerticalSpeed() int32 { return a.verticalSpeed }

// Snapshot copies the record being built by inst.
func (a *Accumulator) Snapshot(inst Instance) record.Telemetry {
	return a.windows[inst].rec
}

// Reset starts a new window for inst: the record and the sample
// counters are zeroed.
func (a *Accumulator) Reset(inst Instance) {
	a.windows[inst] = window{}
}
