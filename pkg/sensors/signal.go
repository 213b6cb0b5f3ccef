package sensors

import (
	"github.com/golang/glog"

	"github.com/robotalks/iris/pkg/clock"
	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/telemetry"
)

// Sunrise signal defaults in milliseconds.
const (
	DefaultHoldTime = 30000
	DefaultHoldoff  = 300000
)

// SignalMonitor watches the active low sunrise line. Level changes are
// logged as SUNRISE_GPIO_CHANGED and mirrored in the telemetry switches.
// Holding the line asserted for HoldTime logs SUNRISE_ACTIVATED, at
// most once per Holdoff.
type SignalMonitor struct {
	Clock       clock.Clock
	Signal      DigitalSignal
	Accumulator *telemetry.Accumulator
	Events      EventLogger
	HoldTime    uint64
	Holdoff     uint64

	observed    bool
	level       bool
	assertedAt  uint64
	fired       bool
	activatedAt uint64
	activated   bool
}

// NewSignalMonitor creates a SignalMonitor with the default timings.
func NewSignalMonitor(clk clock.Clock, sig DigitalSignal, acc *telemetry.Accumulator, events EventLogger) *SignalMonitor {
	return &SignalMonitor{
		Clock:       clk,
		Signal:      sig,
		Accumulator: acc,
		Events:      events,
		HoldTime:    DefaultHoldTime,
		Holdoff:     DefaultHoldoff,
	}
}

// Asserted reports whether the line was low at the last poll.
func (m *SignalMonitor) Asserted() bool {
	return m.observed && !m.level
}

// Poll samples the line once.
func (m *SignalMonitor) Poll() {
	now := m.Clock.UptimeMs()
	level := m.Signal.ReadSignal()
	if !m.observed || level != m.level {
		if m.observed {
			var payload [record.PayloadSize]byte
			if level {
				payload[0] = 1
			}
			m.log(record.EventSunriseGPIOChanged, payload)
		}
		m.observed, m.level = true, level
		m.assertedAt, m.fired = now, false
	}
	// windows are reset after each flush, the bit is set again every poll
	if m.Accumulator != nil {
		m.Accumulator.SetSwitch(record.SwitchSunrise, !level)
	}
	if level || m.fired || now-m.assertedAt < m.HoldTime {
		return
	}
	m.fired = true
	if m.activated && now-m.activatedAt < m.Holdoff {
		return
	}
	m.activated, m.activatedAt = true, now
	m.log(record.EventSunriseActivated, [record.PayloadSize]byte{})
}

func (m *SignalMonitor) log(code record.EventCode, payload [record.PayloadSize]byte) {
	if m.Events == nil {
		return
	}
	if err := m.Events.LogEvent(code, payload); err != nil {
		glog.Warningf("%s event: %v", code, err)
	}
}

// Control implements framework.Controller.
func (m *SignalMonitor) Control(fx.ControlContext) error {
	m.Poll()
	return nil
}

// AddToLoop implements framework.LoopAdder.
func (m *SignalMonitor) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvSense, m)
}
