package sensors

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/iris/pkg/clock"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/telemetry"
)

type signalFixture struct {
	clk    *clock.Manual
	sim    *Simulator
	acc    *telemetry.Accumulator
	events *eventRecorder
	mon    *SignalMonitor
}

func newSignalFixture() *signalFixture {
	f := &signalFixture{
		clk:    &clock.Manual{},
		acc:    telemetry.NewAccumulator(),
		events: &eventRecorder{},
	}
	f.sim = NewSimulator(f.clk)
	f.mon = NewSignalMonitor(f.clk, f.sim, f.acc, f.events)
	return f
}

func (f *signalFixture) pollAt(ms uint64) {
	f.clk.Set(ms)
	f.mon.Poll()
}

func TestSignalLevelChanges(t *testing.T) {
	f := newSignalFixture()
	f.pollAt(0)
	require.Empty(t, f.events.events)
	require.False(t, f.mon.Asserted())
	require.Zero(t, f.acc.Snapshot(telemetry.FRAM).Switches&record.SwitchSunrise)

	f.sim.SetSignal(true)
	f.pollAt(10)
	require.True(t, f.mon.Asserted())
	require.Equal(t, record.SwitchSunrise, f.acc.Snapshot(telemetry.NOR).Switches)
	require.Len(t, f.events.events, 1)
	require.Equal(t, record.EventSunriseGPIOChanged, f.events.events[0].code)
	require.Equal(t, byte(0), f.events.events[0].payload[0])

	f.pollAt(20)
	require.Len(t, f.events.events, 1)

	f.sim.SetSignal(false)
	f.pollAt(30)
	require.Len(t, f.events.events, 2)
	require.Equal(t, byte(1), f.events.events[1].payload[0])
	require.Zero(t, f.acc.Snapshot(telemetry.FRAM).Switches)
}

func TestSignalActivation(t *testing.T) {
	f := newSignalFixture()
	f.sim.SetSignal(true)
	f.pollAt(1000)
	require.Empty(t, f.events.events, "first observation")

	f.pollAt(30999)
	require.Empty(t, f.events.events)
	f.pollAt(31000)
	require.Equal(t, []record.EventCode{record.EventSunriseActivated}, f.events.codes())
	f.pollAt(90000)
	require.Len(t, f.events.events, 1, "once per assertion")

	// released and asserted again inside the holdoff
	f.sim.SetSignal(false)
	f.pollAt(100000)
	f.sim.SetSignal(true)
	f.pollAt(110000)
	f.pollAt(140000)
	require.Equal(t, []record.EventCode{
		record.EventSunriseActivated,
		record.EventSunriseGPIOChanged,
		record.EventSunriseGPIOChanged,
	}, f.events.codes())

	// a new assertion after the holdoff activates again
	f.sim.SetSignal(false)
	f.pollAt(320000)
	f.sim.SetSignal(true)
	f.pollAt(330000)
	f.pollAt(360000)
	require.Equal(t, record.EventSunriseActivated, f.events.events[len(f.events.events)-1].code)
	require.Len(t, f.events.events, 6)
}

func TestSignalShortPulse(t *testing.T) {
	f := newSignalFixture()
	f.pollAt(0)
	f.sim.SetSignal(true)
	f.pollAt(1000)
	f.sim.SetSignal(false)
	f.pollAt(20000)
	f.sim.SetSignal(true)
	f.pollAt(25000)
	f.pollAt(50000)
	require.Equal(t, []record.EventCode{
		record.EventSunriseGPIOChanged,
		record.EventSunriseGPIOChanged,
		record.EventSunriseGPIOChanged,
	}, f.events.codes())
	f.pollAt(55000)
	require.Equal(t, record.EventSunriseActivated, f.events.events[3].code)
}

func TestSignalSwitchSurvivesWindowReset(t *testing.T) {
	f := newSignalFixture()
	f.pollAt(0)
	f.sim.SetSignal(true)
	f.pollAt(10)
	f.acc.Reset(telemetry.NOR)
	require.Zero(t, f.acc.Snapshot(telemetry.NOR).Switches)

	f.pollAt(20)
	require.Equal(t, record.SwitchSunrise, f.acc.Snapshot(telemetry.NOR).Switches)
	require.Equal(t, record.SwitchSunrise, f.acc.Snapshot(telemetry.FRAM).Switches)
	require.Len(t, f.events.events, 1)
}
