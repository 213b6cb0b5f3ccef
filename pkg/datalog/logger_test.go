package datalog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/iris/pkg/clock"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/storage"
	"github.com/robotalks/iris/pkg/storage/nor"
	"github.com/robotalks/iris/pkg/telemetry"
)

const epoch = 1600000000

var (
	framTlm = storage.Partition{Name: "telemetry", Base: 0x100, Size: 8 * record.TelemetrySize, Stride: record.TelemetrySize}
	framEvt = storage.Partition{Name: "events", Base: 0x400, Size: 4 * record.EventSize, Stride: record.EventSize}
	norTlm  = storage.Partition{Name: "telemetry", Base: 0, Size: 64 * record.TelemetrySize, Stride: record.TelemetrySize}
	norEvt  = storage.Partition{Name: "events", Base: nor.SectorSize, Size: 16 * record.EventSize, Stride: record.EventSize}
)

type flightState struct{ state, sub uint8 }

func (s *flightState) FlightState() (uint8, uint8) { return s.state, s.sub }

type flakyStore struct {
	storage.ByteStore
	err error
}

func (s *flakyStore) WriteAt(addr uint32, data []byte) error {
	if s.err != nil {
		return s.err
	}
	return s.ByteStore.WriteAt(addr, data)
}

type recorder struct {
	tlm    []record.Telemetry
	mems   []telemetry.Instance
	events []record.Event
}

func (r *recorder) TelemetrySaved(mem telemetry.Instance, addr uint32, rec *record.Telemetry) {
	r.mems = append(r.mems, mem)
	r.tlm = append(r.tlm, *rec)
}

func (r *recorder) EventSaved(rec *record.Event) {
	r.events = append(r.events, *rec)
}

type fixture struct {
	clk   *clock.Manual
	acc   *telemetry.Accumulator
	fram  *flakyStore
	sim   *nor.Sim
	flash *nor.Store
	state *flightState
	obs   *recorder
	log   *Logger

	cursors [4]storage.MemCursor
}

func newFixture() *fixture {
	f := &fixture{
		clk:   &clock.Manual{Epoch: epoch},
		acc:   telemetry.NewAccumulator(),
		fram:  &flakyStore{ByteStore: storage.NewMem(0x800, 0)},
		sim:   nor.NewSim(3 * nor.SectorSize),
		state: &flightState{state: uint8(record.StateTimelapse), sub: 1},
		obs:   &recorder{},
	}
	f.flash = nor.NewStore(f.sim, 3*nor.SectorSize)
	f.flash.Sleep = func(time.Duration) {}
	f.cursors = [4]storage.MemCursor{
		storage.MemCursor(framTlm.Base),
		storage.MemCursor(framEvt.Base),
		storage.MemCursor(norTlm.Base),
		storage.MemCursor(norEvt.Base),
	}
	fram := NewMemory(f.fram, framTlm, framEvt, &f.cursors[0], &f.cursors[1])
	nm := NewMemory(f.flash, norTlm, norEvt, &f.cursors[2], &f.cursors[3])
	f.log = NewLogger(f.clk, f.acc, f.state, fram, nm).AddObserver(f.obs)
	return f
}

func (f *fixture) at(sec uint64) {
	f.clk.Set(sec * 1000)
}

func TestFlushAveragesWindow(t *testing.T) {
	f := newFixture()
	f.log.Periods = [telemetry.NumInstances]uint32{10, 10}

	require.NoError(t, f.log.FlushIfDue())
	for i, v := range []int32{100, 200, 300} {
		f.at(uint64(i + 1))
		f.acc.RecordSample(telemetry.Voltage, v)
		require.NoError(t, f.log.FlushIfDue())
	}
	require.Zero(t, f.log.Memories[telemetry.FRAM].Telemetry.Len())

	f.at(10)
	require.NoError(t, f.log.FlushIfDue())
	for _, mem := range []telemetry.Instance{telemetry.FRAM, telemetry.NOR} {
		rec, addr, err := f.log.ReadTelemetry(mem, 0)
		require.NoError(t, err)
		require.Equal(t, f.log.Memories[mem].Telemetry.Partition.Base, addr)
		require.Equal(t, record.Stat{Avg: 200, Max: 300, Min: 100}, rec.Voltage)
		require.Equal(t, uint32(epoch+10), rec.UnixTime)
		require.Equal(t, uint32(10000), rec.UptimeMs)
		require.Equal(t, uint8(record.StateTimelapse), rec.State)
		require.Equal(t, uint8(1), rec.SubState)
		require.Zero(t, f.acc.Count(mem, telemetry.Voltage))
		require.Equal(t, uint32(10), f.log.LastFlush(mem))
	}
	require.Equal(t, []telemetry.Instance{telemetry.FRAM, telemetry.NOR}, f.obs.mems)
	require.Equal(t, uint32(framTlm.Base+record.TelemetrySize), f.cursors[0].Load())
	require.Equal(t, uint32(norTlm.Base+record.TelemetrySize), f.cursors[2].Load())
}

func TestFlushPeriodsAreIndependent(t *testing.T) {
	f := newFixture()
	f.log.Periods = [telemetry.NumInstances]uint32{30, 10}
	f.acc.RecordSample(telemetry.Current, 50)

	f.at(10)
	require.NoError(t, f.log.FlushIfDue())
	require.Zero(t, f.acc.Count(telemetry.NOR, telemetry.Current))
	require.Equal(t, uint32(1), f.acc.Count(telemetry.FRAM, telemetry.Current))
	require.Equal(t, uint32(1), f.log.Memories[telemetry.NOR].Telemetry.Len())
	require.Zero(t, f.log.Memories[telemetry.FRAM].Telemetry.Len())

	f.at(30)
	require.NoError(t, f.log.FlushIfDue())
	require.Equal(t, uint32(1), f.log.Memories[telemetry.FRAM].Telemetry.Len())
	require.Equal(t, uint32(2), f.log.Memories[telemetry.NOR].Telemetry.Len())
}

func TestFailedFlushKeepsWindow(t *testing.T) {
	f := newFixture()
	f.log.Periods = [telemetry.NumInstances]uint32{10, 10}
	f.fram.err = errors.New("bus error")
	f.acc.RecordSample(telemetry.Voltage, 100)

	err := f.log.MaybeFlush(telemetry.FRAM, 10)
	require.Error(t, err)
	require.Equal(t, uint32(10), f.log.LastFlush(telemetry.FRAM))
	require.Equal(t, uint32(1), f.acc.Count(telemetry.FRAM, telemetry.Voltage))
	require.Equal(t, uint32(framTlm.Base), f.cursors[0].Load())
	c := f.log.Counters(telemetry.FRAM)
	require.Equal(t, uint32(1), c.FlushErrors)
	require.Equal(t, uint32(1), c.IOErrors)
	require.NotZero(t, f.acc.Snapshot(telemetry.FRAM).Errors&record.ErrorFRAMWrite)

	f.fram.err = nil
	f.acc.RecordSample(telemetry.Voltage, 300)
	require.NoError(t, f.log.MaybeFlush(telemetry.FRAM, 15))
	require.Zero(t, f.log.Memories[telemetry.FRAM].Telemetry.Len())
	require.NoError(t, f.log.MaybeFlush(telemetry.FRAM, 20))
	rec, _, err := f.log.ReadTelemetry(telemetry.FRAM, 0)
	require.NoError(t, err)
	require.Equal(t, record.Stat{Avg: 200, Max: 300, Min: 100}, rec.Voltage)
	require.NotZero(t, rec.Errors&record.ErrorFRAMWrite)
	require.Zero(t, f.acc.Snapshot(telemetry.FRAM).Errors)
}

func TestLogEventDedup(t *testing.T) {
	f := newFixture()
	var payload [record.PayloadSize]byte

	require.NoError(t, f.log.LogEvent(record.EventCameraOn, payload))
	require.NoError(t, f.log.LogEvent(record.EventCameraOn, payload))
	f.at(4)
	require.NoError(t, f.log.LogEvent(record.EventCameraOn, payload))
	require.Equal(t, uint32(1), f.log.Memories[telemetry.FRAM].Events.Len())
	require.Equal(t, uint32(1), f.log.Memories[telemetry.NOR].Events.Len())
	require.Equal(t, uint32(2), f.log.Deduplicated())

	f.at(5)
	require.NoError(t, f.log.LogEvent(record.EventCameraOn, payload))
	require.Equal(t, uint32(2), f.log.Memories[telemetry.FRAM].Events.Len())

	require.NoError(t, f.log.LogEvent(record.EventCameraOff, payload))
	require.Equal(t, uint32(3), f.log.Memories[telemetry.NOR].Events.Len())
	require.Len(t, f.obs.events, 3)

	evt, addr, err := f.log.ReadEvent(telemetry.NOR, 2)
	require.NoError(t, err)
	require.Equal(t, norEvt.Base+2*record.EventSize, addr)
	require.Equal(t, record.EventCameraOff, evt.Code)
	require.Equal(t, uint32(epoch+5), evt.UnixTime)
	require.Equal(t, uint8(record.StateTimelapse), evt.State)
}

func TestFRAMExemptEvent(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.log.LogEvent(record.EventTimelapsePicture, [record.PayloadSize]byte{}))
	require.Zero(t, f.log.Memories[telemetry.FRAM].Events.Len())
	require.Equal(t, uint32(1), f.log.Memories[telemetry.NOR].Events.Len())
	require.Len(t, f.obs.events, 1)
}

func TestNORBusyDoesNotBlockFRAM(t *testing.T) {
	f := newFixture()
	f.sim.ErasePolls = 1000
	require.NoError(t, f.log.EraseNORSector(2))

	err := f.log.LogEvent(record.EventStateChanged, [record.PayloadSize]byte{3})
	require.True(t, errors.Is(err, storage.ErrBusy))
	require.Equal(t, uint32(1), f.log.Memories[telemetry.FRAM].Events.Len())
	require.Zero(t, f.log.Memories[telemetry.NOR].Events.Len())
	require.Equal(t, uint32(1), f.log.Counters(telemetry.NOR).Busy)
	require.Len(t, f.obs.events, 1)
	require.NotZero(t, f.acc.Snapshot(telemetry.FRAM).Errors&record.ErrorNORBusy)

	st := f.log.Status(telemetry.NOR)
	require.True(t, st.Busy)
	require.NoError(t, st.BusyErr)
}

func TestEventPartitionFull(t *testing.T) {
	f := newFixture()
	mem := f.fram.ByteStore.(*storage.Mem).Bytes()
	for i := framEvt.End(); i < framEvt.End()+32; i++ {
		mem[i] = 0xAA
	}
	f.cursors[1] = storage.MemCursor(framEvt.End() - framEvt.Stride)

	require.NoError(t, f.log.LogEvent(record.EventCameraOn, [record.PayloadSize]byte{}))
	require.Equal(t, uint32(framEvt.End()), f.cursors[1].Load())

	err := f.log.LogEvent(record.EventCameraOff, [record.PayloadSize]byte{})
	require.True(t, errors.Is(err, storage.ErrOutOfSpace))
	require.Equal(t, uint32(framEvt.End()), f.cursors[1].Load())
	for i := framEvt.End(); i < framEvt.End()+32; i++ {
		require.Equal(t, byte(0xAA), mem[i])
	}
	require.Equal(t, uint32(2), f.log.Memories[telemetry.NOR].Events.Len())
	require.Equal(t, uint32(1), f.log.Counters(telemetry.FRAM).OutOfSpace)
	require.True(t, f.log.Status(telemetry.FRAM).Events.Exhausted)
	require.Len(t, f.obs.events, 2)

	evt, _, err := f.log.ReadEvent(telemetry.FRAM, 3)
	require.NoError(t, err)
	require.Equal(t, record.EventCameraOn, evt.Code)
}

func TestBoundsViolationIsDistinct(t *testing.T) {
	f := newFixture()
	f.cursors[0] = storage.MemCursor(framTlm.Base + 3)
	err := f.log.MaybeFlush(telemetry.FRAM, 600)
	require.True(t, errors.Is(err, storage.ErrBoundsViolation))
	require.False(t, errors.Is(err, storage.ErrOutOfSpace))
	require.Equal(t, uint32(1), f.log.Counters(telemetry.FRAM).BoundsViolations)
}

func TestLogBoot(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.log.LogBoot(0x0102, 3))
	evt, _, err := f.log.ReadEvent(telemetry.FRAM, 0)
	require.NoError(t, err)
	require.Equal(t, record.EventBoot, evt.Code)
	require.Equal(t, [record.PayloadSize]byte{2, 1, 0, 0, 3}, evt.Payload)
}

func writeSlots(t *testing.T, sim *nor.Sim, p storage.Partition, slots ...uint32) {
	rec := make([]byte, p.Stride)
	for _, n := range slots {
		require.NoError(t, sim.Mem.WriteAt(p.Base+n*p.Stride, rec))
	}
}

func TestRecoverNORCursors(t *testing.T) {
	f := newFixture()
	writeSlots(t, f.sim, norTlm, 0, 1, 2)
	// slot 1 erased between written slots: an interrupted write
	writeSlots(t, f.sim, norEvt, 0, 2)

	tlm, evt, err := f.log.RecoverNORCursors()
	require.NoError(t, err)
	require.Equal(t, norTlm.Base+3*norTlm.Stride, tlm)
	require.Equal(t, norEvt.Base+3*norEvt.Stride, evt)
	require.Equal(t, tlm, f.cursors[2].Load())
	require.Equal(t, evt, f.cursors[3].Load())
}

func TestRecoverTrustedCursors(t *testing.T) {
	f := newFixture()
	writeSlots(t, f.sim, norTlm, 0, 1)
	f.cursors[2] = storage.MemCursor(norTlm.Base + 2*norTlm.Stride)
	require.NoError(t, f.log.Recover(true))
	require.Equal(t, norTlm.Base+2*norTlm.Stride, f.cursors[2].Load())
	require.Equal(t, uint32(framTlm.Base), f.cursors[0].Load())
}

func TestRecoverInconsistentCursors(t *testing.T) {
	f := newFixture()
	writeSlots(t, f.sim, norTlm, 0, 1, 2, 3)
	f.cursors[0] = storage.MemCursor(framTlm.Base + 7)
	f.cursors[1] = storage.MemCursor(framEvt.Base + framEvt.Stride)
	f.cursors[2] = storage.MemCursor(norTlm.Base + norTlm.Stride)

	require.NoError(t, f.log.Recover(true))
	require.Equal(t, uint32(framTlm.Base), f.cursors[0].Load())
	require.Equal(t, framEvt.Base+framEvt.Stride, f.cursors[1].Load())
	require.Equal(t, norTlm.Base+4*norTlm.Stride, f.cursors[2].Load())
	require.Equal(t, uint32(norEvt.Base), f.cursors[3].Load())
}

func TestRecoverUntrustedRewindsFRAM(t *testing.T) {
	f := newFixture()
	f.cursors[1] = storage.MemCursor(framEvt.Base + 2*framEvt.Stride)
	writeSlots(t, f.sim, norEvt, 0)
	require.NoError(t, f.log.Recover(false))
	require.Equal(t, uint32(framEvt.Base), f.cursors[1].Load())
	require.Equal(t, norEvt.Base+norEvt.Stride, f.cursors[3].Load())
}

func TestRecoverFullPartition(t *testing.T) {
	f := newFixture()
	require.NoError(t, storage.Fill(f.sim.Mem, norEvt.Base, norEvt.Size, 0))

	err := f.log.Recover(false)
	require.True(t, errors.Is(err, storage.ErrOutOfSpace))
	require.Equal(t, norEvt.End(), f.cursors[3].Load())
	require.True(t, f.log.Status(telemetry.NOR).Events.Exhausted)
	require.NotZero(t, f.acc.Snapshot(telemetry.NOR).Errors&record.ErrorNORFull)

	err = f.log.LogEvent(record.EventCameraOn, [record.PayloadSize]byte{})
	require.True(t, errors.Is(err, storage.ErrOutOfSpace))
	require.Equal(t, uint32(1), f.log.Memories[telemetry.FRAM].Events.Len())

	_, _, err = f.log.ReadEvent(telemetry.NOR, 15)
	require.NoError(t, err)
}

func TestEraseNOR(t *testing.T) {
	f := newFixture()
	f.log.Periods = [telemetry.NumInstances]uint32{10, 10}
	f.at(10)
	require.NoError(t, f.log.FlushIfDue())
	require.NoError(t, f.log.LogEvent(record.EventCameraOn, [record.PayloadSize]byte{}))

	f.at(20)
	require.NoError(t, f.log.EraseNOR())
	require.Equal(t, uint32(norTlm.Base), f.cursors[2].Load())
	require.Equal(t, norEvt.Base+norEvt.Stride, f.cursors[3].Load())
	evt, _, err := f.log.ReadEvent(telemetry.FRAM, 1)
	require.NoError(t, err)
	require.Equal(t, record.EventNORClean, evt.Code)

	raw, err := f.log.ReadRaw(telemetry.NOR, norTlm.Base, 4)
	require.NoError(t, err)
	require.True(t, storage.IsErased(raw))
}

func TestEraseFRAM(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.log.LogEvent(record.EventCameraOn, [record.PayloadSize]byte{}))
	f.log.Periods[telemetry.FRAM] = 5
	f.at(5)
	require.NoError(t, f.log.FlushIfDue())

	require.NoError(t, f.log.EraseFRAM())
	require.Equal(t, uint32(framTlm.Base), f.cursors[0].Load())
	require.Equal(t, uint32(framEvt.Base), f.cursors[1].Load())
	raw, err := f.log.ReadRaw(telemetry.FRAM, framEvt.Base, record.EventSize)
	require.NoError(t, err)
	require.Equal(t, make([]byte, record.EventSize), raw)
}

func TestStatus(t *testing.T) {
	f := newFixture()
	f.log.Periods = [telemetry.NumInstances]uint32{600, 10}
	f.at(10)
	require.NoError(t, f.log.FlushIfDue())

	st := f.log.Status(telemetry.NOR)
	require.True(t, st.Attached)
	require.False(t, st.Busy)
	require.Equal(t, uint32(10), st.Period)
	require.Equal(t, uint32(1), st.Telemetry.Used)
	require.Equal(t, uint32(64), st.Telemetry.Slots)
	require.InDelta(t, 100.0/64, st.Telemetry.Percent(), 1e-9)
	require.Equal(t, uint32(1), st.Counters.Flushes)

	f.log.Memories[telemetry.FRAM] = nil
	require.False(t, f.log.Status(telemetry.FRAM).Attached)
	require.NoError(t, f.log.FlushIfDue())
	_, _, err := f.log.ReadTelemetry(telemetry.FRAM, 0)
	require.Error(t, err)
	require.Error(t, f.log.SetPeriod(telemetry.NOR, 0))
}
