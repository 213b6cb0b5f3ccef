// Package datalog persists telemetry windows and events into the fast
// (FRAM) and bulk (NOR) memories.
//
// All methods are expected to run on the control loop goroutine. The
// Logger holds no locks.
package datalog

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/iris/pkg/clock"
	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/storage"
	"github.com/robotalks/iris/pkg/telemetry"
)

// Default save periods in seconds.
const (
	DefaultFRAMPeriod uint32 = 600
	DefaultNORPeriod  uint32 = 10
)

// DedupWindow is the number of seconds within which a repeated event
// code is discarded.
const DedupWindow uint32 = 5

// StateSource provides the flight state stamped into every record.
type StateSource interface {
	FlightState() (state, sub uint8)
}

// Observer is notified of persisted records.
type Observer interface {
	// TelemetrySaved is called after a window of mem was persisted at addr.
	TelemetrySaved(mem telemetry.Instance, addr uint32, rec *record.Telemetry)
	// EventSaved is called once per accepted event persisted to at
	// least one memory.
	EventSaved(rec *record.Event)
}

// Memory is one destination of the logger: a byte store holding a
// telemetry log and an event log.
type Memory struct {
	Store     storage.ByteStore
	Telemetry storage.Log
	Events    storage.Log

	// exhausted marks a log that reported out of space. It only
	// suppresses repeated error logs; Append rejects on its own.
	tlmExhausted bool
	evtExhausted bool
}

// NewMemory creates a Memory over store.
func NewMemory(store storage.ByteStore, tlm, evt storage.Partition, tlmCursor, evtCursor storage.Cursor) *Memory {
	return &Memory{
		Store:     store,
		Telemetry: storage.Log{Store: store, Partition: tlm, Cursor: tlmCursor},
		Events:    storage.Log{Store: store, Partition: evt, Cursor: evtCursor},
	}
}

// Flash returns the store as storage.Flash when it needs erasing.
func (m *Memory) Flash() (storage.Flash, bool) {
	f, ok := m.Store.(storage.Flash)
	return f, ok
}

type lastEvent struct {
	code  record.EventCode
	unix  uint32
	valid bool
}

// Logger owns the accumulation windows, the write cursors and the last
// event de-dup state. It is the only writer of both memories.
type Logger struct {
	Clock       clock.Clock
	Accumulator *telemetry.Accumulator
	State       StateSource
	Memories    [telemetry.NumInstances]*Memory
	// Periods are the save periods in seconds per memory.
	Periods [telemetry.NumInstances]uint32
	// FRAMExempt lists event codes written to NOR only.
	FRAMExempt map[record.EventCode]bool
	Observers  []Observer

	lastFlush [telemetry.NumInstances]uint32
	lastEvent lastEvent
	counters  [telemetry.NumInstances]Counters
	dedup     uint32

	tlmBuf [record.TelemetrySize]byte
	evtBuf [record.EventSize]byte
}

// NewLogger creates a Logger writing to fram and nor. Either memory may
// be nil when the device is absent.
func NewLogger(clk clock.Clock, acc *telemetry.Accumulator, state StateSource, fram, nor *Memory) *Logger {
	return &Logger{
		Clock:       clk,
		Accumulator: acc,
		State:       state,
		Memories:    [telemetry.NumInstances]*Memory{fram, nor},
		Periods:     [telemetry.NumInstances]uint32{DefaultFRAMPeriod, DefaultNORPeriod},
		FRAMExempt:  map[record.EventCode]bool{record.EventTimelapsePicture: true},
	}
}

// AddObserver registers an Observer.
func (l *Logger) AddObserver(o Observer) *Logger {
	l.Observers = append(l.Observers, o)
	return l
}

// Control implements framework.Controller.
func (l *Logger) Control(fx.ControlContext) error {
	return l.FlushIfDue()
}

// AddToLoop implements framework.LoopAdder.
func (l *Logger) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvAcuate, l)
}

func (l *Logger) memory(mem telemetry.Instance) (*Memory, error) {
	if mem < 0 || mem >= telemetry.NumInstances {
		return nil, fmt.Errorf("unknown memory %d", mem)
	}
	m := l.Memories[mem]
	if m == nil {
		return nil, fmt.Errorf("%s not attached", mem)
	}
	return m, nil
}

func (l *Logger) stamp() (unix, uptime uint32, state, sub uint8) {
	unix = l.Clock.UnixTime()
	uptime = uint32(l.Clock.UptimeMs())
	if l.State != nil {
		state, sub = l.State.FlightState()
	}
	return
}

// noteWriteError classifies a failed append, counts it and reflects it
// in the error flags of the windows being built.
func (l *Logger) noteWriteError(mem telemetry.Instance, log *storage.Log, exhausted *bool, err error) {
	c := &l.counters[mem]
	var flags uint16
	switch {
	case isErr(err, storage.ErrOutOfSpace):
		c.OutOfSpace++
		if !*exhausted {
			glog.Errorf("%s %s: out of space, writes stopped", mem, log.Partition.Name)
		}
		*exhausted = true
		flags = fullFlag(mem)
	case isErr(err, storage.ErrBoundsViolation):
		c.BoundsViolations++
		glog.Errorf("%s %s: %v", mem, log.Partition.Name, err)
		flags = writeFlag(mem)
	case isErr(err, storage.ErrBusy):
		c.Busy++
		glog.Warningf("%s %s: %v", mem, log.Partition.Name, err)
		flags = record.ErrorNORBusy
	default:
		c.IOErrors++
		glog.Warningf("%s %s: write error: %v", mem, log.Partition.Name, err)
		flags = writeFlag(mem)
	}
	l.raise(flags)
}

func fullFlag(mem telemetry.Instance) uint16 {
	if mem == telemetry.NOR {
		return record.ErrorNORFull
	}
	return record.ErrorFRAMFull
}

func writeFlag(mem telemetry.Instance) uint16 {
	if mem == telemetry.NOR {
		return record.ErrorNORWrite
	}
	return record.ErrorFRAMWrite
}
