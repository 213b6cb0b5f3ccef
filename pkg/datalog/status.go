package datalog

import (
	"fmt"

	"github.com/golang/glog"

	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/storage"
	"github.com/robotalks/iris/pkg/telemetry"
)

// Counters are the operator visible activity and error counters of one
// memory.
type Counters struct {
	Flushes          uint32 `json:"flushes"`
	FlushErrors      uint32 `json:"flush_errors"`
	Events           uint32 `json:"events"`
	EventErrors      uint32 `json:"event_errors"`
	Busy             uint32 `json:"busy"`
	OutOfSpace       uint32 `json:"out_of_space"`
	BoundsViolations uint32 `json:"bounds_violations"`
	IOErrors         uint32 `json:"io_errors"`
}

// PartitionStatus describes the fill level of one log.
type PartitionStatus struct {
	Name      string `json:"name"`
	Base      uint32 `json:"base"`
	End       uint32 `json:"end"`
	Cursor    uint32 `json:"cursor"`
	Used      uint32 `json:"used"`
	Slots     uint32 `json:"slots"`
	Exhausted bool   `json:"exhausted"`
}

// Percent is the used share of the partition.
func (p PartitionStatus) Percent() float64 {
	if p.Slots == 0 {
		return 0
	}
	return float64(p.Used) * 100 / float64(p.Slots)
}

// MemoryStatus is the operator view of one memory.
type MemoryStatus struct {
	Memory    telemetry.Instance `json:"-"`
	Attached  bool               `json:"attached"`
	Busy      bool               `json:"busy"`
	BusyErr   error              `json:"-"`
	Period    uint32             `json:"period"`
	LastFlush uint32             `json:"last_flush"`
	Telemetry PartitionStatus    `json:"telemetry"`
	Events    PartitionStatus    `json:"events"`
	Counters  Counters           `json:"counters"`
}

func partitionStatus(log *storage.Log, exhausted bool) PartitionStatus {
	p := log.Partition
	return PartitionStatus{
		Name:      p.Name,
		Base:      p.Base,
		End:       p.End(),
		Cursor:    log.Cursor.Load(),
		Used:      log.Len(),
		Slots:     p.Slots(),
		Exhausted: exhausted || log.Full(),
	}
}

// Status reports the state of mem.
func (l *Logger) Status(mem telemetry.Instance) MemoryStatus {
	st := MemoryStatus{Memory: mem}
	m, err := l.memory(mem)
	if err != nil {
		return st
	}
	st.Attached = true
	st.Period = l.Periods[mem]
	st.LastFlush = l.lastFlush[mem]
	st.Counters = l.counters[mem]
	st.Telemetry = partitionStatus(&m.Telemetry, m.tlmExhausted)
	st.Events = partitionStatus(&m.Events, m.evtExhausted)
	if flash, ok := m.Flash(); ok {
		st.Busy, st.BusyErr = flash.Busy()
	}
	return st
}

// Counters returns the counters of mem.
func (l *Logger) Counters(mem telemetry.Instance) Counters {
	return l.counters[mem]
}

// Deduplicated is the number of suppressed repeated events.
func (l *Logger) Deduplicated() uint32 {
	return l.dedup
}

// CurrentRecords copies both windows being built, stamped as if they
// were flushed now.
func (l *Logger) CurrentRecords() (fram, nor record.Telemetry) {
	fram, nor = l.Accumulator.Snapshot(telemetry.FRAM), l.Accumulator.Snapshot(telemetry.NOR)
	for _, rec := range []*record.Telemetry{&fram, &nor} {
		rec.UnixTime, rec.UptimeMs, rec.State, rec.SubState = l.stamp()
	}
	return fram, nor
}

// ReadTelemetry reads the telemetry record at index of mem and returns
// it with its address.
func (l *Logger) ReadTelemetry(mem telemetry.Instance, index uint32) (rec record.Telemetry, addr uint32, err error) {
	m, err := l.memory(mem)
	if err != nil {
		return rec, 0, err
	}
	var buf [record.TelemetrySize]byte
	if addr, err = m.Telemetry.Read(index, buf[:]); err != nil {
		return rec, addr, err
	}
	return rec, addr, rec.UnmarshalBinary(buf[:])
}

// ReadEvent reads the event record at index of mem and returns it with
// its address.
func (l *Logger) ReadEvent(mem telemetry.Instance, index uint32) (rec record.Event, addr uint32, err error) {
	m, err := l.memory(mem)
	if err != nil {
		return rec, 0, err
	}
	var buf [record.EventSize]byte
	if addr, err = m.Events.Read(index, buf[:]); err != nil {
		return rec, addr, err
	}
	return rec, addr, rec.UnmarshalBinary(buf[:])
}

// ReadRaw reads n bytes at addr of mem.
func (l *Logger) ReadRaw(mem telemetry.Instance, addr, n uint32) ([]byte, error) {
	m, err := l.memory(mem)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	return buf, m.Store.ReadAt(addr, buf)
}

// SetPeriod changes the save period of mem.
func (l *Logger) SetPeriod(mem telemetry.Instance, seconds uint32) error {
	if mem < 0 || mem >= telemetry.NumInstances {
		return fmt.Errorf("unknown memory %d", mem)
	}
	if seconds == 0 {
		return fmt.Errorf("%s period must be positive", mem)
	}
	l.Periods[mem] = seconds
	return nil
}

// EraseNOR starts a bulk erase of NOR and rewinds both NOR cursors. The
// erase is not awaited: NOR reports busy until it completes, so the
// NOR_CLEAN event usually lands in FRAM only.
func (l *Logger) EraseNOR() error {
	m, flash, err := l.norFlash()
	if err != nil {
		return err
	}
	if err := flash.EraseAll(); err != nil {
		return fmt.Errorf("nor erase: %w", err)
	}
	var errs fx.AggregatedError
	errs.Add(m.Telemetry.Rewind(), m.Events.Rewind())
	m.tlmExhausted, m.evtExhausted = false, false
	glog.Infof("nor bulk erase started")
	if err := l.LogEvent(record.EventNORClean, [record.PayloadSize]byte{}); err != nil {
		glog.Warningf("nor clean event: %v", err)
	}
	return errs.Aggregate()
}

// EraseNORSector erases one NOR sector. Cursors are left in place.
func (l *Logger) EraseNORSector(sector uint32) error {
	_, flash, err := l.norFlash()
	if err != nil {
		return err
	}
	size := flash.SectorSize()
	if size == 0 || (uint64(sector)+1)*uint64(size) > uint64(flash.Size()) {
		return fmt.Errorf("sector %d beyond nor capacity", sector)
	}
	if err := flash.EraseSector(sector * size); err != nil {
		return fmt.Errorf("nor erase sector %d: %w", sector, err)
	}
	glog.Infof("nor sector %d erase started", sector)
	return nil
}

func (l *Logger) norFlash() (*Memory, storage.Flash, error) {
	m, err := l.memory(telemetry.NOR)
	if err != nil {
		return nil, nil, err
	}
	flash, ok := m.Flash()
	if !ok {
		return nil, nil, fmt.Errorf("nor store %T can't erase", m.Store)
	}
	return m, flash, nil
}

// EraseFRAM zeroes both FRAM logs and rewinds their cursors. The
// configuration region is untouched.
func (l *Logger) EraseFRAM() error {
	m, err := l.memory(telemetry.FRAM)
	if err != nil {
		return err
	}
	var errs fx.AggregatedError
	for _, log := range []*storage.Log{&m.Telemetry, &m.Events} {
		p := log.Partition
		if err := storage.Fill(m.Store, p.Base, p.Size, 0); err != nil {
			errs.Add(fmt.Errorf("fram erase %s: %w", p.Name, err))
			continue
		}
		errs.Add(log.Rewind())
	}
	m.tlmExhausted, m.evtExhausted = false, false
	glog.Infof("fram logs erased")
	return errs.Aggregate()
}
