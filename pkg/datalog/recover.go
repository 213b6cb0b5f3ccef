package datalog

import (
	"fmt"

	"github.com/golang/glog"

	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/storage"
	"github.com/robotalks/iris/pkg/telemetry"
)

// Recover validates the persisted cursors once at boot, before any
// flush or event. With trusted false, or when a NOR cursor is outside
// its partition, misaligned or pointing at a written slot, both NOR
// cursors are rebuilt by RecoverNORCursors. FRAM cursors failing the
// same checks are rewound to their partition bases.
func (l *Logger) Recover(trusted bool) error {
	var errs fx.AggregatedError
	if m := l.Memories[telemetry.FRAM]; m != nil {
		for _, log := range []*storage.Log{&m.Telemetry, &m.Events} {
			if err := log.Partition.CheckCursor(log.Cursor.Load()); err != nil || !trusted {
				if err != nil {
					glog.Errorf("fram %s: %v, rewinding", log.Partition.Name, err)
				}
				errs.Add(log.Rewind())
			}
		}
		m.tlmExhausted, m.evtExhausted = m.Telemetry.Full(), m.Events.Full()
	}
	if m := l.Memories[telemetry.NOR]; m != nil {
		scan := !trusted
		for _, log := range []*storage.Log{&m.Telemetry, &m.Events} {
			if scan {
				break
			}
			if err := checkFlashCursor(m.Store, log); err != nil {
				glog.Warningf("nor %s: %v, recovering cursors", log.Partition.Name, err)
				scan = true
			}
		}
		if scan {
			_, _, err := l.RecoverNORCursors()
			errs.Add(err)
		} else {
			m.tlmExhausted, m.evtExhausted = m.Telemetry.Full(), m.Events.Full()
		}
	}
	return errs.Aggregate()
}

// checkFlashCursor verifies cursor is a slot boundary and, unless the
// partition is full, that the slot at cursor was never written.
func checkFlashCursor(s storage.ByteStore, log *storage.Log) error {
	cursor := log.Cursor.Load()
	if err := log.Partition.CheckCursor(cursor); err != nil {
		return err
	}
	if log.Full() {
		return nil
	}
	marker := make([]byte, storage.MarkerSize)
	if err := s.ReadAt(cursor, marker); err != nil {
		return err
	}
	if !storage.IsErased(marker) {
		return fmt.Errorf("slot 0x%x already written", cursor)
	}
	return nil
}

// RecoverNORCursors rebuilds both NOR cursors by scanning for the first
// free slot of each partition and persists them. A partition without a
// free slot gets its cursor set to the partition end: the partition is
// reported with storage.ErrOutOfSpace and rejects further writes while
// its records stay readable.
func (l *Logger) RecoverNORCursors() (tlm, evt uint32, err error) {
	m, err := l.memory(telemetry.NOR)
	if err != nil {
		return 0, 0, err
	}
	var errs fx.AggregatedError
	logs := []*storage.Log{&m.Telemetry, &m.Events}
	exhausted := []*bool{&m.tlmExhausted, &m.evtExhausted}
	cursors := make([]uint32, len(logs))
	for i, log := range logs {
		name := log.Partition.Name
		cursor, err := storage.ScanFree(m.Store, log.Partition)
		switch {
		case err == nil:
			*exhausted[i] = false
		case isErr(err, storage.ErrOutOfSpace):
			glog.Errorf("nor %s: no free slot, writes stopped", name)
			*exhausted[i] = true
			l.counters[telemetry.NOR].OutOfSpace++
			l.raise(fullFlag(telemetry.NOR))
			errs.Add(fmt.Errorf("nor %s recovery: %w", name, err))
		default:
			cursors[i] = log.Cursor.Load()
			errs.Add(fmt.Errorf("nor %s recovery: %w", name, err))
			continue
		}
		if err := log.Cursor.Store(cursor); err != nil {
			errs.Add(fmt.Errorf("nor %s cursor: %w", name, err))
		}
		cursors[i] = cursor
		glog.Infof("nor %s cursor recovered at 0x%x, %d records", name, cursor, log.Len())
	}
	return cursors[0], cursors[1], errs.Aggregate()
}

func (l *Logger) raise(flags uint16) {
	if l.Accumulator != nil {
		l.Accumulator.RaiseErrors(flags)
	}
}
