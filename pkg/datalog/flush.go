package datalog

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/telemetry"
)

func isErr(err, target error) bool {
	return errors.Is(err, target)
}

// Due reports whether the window of mem is due at now (seconds of uptime).
func (l *Logger) Due(mem telemetry.Instance, now uint32) bool {
	return uint64(now) >= uint64(l.lastFlush[mem])+uint64(l.Periods[mem])
}

// LastFlush is the uptime in seconds of the last flush attempt of mem.
func (l *Logger) LastFlush(mem telemetry.Instance) uint32 {
	return l.lastFlush[mem]
}

// MaybeFlush persists the window of mem when its period elapsed at now.
// The attempt time advances even when the write fails; the window is
// only reset after a successful write so its samples merge into the
// next attempt.
func (l *Logger) MaybeFlush(mem telemetry.Instance, now uint32) error {
	m, err := l.memory(mem)
	if err != nil {
		return err
	}
	if !l.Due(mem, now) {
		return nil
	}
	l.lastFlush[mem] = now

	rec := l.Accumulator.Snapshot(mem)
	rec.UnixTime, rec.UptimeMs, rec.State, rec.SubState = l.stamp()
	if err := rec.MarshalTo(l.tlmBuf[:]); err != nil {
		return err
	}
	addr, err := m.Telemetry.Append(l.tlmBuf[:])
	if err != nil {
		l.counters[mem].FlushErrors++
		l.noteWriteError(mem, &m.Telemetry, &m.tlmExhausted, err)
		return fmt.Errorf("%s telemetry flush: %w", mem, err)
	}
	l.counters[mem].Flushes++
	l.Accumulator.Reset(mem)
	glog.V(2).Infof("%s telemetry saved at 0x%x", mem, addr)
	for _, o := range l.Observers {
		o.TelemetrySaved(mem, addr, &rec)
	}
	return nil
}

// FlushIfDue runs MaybeFlush for every attached memory at the current
// uptime.
func (l *Logger) FlushIfDue() error {
	now := l.Clock.UptimeS()
	var errs fx.AggregatedError
	for mem := telemetry.Instance(0); mem < telemetry.NumInstances; mem++ {
		if l.Memories[mem] == nil {
			continue
		}
		errs.Add(l.MaybeFlush(mem, now))
	}
	return errs.Aggregate()
}
