package datalog

import (
	"fmt"

	"github.com/golang/glog"

	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/telemetry"
)

// LogEvent writes an event through to FRAM (unless the code is exempt)
// and to NOR. The same code repeated within DedupWindow seconds is
// discarded without error. A NOR failure doesn't undo the FRAM write.
func (l *Logger) LogEvent(code record.EventCode, payload [record.PayloadSize]byte) error {
	unix, uptime, state, sub := l.stamp()
	if last := l.lastEvent; last.valid && last.code == code && unix >= last.unix && unix-last.unix < DedupWindow {
		l.dedup++
		glog.V(2).Infof("event %s suppressed", code)
		return nil
	}
	l.lastEvent = lastEvent{code: code, unix: unix, valid: true}

	evt := record.Event{
		UnixTime: unix,
		UptimeMs: uptime,
		State:    state,
		SubState: sub,
		Code:     code,
		Payload:  payload,
	}
	if err := evt.MarshalTo(l.evtBuf[:]); err != nil {
		return err
	}

	var errs fx.AggregatedError
	saved := false
	for mem := telemetry.Instance(0); mem < telemetry.NumInstances; mem++ {
		m := l.Memories[mem]
		if m == nil || (mem == telemetry.FRAM && l.FRAMExempt[code]) {
			continue
		}
		addr, err := m.Events.Append(l.evtBuf[:])
		if err != nil {
			l.counters[mem].EventErrors++
			l.noteWriteError(mem, &m.Events, &m.evtExhausted, err)
			errs.Add(fmt.Errorf("%s event %s: %w", mem, code, err))
			continue
		}
		l.counters[mem].Events++
		saved = true
		glog.V(2).Infof("%s event %s saved at 0x%x", mem, code, addr)
	}
	if saved {
		for _, o := range l.Observers {
			o.EventSaved(&evt)
		}
	}
	return errs.Aggregate()
}

// LogBoot records the boot event carrying the reboot reason and the
// firmware version.
func (l *Logger) LogBoot(reason uint16, firmware uint8) error {
	var payload [record.PayloadSize]byte
	payload[0] = byte(reason)
	payload[1] = byte(reason >> 8)
	payload[4] = firmware
	return l.LogEvent(record.EventBoot, payload)
}
