package sh

import (
	"fmt"
	"io"

	"github.com/robotalks/iris/pkg/config"
	"github.com/robotalks/iris/pkg/datalog"
	"github.com/robotalks/iris/pkg/record"
)

// Status is the result of the status command.
type Status struct {
	Memories     []datalog.MemoryStatus `json:"memories"`
	Deduplicated uint32                 `json:"deduplicated"`
	Errors       uint16                 `json:"errors"`
}

func readiness(st *datalog.MemoryStatus) string {
	switch {
	case !st.Attached:
		return "absent"
	case st.BusyErr != nil:
		return "error: " + st.BusyErr.Error()
	case st.Busy:
		return "busy"
	}
	return "ready"
}

func formatPartition(w io.Writer, kind string, p *datalog.PartitionStatus) {
	fmt.Fprintf(w, "  %-9s %d/%d (%.1f%%) cursor 0x%08x [0x%08x, 0x%08x)",
		kind, p.Used, p.Slots, p.Percent(), p.Cursor, p.Base, p.End)
	if p.Exhausted {
		fmt.Fprint(w, " EXHAUSTED")
	}
	fmt.Fprintln(w)
}

// FormatMemoryStatus prints one memory.
func FormatMemoryStatus(w io.Writer, st *datalog.MemoryStatus) {
	fmt.Fprintf(w, "%s: %s\n", st.Memory, readiness(st))
	if !st.Attached {
		return
	}
	fmt.Fprintf(w, "  period    %ds, last flush %d\n", st.Period, st.LastFlush)
	formatPartition(w, "telemetry", &st.Telemetry)
	formatPartition(w, "events", &st.Events)
	c := &st.Counters
	fmt.Fprintf(w, "  flushes %d (errors %d) events %d (errors %d)\n",
		c.Flushes, c.FlushErrors, c.Events, c.EventErrors)
	fmt.Fprintf(w, "  busy %d, out of space %d, bounds %d, io %d\n",
		c.Busy, c.OutOfSpace, c.BoundsViolations, c.IOErrors)
}

// FormatStatus prints the status command result.
func FormatStatus(w io.Writer, val interface{}) {
	st := val.(*Status)
	for i := range st.Memories {
		FormatMemoryStatus(w, &st.Memories[i])
	}
	fmt.Fprintf(w, "deduplicated events %d, error flags 0x%04x\n", st.Deduplicated, st.Errors)
}

func formatStat(w io.Writer, name string, s record.Stat) {
	fmt.Fprintf(w, "%-14s avg %6d  max %6d  min %6d\n", name, s.Avg, s.Max, s.Min)
}

func formatTemperature(v int16) string {
	if v == record.Sentinel {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", float64(v)/10)
}

// FormatTelemetry pretty prints a telemetry record.
func FormatTelemetry(w io.Writer, val interface{}) {
	t := val.(*record.Telemetry)
	fmt.Fprintf(w, "time           %s (%d), uptime %d ms\n", record.FormatDate(t.UnixTime), t.UnixTime, t.UptimeMs)
	fmt.Fprintf(w, "state          %s/%d\n", record.FlightState(t.State), t.SubState)
	if t.Altitude == int32(record.Sentinel) {
		fmt.Fprintln(w, "pressure       n/a")
	} else {
		fmt.Fprintf(w, "pressure       %d Pa, altitude %.2f m\n", t.Pressure, float64(t.Altitude)/100)
	}
	formatStat(w, "vspeed cm/s", t.VerticalSpeed)
	fmt.Fprintf(w, "temperatures   %s %s %s C\n",
		formatTemperature(t.Temperatures[0]),
		formatTemperature(t.Temperatures[1]),
		formatTemperature(t.Temperatures[2]))
	formatStat(w, "acc x mg", t.AccX)
	formatStat(w, "acc y mg", t.AccY)
	formatStat(w, "acc z mg", t.AccZ)
	formatStat(w, "voltage 10mV", t.Voltage)
	formatStat(w, "current mA", t.Current)
	fmt.Fprintf(w, "switches       0x%02x, errors 0x%04x\n", t.Switches, t.Errors)
}

// FormatRegister prints the configuration register.
func FormatRegister(w io.Writer, val interface{}) {
	r := val.(*config.Register)
	fmt.Fprintf(w, "magic 0x%04x version %d\n", r.Magic, r.Version)
	fmt.Fprintf(w, "reboots %d, last reason %d\n", r.Reboots, r.RebootReason)
	fmt.Fprintf(w, "save periods: fram %ds nor %ds\n", r.FRAMTelemetryPeriod, r.NORTelemetryPeriod)
	fmt.Fprintf(w, "read periods: baro %dms temp %dms power %dms acc %dms\n",
		r.BarometerPeriod, r.TemperaturePeriod, r.PowerPeriod, r.AccelerometerPeriod)
	for id := config.CursorID(0); id < config.NumCursors; id++ {
		fmt.Fprintf(w, "cursor %-15s 0x%08x\n", id, r.Cursors[id])
	}
	fmt.Fprintf(w, "nor device %d, flight state %s/%d, simulator %d\n",
		r.NORDevice, record.FlightState(r.FlightState), r.FlightSubState, r.Simulator)
}

// FormatDump prints data read at addr as hex lines of 16 bytes.
func FormatDump(w io.Writer, addr uint32, data []byte) {
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(w, "%08x  % x\n", addr+uint32(off), data[off:end])
	}
}
