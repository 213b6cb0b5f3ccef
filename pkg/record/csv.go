package record

import (
	"strconv"
	"time"
)

// DateLayout formats unix times in exported rows.
const DateLayout = "2006-01-02 15:04:05"

// TelemetryHeader is the CSV header of telemetry rows.
var TelemetryHeader = []string{
	"address", "date", "unixtime", "uptime", "pressure", "altitude",
	"verticalSpeedAVG", "verticalSpeedMAX", "verticalSpeedMIN",
	"temperatures0", "temperatures1", "temperatures2",
	"accXAxisAVG", "accXAxisMAX", "accXAxisMIN",
	"accYAxisAVG", "accYAxisMAX", "accYAxisMIN",
	"accZAxisAVG", "accZAxisMAX", "accZAxisMIN",
	"voltagesAVG", "voltagesMAX", "voltagesMIN",
	"currentsAVG", "currentsMAX", "currentsMIN",
	"state", "sub_state", "switches_status", "errors",
}

// EventHeader is the CSV header of event rows.
var EventHeader = []string{
	"address", "date", "unixtime", "uptime", "state", "sub_state", "event",
	"payload0", "payload1", "payload2", "payload3", "payload4",
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func appendStat(row []string, s Stat) []string {
	return append(row, itoa(int64(s.Avg)), itoa(int64(s.Max)), itoa(int64(s.Min)))
}

// FormatDate renders a unix time as UTC.
func FormatDate(unix uint32) string {
	return time.Unix(int64(unix), 0).UTC().Format(DateLayout)
}

// CSV renders the record as a row matching TelemetryHeader.
func (t *Telemetry) CSV(addr uint32) []string {
	row := make([]string, 0, len(TelemetryHeader))
	row = append(row,
		itoa(int64(addr)),
		FormatDate(t.UnixTime),
		itoa(int64(t.UnixTime)),
		itoa(int64(t.UptimeMs)),
		itoa(int64(t.Pressure)),
		itoa(int64(t.Altitude)))
	row = appendStat(row, t.VerticalSpeed)
	for _, v := range t.Temperatures {
		row = append(row, itoa(int64(v)))
	}
	row = appendStat(row, t.AccX)
	row = appendStat(row, t.AccY)
	row = appendStat(row, t.AccZ)
	row = appendStat(row, t.Voltage)
	row = appendStat(row, t.Current)
	return append(row,
		itoa(int64(t.State)),
		itoa(int64(t.SubState)),
		itoa(int64(t.Switches)),
		itoa(int64(t.Errors)))
}

// CSV renders the record as a row matching EventHeader.
func (e *Event) CSV(addr uint32) []string {
	row := make([]string, 0, len(EventHeader))
	row = append(row,
		itoa(int64(addr)),
		FormatDate(e.UnixTime),
		itoa(int64(e.UnixTime)),
		itoa(int64(e.UptimeMs)),
		itoa(int64(e.State)),
		itoa(int64(e.SubState)),
		itoa(int64(e.Code)))
	for _, b := range e.Payload {
		row = append(row, itoa(int64(b)))
	}
	return row
}
