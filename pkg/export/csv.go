package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/robotalks/iris/pkg/record"
)

// WriteTelemetryCSV writes rows with the telemetry header.
func WriteTelemetryCSV(w io.Writer, rows []TelemetryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(record.TelemetryHeader); err != nil {
		return err
	}
	for i := range rows {
		cw.Write(rows[i].CSV(rows[i].Addr))
	}
	cw.Flush()
	return cw.Error()
}

// WriteEventsCSV writes rows with the event header.
func WriteEventsCSV(w io.Writer, rows []EventRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(record.EventHeader); err != nil {
		return err
	}
	for i := range rows {
		cw.Write(rows[i].CSV(rows[i].Addr))
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile creates path and writes it with fn through a buffer.
func WriteCSVFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv create %s: %w", path, err)
	}
	bw := bufio.NewWriterSize(f, 256*1024)
	if err := fn(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
