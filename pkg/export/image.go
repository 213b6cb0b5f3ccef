// Package export decodes memory images retrieved after a flight and
// writes their records as CSV or into a SQLite database.
package export

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/iris/pkg/config"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/storage"
)

// Values of never written bytes.
const (
	NORErased  byte = storage.ErasedByte
	FRAMErased byte = 0
)

// TelemetryRow is a telemetry record with its address.
type TelemetryRow struct {
	Addr uint32
	record.Telemetry
}

// EventRow is an event record with its address.
type EventRow struct {
	Addr uint32
	record.Event
}

// Image is the content of one memory device.
type Image struct {
	Name   string
	Store  storage.ByteStore
	Memory config.Memory
	// Erased is the value of never written bytes.
	Erased byte
	// Register is the configuration register found in the image. Its
	// cursors bound the logs when present.
	Register *config.Register
}

// LoadImage reads the image file at path. Missing trailing bytes read
// as erased.
func LoadImage(name, path string, m config.Memory, erased byte) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > uint64(m.Capacity) {
		glog.Warningf("%s: image has %d bytes, only %d decoded", path, len(data), m.Capacity)
		data = data[:m.Capacity]
	}
	mem := storage.NewMem(m.Capacity, erased)
	copy(mem.Bytes(), data)
	return NewImage(name, mem, m, erased)
}

// NewImage wraps store. When the memory holds a configuration region
// with a valid register, it is decoded.
func NewImage(name string, store storage.ByteStore, m config.Memory, erased byte) (*Image, error) {
	im := &Image{Name: name, Store: store, Memory: m, Erased: erased}
	if m.Config == nil {
		return im, nil
	}
	buf := make([]byte, config.RegisterSize)
	if err := store.ReadAt(m.Config.Base, buf); err != nil {
		return nil, err
	}
	var reg config.Register
	switch err := reg.UnmarshalBinary(buf); {
	case err == nil:
		im.Register = &reg
	case errors.Is(err, config.ErrBadMagic), errors.Is(err, config.ErrVersion):
		glog.Warningf("%s: %v, scanning logs", name, err)
	default:
		return nil, err
	}
	return im, nil
}

func (im *Image) slotUnused(slot []byte) bool {
	if len(slot) > storage.MarkerSize {
		slot = slot[:storage.MarkerSize]
	}
	for _, b := range slot {
		if b != im.Erased {
			return false
		}
	}
	return true
}

// Extent returns the end of the written records of p: the register
// cursor when valid, otherwise the first free slot. On NOR an isolated
// erased slot is an interrupted write and doesn't end the log.
func (im *Image) Extent(p storage.Partition, cursor config.CursorID) (uint32, error) {
	if im.Register != nil {
		c := im.Register.Cursors[cursor]
		if p.CheckCursor(c) == nil {
			return c, nil
		}
		glog.Warningf("%s: %s cursor 0x%x invalid, scanning", im.Name, cursor, c)
	}
	if im.Erased == storage.ErasedByte {
		end, err := storage.ScanFree(im.Store, p)
		if errors.Is(err, storage.ErrOutOfSpace) {
			return p.End(), nil
		}
		return end, err
	}
	buf := make([]byte, p.Stride)
	for addr := p.Base; addr < p.End(); addr += p.Stride {
		if err := im.Store.ReadAt(addr, buf); err != nil {
			return 0, err
		}
		if im.slotUnused(buf) {
			return addr, nil
		}
	}
	return p.End(), nil
}

func (im *Image) cursors() (tlm, evt config.CursorID) {
	if im.Memory.Config != nil {
		return config.FRAMTelemetryCursor, config.FRAMEventCursor
	}
	return config.NORTelemetryCursor, config.NOREventCursor
}

// Telemetry decodes the telemetry log.
func (im *Image) Telemetry() ([]TelemetryRow, error) {
	p := im.Memory.Telemetry
	cursor, _ := im.cursors()
	end, err := im.Extent(p, cursor)
	if err != nil {
		return nil, err
	}
	var rows []TelemetryRow
	buf := make([]byte, p.Stride)
	for addr := p.Base; addr < end; addr += p.Stride {
		if err := im.Store.ReadAt(addr, buf); err != nil {
			return rows, err
		}
		if im.slotUnused(buf) {
			continue
		}
		row := TelemetryRow{Addr: addr}
		if err := row.UnmarshalBinary(buf); err != nil {
			return rows, fmt.Errorf("telemetry at 0x%x: %w", addr, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Events decodes the event log.
func (im *Image) Events() ([]EventRow, error) {
	p := im.Memory.Events
	_, cursor := im.cursors()
	end, err := im.Extent(p, cursor)
	if err != nil {
		return nil, err
	}
	var rows []EventRow
	buf := make([]byte, p.Stride)
	for addr := p.Base; addr < end; addr += p.Stride {
		if err := im.Store.ReadAt(addr, buf); err != nil {
			return rows, err
		}
		if im.slotUnused(buf) {
			continue
		}
		row := EventRow{Addr: addr}
		if err := row.UnmarshalBinary(buf); err != nil {
			return rows, fmt.Errorf("event at 0x%x: %w", addr, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
