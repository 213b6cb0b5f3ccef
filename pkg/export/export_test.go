package export

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/iris/pkg/config"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/storage"
)

var (
	norMemory = config.Memory{
		Capacity:  0x1000,
		Telemetry: storage.Partition{Name: "nor-telemetry", Base: 0, Size: 16 * record.TelemetrySize, Stride: record.TelemetrySize},
		Events:    storage.Partition{Name: "nor-events", Base: 0x800, Size: 16 * record.EventSize, Stride: record.EventSize},
	}
	framMemory = config.Memory{
		Capacity:  0x1000,
		Config:    &storage.Partition{Name: "fram-config", Base: 0, Size: 0x100, Stride: 1},
		Telemetry: storage.Partition{Name: "fram-telemetry", Base: 0x100, Size: 8 * record.TelemetrySize, Stride: record.TelemetrySize},
		Events:    storage.Partition{Name: "fram-events", Base: 0x400, Size: 8 * record.EventSize, Stride: record.EventSize},
	}
)

func telemetryAt(t *testing.T, s storage.ByteStore, p storage.Partition, index uint32, unix uint32) {
	rec := record.Telemetry{UnixTime: unix, Pressure: 90000, Temperatures: [3]int16{215, record.Sentinel, -12}}
	data, err := rec.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, s.WriteAt(p.Base+index*p.Stride, data))
}

func eventAt(t *testing.T, s storage.ByteStore, p storage.Partition, index uint32, code record.EventCode) {
	rec := record.Event{UnixTime: 1625097600 + index, Code: code, Payload: [record.PayloadSize]byte{byte(index)}}
	data, err := rec.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, s.WriteAt(p.Base+index*p.Stride, data))
}

func TestNORImageSkipsInterruptedWrite(t *testing.T) {
	mem := storage.NewMem(norMemory.Capacity, NORErased)
	for _, i := range []uint32{0, 1, 3} {
		telemetryAt(t, mem, norMemory.Telemetry, i, 1625097600+i)
	}
	eventAt(t, mem, norMemory.Events, 0, record.EventBoot)
	im, err := NewImage("nor", mem, norMemory, NORErased)
	require.NoError(t, err)
	require.Nil(t, im.Register)

	rows, err := im.Telemetry()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, uint32(3*record.TelemetrySize), rows[2].Addr)
	require.Equal(t, uint32(1625097603), rows[2].UnixTime)

	events, err := im.Events()
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, record.EventBoot, events[0].Code)
}

func TestFRAMImageUsesRegister(t *testing.T) {
	mem := storage.NewMem(framMemory.Capacity, FRAMErased)
	var reg config.Register
	reg.Magic, reg.Version = config.Magic, config.Version
	reg.Cursors = [config.NumCursors]uint32{
		framMemory.Telemetry.Base + record.TelemetrySize,
		framMemory.Events.Base + 2*record.EventSize,
	}
	buf := make([]byte, config.RegisterSize)
	reg.MarshalTo(buf)
	require.NoError(t, mem.WriteAt(0, buf))
	// stale records beyond the cursors after a FRAM erase are ignored
	telemetryAt(t, mem, framMemory.Telemetry, 0, 1625097600)
	telemetryAt(t, mem, framMemory.Telemetry, 1, 1625097660)
	for i := uint32(0); i < 3; i++ {
		eventAt(t, mem, framMemory.Events, i, record.EventCameraOn)
	}

	im, err := NewImage("fram", mem, framMemory, FRAMErased)
	require.NoError(t, err)
	require.NotNil(t, im.Register)
	rows, err := im.Telemetry()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	events, err := im.Events()
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestFRAMImageWithoutRegister(t *testing.T) {
	mem := storage.NewMem(framMemory.Capacity, FRAMErased)
	telemetryAt(t, mem, framMemory.Telemetry, 0, 1625097600)
	telemetryAt(t, mem, framMemory.Telemetry, 1, 1625097660)
	telemetryAt(t, mem, framMemory.Telemetry, 3, 1625097720)
	im, err := NewImage("fram", mem, framMemory, FRAMErased)
	require.NoError(t, err)
	require.Nil(t, im.Register)
	rows, err := im.Telemetry()
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestCSV(t *testing.T) {
	mem := storage.NewMem(norMemory.Capacity, NORErased)
	telemetryAt(t, mem, norMemory.Telemetry, 0, 1625097600)
	eventAt(t, mem, norMemory.Events, 0, record.EventSunriseActivated)
	im, err := NewImage("nor", mem, norMemory, NORErased)
	require.NoError(t, err)
	rows, err := im.Telemetry()
	require.NoError(t, err)
	events, err := im.Events()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, WriteTelemetryCSV(&out, rows))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, strings.Join(record.TelemetryHeader, ","), lines[0])
	require.True(t, strings.HasPrefix(lines[1], "0,2021-07-01 00:00:00,1625097600,0,90000,0,0,0,0,215,32767,-12,"))

	out.Reset()
	require.NoError(t, WriteEventsCSV(&out, events))
	require.Equal(t, strings.Join(record.EventHeader, ",")+"\n2048,2021-07-01 00:00:00,1625097600,0,0,0,101,0,0,0,0,0\n", out.String())
}

func TestLoadImage(t *testing.T) {
	dir, err := os.MkdirTemp("", "iris-export")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	mem := storage.NewMem(norMemory.Capacity, NORErased)
	telemetryAt(t, mem, norMemory.Telemetry, 0, 1625097600)
	path := filepath.Join(dir, "nor.img")
	// images are often truncated after the last written sector
	require.NoError(t, os.WriteFile(path, mem.Bytes()[:0x100], 0644))

	im, err := LoadImage("nor", path, norMemory, NORErased)
	require.NoError(t, err)
	require.Equal(t, norMemory.Capacity, im.Store.Size())
	rows, err := im.Telemetry()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	events, err := im.Events()
	require.NoError(t, err)
	require.Empty(t, events)

	_, err = LoadImage("nor", filepath.Join(dir, "missing.img"), norMemory, NORErased)
	require.Error(t, err)
}

func TestSQLite(t *testing.T) {
	dir, err := os.MkdirTemp("", "iris-export")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	ctx := context.Background()

	db, err := OpenDB(ctx, filepath.Join(dir, "flight.db"))
	require.NoError(t, err)
	defer db.Close()

	rows := []TelemetryRow{
		{Addr: 0, Telemetry: record.Telemetry{UnixTime: 1625097600, Pressure: 90000, Altitude: 98800, Temperatures: [3]int16{215, record.Sentinel, -12}}},
		{Addr: 64, Telemetry: record.Telemetry{UnixTime: 1625097610, Pressure: uint32(record.Sentinel), Altitude: int32(record.Sentinel)}},
	}
	require.NoError(t, db.InsertTelemetry(ctx, "nor", rows))
	// re-exporting the same image replaces rows
	require.NoError(t, db.InsertTelemetry(ctx, "nor", rows))
	require.NoError(t, db.InsertEvents(ctx, "fram", []EventRow{
		{Addr: 0x400, Event: record.Event{UnixTime: 1625097600, Code: record.EventBoot, Payload: [record.PayloadSize]byte{1, 0, 0, 0, 3}}},
	}))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM telemetry`).Scan(&count))
	require.Equal(t, 2, count)

	var temp1 sql.NullInt64
	var temp0 int64
	require.NoError(t, db.QueryRow(`SELECT temp0, temp1 FROM telemetry WHERE address = 0`).Scan(&temp0, &temp1))
	require.Equal(t, int64(215), temp0)
	require.False(t, temp1.Valid)

	var pressure sql.NullInt64
	require.NoError(t, db.QueryRow(`SELECT pressure FROM telemetry WHERE address = 64`).Scan(&pressure))
	require.False(t, pressure.Valid)

	var name, date string
	var payload []byte
	require.NoError(t, db.QueryRow(`SELECT name, date, payload FROM events WHERE memory = 'fram'`).Scan(&name, &date, &payload))
	require.Equal(t, "BOOT", name)
	require.Equal(t, "2021-07-01 00:00:00", date)
	require.Equal(t, []byte{1, 0, 0, 0, 3}, payload)
}
