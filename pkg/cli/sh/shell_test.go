package sh

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/iris/pkg/clock"
	"github.com/robotalks/iris/pkg/config"
	"github.com/robotalks/iris/pkg/datalog"
	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/storage"
	"github.com/robotalks/iris/pkg/storage/nor"
	"github.com/robotalks/iris/pkg/telemetry"
)

var (
	framTlm = storage.Partition{Name: "fram-telemetry", Base: 0x100, Size: 8 * record.TelemetrySize, Stride: record.TelemetrySize}
	framEvt = storage.Partition{Name: "fram-events", Base: 0x400, Size: 8 * record.EventSize, Stride: record.EventSize}
	norTlm  = storage.Partition{Name: "nor-telemetry", Base: 0, Size: nor.SectorSize, Stride: record.TelemetrySize}
	norEvt  = storage.Partition{Name: "nor-events", Base: nor.SectorSize, Size: nor.SectorSize, Stride: record.EventSize}
)

type fixture struct {
	target *Target
	clk    *clock.Manual
	out    bytes.Buffer
	shell  *Shell
	stop   func()
}

func newFixture(t *testing.T, running bool) *fixture {
	f := &fixture{clk: &clock.Manual{Epoch: 1625097600}}
	fram := storage.NewMem(0x800, 0)
	var defaults config.Register
	defaults.FRAMTelemetryPeriod, defaults.NORTelemetryPeriod = 600, 10
	defaults.Cursors = [config.NumCursors]uint32{framTlm.Base, framEvt.Base, norTlm.Base, norEvt.Base}
	reg, err := config.Load(fram, 0, defaults)
	require.NoError(t, err)

	flash := nor.NewStore(nor.NewSim(2*nor.SectorSize), 2*nor.SectorSize)
	flash.Sleep = func(time.Duration) {}
	logger := datalog.NewLogger(f.clk, telemetry.NewAccumulator(), reg,
		datalog.NewMemory(fram, framTlm, framEvt, reg.Cursor(config.FRAMTelemetryCursor), reg.Cursor(config.FRAMEventCursor)),
		datalog.NewMemory(flash, norTlm, norEvt, reg.Cursor(config.NORTelemetryCursor), reg.Cursor(config.NOREventCursor)))

	loop := fx.NewLoop()
	loop.Interval = time.Hour
	loop.Add(fx.RequestServer{})
	f.target = &Target{Loop: loop, Logger: logger, Register: reg}
	f.shell = New(f.target).SetOut(&f.out)
	f.stop = func() {}
	if running {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			loop.Run(ctx)
			close(done)
		}()
		f.stop = func() {
			cancel()
			<-done
		}
	}
	return f
}

func (f *fixture) run(t *testing.T, args ...string) string {
	f.out.Reset()
	require.NoError(t, f.shell.Shell.Process(args...))
	return f.out.String()
}

func TestEventAndRead(t *testing.T) {
	f := newFixture(t, true)
	defer f.stop()

	require.Equal(t, "OK\n", f.run(t, "event", "CAMERA_ON", "1", "0x02"))
	require.Equal(t, "OK\n", f.run(t, "event", "40"))

	out := f.run(t, "memory", "read", "fram", "event")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, strings.Join(record.EventHeader, ","), lines[0])
	require.Equal(t, "1024,2021-07-01 00:00:00,1625097600,0,0,0,10,1,2,0,0,0", lines[1])
	require.True(t, strings.HasPrefix(lines[2], "1040,"))

	out = f.run(t, "memory", "read", "nor", "event", "1", "5")
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasSuffix(lines[1], ",40,0,0,0,0,0"))

	out = f.run(t, "memory", "read", "nor", "tlm")
	require.Equal(t, strings.Join(record.TelemetryHeader, ",")+"\n", out)
}

func TestStatusAndConfig(t *testing.T) {
	f := newFixture(t, true)
	defer f.stop()

	out := f.run(t, "status")
	require.Contains(t, out, "fram: ready")
	require.Contains(t, out, "nor: ready")
	require.Contains(t, out, "0/8 (0.0%) cursor 0x00000100")

	out = f.run(t, "memory", "status")
	require.Contains(t, out, "nor: ready")
	require.NotContains(t, out, "deduplicated")

	out = f.run(t, "config")
	require.Contains(t, out, "magic 0xbabe")
	require.Contains(t, out, "cursor nor_event       0x00040000")

	out = f.run(t, "tm", "fram")
	require.Contains(t, out, "time           2021-07-01 00:00:00")

	f.shell.OutputJSON = true
	out = f.run(t, "status")
	require.True(t, strings.HasPrefix(out, `{"memories":[{"attached":true`))
}

func TestDumpAndErase(t *testing.T) {
	f := newFixture(t, true)
	defer f.stop()

	require.Equal(t, "OK\n", f.run(t, "event", "BOOT", "5"))
	out := f.run(t, "memory", "dump", "fram", "0x400", "20")
	require.Equal(t, "00000400  80 05 dd 60 00 00 00 00 00 00 45 05 00 00 00 00\n00000410  00 00 00 00\n", out)

	require.Equal(t, "OK\n", f.run(t, "memory", "erase", "nor", "sector", "1"))
	require.Equal(t, "OK\n", f.run(t, "memory", "erase", "nor"))
	require.Equal(t, norEvt.Base+norEvt.Stride, f.target.Register.Reg.Cursors[config.NOREventCursor])
	rec, _, err := f.target.Logger.ReadEvent(telemetry.FRAM, 1)
	require.NoError(t, err)
	require.Equal(t, record.EventNORClean, rec.Code)

	require.Equal(t, "OK\n", f.run(t, "memory", "erase", "fram"))
	require.Equal(t, framEvt.Base, f.target.Register.Reg.Cursors[config.FRAMEventCursor])
}

func TestCommandErrors(t *testing.T) {
	f := newFixture(t, true)
	defer f.stop()
	for _, args := range [][]string{
		{"memory", "read", "sd", "tlm"},
		{"memory", "read", "nor", "pictures"},
		{"memory", "dump", "nor", "0", "100000"},
		{"memory", "erase"},
		{"memory", "erase", "nor", "sector", "x"},
		{"memory", "erase", "nor", "sector", "9"},
		{"event", "NOT_AN_EVENT"},
		{"event", "1", "1", "2", "3", "4", "5", "6"},
		{"event", "1", "256"},
		{"tm", "sd"},
	} {
		require.Error(t, f.shell.Shell.Process(args...), strings.Join(args, " "))
	}
}

func TestCommandTimeout(t *testing.T) {
	f := newFixture(t, false)
	f.shell.Timeout = 20 * time.Millisecond
	err := f.shell.Shell.Process("status")
	require.EqualError(t, err, "command timeout")
}
