package sh

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/telemetry"
)

// MaxDump limits the bytes of one memory dump.
const MaxDump = 4096

func parseMemory(arg string) (telemetry.Instance, error) {
	switch strings.ToLower(arg) {
	case "fram":
		return telemetry.FRAM, nil
	case "nor":
		return telemetry.NOR, nil
	}
	return 0, fmt.Errorf("unknown memory %q, expect nor or fram", arg)
}

func parseUint(arg, name string, bits int) (uint64, error) {
	val, err := strconv.ParseUint(arg, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", name, err)
	}
	return val, nil
}

func statusOf(c *ishell.Context) fx.RequestFunc {
	t := ShellFrom(c).Target
	return func(fx.ControlContext) (interface{}, error) {
		st := &Status{Deduplicated: t.Logger.Deduplicated()}
		for mem := telemetry.Instance(0); mem < telemetry.NumInstances; mem++ {
			st.Memories = append(st.Memories, t.Logger.Status(mem))
		}
		_, nor := t.Logger.CurrentRecords()
		st.Errors = nor.Errors
		return st, nil
	}
}

type rows struct {
	header []string
	rows   [][]string
}

func formatRows(w io.Writer, val interface{}) {
	r := val.(*rows)
	cw := csv.NewWriter(w)
	cw.Write(r.header)
	cw.WriteAll(r.rows)
}

func readRows(c *ishell.Context, mem telemetry.Instance, events bool, start, end uint64, bounded bool) fx.RequestFunc {
	logger := ShellFrom(c).Target.Logger
	return func(fx.ControlContext) (interface{}, error) {
		st := logger.Status(mem)
		if !st.Attached {
			return nil, fmt.Errorf("%s not attached", mem)
		}
		r := &rows{header: record.TelemetryHeader}
		used := st.Telemetry.Used
		if events {
			r.header, used = record.EventHeader, st.Events.Used
		}
		if !bounded || end > uint64(used) {
			end = uint64(used)
		}
		for i := start; i < end; i++ {
			if events {
				rec, addr, err := logger.ReadEvent(mem, uint32(i))
				if err != nil {
					return nil, err
				}
				r.rows = append(r.rows, rec.CSV(addr))
				continue
			}
			rec, addr, err := logger.ReadTelemetry(mem, uint32(i))
			if err != nil {
				return nil, err
			}
			r.rows = append(r.rows, rec.CSV(addr))
		}
		return r, nil
	}
}

var (
	// StatusCmd prints the memories and counters.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "memory status and error counters",
		Func: func(c *ishell.Context) {
			DoCommand(c, statusOf(c), FormatStatus)
		},
	}

	// TelemetryCmd prints the record being accumulated.
	TelemetryCmd = ishell.Cmd{
		Name: "tm",
		Help: "[nor|fram] print the telemetry record in flight",
		Func: func(c *ishell.Context) {
			mem := telemetry.NOR
			if len(c.Args) > 0 {
				var err error
				if mem, err = parseMemory(c.Args[0]); err != nil {
					c.Err(err)
					return
				}
			}
			logger := ShellFrom(c).Target.Logger
			DoCommand(c, func(fx.ControlContext) (interface{}, error) {
				fram, nor := logger.CurrentRecords()
				if mem == telemetry.FRAM {
					return &fram, nil
				}
				return &nor, nil
			}, FormatTelemetry)
		},
	}

	// MemoryCmd groups memory operations.
	MemoryCmd = ishell.Cmd{
		Name:    "memory",
		Aliases: []string{"mem"},
		Help:    "memory status|read|dump|erase",
	}

	// MemoryStatusCmd prints the memories.
	MemoryStatusCmd = ishell.Cmd{
		Name: "status",
		Help: "memory status",
		Func: func(c *ishell.Context) {
			DoCommand(c, statusOf(c), func(w io.Writer, val interface{}) {
				st := val.(*Status)
				for i := range st.Memories {
					FormatMemoryStatus(w, &st.Memories[i])
				}
			})
		},
	}

	// MemoryReadCmd prints records as CSV.
	MemoryReadCmd = ishell.Cmd{
		Name: "read",
		Help: "nor|fram tlm|event [START] [END] print records as CSV",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("MEMORY and KIND required"))
				return
			}
			mem, err := parseMemory(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			var events bool
			switch c.Args[1] {
			case "tlm", "telemetry":
			case "event", "events":
				events = true
			default:
				c.Err(fmt.Errorf("unknown record kind %q, expect tlm or event", c.Args[1]))
				return
			}
			var start, end uint64
			if len(c.Args) > 2 {
				if start, err = parseUint(c.Args[2], "START", 32); err != nil {
					c.Err(err)
					return
				}
			}
			if len(c.Args) > 3 {
				if end, err = parseUint(c.Args[3], "END", 32); err != nil {
					c.Err(err)
					return
				}
			}
			DoCommand(c, readRows(c, mem, events, start, end, len(c.Args) > 3), formatRows)
		},
	}

	// MemoryDumpCmd prints raw memory.
	MemoryDumpCmd = ishell.Cmd{
		Name: "dump",
		Help: "nor|fram ADDR [N] hex dump N bytes (default 256)",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("MEMORY and ADDR required"))
				return
			}
			mem, err := parseMemory(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			addr, err := parseUint(c.Args[1], "ADDR", 32)
			if err != nil {
				c.Err(err)
				return
			}
			n := uint64(256)
			if len(c.Args) > 2 {
				if n, err = parseUint(c.Args[2], "N", 32); err != nil {
					c.Err(err)
					return
				}
			}
			if n == 0 || n > MaxDump {
				c.Err(fmt.Errorf("N must be within 1..%d", MaxDump))
				return
			}
			logger := ShellFrom(c).Target.Logger
			DoCommand(c, func(fx.ControlContext) (interface{}, error) {
				return logger.ReadRaw(mem, uint32(addr), uint32(n))
			}, func(w io.Writer, val interface{}) {
				FormatDump(w, uint32(addr), val.([]byte))
			})
		},
	}

	// MemoryEraseCmd erases a memory.
	MemoryEraseCmd = ishell.Cmd{
		Name: "erase",
		Help: "nor [sector N] | fram",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("MEMORY required"))
				return
			}
			mem, err := parseMemory(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			logger := ShellFrom(c).Target.Logger
			var fn fx.RequestFunc
			switch {
			case mem == telemetry.FRAM:
				fn = func(fx.ControlContext) (interface{}, error) { return nil, logger.EraseFRAM() }
			case len(c.Args) == 1:
				fn = func(fx.ControlContext) (interface{}, error) { return nil, logger.EraseNOR() }
			case len(c.Args) == 3 && c.Args[1] == "sector":
				sector, err := parseUint(c.Args[2], "sector", 32)
				if err != nil {
					c.Err(err)
					return
				}
				fn = func(fx.ControlContext) (interface{}, error) {
					return nil, logger.EraseNORSector(uint32(sector))
				}
			default:
				c.Err(fmt.Errorf("usage: erase nor [sector N] | fram"))
				return
			}
			DoCommand(c, fn, nil)
		},
	}

	// EventCmd injects an event.
	EventCmd = ishell.Cmd{
		Name: "event",
		Help: "CODE [P0..P4] log an event",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("CODE required"))
				return
			}
			if len(c.Args) > 1+record.PayloadSize {
				c.Err(fmt.Errorf("at most %d payload bytes", record.PayloadSize))
				return
			}
			code, err := record.ParseEventCode(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			var payload [record.PayloadSize]byte
			for i, arg := range c.Args[1:] {
				val, err := parseUint(arg, fmt.Sprintf("P%d", i), 8)
				if err != nil {
					c.Err(err)
					return
				}
				payload[i] = byte(val)
			}
			logger := ShellFrom(c).Target.Logger
			DoCommand(c, func(fx.ControlContext) (interface{}, error) {
				return nil, logger.LogEvent(code, payload)
			}, nil)
		},
	}

	// ConfigCmd prints the configuration register.
	ConfigCmd = ishell.Cmd{
		Name:    "config",
		Aliases: []string{"cfg"},
		Help:    "print the configuration register",
		Func: func(c *ishell.Context) {
			store := ShellFrom(c).Target.Register
			DoCommand(c, func(fx.ControlContext) (interface{}, error) {
				reg := store.Reg
				return &reg, nil
			}, FormatRegister)
		},
	}
)

func init() {
	MemoryCmd.AddCmd(&MemoryStatusCmd)
	MemoryCmd.AddCmd(&MemoryReadCmd)
	MemoryCmd.AddCmd(&MemoryDumpCmd)
	MemoryCmd.AddCmd(&MemoryEraseCmd)
}
