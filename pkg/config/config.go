// Package config holds the mission configuration loaded at startup and
// the configuration register persisted in FRAM.
package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/storage"
)

// Memory describes one memory device and its partitions.
type Memory struct {
	// Image is the backing file on a host; empty keeps it in memory.
	Image      string `yaml:"image"`
	Capacity   uint32 `yaml:"capacity"`
	SectorSize uint32 `yaml:"sector_size"`

	Config    *storage.Partition `yaml:"config,omitempty"`
	Telemetry storage.Partition  `yaml:"telemetry"`
	Events    storage.Partition  `yaml:"events"`
}

// Layout lists the partitions for validation.
func (m *Memory) Layout() storage.Layout {
	l := storage.Layout{Capacity: m.Capacity, Partitions: []storage.Partition{m.Telemetry, m.Events}}
	if m.Config != nil {
		l.Partitions = append(l.Partitions, *m.Config)
	}
	return l
}

// Periods are the save periods (seconds) and read periods (milliseconds).
type Periods struct {
	FRAMTelemetry uint16 `yaml:"fram_telemetry"`
	NORTelemetry  uint16 `yaml:"nor_telemetry"`
	Barometer     uint16 `yaml:"barometer"`
	Temperature   uint16 `yaml:"temperature"`
	Power         uint16 `yaml:"power"`
	Accelerometer uint16 `yaml:"accelerometer"`
}

// Board names the buses and pins of the flight computer on a Linux
// host. Empty bus names select the first bus found.
type Board struct {
	I2C   string `yaml:"i2c"`
	SPI   string `yaml:"spi"`
	SPIHz int64  `yaml:"spi_hz"`
	// NORSelect are the chip select pins, indexed by nor_device.
	NORSelect  []string `yaml:"nor_select"`
	SunrisePin string   `yaml:"sunrise_pin"`
	RTC        bool     `yaml:"rtc"`
}

// Config is the mission configuration.
type Config struct {
	FRAM    Memory  `yaml:"fram"`
	NOR     Memory  `yaml:"nor"`
	Periods Periods `yaml:"periods"`
	Board   Board   `yaml:"board"`

	// FRAMExemptEvents are event codes never written to FRAM.
	FRAMExemptEvents []uint8 `yaml:"fram_exempt_events"`
	NORDevice        uint8   `yaml:"nor_device"`
	Simulator        bool    `yaml:"simulator"`
}

var defaultConfig = Config{
	FRAM: Memory{
		Capacity:  0x10000,
		Config:    &storage.Partition{Name: "fram-config", Base: 0x0000, Size: 0x100, Stride: 1},
		Telemetry: storage.Partition{Name: "fram-telemetry", Base: 0x0100, Size: 512 * record.TelemetrySize},
		Events:    storage.Partition{Name: "fram-events", Base: 0x8100, Size: 2000 * record.EventSize},
	},
	NOR: Memory{
		Capacity:   64 << 20,
		SectorSize: 256 << 10,
		Telemetry:  storage.Partition{Name: "nor-telemetry", Base: 0, Size: 200 * (256 << 10)},
		Events:     storage.Partition{Name: "nor-events", Base: 200 * (256 << 10), Size: 56 * (256 << 10)},
	},
	Periods: Periods{
		FRAMTelemetry: 600,
		NORTelemetry:  10,
		Barometer:     1000,
		Temperature:   1000,
		Power:         100,
		Accelerometer: 100,
	},
	Board: Board{
		SPIHz:      8000000,
		NORSelect:  []string{"GPIO8", "GPIO7"},
		SunrisePin: "GPIO17",
		RTC:        true,
	},
	FRAMExemptEvents: []uint8{uint8(record.EventTimelapsePicture)},
}

var configFile string

func init() {
	if val := os.Getenv("IRIS_CONFIG"); val != "" {
		configFile = val
	}
}

// SetupFlags sets command line flags. Values from the -config file take
// precedence over flags.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "Mission configuration file (YAML).")
	flag.StringVar(&defaultConfig.FRAM.Image, "fram-image", defaultConfig.FRAM.Image, "FRAM image file, in memory if empty.")
	flag.StringVar(&defaultConfig.NOR.Image, "nor-image", defaultConfig.NOR.Image, "NOR image file, in memory if empty.")
	flag.BoolVar(&defaultConfig.Simulator, "sim", defaultConfig.Simulator, "Use simulated sensors.")
	flag.StringVar(&defaultConfig.Board.I2C, "i2c", defaultConfig.Board.I2C, "Sensor I2C bus name.")
	flag.StringVar(&defaultConfig.Board.SPI, "spi", defaultConfig.Board.SPI, "NOR SPI port name.")
	periodFlag(&defaultConfig.Periods.FRAMTelemetry, "fram-period", "FRAM telemetry save period in seconds.")
	periodFlag(&defaultConfig.Periods.NORTelemetry, "nor-period", "NOR telemetry save period in seconds.")
}

type uint16Value struct{ p *uint16 }

func (v uint16Value) String() string {
	if v.p == nil {
		return "0"
	}
	return fmt.Sprint(*v.p)
}

func (v uint16Value) Set(s string) error {
	var n uint16
	if _, err := fmt.Sscan(s, &n); err != nil {
		return err
	}
	*v.p = n
	return nil
}

func periodFlag(p *uint16, name, usage string) {
	flag.Var(uint16Value{p}, name, usage)
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults, merged with the -config
// file when one was given.
func NewConfig() (*Config, error) {
	conf := defaultConfig
	conf.FRAMExemptEvents = append([]uint8(nil), defaultConfig.FRAMExemptEvents...)
	conf.Board.NORSelect = append([]string(nil), defaultConfig.Board.NORSelect...)
	if defaultConfig.FRAM.Config != nil {
		part := *defaultConfig.FRAM.Config
		conf.FRAM.Config = &part
	}
	if configFile != "" {
		if err := conf.LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	conf.setStrides()
	return &conf, conf.Validate()
}

// LoadFile merges a YAML file into c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.Parse(data)
}

// Parse merges YAML content into c.
func (c *Config) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse mission config: %w", err)
	}
	c.setStrides()
	return nil
}

func (c *Config) setStrides() {
	for _, m := range []*Memory{&c.FRAM, &c.NOR} {
		m.Telemetry.Stride = record.TelemetrySize
		m.Events.Stride = record.EventSize
		if m.Config != nil {
			m.Config.Stride = 1
		}
	}
}

// Validate checks both memory layouts.
func (c *Config) Validate() error {
	if c.FRAM.Config == nil || c.FRAM.Config.Size < RegisterSize {
		return fmt.Errorf("fram: config region must hold %d bytes", RegisterSize)
	}
	if err := c.FRAM.Layout().Validate(0); err != nil {
		return fmt.Errorf("fram: %v", err)
	}
	if c.NOR.Config != nil {
		return fmt.Errorf("nor: config region not supported")
	}
	if err := c.NOR.Layout().Validate(c.NOR.SectorSize); err != nil {
		return fmt.Errorf("nor: %v", err)
	}
	if c.Periods.FRAMTelemetry == 0 || c.Periods.NORTelemetry == 0 {
		return fmt.Errorf("save periods must be positive")
	}
	return nil
}

// RegisterDefaults builds the register applied on a fresh device: all
// cursors at their partition bases.
func (c *Config) RegisterDefaults() Register {
	r := Register{
		Magic:               Magic,
		Version:             Version,
		NORTelemetryPeriod:  c.Periods.NORTelemetry,
		FRAMTelemetryPeriod: c.Periods.FRAMTelemetry,
		BarometerPeriod:     c.Periods.Barometer,
		TemperaturePeriod:   c.Periods.Temperature,
		PowerPeriod:         c.Periods.Power,
		AccelerometerPeriod: c.Periods.Accelerometer,
		NORDevice:           c.NORDevice,
	}
	r.Cursors[FRAMTelemetryCursor] = c.FRAM.Telemetry.Base
	r.Cursors[FRAMEventCursor] = c.FRAM.Events.Base
	r.Cursors[NORTelemetryCursor] = c.NOR.Telemetry.Base
	r.Cursors[NOREventCursor] = c.NOR.Events.Base
	if c.Simulator {
		r.Simulator = 1
	}
	return r
}

// ExemptSet returns FRAMExemptEvents as a set.
func (c *Config) ExemptSet() map[record.EventCode]bool {
	set := make(map[record.EventCode]bool, len(c.FRAMExemptEvents))
	for _, code := range c.FRAMExemptEvents {
		set[record.EventCode(code)] = true
	}
	return set
}
