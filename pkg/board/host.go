package board

import (
	"fmt"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	hostinit "periph.io/x/host/v3"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ds1307"

	"github.com/robotalks/iris/pkg/clock"
	"github.com/robotalks/iris/pkg/config"
	"github.com/robotalks/iris/pkg/sensors"
	"github.com/robotalks/iris/pkg/storage/nor"
)

// host holds the periph buses. periph i2c.Bus satisfies the tinygo
// drivers.I2C interface.
type host struct {
	conf config.Board
	i2c  i2c.BusCloser
	spi  spi.PortCloser
	conn spi.Conn
}

func openHost(conf config.Board) (*host, error) {
	if _, err := hostinit.Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	h := &host{conf: conf}
	var err error
	if h.i2c, err = i2creg.Open(conf.I2C); err != nil {
		return nil, fmt.Errorf("i2c %q: %w", conf.I2C, err)
	}
	if h.spi, err = spireg.Open(conf.SPI); err != nil {
		h.i2c.Close()
		return nil, fmt.Errorf("spi %q: %w", conf.SPI, err)
	}
	glog.Infof("board: i2c %s, spi %s", h.i2c, h.spi)
	return h, nil
}

// NewRTC reads the wall clock from a DS1307 compatible chip (DS1338Z).
func NewRTC(bus drivers.I2C) clock.TimeReader {
	dev := ds1307.New(bus)
	return &dev
}

// nor connects the SPI port once and selects the chip by its GPIO.
// Chip selects of the other devices are driven high.
func (h *host) nor(device uint8) (*nor.Device, error) {
	if int(device) >= len(h.conf.NORSelect) {
		return nil, ErrNoNORDevice
	}
	if h.conn == nil {
		conn, err := h.spi.Connect(physic.Frequency(h.conf.SPIHz)*physic.Hertz, spi.Mode0|spi.NoCS, 8)
		if err != nil {
			return nil, err
		}
		h.conn = conn
	}
	var cs gpio.PinIO
	for i, name := range h.conf.NORSelect {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("unknown pin %q", name)
		}
		if err := pin.Out(gpio.High); err != nil {
			return nil, err
		}
		if i == int(device) {
			cs = pin
		}
	}
	return nor.New(h.conn, cs), nil
}

type pinSignal struct {
	pin gpio.PinIn
}

// ReadSignal implements sensors.DigitalSignal.
func (s pinSignal) ReadSignal() bool {
	return s.pin.Read() == gpio.High
}

func (h *host) signal(name string) (sensors.DigitalSignal, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("unknown pin %q", name)
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, err
	}
	return pinSignal{pin: pin}, nil
}

func (h *host) Close() error {
	err := h.spi.Close()
	if e := h.i2c.Close(); err == nil {
		err = e
	}
	return err
}
