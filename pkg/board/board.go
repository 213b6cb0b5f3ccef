// Package board opens the memories, buses and sensors of the flight
// computer, either on a Linux host with periph drivers or fully
// simulated.
package board

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"

	"github.com/robotalks/iris/pkg/clock"
	"github.com/robotalks/iris/pkg/config"
	"github.com/robotalks/iris/pkg/sensors"
	"github.com/robotalks/iris/pkg/storage"
	"github.com/robotalks/iris/pkg/storage/nor"
)

// ErrNoNORDevice indicates nor_device selects no chip select pin.
var ErrNoNORDevice = errors.New("no such nor device")

// Board holds the opened hardware.
type Board struct {
	Config *config.Config

	// FRAM is write protected outside of each write.
	FRAM      storage.ByteStore
	FRAMLatch *storage.Latch
	// RTC is nil when the host clock is used.
	RTC clock.TimeReader
	// Simulator is set when the sensors are simulated.
	Simulator *sensors.Simulator

	host    *host
	closers []io.Closer
}

// Open opens the FRAM image and, unless simulating, the host buses and
// the RTC.
func Open(conf *config.Config) (*Board, error) {
	b := &Board{Config: conf, FRAMLatch: &storage.Latch{}}
	raw, err := b.openImage(conf.FRAM, 0, b.FRAMLatch)
	if err != nil {
		return nil, fmt.Errorf("fram: %w", err)
	}
	b.FRAM = storage.NewProtected(raw, b.FRAMLatch)
	if !conf.Simulator {
		if b.host, err = openHost(conf.Board); err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, b.host)
		if conf.Board.RTC {
			b.RTC = NewRTC(b.host.i2c)
		}
	}
	return b, nil
}

// openImage opens the backing store of a host memory, in memory when
// no image file is configured.
func (b *Board) openImage(m config.Memory, fill byte, guard *storage.Latch) (storage.ByteStore, error) {
	if m.Image == "" {
		mem := storage.NewMem(m.Capacity, fill)
		if guard != nil {
			mem.Guard = guard
		}
		return mem, nil
	}
	f, err := storage.OpenFile(m.Image, m.Capacity, fill)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		f.Guard = guard
	}
	b.closers = append(b.closers, f)
	return f, nil
}

// OpenNOR opens the NOR device selected by the configuration register.
func (b *Board) OpenNOR(device uint8) (*nor.Store, error) {
	if b.host == nil {
		img, err := b.openImage(b.Config.NOR, storage.ErasedByte, nil)
		if err != nil {
			return nil, fmt.Errorf("nor: %w", err)
		}
		return nor.NewStore(nor.NewSimOn(img), b.Config.NOR.Capacity), nil
	}
	dev, err := b.host.nor(device)
	if err != nil {
		return nil, fmt.Errorf("nor%d: %w", device, err)
	}
	id, err := dev.ReadID()
	if err != nil {
		return nil, fmt.Errorf("nor%d: %w", device, err)
	}
	if name, ok := nor.DeviceName(id); ok {
		glog.Infof("nor%d: %s", device, name)
	} else {
		glog.Warningf("nor%d: unknown device id % x", device, id)
	}
	return nor.NewStore(dev, b.Config.NOR.Capacity), nil
}

// AttachSensors binds the sensors to acq and returns the sunrise line.
func (b *Board) AttachSensors(acq *sensors.Acquisition) (sensors.DigitalSignal, error) {
	if b.host == nil {
		b.Simulator = sensors.NewSimulator(acq.Clock)
		acq.Barometer = b.Simulator
		acq.Accelerometer = b.Simulator
		acq.Power = b.Simulator
		acq.Thermometers = b.Simulator
		acq.Bus = b.Simulator
		return b.Simulator, nil
	}
	s := sensors.NewI2CSensors(b.host.i2c)
	if err := s.ResetBus(); err != nil {
		glog.Warningf("sensor configuration: %v", err)
	}
	acq.Barometer = s
	acq.Accelerometer = s
	acq.Power = s
	acq.Thermometers = s
	acq.Bus = s
	return b.host.signal(b.Config.Board.SunrisePin)
}

// Close releases everything opened.
func (b *Board) Close() error {
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if e := b.closers[i].Close(); e != nil && err == nil {
			err = e
		}
	}
	b.closers = nil
	return err
}
