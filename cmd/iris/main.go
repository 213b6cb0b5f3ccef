package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/iris/pkg/board"
	"github.com/robotalks/iris/pkg/cli/sh"
	"github.com/robotalks/iris/pkg/clock"
	"github.com/robotalks/iris/pkg/config"
	"github.com/robotalks/iris/pkg/datalog"
	"github.com/robotalks/iris/pkg/downlink"
	"github.com/robotalks/iris/pkg/downlink/msgs"
	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/sensors"
	"github.com/robotalks/iris/pkg/telemetry"
)

var (
	interactive  bool
	rebootReason uint
)

func init() {
	config.SetupFlags()
	downlink.SetupFlags()
	flag.BoolVar(&interactive, "shell", interactive, "Run the maintenance terminal on stdin.")
	flag.UintVar(&rebootReason, "reboot-reason", rebootReason, "Reboot reason recorded in the boot event.")
}

func sensorPeriods(r *config.Register) sensors.Periods {
	p := sensors.DefaultPeriods
	for _, v := range []struct {
		dst *uint32
		src uint16
	}{
		{&p.Barometer, r.BarometerPeriod},
		{&p.Temperature, r.TemperaturePeriod},
		{&p.Power, r.PowerPeriod},
		{&p.Accelerometer, r.AccelerometerPeriod},
	} {
		if v.src != 0 {
			*v.dst = uint32(v.src)
		}
	}
	return p
}

func openLogger(conf *config.Config, b *board.Board, clk clock.Clock, acc *telemetry.Accumulator) (*datalog.Logger, *config.Store, error) {
	reg, err := config.Load(b.FRAM, conf.FRAM.Config.Base, conf.RegisterDefaults())
	if err != nil {
		return nil, nil, err
	}
	if err := reg.NoteBoot(uint16(rebootReason)); err != nil {
		glog.Errorf("configuration register: %v", err)
	}
	fram := datalog.NewMemory(b.FRAM, conf.FRAM.Telemetry, conf.FRAM.Events,
		reg.Cursor(config.FRAMTelemetryCursor), reg.Cursor(config.FRAMEventCursor))
	var norMem *datalog.Memory
	if flash, err := b.OpenNOR(reg.Reg.NORDevice); err != nil {
		glog.Errorf("nor%d: %v, logging to fram only", reg.Reg.NORDevice, err)
	} else {
		norMem = datalog.NewMemory(flash, conf.NOR.Telemetry, conf.NOR.Events,
			reg.Cursor(config.NORTelemetryCursor), reg.Cursor(config.NOREventCursor))
	}
	logger := datalog.NewLogger(clk, acc, reg, fram, norMem)
	logger.FRAMExempt = conf.ExemptSet()
	if reg.Reg.FRAMTelemetryPeriod != 0 {
		logger.Periods[telemetry.FRAM] = uint32(reg.Reg.FRAMTelemetryPeriod)
	}
	if reg.Reg.NORTelemetryPeriod != 0 {
		logger.Periods[telemetry.NOR] = uint32(reg.Reg.NORTelemetryPeriod)
	}
	return logger, reg, nil
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf, err := config.NewConfig()
	if err != nil {
		glog.Exitf("mission config: %v", err)
	}
	b, err := board.Open(conf)
	if err != nil {
		glog.Exitf("board: %v", err)
	}
	defer b.Close()

	clk := clock.NewSystem(b.RTC)
	acc := telemetry.NewAccumulator()
	logger, reg, err := openLogger(conf, b, clk, acc)
	if err != nil {
		glog.Exitf("logger: %v", err)
	}

	dl, err := downlink.NewConfig().New()
	if err != nil {
		glog.Exitf("downlink: %v", err)
	}
	defer dl.Close()
	logger.AddObserver(dl.Publisher)

	if err := logger.Recover(reg.Trusted); err != nil {
		glog.Errorf("cursor recovery: %v", err)
	}
	if err := logger.LogBoot(reg.Reg.RebootReason, config.FirmwareVersion); err != nil {
		glog.Errorf("boot event: %v", err)
	}
	dl.PublishMeta(&msgs.DeviceMeta{
		DeviceId:     dl.DeviceID,
		Firmware:     uint32(config.FirmwareVersion),
		Reboots:      uint32(reg.Reg.Reboots),
		RebootReason: uint32(reg.Reg.RebootReason),
		BootTime:     clk.UnixTime(),
		Simulator:    conf.Simulator,
	})

	acq := sensors.NewAcquisition(clk, acc, logger)
	acq.Periods = sensorPeriods(&reg.Reg)
	sig, err := b.AttachSensors(acq)
	if err != nil {
		glog.Exitf("sensors: %v", err)
	}

	loop := fx.NewLoop().Add(acq, logger, fx.RequestServer{})
	if sig != nil {
		loop.Add(sensors.NewSignalMonitor(clk, sig, acc, logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := fx.NewRunnerWith(ctx).HandleSignals()
	runner.Go(fx.NamedRun("loop", loop), fx.NamedRun("downlink", dl))
	if interactive {
		shell := sh.New(&sh.Target{Loop: loop, Logger: logger, Register: reg})
		runner.Go(fx.NamedRun("shell", fx.RunnableFunc(func(ctx context.Context) error {
			defer cancel()
			return shell.Run(ctx, flag.Args()...)
		})))
	}
	glog.Infof("iris firmware %d started, reboot %d", config.FirmwareVersion, reg.Reg.Reboots)
	if err := runner.Wait(); err != nil {
		glog.Errorf("stopped: %v", err)
	}
}
