package downlink

import (
	"context"
	"flag"
	"io"
	"os"
	"strings"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/iris/pkg/downlink/mqtt"
	fx "github.com/robotalks/iris/pkg/framework"
)

// AppID scopes the protected machine id.
const AppID = "iris"

const deviceIDLen = 12

// Config defines the downlink sinks. Empty values disable a sink.
type Config struct {
	MQTTURL   string
	Listen    string
	Serial    string
	DeviceID  string
	QueueSize int
}

var defaultConfig = Config{
	QueueSize: DefaultQueueSize,
}

func init() {
	if val := os.Getenv("IRIS_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL for the downlink.")
	flag.StringVar(&defaultConfig.Listen, "ws-listen", defaultConfig.Listen, "Websocket downlink listen address.")
	flag.StringVar(&defaultConfig.Serial, "serial", defaultConfig.Serial, "Serial device for the radio downlink.")
	flag.StringVar(&defaultConfig.DeviceID, "device-id", defaultConfig.DeviceID, "Device id in topics, from the machine id if empty.")
	flag.IntVar(&defaultConfig.QueueSize, "downlink-queue", defaultConfig.QueueSize, "Downlink queue size.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// DeviceID derives a stable device id from the machine id, falling back
// to the host name.
func DeviceID() string {
	id, err := machineid.ProtectedID(AppID)
	if err != nil {
		glog.Warningf("machine id: %v", err)
		if id, err = os.Hostname(); err != nil {
			return AppID
		}
		return strings.ToLower(id)
	}
	if len(id) > deviceIDLen {
		id = id[:deviceIDLen]
	}
	return id
}

// Downlink is the assembled publisher with its sinks.
type Downlink struct {
	*Publisher

	Queue  *mqtt.Queue
	Hub    *Hub
	Server *Server

	closers []io.Closer
}

// New assembles the sinks and the publisher. The MQTT connection is
// established asynchronously and retried by the client.
func (c *Config) New() (*Downlink, error) {
	deviceID := c.DeviceID
	if deviceID == "" {
		deviceID = DeviceID()
	}
	d := &Downlink{Publisher: NewPublisher(deviceID)}
	if c.QueueSize > 0 {
		d.Capacity = c.QueueSize
	}
	if c.MQTTURL != "" {
		q, err := mqtt.NewQueueFromURL(c.MQTTURL)
		if err != nil {
			return nil, err
		}
		d.Queue = q
		d.Sinks = append(d.Sinks, q)
	}
	if c.Listen != "" {
		d.Hub = NewHub()
		d.Server = &Server{Addr: c.Listen, Hub: d.Hub}
		d.Sinks = append(d.Sinks, d.Hub)
	}
	if c.Serial != "" {
		f, err := os.OpenFile(c.Serial, os.O_WRONLY, 0)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, f)
		d.Sinks = append(d.Sinks, NewStream(f))
	}
	glog.Infof("downlink device %s, %d sinks", deviceID, len(d.Sinks))
	return d, nil
}

// Run implements Runnable.
func (d *Downlink) Run(ctx context.Context) error {
	if d.Queue != nil {
		d.Queue.Connect()
		defer d.Queue.Close()
	}
	runner := fx.NewRunnerWith(ctx)
	if d.Server != nil {
		runner.Go(fx.NamedRun("websocket", d.Server))
	}
	runner.Go(fx.NamedRun("publisher", d.Publisher))
	return runner.Wait()
}

// Close implements io.Closer.
func (d *Downlink) Close() error {
	var errs fx.AggregatedError
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs.Add(d.closers[i].Close())
	}
	d.closers = nil
	return errs.Aggregate()
}
