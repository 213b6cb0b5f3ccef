// Package downlink streams persisted telemetry and events to live
// monitors over MQTT, websocket and serial links.
package downlink

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/iris/pkg/downlink/msgs"
	fx "github.com/robotalks/iris/pkg/framework"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/telemetry"
)

// Sink delivers encoded packets. mqtt.Queue is a Sink.
type Sink interface {
	Pub(topic string, payload []byte, retain bool) error
}

// Topics below <device-id>/.
const (
	TopicTelemetry = "tlm/"
	TopicEvent     = "event"
	TopicMeta      = "meta"
)

// DefaultQueueSize is the number of reports buffered for the sinks.
const DefaultQueueSize = 64

type report struct {
	topic  string
	msg    fx.Message
	retain bool
}

// Stats counts reports.
type Stats struct {
	Queued    int
	Published uint64
	Dropped   uint64
	Errors    uint64
}

// Publisher is a datalog.Observer queuing reports for its sinks. It is
// called on the loop goroutine and never blocks; when the queue is full
// the oldest report is dropped.
type Publisher struct {
	DeviceID string
	Sinks    []Sink
	Capacity int

	lock   sync.Mutex
	queue  []report
	stats  Stats
	wakeCh chan struct{}
}

// NewPublisher creates a Publisher.
func NewPublisher(deviceID string, sinks ...Sink) *Publisher {
	return &Publisher{
		DeviceID: deviceID,
		Sinks:    sinks,
		Capacity: DefaultQueueSize,
		wakeCh:   make(chan struct{}, 1),
	}
}

// Topic is the full topic of a report below the device id.
func (p *Publisher) Topic(topic string) string {
	return p.DeviceID + "/" + topic
}

func (p *Publisher) enqueue(r report) {
	p.lock.Lock()
	capacity := p.Capacity
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	if len(p.queue) >= capacity {
		p.queue = p.queue[1:]
		p.stats.Dropped++
	}
	p.queue = append(p.queue, r)
	p.lock.Unlock()
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

// TelemetrySaved implements datalog.Observer.
func (p *Publisher) TelemetrySaved(mem telemetry.Instance, addr uint32, rec *record.Telemetry) {
	p.enqueue(report{
		topic: TopicTelemetry + mem.String(),
		msg:   msgs.NewTelemetryReport(mem.String(), addr, rec),
	})
}

// EventSaved implements datalog.Observer.
func (p *Publisher) EventSaved(rec *record.Event) {
	p.enqueue(report{topic: TopicEvent, msg: msgs.NewEventReport(rec)})
}

// PublishMeta queues the retained device description.
func (p *Publisher) PublishMeta(meta *msgs.DeviceMeta) {
	p.enqueue(report{topic: TopicMeta, msg: meta, retain: true})
}

// Stats returns the counters.
func (p *Publisher) Stats() Stats {
	p.lock.Lock()
	defer p.lock.Unlock()
	s := p.stats
	s.Queued = len(p.queue)
	return s
}

func (p *Publisher) take() []report {
	p.lock.Lock()
	defer p.lock.Unlock()
	reports := p.queue
	p.queue = nil
	return reports
}

// Flush publishes everything queued.
func (p *Publisher) Flush() {
	for _, r := range p.take() {
		data, err := msgs.Encode(r.msg)
		if err != nil {
			glog.Errorf("encode %s: %v", r.topic, err)
			p.count(0, 1)
			continue
		}
		topic := p.Topic(r.topic)
		for _, sink := range p.Sinks {
			if err := sink.Pub(topic, data, r.retain); err != nil {
				glog.Warningf("publish %s: %v", topic, err)
				p.count(0, 1)
				continue
			}
			p.count(1, 0)
		}
	}
}

func (p *Publisher) count(published, errors uint64) {
	p.lock.Lock()
	p.stats.Published += published
	p.stats.Errors += errors
	p.lock.Unlock()
}

// Run implements Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.Flush()
			return ctx.Err()
		case <-p.wakeCh:
			p.Flush()
		}
	}
}
