package downlink

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/iris/pkg/downlink/msgs"
	"github.com/robotalks/iris/pkg/record"
	"github.com/robotalks/iris/pkg/telemetry"
)

type packet struct {
	topic   string
	payload []byte
	retain  bool
}

type fakeSink struct {
	packets []packet
	err     error
}

func (s *fakeSink) Pub(topic string, payload []byte, retain bool) error {
	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, packet{topic: topic, payload: payload, retain: retain})
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func decode(t *testing.T, data []byte) interface{} {
	typed, err := msgs.DecodeTyped(data)
	require.NoError(t, err)
	msg, err := typed.Decode()
	require.NoError(t, err)
	return msg
}

func TestPublisherTopics(t *testing.T) {
	sink := &fakeSink{}
	p := NewPublisher("a1b2c3", sink)
	rec := record.Telemetry{UnixTime: 1625097600, Pressure: 101325}
	p.TelemetrySaved(telemetry.NOR, 0x1C0, &rec)
	p.EventSaved(&record.Event{Code: record.EventBoot})
	p.PublishMeta(&msgs.DeviceMeta{DeviceId: "a1b2c3", Reboots: 3})
	require.Equal(t, 3, p.Stats().Queued)
	p.Flush()

	require.Len(t, sink.packets, 3)
	require.Equal(t, "a1b2c3/tlm/nor", sink.packets[0].topic)
	require.Equal(t, "a1b2c3/event", sink.packets[1].topic)
	require.Equal(t, "a1b2c3/meta", sink.packets[2].topic)
	require.False(t, sink.packets[0].retain)
	require.True(t, sink.packets[2].retain)

	report := decode(t, sink.packets[0].payload).(*msgs.TelemetryReport)
	require.Equal(t, uint32(0x1C0), report.Address)
	require.Equal(t, uint32(101325), report.Pressure)
	event := decode(t, sink.packets[1].payload).(*msgs.EventReport)
	require.Equal(t, "BOOT", event.Name)

	stats := p.Stats()
	require.Equal(t, 0, stats.Queued)
	require.Equal(t, uint64(3), stats.Published)
}

func TestPublisherDropsOldest(t *testing.T) {
	sink := &fakeSink{}
	p := NewPublisher("dev", sink)
	p.Capacity = 2
	for i := 1; i <= 4; i++ {
		p.EventSaved(&record.Event{UptimeMs: uint32(i), Code: record.EventStateChanged})
	}
	stats := p.Stats()
	require.Equal(t, 2, stats.Queued)
	require.Equal(t, uint64(2), stats.Dropped)
	p.Flush()
	require.Len(t, sink.packets, 2)
	require.Equal(t, uint32(3), decode(t, sink.packets[0].payload).(*msgs.EventReport).UptimeMs)
	require.Equal(t, uint32(4), decode(t, sink.packets[1].payload).(*msgs.EventReport).UptimeMs)
}

func TestPublisherSinkErrors(t *testing.T) {
	bad := &fakeSink{err: errors.New("offline")}
	good := &fakeSink{}
	p := NewPublisher("dev", bad, good)
	p.EventSaved(&record.Event{Code: record.EventBoot})
	p.Flush()
	require.Len(t, good.packets, 1)
	stats := p.Stats()
	require.Equal(t, uint64(1), stats.Errors)
	require.Equal(t, uint64(1), stats.Published)
}

func TestPublisherRun(t *testing.T) {
	sink := &fakeSink{}
	p := NewPublisher("dev")
	stream := NewStream(&bytes.Buffer{})
	p.Sinks = []Sink{sink, stream}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	p.EventSaved(&record.Event{Code: record.EventBoot})
	waitFor(t, func() bool { return p.Stats().Published == 2 })
	cancel()
	require.Equal(t, context.Canceled, <-done)
	require.Len(t, sink.packets, 1)
}

func TestStreamFraming(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf)
	require.NoError(t, s.Pub("dev/event", []byte{1, 2, 3}, false))
	require.NoError(t, s.Pub("dev/meta", nil, true))
	require.Equal(t, []byte{3, 0, 0, 0, 1, 2, 3, 0, 0, 0, 0}, buf.Bytes())

	pkt, err := ReadPacket(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, pkt)
	pkt, err = ReadPacket(&buf)
	require.NoError(t, err)
	require.Empty(t, pkt)
	_, err = ReadPacket(&buf)
	require.Error(t, err)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	require.NoError(t, hub.Pub("dev/meta", []byte("meta"), true))
	require.NoError(t, hub.Pub("dev/event", []byte("lost"), false))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	var pkt []byte
	require.NoError(t, websocket.Message.Receive(conn, &pkt))
	require.Equal(t, []byte("meta"), pkt)

	waitFor(t, func() bool { return hub.Clients() == 1 })
	require.NoError(t, hub.Pub("dev/event", []byte("event"), false))
	require.NoError(t, websocket.Message.Receive(conn, &pkt))
	require.Equal(t, []byte("event"), pkt)

	conn.Close()
	waitFor(t, func() bool { return hub.Clients() == 0 })
}
