package downlink

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/iris/pkg/framework"
)

const clientBacklog = 16

// Hub broadcasts packets to websocket clients as binary frames. Retained
// packets are replayed to clients when they connect. A client that
// can't keep up loses packets.
type Hub struct {
	lock     sync.Mutex
	clients  map[chan []byte]struct{}
	retained map[string][]byte
	order    []string
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[chan []byte]struct{}),
		retained: make(map[string][]byte),
	}
}

// Pub implements Sink.
func (h *Hub) Pub(topic string, payload []byte, retain bool) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if retain {
		if _, ok := h.retained[topic]; !ok {
			h.order = append(h.order, topic)
		}
		h.retained[topic] = payload
	}
	for ch := range h.clients {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

func (h *Hub) attach() chan []byte {
	ch := make(chan []byte, clientBacklog)
	h.lock.Lock()
	for _, topic := range h.order {
		ch <- h.retained[topic]
	}
	h.clients[ch] = struct{}{}
	h.lock.Unlock()
	return ch
}

func (h *Hub) detach(ch chan []byte) {
	h.lock.Lock()
	delete(h.clients, ch)
	h.lock.Unlock()
}

func (h *Hub) serve(conn *websocket.Conn) {
	ch := h.attach()
	defer h.detach(ch)
	glog.Infof("websocket client %s connected", conn.Request().RemoteAddr)
	done := make(chan struct{})
	go func() {
		// drain until the client goes away
		var discard []byte
		for websocket.Message.Receive(conn, &discard) == nil {
		}
		close(done)
	}()
	for {
		select {
		case <-done:
			return
		case pkt := <-ch:
			if err := websocket.Message.Send(conn, pkt); err != nil {
				glog.Warningf("websocket send: %v", err)
				return
			}
		}
	}
}

// Handler returns the websocket endpoint.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serve)
}

// Server serves the hub at /downlink.
type Server struct {
	Addr string
	Hub  *Hub
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/downlink", s.Hub.Handler())
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux}
	glog.Infof("downlink websocket on %s", ln.Addr())
	return fx.RunWithContextCloser(ctx, srv, func() error {
		return srv.Serve(ln)
	})
}
