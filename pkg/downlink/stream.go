package downlink

import (
	"encoding/binary"
	"io"
	"sync"
)

// Stream writes packets to a byte stream such as a radio modem serial
// port. Each packet is prefixed by its length (4 bytes, little-endian);
// the topic is not sent since the envelope names the message type.
type Stream struct {
	W io.Writer

	lock sync.Mutex
}

// NewStream creates a Stream over w.
func NewStream(w io.Writer) *Stream {
	return &Stream{W: w}
}

// Pub implements Sink.
func (s *Stream) Pub(_ string, payload []byte, _ bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := binary.Write(s.W, binary.LittleEndian, uint32(len(payload))); err != nil {
		return err
	}
	_, err := s.W.Write(payload)
	return err
}

// ReadPacket reads one packet written by a Stream.
func ReadPacket(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	pkt := make([]byte, size)
	_, err := io.ReadFull(r, pkt)
	return pkt, err
}
