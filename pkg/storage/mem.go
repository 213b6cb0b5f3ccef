package storage

// Mem is a ByteStore backed by a byte slice.
type Mem struct {
	// Guard, when set, rejects writes while locked.
	Guard interface{ Locked() bool }

	buf []byte
}

// NewMem creates a Mem of size bytes, each set to fill.
func NewMem(size uint32, fill byte) *Mem {
	m := &Mem{buf: make([]byte, size)}
	for i := range m.buf {
		m.buf[i] = fill
	}
	return m
}

// ReadAt implements ByteStore.
func (m *Mem) ReadAt(addr uint32, buf []byte) error {
	if err := checkRange(addr, len(buf), m.Size()); err != nil {
		return err
	}
	copy(buf, m.buf[addr:])
	return nil
}

// WriteAt implements ByteStore.
func (m *Mem) WriteAt(addr uint32, data []byte) error {
	if err := checkRange(addr, len(data), m.Size()); err != nil {
		return err
	}
	if m.Guard != nil && m.Guard.Locked() {
		return ErrWriteProtected
	}
	copy(m.buf[addr:], data)
	return nil
}

// Size implements ByteStore.
func (m *Mem) Size() uint32 {
	return uint32(len(m.buf))
}

// Bytes exposes the backing slice.
func (m *Mem) Bytes() []byte {
	return m.buf
}
