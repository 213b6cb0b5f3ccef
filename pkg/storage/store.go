package storage

// ByteStore is a byte-addressable non-volatile memory.
type ByteStore interface {
	// ReadAt fills buf with the bytes starting at addr.
	ReadAt(addr uint32, buf []byte) error
	// WriteAt stores data starting at addr.
	WriteAt(addr uint32, data []byte) error
	// Size is the addressable capacity in bytes.
	Size() uint32
}

// Flash is a ByteStore whose cells must be erased before they are
// written again.
type Flash interface {
	ByteStore
	// Busy reports whether the device is still executing a
	// program or erase operation.
	Busy() (bool, error)
	// EraseSector erases the sector containing addr.
	EraseSector(addr uint32) error
	// EraseAll erases the whole device.
	EraseAll() error
	// SectorSize is the erase granularity.
	SectorSize() uint32
}

// Fill writes value over [addr, addr+n) in bounded chunks.
func Fill(s ByteStore, addr, n uint32, value byte) error {
	const chunk = 4096
	buf := make([]byte, chunk)
	for i := range buf {
		buf[i] = value
	}
	for n > 0 {
		size := n
		if size > chunk {
			size = chunk
		}
		if err := s.WriteAt(addr, buf[:size]); err != nil {
			return err
		}
		addr += size
		n -= size
	}
	return nil
}

func checkRange(addr uint32, n int, size uint32) error {
	if uint64(addr)+uint64(n) > uint64(size) {
		return &RangeError{Addr: addr, Len: n, Size: size}
	}
	return nil
}
