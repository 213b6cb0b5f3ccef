package storage

// ErasedByte is the value of every byte of an erased flash cell.
const ErasedByte byte = 0xFF

// MarkerSize is the number of leading bytes of a slot examined to tell
// whether it was ever written.
const MarkerSize = 4

// scanChunk is the number of slots fetched per device read.
const scanChunk = 64

// IsErased reports whether b is non-empty and every byte is ErasedByte.
func IsErased(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, v := range b {
		if v != ErasedByte {
			return false
		}
	}
	return true
}

func slotErased(slot []byte) bool {
	if len(slot) > MarkerSize {
		slot = slot[:MarkerSize]
	}
	return IsErased(slot)
}

// ScanFree finds the first free slot of p: the first slot that is erased
// and followed by another erased slot. A single erased slot between
// written ones is taken as an interrupted write and skipped. The last slot
// counts as free when erased. ErrOutOfSpace is returned with p.End() when
// no free slot exists.
func ScanFree(s ByteStore, p Partition) (uint32, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	slots := p.Slots()
	buf := make([]byte, scanChunk*p.Stride)
	candidate, pending := uint32(0), false
	for index := uint32(0); index < slots; {
		n := slots - index
		if n > scanChunk {
			n = scanChunk
		}
		chunk := buf[:n*p.Stride]
		if err := s.ReadAt(p.Base+index*p.Stride, chunk); err != nil {
			return 0, err
		}
		for i := uint32(0); i < n; i++ {
			if !slotErased(chunk[i*p.Stride : (i+1)*p.Stride]) {
				pending = false
				continue
			}
			if pending {
				return p.Base + candidate*p.Stride, nil
			}
			candidate, pending = index+i, true
		}
		index += n
	}
	if pending {
		return p.Base + candidate*p.Stride, nil
	}
	return p.End(), ErrOutOfSpace
}
