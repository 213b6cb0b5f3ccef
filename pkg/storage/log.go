package storage

import "fmt"

// Cursor holds the persisted next-free address of a partition.
type Cursor interface {
	Load() uint32
	Store(uint32) error
}

// MemCursor is a Cursor kept only in memory.
type MemCursor uint32

// Load implements Cursor.
func (c *MemCursor) Load() uint32 { return uint32(*c) }

// Store implements Cursor.
func (c *MemCursor) Store(v uint32) error {
	*c = MemCursor(v)
	return nil
}

// Log appends fixed-size records to a partition of a ByteStore.
type Log struct {
	Store     ByteStore
	Partition Partition
	Cursor    Cursor
}

// Append writes rec at the cursor and advances the cursor by one stride.
// The cursor is untouched when the write fails or the partition is full.
func (l *Log) Append(rec []byte) (uint32, error) {
	p := l.Partition
	if uint32(len(rec)) != p.Stride {
		return 0, fmt.Errorf("partition %s: record size %d, stride %d", p.Name, len(rec), p.Stride)
	}
	cursor := l.Cursor.Load()
	if err := p.CheckCursor(cursor); err != nil {
		return cursor, err
	}
	if uint64(cursor)+uint64(p.Stride) > uint64(p.End()) {
		return cursor, ErrOutOfSpace
	}
	if err := l.Store.WriteAt(cursor, rec); err != nil {
		return cursor, err
	}
	return cursor, l.Cursor.Store(cursor + p.Stride)
}

// Read loads the record at index into buf and returns its address.
func (l *Log) Read(index uint32, buf []byte) (uint32, error) {
	addr, err := l.Partition.Addr(index)
	if err != nil {
		return 0, err
	}
	if uint32(len(buf)) < l.Partition.Stride {
		return addr, fmt.Errorf("partition %s: read buffer %d < stride %d", l.Partition.Name, len(buf), l.Partition.Stride)
	}
	return addr, l.Store.ReadAt(addr, buf[:l.Partition.Stride])
}

// Len is the number of appended records.
func (l *Log) Len() uint32 {
	return l.Partition.Used(l.Cursor.Load())
}

// Full reports whether no slot is left.
func (l *Log) Full() bool {
	return l.Cursor.Load() >= l.Partition.End()
}

// Rewind moves the cursor back to the partition base. Used after the
// partition has been erased.
func (l *Log) Rewind() error {
	return l.Cursor.Store(l.Partition.Base)
}
