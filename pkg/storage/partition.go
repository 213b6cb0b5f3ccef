package storage

import (
	"fmt"
	"sort"
)

// Partition is the address interval [Base, Base+Size) holding records
// of one kind. Size is a multiple of Stride.
type Partition struct {
	Name   string `yaml:"name" json:"name"`
	Base   uint32 `yaml:"base" json:"base"`
	Size   uint32 `yaml:"size" json:"size"`
	Stride uint32 `yaml:"-" json:"stride"`
}

// End is the first address after the partition.
func (p Partition) End() uint32 {
	return p.Base + p.Size
}

// Slots is the number of records the partition holds.
func (p Partition) Slots() uint32 {
	if p.Stride == 0 {
		return 0
	}
	return p.Size / p.Stride
}

// Addr maps a record index to its address.
func (p Partition) Addr(index uint32) (uint32, error) {
	if index >= p.Slots() {
		return 0, fmt.Errorf("record %d beyond partition %s (%d slots)", index, p.Name, p.Slots())
	}
	return p.Base + index*p.Stride, nil
}

// Used is the number of records before cursor.
func (p Partition) Used(cursor uint32) uint32 {
	if cursor <= p.Base || p.Stride == 0 {
		return 0
	}
	return (cursor - p.Base) / p.Stride
}

// CheckCursor verifies cursor is a record boundary inside the partition.
// Cursor equal to End is valid and means the partition is full.
func (p Partition) CheckCursor(cursor uint32) error {
	if cursor < p.Base || cursor > p.End() || p.Stride == 0 || (cursor-p.Base)%p.Stride != 0 {
		return &BoundsError{Partition: p.Name, Cursor: cursor, Base: p.Base, End: p.End()}
	}
	return nil
}

// Overlaps reports whether two partitions share any byte.
func (p Partition) Overlaps(o Partition) bool {
	return p.Base < o.End() && o.Base < p.End()
}

// Validate checks the partition is well formed.
func (p Partition) Validate() error {
	switch {
	case p.Stride == 0:
		return fmt.Errorf("partition %s: zero stride", p.Name)
	case p.Size == 0:
		return fmt.Errorf("partition %s: empty", p.Name)
	case p.Size%p.Stride != 0:
		return fmt.Errorf("partition %s: size %d not a multiple of stride %d", p.Name, p.Size, p.Stride)
	case uint64(p.Base)+uint64(p.Size) > 1<<32:
		return fmt.Errorf("partition %s: wraps address space", p.Name)
	}
	return nil
}

// Layout is the set of partitions of one memory device.
type Layout struct {
	Capacity   uint32
	Partitions []Partition
}

// Validate checks every partition is well formed, inside the capacity,
// aligned to align (when non-zero) and disjoint from the others.
func (l Layout) Validate(align uint32) error {
	parts := append([]Partition(nil), l.Partitions...)
	sort.Slice(parts, func(i, j int) bool { return parts[i].Base < parts[j].Base })
	for n, p := range parts {
		if err := p.Validate(); err != nil {
			return err
		}
		if uint64(p.End()) > uint64(l.Capacity) {
			return fmt.Errorf("partition %s: ends at 0x%x beyond capacity 0x%x", p.Name, p.End(), l.Capacity)
		}
		if align != 0 && (p.Base%align != 0 || p.Size%align != 0) {
			return fmt.Errorf("partition %s: not aligned to 0x%x", p.Name, align)
		}
		if n > 0 && parts[n-1].Overlaps(p) {
			return fmt.Errorf("partition %s overlaps %s", p.Name, parts[n-1].Name)
		}
	}
	return nil
}
