package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfSpace indicates the partition has no free slot left.
	ErrOutOfSpace = errors.New("out of partition space")
	// ErrBusy indicates the device didn't become ready in time.
	ErrBusy = errors.New("memory busy")
	// ErrBoundsViolation is matched by every BoundsError.
	ErrBoundsViolation = errors.New("partition bounds violation")
	// ErrOutOfRange is matched by every RangeError.
	ErrOutOfRange = errors.New("address out of range")
	// ErrWriteProtected indicates a write without unlocking the region.
	ErrWriteProtected = errors.New("write protected")
)

// BoundsError reports a cursor outside of its partition or not aligned
// to the record stride. It is a logic or configuration defect.
type BoundsError struct {
	Partition string
	Cursor    uint32
	Base      uint32
	End       uint32
}

// Error implements error.
func (e *BoundsError) Error() string {
	return fmt.Sprintf("cursor 0x%x outside partition %s [0x%x, 0x%x)",
		e.Cursor, e.Partition, e.Base, e.End)
}

// Is matches ErrBoundsViolation.
func (e *BoundsError) Is(target error) bool {
	return target == ErrBoundsViolation
}

// RangeError reports an access beyond the device capacity.
type RangeError struct {
	Addr uint32
	Len  int
	Size uint32
}

// Error implements error.
func (e *RangeError) Error() string {
	return fmt.Sprintf("access 0x%x+%d beyond capacity 0x%x", e.Addr, e.Len, e.Size)
}

// Is matches ErrOutOfRange.
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// IOError wraps a failure of the underlying device.
type IOError struct {
	Op   string
	Addr uint32
	Err  error
}

// Error implements error.
func (e *IOError) Error() string {
	return fmt.Sprintf("%s at 0x%x: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the device error.
func (e *IOError) Unwrap() error {
	return e.Err
}
